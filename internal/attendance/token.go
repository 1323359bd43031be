package attendance

import (
	"encoding/base64"
	"encoding/json"
	"strings"
)

// Locator identifies the session a check-in refers to. It carries no
// authority: expiry and class membership always come from storage.
type Locator struct {
	SessionCode string
	ClassID     string
}

// MarkRequest is the body accepted by the check-in endpoint. Either
// SessionCode or QRCode must be set.
type MarkRequest struct {
	SessionCode string `json:"sessionCode"`
	ClassID     string `json:"classId"`
	QRCode      string `json:"qrCode"`
}

type locatorDoc struct {
	SessionCode string `json:"sessionCode"`
	ClassID     string `json:"classId"`
}

// Locate extracts a Locator from the request. It returns false when no
// session code can be found.
func (r MarkRequest) Locate() (Locator, bool) {
	if code := strings.TrimSpace(r.SessionCode); code != "" {
		return Locator{SessionCode: code, ClassID: strings.TrimSpace(r.ClassID)}, true
	}
	raw := strings.TrimSpace(r.QRCode)
	if raw == "" {
		return Locator{}, false
	}
	loc := decodeQR(raw)
	if loc.ClassID == "" {
		loc.ClassID = strings.TrimSpace(r.ClassID)
	}
	return loc, true
}

// decodeQR accepts the JSON document rendered into QR images, a base64
// encoding of it, or an opaque code. Anything that does not decode to a
// document with a session code is used verbatim as the code.
func decodeQR(raw string) Locator {
	if doc, ok := parseDoc([]byte(raw)); ok {
		return doc
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		b, err := enc.DecodeString(raw)
		if err != nil {
			continue
		}
		if doc, ok := parseDoc(b); ok {
			return doc
		}
		break
	}
	return Locator{SessionCode: raw}
}

func parseDoc(b []byte) (Locator, bool) {
	var doc locatorDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		return Locator{}, false
	}
	code := strings.TrimSpace(doc.SessionCode)
	if code == "" {
		return Locator{}, false
	}
	return Locator{SessionCode: code, ClassID: strings.TrimSpace(doc.ClassID)}, true
}
