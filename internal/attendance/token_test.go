package attendance

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLocate(t *testing.T) {
	doc := `{"sessionCode":"abc123","classId":"class-1","className":"DS","expiresAt":"2024-03-04T09:05:00Z"}`
	legacy := base64.StdEncoding.EncodeToString([]byte(`{"classId":"class-1","timestamp":1709542800}`))

	tests := []struct {
		name string
		req  MarkRequest
		want Locator
		ok   bool
	}{
		{"empty", MarkRequest{}, Locator{}, false},
		{"canonical", MarkRequest{SessionCode: " abc123 ", ClassID: "class-1"}, Locator{SessionCode: "abc123", ClassID: "class-1"}, true},
		{"bare qr code", MarkRequest{QRCode: "0123456789abcdef0123456789abcdef"}, Locator{SessionCode: "0123456789abcdef0123456789abcdef"}, true},
		{"json qr data", MarkRequest{QRCode: doc}, Locator{SessionCode: "abc123", ClassID: "class-1"}, true},
		{"base64 json", MarkRequest{QRCode: base64.StdEncoding.EncodeToString([]byte(doc))}, Locator{SessionCode: "abc123", ClassID: "class-1"}, true},
		{"legacy blob is the key", MarkRequest{QRCode: legacy, ClassID: "class-1"}, Locator{SessionCode: legacy, ClassID: "class-1"}, true},
		{"body class id fills in", MarkRequest{QRCode: "code", ClassID: "class-9"}, Locator{SessionCode: "code", ClassID: "class-9"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.req.Locate()
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
