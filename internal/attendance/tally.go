package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"qrattend/internal/queue"
)

const tallyTTL = 24 * time.Hour

// Tally keeps a live per-session check-in count in Redis.
type Tally struct {
	client *redis.Client
	prefix string
}

// NewTally creates a tally on client.
func NewTally(client *redis.Client) *Tally {
	return &Tally{client: client, prefix: "attendance:tally:"}
}

func (t *Tally) key(sessionID string) string {
	return t.prefix + sessionID
}

// Handle applies one queue message. Unknown message types are ignored.
func (t *Tally) Handle(ctx context.Context, msg queue.Message) error {
	if msg.Type != EventMarked {
		return nil
	}
	var evt MarkedEvent
	if err := msg.Decode(&evt); err != nil {
		return err
	}
	if evt.SessionID == "" {
		return errors.New("marked event without session id")
	}
	key := t.key(evt.SessionID)
	pipe := t.client.TxPipeline()
	pipe.HIncrBy(ctx, key, "checkins", 1)
	pipe.HSet(ctx, key, "class_id", evt.ClassID, "last_marked_at", evt.MarkedAt.Format(time.RFC3339Nano))
	pipe.Expire(ctx, key, tallyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("update tally %s: %w", evt.SessionID, err)
	}
	return nil
}

// Count returns the number of check-ins recorded for a session.
func (t *Tally) Count(ctx context.Context, sessionID string) (int64, error) {
	n, err := t.client.HGet(ctx, t.key(sessionID), "checkins").Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read tally %s: %w", sessionID, err)
	}
	return n, nil
}
