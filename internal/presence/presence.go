package presence

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// OnlineTTL is how long a presence key lives without a refresh. Refreshes
// arrive from pong-driven liveness updates, so the TTL must cover a full
// ping cycle with room to spare or connected users flicker offline.
const OnlineTTL = 2 * time.Minute

// Tracker marks users online in Redis while they hold a live connection.
// A nil Tracker is safe to call; presence is then simply not recorded.
type Tracker struct {
	client *redis.Client
}

// NewTracker constructs a Tracker, or nil when Redis is not configured.
func NewTracker(addr string) *Tracker {
	if addr == "" {
		return nil
	}
	return &Tracker{client: redis.NewClient(&redis.Options{Addr: addr})}
}

// Online sets the user's presence key with a TTL.
func (t *Tracker) Online(ctx context.Context, userID int) {
	if t == nil {
		return
	}
	if err := t.client.Set(ctx, presenceKey(userID), "1", OnlineTTL).Err(); err != nil {
		log.Printf("presence set failed: %v", err)
	}
}

// Touch refreshes the TTL; called from connection liveness updates.
func (t *Tracker) Touch(ctx context.Context, userID int) {
	t.Online(ctx, userID)
}

// Offline removes the presence key immediately.
func (t *Tracker) Offline(ctx context.Context, userID int) {
	if t == nil {
		return
	}
	if err := t.client.Del(ctx, presenceKey(userID)).Err(); err != nil {
		log.Printf("presence del failed: %v", err)
	}
}

func presenceKey(userID int) string {
	return fmt.Sprintf("user:%d:online", userID)
}
