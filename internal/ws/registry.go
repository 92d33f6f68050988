package ws

import (
	"context"
	"log"
	"sync"
	"time"

	"groupchat-service/internal/observability"
)

// PresenceTracker records user liveness. Satisfied by *presence.Tracker.
type PresenceTracker interface {
	Online(ctx context.Context, userID int)
	Touch(ctx context.Context, userID int)
	Offline(ctx context.Context, userID int)
}

// Registry tracks every live connection. It owns the connection lifecycle:
// unregistering cascades into room cleanup and presence removal.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client
	// users counts live connections per user; presence is only cleared
	// when a user's last connection goes away.
	users map[int]int

	rooms    *RoomManager
	presence PresenceTracker
}

// NewRegistry constructs a Registry wired to the room manager and the
// presence tracker (which may be nil).
func NewRegistry(rooms *RoomManager, tracker PresenceTracker) *Registry {
	return &Registry{
		clients:  make(map[string]*Client),
		users:    make(map[int]int),
		rooms:    rooms,
		presence: tracker,
	}
}

// Register inserts a new tracked connection.
func (r *Registry) Register(cl *Client) error {
	r.mu.Lock()
	if _, ok := r.clients[cl.ID]; ok {
		r.mu.Unlock()
		return ErrDuplicateConnection
	}
	r.clients[cl.ID] = cl
	r.users[cl.UserID]++
	r.mu.Unlock()

	if r.presence != nil {
		r.presence.Online(context.Background(), cl.UserID)
	}
	observability.IncWSActive()
	return nil
}

// Unregister removes the connection, leaving any room it belonged to.
// Idempotent: unregistering an unknown connection is a no-op.
func (r *Registry) Unregister(connID string) {
	r.mu.Lock()
	cl, ok := r.clients[connID]
	var lastConn bool
	if ok {
		delete(r.clients, connID)
		r.users[cl.UserID]--
		if r.users[cl.UserID] <= 0 {
			delete(r.users, cl.UserID)
			lastConn = true
		}
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	r.rooms.LeaveAll(cl)
	cl.close()
	// Another tab or device may still hold a connection for this user.
	if lastConn && r.presence != nil {
		r.presence.Offline(context.Background(), cl.UserID)
	}
	observability.DecWSActive()
}

// Touch refreshes the liveness timestamp of a connection.
func (r *Registry) Touch(connID string) {
	r.mu.RLock()
	cl, ok := r.clients[connID]
	r.mu.RUnlock()
	if !ok {
		return
	}
	cl.Touch()
	if r.presence != nil {
		r.presence.Touch(context.Background(), cl.UserID)
	}
}

// Get looks up a connection by id.
func (r *Registry) Get(connID string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cl, ok := r.clients[connID]
	return cl, ok
}

// Len reports the number of tracked connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Sweep evicts connections whose last liveness signal is older than the
// idle timeout and returns how many were removed.
func (r *Registry) Sweep(idleTimeout time.Duration) int {
	cutoff := time.Now().Add(-idleTimeout)

	r.mu.RLock()
	var stale []string
	for id, cl := range r.clients {
		if cl.IdleSince().Before(cutoff) {
			stale = append(stale, id)
		}
	}
	r.mu.RUnlock()

	for _, id := range stale {
		log.Printf("evicting idle connection conn_id=%s", id)
		r.Unregister(id)
	}
	return len(stale)
}

// Run sweeps idle connections on an interval until the context is done.
func (r *Registry) Run(ctx context.Context, interval, idleTimeout time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(idleTimeout)
		}
	}
}
