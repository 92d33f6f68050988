package ws

import (
	"context"
	"sync"
	"time"

	"groupchat-service/internal/clients"
	"groupchat-service/internal/models"
	"groupchat-service/internal/observability"
	"groupchat-service/internal/repositories"
)

// RoomManager maps group ids to the set of connections subscribed to their
// live channel. Rooms are created lazily on first join and removed when the
// last member leaves.
type RoomManager struct {
	mu    sync.RWMutex
	rooms map[int]map[string]*Client

	// orderMu guards the per-group order locks. Each group's lock is the
	// serialization point for append + fan-out, and for join + backlog,
	// so every subscriber observes one linear order per group. Order locks
	// live for the process lifetime; dropping one while a sender still
	// holds it would let a later append run unserialized.
	orderMu sync.Mutex
	order   map[int]*sync.Mutex

	membership clients.MembershipService
	store      repositories.MessageRepository

	upstreamTimeout time.Duration
	defaultLimit    int
	maxLimit        int
}

// NewRoomManager constructs a RoomManager.
func NewRoomManager(membership clients.MembershipService, store repositories.MessageRepository, upstreamTimeout time.Duration, defaultLimit, maxLimit int) *RoomManager {
	return &RoomManager{
		rooms:           make(map[int]map[string]*Client),
		order:           make(map[int]*sync.Mutex),
		membership:      membership,
		store:           store,
		upstreamTimeout: upstreamTimeout,
		defaultLimit:    defaultLimit,
		maxLimit:        maxLimit,
	}
}

// Join authorizes the user against the membership service, registers the
// connection in the room and returns the backlog as the initial state.
// Membership is re-validated on every attempt; authorization is never
// cached across connection lifetimes.
func (m *RoomManager) Join(ctx context.Context, cl *Client, groupID, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = m.defaultLimit
	}
	if limit > m.maxLimit {
		limit = m.maxLimit
	}

	checkCtx, cancel := context.WithTimeout(ctx, m.upstreamTimeout)
	defer cancel()

	exists, err := m.membership.GroupExists(checkCtx, groupID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, clients.ErrGroupNotFound
	}

	member, err := m.membership.IsMember(checkCtx, groupID, cl.UserID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, ErrNotAuthorized
	}

	// Insert and read the backlog under the group's order lock so the
	// backlog plus subsequent broadcasts form a gapless sequence for the
	// joining client.
	lock := m.orderLock(groupID)
	lock.Lock()
	defer lock.Unlock()

	inserted := m.add(cl, groupID)

	backlogCtx, cancelBacklog := context.WithTimeout(ctx, m.upstreamTimeout)
	defer cancelBacklog()

	backlog, err := m.store.FetchBacklog(backlogCtx, groupID, limit)
	if err != nil {
		// No partial membership: a failed join leaves no trace. A re-join
		// of the current room keeps the existing subscription.
		if inserted {
			m.remove(cl, groupID)
		}
		return nil, err
	}

	cl.markJoined(groupID)
	if inserted {
		observability.IncRoomSubscriptions()
	}
	return backlog, nil
}

// Leave removes the connection from the room. Idempotent.
func (m *RoomManager) Leave(cl *Client, groupID int) {
	if m.remove(cl, groupID) {
		cl.markLeft(groupID)
		observability.DecRoomSubscriptions()
	}
}

// LeaveAll removes the connection from every room it occupies; used by the
// registry's cascading cleanup on disconnect.
func (m *RoomManager) LeaveAll(cl *Client) {
	m.mu.Lock()
	var left []int
	for groupID, members := range m.rooms {
		if _, ok := members[cl.ID]; ok {
			delete(members, cl.ID)
			left = append(left, groupID)
			if len(members) == 0 {
				delete(m.rooms, groupID)
			}
		}
	}
	m.mu.Unlock()

	for _, groupID := range left {
		cl.markLeft(groupID)
		observability.DecRoomSubscriptions()
	}
}

// InRoom reports whether the connection is currently subscribed to the
// group's room.
func (m *RoomManager) InRoom(cl *Client, groupID int) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	members, ok := m.rooms[groupID]
	if !ok {
		return false
	}
	_, ok = members[cl.ID]
	return ok
}

// Members returns a snapshot of the room's connections.
func (m *RoomManager) Members(groupID int) []*Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	members := m.rooms[groupID]
	out := make([]*Client, 0, len(members))
	for _, cl := range members {
		out = append(out, cl)
	}
	return out
}

// RoomCount reports how many rooms are live.
func (m *RoomManager) RoomCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

// add inserts the connection into the room, reporting whether it was not
// already a member.
func (m *RoomManager) add(cl *Client, groupID int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[groupID]; !ok {
		m.rooms[groupID] = make(map[string]*Client)
	}
	if _, ok := m.rooms[groupID][cl.ID]; ok {
		return false
	}
	m.rooms[groupID][cl.ID] = cl
	return true
}

func (m *RoomManager) remove(cl *Client, groupID int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	members, ok := m.rooms[groupID]
	if !ok {
		return false
	}
	if _, ok := members[cl.ID]; !ok {
		return false
	}
	delete(members, cl.ID)
	if len(members) == 0 {
		delete(m.rooms, groupID)
	}
	return true
}

// orderLock returns the group's serialization lock, creating it lazily.
func (m *RoomManager) orderLock(groupID int) *sync.Mutex {
	m.orderMu.Lock()
	defer m.orderMu.Unlock()
	lock, ok := m.order[groupID]
	if !ok {
		lock = &sync.Mutex{}
		m.order[groupID] = lock
	}
	return lock
}
