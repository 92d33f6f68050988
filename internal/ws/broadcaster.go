package ws

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"groupchat-service/internal/models"
	"groupchat-service/internal/observability"
	"groupchat-service/internal/repositories"
)

// Broadcaster is the write path: it validates a send, persists the message
// and fans it out to every current subscriber of the room, sender included.
type Broadcaster struct {
	rooms    *RoomManager
	registry *Registry
	store    repositories.MessageRepository

	maxMessageLen   int
	upstreamTimeout time.Duration
}

// NewBroadcaster constructs a Broadcaster.
func NewBroadcaster(rooms *RoomManager, registry *Registry, store repositories.MessageRepository, maxMessageLen int, upstreamTimeout time.Duration) *Broadcaster {
	return &Broadcaster{
		rooms:           rooms,
		registry:        registry,
		store:           store,
		maxMessageLen:   maxMessageLen,
		upstreamTimeout: upstreamTimeout,
	}
}

// Send accepts a message from a joined connection. Persistence is the
// single serialization point: the group's order lock is held across append
// and fan-out enqueue, so delivery order matches persisted order for every
// subscriber. A message that fails to persist is never delivered.
func (b *Broadcaster) Send(ctx context.Context, cl *Client, groupID int, text string) (models.Message, error) {
	if !b.rooms.InRoom(cl, groupID) {
		return models.Message{}, ErrNotJoined
	}

	text = strings.TrimSpace(text)
	if text == "" || utf8.RuneCountInString(text) > b.maxMessageLen {
		return models.Message{}, ErrInvalidMessage
	}

	lock := b.rooms.orderLock(groupID)
	lock.Lock()
	defer lock.Unlock()

	appendCtx, cancel := context.WithTimeout(ctx, b.upstreamTimeout)
	defer cancel()

	msg, err := b.store.Append(appendCtx, groupID, cl.UserID, text)
	if err != nil {
		return models.Message{}, err
	}

	b.fanOut(groupID, msg)
	return msg, nil
}

func (b *Broadcaster) fanOut(groupID int, msg models.Message) {
	event := models.RoomEvent{Type: models.EventMessageNew, Message: &msg}
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("marshal room event: %v", err)
		return
	}

	for _, member := range b.rooms.Members(groupID) {
		if !member.Enqueue(payload) {
			// Slow or dead consumer: drop the connection rather than
			// block the room.
			log.Printf("dropping slow connection conn_id=%s group_id=%d", member.ID, groupID)
			b.registry.Unregister(member.ID)
		}
	}
	observability.IncMessagesBroadcast()
}
