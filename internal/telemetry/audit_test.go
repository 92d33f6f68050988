package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"groupchat-service/internal/mocks"
)

func TestEmitPublishesEnvelope(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	emitter := NewAuditEmitter(publisher, "audit.groupchat", "groupchat-service", "test")

	publisher.On("Publish", mock.Anything, "audit.groupchat", mock.MatchedBy(func(event any) bool {
		envelope, ok := event.(AuditEnvelope)
		if !ok {
			return false
		}
		return envelope.EventType == "audit_log" &&
			envelope.Service == "groupchat-service" &&
			envelope.Payload.Level == "INFO" &&
			envelope.Payload.Text == "Group history read" &&
			envelope.UserID != nil && *envelope.UserID == "42"
	})).Return(nil).Once()

	emitter.Emit(context.Background(), "INFO", "Group history read", "req-1", 42)
	publisher.AssertExpectations(t)
}

func TestEmitAnonymousUser(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	emitter := NewAuditEmitter(publisher, "audit.groupchat", "groupchat-service", "test")

	publisher.On("Publish", mock.Anything, "audit.groupchat", mock.MatchedBy(func(event any) bool {
		envelope, ok := event.(AuditEnvelope)
		return ok && envelope.UserID == nil
	})).Return(nil).Once()

	emitter.Emit(context.Background(), "ERROR", "not allowed", "req-2", 0)
	publisher.AssertExpectations(t)
}

func TestEmitNilEmitterIsSafe(t *testing.T) {
	var emitter *AuditEmitter
	require.NotPanics(t, func() {
		emitter.Emit(context.Background(), "INFO", "noop", "req-3", 1)
	})
}
