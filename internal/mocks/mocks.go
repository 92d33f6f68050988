package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"groupchat-service/internal/models"
)

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) Append(ctx context.Context, groupID int, senderUID int, text string) (models.Message, error) {
	args := m.Called(ctx, groupID, senderUID, text)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) FetchBacklog(ctx context.Context, groupID int, limit int) ([]models.Message, error) {
	args := m.Called(ctx, groupID, limit)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

type MembershipServiceMock struct {
	mock.Mock
}

func (m *MembershipServiceMock) IsMember(ctx context.Context, groupID int, userID int) (bool, error) {
	args := m.Called(ctx, groupID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MembershipServiceMock) GroupExists(ctx context.Context, groupID int) (bool, error) {
	args := m.Called(ctx, groupID)
	return args.Bool(0), args.Error(1)
}

type PresenceTrackerMock struct {
	mock.Mock
}

func (m *PresenceTrackerMock) Online(ctx context.Context, userID int) {
	m.Called(ctx, userID)
}

func (m *PresenceTrackerMock) Touch(ctx context.Context, userID int) {
	m.Called(ctx, userID)
}

func (m *PresenceTrackerMock) Offline(ctx context.Context, userID int) {
	m.Called(ctx, userID)
}

type TokenVerifierMock struct {
	mock.Mock
}

func (m *TokenVerifierMock) Verify(token string) (int, error) {
	args := m.Called(token)
	return args.Int(0), args.Error(1)
}
