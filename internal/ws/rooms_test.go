package ws

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"groupchat-service/internal/clients"
	"groupchat-service/internal/mocks"
	"groupchat-service/internal/models"
	"groupchat-service/internal/repositories"
)

func newTestRoomManager(membership *mocks.MembershipServiceMock, store *mocks.MessageRepositoryMock) *RoomManager {
	return NewRoomManager(membership, store, time.Second, 50, 200)
}

func TestJoinReturnsBacklog(t *testing.T) {
	membership := new(mocks.MembershipServiceMock)
	store := new(mocks.MessageRepositoryMock)
	rooms := newTestRoomManager(membership, store)
	cl := NewClient(nil, 1)

	backlog := []models.Message{
		{ID: 1, GroupID: 7, SenderUID: 2, Text: "first"},
		{ID: 2, GroupID: 7, SenderUID: 1, Text: "second"},
	}
	membership.On("GroupExists", mock.Anything, 7).Return(true, nil).Once()
	membership.On("IsMember", mock.Anything, 7, 1).Return(true, nil).Once()
	store.On("FetchBacklog", mock.Anything, 7, 50).Return(backlog, nil).Once()

	got, err := rooms.Join(context.Background(), cl, 7, 0)
	require.NoError(t, err)
	require.Equal(t, backlog, got)
	require.True(t, rooms.InRoom(cl, 7))

	groupID, joined := cl.JoinedGroup()
	require.True(t, joined)
	require.Equal(t, 7, groupID)

	membership.AssertExpectations(t)
	store.AssertExpectations(t)
}

func TestJoinNotAuthorized(t *testing.T) {
	membership := new(mocks.MembershipServiceMock)
	store := new(mocks.MessageRepositoryMock)
	rooms := newTestRoomManager(membership, store)
	cl := NewClient(nil, 2)

	membership.On("GroupExists", mock.Anything, 7).Return(true, nil).Once()
	membership.On("IsMember", mock.Anything, 7, 2).Return(false, nil).Once()

	_, err := rooms.Join(context.Background(), cl, 7, 50)
	require.ErrorIs(t, err, ErrNotAuthorized)
	require.False(t, rooms.InRoom(cl, 7))
	require.Zero(t, rooms.RoomCount())

	_, joined := cl.JoinedGroup()
	require.False(t, joined)
	store.AssertNotCalled(t, "FetchBacklog", mock.Anything, mock.Anything, mock.Anything)
}

func TestJoinGroupNotFound(t *testing.T) {
	membership := new(mocks.MembershipServiceMock)
	store := new(mocks.MessageRepositoryMock)
	rooms := newTestRoomManager(membership, store)
	cl := NewClient(nil, 1)

	membership.On("GroupExists", mock.Anything, 99).Return(false, nil).Once()

	_, err := rooms.Join(context.Background(), cl, 99, 50)
	require.ErrorIs(t, err, clients.ErrGroupNotFound)
	require.False(t, rooms.InRoom(cl, 99))
	membership.AssertNotCalled(t, "IsMember", mock.Anything, mock.Anything, mock.Anything)
}

func TestJoinMembershipRecheckedEveryAttempt(t *testing.T) {
	membership := new(mocks.MembershipServiceMock)
	store := new(mocks.MessageRepositoryMock)
	rooms := newTestRoomManager(membership, store)

	membership.On("GroupExists", mock.Anything, 7).Return(true, nil).Twice()
	membership.On("IsMember", mock.Anything, 7, 1).Return(true, nil).Once()
	membership.On("IsMember", mock.Anything, 7, 1).Return(false, nil).Once()
	store.On("FetchBacklog", mock.Anything, 7, 50).Return([]models.Message{}, nil).Once()

	first := NewClient(nil, 1)
	_, err := rooms.Join(context.Background(), first, 7, 50)
	require.NoError(t, err)

	// Membership was revoked between connections.
	second := NewClient(nil, 1)
	_, err = rooms.Join(context.Background(), second, 7, 50)
	require.ErrorIs(t, err, ErrNotAuthorized)

	membership.AssertExpectations(t)
}

func TestJoinBacklogFailureLeavesNoMembership(t *testing.T) {
	membership := new(mocks.MembershipServiceMock)
	store := new(mocks.MessageRepositoryMock)
	rooms := newTestRoomManager(membership, store)
	cl := NewClient(nil, 1)

	membership.On("GroupExists", mock.Anything, 7).Return(true, nil).Once()
	membership.On("IsMember", mock.Anything, 7, 1).Return(true, nil).Once()
	store.On("FetchBacklog", mock.Anything, 7, 50).Return(nil, repositories.ErrStoreUnavailable).Once()

	_, err := rooms.Join(context.Background(), cl, 7, 50)
	require.ErrorIs(t, err, repositories.ErrStoreUnavailable)
	require.False(t, rooms.InRoom(cl, 7))
	require.Zero(t, rooms.RoomCount())
}

func TestJoinClampsBacklogLimit(t *testing.T) {
	membership := new(mocks.MembershipServiceMock)
	store := new(mocks.MessageRepositoryMock)
	rooms := newTestRoomManager(membership, store)
	cl := NewClient(nil, 1)

	membership.On("GroupExists", mock.Anything, 7).Return(true, nil).Once()
	membership.On("IsMember", mock.Anything, 7, 1).Return(true, nil).Once()
	store.On("FetchBacklog", mock.Anything, 7, 200).Return([]models.Message{}, nil).Once()

	_, err := rooms.Join(context.Background(), cl, 7, 5000)
	require.NoError(t, err)
	store.AssertExpectations(t)
}

func roomSubscriptionsGauge(t *testing.T) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == "groupchat_room_subscriptions" {
			return mf.GetMetric()[0].GetGauge().GetValue()
		}
	}
	return 0
}

func TestRejoinSameGroupKeepsSubscriptionGauge(t *testing.T) {
	membership := new(mocks.MembershipServiceMock)
	store := new(mocks.MessageRepositoryMock)
	rooms := newTestRoomManager(membership, store)
	cl := NewClient(nil, 1)

	membership.On("GroupExists", mock.Anything, 7).Return(true, nil).Twice()
	membership.On("IsMember", mock.Anything, 7, 1).Return(true, nil).Twice()
	store.On("FetchBacklog", mock.Anything, 7, 50).Return([]models.Message{}, nil).Twice()

	_, err := rooms.Join(context.Background(), cl, 7, 50)
	require.NoError(t, err)
	base := roomSubscriptionsGauge(t)

	// Re-joining the current room refreshes the backlog without adding a
	// second subscription.
	_, err = rooms.Join(context.Background(), cl, 7, 50)
	require.NoError(t, err)
	require.Equal(t, base, roomSubscriptionsGauge(t))
	require.Len(t, rooms.Members(7), 1)
}

func TestOrderLockStableAcrossRoomLifecycle(t *testing.T) {
	membership := new(mocks.MembershipServiceMock)
	store := new(mocks.MessageRepositoryMock)
	rooms := newTestRoomManager(membership, store)
	cl := NewClient(nil, 1)

	membership.On("GroupExists", mock.Anything, 7).Return(true, nil)
	membership.On("IsMember", mock.Anything, 7, 1).Return(true, nil)
	store.On("FetchBacklog", mock.Anything, 7, 50).Return([]models.Message{}, nil)

	// A sender can still hold the group's lock when the room empties; a
	// later join must find the same lock, not mint a fresh one.
	before := rooms.orderLock(7)

	_, err := rooms.Join(context.Background(), cl, 7, 50)
	require.NoError(t, err)
	rooms.LeaveAll(cl)
	require.Zero(t, rooms.RoomCount())

	require.Same(t, before, rooms.orderLock(7))
}

func TestLeaveRemovesEmptyRoom(t *testing.T) {
	membership := new(mocks.MembershipServiceMock)
	store := new(mocks.MessageRepositoryMock)
	rooms := newTestRoomManager(membership, store)
	cl := NewClient(nil, 1)

	membership.On("GroupExists", mock.Anything, 7).Return(true, nil).Once()
	membership.On("IsMember", mock.Anything, 7, 1).Return(true, nil).Once()
	store.On("FetchBacklog", mock.Anything, 7, 50).Return([]models.Message{}, nil).Once()

	_, err := rooms.Join(context.Background(), cl, 7, 50)
	require.NoError(t, err)
	require.Equal(t, 1, rooms.RoomCount())

	rooms.Leave(cl, 7)
	require.Zero(t, rooms.RoomCount())

	_, joined := cl.JoinedGroup()
	require.False(t, joined)

	// Leaving again is a no-op.
	rooms.Leave(cl, 7)
	require.Zero(t, rooms.RoomCount())
}

func TestLeaveAllClearsEveryMembership(t *testing.T) {
	membership := new(mocks.MembershipServiceMock)
	store := new(mocks.MessageRepositoryMock)
	rooms := newTestRoomManager(membership, store)

	membership.On("GroupExists", mock.Anything, mock.Anything).Return(true, nil)
	membership.On("IsMember", mock.Anything, mock.Anything, mock.Anything).Return(true, nil)
	store.On("FetchBacklog", mock.Anything, mock.Anything, mock.Anything).Return([]models.Message{}, nil)

	stays := NewClient(nil, 1)
	goes := NewClient(nil, 2)

	_, err := rooms.Join(context.Background(), stays, 7, 50)
	require.NoError(t, err)
	_, err = rooms.Join(context.Background(), goes, 7, 50)
	require.NoError(t, err)

	rooms.LeaveAll(goes)
	require.False(t, rooms.InRoom(goes, 7))
	require.True(t, rooms.InRoom(stays, 7))
	require.Equal(t, 1, rooms.RoomCount())
}
