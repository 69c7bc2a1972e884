package services

import (
	"context"
	"testing"
	"time"

	"firebase.google.com/go/v4/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chachabrian/parkit-backend/internal/parking"
)

type stubSender struct {
	sent       []*messaging.Message
	subscribed []string
}

func (s *stubSender) Send(_ context.Context, m *messaging.Message) (string, error) {
	s.sent = append(s.sent, m)
	return "projects/parkit/messages/1", nil
}

func (s *stubSender) SubscribeToTopic(_ context.Context, tokens []string, topic string) (*messaging.TopicManagementResponse, error) {
	s.subscribed = append(s.subscribed, tokens...)
	return &messaging.TopicManagementResponse{SuccessCount: len(tokens)}, nil
}

func (s *stubSender) UnsubscribeFromTopic(_ context.Context, tokens []string, topic string) (*messaging.TopicManagementResponse, error) {
	return &messaging.TopicManagementResponse{SuccessCount: len(tokens)}, nil
}

type tokenMap map[string]string

func (m tokenMap) FCMToken(_ context.Context, userID string) (string, error) {
	return m[userID], nil
}

func TestNotifierSendsToBookingOwner(t *testing.T) {
	sender := &stubSender{}
	n := NewNotifier(sender, tokenMap{"u1": "device-1"})
	amount := 10.0
	b := parking.Booking{ID: "b1", UserID: "u1", SlotID: 3, VehicleNumber: "ABC-1", AmountDue: &amount}

	require.NoError(t, n.Publish(context.Background(), parking.Event{
		Type: parking.EventBookingCompleted, UserID: "u1", Booking: &b,
	}))
	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	assert.Equal(t, "device-1", msg.Token)
	assert.Equal(t, "Parking Session Ended", msg.Notification.Title)
	assert.Equal(t, "booking_completed", msg.Data["type"])
	assert.Equal(t, "10", msg.Data["amountDue"])
	assert.Equal(t, "parkit_default", msg.Android.Notification.ChannelID)
}

func TestNotifierSkipsUsersWithoutToken(t *testing.T) {
	sender := &stubSender{}
	n := NewNotifier(sender, tokenMap{})
	b := parking.Booking{ID: "b1", UserID: "u2"}

	require.NoError(t, n.Publish(context.Background(), parking.Event{
		Type: parking.EventBookingCreated, UserID: "u2", Booking: &b,
	}))
	assert.Empty(t, sender.sent)
}

func TestNotifierAnnouncesFreedSlot(t *testing.T) {
	sender := &stubSender{}
	n := NewNotifier(sender, tokenMap{})
	ctx := context.Background()

	full := parking.NewStatusRecord(1, time.Now())
	full.Slots[0].Sensed = true
	full.Slots[0].Occupied = true
	full.AvailableCount = 0
	free := parking.NewStatusRecord(1, time.Now())

	require.NoError(t, n.Publish(ctx, parking.Event{Type: parking.EventStatusChanged, Status: &free}))
	assert.Empty(t, sender.sent, "first snapshot only primes the notifier")

	require.NoError(t, n.Publish(ctx, parking.Event{Type: parking.EventStatusChanged, Status: &full}))
	require.NoError(t, n.Publish(ctx, parking.Event{Type: parking.EventStatusChanged, Status: &free}))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, AvailabilityTopic, sender.sent[0].Topic)

	require.NoError(t, n.SubscribeToAvailability(ctx, "device-9"))
	assert.Equal(t, []string{"device-9"}, sender.subscribed)
}
