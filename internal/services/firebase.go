package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"github.com/chachabrian/parkit-backend/internal/parking"
)

// AvailabilityTopic receives a push when a full car park frees up
const AvailabilityTopic = "slot_available"

// InitFirebase initializes the Firebase Admin SDK. It returns nil when
// Firebase is not configured.
func InitFirebase(ctx context.Context, serviceAccountPath, projectID string) (*firebase.App, error) {
	if serviceAccountPath == "" && projectID == "" {
		log.Println("Warning: FIREBASE_SERVICE_ACCOUNT_PATH not set. Firebase features will be disabled.")
		return nil, nil
	}

	var conf *firebase.Config
	if projectID != "" {
		conf = &firebase.Config{ProjectID: projectID}
	}
	var opts []option.ClientOption
	if serviceAccountPath != "" {
		opts = append(opts, option.WithCredentialsFile(serviceAccountPath))
	}

	app, err := firebase.NewApp(ctx, conf, opts...)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %v", err)
	}

	log.Println("Firebase initialized successfully")
	return app, nil
}

// MessageSender is the part of the FCM client used here
type MessageSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
	SubscribeToTopic(ctx context.Context, tokens []string, topic string) (*messaging.TopicManagementResponse, error)
	UnsubscribeFromTopic(ctx context.Context, tokens []string, topic string) (*messaging.TopicManagementResponse, error)
}

// TokenStore resolves the push token of a user
type TokenStore interface {
	FCMToken(ctx context.Context, userID string) (string, error)
}

// NotificationPayload represents the notification data
type NotificationPayload struct {
	Title      string                 `json:"title"`
	Body       string                 `json:"body"`
	Data       map[string]interface{} `json:"data,omitempty"`
	ChannelID  string                 `json:"channelId,omitempty"`  // Android notification channel
	Sound      string                 `json:"sound,omitempty"`      // Custom sound file name
	Priority   string                 `json:"priority,omitempty"`   // high, normal
	BadgeCount *int                   `json:"badgeCount,omitempty"` // iOS badge count
	Tag        string                 `json:"tag,omitempty"`        // Android notification tag
}

// getAndroidConfig returns Android-specific notification configuration
func getAndroidConfig(payload NotificationPayload) *messaging.AndroidConfig {
	channelID := payload.ChannelID
	if channelID == "" {
		channelID = "parkit_default"
	}

	sound := payload.Sound
	if sound == "" {
		sound = "default"
	}

	priority := messaging.PriorityHigh
	if payload.Priority == "normal" {
		priority = messaging.PriorityDefault
	}

	return &messaging.AndroidConfig{
		Priority: "high",
		Notification: &messaging.AndroidNotification{
			Sound:        sound,
			ChannelID:    channelID,
			Priority:     priority,
			DefaultSound: sound == "default",
			Tag:          payload.Tag,
		},
	}
}

// getAPNSConfig returns iOS-specific notification configuration
func getAPNSConfig(payload NotificationPayload) *messaging.APNSConfig {
	sound := payload.Sound
	if sound == "" {
		sound = "default"
	}

	badge := 1
	if payload.BadgeCount != nil {
		badge = *payload.BadgeCount
	}

	return &messaging.APNSConfig{
		Payload: &messaging.APNSPayload{
			Aps: &messaging.Aps{
				Sound:          sound,
				Badge:          &badge,
				MutableContent: true,
			},
		},
	}
}

// dataStrings converts a data map to the string map FCM requires
func dataStrings(data map[string]interface{}) map[string]string {
	out := make(map[string]string, len(data))
	for key, value := range data {
		switch v := value.(type) {
		case string:
			out[key] = v
		case int, int64, float64, bool:
			out[key] = fmt.Sprintf("%v", v)
		default:
			jsonData, err := json.Marshal(v)
			if err != nil {
				log.Printf("Error marshaling data for key %s: %v", key, err)
				continue
			}
			out[key] = string(jsonData)
		}
	}
	return out
}

func buildMessage(payload NotificationPayload) *messaging.Message {
	return &messaging.Message{
		Notification: &messaging.Notification{
			Title: payload.Title,
			Body:  payload.Body,
		},
		Data:    dataStrings(payload.Data),
		Android: getAndroidConfig(payload),
		APNS:    getAPNSConfig(payload),
	}
}

// Notifier pushes booking notifications through FCM
type Notifier struct {
	client MessageSender
	tokens TokenStore

	mu            sync.Mutex
	lastAvailable int
}

func NewNotifier(client MessageSender, tokens TokenStore) *Notifier {
	return &Notifier{client: client, tokens: tokens, lastAvailable: -1}
}

// SendNotificationToToken sends a notification to a specific FCM token
func (n *Notifier) SendNotificationToToken(ctx context.Context, token string, payload NotificationPayload) error {
	message := buildMessage(payload)
	message.Token = token

	response, err := n.client.Send(ctx, message)
	if err != nil {
		return fmt.Errorf("error sending message: %v", err)
	}

	log.Printf("[fcm] sent notification, response: %s", response)
	return nil
}

// SendTopicNotification sends a notification to a topic
func (n *Notifier) SendTopicNotification(ctx context.Context, topic string, payload NotificationPayload) error {
	message := buildMessage(payload)
	message.Topic = topic

	response, err := n.client.Send(ctx, message)
	if err != nil {
		return fmt.Errorf("error sending topic message: %v", err)
	}

	log.Printf("[fcm] sent notification to topic %s, response: %s", topic, response)
	return nil
}

// SubscribeToAvailability subscribes a token to free-slot announcements
func (n *Notifier) SubscribeToAvailability(ctx context.Context, token string) error {
	response, err := n.client.SubscribeToTopic(ctx, []string{token}, AvailabilityTopic)
	if err != nil {
		return fmt.Errorf("error subscribing to topic: %v", err)
	}
	if response.FailureCount > 0 {
		return fmt.Errorf("error subscribing to topic: %d failures", response.FailureCount)
	}
	return nil
}

// UnsubscribeFromAvailability reverses SubscribeToAvailability
func (n *Notifier) UnsubscribeFromAvailability(ctx context.Context, token string) error {
	_, err := n.client.UnsubscribeFromTopic(ctx, []string{token}, AvailabilityTopic)
	if err != nil {
		return fmt.Errorf("error unsubscribing from topic: %v", err)
	}
	return nil
}

// Publish turns core events into push notifications
func (n *Notifier) Publish(ctx context.Context, event parking.Event) error {
	if event.Status != nil {
		if err := n.announceAvailability(ctx, *event.Status); err != nil {
			return err
		}
	}

	payload, ok := bookingPayload(event)
	if !ok || event.UserID == "" {
		return nil
	}
	token, err := n.tokens.FCMToken(ctx, event.UserID)
	if err != nil {
		return fmt.Errorf("lookup fcm token: %w", err)
	}
	if token == "" {
		return nil
	}
	return n.SendNotificationToToken(ctx, token, payload)
}

// announceAvailability notifies the topic when the car park goes from full
// to having a free slot.
func (n *Notifier) announceAvailability(ctx context.Context, rec parking.StatusRecord) error {
	n.mu.Lock()
	wasFull := n.lastAvailable == 0
	n.lastAvailable = rec.AvailableCount
	n.mu.Unlock()

	if !wasFull || rec.AvailableCount == 0 {
		return nil
	}
	return n.SendTopicNotification(ctx, AvailabilityTopic, NotificationPayload{
		Title:    "Parking Available",
		Body:     fmt.Sprintf("%d slot(s) just became free", rec.AvailableCount),
		Priority: "normal",
		Data: map[string]interface{}{
			"type":           "slot_available",
			"availableCount": rec.AvailableCount,
		},
	})
}

func bookingPayload(event parking.Event) (NotificationPayload, bool) {
	switch event.Type {
	case parking.EventBookingCreated:
		b := event.Booking
		return NotificationPayload{
			Title: "Slot Booked",
			Body:  fmt.Sprintf("You've booked slot %d for vehicle %s", b.SlotID, b.VehicleNumber),
			Tag:   "booking_" + b.ID,
			Data: map[string]interface{}{
				"type":      "booking_created",
				"bookingId": b.ID,
				"slotId":    b.SlotID,
			},
		}, true
	case parking.EventBookingCompleted:
		b := event.Booking
		amount := 0.0
		if b.AmountDue != nil {
			amount = *b.AmountDue
		}
		return NotificationPayload{
			Title: "Parking Session Ended",
			Body:  fmt.Sprintf("Your booking has ended. Total amount: $%.2f", amount),
			Tag:   "booking_" + b.ID,
			Data: map[string]interface{}{
				"type":      "booking_completed",
				"bookingId": b.ID,
				"amountDue": amount,
			},
		}, true
	case parking.EventPaymentCompleted:
		p := event.Payment
		return NotificationPayload{
			Title: "Payment Received",
			Body:  fmt.Sprintf("Payment of $%.2f was successful", p.Amount),
			Tag:   "booking_" + p.BookingID,
			Data: map[string]interface{}{
				"type":      "payment_completed",
				"bookingId": p.BookingID,
				"paymentId": p.ID,
			},
		}, true
	}
	return NotificationPayload{}, false
}
