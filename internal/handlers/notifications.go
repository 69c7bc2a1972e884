package handlers

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

// TokenRegistry stores one FCM device token per user
type TokenRegistry interface {
	SetFCMToken(ctx context.Context, userID, token string) error
	FCMToken(ctx context.Context, userID string) (string, error)
	RemoveFCMToken(ctx context.Context, userID string) error
}

// AvailabilitySubscriber manages the "slot available" topic subscription
type AvailabilitySubscriber interface {
	SubscribeToAvailability(ctx context.Context, token string) error
	UnsubscribeFromAvailability(ctx context.Context, token string) error
}

// RegisterFCMToken registers or updates the caller's FCM token
func RegisterFCMToken(tokens TokenRegistry, topics AvailabilitySubscriber) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokens == nil {
			respondMessage(c, http.StatusServiceUnavailable, "Notifications are not configured")
			return
		}

		var input struct {
			FCMToken string `json:"fcmToken" binding:"required"`
		}

		if err := c.ShouldBindJSON(&input); err != nil {
			respondMessage(c, http.StatusBadRequest, err.Error())
			return
		}

		ctx := c.Request.Context()
		if err := tokens.SetFCMToken(ctx, userID(c), input.FCMToken); err != nil {
			log.Printf("[api] failed to store FCM token: %v", err)
			respondMessage(c, http.StatusInternalServerError, "Failed to register FCM token")
			return
		}

		if topics != nil {
			if err := topics.SubscribeToAvailability(ctx, input.FCMToken); err != nil {
				// Log but don't fail
				log.Printf("[api] availability subscription failed: %v", err)
				respondOK(c, http.StatusOK, gin.H{
					"message": "FCM token registered successfully, but availability subscription failed",
				})
				return
			}
		}

		respondOK(c, http.StatusOK, gin.H{"message": "FCM token registered successfully"})
	}
}

// RemoveFCMToken removes the caller's FCM token on logout
func RemoveFCMToken(tokens TokenRegistry, topics AvailabilitySubscriber) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokens == nil {
			respondMessage(c, http.StatusServiceUnavailable, "Notifications are not configured")
			return
		}

		ctx := c.Request.Context()
		token, err := tokens.FCMToken(ctx, userID(c))
		if err != nil {
			log.Printf("[api] failed to read FCM token: %v", err)
		}
		if token != "" && topics != nil {
			if err := topics.UnsubscribeFromAvailability(ctx, token); err != nil {
				log.Printf("[api] availability unsubscribe failed: %v", err)
			}
		}

		if err := tokens.RemoveFCMToken(ctx, userID(c)); err != nil {
			log.Printf("[api] failed to remove FCM token: %v", err)
			respondMessage(c, http.StatusInternalServerError, "Failed to remove FCM token")
			return
		}

		respondOK(c, http.StatusOK, gin.H{"message": "FCM token removed successfully"})
	}
}
