package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chachabrian/parkit-backend/internal/middleware"
	"github.com/chachabrian/parkit-backend/internal/parking"
)

// bookingView is a booking plus the running estimate while it is active
type bookingView struct {
	parking.Booking
	Estimate *parking.Estimate `json:"estimate,omitempty"`
}

func viewOf(svc *parking.Service, b parking.Booking) bookingView {
	v := bookingView{Booking: b}
	if b.Active() {
		est := svc.EstimateNow(b)
		v.Estimate = &est
	}
	return v
}

func userID(c *gin.Context) string {
	if id := middleware.CurrentIdentity(c); id != nil {
		return id.UserID
	}
	return ""
}

// ownedBooking loads the booking in the :id param and checks that it
// belongs to the caller. It writes the response and returns false otherwise.
func ownedBooking(c *gin.Context, svc *parking.Service) (parking.Booking, bool) {
	booking, err := svc.Booking(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return parking.Booking{}, false
	}
	if booking.UserID != userID(c) {
		respondMessage(c, http.StatusForbidden, "You can only access your own bookings")
		return parking.Booking{}, false
	}
	return booking, true
}

// CreateBooking reserves a slot for the caller
func CreateBooking(svc *parking.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			SlotID        int    `json:"slotId" binding:"required,min=1"`
			VehicleNumber string `json:"vehicleNumber" binding:"required,vehicle"`
		}

		if err := c.ShouldBindJSON(&input); err != nil {
			respondMessage(c, http.StatusBadRequest, err.Error())
			return
		}

		booking, err := svc.Reserve(c.Request.Context(), userID(c), input.SlotID, input.VehicleNumber)
		if err != nil {
			respondError(c, err)
			return
		}

		respondOK(c, http.StatusCreated, viewOf(svc, booking))
	}
}

// GetUserBookings returns the caller's finished bookings, newest first
func GetUserBookings(svc *parking.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		bookings, err := svc.History(c.Request.Context(), userID(c))
		if err != nil {
			respondError(c, err)
			return
		}
		if bookings == nil {
			bookings = []parking.Booking{}
		}
		respondOK(c, http.StatusOK, bookings)
	}
}

// GetActiveBooking returns the caller's active booking with a live estimate,
// or null data when there is none
func GetActiveBooking(svc *parking.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		booking, err := svc.ActiveBooking(c.Request.Context(), userID(c))
		if err != nil {
			respondError(c, err)
			return
		}
		if booking == nil {
			respondOK(c, http.StatusOK, nil)
			return
		}
		respondOK(c, http.StatusOK, viewOf(svc, *booking))
	}
}

func GetBooking(svc *parking.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		booking, ok := ownedBooking(c, svc)
		if !ok {
			return
		}
		respondOK(c, http.StatusOK, viewOf(svc, booking))
	}
}

// ExitBooking ends the caller's parking session and frees the slot
func ExitBooking(svc *parking.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		booking, ok := ownedBooking(c, svc)
		if !ok {
			return
		}

		// The session ends even if the client disconnects mid-request
		completed, err := svc.Exit(context.WithoutCancel(c.Request.Context()), booking.ID)
		if err != nil {
			respondError(c, err)
			return
		}

		respondOK(c, http.StatusOK, completed)
	}
}
