package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chachabrian/parkit-backend/internal/parking"
)

func respondOK(c *gin.Context, code int, data interface{}) {
	c.JSON(code, gin.H{"success": true, "data": data})
}

func respondMessage(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{"success": false, "error": message})
}

// respondError translates core errors into HTTP responses
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)
	code, message := statusFor(err)
	if code >= http.StatusInternalServerError {
		log.Printf("[api] %s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	respondMessage(c, code, message)
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, parking.ErrUnauthenticated):
		return http.StatusUnauthorized, parking.ErrUnauthenticated.Error()
	case errors.Is(err, parking.ErrBookingNotFound):
		return http.StatusNotFound, "Booking not found"
	case errors.Is(err, parking.ErrSlotUnavailable),
		errors.Is(err, parking.ErrActiveBookingExists),
		errors.Is(err, parking.ErrBookingNotActive),
		errors.Is(err, parking.ErrBookingNotCompleted),
		errors.Is(err, parking.ErrAlreadyPaid):
		return http.StatusConflict, capitalize(err.Error())
	case errors.Is(err, parking.ErrInvalidSlot),
		errors.Is(err, parking.ErrInvalidVehicle),
		errors.Is(err, parking.ErrInvalidPaymentMethod):
		return http.StatusBadRequest, capitalize(err.Error())
	case errors.Is(err, parking.ErrStatusRecordMissing):
		return http.StatusServiceUnavailable, "Parking status not found"
	case errors.Is(err, parking.ErrTransportFailure):
		return http.StatusBadGateway, "Parking service is temporarily unavailable"
	}
	return http.StatusInternalServerError, "Internal server error"
}

// errorKind labels an error for the errors_total counter
func errorKind(err error) string {
	switch {
	case errors.Is(err, parking.ErrSlotUnavailable):
		return "slot_unavailable"
	case errors.Is(err, parking.ErrActiveBookingExists):
		return "active_booking_exists"
	case errors.Is(err, parking.ErrBookingNotFound):
		return "booking_not_found"
	case errors.Is(err, parking.ErrBookingNotActive):
		return "booking_not_active"
	case errors.Is(err, parking.ErrBookingNotCompleted):
		return "booking_not_completed"
	case errors.Is(err, parking.ErrAlreadyPaid):
		return "already_paid"
	case errors.Is(err, parking.ErrStatusRecordMissing):
		return "status_missing"
	case errors.Is(err, parking.ErrTransportFailure):
		return "transport"
	case errors.Is(err, parking.ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, parking.ErrInvalidSlot),
		errors.Is(err, parking.ErrInvalidVehicle),
		errors.Is(err, parking.ErrInvalidPaymentMethod):
		return "validation"
	}
	return "internal"
}

func capitalize(s string) string {
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
