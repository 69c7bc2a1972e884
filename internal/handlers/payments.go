package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chachabrian/parkit-backend/internal/parking"
)

// ProcessPayment records the payment for a completed booking
func ProcessPayment(svc *parking.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			PaymentMethod string `json:"paymentMethod" binding:"required"`
		}

		if err := c.ShouldBindJSON(&input); err != nil {
			respondMessage(c, http.StatusBadRequest, err.Error())
			return
		}

		booking, ok := ownedBooking(c, svc)
		if !ok {
			return
		}

		payment, err := svc.Pay(c.Request.Context(), booking.ID, input.PaymentMethod)
		if err != nil {
			respondError(c, err)
			return
		}

		respondOK(c, http.StatusCreated, payment)
	}
}

func GetBookingPayments(svc *parking.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		booking, ok := ownedBooking(c, svc)
		if !ok {
			return
		}

		payments, err := svc.Payments(c.Request.Context(), booking.ID)
		if err != nil {
			respondError(c, err)
			return
		}
		if payments == nil {
			payments = []parking.Payment{}
		}
		respondOK(c, http.StatusOK, payments)
	}
}
