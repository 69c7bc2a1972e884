// Package parking holds the booking and billing core: slot reservation,
// session exit, payment recording and the shared status record.
package parking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chachabrian/parkit-backend/internal/docstore"
	"github.com/chachabrian/parkit-backend/pkg/utils"
)

// errUnchanged aborts a status update that has nothing to write.
var errUnchanged = errors.New("status unchanged")

type Service struct {
	store     docstore.Store
	rate      float64
	timeout   time.Duration
	now       func() time.Time
	publisher Publisher
}

type Option func(*Service)

// WithUnitRate sets the price of one billable minute.
func WithUnitRate(rate float64) Option {
	return func(s *Service) {
		if rate > 0 {
			s.rate = rate
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithPublisher registers the subscriber notified after each operation.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithTimeout bounds every store round trip made by one operation.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

func NewService(store docstore.Store, opts ...Option) *Service {
	s := &Service{
		store: store,
		rate:  utils.DefaultRatePerMinute,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UnitRate returns the configured price per minute.
func (s *Service) UnitRate() float64 {
	return s.rate
}

func (s *Service) context(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Service) emit(ctx context.Context, event Event) {
	if s.publisher == nil {
		return
	}
	event.At = s.now()
	if err := s.publisher.Publish(context.WithoutCancel(ctx), event); err != nil {
		log.Printf("[parking] publish %s: %v", event.Type, err)
	}
}

// storeError maps adapter errors to the core's error kinds. Errors returned
// from inside an update function are passed through unchanged.
func storeError(op string, err error, notFound error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, docstore.ErrNotFound):
		return notFound
	case isCoreError(err):
		return err
	default:
		return transport(op, err)
	}
}

func isCoreError(err error) bool {
	for _, target := range []error{
		ErrSlotUnavailable, ErrBookingNotFound, ErrStatusRecordMissing, ErrTransportFailure,
		ErrUnauthenticated, ErrInvalidSlot, ErrInvalidVehicle, ErrActiveBookingExists,
		ErrBookingNotActive, ErrBookingNotCompleted, ErrAlreadyPaid, ErrInvalidPaymentMethod,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// staleClaimAfter is how long a claim may exist without a booking document
// before it is treated as left over from a failed reservation. It is never
// shorter than the store timeout, which bounds an in-flight Reserve.
const staleClaimAfter = time.Minute

// Reserve claims slotID for userID and records an active booking.
//
// The availability check and the claim happen in one atomic update of the
// status record; the booking id is written onto the slot so a failed
// booking insert can be rolled back. A conflicting claim whose booking has
// ended, or never got written, is released and the claim retried once.
func (s *Service) Reserve(ctx context.Context, userID string, slotID int, vehicle string) (Booking, error) {
	if userID == "" {
		return Booking{}, ErrUnauthenticated
	}
	vehicle = strings.TrimSpace(vehicle)
	if vehicle == "" {
		return Booking{}, ErrInvalidVehicle
	}
	ctx, cancel := s.context(ctx)
	defer cancel()

	booking := Booking{
		ID:            uuid.NewString(),
		UserID:        userID,
		SlotID:        slotID,
		VehicleNumber: vehicle,
		EntryTime:     s.now(),
		Status:        BookingStatusActive,
		PaymentStatus: PaymentStatusPending,
	}

	status, conflict, err := s.claim(ctx, booking)
	if err != nil && conflict != nil && s.staleClaim(ctx, *conflict) {
		_, relErr := s.release(ctx, conflict.ID, conflict.BookingID, false)
		switch {
		case relErr == nil:
			log.Printf("[parking] released stale claim of booking %s on slot %d", conflict.BookingID, conflict.ID)
		case !errors.Is(relErr, errUnchanged):
			return Booking{}, storeError("release stale claim", relErr, ErrStatusRecordMissing)
		}
		status, _, err = s.claim(ctx, booking)
	}
	if err != nil {
		return Booking{}, storeError("reserve slot", err, ErrStatusRecordMissing)
	}

	if err := s.store.Set(ctx, BookingsCollection, booking.ID, encodeBooking(booking)); err != nil {
		if _, relErr := s.release(context.WithoutCancel(ctx), slotID, booking.ID, false); relErr != nil {
			log.Printf("[parking] release slot %d after failed booking %s: %v", slotID, booking.ID, relErr)
		}
		return Booking{}, transport("create booking", err)
	}

	s.emit(ctx, Event{Type: EventBookingCreated, UserID: booking.UserID, Booking: &booking, Status: &status})
	return booking, nil
}

// claim writes booking onto its slot. When the claim is refused because of
// another booking's claim, that slot is returned with the error.
func (s *Service) claim(ctx context.Context, booking Booking) (StatusRecord, *Slot, error) {
	var (
		status   StatusRecord
		conflict *Slot
	)
	err := s.store.Update(ctx, StatusCollection, StatusDocument, func(doc docstore.Document) (docstore.Fields, error) {
		conflict = nil
		rec, err := decodeStatus(doc.Fields)
		if err != nil {
			return nil, err
		}
		slot, ok := rec.Slot(booking.SlotID)
		if !ok {
			return nil, ErrInvalidSlot
		}
		for _, other := range rec.Slots {
			if other.UserID == booking.UserID {
				held := other
				conflict = &held
				return nil, ErrActiveBookingExists
			}
		}
		if !slot.Free() {
			if slot.BookingID != "" {
				held := *slot
				conflict = &held
			}
			return nil, ErrSlotUnavailable
		}
		now := s.now()
		slot.BookingID = booking.ID
		slot.UserID = booking.UserID
		slot.ClaimedAt = now
		rec.recount()
		rec.LastChangeDescription = fmt.Sprintf("Slot %d: %s → %s", booking.SlotID, legacyEmpty, legacyFill)
		rec.UpdatedAt = now
		status = rec
		return encodeStatus(rec), nil
	})
	return status, conflict, err
}

// staleClaim reports whether a slot claim no longer stands for an active
// booking: the booking has ended, or its document was never written.
func (s *Service) staleClaim(ctx context.Context, slot Slot) bool {
	if slot.BookingID == "" {
		return false
	}
	doc, err := s.store.Get(ctx, BookingsCollection, slot.BookingID)
	switch {
	case err == nil:
		return !decodeBooking(doc).Active()
	case errors.Is(err, docstore.ErrNotFound):
		grace := staleClaimAfter
		if s.timeout > grace {
			grace = s.timeout
		}
		return s.now().Sub(slot.ClaimedAt) > grace
	default:
		log.Printf("[parking] check claim of booking %s: %v", slot.BookingID, err)
		return false
	}
}

// release drops bookingID's claim on slotID. With clearLegacy, a record
// still in the flat layout, where bookings never claimed slots, has the
// slot's sensed flag cleared instead.
func (s *Service) release(ctx context.Context, slotID int, bookingID string, clearLegacy bool) (StatusRecord, error) {
	var status StatusRecord
	err := s.store.Update(ctx, StatusCollection, StatusDocument, func(doc docstore.Document) (docstore.Fields, error) {
		rec, err := decodeStatus(doc.Fields)
		if err != nil {
			return nil, err
		}
		slot, ok := rec.Slot(slotID)
		if !ok {
			return nil, errUnchanged
		}
		switch {
		case slot.BookingID != "" && slot.BookingID == bookingID:
			slot.BookingID = ""
			slot.UserID = ""
			slot.ClaimedAt = time.Time{}
		case clearLegacy && rec.legacy && slot.Sensed:
			slot.Sensed = false
		default:
			return nil, errUnchanged
		}
		rec.recount()
		after := legacyEmpty
		if slot.Occupied {
			after = legacyFill
		}
		rec.LastChangeDescription = fmt.Sprintf("Slot %d: %s → %s", slotID, legacyFill, after)
		rec.UpdatedAt = s.now()
		status = rec
		return encodeStatus(rec), nil
	})
	return status, err
}

// Exit ends an active session, bills it and frees the slot.
//
// If freeing the slot fails the booking stays completed and the error is
// returned; calling Exit again retries the release. Exit on a completed
// booking whose slot is already free fails with ErrBookingNotActive.
func (s *Service) Exit(ctx context.Context, bookingID string) (Booking, error) {
	if bookingID == "" {
		return Booking{}, ErrBookingNotFound
	}
	ctx, cancel := s.context(ctx)
	defer cancel()

	var booking Booking
	err := s.store.Update(ctx, BookingsCollection, bookingID, func(doc docstore.Document) (docstore.Fields, error) {
		b := decodeBooking(doc)
		booking = b
		if !b.Active() {
			return nil, ErrBookingNotActive
		}
		exit := s.now()
		fee := utils.CalculateParkingFee(b.EntryTime, exit, s.rate)
		b.ExitTime = timePtr(exit)
		b.Status = BookingStatusCompleted
		b.DurationMinutes = &fee.DurationMinutes
		b.AmountDue = &fee.TotalFee
		b.PaymentStatus = PaymentStatusPending
		booking = b
		return docstore.Fields{
			"exitTime":        exit,
			"status":          string(b.Status),
			"durationMinutes": fee.DurationMinutes,
			"amountDue":       fee.TotalFee,
			"paymentStatus":   string(b.PaymentStatus),
		}, nil
	})
	if errors.Is(err, ErrBookingNotActive) {
		return s.retryRelease(ctx, booking)
	}
	if err != nil {
		return Booking{}, storeError("complete booking", err, ErrBookingNotFound)
	}

	event := Event{Type: EventBookingCompleted, UserID: booking.UserID, Booking: &booking}
	status, err := s.release(ctx, booking.SlotID, booking.ID, true)
	switch {
	case err == nil:
		event.Status = &status
	case errors.Is(err, errUnchanged):
	case errors.Is(err, docstore.ErrNotFound):
		log.Printf("[parking] status record missing, slot %d not released for booking %s", booking.SlotID, booking.ID)
	default:
		return Booking{}, storeError("release slot", err, ErrStatusRecordMissing)
	}

	s.emit(ctx, event)
	return booking, nil
}

// retryRelease frees the slot of a completed booking that still holds its
// claim, finishing an Exit whose release failed.
func (s *Service) retryRelease(ctx context.Context, booking Booking) (Booking, error) {
	status, err := s.release(ctx, booking.SlotID, booking.ID, false)
	switch {
	case errors.Is(err, errUnchanged), errors.Is(err, docstore.ErrNotFound):
		return Booking{}, ErrBookingNotActive
	case err != nil:
		return Booking{}, storeError("release slot", err, ErrStatusRecordMissing)
	}
	s.emit(ctx, Event{Type: EventBookingCompleted, UserID: booking.UserID, Booking: &booking, Status: &status})
	return booking, nil
}

// Pay records a payment for a completed booking. The booking is marked paid
// before the payment document is written, so a repeated call fails with
// ErrAlreadyPaid instead of creating a second payment.
func (s *Service) Pay(ctx context.Context, bookingID, method string) (Payment, error) {
	m, err := ParsePaymentMethod(method)
	if err != nil {
		return Payment{}, err
	}
	if bookingID == "" {
		return Payment{}, ErrBookingNotFound
	}
	ctx, cancel := s.context(ctx)
	defer cancel()

	payment := Payment{
		ID:        uuid.NewString(),
		BookingID: bookingID,
		Method:    m,
		Status:    PaymentStatusCompleted,
		Timestamp: s.now(),
	}
	err = s.store.Update(ctx, BookingsCollection, bookingID, func(doc docstore.Document) (docstore.Fields, error) {
		b := decodeBooking(doc)
		if b.Active() {
			return nil, ErrBookingNotCompleted
		}
		if b.PaymentStatus == PaymentStatusCompleted {
			return nil, ErrAlreadyPaid
		}
		payment.UserID = b.UserID
		if b.AmountDue != nil {
			payment.Amount = *b.AmountDue
		}
		return docstore.Fields{
			"paymentStatus": string(PaymentStatusCompleted),
			"paymentId":     payment.ID,
		}, nil
	})
	if err != nil {
		return Payment{}, storeError("claim booking payment", err, ErrBookingNotFound)
	}

	if err := s.store.Set(ctx, PaymentsCollection, payment.ID, encodePayment(payment)); err != nil {
		rollback := docstore.Fields{"paymentStatus": string(PaymentStatusPending), "paymentId": ""}
		if rbErr := s.store.Set(context.WithoutCancel(ctx), BookingsCollection, bookingID, rollback); rbErr != nil {
			log.Printf("[parking] reset payment status of booking %s: %v", bookingID, rbErr)
		}
		return Payment{}, transport("create payment", err)
	}

	s.emit(ctx, Event{Type: EventPaymentCompleted, UserID: payment.UserID, Payment: &payment})
	return payment, nil
}
