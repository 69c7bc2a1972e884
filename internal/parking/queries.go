package parking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/chachabrian/parkit-backend/internal/docstore"
	"github.com/chachabrian/parkit-backend/pkg/utils"
)

// Estimate is the running cost of a booking at a given instant.
type Estimate struct {
	DurationMinutes int       `json:"durationMinutes"`
	Amount          float64   `json:"amount"`
	RatePerMinute   float64   `json:"ratePerMinute"`
	AsOf            time.Time `json:"asOf"`
	Final           bool      `json:"final"`
}

// Estimate recomputes duration and cost of b at now. Completed bookings
// report their billed values.
func (s *Service) Estimate(b Booking, now time.Time) Estimate {
	if !b.Active() && b.DurationMinutes != nil && b.AmountDue != nil {
		asOf := now
		if b.ExitTime != nil {
			asOf = *b.ExitTime
		}
		return Estimate{
			DurationMinutes: *b.DurationMinutes,
			Amount:          *b.AmountDue,
			RatePerMinute:   s.rate,
			AsOf:            asOf,
			Final:           true,
		}
	}
	fee := utils.CalculateParkingFee(b.EntryTime, now, s.rate)
	return Estimate{
		DurationMinutes: fee.DurationMinutes,
		Amount:          fee.TotalFee,
		RatePerMinute:   fee.RatePerMinute,
		AsOf:            now,
	}
}

// EstimateNow is Estimate at the service clock.
func (s *Service) EstimateNow(b Booking) Estimate {
	return s.Estimate(b, s.now())
}

// Status reads the shared status record.
func (s *Service) Status(ctx context.Context) (StatusRecord, error) {
	ctx, cancel := s.context(ctx)
	defer cancel()

	doc, err := s.store.Get(ctx, StatusCollection, StatusDocument)
	if err != nil {
		return StatusRecord{}, storeError("read status", err, ErrStatusRecordMissing)
	}
	rec, err := decodeStatus(doc.Fields)
	if err != nil {
		return StatusRecord{}, fmt.Errorf("decode status: %w", err)
	}
	return rec, nil
}

// EnsureStatus creates a status record with slotCount free slots when none
// exists. The existing record is returned untouched otherwise.
func (s *Service) EnsureStatus(ctx context.Context, slotCount int) (StatusRecord, bool, error) {
	rec, err := s.Status(ctx)
	if err == nil {
		return rec, false, nil
	}
	if !errors.Is(err, ErrStatusRecordMissing) {
		return StatusRecord{}, false, err
	}
	if slotCount < 1 {
		return StatusRecord{}, false, ErrInvalidSlot
	}

	ctx, cancel := s.context(ctx)
	defer cancel()
	rec = NewStatusRecord(slotCount, s.now())
	if err := s.store.Set(ctx, StatusCollection, StatusDocument, encodeStatus(rec)); err != nil {
		return StatusRecord{}, false, transport("create status", err)
	}
	return rec, true, nil
}

// ApplyOccupancy records the physical occupancy reported by the sensors.
// sensed[i] belongs to slot i+1. Booking claims are kept, so a slot stays
// occupied while reserved even if no car is detected.
func (s *Service) ApplyOccupancy(ctx context.Context, sensed []bool, description string) (StatusRecord, error) {
	if len(sensed) == 0 {
		return StatusRecord{}, ErrInvalidSlot
	}
	ctx, cancel := s.context(ctx)
	defer cancel()

	now := s.now()
	apply := func(rec *StatusRecord) {
		for i, v := range sensed {
			if slot, ok := rec.Slot(i + 1); ok {
				slot.Sensed = v
				continue
			}
			rec.Slots = append(rec.Slots, Slot{ID: i + 1, Sensed: v})
		}
		sort.Slice(rec.Slots, func(i, j int) bool { return rec.Slots[i].ID < rec.Slots[j].ID })
		rec.recount()
		rec.LastChangeDescription = description
		rec.UpdatedAt = now
	}

	var status StatusRecord
	err := s.store.Update(ctx, StatusCollection, StatusDocument, func(doc docstore.Document) (docstore.Fields, error) {
		rec, err := decodeStatus(doc.Fields)
		if err != nil {
			return nil, err
		}
		apply(&rec)
		status = rec
		return encodeStatus(rec), nil
	})
	if errors.Is(err, docstore.ErrNotFound) {
		status = NewStatusRecord(len(sensed), now)
		apply(&status)
		err = s.store.Set(ctx, StatusCollection, StatusDocument, encodeStatus(status))
	}
	if err != nil {
		return StatusRecord{}, storeError("apply occupancy", err, ErrStatusRecordMissing)
	}

	s.emit(ctx, Event{Type: EventStatusChanged, Status: &status})
	return status, nil
}

// Booking loads one booking.
func (s *Service) Booking(ctx context.Context, bookingID string) (Booking, error) {
	if bookingID == "" {
		return Booking{}, ErrBookingNotFound
	}
	ctx, cancel := s.context(ctx)
	defer cancel()

	doc, err := s.store.Get(ctx, BookingsCollection, bookingID)
	if err != nil {
		return Booking{}, storeError("read booking", err, ErrBookingNotFound)
	}
	return decodeBooking(doc), nil
}

// ActiveBooking returns the user's running session, or nil when there is
// none.
func (s *Service) ActiveBooking(ctx context.Context, userID string) (*Booking, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	ctx, cancel := s.context(ctx)
	defer cancel()

	docs, err := s.store.Query(ctx, BookingsCollection,
		docstore.Where("userId", userID),
		docstore.Where("status", string(BookingStatusActive)))
	if err != nil {
		return nil, transport("query active booking", err)
	}
	if len(docs) == 0 {
		return nil, nil
	}
	bookings := make([]Booking, len(docs))
	for i, doc := range docs {
		bookings[i] = decodeBooking(doc)
	}
	sortByEntryDesc(bookings)
	return &bookings[0], nil
}

// History lists the user's finished bookings, newest first.
func (s *Service) History(ctx context.Context, userID string) ([]Booking, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	ctx, cancel := s.context(ctx)
	defer cancel()

	docs, err := s.store.Query(ctx, BookingsCollection, docstore.Where("userId", userID))
	if err != nil {
		return nil, transport("query bookings", err)
	}
	bookings := make([]Booking, 0, len(docs))
	for _, doc := range docs {
		b := decodeBooking(doc)
		if b.Active() {
			continue
		}
		bookings = append(bookings, b)
	}
	sortByEntryDesc(bookings)
	return bookings, nil
}

// Payments lists the payments recorded against a booking, oldest first.
func (s *Service) Payments(ctx context.Context, bookingID string) ([]Payment, error) {
	ctx, cancel := s.context(ctx)
	defer cancel()

	docs, err := s.store.Query(ctx, PaymentsCollection, docstore.Where("bookingId", bookingID))
	if err != nil {
		return nil, transport("query payments", err)
	}
	payments := make([]Payment, len(docs))
	for i, doc := range docs {
		payments[i] = decodePayment(doc)
	}
	sort.SliceStable(payments, func(i, j int) bool {
		return payments[i].Timestamp.Before(payments[j].Timestamp)
	})
	return payments, nil
}

// Describe renders the change between two slot vectors the way the sensor
// log does, e.g. "Slot 2: Empty → Fill, Slot 4: Fill → Empty".
func Describe(prev, curr []bool) string {
	var changes []string
	for i := range curr {
		if i < len(prev) && prev[i] == curr[i] {
			continue
		}
		before := legacyEmpty
		if i < len(prev) && prev[i] {
			before = legacyFill
		}
		after := legacyEmpty
		if curr[i] {
			after = legacyFill
		}
		changes = append(changes, fmt.Sprintf("Slot %d: %s → %s", i+1, before, after))
	}
	return strings.Join(changes, ", ")
}
