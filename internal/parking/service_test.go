package parking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chachabrian/parkit-backend/internal/docstore"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 4, 7, 8, 30, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	return nil
}

func (r *recorder) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

type fixture struct {
	store  *docstore.Memory
	clock  *fakeClock
	events *recorder
	svc    *Service
}

func newFixture(t *testing.T, slots int) *fixture {
	t.Helper()
	f := &fixture{store: docstore.NewMemory(), clock: newFakeClock(), events: &recorder{}}
	f.svc = NewService(f.store, WithClock(f.clock.Now), WithPublisher(f.events), WithTimeout(time.Second))
	if slots > 0 {
		_, created, err := f.svc.EnsureStatus(context.Background(), slots)
		require.NoError(t, err)
		require.True(t, created)
	}
	return f
}

func (f *fixture) status(t *testing.T) StatusRecord {
	t.Helper()
	rec, err := f.svc.Status(context.Background())
	require.NoError(t, err)
	return rec
}

func TestReserveFreeSlot(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()

	for slot := 1; slot <= 5; slot++ {
		before := f.status(t).AvailableCount
		b, err := f.svc.Reserve(ctx, "user-"+string(rune('a'+slot)), slot, "KDA 123")
		require.NoError(t, err)
		assert.Equal(t, BookingStatusActive, b.Status)
		assert.Equal(t, f.clock.Now(), b.EntryTime)

		after := f.status(t)
		got, ok := after.Slot(slot)
		require.True(t, ok)
		assert.True(t, got.Occupied)
		assert.Equal(t, b.ID, got.BookingID)
		assert.Equal(t, before-1, after.AvailableCount)
	}
}

func TestReserveOccupiedSlotMutatesNothing(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	_, err := f.svc.Reserve(ctx, "u1", 2, "ABC-1")
	require.NoError(t, err)

	before := f.status(t)
	writes := f.store.Writes()

	_, err = f.svc.Reserve(ctx, "u2", 2, "XYZ-9")
	assert.ErrorIs(t, err, ErrSlotUnavailable)
	assert.Equal(t, writes, f.store.Writes())
	assert.Equal(t, before, f.status(t))
}

func TestReserveValidation(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()

	_, err := f.svc.Reserve(ctx, "", 1, "ABC-1")
	assert.ErrorIs(t, err, ErrUnauthenticated)
	_, err = f.svc.Reserve(ctx, "u1", 1, "   ")
	assert.ErrorIs(t, err, ErrInvalidVehicle)
	_, err = f.svc.Reserve(ctx, "u1", 9, "ABC-1")
	assert.ErrorIs(t, err, ErrInvalidSlot)
}

func TestReserveWithoutStatusRecord(t *testing.T) {
	f := newFixture(t, 0)
	_, err := f.svc.Reserve(context.Background(), "u1", 1, "ABC-1")
	assert.ErrorIs(t, err, ErrStatusRecordMissing)
}

func TestOneActiveBookingPerUser(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()

	first, err := f.svc.Reserve(ctx, "u1", 1, "ABC-1")
	require.NoError(t, err)
	_, err = f.svc.Reserve(ctx, "u1", 2, "ABC-1")
	assert.ErrorIs(t, err, ErrActiveBookingExists)

	_, err = f.svc.Exit(ctx, first.ID)
	require.NoError(t, err)
	_, err = f.svc.Reserve(ctx, "u1", 2, "ABC-1")
	assert.NoError(t, err)
}

func TestConcurrentReservationsOfOneSlot(t *testing.T) {
	f := newFixture(t, 4)
	ctx := context.Background()

	const attempts = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.Reserve(ctx, "user-"+string(rune('A'+i)), 3, "CAR")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrSlotUnavailable):
				rejected++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, attempts-1, rejected)
	assert.Equal(t, 3, f.status(t).AvailableCount)
}

func TestReserveReleasesSlotWhenBookingWriteFails(t *testing.T) {
	f := newFixture(t, 2)
	f.store.Fail = func(op, collection string) error {
		if op == "set" && collection == BookingsCollection {
			return errors.New("unavailable")
		}
		return nil
	}

	_, err := f.svc.Reserve(context.Background(), "u1", 1, "ABC-1")
	assert.ErrorIs(t, err, ErrTransportFailure)

	rec := f.status(t)
	slot, _ := rec.Slot(1)
	assert.False(t, slot.Occupied)
	assert.Empty(t, slot.BookingID)
	assert.Equal(t, 2, rec.AvailableCount)
	assert.Empty(t, f.events.types())
}

func failStatusUpdates(f *fixture) {
	f.store.Fail = func(op, collection string) error {
		if op == "update" && collection == StatusCollection {
			return errors.New("deadline exceeded")
		}
		return nil
	}
}

func TestReserveRecoversFromFailedRollback(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	updates := 0
	f.store.Fail = func(op, collection string) error {
		switch {
		case op == "set" && collection == BookingsCollection:
			return errors.New("unavailable")
		case op == "update" && collection == StatusCollection:
			updates++
			if updates > 1 {
				return errors.New("unavailable")
			}
		}
		return nil
	}

	_, err := f.svc.Reserve(ctx, "u1", 1, "ABC-1")
	assert.ErrorIs(t, err, ErrTransportFailure)
	st := f.status(t)
	slot, _ := st.Slot(1)
	require.True(t, slot.Occupied, "rollback failed, claim left behind")
	f.store.Fail = nil

	// A fresh claim may still belong to a reservation in flight
	_, err = f.svc.Reserve(ctx, "u1", 2, "ABC-1")
	assert.ErrorIs(t, err, ErrActiveBookingExists)

	f.clock.Advance(2 * time.Minute)
	b, err := f.svc.Reserve(ctx, "u1", 2, "ABC-1")
	require.NoError(t, err)
	assert.Equal(t, 2, b.SlotID)

	rec := f.status(t)
	slot, _ = rec.Slot(1)
	assert.False(t, slot.Occupied)
	assert.Empty(t, slot.BookingID)
	assert.Equal(t, 1, rec.AvailableCount)

	_, err = f.svc.Reserve(ctx, "u2", 1, "XYZ-9")
	require.NoError(t, err)
	assert.Equal(t, 0, f.status(t).AvailableCount)
}

func TestExitReturnsTransportWhenReleaseFails(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	b, err := f.svc.Reserve(ctx, "u1", 1, "ABC-1")
	require.NoError(t, err)

	failStatusUpdates(f)
	_, err = f.svc.Exit(ctx, b.ID)
	assert.ErrorIs(t, err, ErrTransportFailure)
	f.store.Fail = nil

	stored, err := f.svc.Booking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, BookingStatusCompleted, stored.Status)
	st := f.status(t)
	slot, _ := st.Slot(1)
	assert.Equal(t, b.ID, slot.BookingID)

	// Exit again finishes the release
	done, err := f.svc.Exit(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, BookingStatusCompleted, done.Status)
	assert.Equal(t, *stored.AmountDue, *done.AmountDue)

	rec := f.status(t)
	slot, _ = rec.Slot(1)
	assert.False(t, slot.Occupied)
	assert.Equal(t, 2, rec.AvailableCount)
	assert.Equal(t, []EventType{EventBookingCreated, EventBookingCompleted}, f.events.types())

	_, err = f.svc.Exit(ctx, b.ID)
	assert.ErrorIs(t, err, ErrBookingNotActive)
}

func TestReserveAfterExitWithFailedRelease(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	b, err := f.svc.Reserve(ctx, "u1", 1, "ABC-1")
	require.NoError(t, err)

	failStatusUpdates(f)
	_, err = f.svc.Exit(ctx, b.ID)
	require.ErrorIs(t, err, ErrTransportFailure)
	f.store.Fail = nil

	active, err := f.svc.ActiveBooking(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, active)

	next, err := f.svc.Reserve(ctx, "u1", 2, "ABC-1")
	require.NoError(t, err)
	assert.Equal(t, 2, next.SlotID)

	rec := f.status(t)
	slot, _ := rec.Slot(1)
	assert.False(t, slot.Occupied)
	assert.Empty(t, slot.BookingID)
	assert.Equal(t, 2, rec.AvailableCount)

	// The ended booking's claim on slot 1 no longer blocks other users
	_, err = f.svc.Reserve(ctx, "u2", 1, "XYZ-9")
	require.NoError(t, err)
}

func TestReserveOverEndedBookingClaim(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	b, err := f.svc.Reserve(ctx, "u1", 1, "ABC-1")
	require.NoError(t, err)

	failStatusUpdates(f)
	_, err = f.svc.Exit(ctx, b.ID)
	require.ErrorIs(t, err, ErrTransportFailure)
	f.store.Fail = nil

	got, err := f.svc.Reserve(ctx, "u2", 1, "XYZ-9")
	require.NoError(t, err)
	st := f.status(t)
	slot, _ := st.Slot(1)
	assert.Equal(t, got.ID, slot.BookingID)
	assert.Equal(t, "u2", slot.UserID)
}

func TestExitBillsStartedMinutes(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	b, err := f.svc.Reserve(ctx, "u1", 1, "ABC-1")
	require.NoError(t, err)

	f.clock.Advance(125 * time.Second)
	done, err := f.svc.Exit(ctx, b.ID)
	require.NoError(t, err)

	assert.Equal(t, BookingStatusCompleted, done.Status)
	require.NotNil(t, done.DurationMinutes)
	require.NotNil(t, done.AmountDue)
	assert.Equal(t, 3, *done.DurationMinutes)
	assert.Equal(t, 3.0, *done.AmountDue)
	assert.Equal(t, PaymentStatusPending, done.PaymentStatus)

	stored, err := f.svc.Booking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, *stored.DurationMinutes)
	require.NotNil(t, stored.ExitTime)
	assert.True(t, f.clock.Now().Equal(*stored.ExitTime))
}

func TestExitUsesUnitRate(t *testing.T) {
	f := newFixture(t, 1)
	f.svc = NewService(f.store, WithClock(f.clock.Now), WithUnitRate(2.5))
	ctx := context.Background()
	b, err := f.svc.Reserve(ctx, "u1", 1, "ABC-1")
	require.NoError(t, err)

	f.clock.Advance(4 * time.Minute)
	done, err := f.svc.Exit(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 10.0, *done.AmountDue)
}

func TestExitUnknownBookingWritesNothing(t *testing.T) {
	f := newFixture(t, 2)
	writes := f.store.Writes()

	_, err := f.svc.Exit(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, ErrBookingNotFound)
	assert.Equal(t, writes, f.store.Writes())
}

func TestExitTwice(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	b, err := f.svc.Reserve(ctx, "u1", 1, "ABC-1")
	require.NoError(t, err)
	_, err = f.svc.Exit(ctx, b.ID)
	require.NoError(t, err)

	_, err = f.svc.Exit(ctx, b.ID)
	assert.ErrorIs(t, err, ErrBookingNotActive)
	assert.Equal(t, 2, f.status(t).AvailableCount)
}

func TestExitToleratesMissingStatusRecord(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	entry := f.clock.Now()
	require.NoError(t, f.store.Set(ctx, BookingsCollection, "b1", encodeBooking(Booking{
		UserID: "u1", SlotID: 4, VehicleNumber: "ABC-1", EntryTime: entry,
		Status: BookingStatusActive, PaymentStatus: PaymentStatusPending,
	})))

	f.clock.Advance(90 * time.Second)
	done, err := f.svc.Exit(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, BookingStatusCompleted, done.Status)
	assert.Equal(t, 2, *done.DurationMinutes)

	_, err = f.svc.Status(ctx)
	assert.ErrorIs(t, err, ErrStatusRecordMissing)
}

func seedCompletedBooking(t *testing.T, f *fixture, id string, amount float64) {
	t.Helper()
	exit := f.clock.Now()
	minutes := int(amount)
	require.NoError(t, f.store.Set(context.Background(), BookingsCollection, id, encodeBooking(Booking{
		UserID: "u1", SlotID: 1, VehicleNumber: "ABC-1",
		EntryTime: exit.Add(-time.Duration(minutes) * time.Minute), ExitTime: &exit,
		Status: BookingStatusCompleted, DurationMinutes: &minutes, AmountDue: &amount,
		PaymentStatus: PaymentStatusPending,
	})))
}

func TestPayRecordsOnePayment(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	seedCompletedBooking(t, f, "b42", 42)

	p, err := f.svc.Pay(ctx, "b42", "card")
	require.NoError(t, err)
	assert.Equal(t, 42.0, p.Amount)
	assert.Equal(t, PaymentStatusCompleted, p.Status)
	assert.Equal(t, PaymentMethodCard, p.Method)
	assert.Equal(t, "u1", p.UserID)

	payments, err := f.svc.Payments(ctx, "b42")
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, 42.0, payments[0].Amount)

	b, err := f.svc.Booking(ctx, "b42")
	require.NoError(t, err)
	assert.Equal(t, PaymentStatusCompleted, b.PaymentStatus)
	assert.Equal(t, p.ID, b.PaymentID)
}

func TestPayTwiceIsRejected(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	seedCompletedBooking(t, f, "b1", 12)

	_, err := f.svc.Pay(ctx, "b1", "wallet")
	require.NoError(t, err)
	_, err = f.svc.Pay(ctx, "b1", "wallet")
	assert.ErrorIs(t, err, ErrAlreadyPaid)

	payments, err := f.svc.Payments(ctx, "b1")
	require.NoError(t, err)
	assert.Len(t, payments, 1)
}

func TestPayValidation(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	_, err := f.svc.Pay(ctx, "missing", "cash")
	assert.ErrorIs(t, err, ErrBookingNotFound)

	_, err = f.svc.Pay(ctx, "missing", "bitcoin")
	assert.ErrorIs(t, err, ErrInvalidPaymentMethod)

	b, err := f.svc.Reserve(ctx, "u1", 1, "ABC-1")
	require.NoError(t, err)
	_, err = f.svc.Pay(ctx, b.ID, "cash")
	assert.ErrorIs(t, err, ErrBookingNotCompleted)
}

func TestPayResetsBookingWhenPaymentWriteFails(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	seedCompletedBooking(t, f, "b1", 5)
	f.store.Fail = func(op, collection string) error {
		if collection == PaymentsCollection {
			return errors.New("unavailable")
		}
		return nil
	}

	_, err := f.svc.Pay(ctx, "b1", "card")
	assert.ErrorIs(t, err, ErrTransportFailure)

	f.store.Fail = nil
	b, err := f.svc.Booking(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, PaymentStatusPending, b.PaymentStatus)
	assert.Empty(t, b.PaymentID)

	_, err = f.svc.Pay(ctx, "b1", "card")
	assert.NoError(t, err)
}

func TestReserveExitPayScenario(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()
	start := f.status(t).AvailableCount

	b, err := f.svc.Reserve(ctx, "u1", 3, "ABC-1")
	require.NoError(t, err)
	assert.Equal(t, BookingStatusActive, b.Status)
	assert.Equal(t, f.clock.Now(), b.EntryTime)

	rec := f.status(t)
	slot, _ := rec.Slot(3)
	assert.True(t, slot.Occupied)
	assert.Equal(t, start-1, rec.AvailableCount)

	f.clock.Advance(10 * time.Minute)
	done, err := f.svc.Exit(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, *done.DurationMinutes)
	assert.Equal(t, 10.0, *done.AmountDue)

	rec = f.status(t)
	slot, _ = rec.Slot(3)
	assert.False(t, slot.Occupied)
	assert.Equal(t, start, rec.AvailableCount)

	p, err := f.svc.Pay(ctx, b.ID, "card")
	require.NoError(t, err)
	assert.Equal(t, 10.0, p.Amount)
	assert.Equal(t, PaymentStatusCompleted, p.Status)

	paid, err := f.svc.Booking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, PaymentStatusCompleted, paid.PaymentStatus)

	assert.Equal(t, []EventType{EventBookingCreated, EventBookingCompleted, EventPaymentCompleted}, f.events.types())
}

func TestApplyOccupancyKeepsClaims(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	b, err := f.svc.Reserve(ctx, "u1", 1, "ABC-1")
	require.NoError(t, err)

	rec, err := f.svc.ApplyOccupancy(ctx, []bool{false, true, false}, "Slot 2: Empty → Fill")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.AvailableCount)
	assert.Equal(t, "Slot 2: Empty → Fill", rec.LastChangeDescription)

	slot, _ := rec.Slot(1)
	assert.True(t, slot.Occupied)
	assert.False(t, slot.Sensed)
	assert.Equal(t, b.ID, slot.BookingID)

	_, err = f.svc.Reserve(ctx, "u2", 2, "XYZ")
	assert.ErrorIs(t, err, ErrSlotUnavailable)
}

func TestApplyOccupancyCreatesRecord(t *testing.T) {
	f := newFixture(t, 0)
	rec, err := f.svc.ApplyOccupancy(context.Background(), []bool{true, false, false, true}, "Initial state")
	require.NoError(t, err)
	assert.Len(t, rec.Slots, 4)
	assert.Equal(t, 2, rec.AvailableCount)
	assert.Equal(t, 2, f.status(t).AvailableCount)
}

func TestEnsureStatusKeepsExistingRecord(t *testing.T) {
	f := newFixture(t, 3)
	_, err := f.svc.Reserve(context.Background(), "u1", 1, "ABC-1")
	require.NoError(t, err)

	rec, created, err := f.svc.EnsureStatus(context.Background(), 6)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Len(t, rec.Slots, 3)
	assert.Equal(t, 2, rec.AvailableCount)
}

func TestActiveBookingAndHistory(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()

	none, err := f.svc.ActiveBooking(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, none)

	first, err := f.svc.Reserve(ctx, "u1", 1, "ABC-1")
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	_, err = f.svc.Exit(ctx, first.ID)
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	second, err := f.svc.Reserve(ctx, "u1", 2, "ABC-1")
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	_, err = f.svc.Exit(ctx, second.ID)
	require.NoError(t, err)

	third, err := f.svc.Reserve(ctx, "u1", 3, "ABC-1")
	require.NoError(t, err)

	active, err := f.svc.ActiveBooking(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, third.ID, active.ID)

	history, err := f.svc.History(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, second.ID, history[0].ID)
	assert.Equal(t, first.ID, history[1].ID)
}

func TestEstimate(t *testing.T) {
	f := newFixture(t, 1)
	entry := f.clock.Now()
	b := Booking{EntryTime: entry, Status: BookingStatusActive}

	est := f.svc.Estimate(b, entry.Add(61*time.Second))
	assert.Equal(t, 2, est.DurationMinutes)
	assert.Equal(t, 2.0, est.Amount)
	assert.False(t, est.Final)

	est = f.svc.Estimate(b, entry.Add(5*time.Minute))
	assert.Equal(t, 5, est.DurationMinutes)

	minutes, amount := 7, 7.0
	b.Status = BookingStatusCompleted
	b.DurationMinutes, b.AmountDue = &minutes, &amount
	est = f.svc.Estimate(b, entry.Add(time.Hour))
	assert.True(t, est.Final)
	assert.Equal(t, 7, est.DurationMinutes)
}

func TestStoreFailureIsTransport(t *testing.T) {
	f := newFixture(t, 1)
	cause := errors.New("permission denied")
	f.store.Fail = func(string, string) error { return cause }

	_, err := f.svc.Status(context.Background())
	assert.ErrorIs(t, err, ErrTransportFailure)
	assert.ErrorIs(t, err, cause)
}
