package parking

import "time"

// Collection and document names shared with the web client and the sensor
// logger.
const (
	StatusCollection   = "parking_logs"
	StatusDocument     = "current_status"
	BookingsCollection = "bookings"
	PaymentsCollection = "payments"
)

type BookingStatus string

const (
	BookingStatusActive    BookingStatus = "active"
	BookingStatusCompleted BookingStatus = "completed"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
)

type PaymentMethod string

const (
	PaymentMethodCard   PaymentMethod = "card"
	PaymentMethodWallet PaymentMethod = "wallet"
	PaymentMethodCash   PaymentMethod = "cash"
)

// ParsePaymentMethod accepts the canonical tags and the web client's
// "credit_card".
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch s {
	case "card", "credit_card":
		return PaymentMethodCard, nil
	case "wallet":
		return PaymentMethodWallet, nil
	case "cash":
		return PaymentMethodCash, nil
	}
	return "", ErrInvalidPaymentMethod
}

// Slot is the state of one physical space.
type Slot struct {
	ID        int       `json:"id"`
	Occupied  bool      `json:"occupied"`
	Sensed    bool      `json:"sensed"`
	BookingID string    `json:"bookingId,omitempty"`
	UserID    string    `json:"userId,omitempty"`
	// ClaimedAt is when BookingID was written onto the slot.
	ClaimedAt time.Time `json:"-"`
}

// Free reports whether the slot can be reserved.
func (s Slot) Free() bool {
	return !s.Occupied
}

func (s *Slot) refresh() {
	s.Occupied = s.Sensed || s.BookingID != ""
}

// StatusRecord is the shared occupancy document. Slots are ordered by ID.
type StatusRecord struct {
	Slots                 []Slot    `json:"slots"`
	AvailableCount        int       `json:"availableCount"`
	LastChangeDescription string    `json:"lastChangeDescription"`
	UpdatedAt             time.Time `json:"updatedAt"`

	// legacy is set on records read from the flat slotN_status layout
	legacy bool
}

// Slot returns a pointer to the slot with the given id.
func (r *StatusRecord) Slot(id int) (*Slot, bool) {
	for i := range r.Slots {
		if r.Slots[i].ID == id {
			return &r.Slots[i], true
		}
	}
	return nil, false
}

// recount restores availableCount == number of free slots.
func (r *StatusRecord) recount() {
	free := 0
	for i := range r.Slots {
		r.Slots[i].refresh()
		if r.Slots[i].Free() {
			free++
		}
	}
	r.AvailableCount = free
}

// NewStatusRecord returns a record with n free slots numbered from 1.
func NewStatusRecord(n int, at time.Time) StatusRecord {
	rec := StatusRecord{Slots: make([]Slot, n), UpdatedAt: at, LastChangeDescription: "Initial state"}
	for i := range rec.Slots {
		rec.Slots[i].ID = i + 1
	}
	rec.recount()
	return rec
}

type Booking struct {
	ID              string        `json:"id"`
	UserID          string        `json:"userId"`
	SlotID          int           `json:"slotId"`
	VehicleNumber   string        `json:"vehicleNumber"`
	EntryTime       time.Time     `json:"entryTime"`
	ExitTime        *time.Time    `json:"exitTime,omitempty"`
	Status          BookingStatus `json:"status"`
	DurationMinutes *int          `json:"durationMinutes,omitempty"`
	AmountDue       *float64      `json:"amountDue,omitempty"`
	PaymentStatus   PaymentStatus `json:"paymentStatus"`
	PaymentID       string        `json:"paymentId,omitempty"`
}

// Active reports whether the session is still running.
func (b Booking) Active() bool {
	return b.Status == BookingStatusActive
}

type Payment struct {
	ID        string        `json:"id"`
	BookingID string        `json:"bookingId"`
	UserID    string        `json:"userId"`
	Amount    float64       `json:"amount"`
	Method    PaymentMethod `json:"method"`
	Status    PaymentStatus `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
}
