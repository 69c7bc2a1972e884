package parking

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/chachabrian/parkit-backend/internal/docstore"
)

// Slot flag values written by the sensor firmware and older web clients.
const (
	legacyEmpty = "Empty"
	legacyFill  = "Fill"
)

func encodeStatus(rec StatusRecord) docstore.Fields {
	slots := make([]interface{}, len(rec.Slots))
	for i, s := range rec.Slots {
		slot := map[string]interface{}{
			"id":        s.ID,
			"occupied":  s.Occupied,
			"sensed":    s.Sensed,
			"bookingId": s.BookingID,
			"userId":    s.UserID,
		}
		if s.BookingID != "" && !s.ClaimedAt.IsZero() {
			slot["claimedAt"] = s.ClaimedAt
		}
		slots[i] = slot
	}
	return docstore.Fields{
		"slots":                 slots,
		"availableCount":        rec.AvailableCount,
		"lastChangeDescription": rec.LastChangeDescription,
		"updatedAt":             rec.UpdatedAt,
	}
}

// decodeStatus reads both the slot list layout and the flat
// slotN_status layout. When both are present the list wins.
func decodeStatus(f docstore.Fields) (StatusRecord, error) {
	if f.Has("slots") {
		return decodeSlotList(f)
	}
	return decodeLegacyStatus(f)
}

func decodeSlotList(f docstore.Fields) (StatusRecord, error) {
	var rec StatusRecord
	for i, raw := range f.Slice("slots") {
		sf, ok := docstore.AsFields(raw)
		if !ok {
			return rec, fmt.Errorf("slot %d: unexpected value %T", i, raw)
		}
		id, ok := sf.Int("id")
		if !ok {
			id = int64(i + 1)
		}
		slot := Slot{
			ID:        int(id),
			BookingID: sf.String("bookingId"),
			UserID:    sf.String("userId"),
		}
		slot.ClaimedAt, _ = sf.Time("claimedAt")
		if sf.Has("sensed") {
			slot.Sensed = sf.Bool("sensed")
		} else {
			slot.Sensed = sf.Bool("occupied") && slot.BookingID == ""
		}
		rec.Slots = append(rec.Slots, slot)
	}
	sort.Slice(rec.Slots, func(i, j int) bool { return rec.Slots[i].ID < rec.Slots[j].ID })
	rec.LastChangeDescription = f.String("lastChangeDescription")
	rec.UpdatedAt, _ = f.Time("updatedAt")
	rec.recount()
	return rec, nil
}

func decodeLegacyStatus(f docstore.Fields) (StatusRecord, error) {
	rec := StatusRecord{legacy: true}
	for key, v := range f {
		if !strings.HasPrefix(key, "slot") || !strings.HasSuffix(key, "_status") {
			continue
		}
		id, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(key, "slot"), "_status"))
		if err != nil || id < 1 {
			continue
		}
		flag, _ := v.(string)
		rec.Slots = append(rec.Slots, Slot{ID: id, Sensed: flag == legacyFill})
	}
	if len(rec.Slots) == 0 {
		return rec, fmt.Errorf("status record has no slots")
	}
	sort.Slice(rec.Slots, func(i, j int) bool { return rec.Slots[i].ID < rec.Slots[j].ID })
	rec.LastChangeDescription = f.String("change_description")
	rec.UpdatedAt, _ = f.Time("timestamp")
	rec.recount()
	return rec, nil
}

func encodeBooking(b Booking) docstore.Fields {
	f := docstore.Fields{
		"userId":        b.UserID,
		"slotId":        b.SlotID,
		"vehicleNumber": b.VehicleNumber,
		"entryTime":     b.EntryTime,
		"status":        string(b.Status),
		"paymentStatus": string(b.PaymentStatus),
	}
	if b.ExitTime != nil {
		f["exitTime"] = *b.ExitTime
	}
	if b.DurationMinutes != nil {
		f["durationMinutes"] = *b.DurationMinutes
	}
	if b.AmountDue != nil {
		f["amountDue"] = *b.AmountDue
	}
	if b.PaymentID != "" {
		f["paymentId"] = b.PaymentID
	}
	return f
}

// decodeBooking also accepts the slotNumber and amount keys used by
// bookings written before the current layout.
func decodeBooking(doc docstore.Document) Booking {
	f := doc.Fields
	b := Booking{
		ID:            doc.ID,
		UserID:        f.String("userId"),
		VehicleNumber: f.String("vehicleNumber"),
		Status:        BookingStatus(f.String("status")),
		PaymentStatus: PaymentStatus(f.String("paymentStatus")),
		PaymentID:     f.String("paymentId"),
	}
	if b.PaymentStatus == "" {
		b.PaymentStatus = PaymentStatusPending
	}
	slot, ok := f.Int("slotId")
	if !ok {
		slot, _ = f.Int("slotNumber")
	}
	b.SlotID = int(slot)
	b.EntryTime, _ = f.Time("entryTime")
	if t, ok := f.Time("exitTime"); ok {
		b.ExitTime = &t
	}
	if d, ok := f.Int("durationMinutes"); ok {
		n := int(d)
		b.DurationMinutes = &n
	}
	amount, ok := f.Float("amountDue")
	if !ok {
		amount, ok = f.Float("amount")
	}
	if ok {
		b.AmountDue = &amount
	}
	return b
}

func encodePayment(p Payment) docstore.Fields {
	return docstore.Fields{
		"bookingId": p.BookingID,
		"userId":    p.UserID,
		"amount":    p.Amount,
		"method":    string(p.Method),
		"status":    string(p.Status),
		"timestamp": p.Timestamp,
	}
}

func decodePayment(doc docstore.Document) Payment {
	f := doc.Fields
	p := Payment{
		ID:        doc.ID,
		BookingID: f.String("bookingId"),
		UserID:    f.String("userId"),
		Status:    PaymentStatus(f.String("status")),
	}
	method := f.String("method")
	if method == "" {
		method = f.String("paymentMethod")
	}
	if m, err := ParsePaymentMethod(method); err == nil {
		p.Method = m
	} else {
		p.Method = PaymentMethod(method)
	}
	p.Amount, _ = f.Float("amount")
	p.Timestamp, _ = f.Time("timestamp")
	return p
}

func sortByEntryDesc(bookings []Booking) {
	sort.SliceStable(bookings, func(i, j int) bool {
		return bookings[i].EntryTime.After(bookings[j].EntryTime)
	})
}

func timePtr(t time.Time) *time.Time { return &t }
