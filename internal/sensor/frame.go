package sensor

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	framePrefix = "DATA"
	slotEmpty   = "Empty"
	slotFill    = "Fill"
)

var (
	ErrNotFrame  = errors.New("not a data frame")
	ErrMalformed = errors.New("malformed data frame")
	ErrChecksum  = errors.New("checksum verification failed")
)

// Frame is one reading sent by the controller:
//
//	DATA,<available>,<slot1>,...,<slotN>,<checksum>
type Frame struct {
	Available int
	Slots     []bool
}

// Checksum is the decimal sum of the character codes of s.
func Checksum(s string) int {
	sum := 0
	for _, c := range []byte(s) {
		sum += int(c)
	}
	return sum
}

// ParseFrame decodes a line. slotCount > 0 requires exactly that many slots.
func ParseFrame(line string, slotCount int) (Frame, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, framePrefix+",") {
		return Frame{}, ErrNotFrame
	}

	cut := strings.LastIndex(line, ",")
	payload, sum := line[:cut], line[cut+1:]
	parts := strings.Split(payload, ",")
	// DATA, available, at least one slot
	if len(parts) < 3 {
		return Frame{}, fmt.Errorf("%w: %q", ErrMalformed, line)
	}

	if strconv.Itoa(Checksum(payload)) != strings.TrimSpace(sum) {
		return Frame{}, ErrChecksum
	}

	available, err := strconv.Atoi(parts[1])
	if err != nil {
		return Frame{}, fmt.Errorf("%w: available %q", ErrMalformed, parts[1])
	}

	values := parts[2:]
	if slotCount > 0 && len(values) != slotCount {
		return Frame{}, fmt.Errorf("%w: expected %d slots, got %d", ErrMalformed, slotCount, len(values))
	}

	frame := Frame{Available: available, Slots: make([]bool, len(values))}
	for i, v := range values {
		switch v {
		case slotFill:
			frame.Slots[i] = true
		case slotEmpty:
		default:
			return Frame{}, fmt.Errorf("%w: slot %d value %q", ErrMalformed, i+1, v)
		}
	}
	return frame, nil
}

// Encode renders the frame with its checksum, as the controller sends it.
func (f Frame) Encode() string {
	parts := []string{framePrefix, strconv.Itoa(f.Available)}
	for _, s := range f.Slots {
		parts = append(parts, slotValue(s))
	}
	payload := strings.Join(parts, ",")
	return payload + "," + strconv.Itoa(Checksum(payload))
}

func slotValue(filled bool) string {
	if filled {
		return slotFill
	}
	return slotEmpty
}
