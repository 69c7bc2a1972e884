package utils

import (
	"math"
	"time"
)

// FeeCalculationResult contains the calculated parking fee and breakdown
type FeeCalculationResult struct {
	DurationMinutes int          `json:"durationMinutes"`
	RatePerMinute   float64      `json:"ratePerMinute"`
	TotalFee        float64      `json:"totalFee"`
	Breakdown       FeeBreakdown `json:"breakdown"`
}

// FeeBreakdown provides detailed fee breakdown
type FeeBreakdown struct {
	ElapsedSeconds  float64 `json:"elapsedSeconds"`
	BillableMinutes int     `json:"billableMinutes"`
	Total           float64 `json:"total"`
}

const (
	// DefaultRatePerMinute is one currency unit per started minute
	DefaultRatePerMinute = 1.0
	// MinimumBillableMinutes applies to zero and sub-minute sessions
	MinimumBillableMinutes = 1
)

// BillableMinutes rounds the elapsed time up to whole minutes.
func BillableMinutes(entry, exit time.Time) int {
	elapsed := exit.Sub(entry)
	minutes := int(math.Ceil(elapsed.Minutes()))
	if minutes < MinimumBillableMinutes {
		minutes = MinimumBillableMinutes
	}
	return minutes
}

// CalculateParkingFee calculates the fee for a session from entry to exit
func CalculateParkingFee(entry, exit time.Time, ratePerMinute float64) FeeCalculationResult {
	if ratePerMinute <= 0 {
		ratePerMinute = DefaultRatePerMinute
	}
	minutes := BillableMinutes(entry, exit)

	// Round to 2 decimal places
	total := math.Round(float64(minutes)*ratePerMinute*100) / 100

	return FeeCalculationResult{
		DurationMinutes: minutes,
		RatePerMinute:   ratePerMinute,
		TotalFee:        total,
		Breakdown: FeeBreakdown{
			ElapsedSeconds:  math.Round(exit.Sub(entry).Seconds()*100) / 100,
			BillableMinutes: minutes,
			Total:           total,
		},
	}
}
