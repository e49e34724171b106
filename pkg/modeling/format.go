package modeling

import (
	"fmt"
	"math"

	"github.com/finsightai/finsight/pkg/model"
)

// OutOfRangeMarker replaces any calculator output whose magnitude signals a
// broken calculation rather than a real dollar figure.
const OutOfRangeMarker = "Calculation error - value out of range"

// Guard bounds a numeric result: absurd magnitudes become the marker, and
// billion/million-scale values auto-format for display.
func Guard(v float64) any {
	switch {
	case math.IsNaN(v) || math.IsInf(v, 0):
		return OutOfRangeMarker
	case math.Abs(v) > 1e15:
		return OutOfRangeMarker
	case math.Abs(v) > 1e9:
		return fmt.Sprintf("$%.1fB", v/1e9)
	case math.Abs(v) > 1e6:
		return fmt.Sprintf("$%.1fM", v/1e6)
	default:
		return v
	}
}

// GuardComputation applies the overflow guard to a computation's numeric
// result in place and returns whether it fired.
func GuardComputation(c *model.Computation) bool {
	if f, ok := c.Result.(float64); ok {
		guarded := Guard(f)
		c.Result = guarded
		_, replaced := guarded.(string)
		return replaced
	}
	return false
}

// FormatCurrency renders a dollar amount with thousands separators and two
// decimals; negatives carry a leading minus before the symbol.
func FormatCurrency(amount float64) string {
	neg := amount < 0
	if neg {
		amount = -amount
	}
	s := fmt.Sprintf("%.2f", amount)

	// Insert thousands separators into the integer part
	intPart := s[:len(s)-3]
	frac := s[len(s)-3:]
	var grouped []byte
	for i, digit := range []byte(intPart) {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			grouped = append(grouped, ',')
		}
		grouped = append(grouped, digit)
	}

	if neg {
		return "-$" + string(grouped) + frac
	}
	return "$" + string(grouped) + frac
}

// FormatPercent renders a fraction-of-one-hundred value with one decimal.
func FormatPercent(v float64) string {
	return fmt.Sprintf("%.1f%%", v)
}
