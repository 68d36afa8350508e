package domain

import (
	"fmt"
	"strconv"
)

// Amount is a quantity of value in the smallest indivisible currency unit.
// All arithmetic in the core is integer arithmetic; conversion to a
// human-readable denomination belongs to presentation layers.
type Amount int64

// ParseAmount parses a base-10 integer amount string.
func ParseAmount(s string) (Amount, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("domain: parse amount %q: %w", s, ErrInvalidAmount)
	}
	return Amount(n), nil
}

// String returns the amount as a base-10 integer string.
func (a Amount) String() string {
	return strconv.FormatInt(int64(a), 10)
}
