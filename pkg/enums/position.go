package enums

import (
	"fmt"
	"strings"
)

// Position is the slot a member occupies under its parent in the binary tree.
// It maps to the member_position enum in Postgres.
type Position string

const (
	PositionLeft  Position = "left"
	PositionRight Position = "right"
)

// positionOrder is the order slots are filled in: left before right.
var positionOrder = []Position{
	PositionLeft,
	PositionRight,
}

// Positions returns the slots in fill order.
func Positions() []Position {
	out := make([]Position, len(positionOrder))
	copy(out, positionOrder)
	return out
}

// String implements fmt.Stringer.
func (p Position) String() string {
	return string(p)
}

// IsValid reports whether the value is a known Position.
func (p Position) IsValid() bool {
	for _, candidate := range positionOrder {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePosition converts raw input into a Position.
func ParsePosition(value string) (Position, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range positionOrder {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid position %q", value)
}
