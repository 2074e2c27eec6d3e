package domain

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// Side direction of a trade entry.
type Side int

const (
	// SideLong buy to open.
	SideLong Side = iota
	// SideShort sell to open.
	SideShort
)

// side string constants to avoid magic strings
const (
	sideStringLong  = "LONG"
	sideStringShort = "SHORT"
)

// ParseSide converts wire notation into a Side.
func ParseSide(s string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case sideStringLong, "BUY":
		return SideLong, nil
	case sideStringShort, "SELL":
		return SideShort, nil
	}
	return SideLong, errors.Errorf("unknown side %q", s)
}

// String returns the string representation of the side.
func (s Side) String() string {
	if s == SideShort {
		return sideStringShort
	}
	return sideStringLong
}

// Opposite returns the direction that closes a position opened with s.
func (s Side) Opposite() Side {
	if s == SideLong {
		return SideShort
	}
	return SideLong
}

// MarshalJSON encodes the side as its wire string.
func (s Side) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes the wire string form.
func (s *Side) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	parsed, err := ParseSide(raw)
	if err != nil {
		return err
	}
	*s = parsed

	return nil
}
