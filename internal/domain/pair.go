// Package domain defines core data structures shared across the relay.
package domain

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Pair cryptocurrency trading pair.
type Pair struct {
	// From base currency symbol.
	From string `json:"from" yaml:"from"`
	// To quote currency symbol.
	To string `json:"to" yaml:"to"`
}

// ParsePair builds a Pair from "SOL/USDT" or "SOL_USDT" notation.
func ParsePair(s string) (Pair, error) {
	sep := "/"
	if !strings.Contains(s, sep) {
		sep = "_"
	}

	parts := strings.Split(strings.TrimSpace(s), sep)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Pair{}, errors.Errorf("invalid pair %q, expected BASE/QUOTE", s)
	}

	return Pair{From: strings.ToUpper(parts[0]), To: strings.ToUpper(parts[1])}, nil
}

// String returns the string representation.
func (p *Pair) String() string {
	return fmt.Sprintf("%s_%s", p.From, p.To)
}

// Symbol returns the concatenated symbol representation.
func (p *Pair) Symbol() string {
	return fmt.Sprintf("%s%s", p.From, p.To)
}

// Display returns the human-readable representation.
func (p *Pair) Display() string {
	return fmt.Sprintf("%s/%s", p.From, p.To)
}
