package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candidate scored trade idea delivered by an upstream analysis pipeline.
type Candidate struct {
	Pair Pair `json:"pair"`
	Side Side `json:"side"`
	// Score normalized confidence in [0,1].
	Score float64 `json:"score"`
	// Confluence number of independent factors agreeing with the direction.
	Confluence int `json:"confluence"`
	// Entry reference price the score was computed against.
	Entry decimal.Decimal `json:"entry"`
	// Stop suggested protective stop price.
	Stop decimal.Decimal `json:"stop"`
	// Target suggested take-profit price.
	Target decimal.Decimal `json:"target"`
	// GeneratedAt when the upstream pipeline produced the candidate.
	GeneratedAt time.Time `json:"generated_at"`
}

// QualifiedSignal candidate that passed every qualification gate.
type QualifiedSignal struct {
	Candidate
	// GroupSize number of candidates that competed for the symbol.
	GroupSize int `json:"group_size"`
	// Note selection provenance for logs and alerts.
	Note string `json:"note"`
}

// RejectReason taxonomy of qualification rejections.
type RejectReason string

const (
	// RejectLowScore score below the execution minimum.
	RejectLowScore RejectReason = "LOW_SCORE"
	// RejectInsufficientConfluence too few agreeing factors.
	RejectInsufficientConfluence RejectReason = "INSUFFICIENT_CONFLUENCE"
	// RejectDuplicatePosition the symbol already has an open position.
	RejectDuplicatePosition RejectReason = "DUPLICATE_POSITION"
)

// String returns the string representation.
func (r RejectReason) String() string {
	return string(r)
}

// Rejection records why a symbol's best candidate was not qualified.
type Rejection struct {
	Pair       Pair         `json:"pair"`
	Side       Side         `json:"side"`
	Reason     RejectReason `json:"reason"`
	Score      float64      `json:"score"`
	Confluence int          `json:"confluence"`
}
