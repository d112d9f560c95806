// Package models defines the wire-level types shared by the ingest,
// engine and report layers.
package models

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Kind identifies the type of an input transaction record
type Kind string

const (
	KindDeposit    Kind = "deposit"
	KindWithdrawal Kind = "withdrawal"
	KindDispute    Kind = "dispute"
	KindResolve    Kind = "resolve"
	KindChargeback Kind = "chargeback"
)

// ParseKind normalizes a raw record type; matching is case-insensitive
// and tolerates surrounding whitespace
func ParseKind(s string) (Kind, bool) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindDeposit, KindWithdrawal, KindDispute, KindResolve, KindChargeback:
		return k, true
	default:
		return "", false
	}
}

// Funding reports whether the kind moves new money into or out of an
// account, as opposed to referencing a prior transaction
func (k Kind) Funding() bool {
	return k == KindDeposit || k == KindWithdrawal
}

// Record represents one parsed input line. Amount is present only on
// deposits and withdrawals; reference kinds carry none.
type Record struct {
	Kind   Kind             `json:"type" validate:"required,oneof=deposit withdrawal dispute resolve chargeback"`
	Client uint16           `json:"client"`
	Tx     uint32           `json:"tx"`
	Amount *decimal.Decimal `json:"amount,omitempty"`
}

// Statement represents one row of the final report
type Statement struct {
	Client    uint16          `json:"client"`
	Available decimal.Decimal `json:"available"`
	Held      decimal.Decimal `json:"held"`
	Total     decimal.Decimal `json:"total"`
	Locked    bool            `json:"locked"`
}
