package core

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrEmptyCategory    = errors.New("empty category")
	ErrZeroDate         = errors.New("date cannot be zero")
	ErrConflictingFlags = errors.New("is_deduction and is_fixed cannot both be set")
)

// Transaction is an immutable financial fact. Amount is signed: positive is an
// inflow, negative an outflow, always in the workspace base currency.
//
// Flag rules:
//   - IsDeduction and IsFixed are mutually exclusive (they occupy different
//     stages of the income waterfall).
//   - IsSavings may combine with the others but is typically used alone.
//   - All flags false = flexible income/expense, distinguished by sign.
type Transaction struct {
	ID          uuid.UUID       `json:"id"`
	Date        time.Time       `json:"date"`
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category"`
	Description string          `json:"description,omitempty"`
	IsSavings   bool            `json:"is_savings"`
	IsDeduction bool            `json:"is_deduction"`
	IsFixed     bool            `json:"is_fixed"`
	SourceFile  string          `json:"source_file,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// NewTransaction builds a validated transaction with a fresh id.
// Malformed records are rejected here, before they can reach aggregation.
func NewTransaction(date time.Time, amount decimal.Decimal, category string) (Transaction, error) {
	tx := Transaction{
		ID:        uuid.New(),
		Date:      date,
		Amount:    amount,
		Category:  category,
		CreatedAt: time.Now().UTC(),
	}
	if err := tx.Validate(); err != nil {
		return Transaction{}, err
	}
	return tx, nil
}

func (t Transaction) Validate() error {
	if t.Date.IsZero() {
		return ErrZeroDate
	}
	if strings.TrimSpace(t.Category) == "" {
		return ErrEmptyCategory
	}
	if t.IsDeduction && t.IsFixed {
		return ErrConflictingFlags
	}
	return nil
}
