package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is the denormalized balance projection for one user.
// Invariant: Balance >= 0 and equals the sum of the user's transactions.
type Account struct {
	UserID    string          `json:"user_id" db:"user_id"`
	Balance   decimal.Decimal `json:"balance" db:"balance"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// Transaction is an immutable ledger entry.
// Amount is signed: credits are positive, debits negative.
type Transaction struct {
	ID          string          `json:"id" db:"id"`
	UserID      string          `json:"user_id" db:"user_id"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
	Kind        Kind            `json:"kind" db:"kind"`
	ReferenceID string          `json:"reference_id,omitempty" db:"reference_id"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

type Kind string

const (
	KindPurchase      Kind = "purchase"
	KindCallDeduction Kind = "call_deduction"
	KindReferralBonus Kind = "referral_bonus"
	KindAdjustment    Kind = "adjustment"
)

func (k Kind) Valid() bool {
	switch k {
	case KindPurchase, KindCallDeduction, KindReferralBonus, KindAdjustment:
		return true
	default:
		return false
	}
}

// OpeningGrantReference tags the adjustment that seeds a new account with its
// starting balance, so replaying the log reproduces the balance from zero.
const OpeningGrantReference = "opening_grant"

type Direction int

const (
	Credit Direction = iota + 1
	Debit
)

// Posting is one requested balance change. Amount is a positive magnitude.
type Posting struct {
	ID          string
	UserID      string
	Direction   Direction
	Kind        Kind
	Amount      decimal.Decimal
	ReferenceID string
	At          time.Time
}

// PostResult reports what a posting actually did.
// Shortfall is the part of a debit that was not collected because the balance hit zero.
type PostResult struct {
	Transaction Transaction     `json:"transaction"`
	Balance     decimal.Decimal `json:"balance"`
	Shortfall   decimal.Decimal `json:"shortfall"`
	Duplicate   bool            `json:"duplicate"`
}

// Reconciliation compares the balance projection with a replay of the log.
type Reconciliation struct {
	UserID       string          `json:"user_id"`
	Balance      decimal.Decimal `json:"balance"`
	LedgerSum    decimal.Decimal `json:"ledger_sum"`
	Transactions int             `json:"transactions"`
	Consistent   bool            `json:"consistent"`
}
