// Package quota defines the append-only usage ledger entry.
package quota

import (
	"math/big"
	"time"
)

// Entry is one immutable row of the quota ledger. Positive amounts grant
// quota, negative amounts consume it. The balance of an account is the sum
// of Quota over all entries whose PaidBy matches the account, so PaidBy and
// ClientID intentionally stay separate fields: a sponsor can pay for another
// client's usage.
type Entry struct {
	ID          int64
	ClientID    string
	PaidBy      string
	ActionTaker string
	Quota       *big.Int
	CreatedAt   time.Time
}
