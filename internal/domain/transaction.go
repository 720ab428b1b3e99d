package domain

import "time"

// TxType classifies a ledger entry.
type TxType string

const (
	TxInitial    TxType = "initial"
	TxBet        TxType = "bet"
	TxCancel     TxType = "cancel"
	TxPayout     TxType = "payout"
	TxRefund     TxType = "refund"
	TxAdjustment TxType = "adjustment"
)

// Transaction is one append-only ledger entry. Entries are never mutated or
// deleted: replaying a user's entries in creation order must reproduce their
// current balance exactly.
type Transaction struct {
	ID           int64
	UserID       string
	MarketID     string // empty when the entry is not tied to a market
	Type         TxType
	Amount       int64 // signed; negative debits the balance
	BalanceAfter int64
	Description  string
	CreatedAt    time.Time
}

// ReplayBalance folds a user's transactions, in order, into the balance they
// imply. It also reports whether every entry's BalanceAfter matched the
// running total.
func ReplayBalance(txs []Transaction) (balance int64, consistent bool) {
	consistent = true
	for _, tx := range txs {
		balance += tx.Amount
		if tx.BalanceAfter != balance {
			consistent = false
		}
	}
	return balance, consistent
}
