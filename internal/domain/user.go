package domain

import "time"

// StartingBalance is the number of points granted to every new user.
const StartingBalance int64 = 100

// MaxStakeRatio caps a single stake at this fraction of the bettor's balance.
const MaxStakeRatio = 0.2

// User is a registered participant. Identity (ID, email) comes from the
// external identity provider; the balance is owned by the ledger and mutated
// only by the engines.
type User struct {
	ID          string
	Email       string
	DisplayName string
	Points      int64
	CreatedAt   time.Time
}

// MaxStake returns the largest stake the user may place on a single bet:
// 20% of the current balance, floored, but never below one point so that
// small balances can still play.
func (u User) MaxStake() int64 {
	m := int64(float64(u.Points) * MaxStakeRatio)
	if m < 1 {
		m = 1
	}
	return m
}
