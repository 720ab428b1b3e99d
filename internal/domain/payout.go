package domain

// Payout is the settlement amount owed to one winning bet.
type Payout struct {
	BetID  string
	UserID string
	Points int64
}

// PayoutPlan is the full settlement computed for a market resolution. When
// the winning side attracted no stakes, Refund holds every active bet and
// Payouts is empty: all stakes go back to their owners.
type PayoutPlan struct {
	Outcome     Side
	WinningPool int64
	TotalPool   int64
	Payouts     []Payout
	Refund      []Bet
}

// ComputePayouts settles a pari-mutuel pool: every stake on the winning side
// receives floor(stake * totalPool / winningPool). The rounding remainder is
// burned, never redistributed. Because totalPool >= winningPool, a winner
// always receives at least their stake back.
func ComputePayouts(bets []Bet, outcome Side) PayoutPlan {
	plan := PayoutPlan{Outcome: outcome}

	for _, b := range bets {
		plan.TotalPool += b.Points
		if b.Side == outcome {
			plan.WinningPool += b.Points
		}
	}

	// Nobody picked the winning side: refund every stake in full.
	if plan.WinningPool == 0 {
		plan.Refund = append(plan.Refund, bets...)
		return plan
	}

	for _, b := range bets {
		if b.Side != outcome {
			continue
		}
		plan.Payouts = append(plan.Payouts, Payout{
			BetID:  b.ID,
			UserID: b.UserID,
			Points: b.Points * plan.TotalPool / plan.WinningPool,
		})
	}
	return plan
}
