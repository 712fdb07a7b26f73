// Package hours implements proof-of-completion submission and review, and the hour
// arithmetic that an accepted proof propagates to its enrollment and student.
package hours

// Balance is the hour state touched by one acceptance.
type Balance struct {
	Validated   int // enrollment validated hours
	Accumulated int // student accumulated hours
	Remaining   int // student remaining hours
}

// Credit is the outcome of applying one accepted proof.
type Credit struct {
	Balance
	// Delta is the increment applied to the enrollment after the activity budget cap.
	Delta int
	// Credited is the increment applied to the student's accumulated hours. It equals
	// Delta unless the program quota clamps it.
	Credited int
}

// Apply credits claimed hours against an activity budget. Negative inputs count as zero.
// With enforceQuota the student's accumulated hours grow by at most their remaining hours.
func Apply(prev Balance, claimed, budget int, enforceQuota bool) Credit {
	prev.Validated = max(prev.Validated, 0)
	prev.Remaining = max(prev.Remaining, 0)
	claimed = max(claimed, 0)
	budget = max(budget, 0)

	capped := min(prev.Validated+claimed, budget)
	delta := max(capped-prev.Validated, 0)

	credited := delta
	if enforceQuota {
		credited = min(delta, prev.Remaining)
	}

	return Credit{
		Balance: Balance{
			Validated:   prev.Validated + delta,
			Accumulated: prev.Accumulated + credited,
			Remaining:   max(prev.Remaining-delta, 0),
		},
		Delta:    delta,
		Credited: credited,
	}
}
