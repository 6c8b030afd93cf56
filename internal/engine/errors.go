package engine

import "fmt"

// BudgetExceededError indicates a turn used up its backend call budget
// before the assistant produced a plain reply.
type BudgetExceededError struct {
	Limit int
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("turn exceeded budget of %d model calls", e.Limit)
}
