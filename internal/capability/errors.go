package capability

import "fmt"

// UnknownCapabilityError indicates the model asked for a capability that
// is not registered. The turn cannot proceed because there is no handler
// to produce a result for the pending call.
type UnknownCapabilityError struct {
	Name string
}

func (e *UnknownCapabilityError) Error() string {
	return fmt.Sprintf("unknown capability: %s", e.Name)
}
