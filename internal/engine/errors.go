package engine

import "fmt"

// DispatchError is returned when the backend call itself fails rather than
// reporting success=false. It carries the routing context of the attempt.
type DispatchError struct {
	Model     string
	Provider  string
	Instance  string
	LatencyMs float64
	Err       error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch %s via %s (%s) failed after %.0fms: %v",
		e.Model, e.Provider, e.Instance, e.LatencyMs, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }
