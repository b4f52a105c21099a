package gateway

import (
	"encoding/json"
	"sync/atomic"
)

// Outcome is the single terminal result of one invocation.
// Exactly one of Value and Err is set.
type Outcome struct {
	// InvocationID identifies the invocation in logs and events
	InvocationID string
	// Value is the JSON value recovered from the program output
	Value json.RawMessage
	// Err describes the failure
	Err *Error
}

// OK reports whether the invocation succeeded
func (o Outcome) OK() bool {
	return o.Err == nil
}

// Result returns the value or the failure as a plain error
func (o Outcome) Result() (json.RawMessage, error) {
	if o.Err != nil {
		return nil, o.Err
	}
	return o.Value, nil
}

// Label returns "success" or the failure kind name
func (o Outcome) Label() string {
	if o.Err == nil {
		return "success"
	}
	return o.Err.Kind.String()
}

func success(v json.RawMessage) Outcome {
	return Outcome{Value: v}
}

func failure(err *Error) Outcome {
	return Outcome{Err: err}
}

// resultCell is a write-once slot shared by all terminal event sources of
// one invocation. The first resolve wins; later calls return false and do
// nothing.
type resultCell struct {
	slot      atomic.Pointer[Outcome]
	done      chan struct{}
	onResolve func(Outcome)
}

func newResultCell(onResolve func(Outcome)) *resultCell {
	return &resultCell{
		done:      make(chan struct{}),
		onResolve: onResolve,
	}
}

// resolve stores o if the cell is still empty. When it wins, then (if not
// nil) runs before the outcome is published to waiters.
func (c *resultCell) resolve(o Outcome, then func()) bool {
	if !c.slot.CompareAndSwap(nil, &o) {
		return false
	}
	if then != nil {
		then()
	}
	if c.onResolve != nil {
		c.onResolve(o)
	}
	close(c.done)
	return true
}

// Done is closed once the cell holds an outcome
func (c *resultCell) Done() <-chan struct{} {
	return c.done
}

// load returns the stored outcome, if any
func (c *resultCell) load() (Outcome, bool) {
	p := c.slot.Load()
	if p == nil {
		return Outcome{}, false
	}
	return *p, true
}

// resolved reports whether a terminal event already won
func (c *resultCell) resolved() bool {
	return c.slot.Load() != nil
}
