package health

import (
	"context"
	"errors"
	"sync/atomic"
)

// Flag is a readiness gate that fails until [Flag.Set] is called. The server
// sets it once the recognition backend has been warmed up.
type Flag struct {
	ready atomic.Bool
}

// Set marks the gate as passed.
func (f *Flag) Set() { f.ready.Store(true) }

// Ready reports whether Set has been called.
func (f *Flag) Ready() bool { return f.ready.Load() }

// FlagChecker fails with reason until f is set.
func FlagChecker(name string, f *Flag, reason string) Checker {
	err := errors.New(reason)
	return Checker{Name: name, Check: func(context.Context) error {
		if !f.Ready() {
			return err
		}
		return nil
	}}
}

// Pinger is implemented by stores that can verify their connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingChecker calls p.Ping.
func PingChecker(name string, p Pinger) Checker {
	return Checker{Name: name, Check: p.Ping}
}

// Availability is implemented by backend groups that know whether any member
// would accept a call.
type Availability interface {
	Available() bool
}

// AvailabilityChecker fails while a reports no usable member.
func AvailabilityChecker(name string, a Availability) Checker {
	return Checker{Name: name, Check: func(context.Context) error {
		if !a.Available() {
			return errors.New("all circuit breakers open")
		}
		return nil
	}}
}
