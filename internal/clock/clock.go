// Package clock abstracts wall-clock access so period bucketing is testable.
package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock supplies the current time in UTC.
type Clock interface {
	Now() time.Time
}

// Module provides the system clock.
var Module = fx.Module("clock",
	fx.Provide(NewSystemClock),
)

type systemClock struct{}

func NewSystemClock() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}
