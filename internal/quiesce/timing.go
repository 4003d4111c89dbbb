package quiesce

import (
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Timing holds the detector's wait intervals.
//
// The settle wait before the completeness check grows exponentially from
// Settle by Multiplier, capped at MaxSettle, for at most MaxAttempts checks.
// Once complete, Confirm and Recheck separate the three stability samples
// and Final precedes the forced sample.
type Timing struct {
	Settle      time.Duration `yaml:"settle" env:"SETTLE"`
	Multiplier  float64       `yaml:"multiplier" env:"MULTIPLIER"`
	MaxSettle   time.Duration `yaml:"max_settle" env:"MAX_SETTLE"`
	MaxAttempts int           `yaml:"max_attempts" env:"MAX_ATTEMPTS"`
	Confirm     time.Duration `yaml:"confirm" env:"CONFIRM"`
	Recheck     time.Duration `yaml:"recheck" env:"RECHECK"`
	Final       time.Duration `yaml:"final" env:"FINAL"`
}

// DefaultTiming returns the production intervals.
func DefaultTiming() Timing {
	return Timing{
		Settle:      1200 * time.Millisecond,
		Multiplier:  1.5,
		MaxSettle:   5 * time.Second,
		MaxAttempts: 5,
		Confirm:     600 * time.Millisecond,
		Recheck:     500 * time.Millisecond,
		Final:       time.Second,
	}
}

// Validate reports the first invalid field.
func (t Timing) Validate() error {
	switch {
	case t.Settle <= 0:
		return errors.New("settle must be positive")
	case t.Multiplier < 1:
		return fmt.Errorf("multiplier must be >= 1, got %v", t.Multiplier)
	case t.MaxSettle < t.Settle:
		return fmt.Errorf("max_settle (%s) must not be below settle (%s)", t.MaxSettle, t.Settle)
	case t.MaxAttempts < 1:
		return fmt.Errorf("max_attempts must be >= 1, got %d", t.MaxAttempts)
	case t.Confirm < 0, t.Recheck < 0, t.Final < 0:
		return errors.New("confirm, recheck and final must not be negative")
	}
	return nil
}

// settleSchedule returns a fresh schedule of settle waits. NextBackOff yields
// backoff.Stop once MaxAttempts waits were handed out.
func (t Timing) settleSchedule() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = t.Settle
	b.Multiplier = t.Multiplier
	b.MaxInterval = t.MaxSettle
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithMaxRetries(b, uint64(t.MaxAttempts))
}

// SettleWaits lists the settle intervals the detector would use, in order.
func (t Timing) SettleWaits() []time.Duration {
	var out []time.Duration
	s := t.settleSchedule()
	for {
		d := s.NextBackOff()
		if d == backoff.Stop {
			return out
		}
		out = append(out, d)
	}
}
