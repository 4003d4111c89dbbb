package guard

import (
	"log/slog"
	"time"
)

// settings collects the configuration shared by Registry and Interceptor.
type settings struct {
	logger     *slog.Logger
	journal    Journal
	clock      Sequencer
	ids        IDGenerator
	timeout    time.Duration
	failClosed bool
}

// Option configures a Registry or Interceptor.
type Option func(*settings)

func newSettings(opts []Option) settings {
	s := settings{
		logger: slog.Default(),
		clock:  NewClock(),
		ids:    UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithJournal sets the event journal. Default: none.
func WithJournal(j Journal) Option {
	return func(s *settings) {
		s.journal = j
	}
}

// WithClock sets the logical clock used to stamp journal events.
// Use NewClockAt(lastSeq) when appending to an existing journal.
func WithClock(c Sequencer) Option {
	return func(s *settings) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithIDGenerator sets the navigation id generator. Default: UUIDv7.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *settings) {
		if g != nil {
			s.ids = g
		}
	}
}

// WithPredicateTimeout bounds how long a single predicate may take.
// Zero (the default) waits indefinitely.
func WithPredicateTimeout(d time.Duration) Option {
	return func(s *settings) {
		s.timeout = d
	}
}

// WithFailClosed makes failing predicates block navigation instead of
// being treated as clean.
func WithFailClosed(failClosed bool) Option {
	return func(s *settings) {
		s.failClosed = failClosed
	}
}
