package liveclient

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// DefaultPollInterval is the client refresh rate when the server does not
// advertise one.
const DefaultPollInterval = 2 * time.Second

// PollFunc performs one poll.
type PollFunc func(ctx context.Context) error

// Poller runs a PollFunc on a fixed interval. Polls never overlap: a tick
// that fires while the previous poll is still running is skipped and
// counted. The poller stops on ErrGone or when its context is cancelled;
// other errors are logged and retried on the next tick.
type Poller struct {
	interval time.Duration
	poll     PollFunc
	log      zerolog.Logger

	polls   atomic.Int64
	skipped atomic.Int64
	failed  atomic.Int64
}

// NewPoller creates a poller. A non-positive interval uses DefaultPollInterval.
func NewPoller(interval time.Duration, poll PollFunc, log zerolog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		interval: interval,
		poll:     poll,
		log:      log.With().Str("component", "poller").Logger(),
	}
}

// Run polls once immediately and then on every tick until stopped. It
// returns ErrGone (wrapped) or the context error.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	done := make(chan error, 1)
	inFlight := false
	start := func() {
		inFlight = true
		go func() { done <- p.poll(ctx) }()
	}
	start()

	for {
		select {
		case <-ctx.Done():
			if inFlight {
				<-done
			}
			return ctx.Err()

		case err := <-done:
			inFlight = false
			p.polls.Add(1)
			if errors.Is(err, ErrGone) {
				p.log.Info().Err(err).Msg("Poll target gone, stopping")
				return err
			}
			if err != nil && ctx.Err() == nil {
				p.failed.Add(1)
				p.log.Warn().Err(err).Msg("Poll failed, keeping last state")
			}

		case <-ticker.C:
			if inFlight {
				p.skipped.Add(1)
				p.log.Debug().Msg("Previous poll still running, skipping tick")
				continue
			}
			start()
		}
	}
}

// Polls is the number of completed polls.
func (p *Poller) Polls() int64 { return p.polls.Load() }

// Skipped is the number of ticks dropped because a poll was in flight.
func (p *Poller) Skipped() int64 { return p.skipped.Load() }

// Failed is the number of polls that returned a transient error.
func (p *Poller) Failed() int64 { return p.failed.Load() }
