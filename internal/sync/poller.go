// Package sync runs the background inbox poll and its rate-limit pause.
package sync

import (
	"context"
	"log/slog"
	gosync "sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/tempmail/internal/model"
)

// State is the phase the poller is in.
type State int

const (
	StateIdle State = iota
	StatePolling
	StatePaused
)

func (s State) String() string {
	switch s {
	case StatePolling:
		return "polling"
	case StatePaused:
		return "paused"
	default:
		return "idle"
	}
}

// FetchFunc fetches the current inbox.
type FetchFunc func(ctx context.Context) ([]model.MessageSummary, error)

// BackoffPolicy decides whether err pauses polling, and for how long.
type BackoffPolicy func(err error) (time.Duration, bool)

// FlatBackoff pauses for cooldown whenever match reports true. The
// duration never grows across repeated hits.
func FlatBackoff(cooldown time.Duration, match func(error) bool) BackoffPolicy {
	return func(err error) (time.Duration, bool) {
		if err == nil || !match(err) {
			return 0, false
		}
		return cooldown, true
	}
}

// ResultMsg is a tea.Msg carrying the outcome of a single fetch.
type ResultMsg struct {
	// Epoch is the value passed to Start for the run that produced it.
	Epoch uint64

	Messages []model.MessageSummary
	Err      error

	// Backoff is non-zero when Err paused polling for that long.
	Backoff time.Duration

	// Manual is set for fetches triggered by Refresh.
	Manual bool

	At time.Time
}

// fetchTimeout is the maximum time allowed for a single fetch operation.
const fetchTimeout = 30 * time.Second

// DefaultInterval is used when no interval is configured.
const DefaultInterval = 10 * time.Second

// Poller owns the polling task. At most one run exists at a time:
// Start always stops and joins the previous run before launching.
type Poller struct {
	fetch    FetchFunc
	backoff  BackoffPolicy
	interval time.Duration
	clock    Clock

	resultCh chan ResultMsg

	mu      gosync.Mutex
	state   State
	cancel  context.CancelFunc
	done    chan struct{}
	trigger chan struct{}
}

// Option customizes a Poller.
type Option func(*Poller)

// WithInterval sets the regular polling interval.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithBackoff sets the policy applied to failed fetches.
func WithBackoff(b BackoffPolicy) Option {
	return func(p *Poller) { p.backoff = b }
}

// WithClock replaces the real clock, mainly for tests.
func WithClock(c Clock) Option {
	return func(p *Poller) { p.clock = c }
}

// New creates an idle Poller around fetch.
func New(fetch FetchFunc, opts ...Option) *Poller {
	p := &Poller{
		fetch:    fetch,
		backoff:  func(error) (time.Duration, bool) { return 0, false },
		interval: DefaultInterval,
		clock:    realClock{},
		resultCh: make(chan ResultMsg, 16),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches a new run tagged with epoch. It fetches immediately and
// then on every interval tick.
func (p *Poller) Start(epoch uint64) {
	p.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	trigger := make(chan struct{}, 1)

	p.mu.Lock()
	p.cancel = cancel
	p.done = done
	p.trigger = trigger
	p.state = StatePolling
	p.mu.Unlock()

	go p.run(ctx, epoch, trigger, done)
}

// Stop cancels the current run, if any, and waits for it to exit.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done, p.trigger = nil, nil, nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	p.setState(StateIdle)
}

// Refresh requests an out-of-band fetch without touching the interval
// timer or a scheduled resumption. It reports false when no run exists.
func (p *Poller) Refresh() bool {
	p.mu.Lock()
	trigger := p.trigger
	p.mu.Unlock()

	if trigger == nil {
		return false
	}
	select {
	case trigger <- struct{}{}:
	default:
		// A refresh is already pending.
	}
	return true
}

// State returns the current phase.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// WaitForNextResult returns a tea.Cmd that waits for the next fetch
// result. Call it again after handling each ResultMsg.
func (p *Poller) WaitForNextResult() tea.Cmd {
	return func() tea.Msg {
		result, ok := <-p.resultCh
		if !ok {
			return nil
		}
		return result
	}
}

func (p *Poller) run(ctx context.Context, epoch uint64, trigger <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		pause, ok := p.poll(ctx, epoch, trigger)
		if !ok {
			return
		}
		if !p.pause(ctx, epoch, trigger, pause) {
			return
		}
		slog.Info("resuming inbox polling", "epoch", epoch)
	}
}

// poll fetches immediately and then on every tick. It returns the pause
// duration once a fetch is rate limited, or ok=false when cancelled.
func (p *Poller) poll(ctx context.Context, epoch uint64, trigger <-chan struct{}) (time.Duration, bool) {
	p.setState(StatePolling)

	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	if d, paused := p.fetchOnce(ctx, epoch, false); paused {
		return d, true
	}

	for {
		select {
		case <-ctx.Done():
			return 0, false
		case <-ticker.C():
			if d, paused := p.fetchOnce(ctx, epoch, false); paused {
				return d, true
			}
		case <-trigger:
			if d, paused := p.fetchOnce(ctx, epoch, true); paused {
				return d, true
			}
		}
	}
}

// pause waits out a single cooldown. Manual refreshes still fetch, but
// never reschedule or duplicate the pending resumption.
func (p *Poller) pause(ctx context.Context, epoch uint64, trigger <-chan struct{}, d time.Duration) bool {
	p.setState(StatePaused)
	slog.Warn("inbox polling paused", "epoch", epoch, "cooldown", d)

	resume := p.clock.After(d)
	for {
		select {
		case <-ctx.Done():
			return false
		case <-resume:
			return true
		case <-trigger:
			p.fetchOnce(ctx, epoch, true)
		}
	}
}

func (p *Poller) fetchOnce(ctx context.Context, epoch uint64, manual bool) (time.Duration, bool) {
	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	msgs, err := p.fetch(fetchCtx)

	// A cancelled run reports nothing.
	if ctx.Err() != nil {
		return 0, false
	}

	result := ResultMsg{
		Epoch:    epoch,
		Messages: msgs,
		Err:      err,
		Manual:   manual,
		At:       p.clock.Now(),
	}

	var pause time.Duration
	var paused bool
	if err != nil {
		pause, paused = p.backoff(err)
		if paused {
			result.Backoff = pause
		}
		slog.Error("fetching inbox", "epoch", epoch, "manual", manual, "err", err)
	}

	p.sendResult(result)
	return pause, paused
}

func (p *Poller) setState(s State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = s
}

// sendResult sends a ResultMsg on the result channel without blocking.
func (p *Poller) sendResult(msg ResultMsg) {
	select {
	case p.resultCh <- msg:
	default:
		slog.Warn("dropping inbox result, channel full", "epoch", msg.Epoch)
	}
}
