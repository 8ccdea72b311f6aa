package sim

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ionmd/ionmd/internal/config"
)

// Engine integrates a frozen snapshot and writes the trajectory (and any
// auxiliary files) named by its parameters. Run blocks until the run is
// complete; the controller calls it from its own goroutine.
type Engine interface {
	Run(ctx context.Context, snap Snapshot) error
}

// EngineFunc adapts a function to Engine.
type EngineFunc func(ctx context.Context, snap Snapshot) error

func (f EngineFunc) Run(ctx context.Context, snap Snapshot) error { return f(ctx, snap) }

type Option func(*Controller)

func WithLogger(l *log.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// WithObserver registers a callback fired once the run reaches a terminal
// status. It runs on the engine goroutine.
func WithObserver(fn func(Status, error)) Option {
	return func(c *Controller) { c.observers = append(c.observers, fn) }
}

// Controller drives one simulation through Idle -> Running -> Finished
// (or Errored). Parameters and particles may only change while Idle.
// All methods are safe for concurrent use.
type Controller struct {
	engine    Engine
	log       *log.Logger
	observers []func(Status, error)

	mu        sync.Mutex
	params    config.Params
	particles []Particle
	snap      *Snapshot
	runErr    error
	started   time.Time
	elapsed   time.Duration

	status atomic.Int32
	done   chan struct{}
}

func New(engine Engine, opts ...Option) *Controller {
	c := &Controller{
		engine:    engine,
		log:       log.Default(),
		params:    config.DefaultParams(),
		particles: make([]Particle, 0),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PollStatus returns the current status without blocking.
func (c *Controller) PollStatus() Status {
	return Status(c.status.Load())
}

func (c *Controller) Configure(p config.Params) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if st := c.PollStatus(); st != Idle {
		return fmt.Errorf("%w: configure while %s", ErrInvalidConfiguration, st)
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}
	c.params = p
	return nil
}

func (c *Controller) AddParticle(species Species, pos Vec3) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if st := c.PollStatus(); st != Idle {
		return &StateError{Op: "add particle", Status: st}
	}
	if species.Mass <= 0 {
		return fmt.Errorf("%w: ion mass must be positive, got %d", ErrInvalidConfiguration, species.Mass)
	}
	if !pos.IsValid() {
		return fmt.Errorf("%w: non-finite ion position %v", ErrInvalidConfiguration, pos)
	}
	c.particles = append(c.particles, Particle{Species: species, Position: pos})
	return nil
}

// Start freezes the configuration and launches the engine. It returns as
// soon as the engine goroutine is scheduled.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if st := c.PollStatus(); st != Idle {
		return &StateError{Op: "start", Status: st}
	}
	if len(c.particles) == 0 {
		return ErrEmptySystem
	}

	snap := Snapshot{Params: c.params, Particles: c.particles}.clone()
	c.snap = &snap
	c.started = time.Now()
	c.status.Store(int32(Running))

	c.log.Info("simulation started",
		"ions", snap.NumIons(),
		"steps", snap.Params.NumSteps,
		"dt", snap.Params.Dt,
		"file", snap.Params.Filename)

	go c.run(snap.clone())
	return nil
}

func (c *Controller) run(snap Snapshot) {
	// There is no cancel path at this boundary; the engine always runs to completion.
	err := c.engine.Run(context.Background(), snap)

	c.mu.Lock()
	c.runErr = err
	c.elapsed = time.Since(c.started)
	elapsed := c.elapsed
	c.mu.Unlock()

	final := Finished
	if err != nil {
		final = Errored
		c.log.Error("simulation failed", "err", err, "elapsed", elapsed)
	} else {
		c.log.Info("simulation finished", "elapsed", elapsed)
	}
	c.status.Store(int32(final))
	for _, fn := range c.observers {
		fn(final, err)
	}
	close(c.done)
}

// WaitUntilFinished polls the status every pollInterval until the run is
// terminal. A timeout <= 0 waits without a deadline; otherwise the call
// returns no later than timeout. Timing out leaves the engine running.
func (c *Controller) WaitUntilFinished(pollInterval, timeout time.Duration) error {
	if pollInterval <= 0 {
		return fmt.Errorf("%w: poll interval must be positive, got %v", ErrInvalidConfiguration, pollInterval)
	}

	start := time.Now()
	polls := 0
	for {
		st := c.PollStatus()
		polls++
		switch st {
		case Idle:
			return &StateError{Op: "wait", Status: st}
		case Finished:
			return nil
		case Errored:
			return fmt.Errorf("%w: %v", ErrEngine, c.Err())
		}

		elapsed := time.Since(start)
		if timeout <= 0 {
			c.log.Debug("still running", "elapsed", elapsed.Round(time.Millisecond))
			time.Sleep(pollInterval)
			continue
		}

		left := timeout - elapsed
		if left <= 0 {
			return &TimeoutError{Timeout: timeout, Polls: polls, Last: st}
		}
		c.log.Debug("still running", "elapsed", elapsed.Round(time.Millisecond))
		if left < pollInterval {
			// Polling again now would beat pollInterval, so the deadline ends the wait.
			time.Sleep(left)
			return &TimeoutError{Timeout: timeout, Polls: polls, Last: st}
		}
		time.Sleep(pollInterval)
	}
}

// Done is closed when the run reaches a terminal status.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Err returns the engine error of an Errored run.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runErr
}

// Elapsed is the wall time of a completed run, or the time so far.
func (c *Controller) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started.IsZero() {
		return 0
	}
	if c.PollStatus().Terminal() {
		return c.elapsed
	}
	return time.Since(c.started)
}

// Snapshot returns a copy of the frozen configuration once started.
func (c *Controller) Snapshot() (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snap == nil {
		return Snapshot{}, false
	}
	return c.snap.clone(), true
}

func (c *Controller) Params() config.Params {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.params
}

func (c *Controller) Particles() []Particle {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Particle, len(c.particles))
	copy(out, c.particles)
	return out
}
