// Package shutdown runs ordered teardown for the pollsock commands. Server
// sessions close first so held receives return, then listeners stop, then
// client sockets close.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/vinayprograms/pollsock/errors"
	"github.com/vinayprograms/pollsock/logging"
)

// Phases used by the commands. Lower phases run first.
const (
	PhaseSessions = 10
	PhaseListener = 20
	PhaseSockets  = 30
)

// Func releases one component. ctx expires with the shutdown timeout.
type Func func(ctx context.Context) error

// Result describes one completed step.
type Result struct {
	Name     string
	Phase    int
	Duration time.Duration
	Err      error
}

type step struct {
	name  string
	phase int
	fn    Func
}

// Coordinator runs registered steps phase by phase. Steps sharing a phase
// run concurrently.
type Coordinator struct {
	log *logging.Logger

	mu      sync.Mutex
	steps   []step
	once    sync.Once
	done    chan struct{}
	results []Result
	err     error
}

// NewCoordinator creates a coordinator logging to log (nil = discard).
func NewCoordinator(log *logging.Logger) *Coordinator {
	if log == nil {
		log = logging.Discard()
	}
	return &Coordinator{
		log:  log.WithComponent("shutdown"),
		done: make(chan struct{}),
	}
}

// Register adds a step to run in phase.
func (c *Coordinator) Register(name string, phase int, fn Func) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.steps = append(c.steps, step{name: name, phase: phase, fn: fn})
}

// Shutdown runs every step once. Later calls wait for the first and return
// its error.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.once.Do(func() {
		c.err = c.run(ctx)
		close(c.done)
	})
	<-c.done
	return c.err
}

// ShutdownWithTimeout is Shutdown bounded by timeout.
func (c *Coordinator) ShutdownWithTimeout(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return c.Shutdown(ctx)
}

// Done is closed when shutdown has finished.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Results returns the completed steps in execution order.
func (c *Coordinator) Results() []Result {
	<-c.done
	return c.results
}

func (c *Coordinator) run(ctx context.Context) error {
	c.mu.Lock()
	steps := append([]step(nil), c.steps...)
	c.mu.Unlock()

	sort.SliceStable(steps, func(i, j int) bool { return steps[i].phase < steps[j].phase })

	var failed []string
	for start := 0; start < len(steps); {
		end := start
		for end < len(steps) && steps[end].phase == steps[start].phase {
			end++
		}

		if ctx.Err() != nil {
			return errors.WrapWithCode(ctx.Err(), errors.ErrCodeTimeout, "shutdown timed out")
		}

		for _, r := range c.runPhase(ctx, steps[start:end]) {
			c.results = append(c.results, r)
			if r.Err != nil {
				failed = append(failed, r.Name)
			}
		}
		start = end
	}

	if len(failed) > 0 {
		return errors.Newf(errors.ErrCodeInternal, "shutdown steps failed: %v", failed)
	}
	return nil
}

func (c *Coordinator) runPhase(ctx context.Context, steps []step) []Result {
	results := make([]Result, len(steps))
	var wg sync.WaitGroup
	for i, s := range steps {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			err := s.fn(ctx)
			results[i] = Result{Name: s.name, Phase: s.phase, Duration: time.Since(start), Err: err}

			fields := map[string]interface{}{
				"step":     s.name,
				"phase":    s.phase,
				"duration": results[i].Duration.String(),
			}
			if err != nil {
				fields["error"] = err.Error()
				c.log.Warn("step_failed", fields)
			} else {
				c.log.Debug("step_done", fields)
			}
		}()
	}
	wg.Wait()
	return results
}

// SignalContext returns a context canceled on SIGINT or SIGTERM.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
