// Package sandbox implements the Code Sandbox: goja-based
// isolated JavaScript execution with a hard wall-clock timeout and no
// filesystem/network access by default, backed by a pool of warm VMs
// with idle eviction.
package sandbox

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"
)

const (
	defaultTimeout = 5 * time.Second
	maxTimeout     = 30 * time.Second

	defaultPoolSize    = 5
	defaultIdleTimeout = 5 * time.Minute
)

// Config controls the sandbox's default/maximum execution timeout and pool
// sizing.
type Config struct {
	DefaultTimeout time.Duration
	MaxTimeout     time.Duration
	PoolSize       int
	IdleTimeout    time.Duration
}

func (c Config) withDefaults() Config {
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = defaultTimeout
	}
	if c.MaxTimeout <= 0 {
		c.MaxTimeout = maxTimeout
	}
	if c.PoolSize <= 0 {
		c.PoolSize = defaultPoolSize
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = defaultIdleTimeout
	}
	return c
}

// Result is the structured outcome of a sandbox execution.
type Result struct {
	Success    bool   `json:"success"`
	Output     string `json:"output,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"durationMs"`
}

// Options tunes a single execution.
type Options struct {
	// TimeoutMs overrides Config.DefaultTimeout for this call, clamped to
	// [1, Config.MaxTimeout].
	TimeoutMs int
}

type vmInstance struct {
	vm         *goja.Runtime
	lastUsedAt time.Time
}

func (v *vmInstance) expired(idle time.Duration) bool {
	return time.Since(v.lastUsedAt) > idle
}

// Sandbox executes untrusted JavaScript via a pool of goja runtimes, each
// reset and returned to the pool after use.
type Sandbox struct {
	cfg Config

	mu          sync.Mutex
	pool        []*vmInstance
	created     int
	closed      bool
	stopCleanup chan struct{}
	wg          sync.WaitGroup

	executions int64
}

// New creates a Sandbox and starts its idle-eviction loop.
func New(cfg Config) *Sandbox {
	s := &Sandbox{cfg: cfg.withDefaults(), stopCleanup: make(chan struct{})}
	s.wg.Add(1)
	go s.cleanupLoop()
	return s
}

func (s *Sandbox) cleanupLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.evictExpired()
		case <-s.stopCleanup:
			return
		}
	}
}

func (s *Sandbox) evictExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.pool[:0]
	for _, inst := range s.pool {
		if inst.expired(s.cfg.IdleTimeout) {
			s.created--
			continue
		}
		kept = append(kept, inst)
	}
	s.pool = kept
}

func (s *Sandbox) acquire() *goja.Runtime {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := len(s.pool); n > 0 {
		inst := s.pool[n-1]
		s.pool = s.pool[:n-1]
		return inst.vm
	}
	s.created++
	return goja.New()
}

func (s *Sandbox) release(vm *goja.Runtime) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	_ = vm.GlobalObject().Delete("input")
	vm.ClearInterrupt()
	if len(s.pool) < s.cfg.PoolSize {
		s.pool = append(s.pool, &vmInstance{vm: vm, lastUsedAt: time.Now()})
	} else {
		s.created--
	}
}

func (s *Sandbox) resolveTimeout(opts Options) time.Duration {
	if opts.TimeoutMs <= 0 {
		return s.cfg.DefaultTimeout
	}
	d := time.Duration(opts.TimeoutMs) * time.Millisecond
	if d > s.cfg.MaxTimeout {
		return s.cfg.MaxTimeout
	}
	if d <= 0 {
		return s.cfg.DefaultTimeout
	}
	return d
}

// Execute runs code with no filesystem/network access and a hard wall-clock
// timeout (default 5s, capped at 30s).
func (s *Sandbox) Execute(ctx context.Context, code string, opts Options) Result {
	return s.run(ctx, code, "", false, opts)
}

// ExecuteWithInput exposes input as a bound global name `input` inside the
// sandbox before running code.
func (s *Sandbox) ExecuteWithInput(ctx context.Context, code string, input string, opts Options) Result {
	return s.run(ctx, code, input, true, opts)
}

func (s *Sandbox) run(ctx context.Context, code, input string, hasInput bool, opts Options) Result {
	atomic.AddInt64(&s.executions, 1)
	start := time.Now()

	vm := s.acquire()
	defer s.release(vm)

	timeout := s.resolveTimeout(opts)
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		select {
		case <-execCtx.Done():
			vm.Interrupt(fmt.Errorf("execution timed out after %s", timeout))
		case <-done:
		}
	}()

	if hasInput {
		if err := vm.Set("input", input); err != nil {
			close(done)
			return Result{Success: false, Error: err.Error(), DurationMs: time.Since(start).Milliseconds()}
		}
	}

	val, err := vm.RunString(code)
	close(done)

	dur := time.Since(start).Milliseconds()
	if err != nil {
		return Result{Success: false, Error: err.Error(), DurationMs: dur}
	}
	var output string
	if val != nil && !goja.IsUndefined(val) && !goja.IsNull(val) {
		output = val.String()
	}
	return Result{Success: true, Output: output, DurationMs: dur}
}

// Shutdown terminates any outstanding runtimes and stops the idle-eviction
// loop.
func (s *Sandbox) Shutdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for _, inst := range s.pool {
		inst.vm.Interrupt("sandbox shutdown")
	}
	s.pool = nil
	s.mu.Unlock()

	close(s.stopCleanup)
	s.wg.Wait()
}
