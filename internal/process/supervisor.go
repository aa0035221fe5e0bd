package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// State is the lifecycle state of the supervised daemon.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateBackoff  State = "backoff"
	StateFailed   State = "failed"
)

const (
	readyPollInterval = 100 * time.Millisecond
	probeTimeout      = 2 * time.Second
	maxOutputLine     = 4096
)

var errExited = errors.New("exited")

// Config holds supervisor settings. Zero durations take the defaults noted.
type Config struct {
	// Name identifies the daemon in logs.
	Name string

	// Binary is the daemon executable.
	Binary string

	// Args are passed to the daemon.
	Args []string

	// Env is appended to the parent environment. Nil inherits it unchanged.
	Env []string

	// Probe reports whether the daemon is serving. Nil treats a live
	// process as ready.
	Probe func(ctx context.Context) error

	// ReadyTimeout bounds how long Start waits for the first passing probe.
	// Default: 10s
	ReadyTimeout time.Duration

	// ProbeInterval is how often a running daemon is probed.
	// Default: 30s
	ProbeInterval time.Duration

	// ProbeFailures consecutive failures get the daemon killed.
	// Default: 3
	ProbeFailures int

	// RestartDelay is the first backoff delay; it doubles per restart.
	// Default: 2s
	RestartDelay time.Duration

	// MaxRestartDelay caps the backoff. A daemon that stays up this long
	// resets it. Default: 1m
	MaxRestartDelay time.Duration

	// MaxRestarts gives up after this many restarts. 0 is unlimited.
	MaxRestarts int

	// StopTimeout is the SIGTERM grace period before SIGKILL.
	// Default: 5s
	StopTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.Name == "" {
		c.Name = c.Binary
	}
	if c.ReadyTimeout == 0 {
		c.ReadyTimeout = 10 * time.Second
	}
	if c.ProbeInterval == 0 {
		c.ProbeInterval = 30 * time.Second
	}
	if c.ProbeFailures == 0 {
		c.ProbeFailures = 3
	}
	if c.RestartDelay == 0 {
		c.RestartDelay = 2 * time.Second
	}
	if c.MaxRestartDelay == 0 {
		c.MaxRestartDelay = time.Minute
	}
	if c.StopTimeout == 0 {
		c.StopTimeout = 5 * time.Second
	}
}

// Logger defines the logging interface for the supervisor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Supervisor runs one daemon and keeps it serving.
type Supervisor struct {
	cfg    Config
	logger Logger

	mu       sync.Mutex
	state    State
	pid      int
	started  time.Time
	restarts int
	lastErr  error
	cancel   context.CancelFunc
	done     chan struct{}
}

// New creates a stopped supervisor.
//
// Returns:
//   - *Supervisor: Ready to Start
//   - error: ErrInvalidConfig if no binary is set or a value is negative
func New(cfg Config) (*Supervisor, error) {
	if cfg.Binary == "" {
		return nil, fmt.Errorf("%w: binary is required", ErrInvalidConfig)
	}
	if cfg.MaxRestarts < 0 || cfg.ProbeFailures < 0 || cfg.RestartDelay < 0 || cfg.StopTimeout < 0 {
		return nil, fmt.Errorf("%w: values must not be negative", ErrInvalidConfig)
	}
	cfg.applyDefaults()

	return &Supervisor{
		cfg:    cfg,
		logger: noopLogger{},
		state:  StateStopped,
	}, nil
}

// SetLogger sets the logger. Call before Start.
func (s *Supervisor) SetLogger(logger Logger) {
	s.logger = logger
}

// Start launches the daemon and blocks until its probe passes.
//
// The daemon outlives ctx; ctx only bounds the readiness wait. Stop ends it.
//
// Returns:
//   - error: ErrAlreadyRunning, a spawn failure, or ErrNotReady (the daemon
//     is stopped again before returning)
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, s.cfg.Name)
	}
	s.state = StateStarting
	s.restarts = 0
	s.lastErr = nil
	s.mu.Unlock()

	cmd, err := s.spawn()
	if err != nil {
		s.mu.Lock()
		s.state = StateFailed
		s.lastErr = err
		s.mu.Unlock()
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.mu.Lock()
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go s.supervise(runCtx, cmd, done)

	if err := s.waitReady(ctx); err != nil {
		s.Stop() //nolint:errcheck // Stop never fails
		return err
	}

	s.logger.Info("daemon ready", "name", s.cfg.Name, "pid", s.PID())
	return nil
}

// Stop terminates the daemon and waits for supervision to end.
// Safe to call repeatedly or before Start.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

func (s *Supervisor) spawn() (*exec.Cmd, error) {
	cmd := exec.Command(s.cfg.Binary, s.cfg.Args...) //nolint:gosec // Binary comes from operator config
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if s.cfg.Env != nil {
		cmd.Env = append(os.Environ(), s.cfg.Env...)
	}
	cmd.Stdout = &lineLogger{s: s, stream: "stdout"}
	cmd.Stderr = &lineLogger{s: s, stream: "stderr"}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", s.cfg.Name, err)
	}

	s.mu.Lock()
	s.state = StateRunning
	s.pid = cmd.Process.Pid
	s.started = time.Now()
	s.mu.Unlock()

	s.logger.Info("daemon started", "name", s.cfg.Name, "pid", cmd.Process.Pid)
	return cmd, nil
}

func (s *Supervisor) supervise(ctx context.Context, cmd *exec.Cmd, done chan struct{}) {
	defer close(done)

	delay := s.cfg.RestartDelay
	var err error
	for {
		if cmd != nil {
			started := time.Now()
			err = s.watch(ctx, cmd)
			if time.Since(started) >= s.cfg.MaxRestartDelay {
				delay = s.cfg.RestartDelay
			}
		}
		if ctx.Err() != nil {
			s.setStopped()
			return
		}

		s.mu.Lock()
		s.lastErr = err
		s.pid = 0
		if s.cfg.MaxRestarts > 0 && s.restarts >= s.cfg.MaxRestarts {
			s.state = StateFailed
			cancel := s.cancel
			s.cancel = nil
			s.mu.Unlock()
			if cancel != nil {
				cancel()
			}
			s.logger.Error("daemon failed, giving up",
				"name", s.cfg.Name,
				"restarts", s.cfg.MaxRestarts,
				"error", err,
			)
			return
		}
		s.restarts++
		attempt := s.restarts
		s.state = StateBackoff
		s.mu.Unlock()

		s.logger.Warn("daemon exited, restarting",
			"name", s.cfg.Name,
			"error", err,
			"attempt", attempt,
			"delay", delay,
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.setStopped()
			return
		case <-timer.C:
		}
		delay = min(delay*2, s.cfg.MaxRestartDelay)

		if cmd, err = s.spawn(); err != nil {
			s.logger.Error("daemon restart failed", "name", s.cfg.Name, "error", err)
		}
	}
}

// watch returns when the daemon exits, is killed by the probe watchdog, or
// ctx is cancelled (in which case the daemon is terminated first).
func (s *Supervisor) watch(ctx context.Context, cmd *exec.Cmd) error {
	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	var tick <-chan time.Time
	if s.cfg.Probe != nil {
		ticker := time.NewTicker(s.cfg.ProbeInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	pid := cmd.Process.Pid
	failures := 0
	for {
		select {
		case err := <-exited:
			if err == nil {
				err = errExited
			}
			return err

		case <-ctx.Done():
			s.terminate(pid, exited)
			return ctx.Err()

		case <-tick:
			err := s.probe(ctx)
			if err == nil {
				if failures > 0 {
					s.logger.Info("daemon probe recovered", "name", s.cfg.Name)
				}
				failures = 0
				continue
			}
			failures++
			s.logger.Warn("daemon probe failed",
				"name", s.cfg.Name,
				"error", err,
				"consecutive_failures", failures,
			)
			if failures >= s.cfg.ProbeFailures {
				signalGroup(pid, syscall.SIGKILL)
				<-exited
				return fmt.Errorf("killed after %d failed probes: %w", failures, err)
			}
		}
	}
}

func (s *Supervisor) terminate(pid int, exited <-chan error) {
	s.logger.Info("stopping daemon", "name", s.cfg.Name, "pid", pid)
	signalGroup(pid, syscall.SIGTERM)

	timer := time.NewTimer(s.cfg.StopTimeout)
	defer timer.Stop()
	select {
	case <-exited:
		return
	case <-timer.C:
	}

	s.logger.Warn("daemon ignored SIGTERM, killing", "name", s.cfg.Name, "timeout", s.cfg.StopTimeout)
	signalGroup(pid, syscall.SIGKILL)
	<-exited
}

// signalGroup signals the daemon's process group so helpers it forked go too.
func signalGroup(pid int, sig syscall.Signal) {
	//nolint:errcheck // ESRCH just means the group is already gone
	syscall.Kill(-pid, sig)
}

func (s *Supervisor) probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	return s.cfg.Probe(ctx)
}

func (s *Supervisor) waitReady(ctx context.Context) error {
	if s.cfg.Probe == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ReadyTimeout)
	defer cancel()
	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()

	for {
		err := s.probe(ctx)
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s after %s: %w", ErrNotReady, s.cfg.Name, s.cfg.ReadyTimeout, err)
		case <-ticker.C:
		}
	}
}

func (s *Supervisor) setStopped() {
	s.mu.Lock()
	s.state = StateStopped
	s.pid = 0
	s.mu.Unlock()
	s.logger.Info("daemon stopped", "name", s.cfg.Name)
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// PID returns the daemon's process ID, or 0 when it is not running.
func (s *Supervisor) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pid
}

// Stats is a point-in-time view of the supervisor.
type Stats struct {
	Name      string        `json:"name"`
	State     State         `json:"state"`
	PID       int           `json:"pid,omitempty"`
	Uptime    time.Duration `json:"uptime,omitempty"`
	Restarts  int           `json:"restarts"`
	LastError string        `json:"last_error,omitempty"`
}

// Stats returns current statistics.
func (s *Supervisor) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		Name:     s.cfg.Name,
		State:    s.state,
		PID:      s.pid,
		Restarts: s.restarts,
	}
	if s.state == StateRunning {
		st.Uptime = time.Since(s.started)
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

// lineLogger turns a daemon output stream into one debug record per line.
// exec writes each stream from a single goroutine.
type lineLogger struct {
	s      *Supervisor
	stream string
	buf    []byte
}

func (w *lineLogger) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.emit(w.buf[:i])
		w.buf = append(w.buf[:0], w.buf[i+1:]...)
	}
	if len(w.buf) >= maxOutputLine {
		w.emit(w.buf)
		w.buf = w.buf[:0]
	}
	return len(p), nil
}

func (w *lineLogger) emit(line []byte) {
	line = bytes.TrimRight(line, "\r")
	if len(line) == 0 {
		return
	}
	w.s.logger.Debug("daemon output", "name", w.s.cfg.Name, "stream", w.stream, "line", string(line))
}
