package kernel

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"gridkernel/core"
)

// Backend selects whether the compute kernel is used at all
type Backend int

const (
	BackendAuto   Backend = iota // use the kernel when it initialises
	BackendKernel                // same as auto; failures are logged loudly
	BackendHost                  // never load the kernel
)

// ParseBackend maps the config spelling to a Backend
func ParseBackend(s string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return BackendAuto, nil
	case "kernel":
		return BackendKernel, nil
	case "host":
		return BackendHost, nil
	}
	return BackendAuto, fmt.Errorf("unknown backend %q: %w", s, core.ErrInvalidInput)
}

func (b Backend) String() string {
	switch b {
	case BackendKernel:
		return "kernel"
	case BackendHost:
		return "host"
	default:
		return "auto"
	}
}

// Lazy delays kernel initialisation until first use and remembers whether
// it worked. A disabled or failed Lazy answers core.ErrUnavailable.
type Lazy struct {
	mu      sync.Mutex
	opts    Options
	backend Backend
	log     *zap.Logger

	checked bool
	kernel  *Kernel
	err     error
}

// NewLazy prepares a kernel that is built on first use
func NewLazy(opts Options, backend Backend, log *zap.Logger) *Lazy {
	if log == nil {
		log = zap.NewNop()
	}
	return &Lazy{opts: opts, backend: backend, log: log}
}

// Wrap adopts an already initialised kernel
func Wrap(k *Kernel) *Lazy {
	return &Lazy{backend: BackendKernel, log: k.log, checked: true, kernel: k, opts: k.opts}
}

func (l *Lazy) Name() string { return "kernel" }

func (l *Lazy) probe() {
	if l.checked {
		return
	}
	l.checked = true
	if l.backend == BackendHost {
		l.err = fmt.Errorf("kernel disabled by config: %w", core.ErrUnavailable)
		l.log.Info("compute kernel disabled, using host implementations")
		return
	}
	k, err := New(l.opts, l.log)
	if err != nil {
		l.err = fmt.Errorf("kernel init: %v: %w", err, core.ErrUnavailable)
		if l.backend == BackendKernel {
			l.log.Error("compute kernel failed to initialise", zap.Error(err))
		} else {
			l.log.Warn("compute kernel unavailable, using host implementations", zap.Error(err))
		}
		return
	}
	l.kernel = k
	l.log.Info("compute kernel ready", zap.Int("capacity", k.Capacity()))
}

// Kernel returns the live kernel or an error wrapping core.ErrUnavailable
func (l *Lazy) Kernel() (*Kernel, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.probe()
	if l.err != nil {
		return nil, l.err
	}
	if !l.kernel.Available() {
		return nil, fmt.Errorf("kernel disposed: %w", core.ErrUnavailable)
	}
	return l.kernel, nil
}

// Available reports whether calls would reach a live kernel
func (l *Lazy) Available() bool {
	_, err := l.Kernel()
	return err == nil
}

// Dispose tears the kernel down; later calls are unavailable
func (l *Lazy) Dispose() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.kernel != nil {
		l.kernel.Dispose()
	}
	l.checked = true
	l.err = fmt.Errorf("kernel disposed: %w", core.ErrUnavailable)
}

// Options returns the configuration the kernel is (or would be) built with
func (l *Lazy) Options() Options { return l.opts }
