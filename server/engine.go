package server

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"gridkernel/core"
	"gridkernel/host"
)

// Engine advances the simulated clock on a fixed interval and publishes one
// TickFrame per step. Readers see the last completed frame while the next
// one is built.
type Engine struct {
	client   *host.Client
	log      *zap.Logger
	interval time.Duration

	mu    sync.Mutex // guards clock and speed
	clock core.Clock
	speed float64 // simulated minutes per step

	seq          atomic.Uint64
	currentRead  atomic.Pointer[TickFrame]
	currentWrite atomic.Pointer[TickFrame]
	swapMutex    sync.Mutex

	frameTime atomic.Int64 // nanoseconds spent in the last step

	onFrame func(*TickFrame)
}

// NewEngine builds a stopped engine starting at clock
func NewEngine(client *host.Client, interval time.Duration, minutesPerTick float64, clock core.Clock, log *zap.Logger) (*Engine, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("update interval %v must be positive: %w", interval, core.ErrInvalidInput)
	}
	if err := checkSpeed(minutesPerTick); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		client:   client,
		log:      log,
		interval: interval,
		clock:    clock,
		speed:    minutesPerTick,
	}, nil
}

func checkSpeed(minutes float64) error {
	if math.IsNaN(minutes) || math.IsInf(minutes, 0) || minutes < 0 || minutes > 24*60 {
		return fmt.Errorf("minutes per tick %v out of range: %w", minutes, core.ErrInvalidInput)
	}
	return nil
}

// OnFrame registers a callback run after every published frame. Set it
// before Run.
func (e *Engine) OnFrame(fn func(*TickFrame)) {
	e.onFrame = fn
}

// SetClock jumps to a time of day
func (e *Engine) SetClock(hour, minute int) error {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return fmt.Errorf("clock %d:%d out of range: %w", hour, minute, core.ErrInvalidInput)
	}
	e.mu.Lock()
	e.clock = core.ClockAt(hour, minute)
	e.mu.Unlock()
	return nil
}

// Clock returns the time the next step will simulate
func (e *Engine) Clock() core.Clock {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clock
}

// SetSpeed changes how many simulated minutes pass per step. Zero pauses
// the clock while ticks keep flowing.
func (e *Engine) SetSpeed(minutes float64) error {
	if err := checkSpeed(minutes); err != nil {
		return err
	}
	e.mu.Lock()
	e.speed = minutes
	e.mu.Unlock()
	return nil
}

// Speed returns the simulated minutes per step
func (e *Engine) Speed() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.speed
}

// Latest returns the last published frame, nil before the first step
func (e *Engine) Latest() *TickFrame {
	return e.currentRead.Load()
}

// FrameTime reports how long the last step took
func (e *Engine) FrameTime() time.Duration {
	return time.Duration(e.frameTime.Load())
}

func (e *Engine) swapBuffers() {
	e.swapMutex.Lock()
	defer e.swapMutex.Unlock()

	read := e.currentRead.Load()
	write := e.currentWrite.Load()
	e.currentRead.Store(write)
	e.currentWrite.Store(read)
}

// Step simulates the current clock, publishes the frame and advances the clock
func (e *Engine) Step() (*TickFrame, error) {
	start := time.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	nodes, edges, err := e.client.Tick(e.clock)
	if err != nil {
		return nil, err
	}
	frame := newTickFrame(e.seq.Add(1), e.clock, nodes, edges)
	e.currentWrite.Store(frame)
	e.swapBuffers()

	e.clock = e.clock.Advance(e.speed)
	e.frameTime.Store(int64(time.Since(start)))
	return frame, nil
}

// Run steps on every interval until ctx is done
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.log.Info("tick loop started", zap.Duration("interval", e.interval), zap.Float64("minutes_per_tick", e.Speed()))
	for {
		select {
		case <-ctx.Done():
			e.log.Info("tick loop stopped", zap.Uint64("ticks", e.seq.Load()))
			return nil
		case <-ticker.C:
			frame, err := e.Step()
			if err != nil {
				e.log.Warn("tick failed", zap.Error(err))
				continue
			}
			if ft := e.FrameTime(); ft > e.interval*9/10 {
				e.log.Warn("slow tick", zap.Duration("took", ft), zap.Duration("interval", e.interval))
			}
			if e.onFrame != nil {
				e.onFrame(frame)
			}
		}
	}
}
