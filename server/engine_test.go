package server

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridkernel/config"
	"gridkernel/core"
	"gridkernel/host"
	"gridkernel/kernel"
)

func newTestClient(t *testing.T) *host.Client {
	t.Helper()
	return newTestClientOn(t, kernel.BackendAuto)
}

func newTestClientOn(t *testing.T, backend kernel.Backend) *host.Client {
	t.Helper()
	settings := config.Default()
	settings.Simulation.Seed = 3
	client, err := host.NewClient(kernel.NewLazy(settings.KernelOptions(), backend, nil), host.Options{Strict: true}, nil)
	require.NoError(t, err)
	return client
}

func newTestEngine(t *testing.T, minutes float64) *Engine {
	t.Helper()
	client := newTestClient(t)
	topo := DemoTopology()
	require.NoError(t, client.LoadGrid(topo.Nodes, topo.Edges))
	e, err := NewEngine(client, 10*time.Millisecond, minutes, core.ClockAt(23, 30), nil)
	require.NoError(t, err)
	return e
}

func TestEngineStepAdvancesClock(t *testing.T) {
	e := newTestEngine(t, 30)
	assert.Nil(t, e.Latest())

	first, err := e.Step()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), first.Seq)
	assert.Equal(t, "23:30", first.Clock)
	assert.Len(t, first.Nodes, 12)
	assert.Len(t, first.Edges, 12)
	assert.Equal(t, core.Clock{Hour: 0, Minute: 0}, e.Clock())

	second, err := e.Step()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), second.Seq)
	assert.Equal(t, "00:00", second.Clock)
	assert.Same(t, second, e.Latest())
}

func TestEngineZeroSpeedHoldsClock(t *testing.T) {
	e := newTestEngine(t, 30)
	require.NoError(t, e.SetSpeed(0))
	for i := 0; i < 3; i++ {
		_, err := e.Step()
		require.NoError(t, err)
	}
	assert.Equal(t, core.ClockAt(23, 30), e.Clock())
	assert.Equal(t, uint64(3), e.Latest().Seq)
}

func TestEngineSetClock(t *testing.T) {
	e := newTestEngine(t, 1)
	require.NoError(t, e.SetClock(6, 45))
	frame, err := e.Step()
	require.NoError(t, err)
	assert.Equal(t, "06:45", frame.Clock)

	for _, c := range [][2]int{{24, 0}, {-1, 0}, {0, 60}, {12, -5}} {
		assert.ErrorIs(t, e.SetClock(c[0], c[1]), core.ErrInvalidInput, "%v", c)
	}
}

func TestEngineRejectsBadSettings(t *testing.T) {
	client := newTestClient(t)
	_, err := NewEngine(client, 0, 1, core.Clock{}, nil)
	assert.ErrorIs(t, err, core.ErrInvalidInput)
	_, err = NewEngine(client, time.Second, -1, core.Clock{}, nil)
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	e, err := NewEngine(client, time.Second, 1, core.Clock{}, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, e.SetSpeed(25*60), core.ErrInvalidInput)
	assert.Equal(t, 1.0, e.Speed())
}

func TestEngineStepBeforeLoad(t *testing.T) {
	e, err := NewEngine(newTestClient(t), time.Second, 1, core.Clock{}, nil)
	require.NoError(t, err)
	_, err = e.Step()
	assert.ErrorIs(t, err, core.ErrNotInitialized)
	assert.Nil(t, e.Latest())
}

func TestEngineRunPublishesFrames(t *testing.T) {
	e := newTestEngine(t, 1)
	frames := make(chan *TickFrame, 64)
	e.OnFrame(func(f *TickFrame) {
		select {
		case frames <- f:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	var got []*TickFrame
	for len(got) < 3 {
		select {
		case f := <-frames:
			got = append(got, f)
		case <-time.After(2 * time.Second):
			t.Fatal("no frames from the tick loop")
		}
	}
	cancel()
	require.NoError(t, <-done)

	for i := 1; i < len(got); i++ {
		assert.Greater(t, got[i].Seq, got[i-1].Seq)
	}
}
