//go:build js && wasm

// Command gridwasm exposes the kernel entry points to JavaScript. Every gk*
// function returns a record count, or a negative code on failure:
//
//	-1 invalid input   -2 not initialized   -3 unavailable   -4 buffer busy
//
// Records travel through the kernel's linear memory: gkWrite copies doubles
// in at an offset, gkBuffer copies them out.
package main

import (
	"encoding/binary"
	"errors"
	"math"
	"syscall/js"

	"go.uber.org/zap"

	"gridkernel/config"
	"gridkernel/core"
	"gridkernel/kernel"
	"gridkernel/logging"
)

const (
	codeInvalid        = -1
	codeNotInitialized = -2
	codeUnavailable    = -3
	codeBusy           = -4
)

var (
	k   *kernel.Kernel
	log *zap.Logger
)

func code(err error) int {
	switch {
	case errors.Is(err, core.ErrInvalidInput):
		return codeInvalid
	case errors.Is(err, core.ErrNotInitialized):
		return codeNotInitialized
	case errors.Is(err, core.ErrBusy):
		return codeBusy
	default:
		return codeUnavailable
	}
}

func result(n int, err error) any {
	if err != nil {
		log.Debug("kernel call failed", zap.Error(err))
		return code(err)
	}
	return n
}

func arg(args []js.Value, i int) float64 {
	if i >= len(args) {
		return math.NaN()
	}
	return args[i].Float()
}

func intArg(args []js.Value, i int) int {
	if i >= len(args) {
		return -1
	}
	return args[i].Int()
}

// gkInit([capacity]) builds a fresh kernel, disposing any previous one
func gkInit(this js.Value, args []js.Value) any {
	opts := kernel.DefaultOptions()
	if len(args) > 0 {
		opts.Capacity = args[0].Int()
	}
	if len(args) > 1 {
		opts.Seed = uint64(args[1].Int())
	}
	if k != nil {
		k.Dispose()
	}
	next, err := kernel.New(opts, log)
	if err != nil {
		k = nil
		return code(err)
	}
	k = next
	return k.Capacity()
}

func gkDispose(this js.Value, args []js.Value) any {
	if k != nil {
		k.Dispose()
	}
	return 0
}

func gkInputPtr(this js.Value, args []js.Value) any {
	if k == nil {
		return -1
	}
	return k.InputPtr()
}

func gkOutputPtr(this js.Value, args []js.Value) any {
	if k == nil {
		return -1
	}
	return k.OutputPtr()
}

// gkGrow(n) makes both regions hold at least n doubles
func gkGrow(this js.Value, args []js.Value) any {
	if k == nil {
		return codeUnavailable
	}
	a, err := k.Arena()
	if err != nil {
		return code(err)
	}
	if _, err := a.Grow(intArg(args, 0)); err != nil {
		return code(err)
	}
	return a.Capacity()
}

// gkBuffer(offset, n) copies n doubles out of linear memory into a Float64Array
func gkBuffer(this js.Value, args []js.Value) any {
	if k == nil || !k.Available() {
		return js.Null()
	}
	mem := k.Memory()
	off, n := intArg(args, 0), intArg(args, 1)
	if off < 0 || n < 0 || off+n > len(mem) {
		return js.Null()
	}
	raw := make([]byte, 8*n)
	for i, v := range mem[off : off+n] {
		binary.LittleEndian.PutUint64(raw[8*i:], math.Float64bits(v))
	}
	bytes := js.Global().Get("Uint8Array").New(len(raw))
	js.CopyBytesToJS(bytes, raw)
	return js.Global().Get("Float64Array").New(bytes.Get("buffer"))
}

// gkWrite(offset, Float64Array) copies doubles into linear memory
func gkWrite(this js.Value, args []js.Value) any {
	if k == nil || !k.Available() {
		return codeUnavailable
	}
	if len(args) < 2 {
		return codeInvalid
	}
	src := args[1]
	n := src.Get("length").Int()
	mem := k.Memory()
	off := intArg(args, 0)
	if off < 0 || off+n > len(mem) {
		return codeInvalid
	}
	view := js.Global().Get("Uint8Array").New(src.Get("buffer"), src.Get("byteOffset"), src.Get("byteLength"))
	raw := make([]byte, 8*n)
	js.CopyBytesToGo(raw, view)
	for i := 0; i < n; i++ {
		mem[off+i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[8*i:]))
	}
	return n
}

func entry(fn func(args []js.Value) (int, error)) js.Func {
	return js.FuncOf(func(this js.Value, args []js.Value) any {
		if k == nil {
			return codeUnavailable
		}
		return result(fn(args))
	})
}

func main() {
	var err error
	log, err = logging.New(config.LoggingSettings{Level: "warn", Format: "console"})
	if err != nil {
		log = zap.NewNop()
	}

	exports := map[string]js.Func{
		"gkInit":      js.FuncOf(gkInit),
		"gkDispose":   js.FuncOf(gkDispose),
		"gkInputPtr":  js.FuncOf(gkInputPtr),
		"gkOutputPtr": js.FuncOf(gkOutputPtr),
		"gkGrow":      js.FuncOf(gkGrow),
		"gkBuffer":    js.FuncOf(gkBuffer),
		"gkWrite":     js.FuncOf(gkWrite),
		"gkLoadPoints": entry(func(a []js.Value) (int, error) {
			return k.LoadPoints(intArg(a, 0))
		}),
		"gkGetClusters": entry(func(a []js.Value) (int, error) {
			return k.GetClusters(arg(a, 0), arg(a, 1), arg(a, 2), arg(a, 3), intArg(a, 4))
		}),
		"gkLoadGrid": entry(func(a []js.Value) (int, error) {
			return k.LoadGrid(intArg(a, 0), intArg(a, 1))
		}),
		"gkTick": entry(func(a []js.Value) (int, error) {
			return k.Tick(arg(a, 0), arg(a, 1))
		}),
		"gkSetGraph": entry(func(a []js.Value) (int, error) {
			return k.SetGraph(intArg(a, 0), intArg(a, 1))
		}),
		"gkFindPath": entry(func(a []js.Value) (int, error) {
			return k.FindPath(intArg(a, 0), intArg(a, 1))
		}),
		"gkCurve": entry(func(a []js.Value) (int, error) {
			return k.GenerateCurve(arg(a, 0), arg(a, 1), arg(a, 2), arg(a, 3), arg(a, 4), intArg(a, 5))
		}),
	}
	global := js.Global()
	for name, fn := range exports {
		global.Set(name, fn)
	}
	log.Info("grid kernel exports registered", zap.Int("functions", len(exports)))

	select {}
}
