// Package script runs small user-supplied JavaScript predicates for rotation
// conditions inside a pool of locked-down goja VMs.
package script

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// ErrTimeout is returned when a script exceeds the execution time limit.
var ErrTimeout = errors.New("script: execution timed out")

// ErrPanic is returned when the runtime panics while running a script.
var ErrPanic = errors.New("script: uncaught exception")

// Bindings are the globals visible to one script run. Values may be plain
// data or Go functions; they are removed again after the run.
type Bindings map[string]interface{}

// VMPool is a thread-safe pool of pre-initialised goja runtimes.
type VMPool struct {
	pool    chan *goja.Runtime
	timeout time.Duration
	logger  *zap.Logger
	size    int
}

// NewVMPool creates a pool of size runtimes with a per-run timeout.
func NewVMPool(size int, timeout time.Duration, logger *zap.Logger) *VMPool {
	if size <= 0 {
		size = 4
	}
	if timeout <= 0 {
		timeout = 50 * time.Millisecond
	}
	p := &VMPool{
		pool:    make(chan *goja.Runtime, size),
		timeout: timeout,
		logger:  logger,
		size:    size,
	}
	for i := 0; i < size; i++ {
		p.pool <- newSafeVM()
	}
	return p
}

func (p *VMPool) Size() int { return p.size }

// run borrows a VM, binds b and calls exec.
func (p *VMPool) run(ctx context.Context, b Bindings, exec func(*goja.Runtime) (goja.Value, error)) (goja.Value, error) {
	var vm *goja.Runtime
	select {
	case vm = <-p.pool:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	for k, v := range b {
		vm.Set(k, v)
	}

	timer := time.AfterFunc(p.timeout, func() { vm.Interrupt(ErrTimeout) })
	var result goja.Value
	var runErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				runErr = ErrPanic
			}
		}()
		result, runErr = exec(vm)
	}()
	timer.Stop()

	var interrupted *goja.InterruptedError
	if errors.As(runErr, &interrupted) || errors.Is(runErr, ErrTimeout) {
		// An interrupted VM is not reusable.
		p.pool <- newSafeVM()
		return nil, ErrTimeout
	}

	vm.ClearInterrupt()
	for k := range b {
		vm.Set(k, goja.Undefined())
	}
	p.pool <- vm

	if runErr != nil {
		var ex *goja.Exception
		if errors.As(runErr, &ex) {
			return nil, fmt.Errorf("script: %s", ex.Error())
		}
		return nil, runErr
	}
	return result, nil
}

// newSafeVM creates a runtime without module loading or dynamic evaluation.
func newSafeVM() *goja.Runtime {
	vm := goja.New()
	for _, name := range []string{"require", "process", "fetch", "XMLHttpRequest", "eval", "Function"} {
		vm.Set(name, goja.Undefined())
	}
	mathObj := vm.NewObject()
	_ = mathObj.Set("floor", math.Floor)
	_ = mathObj.Set("ceil", math.Ceil)
	_ = mathObj.Set("round", func(v float64) int64 { return int64(math.Floor(v + 0.5)) })
	_ = mathObj.Set("abs", math.Abs)
	_ = mathObj.Set("max", math.Max)
	_ = mathObj.Set("min", math.Min)
	_ = mathObj.Set("sqrt", math.Sqrt)
	// Rotations must be reproducible for the same world state.
	_ = mathObj.Set("random", func() float64 { return 0 })
	vm.Set("Math", mathObj)
	return vm
}

func export(v goja.Value) interface{} {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	return v.Export()
}

// Sandbox is the entry point used by the rule engine.
type Sandbox struct {
	pool   *VMPool
	logger *zap.Logger
}

func NewSandbox(size int, timeout time.Duration, logger *zap.Logger) *Sandbox {
	return &Sandbox{
		pool:   NewVMPool(size, timeout, logger),
		logger: logger,
	}
}

// Compile parses src once so it can be run many times.
func (sb *Sandbox) Compile(name, src string) (*goja.Program, error) {
	prog, err := goja.Compile(name, src, true)
	if err != nil {
		return nil, fmt.Errorf("script: compile %s: %w", name, err)
	}
	return prog, nil
}

// Eval compiles and runs src, returning the exported value of the last
// expression.
func (sb *Sandbox) Eval(ctx context.Context, src string, b Bindings) (interface{}, error) {
	v, err := sb.pool.run(ctx, b, func(vm *goja.Runtime) (goja.Value, error) {
		return vm.RunString(src)
	})
	if err != nil {
		sb.logger.Warn("script execution error",
			zap.String("src_preview", truncate(src, 80)),
			zap.Error(err))
		return nil, err
	}
	return export(v), nil
}

// Test runs a compiled predicate and converts the result with JavaScript
// truthiness.
func (sb *Sandbox) Test(ctx context.Context, prog *goja.Program, b Bindings) (bool, error) {
	v, err := sb.pool.run(ctx, b, func(vm *goja.Runtime) (goja.Value, error) {
		return vm.RunProgram(prog)
	})
	if err != nil {
		return false, err
	}
	if v == nil {
		return false, nil
	}
	return v.ToBoolean(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
