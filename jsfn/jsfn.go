// Package jsfn compiles user-supplied Javascript into pipeline
// functions: map functions, filter predicates, reducers, and
// predicate selectors.
//
// The source is the body of a function; use 'return'.  A map or
// filter body sees its input as 'x'; a reducer body sees 'last' and
// 'next'.
package jsfn

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Comcast/flume/core"
	"github.com/Comcast/flume/selector"

	"github.com/dop251/goja"
)

var (
	// InterruptedMessage is the string value of Interrupted.
	InterruptedMessage = "RuntimeError: timeout"

	// Interrupted is returned when an invocation exceeds the
	// interpreter's timeout.
	Interrupted = errors.New(InterruptedMessage)
)

// Interpreter compiles Javascript sources into Go functions.
type Interpreter struct {
	// Timeout bounds each invocation.  Zero means no limit.
	Timeout time.Duration
}

// NewInterpreter makes an Interpreter with a one-second invocation
// timeout.
func NewInterpreter() *Interpreter {
	return &Interpreter{
		Timeout: time.Second,
	}
}

func wrapSrc(params, src, args string) string {
	return fmt.Sprintf("(function (%s) {\n%s\n}(%s));\n", params, src, args)
}

func (i *Interpreter) compile(params, src, args string) (*goja.Program, error) {
	code := wrapSrc(params, src, args)
	p, err := goja.Compile("", code, true)
	if err != nil {
		return nil, errors.New(err.Error() + ": " + code)
	}
	return p, nil
}

// run executes a compiled program with the given '_' environment,
// interrupting it if the timeout elapses.
func (i *Interpreter) run(p *goja.Program, env map[string]interface{}) (interface{}, error) {
	o := goja.New()
	o.Set("_", env)

	ctx := context.Background()
	if 0 < i.Timeout {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.Timeout)
		defer cancel()
	}

	// Make sure the following goroutine terminates as soon as
	// possible.
	ictx, cancel := context.WithCancel(ctx)
	go func() {
		<-ictx.Done()
		// If cancel() runs after RunProgram returns, we never
		// see this interrupt, which is the behavior we want.
		o.Interrupt(InterruptedMessage)
	}()

	v, err := o.RunProgram(p)
	cancel()

	if err != nil {
		if _, is := err.(*goja.InterruptedError); is {
			return nil, Interrupted
		}
		return nil, err
	}

	return v.Export(), nil
}

// Function compiles src into a map function.  The input value is
// bound to 'x'.
func (i *Interpreter) Function(src string) (func(interface{}) (interface{}, error), error) {
	p, err := i.compile("x", src, "_.x")
	if err != nil {
		return nil, err
	}
	return func(x interface{}) (interface{}, error) {
		return i.run(p, map[string]interface{}{"x": x})
	}, nil
}

// Predicate compiles src into a filter predicate.  The input value is
// bound to 'x', and the body must return a boolean.
func (i *Interpreter) Predicate(src string) (func(interface{}) (bool, error), error) {
	p, err := i.compile("x", src, "_.x")
	if err != nil {
		return nil, err
	}
	return func(x interface{}) (bool, error) {
		v, err := i.run(p, map[string]interface{}{"x": x})
		if err != nil {
			return false, err
		}
		b, is := v.(bool)
		if !is {
			return false, fmt.Errorf("predicate returned %#v (%T), not a boolean", v, v)
		}
		return b, nil
	}, nil
}

// Reducer compiles src into a reduction function.  The accumulated
// value is bound to 'last' and the next input to 'next'.
func (i *Interpreter) Reducer(src string) (func(core.Reduce) (interface{}, error), error) {
	p, err := i.compile("last, next", src, "_.last, _.next")
	if err != nil {
		return nil, err
	}
	return func(r core.Reduce) (interface{}, error) {
		return i.run(p, map[string]interface{}{
			"last": r.LastValue,
			"next": r.NextValue,
		})
	}, nil
}

// Selector compiles src into a predicate selector for the bus.  A
// runtime error or non-boolean result means no match.
func (i *Interpreter) Selector(src string) (selector.Selector, error) {
	pred, err := i.Predicate(src)
	if err != nil {
		return nil, err
	}
	return selector.Predicate(func(key interface{}) bool {
		ok, err := pred(key)
		return err == nil && ok
	}), nil
}
