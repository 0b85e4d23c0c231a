package core

import (
	"context"
	"testing"
	"time"

	"github.com/Comcast/flume/selector"
)

// TestPipeline chains a delayed source through map and reduce and
// blocks for the final accumulation.
func TestPipeline(t *testing.T) {
	sum := FromSlice([]interface{}{1, 2, 3}).
		Map(func(v interface{}) (interface{}, error) {
			return v.(int) * 2, nil
		}).
		Reduce(func(r Reduce) (interface{}, error) {
			return r.LastValue.(int) + r.NextValue.(int), nil
		}, 0)

	v, err := sum.AwaitFor(context.Background(), 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if v != 12 {
		t.Fatalf("got %v", v)
	}
}

// TestRequestReply stitches a request/reply pair across a bus: the
// source's value is published under a selector with a fresh reply-to
// key, a service replies, and the reply feeds the derived stage.
func TestRequestReply(t *testing.T) {
	bus := NewReactor()
	service := selector.Object("service")

	bus.On(service, func(ev *Event) {
		if ev.Data != "ping" {
			t.Fatalf("service got %v", ev.Data)
		}
		Reply(bus, ev, NewEvent("pong"))
	})

	c := From(NewEvent("ping"))
	d := c.MapTo(service, bus)

	// The derived stage is unbounded, so the await runs to its
	// timeout and surfaces the latest reply.
	v, err := d.AwaitFor(context.Background(), 30*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if v != "pong" {
		t.Fatalf("got %v", v)
	}
}

// TestRoundTrip reduces mapped values into a collection equal to the
// input set.
func TestRoundTrip(t *testing.T) {
	xs := []interface{}{"a", "b", "c"}

	v, err := FromSlice(xs).
		Map(func(v interface{}) (interface{}, error) {
			return v, nil
		}).
		Reduce(func(r Reduce) (interface{}, error) {
			return append(r.LastValue.([]interface{}), r.NextValue), nil
		}, []interface{}{}).
		AwaitFor(context.Background(), 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}

	got, is := v.([]interface{})
	if !is {
		t.Fatalf("got %T", v)
	}
	if len(got) != len(xs) {
		t.Fatalf("got %v", got)
	}
	for i, x := range xs {
		if got[i] != x {
			t.Fatalf("got %v", got)
		}
	}
}
