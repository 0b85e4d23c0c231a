/* Copyright 2019-2020 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package timers emits events onto an Observable at scheduled times:
// one-shot after a delay or at an instant, or repeating on a cron
// expression.
package timers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Comcast/flume/core"
	"github.com/Comcast/flume/util"

	"github.com/gorhill/cronexpr"
)

// An Entry represents a pending timer.
type Entry struct {
	Id string

	// Key and Event are what the timer notifies the Observable
	// with when it fires.
	Key   interface{}
	Event *core.Event

	// At is the firing time for a one-shot timer.
	At time.Time

	// Cron, if set, repeats the timer per the expression.
	Cron string

	Ctl chan bool `json:"-"`

	expr   *cronexpr.Expression
	timers *Timers
}

// Timers represents pending timers that notify an Observable.
type Timers struct {
	Map map[string]*Entry

	sync.Mutex

	obs core.Observable
}

// NewTimers creates a Timers that emits onto the given Observable.
func NewTimers(obs core.Observable) *Timers {
	return &Timers{
		Map: make(map[string]*Entry, 8),
		obs: obs,
	}
}

// Add creates a timer that will emit the given event after the given
// delay (if the timer isn't cancelled first).  Adding an id that
// already exists cancels the existing timer instead.
func (ts *Timers) Add(ctx context.Context, id string, key interface{}, ev *core.Event, d time.Duration) error {
	return ts.AddAt(ctx, id, key, ev, time.Now().UTC().Add(d))
}

// AddAt is Add with an absolute firing time.
func (ts *Timers) AddAt(ctx context.Context, id string, key interface{}, ev *core.Event, at time.Time) error {
	util.Logf("Timers.AddAt %s", id)

	ts.Lock()
	defer ts.Unlock()

	return ts.add(ctx, &Entry{
		Id:    id,
		Key:   key,
		Event: ev,
		At:    at,
		Ctl:   make(chan bool),
	})
}

// AddCron creates a repeating timer that emits the given event at
// every time the cron expression names.
func (ts *Timers) AddCron(ctx context.Context, id string, key interface{}, ev *core.Event, expr string) error {
	util.Logf("Timers.AddCron %s %s", id, expr)

	c, err := cronexpr.Parse(expr)
	if err != nil {
		return err
	}

	ts.Lock()
	defer ts.Unlock()

	return ts.add(ctx, &Entry{
		Id:    id,
		Key:   key,
		Event: ev,
		Cron:  expr,
		Ctl:   make(chan bool),
		expr:  c,
	})
}

func (ts *Timers) add(ctx context.Context, e *Entry) error {
	if _, have := ts.Map[e.Id]; have {
		return ts.cancel(ctx, e.Id)
	}

	ts.Map[e.Id] = e
	e.timers = ts

	go e.run(ctx)

	return nil
}

// Cancel attempts to cancel the timer with the given id.
func (ts *Timers) Cancel(ctx context.Context, id string) error {
	ts.Lock()
	err := ts.cancel(ctx, id)
	ts.Unlock()
	return err
}

func (ts *Timers) cancel(ctx context.Context, id string) error {
	util.Logf("Timers.cancel %s", id)

	e, have := ts.Map[id]
	if !have {
		return fmt.Errorf("timer '%s' doesn't exist", id)
	}
	delete(ts.Map, id)

	close(e.Ctl)

	return nil
}

func (ts *Timers) remove(id string) {
	ts.Lock()
	delete(ts.Map, id)
	ts.Unlock()
}

// run fires the entry at the appointed time (or times, for a cron
// entry) unless the entry is cancelled first.
func (e *Entry) run(ctx context.Context) {
	util.Logf("Entry %s run", e.Id)

	if e.expr != nil {
		e.runCron(ctx)
		return
	}

	t := time.NewTimer(time.Until(e.At))
	defer t.Stop()

	select {
	case <-t.C:
		util.Logf("Firing timer '%s'", e.Id)
		e.timers.obs.Notify(e.Key, e.Event)
		e.timers.remove(e.Id)
	case <-e.Ctl:
		util.Logf("Canceling timer '%s'", e.Id)
	case <-ctx.Done():
	}
}

func (e *Entry) runCron(ctx context.Context) {
	for {
		next := e.expr.Next(time.Now())
		if next.IsZero() {
			// The expression names no more times.
			e.timers.remove(e.Id)
			return
		}
		t := time.NewTimer(time.Until(next))
		select {
		case <-t.C:
			util.Logf("Firing cron timer '%s'", e.Id)
			e.timers.obs.Notify(e.Key, e.Event)
		case <-e.Ctl:
			util.Logf("Canceling cron timer '%s'", e.Id)
			t.Stop()
			return
		case <-ctx.Done():
			t.Stop()
			return
		}
	}
}
