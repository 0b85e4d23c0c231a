// Package env holds process-wide configuration: the default await
// timeout and named dispatcher profiles loaded from a YAML file.
package env

import (
	"fmt"
	"io/ioutil"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Comcast/flume/dispatch"
	"github.com/Comcast/flume/util"

	"gopkg.in/yaml.v2"
)

// MaxAwaitTimeoutProperty is the configuration knob for the default
// Await timeout.  Its value is an integer with an optional unit
// suffix: "ns", "ms", or "s" (the default unit).  Both the
// property-style name and its environment-variable spelling are
// consulted.
const MaxAwaitTimeoutProperty = "reactor.max.await.timeout"

// DefaultMaxAwaitTimeout applies when the knob is unset or doesn't
// parse.
const DefaultMaxAwaitTimeout = 30 * time.Second

// maxAwaitTimeout is read once at startup.  SetMaxAwaitTimeout can
// override it (for tests).
var maxAwaitTimeout atomic.Value

func init() {
	maxAwaitTimeout.Store(readMaxAwaitTimeout())
}

func readMaxAwaitTimeout() time.Duration {
	s := os.Getenv(MaxAwaitTimeoutProperty)
	if s == "" {
		s = os.Getenv("REACTOR_MAX_AWAIT_TIMEOUT")
	}
	if s == "" {
		return DefaultMaxAwaitTimeout
	}
	d, err := ParseTimeout(s)
	if err != nil {
		// Log and ignore; the default stands.
		util.Logf("env: bad %s %q: %v", MaxAwaitTimeoutProperty, s, err)
		return DefaultMaxAwaitTimeout
	}
	return d
}

// ParseTimeout parses "<integer><ns|ms|s>"; a missing unit means
// seconds.
func ParseTimeout(s string) (time.Duration, error) {
	unit := time.Second
	switch {
	case strings.HasSuffix(s, "ns"):
		s = s[:len(s)-2]
		unit = time.Nanosecond
	case strings.HasSuffix(s, "ms"):
		s = s[:len(s)-2]
		unit = time.Millisecond
	case strings.HasSuffix(s, "s"):
		s = s[:len(s)-1]
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * unit, nil
}

// MaxAwaitTimeout returns the default timeout for Await without an
// explicit timeout.
func MaxAwaitTimeout() time.Duration {
	return maxAwaitTimeout.Load().(time.Duration)
}

// SetMaxAwaitTimeout overrides the default Await timeout.
func SetMaxAwaitTimeout(d time.Duration) {
	maxAwaitTimeout.Store(d)
}

// A DispatcherConf describes one dispatcher profile.
type DispatcherConf struct {
	// Type is "sync", "go", "workqueue", or "ring".
	Type string `yaml:"type"`

	// Size is the ring slot count (type "ring").
	Size int `yaml:"size,omitempty"`

	// Backlog is the queue depth (type "workqueue").
	Backlog int `yaml:"backlog,omitempty"`
}

// A Conf holds named dispatcher profiles.
//
// Example:
//
//	default: fast
//	dispatchers:
//	  fast:
//	    type: ring
//	    size: 1024
//	  background:
//	    type: workqueue
//	    backlog: 256
type Conf struct {
	// Default names the profile NewDefaultDispatcher uses.
	Default string `yaml:"default,omitempty"`

	Dispatchers map[string]DispatcherConf `yaml:"dispatchers,omitempty"`
}

// LoadConf reads a Conf from the given YAML file.
func LoadConf(filename string) (*Conf, error) {
	bs, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return ParseConf(bs)
}

// ParseConf reads a Conf from YAML bytes.
func ParseConf(bs []byte) (*Conf, error) {
	var conf Conf
	if err := yaml.Unmarshal(bs, &conf); err != nil {
		return nil, err
	}
	return &conf, nil
}

// NewDispatcher constructs the named dispatcher profile.
func (c *Conf) NewDispatcher(name string) (dispatch.Dispatcher, error) {
	dc, have := c.Dispatchers[name]
	if !have {
		return nil, fmt.Errorf("unknown dispatcher profile '%s'", name)
	}
	switch dc.Type {
	case "sync", "":
		return dispatch.NewSynchronous(), nil
	case "go":
		return dispatch.NewGo(), nil
	case "workqueue":
		return dispatch.NewWorkQueue(dc.Backlog), nil
	case "ring":
		return dispatch.NewRingBuffer(dc.Size), nil
	default:
		return nil, fmt.Errorf("unknown dispatcher type '%s'", dc.Type)
	}
}

// NewDefaultDispatcher constructs the profile named by Default, or a
// synchronous dispatcher if no default is named.
func (c *Conf) NewDefaultDispatcher() (dispatch.Dispatcher, error) {
	if c.Default == "" {
		return dispatch.NewSynchronous(), nil
	}
	return c.NewDispatcher(c.Default)
}
