package selector

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
)

// A Selector decides whether a notification key is addressed to it.
//
// Selectors are used as subscription keys on an event bus.  An
// implementation's Matches should be cheap and must be safe for
// concurrent use.
type Selector interface {
	// Matches reports whether the given notification key is
	// addressed to this selector.
	Matches(key interface{}) bool

	// Key returns the canonical notification key for direct
	// addressing, or nil if the selector has no single key (for
	// example a regex selector).
	Key() interface{}
}

// A HeaderResolver is a Selector that can extract headers from a key
// it matched.  The bus merges these headers into the delivered event.
type HeaderResolver interface {
	ResolveHeaders(key interface{}) map[string]string
}

// anonKey exists only to have a unique address.
type anonKey struct{ _ byte }

// ObjectSelector matches a key equal to its own.
//
// Comparable keys are compared with ==; anything else falls back to
// reflect.DeepEqual.
type ObjectSelector struct {
	key interface{}
}

// Object creates a Selector that matches keys equal to the given one.
func Object(key interface{}) *ObjectSelector {
	return &ObjectSelector{key: key}
}

// Anonymous creates a Selector with a fresh, unique identity.  Only
// the value returned by Key matches it.
func Anonymous() *ObjectSelector {
	return &ObjectSelector{key: &anonKey{}}
}

func (s *ObjectSelector) Key() interface{} {
	return s.key
}

func (s *ObjectSelector) Matches(key interface{}) bool {
	if isComparable(s.key) && isComparable(key) {
		return s.key == key
	}
	return reflect.DeepEqual(s.key, key)
}

func (s *ObjectSelector) String() string {
	return fmt.Sprintf("Object(%v)", s.key)
}

// isComparable reports whether == is safe for the given value.
func isComparable(x interface{}) bool {
	if x == nil {
		return true
	}
	return reflect.TypeOf(x).Comparable()
}

// TypeSelector matches keys by type assignability.
//
// A key matches when its dynamic type is assignable to the selector's
// type or, when the selector's type is an interface, implements it.
// For keys that are errors, the Unwrap chain is also consulted, so a
// selector for a wrapped error type still fires.  This is how
// exception-class routing works: notify with the error value itself
// as the key.
type TypeSelector struct {
	t reflect.Type
}

// Type creates a TypeSelector.
//
// The argument may be a reflect.Type or any value whose type should
// be matched.  A typed nil pointer such as (*SomeError)(nil) works
// and is the usual way to name a type without constructing one.  A
// typed nil pointer to an interface, such as (*error)(nil), names the
// interface itself.
func Type(x interface{}) *TypeSelector {
	if t, is := x.(reflect.Type); is {
		return &TypeSelector{t: t}
	}
	t := reflect.TypeOf(x)
	if t != nil && t.Kind() == reflect.Ptr && t.Elem().Kind() == reflect.Interface {
		t = t.Elem()
	}
	return &TypeSelector{t: t}
}

func (s *TypeSelector) Key() interface{} {
	return nil
}

func (s *TypeSelector) Matches(key interface{}) bool {
	if key == nil || s.t == nil {
		return false
	}
	if t, is := key.(reflect.Type); is {
		return assignable(t, s.t)
	}
	if assignable(reflect.TypeOf(key), s.t) {
		return true
	}
	if err, is := key.(error); is {
		for {
			if err = errors.Unwrap(err); err == nil {
				return false
			}
			if assignable(reflect.TypeOf(err), s.t) {
				return true
			}
		}
	}
	return false
}

func (s *TypeSelector) String() string {
	return fmt.Sprintf("Type(%v)", s.t)
}

func assignable(t, target reflect.Type) bool {
	if t == nil || target == nil {
		return false
	}
	if target.Kind() == reflect.Interface {
		return t.Implements(target)
	}
	return t.AssignableTo(target)
}

// RegexSelector matches string keys against a regular expression.
type RegexSelector struct {
	re *regexp.Regexp
}

// Regex creates a Selector from the given regular expression, which
// must compile.
func Regex(expr string) (*RegexSelector, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	return &RegexSelector{re: re}, nil
}

// MustRegex is Regex that panics on a bad expression.
func MustRegex(expr string) *RegexSelector {
	s, err := Regex(expr)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *RegexSelector) Key() interface{} {
	return nil
}

func (s *RegexSelector) Matches(key interface{}) bool {
	str, is := key.(string)
	if !is {
		return false
	}
	return s.re.MatchString(str)
}

func (s *RegexSelector) String() string {
	return fmt.Sprintf("Regex(%s)", s.re)
}

// URISelector matches string keys against a '/'-separated path
// template.  A segment of the form {name} matches any single segment
// and captures it.  Captured segments are surfaced as event headers
// by the bus.
type URISelector struct {
	template string
	segments []string
}

// URI creates a Selector from a path template such as
// "/device/{id}/status".
func URI(template string) *URISelector {
	return &URISelector{
		template: template,
		segments: splitPath(template),
	}
}

func (s *URISelector) Key() interface{} {
	return nil
}

func (s *URISelector) Matches(key interface{}) bool {
	return s.match(key) != nil
}

// ResolveHeaders returns the path variables bound by the match, or
// nil if the key doesn't match.
func (s *URISelector) ResolveHeaders(key interface{}) map[string]string {
	return s.match(key)
}

func (s *URISelector) match(key interface{}) map[string]string {
	str, is := key.(string)
	if !is {
		return nil
	}
	given := splitPath(str)
	if len(given) != len(s.segments) {
		return nil
	}
	vars := make(map[string]string)
	for i, seg := range s.segments {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			vars[seg[1:len(seg)-1]] = given[i]
			continue
		}
		if seg != given[i] {
			return nil
		}
	}
	return vars
}

func (s *URISelector) String() string {
	return fmt.Sprintf("URI(%s)", s.template)
}

func splitPath(p string) []string {
	return strings.Split(strings.Trim(p, "/"), "/")
}

// PredicateSelector delegates matching to a function.
type PredicateSelector struct {
	f func(key interface{}) bool
}

// Predicate creates a Selector from the given function.
func Predicate(f func(key interface{}) bool) *PredicateSelector {
	return &PredicateSelector{f: f}
}

func (s *PredicateSelector) Key() interface{} {
	return nil
}

func (s *PredicateSelector) Matches(key interface{}) bool {
	return s.f(key)
}
