package selector

import (
	"errors"
	"fmt"
	"testing"
)

type testErr struct {
	msg string
}

func (e *testErr) Error() string {
	return e.msg
}

func TestObject(t *testing.T) {
	t.Run("comparable", func(t *testing.T) {
		s := Object("door")
		if !s.Matches("door") {
			t.Fatal("should match its own key")
		}
		if s.Matches("window") {
			t.Fatal("shouldn't match another key")
		}
	})

	t.Run("deep", func(t *testing.T) {
		s := Object([]string{"a", "b"})
		if !s.Matches([]string{"a", "b"}) {
			t.Fatal("should deep-match a slice key")
		}
		if s.Matches([]string{"a"}) {
			t.Fatal("shouldn't match a different slice")
		}
	})
}

func TestAnonymous(t *testing.T) {
	a := Anonymous()
	b := Anonymous()
	if !a.Matches(a.Key()) {
		t.Fatal("should match its own key")
	}
	if a.Matches(b.Key()) {
		t.Fatal("two anonymous selectors shouldn't collide")
	}
}

func TestType(t *testing.T) {
	s := Type((*testErr)(nil))

	t.Run("direct", func(t *testing.T) {
		if !s.Matches(&testErr{msg: "boom"}) {
			t.Fatal("should match the named type")
		}
		if s.Matches(errors.New("boom")) {
			t.Fatal("shouldn't match an unrelated error")
		}
	})

	t.Run("wrapped", func(t *testing.T) {
		wrapped := fmt.Errorf("outer: %w", &testErr{msg: "inner"})
		if !s.Matches(wrapped) {
			t.Fatal("should match through the Unwrap chain")
		}
	})

	t.Run("interface", func(t *testing.T) {
		any := Type((*error)(nil))
		if !any.Matches(errors.New("boom")) {
			t.Fatal("an error-interface selector should match any error")
		}
		if any.Matches("not an error") {
			t.Fatal("shouldn't match a non-error")
		}
	})
}

func TestRegex(t *testing.T) {
	s := MustRegex("^device[.].*$")
	if !s.Matches("device.42") {
		t.Fatal("should match")
	}
	if s.Matches("thing.42") {
		t.Fatal("shouldn't match")
	}
	if s.Matches(42) {
		t.Fatal("shouldn't match a non-string")
	}
	if _, err := Regex("("); err == nil {
		t.Fatal("expected a compile error")
	}
}

func TestURI(t *testing.T) {
	s := URI("/device/{id}/status")

	if !s.Matches("/device/42/status") {
		t.Fatal("should match")
	}
	if s.Matches("/device/42") {
		t.Fatal("shouldn't match a shorter path")
	}
	if s.Matches("/device/42/state") {
		t.Fatal("shouldn't match a different literal")
	}

	vars := s.ResolveHeaders("/device/42/status")
	if vars == nil {
		t.Fatal("expected bindings")
	}
	if vars["id"] != "42" {
		t.Fatalf("id: got %q", vars["id"])
	}
}

func TestPredicate(t *testing.T) {
	s := Predicate(func(key interface{}) bool {
		n, is := key.(int)
		return is && 0 < n
	})
	if !s.Matches(1) {
		t.Fatal("should match")
	}
	if s.Matches(-1) {
		t.Fatal("shouldn't match")
	}
	if s.Matches("one") {
		t.Fatal("shouldn't match a string")
	}
}
