package selector

import "testing"

func TestRegistryOrder(t *testing.T) {
	r := NewRegistry()
	r.Register(Object("k"), "first")
	r.Register(Object("other"), "nope")
	r.Register(Object("k"), "second")

	found := r.Select("k")
	if len(found) != 2 {
		t.Fatalf("got %d registrations", len(found))
	}
	if found[0].Consumer != "first" || found[1].Consumer != "second" {
		t.Fatal("insertion order not preserved")
	}
}

func TestRegistryCacheInvalidation(t *testing.T) {
	r := NewRegistry()
	r.Register(Object("k"), "first")

	if n := len(r.Select("k")); n != 1 {
		t.Fatalf("got %d registrations", n)
	}

	// A registration after a cached Select must show up.
	r.Register(Object("k"), "second")
	if n := len(r.Select("k")); n != 2 {
		t.Fatalf("got %d registrations after re-register", n)
	}
}

func TestRegistryUncacheableKey(t *testing.T) {
	r := NewRegistry()
	r.Register(Object([]int{1, 2}), "slices")

	// Slice keys can't be cached, but they should still select.
	for i := 0; i < 2; i++ {
		if n := len(r.Select([]int{1, 2})); n != 1 {
			t.Fatalf("got %d registrations", n)
		}
	}
}

func TestRegistryLen(t *testing.T) {
	r := NewRegistry()
	if r.Len() != 0 {
		t.Fatal("expected empty")
	}
	r.Register(Anonymous(), "x")
	if r.Len() != 1 {
		t.Fatal("expected one registration")
	}
}
