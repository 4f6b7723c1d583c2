package cache

import (
	"strings"
	"testing"
)

func TestSerializeCallNoArgs(t *testing.T) {
	if got := SerializeCall("getProducts"); got != "getProducts" {
		t.Fatalf("SerializeCall = %q", got)
	}
}

func TestSerializeCallBasicArgs(t *testing.T) {
	got := SerializeCall("getProduct", "p1", 42, true)
	want := "getProduct::p1::42::true"
	if got != want {
		t.Fatalf("SerializeCall = %q, want %q", got, want)
	}
}

func TestSerializeCallMapDeterministic(t *testing.T) {
	m := map[string]int{"zebra": 1, "alpha": 2, "mango": 3}

	first := SerializeCall("query", m)
	for range 50 {
		if got := SerializeCall("query", m); got != first {
			t.Fatalf("map serialization unstable: %q vs %q", got, first)
		}
	}
	if !strings.Contains(first, "alpha=2") {
		t.Fatalf("missing sorted pair in %q", first)
	}
	if strings.Index(first, "alpha") > strings.Index(first, "zebra") {
		t.Fatalf("map keys not sorted: %q", first)
	}
}

func TestSerializeCallNilAndPointers(t *testing.T) {
	if got := SerializeCall("op", nil); got != "op::nil" {
		t.Fatalf("nil arg = %q", got)
	}

	var p *int
	if got := SerializeCall("op", p); got != "op::nil" {
		t.Fatalf("nil pointer = %q", got)
	}

	n := 7
	if got := SerializeCall("op", &n); got != "op::7" {
		t.Fatalf("pointer deref = %q", got)
	}
}

func TestSerializeCallSlices(t *testing.T) {
	if got := SerializeCall("op", []string{"a", "b"}); got != "op::[a,b]" {
		t.Fatalf("slice = %q", got)
	}
	var empty []string
	if got := SerializeCall("op", empty); got != "op::[]" {
		t.Fatalf("nil slice = %q", got)
	}
}

func TestSerializeCallStruct(t *testing.T) {
	type filter struct {
		Category string
		MaxPrice float64
		hidden   bool // unexported fields are excluded
	}

	got := SerializeCall("search", filter{Category: "drinks", MaxPrice: 9.9, hidden: true})
	want := "search::(Category:drinks,MaxPrice:9.9)"
	if got != want {
		t.Fatalf("struct = %q, want %q", got, want)
	}
}

func TestSerializeCallDistinguishesArgs(t *testing.T) {
	a := SerializeCall("op", "x", "y")
	b := SerializeCall("op", "xy")
	if a == b {
		t.Fatalf("distinct argument lists collided: %q", a)
	}
}
