package resolve

import (
	"reflect"
	"testing"
)

func TestFuture(t *testing.T) {
	s := &scheduler{}
	f := &future{sched: s}

	var got []DepPath
	f.then(func(dp DepPath) { got = append(got, dp) })
	f.resolve("a@1.0.0")
	f.resolve("b@1.0.0")
	if len(got) != 0 {
		t.Fatalf("waiters ran before drain: %v", got)
	}
	f.then(func(dp DepPath) { got = append(got, dp+"!") })
	s.drain()

	want := []DepPath{"a@1.0.0", "a@1.0.0!"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("waiters saw %v, want %v", got, want)
	}
}

func TestSchedulerFIFO(t *testing.T) {
	s := &scheduler{}
	var order []int
	s.enqueue(func() {
		order = append(order, 1)
		s.enqueue(func() { order = append(order, 3) })
	})
	s.enqueue(func() { order = append(order, 2) })
	s.drain()

	if !reflect.DeepEqual(order, []int{1, 2, 3}) {
		t.Errorf("order = %v, want [1 2 3]", order)
	}
}
