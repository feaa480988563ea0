package client

import (
	"errors"
	"testing"
)

func TestDirectoryAddIdempotent(t *testing.T) {
	d := NewDirectory()
	e := &Entity{ID: 1, Owner: "alice"}

	if err := d.Add(e); err != nil {
		t.Fatal(err)
	}
	if err := d.Add(e); err != nil {
		t.Fatalf("re-adding the same entity: %v", err)
	}
	if d.Len() != 1 {
		t.Fatalf("Len = %d, want 1", d.Len())
	}
}

func TestDirectoryDuplicateID(t *testing.T) {
	d := NewDirectory()
	if err := d.Add(&Entity{ID: 1, Owner: "alice"}); err != nil {
		t.Fatal(err)
	}

	err := d.Add(&Entity{ID: 1, Owner: "bob"})
	if !errors.Is(err, ErrDuplicateEntity) {
		t.Fatalf("err = %v, want ErrDuplicateEntity", err)
	}
	if got := d.Get(1).Owner; got != "alice" {
		t.Fatalf("owner after rejected add = %q, want alice", got)
	}
}

func TestDirectoryRemoveAbsent(t *testing.T) {
	d := NewDirectory()
	if e := d.Remove(42); e != nil {
		t.Fatalf("Remove(42) = %v, want nil", e)
	}
}

func TestDirectoryPartition(t *testing.T) {
	d := NewDirectory()
	for _, e := range []*Entity{
		{ID: 3, Owner: "alice"},
		{ID: 1, Owner: "bob"},
		{ID: 2, Owner: "alice"},
		{ID: 4, Owner: "carol"},
	} {
		if err := d.Add(e); err != nil {
			t.Fatal(err)
		}
	}

	mine, foreign := d.Partition("alice")
	if len(mine) != 2 || mine[0].ID != 2 || mine[1].ID != 3 {
		t.Fatalf("mine = %v, want ids [2 3]", ids(mine))
	}
	if len(foreign) != 2 || foreign[0].ID != 1 || foreign[1].ID != 4 {
		t.Fatalf("foreign = %v, want ids [1 4]", ids(foreign))
	}
}

func TestDirectoryOwnedBySorted(t *testing.T) {
	d := NewDirectory()
	for _, id := range []int{9, 2, 5} {
		if err := d.Add(&Entity{ID: id, Owner: "alice"}); err != nil {
			t.Fatal(err)
		}
	}

	owned := d.OwnedBy("alice")
	want := []int{2, 5, 9}
	for i, e := range owned {
		if e.ID != want[i] {
			t.Fatalf("OwnedBy order = %v, want %v", ids(owned), want)
		}
	}
}

func ids(entities []*Entity) []int {
	out := make([]int, len(entities))
	for i, e := range entities {
		out[i] = e.ID
	}
	return out
}
