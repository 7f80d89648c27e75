package rdm

import "testing"

func TestUIDSetAddContainsLen(t *testing.T) {
	var s UIDSet
	a := NewUID(1, 1)
	b := NewUID(1, 2)

	s.Add(a)
	s.Add(a)
	s.Add(b)

	if s.Len() != 2 {
		t.Errorf("Len() = %d; want 2", s.Len())
	}
	if !s.Contains(a) || !s.Contains(b) {
		t.Error("Contains() missing an inserted member")
	}
	if s.Contains(NewUID(1, 3)) {
		t.Error("Contains() true for a member never added")
	}
}

func TestUIDSetRemove(t *testing.T) {
	a, b := NewUID(1, 1), NewUID(1, 2)
	s := NewUIDSet(a, b)
	s.Remove(a)
	if s.Contains(a) {
		t.Error("Remove() did not remove the member")
	}
	if !s.Contains(b) {
		t.Error("Remove() removed an unrelated member")
	}
}

func TestUIDSetUnion(t *testing.T) {
	a, b, c := NewUID(1, 1), NewUID(1, 2), NewUID(1, 3)
	s1 := NewUIDSet(a, b)
	s2 := NewUIDSet(b, c)

	got := s1.Union(s2)
	want := NewUIDSet(a, b, c)
	if !got.Equal(want) {
		t.Errorf("Union() = %v; want %v", got.Slice(), want.Slice())
	}
}

func TestUIDSetDifference(t *testing.T) {
	a, b, c := NewUID(1, 1), NewUID(1, 2), NewUID(1, 3)
	s1 := NewUIDSet(a, b, c)
	s2 := NewUIDSet(b)

	got := s1.Difference(s2)
	want := NewUIDSet(a, c)
	if !got.Equal(want) {
		t.Errorf("Difference() = %v; want %v", got.Slice(), want.Slice())
	}
}

func TestUIDSetSliceSortedAscending(t *testing.T) {
	a, b, c := NewUID(1, 3), NewUID(1, 1), NewUID(1, 2)
	s := NewUIDSet(a, b, c)

	got := s.Slice()
	for i := 1; i < len(got); i++ {
		if got[i-1] >= got[i] {
			t.Errorf("Slice() not ascending at index %d: %v", i, got)
		}
	}
}

func TestUIDSetEqual(t *testing.T) {
	a, b := NewUID(1, 1), NewUID(1, 2)
	s1 := NewUIDSet(a, b)
	s2 := NewUIDSet(b, a)
	s3 := NewUIDSet(a)

	if !s1.Equal(s2) {
		t.Error("Equal() false for sets with the same members in different insertion order")
	}
	if s1.Equal(s3) {
		t.Error("Equal() true for sets of different size")
	}
}
