package rdm

// UIDSet is an ordered set of UIDs. Insertion order is not observable;
// iteration order is ascending by UID value so that two sets built from the
// same members compare equal via reflect.DeepEqual in tests.
type UIDSet struct {
	members map[UID]struct{}
}

// NewUIDSet builds a set containing the given UIDs, deduplicated.
func NewUIDSet(uids ...UID) UIDSet {
	s := UIDSet{members: make(map[UID]struct{}, len(uids))}
	for _, u := range uids {
		s.members[u] = struct{}{}
	}
	return s
}

// Add inserts u, a no-op if already present.
func (s *UIDSet) Add(u UID) {
	if s.members == nil {
		s.members = make(map[UID]struct{})
	}
	s.members[u] = struct{}{}
}

// Remove deletes u, a no-op if absent.
func (s *UIDSet) Remove(u UID) {
	delete(s.members, u)
}

// Contains reports whether u is a member.
func (s UIDSet) Contains(u UID) bool {
	_, ok := s.members[u]
	return ok
}

// Len returns the number of members.
func (s UIDSet) Len() int {
	return len(s.members)
}

// Slice returns the members sorted ascending.
func (s UIDSet) Slice() []UID {
	out := make([]UID, 0, len(s.members))
	for u := range s.members {
		out = append(out, u)
	}
	sortUIDs(out)
	return out
}

// Union returns a new set containing members of both s and other.
func (s UIDSet) Union(other UIDSet) UIDSet {
	out := NewUIDSet(s.Slice()...)
	for u := range other.members {
		out.Add(u)
	}
	return out
}

// Difference returns a new set containing members of s not present in other.
func (s UIDSet) Difference(other UIDSet) UIDSet {
	out := UIDSet{members: make(map[UID]struct{})}
	for u := range s.members {
		if !other.Contains(u) {
			out.Add(u)
		}
	}
	return out
}

// Equal reports whether s and other contain exactly the same members.
func (s UIDSet) Equal(other UIDSet) bool {
	if s.Len() != other.Len() {
		return false
	}
	for u := range s.members {
		if !other.Contains(u) {
			return false
		}
	}
	return true
}

func sortUIDs(uids []UID) {
	// Insertion sort: discovery results and TOD snapshots are small
	// (tens to low hundreds of devices), so O(n^2) is not a concern and
	// avoids pulling in sort.Slice's reflection overhead for this hot path.
	for i := 1; i < len(uids); i++ {
		v := uids[i]
		j := i - 1
		for j >= 0 && uids[j] > v {
			uids[j+1] = uids[j]
			j--
		}
		uids[j+1] = v
	}
}
