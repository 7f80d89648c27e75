package remoteport

import (
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"openrdm/internal/rdm"
)

func TestServerPortRejectsOutOfRangeIndex(t *testing.T) {
	s := NewServer(nil)

	if _, err := s.port(0); err == nil {
		t.Fatal("port(0) on an empty server returned nil error")
	} else if status.Code(err) != codes.NotFound {
		t.Errorf("port(0) error code = %v; want NotFound", status.Code(err))
	}

	if _, err := s.port(-1); err == nil {
		t.Error("port(-1) returned nil error")
	}
}

func TestUIDStrings(t *testing.T) {
	var a rdm.UID
	got := uidStrings([]rdm.UID{a})
	if len(got) != 1 {
		t.Fatalf("len(uidStrings) = %d; want 1", len(got))
	}
	if got[0] != a.String() {
		t.Errorf("uidStrings()[0] = %q; want %q", got[0], a.String())
	}
}
