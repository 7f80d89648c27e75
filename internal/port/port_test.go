package port

import (
	"testing"

	"openrdm/internal/config"
)

func TestOpenRejectsEmptyDescriptor(t *testing.T) {
	if _, err := Open(config.PortConfig{}, false, false); err == nil {
		t.Error("Open() with empty descriptor returned nil error")
	}
}

func TestOpenReturnsNonNilPortEvenWhenAdapterFailsToOpen(t *testing.T) {
	// No USB adapter answers this descriptor in a test environment, so the
	// widget underneath fails to open; the port itself is fatal-to-port,
	// not fatal-to-caller, and must still come back usable.
	cfg := config.PortConfig{Descriptor: "no-such-adapter"}
	p, err := Open(cfg, false, false)
	if p == nil {
		t.Fatal("Open() returned a nil *Port alongside a widget-open failure")
	}
	if err == nil {
		t.Error("Open() with no adapter present returned nil error")
	}
	if p.WidgetState().Initialized {
		t.Error("WidgetState().Initialized = true with no adapter present")
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close() on a not-initialized port = %v; want nil", err)
	}
}
