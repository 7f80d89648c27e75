// Package port is the public facade a DMX/RDM controller talks to: open
// one Port per configured adapter, write DMX frames to it, and queue RDM
// requests and discovery runs through it. It owns the widget and the
// engine goroutines backing it and hides both behind a small surface.
package port

import (
	"fmt"
	"time"

	"openrdm/internal/config"
	"openrdm/internal/engine"
	"openrdm/internal/rdm"
	"openrdm/internal/widget"
)

// Port is one opened adapter with its background DMX/RDM loops running.
type Port struct {
	w *widget.Widget
	e *engine.Engine
}

// Open opens the adapter described by cfg and starts its DMX refresh loop
// (and RDM transaction loop, if enabled).
//
// Open always returns a non-nil *Port, even when the adapter itself fails
// to open: that failure is fatal to this port, not to the caller, so the
// port starts anyway with a not-initialized widget and every RDM/DMX
// operation on it keeps surfacing the failure per call. The widget does not
// retry opening the adapter. An empty descriptor is treated the same way,
// without any attempt to open an adapter. The returned error is non-nil in
// these cases so the caller can log it; callers must not drop the port from
// their set because of it.
func Open(cfg config.PortConfig, verbose, rdmDebug bool) (*Port, error) {
	var w *widget.Widget
	var err error
	if cfg.Descriptor == "" {
		w, err = &widget.Widget{}, fmt.Errorf("port: empty descriptor")
	} else {
		w, err = widget.Open(cfg.Descriptor, cfg.RDMEnabled, verbose, rdmDebug)
		if err != nil {
			err = fmt.Errorf("port: open %s: %w", cfg.Descriptor, err)
		}
	}

	refresh := time.Duration(cfg.RefreshMS) * time.Millisecond
	if refresh <= 0 {
		refresh = 25 * time.Millisecond
	}

	e := engine.New(w, refresh, cfg.RDMEnabled)
	e.Start()

	return &Port{w: w, e: e}, err
}

// Close stops the background loops and closes the underlying transport.
func (p *Port) Close() error {
	p.e.Stop()
	return p.w.Close()
}

// UID returns this port's own RDM controller UID.
func (p *Port) UID() rdm.UID { return p.w.UID() }

// WriteDMX queues buffer for the next DMX frame, waking the refresh loop
// immediately rather than waiting for its next bounded-cadence tick.
func (p *Port) WriteDMX(buffer []byte) { p.e.WriteDMX(buffer) }

// SendRDMRequest queues request onto the RDM transaction loop and returns a
// channel that receives exactly one Reply.
func (p *Port) SendRDMRequest(request rdm.Packet) <-chan engine.Reply {
	return p.e.SendRDMRequest(request)
}

// RunFullDiscovery queues a full RDM discovery run.
func (p *Port) RunFullDiscovery() <-chan engine.DiscoveryResult {
	return p.e.RunFullDiscovery()
}

// RunIncrementalDiscovery queues an incremental RDM discovery run.
func (p *Port) RunIncrementalDiscovery() <-chan engine.DiscoveryResult {
	return p.e.RunIncrementalDiscovery()
}

// TOD returns the port's current table of devices.
func (p *Port) TOD() rdm.UIDSet { return p.e.TOD() }

// WidgetState returns the underlying widget's discovered-device snapshot.
func (p *Port) WidgetState() widget.State { return p.w.State() }

// WidgetStats returns the underlying widget's throughput bookkeeping.
func (p *Port) WidgetStats() widget.Stats { return p.w.Stats() }

// Descriptor returns the USB descriptor string this port was opened with.
func (p *Port) Descriptor() string { return p.w.Descriptor() }
