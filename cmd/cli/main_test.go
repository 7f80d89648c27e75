package main

import (
	"testing"

	"openrdm/internal/diagnostics"
)

func TestRowsForMapsPortSummaries(t *testing.T) {
	snapshot := diagnostics.Result{
		Ports: []diagnostics.PortSummary{
			{Descriptor: "ttyUSB0", Initialized: true, FPSEstimate: 39.8, TODSize: 3, LostSize: 0, ProxiesSize: 1, LastDiscoveryMS: 120},
			{Descriptor: "ttyUSB1", Initialized: false},
		},
	}

	rows := rowsFor(snapshot)
	if len(rows) != 2 {
		t.Fatalf("len(rows) = %d; want 2", len(rows))
	}
	if rows[0][0] != "ttyUSB0" || rows[0][1] != "up" {
		t.Errorf("rows[0] = %v; want descriptor=ttyUSB0 status=up", rows[0])
	}
	if rows[1][1] != "down" {
		t.Errorf("rows[1] status = %q; want down", rows[1][1])
	}
}

func TestRowsForEmptySnapshot(t *testing.T) {
	rows := rowsFor(diagnostics.Result{})
	if len(rows) != 0 {
		t.Errorf("len(rows) = %d; want 0", len(rows))
	}
}
