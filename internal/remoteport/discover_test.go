package remoteport

import (
	"net"
	"testing"
	"time"
)

func TestProbeUnreachableHostReportsNotResponding(t *testing.T) {
	// 192.0.2.0/24 is reserved (TEST-NET-1) and never routes, so this dials
	// reliably time out rather than connect.
	r := probe("192.0.2.1", 1, 50*time.Millisecond)
	if r.Responding {
		t.Errorf("probe() on a reserved, unrouted address reported Responding = true")
	}
	if r.Error == "" {
		t.Error("probe() on an unreachable host left Error empty")
	}
}

func TestIncrementIP(t *testing.T) {
	ip := net.ParseIP("192.168.1.255").To4()
	incrementIP(ip)
	if ip.String() != "192.168.2.0" {
		t.Errorf("incrementIP carried incorrectly: got %s; want 192.168.2.0", ip.String())
	}
}

func TestScanRejectsInvalidSubnet(t *testing.T) {
	cfg := NewScanConfig()
	cfg.Subnet = "not-a-cidr"
	if _, err := Scan(cfg); err == nil {
		t.Error("Scan() with an invalid subnet returned nil error")
	}
}
