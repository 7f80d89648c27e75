package remoteport

import (
	"fmt"
	"net"
	"sync"
	"time"
)

// ScanResult is one host probed while scanning for remoteport-server
// instances on the local network.
type ScanResult struct {
	Address    string `json:"address"`
	IPAddress  string `json:"ip_address"`
	Port       int    `json:"port"`
	Responding bool   `json:"responding"`
	LatencyMs  int64  `json:"latency_ms"`
	Error      string `json:"error,omitempty"`
}

// ScanConfig configures a network scan for remoteport-server instances.
type ScanConfig struct {
	Subnet          string        // CIDR notation, e.g. "192.168.1.0/24"
	Port            int           // gRPC port to probe
	Timeout         time.Duration // per-host connect timeout
	ConcurrentScans int           // bounded worker pool size
	SkipLocalhost   bool
}

// NewScanConfig returns scan defaults matching remoteport-server's own
// default listen port.
func NewScanConfig() ScanConfig {
	return ScanConfig{
		Port:            8710,
		Timeout:         2 * time.Second,
		ConcurrentScans: 20,
	}
}

// Scan probes every host in cfg.Subnet for a listening remoteport-server.
// This only checks TCP reachability on the configured port; it never issues
// a gRPC call, since any real call on this service (WriteDMX,
// SendRDMRequest, a discovery run) has side effects on physically attached
// hardware that a bystander scan must not trigger.
func Scan(cfg ScanConfig) ([]ScanResult, error) {
	ip, ipnet, err := net.ParseCIDR(cfg.Subnet)
	if err != nil {
		return nil, fmt.Errorf("remoteport: invalid subnet %s: %w", cfg.Subnet, err)
	}

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, cfg.ConcurrentScans)
	results := make(chan ScanResult, 100)

	var ips []string
	for cur := ip.Mask(ipnet.Mask); ipnet.Contains(cur); incrementIP(cur) {
		ips = append(ips, cur.String())
	}

	if !cfg.SkipLocalhost {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- probe("127.0.0.1", cfg.Port, cfg.Timeout)
		}()
	}

	for _, ipStr := range ips {
		wg.Add(1)
		semaphore <- struct{}{}
		go func(host string) {
			defer wg.Done()
			defer func() { <-semaphore }()
			results <- probe(host, cfg.Port, cfg.Timeout)
		}(ipStr)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var found []ScanResult
	for r := range results {
		found = append(found, r)
	}
	return found, nil
}

func probe(ipAddress string, port int, timeout time.Duration) ScanResult {
	address := fmt.Sprintf("%s:%d", ipAddress, port)
	start := time.Now()
	result := ScanResult{Address: address, IPAddress: ipAddress, Port: port}

	conn, err := net.DialTimeout("tcp", address, timeout)
	result.LatencyMs = time.Since(start).Milliseconds()
	if err != nil {
		result.Error = err.Error()
		return result
	}
	conn.Close()

	result.Responding = true
	return result
}

func incrementIP(ip net.IP) {
	for i := len(ip) - 1; i >= 0; i-- {
		ip[i]++
		if ip[i] != 0 {
			break
		}
	}
}
