// Package config loads device and port settings from environment variables
// and an optional .env file in the project root, the same precedence and
// file format used elsewhere in this codebase.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// PortConfig describes one FTDI adapter to open at startup.
type PortConfig struct {
	Descriptor string // USB descriptor string, e.g. "s:0x0403:0x6001:A1000000"
	RefreshMS  int    // DMX refresh cadence in milliseconds
	RDMEnabled bool
}

// DeviceConfig is the top-level configuration: how many ports to open and
// the settings for each.
type DeviceConfig struct {
	PortCount int
	Ports     []PortConfig
	Verbose   bool
	RDMDebug  bool
}

const (
	defaultRefreshMS = 25
	defaultPortCount = 1
)

var (
	deviceConfig *DeviceConfig
	configLoaded bool
)

// LoadDeviceConfig loads and caches the device configuration. Environment
// variables always take precedence over values read from .env.
func LoadDeviceConfig() (*DeviceConfig, error) {
	if deviceConfig != nil && configLoaded {
		return deviceConfig, nil
	}

	raw := map[string]string{}

	projectRoot := findProjectRoot()
	envPath := filepath.Join(projectRoot, ".env")
	if data, err := os.ReadFile(envPath); err == nil {
		parseEnvFile(string(data), raw)
	}
	for _, kv := range os.Environ() {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) == 2 && strings.HasPrefix(parts[0], "OPENRDM_") {
			raw[parts[0]] = parts[1]
		}
	}

	cfg := &DeviceConfig{
		PortCount: intOrDefault(raw["OPENRDM_PORT_COUNT"], defaultPortCount),
		Verbose:   boolOrDefault(raw["OPENRDM_VERBOSE"], false),
		RDMDebug:  boolOrDefault(raw["OPENRDM_RDM_DEBUG"], false),
	}

	for i := 0; i < cfg.PortCount; i++ {
		prefix := fmt.Sprintf("OPENRDM_PORT_%d_", i)
		cfg.Ports = append(cfg.Ports, PortConfig{
			Descriptor: raw[prefix+"DESCRIPTOR"],
			RefreshMS:  intOrDefault(raw[prefix+"REFRESH_MS"], defaultRefreshMS),
			RDMEnabled: boolOrDefault(raw[prefix+"RDM_ENABLED"], false),
		})
	}

	deviceConfig = cfg
	configLoaded = true
	return cfg, nil
}

func parseEnvFile(content string, dst map[string]string) {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		dst[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
}

func findProjectRoot() string {
	cwd, _ := os.Getwd()
	if _, err := os.Stat(filepath.Join(cwd, ".env")); err == nil {
		return cwd
	}
	for {
		if _, err := os.Stat(filepath.Join(cwd, "go.mod")); err == nil {
			return cwd
		}
		parent := filepath.Dir(cwd)
		if parent == cwd {
			return cwd
		}
		cwd = parent
	}
}

func intOrDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func boolOrDefault(s string, def bool) bool {
	if s == "" {
		return def
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return def
	}
	return b
}

// MustGetDeviceConfig loads the configuration and panics if no port
// descriptors were supplied, matching this codebase's Must-prefixed
// accessor convention for required startup configuration.
func MustGetDeviceConfig() DeviceConfig {
	cfg, err := LoadDeviceConfig()
	if err != nil {
		panic(fmt.Sprintf("openrdm: config: %v", err))
	}
	if len(cfg.Ports) == 0 || cfg.Ports[0].Descriptor == "" {
		panic("openrdm: at least one OPENRDM_PORT_0_DESCRIPTOR must be set (env or .env)")
	}
	return *cfg
}
