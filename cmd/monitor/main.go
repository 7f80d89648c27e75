// Command monitor serves a read-only JSON status page for the ports
// configured via internal/config: overall daemon health, per-port widget
// state, and each port's current table of devices.
package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"openrdm/internal/config"
	"openrdm/internal/diagnostics"
	"openrdm/internal/port"
)

type monitor struct {
	ports     []*port.Port
	sampler   *diagnostics.Sampler
	startTime time.Time
}

func main() {
	listenAddr := flag.String("addr", ":8090", "address to listen on")
	flag.Parse()

	cfg, err := config.LoadDeviceConfig()
	if err != nil {
		log.Fatalf("monitor: load config: %v", err)
	}
	if len(cfg.Ports) == 0 {
		log.Fatal("monitor: no ports configured")
	}

	m := &monitor{sampler: diagnostics.NewSampler(), startTime: time.Now()}
	for i, pc := range cfg.Ports {
		p, err := port.Open(pc, cfg.Verbose, cfg.RDMDebug)
		if err != nil {
			log.Printf("monitor: port %d (%s) opened not-initialized: %v", i, pc.Descriptor, err)
		}
		m.ports = append(m.ports, p)
	}
	defer func() {
		for _, p := range m.ports {
			p.Close()
		}
	}()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/status", m.handleStatus)
	router.GET("/ports", m.handlePorts)
	router.GET("/tod/:port", m.handleTOD)

	srv := &http.Server{Addr: *listenAddr, Handler: router}
	log.Printf("monitor: listening on %s", *listenAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("monitor: serve: %v", err)
	}
}

// handleStatus reports overall daemon health: uptime and a host/per-port
// diagnostics snapshot.
func (m *monitor) handleStatus(c *gin.Context) {
	snapshot := m.sampler.Snapshot(m.ports)
	c.JSON(http.StatusOK, gin.H{
		"uptime_seconds": time.Since(m.startTime).Seconds(),
		"port_count":     len(m.ports),
		"diagnostics":    snapshot,
	})
}

// handlePorts reports each configured port's widget state.
func (m *monitor) handlePorts(c *gin.Context) {
	type portStatus struct {
		Index       int    `json:"index"`
		Descriptor  string `json:"descriptor"`
		UID         string `json:"uid"`
		Initialized bool   `json:"initialized"`
		TODSize     int    `json:"tod_size"`
		LostSize    int    `json:"lost_size"`
		ProxiesSize int    `json:"proxies_size"`
	}

	statuses := make([]portStatus, 0, len(m.ports))
	for i, p := range m.ports {
		state := p.WidgetState()
		statuses = append(statuses, portStatus{
			Index:       i,
			Descriptor:  p.Descriptor(),
			UID:         p.UID().String(),
			Initialized: state.Initialized,
			TODSize:     state.TOD.Len(),
			LostSize:    state.Lost.Len(),
			ProxiesSize: state.Proxies.Len(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"ports": statuses})
}

// handleTOD reports the current table of devices for one port, addressed
// by its configuration index.
func (m *monitor) handleTOD(c *gin.Context) {
	idx, err := strconv.Atoi(c.Param("port"))
	if err != nil || idx < 0 || idx >= len(m.ports) {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("no such port: %s", c.Param("port"))})
		return
	}

	uids := m.ports[idx].TOD().Slice()
	out := make([]string, len(uids))
	for i, u := range uids {
		out[i] = u.String()
	}
	c.JSON(http.StatusOK, gin.H{"port": idx, "tod": out})
}
