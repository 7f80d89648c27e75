package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"openrdm/internal/diagnostics"
)

func newTestRouter(m *monitor) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/status", m.handleStatus)
	router.GET("/ports", m.handlePorts)
	router.GET("/tod/:port", m.handleTOD)
	return router
}

func TestHandleStatusWithNoPorts(t *testing.T) {
	m := &monitor{sampler: diagnostics.NewSampler(), startTime: time.Now()}
	router := newTestRouter(m)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d; want 200", rec.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if body["port_count"].(float64) != 0 {
		t.Errorf("port_count = %v; want 0", body["port_count"])
	}
}

func TestHandlePortsWithNoPorts(t *testing.T) {
	m := &monitor{sampler: diagnostics.NewSampler(), startTime: time.Now()}
	router := newTestRouter(m)

	req := httptest.NewRequest(http.MethodGet, "/ports", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d; want 200", rec.Code)
	}

	var body struct {
		Ports []interface{} `json:"ports"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if len(body.Ports) != 0 {
		t.Errorf("len(Ports) = %d; want 0", len(body.Ports))
	}
}

func TestHandleTODOutOfRange(t *testing.T) {
	m := &monitor{sampler: diagnostics.NewSampler(), startTime: time.Now()}
	router := newTestRouter(m)

	req := httptest.NewRequest(http.MethodGet, "/tod/0", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status code = %d; want 404", rec.Code)
	}
}

func TestHandleTODNonNumeric(t *testing.T) {
	m := &monitor{sampler: diagnostics.NewSampler(), startTime: time.Now()}
	router := newTestRouter(m)

	req := httptest.NewRequest(http.MethodGet, "/tod/not-a-number", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status code = %d; want 404", rec.Code)
	}
}
