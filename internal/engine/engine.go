// Package engine runs the two background loops that own a widget once it
// has been opened: a DMX refresh loop that writes at a bounded cadence (or
// immediately when the buffer changes), and an RDM transaction queue loop
// that serialises GET/SET requests and discovery runs onto the same bus.
package engine

import (
	"sync"
	"time"

	"openrdm/internal/rdm"
	"openrdm/internal/widget"
)

const (
	rdmSemaTimeout = 1000 * time.Millisecond
	rdmQueueMaxLen = 100
)

type jobKind int

const (
	jobData jobKind = iota
	jobFullDiscovery
	jobIncrementalDiscovery
)

// Reply is the result of a queued RDM data transaction.
type Reply struct {
	Packet rdm.Packet
	Kind   Kind
}

// DiscoveryResult is the result of a queued discovery run.
type DiscoveryResult struct {
	TOD  rdm.UIDSet
	Lost rdm.UIDSet // only meaningful for an incremental run
}

type job struct {
	kind    jobKind
	request rdm.Packet
	resultC chan Reply
	discC   chan DiscoveryResult
}

// Engine owns the DMX and RDM goroutines for a single widget.
type Engine struct {
	w          *widget.Widget
	dmxRefresh time.Duration
	rdmEnabled bool

	dmxSema chan struct{}
	dmxMu   sync.Mutex
	dmxData [512]byte
	dmxLen  int

	rdmQueue chan job

	todMu sync.Mutex
	tod   rdm.UIDSet

	exit chan struct{}
	done chan struct{}
}

// New builds an Engine for widget w. dmxRefresh bounds how long a port can
// go without a DMX frame being resent; rdmEnabled gates the RDM queue loop
// exactly like the upstream plugin's --rdm-enabled option.
func New(w *widget.Widget, dmxRefresh time.Duration, rdmEnabled bool) *Engine {
	return &Engine{
		w:          w,
		dmxRefresh: dmxRefresh,
		rdmEnabled: rdmEnabled,
		dmxSema:    make(chan struct{}, 1),
		rdmQueue:   make(chan job, rdmQueueMaxLen),
		exit:       make(chan struct{}),
		done:       make(chan struct{}, 2),
	}
}

// Start launches the DMX loop, and the RDM loop if RDM is enabled.
func (e *Engine) Start() {
	go e.dmxLoop()
	if e.rdmEnabled {
		go e.rdmLoop()
	} else {
		e.done <- struct{}{}
	}
}

// Stop signals both loops to exit and waits for them to finish.
func (e *Engine) Stop() {
	close(e.exit)
	<-e.done
	<-e.done
}

// WriteDMX copies buffer into the pending DMX frame and wakes the DMX
// loop immediately rather than waiting for the next refresh tick.
func (e *Engine) WriteDMX(buffer []byte) {
	e.dmxMu.Lock()
	e.dmxLen = copy(e.dmxData[:], buffer)
	e.dmxMu.Unlock()

	select {
	case e.dmxSema <- struct{}{}:
	default:
	}
}

func (e *Engine) snapshotDMX() []byte {
	e.dmxMu.Lock()
	defer e.dmxMu.Unlock()
	data := make([]byte, e.dmxLen)
	copy(data, e.dmxData[:e.dmxLen])
	return data
}

func (e *Engine) dmxLoop() {
	defer func() { e.done <- struct{}{} }()
	if !e.w.IsInitialized() {
		return
	}

	lastWrite := time.Now()
	for {
		var acquired bool
		select {
		case <-e.exit:
			return
		case <-e.dmxSema:
			acquired = true
		case <-time.After(e.dmxRefresh):
			acquired = false
		}

		if acquired {
			e.w.WriteDMX(e.snapshotDMX())
			lastWrite = time.Now()
		}

		if !acquired || time.Since(lastWrite) >= e.dmxRefresh {
			e.w.WriteDMX(e.snapshotDMX())
			lastWrite = time.Now()
		}
	}
}

// SendRDMRequest enqueues request for the RDM loop and reports the outcome
// on the returned channel. It fails fast with KindPluginDiscoveryNotSupported
// for a DISCOVER-class command (discovery only runs through
// RunFullDiscovery/RunIncrementalDiscovery), KindUnknownUID if the
// destination isn't in the current table of devices, and
// KindFailedToSend if the queue is full or RDM is disabled.
func (e *Engine) SendRDMRequest(request rdm.Packet) <-chan Reply {
	out := make(chan Reply, 1)

	if !e.rdmEnabled {
		out <- Reply{Kind: KindFailedToSend}
		return out
	}
	if request.CC == rdm.CCDiscover {
		out <- Reply{Kind: KindPluginDiscoveryNotSupported}
		return out
	}

	e.todMu.Lock()
	known := e.tod.Contains(request.Dest)
	e.todMu.Unlock()
	if !known {
		out <- Reply{Kind: KindUnknownUID}
		return out
	}

	j := job{kind: jobData, request: request, resultC: out}
	select {
	case e.rdmQueue <- j:
	default:
		out <- Reply{Kind: KindFailedToSend}
	}
	return out
}

// RunFullDiscovery enqueues a full discovery run. If the queue is full, it
// falls back to returning the current table of devices immediately, same
// as the upstream thread's "queue full" path for discovery callbacks.
func (e *Engine) RunFullDiscovery() <-chan DiscoveryResult {
	return e.enqueueDiscovery(jobFullDiscovery)
}

// RunIncrementalDiscovery enqueues an incremental discovery run.
func (e *Engine) RunIncrementalDiscovery() <-chan DiscoveryResult {
	return e.enqueueDiscovery(jobIncrementalDiscovery)
}

func (e *Engine) enqueueDiscovery(kind jobKind) <-chan DiscoveryResult {
	out := make(chan DiscoveryResult, 1)
	j := job{kind: kind, discC: out}
	select {
	case e.rdmQueue <- j:
	default:
		e.todMu.Lock()
		tod := e.tod
		e.todMu.Unlock()
		out <- DiscoveryResult{TOD: tod}
	}
	return out
}

func (e *Engine) rdmLoop() {
	defer func() { e.done <- struct{}{} }()

	// The loop also runs for a not-initialized widget, so every queued job
	// still gets its one reply (a timeout, or an empty table of devices).
	for {
		select {
		case <-e.exit:
			return
		case j := <-e.rdmQueue:
			e.handleJob(j)
		case <-time.After(rdmSemaTimeout):
		}
	}
}

func (e *Engine) handleJob(j job) {
	switch j.kind {
	case jobData:
		reply, ok := e.w.WriteRDM(j.request)
		switch {
		case ok:
			j.resultC <- Reply{Packet: reply, Kind: KindCompletedOK}
		case j.request.Dest.IsBroadcast():
			j.resultC <- Reply{Kind: KindWasBroadcast}
		default:
			j.resultC <- Reply{Kind: KindTimeout}
		}
	case jobFullDiscovery:
		tod := e.w.FullRDMDiscovery()
		e.todMu.Lock()
		e.tod = tod
		e.todMu.Unlock()
		j.discC <- DiscoveryResult{TOD: tod}
	case jobIncrementalDiscovery:
		added, removed := e.w.IncrementalRDMDiscovery()
		e.todMu.Lock()
		e.tod = e.tod.Union(added).Difference(removed)
		tod := e.tod
		e.todMu.Unlock()
		j.discC <- DiscoveryResult{TOD: tod, Lost: removed}
	}
}

// TOD returns the engine's current table of devices.
func (e *Engine) TOD() rdm.UIDSet {
	e.todMu.Lock()
	defer e.todMu.Unlock()
	return e.tod
}
