// Package widget drives a single FTDI adapter: DMX output and the RDM
// request/response state machine (mute, discovery, proxy bookkeeping) that
// sit on top of the raw transport and packet codec.
package widget

import (
	"errors"
	"log"
	"sync"
	"time"

	"openrdm/internal/rdm"
	"openrdm/internal/transport"
)

const (
	defaultRetries   = 10
	defaultMaxTimeMS = 2000.0
)

// bus is the slice of *transport.Transport a widget actually uses. It lets
// tests drive the RDM/DMX state machine against a fake responder instead of
// real USB hardware.
type bus interface {
	Write(frame []byte) error
	Read(buf []byte) (int, error)
	DiscardByte()
}

// State is a snapshot of a widget's discovered-device bookkeeping, safe to
// read without holding any of the widget's internal locks.
type State struct {
	UID          rdm.UID
	Initialized  bool
	TOD          rdm.UIDSet
	Lost         rdm.UIDSet
	Proxies      rdm.UIDSet
	DiscoveryRun bool
}

// Stats is a snapshot of a widget's throughput bookkeeping, used by the
// diagnostics package to report per-port health without touching the
// transport directly.
type Stats struct {
	FramesWritten     uint64
	LastFrameAt       time.Time
	LastDiscoveryTook time.Duration
}

// Widget owns one Transport and the RDM session state (transaction number,
// table of devices, known proxies) addressed through it.
type Widget struct {
	descriptor string
	verbose    bool
	rdmEnabled bool
	rdmDebug   bool

	devMu sync.Mutex
	t     bus

	uid rdm.UID

	stateMu             sync.Mutex
	initialized         bool
	discoveryInProgress bool
	transactionNumber   uint8
	tod, lost, proxies  rdm.UIDSet

	framesWritten     uint64
	lastFrameAt       time.Time
	lastDiscoveryTook time.Duration
}

// Open opens the adapter at descriptor and derives a controller UID from
// it. rdmEnabled gates FullRDMDiscovery and IncrementalRDMDiscovery, which
// return empty sets when it is false; WriteRDM and SendRDMPacket do not
// check it.
//
// Open always returns a non-nil Widget, even when the underlying transport
// fails to open: a failed adapter is fatal to the port it backs, not to the
// caller, so every method gated on IsInitialized keeps surfacing the
// failure per call instead of the widget disappearing outright.
func Open(descriptor string, rdmEnabled, verbose, rdmDebug bool) (*Widget, error) {
	w := &Widget{
		descriptor: descriptor,
		verbose:    verbose,
		rdmEnabled: rdmEnabled,
		rdmDebug:   rdmDebug,
		uid:        rdm.GenerateControllerUID(descriptor),
	}

	t, err := transport.Open(descriptor)
	if err != nil {
		return w, err
	}
	w.t = t
	w.initialized = true
	return w, nil
}

// TestBus is the method set a fake transport must implement to drive a
// Widget from another package's tests, matching bus exactly.
type TestBus = bus

// NewWithTransport builds a Widget wired directly to t, bypassing
// transport.Open, for engine/port tests exercising the RDM/DMX state
// machine against a fake bus instead of real USB hardware.
func NewWithTransport(t TestBus, rdmEnabled bool) *Widget {
	return newTestWidget(t, rdmEnabled)
}

// newTestWidget builds a Widget wired directly to a fake bus, bypassing
// transport.Open, for tests exercising the RDM/DMX state machine without
// real USB hardware.
func newTestWidget(t bus, rdmEnabled bool) *Widget {
	return &Widget{
		descriptor:  "test",
		rdmEnabled:  rdmEnabled,
		uid:         rdm.NewUID(0x7a70, 0x00000001),
		t:           t,
		initialized: true,
	}
}

// Close tears down the underlying transport.
func (w *Widget) Close() error {
	w.stateMu.Lock()
	w.initialized = false
	w.stateMu.Unlock()
	if c, ok := w.t.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// IsInitialized reports whether the widget has a live transport.
func (w *Widget) IsInitialized() bool {
	w.stateMu.Lock()
	defer w.stateMu.Unlock()
	return w.initialized
}

// UID returns the controller's own RDM UID.
func (w *Widget) UID() rdm.UID { return w.uid }

// Descriptor returns the USB descriptor string this widget was opened with.
func (w *Widget) Descriptor() string { return w.descriptor }

// State returns a snapshot of the widget's discovery bookkeeping.
func (w *Widget) State() State {
	w.stateMu.Lock()
	defer w.stateMu.Unlock()
	return State{
		UID:          w.uid,
		Initialized:  w.initialized,
		TOD:          w.tod,
		Lost:         w.lost,
		Proxies:      w.proxies,
		DiscoveryRun: w.discoveryInProgress,
	}
}

// Stats returns a snapshot of the widget's throughput bookkeeping.
func (w *Widget) Stats() Stats {
	w.stateMu.Lock()
	defer w.stateMu.Unlock()
	return Stats{
		FramesWritten:     w.framesWritten,
		LastFrameAt:       w.lastFrameAt,
		LastDiscoveryTook: w.lastDiscoveryTook,
	}
}

func (w *Widget) nextTransactionNumber() uint8 {
	w.stateMu.Lock()
	defer w.stateMu.Unlock()
	tn := w.transactionNumber
	w.transactionNumber++
	return tn
}

// WriteDMX sends one DMX512 frame. It never returns an error for a
// transient USB dropout; the caller's refresh loop will simply try again
// next cycle, matching the upstream widget's fire-and-forget semantics.
func (w *Widget) WriteDMX(data []byte) {
	if !w.IsInitialized() {
		return
	}
	frame := make([]byte, len(data)+1)
	frame[0] = rdm.StartCodeDMX
	copy(frame[1:], data)

	w.devMu.Lock()
	err := w.t.Write(frame)
	w.devMu.Unlock()

	if err != nil {
		if w.verbose {
			log.Printf("widget: dmx write failed: %v", err)
		}
		return
	}

	w.stateMu.Lock()
	w.framesWritten++
	w.lastFrameAt = time.Now()
	w.stateMu.Unlock()
}

// errNotInitialized reports that the widget has no live transport to write
// to; it is a hard error, never a timeout.
var errNotInitialized = errors.New("widget: not initialized")

// writeRDMRaw sends frame (already including the RDM start code) and reads
// back whatever response arrives within the transport's read timeout.
// isDiscover skips the break-marker discard byte a DISC_UNIQUE_BRANCH
// reply never sends.
//
// A nil, nil return means an ordinary read timeout (no device responded in
// time), which callers retrying a request must treat like a NACK, not abort
// on. A non-nil error means the transport itself failed and the caller
// should give up immediately.
func (w *Widget) writeRDMRaw(frame []byte, isDiscover bool) ([]byte, error) {
	if !w.IsInitialized() {
		return nil, errNotInitialized
	}

	w.devMu.Lock()
	defer w.devMu.Unlock()

	if err := w.t.Write(frame); err != nil {
		return nil, err
	}
	if !isDiscover {
		w.t.DiscardByte()
	}

	buf := make([]byte, 513)
	n, err := w.t.Read(buf)
	if err != nil {
		var te *transport.TransportError
		if errors.As(err, &te) && te.Kind == transport.KindTimeout {
			return nil, nil
		}
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}
	return buf[:n], nil
}

// WriteRDM sends pkt exactly once and parses whatever reply arrives,
// without the retry/ACK_TIMER handling SendRDMPacket applies. This is the
// raw single-transaction primitive the RDM transaction queue uses for
// ordinary GET/SET requests it is handed from outside the widget.
func (w *Widget) WriteRDM(pkt rdm.Packet) (rdm.Packet, bool) {
	buf := make([]byte, 1+25+rdm.MaxPDL)
	buf[0] = rdm.StartCodeRDM
	n := pkt.Pack(buf[1:])

	respBytes, err := w.writeRDMRaw(buf[:1+n], false)
	if err != nil || respBytes == nil {
		return rdm.Packet{}, false
	}
	reply, err := rdm.Parse(respBytes, w.uid)
	if err != nil {
		return rdm.Packet{}, false
	}
	return reply, true
}

// SendRDMPacket transmits pkt and waits for a matching reply, retrying on
// NACK/timeout and honouring ACK_TIMER/ACK_OVERFLOW as described by the
// response-handling rules: up to retries extra attempts (the first send
// never counts as a retry), bounded by maxTimeMS of wall-clock time, with
// an ACK_TIMER reply converted into a GET QUEUED_MESSAGE/STATUS_ERROR
// follow-up per the delay it reports.
func (w *Widget) SendRDMPacket(pkt rdm.Packet, retries int, maxTimeMS float64) []rdm.Packet {
	var resp []rdm.Packet
	retryTimeMS := maxTimeMS
	start := time.Now()
	wantPID := pkt.PID

	for attempt := 0; attempt <= retries; attempt++ {
		if attempt != 0 {
			pkt.TN = w.nextTransactionNumber()
		}
		if attempt > 0 && float64(time.Since(start).Milliseconds()) > maxTimeMS {
			break
		}

		buf := make([]byte, 1+25+rdm.MaxPDL)
		buf[0] = rdm.StartCodeRDM
		n := pkt.Pack(buf[1:])
		respBytes, err := w.writeRDMRaw(buf[:1+n], false)
		if err != nil {
			return nil
		}
		if respBytes == nil {
			// Ordinary read timeout: no device responded in time. Retry
			// like a NACK instead of aborting the whole retry budget.
			continue
		}

		reply, err := rdm.Parse(respBytes, w.uid)
		if err != nil {
			continue
		}
		if reply.TN != pkt.TN || reply.PID != wantPID {
			continue
		}

		if reply.CC == rdm.CCDiscoverResponse || pkt.CC == rdm.CCDiscover {
			if reply.PortOrResp == rdm.RespACK {
				resp = append(resp, reply)
				break
			}
			continue
		}

		if reply.CC != rdm.CCGetCommandResp && reply.CC != rdm.CCSetCommandResp {
			continue
		}

		switch reply.PortOrResp {
		case rdm.RespACK:
			resp = append(resp, reply)
			return resp
		case rdm.RespACKOverflow:
			resp = append(resp, reply)
		case rdm.RespACKTimer:
			if reply.PDL != 2 {
				continue
			}
			retryTimeMS = 100 * float64(uint16(reply.PData[0])<<8|uint16(reply.PData[1]))
			pkt.CC = rdm.CCGetCommand
			pkt.PID = rdm.PIDQueuedMessage
			pkt.PDL = 1
			pkt.PData[0] = rdm.StatusError
			sleep := retryTimeMS
			if maxTimeMS < sleep {
				sleep = maxTimeMS
			}
			time.Sleep(time.Duration(sleep) * time.Millisecond)
		case rdm.RespNACKReason:
			// fall through to the next attempt
		}
	}

	return resp
}

// sendMute sends a DISC_MUTE (or DISC_UNMUTE) to addr and reports whether a
// device responded and whether it identified itself as a managed proxy.
func (w *Widget) sendMute(addr rdm.UID, unmute bool) (ok, isProxy bool) {
	pid := rdm.PIDDiscMute
	if unmute {
		pid = rdm.PIDDiscUnmute
	}
	msg := rdm.NewPacket(addr, w.uid, w.nextTransactionNumber(), 0x1, 0, 0, rdm.CCDiscover, uint16(pid), nil)

	if w.rdmDebug {
		log.Printf("widget: sending mute=%v to %s", !unmute, addr)
	}

	resp := w.SendRDMPacket(msg, defaultRetries, defaultMaxTimeMS)
	if len(resp) == 0 {
		return false, false
	}
	if resp[0].Src != addr {
		return false, false
	}

	if resp[0].PDL == 0x02 || resp[0].PDL == 0x08 {
		control := uint16(resp[0].PData[0])<<8 | uint16(resp[0].PData[1])
		isProxy = control&rdm.ControlManagedProxy != 0
	}
	return true, isProxy
}

// discover implements the binary-search branch of the discovery algorithm
// over the inclusive UID range [start, end].
func (w *Widget) discover(start, end rdm.UID) rdm.UIDSet {
	muteUID := start

	if start != end {
		var pdata [12]byte
		start.Pack(pdata[0:6])
		end.Pack(pdata[6:12])

		discMsg := rdm.NewPacket(rdm.Broadcast, w.uid, w.nextTransactionNumber(), 0x1, 0, 0,
			rdm.CCDiscover, rdm.PIDDiscUniqueBranch, pdata[:])

		buf := make([]byte, 1+rdm.MaxPDL+3)
		buf[0] = rdm.StartCodeRDM
		n := discMsg.Pack(buf[1:])
		respBytes, err := w.writeRDMRaw(buf[:1+n], true)
		if err != nil || respBytes == nil {
			// A hard transport error and a plain timeout (no device in
			// this branch, or a collision with no parseable response) both
			// end this branch the same way.
			return rdm.UIDSet{}
		}

		if w.rdmDebug {
			log.Printf("widget: discovery response % x", respBytes)
		}

		uid, err := rdm.ParseDiscoveryResponse(respBytes)
		if err != nil {
			if w.rdmDebug {
				log.Printf("widget: invalid discovery response: %v", err)
			}
			span := uint64(end-start) + 1
			lowerMax := start + rdm.UID(span/2) - 1
			lower := w.discover(start, lowerMax)
			upper := w.discover(lowerMax+1, end)
			return lower.Union(upper)
		}
		muteUID = uid
	}

	ok, isProxy := w.sendMute(muteUID, false)
	if !ok {
		return rdm.UIDSet{}
	}

	found := rdm.NewUIDSet(muteUID)
	if !isProxy {
		return found
	}
	return found.Union(w.getProxyTOD(muteUID))
}

// getProxyTOD fetches a managed proxy's own table of devices.
func (w *Widget) getProxyTOD(addr rdm.UID) rdm.UIDSet {
	msg := rdm.NewPacket(addr, w.uid, w.nextTransactionNumber(), 0x1, 0, 0,
		rdm.CCGetCommand, rdm.PIDProxiedDevices, nil)

	resp := w.SendRDMPacket(msg, defaultRetries, defaultMaxTimeMS)
	tod := rdm.UIDSet{}
	for _, r := range resp {
		if r.PDL > 0xE4 {
			continue
		}
		for i := 0; i+6 <= int(r.PDL); i += 6 {
			u, err := rdm.ParseUID(r.PData[i : i+6])
			if err == nil {
				tod.Add(u)
			}
		}
	}
	return tod
}

// hasProxyTODChanged polls a proxy's change counter.
func (w *Widget) hasProxyTODChanged(addr rdm.UID) bool {
	msg := rdm.NewPacket(addr, w.uid, w.nextTransactionNumber(), 0x1, 0, 0,
		rdm.CCGetCommand, rdm.PIDProxyDevCount, nil)

	resp := w.SendRDMPacket(msg, defaultRetries, defaultMaxTimeMS)
	if len(resp) == 0 {
		return false
	}
	if resp[0].PDL != 0x03 {
		return false
	}
	return resp[0].PData[2] != 0
}

// FullRDMDiscovery unmutes every device on the bus and runs a fresh binary
// search over the entire UID space, replacing the widget's table of
// devices outright.
func (w *Widget) FullRDMDiscovery() rdm.UIDSet {
	if !w.IsInitialized() || !w.rdmEnabled {
		return rdm.UIDSet{}
	}

	w.stateMu.Lock()
	if w.discoveryInProgress {
		w.stateMu.Unlock()
		return rdm.UIDSet{}
	}
	w.discoveryInProgress = true
	w.lost = rdm.UIDSet{}
	w.proxies = rdm.UIDSet{}
	w.stateMu.Unlock()

	start := time.Now()
	w.sendMute(rdm.Broadcast, true)
	tod := w.discover(0, rdm.Max)

	if w.verbose {
		for _, u := range tod.Slice() {
			log.Printf("widget: rdm device discovered: %s", u)
		}
	}

	w.stateMu.Lock()
	w.tod = tod
	w.discoveryInProgress = false
	w.lastDiscoveryTook = time.Since(start)
	w.stateMu.Unlock()

	return tod
}

// IncrementalRDMDiscovery re-verifies the existing table of devices and any
// previously lost devices, then runs a fresh binary search and reconciles
// proxy sub-device tables, returning the sets of newly found and newly
// lost UIDs.
func (w *Widget) IncrementalRDMDiscovery() (found, newLost rdm.UIDSet) {
	if !w.IsInitialized() || !w.rdmEnabled {
		return rdm.UIDSet{}, rdm.UIDSet{}
	}

	w.stateMu.Lock()
	if w.discoveryInProgress {
		w.stateMu.Unlock()
		return rdm.UIDSet{}, rdm.UIDSet{}
	}
	w.discoveryInProgress = true
	tod := w.tod
	lost := w.lost
	proxies := w.proxies
	w.stateMu.Unlock()

	found = rdm.UIDSet{}
	newLost = rdm.UIDSet{}
	newProxies := rdm.UIDSet{}

	start := time.Now()
	w.sendMute(rdm.Broadcast, true)

	for _, u := range tod.Slice() {
		ok, isProxy := w.sendMute(u, false)
		if !ok {
			newLost.Add(u)
			proxies.Remove(u)
			continue
		}
		if isProxy {
			newProxies.Add(u)
			proxies.Add(u)
		} else {
			proxies.Remove(u)
		}
	}
	for _, u := range lost.Slice() {
		ok, isProxy := w.sendMute(u, false)
		if !ok {
			continue
		}
		found.Add(u)
		if isProxy && !proxies.Contains(u) {
			newProxies.Add(u)
			proxies.Add(u)
		}
	}

	discovered := w.discover(0, rdm.Max)

	for _, proxyUID := range proxies.Slice() {
		if !newProxies.Contains(proxyUID) {
			if !w.hasProxyTODChanged(proxyUID) {
				continue
			}
		}
		discovered = discovered.Union(w.getProxyTOD(proxyUID))
	}

	for _, u := range discovered.Slice() {
		newLost.Remove(u)
		if !tod.Contains(u) {
			found.Add(u)
		}
	}

	newTOD := tod.Difference(newLost).Union(found)
	newLostSet := lost.Union(newLost).Difference(found)

	if w.verbose {
		for _, u := range newLost.Slice() {
			log.Printf("widget: rdm device lost: %s", u)
		}
		for _, u := range found.Slice() {
			log.Printf("widget: rdm device discovered: %s", u)
		}
	}

	w.stateMu.Lock()
	w.tod = newTOD
	w.lost = newLostSet
	w.proxies = proxies
	w.discoveryInProgress = false
	w.lastDiscoveryTook = time.Since(start)
	w.stateMu.Unlock()

	return found, newLost
}
