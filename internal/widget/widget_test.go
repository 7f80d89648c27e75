package widget

import (
	"errors"
	"sync"
	"testing"

	"openrdm/internal/rdm"
)

func TestNextTransactionNumberWraps(t *testing.T) {
	var w Widget
	w.transactionNumber = 254

	if got := w.nextTransactionNumber(); got != 254 {
		t.Fatalf("first call = %d; want 254", got)
	}
	if got := w.nextTransactionNumber(); got != 255 {
		t.Fatalf("second call = %d; want 255", got)
	}
	if got := w.nextTransactionNumber(); got != 0 {
		t.Fatalf("third call = %d; want 0 (uint8 wraparound)", got)
	}
}

func TestStateOnUnopenedWidget(t *testing.T) {
	var w Widget
	s := w.State()
	if s.Initialized {
		t.Error("Initialized = true on a never-opened widget")
	}
	if s.TOD.Len() != 0 {
		t.Errorf("TOD.Len() = %d; want 0", s.TOD.Len())
	}
}

func TestIsInitializedFalseWithoutTransport(t *testing.T) {
	var w Widget
	if w.IsInitialized() {
		t.Error("IsInitialized() = true before Open()")
	}
}

// replyKind is a canned outcome a fakeResponder hands back to the next
// GET/SET request addressed to it.
type replyKind int

const (
	replyACK replyKind = iota
	replyTimeout
	replyACKTimer
)

// fakeResponder is one simulated RDM device living on a fakeBus.
type fakeResponder struct {
	uid     rdm.UID
	muted   bool
	isProxy bool

	// getQueue is consumed in order by successive GET/SET requests
	// addressed to this responder; once empty, further requests ACK.
	getQueue []replyKind

	// havePending/pendingPID track an ACK_TIMER's queued response: the
	// controller's follow-up GET_QUEUED_MESSAGE must be answered with the
	// original request's PID, not PID_QUEUED_MESSAGE's own.
	havePending bool
	pendingPID  uint16
}

// fakeBus stands in for transport.Transport: it parses whatever RDM frame
// writeRDMRaw sends, plays back the configured responders' reactions, and
// hands the encoded reply back to the next Read the way a real adapter
// would hand back whatever arrived on the wire.
type fakeBus struct {
	mu         sync.Mutex
	responders []*fakeResponder
	pending    [][]byte
	writes     int
}

func newFakeBus(responders ...*fakeResponder) *fakeBus {
	return &fakeBus{responders: responders}
}

func (b *fakeBus) DiscardByte() {}

func (b *fakeBus) Read(buf []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.pending) == 0 {
		return 0, nil
	}
	frame := b.pending[0]
	b.pending = b.pending[1:]
	return copy(buf, frame), nil
}

func (b *fakeBus) Write(frame []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.writes++

	if len(frame) < 24 {
		return nil
	}
	dest, err := rdm.ParseUID(frame[3:9])
	if err != nil {
		return nil
	}
	src, err := rdm.ParseUID(frame[9:15])
	if err != nil {
		return nil
	}
	tn := frame[15]
	cc := frame[20]
	pid := uint16(frame[21])<<8 | uint16(frame[22])
	pdl := int(frame[23])
	pdata := frame[24 : 24+pdl]

	switch {
	case cc == rdm.CCDiscover && pid == rdm.PIDDiscUniqueBranch:
		b.handleDiscUniqueBranch(pdata)
	case cc == rdm.CCDiscover && (pid == rdm.PIDDiscMute || pid == rdm.PIDDiscUnmute):
		b.handleMute(src, dest, tn, pid)
	case cc == rdm.CCGetCommand || cc == rdm.CCSetCommand:
		b.handleData(src, dest, tn, cc, pid)
	}
	return nil
}

func (b *fakeBus) handleDiscUniqueBranch(pdata []byte) {
	if len(pdata) < 12 {
		return
	}
	start, _ := rdm.ParseUID(pdata[0:6])
	end, _ := rdm.ParseUID(pdata[6:12])

	var hit []*fakeResponder
	for _, r := range b.responders {
		if r.muted {
			continue
		}
		if r.uid >= start && r.uid <= end {
			hit = append(hit, r)
		}
	}

	switch len(hit) {
	case 0:
		// No responder in this branch: leave pending empty so the next
		// Read reports a timeout.
	case 1:
		reply := append([]byte{rdm.StartCodeRDM}, rdm.PackDiscoveryResponse(hit[0].uid)...)
		b.pending = append(b.pending, reply)
	default:
		// Two or more responders answer the same branch at once; their
		// AND-paired preambles fail to reproduce any single UID cleanly,
		// so the checksum comes out wrong and discover() must split the
		// range instead of trusting this reply.
		reply := append([]byte{rdm.StartCodeRDM}, rdm.PackDiscoveryResponse(hit[0].uid)...)
		reply[len(reply)-1] ^= 0xFF
		b.pending = append(b.pending, reply)
	}
}

func (b *fakeBus) handleMute(reqSrc, dest rdm.UID, tn uint8, pid uint16) {
	if dest.IsBroadcast() {
		for _, r := range b.responders {
			r.muted = pid == rdm.PIDDiscMute
		}
		return // a broadcast mute/unmute gets no individual ACK
	}
	for _, r := range b.responders {
		if r.uid != dest {
			continue
		}
		r.muted = pid == rdm.PIDDiscMute
		var pdata []byte
		if r.isProxy {
			pdata = []byte{0x00, byte(rdm.ControlManagedProxy)}
		}
		reply := rdm.NewPacket(reqSrc, r.uid, tn, rdm.RespACK, 0, 0, rdm.CCDiscoverResponse, pid, pdata)
		buf := make([]byte, 1+rdm.MaxPDL+3)
		buf[0] = rdm.StartCodeRDM
		n := reply.Pack(buf[1:])
		b.pending = append(b.pending, buf[:1+n])
	}
}

func (b *fakeBus) handleData(reqSrc, dest rdm.UID, tn, cc uint8, pid uint16) {
	for _, r := range b.responders {
		if r.uid != dest {
			continue
		}

		if r.havePending {
			// This is the controller's QUEUED_MESSAGE follow-up to an
			// earlier ACK_TIMER: answer with the original request's PID,
			// not PID_QUEUED_MESSAGE's own.
			r.havePending = false
			b.appendReply(reqSrc, r.uid, tn, rdm.RespACK, cc+1, r.pendingPID, nil)
			return
		}

		kind := replyACK
		if len(r.getQueue) > 0 {
			kind = r.getQueue[0]
			r.getQueue = r.getQueue[1:]
		}
		switch kind {
		case replyTimeout:
			return
		case replyACKTimer:
			r.havePending = true
			r.pendingPID = pid
			b.appendReply(reqSrc, r.uid, tn, rdm.RespACKTimer, cc+1, pid, []byte{0x00, 0x01})
		default:
			b.appendReply(reqSrc, r.uid, tn, rdm.RespACK, cc+1, pid, nil)
		}
	}
}

func (b *fakeBus) appendReply(reqSrc, src rdm.UID, tn, portOrResp, cc uint8, pid uint16, pdata []byte) {
	reply := rdm.NewPacket(reqSrc, src, tn, portOrResp, 0, 0, cc, pid, pdata)
	buf := make([]byte, 1+rdm.MaxPDL+3)
	buf[0] = rdm.StartCodeRDM
	n := reply.Pack(buf[1:])
	b.pending = append(b.pending, buf[:1+n])
}

func TestFullRDMDiscoverySingleResponder(t *testing.T) {
	uid := rdm.NewUID(0x1111, 1)
	bus := newFakeBus(&fakeResponder{uid: uid})
	w := newTestWidget(bus, true)

	tod := w.FullRDMDiscovery()
	if tod.Len() != 1 || !tod.Contains(uid) {
		t.Fatalf("FullRDMDiscovery() = %v; want {%s}", tod.Slice(), uid)
	}
}

func TestFullRDMDiscoveryCollisionSplitsAndFindsBoth(t *testing.T) {
	low := rdm.NewUID(0, 1)
	high := rdm.Max
	bus := newFakeBus(&fakeResponder{uid: low}, &fakeResponder{uid: high})
	w := newTestWidget(bus, true)

	tod := w.FullRDMDiscovery()
	if tod.Len() != 2 || !tod.Contains(low) || !tod.Contains(high) {
		t.Fatalf("FullRDMDiscovery() = %v; want {%s, %s}", tod.Slice(), low, high)
	}
}

func TestSendRDMPacketRetriesPastATimeoutInsteadOfAborting(t *testing.T) {
	uid := rdm.NewUID(0x2222, 1)
	responder := &fakeResponder{uid: uid, getQueue: []replyKind{replyTimeout, replyACK}}
	bus := newFakeBus(responder)
	w := newTestWidget(bus, true)

	pkt := rdm.NewPacket(uid, w.uid, 0, 0, 0, 0, rdm.CCGetCommand, rdm.PIDProxyDevCount, nil)
	resp := w.SendRDMPacket(pkt, defaultRetries, defaultMaxTimeMS)
	if len(resp) != 1 {
		t.Fatalf("SendRDMPacket() returned %d replies; want 1 (a timed-out first attempt must retry, not abort)", len(resp))
	}
	if resp[0].PortOrResp != rdm.RespACK {
		t.Errorf("resp[0].PortOrResp = %d; want RespACK", resp[0].PortOrResp)
	}
}

func TestSendRDMPacketHonoursACKTimer(t *testing.T) {
	uid := rdm.NewUID(0x3333, 1)
	responder := &fakeResponder{uid: uid, getQueue: []replyKind{replyACKTimer}}
	bus := newFakeBus(responder)
	w := newTestWidget(bus, true)

	pkt := rdm.NewPacket(uid, w.uid, 0, 0, 0, 0, rdm.CCGetCommand, rdm.PIDProxyDevCount, nil)
	resp := w.SendRDMPacket(pkt, defaultRetries, defaultMaxTimeMS)
	if len(resp) != 1 || resp[0].PortOrResp != rdm.RespACK {
		t.Fatalf("SendRDMPacket() = %v; want a single ACK after the ACK_TIMER follow-up", resp)
	}
}

func TestSendRDMPacketAbortsImmediatelyOnHardTransportError(t *testing.T) {
	bus := &countingErrorBus{}
	w := newTestWidget(bus, true)

	pkt := rdm.NewPacket(rdm.NewUID(1, 1), w.uid, 0, 0, 0, 0, rdm.CCGetCommand, rdm.PIDProxyDevCount, nil)
	resp := w.SendRDMPacket(pkt, defaultRetries, defaultMaxTimeMS)
	if resp != nil {
		t.Errorf("SendRDMPacket() = %v; want nil on a hard transport error", resp)
	}
	if bus.writes != 1 {
		t.Errorf("bus.writes = %d; want 1 (a hard error must not burn the retry budget)", bus.writes)
	}
}

type countingErrorBus struct {
	writes int
}

func (b *countingErrorBus) Write([]byte) error {
	b.writes++
	return errors.New("fake: hard transport failure")
}
func (b *countingErrorBus) Read([]byte) (int, error) { return 0, nil }
func (b *countingErrorBus) DiscardByte()             {}

func TestWriteDMXAgainstFakeBusCountsFrames(t *testing.T) {
	bus := newFakeBus()
	w := newTestWidget(bus, false)

	w.WriteDMX(make([]byte, 512))
	if got := w.Stats().FramesWritten; got != 1 {
		t.Errorf("FramesWritten = %d; want 1", got)
	}
	if bus.writes != 1 {
		t.Errorf("bus.writes = %d; want 1", bus.writes)
	}
}
