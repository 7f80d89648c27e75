//go:build linux

package diagnostics

import (
	"fmt"
	"log"
	"net"
	"time"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/link"
	"github.com/cilium/ebpf/ringbuf"
	"github.com/cilium/ebpf/rlimit"
)

// schedTickEvent matches the struct emitted by the attached XDP program: a
// single kernel timestamp per observed packet on the watched interface.
type schedTickEvent struct {
	TimestampNS uint64
}

// bpfObjects holds the loaded program and map. Real object loading (a
// compiled sched_tick.bpf.o) is not wired up here; loadBpfObjects is a stub,
// same as the codebase this was adapted from.
type bpfObjects struct {
	XDPSchedTick *ebpf.Program `ebpf:"xdp_sched_tick"`
	TickEvents   *ebpf.Map     `ebpf:"tick_events"`
}

func (o *bpfObjects) Close() error {
	if o.XDPSchedTick != nil {
		o.XDPSchedTick.Close()
	}
	if o.TickEvents != nil {
		o.TickEvents.Close()
	}
	return nil
}

func loadBpfObjects(obj *bpfObjects, opts *ebpf.CollectionOptions) error {
	// TODO: load the compiled sched_tick.bpf.o once it exists; until then
	// this sampler is wired but inert.
	return nil
}

// LatencySampler attaches an XDP program to a network interface purely as a
// coarse scheduling-latency proxy for this process. It does not and cannot
// observe USB bulk transfers directly: the dependency set here has no USB
// eBPF hook point, so every measurement from this sampler is a best-effort
// secondary signal, never the primary DMX/RDM timing source.
type LatencySampler struct {
	objs    bpfObjects
	xdpLink link.Link
	reader  *ringbuf.Reader
	iface   string
}

// NewLatencySampler attaches to the named network interface.
func NewLatencySampler(iface string) (*LatencySampler, error) {
	if err := rlimit.RemoveMemlock(); err != nil {
		return nil, fmt.Errorf("diagnostics: remove memlock rlimit: %w", err)
	}

	objs := bpfObjects{}
	if err := loadBpfObjects(&objs, nil); err != nil {
		return nil, fmt.Errorf("diagnostics: load ebpf objects: %w", err)
	}

	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		objs.Close()
		return nil, fmt.Errorf("diagnostics: interface %s: %w", iface, err)
	}

	l, err := link.AttachXDP(link.XDPOptions{
		Program:   objs.XDPSchedTick,
		Interface: ifi.Index,
	})
	if err != nil {
		objs.Close()
		return nil, fmt.Errorf("diagnostics: attach xdp on %s: %w", iface, err)
	}

	reader, err := ringbuf.NewReader(objs.TickEvents)
	if err != nil {
		l.Close()
		objs.Close()
		return nil, fmt.Errorf("diagnostics: ring buffer reader: %w", err)
	}

	return &LatencySampler{objs: objs, xdpLink: l, reader: reader, iface: iface}, nil
}

// Close releases the XDP link, ring buffer reader, and loaded programs.
func (s *LatencySampler) Close() {
	if s.xdpLink != nil {
		if err := s.xdpLink.Close(); err != nil {
			log.Printf("diagnostics: close xdp link: %v", err)
		}
	}
	if s.reader != nil {
		if err := s.reader.Close(); err != nil {
			log.Printf("diagnostics: close ring buffer: %v", err)
		}
	}
	s.objs.Close()
}

// SampleLatency blocks until one scheduling-latency sample arrives and
// returns the elapsed time between the kernel timestamp and now.
func (s *LatencySampler) SampleLatency() (time.Duration, error) {
	record, err := s.reader.Read()
	if err != nil {
		if err == ringbuf.ErrClosed {
			return 0, fmt.Errorf("diagnostics: ring buffer closed")
		}
		return 0, fmt.Errorf("diagnostics: read ring buffer: %w", err)
	}
	if len(record.RawSample) < 8 {
		return 0, fmt.Errorf("diagnostics: short ring buffer record")
	}

	var evt schedTickEvent
	evt.TimestampNS = uint64(record.RawSample[0]) | uint64(record.RawSample[1])<<8 |
		uint64(record.RawSample[2])<<16 | uint64(record.RawSample[3])<<24 |
		uint64(record.RawSample[4])<<32 | uint64(record.RawSample[5])<<40 |
		uint64(record.RawSample[6])<<48 | uint64(record.RawSample[7])<<56

	return time.Duration(uint64(time.Now().UnixNano()) - evt.TimestampNS), nil
}
