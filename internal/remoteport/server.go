// Package remoteport exposes a set of locally-opened ports over gRPC so a
// host process can run on a different machine than the one with the USB
// adapter physically attached, mirroring this codebase's existing
// hasher-server/hasher-host split for remote device access. The in-process
// internal/port.Port facade remains the primary interface; Server only wraps
// it for the network case.
package remoteport

import (
	"io"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"openrdm/internal/engine"
	"openrdm/internal/port"
	"openrdm/internal/rdm"
	"openrdm/internal/remoteport/proto"
)

// Server fronts a fixed list of already-opened ports, addressed by their
// position in the list, the same indexing cmd/monitor and cmd/cli use.
type Server struct {
	ports []*port.Port
}

// NewServer wraps ports for remote access. It does not own their lifecycle;
// the caller is still responsible for closing them.
func NewServer(ports []*port.Port) *Server {
	return &Server{ports: ports}
}

func (s *Server) port(idx int32) (*port.Port, error) {
	if idx < 0 || int(idx) >= len(s.ports) {
		return nil, status.Errorf(codes.NotFound, "no such port: %d", idx)
	}
	return s.ports[idx], nil
}

// WriteDMX accepts a stream of frames, each addressed to a port index, and
// forwards each to that port's refresh loop without waiting for it to land
// on the wire, acking once the client closes its send side.
func (s *Server) WriteDMX(stream proto.RemotePort_WriteDMXServer) error {
	for {
		frame, err := stream.Recv()
		if err == io.EOF {
			return stream.SendAndClose(&proto.Empty{})
		}
		if err != nil {
			return err
		}

		p, err := s.port(frame.PortIndex)
		if err != nil {
			return err
		}
		p.WriteDMX(frame.Data)
	}
}

// SendRDMRequest parses the packed RDM request, queues it on the addressed
// port's transaction loop, and streams back the single reply it produces.
func (s *Server) SendRDMRequest(req *proto.RDMRequest, stream proto.RemotePort_SendRDMRequestServer) error {
	p, err := s.port(req.PortIndex)
	if err != nil {
		return err
	}

	pkt, err := rdm.Parse(req.Packet, p.UID())
	if err != nil {
		return status.Errorf(codes.InvalidArgument, "parse RDM request: %v", err)
	}

	reply, ok := <-p.SendRDMRequest(pkt)
	if !ok {
		return status.Error(codes.Internal, "RDM transaction loop closed without replying")
	}

	resp := &proto.RDMResponse{Kind: int32(reply.Kind)}
	if reply.Kind == engine.KindCompletedOK {
		buf := make([]byte, 1+25+rdm.MaxPDL)
		buf[0] = rdm.StartCodeRDM
		n := reply.Packet.Pack(buf[1:])
		resp.Packet = buf[:1+n]
	}
	return stream.Send(resp)
}

// RunFullDiscovery queues a full discovery run on the addressed port and
// streams back the resulting table of devices as a single snapshot.
func (s *Server) RunFullDiscovery(sel *proto.PortSelector, stream proto.RemotePort_RunFullDiscoveryServer) error {
	p, err := s.port(sel.PortIndex)
	if err != nil {
		return err
	}

	result, ok := <-p.RunFullDiscovery()
	if !ok {
		return status.Error(codes.Internal, "discovery loop closed without a result")
	}
	return stream.Send(&proto.TODSnapshot{UIDs: uidStrings(result.TOD.Slice())})
}

// RunIncrementalDiscovery snapshots the port's table of devices before
// queueing an incremental discovery run, then streams back what the run
// added and removed relative to that snapshot.
func (s *Server) RunIncrementalDiscovery(sel *proto.PortSelector, stream proto.RemotePort_RunIncrementalDiscoveryServer) error {
	p, err := s.port(sel.PortIndex)
	if err != nil {
		return err
	}

	before := p.TOD()
	result, ok := <-p.RunIncrementalDiscovery()
	if !ok {
		return status.Error(codes.Internal, "discovery loop closed without a result")
	}

	added := result.TOD.Difference(before)
	return stream.Send(&proto.TODDelta{
		Added:   uidStrings(added.Slice()),
		Removed: uidStrings(result.Lost.Slice()),
	})
}

func uidStrings(uids []rdm.UID) []string {
	out := make([]string, len(uids))
	for i, u := range uids {
		out[i] = u.String()
	}
	return out
}
