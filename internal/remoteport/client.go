package remoteport

import (
	"context"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"openrdm/internal/engine"
	"openrdm/internal/rdm"
	"openrdm/internal/remoteport/proto"
)

// Client dials a remoteport Server and exposes the same four operations
// internal/port.Port does, for the one port addressed by PortIndex.
type Client struct {
	conn      *grpc.ClientConn
	rpc       proto.RemotePortClient
	portIndex int32
}

// Dial connects to a remoteport server at addr and addresses the port at
// portIndex on that server for every subsequent call.
func Dial(addr string, portIndex int32) (*Client, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithDefaultCallOptions(grpc.ForceCodec(proto.Codec{})),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("remoteport: dial %s: %w", addr, err)
	}
	return &Client{conn: conn, rpc: proto.NewRemotePortClient(conn), portIndex: portIndex}, nil
}

// Close tears down the underlying gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// WriteDMX opens a streaming write and sends one frame. Callers driving a
// DMX refresh loop remotely are expected to keep reusing one stream rather
// than calling this per frame; WriteStream exposes that.
func (c *Client) WriteDMX(ctx context.Context, buffer []byte) error {
	stream, err := c.WriteStream(ctx)
	if err != nil {
		return err
	}
	if err := stream.Send(buffer); err != nil {
		return err
	}
	return stream.Close()
}

// FrameWriter is a long-lived handle for streaming DMX frames to one port.
type FrameWriter struct {
	stream    proto.RemotePort_WriteDMXClient
	portIndex int32
}

// WriteStream opens a streaming DMX write to this client's port.
func (c *Client) WriteStream(ctx context.Context) (*FrameWriter, error) {
	stream, err := c.rpc.WriteDMX(ctx)
	if err != nil {
		return nil, fmt.Errorf("remoteport: open WriteDMX stream: %w", err)
	}
	return &FrameWriter{stream: stream, portIndex: c.portIndex}, nil
}

// Send queues one DMX frame on the open stream.
func (w *FrameWriter) Send(buffer []byte) error {
	return w.stream.Send(&proto.DMXFrame{PortIndex: w.portIndex, Data: buffer})
}

// Close ends the stream and waits for the server's ack.
func (w *FrameWriter) Close() error {
	_, err := w.stream.CloseAndRecv()
	return err
}

// SendRDMRequest packs request, sends it to the remote port, and returns the
// single reply it produces.
func (c *Client) SendRDMRequest(ctx context.Context, request rdm.Packet) (engine.Reply, error) {
	buf := make([]byte, 256)
	n := request.Pack(buf)

	stream, err := c.rpc.SendRDMRequest(ctx, &proto.RDMRequest{PortIndex: c.portIndex, Packet: buf[:n]})
	if err != nil {
		return engine.Reply{}, fmt.Errorf("remoteport: SendRDMRequest: %w", err)
	}

	resp, err := stream.Recv()
	if err != nil {
		return engine.Reply{}, fmt.Errorf("remoteport: SendRDMRequest recv: %w", err)
	}

	reply := engine.Reply{Kind: engine.Kind(resp.Kind)}
	if len(resp.Packet) > 0 {
		pkt, err := rdm.Parse(resp.Packet, request.Src)
		if err != nil {
			return engine.Reply{}, fmt.Errorf("remoteport: parse RDM reply: %w", err)
		}
		reply.Packet = pkt
	}
	return reply, nil
}

// RunFullDiscovery triggers a full discovery run on the remote port and
// returns the resulting table of devices as UID strings.
func (c *Client) RunFullDiscovery(ctx context.Context) ([]string, error) {
	stream, err := c.rpc.RunFullDiscovery(ctx, &proto.PortSelector{PortIndex: c.portIndex})
	if err != nil {
		return nil, fmt.Errorf("remoteport: RunFullDiscovery: %w", err)
	}
	snap, err := stream.Recv()
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("remoteport: RunFullDiscovery recv: %w", err)
	}
	if snap == nil {
		return nil, nil
	}
	return snap.UIDs, nil
}

// RunIncrementalDiscovery triggers an incremental discovery run on the
// remote port and returns the UIDs added and removed relative to its table
// of devices before the run.
func (c *Client) RunIncrementalDiscovery(ctx context.Context) (added, removed []string, err error) {
	stream, err := c.rpc.RunIncrementalDiscovery(ctx, &proto.PortSelector{PortIndex: c.portIndex})
	if err != nil {
		return nil, nil, fmt.Errorf("remoteport: RunIncrementalDiscovery: %w", err)
	}
	delta, err := stream.Recv()
	if err != nil && err != io.EOF {
		return nil, nil, fmt.Errorf("remoteport: RunIncrementalDiscovery recv: %w", err)
	}
	if delta == nil {
		return nil, nil, nil
	}
	return delta.Added, delta.Removed, nil
}
