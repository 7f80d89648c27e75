// Package proto defines the wire messages and gRPC service contract for the
// remote Port facade: one service, four RPCs, mirroring this codebase's
// existing hasher-server/hasher-host client/server split but carrying DMX
// frames, RDM requests/replies, and discovery snapshots instead of hashing
// jobs.
//
// A real deployment of this service would compile these from a .proto file
// with protoc-gen-go/protoc-gen-go-grpc. That toolchain is not run here, so
// the generated-style client/server stubs in service.go are hand-written
// against the same RemotePortClient/RemotePortServer shape protoc-gen-go-grpc
// produces, and the messages below are carried over the wire with the JSON
// codec defined in codec.go (forced on each connection with
// grpc.ForceCodec/grpc.ForceServerCodec) rather than a compiled protobuf
// descriptor.
package proto

// DMXFrame is one DMX512 frame destined for a single port.
type DMXFrame struct {
	PortIndex int32  `json:"port_index"`
	Data      []byte `json:"data"`
}

// RDMRequest carries a packed RDM request packet for a single port.
type RDMRequest struct {
	PortIndex int32  `json:"port_index"`
	Packet    []byte `json:"packet"`
}

// RDMResponse carries one RDM transaction outcome: the Kind mirrors
// internal/engine.Kind, and Packet is populated only when Kind reports a
// packet was actually received.
type RDMResponse struct {
	Kind   int32  `json:"kind"`
	Packet []byte `json:"packet,omitempty"`
}

// PortSelector addresses one configured port by its configuration index.
type PortSelector struct {
	PortIndex int32 `json:"port_index"`
}

// Empty carries no data; used for RPCs that take no arguments.
type Empty struct{}

// TODSnapshot is a full table-of-devices as of one discovery run.
type TODSnapshot struct {
	UIDs []string `json:"uids"`
}

// TODDelta is the change in table-of-devices produced by an incremental
// discovery run.
type TODDelta struct {
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
}
