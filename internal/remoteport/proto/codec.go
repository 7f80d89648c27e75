package proto

import "encoding/json"

// Codec is a grpc/encoding.Codec that marshals messages as JSON instead of a
// compiled protobuf descriptor, since no protoc-generated .pb.go exists for
// this service. It satisfies the same Marshal/Unmarshal/Name contract
// encoding.Codec requires; wire framing, streaming, and flow control all
// still come from google.golang.org/grpc itself.
type Codec struct{}

func (Codec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (Codec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (Codec) Name() string {
	return "remoteport-json"
}
