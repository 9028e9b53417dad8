package transfer

import (
	"context"
	"errors"

	"google.golang.org/grpc"
)

const (
	serviceName = "keeperlink.transfer.Blobs"
	getMethod   = "/" + serviceName + "/Get"
	chunkSize   = 64 << 10
)

var ErrUnexpectedFrame = errors.New("unexpected frame")

// getRequest opens a transfer.
type getRequest struct {
	Hash  Hash      `cbor:"1,keyasint"`
	Token AuthToken `cbor:"2,keyasint"`
}

// frame is one server-stream message: the encoded collection first, then
// for each blob a header followed by its data chunks.
type frame struct {
	Collection []byte    `cbor:"1,keyasint,omitempty"`
	Blob       *BlobInfo `cbor:"2,keyasint,omitempty"`
	Data       []byte    `cbor:"3,keyasint,omitempty"`
}

// cborCodec replaces protobuf as the gRPC message codec.
type cborCodec struct{}

func (cborCodec) Marshal(v any) ([]byte, error)      { return encMode.Marshal(v) }
func (cborCodec) Unmarshal(data []byte, v any) error { return decMode.Unmarshal(data, v) }
func (cborCodec) Name() string                       { return "cbor" }

type blobServer interface {
	Get(ctx context.Context, req *getRequest, stream grpc.ServerStream) error
}

func getHandler(srv any, stream grpc.ServerStream) error {
	req := new(getRequest)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(blobServer).Get(stream.Context(), req, stream)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*blobServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Get",
			Handler:       getHandler,
			ServerStreams: true,
		},
	},
	Metadata: "keeperlink/transfer",
}
