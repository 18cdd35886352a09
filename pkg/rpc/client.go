package rpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/synckit/replicate/pkg/types"
)

// serviceName is the gRPC service path Authority's methods are invoked
// under. There is no .proto descriptor behind it; it only needs to be a
// stable string both ends agree on.
const serviceName = "replicate.Authority"

// Dial opens a connection to the authority at addr using creds for
// transport security, selecting the JSON codec registered in codec.go as
// the default call content subtype. Callers that need mTLS build their own credentials.TransportCredentials
// and pass it in; Dial never constructs certificates itself.
func Dial(addr string, creds credentials.TransportCredentials, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	opts = append(opts,
		grpc.WithTransportCredentials(creds),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	)
	cc, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("rpc: dial %s: %w", addr, err)
	}
	return cc, nil
}

type grpcAuthority struct {
	cc *grpc.ClientConn
}

// NewGRPCAuthority wraps an already-dialed connection as an Authority.
func NewGRPCAuthority(cc *grpc.ClientConn) Authority {
	return &grpcAuthority{cc: cc}
}

func fullMethod(rpcName string) string {
	return "/" + serviceName + "/" + rpcName
}

func (a *grpcAuthority) Protocol(ctx context.Context) (*ProtocolInfo, error) {
	var out ProtocolInfo
	if err := a.cc.Invoke(ctx, fullMethod("Protocol"), &struct{}{}, &out); err != nil {
		return nil, fmt.Errorf("rpc: protocol: %w", err)
	}
	return &out, nil
}

func (a *grpcAuthority) Stream(ctx context.Context, collection string, cursor int64, limit int) (*StreamBatch, error) {
	req := struct {
		Collection string `json:"collection"`
		Cursor     int64  `json:"cursor"`
		Limit      int    `json:"limit"`
	}{collection, cursor, limit}

	var out StreamBatch
	if err := a.cc.Invoke(ctx, fullMethod("Stream"), &req, &out); err != nil {
		return nil, fmt.Errorf("rpc: stream %s: %w", collection, err)
	}
	return &out, nil
}

func (a *grpcAuthority) Replicate(ctx context.Context, req *ReplicateRequest) (*ReplicateResponse, error) {
	var out ReplicateResponse
	if err := a.cc.Invoke(ctx, fullMethod("Replicate"), req, &out); err != nil {
		return nil, fmt.Errorf("rpc: replicate %s/%s: %w", req.Collection, req.Document, err)
	}
	return &out, nil
}

func (a *grpcAuthority) Recovery(ctx context.Context, collection string, vector types.StateVector) (*RecoveryResponse, error) {
	req := struct {
		Collection string            `json:"collection"`
		Vector     types.StateVector `json:"vector"`
	}{collection, vector}

	var out RecoveryResponse
	if err := a.cc.Invoke(ctx, fullMethod("Recovery"), &req, &out); err != nil {
		return nil, fmt.Errorf("rpc: recovery %s: %w", collection, err)
	}
	return &out, nil
}

func (a *grpcAuthority) Mark(ctx context.Context, req *MarkRequest) error {
	if err := a.cc.Invoke(ctx, fullMethod("Mark"), req, &struct{}{}); err != nil {
		return fmt.Errorf("rpc: mark %s/%s: %w", req.Collection, req.Document, err)
	}
	return nil
}

func (a *grpcAuthority) Compact(ctx context.Context, collection string) error {
	req := struct {
		Collection string `json:"collection"`
	}{collection}
	if err := a.cc.Invoke(ctx, fullMethod("Compact"), &req, &struct{}{}); err != nil {
		return fmt.Errorf("rpc: compact %s: %w", collection, err)
	}
	return nil
}

func (a *grpcAuthority) Presence(ctx context.Context, req *PresenceRequest) error {
	if err := a.cc.Invoke(ctx, fullMethod("Presence"), req, &struct{}{}); err != nil {
		return fmt.Errorf("rpc: presence: %w", err)
	}
	return nil
}

func (a *grpcAuthority) Session(ctx context.Context) (<-chan *SessionEvent, error) {
	stream, err := a.cc.NewStream(ctx, &grpc.StreamDesc{ServerStreams: true}, fullMethod("Session"))
	if err != nil {
		return nil, fmt.Errorf("rpc: session: %w", err)
	}
	if err := stream.SendMsg(&struct{}{}); err != nil {
		return nil, fmt.Errorf("rpc: session send: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return nil, fmt.Errorf("rpc: session close send: %w", err)
	}

	events := make(chan *SessionEvent)
	go func() {
		defer close(events)
		for {
			var ev SessionEvent
			if err := stream.RecvMsg(&ev); err != nil {
				return
			}
			select {
			case events <- &ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, nil
}
