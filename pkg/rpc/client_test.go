package rpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/synckit/replicate/pkg/types"
)

// fakeAuthorityServer is a hand-wired gRPC service (no generated stubs,
// matching client.go's own cc.Invoke calls) used to exercise
// grpcAuthority against a real connection.
type fakeAuthorityServer struct {
	protocolResp   ProtocolInfo
	replicateResp  ReplicateResponse
	sessionEvents  []*SessionEvent
}

func (s *fakeAuthorityServer) serviceDesc() grpc.ServiceDesc {
	return grpc.ServiceDesc{
		ServiceName: serviceName,
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{
			{
				MethodName: "Protocol",
				Handler: func(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
					var req struct{}
					if err := dec(&req); err != nil {
						return nil, err
					}
					return &s.protocolResp, nil
				},
			},
			{
				MethodName: "Replicate",
				Handler: func(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
					var req ReplicateRequest
					if err := dec(&req); err != nil {
						return nil, err
					}
					return &s.replicateResp, nil
				},
			},
		},
		Streams: []grpc.StreamDesc{
			{
				StreamName:    "Session",
				ServerStreams: true,
				Handler: func(srv any, stream grpc.ServerStream) error {
					var req struct{}
					if err := stream.RecvMsg(&req); err != nil {
						return err
					}
					for _, ev := range s.sessionEvents {
						if err := stream.SendMsg(ev); err != nil {
							return err
						}
					}
					return nil
				},
			},
		},
	}
}

func startFakeAuthority(t *testing.T, fake *fakeAuthorityServer) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := grpc.NewServer()
	desc := fake.serviceDesc()
	srv.RegisterService(&desc, nil)

	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	return lis.Addr().String()
}

func dialFake(t *testing.T, addr string) *grpc.ClientConn {
	t.Helper()
	cc, err := Dial(addr, insecure.NewCredentials())
	require.NoError(t, err)
	t.Cleanup(func() { cc.Close() })
	return cc
}

func TestGRPCAuthority_Protocol(t *testing.T) {
	fake := &fakeAuthorityServer{protocolResp: ProtocolInfo{Version: 3}}
	addr := startFakeAuthority(t, fake)
	cc := dialFake(t, addr)
	authority := NewGRPCAuthority(cc)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	info, err := authority.Protocol(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, info.Version)
}

func TestGRPCAuthority_Replicate(t *testing.T) {
	fake := &fakeAuthorityServer{replicateResp: ReplicateResponse{Cursor: 42}}
	addr := startFakeAuthority(t, fake)
	cc := dialFake(t, addr)
	authority := NewGRPCAuthority(cc)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := authority.Replicate(ctx, &ReplicateRequest{
		Collection: "notes",
		Document:   "doc-1",
		Op:         "update",
		Delta:      []byte("delta-bytes"),
		Before:     types.StateVector{"client-a": 1},
		ClientID:   "client-a",
	})
	require.NoError(t, err)
	require.Equal(t, int64(42), resp.Cursor)
}

func TestGRPCAuthority_Session(t *testing.T) {
	fake := &fakeAuthorityServer{sessionEvents: []*SessionEvent{
		{Type: "joined", ClientID: "client-b"},
		{Type: "left", ClientID: "client-c"},
	}}
	addr := startFakeAuthority(t, fake)
	cc := dialFake(t, addr)
	authority := NewGRPCAuthority(cc)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	events, err := authority.Session(ctx)
	require.NoError(t, err)

	var got []*SessionEvent
	for ev := range events {
		got = append(got, ev)
	}
	require.Len(t, got, 2)
	require.Equal(t, "joined", got[0].Type)
	require.Equal(t, "left", got[1].Type)
}
