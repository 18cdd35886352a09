package syncer

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/synckit/replicate/pkg/crdt"
	"github.com/synckit/replicate/pkg/rpc"
	"github.com/synckit/replicate/pkg/rplerr"
)

type fakeAuthority struct {
	rpc.Authority
	calls   atomic.Int32
	replyFn func(req *rpc.ReplicateRequest) error
}

func (f *fakeAuthority) Replicate(ctx context.Context, req *rpc.ReplicateRequest) (*rpc.ReplicateResponse, error) {
	f.calls.Add(1)
	if f.replyFn != nil {
		if err := f.replyFn(req); err != nil {
			return nil, err
		}
	}
	return &rpc.ReplicateResponse{Cursor: int64(f.calls.Load())}, nil
}

func TestActor_FlushesAfterDebounce(t *testing.T) {
	doc := crdt.NewDoc("client-a")
	doc.Transact(func(txn *crdt.Txn) { txn.SetScalar("title", "hello", 1) })

	authority := &fakeAuthority{}
	a := New("notes", "doc-1", "client-a", doc, authority, nil, WithDebounce(10*time.Millisecond))
	a.Start()
	defer a.Shutdown()

	a.Send(LocalChange{})
	require.Eventually(t, func() bool { return authority.calls.Load() == 1 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return !a.Pending() }, time.Second, time.Millisecond)
}

func TestActor_CollapsesRapidLocalChangesIntoOneFlush(t *testing.T) {
	doc := crdt.NewDoc("client-a")
	authority := &fakeAuthority{}
	a := New("notes", "doc-1", "client-a", doc, authority, nil, WithDebounce(30*time.Millisecond))
	a.Start()
	defer a.Shutdown()

	for i := 0; i < 5; i++ {
		doc.Transact(func(txn *crdt.Txn) { txn.SetScalar("title", "v", int64(i)) })
		a.Send(LocalChange{})
		time.Sleep(2 * time.Millisecond)
	}

	time.Sleep(100 * time.Millisecond)
	require.Equal(t, int32(1), authority.calls.Load())
}

func TestActor_ExternalUpdateAdvancesVectorWithoutFlush(t *testing.T) {
	doc := crdt.NewDoc("client-a")
	authority := &fakeAuthority{}
	a := New("notes", "doc-1", "client-a", doc, authority, nil, WithDebounce(10*time.Millisecond))
	a.Start()
	defer a.Shutdown()

	remote := crdt.NewDoc("client-b")
	remote.Transact(func(txn *crdt.Txn) { txn.SetScalar("body", "remote write", 1) })
	require.NoError(t, doc.Apply(remote.EncodeState()))

	a.Send(ExternalUpdate{Vector: doc.StateVector()})
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, int32(0), authority.calls.Load())
}

func TestActor_NonRetriableErrorBubblesOutWithoutRetrying(t *testing.T) {
	doc := crdt.NewDoc("client-a")
	doc.Transact(func(txn *crdt.Txn) { txn.SetScalar("title", "hello", 1) })

	authority := &fakeAuthority{replyFn: func(req *rpc.ReplicateRequest) error {
		return rplerr.New(rplerr.KindNonRetriable, "replicate", req.Collection, req.Document, nil)
	}}

	var fatal atomic.Int32
	onFatal := func(err error) { fatal.Add(1) }

	a := New("notes", "doc-1", "client-a", doc, authority, onFatal, WithDebounce(10*time.Millisecond))
	a.Start()
	defer a.Shutdown()

	a.Send(LocalChange{})
	require.Eventually(t, func() bool { return fatal.Load() == 1 }, time.Second, time.Millisecond)
	require.Equal(t, int32(1), authority.calls.Load())
}

func TestActor_RetriableErrorExhaustsRetriesAndRecordsLastError(t *testing.T) {
	doc := crdt.NewDoc("client-a")
	doc.Transact(func(txn *crdt.Txn) { txn.SetScalar("title", "hello", 1) })

	authority := &fakeAuthority{replyFn: func(req *rpc.ReplicateRequest) error {
		return rplerr.New(rplerr.KindNetwork, "replicate", req.Collection, req.Document, nil)
	}}

	a := New("notes", "doc-1", "client-a", doc, authority, nil,
		WithDebounce(10*time.Millisecond), WithMaxRetries(2))
	a.Start()
	defer a.Shutdown()

	a.Send(LocalChange{})
	require.Eventually(t, func() bool { return authority.calls.Load() == 3 }, 2*time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return a.LastError() != nil }, time.Second, time.Millisecond)
}

func TestActor_ShutdownStopsProcessingFurtherMessages(t *testing.T) {
	doc := crdt.NewDoc("client-a")
	authority := &fakeAuthority{}
	a := New("notes", "doc-1", "client-a", doc, authority, nil)
	a.Start()
	a.Shutdown()

	doc.Transact(func(txn *crdt.Txn) { txn.SetScalar("title", "v", 1) })
}
