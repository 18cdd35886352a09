package storage

import (
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/synckit/replicate/pkg/rplerr"
)

// Adapter is the single entry point for durable state: it owns the blob
// KV face and the SQL face and funnels every mutation through one writer
// goroutine.
type Adapter struct {
	kv  KV
	sql SQLStore

	jobs     chan job
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	closed   atomic.Bool
	faultErr atomic.Value // error
}

type job struct {
	fn   func() error
	done chan error
}

// NewAdapter wires a blob KV face and a SQL face behind one serialized
// writer.
func NewAdapter(kv KV, sql SQLStore) *Adapter {
	a := &Adapter{
		kv:     kv,
		sql:    sql,
		jobs:   make(chan job, 64),
		stopCh: make(chan struct{}),
	}
	a.wg.Add(1)
	go a.run()
	return a
}

func (a *Adapter) run() {
	defer a.wg.Done()
	for {
		select {
		case j := <-a.jobs:
			if a.closed.Load() {
				j.done <- a.rejection()
				continue
			}
			j.done <- a.execute(j.fn)
		case <-a.stopCh:
			a.drain()
			return
		}
	}
}

func (a *Adapter) execute(fn func() error) error {
	err := fn()
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		a.fault(err)
	}
	return err
}

func (a *Adapter) fault(cause error) {
	if a.closed.CompareAndSwap(false, true) {
		a.faultErr.Store(rplerr.New(rplerr.KindStorageIO, "adapter", "", "", cause))
	}
}

func (a *Adapter) drain() {
	for {
		select {
		case j := <-a.jobs:
			j.done <- a.rejection()
		default:
			return
		}
	}
}

func (a *Adapter) rejection() error {
	if err, ok := a.faultErr.Load().(error); ok {
		return err
	}
	return rplerr.New(rplerr.KindActorShutdown, "adapter", "", "", nil)
}

// submit runs fn on the writer goroutine and blocks for its result. If
// the adapter is already closed, fn never runs and submit returns the
// fault that closed it.
func (a *Adapter) submit(fn func() error) error {
	if a.closed.Load() {
		return a.rejection()
	}
	j := job{fn: fn, done: make(chan error, 1)}
	select {
	case a.jobs <- j:
	case <-a.stopCh:
		return a.rejection()
	}
	return <-j.done
}

// KVGet reads a blob key.
func (a *Adapter) KVGet(key string) ([]byte, error) {
	var value []byte
	err := a.submit(func() error {
		v, err := a.kv.Get(key)
		value = v
		return err
	})
	return value, err
}

// KVSet writes a blob key.
func (a *Adapter) KVSet(key string, value []byte) error {
	return a.submit(func() error { return a.kv.Set(key, value) })
}

// KVDelete removes a blob key.
func (a *Adapter) KVDelete(key string) error {
	return a.submit(func() error { return a.kv.Delete(key) })
}

// KVListKeys lists blob keys under prefix.
func (a *Adapter) KVListKeys(prefix string) ([]string, error) {
	var keys []string
	err := a.submit(func() error {
		k, err := a.kv.ListKeys(prefix)
		keys = k
		return err
	})
	return keys, err
}

// SQLExec runs a statement that returns no rows.
func (a *Adapter) SQLExec(query string, args ...any) error {
	return a.submit(func() error { return a.sql.Exec(query, args...) })
}

// SQLGet runs query and returns its first row.
func (a *Adapter) SQLGet(query string, args ...any) (map[string]any, error) {
	var row map[string]any
	err := a.submit(func() error {
		r, err := a.sql.Get(query, args...)
		row = r
		return err
	})
	return row, err
}

// SQLAll runs query and returns every row.
func (a *Adapter) SQLAll(query string, args ...any) ([]map[string]any, error) {
	var rows []map[string]any
	err := a.submit(func() error {
		r, err := a.sql.All(query, args...)
		rows = r
		return err
	})
	return rows, err
}

// Closed reports whether a prior fault has closed the adapter.
func (a *Adapter) Closed() bool {
	return a.closed.Load()
}

// Close stops the writer goroutine and closes both faces. Safe to call
// more than once.
func (a *Adapter) Close() error {
	a.closed.Store(true)
	a.stopOnce.Do(func() { close(a.stopCh) })
	a.wg.Wait()

	var kvErr, sqlErr error
	if a.kv != nil {
		kvErr = a.kv.Close()
	}
	if a.sql != nil {
		sqlErr = a.sql.Close()
	}
	if kvErr != nil {
		return kvErr
	}
	return sqlErr
}
