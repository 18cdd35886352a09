package replicate

import (
	"context"
	"fmt"
	"time"

	"github.com/synckit/replicate/pkg/crdt"
	"github.com/synckit/replicate/pkg/document"
	"github.com/synckit/replicate/pkg/events"
	"github.com/synckit/replicate/pkg/handshake"
	"github.com/synckit/replicate/pkg/identity"
	"github.com/synckit/replicate/pkg/log"
	"github.com/synckit/replicate/pkg/metrics"
	"github.com/synckit/replicate/pkg/migrator"
	"github.com/synckit/replicate/pkg/replicator"
	"github.com/synckit/replicate/pkg/rpc"
	"github.com/synckit/replicate/pkg/storage"
	"github.com/synckit/replicate/pkg/syncer"
	"github.com/synckit/replicate/pkg/txn"
	"github.com/synckit/replicate/pkg/types"
	"github.com/synckit/replicate/pkg/wal"
)

// Config assembles the pieces a Collection wires together. Built up by
// Option functions, mirroring the teacher's flag/config struct pattern.
type Config struct {
	DataDir        string
	Authority      rpc.Authority
	Profile        identity.ProfileGetter
	SupportedRange handshake.Range
	SyncDebounce   *int64 // milliseconds; nil keeps syncer.DefaultDebounce
	CompactionRows int    // 0 keeps wal.DefaultCompactionThreshold
	PollInterval   time.Duration
}

// Option customizes a Config.
type Option func(*Config)

// WithDataDir sets the directory the blob KV and SQL databases live in.
func WithDataDir(dir string) Option {
	return func(c *Config) { c.DataDir = dir }
}

// WithAuthority supplies the remote peer this Collection replicates
// against. Without one, a Collection is offline-only: reads and writes
// work, nothing is ever pushed or pulled.
func WithAuthority(a rpc.Authority) Option {
	return func(c *Config) { c.Authority = a }
}

// WithProfile supplies the host's display identity getter (see
// pkg/identity.ProfileGetter).
func WithProfile(p identity.ProfileGetter) Option {
	return func(c *Config) { c.Profile = p }
}

// WithProtocolRange overrides the supported protocol version range the
// handshake checks the authority against (default {Min: 1, Max: 1}).
func WithProtocolRange(r handshake.Range) Option {
	return func(c *Config) { c.SupportedRange = r }
}

// WithCompactionThreshold overrides the WAL's default 50-row compaction
// threshold.
func WithCompactionThreshold(rows int) Option {
	return func(c *Config) { c.CompactionRows = rows }
}

// WithSyncDebounce overrides every Sync Actor's default 200ms debounce
// window.
func WithSyncDebounce(d time.Duration) Option {
	return func(c *Config) {
		ms := d.Milliseconds()
		c.SyncDebounce = &ms
	}
}

// WithPollInterval overrides the Replicator's default 200ms stream poll
// interval.
func WithPollInterval(d time.Duration) Option {
	return func(c *Config) { c.PollInterval = d }
}

// Collection is the host-facing handle over one named collection of CRDT
// documents: the sole public entrypoint wiring every component together.
type Collection struct {
	name      string
	cfg       Config
	kv        *storage.BoltKV
	sqlStore  *storage.SQLite
	adapter   *storage.Adapter
	identity  *identity.Identity
	broker    *events.Broker
	docs      *document.Manager
	coord     *txn.Coordinator
	migrate   *migrator.Migrator
	handshake *handshake.Handshake
	collector *metrics.Collector

	sync *syncer.Manager
	repl *replicator.Replicator
}

// Open constructs a Collection over a fresh Storage Adapter rooted at
// cfg.DataDir, applying every Option in order.
func Open(name string, opts ...Option) (*Collection, error) {
	cfg := Config{DataDir: ".", SupportedRange: handshake.Range{Min: 1, Max: 1}}
	for _, opt := range opts {
		opt(&cfg)
	}

	kv, err := storage.NewBoltKV(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("replicate: open kv: %w", err)
	}
	sqlStore, err := storage.NewSQLite(cfg.DataDir)
	if err != nil {
		kv.Close()
		return nil, fmt.Errorf("replicate: open sql: %w", err)
	}
	if err := migrator.RenameLegacyDeltaTable(sqlStore); err != nil {
		sqlStore.Close()
		kv.Close()
		return nil, fmt.Errorf("replicate: migrate legacy delta table: %w", err)
	}
	adapter := storage.NewAdapter(kv, sqlStore)

	id, err := identity.Load(kv, cfg.Profile)
	if err != nil {
		adapter.Close()
		return nil, fmt.Errorf("replicate: load identity: %w", err)
	}

	walStore := wal.New(adapter)
	if cfg.CompactionRows > 0 {
		walStore = walStore.WithThreshold(cfg.CompactionRows)
	}
	broker := events.NewBroker()
	docs := document.New(id.ClientID(), walStore, broker)
	coord := txn.New(docs)
	mig := migrator.New(sqlStore, nil)

	c := &Collection{
		name:     name,
		cfg:      cfg,
		kv:       kv,
		sqlStore: sqlStore,
		adapter:  adapter,
		identity: id,
		broker:   broker,
		docs:     docs,
		coord:    coord,
		migrate:  mig,
	}

	c.collector = metrics.NewCollector(func() []metrics.CollectionStats { return docs.Stats() })
	c.collector.Start()

	if cfg.Authority != nil {
		c.handshake = handshake.New(cfg.Authority, cfg.SupportedRange)
		c.sync = syncer.NewManager(c.actorFactory())
		var replOpts []replicator.Option
		if cfg.PollInterval > 0 {
			replOpts = append(replOpts, replicator.WithPollInterval(cfg.PollInterval))
		}
		c.repl = replicator.New(name, cfg.Authority, docs, c.sync, adapter, replOpts...)
		if err := c.repl.Start(); err != nil {
			c.Close()
			return nil, fmt.Errorf("replicate: start replicator: %w", err)
		}
	}

	log.Info(fmt.Sprintf("replicate: opened collection %q at %s", name, cfg.DataDir))
	return c, nil
}

func (c *Collection) actorFactory() func(document string) *syncer.Actor {
	return func(doc string) *syncer.Actor {
		handle, err := c.docs.GetOrCreate(c.name, doc)
		if err != nil {
			// A factory has no error return; a document that fails to
			// materialize here will surface again on the next real
			// operation against it, which does return an error.
			handle = crdt.NewDoc(c.identity.ClientID())
		}
		var opts []syncer.Option
		if c.cfg.SyncDebounce != nil {
			opts = append(opts, syncer.WithDebounce(time.Duration(*c.cfg.SyncDebounce)*time.Millisecond))
		}
		return syncer.New(c.name, doc, c.identity.ClientID(), handle, c.cfg.Authority, c.onActorFatal, opts...)
	}
}

func (c *Collection) onActorFatal(err error) {
	log.Error(fmt.Sprintf("replicate: collection %q: non-retriable sync failure: %v", c.name, err))
}

// Get materializes (or loads) a document and returns its current read
// state.
func (c *Collection) Get(id string) (*types.Document, error) {
	doc, err := c.docs.GetOrCreate(c.name, id)
	if err != nil {
		return nil, err
	}
	return doc.Snapshot(), nil
}

// Insert stages a new document and commits it, notifying the Sync Actor
// once the transaction succeeds.
func (c *Collection) Insert(id string, mutate func(*crdt.Txn)) error {
	return c.transact(id, func(h *txn.Handle) { h.Insert(c.name, id, mutate) })
}

// Update stages a mutation against an existing document and commits it.
func (c *Collection) Update(id string, mutate func(*crdt.Txn)) error {
	return c.transact(id, func(h *txn.Handle) { h.Update(c.name, id, mutate) })
}

// Delete soft-deletes id via a staged transaction.
func (c *Collection) Delete(id string, deletedAtUnixMilli int64) error {
	return c.transact(id, func(h *txn.Handle) { h.Delete(c.name, id, deletedAtUnixMilli) })
}

func (c *Collection) transact(id string, stage func(*txn.Handle)) error {
	err := c.coord.Run(func(h *txn.Handle) error {
		stage(h)
		return nil
	})
	if err != nil {
		return err
	}
	if c.sync != nil {
		c.sync.Actor(id).Send(syncer.LocalChange{})
	}
	return nil
}

// Migrate applies schema to this collection's SQL-backed table, tracking
// version progress in __replicate_schema.
func (c *Collection) Migrate(schema *types.SchemaDescriptor, fromVersion int, custom migrator.CustomMigration) error {
	return c.migrate.Migrate(c.name, schema, fromVersion, custom, 0, time.Time{}, true)
}

// Handshake verifies the connected authority's protocol version against
// the configured supported range, caching the result process-wide.
func (c *Collection) Handshake() error {
	if c.handshake == nil {
		return fmt.Errorf("replicate: no authority configured")
	}
	return c.handshake.Check(context.Background())
}

// ClientID is this replica's stable identity.
func (c *Collection) ClientID() string { return c.identity.ClientID() }

// Close shuts down every background actor and the replicator, then closes
// the underlying adapter.
func (c *Collection) Close() error {
	if c.collector != nil {
		c.collector.Stop()
	}
	if c.repl != nil {
		c.repl.Stop()
	}
	if c.sync != nil {
		c.sync.Shutdown()
	}
	return c.adapter.Close()
}
