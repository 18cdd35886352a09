package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/synckit/replicate/pkg/document"
	"github.com/synckit/replicate/pkg/identity"
	"github.com/synckit/replicate/pkg/storage"
	"github.com/synckit/replicate/pkg/wal"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show this replica's identity and per-collection stats",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringSlice("collection", nil, "collections to report on (repeatable)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	collections, _ := cmd.Flags().GetStringSlice("collection")

	kv, sqlStore, closeFn, err := openStorage(dataDir)
	if err != nil {
		return err
	}
	defer closeFn()

	id, err := identity.Load(kv, nil)
	if err != nil {
		return fmt.Errorf("load identity: %w", err)
	}

	adapter := storage.NewAdapter(kv, sqlStore)
	defer adapter.Close()

	w := wal.New(adapter)
	docs := document.New(id.ClientID(), w, nil)

	fmt.Printf("client id:  %s\n", id.ClientID())
	fmt.Printf("session id: %s\n", id.SessionID())
	fmt.Println()

	if len(collections) == 0 {
		fmt.Println("no --collection given; nothing materialized to report yet")
		return nil
	}

	for _, collection := range collections {
		ids, err := documentIDs(adapter, collection)
		if err != nil {
			return fmt.Errorf("list documents in %q: %w", collection, err)
		}
		for _, id := range ids {
			if _, err := docs.GetOrCreate(collection, id); err != nil {
				return fmt.Errorf("load %s/%s: %w", collection, id, err)
			}
		}
	}

	for _, stats := range docs.Stats() {
		fmt.Printf("collection %q: %d documents, %d pending flush\n",
			stats.Collection, stats.Documents, stats.PendingFlush)
	}
	return nil
}

// documentIDs returns every document id that has a snapshot or delta row
// recorded for collection, since the Document Manager only tracks ids of
// documents it has already materialized in memory.
func documentIDs(adapter *storage.Adapter, collection string) ([]string, error) {
	rows, err := adapter.SQLAll(
		`SELECT document FROM snapshots WHERE collection = ?
		 UNION
		 SELECT document FROM deltas WHERE collection = ?`,
		collection, collection,
	)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		if id, ok := row["document"].(string); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// openStorage opens the replica's bolt KV and SQLite stores and returns a
// close function that tears both down in reverse order.
func openStorage(dataDir string) (*storage.BoltKV, *storage.SQLite, func(), error) {
	kv, err := storage.NewBoltKV(dataDir)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open kv store: %w", err)
	}
	sqlStore, err := storage.NewSQLite(dataDir)
	if err != nil {
		kv.Close()
		return nil, nil, nil, fmt.Errorf("open sql store: %w", err)
	}
	return kv, sqlStore, func() {
		sqlStore.Close()
		kv.Close()
	}, nil
}
