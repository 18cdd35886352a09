package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/synckit/replicate/pkg/crdt"
	"github.com/synckit/replicate/pkg/document"
	"github.com/synckit/replicate/pkg/identity"
	"github.com/synckit/replicate/pkg/storage"
	"github.com/synckit/replicate/pkg/txn"
	"github.com/synckit/replicate/pkg/wal"
)

var docCmd = &cobra.Command{
	Use:   "doc",
	Short: "Inspect and edit documents directly against local storage",
}

var docGetCmd = &cobra.Command{
	Use:   "get <collection> <document>",
	Short: "Print a document's current materialized state as JSON",
	Args:  cobra.ExactArgs(2),
	RunE:  runDocGet,
}

var docSetScalarCmd = &cobra.Command{
	Use:   "set-scalar <collection> <document> <field> <value>",
	Short: "Stage and commit a scalar field write through the transaction coordinator",
	Args:  cobra.ExactArgs(4),
	RunE:  runDocSetScalar,
}

func init() {
	docCmd.AddCommand(docGetCmd)
	docCmd.AddCommand(docSetScalarCmd)
}

func openDocumentStack(dataDir string) (kv *storage.BoltKV, adapter *storage.Adapter, docs *document.Manager, closeFn func(), err error) {
	kv, sqlStore, closeStorage, err := openStorage(dataDir)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	id, err := identity.Load(kv, nil)
	if err != nil {
		closeStorage()
		return nil, nil, nil, nil, fmt.Errorf("load identity: %w", err)
	}

	adapter = storage.NewAdapter(kv, sqlStore)
	w := wal.New(adapter)
	docs = document.New(id.ClientID(), w, nil)

	return kv, adapter, docs, func() {
		adapter.Close()
		closeStorage()
	}, nil
}

func runDocGet(cmd *cobra.Command, args []string) error {
	collection, documentID := args[0], args[1]
	dataDir, _ := cmd.Flags().GetString("data-dir")

	_, _, docs, closeFn, err := openDocumentStack(dataDir)
	if err != nil {
		return err
	}
	defer closeFn()

	d, err := docs.GetOrCreate(collection, documentID)
	if err != nil {
		return fmt.Errorf("load %s/%s: %w", collection, documentID, err)
	}

	out, err := json.MarshalIndent(d.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

func runDocSetScalar(cmd *cobra.Command, args []string) error {
	collection, documentID, field, value := args[0], args[1], args[2], args[3]
	dataDir, _ := cmd.Flags().GetString("data-dir")

	_, _, docs, closeFn, err := openDocumentStack(dataDir)
	if err != nil {
		return err
	}
	defer closeFn()

	coordinator := txn.New(docs)
	err = coordinator.Run(func(h *txn.Handle) error {
		h.Update(collection, documentID, func(t *crdt.Txn) {
			t.SetScalar(field, value, nowUnixMilli())
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("commit %s/%s.%s=%s: %w", collection, documentID, field, value, err)
	}

	fmt.Printf("%s/%s.%s = %q committed\n", collection, documentID, field, value)
	return nil
}
