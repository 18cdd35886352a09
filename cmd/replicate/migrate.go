package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/synckit/replicate/pkg/migrator"
	"github.com/synckit/replicate/pkg/storage"
	"github.com/synckit/replicate/pkg/types"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate <collection>",
	Short: "Apply a YAML schema file's pending version to a collection's SQL table",
	Args:  cobra.ExactArgs(1),
	RunE:  runMigrate,
}

func init() {
	migrateCmd.Flags().StringP("file", "f", "", "YAML schema file (required)")
	migrateCmd.Flags().Int("from", -1, "version to migrate from (default: read from __replicate_schema)")
	migrateCmd.Flags().Bool("reset-on-failure", false, "clear the collection and re-seed from the authority if migration fails")
	_ = migrateCmd.MarkFlagRequired("file")
}

// yamlFieldShape mirrors types.FieldShape with YAML tags; the CLI's own
// wire format for a schema file, kept separate from the engine's internal
// type the way the teacher's WarrenResource wraps its own YAML surface
// around the API's domain types.
type yamlFieldShape struct {
	Name     string `yaml:"name"`
	Kind     string `yaml:"kind"`
	Default  any    `yaml:"default,omitempty"`
	Resolver string `yaml:"resolver,omitempty"`
}

type yamlSchema struct {
	Version int                         `yaml:"version"`
	Shape   []yamlFieldShape            `yaml:"shape"`
	History map[int][]yamlFieldShape    `yaml:"history"`
}

func (y *yamlSchema) toDescriptor() *types.SchemaDescriptor {
	history := make(map[int][]types.FieldShape, len(y.History))
	for version, shape := range y.History {
		history[version] = toFieldShapes(shape)
	}
	return &types.SchemaDescriptor{
		Version: y.Version,
		Shape:   toFieldShapes(y.Shape),
		History: history,
	}
}

func toFieldShapes(in []yamlFieldShape) []types.FieldShape {
	out := make([]types.FieldShape, len(in))
	for i, f := range in {
		out[i] = types.FieldShape{
			Name:     f.Name,
			Kind:     types.FieldKind(f.Kind),
			Default:  f.Default,
			Resolver: f.Resolver,
		}
	}
	return out
}

func runMigrate(cmd *cobra.Command, args []string) error {
	collection := args[0]
	dataDir, _ := cmd.Flags().GetString("data-dir")
	file, _ := cmd.Flags().GetString("file")
	fromFlag, _ := cmd.Flags().GetInt("from")
	resetOnFailure, _ := cmd.Flags().GetBool("reset-on-failure")

	raw, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read schema file: %w", err)
	}
	var y yamlSchema
	if err := yaml.Unmarshal(raw, &y); err != nil {
		return fmt.Errorf("parse schema file: %w", err)
	}
	schema := y.toDescriptor()

	sqlStore, err := storage.NewSQLite(dataDir)
	if err != nil {
		return fmt.Errorf("open sql store: %w", err)
	}
	defer sqlStore.Close()

	m := migrator.New(sqlStore, func(ctx migrator.FailureContext) migrator.FailureDecision {
		fmt.Fprintf(os.Stderr, "migration failed: %v (pending=%d canResetSafely=%v lastSynced=%s)\n",
			ctx.Error, ctx.PendingChanges, ctx.CanResetSafely, ctx.LastSyncedAt)
		if resetOnFailure && ctx.CanResetSafely {
			return migrator.FailureDecision{Outcome: migrator.OutcomeReset}
		}
		return migrator.FailureDecision{Outcome: migrator.OutcomeKeepOldSchema}
	})

	from := fromFlag
	if from < 0 {
		stored, found, err := m.StoredVersion(collection)
		if err != nil {
			return fmt.Errorf("read stored schema version: %w", err)
		}
		if !found {
			from = schema.Version
		} else {
			from = stored
		}
	}

	if from == schema.Version {
		fmt.Printf("collection %q already at version %d\n", collection, schema.Version)
		return nil
	}

	fmt.Printf("migrating collection %q: %d -> %d\n", collection, from, schema.Version)
	if err := m.Migrate(collection, schema, from, nil, 0, time.Time{}, true); err != nil {
		return fmt.Errorf("migrate %q: %w", collection, err)
	}
	fmt.Printf("collection %q now at version %d\n", collection, schema.Version)
	return nil
}
