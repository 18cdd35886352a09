// Command replicate-migrate is a standalone, one-shot maintenance tool:
// it opens a replica's on-disk database and runs the legacy
// "updates"->"deltas" delta-table rename, independent of any running
// replica process.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/synckit/replicate/pkg/migrator"
	"github.com/synckit/replicate/pkg/storage"
)

var (
	dataDir    = flag.String("data-dir", "/var/lib/replicate", "replica data directory")
	dryRun     = flag.Bool("dry-run", false, "report what would change without making changes")
	backupPath = flag.String("backup", "", "path to back up the database before migrating (default: <data-dir>/replicate.sqlite.backup)")
)

func main() {
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Replicate Database Migration Tool - updates -> deltas")
	log.Println("=======================================================")

	dbPath := filepath.Join(*dataDir, "replicate.sqlite")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		log.Fatalf("database not found at %s", dbPath)
	}

	log.Printf("Database: %s", dbPath)
	log.Printf("Dry run: %v", *dryRun)

	if !*dryRun {
		backupFile := *backupPath
		if backupFile == "" {
			backupFile = dbPath + ".backup"
		}
		log.Printf("Creating backup: %s", backupFile)
		if err := copyFile(dbPath, backupFile); err != nil {
			log.Fatalf("failed to create backup: %v", err)
		}
		log.Println("backup created")
	}

	sqlStore, err := storage.NewSQLite(*dataDir)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer sqlStore.Close()

	if err := runMigration(sqlStore, *dryRun); err != nil {
		log.Fatalf("migration failed: %v", err)
	}

	if *dryRun {
		log.Println("\ndry run completed, no changes made")
		log.Println("run without --dry-run to perform the migration")
	} else {
		log.Println("\nmigration completed successfully")
	}
}

func runMigration(sqlStore *storage.SQLite, dryRun bool) error {
	row, err := sqlStore.Get(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'updates'`)
	if err != nil {
		log.Println("no legacy 'updates' table found - database is already using the 'deltas' schema")
		return nil
	}
	if row == nil {
		log.Println("no legacy 'updates' table found - database is already using the 'deltas' schema")
		return nil
	}

	count, err := countRows(sqlStore, "updates")
	if err != nil {
		return fmt.Errorf("count legacy rows: %w", err)
	}
	log.Printf("found %d rows in the legacy 'updates' table", count)

	if dryRun {
		log.Println("\n[dry run] would perform the following operations:")
		log.Println("1. Copy all rows from 'updates' into 'deltas'")
		log.Printf("2. Migrate %d rows", count)
		log.Println("3. Drop the 'updates' table")
		return nil
	}

	log.Println("\nmigrating updates to deltas...")
	if err := migrator.RenameLegacyDeltaTable(sqlStore); err != nil {
		return err
	}
	log.Printf("migrated %d rows from 'updates' to 'deltas'", count)
	return nil
}

func countRows(sqlStore *storage.SQLite, table string) (int64, error) {
	row, err := sqlStore.Get(fmt.Sprintf(`SELECT COUNT(*) AS n FROM %s`, table))
	if err != nil {
		return 0, err
	}
	n, _ := row["n"].(int64)
	return n, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
