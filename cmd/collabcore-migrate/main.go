// Command collabcore-migrate runs the legacy folder migration once against
// a bolt data directory, independent of the main collabcore binary.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/cuemby/collabcore/pkg/crdt"
	"github.com/cuemby/collabcore/pkg/folder"
	"github.com/cuemby/collabcore/pkg/kvstore"
	"github.com/cuemby/collabcore/pkg/types"
	"github.com/cuemby/collabcore/pkg/updatelog"
)

func main() {
	dataDir := flag.String("data-dir", "./data", "Path to the bolt data directory")
	tenant := flag.Int64("tenant", 0, "Tenant id")
	object := flag.String("object", "", "Folder object id")
	flag.Parse()

	if *object == "" {
		fmt.Fprintln(os.Stderr, "Error: -object is required")
		os.Exit(1)
	}

	if err := run(*dataDir, types.Tenant(*tenant), types.ObjectID(*object)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(dataDir string, tenant types.Tenant, object types.ObjectID) error {
	store, err := kvstore.Open(dataDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	ctx := context.Background()
	log := updatelog.New(store)

	var updates [][]byte
	err = log.Load(ctx, tenant, object, func(payload []byte) error {
		updates = append(updates, append([]byte(nil), payload...))
		return nil
	})
	if err != nil {
		return fmt.Errorf("load folder document: %w", err)
	}

	factory := crdt.NewFactory()
	sess, err := factory.Open(ctx, updates)
	if err != nil {
		return fmt.Errorf("open folder document: %w", err)
	}
	defer sess.Close()

	var migrated bool
	var ws types.Workspace
	err = sess.Write(ctx, crdt.OriginLocal, func(doc crdt.Doc) error {
		ws, migrated = folder.MigrateWorkspaceToView(doc)
		return nil
	})
	if err != nil {
		return fmt.Errorf("apply migration: %w", err)
	}
	if !migrated {
		fmt.Println("no legacy workspace found; nothing to migrate")
		return nil
	}

	update, err := sess.Encode()
	if err != nil {
		return fmt.Errorf("encode migration update: %w", err)
	}
	clock, err := log.Append(ctx, tenant, object, update)
	if err != nil {
		return fmt.Errorf("persist migration: %w", err)
	}

	fmt.Printf("migrated workspace %q to root view at clock %d\n", ws.ID, clock)
	return nil
}
