package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cuemby/collabcore/pkg/crdt"
	"github.com/cuemby/collabcore/pkg/folder"
	"github.com/cuemby/collabcore/pkg/kvstore"
	"github.com/cuemby/collabcore/pkg/types"
	"github.com/cuemby/collabcore/pkg/updatelog"
)

var migrateFolderCmd = &cobra.Command{
	Use:   "migrate-folder <tenant> <folder-object-id>",
	Short: "Run the legacy workspace-to-view folder migration once",
	Args:  cobra.ExactArgs(2),
	RunE:  runMigrateFolder,
}

func runMigrateFolder(cmd *cobra.Command, args []string) error {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	tenant, object, err := parseIdentity(args[0], args[1])
	if err != nil {
		return err
	}

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
