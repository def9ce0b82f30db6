package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cuemby/collabcore/pkg/crdt"
	"github.com/cuemby/collabcore/pkg/kvstore"
	"github.com/cuemby/collabcore/pkg/types"
	"github.com/cuemby/collabcore/pkg/updatelog"
)

var compactCmd = &cobra.Command{
	Use:   "compact <tenant> <object-id>",
	Short: "Force a snapshot compaction for one object",
	Args:  cobra.ExactArgs(2),
	RunE:  runCompact,
}

func runCompact(cmd *cobra.Command, args []string) error {
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
	lastClock := types.Clock(0)
	err = log.Load(ctx, tenant, object, func(payload []byte) error {
		updates = append(updates, append([]byte(nil), payload...))
		return nil
	})
	if err != nil {
		return fmt.Errorf("load updates: %w", err)
	}
	if len(updates) == 0 {
		fmt.Println("no updates to compact")
		return nil
	}
	lastClock, err = log.NextClock(ctx, tenant, object)
	if err != nil {
		return fmt.Errorf("resolve clock: %w", err)
	}
	lastClock--

	factory := crdt.NewFactory()
	sess, err := factory.Open(ctx, updates)
	if err != nil {
		return fmt.Errorf("replay updates: %w", err)
	}
	defer sess.Close()

	snapshot, err := sess.Encode()
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	if err := log.CompactToSnapshot(ctx, tenant, object, snapshot, lastClock); err != nil {
		return fmt.Errorf("compact: %w", err)
	}

	fmt.Printf("compacted tenant=%d object=%s up_to_clock=%d\n", tenant, object, lastClock)
	return nil
}
