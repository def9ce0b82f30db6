package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cuemby/collabcore/pkg/keys"
	"github.com/cuemby/collabcore/pkg/kvstore"
	"github.com/cuemby/collabcore/pkg/types"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <tenant> <object-id>",
	Short: "Print the clock range and record count for one object",
	Args:  cobra.ExactArgs(2),
	RunE:  runInspect,
}

func runInspect(cmd *cobra.Command, args []string) error {
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
	lower, upper := keys.RangeBounds(tenant, object, keys.RecordKindUpdate)

	var count int
	var minClock, maxClock types.Clock
	first := true
	err = store.Range(ctx, lower, upper, func(entry kvstore.Entry) error {
		decoded, err := keys.Decode(entry.Key)
		if err != nil {
			return err
		}
		count++
		if first || decoded.Clock < minClock {
			minClock = decoded.Clock
		}
		if first || decoded.Clock > maxClock {
			maxClock = decoded.Clock
		}
		first = false
		return nil
	})
	if err != nil {
		return fmt.Errorf("range scan: %w", err)
	}

	snapshotProbe := keys.ProbeKey(tenant, object, keys.RecordKindSnapshot)
	snapshotEntry, hasSnapshot, err := store.NextBackEntry(ctx, snapshotProbe)
	if err != nil {
		return fmt.Errorf("snapshot probe: %w", err)
	}

	fmt.Printf("tenant=%d object=%s updates=%d", tenant, object, count)
	if count > 0 {
		fmt.Printf(" clock=[%d,%d]", minClock, maxClock)
	}
	if hasSnapshot {
		decoded, err := keys.Decode(snapshotEntry.Key)
		if err == nil && decoded.Kind == keys.RecordKindSnapshot && keys.MatchesObject(decoded, tenant, object) == nil {
			fmt.Printf(" snapshot_clock=%d", decoded.Clock)
		}
	}
	fmt.Println()
	return nil
}
