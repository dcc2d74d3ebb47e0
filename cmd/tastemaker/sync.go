package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/BurhanCantCode/TasteMaker/internal/cloud"
	"github.com/BurhanCantCode/TasteMaker/internal/netmon"
	"github.com/BurhanCantCode/TasteMaker/internal/store"
	"github.com/BurhanCantCode/TasteMaker/internal/sync"
	"github.com/BurhanCantCode/TasteMaker/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "One-shot reconciliation of local store and cloud document",
	Long: `Reconcile the local store against the cloud document once and exit.

This runs the same sign-in reconciliation the daemon performs at
startup: both sides empty is a no-op, a one-sided profile is copied to
the other side, and two non-empty profiles are merged last-write-wins
per fact/like and pushed back.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		if cfg.UID == "" {
			fmt.Fprintf(os.Stderr, "Error: no uid configured (set uid in config or TASTEMAKER_UID)\n")
			os.Exit(1)
		}

		logger := log.New(os.Stderr, "[sync] ", log.LstdFlags)

		st, err := store.Open(cfg.DataDir, log.New(os.Stderr, "[store] ", log.LstdFlags))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening local store: %v\n", err)
			os.Exit(1)
		}
		defer st.Close()

		client := cloud.New(cfg.CloudBaseURL, cfg.CloudAPIKey, log.New(os.Stderr, "[cloud] ", log.LstdFlags))
		mon := netmon.New(cfg.CloudBaseURL, cfg.ProbeInterval(), logger)

		orch := sync.New(st, sync.WrapClient(client), mon, sync.Config{
			DebounceDelay: cfg.DebounceDelay(),
		}, logger)
		defer orch.Close()

		fmt.Printf("%s Reconciling %s against %s...\n", ui.RenderAccent("🔄"), cfg.UID, cfg.CloudBaseURL)
		start := time.Now()

		if err := orch.HandleSignIn(context.Background(), cfg.UID, cfg.PhoneNumber); err != nil {
			fmt.Fprintf(os.Stderr, "%s Reconciliation failed: %v\n", ui.RenderFail("✗"), err)
			os.Exit(1)
		}

		elapsed := time.Since(start)
		p := st.LoadProfile()
		facts, likes := 0, 0
		if p != nil {
			facts, likes = p.Counts()
		}

		fmt.Printf("%s Reconciliation complete in %v\n", ui.RenderPass("✓"), elapsed.Round(time.Millisecond))
		fmt.Printf("   Facts: %d\n", facts)
		fmt.Printf("   Likes: %d\n", likes)
		if pm := orch.TakePendingMerge(); pm != nil {
			fmt.Printf("   %s\n", ui.RenderDim("Merged state adopted from cloud"))
		}
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
