package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/BurhanCantCode/TasteMaker/internal/auth"
	"github.com/BurhanCantCode/TasteMaker/internal/cloud"
	"github.com/BurhanCantCode/TasteMaker/internal/config"
	"github.com/BurhanCantCode/TasteMaker/internal/ingest"
	"github.com/BurhanCantCode/TasteMaker/internal/netmon"
	"github.com/BurhanCantCode/TasteMaker/internal/statusfeed"
	"github.com/BurhanCantCode/TasteMaker/internal/store"
	"github.com/BurhanCantCode/TasteMaker/internal/sync"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Run the sync engine as a long-lived process",
	Long: `Run the full sync engine: reconcile on startup, watch the spool
directory for profile mutations, maintain the live cloud subscription,
and serve the real-time status feed.

The daemon is the device-side half of the sync protocol:
  1. Reconciles the local store against the cloud document on sign-in
  2. Applies spool records (facts, likes, session, summary) to the store
  3. Coalesces mutations into debounced cloud pushes
  4. Merges foreign-device changes arriving over the subscription

Example usage:
  tastemaker daemon                      # Use config defaults
  tastemaker daemon --config ./dev.yaml  # Explicit config file`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()

		logOut := logOutput(cfg)
		newLogger := func(prefix string) *log.Logger {
			return log.New(logOut, prefix, log.LstdFlags)
		}
		logger := newLogger("[daemon] ")

		st, err := store.Open(cfg.DataDir, newLogger("[store] "))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening local store: %v\n", err)
			os.Exit(1)
		}
		defer st.Close()

		client := cloud.New(cfg.CloudBaseURL, cfg.CloudAPIKey, newLogger("[cloud] "))

		mon := netmon.New(cfg.CloudBaseURL, cfg.ProbeInterval(), newLogger("[netmon] "))
		mon.Start()
		defer mon.Stop()

		orch := sync.New(st, sync.WrapClient(client), mon, sync.Config{
			DebounceDelay: cfg.DebounceDelay(),
		}, newLogger("[sync] "))
		defer orch.Close()

		// Local edits made while disconnected are repaired by re-pushing
		// current state when connectivity returns.
		orch.OnReconnect(func() {
			if p := st.LoadProfile(); p != nil {
				orch.TriggerSync(p, st.LoadCardSession(), st.LoadSummary())
			}
		})

		var feed *statusfeed.Server
		if cfg.FeedPort > 0 {
			feed = statusfeed.NewServer(&statusfeed.Config{
				Port:   cfg.FeedPort,
				Logger: newLogger("[feed] "),
			})
			if err := feed.Start(); err != nil {
				fmt.Fprintf(os.Stderr, "Error starting status feed: %v\n", err)
				os.Exit(1)
			}
			defer feed.Stop()

			handler := statusfeed.NewHandler(feed, newLogger("[feed] "))
			handler.Attach(orch)
			// In daemon mode the feed is the pending-merge consumer.
			orch.OnRemoteUpdate(func() {
				if pm := orch.TakePendingMerge(); pm != nil {
					handler.OnRemoteMerge(pm.Profile, pm.Summary)
				}
			})
		}

		provider := &auth.StaticProvider{}
		if cfg.UID != "" {
			provider.Session = &auth.Session{UID: cfg.UID, PhoneNumber: cfg.PhoneNumber}
		}
		if session := provider.Current(); session != nil {
			if err := orch.HandleSignIn(context.Background(), session.UID, session.PhoneNumber); err != nil {
				logger.Printf("Startup reconciliation failed, continuing on local data: %v", err)
			}
		} else {
			logger.Printf("No uid configured, running signed out (local-only)")
		}

		ingester := ingest.New(cfg.SpoolDir, st, orch, newLogger("[ingest] "))
		if err := ingester.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Error starting spool ingester: %v\n", err)
			os.Exit(1)
		}
		defer ingester.Stop()

		logger.Printf("Daemon running: data=%s spool=%s status=%s", cfg.DataDir, cfg.SpoolDir, orch.Status())
		fmt.Printf("TasteMaker daemon started (data: %s)\n", cfg.DataDir)
		if feed != nil {
			fmt.Printf("Status feed: ws://localhost:%d/ws\n", cfg.FeedPort)
		}
		fmt.Println("\nPress Ctrl+C to stop...")

		// Wait for interrupt signal
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		<-ctx.Done()

		fmt.Println("\nShutting down daemon...")
		// A mutation ingested moments before the signal still goes out.
		orch.Flush()
		logger.Printf("Daemon stopping")
	},
}

// logOutput returns the daemon log destination: a rotating file when
// configured, stderr otherwise.
func logOutput(cfg *config.Config) io.Writer {
	if cfg.LogFile == "" {
		return os.Stderr
	}
	return &lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAge:     cfg.LogMaxAgeDays,
		Compress:   true,
	}
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}
