package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/BurhanCantCode/TasteMaker/internal/cloud"
	"github.com/BurhanCantCode/TasteMaker/internal/store"
	"github.com/BurhanCantCode/TasteMaker/internal/ui"
)

var resetCmd = &cobra.Command{
	Use:     "reset",
	GroupID: "local",
	Short:   "Erase the local profile and delete the cloud document",
	Long: `Reset the profile to empty.

Clears the profile, card session, and cached summary from the local
store, then deletes the cloud document for the configured uid. The
cloud delete is best-effort: a failure is logged and the local reset
still stands.`,
	Run: func(cmd *cobra.Command, args []string) {
		yes, _ := cmd.Flags().GetBool("yes")
		localOnly, _ := cmd.Flags().GetBool("local-only")

		if !yes {
			fmt.Fprintf(os.Stderr, "Refusing to reset without --yes (this erases all profile data)\n")
			os.Exit(1)
		}

		cfg := loadConfig()

		st, err := store.Open(cfg.DataDir, log.New(os.Stderr, "[store] ", log.LstdFlags))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening local store: %v\n", err)
			os.Exit(1)
		}
		defer st.Close()

		if err := st.ClearAll(); err != nil {
			fmt.Fprintf(os.Stderr, "Error clearing local store: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Local store cleared\n", ui.RenderPass("✓"))

		if localOnly || cfg.UID == "" {
			if cfg.UID == "" && !localOnly {
				fmt.Printf("%s No uid configured, skipping cloud delete\n", ui.RenderWarn("⚠"))
			}
			return
		}

		client := cloud.New(cfg.CloudBaseURL, cfg.CloudAPIKey, log.New(os.Stderr, "[cloud] ", log.LstdFlags))
		client.Delete(context.Background(), cfg.UID)
		fmt.Printf("%s Cloud document delete requested for %s\n", ui.RenderPass("✓"), cfg.UID)
	},
}

func init() {
	resetCmd.Flags().Bool("yes", false, "Confirm the reset")
	resetCmd.Flags().Bool("local-only", false, "Clear the local store but keep the cloud document")
	rootCmd.AddCommand(resetCmd)
}
