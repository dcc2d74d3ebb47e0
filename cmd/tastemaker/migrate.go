package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/BurhanCantCode/TasteMaker/internal/store"
	"github.com/BurhanCantCode/TasteMaker/internal/ui"
)

var migrateCmd = &cobra.Command{
	Use:     "migrate",
	GroupID: "local",
	Short:   "Import legacy-format records into the current store",
	Long: `Import profile data from the legacy storage format.

Earlier builds persisted records as percent-encoded JSON files in the
data directory. Migration decodes each legacy record, re-saves it in
the current format, and deletes the legacy file exactly once. Records
that already exist in the current format are left alone.

Normal loads run this migration lazily; the command exists to force it
and report what was imported.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()

		st, err := store.Open(cfg.DataDir, log.New(os.Stderr, "[store] ", log.LstdFlags))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening local store: %v\n", err)
			os.Exit(1)
		}
		defer st.Close()

		result := st.MigrateLegacy()

		if !result.ProfileMigrated && !result.SessionMigrated && !result.SummaryMigrated {
			fmt.Printf("%s Nothing to migrate\n", ui.RenderDim("·"))
			return
		}

		if result.ProfileMigrated {
			fmt.Printf("%s Profile migrated (%d facts, %d likes)\n", ui.RenderPass("✓"), result.Facts, result.Likes)
		}
		if result.SessionMigrated {
			fmt.Printf("%s Card session migrated\n", ui.RenderPass("✓"))
		}
		if result.SummaryMigrated {
			fmt.Printf("%s Cached summary migrated\n", ui.RenderPass("✓"))
		}
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
