package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/BurhanCantCode/TasteMaker/internal/store"
	"github.com/BurhanCantCode/TasteMaker/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "local",
	Short:   "Show the local profile store status",
	Long: `Display the current contents of the local profile store.

Shows:
  - Store location and size
  - Fact and like counts
  - Card session cursor, if any
  - Whether the cached summary is still fresh`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()

		dbPath := filepath.Join(cfg.DataDir, "profile.db")
		info, err := os.Stat(dbPath)
		if os.IsNotExist(err) {
			fmt.Printf("\n%s Local store not initialized\n", ui.RenderWarn("⚠"))
			fmt.Printf("   Run 'tastemaker daemon' or 'tastemaker sync' to create it\n\n")
			return
		}

		st, err := store.Open(cfg.DataDir, log.New(os.Stderr, "[store] ", log.LstdFlags))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening local store: %v\n", err)
			os.Exit(1)
		}
		defer st.Close()

		fmt.Printf("\n%s\n", ui.RenderBold("Local Profile Store"))
		fmt.Printf("   Location: %s\n", dbPath)
		fmt.Printf("   Size: %d bytes\n", info.Size())

		p := st.LoadProfile()
		if p == nil {
			fmt.Printf("   Profile: %s\n\n", ui.RenderDim("none"))
			return
		}

		facts, likes := p.Counts()
		fmt.Printf("   Facts: %d\n", facts)
		fmt.Printf("   Likes: %d\n", likes)
		if p.InitialFacts != "" {
			fmt.Printf("   Initial facts: %d chars\n", len(p.InitialFacts))
		}
		if p.UserLocation != nil {
			fmt.Printf("   Location: %s\n", p.UserLocation.City)
		}

		if cs := st.LoadCardSession(); cs != nil {
			fmt.Printf("   Session: %s (%d/%d)\n", cs.Mode, cs.BatchProgress, cs.BatchSize)
		}

		if sum := st.LoadSummary(); sum != nil {
			if sum.Fresh(p) {
				fmt.Printf("   Summary: %s\n", ui.RenderPass("fresh"))
			} else {
				fmt.Printf("   Summary: %s\n", ui.RenderWarn("stale"))
			}
		} else {
			fmt.Printf("   Summary: %s\n", ui.RenderDim("none"))
		}
		fmt.Println()
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
