package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/callsift/callsift/internal/modules/cache"
	"github.com/callsift/callsift/pkg/logger"
)

var (
	cacheDir      string
	chunkCapacity int
	logLevel      string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "callsift-cache",
	Short: "Inspect and migrate the chunked transcript cache",
}

var migrateCmd = &cobra.Command{
	Use:   "migrate <monolith.json>",
	Short: "Import a monolithic JSON cache file into the chunked store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		imported, err := store.ImportMonolith(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Imported entries: %d\n", imported)
		fmt.Printf("Chunks:           %d\n", store.Chunks())
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show entry and chunk counts for the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		fmt.Printf("Directory: %s\n", cacheDir)
		fmt.Printf("Entries:   %d\n", store.Len())
		fmt.Printf("Chunks:    %d\n", store.Chunks())
		return nil
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check that every indexed chunk file exists and parses",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		if err := store.Verify(); err != nil {
			return err
		}
		fmt.Println("OK")
		return nil
	},
}

func openStore() (*cache.Store, error) {
	log := logger.New(logger.Config{Level: logLevel, Pretty: true})
	return cache.Open(cacheDir, chunkCapacity, log)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cacheDir, "dir", "./data/transcript-cache", "cache directory")
	rootCmd.PersistentFlags().IntVar(&chunkCapacity, "capacity", cache.DefaultChunkCapacity, "entries per chunk")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level")
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(verifyCmd)
}
