// Package main provides the brainy CLI entry point, a thin operator tool
// over pkg/brainy for opening a database, inspecting its statistics, and
// running an out-of-schedule cleanup pass.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/brainyhq/brainy/pkg/brainy"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "brainy",
		Short: "Brainy - hybrid vector and graph database core",
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("brainy v%s\n", version)
		},
	})

	openCmd := &cobra.Command{
		Use:   "open",
		Short: "Open a database at the given data directory and immediately close it",
		Long:  "Open validates that a database directory opens cleanly, replaying its WAL and rebuilding its indexes, then shuts it down.",
		RunE:  runOpen,
	}
	openCmd.Flags().String("data-dir", "./brainy-data", "Data directory")
	openCmd.Flags().Int("dim", 256, "Embedding dimension")
	rootCmd.AddCommand(openCmd)

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Print the database's durable statistics",
		RunE:  runStats,
	}
	statsCmd.Flags().String("data-dir", "./brainy-data", "Data directory")
	statsCmd.Flags().Int("dim", 256, "Embedding dimension")
	rootCmd.AddCommand(statsCmd)

	cleanupCmd := &cobra.Command{
		Use:   "cleanup-run",
		Short: "Run one synchronous cleanup pass and print its stats",
		RunE:  runCleanupRun,
	}
	cleanupCmd.Flags().String("data-dir", "./brainy-data", "Data directory")
	cleanupCmd.Flags().Int("dim", 256, "Embedding dimension")
	rootCmd.AddCommand(cleanupCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openDB(cmd *cobra.Command) (*brainy.DB, context.Context, error) {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	dim, _ := cmd.Flags().GetInt("dim")

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating data directory: %w", err)
	}

	cfg := brainy.DefaultConfig(dim)
	cfg.DataDir = dataDir

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := brainy.Open(ctx, cfg, nil, brainy.Hooks{})
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	return db, context.Background(), nil
}

func runOpen(cmd *cobra.Command, args []string) error {
	db, _, err := openDB(cmd)
	if err != nil {
		return err
	}
	defer db.ShutDown(context.Background())
	fmt.Println("database opened successfully")
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	db, ctx, err := openDB(cmd)
	if err != nil {
		return err
	}
	defer db.ShutDown(context.Background())

	stats, err := db.GetStatistics(ctx)
	if err != nil {
		return fmt.Errorf("fetching statistics: %w", err)
	}
	for kind, count := range stats.Counts {
		fmt.Printf("%-24s %d\n", kind, count)
	}
	fmt.Printf("%-24s %s\n", "updated_at", time.Unix(0, stats.UpdatedAt).Format(time.RFC3339))
	return nil
}

func runCleanupRun(cmd *cobra.Command, args []string) error {
	db, ctx, err := openDB(cmd)
	if err != nil {
		return err
	}
	defer db.ShutDown(context.Background())

	cleanupCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	stats := db.RunCleanup(cleanupCtx)
	fmt.Printf("items_processed %d\n", stats.ItemsProcessed)
	fmt.Printf("items_deleted   %d\n", stats.ItemsDeleted)
	fmt.Printf("errors          %d\n", stats.Errors)
	fmt.Printf("last_run        %s\n", stats.LastRun.Format(time.RFC3339))
	return nil
}
