package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"storagebooking/internal/config"
	"storagebooking/internal/database"

	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	var (
		inventoryPath = flag.String("inventory", "configs/inventory.yaml", "path to inventory.yaml")
		dbPath        = flag.String("db", "./data/storage.db", "path to sqlite db")
	)
	flag.Parse()

	inv, err := config.LoadInventory(*inventoryPath)
	if err != nil {
		return fmt.Errorf("load inventory: %w", err)
	}
	if len(inv.Units) == 0 && len(inv.Rules) == 0 {
		return fmt.Errorf("no units or pricing rules in %s", *inventoryPath)
	}

	db, err := database.NewDB(*dbPath, &logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stats, err := db.ImportInventory(ctx, inv)
	if err != nil {
		return err
	}

	fmt.Printf("done: units created=%d skipped=%d, rules created=%d skipped=%d\n",
		stats.UnitsCreated, stats.UnitsSkipped, stats.RulesCreated, stats.RulesSkipped)
	return nil
}
