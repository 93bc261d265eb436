package main

import (
	"github.com/ruralpay/ledger/internal/database"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	applied, err := database.RunMigrations(ctx, s.db)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		cmd.Println("Database is up to date")
		return nil
	}
	for _, name := range applied {
		cmd.Printf("applied %s\n", name)
	}
	return nil
}
