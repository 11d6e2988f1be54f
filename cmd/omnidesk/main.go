package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/omnidesk/omnidesk/internal/config"
	"github.com/omnidesk/omnidesk/internal/db"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "omnidesk",
		Short: "Unified multi-channel conversation hub",
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server and channel listeners",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}

	var migrationsDir string
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := db.Migrate(cfg.Postgres, migrationsDir); err != nil {
				return err
			}
			fmt.Println("migrations applied")
			return nil
		},
	}
	migrateCmd.Flags().StringVar(&migrationsDir, "dir", "migrations", "migrations directory")

	rootCmd.AddCommand(serveCmd, migrateCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
