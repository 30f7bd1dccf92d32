package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"casetrail/internal/changetrack/tree"
	"casetrail/internal/platform/config"
	"casetrail/migrations"
)

var configPath string

var (
	rootCmd = &cobra.Command{
		Use:           "casetrail",
		Short:         "Case management API with a change-derived audit trail",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the outbox relay and the audit materializer",
		RunE:  runServe,
	}
	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded SQL migrations to CASETRAIL_DATABASE_URL",
		RunE:  runMigrate,
	}
	schemaCmd = &cobra.Command{
		Use:   "schema",
		Short: "Work with dynamic data schemas",
	}
	schemaCheckCmd = &cobra.Command{
		Use:   "check [schema.yaml]",
		Short: "Validate a dynamic data schema and list the tracked paths",
		Args:  cobra.ExactArgs(1),
		RunE:  runSchemaCheck,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"optional YAML config file; CASETRAIL_* environment variables take precedence")
	schemaCmd.AddCommand(schemaCheckCmd)
	rootCmd.AddCommand(serveCmd, migrateCmd, schemaCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return serve(ctx, cfg)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Database.URL == "" {
		return errors.New("CASETRAIL_DATABASE_URL is required")
	}
	db, err := openDB(cmd.Context(), cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := migrations.Apply(cmd.Context(), db); err != nil {
		return err
	}
	version, err := migrations.Version(cmd.Context(), db)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "migrations applied, schema version %d\n", version)
	return nil
}

func runSchemaCheck(cmd *cobra.Command, args []string) error {
	schema, err := tree.LoadSchemaFile(args[0])
	if err != nil {
		return err
	}
	printSchema(cmd, schema, "")
	return nil
}

func printSchema(cmd *cobra.Command, schema *tree.Schema, prefix string) {
	for _, prop := range schema.Properties {
		path := prop.Name
		if prefix != "" {
			path = prefix + "." + prop.Name
		}
		switch prop.EffectiveKind() {
		case tree.KindNested:
			printSchema(cmd, prop.Schema, path)
		case tree.KindComputed:
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t(computed, not tracked)\n", path)
		default:
			fmt.Fprintln(cmd.OutOrStdout(), path)
		}
	}
}

func openDB(ctx context.Context, cfg config.Database) (*sql.DB, error) {
	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}
