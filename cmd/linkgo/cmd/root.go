// Package cmd implements the linkgo CLI commands.
package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hupe1980/linkgo"
	"github.com/hupe1980/linkgo/blobstore"
	"github.com/hupe1980/linkgo/core"
	"github.com/hupe1980/linkgo/source"
	"github.com/hupe1980/linkgo/source/sqlite"
)

var rootCmd = &cobra.Command{
	Use:   "linkgo",
	Short: "Probabilistic record linkage and deduplication",
	Long: `Linkgo links records that refer to the same real-world entity, within
one table (dedupe) or across two tables.

A run is described by a project file (YAML or JSON) holding the blocking
rules and comparison dimensions. Data is read from SQLite tables; trained
weights and scored-pair spill files live in a local artifact store.

Typical flow:

  linkgo estimate -p project.yaml --db people.db --table people
  linkgo train    -p project.yaml --db people.db --table people
  linkgo link     -p project.yaml --db people.db --table people --threshold 2
  linkgo evaluate -p project.yaml --db people.db --table people --truth-column entity_id`,
	SilenceUsage: true,
}

// Execute runs the CLI. Version information comes from the build.
func Execute(version, commit, date string) {
	rootCmd.Version = fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)

	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.StringP("project", "p", "", "project file (YAML or JSON)")
	pf.String("db", "", "SQLite database path")
	pf.String("table", "", "table to link or dedupe")
	pf.String("right-table", "", "right table for cross-table linking")
	pf.String("id-column", "id", "integer primary key column")
	pf.String("store", ".linkgo", "artifact store directory")
	pf.String("weights", "weights.json", "weights blob name within the store")
	pf.Int("workers", 0, "parallelism for comparison and training")
	pf.Bool("verbose", false, "debug logging")
	pf.Bool("json-logs", false, "log JSON lines instead of text")

	for _, name := range []string{
		"project", "db", "table", "right-table", "id-column",
		"store", "weights", "workers", "verbose", "json-logs",
	} {
		if err := viper.BindPFlag(name, pf.Lookup(name)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", name, err))
		}
	}
}

func initConfig() {
	// A .env beside the project is the easiest place for S3 credentials.
	_ = godotenv.Load()

	viper.SetEnvPrefix("LINKGO")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func newLogger() *linkgo.Logger {
	level := slog.LevelInfo
	if viper.GetBool("verbose") {
		level = slog.LevelDebug
	}
	if viper.GetBool("json-logs") {
		return linkgo.NewJSONLogger(level)
	}
	return linkgo.NewTextLogger(level)
}

// session bundles everything a subcommand needs, opened from the global
// flags.
type session struct {
	cfg    *linkgo.Config
	linker *linkgo.Linker
	left   source.Table
	store  blobstore.Store
	logger *linkgo.Logger
	db     *sql.DB
}

func (s *session) Close() error {
	return s.db.Close()
}

func openSession(ctx context.Context, extra ...linkgo.Option) (*session, error) {
	projectPath := viper.GetString("project")
	if projectPath == "" {
		return nil, fmt.Errorf("a project file is required (--project)")
	}
	dbPath := viper.GetString("db")
	if dbPath == "" {
		return nil, fmt.Errorf("a database is required (--db)")
	}
	tableName := viper.GetString("table")
	if tableName == "" {
		return nil, fmt.Errorf("a table is required (--table)")
	}

	data, err := os.ReadFile(projectPath)
	if err != nil {
		return nil, fmt.Errorf("read project: %w", err)
	}
	cfg, err := linkgo.ParseConfig(data, codecForPath(projectPath))
	if err != nil {
		return nil, err
	}

	db, err := sqlite.Open(dbPath)
	if err != nil {
		return nil, err
	}

	idColumn := viper.GetString("id-column")
	left, err := sqlite.NewTable(ctx, db, tableName, idColumn)
	if err != nil {
		db.Close()
		return nil, err
	}
	var right source.Table
	if name := viper.GetString("right-table"); name != "" {
		rt, err := sqlite.NewTable(ctx, db, name, idColumn)
		if err != nil {
			db.Close()
			return nil, err
		}
		right = rt
	}

	store, err := blobstore.NewLocalStore(viper.GetString("store"))
	if err != nil {
		db.Close()
		return nil, err
	}

	logger := newLogger()
	opts := []linkgo.Option{
		linkgo.WithLogger(logger),
		linkgo.WithSpillStore(store),
		linkgo.WithWorkers(viper.GetInt("workers")),
	}
	opts = append(opts, extra...)

	linker, err := cfg.Build(left, right, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &session{cfg: cfg, linker: linker, left: left, store: store, logger: logger, db: db}, nil
}

// truthLabels reads the ground-truth entity of every record from a column
// of the left table. Null values mean "no truth known" and are skipped.
func (s *session) truthLabels(ctx context.Context, column string) (map[core.RecordID]string, error) {
	if !source.HasColumn(s.left, column) {
		return nil, fmt.Errorf("truth column %q not found in table %s", column, s.left.Name())
	}
	truth := make(map[core.RecordID]string)
	for r, err := range s.left.Scan(ctx, column) {
		if err != nil {
			return nil, err
		}
		if v, ok := r.Field(column); ok {
			truth[r.ID] = fmt.Sprintf("%v", v)
		}
	}
	return truth, nil
}

func codecForPath(path string) string {
	switch {
	case strings.HasSuffix(path, ".json"):
		return "json"
	case strings.HasSuffix(path, ".yaml"), strings.HasSuffix(path, ".yml"):
		return "yaml"
	default:
		return ""
	}
}
