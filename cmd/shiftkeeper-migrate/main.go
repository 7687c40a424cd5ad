package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/shiftkeeper/pkg/config"
	"github.com/cuemby/shiftkeeper/pkg/log"
	"github.com/cuemby/shiftkeeper/pkg/storage"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "shiftkeeper-migrate",
	Short: "Copy a bolt data dir into a SQLite database",
	Long: `Copy schedules, occurrences, sessions and attendance rows from a bolt
data dir into a SQLite database, preserving every id.

Attendance rows keep their status, arrival and departure fields along with
the excuse and review fields. Rows already present in the target (same
occurrence and user) are left alone, so the tool can be re-run after a
partial copy.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	rootCmd.Flags().String("data-dir", "./shiftkeeper-data", "Bolt data directory to read")
	rootCmd.Flags().String("sqlite", "", "Target SQLite file (default: <data-dir>/"+config.SQLiteFile+")")
	rootCmd.Flags().Bool("dry-run", false, "Show what would be migrated without making changes")
	rootCmd.Flags().String("backup", "", "Path to back up the bolt database before migrating (default: <data-dir>/shiftkeeper.db.backup)")
	rootCmd.Flags().Bool("no-backup", false, "Skip the backup")
}

func run(cmd *cobra.Command, args []string) error {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	target, _ := cmd.Flags().GetString("sqlite")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	backupPath, _ := cmd.Flags().GetString("backup")
	noBackup, _ := cmd.Flags().GetBool("no-backup")

	log.Init(log.Config{Level: log.InfoLevel})
	logger := log.WithComponent("migrate")

	dbPath := filepath.Join(dataDir, storage.BoltDBFile)
	if _, err := os.Stat(dbPath); err != nil {
		return fmt.Errorf("database not found at %s: %w", dbPath, err)
	}
	if target == "" {
		target = filepath.Join(dataDir, config.SQLiteFile)
	}

	logger.Info().
		Str("source", dbPath).
		Str("target", target).
		Bool("dry_run", dryRun).
		Msg("Starting migration")

	if !dryRun && !noBackup {
		if backupPath == "" {
			backupPath = dbPath + ".backup"
		}
		if err := copyFile(dbPath, backupPath); err != nil {
			return fmt.Errorf("failed to create backup: %w", err)
		}
		logger.Info().Str("backup", backupPath).Msg("Backup created")
	}

	src, err := storage.NewBoltStore(dataDir)
	if err != nil {
		return err
	}
	defer src.Close()

	var dst storage.Store
	if !dryRun {
		sqlite, err := storage.NewSQLiteStore(target)
		if err != nil {
			return err
		}
		defer sqlite.Close()
		dst = sqlite
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
	defer cancel()

	report, err := migrate(ctx, src, dst)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	event := logger.Info().
		Int("schedules", report.Schedules).
		Int("occurrences", report.Occurrences).
		Int("sessions", report.Sessions).
		Int("attendances", report.Attendances)
	if dryRun {
		event.Msg("Dry run completed, no changes made")
		return nil
	}
	event.Int("attendances_skipped", report.AttendancesSkipped).Msg("Migration completed")
	return nil
}

// Report counts the records read from the source and, for attendance rows,
// how many already existed in the target
type Report struct {
	Schedules          int
	Occurrences        int
	Sessions           int
	Attendances        int
	AttendancesSkipped int
}

// migrate copies every record from src to dst. A nil dst only counts.
func migrate(ctx context.Context, src, dst storage.Store) (*Report, error) {
	report := &Report{}

	schedules, err := src.ListSchedules(ctx)
	if err != nil {
		return nil, err
	}
	report.Schedules = len(schedules)
	for _, sched := range schedules {
		if dst == nil {
			break
		}
		if err := dst.PutSchedule(ctx, sched); err != nil {
			return nil, fmt.Errorf("schedule %s: %w", sched.ID, err)
		}
	}

	occs, err := src.ListOccurrences(ctx, time.Time{}, time.Time{})
	if err != nil {
		return nil, err
	}
	report.Occurrences = len(occs)
	for _, occ := range occs {
		if dst == nil {
			break
		}
		if err := dst.PutOccurrence(ctx, occ); err != nil {
			return nil, fmt.Errorf("occurrence %s: %w", occ.ID, err)
		}
	}

	sessions, err := src.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	report.Sessions = len(sessions)
	for _, session := range sessions {
		if dst == nil {
			break
		}
		if err := dst.PutSession(ctx, session); err != nil {
			return nil, fmt.Errorf("session %s: %w", session.ID, err)
		}
	}

	rows, err := src.ListAttendances(ctx)
	if err != nil {
		return nil, err
	}
	report.Attendances = len(rows)
	if dst != nil && len(rows) > 0 {
		n, err := dst.CreateAttendances(ctx, rows)
		if err != nil {
			return nil, fmt.Errorf("attendances: %w", err)
		}
		report.AttendancesSkipped = len(rows) - n
	}

	return report, nil
}

func copyFile(src, dst string) error {
	input, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, input, 0600)
}
