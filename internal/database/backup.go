package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const backupPrefix = "daimaescape_"

// BackupService takes scheduled online snapshots of the database.
type BackupService struct {
	db        *DB
	dir       string
	schedule  string
	retention time.Duration
	logger    zerolog.Logger
	now       func() time.Time
}

func NewBackupService(db *DB, dir, schedule string, retention time.Duration, logger *zerolog.Logger) *BackupService {
	return &BackupService{
		db:        db,
		dir:       dir,
		schedule:  schedule,
		retention: retention,
		logger:    logger.With().Str("component", "backup").Logger(),
		now:       time.Now,
	}
}

// Start registers the backup job and runs the scheduler until ctx is done.
func (s *BackupService) Start(ctx context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc(s.schedule, func() { s.run(ctx) }); err != nil {
		return fmt.Errorf("invalid backup schedule %q: %w", s.schedule, err)
	}

	s.logger.Info().Str("schedule", s.schedule).Str("dir", s.dir).Msg("backup service started")
	c.Start()

	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
		s.logger.Info().Msg("backup service stopped")
	}()
	return nil
}

func (s *BackupService) run(ctx context.Context) {
	path, err := s.PerformBackup(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("scheduled backup failed")
		return
	}
	s.logger.Info().Str("path", path).Msg("backup completed")

	removed, err := s.CleanupOldBackups()
	if err != nil {
		s.logger.Error().Err(err).Msg("backup cleanup failed")
		return
	}
	if removed > 0 {
		s.logger.Info().Int("removed", removed).Msg("old backups deleted")
	}
}

// PerformBackup writes a consistent copy of the live database with VACUUM INTO.
func (s *BackupService) PerformBackup(ctx context.Context) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	name := backupPrefix + s.now().UTC().Format("20060102_150405") + ".db"
	path := filepath.Join(s.dir, name)

	if _, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, path); err != nil {
		return "", fmt.Errorf("vacuum into %s: %w", path, err)
	}
	return path, nil
}

// CleanupOldBackups deletes snapshots older than the retention window.
func (s *BackupService) CleanupOldBackups() (int, error) {
	if s.retention <= 0 {
		return 0, nil
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, err
	}

	cutoff := s.now().Add(-s.retention)
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), backupPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
				s.logger.Warn().Err(err).Str("file", e.Name()).Msg("failed to delete old backup")
				continue
			}
			removed++
		}
	}
	return removed, nil
}
