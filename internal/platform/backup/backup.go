// Package backup writes periodic snapshots of the local patient store.
package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const filePrefix = "patients-"

// Snapshotter writes a consistent copy of a store to w.
type Snapshotter interface {
	Snapshot(ctx context.Context, w io.Writer) (int64, error)
}

// Scheduler runs snapshots into Dir on a cron schedule and keeps the newest
// Retain files.
type Scheduler struct {
	source Snapshotter
	dir    string
	retain int
	logger zerolog.Logger
	now    func() time.Time

	mu     sync.Mutex
	cron   *cron.Cron
	runCtx context.Context
	cancel context.CancelFunc
}

func NewScheduler(source Snapshotter, dir string, retain int, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		source: source,
		dir:    dir,
		retain: retain,
		logger: logger.With().Str("component", "backup").Logger(),
		now:    time.Now,
	}
}

// Start schedules RunOnce with a standard five-field cron spec or a
// descriptor such as "@daily".
func (s *Scheduler) Start(ctx context.Context, spec string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return errors.New("backup scheduler already started")
	}

	s.runCtx, s.cancel = context.WithCancel(ctx)
	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		if _, err := s.RunOnce(s.runCtx); err != nil {
			s.logger.Error().Err(err).Msg("scheduled backup failed")
		}
	}); err != nil {
		s.cancel()
		return fmt.Errorf("invalid backup schedule %q: %w", spec, err)
	}
	c.Start()
	s.cron = c
	s.logger.Info().Str("schedule", spec).Str("dir", s.dir).Msg("backup scheduler started")
	return nil
}

// Stop waits for a running backup to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	if s.cron != nil {
		<-s.cron.Stop().Done()
		s.cron = nil
	}
}

// RunOnce writes one snapshot and prunes old ones. It returns the path of
// the new file.
func (s *Scheduler) RunOnce(ctx context.Context) (string, error) {
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}

	name := filePrefix + s.now().UTC().Format("20060102T150405.000000000") + ".db"
	final := filepath.Join(s.dir, name)

	tmp, err := os.CreateTemp(s.dir, ".tmp-"+filePrefix+"*")
	if err != nil {
		return "", fmt.Errorf("create temp backup: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := s.source.Snapshot(ctx, tmp)
	if err != nil {
		tmp.Close()
		return "", fmt.Errorf("snapshot store: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("sync backup: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close backup: %w", err)
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		return "", fmt.Errorf("finalize backup: %w", err)
	}

	s.logger.Info().Str("file", final).Int64("bytes", n).Msg("backup written")

	if err := s.prune(); err != nil {
		s.logger.Warn().Err(err).Msg("prune old backups")
	}
	return final, nil
}

func (s *Scheduler) prune() error {
	if s.retain <= 0 {
		return nil
	}
	backups, err := List(s.dir)
	if err != nil {
		return err
	}
	if len(backups) <= s.retain {
		return nil
	}
	var errs []error
	for _, old := range backups[:len(backups)-s.retain] {
		if err := os.Remove(old); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// List returns the backup files in dir, oldest first.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read backup dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), filePrefix) || !strings.HasSuffix(e.Name(), ".db") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	// Timestamped names sort chronologically.
	sort.Strings(files)
	return files, nil
}
