// Package backup orchestrates the full backup cycle: archive each project,
// upload the archives to the remote store, then prune old archives per the
// configured retention policies.
package backup

import (
	"context"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/scrypster/keepsake/internal/archive"
	"github.com/scrypster/keepsake/internal/config"
	"github.com/scrypster/keepsake/internal/retention"
)

// Remote is the upload surface of the remote store. The WebDAV client also
// implements retention.Remote, so one client serves the whole cycle.
type Remote interface {
	retention.Remote
	MkdirAll(ctx context.Context, dir string) error
	Upload(ctx context.Context, localPath, remoteDir string) error
}

// Service runs backup cycles, either once or on a cron schedule.
type Service struct {
	cfg     *config.Config
	builder *archive.Builder
	remote  Remote
	driver  *retention.Driver
	log     zerolog.Logger
}

// NewService wires the backup cycle together. The retention driver shares
// the remote client but is passed in separately so dry-run and
// retention-only modes stay a caller concern.
func NewService(cfg *config.Config, builder *archive.Builder, remote Remote, driver *retention.Driver, log zerolog.Logger) *Service {
	return &Service{
		cfg:     cfg,
		builder: builder,
		remote:  remote,
		driver:  driver,
		log:     log,
	}
}

// RunOnce performs a single backup cycle. One project failing to archive or
// upload never stops the others, and retention runs only after every upload
// attempt has finished so a fresh archive is already on the server when its
// siblings are judged.
func (s *Service) RunOnce(ctx context.Context) error {
	log := s.log.With().Str("run_id", uuid.NewString()).Logger()
	started := time.Now()

	for _, project := range s.cfg.Projects {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.backupProject(ctx, log, project); err != nil {
			log.Error().Err(err).Str("project", project.Name).Msg("project backup failed")
		}
	}

	sum := s.RunRetention(ctx)
	log.Info().
		Int("projects", len(s.cfg.Projects)).
		Int("retention_deleted", sum.Deleted).
		Int("retention_failed", sum.Failed).
		Int("retention_skipped", sum.Skipped).
		Dur("elapsed", time.Since(started)).
		Msg("backup cycle finished")
	return ctx.Err()
}

// RunRetention prunes old archives for every configured project.
func (s *Service) RunRetention(ctx context.Context) retention.Summary {
	return s.driver.Run(ctx, s.Targets())
}

// Targets maps the configuration to per-project retention work orders.
// Policies were validated at load time, so resolution cannot fail here.
func (s *Service) Targets() []retention.Target {
	targets := make([]retention.Target, 0, len(s.cfg.Projects))
	for _, p := range s.cfg.Projects {
		pol, err := s.cfg.PolicyFor(p)
		if err != nil {
			s.log.Error().Err(err).Str("project", p.Name).Msg("unusable retention policy, project skipped")
			continue
		}
		targets = append(targets, retention.Target{
			Project: p.Name,
			Dir:     s.RemoteDir(p),
			Policy:  pol,
		})
	}
	return targets
}

// RemoteDir returns the remote directory holding a project's archives.
func (s *Service) RemoteDir(p config.ProjectConfig) string {
	return path.Join(s.cfg.WebDAV.BaseDir, p.RemoteDir)
}

func (s *Service) backupProject(ctx context.Context, log zerolog.Logger, project config.ProjectConfig) error {
	log = log.With().Str("project", project.Name).Logger()
	log.Info().Msg("backing up project")

	zipPath, err := s.builder.Build(ctx, project)
	if err != nil {
		return fmt.Errorf("building archive: %w", err)
	}
	defer os.Remove(zipPath)

	dir := s.RemoteDir(project)
	if err := s.remote.MkdirAll(ctx, dir); err != nil {
		return fmt.Errorf("preparing remote directory: %w", err)
	}
	if err := s.remote.Upload(ctx, zipPath, dir); err != nil {
		return fmt.Errorf("uploading archive: %w", err)
	}

	log.Info().Str("archive", zipPath).Str("remote_dir", dir).Msg("archive uploaded")
	return nil
}

// Start runs backup cycles on the configured cron schedule until the
// context is cancelled. An interrupt mid-cycle stops further uploads and
// deletes; a shorter run than planned is always a safe place to stop.
func (s *Service) Start(ctx context.Context) error {
	c := cron.New()
	_, err := c.AddFunc(s.cfg.Backup.Schedule, func() {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Error().Err(err).Msg("scheduled backup cycle aborted")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", s.cfg.Backup.Schedule, err)
	}

	s.log.Info().Str("schedule", s.cfg.Backup.Schedule).Msg("backup scheduler started")
	c.Start()
	<-ctx.Done()

	// Wait for a cycle that is already past its context checks.
	<-c.Stop().Done()
	s.log.Info().Msg("backup scheduler stopped")
	return ctx.Err()
}
