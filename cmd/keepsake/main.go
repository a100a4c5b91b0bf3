// Command keepsake runs scheduled multi-project backups: it bundles each
// project's files (and optional MySQL dump) into a zip, uploads it to a
// WebDAV remote, and prunes old archives per the configured retention
// policy.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/scrypster/keepsake/internal/archive"
	"github.com/scrypster/keepsake/internal/backup"
	"github.com/scrypster/keepsake/internal/config"
	"github.com/scrypster/keepsake/internal/logger"
	"github.com/scrypster/keepsake/internal/retention"
	"github.com/scrypster/keepsake/internal/webdav"
)

var (
	configPath    = flag.String("config", "config.yaml", "Path to configuration file")
	oneshot       = flag.Bool("oneshot", false, "Perform a single backup cycle and exit")
	retentionOnly = flag.Bool("retention-only", false, "Apply retention without creating backups, then exit")
	dryRun        = flag.Bool("dry-run", false, "Log what retention would delete without deleting")
	listProject   = flag.String("list", "", "List remote archives for the named project and exit")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "keepsake: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level)

	client, err := webdav.New(cfg.WebDAV, log)
	if err != nil {
		log.Fatal().Err(err).Msg("creating webdav client failed")
	}

	builder := archive.NewBuilder(".", cfg.Backup.TempDir, log)
	driver := retention.NewDriver(client, log, *dryRun)
	service := backup.NewService(cfg, builder, client, driver, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch {
	case *listProject != "":
		handleList(ctx, cfg, service, client)
	case *retentionOnly:
		sum := service.RunRetention(ctx)
		log.Info().
			Int("deleted", sum.Deleted).
			Int("failed", sum.Failed).
			Int("skipped", sum.Skipped).
			Int("planned", sum.Planned).
			Msg("retention finished")
	case *oneshot:
		if err := service.RunOnce(ctx); err != nil {
			log.Fatal().Err(err).Msg("backup cycle aborted")
		}
	default:
		if err := service.Start(ctx); err != nil && err != context.Canceled {
			log.Fatal().Err(err).Msg("backup scheduler failed")
		}
	}
}

func handleList(ctx context.Context, cfg *config.Config, service *backup.Service, client *webdav.Client) {
	var project *config.ProjectConfig
	for i := range cfg.Projects {
		if cfg.Projects[i].Name == *listProject {
			project = &cfg.Projects[i]
			break
		}
	}
	if project == nil {
		fmt.Fprintf(os.Stderr, "keepsake: unknown project %q\n", *listProject)
		os.Exit(1)
	}

	entries, err := client.List(ctx, service.RemoteDir(*project))
	if err != nil {
		fmt.Fprintf(os.Stderr, "keepsake: listing failed: %v\n", err)
		os.Exit(1)
	}

	if len(entries) == 0 {
		fmt.Println("No archives found")
		return
	}

	fmt.Printf("Found %d archive(s) for %s:\n\n", len(entries), project.Name)
	for i, e := range entries {
		fmt.Printf("%d. %s\n", i+1, e.Name)
		if ts, ok := retention.TimeFromName(e.Name); ok {
			fmt.Printf("   Created: %s (%s ago)\n",
				ts.Format(time.RFC3339),
				time.Since(ts).Round(time.Minute))
		} else {
			fmt.Println("   Created: unknown (filename has no timestamp; never pruned)")
		}
	}
}
