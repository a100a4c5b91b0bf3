// Package archive bundles a project's files and an optional database dump
// into a timestamped zip, staged locally until the upload completes.
package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/scrypster/keepsake/internal/config"
)

// Builder creates backup archives in the staging directory.
type Builder struct {
	baseDir string
	tempDir string
	log     zerolog.Logger

	// now is the clock used for archive naming, replaceable in tests.
	now func() time.Time
}

// NewBuilder returns a Builder. Relative project paths resolve against
// baseDir; archives are written to tempDir.
func NewBuilder(baseDir, tempDir string, log zerolog.Logger) *Builder {
	return &Builder{
		baseDir: baseDir,
		tempDir: tempDir,
		log:     log,
		now:     time.Now,
	}
}

// Build writes one archive for the project and returns its path. The name
// carries the build time, which is what retention later reads back:
// backup_<project>_<YYYYMMDD>_<HHMMSS>.zip. Missing source paths are
// skipped, and a failing database dump still yields a file-only archive;
// an incomplete backup beats no backup.
func (b *Builder) Build(ctx context.Context, project config.ProjectConfig) (string, error) {
	if err := os.MkdirAll(b.tempDir, 0o755); err != nil {
		return "", fmt.Errorf("creating staging directory: %w", err)
	}

	ts := b.now().UTC().Format("20060102_150405")
	zipPath := filepath.Join(b.tempDir, fmt.Sprintf("backup_%s_%s.zip", project.Name, ts))

	f, err := os.Create(zipPath)
	if err != nil {
		return "", fmt.Errorf("creating archive: %w", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	if err := b.fill(ctx, zw, project); err != nil {
		zw.Close()
		os.Remove(zipPath)
		return "", err
	}
	if err := zw.Close(); err != nil {
		os.Remove(zipPath)
		return "", fmt.Errorf("finalizing archive: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(zipPath)
		return "", fmt.Errorf("closing archive: %w", err)
	}
	return zipPath, nil
}

func (b *Builder) fill(ctx context.Context, zw *zip.Writer, project config.ProjectConfig) error {
	for _, p := range project.Files {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := b.addPath(ctx, zw, p); err != nil {
			return err
		}
	}

	if project.Database != nil {
		if err := b.addDump(ctx, zw, project); err != nil {
			b.log.Warn().Err(err).Str("project", project.Name).
				Msg("database dump failed, archive contains files only")
		}
	}
	return nil
}

// addPath writes one configured path into the archive: a file under its
// configured relative path, a directory recursively under its base name.
func (b *Builder) addPath(ctx context.Context, zw *zip.Writer, p string) error {
	full := p
	if !filepath.IsAbs(p) {
		full = filepath.Join(b.baseDir, p)
	}

	info, err := os.Stat(full)
	if err != nil {
		b.log.Warn().Str("path", p).Msg("configured path does not exist, skipped")
		return nil
	}

	if !info.IsDir() {
		return b.addFile(zw, full, filepath.ToSlash(p))
	}

	root := filepath.Base(full)
	return filepath.Walk(full, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(full, path)
		if err != nil {
			return err
		}
		return b.addFile(zw, path, root+"/"+filepath.ToSlash(rel))
	})
}

func (b *Builder) addFile(zw *zip.Writer, full, arcName string) error {
	w, err := zw.Create(arcName)
	if err != nil {
		return err
	}
	f, err := os.Open(full)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}
