package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/scrypster/keepsake/internal/config"
)

// addDump runs mysqldump for the project's database and adds the result to
// the archive as dump.sql. The dump goes to a staging file first so a dump
// that dies halfway never leaves a truncated dump.sql inside the archive.
func (b *Builder) addDump(ctx context.Context, zw *zip.Writer, project config.ProjectConfig) error {
	db := project.Database

	sqlPath := filepath.Join(b.tempDir, fmt.Sprintf("dump_%s.sql", project.Name))
	out, err := os.Create(sqlPath)
	if err != nil {
		return fmt.Errorf("creating dump file: %w", err)
	}
	defer os.Remove(sqlPath)

	args := []string{
		"-h", db.Host,
		"-P", strconv.Itoa(db.Port),
		"-u", db.Username,
	}
	if db.Password != "" {
		args = append(args, "--password="+db.Password)
	}
	args = append(args, db.Name)

	cmd := exec.CommandContext(ctx, "mysqldump", args...)
	cmd.Stdout = out
	cmd.Stderr = io.Discard
	runErr := cmd.Run()
	if err := out.Close(); err != nil && runErr == nil {
		runErr = err
	}
	if runErr != nil {
		return fmt.Errorf("mysqldump %s: %w", db.Name, runErr)
	}

	w, err := zw.Create("dump.sql")
	if err != nil {
		return err
	}
	f, err := os.Open(sqlPath)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}
