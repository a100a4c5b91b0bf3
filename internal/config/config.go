// Package config provides configuration management for keepsake. Settings
// are loaded from a YAML file; string values may reference environment
// variables as $(VAR_NAME), which keeps WebDAV and database credentials out
// of the file itself.
package config

import (
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/scrypster/keepsake/internal/retention"
)

// Config holds all configuration for a keepsake run. It is loaded once per
// run and immutable thereafter.
type Config struct {
	WebDAV   WebDAVConfig    `yaml:"webdav"`
	Backup   BackupConfig    `yaml:"backup"`
	Logging  LoggingConfig   `yaml:"logging"`
	Projects []ProjectConfig `yaml:"projects"`
}

// WebDAVConfig describes the remote store backups are uploaded to.
type WebDAVConfig struct {
	// URL is the WebDAV endpoint, e.g.
	// https://cloud.example.org/remote.php/dav/files/backupuser
	URL string `yaml:"url"`

	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// BaseDir is prepended to every project's remote_dir.
	BaseDir string `yaml:"base_dir"`
}

// BackupConfig contains run-wide backup settings.
type BackupConfig struct {
	// TempDir is where archives are staged before upload
	// (default: storage/backup_temp).
	TempDir string `yaml:"temp_dir"`

	// Schedule is a cron expression for scheduled runs
	// (default: "0 3 * * *").
	Schedule string `yaml:"schedule"`

	// Retention is the default policy for projects without an override.
	Retention RetentionConfig `yaml:"retention"`
}

// RetentionConfig selects a retention policy. When gfs is present it takes
// precedence over retention_days. With neither set, archives are kept for
// seven days.
type RetentionConfig struct {
	// RetentionDays is the simple age cutoff in days (default: 7).
	RetentionDays int `yaml:"retention_days"`

	// GFS enables tiered retention and overrides RetentionDays.
	GFS *GFSConfig `yaml:"gfs"`
}

// GFSConfig holds the tier window lengths. Unset fields fall back to the
// standard 7/4/12 windows.
type GFSConfig struct {
	SonDays           int `yaml:"son_days"`
	FatherWeeks       int `yaml:"father_weeks"`
	GrandfatherMonths int `yaml:"grandfather_months"`
}

// ProjectConfig describes one project to back up.
type ProjectConfig struct {
	// Name identifies the project and is embedded in archive filenames.
	Name string `yaml:"name"`

	// Files lists the paths to bundle, absolute or relative to the working
	// directory.
	Files []string `yaml:"files"`

	// RemoteDir is the directory under webdav.base_dir that holds this
	// project's archives.
	RemoteDir string `yaml:"remote_dir"`

	// Database, when present, adds a MySQL dump to the archive.
	Database *DatabaseConfig `yaml:"database"`

	// Retention overrides the run-wide default policy for this project.
	Retention *RetentionConfig `yaml:"retention"`
}

// DatabaseConfig holds mysqldump connection settings.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"` // default: 3306
	Name     string `yaml:"name"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// LoggingConfig contains log output settings.
type LoggingConfig struct {
	// Level is the minimum level to emit: debug, info, warn, error
	// (default: info).
	Level string `yaml:"level"`
}

// Policy resolves this section into a retention policy. GFS takes
// precedence over the simple age cutoff when both are present.
func (rc RetentionConfig) Policy() (retention.Policy, error) {
	if rc.GFS != nil {
		g := retention.DefaultGFS()
		if rc.GFS.SonDays != 0 {
			g.SonDays = rc.GFS.SonDays
		}
		if rc.GFS.FatherWeeks != 0 {
			g.FatherWeeks = rc.GFS.FatherWeeks
		}
		if rc.GFS.GrandfatherMonths != 0 {
			g.GrandfatherMonths = rc.GFS.GrandfatherMonths
		}
		return g, g.Validate()
	}

	p := retention.SimpleAge{RetentionDays: rc.RetentionDays}
	if p.RetentionDays == 0 {
		p.RetentionDays = 7
	}
	return p, p.Validate()
}

// PolicyFor resolves the effective retention policy for a project: its own
// override when present, the run-wide default otherwise.
func (c *Config) PolicyFor(p ProjectConfig) (retention.Policy, error) {
	rc := c.Backup.Retention
	if p.Retention != nil {
		rc = *p.Retention
	}
	pol, err := rc.Policy()
	if err != nil {
		return nil, fmt.Errorf("project %s: %w", p.Name, err)
	}
	return pol, nil
}

// Validate checks the configuration before any work happens. A malformed
// retention policy in particular must be surfaced here: it must never
// silently fall back to deleting everything or nothing.
func (c *Config) Validate() error {
	if c.WebDAV.URL == "" {
		return fmt.Errorf("config: webdav.url is required")
	}
	if c.WebDAV.Username == "" {
		return fmt.Errorf("config: webdav.username is required")
	}
	if len(c.Projects) == 0 {
		return fmt.Errorf("config: at least one project is required")
	}
	if _, err := cron.ParseStandard(c.Backup.Schedule); err != nil {
		return fmt.Errorf("config: invalid backup.schedule %q: %w", c.Backup.Schedule, err)
	}

	seen := make(map[string]bool, len(c.Projects))
	for _, p := range c.Projects {
		if p.Name == "" {
			return fmt.Errorf("config: every project needs a name")
		}
		if seen[p.Name] {
			return fmt.Errorf("config: duplicate project name %q", p.Name)
		}
		seen[p.Name] = true

		if p.Database != nil {
			db := p.Database
			if db.Host == "" || db.Name == "" || db.Username == "" {
				return fmt.Errorf("config: project %s: database needs host, name and username", p.Name)
			}
		}
		if _, err := c.PolicyFor(p); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	return nil
}
