// Package webdav implements the remote store over the WebDAV protocol
// (Nextcloud-style). Every call is paced by a rate limiter and guarded by a
// circuit breaker so a dying server trips fast instead of being hammered
// through a long delete loop.
package webdav

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	dav "github.com/emersion/go-webdav"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/scrypster/keepsake/internal/config"
	"github.com/scrypster/keepsake/internal/retention"
)

// Client talks to one WebDAV endpoint with basic auth. It satisfies both
// the upload surface of the backup service and retention.Remote.
type Client struct {
	dav     *dav.Client
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	log     zerolog.Logger
}

// New creates a WebDAV client from configuration.
func New(cfg config.WebDAVConfig, log zerolog.Logger) (*Client, error) {
	httpClient := dav.HTTPClientWithBasicAuth(nil, cfg.Username, cfg.Password)
	davClient, err := dav.NewClient(httpClient, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("webdav: creating client for %s: %w", cfg.URL, err)
	}

	c := &Client{
		dav: davClient,
		// 10 ops/s is far below what any WebDAV server minds but keeps
		// bulk retention deletes from looking like an attack.
		limiter: rate.NewLimiter(rate.Limit(10), 5),
		log:     log,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "webdav",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("from", from.String()).Str("to", to.String()).
				Msg("webdav circuit breaker state changed")
		},
	})
	return c, nil
}

// do runs one remote operation through the limiter and the breaker.
func (c *Client) do(ctx context.Context, op string, fn func() error) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if err != nil {
		return fmt.Errorf("webdav %s: %w", op, err)
	}
	return nil
}

// List returns the files directly under dir. Collections are skipped; the
// caller only cares about archives.
func (c *Client) List(ctx context.Context, dir string) ([]retention.Entry, error) {
	var infos []dav.FileInfo
	err := c.do(ctx, "list "+dir, func() error {
		var err error
		infos, err = c.dav.ReadDir(ctx, dir, false)
		return err
	})
	if err != nil {
		return nil, err
	}

	entries := make([]retention.Entry, 0, len(infos))
	for _, fi := range infos {
		if fi.IsDir {
			continue
		}
		entries = append(entries, retention.Entry{
			Name:     path.Base(fi.Path),
			Modified: fi.ModTime,
		})
	}
	return entries, nil
}

// Upload streams the local file into remoteDir under its base name.
func (c *Client) Upload(ctx context.Context, localPath, remoteDir string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("webdav upload: %w", err)
	}
	defer f.Close()

	target := path.Join(remoteDir, filepath.Base(localPath))
	return c.do(ctx, "upload "+target, func() error {
		w, err := c.dav.Create(ctx, target)
		if err != nil {
			return err
		}
		if _, err := io.Copy(w, f); err != nil {
			w.Close()
			return err
		}
		return w.Close()
	})
}

// MkdirAll creates dir and its parents. WebDAV MKCOL fails on an existing
// collection, so per-segment errors are expected and ignored (and bypass
// the breaker); a genuinely missing tree surfaces on the following upload.
func (c *Client) MkdirAll(ctx context.Context, dir string) error {
	var prefix string
	for _, seg := range strings.Split(strings.Trim(dir, "/"), "/") {
		if seg == "" {
			continue
		}
		prefix = path.Join(prefix, seg)
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		_ = c.dav.Mkdir(ctx, prefix)
	}
	return nil
}

// Delete removes one remote file.
func (c *Client) Delete(ctx context.Context, p string) error {
	return c.do(ctx, "delete "+p, func() error {
		return c.dav.RemoveAll(ctx, p)
	})
}
