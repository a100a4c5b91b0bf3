package retention

import (
	"context"
	"path"
	"time"

	"github.com/rs/zerolog"
)

// Entry is one item of a remote directory listing.
type Entry struct {
	// Name is the bare filename of the remote archive.
	Name string

	// Modified is the modification time reported by the server, zero when
	// the server did not supply one. It is logged for operator context but
	// never used to decide deletion eligibility; only the filename
	// timestamp counts.
	Modified time.Time
}

// Remote is the transport surface the driver consumes. Implemented by the
// WebDAV client; tests substitute fakes.
type Remote interface {
	List(ctx context.Context, dir string) ([]Entry, error)
	Delete(ctx context.Context, p string) error
}

// Target is one project's retention work order: where its archives live and
// which policy applies. Records from different targets are never compared
// against each other.
type Target struct {
	Project string
	Dir     string
	Policy  Policy
}

// Summary aggregates the outcome of one retention run.
type Summary struct {
	Projects int // targets processed
	Skipped  int // targets skipped because their state could not be confirmed
	Kept     int // archives that survived evaluation
	Deleted  int // archives deleted
	Failed   int // delete attempts that failed
	Planned  int // archives that would have been deleted in dry-run mode
}

// Driver runs retention per project: list, evaluate, delete.
type Driver struct {
	remote Remote
	log    zerolog.Logger
	dryRun bool
	now    func() time.Time
}

// NewDriver creates a retention driver. With dryRun set the driver logs the
// deletion plan but issues no deletes.
func NewDriver(remote Remote, log zerolog.Logger, dryRun bool) *Driver {
	return &Driver{
		remote: remote,
		log:    log,
		dryRun: dryRun,
		now:    time.Now,
	}
}

// Run applies retention to every target in order. A failure on one target
// never aborts the others; cancellation stops further deletes, which is
// always safe because fewer deletions than planned leaves no inconsistent
// state behind.
func (d *Driver) Run(ctx context.Context, targets []Target) Summary {
	var sum Summary
	for _, t := range targets {
		if ctx.Err() != nil {
			d.log.Warn().Msg("retention interrupted, remaining projects skipped")
			break
		}
		d.runTarget(ctx, t, &sum)
	}
	return sum
}

func (d *Driver) runTarget(ctx context.Context, t Target, sum *Summary) {
	log := d.log.With().Str("project", t.Project).Logger()
	sum.Projects++

	entries, err := d.remote.List(ctx, t.Dir)
	if err != nil {
		// Never delete anything for a project whose current state could
		// not be confirmed.
		log.Error().Err(err).Msg("listing remote backups failed, skipping retention for project")
		sum.Skipped++
		return
	}

	records := make([]Record, 0, len(entries))
	for _, e := range entries {
		ts, ok := TimeFromName(e.Name)
		if !ok {
			log.Debug().Str("name", e.Name).Time("remote_mtime", e.Modified).
				Msg("filename has no parseable timestamp, archive is kept")
		}
		records = append(records, Record{Name: e.Name, Modified: ts, HasTime: ok})
	}

	doomed, err := Evaluate(records, t.Policy, d.now())
	if err != nil {
		log.Error().Err(err).Msg("retention policy rejected, skipping project")
		sum.Skipped++
		return
	}
	sum.Kept += len(records) - len(doomed)

	for _, name := range doomed {
		if ctx.Err() != nil {
			log.Warn().Msg("retention interrupted, remaining deletes skipped")
			return
		}
		target := path.Join(t.Dir, name)
		if d.dryRun {
			log.Info().Str("name", name).Msg("dry-run: would delete archive")
			sum.Planned++
			continue
		}
		if err := d.remote.Delete(ctx, target); err != nil {
			log.Error().Err(err).Str("name", name).Msg("deleting archive failed")
			sum.Failed++
			continue
		}
		log.Info().Str("name", name).Msg("deleted archive")
		sum.Deleted++
	}
}
