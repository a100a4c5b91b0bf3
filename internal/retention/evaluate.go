package retention

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// recentWindow protects archives created moments ago (typically by the
// upload phase of the same run) from a stale retention pass.
const recentWindow = time.Hour

// Evaluate computes the identifiers to delete among records, which must all
// belong to the same project. The reference time now is injected so the
// decision is deterministic and testable.
//
// Two rules hold under every policy: an archive whose timestamp could not
// be parsed is always kept, and an archive dated within the last hour of
// now is always kept. When in doubt, data is not destroyed.
//
// The returned slice is sorted by identifier.
func Evaluate(records []Record, p Policy, now time.Time) ([]string, error) {
	if p == nil {
		return nil, errors.New("retention: no policy configured")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	var doomed []string
	switch pol := p.(type) {
	case SimpleAge:
		doomed = evaluateSimpleAge(records, pol, now)
	case GFS:
		doomed = evaluateGFS(records, pol, now)
	default:
		return nil, fmt.Errorf("retention: unsupported policy type %T", p)
	}

	sort.Strings(doomed)
	return doomed, nil
}

// protected reports whether a record is exempt from deletion regardless of
// policy. A future-dated record has a negative age and is covered by the
// recent-hour rule.
func protected(r Record, now time.Time) bool {
	return !r.HasTime || now.Sub(r.Modified) < recentWindow
}

func evaluateSimpleAge(records []Record, p SimpleAge, now time.Time) []string {
	// Full time precision, not truncated to whole days.
	cutoff := time.Duration(p.RetentionDays) * 24 * time.Hour

	var doomed []string
	for _, r := range records {
		if protected(r, now) {
			continue
		}
		if now.Sub(r.Modified) > cutoff {
			doomed = append(doomed, r.Name)
		}
	}
	return doomed
}

// tier identifies one of the three GFS windows.
type tier int

const (
	tierSon tier = iota
	tierFather
	tierGrandfather
)

// bucketKey groups records that compete for the same surviving slot.
type bucketKey struct {
	tier tier
	key  string
}

func evaluateGFS(records []Record, p GFS, now time.Time) []string {
	sonCut := now.Add(-time.Duration(p.SonDays) * 24 * time.Hour)
	fatherCut := now.Add(-time.Duration(p.FatherWeeks) * 7 * 24 * time.Hour)
	grandCut := now.AddDate(0, -p.GrandfatherMonths, 0)

	// One representative per (tier, bucket): the latest archive in the
	// bucket, identifier order as the final tie-break.
	reps := make(map[bucketKey]Record)
	for _, r := range records {
		if protected(r, now) {
			continue
		}
		for _, b := range buckets(r.Modified, sonCut, fatherCut, grandCut) {
			cur, ok := reps[b]
			if !ok || supersedes(r, cur) {
				reps[b] = r
			}
		}
	}

	keep := make(map[string]bool, len(reps))
	for _, r := range reps {
		keep[r.Name] = true
	}

	// Whatever is neither protected nor a representative of any bucket it
	// falls into is deleted. That covers both records older than every
	// window and records outcompeted within their buckets.
	var doomed []string
	for _, r := range records {
		if protected(r, now) || keep[r.Name] {
			continue
		}
		doomed = append(doomed, r.Name)
	}
	return doomed
}

// buckets returns the (tier, bucket) pairs a timestamp belongs to. The
// windows overlap: a three-day-old archive competes in its day bucket and,
// when the father window reaches that far, in its ISO-week bucket too.
func buckets(ts time.Time, sonCut, fatherCut, grandCut time.Time) []bucketKey {
	var out []bucketKey
	if !ts.Before(sonCut) {
		out = append(out, bucketKey{tierSon, ts.Format("2006-01-02")})
	}
	if !ts.Before(fatherCut) {
		year, week := ts.ISOWeek()
		out = append(out, bucketKey{tierFather, fmt.Sprintf("%04d-W%02d", year, week)})
	}
	if !ts.Before(grandCut) {
		out = append(out, bucketKey{tierGrandfather, ts.Format("2006-01")})
	}
	return out
}

// supersedes reports whether a should replace b as a bucket representative.
func supersedes(a, b Record) bool {
	if !a.Modified.Equal(b.Modified) {
		return a.Modified.After(b.Modified)
	}
	return a.Name > b.Name
}
