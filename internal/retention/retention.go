// Package retention decides which remote backup archives to keep and which
// to delete, supporting a simple age cutoff and Grandfather-Father-Son
// tiered retention.
//
// The evaluator is pure: it receives the records, the policy, and the
// reference time, and returns the set of identifiers to delete. Listing and
// deleting archives is done by the Driver through the Remote interface.
package retention

import (
	"regexp"
	"time"
)

// Record is one remote backup archive, scoped to a single project.
// A Record is built fresh from a live listing on every run; nothing is
// persisted between runs.
type Record struct {
	// Name is the archive filename, unique within a project's backup set.
	Name string

	// Modified is the timestamp parsed from the filename. Only meaningful
	// when HasTime is true.
	Modified time.Time

	// HasTime reports whether a timestamp could be parsed from the filename.
	// Records without a timestamp are never eligible for deletion.
	HasTime bool
}

// Archive filenames look like backup_<project>_<YYYYMMDD>_<HHMMSS>.<ext>.
// The project part may itself contain underscores.
var namePattern = regexp.MustCompile(`(?i)^backup_.+_(\d{8})_(\d{6})\.[a-z0-9]+$`)

// TimeFromName extracts the UTC timestamp embedded in a backup archive
// filename. It returns false for anything that deviates from the expected
// pattern, including syntactically well-formed names with an invalid
// calendar date. Remote modification times are unreliable on some servers,
// so the filename is the authoritative source of an archive's age.
func TimeFromName(name string) (time.Time, bool) {
	m := namePattern.FindStringSubmatch(name)
	if m == nil {
		return time.Time{}, false
	}
	t, err := time.Parse("20060102_150405", m[1]+"_"+m[2])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
