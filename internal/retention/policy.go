package retention

import "fmt"

// Policy selects the retention strategy applied by Evaluate. Exactly one
// concrete policy is in effect per project; configuration resolution
// guarantees GFS wins when both variants are present.
type Policy interface {
	// Validate reports whether the policy parameters are usable. A policy
	// that fails validation must be rejected before any deletion is
	// attempted.
	Validate() error
}

// SimpleAge deletes every archive older than a fixed number of days.
type SimpleAge struct {
	// RetentionDays is the age cutoff in days. Must be positive.
	RetentionDays int
}

// Validate implements Policy.
func (p SimpleAge) Validate() error {
	if p.RetentionDays <= 0 {
		return fmt.Errorf("retention: retention_days must be positive, got %d", p.RetentionDays)
	}
	return nil
}

// GFS keeps one archive per calendar day, ISO week, and month within three
// overlapping windows (son, father, grandfather).
type GFS struct {
	// SonDays is the length of the son window in days (default: 7).
	SonDays int

	// FatherWeeks is the length of the father window in weeks (default: 4).
	FatherWeeks int

	// GrandfatherMonths is the length of the grandfather window in calendar
	// months (default: 12).
	GrandfatherMonths int
}

// DefaultGFS returns a GFS policy with the standard 7/4/12 windows.
func DefaultGFS() GFS {
	return GFS{SonDays: 7, FatherWeeks: 4, GrandfatherMonths: 12}
}

// Validate implements Policy.
func (p GFS) Validate() error {
	if p.SonDays <= 0 {
		return fmt.Errorf("retention: son_days must be positive, got %d", p.SonDays)
	}
	if p.FatherWeeks <= 0 {
		return fmt.Errorf("retention: father_weeks must be positive, got %d", p.FatherWeeks)
	}
	if p.GrandfatherMonths <= 0 {
		return fmt.Errorf("retention: grandfather_months must be positive, got %d", p.GrandfatherMonths)
	}
	return nil
}
