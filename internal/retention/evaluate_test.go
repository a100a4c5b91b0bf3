package retention

import (
	"reflect"
	"testing"
	"time"
)

func dated(name string, ts time.Time) Record {
	return Record{Name: name, Modified: ts, HasTime: true}
}

// TestEvaluateSimpleAge tests the plain age cutoff: 9 days old is deleted,
// 5 days old is kept, with retention_days = 7.
func TestEvaluateSimpleAge(t *testing.T) {
	now := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	records := []Record{
		dated("backup_site_20240101_000000.zip", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
		dated("backup_site_20240105_000000.zip", time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)),
	}

	doomed, err := Evaluate(records, SimpleAge{RetentionDays: 7}, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"backup_site_20240101_000000.zip"}
	if !reflect.DeepEqual(doomed, want) {
		t.Errorf("expected %v, got %v", want, doomed)
	}
}

// TestEvaluateSimpleAgeFullPrecision tests that the cutoff is computed with
// full time precision: exactly at the cutoff is kept, one second past it is
// deleted.
func TestEvaluateSimpleAgeFullPrecision(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	atCutoff := dated("backup_site_20240608_120000.zip", now.Add(-7*24*time.Hour))
	pastCutoff := dated("backup_site_20240608_115959.zip", now.Add(-7*24*time.Hour-time.Second))

	doomed, err := Evaluate([]Record{atCutoff, pastCutoff}, SimpleAge{RetentionDays: 7}, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{pastCutoff.Name}
	if !reflect.DeepEqual(doomed, want) {
		t.Errorf("expected %v, got %v", want, doomed)
	}
}

// TestEvaluateProtectsRecent tests that archives dated within the last hour
// of now are never deleted, under both policy variants. This protects an
// archive just uploaded by the same run from a stale retention pass.
func TestEvaluateProtectsRecent(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	records := []Record{
		dated("backup_site_20240310_113000.zip", now.Add(-30*time.Minute)),
		dated("backup_site_20240310_130000.zip", now.Add(time.Hour)), // future-dated
	}

	policies := []Policy{
		SimpleAge{RetentionDays: 1},
		GFS{SonDays: 1, FatherWeeks: 1, GrandfatherMonths: 1},
	}
	for _, p := range policies {
		doomed, err := Evaluate(records, p, now)
		if err != nil {
			t.Fatalf("%T: unexpected error: %v", p, err)
		}
		if len(doomed) != 0 {
			t.Errorf("%T: recent archives must never be deleted, got %v", p, doomed)
		}
	}
}

// TestEvaluateProtectsAbsentTimestamp tests that archives without a
// parseable timestamp are never deleted, regardless of policy and of how
// old the remote claims they are.
func TestEvaluateProtectsAbsentTimestamp(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	records := []Record{
		{Name: "notes.txt"},
		{Name: "backup_site_latest.zip"},
	}

	policies := []Policy{
		SimpleAge{RetentionDays: 1},
		GFS{SonDays: 1, FatherWeeks: 1, GrandfatherMonths: 1},
	}
	for _, p := range policies {
		doomed, err := Evaluate(records, p, now)
		if err != nil {
			t.Fatalf("%T: unexpected error: %v", p, err)
		}
		if len(doomed) != 0 {
			t.Errorf("%T: undatable archives must never be deleted, got %v", p, doomed)
		}
	}
}

// TestEvaluateGFSSingleRepresentativePerDay tests that among three archives
// on the same calendar day inside the son window, only the latest survives.
func TestEvaluateGFSSingleRepresentativePerDay(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	records := []Record{
		dated("backup_site_20240308_060000.zip", time.Date(2024, 3, 8, 6, 0, 0, 0, time.UTC)),
		dated("backup_site_20240308_120000.zip", time.Date(2024, 3, 8, 12, 0, 0, 0, time.UTC)),
		dated("backup_site_20240308_180000.zip", time.Date(2024, 3, 8, 18, 0, 0, 0, time.UTC)),
	}

	doomed, err := Evaluate(records, DefaultGFS(), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{
		"backup_site_20240308_060000.zip",
		"backup_site_20240308_120000.zip",
	}
	if !reflect.DeepEqual(doomed, want) {
		t.Errorf("expected %v, got %v", want, doomed)
	}
}

// TestEvaluateGFSTierUnion tests that an archive outside the son window
// still survives when it is its ISO week's representative in the father
// window.
func TestEvaluateGFSTierUnion(t *testing.T) {
	now := time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC)
	weekRep := dated("backup_site_20240305_080000.zip", time.Date(2024, 3, 5, 8, 0, 0, 0, time.UTC))
	outcompeted := dated("backup_site_20240304_080000.zip", time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC))

	doomed, err := Evaluate([]Record{weekRep, outcompeted}, DefaultGFS(), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{outcompeted.Name}
	if !reflect.DeepEqual(doomed, want) {
		t.Errorf("expected %v, got %v", want, doomed)
	}
}

// TestEvaluateGFSOutsideAllWindows tests that archives older than every
// tier window are deleted.
func TestEvaluateGFSOutsideAllWindows(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	ancient := dated("backup_site_20220101_000000.zip", time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC))

	doomed, err := Evaluate([]Record{ancient}, DefaultGFS(), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{ancient.Name}
	if !reflect.DeepEqual(doomed, want) {
		t.Errorf("expected %v, got %v", want, doomed)
	}
}

// TestEvaluateGFSScenario runs the reference scenario: GFS(2, 1, 1) at
// 2024-03-10T12:00 with two archives on 2024-03-09. The 22:00 archive wins
// every bucket both fall into, so the 10:00 archive is deleted.
func TestEvaluateGFSScenario(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	records := []Record{
		dated("backup_site_20240309_100000.zip", time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC)),
		dated("backup_site_20240309_220000.zip", time.Date(2024, 3, 9, 22, 0, 0, 0, time.UTC)),
	}

	doomed, err := Evaluate(records, GFS{SonDays: 2, FatherWeeks: 1, GrandfatherMonths: 1}, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"backup_site_20240309_100000.zip"}
	if !reflect.DeepEqual(doomed, want) {
		t.Errorf("expected %v, got %v", want, doomed)
	}
}

// TestEvaluateGFSRecentExcludedFromBuckets tests that a protected recent
// archive does not compete for its day bucket: the older archive of the
// same day becomes the representative and both survive.
func TestEvaluateGFSRecentExcludedFromBuckets(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	records := []Record{
		dated("backup_site_20240310_113000.zip", now.Add(-30*time.Minute)),
		dated("backup_site_20240310_070000.zip", now.Add(-5*time.Hour)),
	}

	doomed, err := Evaluate(records, DefaultGFS(), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(doomed) != 0 {
		t.Errorf("expected both archives kept, got deletions %v", doomed)
	}
}

// TestEvaluateGFSTieBreakDeterministic tests that two archives sharing the
// exact same timestamp resolve by identifier order regardless of input
// order.
func TestEvaluateGFSTieBreakDeterministic(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	ts := time.Date(2024, 3, 8, 12, 0, 0, 0, time.UTC)
	a := dated("backup_alpha_20240308_120000.zip", ts)
	b := dated("backup_beta_20240308_120000.zip", ts)

	first, err := Evaluate([]Record{a, b}, DefaultGFS(), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := Evaluate([]Record{b, a}, DefaultGFS(), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{a.Name}
	if !reflect.DeepEqual(first, want) {
		t.Errorf("expected %v, got %v", want, first)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("tie-break depends on input order: %v vs %v", first, second)
	}
}

// TestEvaluateIdempotent tests that evaluating the same input twice with
// the same reference time yields the same deletion set.
func TestEvaluateIdempotent(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	records := []Record{
		dated("backup_site_20240308_060000.zip", time.Date(2024, 3, 8, 6, 0, 0, 0, time.UTC)),
		dated("backup_site_20240308_180000.zip", time.Date(2024, 3, 8, 18, 0, 0, 0, time.UTC)),
		dated("backup_site_20230115_030000.zip", time.Date(2023, 1, 15, 3, 0, 0, 0, time.UTC)),
		{Name: "backup_site_latest.zip"},
	}

	first, err := Evaluate(records, DefaultGFS(), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := Evaluate(records, DefaultGFS(), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Errorf("evaluation is not idempotent: %v vs %v", first, second)
	}
}

// TestEvaluateRejectsBadPolicy tests that a missing or malformed policy is
// an error rather than a silent delete-everything or delete-nothing.
func TestEvaluateRejectsBadPolicy(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	records := []Record{dated("backup_site_20240101_000000.zip", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))}

	if _, err := Evaluate(records, nil, now); err == nil {
		t.Error("expected error for nil policy")
	}
	if _, err := Evaluate(records, SimpleAge{RetentionDays: 0}, now); err == nil {
		t.Error("expected error for non-positive retention_days")
	}
	if _, err := Evaluate(records, GFS{SonDays: 7, FatherWeeks: -1, GrandfatherMonths: 12}, now); err == nil {
		t.Error("expected error for negative father_weeks")
	}
}
