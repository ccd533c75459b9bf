// Package verdict provides deterministic local logic for scoring a
// generation run and deciding its verdict. No provider calls are made here.
package verdict

import (
	"fmt"
	"strings"

	"github.com/dshills/testgap/internal/schema"
)

// DegradedPenalty is subtracted from the score for every degraded test.
const DegradedPenalty = 5

// ComputeScore calculates the run score from the summary counts.
// Start at the accepted percentage; subtract DegradedPenalty per degraded
// test; clamp to [0, 100]. A run that generated nothing scores 100.
func ComputeScore(s schema.Summary) int {
	if s.Generated == 0 {
		return 100
	}
	score := int(s.AcceptedPct+0.5) - s.Degraded*DegradedPenalty
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// VerdictOrdinal returns the numeric ordinal for a verdict, used to compare
// severity order. COMPLETE=0, PARTIAL=1, DEGRADED=2, FAILED=3.
// Used by --fail-on comparison: exit 2 if VerdictOrdinal(actual) >= VerdictOrdinal(threshold).
func VerdictOrdinal(v schema.Verdict) int {
	switch v {
	case schema.VerdictComplete:
		return 0
	case schema.VerdictPartial:
		return 1
	case schema.VerdictDegraded:
		return 2
	case schema.VerdictFailed:
		return 3
	default:
		return -1
	}
}

// ParseVerdict accepts a verdict name in any case.
func ParseVerdict(s string) (schema.Verdict, error) {
	v := schema.Verdict(strings.ToUpper(strings.TrimSpace(s)))
	if VerdictOrdinal(v) < 0 {
		return "", fmt.Errorf("verdict: unknown verdict %q (want COMPLETE, PARTIAL, DEGRADED or FAILED)", s)
	}
	return v, nil
}

// ShouldFail reports whether actual is at least as severe as threshold.
// An empty threshold never fails.
func ShouldFail(actual, threshold schema.Verdict) bool {
	if threshold == "" {
		return false
	}
	return VerdictOrdinal(actual) >= VerdictOrdinal(threshold)
}

// DetermineVerdict applies the verdict rules to a Summary.
//
// Rules (in order of precedence):
//  1. Tests generated but none accepted → FAILED
//  2. Any degraded test → DEGRADED
//  3. Fewer accepted than generated, or the run was cancelled → PARTIAL
//  4. Otherwise → COMPLETE
func DetermineVerdict(s schema.Summary) schema.Verdict {
	if s.Generated > 0 && s.Accepted == 0 {
		return schema.VerdictFailed
	}
	if s.Degraded > 0 {
		return schema.VerdictDegraded
	}
	if s.Accepted < s.Generated || s.Cancelled {
		return schema.VerdictPartial
	}
	return schema.VerdictComplete
}

// Finalize fills Verdict and Score on s.
func Finalize(s *schema.Summary) {
	s.Verdict = DetermineVerdict(*s)
	s.Score = ComputeScore(*s)
}
