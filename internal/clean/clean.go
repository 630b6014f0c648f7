// Package clean applies the cross-field consistency rules to casted batches.
// Single-field problems were already resolved to null sentinels by the
// reader; this stage looks at relationships between fields (a cancelled
// flight carrying taxi times, a cancellation reason on a flown flight) and
// resolves each finding by the configured policy.
//
// Rejection is mask-based: violating rows are marked in a bitmap and removed
// with one in-place compaction at the end, so the stage owns no second batch.
package clean

import (
	"fmt"
	"strings"

	"flightetl/internal/bitmap"
	"flightetl/internal/flight"
)

// Rule identifies one consistency rule class.
type Rule int8

const (
	// RuleRequiredNull fires when an identity field (date, carrier, flight
	// number, airports, distance, flags) is null after casting.
	RuleRequiredNull Rule = iota
	// RuleCancelledNoReason fires for cancelled rows without a reason code.
	RuleCancelledNoReason
	// RuleCancelledResiduals fires for cancelled rows carrying actual-movement
	// values (off-block times, delays, causes). Coercion nulls those cells;
	// scheduled fields stay, they are valid data for a cancelled flight.
	RuleCancelledResiduals
	// RuleReasonWithoutCancel fires when a reason code rides on a flown
	// flight. Coercion clears the reason.
	RuleReasonWithoutCancel
	// RuleCauseWithoutDelay fires when cause minutes are present although the
	// arrival delay is null or non-positive. Coercion nulls the causes.
	RuleCauseWithoutDelay
	// RuleDuplicateRow fires for exact in-batch duplicates of the flight
	// identity tuple; first occurrence wins.
	RuleDuplicateRow

	numRules = int(RuleDuplicateRow) + 1
)

func (r Rule) String() string {
	switch r {
	case RuleRequiredNull:
		return "required_null"
	case RuleCancelledNoReason:
		return "cancelled_no_reason"
	case RuleCancelledResiduals:
		return "cancelled_residuals"
	case RuleReasonWithoutCancel:
		return "reason_without_cancel"
	case RuleCauseWithoutDelay:
		return "cause_without_delay"
	case RuleDuplicateRow:
		return "duplicate_row"
	}
	return fmt.Sprintf("rule(%d)", int8(r))
}

// Rules lists every rule class in evaluation order.
func Rules() []Rule {
	return []Rule{
		RuleRequiredNull, RuleCancelledNoReason, RuleCancelledResiduals,
		RuleReasonWithoutCancel, RuleCauseWithoutDelay, RuleDuplicateRow,
	}
}

// ParseRule resolves a config spelling.
func ParseRule(s string) (Rule, error) {
	for _, r := range Rules() {
		if r.String() == s {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown clean rule %q", s)
}

// Policy decides what happens to a finding.
type Policy int8

const (
	// PolicyCoerce rewrites the offending cells to nulls and keeps the row.
	// Rules with nothing to rewrite (required_null, cancelled_no_reason,
	// duplicate_row) count the finding and keep the row unchanged.
	PolicyCoerce Policy = iota
	// PolicyReject drops the row.
	PolicyReject
	// PolicyRejectBatch drops the row and, when the rule's violation fraction
	// within the batch exceeds the configured limit, fails the whole run.
	PolicyRejectBatch
)

func (p Policy) String() string {
	switch p {
	case PolicyCoerce:
		return "coerce"
	case PolicyReject:
		return "reject"
	case PolicyRejectBatch:
		return "reject_batch"
	}
	return fmt.Sprintf("policy(%d)", int8(p))
}

// ParsePolicy resolves a config spelling.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "coerce":
		return PolicyCoerce, nil
	case "reject":
		return PolicyReject, nil
	case "reject_batch":
		return PolicyRejectBatch, nil
	}
	return 0, fmt.Errorf("unknown clean policy %q", s)
}

// DefaultPolicies returns the per-rule defaults: coerce what can be coerced,
// reject what cannot.
func DefaultPolicies() map[Rule]Policy {
	return map[Rule]Policy{
		RuleRequiredNull:        PolicyReject,
		RuleCancelledNoReason:   PolicyReject,
		RuleCancelledResiduals:  PolicyCoerce,
		RuleReasonWithoutCancel: PolicyCoerce,
		RuleCauseWithoutDelay:   PolicyCoerce,
		RuleDuplicateRow:        PolicyReject,
	}
}

// Config tunes a Cleaner.
type Config struct {
	// Policies overrides DefaultPolicies per rule; missing rules keep their
	// default.
	Policies map[Rule]Policy
	// MaxViolationFraction is the per-batch limit for rules under
	// PolicyRejectBatch. Default 0.5.
	MaxViolationFraction float64
	// Dedup enables RuleDuplicateRow hashing.
	Dedup bool
	// SampleLimit caps the rejected-row samples kept over the whole run.
	// Default 10; negative disables sampling.
	SampleLimit int
}

// Sample records one rejected row for the quality report.
type Sample struct {
	Line int32
	Rule Rule
}

// Result summarizes one cleaned batch.
type Result struct {
	Rows         int // rows surviving, equals b.Len() after Clean
	Rejected     int
	CoercedCells int64
	Violations   map[Rule]int64
	Samples      []Sample // rejected-row samples added by this batch
}

// BatchRejectedError fails the run when a reject_batch rule fires for more
// than the allowed fraction of a batch, the signature of a broken upstream
// export rather than ordinary dirt.
type BatchRejectedError struct {
	Rule       Rule
	Violations int64
	Rows       int
	Limit      float64
}

func (e *BatchRejectedError) Error() string {
	return fmt.Sprintf("batch rejected: rule %s hit %d of %d rows, over limit %.4f",
		e.Rule, e.Violations, e.Rows, e.Limit)
}

// Cleaner applies the rule set to successive batches. Not safe for concurrent
// use; parallel pipelines run one Cleaner per worker.
type Cleaner struct {
	policies [numRules]Policy
	maxFrac  float64
	dedup    bool

	sampleBudget int
	mask         *bitmap.Bitmap
	seen         map[uint64]struct{}
	hashBuf      []byte
}

// New builds a Cleaner from cfg, filling unset knobs with defaults.
func New(cfg Config) *Cleaner {
	c := &Cleaner{
		maxFrac:      cfg.MaxViolationFraction,
		dedup:        cfg.Dedup,
		sampleBudget: cfg.SampleLimit,
	}
	if c.maxFrac <= 0 {
		c.maxFrac = 0.5
	}
	if cfg.SampleLimit == 0 {
		c.sampleBudget = 10
	}
	defaults := DefaultPolicies()
	for _, r := range Rules() {
		p := defaults[r]
		if over, ok := cfg.Policies[r]; ok {
			p = over
		}
		c.policies[r] = p
	}
	if c.dedup {
		c.seen = make(map[uint64]struct{}, 1024)
	}
	return c
}

// Clean evaluates every rule against every row of b, coerces or masks per
// policy, compacts the batch in place, and reports what happened. On a
// *BatchRejectedError the batch contents are unspecified; the caller frees it
// and aborts.
func (c *Cleaner) Clean(b *flight.Batch) (Result, error) {
	n := b.Len()
	if c.mask == nil {
		c.mask = bitmap.New(n)
	}
	c.mask.Reset(n)
	if c.dedup {
		clear(c.seen)
	}

	var res Result
	var violations [numRules]int64

	for i := 0; i < n; i++ {
		rejected := false

		// find counts the violation and applies the policy. It returns true
		// when the row survives for further rules.
		find := func(r Rule) bool {
			violations[r]++
			p := c.policies[r]
			if p == PolicyCoerce {
				return true
			}
			if !rejected {
				rejected = true
				c.mask.Add(i)
				if c.sampleBudget > 0 {
					c.sampleBudget--
					res.Samples = append(res.Samples, Sample{Line: b.Lines[i], Rule: r})
				}
			}
			return false
		}

		if missingRequired(b, i) && !find(RuleRequiredNull) {
			continue
		}

		if b.Cancelled.Has(i) {
			if b.Reason[i] == flight.ReasonNone && !find(RuleCancelledNoReason) {
				continue
			}
			if hasResiduals(b, i) {
				keep := find(RuleCancelledResiduals)
				if c.policies[RuleCancelledResiduals] == PolicyCoerce {
					res.CoercedCells += nullResiduals(b, i)
				}
				if !keep {
					continue
				}
			}
		} else {
			if b.Reason[i] != flight.ReasonNone {
				keep := find(RuleReasonWithoutCancel)
				if c.policies[RuleReasonWithoutCancel] == PolicyCoerce {
					b.Reason[i] = flight.ReasonNone
					res.CoercedCells++
				}
				if !keep {
					continue
				}
			}
			if hasCause(b, i) && !(b.ArrDelay[i] > 0) {
				keep := find(RuleCauseWithoutDelay)
				if c.policies[RuleCauseWithoutDelay] == PolicyCoerce {
					res.CoercedCells += nullCauses(b, i)
				}
				if !keep {
					continue
				}
			}
		}

		if c.dedup {
			h := c.rowHash(b, i)
			if _, dup := c.seen[h]; dup {
				if !find(RuleDuplicateRow) {
					continue
				}
			} else {
				c.seen[h] = struct{}{}
			}
		}
	}

	// A rule under reject_batch that fired for too much of the batch fails
	// the run; per-row accounting stops mattering at that point.
	for _, r := range Rules() {
		if c.policies[r] != PolicyRejectBatch || violations[r] == 0 {
			continue
		}
		if float64(violations[r])/float64(n) > c.maxFrac {
			return Result{}, &BatchRejectedError{
				Rule:       r,
				Violations: violations[r],
				Rows:       n,
				Limit:      c.maxFrac,
			}
		}
	}

	res.Rejected = b.Compact(c.mask)
	res.Rows = b.Len()
	res.Violations = make(map[Rule]int64)
	for r, v := range violations {
		if v > 0 {
			res.Violations[Rule(r)] = v
		}
	}
	return res, nil
}

// missingRequired mirrors the Required markers in the schema dictionary;
// TestRequiredColumnsMatchSchema keeps the two in lockstep.
func missingRequired(b *flight.Batch, i int) bool {
	return b.Year[i] == flight.NullInt16 ||
		b.Month[i] == flight.NullInt8 ||
		b.Day[i] == flight.NullInt8 ||
		b.DayOfWeek[i] == flight.NullInt8 ||
		b.Airline[i] == "" ||
		b.FlightNumber[i] == flight.NullInt16 ||
		b.Origin[i] == "" ||
		b.Dest[i] == "" ||
		b.Distance[i] == flight.NullInt16 ||
		b.FlagNull.Has(i)
}

func hasResiduals(b *flight.Batch, i int) bool {
	return b.DepTime[i] != flight.NullInt16 ||
		b.WheelsOff[i] != flight.NullInt16 ||
		b.WheelsOn[i] != flight.NullInt16 ||
		b.ArrTime[i] != flight.NullInt16 ||
		!flight.IsNullF32(b.DepDelay[i]) ||
		!flight.IsNullF32(b.TaxiOut[i]) ||
		!flight.IsNullF32(b.Elapsed[i]) ||
		!flight.IsNullF32(b.AirTime[i]) ||
		!flight.IsNullF32(b.TaxiIn[i]) ||
		!flight.IsNullF32(b.ArrDelay[i]) ||
		hasCause(b, i)
}

// nullResiduals clears every actual-movement cell and returns how many were
// populated.
func nullResiduals(b *flight.Batch, i int) int64 {
	var cleared int64
	clear16 := func(col []int16) {
		if col[i] != flight.NullInt16 {
			col[i] = flight.NullInt16
			cleared++
		}
	}
	clearF := func(col []float32) {
		if !flight.IsNullF32(col[i]) {
			col[i] = flight.NullF32()
			cleared++
		}
	}
	clear16(b.DepTime)
	clear16(b.WheelsOff)
	clear16(b.WheelsOn)
	clear16(b.ArrTime)
	clearF(b.DepDelay)
	clearF(b.TaxiOut)
	clearF(b.Elapsed)
	clearF(b.AirTime)
	clearF(b.TaxiIn)
	clearF(b.ArrDelay)
	return cleared + nullCauses(b, i)
}

func hasCause(b *flight.Batch, i int) bool {
	return !flight.IsNullF32(b.AirSystemDelay[i]) ||
		!flight.IsNullF32(b.SecurityDelay[i]) ||
		!flight.IsNullF32(b.AirlineDelay[i]) ||
		!flight.IsNullF32(b.LateAircraftDelay[i]) ||
		!flight.IsNullF32(b.WeatherDelay[i])
}

func nullCauses(b *flight.Batch, i int) int64 {
	var cleared int64
	clearF := func(col []float32) {
		if !flight.IsNullF32(col[i]) {
			col[i] = flight.NullF32()
			cleared++
		}
	}
	clearF(b.AirSystemDelay)
	clearF(b.SecurityDelay)
	clearF(b.AirlineDelay)
	clearF(b.LateAircraftDelay)
	clearF(b.WeatherDelay)
	return cleared
}
