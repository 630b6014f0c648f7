package csv

import (
	"testing"

	"flightetl/internal/flight"
	"flightetl/internal/schema"
)

// TestCompileCastPlanCoversDictionary guards the accessor tables: every base
// column must compile, so adding a column to the dictionary without wiring
// its batch accessor fails fast here instead of at stream time.
func TestCompileCastPlanCoversDictionary(t *testing.T) {
	t.Parallel()

	base := schema.Flights().Base()
	plan, err := compileCastPlan(base)
	if err != nil {
		t.Fatalf("compileCastPlan: %v", err)
	}
	if len(plan) != len(base) {
		t.Fatalf("plan entries = %d, want %d", len(plan), len(base))
	}
	for i, d := range base {
		if plan[i].cast == nil {
			t.Fatalf("no cast for column %q", d.Name)
		}
		wantBit := d.Width == schema.WidthBit
		if plan[i].bit != wantBit {
			t.Fatalf("column %q bit = %v, want %v", d.Name, plan[i].bit, wantBit)
		}
	}
}

func TestCompileCastPlanRejectsUnknownColumn(t *testing.T) {
	t.Parallel()

	_, err := compileCastPlan([]schema.Descriptor{
		{Name: "bogus", Kind: schema.KindInt, Width: schema.WidthInt16},
	})
	if err == nil {
		t.Fatalf("compileCastPlan(bogus) = nil error, want error")
	}
}

func TestParseIntCell(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"0", 0, true},
		{"2015", 2015, true},
		{"0005", 5, true},
		{"-12", -12, true},
		{"2354.0", 2354, true}, // pandas float rendering of whole numbers
		{"12.5", 0, false},     // fractional is not an int
		{"", 0, false},
		{"12a", 0, false},
		{"1e3", 0, false}, // no dot, no float fallback
	}
	for _, tt := range tests {
		got, ok := parseIntCell(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Fatalf("parseIntCell(%q) = %d,%v, want %d,%v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestParseFloatCell(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want float32
		ok   bool
	}{
		{"0", 0, true},
		{"15", 15, true},
		{"-7.5", -7.5, true},
		{"200.0", 200, true},
		{"", 0, false},
		{"abc", 0, false},
		{"NaN", 0, false}, // must not alias the null sentinel
		{"+Inf", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseFloatCell(tt.in)
		if ok != tt.ok || (ok && got != tt.want) {
			t.Fatalf("parseFloatCell(%q) = %v,%v, want %v,%v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestParseBoolCell(t *testing.T) {
	t.Parallel()

	truthy := []string{"1", "t", "true", "TRUE", "y", "yes"}
	falsy := []string{"0", "f", "false", "No", "n"}
	for _, s := range truthy {
		v, ok := parseBoolCell(s)
		if !v || !ok {
			t.Fatalf("parseBoolCell(%q) = %v,%v, want true,true", s, v, ok)
		}
	}
	for _, s := range falsy {
		v, ok := parseBoolCell(s)
		if v || !ok {
			t.Fatalf("parseBoolCell(%q) = %v,%v, want false,true", s, v, ok)
		}
	}
	if _, ok := parseBoolCell("maybe"); ok {
		t.Fatalf("parseBoolCell(maybe) ok = true, want false")
	}
}

// TestCastEnumReason exercises the one enum cast directly: lower-case codes
// are accepted, codes outside the vocabulary fall to the sentinel.
func TestCastEnumReason(t *testing.T) {
	t.Parallel()

	base := schema.Flights().Base()
	plan, err := compileCastPlan(base)
	if err != nil {
		t.Fatal(err)
	}
	reasonIdx := -1
	for i, d := range base {
		if d.Name == schema.ColCancellationReason {
			reasonIdx = i
		}
	}
	if reasonIdx < 0 {
		t.Fatal("cancellation_reason not in base columns")
	}

	b := flight.GetBatch(4)
	defer b.Free()

	i := b.AppendRow(1)
	if !plan[reasonIdx].cast(b, i, "b") {
		t.Fatalf("cast(b) failed, want lower-case code accepted")
	}
	if b.Reason[i] != flight.ReasonWeather {
		t.Fatalf("Reason = %v, want weather", b.Reason[i])
	}

	j := b.AppendRow(2)
	if plan[reasonIdx].cast(b, j, "Z") {
		t.Fatalf("cast(Z) succeeded, want failure")
	}
	if b.Reason[j] != flight.ReasonNone {
		t.Fatalf("failed cast should leave sentinel, got %v", b.Reason[j])
	}
}

func TestHasEdgeSpace(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want bool
	}{
		{"", false},
		{"abc", false},
		{" abc", true},
		{"abc ", true},
		{"\tabc", true},
		{"a b", false},
	}
	for _, tt := range tests {
		if got := hasEdgeSpace(tt.in); got != tt.want {
			t.Fatalf("hasEdgeSpace(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
