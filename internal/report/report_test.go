package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func sampleReport() *Report {
	return &Report{
		RunID:       "9f2c1a7e",
		GeneratedAt: time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
		Totals: Totals{
			Flights: 5819079, Cancelled: 89884, Diverted: 15187,
			OnTime: 3718473, Delayed: 1981074, OnTimeRatio: 0.6524,
		},
		ArrivalDelay: DelaySummary{Count: 5714008, Mean: 4.41, Median: -5, Min: -87, Max: 1971},
		Cancellation: Cancellation{
			Count: 89884, Rate: 0.0154,
			Reasons: map[string]int64{"weather": 48851, "carrier": 25262, "nas": 15749, "security": 22},
		},
		DelayCategories:  map[string]int64{"OnTime": 3718473, "Minor": 1178183, "Moderate": 634841, "Severe": 168050, "Cancelled": 89884},
		DeparturePeriods: map[string]int64{"Morning": 2_500_000, "Afternoon": 1_800_000, "Evening": 1_000_000, "Night": 519_079},
		CauseMinutes: []CauseStat{
			{Cause: "late_aircraft", Minutes: 40_000_000, Flights: 900_000, Share: 0.38},
		},
		TopRoutesByVolume: []RouteStat{
			{Route: "SFO-LAX", Flights: 13744, Cancelled: 199, MeanDelay: 7.2},
		},
		Quality: Quality{
			LinesRead: 5_819_080, RowsParsed: 5_819_079, RowsCleaned: 5_729_195,
			RowsRejected: 89_884, Malformed: 1,
		},
	}
}

func TestJSONRoundTrip(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := WriteJSON(&buf, sampleReport()); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	var back Report
	if err := json.Unmarshal(buf.Bytes(), &back); err != nil {
		t.Fatalf("decode written report: %v", err)
	}
	if back.RunID != "9f2c1a7e" || back.Totals.Flights != 5819079 {
		t.Errorf("round trip lost fields: run_id=%q flights=%d", back.RunID, back.Totals.Flights)
	}
	if back.Cancellation.Reasons["weather"] != 48851 {
		t.Errorf("reasons did not survive: %v", back.Cancellation.Reasons)
	}
	if !strings.Contains(buf.String(), `"top_routes_by_volume"`) {
		t.Error("expected snake_case field names in output")
	}
}

func TestEmptyReportEncodes(t *testing.T) {
	t.Parallel()

	// A zero report must still encode; NaN anywhere would make the JSON
	// encoder fail the whole document.
	var buf bytes.Buffer
	if err := WriteJSON(&buf, &Report{}); err != nil {
		t.Fatalf("WriteJSON of zero report: %v", err)
	}
}

func TestSaveJSON(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "report.json")
	if err := SaveJSON(path, sampleReport()); err != nil {
		t.Fatalf("SaveJSON: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	var back Report
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("saved file is not valid JSON: %v", err)
	}
}

func TestTextSummary(t *testing.T) {
	t.Parallel()

	text := Text(sampleReport())
	for _, want := range []string{
		"run 9f2c1a7e (final)",
		"5,819,079",
		"65.2%",
		"weather=48,851",
		"SFO-LAX",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("text summary missing %q:\n%s", want, text)
		}
	}

	partial := sampleReport()
	partial.Partial = true
	if !strings.Contains(Text(partial), "(partial)") {
		t.Error("partial report not flagged in text summary")
	}
}

func TestFailedRunShowsInText(t *testing.T) {
	t.Parallel()

	r := sampleReport()
	r.Quality.FatalError = "schema drift: unknown columns [mystery]"
	if !strings.Contains(Text(r), "FAILED: schema drift") {
		t.Error("fatal error not surfaced in text summary")
	}
}

func TestSaveXLSX(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "report.xlsx")
	if err := SaveXLSX(path, sampleReport()); err != nil {
		t.Fatalf("SaveXLSX: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat workbook: %v", err)
	}
	if info.Size() == 0 {
		t.Fatal("workbook is empty")
	}
}
