package orchestrator

import (
	"slices"
	"testing"

	"github.com/maastricht-university/audioscore/metrics"
)

func helperRecords() []ScoreRecord {
	return []ScoreRecord{
		{Index: 0, ID: "a.wav", Scores: map[string]metrics.Value{
			"PESQ":   metrics.Scalar(2),
			"DNSMOS": metrics.Vector(map[string]float64{"SIG": 3, "BAK": 4}),
		}},
		{Index: 1, ID: "b.wav", Scores: map[string]metrics.Value{
			"PESQ": metrics.Scalar(3.33333),
		}},
		{Index: 2, ID: "c.wav", Errors: map[string]*RequestError{
			"PESQ": {ID: "c.wav", Metric: "PESQ", Reason: "too short", Err: ErrConstraintViolation},
		}},
	}
}

func TestSummary(t *testing.T) {
	avg := Summary(helperRecords(), 2)
	if got := avg["PESQ"].Scalar; got != 2.67 {
		t.Fatalf("PESQ mean = %v, want 2.67", got)
	}
	if got := avg["DNSMOS"].Axes["BAK"]; got != 4 {
		t.Fatalf("DNSMOS.BAK mean = %v", got)
	}
	if _, ok := avg["STOI"]; ok {
		t.Fatal("unscored metric should be absent")
	}
}

func TestColumns(t *testing.T) {
	cols := Columns(helperRecords(), []string{"PESQ", "DNSMOS", "STOI"})
	want := []string{"PESQ", "DNSMOS.BAK", "DNSMOS.SIG"}
	if !slices.Equal(cols, want) {
		t.Fatalf("Columns = %v, want %v", cols, want)
	}
}

func TestRecordFlatten(t *testing.T) {
	flat := helperRecords()[0].Flatten()
	if len(flat) != 3 || flat["DNSMOS.SIG"] != 3 || flat["PESQ"] != 2 {
		t.Fatalf("Flatten = %v", flat)
	}
}
