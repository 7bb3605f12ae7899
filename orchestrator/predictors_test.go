package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/maastricht-university/audioscore/audio/audiotest"
	"github.com/maastricht-university/audioscore/metrics"
)

type fixture struct {
	aes    *fakeBackend
	speech map[string]*fakeBackend
	loads  atomic.Int32
	pipe   *Pipeline
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		aes: &fakeBackend{value: func(metrics.Item) metrics.Value {
			return metrics.Vector(map[string]float64{
				metrics.ContentEnjoyment:     5.12345,
				metrics.ContentUsefulness:    6.5,
				metrics.ProductionComplexity: 2.0004,
				metrics.ProductionQuality:    7.77777,
			})
		}},
		speech: map[string]*fakeBackend{},
	}
	loader := func(b metrics.Backend) metrics.Loader {
		return func(context.Context, string) (metrics.Backend, error) {
			f.loads.Add(1)
			return b, nil
		}
	}
	speech := func(id string) metrics.Loader {
		b := &fakeBackend{}
		f.speech[id] = b
		return loader(b)
	}
	reg := metrics.NewRegistry()
	if err := metrics.RegisterBuiltins(reg, loader(f.aes), speech, nil); err != nil {
		t.Fatalf("RegisterBuiltins: %v", err)
	}
	reg.Seal()
	f.pipe = NewPipeline(reg, metrics.NewModels(), Options{Log: quietLog(), Retries: 1, MaxParallel: 4})
	return f
}

func writeManifest(t *testing.T, dir string, lines ...string) string {
	t.Helper()
	p := filepath.Join(dir, "inputs.txt")
	if err := os.WriteFile(p, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestAestheticsManifestWithCorruptFile(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()
	audiotest.WAV(t, dir, "a.wav", audiotest.Tone{Freq: 440})
	audiotest.Empty(t, dir, "b.wav")
	audiotest.WAV(t, dir, "c.wav", audiotest.Tone{SampleRate: 44100, Channels: 2})
	manifest := writeManifest(t, dir, "a.wav", "b.wav", "c.wav")

	pred, err := NewAestheticsPredictor(f.pipe, nil, ReportOptions{})
	if err != nil {
		t.Fatal(err)
	}
	records, err := pred.Predict(context.Background(), manifest, "facebook/audiobox-aesthetics", 2)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}

	if len(records) != 3 {
		t.Fatalf("got %d records", len(records))
	}
	for i, want := range []string{"a.wav", "b.wav", "c.wav"} {
		if records[i].Index != i || records[i].ID != want {
			t.Fatalf("record %d = %s (index %d)", i, records[i].ID, records[i].Index)
		}
	}
	for _, i := range []int{0, 2} {
		v, ok := records[i].Scores[metrics.AestheticsID]
		if !ok || !records[i].OK() {
			t.Fatalf("record %d = %+v", i, records[i])
		}
		if v.Axes[metrics.ContentEnjoyment] != 5.123 || v.Axes[metrics.ProductionQuality] != 7.778 {
			t.Fatalf("record %d axes = %v", i, v.Axes)
		}
		if len(v.Axes) != 4 {
			t.Fatalf("record %d has %d axes", i, len(v.Axes))
		}
	}
	marker := records[1].Errors[metrics.AestheticsID]
	if marker == nil {
		t.Fatal("corrupt file not marked")
	}
	requireKind(t, marker, ErrUnsupportedFormat)
	if _, ok := records[1].Scores[metrics.AestheticsID]; ok {
		t.Fatal("corrupt file has both a score and a marker")
	}
}

func TestSpeechMixedReferences(t *testing.T) {
	f := newFixture(t)
	test, ref := t.TempDir(), t.TempDir()
	audiotest.WAV(t, test, "a.wav", audiotest.Tone{Freq: 300})
	audiotest.WAV(t, test, "b.wav", audiotest.Tone{Freq: 300})
	audiotest.Empty(t, test, "c.wav")
	audiotest.WAV(t, ref, "a.wav", audiotest.Tone{Freq: 300})

	pred, err := NewSpeechScorePredictor(f.pipe, nil, []string{"srmr", "PESQ"}, SpeechOptions{BatchSize: 4})
	if err != nil {
		t.Fatal(err)
	}
	records, err := pred.Predict(context.Background(), test, ref)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records", len(records))
	}

	a, b, c := records[0], records[1], records[2]
	if !a.OK() || a.Scores["SRMR"].Scalar != 1 || a.Scores["PESQ"].Scalar != 1 {
		t.Fatalf("a = %+v", a)
	}
	if b.Scores["SRMR"].Scalar != 1 {
		t.Fatalf("reference-free metric skipped for b: %+v", b)
	}
	requireKind(t, b.Errors["PESQ"], ErrConstraintViolation)
	for _, id := range []string{"SRMR", "PESQ"} {
		requireKind(t, c.Errors[id], ErrUnsupportedFormat)
	}
	if n := f.speech["PESQ"].callCount(); n != 1 {
		t.Fatalf("PESQ calls = %d", n)
	}
}

func TestSpeechUnknownMetricFailsFast(t *testing.T) {
	f := newFixture(t)

	_, err := NewSpeechScorePredictor(f.pipe, nil, []string{"SRMR", "PSEQ"}, SpeechOptions{})

	var unknown *UnknownMetricError
	if !errors.As(err, &unknown) {
		t.Fatalf("err = %v", err)
	}
	if unknown.Suggestion != "PESQ" {
		t.Fatalf("suggestion = %q", unknown.Suggestion)
	}
	if f.loads.Load() != 0 {
		t.Fatal("backends loaded before metric validation")
	}
}

func TestSpeechDefaultsAndScoreRate(t *testing.T) {
	f := newFixture(t)

	pred, err := NewSpeechScorePredictor(f.pipe, nil, nil, SpeechOptions{ScoreRate: 8000})
	if err != nil {
		t.Fatal(err)
	}
	if ids := pred.Metrics(); len(ids) != 18 {
		t.Fatalf("default metrics = %v", ids)
	}
	for _, d := range pred.metrics {
		switch {
		case d.ID == metrics.AestheticsID:
			t.Fatal("aesthetics selected as a speech metric")
		case d.ID == "NISQA" && d.SampleRate != 48000:
			t.Fatalf("NISQA rate = %d", d.SampleRate)
		case d.ID != "NISQA" && d.SampleRate != 8000:
			t.Fatalf("%s rate = %d", d.ID, d.SampleRate)
		}
	}
}

func TestSpeechWindowMean(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()
	path := audiotest.WAV(t, dir, "long.wav", audiotest.Tone{Seconds: 2.5})

	pred, err := NewSpeechScorePredictor(f.pipe, nil, []string{"SRMR"}, SpeechOptions{BatchSize: 2, Window: time.Second})
	if err != nil {
		t.Fatal(err)
	}
	records, err := pred.Predict(context.Background(), path, "")
	if err != nil {
		t.Fatal(err)
	}
	if got := records[0].Scores["SRMR"].Scalar; got != 0.8333 {
		t.Fatalf("window mean = %v", got)
	}
	if n := f.speech["SRMR"].callCount(); n != 2 {
		t.Fatalf("calls = %d", n)
	}
}

func TestPredictCanceled(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()
	audiotest.WAV(t, dir, "a.wav", audiotest.Tone{})
	audiotest.WAV(t, dir, "b.wav", audiotest.Tone{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pred, _ := NewSpeechScorePredictor(f.pipe, nil, []string{"SRMR", "DNSMOS"}, SpeechOptions{})
	records, err := pred.Predict(ctx, dir, "")

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records", len(records))
	}
	for _, r := range records {
		for _, id := range []string{"SRMR", "DNSMOS"} {
			requireKind(t, r.Errors[id], ErrCanceled)
		}
	}
}

func TestModelsReusedAcrossCalls(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()
	path := audiotest.WAV(t, dir, "a.wav", audiotest.Tone{})
	pred, _ := NewAestheticsPredictor(f.pipe, nil, ReportOptions{})

	for range 3 {
		if _, err := pred.Predict(context.Background(), path, "ckpt", 1); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := pred.Predict(context.Background(), path, "other", 1); err != nil {
		t.Fatal(err)
	}
	if n := f.loads.Load(); n != 2 {
		t.Fatalf("loads = %d, want one per checkpoint", n)
	}
}

func TestSpeechRunsAreRepeatable(t *testing.T) {
	f := newFixture(t)
	test, ref := t.TempDir(), t.TempDir()
	for i, secs := range []float64{0.5, 1.2, 0.8, 2, 0.3} {
		name := fmt.Sprintf("%d.wav", i)
		audiotest.WAV(t, test, name, audiotest.Tone{Seconds: secs, Freq: 200})
		if i != 3 {
			audiotest.WAV(t, ref, name, audiotest.Tone{Seconds: secs, Freq: 200})
		}
	}
	audiotest.Empty(t, test, "5.wav")
	f.speech["SRMR"].bad = map[string]bool{"2.wav": true}

	pred, err := NewSpeechScorePredictor(f.pipe, nil, []string{"SRMR", "PESQ", "STOI"}, SpeechOptions{BatchSize: 2})
	if err != nil {
		t.Fatal(err)
	}
	first, err := pred.Predict(context.Background(), test, ref)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := pred.Predict(context.Background(), test, ref)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("runs differ:\n%+v\n%+v", first, second)
	}

	if len(first) != 6 {
		t.Fatalf("got %d records", len(first))
	}
	requireKind(t, first[2].Errors["SRMR"], ErrScoring)
	requireKind(t, first[3].Errors["PESQ"], ErrConstraintViolation)
	requireKind(t, first[5].Errors["STOI"], ErrUnsupportedFormat)
	if first[4].Scores["PESQ"].Scalar != 0.3 {
		t.Fatalf("record 4 = %+v", first[4])
	}
}

func TestBackendUnavailable(t *testing.T) {
	reg := metrics.NewRegistry()
	down := func(context.Context, string) (metrics.Backend, error) { return nil, errors.New("connection refused") }
	good := &fakeBackend{}
	for _, d := range []metrics.Descriptor{
		{ID: "DOWN", Loader: down},
		{ID: "UP", Loader: metrics.Static(good)},
	} {
		if err := reg.Register(d); err != nil {
			t.Fatal(err)
		}
	}
	pipe := NewPipeline(reg, metrics.NewModels(), Options{Log: quietLog()})
	dir := t.TempDir()
	audiotest.WAV(t, dir, "a.wav", audiotest.Tone{})
	audiotest.WAV(t, dir, "b.wav", audiotest.Tone{})
	reqs, _ := (&Resolver{}).Resolve(context.Background(), dir)
	ds, _ := reg.ResolveAll([]string{"DOWN", "UP"})

	records, err := pipe.Run(context.Background(), Job{Requests: reqs, Metrics: ds, Batch: BatchOptions{Size: 2}, Precision: -1})
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range records {
		requireKind(t, r.Errors["DOWN"], ErrScoring)
		if r.Errors["DOWN"].ID != r.ID {
			t.Fatalf("marker id = %q, record %q", r.Errors["DOWN"].ID, r.ID)
		}
		if r.Scores["UP"].Scalar != 1 {
			t.Fatalf("UP = %+v", r.Scores["UP"])
		}
	}
}

func TestReportSaved(t *testing.T) {
	f := newFixture(t)
	dir, out := t.TempDir(), t.TempDir()
	audiotest.WAV(t, dir, "a.wav", audiotest.Tone{Seconds: 1})
	audiotest.WAV(t, dir, "b.wav", audiotest.Tone{Seconds: 2})

	pred, _ := NewSpeechScorePredictor(f.pipe, nil, []string{"SRMR"}, SpeechOptions{
		ReportOptions: ReportOptions{Mean: true, Sink: DirSink(out), Format: "json"},
	})
	rep, err := pred.Run(context.Background(), dir, "")
	if err != nil {
		t.Fatal(err)
	}
	if rep.RunID == "" || rep.Kind != "speechscore" || rep.Failed() != 0 {
		t.Fatalf("report = %+v", rep)
	}

	files, _ := filepath.Glob(filepath.Join(out, "session_*", "speechscore_results.json"))
	if len(files) != 1 {
		t.Fatalf("saved files = %v", files)
	}
	b, err := os.ReadFile(files[0])
	if err != nil {
		t.Fatal(err)
	}
	var got struct {
		RunID   string             `json:"run_id"`
		Records []json.RawMessage  `json:"records"`
		Average map[string]float64 `json:"average"`
	}
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if got.RunID != rep.RunID || len(got.Records) != 2 {
		t.Fatalf("saved report = %+v", got)
	}
	if math.Abs(got.Average["SRMR"]-1.5) > 1e-9 {
		t.Fatalf("average = %v", got.Average)
	}

	y, ext, err := rep.Encode("yaml")
	if err != nil || ext != "yaml" || !strings.Contains(string(y), "run_id: "+rep.RunID) {
		t.Fatalf("yaml report: %v %q\n%s", err, ext, y)
	}
}

func TestRequestErrorJSON(t *testing.T) {
	e := &RequestError{ID: "a.wav", Metric: "PESQ", Reason: "metric requires a reference", Err: ErrConstraintViolation}
	b, err := json.Marshal(map[string]*RequestError{"PESQ": e})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"PESQ":{"kind":"constraint_violation","reason":"metric requires a reference"}}`
	if string(b) != want {
		t.Fatalf("json = %s", b)
	}
	if !strings.Contains(e.Error(), "a.wav [PESQ]") {
		t.Fatalf("Error() = %q", e.Error())
	}
}
