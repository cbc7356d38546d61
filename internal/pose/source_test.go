package pose

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

func TestObserverCache_FallsBackToLastKnown(t *testing.T) {
	src := NewManualSource(1)
	defer src.Close()
	cache := NewObserverCache(src)

	// No pose ever seen: unavailable.
	if _, ok := cache.Observer(); ok {
		t.Fatal("expected no observer before any pose is published")
	}

	want := Observer{Position: r3.Vec{X: 1, Y: 2, Z: 3}, Forward: r3.Vec{X: 1}}
	src.SetObserver(want)

	got, ok := cache.Observer()
	if !ok || got != want {
		t.Fatalf("Observer() = %v, %v; want %v, true", got, ok, want)
	}

	// Source loses the pose; cache serves the last known value.
	src.ClearObserver()
	got, ok = cache.Observer()
	if !ok || got != want {
		t.Errorf("cached Observer() = %v, %v; want %v, true", got, ok, want)
	}
}

func TestManualSource_PushAndReceive(t *testing.T) {
	src := NewManualSource(4)
	defer src.Close()

	in := Sample{Position: r3.Vec{X: 0.5}, Timestamp: 1.25, Hand: LeftHand}
	src.Push(in)

	got := <-src.Samples()
	if got != in {
		t.Errorf("received %v, want %v", got, in)
	}
}

func writePoseLog(t *testing.T, rows [][]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "poses.csv")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create pose log: %v", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(ReplayHeader); err != nil {
		t.Fatalf("write header: %v", err)
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			t.Fatalf("write row: %v", err)
		}
	}
	w.Flush()
	return path
}

func TestReplaySource_StreamsRecords(t *testing.T) {
	path := writePoseLog(t, [][]string{
		{"0.000", "right", "0.25", "0", "0", "0", "0", "0", "1", "0", "0"},
		{"0.010", "right", "0.26", "0", "0", "0", "0", "0", "1", "0", "0"},
		{"0.020", "right", "0.27", "0.01", "0", "0", "0", "0", "1", "0", "0"},
	})

	src, err := NewReplaySource(path, false)
	if err != nil {
		t.Fatalf("NewReplaySource: %v", err)
	}
	defer src.Close()

	var samples []Sample
	for s := range src.Samples() {
		samples = append(samples, s)
	}

	if len(samples) != 3 {
		t.Fatalf("replayed %d samples, want 3", len(samples))
	}
	if samples[0].Timestamp != 0 || samples[2].Timestamp != 0.020 {
		t.Errorf("timestamps = %v, %v; want 0, 0.020", samples[0].Timestamp, samples[2].Timestamp)
	}
	if samples[2].Position.Y != 0.01 {
		t.Errorf("sample position Y = %v, want 0.01", samples[2].Position.Y)
	}

	obs, ok := src.Observer()
	if !ok {
		t.Fatal("expected observer pose after replay")
	}
	if obs.Forward != (r3.Vec{X: 1}) {
		t.Errorf("observer forward = %v, want {1 0 0}", obs.Forward)
	}
}

func TestReplaySource_SkipsMalformedRecords(t *testing.T) {
	path := writePoseLog(t, [][]string{
		{"0.000", "right", "0.25", "0", "0", "0", "0", "0", "1", "0", "0"},
		{"bogus", "right", "0.26", "0", "0", "0", "0", "0", "1", "0", "0"},
		{"0.020", "right", "0.27", "0", "0", "0", "0", "0", "1", "0", "0"},
	})

	src, err := NewReplaySource(path, false)
	if err != nil {
		t.Fatalf("NewReplaySource: %v", err)
	}
	defer src.Close()

	count := 0
	for range src.Samples() {
		count++
	}
	if count != 2 {
		t.Errorf("replayed %d samples, want 2 (malformed row skipped)", count)
	}
}

func TestReplaySource_MissingFile(t *testing.T) {
	if _, err := NewReplaySource("no-such-pose-log.csv", false); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestSyntheticSource_EmitsSamples(t *testing.T) {
	src := NewSyntheticSource()
	defer src.Close()

	s := <-src.Samples()
	if s.Hand != RightHand {
		t.Errorf("hand = %v, want right", s.Hand)
	}
	if s.Position.X < synthStartAhead-1e-9 || s.Position.X > synthEndAhead+1e-9 {
		t.Errorf("position X = %v outside script range [%v, %v]", s.Position.X, synthStartAhead, synthEndAhead)
	}

	obs, ok := src.Observer()
	if !ok || obs.Forward != (r3.Vec{X: 1}) {
		t.Errorf("Observer() = %v, %v; want fixed +X forward", obs, ok)
	}
}
