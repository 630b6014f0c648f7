package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, data string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// startWatcher runs a watcher over dir and returns the handler delivery
// channel. Cleanup cancels the run and checks it reports the cooperative
// stop.
func startWatcher(t *testing.T, dir string, settle time.Duration, handlerErr error) <-chan string {
	t.Helper()
	w, err := New(Options{Dir: dir, Settle: settle})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got := make(chan string, 16)
	done := make(chan error, 1)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		if err := <-done; !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	})
	go func() {
		done <- w.Run(ctx, func(_ context.Context, path string) error {
			got <- path
			return handlerErr
		})
	}()
	return got
}

func waitFor(t *testing.T, got <-chan string, want string) {
	t.Helper()
	select {
	case p := <-got:
		if p != want {
			t.Fatalf("handler got %q, want %q", p, want)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("handler never saw %q", want)
	}
}

func expectQuiet(t *testing.T, got <-chan string, d time.Duration) {
	t.Helper()
	select {
	case p := <-got:
		t.Fatalf("unexpected delivery %q", p)
	case <-time.After(d):
	}
}

func TestRunHandlesSettledDrop(t *testing.T) {
	dir := t.TempDir()
	got := startWatcher(t, dir, 50*time.Millisecond, nil)

	path := filepath.Join(dir, "june.csv")
	writeFile(t, path, "YEAR\n2015\n")
	waitFor(t, got, path)
}

func TestRunCoalescesWriteBurst(t *testing.T) {
	dir := t.TempDir()
	got := startWatcher(t, dir, 100*time.Millisecond, nil)

	path := filepath.Join(dir, "big.csv")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := fmt.Fprintf(f, "chunk %d\n", i); err != nil {
			t.Fatalf("write: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	waitFor(t, got, path)
	expectQuiet(t, got, 300*time.Millisecond)
}

func TestRunIgnoresNonMatching(t *testing.T) {
	dir := t.TempDir()
	got := startWatcher(t, dir, 50*time.Millisecond, nil)

	writeFile(t, filepath.Join(dir, "notes.txt"), "not a drop")
	expectQuiet(t, got, 300*time.Millisecond)

	path := filepath.Join(dir, "good.csv")
	writeFile(t, path, "YEAR\n")
	waitFor(t, got, path)
}

func TestRunQueuesExistingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stranded.csv")
	writeFile(t, path, "YEAR\n2015\n")

	got := startWatcher(t, dir, 50*time.Millisecond, nil)
	waitFor(t, got, path)
}

func TestRunSkipsRemovedFile(t *testing.T) {
	dir := t.TempDir()
	got := startWatcher(t, dir, 200*time.Millisecond, nil)

	path := filepath.Join(dir, "gone.csv")
	writeFile(t, path, "YEAR\n")
	time.Sleep(50 * time.Millisecond)
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}

	expectQuiet(t, got, 500*time.Millisecond)
}

func TestRunContinuesAfterHandlerError(t *testing.T) {
	dir := t.TempDir()
	got := startWatcher(t, dir, 50*time.Millisecond, errors.New("backend down"))

	first := filepath.Join(dir, "a.csv")
	writeFile(t, first, "YEAR\n")
	waitFor(t, got, first)

	second := filepath.Join(dir, "b.csv")
	writeFile(t, second, "YEAR\n")
	waitFor(t, got, second)
}

func TestQualifies(t *testing.T) {
	w := &Watcher{opts: Options{}.withDefaults()}
	tests := []struct {
		path string
		want bool
	}{
		{"drop/flights.csv", true},
		{"drop/flights.csv.gz", true},
		{"drop/flights.CSV", false},
		{"drop/flights.txt", false},
	}
	for _, tt := range tests {
		if got := w.qualifies(tt.path); got != tt.want {
			t.Errorf("qualifies(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}

	custom := &Watcher{opts: Options{Patterns: []string{"extract-*.dat"}}.withDefaults()}
	if !custom.qualifies("drop/extract-june.dat") || custom.qualifies("drop/extract.csv") {
		t.Error("custom patterns not honored")
	}
}

func TestTakeSettled(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()

	a := filepath.Join(dir, "a.csv")
	b := filepath.Join(dir, "b.csv")
	vanished := filepath.Join(dir, "vanished.csv")
	young := filepath.Join(dir, "young.csv")
	writeFile(t, a, "x")
	writeFile(t, b, "x")

	pending := map[string]time.Time{
		a:        now.Add(-time.Second),
		b:        now.Add(-time.Second),
		vanished: now.Add(-time.Second),
		young:    now.Add(time.Minute),
	}

	got := takeSettled(pending, now)
	if want := []string{a, b}; !reflect.DeepEqual(got, want) {
		t.Fatalf("takeSettled = %v, want %v", got, want)
	}
	if len(pending) != 1 {
		t.Fatalf("pending after take = %v, want only the young file", pending)
	}
}
