// Package watch turns a drop directory into a run queue for unattended
// operation: ops copy a monthly extract in, the watcher waits for the copy to
// finish, and the handler gets the settled path.
//
// A file counts as settled when no write event has touched it for a full
// quiet window. Copies and scp transfers emit a stream of writes, so the
// window restarts on every event; only the silence after the last chunk
// promotes the file.
package watch

import (
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Handler processes one settled file. Errors are logged and do not stop the
// watch; the next drop still runs.
type Handler func(ctx context.Context, path string) error

// Options configure a Watcher.
type Options struct {
	// Dir is the drop directory. Watched non-recursively.
	Dir string

	// Settle is the quiet window after the last write before a file is
	// handed to the handler. Default 2s.
	Settle time.Duration

	// Patterns are base-name globs a drop must match. Default *.csv and
	// *.csv.gz.
	Patterns []string
}

func (o Options) withDefaults() Options {
	if o.Settle <= 0 {
		o.Settle = 2 * time.Second
	}
	if len(o.Patterns) == 0 {
		o.Patterns = []string{"*.csv", "*.csv.gz"}
	}
	return o
}

// Watcher owns one directory watch. Build with New, run with Run; a Watcher
// runs once.
type Watcher struct {
	opts      Options
	fsw       *fsnotify.Watcher
	closeOnce sync.Once
}

// New sets up the watch. The directory must already exist.
func New(o Options) (*Watcher, error) {
	o = o.withDefaults()
	if o.Dir == "" {
		return nil, errors.New("watch: dir must not be empty")
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(o.Dir); err != nil {
		fsw.Close()
		return nil, err
	}
	return &Watcher{opts: o, fsw: fsw}, nil
}

// Close releases the underlying watch. Run calls it on return.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() { err = w.fsw.Close() })
	return err
}

// Run watches until ctx is canceled or the watch itself fails. Files already
// sitting in the directory count as fresh drops, so a restart does not strand
// them. Settled files go to h one at a time; a run in progress does not block
// event collection for the next drop.
func (w *Watcher) Run(ctx context.Context, h Handler) error {
	defer w.Close()

	runCh := make(chan string, 64)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for path := range runCh {
			if err := h(ctx, path); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("watch: %s: %v", path, err)
			}
		}
	}()
	defer wg.Wait()
	defer close(runCh)

	pending := make(map[string]time.Time) // path -> settle deadline
	if err := w.sweep(pending); err != nil {
		return err
	}

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		var wakeup <-chan time.Time
		if next, ok := earliest(pending); ok {
			timer.Reset(time.Until(next))
			wakeup = timer.C
		}

		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			switch {
			case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
				if w.qualifies(ev.Name) {
					pending[ev.Name] = time.Now().Add(w.opts.Settle)
				}
			case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
				delete(pending, ev.Name)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			return err

		case now := <-wakeup:
			for _, path := range takeSettled(pending, now) {
				select {
				case runCh <- path:
				default:
					log.Printf("watch: run queue full, dropping %s", path)
				}
			}
		}
	}
}

// sweep queues files already in the directory as if they had just arrived.
func (w *Watcher) sweep(pending map[string]time.Time) error {
	entries, err := os.ReadDir(w.opts.Dir)
	if err != nil {
		return err
	}
	deadline := time.Now().Add(w.opts.Settle)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(w.opts.Dir, e.Name())
		if w.qualifies(path) {
			pending[path] = deadline
		}
	}
	return nil
}

// qualifies reports whether the base name matches any configured pattern.
func (w *Watcher) qualifies(path string) bool {
	base := filepath.Base(path)
	for _, p := range w.opts.Patterns {
		if ok, _ := filepath.Match(p, base); ok {
			return true
		}
	}
	return false
}

// earliest returns the soonest settle deadline among pending files.
func earliest(pending map[string]time.Time) (time.Time, bool) {
	var min time.Time
	for _, t := range pending {
		if min.IsZero() || t.Before(min) {
			min = t
		}
	}
	return min, !min.IsZero()
}

// takeSettled removes and returns the pending paths whose quiet window has
// elapsed, in name order. Paths that vanished while pending are dropped.
func takeSettled(pending map[string]time.Time, now time.Time) []string {
	var out []string
	for path, deadline := range pending {
		if deadline.After(now) {
			continue
		}
		delete(pending, path)
		if info, err := os.Stat(path); err != nil || info.IsDir() {
			continue
		}
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}
