// Command flightetl runs the flight-records pipeline: stream a delimited
// extract, clean and enrich it, persist it batch by batch, and print the KPI
// and quality summary.
//
// Modes:
//
//	flightetl -config configs/pipelines/flights.json             one run
//	flightetl -config ... -validate                              lint the config and exit
//	flightetl -config ... -source-list extracts.txt              one run per manifest line
//	flightetl -config ... -watch drop/                           run every settled drop
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"flightetl/internal/config"
	"flightetl/internal/datasource/file"
	"flightetl/internal/metrics"
	"flightetl/internal/metrics/datadog"
	"flightetl/internal/metrics/prompush"
	"flightetl/internal/pipeline"
	"flightetl/internal/report"
	"flightetl/internal/watch"

	// register all backends with the storage factory; the config picks one
	// at runtime.
	_ "flightetl/internal/storage/all"
)

func main() {
	var (
		cfgPath        string
		validate       bool
		watchDir       string
		sourceList     string
		metricsBackend string
		pushGatewayURL string
		datadogAddr    string
	)

	flag.StringVar(&cfgPath, "config", "configs/pipelines/flights.json", "pipeline config JSON path")
	flag.BoolVar(&validate, "validate", false, "validate the configuration and exit")
	flag.StringVar(&watchDir, "watch", "", "drop directory; run the pipeline for every settled *.csv in it")
	flag.StringVar(&sourceList, "source-list", "", "manifest of extract paths or URLs, one run per line")
	flag.StringVar(&metricsBackend, "metrics-backend", "", "metrics backend: pushgateway, datadog, or none (default env METRICS_BACKEND)")
	flag.StringVar(&pushGatewayURL, "pushgateway-url", "", "Pushgateway base URL (overrides env PUSHGATEWAY_URL)")
	flag.StringVar(&datadogAddr, "datadog-addr", "", "DogStatsD address (overrides env DD_AGENT_ADDR)")
	verbose := flag.Bool("v", false, "enable verbose logs")

	flag.Parse()

	p, err := loadPipeline(cfgPath)
	if err != nil {
		fatalf("%v", err)
	}

	issues := config.ValidatePipeline(p)
	hasError := false
	for _, iss := range issues {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
		if iss.Severity == config.SeverityError {
			hasError = true
		}
	}
	if hasError {
		log.Printf("configuration is invalid: %v", cfgPath)
		os.Exit(1)
	}
	if validate {
		log.Printf("configuration is valid: %v", cfgPath)
		return
	}

	mh := setupMetrics(metricsBackend, pushGatewayURL, datadogAddr, p.Job, *verbose)
	defer mh.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *verbose {
		log.Printf("pipeline: source=%s sink=%s workers=%d",
			p.Source.Kind, p.Sink.Kind, p.Runtime.Workers)
	}

	start := time.Now()
	switch {
	case watchDir != "":
		err = runWatch(ctx, p, watchDir, mh)
	case sourceList != "":
		err = runList(ctx, p, sourceList, mh)
	default:
		err = runOne(ctx, p, mh)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("%v", err)
	}

	if *verbose {
		log.Printf("completed in %s", time.Since(start).Truncate(time.Millisecond))
	}
}

// loadPipeline decodes the pipeline config file.
func loadPipeline(path string) (config.Pipeline, error) {
	var p config.Pipeline
	f, err := os.Open(path)
	if err != nil {
		return p, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(&p); err != nil {
		return p, fmt.Errorf("decode config: %w", err)
	}
	return p, nil
}

// runOne executes a single pipeline run, emits the report, and flushes
// metrics so multi-run modes push each run separately.
func runOne(ctx context.Context, p config.Pipeline, mh *metricsHandle) error {
	d := pipeline.New(p)
	if mh.push != nil {
		mh.push.Grouping("run", d.RunID())
	}

	rep, err := d.Run(ctx)
	if rep != nil {
		emitReport(p.Report, rep)
	}
	if ferr := metrics.Flush(); ferr != nil {
		log.Printf("metrics: flush: %v", ferr)
	}
	return err
}

// runList executes one run per manifest entry. A failed entry is logged and
// the remaining entries still run; any failure makes the whole invocation
// exit nonzero.
func runList(ctx context.Context, p config.Pipeline, manifest string, mh *metricsHandle) error {
	entries, err := file.ReadList(manifest)
	if err != nil {
		return fmt.Errorf("read source list: %w", err)
	}
	if len(entries) == 0 {
		return fmt.Errorf("source list %s names no extracts", manifest)
	}

	var failed int
	for _, src := range entries {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		run := p
		if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
			run.Source.Kind = "http"
			run.Source.HTTP.URL = src
		} else {
			run.Source.Kind = "file"
			run.Source.File.Path = strings.TrimPrefix(src, "file://")
		}
		if err := runOne(ctx, run, mh); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			log.Printf("run %s: %v", src, err)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d runs failed", failed, len(entries))
	}
	return nil
}

// runWatch blocks on the drop directory and runs the pipeline for each
// settled file, with the drop substituted as the source. Configured report
// exports are rewritten on every run.
func runWatch(ctx context.Context, p config.Pipeline, dir string, mh *metricsHandle) error {
	w, err := watch.New(watch.Options{Dir: dir})
	if err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	log.Printf("watch: dir=%s job=%s", dir, p.Job)

	return w.Run(ctx, func(ctx context.Context, path string) error {
		run := p
		run.Source.Kind = "file"
		run.Source.File.Path = path
		log.Printf("watch: running %s", path)
		return runOne(ctx, run, mh)
	})
}

// emitReport prints the text summary and writes the configured exports.
func emitReport(cfg config.Report, rep *report.Report) {
	fmt.Print(report.Text(rep))
	if cfg.JSONPath != "" {
		if err := report.SaveJSON(cfg.JSONPath, rep); err != nil {
			log.Printf("%v", err)
		}
	}
	if cfg.XLSXPath != "" {
		if err := report.SaveXLSX(cfg.XLSXPath, rep); err != nil {
			log.Printf("%v", err)
		}
	}
}

// metricsHandle keeps the concrete backend around for the few operations the
// Backend interface does not cover: per-run Pushgateway grouping and the
// DogStatsD connection teardown.
type metricsHandle struct {
	push *prompush.Backend
	dd   *datadog.Backend
}

func (m *metricsHandle) close() {
	if m.dd != nil {
		if err := m.dd.Close(); err != nil {
			log.Printf("metrics: close: %v", err)
		}
	}
}

// setupMetrics installs the selected backend. Resolution order is flag, then
// METRICS_BACKEND, then none. Setup failures log and fall back to the nop
// backend rather than blocking the run.
func setupMetrics(name, gwURL, ddAddr, job string, verbose bool) *metricsHandle {
	mh := &metricsHandle{}
	if name == "" {
		name = os.Getenv("METRICS_BACKEND")
	}
	if job == "" {
		job = "flightetl"
	}

	switch name {
	case "pushgateway":
		if gwURL == "" {
			gwURL = os.Getenv("PUSHGATEWAY_URL")
		}
		if gwURL == "" {
			gwURL = "http://localhost:9091"
		}
		b, err := prompush.NewBackend(job, gwURL)
		if err != nil {
			log.Printf("metrics: init pushgateway: %v; metrics disabled", err)
			return mh
		}
		log.Printf("metrics: backend=pushgateway url=%s job=%s", gwURL, job)
		metrics.SetBackend(b)
		mh.push = b

	case "datadog":
		if ddAddr == "" {
			ddAddr = os.Getenv("DD_AGENT_ADDR")
		}
		if ddAddr == "" {
			ddAddr = "127.0.0.1:8125"
		}
		b, err := datadog.NewBackend(datadog.Config{
			Addr:       ddAddr,
			Namespace:  "flightetl.",
			GlobalTags: []string{"job:" + job},
		})
		if err != nil {
			log.Printf("metrics: init datadog: %v; metrics disabled", err)
			return mh
		}
		log.Printf("metrics: backend=datadog addr=%s job=%s", ddAddr, job)
		metrics.SetBackend(b)
		mh.dd = b

	case "", "none":
		if verbose {
			log.Printf("metrics: disabled")
		}

	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", name)
	}
	return mh
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
