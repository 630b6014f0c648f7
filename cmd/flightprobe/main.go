// Command flightprobe samples the head of a flight extract and reports how
// its header and values line up with the declared dictionary. It exits 0 on a
// clean header, 1 on drift, and 2 on usage or probe failures, so it slots
// into shell pipelines that gate a full run on the verdict.
//
// Examples:
//
//	flightprobe -source data/flights.csv
//	flightprobe -source https://example.com/flights.csv -bytes 32768 -json
//	flightprobe -config configs/pipelines/flights.json
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"

	"flightetl/internal/config"
	"flightetl/internal/probe"
)

func main() {
	var (
		source    string
		cfgPath   string
		maxBytes  int
		delimiter string
		asJSON    bool
		timeout   time.Duration
		insecure  bool
	)

	flag.StringVar(&source, "source", "", "local path, file:// URL, or http(s):// URL to sample")
	flag.StringVar(&cfgPath, "config", "", "pipeline config JSON whose source and header_map to probe")
	flag.IntVar(&maxBytes, "bytes", 64*1024, "number of bytes to sample from the start of the file")
	flag.StringVar(&delimiter, "delimiter", ",", "field delimiter (single character)")
	flag.BoolVar(&asJSON, "json", false, "print the report as JSON instead of text")
	flag.DurationVar(&timeout, "timeout", 30*time.Second, "per-request timeout for HTTP sources")
	flag.BoolVar(&insecure, "insecure", false, "skip TLS certificate verification for HTTP sources")

	flag.Parse()

	opts := probe.Options{
		Source:   source,
		MaxBytes: maxBytes,
		Comma:    decodeDelimiter(delimiter),
		Timeout:  timeout,
		Insecure: insecure,
	}
	if cfgPath != "" {
		if err := applyConfig(cfgPath, &opts); err != nil {
			fatalf("read config: %v", err)
		}
	}
	if opts.Source == "" {
		fmt.Fprintln(os.Stderr, "flightprobe: -source or -config is required")
		flag.Usage()
		os.Exit(2)
	}

	rep, err := probe.Run(context.Background(), opts)
	if err != nil {
		fatalf("%v", err)
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			fatalf("encode report: %v", err)
		}
	} else {
		printText(rep)
	}

	if rep.Drifted() {
		os.Exit(1)
	}
}

// applyConfig fills opts from a pipeline file: the source location, the
// configured delimiter, and any header_map renames. An explicit -source flag
// wins over the config.
func applyConfig(path string, opts *probe.Options) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var p config.Pipeline
	if err := json.NewDecoder(f).Decode(&p); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}

	if opts.Source == "" {
		switch p.Source.Kind {
		case "http":
			opts.Source = p.Source.HTTP.URL
		default:
			opts.Source = p.Source.File.Path
		}
	}
	opts.Comma = p.Reader.Options.Rune("comma", opts.Comma)
	if m := p.Reader.Options.StringMap("header_map"); len(m) > 0 {
		opts.HeaderMap = m
	}
	if p.Source.HTTP.TimeoutSeconds > 0 {
		opts.Timeout = time.Duration(p.Source.HTTP.TimeoutSeconds) * time.Second
	}
	if p.Source.HTTP.InsecureSkipVerify {
		opts.Insecure = true
	}
	return nil
}

// decodeDelimiter returns the first rune of s, falling back to ',' for empty
// or undecodable input.
func decodeDelimiter(s string) rune {
	if s == "" {
		return ','
	}
	if r, _ := utf8.DecodeRuneInString(s); r != utf8.RuneError {
		return r
	}
	return ','
}

// printText renders the verdict the way an operator scans it: one line per
// column, then the drift summary and any suggested renames.
func printText(rep *probe.Report) {
	fmt.Printf("source: %s\n", rep.Source)
	fmt.Printf("sample: %s bytes, %d data rows\n\n", humanize.Comma(int64(rep.SampleSize)), rep.Rows)

	fmt.Printf("%-24s %-24s %-8s %-8s %s\n", "HEADER", "NAME", "DECLARED", "INFERRED", "NOTE")
	for _, c := range rep.Columns {
		var note string
		switch {
		case c.Suggest != "":
			note = "unknown; rename to " + c.Suggest + "?"
		case !c.Known:
			note = "unknown"
		case c.Mismatch:
			note = "values do not look like " + c.Declared
		}
		fmt.Printf("%-24s %-24s %-8s %-8s %s\n", c.Header, c.Name, c.Declared, c.Inferred, note)
	}
	fmt.Println()

	if !rep.Drifted() {
		fmt.Println("header matches the flight dictionary")
		return
	}
	d := rep.Drift
	if len(d.Unknown) > 0 {
		fmt.Printf("unknown columns:   %s\n", strings.Join(d.Unknown, ", "))
	}
	if len(d.Missing) > 0 {
		fmt.Printf("missing columns:   %s\n", strings.Join(d.Missing, ", "))
	}
	if len(d.Duplicate) > 0 {
		fmt.Printf("duplicate columns: %s\n", strings.Join(d.Duplicate, ", "))
	}
	if len(rep.HeaderMap) > 0 {
		b, _ := json.MarshalIndent(rep.HeaderMap, "", "  ")
		fmt.Printf("\nsuggested reader.options.header_map:\n%s\n", b)
	}
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(2)
}
