package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"exporter/internal/export"
	_ "exporter/internal/export/encoders"
	"exporter/internal/service"
	"exporter/internal/storage"
)

func main() {
	var (
		in       = flag.String("in", "", "path to a JSON array of records to export")
		out      = flag.String("out", "", "output path prefix; the kind suffix is appended per format")
		formats  = flag.String("formats", "csv,json,doc", "comma-separated output kinds")
		fields   = flag.String("fields", "", "comma-separated field selection, in output order")
		filter   = flag.String("filter", "", "comma-separated field=value exact-match pairs (text values)")
		withMeta = flag.Bool("metadata", false, "stamp export metadata fields on every record")
		jobsDB   = flag.String("jobs", "", "run as a daemon using the job store at this SQLite path")
	)
	flag.Parse()

	switch {
	case *jobsDB != "":
		runDaemon(*jobsDB)
	case *in != "" && *out != "":
		runOnce(*in, *out, *formats, *fields, *filter, *withMeta)
	default:
		fmt.Fprintln(os.Stderr, "usage: exporter -in records.json -out prefix [-formats csv,json,doc] [-fields a,b] [-filter f=v] [-metadata]")
		fmt.Fprintln(os.Stderr, "       exporter -jobs jobs.db")
		os.Exit(2)
	}
}

// runOnce exports a single record file and reports per-kind results.
func runOnce(in, out, formats, fields, filter string, withMeta bool) {
	f, err := os.Open(in)
	if err != nil {
		log.Fatalf("open input: %v", err)
	}
	recs, err := export.DecodeRecords(f)
	f.Close()
	if err != nil {
		log.Fatalf("parse input: %v", err)
	}

	opts := export.Options{IncludeMetadata: withMeta}
	if fields != "" {
		opts.Fields = splitList(fields)
	}
	if filter != "" {
		opts.Filter = make(map[string]any)
		for _, pair := range splitList(filter) {
			field, value, ok := strings.Cut(pair, "=")
			if !ok {
				log.Fatalf("bad filter pair %q, want field=value", pair)
			}
			opts.Filter[field] = value
		}
	}

	kinds := splitList(formats)
	engine := &export.Engine{}
	results := engine.ExportMultiple(context.Background(), recs, out, kinds, opts)

	sorted := make([]string, 0, len(results))
	for kind := range results {
		sorted = append(sorted, kind)
	}
	sort.Strings(sorted)

	anyOK := false
	for _, kind := range sorted {
		status := "failed"
		if results[kind] {
			status = "ok"
			anyOK = true
		}
		fmt.Printf("%-6s %s.%s\n", status, out, kind)
	}
	if !anyOK {
		os.Exit(1)
	}
}

// runDaemon opens the job store and serves scheduled and file-watch
// triggered export jobs until interrupted.
func runDaemon(dbPath string) {
	db, err := storage.New(dbPath)
	if err != nil {
		log.Fatalf("open job store: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc := service.NewExportService(storage.NewExportStore(db), service.LogEmitter{})
	svc.RestartWatchers(ctx)
	log.Printf("exporter daemon started with job store %q", dbPath)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Printf("shutting down")
	svc.Stop()
	cancel()

	// Let in-flight runs drain before exiting.
	drainCtx, drainCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer drainCancel()
	svc.WaitRunning(drainCtx)
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
