package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/docopt/docopt-go"

	"github.com/golang/glog"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rdsstats/stats/stats"
)

const StatsCtlVersion = "0.1.0"

func main() {
	usage := `Stats stream control.

Defaults are read from the environment (STATS_URL, STATS_PING_INTERVAL,
STATS_RECONNECT_TIMEOUT, STATS_TOP, STATS_METRICS_ADDR, ...).
Flags take precedence.

Usage:
    statsctl watch [--url=<url>] [--top=<n>]
        [--object=<needle>] [--subject=<needle>]
        [--metrics_addr=<addr>] [--v=<v>]
    statsctl subject [--url=<url>] [--metrics_addr=<addr>] [--v=<v>] <subject_id>
    statsctl decode [<file>]

Options:
    -h --help                  Show this screen.
    --version                  Show version.
    --url=<url>                Stats websocket url.
    --top=<n>                  Subjects shown per object.
    --object=<needle>          Only objects containing this substring.
    --subject=<needle>         Only subjects containing this substring.
    --metrics_addr=<addr>      Serve prometheus metrics on this address, e.g. :9100.
    --v=<v>                    Log verbosity [default: 0].`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], StatsCtlVersion)
	if err != nil {
		panic(err)
	}

	initGlog(opts)
	defer glog.Flush()

	if watch_, _ := opts.Bool("watch"); watch_ {
		watch(opts)
	} else if subject_, _ := opts.Bool("subject"); subject_ {
		subject(opts)
	} else if decode_, _ := opts.Bool("decode"); decode_ {
		decode(opts)
	} else {
		docopt.PrintHelpAndExit(nil, usage)
	}
}

func initGlog(opts docopt.Opts) {
	flag.Set("logtostderr", "true")
	if v, err := opts.String("--v"); err == nil && v != "" {
		flag.Set("v", v)
	}
}

// env first, then flags
func requireConfig(opts docopt.Opts) *stats.Config {
	config, err := stats.ParseConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid environment (%s).\n", err)
		os.Exit(2)
	}
	if url, err := opts.String("--url"); err == nil && url != "" {
		config.Url = url
	}
	if topStr, err := opts.String("--top"); err == nil && topStr != "" {
		top, err := strconv.Atoi(topStr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid --top (%s).\n", err)
			os.Exit(2)
		}
		config.Top = top
	}
	if metricsAddr, err := opts.String("--metrics_addr"); err == nil && metricsAddr != "" {
		config.MetricsAddr = metricsAddr
	}
	return config
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)
}

// serves /metrics until ctx is done
func serveMetrics(ctx context.Context, addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		err := metricsServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			glog.Infof("[statsctl]metrics error = %s\n", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		metricsServer.Shutdown(shutdownCtx)
	}()
}

// connects, keeps the store current and calls `render` every freshness tick
// and on every connection state change
func run(config *stats.Config, render func(status stats.ConnectionStatus, aggregate stats.StatsAggregate)) {
	ctx, cancel := signalContext()
	defer cancel()

	serveMetrics(ctx, config.MetricsAddr)

	transport := stats.NewStatsTransport(ctx, config.Url, config.TransportSettings())
	defer transport.Close()
	client := stats.NewStatsClient(ctx, transport, stats.NewStatsStore())
	defer client.Close()

	ticker := time.NewTicker(stats.FreshnessTickInterval)
	defer ticker.Stop()

	for {
		notify := transport.NotifyChannel()
		render(transport.State(), client.Store().SnapshotView())
		select {
		case <-ctx.Done():
			return
		case <-notify:
		case <-ticker.C:
		}
	}
}

func newScreen(config *stats.Config) *Screen {
	fd := int(os.Stdout.Fd())
	width := 0
	if term.IsTerminal(fd) {
		if w, _, err := term.GetSize(fd); err == nil {
			width = w
		}
	}
	return &Screen{
		Out:             os.Stdout,
		Terminal:        term.IsTerminal(fd),
		Width:           width,
		Url:             config.Url,
		FreshnessWindow: config.FreshnessWindow,
	}
}

func watch(opts docopt.Opts) {
	config := requireConfig(opts)
	objectNeedle, _ := opts.String("--object")
	subjectNeedle, _ := opts.String("--subject")

	screen := newScreen(config)
	run(config, func(status stats.ConnectionStatus, aggregate stats.StatsAggregate) {
		screen.RenderTop(status, aggregate, TopOptions{
			Top:           config.Top,
			ObjectNeedle:  objectNeedle,
			SubjectNeedle: subjectNeedle,
		}, time.Now())
	})
}

func subject(opts docopt.Opts) {
	config := requireConfig(opts)
	subjectId, _ := opts.String("<subject_id>")

	screen := newScreen(config)
	run(config, func(status stats.ConnectionStatus, aggregate stats.StatsAggregate) {
		screen.RenderSubject(status, aggregate, stats.SubjectId(subjectId), time.Now())
	})
}

// classifies newline delimited messages from a file or stdin
func decode(opts docopt.Opts) {
	var in io.Reader
	if path, err := opts.String("<file>"); err == nil && path != "" {
		f, err := os.Open(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Cannot open %s (%s).\n", path, err)
			os.Exit(2)
		}
		defer f.Close()
		in = f
	} else {
		in = os.Stdin
	}

	errorCount, err := decodeLines(in, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Read error (%s).\n", err)
		os.Exit(2)
	}
	if 0 < errorCount {
		os.Exit(1)
	}
}

func decodeLines(in io.Reader, out io.Writer) (errorCount int, err error) {
	scanner := bufio.NewScanner(in)
	// snapshots can be large
	scanner.Buffer(make([]byte, 64*1024), 64*1024*1024)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber += 1
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		message, err := stats.DecodeMessage(line)
		if err != nil {
			errorCount += 1
			fmt.Fprintf(out, "%d error %s\n", lineNumber, err)
			continue
		}
		switch v := message.(type) {
		case *stats.Snapshot:
			fmt.Fprintf(out, "%d snapshot cells=%d\n", lineNumber, len(v.Entries))
		case *stats.Increment:
			fmt.Fprintf(out, "%d increment %s %s/%s +%d\n", lineNumber, v.Category, v.Subject, stats.ObjectLabel(v.Object), v.Quantity)
		}
	}
	err = scanner.Err()
	return
}
