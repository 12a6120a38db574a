package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof" // For pprof server
	"os"
	"os/signal"
	"syscall"
	"time"

	plog "github.com/phuslu/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rtthreads/internal/config"
	"rtthreads/internal/metrics"
	"rtthreads/internal/threads"
)

// diagnosticsInterval is how often the lifecycle counters are logged.
const diagnosticsInterval = 30 * time.Second

// Daemon wires the thread manager, its collectors, the demo workload and the
// HTTP endpoints together.
type Daemon struct {
	config     *config.AppConfig
	manager    *threads.Manager
	demo       *counterDemo
	httpServer *http.Server
	log        plog.Logger
}

// NewDaemon creates and initializes a new Daemon instance.
func NewDaemon(config *config.AppConfig) (*Daemon, error) {
	d := &Daemon{
		config: config,
		log:    plog.DefaultLogger, // main app uses default logger
	}
	d.log.Info().
		Str("version", version).
		Str("listen_address", config.Server.ListenAddress).
		Str("metrics_path", config.Server.MetricsPath).
		Msg("Starting rtthreads")

	if err := d.setupThreads(); err != nil {
		return nil, err
	}
	d.setupHTTPServer()

	prometheus.MustRegister(metrics.NewThreadsCollector(d.manager, false))
	d.log.Info().Msg("Threads collector registered with Prometheus")

	return d, nil
}

// setupThreads builds the thread manager and the demo workload.
func (d *Daemon) setupThreads() error {
	opts, err := threads.OptionsFromConfig(d.config.Threads)
	if err != nil {
		return err
	}
	d.manager, err = threads.New(opts)
	if err != nil {
		return fmt.Errorf("failed to create thread manager: %w", err)
	}
	d.log.Debug().
		Str("index_map", opts.IndexMap).
		Int("max_threads", opts.MaxThreads).
		Str("default_cpus", opts.DefaultCPUs.String()).
		Msg("- Thread manager created")

	if d.config.Demo.Enabled {
		d.demo, err = newCounterDemo(d.manager, d.config.Demo.Workers, d.config.Demo.Iterations)
		if err != nil {
			return fmt.Errorf("failed to create demo workload: %w", err)
		}
		d.log.Debug().Int("workers", d.config.Demo.Workers).Msg("- Demo workload created")
	}
	return nil
}

// setupHTTPServer configures the HTTP server for metrics.
func (d *Daemon) setupHTTPServer() {
	d.log.Debug().Str("metrics_path", d.config.Server.MetricsPath).Msg("Setting up HTTP handlers")
	mux := http.NewServeMux()
	mux.Handle(d.config.Server.MetricsPath, promhttp.Handler())
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>
            <head><title>rtthreads</title></head>
            <body>
            <h1>rtthreads v` + version + ` </h1>
            <p><a href="` + d.config.Server.MetricsPath + `">Metrics</a></p>
            </body>
            </html>`))
	})

	d.httpServer = &http.Server{
		Addr:    d.config.Server.ListenAddress,
		Handler: mux,
	}
}

// Run starts all services and waits for a shutdown signal.
func (d *Daemon) Run() error {
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		d.log.Info().Msg("! Received OS shutdown signal, shutting down gracefully...")
		stop()
	}()

	if d.config.Server.PprofEnabled {
		go func() {
			defer func() {
				if r := recover(); r != nil {
					d.log.Error().Interface("panic", r).Msg("Panic recovered in pprof server, initiating shutdown")
					stop()
				}
			}()
			d.log.Info().Msg("Starting pprof HTTP server on localhost:6060")
			// pprof registers its handlers on http.DefaultServeMux
			if err := http.ListenAndServe("localhost:6060", nil); err != nil {
				d.log.Error().Err(err).Msg("pprof server failed")
			}
		}()
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				d.log.Error().Interface("panic", r).Msg("Panic recovered in HTTP server, initiating shutdown")
				stop()
			}
		}()
		d.log.Info().Str("address", d.config.Server.ListenAddress).Msg("Starting HTTP server")
		if err := d.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			d.log.Error().Err(err).Msg("Failed to start HTTP server")
			stop()
		}
	}()

	demoDone := make(chan struct{})
	if d.demo != nil {
		interval := time.Duration(d.config.Demo.IntervalMs) * time.Millisecond
		go func() {
			defer close(demoDone)
			d.demo.Run(ctx, interval)
		}()
	} else {
		close(demoDone)
	}
	go d.reportDiagnostics(ctx)

	d.log.Info().Msg("rtthreads is ready")

	<-ctx.Done()
	d.log.Info().Msg("! Shutdown initiated...")

	// --- Graceful shutdown sequence ---

	httpCtx, cancelhttp := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelhttp()
	if err := d.httpServer.Shutdown(httpCtx); err != nil {
		d.log.Error().Err(err).Msg("Error shutting down HTTP server")
	} else {
		d.log.Debug().Msg("HTTP server shut down cleanly")
	}

	threadsCtx, cancelThreads := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelThreads()
	if err := d.manager.Shutdown(threadsCtx); err != nil {
		d.log.Error().Err(err).Msg("Threads did not stop in time")
	}
	select {
	case <-demoDone:
		if d.demo != nil {
			if err := d.demo.Close(threadsCtx); err != nil {
				d.log.Warn().Err(err).Msg("Abandoned demo rounds did not drain")
			}
		}
	case <-threadsCtx.Done():
		d.log.Warn().Msg("Demo round still running, leaving its semaphores open")
	}

	d.log.Info().Msg("rtthreads stopped gracefully")
	return nil
}

// reportDiagnostics logs the lifecycle counters once per interval.
func (d *Daemon) reportDiagnostics(ctx context.Context) {
	ticker := time.NewTicker(diagnosticsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.manager.Diagnostics().Report(d.manager.Logger(), d.manager.NumberOfThreads())
		}
	}
}
