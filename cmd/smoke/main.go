package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/roster/internal/smoketest"
	"github.com/okian/roster/pkg/logger"
)

// Default configuration constants.
const (
	defaultWorkers     = 2 // multiplier for runtime.NumCPU()
	defaultTimeout     = 10 * time.Second
	defaultTestTimeout = 10 * time.Minute
)

func main() {
	var (
		baseURL  = flag.String("url", "http://localhost:5000", "Base URL of the service")
		listen   = flag.String("listen", "127.0.0.1:0", "Listen address of the webhook sink")
		sinkURL  = flag.String("sink-url", "", "URL the service uses to reach the sink")
		token    = flag.String("token", "", "Expected bearer token; empty accepts any")
		students = flag.Int("students", smoketest.DefaultStudents, "Number of students to create and update")
		workers  = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent workers")
		timeout  = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		settle   = flag.Duration("settle", smoketest.DefaultSettle, "How long to wait for deliveries")
		serve    = flag.Bool("serve", false, "Only run the sink until interrupted")
		logFile  = flag.String("log", "", "Log file for output")
		verbose  = flag.Bool("verbose", false, "Log every received envelope")
		help     = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		smoketest.ShowHelp()
		return
	}

	if err := smoketest.SetupLogging(*logFile); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logger.Get()

	if *serve {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		srv := &http.Server{
			Addr:              *listen,
			Handler:           smoketest.NewSink(*token, true),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			<-ctx.Done()
			_ = srv.Close()
		}()
		log.Info(ctx, "webhook sink listening", logger.String("addr", *listen))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(ctx, "sink failed", logger.Error(err))
			os.Exit(1)
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTestTimeout)
	defer cancel()

	config := &smoketest.Config{
		BaseURL:  *baseURL,
		SinkAddr: *listen,
		SinkURL:  *sinkURL,
		Token:    *token,
		Students: *students,
		Workers:  *workers,
		Timeout:  *timeout,
		Settle:   *settle,
		Verbose:  *verbose,
	}
	if _, err := smoketest.Run(ctx, config); err != nil {
		log.Error(ctx, "smoke run failed", logger.Error(err))
		cancel()
		os.Exit(1)
	}
}
