package main

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ryankurte/rngcheck/bitseq"
	rngconfig "github.com/ryankurte/rngcheck/internal/config"
	"github.com/ryankurte/rngcheck/internal/metrics"
	"github.com/ryankurte/rngcheck/internal/monitor"
	"github.com/ryankurte/rngcheck/internal/report"
	"github.com/ryankurte/rngcheck/internal/source"
	"github.com/ryankurte/rngcheck/nist"
)

var (
	loadConfigFunc       = loadConfig
	newSourceFunc        = newSource
	connectPublisherFunc = connectPublisherWithRetry
	waitForShutdownFunc  = waitForShutdown
	newMetricsServerFunc = func(addr string) metricsServer {
		return metrics.NewServer(addr)
	}
	rngconfigLoadFunc = rngconfig.Load
	signalNotifyFunc  = signal.Notify
	logFatalfFunc     = log.Fatalf
)

type metricsServer interface {
	Start() error
	StartTLS(certFile, keyFile, caFile string, clientAuth tls.ClientAuthType) error
	Shutdown(context.Context) error
}

type verdictPublisher interface {
	monitor.Publisher
	Connect() error
	Close()
}

// parseClientAuth maps a configuration string to the corresponding
// tls.ClientAuthType. Unrecognised values default to tls.NoClientCert.
func parseClientAuth(mode string) tls.ClientAuthType {
	switch mode {
	case "require":
		return tls.RequireAndVerifyClientCert
	case "request":
		return tls.RequestClientCert
	default:
		return tls.NoClientCert
	}
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout io.Writer, stderr io.Writer) int {
	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	if err := godotenv.Overload(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("dotenv: %v", err)
	}

	fs := flag.NewFlagSet("rngcheck", flag.ContinueOnError)
	fs.SetOutput(stderr)
	once := fs.Bool("once", false, "run a single assessment against the configured source and exit")
	fs.Usage = func() {
		_, _ = fmt.Fprintf(stdout, "Usage of %s:\n", fs.Name())
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			fs.Usage()
			return 0
		}
		_, _ = fmt.Fprintf(stderr, "parse flags: %v\n", err)
		return 2
	}

	if fs.NArg() > 0 {
		_, _ = fmt.Fprintf(stderr, "unexpected arguments: %v\n", fs.Args())
		fs.Usage()
		return 2
	}

	config, err := loadConfigFunc()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}

	src, err := newSourceFunc(config.Source)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "source: %v\n", err)
		return 1
	}

	if *once {
		return runOnce(src, config, stdout, stderr)
	}

	var srv metricsServer
	if config.Metrics.Enabled {
		srv = newMetricsServerFunc(config.Metrics.Bind)
		go func() {
			var err error
			if config.Metrics.TLSEnabled {
				clientAuth := parseClientAuth(config.Metrics.TLSClientAuth)
				err = srv.StartTLS(
					config.Metrics.TLSCertFile,
					config.Metrics.TLSKeyFile,
					config.Metrics.TLSCAFile,
					clientAuth,
				)
			} else {
				err = srv.Start()
			}
			if err != nil {
				logFatalfFunc("metrics: failed to start server: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Printf("metrics: shutdown error: %v", err)
			}
		}()
	}

	opts := []monitor.Option{}

	var publisher verdictPublisher
	if config.Report.Enabled {
		publisher, err = connectPublisherFunc(config.Report)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "%v\n", err)
			return 1
		}
		defer publisher.Close()
		opts = append(opts, monitor.WithPublisher(publisher))
	}

	mon := monitor.New(
		src,
		config.Monitor.SampleBits,
		config.Monitor.BlockLen,
		config.Monitor.Interval,
		opts...,
	)
	mon.Start(rootCtx)
	defer mon.Close()

	log.Println("rngcheck: ready, assessing entropy source...")

	waitForShutdownFunc(mon, publisher, srv)

	return 0
}

// loadConfig loads the monitor configuration from environment variables and
// the optional .env file.
func loadConfig() (rngconfig.Config, error) {
	config, err := rngconfigLoadFunc()
	if err != nil {
		return config, fmt.Errorf("config: %w", err)
	}

	log.Printf("environment: %s", config.Environment)
	return config, nil
}

// newSource constructs the entropy source under assessment, wrapped with
// the SP 800-90B continuous health tests.
func newSource(cfg rngconfig.Source) (source.Source, error) {
	switch cfg.Kind {
	case rngconfig.SourceOS:
		log.Println("source: using operating system RNG")
		return source.NewChecked(source.OS{}), nil
	case rngconfig.SourceSerial:
		log.Printf("source: using serial device %s (baud=%d)", cfg.SerialDevice, cfg.SerialBaud)
		serial, err := source.NewSerial(cfg.SerialDevice, cfg.SerialBaud, cfg.SerialReadTimeout)
		if err != nil {
			return nil, err
		}
		return source.NewChecked(serial), nil
	default:
		return nil, fmt.Errorf("unknown source kind %q", cfg.Kind)
	}
}

// runOnce performs a single assessment round against the source, printing
// human-readable results. The sample buffer is prefilled with a fixed
// pattern so an entirely silent source is caught before it skews the
// statistics.
func runOnce(src source.Source, config rngconfig.Config, stdout io.Writer, stderr io.Writer) int {
	sampleBytes := (config.Monitor.SampleBits + 7) / 8
	buf := bytes.Repeat([]byte{0xFF}, sampleBytes)

	if err := src.Fill(buf); err != nil {
		_, _ = fmt.Fprintf(stderr, "source read failed: %v\n", err)
		return 1
	}

	if sampleBytes >= 4 &&
		buf[0] == 0xFF && buf[1] == 0xFF &&
		buf[sampleBytes-2] == 0xFF && buf[sampleBytes-1] == 0xFF {
		log.Println("warning: sample buffer edges untouched, source may not be producing data")
	}

	failed := false

	pMonobit, err := nist.FrequencyMonobit(bitseq.Take(bitseq.FromBytes(buf), config.Monitor.SampleBits))
	printResult(stdout, monitor.TestMonobit, pMonobit, err)
	if err != nil {
		failed = true
	}

	pBlock, err := nist.FrequencyBlock(bitseq.Take(bitseq.FromBytes(buf), config.Monitor.SampleBits), config.Monitor.BlockLen)
	printResult(stdout, monitor.TestBlock, pBlock, err)
	if err != nil {
		failed = true
	}

	if failed {
		return 1
	}
	return 0
}

func printResult(w io.Writer, test string, p float64, err error) {
	if err != nil {
		_, _ = fmt.Fprintf(w, "%-20s FAIL  p=%v  (%v)\n", test, p, err)
		return
	}
	_, _ = fmt.Fprintf(w, "%-20s pass  p=%.6f\n", test, p)
}

// connectPublisherWithRetry repeatedly attempts to connect the verdict
// publisher. It applies exponential back-off with bounded jitter so
// multiple instances do not retry in lockstep during broker outages.
func connectPublisherWithRetry(cfg rngconfig.Report) (verdictPublisher, error) {
	const (
		initialDelay   = 1 * time.Second
		maxDelay       = 30 * time.Second
		jitterFraction = 0.2
	)

	delay := initialDelay
	attempt := 0
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for {
		attempt++
		publisher, err := setupPublisher(cfg)
		if err == nil {
			if attempt > 1 {
				log.Printf("report: connected after %d attempt(s)", attempt)
			}
			return publisher, nil
		}

		wait := delay
		if jitterFraction > 0 {
			jitter := 1 + (rng.Float64()*2-1)*jitterFraction
			wait = time.Duration(float64(delay) * jitter)
			if wait < 0 {
				wait = 0
			}
		}

		log.Printf("report: connect attempt %d failed: %v (retrying in %s)", attempt, err, wait)
		time.Sleep(wait)

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

// setupPublisher creates and connects the MQTT verdict publisher.
func setupPublisher(cfg rngconfig.Report) (verdictPublisher, error) {
	publisher, err := report.NewPublisher(report.Config{
		BrokerURL: cfg.BrokerURL,
		ClientID:  cfg.ClientID,
		Topic:     cfg.Topic,
		QoS:       cfg.QoS,
		Username:  cfg.Username,
		Password:  cfg.Password,
		TLSCAFile: cfg.TLSCAFile,
	})
	if err != nil {
		return nil, fmt.Errorf("report init: %w", err)
	}

	if err := publisher.Connect(); err != nil {
		publisher.Close()
		return nil, fmt.Errorf("report connect: %w", err)
	}

	log.Printf("report: connected -> %s, publishing -> %s (QoS=%d)",
		cfg.BrokerURL, cfg.Topic, cfg.QoS)

	return publisher, nil
}

// waitForShutdown blocks until SIGINT or SIGTERM is received, then tears
// down subsystems in order: monitor loop, publisher, metrics server.
func waitForShutdown(mon *monitor.Monitor, publisher verdictPublisher, metricsHTTPServer metricsServer) {
	sig := make(chan os.Signal, 1)
	signalNotifyFunc(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Println("shutting down gracefully...")

	if mon != nil {
		mon.Close()
	}

	if publisher != nil {
		publisher.Close()
	}

	if metricsHTTPServer != nil {
		shutdownContext, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsHTTPServer.Shutdown(shutdownContext); err != nil {
			log.Printf("metrics http server: shutdown error: %v", err)
		}
	}

	log.Println("shutdown complete")
}
