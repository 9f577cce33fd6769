// Command ringdemo runs a producer that behaves like an interrupt handler
// (never blocks, drops frames when the buffer is full) against a consumer task
// draining the same CircularBuffer.
package main

import (
	"context"
	"encoding/binary"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	cb "github.com/sushydev/circular_buffer_go"
	"github.com/sushydev/circular_buffer_go/config"
)

const seqSize = 4

type cliFlags struct {
	configPath  string
	metricsAddr string
	frames      int
}

func parseFlags() *cliFlags {
	flags := &cliFlags{}
	flag.StringVar(&flags.configPath, "config", "", "Path to a YAML configuration file")
	flag.StringVar(&flags.metricsAddr, "metrics-addr", "", "Serve /metrics on this address (overrides config)")
	flag.IntVar(&flags.frames, "frames", 0, "Number of frames to produce (overrides config)")
	flag.Parse()
	return flags
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	flags := parseFlags()

	cfg := config.Default()
	if flags.configPath != "" {
		loaded, err := config.Load(flags.configPath)
		if err != nil {
			logger.Fatal().Err(err).Str("path", flags.configPath).Msg("failed to load config")
		}
		cfg = loaded
	}
	if flags.metricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Addr = flags.metricsAddr
	}
	if flags.frames > 0 {
		cfg.Producer.Frames = flags.frames
	}

	level, err := cfg.LogLevel()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid log level")
	}
	logger = logger.Level(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error().Err(err).Msg("ringdemo failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	region, err := cfg.AllocateStorage()
	if err != nil {
		return err
	}
	defer func() {
		if err := region.Close(); err != nil {
			logger.Err(err).Msg("failed to release storage")
		}
	}()

	opts, err := cfg.Options(logger, registry)
	if err != nil {
		return err
	}

	buffer, err := cb.New(region.Bytes(), opts...)
	if err != nil {
		return err
	}

	logger.Info().
		Str("buffer", buffer.Name()).
		Int("capacity", buffer.GetCapacity()).
		Bool("mmap", region.Mapped()).
		Str("lock", cfg.Lock.Kind).
		Msg("buffer ready")

	if cfg.Lock.Kind == config.LockNone {
		logger.Warn().Msg("no lock configured; producer and consumer are not synchronized")
	}

	if cfg.Metrics.Enabled {
		server := serveMetrics(cfg.Metrics.Addr, registry, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Err(err).Msg("failed to stop metrics server")
			}
		}()
	}

	readable := make(chan struct{}, 1)
	done := make(chan struct{})

	go func() {
		defer close(done)
		produce(ctx, buffer, cfg.Producer, readable, logger)
	}()

	received := consume(ctx, buffer, cfg.Producer.FrameSize, readable, done, logger)

	stats := buffer.Stats()
	logger.Info().
		Int("frames_received", received).
		Int64("pushes", stats.Pushes).
		Int64("overflows", stats.Overflows).
		Int64("lock_errors", stats.LockErrors).
		Int64("high_water", stats.HighWater).
		Msg("done")

	return nil
}

func serveMetrics(addr string, registry *prometheus.Registry, logger zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Err(err).Str("addr", addr).Msg("metrics server stopped")
		}
	}()

	logger.Info().Str("addr", addr).Msg("serving metrics")
	return server
}

// fillFrame writes the sequence number followed by a payload derived from it,
// so the consumer can check every byte.
func fillFrame(frame []byte, seq uint32) {
	binary.BigEndian.PutUint32(frame, seq)
	for i := seqSize; i < len(frame); i++ {
		frame[i] = byte(seq) + byte(i)
	}
}

func checkFrame(frame []byte) (uint32, bool) {
	seq := binary.BigEndian.Uint32(frame)
	for i := seqSize; i < len(frame); i++ {
		if frame[i] != byte(seq)+byte(i) {
			return seq, false
		}
	}
	return seq, true
}

func produce(ctx context.Context, buffer *cb.CircularBuffer, cfg config.ProducerConfig, readable chan<- struct{}, logger zerolog.Logger) {
	frame := make([]byte, cfg.FrameSize)

	var ticker *time.Ticker
	if cfg.Interval > 0 {
		ticker = time.NewTicker(cfg.Interval)
		defer ticker.Stop()
	}

	for seq := 0; seq < cfg.Frames; seq++ {
		if ticker != nil {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		} else if ctx.Err() != nil {
			return
		}

		fillFrame(frame, uint32(seq))

		if err := buffer.Push(frame); err != nil {
			// An interrupt handler cannot wait for the consumer.
			logger.Debug().Err(err).Int("seq", seq).Msg("frame dropped")
			continue
		}

		select {
		case readable <- struct{}{}:
		default:
		}
	}
}

func consume(ctx context.Context, buffer *cb.CircularBuffer, frameSize int, readable <-chan struct{}, done <-chan struct{}, logger zerolog.Logger) int {
	frame := make([]byte, frameSize)
	header := make([]byte, seqSize)
	received := 0
	lastSeq := -1

	for {
		for buffer.GetCount() >= frameSize {
			if err := buffer.Peek(header, 0, seqSize); err == nil {
				logger.Trace().Uint32("seq", binary.BigEndian.Uint32(header)).Msg("next frame")
			}

			if err := buffer.Pop(frame); err != nil {
				logger.Warn().Err(err).Msg("pop failed")
				break
			}

			seq, ok := checkFrame(frame)
			if !ok {
				logger.Error().Uint32("seq", seq).Msg("corrupted frame")
			}
			if int(seq) <= lastSeq {
				logger.Error().Uint32("seq", seq).Int("last", lastSeq).Msg("frame out of order")
			}
			lastSeq = int(seq)
			received++
		}

		select {
		case <-ctx.Done():
			return received
		case <-readable:
		case <-done:
			if buffer.GetCount() < frameSize {
				return received
			}
		}
	}
}
