package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirerelay/internal/log"
	"github.com/vovakirdan/wirerelay/internal/proto"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:9999", "relay address")
	token := flag.String("token", os.Getenv("WIRERELAY_TOKEN"), "bearer token (or WIRERELAY_TOKEN)")
	maxFrame := flag.Int("max-frame", proto.DefaultMaxFrameSize, "largest frame payload in bytes; match the server's max_frame_bytes")
	logLevel := flag.String("log-level", "warn", "log level")
	flag.Parse()

	logger := log.NewWithWriter(os.Stderr, *logLevel)
	if *token == "" {
		logger.Fatal().Msg("token is required")
	}
	if *maxFrame <= 0 {
		logger.Fatal().Int("max_frame", *maxFrame).Msg("max-frame must be positive")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	nc, err := net.Dial("tcp", *addr)
	if err != nil {
		logger.Fatal().Err(err).Str("addr", *addr).Msg("dial relay")
	}
	defer nc.Close()
	context.AfterFunc(ctx, func() { _ = nc.Close() })

	if err := run(nc, *token, *maxFrame, os.Stdin, os.Stdout, logger); err != nil {
		logger.Error().Err(err).Msg("relay session")
	}
}

// run authenticates on nc, forwards stdin lines as chat and prints every
// inbound unit until the relay closes the connection.
func run(nc net.Conn, token string, maxFrame int, in io.Reader, out io.Writer, logger *zerolog.Logger) error {
	if err := proto.WriteText(nc, token, maxFrame); err != nil {
		return fmt.Errorf("send token: %w", err)
	}

	go func() {
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), maxFrame+1)
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				continue
			}
			err := proto.WriteText(nc, line, maxFrame)
			if errors.Is(err, proto.ErrFrameTooLarge) {
				logger.Warn().Int("bytes", len(line)).Int("max_frame", maxFrame).Msg("line too long, not sent")
				continue
			}
			if err != nil {
				logger.Error().Err(err).Msg("send line")
				return
			}
		}
		if err := scanner.Err(); err != nil {
			logger.Warn().Err(err).Msg("read stdin")
		}
		// stdin closed: leave politely.
		_ = proto.WriteText(nc, "!exit", maxFrame)
	}()

	r := bufio.NewReader(nc)
	for {
		text, err := proto.ReadText(r, maxFrame)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				logger.Info().Msg("connection closed")
				return nil
			}
			return fmt.Errorf("read from relay: %w", err)
		}
		fmt.Fprintln(out, text)
	}
}
