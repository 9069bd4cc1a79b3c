package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirerelay/internal/auth"
	"github.com/vovakirdan/wirerelay/internal/config"
	"github.com/vovakirdan/wirerelay/internal/core"
	"github.com/vovakirdan/wirerelay/internal/metrics"
	"github.com/vovakirdan/wirerelay/internal/proto"
	"github.com/vovakirdan/wirerelay/internal/store"
	"github.com/vovakirdan/wirerelay/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/wirerelay/internal/transport/http"
	"github.com/vovakirdan/wirerelay/internal/transport/tcp"
)

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	httpListener    net.Listener
	relay           *tcp.Listener
	shutdownTimeout time.Duration
	hub             *core.Hub
	store           store.Store
	log             *zerolog.Logger
}

// JWTConfig derives the token settings shared by the relay and the credential service.
func JWTConfig(cfg *config.Config) *auth.JWTConfig {
	return &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.TokenTTL,
	}
}

// New constructs the application and binds both listeners.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	jwtConfig := JWTConfig(cfg)
	verifier := auth.NewVerifier(jwtConfig)
	authService := auth.NewService(st, jwtConfig)
	m := metrics.New()

	maxUnit := cfg.MaxFrameBytes
	if maxUnit <= 0 {
		maxUnit = proto.DefaultMaxFrameSize
	}
	hub := core.NewHub(core.Options{
		Verifier:         verifier,
		HandshakeTimeout: cfg.HandshakeTimeout,
		SendTimeout:      cfg.SendTimeout,
		MaxUnitBytes:     maxUnit,
		Metrics:          m,
		Logger:           logger,
	})

	relay, err := tcp.Listen(cfg.RelayAddr, hub, tcp.Options{
		MaxFrameBytes: cfg.MaxFrameBytes,
		Metrics:       m,
		Logger:        logger,
	})
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("init relay listener: %w", err)
	}

	httpListener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		_ = relay.Close()
		_ = st.Close()
		return nil, fmt.Errorf("listen http %s: %w", cfg.Addr, err)
	}

	server := transporthttp.NewServer(transporthttp.Deps{
		Hub:         hub,
		AuthService: authService,
		Verifier:    verifier,
		Metrics:     m,
		Logger:      logger,
	}, cfg)

	return &App{
		server:          server,
		httpListener:    httpListener,
		relay:           relay,
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		store:           st,
		log:             logger,
	}, nil
}

// HTTPAddr returns the bound HTTP address.
func (a *App) HTTPAddr() net.Addr {
	return a.httpListener.Addr()
}

// RelayAddr returns the bound relay address.
func (a *App) RelayAddr() net.Addr {
	return a.relay.Addr()
}

// Run serves HTTP and the relay and blocks until context cancellation or a fatal HTTP error.
func (a *App) Run(ctx context.Context) error {
	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		if err := a.relay.Serve(ctx); err != nil {
			a.log.Error().Err(err).Msg("relay listener stopped")
		}
	}()

	serverErr := make(chan error, 1)
	go func() {
		a.log.Info().Str("addr", a.HTTPAddr().String()).Msg("http server started")
		if err := a.server.Serve(a.httpListener); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.stopRelay(relayDone)
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		shutdownErr := a.server.Shutdown(shutdownCtx)

		a.stopRelay(relayDone)
		a.cleanup()

		if shutdownErr != nil {
			return shutdownErr
		}
		return <-serverErr
	}
}

// stopRelay stops accepting, then closes every live session and waits for
// their cleanup, which includes the departure notices.
func (a *App) stopRelay(relayDone <-chan struct{}) {
	if err := a.relay.Close(); err != nil {
		a.log.Warn().Err(err).Msg("failed to close relay listener")
	}
	<-relayDone

	a.log.Info().Int("sessions", a.hub.Registry().Len()).Msg("closing relay sessions")
	a.hub.CloseAll()
	a.hub.Wait()
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
