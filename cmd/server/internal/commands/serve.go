package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"filippo.io/csrf"
	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/wolfeidau/unirating/internal/auth"
	httpmiddleware "github.com/wolfeidau/unirating/internal/http"
	"github.com/wolfeidau/unirating/internal/logger"
	"github.com/wolfeidau/unirating/internal/login"
	"github.com/wolfeidau/unirating/internal/origin"
	"github.com/wolfeidau/unirating/internal/readiness"
	"github.com/wolfeidau/unirating/internal/telemetry"
	"github.com/wolfeidau/unirating/internal/website"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// netListen is swapped in tests to observe when the port is bound.
var netListen = net.Listen

type ServeCmd struct {
	// Server configuration
	Listen          string        `help:"HTTP server listen address" default:"0.0.0.0:4000" env:"UNIRATING_LISTEN"`
	Cert            string        `help:"path to TLS cert file" default:"" env:"UNIRATING_TLS_CERT"`
	Key             string        `help:"path to TLS key file" default:"" env:"UNIRATING_TLS_KEY"`
	Mode            string        `help:"deployment mode, production enables secure cross-site cookies" default:"development" env:"APP_ENV"`
	ShutdownTimeout time.Duration `help:"graceful shutdown timeout" default:"10s" env:"UNIRATING_SHUTDOWN_TIMEOUT"`
	Tracing         bool          `help:"enable tracing" default:"false" env:"UNIRATING_TRACING"`

	// CORS configuration
	ClientOrigin string `help:"comma-separated allowed client origins (exact, *, or .domain suffix)" default:"http://localhost:5173" env:"CLIENT_ORIGIN"`
	TrustProxy   int    `help:"number of reverse proxies in front of the server, used to read X-Forwarded-For" default:"1" env:"TRUST_PROXY_HOPS"`

	// Session configuration
	SessionSecret string        `help:"secret for signing session cookies (at least 32 bytes)" required:"" env:"SESSION_SECRET"`
	Cookie        CookieFlags   `embed:"" prefix:"cookie-"`
	PruneInterval time.Duration `help:"interval between expired session sweeps" default:"15m" env:"UNIRATING_PRUNE_INTERVAL"`

	// Password hashing
	BcryptCost  int `help:"bcrypt cost factor" default:"10" env:"UNIRATING_BCRYPT_COST"`
	HashWorkers int `help:"password hashing workers, 0 uses GOMAXPROCS" default:"0" env:"UNIRATING_HASH_WORKERS"`

	// Store configuration
	StoreType    string         `help:"user store type (postgres or memory)" default:"postgres" env:"UNIRATING_STORE_TYPE" enum:"postgres,memory"`
	SessionStore string         `help:"session store type, auto follows the user store" default:"auto" env:"UNIRATING_SESSION_STORE" enum:"auto,memory,postgres,redis"`
	Postgres     PostgresFlags  `embed:"" prefix:"postgres-"`
	Redis        RedisFlags     `embed:"" prefix:"redis-"`
	Readiness    ReadinessFlags `embed:"" prefix:"readiness-"`
}

type CookieFlags struct {
	Name     string `help:"session cookie name" default:"sid" env:"SESSION_COOKIE_NAME"`
	Secure   string `help:"force the Secure attribute (true or false), defaults by mode" default:"" env:"COOKIE_SECURE"`
	SameSite string `help:"force the SameSite attribute (lax, strict or none), defaults by mode" default:"" env:"COOKIE_SAME_SITE"`
	Domain   string `help:"session cookie domain" default:"" env:"COOKIE_DOMAIN"`
}

type ReadinessFlags struct {
	Attempts int           `help:"datastore readiness attempts before giving up" default:"30" env:"DB_READY_ATTEMPTS"`
	Delay    time.Duration `help:"delay between readiness attempts" default:"2s" env:"DB_READY_DELAY"`
}

func (f ReadinessFlags) config() readiness.Config {
	return readiness.Config{
		Attempts: f.Attempts,
		Delay:    f.Delay,
	}
}

func (c *ServeCmd) Validate() error {
	if len(c.SessionSecret) < login.MinSecretLength {
		return fmt.Errorf("session secret must be at least %d bytes (--session-secret or SESSION_SECRET)", login.MinSecretLength)
	}
	if (c.Cert == "") != (c.Key == "") {
		return errors.New("TLS certificate and key must be provided together (--cert and --key)")
	}
	if c.TrustProxy < 0 {
		return errors.New("trusted proxy hops cannot be negative (--trust-proxy or TRUST_PROXY_HOPS)")
	}
	if c.StoreType == "memory" && c.SessionStore == "postgres" {
		return errors.New("postgres session store requires --store-type=postgres")
	}
	if c.usesPostgres() {
		if err := c.Postgres.validate(); err != nil {
			return err
		}
	}
	if c.sessionStoreType() == "redis" && c.Redis.URL == "" {
		return errors.New("redis URL is required for the redis session store (--redis-url or REDIS_URL)")
	}
	return nil
}

func (c *ServeCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)
	zlog.Logger = log

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().
		Str("version", globals.Version).
		Bool("debug", globals.Debug).
		Str("mode", c.Mode).
		Msg("Starting server")

	if c.Tracing {
		log.Info().Msg("Tracing is enabled")
		shutdown, err := telemetry.Init(ctx, telemetry.Config{Version: globals.Version})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
			shutdown = func(ctx context.Context) error { return nil }
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
	}

	if c.Cert != "" {
		if _, err := os.Stat(c.Cert); err != nil {
			return fmt.Errorf("TLS certificate not found at %s: %w", c.Cert, err)
		}
		if _, err := os.Stat(c.Key); err != nil {
			return fmt.Errorf("TLS key not found at %s: %w", c.Key, err)
		}
	}

	cookies, err := login.ResolveCookieConfig(login.CookieOptions{
		Name:     c.Cookie.Name,
		Mode:     c.Mode,
		Secure:   c.Cookie.Secure,
		SameSite: c.Cookie.SameSite,
		Domain:   c.Cookie.Domain,
		Secret:   c.SessionSecret,
	})
	if err != nil {
		return fmt.Errorf("invalid cookie configuration: %w", err)
	}

	matcher := origin.NewMatcher(origin.ParseAllowList(c.ClientOrigin))
	log.Info().Strs("origins", matcher.Patterns()).Msg("CORS allow-list loaded")

	backends, err := c.openBackends(ctx)
	if err != nil {
		return err
	}
	defer backends.Close()

	// Nothing below runs, and the port is never bound, until every datastore answers.
	gate := readiness.New(c.Readiness.config(), backends.probes...)
	for _, hook := range backends.hooks {
		gate.OnReady(hook.Name, hook.Run)
	}
	if err := gate.Wait(ctx); err != nil {
		return err
	}

	hasher := auth.NewBcryptHasher(c.BcryptCost, c.HashWorkers)
	defer hasher.Close()

	credentials, err := auth.NewCredentialStore(ctx, backends.users, hasher)
	if err != nil {
		return fmt.Errorf("failed to create credential store: %w", err)
	}

	sessions := auth.NewSessionManager(backends.sessions, backends.users)
	service := auth.NewService(credentials, sessions)

	if backends.prune {
		// stopped before the deferred backends.Close so no prune runs against a closed pool
		stopPruner := auth.NewPruner(backends.sessions, c.PruneInterval).Start(ctx)
		defer stopPruner()
	}

	site, err := website.New("UniRating", globals.Version)
	if err != nil {
		return fmt.Errorf("failed to load website templates: %w", err)
	}

	handler := c.buildHandler(log, login.NewHandler(service, cookies).Routes(), matcher, site)

	return c.serve(ctx, log, handler)
}

// buildHandler routes /api to the CORS-guarded JSON handlers and everything
// else to the CSRF-protected HTML pages.
func (c *ServeCmd) buildHandler(log zerolog.Logger, api http.Handler, matcher *origin.Matcher, site *website.Website) http.Handler {
	pages := http.NewServeMux()
	pages.HandleFunc("GET /{$}", site.IndexHandler)

	mux := http.NewServeMux()
	mux.Handle("/api/", httpmiddleware.WithCORS(matcher, api))
	mux.HandleFunc("GET /health", httpmiddleware.Health)
	mux.Handle("/", csrf.New().Handler(pages))

	var handler http.Handler = mux
	handler = httpmiddleware.ClientIPMiddleware(c.TrustProxy)(handler)
	handler = gzhttp.GzipHandler(handler)
	handler = logger.HTTPRequests(log)(handler)

	if c.Tracing {
		handler = otelhttp.NewHandler(handler, telemetry.ServiceName)
	}

	return handler
}

func (c *ServeCmd) serve(ctx context.Context, log zerolog.Logger, handler http.Handler) error {
	ln, err := netListen("tcp", c.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", c.Listen, err)
	}

	srv := configureHTTPServer(c.Listen, handler)

	errCh := make(chan error, 1)
	go func() {
		if c.Cert != "" {
			errCh <- srv.ServeTLS(ln, c.Cert, c.Key)
			return
		}
		errCh <- srv.Serve(ln)
	}()

	log.Info().Str("addr", ln.Addr().String()).Bool("tls", c.Cert != "").Msg("Server listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), c.ShutdownTimeout)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
