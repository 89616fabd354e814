package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/yourorg/walletpay/internal/catalog"
	"github.com/yourorg/walletpay/internal/charge"
	"github.com/yourorg/walletpay/internal/config"
	"github.com/yourorg/walletpay/internal/dialog"
	"github.com/yourorg/walletpay/internal/metrics"
	"github.com/yourorg/walletpay/internal/monitor"
	"github.com/yourorg/walletpay/internal/orchestrator"
	"github.com/yourorg/walletpay/internal/payment"
	"github.com/yourorg/walletpay/internal/policy"
	"github.com/yourorg/walletpay/internal/reporting"
	"github.com/yourorg/walletpay/internal/request"
	"github.com/yourorg/walletpay/internal/token"
	"github.com/yourorg/walletpay/internal/wallet"
)

const sessionTimeout = 30 * time.Second

type startPaymentRequest struct {
	ProductID string `json:"productId"`
}

// headlessConfirmer is the dialog collaborator for server mode: there is no
// interactive user, so retry offers are declined.
type headlessConfirmer struct {
	logger zerolog.Logger
}

func (c headlessConfirmer) Alert(_ context.Context, title, message, _ string) {
	c.logger.Info().Str("title", title).Str("message", message).Msg("payment dialog")
}

func (c headlessConfirmer) Confirm(_ context.Context, title, message, _, _ string) bool {
	c.logger.Info().Str("title", title).Str("message", message).Msg("payment dialog declined (headless)")
	return false
}

type server struct {
	cfg      *config.Config
	logger   zerolog.Logger
	engine   *gin.Engine
	orch     *orchestrator.Orchestrator
	journal  *reporting.MemoryJournal
	monitor  *monitor.ContractMonitor
	registry *prometheus.Registry
}

func newServer(cfg *config.Config, logger zerolog.Logger, w wallet.Authorizer, tok token.Tokenizer, sub charge.Submitter) (*server, error) {
	registry := prometheus.NewRegistry()
	journal := reporting.NewMemoryJournal()

	retryPolicy, err := policy.NewRetryPolicy(nil)
	if err != nil {
		return nil, err
	}
	mon, err := monitor.NewContractMonitor(monitor.StartPaymentSchema)
	if err != nil {
		return nil, err
	}

	cat := catalog.NewCatalog()
	orch := orchestrator.New(cfg.Merchant, orchestrator.Deps{
		Builder:   request.NewBuilder(cfg.Merchant, cat),
		Catalog:   cat,
		Wallet:    w,
		Tokenizer: tok,
		Submitter: sub,
		Presenter: dialog.NewErrorPresenter(headlessConfirmer{logger: logger}, nil, logger),
		Retry:     retryPolicy,
		Observer:  metrics.New(registry),
		Journal:   journal,
		Logger:    logger,
	})

	s := &server{
		cfg:      cfg,
		logger:   logger,
		orch:     orch,
		journal:  journal,
		monitor:  mon,
		registry: registry,
	}
	s.engine = s.setupRouter()
	return s, nil
}

func (s *server) setupRouter() *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery(), otelgin.Middleware("walletpay"))

	engine.POST("/payments", s.startPaymentHandler)
	engine.GET("/retrospective", s.retrospectiveHandler)
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return engine
}

func (s *server) startPaymentHandler(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}
	valid, validationErrs, err := s.monitor.Validate(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	if !valid {
		c.JSON(http.StatusBadRequest, gin.H{"error": monitor.FormatErrors(validationErrs)})
		return
	}

	var req startPaymentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request format: " + err.Error()})
		return
	}

	done := make(chan struct{})
	outcomeCh := make(chan payment.Outcome, 8)
	hooks := orchestrator.Hooks{
		OnCompleted: func(outcome payment.Outcome) {
			outcomeCh <- outcome
		},
		OnSessionFinished: func() {
			close(done)
		},
	}

	err = s.orch.Start(c.Request.Context(), catalog.ProductRef(req.ProductID), hooks)
	switch {
	case errors.Is(err, orchestrator.ErrSessionAlreadyActive):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case errors.Is(err, orchestrator.ErrInvalidProduct):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	select {
	case <-done:
	case <-time.After(sessionTimeout):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "payment session did not finish in time"})
		return
	}

	// The last delivered outcome is the session's terminal one.
	var last payment.Outcome
	for {
		select {
		case outcome := <-outcomeCh:
			last = outcome
			continue
		default:
		}
		break
	}
	c.JSON(http.StatusOK, last)
}

func (s *server) retrospectiveHandler(c *gin.Context) {
	c.JSON(http.StatusOK, reporting.GenerateRetrospective(s.journal.Entries()))
}

func newLogger(cfg *config.Config) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		level = zerolog.InfoLevel
	}
	var out io.Writer = os.Stdout
	if strings.EqualFold(cfg.LogFormat, "console") {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

func initTracing(ctx context.Context) (func(context.Context) error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}
	provider := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(provider)
	return provider.Shutdown, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := zerolog.New(os.Stderr)
		fallback.Fatal().Err(err).Msg("failed to load configuration")
	}
	logger := newLogger(cfg)

	shutdown, err := initTracing(context.Background())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize tracing")
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("tracer shutdown failed")
		}
	}()

	tokenizer := token.NewRestTokenizer(cfg.TokenizationURL, cfg.TokenizationKey, cfg.HTTPTimeout, logger)
	submitter := charge.NewRestSubmitter(cfg.ChargeURL, cfg.ChargeKey, cfg.HTTPTimeout, logger)

	srv, err := newServer(cfg, logger, wallet.NewSimulatedWallet(), tokenizer, submitter)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build server")
	}

	logger.Info().Str("addr", cfg.HTTPAddr()).Msg("starting server")
	if err := srv.engine.Run(cfg.HTTPAddr()); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}
