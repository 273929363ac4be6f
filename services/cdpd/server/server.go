package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"cdpchain/core"
	"cdpchain/crypto"
	"cdpchain/gateway/middleware"
	"cdpchain/observability/metrics"
	"cdpchain/services/cdpd/indexer"
)

const (
	// HeaderCaller names the caller when authentication is disabled and the
	// server is configured to trust it.
	HeaderCaller = "X-CDP-Caller"

	ScopeWrite = "cdp:write"
)

var errNoCaller = errors.New("caller identity required")

// Config captures the dependencies of the HTTP API.
type Config struct {
	Protocol          *core.Protocol
	Indexer           *indexer.Indexer
	Auth              *middleware.Authenticator
	Limiter           *middleware.RateLimiter
	Observability     *middleware.Observability
	CORS              *middleware.CORSConfig
	Logger            *slog.Logger
	TrustCallerHeader bool
}

// Server exposes every protocol operation and view over JSON. All mutations
// run through Protocol.Execute.
type Server struct {
	protocol *core.Protocol
	index    *indexer.Indexer
	cfg      Config
	logger   *slog.Logger
	router   http.Handler
}

func New(cfg Config) (*Server, error) {
	if cfg.Protocol == nil {
		return nil, errors.New("server: protocol required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Observability == nil {
		cfg.Observability = middleware.NewObservability(middleware.ObservabilityConfig{ServiceName: "cdpd", Module: "cdpd", Enabled: true}, cfg.Logger)
	}
	srv := &Server{protocol: cfg.Protocol, index: cfg.Indexer, cfg: cfg, logger: cfg.Logger}
	srv.router = srv.buildRouter()
	return srv, nil
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	if s.cfg.CORS != nil {
		r.Use(middleware.CORS(*s.cfg.CORS))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		v1.Group(func(write chi.Router) {
			write.Use(s.authenticate(ScopeWrite))
			write.With(s.route("positions.open")).Post("/positions", s.openPosition)
			write.With(s.route("positions.clone")).Post("/positions/{address}/clone", s.clonePosition)
			write.With(s.route("positions.mint")).Post("/positions/{address}/mint", s.mint)
			write.With(s.route("positions.repay")).Post("/positions/{address}/repay", s.repay)
			write.With(s.route("positions.adjust")).Post("/positions/{address}/adjust", s.adjust)
			write.With(s.route("positions.price")).Post("/positions/{address}/price", s.adjustPrice)
			write.With(s.route("positions.withdrawCollateral")).Post("/positions/{address}/withdraw-collateral", s.withdrawCollateral)
			write.With(s.route("positions.withdraw")).Post("/positions/{address}/withdraw", s.withdraw)
			write.With(s.route("positions.deny")).Post("/positions/{address}/deny", s.deny)
			write.With(s.route("positions.owner")).Post("/positions/{address}/owner", s.transferOwnership)
			write.With(s.route("challenges.start")).Post("/positions/{address}/challenges", s.challenge)
			write.With(s.route("positions.buyExpired")).Post("/positions/{address}/buy-expired", s.buyExpired)
			write.With(s.route("challenges.bid")).Post("/challenges/{index}/bids", s.bid)
			write.With(s.route("returns.claim")).Post("/returns/{asset}/claim", s.claimReturn)
			write.With(s.route("roller.roll")).Post("/roll", s.roll)
			write.With(s.route("roller.rollFully")).Post("/roll/full", s.rollFully)
			write.With(s.route("bank.transfer")).Post("/transfers", s.transfer)
		})
		v1.Route("/views", func(view chi.Router) {
			view.Use(s.authenticate())
			view.With(s.route("views.positions")).Get("/positions", s.listPositions)
			view.With(s.route("views.position")).Get("/positions/{address}", s.getPosition)
			view.With(s.route("views.history")).Get("/positions/{address}/history", s.positionHistory)
			view.With(s.route("views.expiredPrice")).Get("/positions/{address}/expired-price", s.expiredPrice)
			view.With(s.route("views.repayment")).Get("/positions/{address}/repayment", s.repayment)
			view.With(s.route("views.challenges")).Get("/challenges", s.listChallenges)
			view.With(s.route("views.challenge")).Get("/challenges/{index}", s.getChallenge)
			view.With(s.route("views.returns")).Get("/returns/{asset}/{owner}", s.pendingReturns)
			view.With(s.route("views.balance")).Get("/balances/{asset}/{owner}", s.balance)
			view.With(s.route("views.reserve")).Get("/reserve", s.reserve)
			view.With(s.route("views.events")).Get("/events", s.listEvents)
		})
	})

	return otelhttp.NewHandler(r, "cdpd")
}

// route attaches the per-route observability and rate limit middleware.
func (s *Server) route(name string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		handler := next
		if s.cfg.Limiter != nil {
			handler = s.cfg.Limiter.Middleware(name)(handler)
		}
		return s.cfg.Observability.Middleware(name)(handler)
	}
}

func (s *Server) authenticate(scopes ...string) func(http.Handler) http.Handler {
	if s.cfg.Auth != nil {
		return s.cfg.Auth.Middleware(scopes...)
	}
	return func(next http.Handler) http.Handler { return next }
}

// caller resolves the acting account of a request.
func (s *Server) caller(r *http.Request) (crypto.Address, error) {
	if caller, ok := middleware.CallerFromContext(r.Context()); ok {
		return caller, nil
	}
	if s.cfg.TrustCallerHeader {
		if raw := strings.TrimSpace(r.Header.Get(HeaderCaller)); raw != "" {
			return parseAddress(HeaderCaller, raw)
		}
	}
	return crypto.Address{}, errNoCaller
}

// execute runs fn as one protocol transaction and refreshes the gauges
// afterwards.
func (s *Server) execute(fn func() error) error {
	if err := s.protocol.Execute(fn); err != nil {
		return err
	}
	s.observeProtocol()
	return nil
}

func (s *Server) observeProtocol() {
	var snapshot metrics.Snapshot
	err := s.protocol.View(func() error {
		var err error
		debt := s.protocol.Stable()
		if snapshot.TotalSupply, err = debt.TotalSupply(); err != nil {
			return err
		}
		if snapshot.MinterReserve, err = debt.MinterReserve(); err != nil {
			return err
		}
		if snapshot.Equity, err = debt.Equity(); err != nil {
			return err
		}
		open, err := s.protocol.Hub().Challenges(crypto.Address{})
		if err != nil {
			return err
		}
		snapshot.OpenChallenges = len(open)
		return nil
	})
	if err != nil {
		s.logger.Warn("refresh protocol metrics", "error", err)
		return
	}
	metrics.Protocol().Observe(snapshot)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, errNoCaller) {
		s.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthenticated", Message: err.Error()})
		return
	}
	class := classify(err)
	message := err.Error()
	if class.status == http.StatusInternalServerError {
		s.logger.Error("request failed", "route", r.URL.Path, "error", err)
		message = "internal error"
	}
	s.writeJSON(w, class.status, errorResponse{Error: class.code, Message: message})
}
