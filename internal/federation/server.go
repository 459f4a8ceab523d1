// Package federation implements the cross-server protocol engine: grant
// issuance and exchange, identity linking, and the /fedapi HTTP surface
// peers and browsers interact with.
package federation

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	slogecho "github.com/samber/slog-echo"

	"github.com/puzzlefed/puzzlefed/internal/config"
	"github.com/puzzlefed/puzzlefed/internal/httperr"
	"github.com/puzzlefed/puzzlefed/internal/puzzles"
	"github.com/puzzlefed/puzzlefed/internal/store"
)

const sessionName = "session"

type Server struct {
	e        *echo.Echo
	cfg      *config.Config
	registry *Registry
	grants   *GrantStore
	store    *store.Store
	peers    *PeerClient
	agg      *puzzles.Aggregator
	logger   *slog.Logger
}

func NewServer(cfg *config.Config, st *store.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	peers := NewPeerClient(nil)

	s := &Server{
		cfg:      cfg,
		registry: NewRegistry(cfg.GroupNo, cfg.Peers),
		grants:   NewGrantStore(cfg.TokenLength),
		store:    st,
		peers:    peers,
		agg:      puzzles.NewAggregator(cfg.GroupNo, cfg.Peers, st, peers.HTTPClient(), logger),
		logger:   logger,
	}

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = httperr.Handler(logger)
	e.Use(slogecho.New(logger))
	e.Use(session.Middleware(sessions.NewCookieStore([]byte(cfg.SessionSecret))))

	fed := e.Group("/fedapi")
	fed.GET("", s.handleIndex)
	fed.GET("/", s.handleIndex)
	fed.GET("/auth/authorise", s.handleAuthorise)
	fed.GET("/auth/redirect/:id", s.handleRedirect)
	fed.POST("/auth/token", s.handleToken)
	fed.GET("/user", s.handleUser)
	fed.GET("/sudoku", s.handleSudoku)

	s.e = e
	return s
}

// Handler exposes the http handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.e
}

func (s *Server) Run() error {
	httpd := http.Server{
		Addr:    s.cfg.ListenAddr,
		Handler: s.e,
	}

	s.logger.Info("starting http server", "addr", s.cfg.ListenAddr, "group", s.cfg.GroupNo)

	return httpd.ListenAndServe()
}
