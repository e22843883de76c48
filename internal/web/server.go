// Package web serves the UI and the JSON API: login and signup, OAuth
// account linking, inbox rule management, and the manual sweep trigger.
package web

import (
	"context"
	"embed"
	"html/template"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/atulm/billdrop/internal/config"
	"github.com/atulm/billdrop/internal/database"
	"github.com/atulm/billdrop/internal/provider"
	"github.com/atulm/billdrop/internal/sweep"
)

//go:embed templates/*.gohtml
var templateFS embed.FS

const sessionName = "session"

// Deps dependencies for creating the web server
type Deps struct {
	Config    *config.Config
	DB        *database.DB
	Providers provider.Factory
	Sweeper   *sweep.Sweeper
	Logger    *slog.Logger
}

// Server is the HTTP front of the application.
type Server struct {
	echo      *echo.Echo
	cfg       *config.Config
	db        *database.DB
	providers provider.Factory
	sweeper   *sweep.Sweeper
	logger    *slog.Logger
}

type renderer struct {
	templates *template.Template
}

func (r *renderer) Render(w io.Writer, name string, data interface{}, c echo.Context) error {
	return r.templates.ExecuteTemplate(w, name, data)
}

// NewServer creates the web server and registers all routes
func NewServer(deps Deps) (*Server, error) {
	s := &Server{
		cfg:       deps.Config,
		db:        deps.DB,
		providers: deps.Providers,
		sweeper:   deps.Sweeper,
		logger:    deps.Logger.With("component", "web"),
	}

	tmpl, err := template.ParseFS(templateFS, "templates/*.gohtml")
	if err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.Renderer = &renderer{templates: tmpl}
	e.Use(echomw.Recover())
	e.Use(session.Middleware(sessions.NewCookieStore([]byte(deps.Config.SessionSecret))))

	s.echo = e
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	e := s.echo

	e.GET("/login", s.handleLoginPage)
	e.POST("/login", s.handleLogin)
	e.GET("/signup", s.handleSignupPage)
	e.POST("/signup", s.handleSignup)
	e.GET("/logout", s.handleLogout)

	authed := e.Group("", s.requireUser)
	authed.GET("/", s.handleHome)
	authed.GET("/connect/google", s.handleConnectGoogle)
	authed.GET("/connect/google/callback", s.handleGoogleCallback)
	authed.GET("/connect/zoho", s.handleConnectZoho)
	authed.GET("/connect/zoho/callback", s.handleZohoCallback)

	api := e.Group("/api", s.requireUserAPI)
	api.GET("/linked_accounts", s.handleListAccounts)
	api.GET("/linked_accounts/:account_id", s.handleGetAccount)
	api.GET("/linked_accounts/:account_id/inbox_rules", s.handleListRules)
	api.POST("/linked_accounts/:account_id/inbox_rules", s.handleCreateRule)
	api.POST("/linked_accounts/:account_id/inbox_rules/:rule_id", s.handleUpdateRule)
	api.POST("/run_task", s.handleRunTask)
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.cfg.ListenAddr)
	err := s.echo.Start(s.cfg.ListenAddr)
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the HTTP server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// sessionUserID returns the logged-in user id, or "" when not logged in.
func sessionUserID(c echo.Context) string {
	sess, err := session.Get(sessionName, c)
	if err != nil {
		return ""
	}
	id, _ := sess.Values["user_id"].(string)
	return id
}

// requireUser redirects anonymous page requests to the login page.
func (s *Server) requireUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if sessionUserID(c) == "" {
			return c.Redirect(http.StatusFound, "/login")
		}
		return next(c)
	}
}

// requireUserAPI rejects anonymous API requests.
func (s *Server) requireUserAPI(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if sessionUserID(c) == "" {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "not logged in"})
		}
		return next(c)
	}
}
