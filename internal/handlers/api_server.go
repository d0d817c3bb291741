// internal/handlers/api_server.go
package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/piloto-life/Gomoku/internal/auth"
	"github.com/piloto-life/Gomoku/internal/hub"
	"github.com/piloto-life/Gomoku/internal/middleware"
	"github.com/piloto-life/Gomoku/internal/models"
	"github.com/piloto-life/Gomoku/internal/ws"
	"github.com/sirupsen/logrus"
)

// UserStore backs account creation and login. database.Store implements it.
type UserStore interface {
	CreateUser(ctx context.Context, u *models.User) error
	AuthenticateUser(ctx context.Context, email, password string) (*models.User, error)
}

type Options struct {
	// AllowedOrigins feeds both CORS and the websocket origin check. Empty allows any.
	AllowedOrigins []string
	Conn           ws.Options
}

// Server holds everything the HTTP and websocket handlers need.
type Server struct {
	hub      *hub.Hub
	resolver *auth.Resolver
	users    UserStore
	opts     Options
	logger   *logrus.Logger
}

// NewServer builds the handler set. users may be nil, in which case only guest
// accounts are available.
func NewServer(h *hub.Hub, resolver *auth.Resolver, users UserStore, opts Options, logger *logrus.Logger) *Server {
	return &Server{
		hub:      h,
		resolver: resolver,
		users:    users,
		opts:     opts,
		logger:   logger,
	}
}

// Router mounts every route on a chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(chimw.Heartbeat("/ping"))
	r.Use(middleware.LogMiddleware(s.logger))

	origins := s.opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"https://*", "http://*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Route("/user", func(r chi.Router) {
		r.Post("/create", s.CreateUser)
		r.Post("/login", s.Login)
		r.Post("/guest", s.Guest)
	})

	r.Route("/lobby", func(r chi.Router) {
		r.Get("/ws", s.LobbyWS)
		r.Get("/players", s.LobbyPlayers)
		r.Get("/queue", s.LobbyQueue)
		r.Get("/stats", s.LobbyStats)
		r.Get("/games", s.LobbyGames)
	})

	r.Route("/games", func(r chi.Router) {
		r.Post("/", s.CreateGame)
		r.Get("/{game_id}", s.GetGame)
		r.Post("/{game_id}/join", s.JoinGame)
	})

	r.Get("/game/{game_id}", s.GameWS)
	return r
}

// originPatterns converts CORS origins into websocket host patterns.
func (s *Server) originPatterns() []string {
	if len(s.opts.AllowedOrigins) == 0 {
		return []string{"*"}
	}
	out := make([]string, 0, len(s.opts.AllowedOrigins))
	for _, o := range s.opts.AllowedOrigins {
		out = append(out, hostOf(o))
	}
	return out
}
