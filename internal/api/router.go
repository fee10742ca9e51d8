package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/isdelr/chirper-be/internal/api/handlers"
	mw "github.com/isdelr/chirper-be/internal/api/middleware"
	"github.com/isdelr/chirper-be/internal/api/respond"
	"github.com/isdelr/chirper-be/internal/apperror"
	"github.com/isdelr/chirper-be/internal/auth"
	"github.com/isdelr/chirper-be/internal/config"
	"github.com/isdelr/chirper-be/internal/media"
	"github.com/isdelr/chirper-be/internal/metrics"
	"github.com/isdelr/chirper-be/internal/services"
	"github.com/isdelr/chirper-be/internal/store"
	"github.com/isdelr/chirper-be/internal/websocket"
)

// Dependencies are the collaborators the router wires into handlers.
type Dependencies struct {
	Config      *config.Config
	Store       store.Store
	Tokens      *auth.TokenManager
	Users       services.UserServiceProvider
	Tweets      services.TweetServiceProvider
	Events      services.EventServiceProvider
	Media       *media.Library
	Hub         *websocket.Hub
	Metrics     *metrics.Metrics
	AuthLimiter *mw.RateLimiter
}

// NewRouter creates and configures a new Chi router.
func NewRouter(deps Dependencies) *chi.Mux {
	r := chi.NewRouter()

	// Basic middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(mw.Metrics(deps.Metrics))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respond.Error(w, r, apperror.NewNotFound("Not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respond.JSON(w, http.StatusMethodNotAllowed, apperror.ErrorResponse{Error: "Method not allowed"})
	})

	// Initialize handlers
	userHandler := handlers.NewUserHandler(deps.Users, deps.Tokens.TTL(), deps.Config.IsProduction(), deps.Media.MaxBytes())
	tweetHandler := handlers.NewTweetHandler(deps.Tweets, deps.Media.MaxBytes())
	eventHandler := handlers.NewEventHandler(deps.Events)
	wsHandler := handlers.NewWebSocketHandler(deps.Hub, deps.Metrics, deps.Config.CORSOrigins)
	mediaHandler := handlers.NewMediaHandler(deps.Media)
	healthHandler := handlers.NewHealthHandler(deps.Store)

	requireAuth := auth.JWTMiddleware(deps.Tokens, deps.Store)

	r.Get(media.PathPrefix+"{name}", mediaHandler.Serve)
	r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", healthHandler.Check)

		r.Route("/auth", func(r chi.Router) {
			r.Use(deps.AuthLimiter.Handler)
			r.Post("/register", userHandler.Register)
			r.Post("/login", userHandler.Login)
			r.With(requireAuth).Get("/me", userHandler.Me)
		})

		r.Route("/user/{id}", func(r chi.Router) {
			r.Get("/", userHandler.Get)

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Put("/", userHandler.Update)
				r.Post("/follow", userHandler.Follow)
				r.Post("/unfollow", userHandler.Unfollow)
				r.Post("/uploadProfilePic", userHandler.UploadProfilePicture)
				r.Get("/tweets", tweetHandler.ListByUser)
				r.Get("/followers", userHandler.Followers)
				r.Get("/following", userHandler.Following)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)

			r.Route("/tweet", func(r chi.Router) {
				r.Get("/", tweetHandler.List)
				r.Post("/", tweetHandler.Create)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", tweetHandler.Get)
					r.Delete("/", tweetHandler.Delete)
					r.Post("/like", tweetHandler.Like)
					r.Post("/dislike", tweetHandler.Dislike)
					r.Post("/retweet", tweetHandler.Retweet)
					r.Post("/reply", tweetHandler.Reply)
				})
			})

			r.Get("/events", eventHandler.GetRecent)
			r.Get("/feed/ws", wsHandler.Serve)
		})
	})

	return r
}
