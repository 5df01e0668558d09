package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/crucial707/hci-inventory/internal/auth"
	"github.com/crucial707/hci-inventory/internal/config"
	"github.com/crucial707/hci-inventory/internal/handlers"
	"github.com/crucial707/hci-inventory/internal/middleware"
	"github.com/crucial707/hci-inventory/internal/repo"
	"github.com/crucial707/hci-inventory/internal/storage"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// newRouter wires repos, handlers and middleware onto a chi router. The database and
// image store are owned by the caller.
func newRouter(db *sql.DB, cfg config.Config, images storage.ImageStore) http.Handler {
	users := repo.NewUserRepo(db)
	products := repo.NewProductRepo(db)
	tokens := auth.NewTokenIssuer([]byte(cfg.JWTSecret), cfg.JWTTTL)

	authHandler := &handlers.AuthHandler{
		Users:  users,
		Hasher: auth.NewPasswordHasher(cfg.BcryptCost),
		Tokens: tokens,
	}
	productHandler := &handlers.ProductHandler{Repo: products, Images: images}
	imageHandler := &handlers.ImageHandler{Images: images}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Observe)
	r.Use(middleware.SecurityHeaders(cfg.TLSCertFile != ""))
	r.Use(middleware.CORS(cfg.CORSAllowedOrigins))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			slog.Warn("readiness check failed", "err", err)
			handlers.JSONError(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	limiter := middleware.AuthRateLimiter()
	r.Group(func(r chi.Router) {
		r.Use(limiter.Middleware)
		r.Use(middleware.MaxBytes(64 << 10))
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
	})

	r.With(middleware.RequireAuth(tokens)).Get("/profile", authHandler.Profile)

	r.Route("/products", func(r chi.Router) {
		r.Use(middleware.MaxBytes(cfg.MaxUploadBytes))
		r.Get("/", productHandler.ListProducts)
		r.Post("/", productHandler.CreateProduct)
		r.Get("/{id}", productHandler.GetProduct)
		r.Put("/{id}", productHandler.UpdateProduct)
		r.Delete("/{id}", productHandler.DeleteProduct)
	})

	r.Get("/uploads/{name}", imageHandler.ServeImage)

	return r
}
