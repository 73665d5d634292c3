package server

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/ronpik/area-calc-sub000/internal/auth"
	"github.com/ronpik/area-calc-sub000/internal/blob"
	"github.com/ronpik/area-calc-sub000/internal/config"
	"github.com/ronpik/area-calc-sub000/internal/session"
	"github.com/ronpik/area-calc-sub000/internal/stream"
)

type Server struct {
	App      *fiber.App
	Cfg      config.Config
	DB       *pgxpool.Pool
	Redis    *redis.Client
	Stream   *stream.Hub
	Sessions *session.Store
}

func NewServer(cfg config.Config, db *pgxpool.Pool, redisClient *redis.Client) *Server {
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	hub := stream.NewHub(redisClient)

	var blobs blob.Store
	if redisClient != nil {
		blobs = blob.NewRedisStore(redisClient)
	}

	s := &Server{
		App:      app,
		Cfg:      cfg,
		DB:       db,
		Redis:    redisClient,
		Stream:   hub,
		Sessions: session.NewStore(blobs, hub),
	}

	registerRoutes(s)
	return s
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)

	auth.RegisterRoutes(s.App.Group("/auth"), auth.NewService(s.Cfg.JWTSecret, s.DB))
	session.RegisterRoutes(s.App.Group("/sessions"), s.Sessions, jwtMiddleware)
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream, jwtMiddleware)
}
