package services

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"

	"stablebatch/config"
	"stablebatch/internal/metrics"
	"stablebatch/internal/options"
	"stablebatch/internal/store"
	"stablebatch/internal/uploads"

	"github.com/charmbracelet/log"
	json "github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Api struct {
	server         *fiber.App
	batch          *Batch
	reconciler     *Reconciler
	classifier     *Classifier
	pending        *store.PendingQueue
	metrics        *metrics.Metrics
	port           string
	allowedOrigins string
}

func NewApi(config config.ApiConfig, batch *Batch, reconciler *Reconciler, classifier *Classifier, pending *store.PendingQueue, m *metrics.Metrics) *Api {
	if config.AllowedOrigins == "" {
		config.AllowedOrigins = "*"
	}

	a := &Api{
		server: fiber.New(fiber.Config{
			DisableStartupMessage: true,
			JSONEncoder:           json.Marshal,
			JSONDecoder:           json.Unmarshal,
		}),
		batch:          batch,
		reconciler:     reconciler,
		classifier:     classifier,
		pending:        pending,
		metrics:        m,
		port:           config.Port,
		allowedOrigins: config.AllowedOrigins,
	}

	allowCredentials := a.allowedOrigins != "*"

	a.server.Use(cors.New(cors.Config{
		AllowOrigins:     a.allowedOrigins,
		AllowCredentials: allowCredentials,
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Content-Type,Authorization,Accept,Origin",
	}))
	a.server.Use(RequestLogger(m))

	a.addRoutes()
	return a
}

func (a *Api) Start() error {
	log.Info("control api listening", "port", a.port)
	return a.server.Listen(fmt.Sprint(":", a.port))
}

func (a *Api) Shutdown() error {
	return a.server.Shutdown()
}

func (a *Api) addRoutes() {
	a.server.Add("GET", "/health", a.Health())
	a.server.Add("GET", "/pending", a.Pending())
	a.server.Add("POST", "/batches", a.RunBatch())
	a.server.Add("POST", "/fetch", a.Fetch())
	a.server.Add("POST", "/sync", a.Sync())
	a.server.Add("GET", "/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(a.metrics.Registry, promhttp.HandlerOpts{})))
}

// statusFor maps pipeline errors to HTTP codes: operator input problems are
// 4xx, upstream failures 502.
func statusFor(err error) int {
	var urlErr *url.Error
	switch {
	case errors.Is(err, fs.ErrNotExist),
		errors.Is(err, uploads.ErrFileNotFound),
		errors.Is(err, uploads.ErrCountMismatch),
		errors.Is(err, options.ErrNoCall),
		errors.Is(err, options.ErrNotMapping),
		errors.Is(err, ErrMissingTemplate):
		return fiber.StatusUnprocessableEntity
	case errors.As(err, &urlErr):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}
