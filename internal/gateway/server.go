// Package gateway exposes the session and cursor layer over HTTP, so
// single-threaded out-of-process callers can hold handles between
// requests. Handles live in uuid-keyed registries until the caller
// releases them or the gateway shuts down.
package gateway

import (
	"context"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/nikmy/mongoflow/internal/registry"
	"github.com/nikmy/mongoflow/pkg/errors"
	"github.com/nikmy/mongoflow/pkg/logger"
	"github.com/nikmy/mongoflow/pkg/mongoflow"
)

// cursorHandle is what the cursor registry stores. Both plain and
// session-bound cursors satisfy it.
type cursorHandle interface {
	Next(ctx context.Context) (bson.Raw, error)
	NextBatch(ctx context.Context, n int) ([]bson.Raw, error)
	Collect(ctx context.Context) ([]bson.Raw, error)
	Close(ctx context.Context) error
}

func NewServer(cfg Config, client *mongoflow.Client, log logger.Logger) Server {
	serveLog := log.With("gateway_http_server")

	s := &server{
		client:   client,
		sessions: registry.New[*mongoflow.Session]("sessions", log),
		cursors:  registry.New[cursorHandle]("cursors", log),
		metrics:  prometheus.NewRegistry(),
		addr:     cfg.HTTP.Addr,
		log:      serveLog,
	}

	s.metrics.MustRegister(s.sessions, s.cursors)

	fiberCfg := fiber.Config{
		ReadTimeout:             cfg.HTTP.ReadTimeout,
		WriteTimeout:            cfg.HTTP.WriteTimeout,
		IdleTimeout:             cfg.HTTP.IdleTimeout,
		DisableStartupMessage:   true,
		EnableTrustedProxyCheck: true,
		ProxyHeader:             cfg.Proxy.Header,
		TrustedProxies:          cfg.Proxy.Trusted,
		RequestMethods:          []string{fiber.MethodGet, fiber.MethodHead, fiber.MethodPost, fiber.MethodDelete},
	}

	fiberCfg.ErrorHandler = func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
		}

		status := statusOf(err)
		if status >= http.StatusInternalServerError {
			serveLog.Warn(errors.WrapFail(err, "handle http request"))
		}
		return c.Status(status).JSON(fiber.Map{
			"error": err.Error(),
			"kind":  mongoflow.KindOf(err).String(),
		})
	}

	s.http = fiber.New(fiberCfg)
	s.setupRoutes()

	return s
}

type server struct {
	client   *mongoflow.Client
	sessions *registry.Registry[*mongoflow.Session]
	cursors  *registry.Registry[cursorHandle]
	metrics  *prometheus.Registry

	http *fiber.App
	addr string
	log  logger.Logger
}

func (s *server) Serve(ctx context.Context) error {
	errCh := make(chan error)
	go func() { errCh <- s.http.Listen(s.addr) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return errors.Error("serve context done")
	}
}

// Shutdown stops accepting requests first, so in-flight handlers still
// see a connected client, then releases the leftover handles.
func (s *server) Shutdown(ctx context.Context) error {
	var errs []error

	if err := s.http.ShutdownWithContext(ctx); err != nil {
		errs = append(errs, errors.WrapFail(err, "shutdown http server"))
	}

	for _, cur := range s.cursors.Drain() {
		if err := cur.Close(ctx); err != nil {
			errs = append(errs, errors.WrapFail(err, "close cursor"))
		}
	}
	for _, sess := range s.sessions.Drain() {
		sess.EndSession(ctx)
	}

	if err := s.client.Shutdown(ctx); err != nil {
		errs = append(errs, errors.WrapFail(err, "shutdown client"))
	}

	return errors.Join(errs...)
}

func (s *server) setupRoutes() {
	s.http.Get("/health", s.handleHealth)
	s.http.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(s.metrics, promhttp.HandlerOpts{})))

	s.http.Post("/sessions", s.handleStartSession)
	s.http.Delete("/sessions/:id", s.handleEndSession)
	s.http.Post("/sessions/:id/transaction/start", s.handleStartTransaction)
	s.http.Post("/sessions/:id/transaction/commit", s.handleCommitTransaction)
	s.http.Post("/sessions/:id/transaction/abort", s.handleAbortTransaction)

	coll := s.http.Group("/collections/:db/:coll")
	coll.Post("/find", s.handleFind)
	coll.Post("/find-one", s.handleFindOne)
	coll.Post("/insert-one", s.handleInsertOne)
	coll.Post("/insert-many", s.handleInsertMany)
	coll.Post("/update-one", s.handleUpdate(false))
	coll.Post("/update-many", s.handleUpdate(true))
	coll.Post("/delete-one", s.handleDelete(false))
	coll.Post("/delete-many", s.handleDelete(true))
	coll.Post("/count", s.handleCount)
	coll.Post("/distinct", s.handleDistinct)
	coll.Post("/aggregate", s.handleAggregate)

	s.http.Post("/cursors/:id/next", s.handleCursorNext)
	s.http.Post("/cursors/:id/next-batch", s.handleCursorNextBatch)
	s.http.Post("/cursors/:id/collect", s.handleCursorCollect)
	s.http.Delete("/cursors/:id", s.handleCursorClose)
}

func statusOf(err error) int {
	switch mongoflow.KindOf(err) {
	case mongoflow.KindDuplicateKey, mongoflow.KindTransaction:
		return http.StatusConflict
	case mongoflow.KindInvalidArgument, mongoflow.KindBSONEncode, mongoflow.KindBSONDecode:
		return http.StatusBadRequest
	case mongoflow.KindServerSelection, mongoflow.KindConnection:
		return http.StatusServiceUnavailable
	case mongoflow.KindGridFSNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
