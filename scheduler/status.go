package scheduler

import (
	"context"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/wmde/qsbot/queue"
)

// StatusGateway is the subset of *queue.Gateway the status server needs.
type StatusGateway interface {
	GetBatch(ctx context.Context, batchID int64) (*queue.Batch, error)
	ListCommands(ctx context.Context, batchID int64) ([]queue.Command, error)
	FinishBatch(ctx context.Context, batchID int64, status queue.BatchStatus) error
}

// StatusServer is the operator-facing view into the scheduler: a small
// echo-based HTTP surface for inspecting and stopping batches, plus a
// websocket feed of batch lifecycle events.
type StatusServer struct {
	gateway  StatusGateway
	upgrader websocket.Upgrader

	mu      sync.Mutex
	sockets map[*websocket.Conn]struct{}
}

// NewStatusServer builds a status server backed by gateway.
func NewStatusServer(gateway StatusGateway) *StatusServer {
	return &StatusServer{
		gateway: gateway,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// operator tooling is same-origin or behind an authenticating
			// proxy; nothing here needs cross-origin websocket access.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		sockets: make(map[*websocket.Conn]struct{}),
	}
}

// RegisterRoutes adds the status endpoints to an echo group.
func (s *StatusServer) RegisterRoutes(g *echo.Group) {
	g.GET("/batches/:id", s.handleGetBatch)
	g.GET("/batches/:id/commands", s.handleListCommands)
	g.POST("/batches/:id/stop", s.handleStopBatch)
	g.GET("/ws", s.handleWebsocket)
}

func (s *StatusServer) handleGetBatch(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid batch id"})
	}
	batch, err := s.gateway.GetBatch(c.Request().Context(), id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if batch == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "batch not found"})
	}
	return c.JSON(http.StatusOK, batch)
}

func (s *StatusServer) handleListCommands(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid batch id"})
	}
	cmds, err := s.gateway.ListCommands(c.Request().Context(), id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, cmds)
}

// handleStopBatch implements the operator STOP control: the scheduler
// itself only reads this status at command boundaries via
// Gateway.BatchStillRunnable, so setting it here is enough to halt the
// batch without the status server needing a handle on the running
// executor.
func (s *StatusServer) handleStopBatch(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid batch id"})
	}
	if err := s.gateway.FinishBatch(c.Request().Context(), id, queue.BatchStopped); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.NoContent(http.StatusAccepted)
}

func (s *StatusServer) handleWebsocket(c echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.sockets[conn] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.sockets, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	// The feed is push-only; the client has nothing to send us. Reading
	// here just detects disconnects so we stop tracking the socket.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return nil
		}
	}
}

// Broadcast sends a batch lifecycle event to every connected websocket
// client, dropping any socket that errors (it will already have been
// removed from the tracked set by its own read loop shortly after).
func (s *StatusServer) Broadcast(event queue.BatchEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.sockets {
		if err := conn.WriteJSON(event); err != nil {
			conn.Close()
			delete(s.sockets, conn)
		}
	}
}

// PublishBatchEvent satisfies queue.EventPublisher, so a StatusServer can
// be handed to a Scheduler directly, or combined with a RabbitMQNotifier
// via FanoutPublisher when both a websocket feed and an external queue
// need the same events.
func (s *StatusServer) PublishBatchEvent(event queue.BatchEvent) error {
	s.Broadcast(event)
	return nil
}

// Close is a no-op; the status server's websocket connections are closed
// individually as clients disconnect, not all at once.
func (s *StatusServer) Close() error { return nil }

// FanoutPublisher publishes every event to all of its targets, stopping at
// (and returning) the first error.
type FanoutPublisher struct {
	Targets []queue.EventPublisher
}

func (f FanoutPublisher) PublishBatchEvent(event queue.BatchEvent) error {
	for _, t := range f.Targets {
		if err := t.PublishBatchEvent(event); err != nil {
			return err
		}
	}
	return nil
}

func (f FanoutPublisher) Close() error {
	for _, t := range f.Targets {
		if err := t.Close(); err != nil {
			return err
		}
	}
	return nil
}
