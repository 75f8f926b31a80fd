package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"greeks-dashboard/internal/cache"
	"greeks-dashboard/internal/dashboard"
	"greeks-dashboard/internal/errors"
	"greeks-dashboard/internal/export"
	"greeks-dashboard/internal/logging"
	"greeks-dashboard/internal/resilience"
	"greeks-dashboard/internal/security"
	"greeks-dashboard/pkg/utils"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = streamPongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The dashboard is served from another origin in development.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type handler struct {
	deps Deps
	opts Options
}

// request binds the series query. When ok is false the error answer has
// already been written and err is the result of writing it.
func (h *handler) request(c echo.Context) (sr *SeriesRequest, req dashboard.Request, ok bool, err error) {
	sr, ferrs := bindSeriesRequest(c, h.opts.Dashboard)
	if ferrs != nil {
		_ = h.deps.Audit.LogInputValidation(c.Request().Context(), ferrs[0].Field, c.QueryString(), ferrs[0].Message)
		return nil, req, false, badRequest(c, ferrs)
	}
	req, err = sr.toDashboard(h.deps.Now(), ownerOf(c))
	if err != nil {
		return nil, req, false, errorResponse(c, err)
	}
	return sr, req, true, nil
}

// Series answers GET /api/series with the derived series as JSON.
func (h *handler) Series(c echo.Context) error {
	_, req, ok, err := h.request(c)
	if !ok {
		return err
	}
	ctx := c.Request().Context()
	key := "series:" + req.Topic()

	if h.deps.Cache != nil {
		var body []byte
		err := h.deps.Cache.Get(ctx, key, &body)
		h.deps.Metrics.RecordCacheLookup("response", err == nil)
		if err == nil {
			c.Response().Header().Set("X-Cache", "HIT")
			return c.JSONBlob(http.StatusOK, body)
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			logger := logging.FromContext(ctx)
			logger.Warn().Err(err).Msg("Response cache read failed")
		}
	}

	series, err := h.deps.Loader.Load(ctx, req)
	if err != nil {
		return errorResponse(c, err)
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(APIResponse{Status: http.StatusOK, Message: http.StatusText(http.StatusOK), Data: series}); err != nil {
		return errorResponse(c, err)
	}
	body := buf.Bytes()

	if h.deps.Cache != nil {
		ttl := h.opts.ClosedTTL
		if utils.IsLiveSession(req.Query.Date, h.deps.Now()) {
			ttl = h.opts.LiveTTL
		}
		if ttl > 0 {
			if err := h.deps.Cache.Set(ctx, key, body, ttl); err != nil {
				logger := logging.FromContext(ctx)
				logger.Warn().Err(err).Msg("Response cache write failed")
			}
		}
	}
	c.Response().Header().Set("X-Cache", "MISS")
	return c.JSONBlob(http.StatusOK, body)
}

// ExportCSV answers GET /api/series/export.csv with a CSV attachment.
func (h *handler) ExportCSV(c echo.Context) error {
	sr, req, ok, err := h.request(c)
	if !ok {
		return err
	}
	ctx := c.Request().Context()

	series, err := h.deps.Loader.Load(ctx, req)
	if err != nil {
		return errorResponse(c, err)
	}

	var buf bytes.Buffer
	rows, err := export.WriteCSV(&buf, series, sr.exportOptions())
	if err != nil {
		return errorResponse(c, err)
	}

	filename := export.Filename(series)
	_ = h.deps.Audit.LogExport(ctx, filename, rows)
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return c.Blob(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

// Stream upgrades GET /api/series/stream to a websocket and pushes every
// snapshot of the requested series until the client goes away.
func (h *handler) Stream(c echo.Context) error {
	_, req, ok, err := h.request(c)
	if !ok {
		return err
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return nil
	}
	defer conn.Close()

	ctx := c.Request().Context()
	logger := logging.FromContext(ctx)
	h.deps.Metrics.StreamConnections(1)
	defer h.deps.Metrics.StreamConnections(-1)

	sub, release := h.deps.Streams.Subscribe(ctx, req)
	defer release()

	// Reader: handles pongs and notices the client closing.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(streamPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(streamPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return nil
		case <-ctx.Done():
			return nil
		case snap, ok := <-sub.C:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
					time.Now().Add(streamWriteWait))
				return nil
			}
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(snap); err != nil {
				logger.Debug().Err(err).Msg("Stream write failed")
				return nil
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return nil
			}
		}
	}
}

// Expiries answers GET /api/expiries?index=.
func (h *handler) Expiries(c echo.Context) error {
	index := c.QueryParam("index")
	if index == "" {
		index = h.opts.Dashboard.Index
	}
	idx, err := security.ValidateIndex(index)
	if err != nil {
		return badRequest(c, []FieldError{{Code: "ERR_ONEOF", Field: "index", Message: err.Error()}})
	}
	expiries, err := h.deps.Expiries.ListExpiries(c.Request().Context(), idx)
	if err != nil {
		return errorResponse(c, err)
	}
	return dataResponse(c, http.StatusOK, expiries)
}

// Health answers GET /healthz. Unhealthy dependencies give 503.
func (h *handler) Health(c echo.Context) error {
	if h.deps.Health == nil {
		return c.JSON(http.StatusOK, map[string]string{"status": string(resilience.HealthStatusHealthy)})
	}
	health := h.deps.Health.Check(c.Request().Context())
	status := http.StatusOK
	if health.Status == resilience.HealthStatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, health)
}
