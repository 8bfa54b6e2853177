// Package httpx exposes the REST query surface and the websocket push channel.
package httpx

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/statuspulse/incidentd/internal/repository"
	"github.com/statuspulse/incidentd/internal/service/incidents"
	"github.com/statuspulse/incidentd/internal/ws"
	"github.com/statuspulse/incidentd/pkg/incident"
)

const (
	rateWindowDefault  = time.Minute
	rateWindowRealtime = 30 * time.Second
	rateLimitRead      = 240
	rateLimitWrite     = 60
	rateLimitWebsocket = 30
	healthCheckTimeout = 2 * time.Second

	incidentNotFoundMsg = "Incident not found"
)

// Router wires HTTP endpoints to the incident service and the stream hub.
type Router struct {
	mux      *http.ServeMux
	logger   *slog.Logger
	svc      incidents.Service
	hub      *ws.Hub
	upgrader websocket.Upgrader
	limiter  RateLimiter
	dbHealth func(context.Context) error

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	rateLimitHits      *prometheus.CounterVec
}

// NewRouter assembles routes with dependencies. dbHealth may be nil when the
// store has no external backend to probe.
func NewRouter(logger *slog.Logger, svc incidents.Service, hub *ws.Hub, limiter RateLimiter, dbHealth func(context.Context) error) *Router {
	r := &Router{
		mux:    http.NewServeMux(),
		logger: logger,
		svc:    svc,
		hub:    hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:  limiter,
		dbHealth: dbHealth,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("/health", r.audit(r.handleHealth))
	r.mux.Handle("/metrics", promhttp.Handler())
	r.mux.HandleFunc("/incidents", r.audit(r.handleIncidents))
	r.mux.HandleFunc("/incidents/", r.audit(r.handleIncidentSubroutes))
	r.mux.HandleFunc("/ws", r.audit(r.withRateLimit("/ws", rateLimitWebsocket, rateWindowRealtime, r.handleStream)))
}

func (r *Router) handleIncidents(w http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodGet:
		r.withRateLimit("/incidents", rateLimitRead, rateWindowDefault, r.handleQuery)(w, req)
	case http.MethodPost:
		r.withRateLimit("/incidents", rateLimitWrite, rateWindowDefault, r.handleCreate)(w, req)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleIncidentSubroutes(w http.ResponseWriter, req *http.Request) {
	trimmed := strings.TrimPrefix(req.URL.Path, "/incidents/")
	parts := strings.Split(trimmed, "/")
	if len(parts) == 0 || parts[0] == "" {
		r.notFound(w)
		return
	}
	id := parts[0]
	switch {
	case len(parts) == 1:
		r.handleIncidentByID(w, req, id)
	case len(parts) == 2 && parts[1] == "resolve":
		if req.Method != http.MethodPatch {
			r.methodNotAllowed(w)
			return
		}
		r.withRateLimit("/incidents/{id}/resolve", rateLimitWrite, rateWindowDefault, func(w http.ResponseWriter, req *http.Request) {
			r.handleResolve(w, req, id)
		})(w, req)
	default:
		r.notFound(w)
	}
}

func (r *Router) handleIncidentByID(w http.ResponseWriter, req *http.Request, id string) {
	switch req.Method {
	case http.MethodGet:
		r.withRateLimit("/incidents/{id}", rateLimitRead, rateWindowDefault, func(w http.ResponseWriter, req *http.Request) {
			inc, err := r.svc.Get(req.Context(), id)
			if err != nil {
				r.writeStoreError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, inc)
		})(w, req)
	case http.MethodPatch:
		r.withRateLimit("/incidents/{id}", rateLimitWrite, rateWindowDefault, func(w http.ResponseWriter, req *http.Request) {
			var patch incident.Patch
			if err := json.NewDecoder(req.Body).Decode(&patch); err != nil && !errors.Is(err, io.EOF) {
				writeError(w, http.StatusBadRequest, "invalid JSON body")
				return
			}
			if err := patch.Validate(); err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			inc, err := r.svc.Update(req.Context(), id, patch)
			if err != nil {
				r.writeStoreError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, inc)
		})(w, req)
	case http.MethodDelete:
		r.withRateLimit("/incidents/{id}", rateLimitWrite, rateWindowDefault, func(w http.ResponseWriter, req *http.Request) {
			if err := r.svc.Delete(req.Context(), id); err != nil {
				r.writeStoreError(w, err)
				return
			}
			writeNoContent(w)
		})(w, req)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleQuery(w http.ResponseWriter, req *http.Request) {
	filter, page := parseQuery(req)
	result, err := r.svc.Query(req.Context(), filter, page)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (r *Router) handleCreate(w http.ResponseWriter, req *http.Request) {
	var draft incident.Draft
	if err := json.NewDecoder(req.Body).Decode(&draft); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := draft.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	inc, err := r.svc.Create(req.Context(), draft)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, inc)
}

func (r *Router) handleResolve(w http.ResponseWriter, req *http.Request, id string) {
	inc, err := r.svc.Resolve(req.Context(), id)
	if err != nil {
		r.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

// handleStream upgrades to a websocket, greets the client and registers it
// with the hub for the lifetime of the connection. Inbound frames carry no
// command protocol and are only logged.
func (r *Router) handleStream(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	r.hub.Register(client)
	r.logger.Info("stream client connected", "remote", req.RemoteAddr)

	greeting, err := json.Marshal(incident.NewConnectionEstablished("Connected to incident stream"))
	if err == nil {
		if err := client.Send(greeting); err != nil {
			r.hub.Unregister(client)
			client.Close()
			return
		}
	}
	go func() {
		defer func() {
			r.hub.Unregister(client)
			client.Close()
			r.logger.Info("stream client disconnected", "remote", req.RemoteAddr)
		}()
		for {
			_, frame, err := conn.ReadMessage()
			if err != nil {
				return
			}
			r.logger.Debug("stream frame received", "remote", req.RemoteAddr, "frame", string(frame))
		}
	}()
}

func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	status := "ok"
	code := http.StatusOK
	payload := map[string]any{"status": status}
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			payload["status"] = "degraded"
			payload["error"] = err.Error()
			code = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, payload)
}

func (r *Router) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, incidentNotFoundMsg)
	case errors.Is(err, repository.ErrDuplicateID):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func parseQuery(req *http.Request) (incident.Filter, incident.PageRequest) {
	q := req.URL.Query()
	filter := incident.Filter{
		Severity: valueOrAll(q.Get("severity")),
		Status:   valueOrAll(q.Get("status")),
		Service:  valueOrAll(q.Get("service")),
		Search:   q.Get("search"),
	}
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	return filter, incident.PageRequest{Page: page, Limit: limit}
}

func valueOrAll(v string) string {
	if strings.TrimSpace(v) == "" {
		return incident.FilterAll
	}
	return v
}

func (r *Router) audit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		duration := time.Since(start)
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}

		r.recordRequestMetrics(req.Method, req.URL.Path, status, duration)

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack is required so the websocket upgrade works through the recorder.
func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

func (r *Router) applyRateHeaders(w http.ResponseWriter, limit int, decision rateDecision) {
	if limit <= 0 {
		return
	}
	remaining := limit - decision.count
	if remaining < 0 {
		remaining = 0
	}
	headers := w.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	if !decision.windowEnd.IsZero() {
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(decision.windowEnd.Unix(), 10))
	}
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}
