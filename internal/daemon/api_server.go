package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/cors"

	"transmute/internal/api"
	"transmute/internal/catalog"
	"transmute/internal/config"
	"transmute/internal/history"
	"transmute/internal/jobs"
	"transmute/internal/logging"
	"transmute/internal/route"
	"transmute/internal/services"
)

const (
	maxRequestBody    = 1 << 20
	eventsKeepAlive   = 15 * time.Second
	eventsBuffer      = 64
	defaultHistoryCap = 100
)

type apiServer struct {
	bind            string
	logger          *slog.Logger
	daemon          *Daemon
	maxIntermediate int
	handler         http.Handler

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:            strings.TrimSpace(cfg.Paths.APIBind),
		logger:          logging.NewComponentLogger(logger, "api-server"),
		daemon:          d,
		maxIntermediate: cfg.Routing.MaxIntermediate,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", srv.handleStatus)
	mux.HandleFunc("GET /api/formats", srv.handleFormats)
	mux.HandleFunc("GET /api/routes", srv.handleRoute)
	mux.HandleFunc("GET /api/routes/all", srv.handleAllRoutes)
	mux.HandleFunc("GET /api/jobs", srv.handleListJobs)
	mux.HandleFunc("POST /api/jobs", srv.handleSubmit)
	mux.HandleFunc("GET /api/jobs/{id}", srv.handleGetJob)
	mux.HandleFunc("POST /api/jobs/{id}/cancel", srv.handleCancel)
	mux.HandleFunc("GET /api/batches", srv.handleListBatches)
	mux.HandleFunc("POST /api/batches", srv.handleStartBatch)
	mux.HandleFunc("GET /api/batches/{id}", srv.handleGetBatch)
	mux.HandleFunc("GET /api/events", srv.handleEvents)
	mux.HandleFunc("GET /api/history", srv.handleHistory)

	var handler http.Handler = requestIDMiddleware(mux)
	handler = authMiddleware(strings.TrimSpace(cfg.Paths.APIToken), handler)
	if len(cfg.Paths.CORSOrigins) > 0 {
		handler = cors.New(cors.Options{
			AllowedOrigins: cfg.Paths.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", requestIDHeader},
			ExposedHeaders: []string{requestIDHeader},
		}).Handler(handler)
	}
	srv.handler = handler
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener
	s.server = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		// Event streams end when the daemon stops.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	server := s.server
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
		s.server = nil
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) address() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.bind
}

func (s *apiServer) manager() *jobs.Manager { return s.daemon.manager }

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.daemon.Status(r.Context()))
}

func (s *apiServer) handleFormats(w http.ResponseWriter, r *http.Request) {
	cat := s.manager().Resolver().Catalog()
	domains := cat.Domains()
	if value := r.URL.Query().Get("domain"); value != "" {
		domain, err := catalog.ParseDomain(value)
		if err != nil {
			s.writeFailure(w, r, services.Wrap(services.ErrValidation, "api", "formats", err.Error(), nil))
			return
		}
		domains = []catalog.Domain{domain}
	}

	resp := api.FormatsResponse{Domains: make([]api.DomainFormats, 0, len(domains))}
	for _, domain := range domains {
		resp.Domains = append(resp.Domains, api.DomainFormats{
			Domain:  domain,
			Formats: cat.Formats(domain),
			Edges:   cat.Edges(domain),
		})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// routeQuery reads domain, from and to. An omitted domain is inferred from
// the format pair.
func (s *apiServer) routeQuery(r *http.Request) (catalog.Domain, catalog.Format, catalog.Format, error) {
	query := r.URL.Query()
	from := catalog.ParseFormat(query.Get("from"))
	to := catalog.ParseFormat(query.Get("to"))
	invalid := func(msg string) error {
		return services.Wrap(services.ErrValidation, "api", "route", msg, nil)
	}
	if from == "" || to == "" {
		return "", "", "", invalid("from and to are required")
	}

	resolver := s.manager().Resolver()
	var domain catalog.Domain
	if value := query.Get("domain"); value != "" {
		parsed, err := catalog.ParseDomain(value)
		if err != nil {
			return "", "", "", invalid(err.Error())
		}
		domain = parsed
	} else {
		inferred, ok := resolver.InferDomain(from, to)
		if !ok {
			return "", "", "", invalid(fmt.Sprintf("no domain knows both %s and %s", from, to))
		}
		domain = inferred
	}
	if err := resolver.Validate(domain, from, to); err != nil {
		return "", "", "", err
	}
	return domain, from, to, nil
}

func (s *apiServer) handleRoute(w http.ResponseWriter, r *http.Request) {
	domain, from, to, err := s.routeQuery(r)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	resolver := s.manager().Resolver()
	found, ok := resolver.FindRoute(domain, from, to)
	if !ok {
		s.writeJSON(w, http.StatusOK, api.RouteResponse{Reachable: resolver.Reachable(domain, from)})
		return
	}
	s.writeJSON(w, http.StatusOK, api.RouteResponse{Found: true, Route: &found})
}

func (s *apiServer) handleAllRoutes(w http.ResponseWriter, r *http.Request) {
	domain, from, to, err := s.routeQuery(r)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	limit := s.maxIntermediate
	if value := r.URL.Query().Get("max_intermediate"); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed < 0 {
			s.writeFailure(w, r, services.Wrap(services.ErrValidation, "api", "routes", "max_intermediate must be a non-negative integer", nil))
			return
		}
		limit = parsed
	}
	routes := s.manager().Resolver().AllRoutesBetween(domain, from, to, limit)
	if routes == nil {
		routes = []route.Route{}
	}
	s.writeJSON(w, http.StatusOK, api.RoutesResponse{Routes: routes})
}

func (s *apiServer) handleListJobs(w http.ResponseWriter, r *http.Request) {
	var filter jobs.Status
	if value := r.URL.Query().Get("status"); value != "" {
		parsed, err := jobs.ParseStatus(value)
		if err != nil {
			s.writeFailure(w, r, services.Wrap(services.ErrValidation, "api", "list jobs", err.Error(), nil))
			return
		}
		filter = parsed
	}
	all := s.manager().List()
	list := make([]jobs.Job, 0, len(all))
	for _, job := range all {
		if filter == "" || job.Status == filter {
			list = append(list, job)
		}
	}
	s.writeJSON(w, http.StatusOK, api.JobListResponse{Jobs: list})
}

func (s *apiServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req jobs.Request
	if !s.decode(w, r, &req) {
		return
	}
	sub, err := s.manager().Submit(r.Context(), req)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	status := http.StatusOK
	if sub.JobID != "" {
		status = http.StatusCreated
		logging.WithContext(r.Context(), s.logger).Info("job submitted via api",
			logging.String(logging.FieldJobID, sub.JobID),
			logging.String("route", sub.Plan.Route.String()),
		)
	}
	s.writeJSON(w, status, sub)
}

func (s *apiServer) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.manager().Get(r.PathValue("id"))
	if !ok {
		s.writeFailure(w, r, services.Wrap(services.ErrNotFound, "api", "get job", "job not found", nil))
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobResponse{Job: job})
}

func (s *apiServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.manager().Get(id); !ok {
		s.writeFailure(w, r, services.Wrap(services.ErrNotFound, "api", "cancel job", "job not found", nil))
		return
	}
	cancelled := s.manager().Cancel(id)
	job, _ := s.manager().Get(id)
	s.writeJSON(w, http.StatusOK, api.CancelResponse{Cancelled: cancelled, Job: job})
}

func (s *apiServer) handleListBatches(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, api.BatchListResponse{Batches: s.manager().Batches()})
}

func (s *apiServer) handleStartBatch(w http.ResponseWriter, r *http.Request) {
	var req jobs.BatchRequest
	if !s.decode(w, r, &req) {
		return
	}
	id, err := s.manager().StartBatch(req)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	logging.WithContext(r.Context(), s.logger).Info("batch submitted via api",
		logging.String(logging.FieldBatchID, id),
		logging.Int("files", len(req.Files)),
	)
	s.writeJSON(w, http.StatusAccepted, api.BatchCreatedResponse{BatchID: id})
}

func (s *apiServer) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	batch, ok := s.manager().Batch(r.PathValue("id"))
	if !ok {
		s.writeFailure(w, r, services.Wrap(services.ErrNotFound, "api", "get batch", "batch not found", nil))
		return
	}
	s.writeJSON(w, http.StatusOK, api.BatchResponse{Batch: batch})
}

// handleEvents streams manager events as server-sent events. The "job"
// query selects one job or batch id; it defaults to every event.
func (s *apiServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming not supported", "")
		return
	}
	target := strings.TrimSpace(r.URL.Query().Get("job"))
	if target == "" {
		target = jobs.AllJobs
	}

	ctx := r.Context()
	events := make(chan jobs.Event, eventsBuffer)
	sub := s.manager().Subscribe(target, func(ev jobs.Event) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	})
	defer s.manager().Unsubscribe(sub)

	// Streams outlive the server write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepAlive := time.NewTicker(eventsKeepAlive)
	defer keepAlive.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-keepAlive.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case ev := <-events:
			data, err := json.Marshal(ev)
			if err != nil {
				s.logger.Warn("failed to encode event", logging.Error(err))
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
			flusher.Flush()
		}
	}
}

func (s *apiServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	store := s.daemon.history
	if store == nil {
		s.writeFailure(w, r, services.Wrap(services.ErrConfiguration, "api", "history", "history store unavailable", nil))
		return
	}
	filter, err := historyFilter(r, time.Now())
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	entries, err := store.List(r.Context(), filter)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	totals, err := store.Stats(r.Context())
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	s.writeJSON(w, http.StatusOK, api.HistoryResponse{Entries: entries, Totals: totals})
}

// historyFilter parses status, batch, since and limit. since accepts an
// RFC 3339 timestamp or a duration relative to now ("24h").
func historyFilter(r *http.Request, now time.Time) (history.Filter, error) {
	query := r.URL.Query()
	invalid := func(msg string) error {
		return services.Wrap(services.ErrValidation, "api", "history", msg, nil)
	}
	filter := history.Filter{BatchID: strings.TrimSpace(query.Get("batch")), Limit: defaultHistoryCap}
	if value := query.Get("status"); value != "" {
		status, err := jobs.ParseStatus(value)
		if err != nil {
			return filter, invalid(err.Error())
		}
		filter.Status = status
	}
	if value := strings.TrimSpace(query.Get("since")); value != "" {
		if ts, err := time.Parse(time.RFC3339, value); err == nil {
			filter.Since = ts
		} else if d, err := time.ParseDuration(value); err == nil && d > 0 {
			filter.Since = now.Add(-d)
		} else {
			return filter, invalid(fmt.Sprintf("invalid since %q", value))
		}
	}
	if value := query.Get("limit"); value != "" {
		limit, err := strconv.Atoi(value)
		if err != nil || limit <= 0 {
			return filter, invalid("limit must be a positive integer")
		}
		filter.Limit = limit
	}
	return filter, nil
}

func (s *apiServer) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		s.writeFailure(w, r, services.Wrap(services.ErrValidation, "api", "decode", "invalid request body", err))
		return false
	}
	return true
}

func statusForKind(kind string) int {
	switch kind {
	case "validation":
		return http.StatusBadRequest
	case "unsupported":
		return http.StatusUnprocessableEntity
	case "not_found":
		return http.StatusNotFound
	case "configuration":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *apiServer) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	kind := services.Kind(err)
	status := statusForKind(kind)
	if status >= http.StatusInternalServerError {
		logging.WithContext(r.Context(), s.logger).Warn("api request failed",
			logging.String("path", r.URL.Path),
			logging.Error(err),
		)
	}
	s.writeError(w, status, services.FailureMessage(err), kind)
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message, kind string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message, Kind: kind})
}
