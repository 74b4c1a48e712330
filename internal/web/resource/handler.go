package resource

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/restforge/restforge/internal/engine/descriptor"
	"github.com/restforge/restforge/internal/engine/hooks"
	"github.com/restforge/restforge/internal/engine/orchestrator"
	"github.com/restforge/restforge/internal/engine/scopes"
	"github.com/restforge/restforge/internal/storage"
	"github.com/restforge/restforge/internal/web/middleware"
)

// defaultPageSize caps list responses when no limit is supplied.
const defaultPageSize = 50

// ActorFunc extracts the acting principal from an incoming request. The
// value is handed to hooks untouched; nil means anonymous.
type ActorFunc func(r *http.Request) interface{}

// Handler exposes every registered entity as a REST resource. Routes are
// derived from the entity's storage table, so a Post entity stored in the
// posts table is served under /posts.
type Handler struct {
	orch     *orchestrator.Orchestrator
	registry *descriptor.Registry
	actor    ActorFunc
	logger   *zap.Logger
}

// NewHandler creates a resource handler over the given orchestrator
func NewHandler(orch *orchestrator.Orchestrator, registry *descriptor.Registry, actor ActorFunc, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{orch: orch, registry: registry, actor: actor, logger: logger}
}

// Routes builds the router for all registered entities
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogger(h.logger))

	for _, d := range h.registry.All() {
		h.mount(r, d)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "the requested resource was not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed for this resource")
	})

	return r
}

func (h *Handler) mount(r chi.Router, d *descriptor.EntityDescriptor) {
	r.Route("/"+d.Storage.Table, func(r chi.Router) {
		r.Get("/", h.list(d))
		r.Post("/", h.create(d))
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.show(d))
			r.Put("/", h.replace(d))
			r.Patch("/", h.patch(d))
			r.Delete("/", h.remove(d))
		})
	})
}

func (h *Handler) requestContext(r *http.Request, d *descriptor.EntityDescriptor) *hooks.Context {
	var actor interface{}
	if h.actor != nil {
		actor = h.actor(r)
	}
	return hooks.NewContext(r.Context(), actor, h.orch.Store(), d.Name)
}

func (h *Handler) list(d *descriptor.EntityDescriptor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := h.requestContext(r, d)

		q, err := h.orch.FetchMany(rctx, d, nil, scopes.ScopeRead)
		if err != nil {
			h.fail(w, d, "list", err)
			return
		}
		q = applyPagination(q, r)

		records, err := h.orch.Store().Select(rctx, q)
		if err != nil {
			h.fail(w, d, "list", err)
			return
		}

		results := make([]map[string]interface{}, 0, len(records))
		for _, rec := range records {
			dumped, err := h.orch.Serialize(rctx, d, descriptor.OpRead, rec)
			if err != nil {
				h.fail(w, d, "list", err)
				return
			}
			results = append(results, dumped)
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"data":  results,
			"count": len(results),
		})
	}
}

func (h *Handler) show(d *descriptor.EntityDescriptor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := h.requestContext(r, d)

		rec, err := h.orch.FetchOne(rctx, d, chi.URLParam(r, "id"), scopes.ScopeDetail)
		if err != nil {
			h.fail(w, d, "show", err)
			return
		}

		dumped, err := h.orch.Serialize(rctx, d, descriptor.OpDetail, rec)
		if err != nil {
			h.fail(w, d, "show", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"data": dumped})
	}
}

func (h *Handler) create(d *descriptor.EntityDescriptor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := h.requestContext(r, d)

		payload, ok := decodeBody(w, r)
		if !ok {
			return
		}

		input, err := h.orch.Contract(d, descriptor.OpCreate)
		if err != nil {
			h.fail(w, d, "create", err)
			return
		}
		validated, err := input.Build(payload)
		if err != nil {
			h.fail(w, d, "create", err)
			return
		}

		output, err := h.orch.Contract(d, descriptor.OpRead)
		if err != nil {
			h.fail(w, d, "create", err)
			return
		}
		dumped, err := h.orch.Create(rctx, d, validated, output)
		if err != nil {
			h.fail(w, d, "create", err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]interface{}{"data": dumped})
	}
}

func (h *Handler) replace(d *descriptor.EntityDescriptor) http.HandlerFunc {
	return h.update(d, false)
}

func (h *Handler) patch(d *descriptor.EntityDescriptor) http.HandlerFunc {
	return h.update(d, true)
}

func (h *Handler) update(d *descriptor.EntityDescriptor, partial bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := h.requestContext(r, d)

		payload, ok := decodeBody(w, r)
		if !ok {
			return
		}

		input, err := h.orch.Contract(d, descriptor.OpUpdate)
		if err != nil {
			h.fail(w, d, "update", err)
			return
		}

		var validated storage.Record
		if partial {
			validated, err = input.BuildPartial(payload)
		} else {
			validated, err = input.Build(payload)
		}
		if err != nil {
			h.fail(w, d, "update", err)
			return
		}

		output, err := h.orch.Contract(d, descriptor.OpRead)
		if err != nil {
			h.fail(w, d, "update", err)
			return
		}
		dumped, err := h.orch.Update(rctx, d, chi.URLParam(r, "id"), validated, output)
		if err != nil {
			h.fail(w, d, "update", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"data": dumped})
	}
}

func (h *Handler) remove(d *descriptor.EntityDescriptor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := h.requestContext(r, d)

		if err := h.orch.Delete(rctx, d, chi.URLParam(r, "id")); err != nil {
			h.fail(w, d, "delete", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) fail(w http.ResponseWriter, d *descriptor.EntityDescriptor, op string, err error) {
	h.logger.Debug("request failed",
		zap.String("entity", d.Qualified()),
		zap.String("operation", op),
		zap.Error(err))
	writeFailure(w, err)
}

func decodeBody(w http.ResponseWriter, r *http.Request) (map[string]interface{}, bool) {
	var payload map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "request body must be a JSON object")
		return nil, false
	}
	return payload, true
}

func applyPagination(q *storage.Query, r *http.Request) *storage.Query {
	limit := defaultPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	q = q.Limit(limit)

	if raw := r.URL.Query().Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			q = q.Offset(n)
		}
	}
	if order := r.URL.Query().Get("order"); order != "" {
		q = q.OrderBy(order)
	}
	return q
}
