package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PerkOS-xyz/UniPerk/internal/application"
	"github.com/PerkOS-xyz/UniPerk/internal/domain"
	"github.com/PerkOS-xyz/UniPerk/internal/observability"
	"github.com/PerkOS-xyz/UniPerk/internal/policy"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

const maxBodyBytes = 64 << 10

type Handler struct {
	service *application.GatewayService
	log     zerolog.Logger
	metrics *observability.Metrics
}

func NewRouter(service *application.GatewayService, log zerolog.Logger, metrics *observability.Metrics) http.Handler {
	h := &Handler{service: service, log: observability.Component(log, "http"), metrics: metrics}
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(requestID)
	r.Use(h.accessLog)
	r.Use(cors)

	r.Get("/lookup/{sender}/{data}", h.handleLookup)
	r.Get("/subdomain", h.handleSubdomain)
	r.Get("/subdomains", h.handleSubdomains)
	r.Get("/names/{name}", h.handleName)
	r.Post("/register", h.handleRegister)
	r.Patch("/permissions", h.handlePermissions)
	r.Put("/permissions", h.handlePermissions)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "Not found", http.StatusNotFound)
	})

	return r
}

// handleLookup serves both /lookup/{sender}/{data} and the .json variant
// some CCIP-Read clients append.
func (h *Handler) handleLookup(w http.ResponseWriter, r *http.Request) {
	sender := chi.URLParam(r, "sender")
	data := strings.TrimSuffix(chi.URLParam(r, "data"), ".json")

	res, err := h.service.Resolve(r.Context(), sender, data)
	if err != nil {
		status, msg := h.classify(r, err)
		writeJSON(w, status, map[string]any{"message": msg})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": res.Payload})
}

func (h *Handler) handleSubdomain(w http.ResponseWriter, r *http.Request) {
	name, err := h.service.SubdomainByAddress(r.Context(), r.URL.Query().Get("address"))
	if err != nil {
		status, msg := h.classify(r, err)
		if errors.Is(err, domain.ErrMalformedRequest) {
			msg = "Missing or invalid address"
		}
		writeJSON(w, status, map[string]any{"error": msg})
		return
	}
	var subdomain *string
	if name != "" {
		subdomain = &name
	}
	writeJSON(w, http.StatusOK, map[string]any{"subdomain": subdomain})
}

type nameSummaryResponse struct {
	Name  string `json:"name"`
	Owner string `json:"owner"`
}

func (h *Handler) handleSubdomains(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	res, err := h.service.ListSubdomains(r.Context(), limit, offset)
	if err != nil {
		status, msg := h.classify(r, err)
		writeJSON(w, status, map[string]any{"error": msg})
		return
	}
	names := make([]nameSummaryResponse, 0, len(res.Names))
	for _, n := range res.Names {
		names = append(names, nameSummaryResponse{Name: n.Name, Owner: n.Owner})
	}
	writeJSON(w, http.StatusOK, map[string]any{"names": names, "limit": res.Limit, "offset": res.Offset})
}

type nameResponse struct {
	Name        string            `json:"name"`
	Owner       string            `json:"owner"`
	Texts       map[string]string `json:"texts"`
	Addresses   map[string]string `json:"addresses"`
	Contenthash string            `json:"contenthash"`
	Policy      policy.Policy     `json:"policy"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

func (h *Handler) handleName(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.GetName(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		status, msg := h.classify(r, err)
		writeJSON(w, status, map[string]any{"error": msg})
		return
	}
	writeJSON(w, http.StatusOK, nameResponse{
		Name:        rec.Name,
		Owner:       rec.Owner,
		Texts:       rec.Texts,
		Addresses:   rec.Addresses,
		Contenthash: hexutil.Encode(rec.Contenthash),
		Policy:      policy.Parse(rec.Texts),
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	})
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req application.RegisterInput
	if err := decodeBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "invalid payload"})
		return
	}

	res, err := h.service.Register(r.Context(), req)
	if err != nil {
		status, msg := h.classify(r, err)
		writeJSON(w, status, map[string]any{"success": false, "error": msg})
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]any{"success": true, "name": res.Name})
}

func (h *Handler) handlePermissions(w http.ResponseWriter, r *http.Request) {
	var req application.UpdatePermissionsInput
	if err := decodeBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "invalid payload"})
		return
	}

	if err := h.service.UpdatePermissions(r.Context(), req); err != nil {
		status, msg := h.classify(r, err)
		writeJSON(w, status, map[string]any{"success": false, "error": msg})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// classify maps a service error onto a status code and client message.
// Store failures are logged here and reported without detail.
func (h *Handler) classify(r *http.Request, err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidSignature):
		return http.StatusUnauthorized, "Invalid signature"
	case errors.Is(err, domain.ErrNameTaken):
		return http.StatusConflict, "Name already taken"
	case errors.Is(err, domain.ErrNotOwnerOrNotFound):
		return http.StatusForbidden, "Not owner or name not found"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "Name not found"
	case errors.Is(err, domain.ErrMalformedRequest),
		errors.Is(err, domain.ErrUnsupportedQuery),
		errors.Is(err, domain.ErrNotOwnedDomain),
		errors.Is(err, domain.ErrInvalidLabel),
		errors.Is(err, domain.ErrMessageMismatch),
		errors.Is(err, domain.ErrNoFieldsToUpdate):
		return http.StatusBadRequest, err.Error()
	default:
		h.log.Error().Err(err).Str("request_id", requestIDFrom(r.Context())).Str("path", r.URL.Path).Msg("request failed")
		return http.StatusInternalServerError, "Internal error"
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
