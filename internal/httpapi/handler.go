// Package httpapi exposes the discovery platform REST API.
package httpapi

import (
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/rpch-net/discovery-platform/internal/cache"
	"github.com/rpch-net/discovery-platform/internal/core"
	clientdomain "github.com/rpch-net/discovery-platform/internal/domain/client"
	"github.com/rpch-net/discovery-platform/internal/domain/node"
	quotadomain "github.com/rpch-net/discovery-platform/internal/domain/quota"
	"github.com/rpch-net/discovery-platform/internal/metrics"
	"github.com/rpch-net/discovery-platform/internal/services/quota"
	"github.com/rpch-net/discovery-platform/internal/services/registry"
	"github.com/rpch-net/discovery-platform/pkg/logger"
)

// Options configures the API handler.
type Options struct {
	Registry  *registry.Service
	Quota     *quota.Service
	Cache     cache.Cache
	CacheTTL  time.Duration
	SecretKey string
	Limiter   *rate.Limiter
	Log       *logger.Logger
}

type handler struct {
	registry *registry.Service
	quota    *quota.Service
	log      *logger.Logger
}

// NewHandler returns a router exposing the discovery REST API.
func NewHandler(opts Options) http.Handler {
	log := opts.Log
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	h := &handler{registry: opts.Registry, quota: opts.Quota, log: log}

	r := mux.NewRouter()
	r.Handle("/healthz", http.HandlerFunc(h.healthz)).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	if opts.Limiter != nil {
		api.Use(rateLimit(opts.Limiter))
	}

	admin := requireSecret(opts.SecretKey)

	listNodes := http.Handler(http.HandlerFunc(h.listNodes))
	if opts.Cache != nil {
		listNodes = cacheResponse(opts.Cache, opts.CacheTTL, listNodes)
	}

	api.Handle("/node/register", admin(http.HandlerFunc(h.registerNode))).Methods(http.MethodPost)
	api.Handle("/node", listNodes).Methods(http.MethodGet)
	api.Handle("/node/{id}", http.HandlerFunc(h.getNode)).Methods(http.MethodGet)
	api.Handle("/node/{id}", admin(http.HandlerFunc(h.deleteNode))).Methods(http.MethodDelete)
	api.Handle("/node/{id}/funding", admin(http.HandlerFunc(h.recordFunding))).Methods(http.MethodPost)
	api.Handle("/node/{id}/funding", http.HandlerFunc(h.fundingHistory)).Methods(http.MethodGet)
	api.Handle("/node/{id}/funding/confirm", admin(http.HandlerFunc(h.confirmFunding))).Methods(http.MethodPost)

	api.Handle("/client", admin(http.HandlerFunc(h.createClient))).Methods(http.MethodPost)
	api.Handle("/client/quota", admin(http.HandlerFunc(h.appendQuota))).Methods(http.MethodPost)
	api.Handle("/client/{id}/balance", http.HandlerFunc(h.clientBalance)).Methods(http.MethodGet)
	api.Handle("/client/{id}", admin(http.HandlerFunc(h.deleteClient))).Methods(http.MethodDelete)
	api.Handle("/request/trial", http.HandlerFunc(h.requestTrial)).Methods(http.MethodGet)

	return metrics.InstrumentHandler("api", r)
}

func (h *handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- nodes ------------------------------------------------------------------

type nodePayload struct {
	ID                string  `json:"id"`
	ChainID           int64   `json:"chain_id"`
	HasExitNode       bool    `json:"has_exit_node"`
	APIEndpoint       string  `json:"hoprd_api_endpoint"`
	APIToken          string  `json:"hoprd_api_token"`
	NativeAddress     string  `json:"native_address"`
	ExitNodePubKey    string  `json:"exit_node_pub_key"`
	HonestyScore      float64 `json:"honesty_score"`
	Status            string  `json:"status,omitempty"`
	TotalAmountFunded string  `json:"total_amount_funded,omitempty"`
	CreatedAt         string  `json:"created_at,omitempty"`
	UpdatedAt         string  `json:"updated_at,omitempty"`
}

func nodeToPayload(n node.RegisteredNode) nodePayload {
	return nodePayload{
		ID:                n.ID,
		ChainID:           n.ChainID,
		HasExitNode:       n.HasExitNode,
		APIEndpoint:       n.APIEndpoint,
		APIToken:          n.APIToken,
		NativeAddress:     n.NativeAddress,
		ExitNodePubKey:    n.ExitNodePubKey,
		HonestyScore:      n.HonestyScore,
		Status:            string(n.Status),
		TotalAmountFunded: n.TotalAmountFunded.String(),
		CreatedAt:         n.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:         n.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func (h *handler) registerNode(w http.ResponseWriter, r *http.Request) {
	var payload nodePayload
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	created, err := h.registry.Register(r.Context(), node.RegisteredNode{
		ID:             payload.ID,
		ChainID:        payload.ChainID,
		HasExitNode:    payload.HasExitNode,
		APIEndpoint:    payload.APIEndpoint,
		APIToken:       payload.APIToken,
		NativeAddress:  payload.NativeAddress,
		ExitNodePubKey: payload.ExitNodePubKey,
		HonestyScore:   payload.HonestyScore,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, nodeToPayload(created))
}

func (h *handler) listNodes(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	nodes, err := h.registry.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	payloads := make([]nodePayload, 0, len(nodes))
	for _, n := range nodes {
		payloads = append(payloads, nodeToPayload(n))
	}
	writeJSON(w, http.StatusOK, payloads)
}

func filterFromQuery(r *http.Request) (node.Filter, error) {
	var filter node.Filter
	q := r.URL.Query()

	if raw := q.Get("hasExitNode"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return node.Filter{}, core.NewValidationError("hasExitNode", "must be true or false")
		}
		filter.HasExitNode = &v
	}
	if raw := q.Get("status"); raw != "" {
		status := node.Status(raw)
		if !status.Valid() {
			return node.Filter{}, core.NewValidationError("status", "unknown status")
		}
		filter.Status = &status
	}
	if ids, ok := q["excludeList"]; ok {
		filter.ExcludeIDs = ids
	}
	return filter, nil
}

func (h *handler) getNode(w http.ResponseWriter, r *http.Request) {
	n, err := h.registry.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nodeToPayload(n))
}

func (h *handler) deleteNode(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- funding ----------------------------------------------------------------

func (h *handler) recordFunding(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		RequestID string `json:"request_id"`
		Amount    string `json:"amount"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := parseAmount("amount", payload.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	req, err := h.registry.RecordFunding(r.Context(), mux.Vars(r)["id"], payload.RequestID, amount)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":                 req.ID,
		"registered_node_id": req.RegisteredNodeID,
		"request_id":         req.RequestID,
		"amount":             req.Amount.String(),
		"created_at":         req.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
}

func (h *handler) confirmFunding(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Amount string `json:"amount"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := parseAmount("amount", payload.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	n, err := h.registry.ConfirmFunding(r.Context(), mux.Vars(r)["id"], amount)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nodeToPayload(n))
}

func (h *handler) fundingHistory(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.registry.FundingHistory(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}

	out := make([]map[string]interface{}, 0, len(reqs))
	for _, req := range reqs {
		out = append(out, map[string]interface{}{
			"id":                 req.ID,
			"registered_node_id": req.RegisteredNodeID,
			"request_id":         req.RequestID,
			"amount":             req.Amount.String(),
			"created_at":         req.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// --- clients and quotas -----------------------------------------------------

func (h *handler) createClient(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ID      string   `json:"id"`
		Payment string   `json:"payment"`
		Labels  []string `json:"labels"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	created, err := h.quota.CreateClient(r.Context(), clientdomain.Client{
		ID:      payload.ID,
		Payment: payload.Payment,
		Labels:  payload.Labels,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *handler) deleteClient(w http.ResponseWriter, r *http.Request) {
	if err := h.quota.DeleteClient(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) appendQuota(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ClientID string `json:"client_id"`
		PaidBy   string `json:"paid_by"`
		Quota    string `json:"quota"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := parseAmount("quota", payload.Quota)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	entry, err := h.quota.Append(r.Context(), quotadomain.Entry{
		ClientID: payload.ClientID,
		PaidBy:   payload.PaidBy,
		Quota:    amount,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":           entry.ID,
		"client_id":    entry.ClientID,
		"paid_by":      entry.PaidBy,
		"action_taker": entry.ActionTaker,
		"quota":        entry.Quota.String(),
		"created_at":   entry.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
}

func (h *handler) clientBalance(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	balance, err := h.quota.BalanceOf(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := map[string]interface{}{"client_id": id, "balance": balance.String()}
	if raw := r.URL.Query().Get("min"); raw != "" {
		required, err := parseAmount("min", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		granted, err := h.quota.HasQuota(r.Context(), id, required)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		resp["has_quota"] = granted
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) requestTrial(w http.ResponseWriter, r *http.Request) {
	labels := r.URL.Query()["label"]
	created, err := h.quota.CreateTrialClient(r.Context(), labels)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"client": created.ID,
		"labels": created.Labels,
	})
}

// --- helpers ----------------------------------------------------------------

func parseAmount(field, raw string) (*big.Int, error) {
	if raw == "" {
		return nil, core.RequiredError(field)
	}
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, core.NewValidationError(field, "must be a base-10 integer")
	}
	return v, nil
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

// writeServiceError maps domain errors to HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case core.IsNotFound(err):
		writeError(w, http.StatusNotFound, err)
	case core.IsConflict(err):
		writeError(w, http.StatusConflict, err)
	case core.IsValidationError(err):
		writeError(w, http.StatusBadRequest, err)
	case core.IsIndeterminate(err):
		writeError(w, http.StatusServiceUnavailable, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}
