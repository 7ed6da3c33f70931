package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/okian/siege/internal/adapters/http/ws"
	"github.com/okian/siege/internal/domain/model"
)

// SiegeDependencies defines the siege lifecycle operations.
type SiegeDependencies interface {
	CreateSiege(ctx context.Context, level int, roster []model.Member) (string, error)
	Submit(ctx context.Context, n model.Notification) (duplicate bool, err error)
	Deliver(ctx context.Context, id, name string) error
	Status(id string) (model.Status, error)
	Sieges() []model.Status
	Results(id string) ([]model.RewardRecord, error)
	Record(id, name string) (model.RewardRecord, error)
}

// SiegesHandler handles /sieges requests.
type SiegesHandler struct {
	deps SiegeDependencies
	hub  *ws.Hub
}

// NewSiegesHandler creates a new sieges handler. hub may be nil.
func NewSiegesHandler(deps SiegeDependencies, hub *ws.Hub) *SiegesHandler {
	return &SiegesHandler{deps: deps, hub: hub}
}

type createSiegeRequest struct {
	Level  int            `json:"level"`
	Roster []model.Member `json:"roster"`
}

// normalize trims roster names in place and rejects blank or repeated ones.
func (c *createSiegeRequest) normalize() error {
	if c.Level < 0 {
		return ErrBadRequest
	}
	seen := make(map[string]struct{}, len(c.Roster))
	for i := range c.Roster {
		name := strings.TrimSpace(c.Roster[i].Name)
		c.Roster[i].Name = name
		if name == "" {
			return ErrBadRequest
		}
		if _, dup := seen[name]; dup {
			return ErrBadRequest
		}
		seen[name] = struct{}{}
	}
	return nil
}

type createSiegeResponse struct {
	ID     string         `json:"id"`
	Status statusResponse `json:"status"`
}

// HandleCreate handles POST /sieges.
func (h *SiegesHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_siege"
	var req createSiegeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.normalize(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, err))
		return
	}
	id, err := h.deps.CreateSiege(r.Context(), req.Level, req.Roster)
	if err != nil {
		writeClassified(w, Wrap(op, err))
		return
	}
	st, err := h.deps.Status(id)
	if err != nil {
		writeClassified(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusCreated, createSiegeResponse{ID: id, Status: newStatusResponse(st)})
}

// HandleList handles GET /sieges.
func (h *SiegesHandler) HandleList(w http.ResponseWriter, _ *http.Request) {
	list := h.deps.Sieges()
	out := make([]statusResponse, len(list))
	for i, st := range list {
		out[i] = newStatusResponse(st)
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleStatus handles GET /sieges/{id}.
func (h *SiegesHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.deps.Status(r.PathValue("id"))
	if err != nil {
		writeClassified(w, Wrap("api.get_siege", err))
		return
	}
	writeJSON(w, http.StatusOK, newStatusResponse(st))
}

// HandleNotification handles POST /sieges/{id}/notifications. A repeated
// notification id answers 409 with duplicate set.
func (h *SiegesHandler) HandleNotification(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_notification"
	var n model.Notification
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	n.SiegeID = r.PathValue("id")

	dup, err := h.deps.Submit(r.Context(), n)
	if err != nil {
		writeClassified(w, Wrap(op, err))
		return
	}
	if dup {
		writeJSON(w, http.StatusConflict, ackResponse{Status: "duplicate", Duplicate: true})
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", Duplicate: false})
}

type deliveryRequest struct {
	Name string `json:"name"`
}

type deliveryResponse struct {
	Status string `json:"status"`
	Winner string `json:"winner"`
}

// HandleDelivery handles POST /sieges/{id}/deliveries, the delivery point
// trigger. Rejections answer 409 with the refusal code.
func (h *SiegesHandler) HandleDelivery(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_delivery"
	var req deliveryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	if err := h.deps.Deliver(r.Context(), r.PathValue("id"), req.Name); err != nil {
		writeClassified(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, deliveryResponse{Status: "won", Winner: req.Name})
}

// HandleResults handles GET /sieges/{id}/results.
func (h *SiegesHandler) HandleResults(w http.ResponseWriter, r *http.Request) {
	recs, err := h.deps.Results(r.PathValue("id"))
	if err != nil {
		writeClassified(w, Wrap("api.get_results", err))
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

// HandleResult handles GET /sieges/{id}/results/{name}.
func (h *SiegesHandler) HandleResult(w http.ResponseWriter, r *http.Request) {
	rec, err := h.deps.Record(r.PathValue("id"), r.PathValue("name"))
	if err != nil {
		writeClassified(w, Wrap("api.get_result", err))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// HandleWebsocket handles GET /sieges/{id}/ws?name=N and streams the
// messages addressed to N.
func (h *SiegesHandler) HandleWebsocket(w http.ResponseWriter, r *http.Request) {
	const op = "api.websocket"
	if h.hub == nil {
		writeClassified(w, NewKind(op, ErrWebsocketUnavailable))
		return
	}
	id, name := r.PathValue("id"), r.URL.Query().Get("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	if _, err := h.deps.Status(id); err != nil {
		writeClassified(w, Wrap(op, err))
		return
	}
	h.hub.Serve(w, r, id, name)
}
