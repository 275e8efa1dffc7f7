package handler

import (
	"context"
	"log/slog"
	"net/http"

	"xrpredict/internal/domain"
)

// Resolver is the settlement engine contract the handler depends on.
type Resolver interface {
	Resolve(ctx context.Context, outcome domain.OptionID, adminSecret string) (domain.ResolutionResult, domain.Market, error)
}

// ResolveHandler serves the admin-only resolution endpoint.
type ResolveHandler struct {
	settlement Resolver
	logger     *slog.Logger
}

// NewResolveHandler creates a ResolveHandler.
func NewResolveHandler(settlement Resolver, logger *slog.Logger) *ResolveHandler {
	return &ResolveHandler{
		settlement: settlement,
		logger:     logger.With(slog.String("handler", "resolve")),
	}
}

type resolveRequest struct {
	Outcome string `json:"outcome"`
}

// Resolve settles the market on the requested outcome and pays out the
// winners. The admin bearer token authorizes the call.
// POST /api/resolve
func (h *ResolveHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	result, final, err := h.settlement.Resolve(r.Context(), domain.OptionID(req.Outcome), bearerToken(r))
	if err != nil {
		h.logger.WarnContext(r.Context(), "resolution rejected",
			slog.String("outcome", req.Outcome),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"resolution": result,
		"prediction": final,
	})
}
