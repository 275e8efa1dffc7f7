package handler

import (
	"net/http"

	"xrpredict/internal/domain"
)

// MarketSnapshotter provides a consistent read of the current market.
type MarketSnapshotter interface {
	Snapshot() domain.Market
}

// PredictionHandler serves the market snapshot endpoint.
type PredictionHandler struct {
	state MarketSnapshotter
}

// NewPredictionHandler creates a PredictionHandler reading from the given
// state handle.
func NewPredictionHandler(state MarketSnapshotter) *PredictionHandler {
	return &PredictionHandler{state: state}
}

// GetPrediction returns the current market snapshot.
// GET /api/prediction
func (h *PredictionHandler) GetPrediction(w http.ResponseWriter, r *http.Request) {
	if h.state == nil {
		writeError(w, http.StatusNotFound, "no prediction market configured", "")
		return
	}

	snap := h.state.Snapshot()
	if snap.ID == "" {
		writeError(w, http.StatusNotFound, "no prediction market configured", "")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
