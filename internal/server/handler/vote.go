package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"xrpredict/internal/domain"
	"xrpredict/internal/service"
)

// VoteSubmitter is the vote intake contract the handler depends on.
type VoteSubmitter interface {
	SubmitVote(ctx context.Context, req service.VoteRequest) (domain.VoteReceipt, error)
	RecordVerifiedVote(ctx context.Context, option domain.OptionID, amount domain.Drops, sender, hash string) (domain.VoteReceipt, error)
}

// VoteHandler serves the two vote endpoints: the full transfer-driving
// path and the legacy pre-verified path.
type VoteHandler struct {
	votes  VoteSubmitter
	logger *slog.Logger
}

// NewVoteHandler creates a VoteHandler.
func NewVoteHandler(votes VoteSubmitter, logger *slog.Logger) *VoteHandler {
	return &VoteHandler{
		votes:  votes,
		logger: logger.With(slog.String("handler", "vote")),
	}
}

type processVoteRequest struct {
	OptionID           string      `json:"optionId"`
	Amount             json.Number `json:"amount"`
	SenderAddress      string      `json:"senderAddress"`
	WalletSecret       string      `json:"walletSecret"`
	DestinationAddress string      `json:"destinationAddress"`
	DestinationTag     *uint32     `json:"destinationTag"`
}

// ProcessVote drives a real transfer from the voter to the option's
// collection address and records the stake once confirmed.
// POST /api/process-vote
func (h *VoteHandler) ProcessVote(w http.ResponseWriter, r *http.Request) {
	var req processVoteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	receipt, err := h.votes.SubmitVote(r.Context(), service.VoteRequest{
		Option:             domain.OptionID(req.OptionID),
		Amount:             amount,
		SenderAddress:      req.SenderAddress,
		WalletSecret:       req.WalletSecret,
		DestinationAddress: req.DestinationAddress,
		DestinationTag:     req.DestinationTag,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"transactionHash": receipt.TransactionHash,
		"vote":            receipt,
	})
}

type recordVoteRequest struct {
	OptionID        string      `json:"optionId"`
	Amount          json.Number `json:"amount"`
	SenderAddress   string      `json:"senderAddress"`
	TransactionHash string      `json:"transactionHash"`
}

// RecordVote records a stake whose transfer was confirmed out of band.
// POST /api/vote
func (h *VoteHandler) RecordVote(w http.ResponseWriter, r *http.Request) {
	var req recordVoteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	receipt, err := h.votes.RecordVerifiedVote(r.Context(), domain.OptionID(req.OptionID), amount, req.SenderAddress, req.TransactionHash)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"vote":    receipt,
	})
}
