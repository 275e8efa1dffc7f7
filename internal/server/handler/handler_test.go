package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"xrpredict/internal/domain"
	"xrpredict/internal/market"
	"xrpredict/internal/service"
)

type fakeVotes struct {
	submit func(service.VoteRequest) (domain.VoteReceipt, error)
	record func(domain.OptionID, domain.Drops, string, string) (domain.VoteReceipt, error)
}

func (f *fakeVotes) SubmitVote(ctx context.Context, req service.VoteRequest) (domain.VoteReceipt, error) {
	return f.submit(req)
}

func (f *fakeVotes) RecordVerifiedVote(ctx context.Context, option domain.OptionID, amount domain.Drops, sender, hash string) (domain.VoteReceipt, error) {
	return f.record(option, amount, sender, hash)
}

type fakeResolver struct {
	resolve func(domain.OptionID, string) (domain.ResolutionResult, domain.Market, error)
}

func (f *fakeResolver) Resolve(ctx context.Context, outcome domain.OptionID, adminSecret string) (domain.ResolutionResult, domain.Market, error) {
	return f.resolve(outcome, adminSecret)
}

func testLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestGetPrediction(t *testing.T) {
	m := market.New("Will it rain?", time.Hour, "rYes", "rNo", time.Now().UTC())
	state := market.NewState(m, nil, testLogger())
	h := NewPredictionHandler(state)

	rec := httptest.NewRecorder()
	h.GetPrediction(rec, httptest.NewRequest(http.MethodGet, "/api/prediction", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["question"] != "Will it rain?" {
		t.Errorf("question = %v", body["question"])
	}
	opts, ok := body["options"].([]any)
	if !ok || len(opts) != 2 {
		t.Fatalf("options = %v", body["options"])
	}
	if opts[0].(map[string]any)["id"] != "yes" {
		t.Errorf("first option = %v", opts[0])
	}
}

func TestGetPredictionUnconfigured(t *testing.T) {
	h := NewPredictionHandler(nil)

	rec := httptest.NewRecorder()
	h.GetPrediction(rec, httptest.NewRequest(http.MethodGet, "/api/prediction", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if body := decodeBody(t, rec); body["success"] != false {
		t.Errorf("body = %v", body)
	}
}

func TestProcessVote(t *testing.T) {
	var got service.VoteRequest
	votes := &fakeVotes{
		submit: func(req service.VoteRequest) (domain.VoteReceipt, error) {
			got = req
			return domain.VoteReceipt{
				TransactionHash: "ABCDEF",
				Option:          req.Option,
				Amount:          req.Amount,
				SenderAddress:   req.SenderAddress,
				TotalVotes:      3,
				TotalAmount:     60 * domain.DropsPerXRP,
			}, nil
		},
	}
	h := NewVoteHandler(votes, testLogger())

	payload := `{"optionId":"yes","amount":25.5,"senderAddress":"rVoterA","walletSecret":"sSeed"}`
	rec := httptest.NewRecorder()
	h.ProcessVote(rec, httptest.NewRequest(http.MethodPost, "/api/process-vote", strings.NewReader(payload)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["success"] != true || body["transactionHash"] != "ABCDEF" {
		t.Errorf("body = %v", body)
	}
	if got.Option != domain.OptionYes || got.Amount != 25_500_000 || got.WalletSecret != "sSeed" {
		t.Errorf("request passed to service = %+v", got)
	}

	vote, ok := body["vote"].(map[string]any)
	if !ok || vote["totalVotes"] != float64(3) {
		t.Errorf("vote = %v", body["vote"])
	}
}

func TestProcessVoteErrors(t *testing.T) {
	tests := []struct {
		name       string
		payload    string
		serviceErr error
		wantStatus int
	}{
		{
			name:       "malformed body",
			payload:    `{"optionId":`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "non-numeric amount",
			payload:    `{"optionId":"yes","amount":"lots","senderAddress":"rA","walletSecret":"s"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "negative amount",
			payload:    `{"optionId":"yes","amount":-3,"senderAddress":"rA","walletSecret":"s"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "invalid option",
			payload:    `{"optionId":"maybe","amount":10,"senderAddress":"rA","walletSecret":"s"}`,
			serviceErr: domain.ErrInvalidOption,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "transfer failed",
			payload:    `{"optionId":"yes","amount":10,"senderAddress":"rA","walletSecret":"s"}`,
			serviceErr: &domain.TransferError{Code: "tecUNFUNDED_PAYMENT"},
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "vote during settlement",
			payload:    `{"optionId":"yes","amount":10,"senderAddress":"rA","walletSecret":"s"}`,
			serviceErr: domain.ErrResolutionInProgress,
			wantStatus: http.StatusConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			votes := &fakeVotes{
				submit: func(service.VoteRequest) (domain.VoteReceipt, error) {
					return domain.VoteReceipt{}, tt.serviceErr
				},
			}
			h := NewVoteHandler(votes, testLogger())

			rec := httptest.NewRecorder()
			h.ProcessVote(rec, httptest.NewRequest(http.MethodPost, "/api/process-vote", strings.NewReader(tt.payload)))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if body := decodeBody(t, rec); body["success"] != false || body["error"] == "" {
				t.Errorf("body = %v", body)
			}
		})
	}
}

func TestRecordVote(t *testing.T) {
	votes := &fakeVotes{
		record: func(option domain.OptionID, amount domain.Drops, sender, hash string) (domain.VoteReceipt, error) {
			if hash == "DUP" {
				return domain.VoteReceipt{}, domain.ErrDuplicateTransfer
			}
			return domain.VoteReceipt{TransactionHash: hash, Option: option, Amount: amount, SenderAddress: sender, TotalVotes: 1, TotalAmount: amount}, nil
		},
	}
	h := NewVoteHandler(votes, testLogger())

	rec := httptest.NewRecorder()
	h.RecordVote(rec, httptest.NewRequest(http.MethodPost, "/api/vote",
		strings.NewReader(`{"optionId":"no","amount":"7","senderAddress":"rB","transactionHash":"XYZ"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.RecordVote(rec, httptest.NewRequest(http.MethodPost, "/api/vote",
		strings.NewReader(`{"optionId":"no","amount":"7","senderAddress":"rB","transactionHash":"DUP"}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("duplicate status = %d, want 400", rec.Code)
	}
}

func TestResolve(t *testing.T) {
	resolver := &fakeResolver{
		resolve: func(outcome domain.OptionID, token string) (domain.ResolutionResult, domain.Market, error) {
			if token != "admin-token" {
				return domain.ResolutionResult{}, domain.Market{}, domain.ErrUnauthorized
			}
			if outcome != domain.OptionYes {
				return domain.ResolutionResult{}, domain.Market{}, domain.ErrInvalidOutcome
			}
			return domain.ResolutionResult{
				ResolutionID:    "res-1",
				WinningOption:   outcome,
				TotalPool:       300 * domain.DropsPerXRP,
				TotalPayout:     270 * domain.DropsPerXRP,
				WinnerCount:     2,
				RewardPerWinner: 135 * domain.DropsPerXRP,
				SuccessCount:    2,
			}, domain.Market{ID: "prediction", Resolved: true, Status: domain.MarketStatusResolved}, nil
		},
	}
	h := NewResolveHandler(resolver, testLogger())

	t.Run("authorized", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/resolve", strings.NewReader(`{"outcome":"yes"}`))
		req.Header.Set("Authorization", "Bearer admin-token")
		rec := httptest.NewRecorder()
		h.Resolve(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}
		body := decodeBody(t, rec)
		res, ok := body["resolution"].(map[string]any)
		if !ok || res["rewardPerWinner"] != float64(135) {
			t.Errorf("resolution = %v", body["resolution"])
		}
	})

	t.Run("missing token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.Resolve(rec, httptest.NewRequest(http.MethodPost, "/api/resolve", strings.NewReader(`{"outcome":"yes"}`)))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("invalid outcome", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/resolve", strings.NewReader(`{"outcome":"maybe"}`))
		req.Header.Set("Authorization", "Bearer admin-token")
		rec := httptest.NewRecorder()
		h.Resolve(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
	})
}
