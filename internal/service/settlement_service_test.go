package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"xrpredict/internal/domain"
)

const adminToken = "super-secret-admin-token"

func newSettlementService(t *testing.T, deps ...func(*SettlementService)) (*SettlementService, *fakeGateway, *fakeSettlements) {
	t.Helper()

	gw := &fakeGateway{balance: 1_000_000 * domain.DropsPerXRP}
	settlements := newFakeSettlements()
	state := newTestState(t)
	mustRecord(t, state, domain.OptionYes, "rVoterA", 100, "tx-a")
	mustRecord(t, state, domain.OptionYes, "rVoterB", 50, "tx-b")
	mustRecord(t, state, domain.OptionNo, "rVoterC", 150, "tx-c")

	svc := NewSettlementService(state, &fakeDialer{gw: gw}, settlements, nil, nil, &fakeAudit{}, SettlementConfig{
		AdminSecret:   adminToken,
		WalletAddress: treasuryAddr,
		WalletSecret:  "sTreasurySeed",
		PayoutDelay:   time.Millisecond,
	}, testLogger())

	for _, d := range deps {
		d(svc)
	}
	return svc, gw, settlements
}

func TestResolvePaysEveryWinner(t *testing.T) {
	svc, gw, settlements := newSettlementService(t)

	result, final, err := svc.Resolve(context.Background(), domain.OptionYes, adminToken)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if got, want := result.TotalPool, domain.Drops(300)*domain.DropsPerXRP; got != want {
		t.Errorf("total pool = %s, want %s", got, want)
	}
	if got, want := result.TotalPayout, domain.Drops(270)*domain.DropsPerXRP; got != want {
		t.Errorf("total payout = %s, want %s", got, want)
	}
	if result.WinnerCount != 2 {
		t.Errorf("winner count = %d, want 2", result.WinnerCount)
	}
	if got, want := result.RewardPerWinner, domain.Drops(135)*domain.DropsPerXRP; got != want {
		t.Errorf("reward per winner = %s, want %s", got, want)
	}
	if result.SuccessCount != 2 || result.FailedCount != 0 {
		t.Errorf("counts = %d/%d, want 2/0", result.SuccessCount, result.FailedCount)
	}
	if len(result.FailedTransactions) != 0 {
		t.Errorf("failed transactions = %d, want 0", len(result.FailedTransactions))
	}

	// Winners are paid in voter-ledger order.
	if len(gw.submits) != 2 {
		t.Fatalf("submitted transfers = %d, want 2", len(gw.submits))
	}
	for i, dest := range []string{"rVoterA", "rVoterB"} {
		p := gw.submits[i]
		if p.Destination != dest {
			t.Errorf("transfer %d destination = %s, want %s", i, p.Destination, dest)
		}
		if p.Amount != result.RewardPerWinner {
			t.Errorf("transfer %d amount = %s, want %s", i, p.Amount, result.RewardPerWinner)
		}
		if p.Account != treasuryAddr {
			t.Errorf("transfer %d account = %s, want %s", i, p.Account, treasuryAddr)
		}
	}
	if !gw.closed {
		t.Error("gateway not closed after resolution")
	}

	if !final.Resolved || final.Status != domain.MarketStatusResolved || final.WinningOption != domain.OptionYes {
		t.Errorf("market not marked resolved: %+v", final)
	}
	if final.Resolution == nil {
		t.Fatal("market resolution missing")
	}
	if opt := final.Option(domain.OptionYes); opt.TotalDistributed != domain.Drops(270)*domain.DropsPerXRP {
		t.Errorf("total distributed = %s, want 270", opt.TotalDistributed)
	}

	if !settlements.resolved[result.ResolutionID] {
		t.Error("resolution row not marked settled")
	}
	for _, voter := range []string{"rVoterA", "rVoterB"} {
		rec, err := settlements.GetPayout(context.Background(), result.ResolutionID, voter)
		if err != nil {
			t.Fatalf("payout record for %s: %v", voter, err)
		}
		if rec.Status != domain.PayoutStatusCompleted || rec.TxHash == "" {
			t.Errorf("payout record for %s = %+v, want completed with hash", voter, rec)
		}
	}
}

func TestResolveTwiceFailsAlreadyResolved(t *testing.T) {
	svc, _, _ := newSettlementService(t)

	first, _, err := svc.Resolve(context.Background(), domain.OptionYes, adminToken)
	if err != nil {
		t.Fatalf("first resolve: %v", err)
	}

	if _, _, err := svc.Resolve(context.Background(), domain.OptionYes, adminToken); !errors.Is(err, domain.ErrAlreadyResolved) {
		t.Fatalf("second resolve error = %v, want ErrAlreadyResolved", err)
	}

	// First resolution result is untouched.
	snap := svc.state.Snapshot()
	if snap.Resolution == nil || snap.Resolution.ResolutionID != first.ResolutionID {
		t.Errorf("resolution changed after rejected retry: %+v", snap.Resolution)
	}
}

func TestResolveUnauthorized(t *testing.T) {
	svc, gw, _ := newSettlementService(t)

	if _, _, err := svc.Resolve(context.Background(), domain.OptionYes, "wrong-token"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("error = %v, want ErrUnauthorized", err)
	}
	if gw.calls != 0 {
		t.Errorf("gateway called %d times on unauthorized resolve", gw.calls)
	}
}

func TestResolveInvalidOutcome(t *testing.T) {
	svc, _, _ := newSettlementService(t)

	if _, _, err := svc.Resolve(context.Background(), "maybe", adminToken); !errors.Is(err, domain.ErrInvalidOutcome) {
		t.Fatalf("error = %v, want ErrInvalidOutcome", err)
	}

	// The market stays active and the critical section is released.
	if svc.state.Snapshot().Status != domain.MarketStatusActive {
		t.Error("market left active state after precondition failure")
	}
	mustRecord(t, svc.state, domain.OptionYes, "rVoterD", 5, "tx-d")
}

func TestResolveNoWinners(t *testing.T) {
	gw := &fakeGateway{balance: 1_000_000 * domain.DropsPerXRP}
	state := newTestState(t)
	mustRecord(t, state, domain.OptionNo, "rVoterC", 150, "tx-c")

	svc := NewSettlementService(state, &fakeDialer{gw: gw}, newFakeSettlements(), nil, nil, nil, SettlementConfig{
		AdminSecret:   adminToken,
		WalletAddress: treasuryAddr,
		WalletSecret:  "sTreasurySeed",
	}, testLogger())

	if _, _, err := svc.Resolve(context.Background(), domain.OptionYes, adminToken); !errors.Is(err, domain.ErrNoWinners) {
		t.Fatalf("error = %v, want ErrNoWinners", err)
	}
	if gw.calls != 0 {
		t.Errorf("gateway called %d times, want 0", gw.calls)
	}
	if state.Snapshot().Status != domain.MarketStatusActive {
		t.Error("market no longer active after NoWinners")
	}
}

func TestResolveInsufficientTreasuryBalance(t *testing.T) {
	svc, gw, _ := newSettlementService(t)
	gw.balance = 100 * domain.DropsPerXRP // payout needs 270

	if _, _, err := svc.Resolve(context.Background(), domain.OptionYes, adminToken); !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("error = %v, want ErrInsufficientBalance", err)
	}
	if len(gw.submits) != 0 {
		t.Errorf("transfers attempted = %d, want 0", len(gw.submits))
	}
	if svc.state.Snapshot().Status != domain.MarketStatusActive {
		t.Error("market no longer active; resolve should be retryable once funded")
	}
}

func TestResolveContinuesAfterPayoutFailure(t *testing.T) {
	svc, gw, settlements := newSettlementService(t)
	gw.scripted = []error{
		&domain.TransferError{Code: "tecUNFUNDED_PAYMENT", Detail: "unfunded"},
		nil,
	}

	result, final, err := svc.Resolve(context.Background(), domain.OptionYes, adminToken)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if result.SuccessCount != 1 || result.FailedCount != 1 {
		t.Fatalf("counts = %d/%d, want 1/1", result.SuccessCount, result.FailedCount)
	}
	if result.SuccessCount+result.FailedCount != result.WinnerCount {
		t.Errorf("success+failed = %d, want winner count %d",
			result.SuccessCount+result.FailedCount, result.WinnerCount)
	}
	if len(result.FailedTransactions) != 1 || result.FailedTransactions[0].Voter != "rVoterA" {
		t.Fatalf("failed transactions = %+v, want one for rVoterA", result.FailedTransactions)
	}
	if len(result.Rewards) != 2 {
		t.Fatalf("rewards = %d, want 2", len(result.Rewards))
	}
	if result.Rewards[0].Status != domain.RewardStatusFailed || result.Rewards[1].Status != domain.RewardStatusCompleted {
		t.Errorf("reward statuses = %s/%s", result.Rewards[0].Status, result.Rewards[1].Status)
	}

	// One failed payout does not stop the batch or the resolution.
	if !final.Resolved {
		t.Error("market not resolved after partial failure")
	}
	if opt := final.Option(domain.OptionYes); opt.TotalDistributed != domain.Drops(135)*domain.DropsPerXRP {
		t.Errorf("total distributed = %s, want 135", opt.TotalDistributed)
	}

	rec, err := settlements.GetPayout(context.Background(), result.ResolutionID, "rVoterA")
	if err != nil {
		t.Fatalf("payout record: %v", err)
	}
	if rec.Status != domain.PayoutStatusFailed || rec.Error == "" {
		t.Errorf("payout record = %+v, want failed with error", rec)
	}
}

func TestResolveSkipsAlreadyCompletedPayouts(t *testing.T) {
	svc, gw, settlements := newSettlementService(t)

	// Simulate a crashed earlier attempt that already paid voter A.
	id, err := settlements.OpenResolution(context.Background(), "prediction")
	if err != nil {
		t.Fatalf("open resolution: %v", err)
	}
	if err := settlements.PutPayout(context.Background(), domain.PayoutRecord{
		ResolutionID: id,
		Voter:        "rVoterA",
		Amount:       domain.Drops(135) * domain.DropsPerXRP,
		Status:       domain.PayoutStatusCompleted,
		TxHash:       "HASH-PRIOR",
	}); err != nil {
		t.Fatalf("seed payout: %v", err)
	}

	result, _, err := svc.Resolve(context.Background(), domain.OptionYes, adminToken)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if len(gw.submits) != 1 || gw.submits[0].Destination != "rVoterB" {
		t.Fatalf("submits = %+v, want one transfer to rVoterB", gw.submits)
	}
	if result.SuccessCount != 2 {
		t.Errorf("success count = %d, want 2 (one reused, one fresh)", result.SuccessCount)
	}
	if result.Rewards[0].TxHash != "HASH-PRIOR" {
		t.Errorf("reused reward hash = %s, want HASH-PRIOR", result.Rewards[0].TxHash)
	}
}

func TestResolveRewardNeverExceedsPayout(t *testing.T) {
	// Floor division in drops over awkward pool sizes.
	for _, pool := range []domain.Drops{1, 10, 100_000_001, 333_333_335} {
		payout := pool * payoutNumerator / payoutDenominator
		for _, winners := range []int{1, 2, 3, 7} {
			per := payout / domain.Drops(winners)
			if per*domain.Drops(winners) > payout {
				t.Errorf("pool %d winners %d: per*count %d exceeds payout %d", pool, winners, per*domain.Drops(winners), payout)
			}
			if payout > pool {
				t.Errorf("pool %d: payout %d exceeds pool", pool, payout)
			}
		}
	}
}
