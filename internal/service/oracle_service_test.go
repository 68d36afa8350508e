package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/causeway-labs/causeway/internal/domain"
)

func TestOracleParamsValidate(t *testing.T) {
	require.NoError(t, testOracleParams().Validate())

	bad := testOracleParams()
	bad.Identity = "not-an-address"
	assert.Error(t, bad.Validate())

	bad = testOracleParams()
	bad.MinProposalStake = 0
	assert.ErrorIs(t, bad.Validate(), domain.ErrInvalidInput)

	bad = testOracleParams()
	bad.VotingWindow = 0
	assert.ErrorIs(t, bad.Validate(), domain.ErrInvalidInput)
}

func TestOraclePropose(t *testing.T) {
	ctx := context.Background()

	t.Run("locks the bond in the stake vault", func(t *testing.T) {
		w := newWorld(t)
		e := w.oracleEvent(t)
		w.fund(t, addrBob, 50)

		oc, err := w.oracle.Propose(ctx, e.ID, true, addrBob, 10)
		require.NoError(t, err)
		assert.Equal(t, domain.OraclePhaseProposed, oc.Phase)
		assert.True(t, oc.ProposedOutcome)
		assert.Equal(t, domain.Amount(10), oc.StakeTrue)
		assert.Equal(t, domain.Amount(0), oc.StakeFalse)
		assert.Equal(t, w.clock.Now().Add(24*time.Hour), oc.ProposalDeadline)

		assert.Equal(t, domain.Amount(40), w.balance(t, addrBob))
		assert.Equal(t, domain.Amount(10), w.balance(t, domain.VaultStake))
		staked, err := w.oracle.StakeOf(ctx, e.ID, addrBob)
		require.NoError(t, err)
		assert.Equal(t, domain.Amount(10), staked)
	})

	t.Run("rejects stake below the floor without side effects", func(t *testing.T) {
		w := newWorld(t)
		e := w.oracleEvent(t)
		w.fund(t, addrBob, 50)

		_, err := w.oracle.Propose(ctx, e.ID, true, addrBob, 9)
		assert.ErrorIs(t, err, domain.ErrBelowMinimumStake)
		assert.Equal(t, domain.Amount(50), w.balance(t, addrBob))
		_, err = w.oracle.GetCase(ctx, e.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("rejects a second proposal", func(t *testing.T) {
		w := newWorld(t)
		e := w.oracleEvent(t)
		w.fund(t, addrBob, 50)
		w.fund(t, addrCarol, 50)

		_, err := w.oracle.Propose(ctx, e.ID, true, addrBob, 10)
		require.NoError(t, err)
		_, err = w.oracle.Propose(ctx, e.ID, false, addrCarol, 10)
		assert.ErrorIs(t, err, domain.ErrAlreadyProposed)
		assert.Equal(t, domain.Amount(50), w.balance(t, addrCarol))
	})

	t.Run("rejects events not routed through the engine", func(t *testing.T) {
		w := newWorld(t)
		e := w.trustedEvent(t)
		w.fund(t, addrBob, 50)

		_, err := w.oracle.Propose(ctx, e.ID, true, addrBob, 10)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("insufficient funds rolls the case back", func(t *testing.T) {
		w := newWorld(t)
		e := w.oracleEvent(t)
		w.fund(t, addrBob, 5)

		_, err := w.oracle.Propose(ctx, e.ID, true, addrBob, 10)
		assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
		_, err = w.oracle.GetCase(ctx, e.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestOracleDispute(t *testing.T) {
	ctx := context.Background()

	propose := func(t *testing.T, w *world) domain.Event {
		t.Helper()
		e := w.oracleEvent(t)
		w.fund(t, addrBob, 100)
		_, err := w.oracle.Propose(ctx, e.ID, true, addrBob, 10)
		require.NoError(t, err)
		return e
	}

	t.Run("demands exactly double the proposer bond", func(t *testing.T) {
		w := newWorld(t)
		e := propose(t, w)
		w.fund(t, addrCarol, 100)

		_, err := w.oracle.Dispute(ctx, e.ID, false, addrCarol, 19)
		assert.ErrorIs(t, err, domain.ErrStakeTooLow)
		_, err = w.oracle.Dispute(ctx, e.ID, false, addrCarol, 21)
		assert.ErrorIs(t, err, domain.ErrStakeTooLow)

		oc, err := w.oracle.Dispute(ctx, e.ID, false, addrCarol, 20)
		require.NoError(t, err)
		assert.Equal(t, domain.OraclePhaseDisputed, oc.Phase)
		assert.False(t, oc.DisputeOutcome)
		assert.Equal(t, domain.Amount(10), oc.StakeTrue)
		assert.Equal(t, domain.Amount(20), oc.StakeFalse)
		assert.Equal(t, w.clock.Now().Add(48*time.Hour), oc.VotingDeadline)
		assert.Equal(t, domain.Amount(30), w.balance(t, domain.VaultStake))
	})

	t.Run("must assert the opposite outcome", func(t *testing.T) {
		w := newWorld(t)
		e := propose(t, w)
		w.fund(t, addrCarol, 100)

		_, err := w.oracle.Dispute(ctx, e.ID, true, addrCarol, 20)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("closed after the proposal window", func(t *testing.T) {
		w := newWorld(t)
		e := propose(t, w)
		w.fund(t, addrCarol, 100)
		w.clock.Advance(24*time.Hour + time.Minute)

		_, err := w.oracle.Dispute(ctx, e.ID, false, addrCarol, 20)
		assert.ErrorIs(t, err, domain.ErrWindowClosed)
	})

	t.Run("only one dispute per case", func(t *testing.T) {
		w := newWorld(t)
		e := propose(t, w)
		w.fund(t, addrCarol, 100)
		w.fund(t, addrDave, 100)

		_, err := w.oracle.Dispute(ctx, e.ID, false, addrCarol, 20)
		require.NoError(t, err)
		_, err = w.oracle.Dispute(ctx, e.ID, false, addrDave, 20)
		assert.ErrorIs(t, err, domain.ErrWindowClosed)
	})
}

func TestOracleVote(t *testing.T) {
	ctx := context.Background()

	disputed := func(t *testing.T, w *world) domain.Event {
		t.Helper()
		e := w.oracleEvent(t)
		w.fund(t, addrBob, 100)
		w.fund(t, addrCarol, 100)
		_, err := w.oracle.Propose(ctx, e.ID, true, addrBob, 10)
		require.NoError(t, err)
		_, err = w.oracle.Dispute(ctx, e.ID, false, addrCarol, 20)
		require.NoError(t, err)
		return e
	}

	t.Run("tallies stake on the asserted side", func(t *testing.T) {
		w := newWorld(t)
		e := disputed(t, w)
		w.fund(t, addrDave, 100)

		oc, err := w.oracle.Vote(ctx, e.ID, true, addrDave, 15)
		require.NoError(t, err)
		assert.Equal(t, domain.Amount(25), oc.StakeTrue)
		assert.Equal(t, domain.Amount(20), oc.StakeFalse)
		assert.Equal(t, domain.Amount(85), w.balance(t, addrDave))
	})

	t.Run("rejected before any dispute", func(t *testing.T) {
		w := newWorld(t)
		e := w.oracleEvent(t)
		w.fund(t, addrBob, 100)
		w.fund(t, addrDave, 100)
		_, err := w.oracle.Propose(ctx, e.ID, true, addrBob, 10)
		require.NoError(t, err)

		_, err = w.oracle.Vote(ctx, e.ID, false, addrDave, 5)
		assert.ErrorIs(t, err, domain.ErrNotDisputed)
	})

	t.Run("one vote per voter", func(t *testing.T) {
		w := newWorld(t)
		e := disputed(t, w)
		w.fund(t, addrDave, 100)

		_, err := w.oracle.Vote(ctx, e.ID, true, addrDave, 5)
		require.NoError(t, err)
		_, err = w.oracle.Vote(ctx, e.ID, true, addrDave, 5)
		assert.ErrorIs(t, err, domain.ErrDuplicateVoter)
		assert.Equal(t, domain.Amount(95), w.balance(t, addrDave))
	})

	t.Run("bonds already count as votes", func(t *testing.T) {
		w := newWorld(t)
		e := disputed(t, w)

		_, err := w.oracle.Vote(ctx, e.ID, true, addrBob, 5)
		assert.ErrorIs(t, err, domain.ErrDuplicateVoter)
		_, err = w.oracle.Vote(ctx, e.ID, false, addrCarol, 5)
		assert.ErrorIs(t, err, domain.ErrDuplicateVoter)
	})

	t.Run("closed after the voting deadline", func(t *testing.T) {
		w := newWorld(t)
		e := disputed(t, w)
		w.fund(t, addrDave, 100)
		w.clock.Advance(48*time.Hour + time.Minute)

		_, err := w.oracle.Vote(ctx, e.ID, true, addrDave, 5)
		assert.ErrorIs(t, err, domain.ErrVotingClosed)
	})
}

func TestOracleResolve(t *testing.T) {
	ctx := context.Background()

	t.Run("undisputed proposal resolves to the proposed outcome", func(t *testing.T) {
		w := newWorld(t)
		e := w.oracleEvent(t)
		w.fund(t, addrBob, 100)
		_, err := w.oracle.Propose(ctx, e.ID, true, addrBob, 10)
		require.NoError(t, err)

		_, err = w.oracle.Resolve(ctx, e.ID)
		assert.ErrorIs(t, err, domain.ErrWindowOpen)

		w.clock.Advance(24*time.Hour + time.Minute)
		oc, err := w.oracle.Resolve(ctx, e.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.OraclePhaseResolved, oc.Phase)
		assert.True(t, oc.FinalOutcome)
		assert.False(t, oc.Expedited)

		got, err := w.store.Events().Get(ctx, e.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.EventStatusResolved, got.Status)
		assert.True(t, got.Outcome)

		_, err = w.oracle.Resolve(ctx, e.ID)
		assert.ErrorIs(t, err, domain.ErrAlreadyResolved)
	})

	t.Run("disputed case resolves to the heavier side", func(t *testing.T) {
		w := newWorld(t)
		e := w.oracleEvent(t)
		w.fund(t, addrBob, 100)
		w.fund(t, addrCarol, 100)
		w.fund(t, addrDave, 100)
		w.fund(t, addrAlice, 100)

		_, err := w.oracle.Propose(ctx, e.ID, true, addrBob, 10)
		require.NoError(t, err)
		_, err = w.oracle.Dispute(ctx, e.ID, false, addrCarol, 20)
		require.NoError(t, err)
		_, err = w.oracle.Vote(ctx, e.ID, true, addrDave, 15)
		require.NoError(t, err)
		_, err = w.oracle.Vote(ctx, e.ID, true, addrAlice, 10)
		require.NoError(t, err)

		_, err = w.oracle.Resolve(ctx, e.ID)
		assert.ErrorIs(t, err, domain.ErrWindowOpen)

		w.clock.Advance(48*time.Hour + time.Minute)
		oc, err := w.oracle.Resolve(ctx, e.ID)
		require.NoError(t, err)
		assert.True(t, oc.FinalOutcome)
		assert.Equal(t, domain.Amount(35), oc.WinningStake())
		assert.Equal(t, domain.Amount(20), oc.LosingStake())
	})

	t.Run("a tie goes to the disputer", func(t *testing.T) {
		w := newWorld(t)
		e := w.oracleEvent(t)
		w.fund(t, addrBob, 100)
		w.fund(t, addrCarol, 100)
		w.fund(t, addrDave, 100)

		_, err := w.oracle.Propose(ctx, e.ID, true, addrBob, 10)
		require.NoError(t, err)
		_, err = w.oracle.Dispute(ctx, e.ID, false, addrCarol, 20)
		require.NoError(t, err)
		// Brings the proposal side level with the dispute bond: 20 vs 20.
		_, err = w.oracle.Vote(ctx, e.ID, true, addrDave, 10)
		require.NoError(t, err)

		w.clock.Advance(48*time.Hour + time.Minute)
		oc, err := w.oracle.Resolve(ctx, e.ID)
		require.NoError(t, err)
		assert.False(t, oc.FinalOutcome)
	})

	t.Run("unknown case", func(t *testing.T) {
		w := newWorld(t)
		e := w.oracleEvent(t)
		_, err := w.oracle.Resolve(ctx, e.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestOracleResolveExpedited(t *testing.T) {
	ctx := context.Background()

	t.Run("only the event creator may expedite", func(t *testing.T) {
		w := newWorld(t)
		e := w.oracleEvent(t) // created by addrAlice

		_, err := w.oracle.ResolveExpedited(ctx, e.ID, true, addrBob)
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("synthesizes a case when nothing was proposed", func(t *testing.T) {
		w := newWorld(t)
		e := w.oracleEvent(t)

		oc, err := w.oracle.ResolveExpedited(ctx, e.ID, true, addrAlice)
		require.NoError(t, err)
		assert.Equal(t, domain.OraclePhaseResolved, oc.Phase)
		assert.True(t, oc.FinalOutcome)
		assert.True(t, oc.Expedited)

		got, err := w.store.Events().Get(ctx, e.ID)
		require.NoError(t, err)
		assert.True(t, got.Resolved())
	})

	t.Run("overrides a live proposal and keeps claims well-defined", func(t *testing.T) {
		w := newWorld(t)
		e := w.oracleEvent(t)
		w.fund(t, addrBob, 100)
		_, err := w.oracle.Propose(ctx, e.ID, true, addrBob, 10)
		require.NoError(t, err)

		oc, err := w.oracle.ResolveExpedited(ctx, e.ID, true, addrAlice)
		require.NoError(t, err)
		assert.True(t, oc.Expedited)

		// The proposer backed the forced outcome and gets the bond back.
		reward, err := w.oracle.ClaimRewards(ctx, e.ID, addrBob)
		require.NoError(t, err)
		assert.Equal(t, domain.Amount(10), reward)
		assert.Equal(t, domain.Amount(100), w.balance(t, addrBob))
	})

	t.Run("already resolved", func(t *testing.T) {
		w := newWorld(t)
		e := w.oracleEvent(t)
		_, err := w.oracle.ResolveExpedited(ctx, e.ID, true, addrAlice)
		require.NoError(t, err)
		_, err = w.oracle.ResolveExpedited(ctx, e.ID, false, addrAlice)
		assert.ErrorIs(t, err, domain.ErrAlreadyResolved)
	})
}

func TestOracleClaimRewards(t *testing.T) {
	ctx := context.Background()

	// One contested case: Bob proposes true with 10, Carol disputes false
	// with 20, Dave and Alice vote true with 15 and 10. True wins 35 to 20.
	contested := func(t *testing.T, w *world) domain.Event {
		t.Helper()
		e := w.oracleEvent(t)
		w.fund(t, addrBob, 100)
		w.fund(t, addrCarol, 100)
		w.fund(t, addrDave, 100)
		w.fund(t, addrAlice, 100)
		_, err := w.oracle.Propose(ctx, e.ID, true, addrBob, 10)
		require.NoError(t, err)
		_, err = w.oracle.Dispute(ctx, e.ID, false, addrCarol, 20)
		require.NoError(t, err)
		_, err = w.oracle.Vote(ctx, e.ID, true, addrDave, 15)
		require.NoError(t, err)
		_, err = w.oracle.Vote(ctx, e.ID, true, addrAlice, 10)
		require.NoError(t, err)
		w.clock.Advance(48*time.Hour + time.Minute)
		_, err = w.oracle.Resolve(ctx, e.ID)
		require.NoError(t, err)
		return e
	}

	t.Run("winners split the losing stake pro rata", func(t *testing.T) {
		w := newWorld(t)
		e := contested(t, w)

		// stake + stake*losing/winning, integer division.
		reward, err := w.oracle.ClaimRewards(ctx, e.ID, addrBob)
		require.NoError(t, err)
		assert.Equal(t, domain.Amount(10+10*20/35), reward) // 15

		reward, err = w.oracle.ClaimRewards(ctx, e.ID, addrDave)
		require.NoError(t, err)
		assert.Equal(t, domain.Amount(15+15*20/35), reward) // 23

		reward, err = w.oracle.ClaimRewards(ctx, e.ID, addrAlice)
		require.NoError(t, err)
		assert.Equal(t, domain.Amount(10+10*20/35), reward) // 15

		// 55 locked, 53 paid out, rounding dust stays in the vault.
		assert.Equal(t, domain.Amount(2), w.balance(t, domain.VaultStake))
	})

	t.Run("losers forfeit", func(t *testing.T) {
		w := newWorld(t)
		e := contested(t, w)

		_, err := w.oracle.ClaimRewards(ctx, e.ID, addrCarol)
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
		assert.Equal(t, domain.Amount(80), w.balance(t, addrCarol))
	})

	t.Run("claiming twice fails", func(t *testing.T) {
		w := newWorld(t)
		e := contested(t, w)

		_, err := w.oracle.ClaimRewards(ctx, e.ID, addrBob)
		require.NoError(t, err)
		_, err = w.oracle.ClaimRewards(ctx, e.ID, addrBob)
		assert.ErrorIs(t, err, domain.ErrNothingToClaim)
	})

	t.Run("no claims before resolution", func(t *testing.T) {
		w := newWorld(t)
		e := w.oracleEvent(t)
		w.fund(t, addrBob, 100)
		_, err := w.oracle.Propose(ctx, e.ID, true, addrBob, 10)
		require.NoError(t, err)

		_, err = w.oracle.ClaimRewards(ctx, e.ID, addrBob)
		assert.ErrorIs(t, err, domain.ErrEventNotResolved)
	})

	t.Run("winning disputer takes the proposal side's stake", func(t *testing.T) {
		w := newWorld(t)
		e := w.oracleEvent(t)
		w.fund(t, addrBob, 100)
		w.fund(t, addrCarol, 100)
		_, err := w.oracle.Propose(ctx, e.ID, true, addrBob, 10)
		require.NoError(t, err)
		_, err = w.oracle.Dispute(ctx, e.ID, false, addrCarol, 20)
		require.NoError(t, err)
		w.clock.Advance(48*time.Hour + time.Minute)
		_, err = w.oracle.Resolve(ctx, e.ID)
		require.NoError(t, err)

		reward, err := w.oracle.ClaimRewards(ctx, e.ID, addrCarol)
		require.NoError(t, err)
		assert.Equal(t, domain.Amount(30), reward)
		assert.Equal(t, domain.Amount(110), w.balance(t, addrCarol))
		assert.Equal(t, domain.Amount(0), w.balance(t, domain.VaultStake))
	})
}

func TestOracleListDue(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)

	e1 := w.oracleEvent(t)
	e2 := w.oracleEvent(t)
	w.fund(t, addrBob, 100)

	_, err := w.oracle.Propose(ctx, e1.ID, true, addrBob, 10)
	require.NoError(t, err)

	w.clock.Advance(12 * time.Hour)
	_, err = w.oracle.Propose(ctx, e2.ID, false, addrBob, 10)
	require.NoError(t, err)

	due, err := w.oracle.ListDue(ctx, domain.ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, due)

	// Only the first proposal's window has elapsed.
	w.clock.Advance(13 * time.Hour)
	due, err = w.oracle.ListDue(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, e1.ID, due[0].EventID)

	w.clock.Advance(12 * time.Hour)
	due, err = w.oracle.ListDue(ctx, domain.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, due, 2)
}
