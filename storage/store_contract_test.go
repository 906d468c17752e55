package storage_test

import (
	"context"
	"testing"
	"time"

	"couple-games/models"
	"couple-games/storage"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func levelEvery100(total int64) (int, int64) {
	level := int(total/100) + 1
	return level, int64(level)*100 - total
}

// runStoreContract checks the behavior every Store must share. Ids are unique
// per run so the same database can be reused.
func runStoreContract(t *testing.T, store storage.Store) {
	ctx := context.Background()
	couple := "couple-" + uuid.NewString()
	base := time.Now().UTC().Truncate(time.Millisecond)

	newSession := func(t *testing.T, at time.Time) models.GameSession {
		t.Helper()
		s := models.GameSession{
			ID:             "would-you-rather_" + uuid.NewString(),
			CoupleID:       couple,
			GameType:       models.GameWouldYouRather,
			Status:         models.SessionPending,
			InitiatorID:    "alice",
			QuestionIDs:    []string{"q1", "q2"},
			TotalQuestions: 2,
			Level:          1,
			Locale:         "en",
			LastActivityAt: at,
			CreatedAt:      at,
		}
		require.NoError(t, store.CreateSession(ctx, &s))
		return s
	}

	t.Run("Sessions", func(t *testing.T) {
		older := newSession(t, base.Add(-time.Minute))
		newer := newSession(t, base)

		got, err := store.GetSession(ctx, newer.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"q1", "q2"}, []string(got.QuestionIDs))
		assert.Nil(t, got.PartnerID)

		_, err = store.GetSession(ctx, "missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)

		open, err := store.FindOpenSessions(ctx, couple, models.GameWouldYouRather)
		require.NoError(t, err)
		require.Len(t, open, 2)
		assert.Equal(t, newer.ID, open[0].ID, "newest first")

		ok, err := store.ActivateSession(ctx, newer.ID, "bob", base)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = store.ActivateSession(ctx, newer.ID, "carol", base)
		require.NoError(t, err)
		assert.False(t, ok, "partner is bound once")

		ok, err = store.CompleteSession(ctx, newer.ID, base)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = store.CompleteSession(ctx, newer.ID, base)
		require.NoError(t, err)
		assert.False(t, ok, "completion transitions once")

		done, err := store.GetSession(ctx, newer.ID)
		require.NoError(t, err)
		assert.Equal(t, models.SessionCompleted, done.Status)
		require.NotNil(t, done.PartnerID)
		assert.Equal(t, "bob", *done.PartnerID)
		assert.NotNil(t, done.CompletedAt)

		expired, err := store.ExpireSessions(ctx, base.Add(-30*time.Second), base)
		require.NoError(t, err)
		var ids []string
		for _, s := range expired {
			ids = append(ids, s.ID)
		}
		assert.Contains(t, ids, older.ID)
		assert.NotContains(t, ids, newer.ID)

		open, err = store.FindOpenSessions(ctx, couple, models.GameWouldYouRather)
		require.NoError(t, err)
		assert.Empty(t, open)
	})

	t.Run("Responses", func(t *testing.T) {
		sessionID := "s-" + uuid.NewString()
		for i, ans := range []string{"first", "second", "third"} {
			require.NoError(t, store.AppendResponse(ctx, &models.ResponseRecord{
				CoupleID:      couple,
				SessionID:     sessionID,
				ParticipantID: "alice",
				GameType:      models.GameTruthOrDare,
				QuestionID:    "q1",
				Answer:        ans,
				CreatedAt:     base.Add(time.Duration(i) * time.Second),
			}))
		}
		recs, err := store.ListSessionResponses(ctx, sessionID)
		require.NoError(t, err)
		require.Len(t, recs, 3)
		assert.Equal(t, "third", recs[0].Answer)

		mine, err := store.ListCoupleResponses(ctx, couple, models.GameTruthOrDare, "alice")
		require.NoError(t, err)
		assert.Len(t, mine, 3)
		none, err := store.ListCoupleResponses(ctx, couple, models.GameTruthOrDare, "bob")
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("Progress", func(t *testing.T) {
		_, err := store.GetProgress(ctx, couple)
		assert.ErrorIs(t, err, storage.ErrNotFound)

		d := storage.ExperienceDelta{CoupleID: couple, Amount: 150, GrantKey: "session:1", Reason: "game_completed", Level: levelEvery100, At: base}
		prog, applied, err := store.AddExperience(ctx, d)
		require.NoError(t, err)
		assert.True(t, applied)
		assert.Equal(t, int64(150), prog.TotalExperience)
		assert.Equal(t, 2, prog.CurrentLevel)
		assert.Equal(t, int64(50), prog.ExperienceForNextLevel)
		assert.Equal(t, int64(1), prog.GamesCompleted)

		prog, applied, err = store.AddExperience(ctx, d)
		require.NoError(t, err)
		assert.False(t, applied)
		assert.Equal(t, int64(150), prog.TotalExperience)

		d.GrantKey = ""
		d.Amount = 60
		prog, applied, err = store.AddExperience(ctx, d)
		require.NoError(t, err)
		assert.True(t, applied)
		assert.Equal(t, int64(210), prog.TotalExperience)
		assert.Equal(t, 3, prog.CurrentLevel)
		assert.Equal(t, int64(1), prog.GamesCompleted)
	})

	t.Run("Completions", func(t *testing.T) {
		sessionID := "s-" + uuid.NewString()
		participant := "p-" + uuid.NewString()
		rec := models.CompletionRecord{
			ID:             uuid.NewString(),
			CoupleID:       couple,
			ParticipantID:  participant,
			GameType:       models.GamePartnerTrivia,
			SessionID:      sessionID,
			Score:          9,
			TotalQuestions: 10,
			CoinsEarned:    5,
			CompletedAt:    base,
		}
		inserted, err := store.InsertCompletion(ctx, &rec)
		require.NoError(t, err)
		assert.True(t, inserted)

		dup := rec
		dup.ID = uuid.NewString()
		inserted, err = store.InsertCompletion(ctx, &dup)
		require.NoError(t, err)
		assert.False(t, inserted)

		got, err := store.GetCompletion(ctx, sessionID, participant)
		require.NoError(t, err)
		assert.Equal(t, rec.ID, got.ID)
		_, err = store.GetCompletion(ctx, sessionID, "nobody")
		assert.ErrorIs(t, err, storage.ErrNotFound)

		list, err := store.ListSessionCompletions(ctx, sessionID)
		require.NoError(t, err)
		assert.Len(t, list, 1)

		trivia, err := store.ListCoupleCompletions(ctx, couple, models.GamePartnerTrivia)
		require.NoError(t, err)
		assert.Len(t, trivia, 1)
		other, err := store.ListCoupleCompletions(ctx, couple, models.GameTruthOrDare)
		require.NoError(t, err)
		assert.Empty(t, other)

		wallet, err := store.GetWallet(ctx, participant)
		require.NoError(t, err)
		assert.Equal(t, int64(5), wallet.Balance, "credited once")
	})

	t.Run("Collections", func(t *testing.T) {
		participant := "p-" + uuid.NewString()
		wallet, err := store.GetWallet(ctx, participant)
		require.NoError(t, err)
		assert.Equal(t, int64(0), wallet.Balance)

		for _, item := range []string{"a", "b", "a"} {
			_, err := store.AddCollectedItem(ctx, &models.CollectedItem{
				ID:            uuid.NewString(),
				ParticipantID: participant,
				CollectionID:  "seasons",
				ItemID:        item,
			})
			require.NoError(t, err)
		}
		items, err := store.ListCollectedItems(ctx, participant, "seasons")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"a", "b"}, items)

		has, err := store.HasCollectionBonus(ctx, participant, "seasons")
		require.NoError(t, err)
		assert.False(t, has)

		for i := 0; i < 2; i++ {
			claimed, err := store.ClaimCollectionBonus(ctx, &models.CollectionBonus{
				ID:            uuid.NewString(),
				ParticipantID: participant,
				CollectionID:  "seasons",
				Coins:         40,
			})
			require.NoError(t, err)
			assert.Equal(t, i == 0, claimed)
		}
		has, err = store.HasCollectionBonus(ctx, participant, "seasons")
		require.NoError(t, err)
		assert.True(t, has)

		wallet, err = store.GetWallet(ctx, participant)
		require.NoError(t, err)
		assert.Equal(t, int64(40), wallet.Balance)
	})
}
