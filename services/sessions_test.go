package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"couple-games/feed"
	"couple-games/models"
	"couple-games/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

type mockNotifier struct{ mock.Mock }

func (m *mockNotifier) Notify(ctx context.Context, n Notification) { m.Called(ctx, n) }

type recordingPublisher struct {
	mu     sync.Mutex
	events []feed.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e feed.Event) error {
	p.mu.Lock()
	p.events = append(p.events, e)
	p.mu.Unlock()
	return nil
}

func (p *recordingPublisher) count(topic feed.Topic, kind string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Topic == topic && e.Kind == kind {
			n++
		}
	}
	return n
}

type recordingArchiver struct {
	mu       sync.Mutex
	archived []SessionArchive
}

func (a *recordingArchiver) Archive(_ context.Context, s SessionArchive) {
	a.mu.Lock()
	a.archived = append(a.archived, s)
	a.mu.Unlock()
}

type fixture struct {
	store    *storage.MemoryStore
	pub      *recordingPublisher
	notifier *mockNotifier
	archiver *recordingArchiver
	svc      *SessionService
	now      time.Time
}

func newFixture(t *testing.T, ttl time.Duration) *fixture {
	t.Helper()
	f := &fixture{
		store:    storage.NewMemoryStore(),
		pub:      &recordingPublisher{},
		notifier: &mockNotifier{},
		archiver: &recordingArchiver{},
		now:      time.Date(2026, 2, 14, 20, 0, 0, 0, time.UTC),
	}
	f.notifier.On("Notify", mock.Anything, mock.Anything).Return()
	f.svc = NewSessionService(f.store, f.pub, f.notifier, f.archiver, ttl)
	f.svc.SetClock(func() time.Time { return f.now })
	return f
}

func (f *fixture) start(t *testing.T, gt models.GameType) models.GameSession {
	t.Helper()
	sess, created, err := f.svc.Start(context.Background(), StartRequest{
		CoupleID:    "couple-1",
		InitiatorID: "alice",
		PartnerID:   "bob",
		GameType:    gt,
		Locale:      "en",
	})
	require.NoError(t, err)
	require.True(t, created)
	return sess
}

// play submits an answer for every prompt of the session as user.
func (f *fixture) play(t *testing.T, sess models.GameSession, user string, pick func(i int, p Prompt) (ans, guess string)) SubmitResult {
	t.Helper()
	var last SubmitResult
	for i, p := range sessionPrompts(sess) {
		ans, guess := pick(i, p)
		res, err := f.svc.SubmitAnswer(context.Background(), AnswerRequest{
			SessionID:     sess.ID,
			ParticipantID: user,
			QuestionID:    p.ID,
			Answer:        ans,
			Guess:         guess,
		})
		require.NoError(t, err, "%s answering %s", user, p.ID)
		last = res
		f.now = f.now.Add(time.Second)
	}
	return last
}

func notified(kind NotificationKind, recipient string) any {
	return mock.MatchedBy(func(n Notification) bool {
		return n.Kind == kind && n.RecipientID == recipient
	})
}

func TestStartAndFindOpen(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)

	sess := f.start(t, models.GameWouldYouRather)
	assert.Equal(t, models.SessionPending, sess.Status)
	assert.Equal(t, QuestionsPerSession, sess.TotalQuestions)
	assert.Len(t, sess.QuestionIDs, QuestionsPerSession)
	assert.Regexp(t, `^would-you-rather_\d+_[0-9a-f]{8}$`, sess.ID)

	found, ok, err := f.svc.FindOpen(ctx, "couple-1", models.GameWouldYouRather)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sess.ID, found.ID)

	again, created, err := f.svc.Start(ctx, StartRequest{CoupleID: "couple-1", InitiatorID: "bob", GameType: models.GameWouldYouRather})
	require.NoError(t, err)
	assert.False(t, created, "open session is reused")
	assert.Equal(t, sess.ID, again.ID)

	_, ok, err = f.svc.FindOpen(ctx, "couple-1", models.GameTruthOrDare)
	require.NoError(t, err)
	assert.False(t, ok, "other games are independent")

	_, _, err = f.svc.Start(ctx, StartRequest{CoupleID: "couple-1", InitiatorID: "alice", GameType: "chess"})
	assert.ErrorIs(t, err, ErrInvalidGameType)

	f.notifier.AssertCalled(t, "Notify", mock.Anything, notified(NotifyInvite, "bob"))
	assert.Equal(t, 1, f.pub.count(feed.TopicSessions, "insert"))
}

func TestWouldYouRatherEndToEnd(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)
	sess := f.start(t, models.GameWouldYouRather)
	_, err := f.svc.Join(ctx, sess.ID, "bob")
	require.NoError(t, err)

	// Alice always picks option 1 and guesses Bob picks option 0.
	res := f.play(t, sess, "alice", func(_ int, p Prompt) (string, string) {
		return p.Options[1], p.Options[0]
	})
	assert.Nil(t, res.Completion)
	assert.True(t, res.View.Waiting)
	assert.Equal(t, 10, res.View.MyAnswered)
	assert.Equal(t, 0, res.View.PartnerAnswered)
	f.notifier.AssertCalled(t, "Notify", mock.Anything, notified(NotifyYourTurn, "bob"))

	// Bob always picks option 0 and guesses Alice right six times.
	var results []SubmitResult
	for i, p := range sessionPrompts(sess) {
		guess := p.Options[0]
		if i < 6 {
			guess = p.Options[1]
		}
		r, err := f.svc.SubmitAnswer(ctx, AnswerRequest{SessionID: sess.ID, ParticipantID: "bob", QuestionID: p.ID, Answer: p.Options[0], Guess: guess})
		require.NoError(t, err)
		results = append(results, r)
	}
	for _, r := range results[:len(results)-1] {
		assert.Nil(t, r.Completion, "no completion before the last answer")
	}
	f.notifier.AssertCalled(t, "Notify", mock.Anything, notified(NotifyPartnerJoined, "alice"))

	final := results[len(results)-1]
	require.NotNil(t, final.Completion)
	c := final.Completion
	assert.True(t, c.Transitioned)
	assert.Equal(t, models.SessionCompleted, c.Session.Status)
	assert.Equal(t, ParticipantScore{ParticipantID: "alice", Score: 10, Total: 10, Coins: 5}, c.Scores[0])
	assert.Equal(t, ParticipantScore{ParticipantID: "bob", Score: 6, Total: 10, Coins: 0}, c.Scores[1])
	assert.Len(t, c.Records, 2)
	// 16 of 20 combined is a correct outcome at level one.
	assert.Equal(t, int64(30), c.Experience)
	assert.Equal(t, int64(30), c.Progress.TotalExperience)

	aliceWallet, err := f.svc.Rewards.Balance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(5), aliceWallet.Balance)
	bobWallet, err := f.svc.Rewards.Balance(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(0), bobWallet.Balance)

	assert.Equal(t, 1, f.pub.count(feed.TopicCompletions, "insert"))
	assert.Equal(t, 20, f.pub.count(feed.TopicResponses, "insert"))
	f.notifier.AssertCalled(t, "Notify", mock.Anything, notified(NotifyResultsReady, "alice"))
	require.Len(t, f.archiver.archived, 1)
	assert.Len(t, f.archiver.archived[0].Responses, 20)

	// Alice's client observes the same state afterwards and changes nothing.
	view, again, err := f.svc.Refresh(ctx, sess.ID, "alice")
	require.NoError(t, err)
	assert.Nil(t, again)
	assert.Len(t, view.Completions, 2)
	assert.False(t, view.Waiting)

	_, open, err := f.svc.FindOpen(ctx, "couple-1", models.GameWouldYouRather)
	require.NoError(t, err)
	assert.False(t, open)

	_, err = f.svc.SubmitAnswer(ctx, AnswerRequest{SessionID: sess.ID, ParticipantID: "alice", QuestionID: sess.QuestionIDs[0], Answer: "x", Guess: "y"})
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func seedAnswers(t *testing.T, store *storage.MemoryStore, sess models.GameSession, user string) {
	t.Helper()
	for _, p := range sessionPrompts(sess) {
		require.NoError(t, store.AppendResponse(context.Background(), &models.ResponseRecord{
			CoupleID:      sess.CoupleID,
			SessionID:     sess.ID,
			ParticipantID: user,
			GameType:      sess.GameType,
			QuestionID:    p.ID,
			Answer:        p.Options[0],
			Metadata:      datatypes.NewJSONType(models.ResponseMeta{Guess: p.Options[0], Prompt: p.Text}),
		}))
	}
}

func TestConcurrentCompletion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)
	sess := f.start(t, models.GameWouldYouRather)
	_, err := f.svc.Join(ctx, sess.ID, "bob")
	require.NoError(t, err)
	seedAnswers(t, f.store, sess, "alice")
	seedAnswers(t, f.store, sess, "bob")

	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		transitioned int
	)
	for i := 0; i < 10; i++ {
		observer := "alice"
		if i%2 == 1 {
			observer = "bob"
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.Complete(ctx, sess.ID, observer)
			assert.NoError(t, err)
			if res.Transitioned {
				mu.Lock()
				transitioned++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, transitioned)
	recs, err := f.svc.Rewards.SessionCompletions(ctx, sess.ID)
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	for _, user := range []string{"alice", "bob"} {
		w, err := f.svc.Rewards.Balance(ctx, user)
		require.NoError(t, err)
		assert.Equal(t, int64(5), w.Balance, user)
	}
	prog, err := f.svc.Progression.Current(ctx, "couple-1")
	require.NoError(t, err)
	assert.Equal(t, int64(30), prog.TotalExperience)
	assert.Equal(t, int64(1), prog.GamesCompleted)
	assert.Equal(t, 1, f.pub.count(feed.TopicCompletions, "insert"))
	assert.Len(t, f.archiver.archived, 1)
}

func TestCompleteNotReady(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)
	sess := f.start(t, models.GameWouldYouRather)

	_, err := f.svc.Complete(ctx, sess.ID, "alice")
	assert.ErrorIs(t, err, ErrSessionNotReady, "no partner yet")

	_, err = f.svc.Join(ctx, sess.ID, "bob")
	require.NoError(t, err)
	seedAnswers(t, f.store, sess, "alice")
	_, err = f.svc.Complete(ctx, sess.ID, "alice")
	assert.ErrorIs(t, err, ErrSessionNotReady, "partner has not answered")

	_, err = f.svc.Complete(ctx, "missing", "alice")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRefreshRepairsInterruptedCompletion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)
	sess := f.start(t, models.GameCompatibilityQuiz)
	_, err := f.svc.Join(ctx, sess.ID, "bob")
	require.NoError(t, err)
	seedAnswers(t, f.store, sess, "alice")
	seedAnswers(t, f.store, sess, "bob")

	// A client set the status and died before writing anything else.
	ok, err := f.store.CompleteSession(ctx, sess.ID, f.now)
	require.NoError(t, err)
	require.True(t, ok)

	view, res, err := f.svc.Refresh(ctx, sess.ID, "bob")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.False(t, res.Transitioned)
	assert.Len(t, view.Completions, 2)
	assert.Equal(t, int64(30), res.Experience)

	_, res, err = f.svc.Refresh(ctx, sess.ID, "alice")
	require.NoError(t, err)
	assert.Nil(t, res, "nothing left to repair")
}

func TestSubmitWriteFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)
	sess := f.start(t, models.GameWouldYouRather)
	p := sessionPrompts(sess)[0]

	machine := NewViewMachine(sess.GameType, sess.TotalQuestions)
	_, err := machine.Fire(EventStart, nil)
	require.NoError(t, err)

	f.store.SetFailNext(errors.New("connection reset"))
	_, err = f.svc.SubmitAnswer(ctx, AnswerRequest{SessionID: sess.ID, ParticipantID: "alice", QuestionID: p.ID, Answer: p.Options[0], Guess: p.Options[1]})
	require.Error(t, err)
	mode, _ := machine.Fire(EventWriteFailed, err)
	assert.Equal(t, ModeAnswer, mode)
	assert.Equal(t, 0, machine.Question)

	recs, err := f.svc.Responses.ReadForSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.Equal(t, 0, f.pub.count(feed.TopicResponses, "insert"), "nothing announced for a failed write")

	// The retry succeeds and only then does the view advance.
	_, err = f.svc.SubmitAnswer(ctx, AnswerRequest{SessionID: sess.ID, ParticipantID: "alice", QuestionID: p.ID, Answer: p.Options[0], Guess: p.Options[1]})
	require.NoError(t, err)
	mode, err = machine.Fire(EventAnswerAcked, nil)
	require.NoError(t, err)
	assert.Equal(t, ModeGuess, mode)
	assert.NoError(t, machine.LastErr)
}

func TestSubmitValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)
	sess := f.start(t, models.GameWouldYouRather)
	qid := sess.QuestionIDs[0]

	cases := []struct {
		name string
		req  AnswerRequest
		want error
	}{
		{"unknown session", AnswerRequest{SessionID: "nope", ParticipantID: "alice", QuestionID: qid, Answer: "a", Guess: "b"}, ErrSessionNotFound},
		{"unknown question", AnswerRequest{SessionID: sess.ID, ParticipantID: "alice", QuestionID: "would-you-rather-t9-01", Answer: "a", Guess: "b"}, ErrUnknownQuestion},
		{"empty answer", AnswerRequest{SessionID: sess.ID, ParticipantID: "alice", QuestionID: qid, Guess: "b"}, ErrEmptyAnswer},
		{"missing guess", AnswerRequest{SessionID: sess.ID, ParticipantID: "alice", QuestionID: qid, Answer: "a"}, ErrMissingGuess},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.SubmitAnswer(ctx, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	t.Run("skipped turns need no answer", func(t *testing.T) {
		tod := f.start(t, models.GameTruthOrDare)
		_, err := f.svc.SubmitAnswer(ctx, AnswerRequest{SessionID: tod.ID, ParticipantID: "alice", QuestionID: tod.QuestionIDs[0], Skipped: true})
		assert.NoError(t, err)
	})
}

func TestJoin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)
	sess := f.start(t, models.GamePartnerTrivia)

	same, err := f.svc.Join(ctx, sess.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.SessionPending, same.Status, "initiator joining is a no-op")

	joined, err := f.svc.Join(ctx, sess.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, models.SessionActive, joined.Status)
	require.NotNil(t, joined.PartnerID)
	assert.Equal(t, "bob", *joined.PartnerID)

	again, err := f.svc.Join(ctx, sess.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, joined.ID, again.ID)

	_, err = f.svc.Join(ctx, sess.ID, "mallory")
	assert.ErrorIs(t, err, ErrSessionFull)

	_, err = f.svc.SubmitAnswer(ctx, AnswerRequest{SessionID: sess.ID, ParticipantID: "mallory", QuestionID: sess.QuestionIDs[0], Answer: "a", Guess: "b"})
	assert.ErrorIs(t, err, ErrNotParticipant)

	_, _, err = f.svc.Refresh(ctx, sess.ID, "mallory")
	assert.ErrorIs(t, err, ErrNotParticipant)
}

func TestImplicitJoinOnFirstAnswer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)
	sess := f.start(t, models.GameCompatibilityQuiz)
	p := sessionPrompts(sess)[0]

	res, err := f.svc.SubmitAnswer(ctx, AnswerRequest{SessionID: sess.ID, ParticipantID: "bob", QuestionID: p.ID, Answer: p.Options[2]})
	require.NoError(t, err)
	assert.Equal(t, models.SessionActive, res.View.Session.Status)
	require.NotNil(t, res.View.Session.PartnerID)
	assert.Equal(t, "bob", *res.View.Session.PartnerID)
	assert.Equal(t, 1, res.View.MyAnswered)
	assert.Equal(t, "Disagree", res.Record.Answer)
	f.notifier.AssertCalled(t, "Notify", mock.Anything, notified(NotifyPartnerJoined, "alice"))
}

func TestConcurrentJoin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)
	sess := f.start(t, models.GamePartnerTrivia)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		full int
	)
	for _, user := range []string{"bob", "carol", "dave", "erin"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Join(ctx, sess.ID, user)
			if errors.Is(err, ErrSessionFull) {
				mu.Lock()
				full++
				mu.Unlock()
				return
			}
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 3, full)
}

func TestExpiry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 48*time.Hour)
	old := f.start(t, models.GameWouldYouRather)

	f.now = f.now.Add(49 * time.Hour)
	_, ok, err := f.svc.FindOpen(ctx, "couple-1", models.GameWouldYouRather)
	require.NoError(t, err)
	assert.False(t, ok, "stale session no longer blocks")

	fresh := f.start(t, models.GameWouldYouRather)
	assert.NotEqual(t, old.ID, fresh.ID)

	n, err := f.svc.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	expired, err := f.svc.Get(ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionExpired, expired.Status)

	_, err = f.svc.SubmitAnswer(ctx, AnswerRequest{SessionID: old.ID, ParticipantID: "alice", QuestionID: old.QuestionIDs[0], Answer: "a", Guess: "b"})
	assert.ErrorIs(t, err, ErrSessionClosed)
	_, err = f.svc.Complete(ctx, old.ID, "alice")
	assert.ErrorIs(t, err, ErrSessionClosed)

	n, err = f.svc.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestStaleSessionRejectsAnswersBeforeSweep(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 48*time.Hour)
	old := f.start(t, models.GameWouldYouRather)
	before := old.LastActivityAt

	f.now = f.now.Add(49 * time.Hour)

	_, err := f.svc.SubmitAnswer(ctx, AnswerRequest{SessionID: old.ID, ParticipantID: "alice", QuestionID: old.QuestionIDs[0], Answer: "a", Guess: "b"})
	assert.ErrorIs(t, err, ErrSessionClosed)
	_, err = f.svc.SubmitAnswer(ctx, AnswerRequest{SessionID: old.ID, ParticipantID: "bob", QuestionID: old.QuestionIDs[0], Answer: "a", Guess: "b"})
	assert.ErrorIs(t, err, ErrSessionClosed, "no implicit join either")
	_, err = f.svc.Join(ctx, old.ID, "bob")
	assert.ErrorIs(t, err, ErrSessionClosed)

	// Nothing was written, so the session stays stale and the sweeper still finds it.
	stored, err := f.svc.Get(ctx, old.ID)
	require.NoError(t, err)
	assert.True(t, stored.LastActivityAt.Equal(before))
	assert.Nil(t, stored.PartnerID)
	records, err := f.store.ListSessionResponses(ctx, old.ID)
	require.NoError(t, err)
	assert.Empty(t, records)

	n, err := f.svc.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestExpiryDisabled(t *testing.T) {
	f := newFixture(t, 0)
	f.start(t, models.GameWouldYouRather)
	f.now = f.now.Add(365 * 24 * time.Hour)
	n, err := f.svc.ExpireStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
