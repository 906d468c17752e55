// services/sessions.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"couple-games/feed"
	"couple-games/models"
	"couple-games/storage"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// SessionService owns the session record: pending → active → completed.
// Every client runs the same logic; there is no arbiter, so every step re-reads
// shared state and every side effect is guarded by a uniqueness key.
type SessionService struct {
	Store       storage.Store
	Responses   *ResponseService
	Progression *ProgressionService
	Rewards     *RewardService
	Feed        feed.Publisher
	Notifier    Notifier
	Archiver    Archiver

	// TTL is the idle time after which an open session no longer blocks a new
	// one (and is swept to expired). Zero disables expiry.
	TTL time.Duration
	// ShuffleQuestions orders the agreed question set by a per-session seed.
	ShuffleQuestions bool
	Now              func() time.Time
}

func NewSessionService(store storage.Store, publisher feed.Publisher, notifier Notifier, archiver Archiver, ttl time.Duration) *SessionService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if archiver == nil {
		archiver = NopArchiver{}
	}
	return &SessionService{
		Store:       store,
		Responses:   NewResponseService(store, publisher),
		Progression: NewProgressionService(store),
		Rewards:     NewRewardService(store),
		Feed:        publisher,
		Notifier:    notifier,
		Archiver:    archiver,
		TTL:         ttl,
		Now:         time.Now,
	}
}

// SetClock overrides the clock of the service and its collaborators.
func (s *SessionService) SetClock(now func() time.Time) {
	s.Now = now
	s.Responses.Now = now
	s.Progression.Now = now
	s.Rewards.Now = now
}

func newSessionID(gameType models.GameType, at time.Time) string {
	return fmt.Sprintf("%s_%d_%s", gameType, at.UnixMilli(), uuid.NewString()[:8])
}

func (s *SessionService) stale(sess models.GameSession) bool {
	return s.TTL > 0 && sess.LastActivityAt.Before(s.Now().Add(-s.TTL))
}

// Get loads a session.
func (s *SessionService) Get(ctx context.Context, sessionID string) (models.GameSession, error) {
	sess, err := s.Store.GetSession(ctx, sessionID)
	if errors.Is(err, storage.ErrNotFound) {
		return models.GameSession{}, ErrSessionNotFound
	}
	if err != nil {
		return models.GameSession{}, fmt.Errorf("loading session %s: %w", sessionID, err)
	}
	return sess, nil
}

// FindOpen returns the effective pending/active session of a couple for a
// game: the newest one that is not stale.
func (s *SessionService) FindOpen(ctx context.Context, coupleID string, gameType models.GameType) (models.GameSession, bool, error) {
	open, err := s.Store.FindOpenSessions(ctx, coupleID, gameType)
	if err != nil {
		return models.GameSession{}, false, fmt.Errorf("finding open %s session: %w", gameType, err)
	}
	for _, sess := range open {
		if !s.stale(sess) {
			return sess, true, nil
		}
	}
	return models.GameSession{}, false, nil
}

type StartRequest struct {
	CoupleID    string
	InitiatorID string
	// PartnerID, when known, receives the invitation push.
	PartnerID string
	GameType  models.GameType
	Locale    string
}

// Start returns the couple's effective open session for the game, or creates a
// pending one when none exists.
//
// This is read-then-write, not atomic: two partners starting the same game at
// the same instant can both create a session. The newest one wins FindOpen and
// the other is left as an orphan that expires. That is accepted for a
// two-person, human-paced game.
func (s *SessionService) Start(ctx context.Context, req StartRequest) (models.GameSession, bool, error) {
	rules, ok := RulesFor(req.GameType)
	if !ok {
		return models.GameSession{}, false, ErrInvalidGameType
	}

	existing, found, err := s.FindOpen(ctx, req.CoupleID, req.GameType)
	if err != nil {
		return models.GameSession{}, false, err
	}
	if found {
		return existing, false, nil
	}

	prog, err := s.Progression.Current(ctx, req.CoupleID)
	if err != nil {
		return models.GameSession{}, false, err
	}

	now := s.Now()
	id := newSessionID(rules.Type, now)
	locale := ResolveLocale(req.Locale).String()
	prompts := GetQuestions(prog.CurrentLevel, locale, rules.Type)
	if s.ShuffleQuestions {
		prompts = Shuffle(prompts, id)
	}
	if len(prompts) > QuestionsPerSession {
		prompts = prompts[:QuestionsPerSession]
	}
	ids := make([]string, len(prompts))
	for i, p := range prompts {
		ids[i] = p.ID
	}

	sess := models.GameSession{
		ID:             id,
		CoupleID:       req.CoupleID,
		GameType:       rules.Type,
		Status:         models.SessionPending,
		InitiatorID:    req.InitiatorID,
		QuestionIDs:    ids,
		TotalQuestions: len(ids),
		Level:          prog.CurrentLevel,
		Locale:         locale,
		LastActivityAt: now,
		CreatedAt:      now,
	}
	if err := s.Store.CreateSession(ctx, &sess); err != nil {
		return models.GameSession{}, false, fmt.Errorf("creating %s session: %w", rules.Type, err)
	}

	log.Info().
		Str("session_id", sess.ID).
		Str("couple_id", sess.CoupleID).
		Str("initiator_id", sess.InitiatorID).
		Int("questions", sess.TotalQuestions).
		Msg("🎲 [Sessions] session created")

	publish(ctx, s.Feed, sessionEvent(sess, "insert", req.InitiatorID))
	if req.PartnerID != "" && req.PartnerID != req.InitiatorID {
		s.Notifier.Notify(ctx, Notification{
			RecipientID: req.PartnerID,
			Kind:        NotifyInvite,
			CoupleID:    sess.CoupleID,
			SessionID:   sess.ID,
			GameType:    sess.GameType,
		})
	}
	return sess, true, nil
}

// Join binds the invited partner and activates the session. Joining again as
// the same partner, or as the initiator, is a no-op.
func (s *SessionService) Join(ctx context.Context, sessionID, participantID string) (models.GameSession, error) {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return models.GameSession{}, err
	}
	if sess.IsParticipant(participantID) {
		return sess, nil
	}
	if !sess.Status.Open() || s.stale(sess) {
		return sess, ErrSessionClosed
	}
	if sess.PartnerID != nil {
		return sess, ErrSessionFull
	}

	ok, err := s.Store.ActivateSession(ctx, sessionID, participantID, s.Now())
	if err != nil {
		return models.GameSession{}, fmt.Errorf("activating session %s: %w", sessionID, err)
	}
	sess, err = s.Get(ctx, sessionID)
	if err != nil {
		return models.GameSession{}, err
	}
	if !ok {
		// Someone else got there first, or the session closed meanwhile.
		switch {
		case sess.IsParticipant(participantID):
			return sess, nil
		case !sess.Status.Open():
			return sess, ErrSessionClosed
		default:
			return sess, ErrSessionFull
		}
	}

	log.Info().Str("session_id", sessionID).Str("partner_id", participantID).Msg("🤝 [Sessions] partner joined")
	publish(ctx, s.Feed, sessionEvent(sess, "update", participantID))
	s.Notifier.Notify(ctx, Notification{
		RecipientID: sess.InitiatorID,
		Kind:        NotifyPartnerJoined,
		CoupleID:    sess.CoupleID,
		SessionID:   sess.ID,
		GameType:    sess.GameType,
	})
	return sess, nil
}

type AnswerRequest struct {
	SessionID     string
	ParticipantID string
	QuestionID    string
	Answer        string
	Guess         string
	Skipped       bool
}

// SessionView is what a client renders after any refresh.
type SessionView struct {
	Session         models.GameSession        `json:"session"`
	Prompts         []Prompt                  `json:"prompts"`
	MyAnswered      int                       `json:"my_answered"`
	PartnerAnswered int                       `json:"partner_answered"`
	Waiting         bool                      `json:"waiting_for_partner"`
	Completions     []models.CompletionRecord `json:"completions,omitempty"`
}

type SubmitResult struct {
	Record     models.ResponseRecord `json:"record"`
	View       SessionView           `json:"view"`
	Completion *CompletionResult     `json:"completion,omitempty"`
}

// SubmitAnswer appends the participant's answer, then re-reads the log and
// completes the session if both sides have now answered every question. The
// caller may only advance its view once this returns without error.
func (s *SessionService) SubmitAnswer(ctx context.Context, req AnswerRequest) (SubmitResult, error) {
	sess, err := s.Get(ctx, req.SessionID)
	if err != nil {
		return SubmitResult{}, err
	}
	// Idle past the TTL counts as expired even before the sweeper marks it;
	// FindOpen has already stopped returning it.
	if sess.Status.Open() && s.stale(sess) {
		return SubmitResult{}, ErrSessionClosed
	}
	if !sess.IsParticipant(req.ParticipantID) {
		if sess.PartnerID != nil {
			return SubmitResult{}, ErrNotParticipant
		}
		// First answer from the invitee doubles as accepting the invitation.
		if sess, err = s.Join(ctx, req.SessionID, req.ParticipantID); err != nil {
			return SubmitResult{}, err
		}
	}
	if !sess.Status.Open() {
		return SubmitResult{}, ErrSessionClosed
	}
	if !sess.HasQuestion(req.QuestionID) {
		return SubmitResult{}, ErrUnknownQuestion
	}
	rules, _ := RulesFor(sess.GameType)
	if req.Answer == "" && !req.Skipped {
		return SubmitResult{}, ErrEmptyAnswer
	}
	if rules.RequireGuess && req.Guess == "" {
		return SubmitResult{}, ErrMissingGuess
	}

	prog, err := s.Progression.Current(ctx, sess.CoupleID)
	if err != nil {
		return SubmitResult{}, err
	}

	meta := models.ResponseMeta{Guess: req.Guess, Skipped: req.Skipped}
	if p, ok := LookupQuestion(sess.GameType, sess.Locale, req.QuestionID); ok {
		meta.Prompt = p.Text
	}
	rec, err := s.Responses.Submit(ctx, SubmitRequest{
		CoupleID:      sess.CoupleID,
		SessionID:     sess.ID,
		ParticipantID: req.ParticipantID,
		GameType:      sess.GameType,
		QuestionID:    req.QuestionID,
		Answer:        req.Answer,
		Meta:          meta,
		Level:         prog.CurrentLevel,
	})
	if err != nil {
		return SubmitResult{}, err
	}
	if err := s.Store.TouchSession(ctx, sess.ID, s.Now()); err != nil {
		log.Warn().Err(err).Str("session_id", sess.ID).Msg("[Sessions] touch failed")
	}

	view, completion, err := s.Refresh(ctx, sess.ID, req.ParticipantID)
	if err != nil {
		// The answer is stored; the next refresh (ours or the partner's) retries completion.
		return SubmitResult{Record: rec}, err
	}

	// Nudge the partner once this participant is done and the partner is not.
	// Before the partner joins the invitation already did that.
	partner := view.Session.OtherParticipant(req.ParticipantID)
	if completion == nil && partner != "" && view.Waiting && view.PartnerAnswered < view.Session.TotalQuestions {
		s.Notifier.Notify(ctx, Notification{
			RecipientID: partner,
			Kind:        NotifyYourTurn,
			CoupleID:    sess.CoupleID,
			SessionID:   sess.ID,
			GameType:    sess.GameType,
		})
	}
	return SubmitResult{Record: rec, View: view, Completion: completion}, nil
}

// Refresh re-reads the session and its log for one participant. It is the
// change feed callback: it never trusts the event, only the store. When both
// sides have finished it runs Complete, which is safe to run from both
// clients at once.
func (s *SessionService) Refresh(ctx context.Context, sessionID, participantID string) (SessionView, *CompletionResult, error) {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return SessionView{}, nil, err
	}
	if !sess.IsParticipant(participantID) && sess.PartnerID != nil {
		return SessionView{}, nil, ErrNotParticipant
	}

	state, err := s.readState(ctx, sess)
	if err != nil {
		return SessionView{}, nil, err
	}
	view := state.view(participantID)

	var result *CompletionResult
	needsCompletion := sess.Status.Open() ||
		(sess.Status == models.SessionCompleted && len(state.completions) < 2)
	if needsCompletion && state.bothFinished() {
		res, err := s.complete(ctx, state, participantID)
		if err != nil {
			return view, nil, err
		}
		result = &res
		view.Session = res.Session
		view.Completions = res.Records
	}
	return view, result, nil
}

type CompletionResult struct {
	Session models.GameSession        `json:"session"`
	Scores  [2]ParticipantScore       `json:"scores"`
	Records []models.CompletionRecord `json:"records"`
	// Transitioned is true only for the caller whose write moved the session
	// to completed.
	Transitioned bool                  `json:"transitioned"`
	Experience   int64                 `json:"experience"`
	Progress     models.CoupleProgress `json:"progress"`
}

// Complete scores and closes a session once both participants have answered
// every question. Safe to call any number of times from either client.
func (s *SessionService) Complete(ctx context.Context, sessionID, observerID string) (CompletionResult, error) {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return CompletionResult{}, err
	}
	if sess.Status == models.SessionExpired {
		return CompletionResult{}, ErrSessionClosed
	}
	state, err := s.readState(ctx, sess)
	if err != nil {
		return CompletionResult{}, err
	}
	if !state.bothFinished() {
		return CompletionResult{}, ErrSessionNotReady
	}
	return s.complete(ctx, state, observerID)
}

// complete runs the guarded side effects in an order that makes every step
// repeatable: completion records (insert-if-absent, coins credited only on
// insert), then the status compare-and-set, then experience keyed by session.
// A crash between steps is repaired by the next caller.
func (s *SessionService) complete(ctx context.Context, st sessionState, observerID string) (CompletionResult, error) {
	sess := st.session
	rules, _ := RulesFor(sess.GameType)
	scores := rules.ScoreSession(st.prompts, sess.InitiatorID, *sess.PartnerID, st.initiator, st.partner)

	records := make([]models.CompletionRecord, 0, 2)
	for _, sc := range scores {
		rec, _, err := s.Rewards.GrantCompletion(ctx, CompletionGrant{
			CoupleID:      sess.CoupleID,
			ParticipantID: sc.ParticipantID,
			SessionID:     sess.ID,
			GameType:      sess.GameType,
			Score:         sc.Score,
			Total:         sc.Total,
			Coins:         sc.Coins,
		})
		if err != nil {
			return CompletionResult{}, err
		}
		records = append(records, rec)
	}

	now := s.Now()
	transitioned, err := s.Store.CompleteSession(ctx, sess.ID, now)
	if err != nil {
		return CompletionResult{}, fmt.Errorf("completing session %s: %w", sess.ID, err)
	}

	// Experience follows the couple's combined accuracy over both directions.
	outcome := OutcomeForAccuracy(scores[0].Score+scores[1].Score, scores[0].Total+scores[1].Total)
	xp := ExperienceForResult(sess.Level, outcome)
	prog, applied, err := s.Progression.AddSessionExperience(ctx, sess.CoupleID, sess.ID, xp)
	if err != nil {
		return CompletionResult{}, err
	}
	if !applied {
		xp = 0
	}

	if sess, err = s.Get(ctx, sess.ID); err != nil {
		return CompletionResult{}, err
	}
	result := CompletionResult{
		Session:      sess,
		Scores:       scores,
		Records:      records,
		Transitioned: transitioned,
		Experience:   xp,
		Progress:     prog,
	}
	if !transitioned {
		return result, nil
	}

	log.Info().
		Str("session_id", sess.ID).
		Str("observer_id", observerID).
		Int("initiator_score", scores[0].Score).
		Int("partner_score", scores[1].Score).
		Str("outcome", string(outcome)).
		Msg("✅ [Sessions] session completed")

	publish(ctx, s.Feed, sessionEvent(sess, "update", observerID))
	publish(ctx, s.Feed, feed.Event{
		CoupleID:  sess.CoupleID,
		Topic:     feed.TopicCompletions,
		Kind:      "insert",
		GameType:  sess.GameType,
		SessionID: sess.ID,
		ActorID:   observerID,
	})
	s.Notifier.Notify(ctx, Notification{
		RecipientID: sess.OtherParticipant(observerID),
		Kind:        NotifyResultsReady,
		CoupleID:    sess.CoupleID,
		SessionID:   sess.ID,
		GameType:    sess.GameType,
	})
	s.Archiver.Archive(ctx, SessionArchive{
		Session:     sess,
		Responses:   st.records,
		Completions: records,
		ArchivedAt:  now,
	})
	return result, nil
}

// ExpireStale moves open sessions idle for longer than TTL to expired, so they
// stop blocking new sessions. Returns how many were expired.
func (s *SessionService) ExpireStale(ctx context.Context) (int, error) {
	if s.TTL <= 0 {
		return 0, nil
	}
	now := s.Now()
	expired, err := s.Store.ExpireSessions(ctx, now.Add(-s.TTL), now)
	if err != nil {
		return 0, fmt.Errorf("expiring sessions: %w", err)
	}
	for _, sess := range expired {
		log.Info().Str("session_id", sess.ID).Str("couple_id", sess.CoupleID).Msg("⌛ [Sessions] session expired")
		publish(ctx, s.Feed, sessionEvent(sess, "update", ""))
	}
	return len(expired), nil
}

func sessionEvent(sess models.GameSession, kind, actorID string) feed.Event {
	return feed.Event{
		CoupleID:  sess.CoupleID,
		Topic:     feed.TopicSessions,
		Kind:      kind,
		GameType:  sess.GameType,
		SessionID: sess.ID,
		ActorID:   actorID,
	}
}

// sessionState is one consistent-enough read of everything completion needs.
type sessionState struct {
	session     models.GameSession
	prompts     []Prompt
	records     []models.ResponseRecord
	initiator   AnswerSet
	partner     AnswerSet
	completions []models.CompletionRecord
}

func (s *SessionService) readState(ctx context.Context, sess models.GameSession) (sessionState, error) {
	records, err := s.Responses.ReadForSession(ctx, sess.ID)
	if err != nil {
		return sessionState{}, err
	}
	completions, err := s.Rewards.SessionCompletions(ctx, sess.ID)
	if err != nil {
		return sessionState{}, fmt.Errorf("reading completions for %s: %w", sess.ID, err)
	}
	byParticipant := SplitByParticipant(records)
	st := sessionState{
		session:     sess,
		prompts:     sessionPrompts(sess),
		records:     records,
		initiator:   NewAnswerSet(byParticipant[sess.InitiatorID]),
		completions: completions,
	}
	if sess.PartnerID != nil {
		st.partner = NewAnswerSet(byParticipant[*sess.PartnerID])
	} else {
		st.partner = NewAnswerSet(nil)
	}
	return st, nil
}

// sessionPrompts resolves the agreed ids. An id missing from the current
// content (changed after the session started) keeps only its id, so only an
// exact id match can score it.
func sessionPrompts(sess models.GameSession) []Prompt {
	out := make([]Prompt, 0, len(sess.QuestionIDs))
	for _, id := range sess.QuestionIDs {
		p, ok := LookupQuestion(sess.GameType, sess.Locale, id)
		if !ok {
			p = Prompt{ID: id, Variant: sess.GameType}
		}
		out = append(out, p)
	}
	return out
}

func (st sessionState) bothFinished() bool {
	if st.session.PartnerID == nil {
		return false
	}
	total := st.session.TotalQuestions
	return total > 0 &&
		st.initiator.Answered(st.prompts) >= total &&
		st.partner.Answered(st.prompts) >= total
}

func (st sessionState) view(participantID string) SessionView {
	mine, theirs := st.initiator, st.partner
	if participantID != st.session.InitiatorID {
		mine, theirs = st.partner, st.initiator
	}
	v := SessionView{
		Session:         st.session,
		Prompts:         st.prompts,
		MyAnswered:      mine.Answered(st.prompts),
		PartnerAnswered: theirs.Answered(st.prompts),
		Completions:     st.completions,
	}
	v.Waiting = st.session.Status.Open() && v.MyAnswered >= st.session.TotalQuestions
	return v
}
