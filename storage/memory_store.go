package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"couple-games/models"

	"github.com/google/uuid"
)

// MemoryStore is a process-local Store. Each method holds one lock, so the
// insert-if-absent and compare-and-set methods are atomic like their postgres
// counterparts. Used for local runs (STORE=memory) and tests.
type MemoryStore struct {
	mu sync.Mutex

	sessions    map[string]models.GameSession
	responses   []models.ResponseRecord
	completions map[string]models.CompletionRecord // key: session|participant
	progress    map[string]models.CoupleProgress
	xpGrants    map[string]struct{} // key: couple|grantKey
	coinGrants  map[string]models.CoinGrant
	wallets     map[string]models.CoinWallet
	items       map[string]map[string]struct{} // key: participant|collection
	bonuses     map[string]models.CollectionBonus

	// FailNext, when set, is returned once by the next write. Tests use it to
	// simulate a rejected write.
	FailNext error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:    make(map[string]models.GameSession),
		completions: make(map[string]models.CompletionRecord),
		progress:    make(map[string]models.CoupleProgress),
		xpGrants:    make(map[string]struct{}),
		coinGrants:  make(map[string]models.CoinGrant),
		wallets:     make(map[string]models.CoinWallet),
		items:       make(map[string]map[string]struct{}),
		bonuses:     make(map[string]models.CollectionBonus),
	}
}

func pair(a, b string) string { return a + "|" + b }

func (m *MemoryStore) takeFailure() error {
	err := m.FailNext
	m.FailNext = nil
	return err
}

// SetFailNext arms a one-shot write failure.
func (m *MemoryStore) SetFailNext(err error) {
	m.mu.Lock()
	m.FailNext = err
	m.mu.Unlock()
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

// --- Sessions ---

func (m *MemoryStore) CreateSession(_ context.Context, s *models.GameSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	now := time.Now()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	m.sessions[s.ID] = cloneSession(*s)
	return nil
}

func (m *MemoryStore) GetSession(_ context.Context, id string) (models.GameSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return models.GameSession{}, ErrNotFound
	}
	return cloneSession(s), nil
}

func (m *MemoryStore) FindOpenSessions(_ context.Context, coupleID string, gameType models.GameType) ([]models.GameSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.GameSession
	for _, s := range m.sessions {
		if s.CoupleID == coupleID && s.GameType == gameType && s.Status.Open() {
			out = append(out, cloneSession(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) ActivateSession(_ context.Context, id, partnerID string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return false, err
	}
	s, ok := m.sessions[id]
	if !ok || s.Status != models.SessionPending {
		return false, nil
	}
	if s.PartnerID != nil && *s.PartnerID != partnerID {
		return false, nil
	}
	p := partnerID
	s.PartnerID = &p
	s.Status = models.SessionActive
	s.LastActivityAt = at
	s.UpdatedAt = at
	m.sessions[id] = s
	return true, nil
}

func (m *MemoryStore) TouchSession(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.LastActivityAt = at
		m.sessions[id] = s
	}
	return nil
}

func (m *MemoryStore) CompleteSession(_ context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return false, err
	}
	s, ok := m.sessions[id]
	if !ok || !s.Status.Open() {
		return false, nil
	}
	s.Status = models.SessionCompleted
	s.CompletedAt = &at
	s.LastActivityAt = at
	s.UpdatedAt = at
	m.sessions[id] = s
	return true, nil
}

func (m *MemoryStore) ExpireSessions(_ context.Context, cutoff, at time.Time) ([]models.GameSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.GameSession
	for id, s := range m.sessions {
		if s.Status.Open() && s.LastActivityAt.Before(cutoff) {
			s.Status = models.SessionExpired
			s.UpdatedAt = at
			m.sessions[id] = s
			out = append(out, cloneSession(s))
		}
	}
	return out, nil
}

func cloneSession(s models.GameSession) models.GameSession {
	s.QuestionIDs = append([]string(nil), s.QuestionIDs...)
	if s.PartnerID != nil {
		p := *s.PartnerID
		s.PartnerID = &p
	}
	return s
}

// --- Responses ---

func (m *MemoryStore) AppendResponse(_ context.Context, r *models.ResponseRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	m.responses = append(m.responses, *r)
	return nil
}

// newestFirst walks the log backwards so equal timestamps keep append order
// reversed, then stable-sorts by time.
func (m *MemoryStore) newestFirst(keep func(models.ResponseRecord) bool) []models.ResponseRecord {
	var out []models.ResponseRecord
	for i := len(m.responses) - 1; i >= 0; i-- {
		if keep(m.responses[i]) {
			out = append(out, m.responses[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *MemoryStore) ListSessionResponses(_ context.Context, sessionID string) ([]models.ResponseRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.newestFirst(func(r models.ResponseRecord) bool { return r.SessionID == sessionID }), nil
}

func (m *MemoryStore) ListCoupleResponses(_ context.Context, coupleID string, gameType models.GameType, participantID string) ([]models.ResponseRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.newestFirst(func(r models.ResponseRecord) bool {
		return r.CoupleID == coupleID && r.GameType == gameType && r.ParticipantID == participantID
	}), nil
}

// --- Progress ---

func (m *MemoryStore) GetProgress(_ context.Context, coupleID string) (models.CoupleProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.progress[coupleID]
	if !ok {
		return models.CoupleProgress{}, ErrNotFound
	}
	return p, nil
}

func (m *MemoryStore) AddExperience(_ context.Context, d ExperienceDelta) (models.CoupleProgress, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return models.CoupleProgress{}, false, err
	}
	if d.GrantKey != "" {
		key := pair(d.CoupleID, d.GrantKey)
		if _, dup := m.xpGrants[key]; dup {
			return m.progress[d.CoupleID], false, nil
		}
		m.xpGrants[key] = struct{}{}
	}
	prog, ok := m.progress[d.CoupleID]
	if !ok {
		prog = models.CoupleProgress{ID: uuid.NewString(), CoupleID: d.CoupleID, CurrentLevel: 1}
		prog.CreatedAt = d.At
	}
	applyExperience(&prog, d)
	prog.UpdatedAt = d.At
	m.progress[d.CoupleID] = prog
	return prog, true, nil
}

// --- Rewards ---

func (m *MemoryStore) creditCoins(participantID string, amount int64, reason models.CoinReason, key string) {
	if amount <= 0 {
		return
	}
	if _, dup := m.coinGrants[key]; dup {
		return
	}
	m.coinGrants[key] = models.CoinGrant{
		ID:            uuid.NewString(),
		ParticipantID: participantID,
		Amount:        amount,
		Reason:        reason,
		ReferenceKey:  key,
		CreatedAt:     time.Now(),
	}
	w := m.wallets[participantID]
	w.ParticipantID = participantID
	w.Balance += amount
	w.UpdatedAt = time.Now()
	m.wallets[participantID] = w
}

func (m *MemoryStore) InsertCompletion(_ context.Context, rec *models.CompletionRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return false, err
	}
	key := pair(rec.SessionID, rec.ParticipantID)
	if _, dup := m.completions[key]; dup {
		return false, nil
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	m.completions[key] = *rec
	m.creditCoins(rec.ParticipantID, rec.CoinsEarned, models.CoinReasonGameCompletion,
		completionCoinKey(rec.SessionID, rec.ParticipantID))
	return true, nil
}

func (m *MemoryStore) GetCompletion(_ context.Context, sessionID, participantID string) (models.CompletionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.completions[pair(sessionID, participantID)]
	if !ok {
		return models.CompletionRecord{}, ErrNotFound
	}
	return rec, nil
}

func (m *MemoryStore) ListSessionCompletions(_ context.Context, sessionID string) ([]models.CompletionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.CompletionRecord
	for _, rec := range m.completions {
		if rec.SessionID == sessionID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ParticipantID < out[j].ParticipantID })
	return out, nil
}

func (m *MemoryStore) ListCoupleCompletions(_ context.Context, coupleID string, gameType models.GameType) ([]models.CompletionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.CompletionRecord
	for _, rec := range m.completions {
		if rec.CoupleID == coupleID && (gameType == "" || rec.GameType == gameType) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CompletedAt.After(out[j].CompletedAt) })
	return out, nil
}

func (m *MemoryStore) AddCollectedItem(_ context.Context, item *models.CollectedItem) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return false, err
	}
	key := pair(item.ParticipantID, item.CollectionID)
	owned := m.items[key]
	if owned == nil {
		owned = make(map[string]struct{})
		m.items[key] = owned
	}
	if _, dup := owned[item.ItemID]; dup {
		return false, nil
	}
	owned[item.ItemID] = struct{}{}
	return true, nil
}

func (m *MemoryStore) ListCollectedItems(_ context.Context, participantID, collectionID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for id := range m.items[pair(participantID, collectionID)] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryStore) HasCollectionBonus(_ context.Context, participantID, collectionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.bonuses[pair(participantID, collectionID)]
	return ok, nil
}

func (m *MemoryStore) ClaimCollectionBonus(_ context.Context, b *models.CollectionBonus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return false, err
	}
	key := pair(b.ParticipantID, b.CollectionID)
	if _, dup := m.bonuses[key]; dup {
		return false, nil
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	b.AwardedAt = time.Now()
	m.bonuses[key] = *b
	m.creditCoins(b.ParticipantID, b.Coins, models.CoinReasonCollectionBonus, bonusCoinKey(b.ParticipantID, b.CollectionID))
	return true, nil
}

func (m *MemoryStore) GetWallet(_ context.Context, participantID string) (models.CoinWallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[participantID]
	if !ok {
		return models.CoinWallet{ParticipantID: participantID}, nil
	}
	return w, nil
}
