package referral

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/loanbridge/portal-api/internal/apperr"
	"github.com/loanbridge/portal-api/internal/models"
)

// memStore mimics the durable token store, including the atomicity contract
// of ConsumeUse: the usability re-check and the increment happen under one
// lock, exactly like the guarded UPDATE in the real repository.
type memStore struct {
	mu      sync.Mutex
	seq     int
	byToken map[string]models.ReferralToken
	uses    map[string]int // token id -> recorded uses
}

func newMemStore() *memStore {
	return &memStore{
		byToken: make(map[string]models.ReferralToken),
		uses:    make(map[string]int),
	}
}

func (s *memStore) put(t models.ReferralToken) models.ReferralToken {
	if t.ID == "" {
		s.seq++
		t.ID = fmt.Sprintf("tok-%d", s.seq)
	}
	s.byToken[t.Token] = t
	return t
}

func (s *memStore) GetByContact(_ context.Context, contactID string) (models.ReferralToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest models.ReferralToken
	found := false
	for _, t := range s.byToken {
		if t.ContactID == contactID && (!found || t.CreatedAt.After(latest.CreatedAt)) {
			latest = t
			found = true
		}
	}
	if !found {
		return models.ReferralToken{}, apperr.New(apperr.KindNotFound, "no referral token for contact")
	}
	return latest, nil
}

func (s *memStore) GetByToken(_ context.Context, token string) (models.ReferralToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byToken[token]
	if !ok {
		return models.ReferralToken{}, apperr.New(apperr.KindNotFound, "referral token not found")
	}
	return t, nil
}

func (s *memStore) Create(_ context.Context, token models.ReferralToken) (models.ReferralToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byToken[token.Token]; exists {
		return models.ReferralToken{}, apperr.New(apperr.KindConflict, "referral token already exists")
	}
	for _, t := range s.byToken {
		if t.ContactID == token.ContactID && t.IsActive {
			return models.ReferralToken{}, apperr.New(apperr.KindConflict, "contact already has a live token")
		}
	}
	token.CreatedAt = time.Now()
	token.UpdatedAt = token.CreatedAt
	return s.put(token), nil
}

func (s *memStore) ConsumeUse(_ context.Context, token, newContactID, newUserEmail string) (models.ReferralReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byToken[token]
	if !ok || !t.Usable(time.Now()) {
		return models.ReferralReceipt{}, apperr.New(apperr.KindInvalidToken, "referral token is not usable")
	}
	t.UsesCount++
	if t.UsesCount >= t.MaxUses {
		t.IsActive = false
	}
	t.UpdatedAt = time.Now()
	s.byToken[token] = t
	s.uses[t.ID]++
	return models.ReferralReceipt{
		ReferrerContactID: t.ContactID,
		UsesRemaining:     t.MaxUses - t.UsesCount,
	}, nil
}

func (s *memStore) StatsByContact(_ context.Context, contactID string) (models.ReferralStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := models.ReferralStats{ContactID: contactID}
	for _, t := range s.byToken {
		if t.ContactID != contactID {
			continue
		}
		stats.MaxUses = t.MaxUses
		stats.UsesCount = t.UsesCount
		stats.HasActiveToken = stats.HasActiveToken || t.IsActive
		expiresAt := t.ExpiresAt
		stats.ExpiresAt = &expiresAt
		stats.TotalReferrals += s.uses[t.ID]
	}
	return stats, nil
}

func newTestManager(store TokenStore, opts ...ManagerOption) *Manager {
	return NewManager(store, zerolog.Nop(), opts...)
}

func TestGenerateIdempotent(t *testing.T) {
	m := newTestManager(newMemStore())

	first, err := m.Generate(context.Background(), "C1", "alice@x.com", 0)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(first.Token, TokenPrefix))
	require.Equal(t, DefaultMaxUses, first.MaxUses)
	require.True(t, first.IsActive)

	second, err := m.Generate(context.Background(), "C1", "alice@x.com", 0)
	require.NoError(t, err)
	require.Equal(t, first.Token, second.Token)
}

func TestGenerateRemintsAfterExpiry(t *testing.T) {
	store := newMemStore()
	store.put(models.ReferralToken{
		Token:     "REF-old",
		ContactID: "C1",
		UserEmail: "alice@x.com",
		MaxUses:   5,
		IsActive:  false,
		ExpiresAt: time.Now().Add(-time.Hour),
		CreatedAt: time.Now().Add(-91 * 24 * time.Hour),
	})
	m := newTestManager(store)

	minted, err := m.Generate(context.Background(), "C1", "alice@x.com", 5)
	require.NoError(t, err)
	require.NotEqual(t, "REF-old", minted.Token)
	require.True(t, minted.Usable(time.Now()))
}

func TestGenerateFixesExpiryAtCreation(t *testing.T) {
	m := newTestManager(newMemStore())
	before := time.Now()

	minted, err := m.Generate(context.Background(), "C1", "alice@x.com", 0)
	require.NoError(t, err)

	lower := before.Add(DefaultTokenTTL)
	upper := time.Now().Add(DefaultTokenTTL)
	require.False(t, minted.ExpiresAt.Before(lower))
	require.False(t, minted.ExpiresAt.After(upper))
}

func TestValidateExpiredToken(t *testing.T) {
	store := newMemStore()
	createdAt := time.Now().Add(-91 * 24 * time.Hour)
	store.put(models.ReferralToken{
		Token:     "REF-stale",
		ContactID: "C1",
		MaxUses:   10,
		UsesCount: 1,
		IsActive:  true,
		CreatedAt: createdAt,
		ExpiresAt: createdAt.Add(DefaultTokenTTL),
	})
	m := newTestManager(store)

	_, err := m.Validate(context.Background(), "REF-stale")
	require.True(t, apperr.IsKind(err, apperr.KindInvalidToken))
}

func TestValidateUnknownTokenIsOpaque(t *testing.T) {
	m := newTestManager(newMemStore())

	_, err := m.Validate(context.Background(), "REF-missing")
	require.True(t, apperr.IsKind(err, apperr.KindInvalidToken))
}

func TestConsumeFlipsInactiveAtCap(t *testing.T) {
	m := newTestManager(newMemStore())
	minted, err := m.Generate(context.Background(), "C1", "alice@x.com", 1)
	require.NoError(t, err)

	receipt, err := m.Consume(context.Background(), minted.Token, "C2", "bob@x.com")
	require.NoError(t, err)
	require.Equal(t, "C1", receipt.ReferrerContactID)
	require.Equal(t, 0, receipt.UsesRemaining)

	spent, err := m.Get(context.Background(), "C1")
	require.NoError(t, err)
	require.False(t, spent.IsActive)

	_, err = m.Consume(context.Background(), minted.Token, "C3", "carol@x.com")
	require.True(t, apperr.IsKind(err, apperr.KindInvalidToken))
}

func TestConcurrentConsumeSingleWinner(t *testing.T) {
	m := newTestManager(newMemStore())
	minted, err := m.Generate(context.Background(), "C1", "alice@x.com", 1)
	require.NoError(t, err)

	const n = 16
	results := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := m.Consume(context.Background(), minted.Token, fmt.Sprintf("C%d", i+2), "lead@x.com")
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
		} else {
			require.True(t, apperr.IsKind(err, apperr.KindInvalidToken))
		}
	}
	require.Equal(t, 1, wins)
}

func TestStatsZeroedForUnknownContact(t *testing.T) {
	m := newTestManager(newMemStore())

	stats, err := m.Stats(context.Background(), "no-such-contact")
	require.NoError(t, err)
	require.Zero(t, stats.UsesCount)
	require.Zero(t, stats.MaxUses)
	require.Zero(t, stats.TotalReferrals)
	require.False(t, stats.HasActiveToken)
}

func TestReferralFlowEndToEnd(t *testing.T) {
	m := newTestManager(newMemStore())
	ctx := context.Background()

	minted, err := m.Generate(ctx, "C1", "alice@x.com", 0)
	require.NoError(t, err)

	validated, err := m.Validate(ctx, minted.Token)
	require.NoError(t, err)
	require.Equal(t, "C1", validated.ContactID)

	receipt, err := m.Consume(ctx, minted.Token, "C2", "bob@x.com")
	require.NoError(t, err)
	require.Equal(t, "C1", receipt.ReferrerContactID)
	require.Equal(t, minted.MaxUses-1, receipt.UsesRemaining)

	stats, err := m.Stats(ctx, "C1")
	require.NoError(t, err)
	require.Equal(t, 1, stats.UsesCount)
	require.Equal(t, 1, stats.TotalReferrals)
	require.Equal(t, minted.MaxUses, stats.MaxUses)
	require.True(t, stats.HasActiveToken)
}
