package usecases

import (
	"context"
	"strings"
	"sync"

	"github.com/opendev/membership-app/backend/internal/entities"
	"github.com/opendev/membership-app/backend/internal/usecases/repository"
)

// stubTransactor runs the function directly; commit/rollback semantics are
// exercised against a real database, not here.
type stubTransactor struct{}

func (stubTransactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeUserStore struct {
	mu    sync.Mutex
	users map[string]entities.User

	findErr error
}

func newFakeUserStore(users ...entities.User) *fakeUserStore {
	s := &fakeUserStore{users: make(map[string]entities.User)}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *fakeUserStore) FindUserByID(_ context.Context, id string) (*entities.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	if u, ok := s.users[id]; ok {
		return &u, nil
	}
	return nil, nil
}

func (s *fakeUserStore) FindUserByIdentity(_ context.Context, email, githubLogin *string) (*entities.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	for _, u := range s.users {
		if email != nil && u.Email != nil && strings.EqualFold(*u.Email, *email) {
			return &u, nil
		}
		if githubLogin != nil && u.GithubLogin != nil && strings.EqualFold(*u.GithubLogin, *githubLogin) {
			return &u, nil
		}
	}
	return nil, nil
}

func (s *fakeUserStore) InsertUser(_ context.Context, user entities.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user
	return nil
}

func (s *fakeUserStore) MarkUserPaid(_ context.Context, userID string, walletAddress *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.users[userID]
	u.MembershipStatus = entities.MembershipPaid
	if walletAddress != nil {
		u.WalletAddress = walletAddress
	}
	s.users[userID] = u
	return nil
}

type fakeMembershipStore struct {
	mu     sync.Mutex
	byHash map[string]entities.Membership

	existsErr error
	insertErr error
}

func newFakeMembershipStore(memberships ...entities.Membership) *fakeMembershipStore {
	s := &fakeMembershipStore{byHash: make(map[string]entities.Membership)}
	for _, m := range memberships {
		s.byHash[strings.ToLower(m.TxHash)] = m
	}
	return s
}

func (s *fakeMembershipStore) ExistsByTxHash(_ context.Context, txHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.existsErr != nil {
		return false, s.existsErr
	}
	_, ok := s.byHash[strings.ToLower(txHash)]
	return ok, nil
}

// InsertMembership mimics the unique index on tx_hash: the second insert for
// one hash loses.
func (s *fakeMembershipStore) InsertMembership(_ context.Context, m entities.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	key := strings.ToLower(m.TxHash)
	if _, ok := s.byHash[key]; ok {
		return repository.ErrDuplicateTxHash
	}
	s.byHash[key] = m
	return nil
}

func (s *fakeMembershipStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byHash)
}

type fakeRecoveryStore struct {
	mu     sync.Mutex
	byHash map[string]entities.RecoveryCase

	insertErr map[string]error
}

func newFakeRecoveryStore(cases ...entities.RecoveryCase) *fakeRecoveryStore {
	s := &fakeRecoveryStore{
		byHash:    make(map[string]entities.RecoveryCase),
		insertErr: make(map[string]error),
	}
	for _, c := range cases {
		s.byHash[strings.ToLower(c.TxHash)] = c
	}
	return s
}

func (s *fakeRecoveryStore) ExistsByTxHash(_ context.Context, txHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.byHash[strings.ToLower(txHash)]
	return ok, nil
}

func (s *fakeRecoveryStore) InsertCase(_ context.Context, c entities.RecoveryCase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.insertErr[strings.ToLower(c.TxHash)]; err != nil {
		return err
	}
	s.byHash[strings.ToLower(c.TxHash)] = c
	return nil
}

func (s *fakeRecoveryStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byHash)
}

type fakeLedger struct {
	latest    uint64
	transfers []entities.Transfer
	byHash    map[string]*entities.Transfer

	latestErr    error
	transfersErr error
	txErr        error
}

func (l *fakeLedger) LatestBlock(context.Context) (uint64, error) {
	if l.latestErr != nil {
		return 0, l.latestErr
	}
	return l.latest, nil
}

func (l *fakeLedger) GetTransaction(_ context.Context, hash string) (*entities.Transfer, error) {
	if l.txErr != nil {
		return nil, l.txErr
	}
	if t, ok := l.byHash[strings.ToLower(hash)]; ok {
		return t, nil
	}
	return nil, context.DeadlineExceeded
}

func (l *fakeLedger) GetIncomingTransfers(context.Context, string, uint64, uint64) ([]entities.Transfer, error) {
	return l.transfers, l.transfersErr
}
