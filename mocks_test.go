package auth_test

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/leadlocal/go-auth"
	"github.com/stretchr/testify/mock"
	"github.com/uptrace/bun"
)

type testLogger struct{}

func (testLogger) Debug(string, ...any) {}
func (testLogger) Info(string, ...any)  {}
func (testLogger) Warn(string, ...any)  {}
func (testLogger) Error(string, ...any) {}

// MockUserTracker implements auth.UserTracker
type MockUserTracker struct {
	mock.Mock
}

func (m *MockUserTracker) GetByIdentifier(ctx context.Context, identifier string) (*auth.User, error) {
	args := m.Called(ctx, identifier)
	user, _ := args.Get(0).(*auth.User)
	return user, args.Error(1)
}

func (m *MockUserTracker) TrackAttemptedLogin(ctx context.Context, user *auth.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserTracker) TrackSuccessfulLogin(ctx context.Context, user *auth.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

// MockUsers implements auth.Users. The embedded interface covers the methods
// a test does not set expectations for; calling one of those panics.
type MockUsers struct {
	mock.Mock
	auth.Users
}

func (m *MockUsers) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (*auth.User, error) {
	args := m.Called(ctx, id, criteria)
	user, _ := args.Get(0).(*auth.User)
	return user, args.Error(1)
}

func (m *MockUsers) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*auth.User, error) {
	args := m.Called(ctx, identifier, criteria)
	user, _ := args.Get(0).(*auth.User)
	return user, args.Error(1)
}

func (m *MockUsers) CountByAccount(ctx context.Context, accountID uuid.UUID) (int, error) {
	args := m.Called(ctx, accountID)
	return args.Int(0), args.Error(1)
}

func (m *MockUsers) CountByAccountTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID) (int, error) {
	args := m.Called(ctx, tx, accountID)
	return args.Int(0), args.Error(1)
}

func (m *MockUsers) RegisterTx(ctx context.Context, tx bun.IDB, user *auth.User) (*auth.User, error) {
	args := m.Called(ctx, tx, user)
	record, _ := args.Get(0).(*auth.User)
	return record, args.Error(1)
}

func (m *MockUsers) CreateTx(ctx context.Context, tx bun.IDB, record *auth.User, criteria ...repository.InsertCriteria) (*auth.User, error) {
	args := m.Called(ctx, tx, record, criteria)
	user, _ := args.Get(0).(*auth.User)
	return user, args.Error(1)
}

func (m *MockUsers) MarkEmailVerified(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockUsers) MarkEmailVerifiedTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	args := m.Called(ctx, tx, id)
	return args.Error(0)
}

func (m *MockUsers) TrackAttemptedLogin(ctx context.Context, user *auth.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUsers) TrackSuccessfulLogin(ctx context.Context, user *auth.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

// MockAccounts implements auth.Accounts
type MockAccounts struct {
	mock.Mock
	auth.Accounts
}

func (m *MockAccounts) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (*auth.Account, error) {
	args := m.Called(ctx, id, criteria)
	account, _ := args.Get(0).(*auth.Account)
	return account, args.Error(1)
}

func (m *MockAccounts) CreateTx(ctx context.Context, tx bun.IDB, record *auth.Account, criteria ...repository.InsertCriteria) (*auth.Account, error) {
	args := m.Called(ctx, tx, record, criteria)
	account, _ := args.Get(0).(*auth.Account)
	return account, args.Error(1)
}

// MockTeamInvites implements auth.TeamInvites
type MockTeamInvites struct {
	mock.Mock
	auth.TeamInvites
}

func (m *MockTeamInvites) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (*auth.TeamInvite, error) {
	args := m.Called(ctx, id, criteria)
	invite, _ := args.Get(0).(*auth.TeamInvite)
	return invite, args.Error(1)
}

func (m *MockTeamInvites) GetByToken(ctx context.Context, token string) (*auth.TeamInvite, error) {
	args := m.Called(ctx, token)
	invite, _ := args.Get(0).(*auth.TeamInvite)
	return invite, args.Error(1)
}

func (m *MockTeamInvites) CreateTx(ctx context.Context, tx bun.IDB, record *auth.TeamInvite, criteria ...repository.InsertCriteria) (*auth.TeamInvite, error) {
	args := m.Called(ctx, tx, record, criteria)
	invite, _ := args.Get(0).(*auth.TeamInvite)
	return invite, args.Error(1)
}

func (m *MockTeamInvites) MarkAcceptedTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*auth.TeamInvite, error) {
	args := m.Called(ctx, tx, id)
	invite, _ := args.Get(0).(*auth.TeamInvite)
	return invite, args.Error(1)
}

func (m *MockTeamInvites) Revoke(ctx context.Context, id uuid.UUID) (*auth.TeamInvite, error) {
	args := m.Called(ctx, id)
	invite, _ := args.Get(0).(*auth.TeamInvite)
	return invite, args.Error(1)
}

// MockMemberPermissions implements auth.MemberPermissions
type MockMemberPermissions struct {
	mock.Mock
}

func (m *MockMemberPermissions) ListByUser(ctx context.Context, userID uuid.UUID) ([]auth.Permission, error) {
	args := m.Called(ctx, userID)
	grants, _ := args.Get(0).([]auth.Permission)
	return grants, args.Error(1)
}

func (m *MockMemberPermissions) ListByUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) ([]auth.Permission, error) {
	args := m.Called(ctx, tx, userID)
	grants, _ := args.Get(0).([]auth.Permission)
	return grants, args.Error(1)
}

func (m *MockMemberPermissions) Grant(ctx context.Context, user *auth.User, permission auth.Permission) (*auth.MemberPermission, error) {
	args := m.Called(ctx, user, permission)
	record, _ := args.Get(0).(*auth.MemberPermission)
	return record, args.Error(1)
}

func (m *MockMemberPermissions) GrantTx(ctx context.Context, tx bun.IDB, user *auth.User, permission auth.Permission) (*auth.MemberPermission, error) {
	args := m.Called(ctx, tx, user, permission)
	record, _ := args.Get(0).(*auth.MemberPermission)
	return record, args.Error(1)
}

func (m *MockMemberPermissions) RevokeGrant(ctx context.Context, userID uuid.UUID, permission auth.Permission) error {
	args := m.Called(ctx, userID, permission)
	return args.Error(0)
}

func (m *MockMemberPermissions) RevokeGrantTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, permission auth.Permission) error {
	args := m.Called(ctx, tx, userID, permission)
	return args.Error(0)
}

// MockRepositoryManager implements auth.RepositoryManager
type MockRepositoryManager struct {
	mock.Mock
}

func (m *MockRepositoryManager) Validate() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockRepositoryManager) MustValidate() {
	m.Called()
}

func (m *MockRepositoryManager) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	args := m.Called(ctx, opts, f)
	return args.Error(0)
}

func (m *MockRepositoryManager) Users() auth.Users {
	args := m.Called()
	users, _ := args.Get(0).(auth.Users)
	return users
}

func (m *MockRepositoryManager) Accounts() auth.Accounts {
	args := m.Called()
	accounts, _ := args.Get(0).(auth.Accounts)
	return accounts
}

func (m *MockRepositoryManager) TeamInvites() auth.TeamInvites {
	args := m.Called()
	invites, _ := args.Get(0).(auth.TeamInvites)
	return invites
}

func (m *MockRepositoryManager) MemberPermissions() auth.MemberPermissions {
	args := m.Called()
	perms, _ := args.Get(0).(auth.MemberPermissions)
	return perms
}

// MockActivitySink implements auth.ActivitySink
type MockActivitySink struct {
	mock.Mock
}

func (m *MockActivitySink) Record(ctx context.Context, event auth.ActivityEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// memSessionStore is an in-memory SessionStore with the same contract as the
// persistent stores: a zero ttl updates claims in place without touching the
// expiry.
type memSessionStore struct {
	mu      sync.Mutex
	records map[string]memSessionRecord
}

type memSessionRecord struct {
	claims    auth.SessionClaims
	expiresAt time.Time
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{records: map[string]memSessionRecord{}}
}

func (s *memSessionStore) Get(ctx context.Context, sessionID string) (*auth.SessionClaims, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[sessionID]
	if !ok || time.Now().After(record.expiresAt) {
		return nil, auth.ErrSessionNotFound
	}

	claims := record.claims
	return &claims, nil
}

func (s *memSessionStore) Put(ctx context.Context, sessionID string, claims *auth.SessionClaims, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ttl <= 0 {
		record, ok := s.records[sessionID]
		if !ok {
			return auth.ErrSessionNotFound
		}
		record.claims = *claims
		s.records[sessionID] = record
		return nil
	}

	s.records[sessionID] = memSessionRecord{
		claims:    *claims,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

func (s *memSessionStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, sessionID)
	return nil
}

func (s *memSessionStore) expiry(sessionID string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[sessionID].expiresAt
}

// stubMessenger records outbound messages instead of delivering them.
type stubMessenger struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

type sentMessage struct {
	recipient string
	subject   string
	body      string
}

func (s *stubMessenger) Send(ctx context.Context, recipient, subject, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sentMessage{recipient: recipient, subject: subject, body: body})
	return nil
}

func (s *stubMessenger) sentTo(recipient string) []sentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []sentMessage
	for _, msg := range s.sent {
		if msg.recipient == recipient {
			out = append(out, msg)
		}
	}
	return out
}
