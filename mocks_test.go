package auth_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	auth "github.com/eduquiz/go-auth"
	"github.com/eduquiz/go-auth/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

const testSigningKey = "test-signing-key-with-at-least-32-bytes"

// testConfig implements auth.Config
type testConfig struct {
	signingKey      string
	issuer          string
	audience        []string
	expiration      int
	baseURL         string
	lockoutAttempts int
	lockoutWindow   time.Duration
	passwordPolicy  bool
}

func newTestConfig() *testConfig {
	return &testConfig{
		signingKey: testSigningKey,
		issuer:     "eduquiz",
		audience:   []string{"eduquiz"},
		expiration: 24,
		baseURL:    "http://localhost:8080",
	}
}

func (c *testConfig) GetSigningKey() string           { return c.signingKey }
func (c *testConfig) GetSigningMethod() string        { return "HS256" }
func (c *testConfig) GetContextKey() string           { return "eduquiz_session" }
func (c *testConfig) GetTokenExpiration() int         { return c.expiration }
func (c *testConfig) GetTokenLookup() string          { return "" }
func (c *testConfig) GetAuthScheme() string           { return "" }
func (c *testConfig) GetIssuer() string               { return c.issuer }
func (c *testConfig) GetAudience() []string           { return c.audience }
func (c *testConfig) GetBaseURL() string              { return c.baseURL }
func (c *testConfig) GetSecureCookies() bool          { return false }
func (c *testConfig) GetPasswordPolicy() bool         { return c.passwordPolicy }
func (c *testConfig) GetLockoutAttempts() int         { return c.lockoutAttempts }
func (c *testConfig) GetLockoutWindow() time.Duration { return c.lockoutWindow }

// MockSetupMailer implements auth.SetupMailer
type MockSetupMailer struct {
	mock.Mock
}

func (m *MockSetupMailer) SendAccountSetupEmail(ctx context.Context, email, name, setupURL string) error {
	args := m.Called(ctx, email, name, setupURL)
	return args.Error(0)
}

// MockPrincipals implements auth.Principals
type MockPrincipals struct {
	mock.Mock
}

func (m *MockPrincipals) FindByEmail(ctx context.Context, kind auth.PrincipalKind, email string) (auth.Principal, error) {
	args := m.Called(ctx, kind, email)
	p, _ := args.Get(0).(auth.Principal)
	return p, args.Error(1)
}

func (m *MockPrincipals) FindByEmailTx(ctx context.Context, tx bun.IDB, kind auth.PrincipalKind, email string) (auth.Principal, error) {
	args := m.Called(ctx, tx, kind, email)
	p, _ := args.Get(0).(auth.Principal)
	return p, args.Error(1)
}

func (m *MockPrincipals) FindByID(ctx context.Context, kind auth.PrincipalKind, id uuid.UUID) (auth.Principal, error) {
	args := m.Called(ctx, kind, id)
	p, _ := args.Get(0).(auth.Principal)
	return p, args.Error(1)
}

func (m *MockPrincipals) FindForUpdateTx(ctx context.Context, tx bun.IDB, kind auth.PrincipalKind, id uuid.UUID) (auth.Principal, error) {
	args := m.Called(ctx, tx, kind, id)
	p, _ := args.Get(0).(auth.Principal)
	return p, args.Error(1)
}

func (m *MockPrincipals) List(ctx context.Context, kind auth.PrincipalKind) ([]auth.Principal, error) {
	args := m.Called(ctx, kind)
	list, _ := args.Get(0).([]auth.Principal)
	return list, args.Error(1)
}

func (m *MockPrincipals) EmailTaken(ctx context.Context, tx bun.IDB, kind auth.PrincipalKind, email string, exclude uuid.UUID) (bool, error) {
	args := m.Called(ctx, tx, kind, email, exclude)
	return args.Bool(0), args.Error(1)
}

func (m *MockPrincipals) CreateTx(ctx context.Context, tx bun.IDB, p auth.Principal) error {
	return m.Called(ctx, tx, p).Error(0)
}

func (m *MockPrincipals) UpdateProfileTx(ctx context.Context, tx bun.IDB, p auth.Principal) error {
	return m.Called(ctx, tx, p).Error(0)
}

func (m *MockPrincipals) ConsumeResetTokenTx(ctx context.Context, tx bun.IDB, kind auth.PrincipalKind, id uuid.UUID, digest, passwordHash string, at time.Time) (bool, error) {
	args := m.Called(ctx, tx, kind, id, digest, passwordHash, at)
	return args.Bool(0), args.Error(1)
}

func (m *MockPrincipals) TrackLoginAttemptTx(ctx context.Context, tx bun.IDB, p auth.Principal, success bool, at time.Time) error {
	return m.Called(ctx, tx, p, success, at).Error(0)
}

func (m *MockPrincipals) DeleteTx(ctx context.Context, tx bun.IDB, kind auth.PrincipalKind, id uuid.UUID) error {
	return m.Called(ctx, tx, kind, id).Error(0)
}

// MockRepositoryManager runs transactions inline against an empty bun.Tx
type MockRepositoryManager struct {
	principals *MockPrincipals
}

func newMockRepo() *MockRepositoryManager {
	return &MockRepositoryManager{principals: &MockPrincipals{}}
}

func (m *MockRepositoryManager) Validate() error { return nil }
func (m *MockRepositoryManager) MustValidate()   {}

func (m *MockRepositoryManager) RunInTx(ctx context.Context, _ *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	return f(ctx, bun.Tx{})
}

func (m *MockRepositoryManager) Principals() auth.Principals {
	return m.principals
}

// eventRecorder collects activity events
type eventRecorder struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

func (r *eventRecorder) Record(_ context.Context, event auth.ActivityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *eventRecorder) ofType(t auth.ActivityEventType) []auth.ActivityEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []auth.ActivityEvent
	for _, e := range r.events {
		if e.EventType == t {
			out = append(out, e)
		}
	}
	return out
}

// newTestRepo opens a private in-memory database with the schema applied
func newTestRepo(t *testing.T) auth.RepositoryManager {
	t.Helper()
	ctx := context.Background()

	db, err := repository.Open(ctx, repository.Options{Driver: repository.DriverSQLite, DSN: "file::memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = repository.Migrate(ctx, db)
	require.NoError(t, err)

	return repository.NewRepositoryManager(db)
}

var (
	hashMu    sync.Mutex
	hashCache = map[string]string{}
)

// hashOf caches bcrypt hashes across tests
func hashOf(t *testing.T, password string) string {
	t.Helper()
	hashMu.Lock()
	defer hashMu.Unlock()

	if h, ok := hashCache[password]; ok {
		return h
	}
	h, err := auth.HashPassword(password)
	require.NoError(t, err)
	hashCache[password] = h
	return h
}

type seedOpts struct {
	inactive bool
	token    string
	expiry   time.Time
}

// seedPrincipal stores a principal with the given password
func seedPrincipal(t *testing.T, repo auth.RepositoryManager, kind auth.PrincipalKind, email, password string, opts seedOpts) auth.Principal {
	t.Helper()

	p, err := auth.NewPrincipal(kind, email, "Test", kind.Label())
	require.NoError(t, err)

	setter := auth.Mutate(p).
		PasswordHash(hashOf(t, password)).
		Active(!opts.inactive)
	if opts.token != "" {
		setter.ResetToken(auth.DigestToken(opts.token), opts.expiry)
	}

	err = repo.RunInTx(context.Background(), nil, func(ctx context.Context, tx bun.Tx) error {
		return repo.Principals().CreateTx(ctx, tx, p)
	})
	require.NoError(t, err)
	return p
}

// fixedClock returns a clock pinned to t
func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
