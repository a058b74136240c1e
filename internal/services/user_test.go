package services

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/goblog/apiserver/internal/mail"
	"github.com/goblog/apiserver/internal/store"
	"github.com/goblog/apiserver/internal/token"
	"github.com/goblog/apiserver/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memUserRepo is an in-memory UserRepository for tests.
type memUserRepo struct {
	mu     sync.Mutex
	nextID int
	users  map[int]types.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{nextID: 1, users: map[int]types.User{}}
}

func (r *memUserRepo) GetByID(ctx context.Context, id int) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (r *memUserRepo) GetByEmail(ctx context.Context, email string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Email == email {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *memUserRepo) Create(ctx context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == user.Email {
			return types.User{}, store.ErrDuplicate
		}
	}
	user.ID = r.nextID
	user.CreatedAt = time.Now()
	r.nextID++
	r.users[user.ID] = user
	return user, nil
}

func (r *memUserRepo) Activate(ctx context.Context, code string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if code == "" {
		return types.User{}, store.ErrNotFound
	}
	for id, user := range r.users {
		if user.ActivationCode == code {
			user.ActivationCode = ""
			user.IsActive = true
			r.users[id] = user
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

// chanMailer records sent messages on a channel so tests can wait for the
// background dispatch.
type chanMailer struct {
	sent chan mail.Message
}

func newChanMailer() *chanMailer {
	return &chanMailer{sent: make(chan mail.Message, 8)}
}

func (m *chanMailer) Send(ctx context.Context, msg mail.Message) error {
	m.sent <- msg
	return nil
}

func (m *chanMailer) wait(t *testing.T) mail.Message {
	t.Helper()
	select {
	case msg := <-m.sent:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for mail dispatch")
		return mail.Message{}
	}
}

func newTestUserService(repo UserRepository, mailer mail.Mailer) *UserService {
	return NewUserService(
		repo,
		mailer,
		token.NewIssuer("access-secret", "HS256", 30),
		token.NewIssuer("refresh-secret", "HS256", 60),
		token.NewVerifier("refresh-secret"),
		"http://localhost:8080",
		zerolog.Nop(),
	)
}

func TestRegisterCreatesPendingAccount(t *testing.T) {
	repo := newMemUserRepo()
	mailer := newChanMailer()
	svc := newTestUserService(repo, mailer)

	user, err := svc.Register(context.Background(), "alice@example.com", "Alice", "pw123")
	require.NoError(t, err)

	assert.False(t, user.IsActive)
	assert.Len(t, user.ActivationCode, activationCodeLength)
	assert.NotEqual(t, "pw123", user.PasswordHash)

	msg := mailer.wait(t)
	assert.Equal(t, "alice@example.com", msg.To)
	assert.Contains(t, msg.Body, "http://localhost:8080/activate/"+user.ActivationCode+"/")
}

func TestRegisterEmailTaken(t *testing.T) {
	repo := newMemUserRepo()
	mailer := newChanMailer()
	svc := newTestUserService(repo, mailer)

	_, err := svc.Register(context.Background(), "alice@example.com", "Alice", "pw123")
	require.NoError(t, err)
	mailer.wait(t)

	_, err = svc.Register(context.Background(), "alice@example.com", "Alice Again", "other")
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestActivateIsSingleUse(t *testing.T) {
	repo := newMemUserRepo()
	mailer := newChanMailer()
	svc := newTestUserService(repo, mailer)

	user, err := svc.Register(context.Background(), "alice@example.com", "Alice", "pw123")
	require.NoError(t, err)
	mailer.wait(t)

	activated, err := svc.Activate(context.Background(), user.ActivationCode)
	require.NoError(t, err)
	assert.True(t, activated.IsActive)
	assert.Empty(t, activated.ActivationCode)

	// Redeeming again is indistinguishable from a code that never existed.
	_, err = svc.Activate(context.Background(), user.ActivationCode)
	assert.ErrorIs(t, err, ErrCodeNotFound)
}

func TestActivateUnknownCode(t *testing.T) {
	svc := newTestUserService(newMemUserRepo(), newChanMailer())

	_, err := svc.Activate(context.Background(), "ZZZZZZZZ")
	assert.ErrorIs(t, err, ErrCodeNotFound)
}

func TestLoginRequiresActivation(t *testing.T) {
	repo := newMemUserRepo()
	mailer := newChanMailer()
	svc := newTestUserService(repo, mailer)

	user, err := svc.Register(context.Background(), "alice@example.com", "Alice", "pw123")
	require.NoError(t, err)
	mailer.wait(t)

	// Correct credentials, but the account is still pending.
	_, err = svc.Login(context.Background(), "alice@example.com", "pw123")
	assert.ErrorIs(t, err, ErrAccountInactive)

	_, err = svc.Activate(context.Background(), user.ActivationCode)
	require.NoError(t, err)

	pair, err := svc.Login(context.Background(), "alice@example.com", "pw123")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)

	subject, err := token.NewVerifier("access-secret").Verify(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(user.ID), subject)
}

func TestLoginWrongCredentials(t *testing.T) {
	repo := newMemUserRepo()
	mailer := newChanMailer()
	svc := newTestUserService(repo, mailer)

	user, err := svc.Register(context.Background(), "alice@example.com", "Alice", "pw123")
	require.NoError(t, err)
	mailer.wait(t)
	_, err = svc.Activate(context.Background(), user.ActivationCode)
	require.NoError(t, err)

	_, err = svc.Login(context.Background(), "alice@example.com", "nope")
	assert.ErrorIs(t, err, ErrWrongPassword)

	// Unknown email comes back the same as a bad password.
	_, err = svc.Login(context.Background(), "nobody@example.com", "pw123")
	assert.ErrorIs(t, err, ErrWrongPassword)
}

func TestRefreshExchangesTokenPair(t *testing.T) {
	repo := newMemUserRepo()
	mailer := newChanMailer()
	svc := newTestUserService(repo, mailer)

	user, err := svc.Register(context.Background(), "alice@example.com", "Alice", "pw123")
	require.NoError(t, err)
	mailer.wait(t)
	_, err = svc.Activate(context.Background(), user.ActivationCode)
	require.NoError(t, err)

	pair, err := svc.Login(context.Background(), "alice@example.com", "pw123")
	require.NoError(t, err)

	fresh, err := svc.Refresh(context.Background(), pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, fresh.AccessToken)

	// An access token must not pass as a refresh token.
	_, err = svc.Refresh(context.Background(), pair.AccessToken)
	assert.ErrorIs(t, err, token.ErrInvalidToken)
}

func TestRegisterSurvivesMailFailure(t *testing.T) {
	repo := newMemUserRepo()
	svc := newTestUserService(repo, failingMailer{})

	user, err := svc.Register(context.Background(), "alice@example.com", "Alice", "pw123")
	require.NoError(t, err)

	// The account stays pending with its code intact; no retry happens.
	stored, err := repo.GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)
	assert.Len(t, stored.ActivationCode, activationCodeLength)
}

type failingMailer struct{}

func (failingMailer) Send(ctx context.Context, msg mail.Message) error {
	return context.DeadlineExceeded
}

func TestRandomCodeShape(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 32; i++ {
		code, err := randomCode(activationCodeLength)
		require.NoError(t, err)
		require.Len(t, code, activationCodeLength)
		for _, r := range code {
			assert.Contains(t, activationCodeCharset, string(r))
		}
		seen[code] = true
	}
	assert.Greater(t, len(seen), 1)
}
