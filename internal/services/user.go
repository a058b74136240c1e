package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/goblog/apiserver/internal/mail"
	"github.com/goblog/apiserver/internal/store"
	"github.com/goblog/apiserver/internal/token"
	"github.com/goblog/apiserver/types"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

const (
	activationCodeLength  = 8
	activationCodeCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	mailDispatchTimeout = 30 * time.Second
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	Activate(ctx context.Context, code string) (types.User, error)
}

// TokenPair is the credential pair handed to a client after login.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// UserService drives the account lifecycle:
// register (pending) -> activate -> login -> token pair.
type UserService struct {
	repo            UserRepository
	mailer          mail.Mailer
	accessIssuer    *token.Issuer
	refreshIssuer   *token.Issuer
	refreshVerifier *token.Verifier
	baseURL         string
	logger          zerolog.Logger
}

func NewUserService(
	repo UserRepository,
	mailer mail.Mailer,
	accessIssuer *token.Issuer,
	refreshIssuer *token.Issuer,
	refreshVerifier *token.Verifier,
	baseURL string,
	logger zerolog.Logger,
) *UserService {
	return &UserService{
		repo:            repo,
		mailer:          mailer,
		accessIssuer:    accessIssuer,
		refreshIssuer:   refreshIssuer,
		refreshVerifier: refreshVerifier,
		baseURL:         baseURL,
		logger:          logger,
	}
}

// Register creates a pending account and dispatches the activation email in
// the background. The account is stored before the email leaves the process;
// a delivery failure leaves it pending with no retry.
func (s *UserService) Register(ctx context.Context, email, name, password string) (types.User, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return types.User{}, err
	}

	code, err := randomCode(activationCodeLength)
	if err != nil {
		return types.User{}, err
	}

	user, err := s.repo.Create(ctx, types.User{
		Email:          email,
		Name:           name,
		PasswordHash:   string(hashed),
		IsActive:       false,
		ActivationCode: code,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return types.User{}, ErrEmailTaken
		}
		return types.User{}, err
	}

	go s.dispatchActivationMail(user.Email, code)

	return user, nil
}

// Activate redeems an activation code, flipping the account to active and
// clearing the code. Unknown and already-used codes are indistinguishable.
func (s *UserService) Activate(ctx context.Context, code string) (types.User, error) {
	user, err := s.repo.Activate(ctx, code)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrCodeNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

// Login verifies credentials and issues a token pair. An inactive account is
// refused even with the correct password.
func (s *UserService) Login(ctx context.Context, email, password string) (TokenPair, error) {
	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return TokenPair{}, ErrWrongPassword
		}
		return TokenPair{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return TokenPair{}, ErrWrongPassword
	}

	if !user.IsActive {
		return TokenPair{}, ErrAccountInactive
	}

	return s.issuePair(user.ID)
}

// Refresh exchanges a valid refresh token for a new pair.
func (s *UserService) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	subject, err := s.refreshVerifier.Verify(refreshToken)
	if err != nil {
		return TokenPair{}, err
	}

	id, err := strconv.Atoi(subject)
	if err != nil {
		return TokenPair{}, token.ErrInvalidToken
	}

	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return TokenPair{}, err
	}

	return s.issuePair(user.ID)
}

// GetByID resolves a user id to its record.
func (s *UserService) GetByID(ctx context.Context, id int) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *UserService) issuePair(userID int) (TokenPair, error) {
	subject := strconv.Itoa(userID)
	access, err := s.accessIssuer.Issue(subject)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.refreshIssuer.Issue(subject)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// dispatchActivationMail runs detached from the request that triggered it;
// failures are logged and swallowed.
func (s *UserService) dispatchActivationMail(email, code string) {
	ctx, cancel := context.WithTimeout(context.Background(), mailDispatchTimeout)
	defer cancel()

	msg := mail.Message{
		To:      email,
		Subject: "Account activation",
		Body:    fmt.Sprintf("To activate your account, follow the link: %s/activate/%s/", s.baseURL, code),
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		s.logger.Error().Err(err).Str("to", email).Msg("activation mail dispatch failed")
	}
}

func randomCode(length int) (string, error) {
	max := big.NewInt(int64(len(activationCodeCharset)))
	buf := make([]byte, length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = activationCodeCharset[n.Int64()]
	}
	return string(buf), nil
}
