package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/c-pro/geche"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"palaver/internal/models"
	"palaver/internal/storage"
)

const (
	DefaultTokenExpiry = 24 * time.Hour

	// How long a verified identity may be served from cache. Presence
	// projection staleness within this window is harmless: the cache is
	// only consulted to establish who the caller is.
	identityCacheTTL = time.Minute
)

var (
	ErrUserExists = errors.New("email already in use")
)

type Config struct {
	Secret      string        `json:"secret"`
	TokenExpiry time.Duration `json:"tokenExpiry"`
}

func (c *Config) Validate() error {
	if c.Secret == "" {
		return errors.New("secret is required")
	}

	if c.TokenExpiry == 0 {
		c.TokenExpiry = DefaultTokenExpiry
	}

	return nil
}

// UserStore is the slice of the record store the auth service needs.
type UserStore interface {
	UpsertUser(rec storage.UserRecord) error
	GetUser(id string) (storage.UserRecord, error)
	FindUserByEmail(email string) (storage.UserRecord, error)
}

// Service issues and verifies bearer tokens for registered identities.
type Service struct {
	Config
	store UserStore
	users geche.Geche[string, models.User]
	now   func() time.Time
}

func NewService(ctx context.Context, config Config, store UserStore) (*Service, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Service{
		Config: config,
		store:  store,
		users:  geche.NewMapTTLCache[string, models.User](ctx, identityCacheTTL, 10*time.Second),
		now:    time.Now,
	}, nil
}

// Register creates a new identity and returns it with a fresh token.
func (s *Service) Register(name, email, password string) (models.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	if _, err := s.store.FindUserByEmail(email); err == nil {
		return models.User{}, "", ErrUserExists
	} else if !errors.Is(err, models.ErrNotFound) {
		return models.User{}, "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, "", fmt.Errorf("failed to hash password: %w", err)
	}

	user := models.User{
		ID:    uuid.NewString(),
		Name:  name,
		Email: email,
	}
	if err := s.store.UpsertUser(storage.UserRecord{User: user, PasswordHash: string(hash)}); err != nil {
		return models.User{}, "", err
	}

	token, err := s.mintToken(user.ID)
	if err != nil {
		return models.User{}, "", err
	}
	return user, token, nil
}

// Login checks credentials and returns the identity with a fresh token.
func (s *Service) Login(email, password string) (models.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	rec, err := s.store.FindUserByEmail(email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.User{}, "", fmt.Errorf("invalid credentials: %w", models.ErrUnauthorized)
		}
		return models.User{}, "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte(password)); err != nil {
		return models.User{}, "", fmt.Errorf("invalid credentials: %w", models.ErrUnauthorized)
	}

	token, err := s.mintToken(rec.User.ID)
	if err != nil {
		return models.User{}, "", err
	}
	return rec.User, token, nil
}

// Verify resolves a bearer token to the identity it was minted for.
// No session or room state is touched here; rejection happens before
// any registration with the gateway.
func (s *Service) Verify(token string) (models.User, error) {
	claims := jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.Secret), nil
	}, jwt.WithTimeFunc(func() time.Time { return s.now() }))
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return models.User{}, fmt.Errorf("invalid token: %w", models.ErrUnauthorized)
	}

	if user, err := s.users.Get(claims.Subject); err == nil {
		return user, nil
	}

	rec, err := s.store.GetUser(claims.Subject)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.User{}, fmt.Errorf("unknown identity: %w", models.ErrUnauthorized)
		}
		return models.User{}, err
	}

	s.users.Set(rec.User.ID, rec.User)
	return rec.User, nil
}

func (s *Service) mintToken(userID string) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.TokenExpiry)),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.Secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}
