package authsvc

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/Paulygold/task-flow-manager/internal/domain"
	"github.com/Paulygold/task-flow-manager/internal/events"
	"github.com/Paulygold/task-flow-manager/internal/repo"
)

const (
	DefaultAccessTTL         = 15 * time.Minute
	DefaultRefreshTTL        = 30 * 24 * time.Hour
	DefaultMinPasswordLength = 8
	DefaultIssuer            = "taskflow"
)

type Config struct {
	Secret            string
	Issuer            string
	AccessTTL         time.Duration
	RefreshTTL        time.Duration
	MinPasswordLength int
	BcryptCost        int
}

func (c Config) withDefaults() Config {
	if c.Issuer == "" {
		c.Issuer = DefaultIssuer
	}
	if c.AccessTTL <= 0 {
		c.AccessTTL = DefaultAccessTTL
	}
	if c.RefreshTTL <= 0 {
		c.RefreshTTL = DefaultRefreshTTL
	}
	if c.MinPasswordLength <= 0 {
		c.MinPasswordLength = DefaultMinPasswordLength
	}
	if c.BcryptCost == 0 {
		c.BcryptCost = bcrypt.DefaultCost
	}
	return c
}

// Service issues and verifies sessions against the credential store.
type Service struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config Config
	Logger *slog.Logger
	Now    func() time.Time
}

func New(db *sql.DB, cfg Config, logger *slog.Logger) Service {
	if logger == nil {
		logger = slog.Default()
	}
	return Service{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{},
		Config: cfg.withDefaults(),
		Logger: logger,
		Now:    time.Now,
	}
}

func (s Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s Service) eventWriter() events.Writer {
	w := s.Events
	if w.Now == nil {
		w.Now = s.now
	}
	return w
}

func (s Service) cfg() Config {
	return s.Config.withDefaults()
}

type claims struct {
	jwt.RegisteredClaims
}

func normalizeEmail(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", domain.Required("email")
	}
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Address != raw {
		return "", domain.ValidationError{Field: "email", Reason: "malformed address"}
	}
	return strings.ToLower(addr.Address), nil
}

// SignUp creates the actor and its credential in one transaction; the store
// adds the profile and default role. The new account is signed in.
func (s Service) SignUp(ctx context.Context, email, password, displayName string) (domain.Session, error) {
	cfg := s.cfg()
	email, err := normalizeEmail(email)
	if err != nil {
		return domain.Session{}, err
	}
	if len(password) < cfg.MinPasswordLength {
		return domain.Session{}, fmt.Errorf("%w: at least %d characters required", domain.ErrWeakPassword, cfg.MinPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cfg.BcryptCost)
	if err != nil {
		return domain.Session{}, fmt.Errorf("hash password: %w", err)
	}
	now := s.now().UTC()
	actor := domain.Actor{ID: uuid.NewString(), Email: email, CreatedAt: now.Format(time.RFC3339)}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Session{}, err
	}
	defer tx.Rollback()
	if err := s.Repo.InsertActor(ctx, tx, actor, strings.TrimSpace(displayName)); err != nil {
		return domain.Session{}, err
	}
	if err := s.Repo.UpsertCredential(ctx, tx, actor.ID, string(hash), actor.CreatedAt); err != nil {
		return domain.Session{}, fmt.Errorf("store credential: %w", err)
	}
	if err := s.eventWriter().Append(ctx, tx, "account.signup", "actor", actor.ID, actor.ID, events.Payload{"email": email}); err != nil {
		return domain.Session{}, err
	}
	session, err := s.issue(ctx, tx, actor, now)
	if err != nil {
		return domain.Session{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Session{}, err
	}
	s.Logger.InfoContext(ctx, "account created", "actor", actor.ID)
	return session, nil
}

var (
	dummyOnce sync.Once
	dummyHash []byte
)

// burnCompare spends a bcrypt comparison so unknown emails take as long as
// wrong passwords.
func burnCompare(password string) {
	dummyOnce.Do(func() {
		dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcrypt.DefaultCost)
	})
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
}

// SignInWithPassword reports ErrInvalidCredentials for an unknown email and a
// wrong password alike.
func (s Service) SignInWithPassword(ctx context.Context, email, password string) (domain.Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		burnCompare(password)
		return domain.Session{}, domain.ErrInvalidCredentials
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Session{}, err
	}
	defer tx.Rollback()
	actor, err := s.Repo.GetActorByEmail(ctx, tx, email)
	if errors.Is(err, repo.ErrNotFound) {
		burnCompare(password)
		return domain.Session{}, domain.ErrInvalidCredentials
	}
	if err != nil {
		return domain.Session{}, err
	}
	hash, err := s.Repo.GetCredential(ctx, tx, actor.ID)
	if errors.Is(err, repo.ErrNotFound) {
		burnCompare(password)
		return domain.Session{}, domain.ErrInvalidCredentials
	}
	if err != nil {
		return domain.Session{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		s.Logger.DebugContext(ctx, "password mismatch", "actor", actor.ID)
		return domain.Session{}, domain.ErrInvalidCredentials
	}
	session, err := s.issue(ctx, tx, actor, s.now().UTC())
	if err != nil {
		return domain.Session{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Session{}, err
	}
	return session, nil
}

// Refresh rotates a live refresh token. The presented token is revoked and a
// new pair is issued.
func (s Service) Refresh(ctx context.Context, refreshToken string) (domain.Session, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return domain.Session{}, domain.ErrUnauthenticated
	}
	now := s.now().UTC()
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Session{}, err
	}
	defer tx.Rollback()
	hash := repo.HashToken(refreshToken)
	stored, err := s.Repo.GetRefreshToken(ctx, tx, hash)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Session{}, domain.ErrUnauthenticated
	}
	if err != nil {
		return domain.Session{}, err
	}
	if stored.RevokedAt != "" {
		// A rotated token came back: treat every live token of the account
		// as leaked.
		if err := s.Repo.RevokeActorRefreshTokens(ctx, tx, stored.ActorID, now.Format(time.RFC3339)); err != nil {
			return domain.Session{}, err
		}
		if err := tx.Commit(); err != nil {
			return domain.Session{}, err
		}
		s.Logger.WarnContext(ctx, "revoked refresh token reused", "actor", stored.ActorID)
		return domain.Session{}, domain.ErrUnauthenticated
	}
	if expired(stored.ExpiresAt, now) {
		return domain.Session{}, domain.ErrUnauthenticated
	}
	if err := s.Repo.RevokeRefreshToken(ctx, tx, hash, now.Format(time.RFC3339)); err != nil {
		return domain.Session{}, err
	}
	actor, err := s.Repo.GetActor(ctx, tx, stored.ActorID)
	if err != nil {
		return domain.Session{}, err
	}
	session, err := s.issue(ctx, tx, actor, now)
	if err != nil {
		return domain.Session{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Session{}, err
	}
	return session, nil
}

// SignOut revokes the refresh token. Unknown tokens are ignored.
func (s Service) SignOut(ctx context.Context, refreshToken string) error {
	if strings.TrimSpace(refreshToken) == "" {
		return nil
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	err = s.Repo.RevokeRefreshToken(ctx, tx, repo.HashToken(refreshToken), s.now().UTC().Format(time.RFC3339))
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return err
	}
	return tx.Commit()
}

// VerifyAccessToken returns the actor id carried in the subject claim.
func (s Service) VerifyAccessToken(token string) (string, error) {
	cfg := s.cfg()
	if strings.TrimSpace(cfg.Secret) == "" {
		return "", errors.New("jwt secret not configured")
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	c := &claims{}
	parsed, err := parser.ParseWithClaims(token, c, func(t *jwt.Token) (any, error) {
		return []byte(cfg.Secret), nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrUnauthenticated, err)
	}
	if !parsed.Valid || c.Subject == "" {
		return "", domain.ErrUnauthenticated
	}
	return c.Subject, nil
}

func (s Service) issue(ctx context.Context, tx *sql.Tx, actor domain.Actor, now time.Time) (domain.Session, error) {
	cfg := s.cfg()
	if strings.TrimSpace(cfg.Secret) == "" {
		return domain.Session{}, errors.New("jwt secret not configured")
	}
	expires := now.Add(cfg.AccessTTL)
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   actor.ID,
		Issuer:    cfg.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
		ID:        uuid.NewString(),
	}}).SignedString([]byte(cfg.Secret))
	if err != nil {
		return domain.Session{}, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := newRefreshToken()
	if err != nil {
		return domain.Session{}, err
	}
	if err := s.Repo.InsertRefreshToken(ctx, tx, repo.RefreshToken{
		TokenHash: repo.HashToken(refresh),
		ActorID:   actor.ID,
		CreatedAt: now.Format(time.RFC3339),
		ExpiresAt: now.Add(cfg.RefreshTTL).Format(time.RFC3339),
	}); err != nil {
		return domain.Session{}, fmt.Errorf("store refresh token: %w", err)
	}
	return domain.Session{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    expires,
		User:         actor,
	}, nil
}

func newRefreshToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func expired(ts string, now time.Time) bool {
	t, err := time.Parse(time.RFC3339, ts)
	return err != nil || !now.Before(t)
}
