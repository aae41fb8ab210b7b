package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"certifai/api/internal/anchor"
	"certifai/api/internal/auth"
	"certifai/api/internal/config"
	"certifai/api/internal/draft"
	"certifai/api/internal/email"
	"certifai/api/internal/export"
	"certifai/api/internal/gitrepo"
	"certifai/api/internal/search"
	"certifai/api/internal/session"
	"certifai/api/internal/store"
	"certifai/api/internal/util"
	"go.uber.org/zap"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Email        string
	JTI          string
	ExpiresAt    time.Time
}

type dataStore interface {
	GetUserByID(context.Context, string) (store.User, error)
	GetUserByEmail(context.Context, string) (store.User, error)
	CreateDocument(context.Context, store.Document, store.AppendVersionInput) (store.Version, error)
	GetDocument(context.Context, string) (store.Document, error)
	ListDocumentsForUser(context.Context, string) ([]store.Document, error)
	UpdateDocumentTitle(context.Context, string, string) error
	UpdateDocumentVisibility(context.Context, string, string) error
	AddEditor(context.Context, string, string) error
	RemoveEditor(context.Context, string, string) error
	ListEditors(context.Context, string) ([]store.Editor, error)
	AppendVersion(context.Context, store.AppendVersionInput) (store.Version, error)
	ListVersions(context.Context, string) ([]store.Version, error)
	GetVersion(context.Context, string, int) (store.Version, error)
	AttachVersionTx(context.Context, string, int, string) error
	Ping(context.Context) error
}

// sessionStore holds refresh tokens and the access token denylist. Both the
// PostgreSQL store and the Redis store satisfy it.
type sessionStore interface {
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (store.User, error)
	RevokeRefreshSession(context.Context, string) error
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
}

type gitService interface {
	CommitVersion(string, []byte, gitrepo.Author, string) (gitrepo.CommitInfo, error)
	ReadPayload(string, string) ([]byte, error)
	TagVersion(string, string, string, string) error
}

type blobStore interface {
	Put(context.Context, string, []byte, string) error
}

type searchService interface {
	Search(context.Context, search.Query) search.Response
	IndexDocument(search.DocumentRecord)
}

type draftService interface {
	Generate(context.Context, draft.Request) (draft.Result, error)
}

type exportService interface {
	Export(context.Context, export.Request) (*export.Result, error)
}

type accountService interface {
	Register(context.Context, string, string, string) (store.User, error)
	Login(context.Context, string, string) (store.User, error)
	RequestPasswordReset(context.Context, string) (string, error)
	ResetPassword(context.Context, string, string) error
}

type notifier interface {
	IsConfigured() bool
	SendDocumentSignedEmail(string, email.DocumentSignedData) error
	DocumentURL(string) string
}

// Dependencies wires the service to its collaborators. Blob, Search, Anchor,
// Drafts, Exporter and Mailer are optional; leave them nil to disable the
// feature.
type Dependencies struct {
	Store    dataStore
	Sessions sessionStore
	Git      gitService
	Blob     blobStore
	Search   searchService
	Anchor   anchor.Anchorer
	Drafts   draftService
	Exporter exportService
	Accounts accountService
	Mailer   notifier
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	git      gitService
	blob     blobStore
	search   searchService
	anchor   anchor.Anchorer
	drafts   draftService
	exporter exportService
	accounts accountService
	mailer   notifier
	logger   *zap.Logger
	now      func() time.Time
}

func New(cfg config.Config, deps Dependencies, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	sessions := deps.Sessions
	if sessions == nil {
		if fallback, ok := deps.Store.(sessionStore); ok {
			sessions = fallback
		}
	}
	return &Service{
		cfg:      cfg,
		store:    deps.Store,
		sessions: sessions,
		git:      deps.Git,
		blob:     deps.Blob,
		search:   deps.Search,
		anchor:   deps.Anchor,
		drafts:   deps.Drafts,
		exporter: deps.Exporter,
		accounts: deps.Accounts,
		mailer:   deps.Mailer,
		logger:   logger.With(zap.String("component", "app")),
		now:      time.Now,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// EmailConfigured reports whether outbound mail is enabled. Reset tokens are
// returned to the caller when it is not.
func (s *Service) EmailConfigured() bool {
	return s.mailer != nil && s.mailer.IsConfigured()
}

func (s *Service) requireAccounts() (accountService, error) {
	if s.accounts == nil {
		return nil, domainError(http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "Authentication service not configured", nil)
	}
	return s.accounts, nil
}

func (s *Service) Register(ctx context.Context, email, password, fullName, fingerprint string) (Session, error) {
	accounts, err := s.requireAccounts()
	if err != nil {
		return Session{}, err
	}
	user, err := accounts.Register(ctx, email, password, fullName)
	if err != nil {
		return Session{}, err
	}
	s.logger.Info("user registered", zap.String("user_id", user.ID))
	return s.CreateSession(ctx, user, fingerprint)
}

func (s *Service) Login(ctx context.Context, email, password, fingerprint string) (Session, error) {
	accounts, err := s.requireAccounts()
	if err != nil {
		return Session{}, err
	}
	user, err := accounts.Login(ctx, email, password)
	if err != nil {
		return Session{}, err
	}
	return s.CreateSession(ctx, user, fingerprint)
}

func (s *Service) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	accounts, err := s.requireAccounts()
	if err != nil {
		return "", err
	}
	return accounts.RequestPasswordReset(ctx, email)
}

func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	accounts, err := s.requireAccounts()
	if err != nil {
		return err
	}
	return accounts.ResetPassword(ctx, token, newPassword)
}

func (s *Service) Refresh(ctx context.Context, refreshToken, fingerprint string) (Session, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return Session{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "refreshToken is required", nil)
	}
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || errors.Is(err, session.ErrSessionNotFound) {
			return Session{}, domainError(http.StatusUnauthorized, "INVALID_REFRESH_TOKEN", "Refresh token is invalid or expired", nil)
		}
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.CreateSession(ctx, user, fingerprint)
}

// CreateSession issues an access token and a fresh refresh token for user.
// A non-empty fingerprint is bound into the access token.
func (s *Service) CreateSession(ctx context.Context, user store.User, fingerprint string) (Session, error) {
	now := s.now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	claims := auth.Claims{
		Sub:   user.ID,
		Name:  user.FullName,
		Email: user.Email,
		JTI:   jti,
		Exp:   expiresAt.Unix(),
		Iat:   now.Unix(),
	}
	if fp := strings.TrimSpace(fingerprint); fp != "" {
		claims.Fingerprint = auth.HashToken(fp)
	}
	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), claims)
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, now.Add(s.cfg.RefreshTTL)); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.FullName,
		Email:        user.Email,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

// SessionFromToken validates an access token, its device binding and the
// revocation list, then loads the user it names.
func (s *Service) SessionFromToken(ctx context.Context, token, fingerprint string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	if err := auth.CheckFingerprint(claims, fingerprint); err != nil {
		return Session{}, err
	}
	revoked, err := s.sessions.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, auth.ErrInvalidToken
		}
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.FullName,
		Email:     user.Email,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, current Session, refreshToken string) error {
	if current.JTI != "" {
		if err := s.sessions.RevokeAccessToken(ctx, current.JTI, current.ExpiresAt); err != nil {
			return err
		}
	}
	if refreshToken = strings.TrimSpace(refreshToken); refreshToken != "" {
		if err := s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) CurrentUser(ctx context.Context, current Session) (map[string]any, error) {
	user, err := s.store.GetUserByID(ctx, current.UserID)
	if err != nil {
		return nil, err
	}
	return userPayload(user), nil
}

func userPayload(user store.User) map[string]any {
	return map[string]any{
		"id":          user.ID,
		"email":       user.Email,
		"fullName":    user.FullName,
		"hasPassword": user.HasPassword(),
		"createdAt":   user.CreatedAt,
	}
}

func sessionPayload(current Session) map[string]any {
	return map[string]any{
		"accessToken":  current.Token,
		"refreshToken": current.RefreshToken,
		"userId":       current.UserID,
		"userName":     current.UserName,
		"email":        current.Email,
		"expiresAt":    current.ExpiresAt.Unix(),
	}
}
