package app

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"airwaves/api/internal/auth"
	"airwaves/api/internal/config"
	"airwaves/api/internal/rbac"
	"airwaves/api/internal/registry"
	"airwaves/api/internal/repair"
	"airwaves/api/internal/search"
	"airwaves/api/internal/store"
	"airwaves/api/internal/username"
)

// Session is the caller identity carried by a verified bearer token.
type Session struct {
	AccountID string
	Email     string
	Role      string
}

type pinger interface {
	Ping(ctx context.Context) error
}

type directory interface {
	Search(ctx context.Context, q search.Query) search.Response
}

type runHistory interface {
	History(ctx context.Context, task string, limit int) ([]repair.Tally, error)
}

type Service struct {
	cfg      config.Config
	store    pinger
	registry *registry.Registry
	repairs  *repair.Runner
	search   directory
	runs     runHistory
	logger   *zap.Logger
}

// Deps are the collaborators of a Service. Search and Runs may be nil.
type Deps struct {
	Store    pinger
	Registry *registry.Registry
	Repairs  *repair.Runner
	Search   directory
	Runs     runHistory
	Logger   *zap.Logger
}

func New(cfg config.Config, deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		cfg:      cfg,
		store:    deps.Store,
		registry: deps.Registry,
		repairs:  deps.Repairs,
		search:   deps.Search,
		runs:     deps.Runs,
		logger:   logger,
	}
}

// Ping checks the health of the registry store.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) SessionFromToken(token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	return Session{
		AccountID: claims.Subject,
		Email:     claims.Email,
		Role:      claims.Role,
	}, nil
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

// InternalTokenValid reports whether token matches the configured internal
// service token. An unset token disables the internal routes.
func (s *Service) InternalTokenValid(token string) bool {
	return secretMatches(s.cfg.InternalToken, token)
}

// RepairSecretValid reports whether token matches the repair secret.
func (s *Service) RepairSecretValid(token string) bool {
	return secretMatches(s.cfg.RepairSecret, token)
}

func secretMatches(expected, presented string) bool {
	if expected == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(presented)) == 1
}

func (s *Service) RegisterPendingProfile(ctx context.Context, session Session, in registry.RegisterInput) (registry.Registration, error) {
	in.CreatedBy = session.AccountID
	return s.registry.Register(ctx, in)
}

// ReserveUsername is the self-service registration path. No staff member
// is recorded as the creator.
func (s *Service) ReserveUsername(ctx context.Context, in registry.RegisterInput) (registry.Registration, error) {
	in.CreatedBy = ""
	return s.registry.Register(ctx, in)
}

func (s *Service) ClaimProfile(ctx context.Context, profileID, accountID string) (store.DJProfile, error) {
	return s.registry.Promote(ctx, profileID, accountID)
}

func (s *Service) UpdatePendingProfile(ctx context.Context, profileID string, update store.DJProfile) (store.PendingProfile, error) {
	return s.registry.UpdateProfile(ctx, profileID, update)
}

func (s *Service) DeletePendingProfile(ctx context.Context, profileID string) (registry.ReleaseResult, error) {
	return s.registry.Release(ctx, profileID)
}

func (s *Service) GetPendingProfile(ctx context.Context, profileID string) (store.PendingProfile, error) {
	return s.registry.GetPendingProfile(ctx, profileID)
}

func (s *Service) ListPendingProfiles(ctx context.Context, status, afterID string, limit int) (map[string]any, error) {
	items, err := s.registry.ListPendingProfiles(ctx, status, afterID, limit)
	if err != nil {
		return nil, err
	}
	next := ""
	if len(items) > 0 && len(items) == effectiveLimit(limit) {
		next = items[len(items)-1].ID
	}
	return map[string]any{"profiles": items, "nextAfter": next}, nil
}

func effectiveLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 100
	}
	return limit
}

// Availability classifies a display name for email. Email may be empty.
func (s *Service) Availability(ctx context.Context, display, email string) (map[string]any, error) {
	display = strings.TrimSpace(display)
	if display == "" {
		return nil, domainError(http.StatusBadRequest, registry.CodeInvalidUsername, "username is required", nil)
	}
	key, c, err := s.registry.ClassifyUsername(ctx, display, strings.TrimSpace(email))
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"username":     display,
		"canonicalKey": key,
		"valid":        username.ValidDisplayName(display),
		"status":       c.Status,
		"available":    c.Status == registry.Free || c.Status == registry.ReservedForThisEmail,
	}, nil
}

func (s *Service) SearchUsernames(ctx context.Context, q search.Query) (search.Response, error) {
	if s.search == nil {
		return search.Response{}, domainError(http.StatusServiceUnavailable, "SEARCH_UNAVAILABLE", "Directory search not configured", nil)
	}
	return s.search.Search(ctx, q), nil
}

func (s *Service) RepairTasks() []repair.Task {
	return repair.Tasks()
}

func (s *Service) RunRepair(ctx context.Context, name string) (repair.Tally, error) {
	return s.repairs.Run(ctx, name)
}

func (s *Service) RunAllRepairs(ctx context.Context) ([]repair.Tally, error) {
	return s.repairs.RunAll(ctx)
}

func (s *Service) RepairHistory(ctx context.Context, task string, limit int) ([]repair.Tally, error) {
	if _, ok := repair.Lookup(task); !ok {
		return nil, repair.ErrUnknownTask
	}
	if s.runs == nil {
		return nil, domainError(http.StatusServiceUnavailable, "HISTORY_UNAVAILABLE", "Run history not configured", nil)
	}
	return s.runs.History(ctx, task, limit)
}
