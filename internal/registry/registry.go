// Package registry owns the username registry invariants. Every path that
// reserves, claims, or releases a username goes through Registry so the
// precondition checks live in one place.
package registry

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"airwaves/api/internal/store"
	"airwaves/api/internal/username"
)

// RoleDJ is the role promised to the email behind a pending profile.
const RoleDJ = "dj"

// Index receives registry changes for the username directory. Calls are
// best effort; implementations log their own failures.
type Index interface {
	IndexUsername(ctx context.Context, record store.UsernameRecord)
	RemoveUsername(ctx context.Context, key string)
}

type Config struct {
	TxRetries     int
	RetryBackoff  time.Duration
	PublicBaseURL string
	Logger        *zap.Logger
	Index         Index
	Now           func() time.Time
	NewID         func() string
}

type Registry struct {
	store         store.Store
	index         Index
	logger        *zap.Logger
	now           func() time.Time
	newID         func() string
	txRetries     int
	retryBackoff  time.Duration
	publicBaseURL string
}

func New(s store.Store, cfg Config) *Registry {
	r := &Registry{
		store:         s,
		index:         cfg.Index,
		logger:        cfg.Logger,
		now:           cfg.Now,
		newID:         cfg.NewID,
		txRetries:     cfg.TxRetries,
		retryBackoff:  cfg.RetryBackoff,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if r.now == nil {
		r.now = func() time.Time { return time.Now().UTC() }
	}
	if r.newID == nil {
		r.newID = uuid.NewString
	}
	if r.txRetries < 1 {
		r.txRetries = 3
	}
	if r.retryBackoff <= 0 {
		r.retryBackoff = 25 * time.Millisecond
	}
	return r
}

type RegisterInput struct {
	Email     string          `json:"email"`
	Username  string          `json:"username"`
	Profile   store.DJProfile `json:"djProfile"`
	CreatedBy string          `json:"-"`
}

type Registration struct {
	ProfileID  string `json:"profileId"`
	Email      string `json:"email"`
	Username   string `json:"username"`
	ProfileURL string `json:"profileUrl"`
}

// Classify reports the state of the canonical key for email.
func (r *Registry) Classify(ctx context.Context, canonicalKey, email string) (Classification, error) {
	record, err := lookupUsername(ctx, r.store, canonicalKey)
	if err != nil {
		return Classification{}, err
	}
	return Classify(record, email), nil
}

// ClassifyUsername normalizes a display name and classifies its key.
func (r *Registry) ClassifyUsername(ctx context.Context, displayName, email string) (string, Classification, error) {
	key := username.Normalize(displayName)
	if key == "" {
		return "", Classification{}, validationError(CodeInvalidUsername, "username must contain letters or digits")
	}
	c, err := r.Classify(ctx, key, email)
	return key, c, err
}

// Register reserves a username for an email that has no account yet and
// creates the pending profile and role grant with it.
func (r *Registry) Register(ctx context.Context, in RegisterInput) (Registration, error) {
	email := strings.TrimSpace(in.Email)
	if !validEmail(email) {
		return Registration{}, validationError(CodeInvalidEmail, "a valid email is required")
	}
	display := strings.TrimSpace(in.Username)
	if !username.ValidDisplayName(display) {
		return Registration{}, validationError(CodeInvalidUsername,
			fmt.Sprintf("username must be %d-%d letters or digits, optionally separated by spaces", username.MinDisplayLength, username.MaxDisplayLength))
	}
	key := username.Normalize(display)

	if err := r.checkRegistration(ctx, r.store, key, email); err != nil {
		r.logger.Warn("registration rejected",
			zap.String("username", key),
			zap.String("code", CodeOf(err)),
		)
		return Registration{}, err
	}

	now := r.now()
	profile := store.PendingProfile{
		ID:                     key,
		Email:                  email,
		ChatUsername:           display,
		ChatUsernameNormalized: key,
		Status:                 store.StatusPending,
		Profile:                in.Profile.Clone(),
		CreatedAt:              now,
		CreatedBy:              in.CreatedBy,
	}
	if profile.Profile.SocialLinks.Instagram != "" {
		profile.Profile.SocialLinks.Instagram = username.InstagramHandle(profile.Profile.SocialLinks.Instagram)
	}
	record := store.UsernameRecord{
		CanonicalKey:     key,
		DisplayName:      display,
		HolderID:         store.PendingHolder(email),
		ReservedForEmail: email,
		IsPending:        true,
		ClaimedAt:        now,
	}
	grant := store.PendingRoleGrant{
		ID:        r.newID(),
		Email:     email,
		Role:      RoleDJ,
		Source:    store.RoleGrantSource(key),
		CreatedAt: now,
	}

	err := r.runInTx(ctx, "register", func(tx store.Tx) error {
		if err := r.checkRegistration(ctx, tx, key, email); err != nil {
			return err
		}
		existing, err := tx.GetPendingProfile(ctx, key)
		switch {
		case err == nil:
			if existing.Status != store.StatusPending || !strings.EqualFold(existing.Email, email) {
				return conflictError(CodeUsernameTaken, "username is already taken")
			}
		case !errors.Is(err, store.ErrNotFound):
			return err
		}
		if err := tx.PutPendingProfile(ctx, profile); err != nil {
			return err
		}
		if err := tx.PutUsername(ctx, record); err != nil {
			return err
		}
		return tx.PutRoleGrant(ctx, grant)
	})
	if err != nil {
		return Registration{}, r.wrap("register "+key, err)
	}

	r.logger.Info("username reserved",
		zap.String("username", key),
		zap.String("created_by", in.CreatedBy),
	)
	if r.index != nil {
		r.index.IndexUsername(ctx, record)
	}
	return Registration{
		ProfileID:  key,
		Email:      email,
		Username:   display,
		ProfileURL: r.profileURL(key),
	}, nil
}

func (r *Registry) checkRegistration(ctx context.Context, tx store.Tx, key, email string) error {
	exists, err := tx.AccountExistsByEmail(ctx, email)
	if err != nil {
		return err
	}
	if exists {
		return conflictError(CodeAccountExists, "an account already exists for this email, use normal signup")
	}
	pending, err := tx.FindPendingProfilesByEmail(ctx, email, store.StatusPending)
	if err != nil {
		return err
	}
	if len(pending) > 0 {
		return conflictError(CodePendingProfileExists, "a pending profile already exists for this email")
	}
	record, err := lookupUsername(ctx, tx, key)
	if err != nil {
		return err
	}
	switch Classify(record, email).Status {
	case Free, ReservedForThisEmail:
		return nil
	default:
		return conflictError(CodeUsernameTaken, "username is already taken")
	}
}

// Promote binds a pending profile's username to a real account and copies
// the profile payload onto it. A profile can be promoted once.
func (r *Registry) Promote(ctx context.Context, profileID, accountID string) (store.DJProfile, error) {
	profileID = strings.TrimSpace(profileID)
	accountID = strings.TrimSpace(accountID)
	if profileID == "" {
		return store.DJProfile{}, validationError(CodeInvalidProfileID, "profileId is required")
	}
	if accountID == "" {
		return store.DJProfile{}, validationError(CodeInvalidAccountID, "accountId is required")
	}

	var (
		payload store.DJProfile
		record  store.UsernameRecord
	)
	err := r.runInTx(ctx, "promote", func(tx store.Tx) error {
		profile, err := tx.GetPendingProfile(ctx, profileID)
		if errors.Is(err, store.ErrNotFound) {
			return notFoundError(CodeProfileNotFound, "pending profile not found")
		}
		if err != nil {
			return err
		}
		if profile.Status != store.StatusPending {
			return conflictError(CodeAlreadyClaimed, "pending profile was already claimed")
		}
		account, err := tx.GetAccount(ctx, accountID)
		if errors.Is(err, store.ErrNotFound) {
			return notFoundError(CodeAccountNotFound, "account not found")
		}
		if err != nil {
			return err
		}
		if !strings.EqualFold(strings.TrimSpace(account.Email), strings.TrimSpace(profile.Email)) {
			return conflictError(CodeEmailMismatch, "account email does not match the pending profile")
		}

		display, key := username.Derive(profile.ChatUsername, profile.ChatUsernameNormalized, profile.DisplayName, profile.ID)
		existing, err := lookupUsername(ctx, tx, key)
		if err != nil {
			return err
		}
		c := Classify(existing, profile.Email)
		switch {
		case c.Status == Free, c.Status == ReservedForThisEmail:
		case c.Status == FirmlyClaimed && c.HolderID == accountID:
		default:
			return conflictError(CodeUsernameTaken, "username is held by someone else")
		}

		now := r.now()
		record = store.UsernameRecord{
			CanonicalKey: key,
			DisplayName:  display,
			HolderID:     accountID,
			IsPending:    false,
			ClaimedAt:    now,
		}
		account.ChatUsername = display
		account.ChatUsernameNormalized = key
		account.Profile = account.Profile.Merge(profile.Profile)
		account.UpdatedAt = now

		profile.Status = store.StatusClaimed
		profile.ClaimedBy = accountID
		profile.ClaimedAt = &now

		if err := tx.PutUsername(ctx, record); err != nil {
			return err
		}
		if err := tx.PutAccount(ctx, account); err != nil {
			return err
		}
		if err := tx.PutPendingProfile(ctx, profile); err != nil {
			return err
		}
		payload = profile.Profile.Clone()
		return nil
	})
	if err != nil {
		return store.DJProfile{}, r.wrap("promote "+profileID, err)
	}

	r.logger.Info("username claimed",
		zap.String("username", record.CanonicalKey),
		zap.String("profile_id", profileID),
		zap.String("account_id", accountID),
	)
	if r.index != nil {
		r.index.IndexUsername(ctx, record)
	}
	return payload, nil
}

type ReleaseResult struct {
	ProfileID     string `json:"profileId"`
	ReleasedKey   string `json:"releasedUsername,omitempty"`
	GrantsRemoved int    `json:"grantsRemoved"`
}

// Release deletes a pending profile together with its reservation, when
// still pending, and the role grants it created.
func (r *Registry) Release(ctx context.Context, profileID string) (ReleaseResult, error) {
	profileID = strings.TrimSpace(profileID)
	if profileID == "" {
		return ReleaseResult{}, validationError(CodeInvalidProfileID, "profileId is required")
	}

	var result ReleaseResult
	err := r.runInTx(ctx, "release", func(tx store.Tx) error {
		result = ReleaseResult{ProfileID: profileID}
		profile, err := tx.GetPendingProfile(ctx, profileID)
		if errors.Is(err, store.ErrNotFound) {
			return notFoundError(CodeProfileNotFound, "pending profile not found")
		}
		if err != nil {
			return err
		}

		if profile.Status == store.StatusPending {
			_, key := username.Derive(profile.ChatUsername, profile.ChatUsernameNormalized, profile.DisplayName, profile.ID)
			for _, candidate := range uniqueKeys(key, profile.ChatUsernameNormalized) {
				record, err := lookupUsername(ctx, tx, candidate)
				if err != nil {
					return err
				}
				if Classify(record, profile.Email).Status != ReservedForThisEmail {
					continue
				}
				if err := tx.DeleteUsername(ctx, candidate); err != nil {
					return err
				}
				if result.ReleasedKey == "" {
					result.ReleasedKey = candidate
				}
			}
		}

		if err := tx.DeletePendingProfile(ctx, profileID); err != nil {
			return err
		}
		removed, err := tx.DeleteRoleGrantsBySource(ctx, store.RoleGrantSource(profileID))
		if err != nil {
			return err
		}
		result.GrantsRemoved = removed
		return nil
	})
	if err != nil {
		return ReleaseResult{}, r.wrap("release "+profileID, err)
	}

	r.logger.Info("pending profile deleted",
		zap.String("profile_id", profileID),
		zap.String("released_username", result.ReleasedKey),
		zap.Int("grants_removed", result.GrantsRemoved),
	)
	if r.index != nil && result.ReleasedKey != "" {
		r.index.RemoveUsername(ctx, result.ReleasedKey)
	}
	return result, nil
}

// UpdateProfile merges update into a pending profile's payload. Fields the
// update leaves empty keep their stored value.
func (r *Registry) UpdateProfile(ctx context.Context, profileID string, update store.DJProfile) (store.PendingProfile, error) {
	profileID = strings.TrimSpace(profileID)
	if profileID == "" {
		return store.PendingProfile{}, validationError(CodeInvalidProfileID, "profileId is required")
	}
	if update.SocialLinks.Instagram != "" {
		update.SocialLinks.Instagram = username.InstagramHandle(update.SocialLinks.Instagram)
	}

	var updated store.PendingProfile
	err := r.runInTx(ctx, "update", func(tx store.Tx) error {
		profile, err := tx.GetPendingProfile(ctx, profileID)
		if errors.Is(err, store.ErrNotFound) {
			return notFoundError(CodeProfileNotFound, "pending profile not found")
		}
		if err != nil {
			return err
		}
		if profile.Status != store.StatusPending {
			return conflictError(CodeProfileNotPending, "only pending profiles can be edited")
		}
		profile.Profile = profile.Profile.Merge(update)
		if err := tx.PutPendingProfile(ctx, profile); err != nil {
			return err
		}
		updated = profile
		return nil
	})
	if err != nil {
		return store.PendingProfile{}, r.wrap("update "+profileID, err)
	}
	return updated, nil
}

func (r *Registry) GetPendingProfile(ctx context.Context, profileID string) (store.PendingProfile, error) {
	profileID = strings.TrimSpace(profileID)
	if profileID == "" {
		return store.PendingProfile{}, validationError(CodeInvalidProfileID, "profileId is required")
	}
	profile, err := r.store.GetPendingProfile(ctx, profileID)
	if errors.Is(err, store.ErrNotFound) {
		return store.PendingProfile{}, notFoundError(CodeProfileNotFound, "pending profile not found")
	}
	if err != nil {
		return store.PendingProfile{}, fmt.Errorf("get pending profile %s: %w", profileID, err)
	}
	return profile, nil
}

// ListPendingProfiles pages through profiles in id order. An empty status
// lists every profile.
func (r *Registry) ListPendingProfiles(ctx context.Context, status, afterID string, limit int) ([]store.PendingProfile, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	switch status {
	case "":
		return r.store.ListPendingProfiles(ctx, afterID, limit)
	case store.StatusPending, store.StatusClaimed:
		return r.store.ListPendingProfilesByStatus(ctx, status, afterID, limit)
	default:
		return nil, validationError(CodeInvalidStatus, "status must be pending or claimed")
	}
}

func (r *Registry) profileURL(profileID string) string {
	return r.publicBaseURL + "/dj/" + profileID
}

func (r *Registry) wrap(op string, err error) error {
	var regErr *Error
	if errors.As(err, &regErr) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}

func lookupUsername(ctx context.Context, tx store.Tx, key string) (*store.UsernameRecord, error) {
	record, err := tx.GetUsername(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func uniqueKeys(keys ...string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}

func validEmail(email string) bool {
	if email == "" {
		return false
	}
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}
