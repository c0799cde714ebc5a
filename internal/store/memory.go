package store

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-process Store. Transactions serialize on a single
// lock and stage their writes until fn returns, so a failed fn leaves no
// trace.
type MemoryStore struct {
	mu        sync.Mutex
	usernames map[string]UsernameRecord
	profiles  map[string]PendingProfile
	grants    map[string]PendingRoleGrant
	accounts  map[string]Account
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		usernames: make(map[string]UsernameRecord),
		profiles:  make(map[string]PendingProfile),
		grants:    make(map[string]PendingRoleGrant),
		accounts:  make(map[string]Account),
	}
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) RunInTx(ctx context.Context, fn func(Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := &memoryTx{overlay: s.snapshotLocked()}
	if err := fn(staged); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.usernames = staged.overlay.usernames
	s.profiles = staged.overlay.profiles
	s.grants = staged.overlay.grants
	s.accounts = staged.overlay.accounts
	return nil
}

func (s *MemoryStore) autocommit(fn func(*memoryState) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := &memoryState{usernames: s.usernames, profiles: s.profiles, grants: s.grants, accounts: s.accounts}
	return fn(state)
}

func (s *MemoryStore) GetUsername(ctx context.Context, key string) (UsernameRecord, error) {
	var out UsernameRecord
	err := s.autocommit(func(st *memoryState) error {
		var err error
		out, err = st.getUsername(key)
		return err
	})
	return out, err
}

func (s *MemoryStore) PutUsername(ctx context.Context, record UsernameRecord) error {
	return s.autocommit(func(st *memoryState) error { st.usernames[record.CanonicalKey] = record; return nil })
}

func (s *MemoryStore) DeleteUsername(ctx context.Context, key string) error {
	return s.autocommit(func(st *memoryState) error { delete(st.usernames, key); return nil })
}

func (s *MemoryStore) GetPendingProfile(ctx context.Context, id string) (PendingProfile, error) {
	var out PendingProfile
	err := s.autocommit(func(st *memoryState) error {
		var err error
		out, err = st.getProfile(id)
		return err
	})
	return out, err
}

func (s *MemoryStore) PutPendingProfile(ctx context.Context, profile PendingProfile) error {
	return s.autocommit(func(st *memoryState) error { st.profiles[profile.ID] = profile.Clone(); return nil })
}

func (s *MemoryStore) DeletePendingProfile(ctx context.Context, id string) error {
	return s.autocommit(func(st *memoryState) error { delete(st.profiles, id); return nil })
}

func (s *MemoryStore) FindPendingProfilesByEmail(ctx context.Context, email, status string) ([]PendingProfile, error) {
	var out []PendingProfile
	err := s.autocommit(func(st *memoryState) error { out = st.findByEmail(email, status); return nil })
	return out, err
}

func (s *MemoryStore) PutRoleGrant(ctx context.Context, grant PendingRoleGrant) error {
	return s.autocommit(func(st *memoryState) error { st.grants[grant.ID] = grant; return nil })
}

func (s *MemoryStore) DeleteRoleGrantsBySource(ctx context.Context, source string) (int, error) {
	var n int
	err := s.autocommit(func(st *memoryState) error { n = st.deleteGrants(source); return nil })
	return n, err
}

func (s *MemoryStore) GetAccount(ctx context.Context, id string) (Account, error) {
	var out Account
	err := s.autocommit(func(st *memoryState) error {
		var err error
		out, err = st.getAccount(id)
		return err
	})
	return out, err
}

func (s *MemoryStore) PutAccount(ctx context.Context, account Account) error {
	return s.autocommit(func(st *memoryState) error { st.putAccount(account); return nil })
}

func (s *MemoryStore) AccountExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := s.autocommit(func(st *memoryState) error { exists = st.accountExists(email); return nil })
	return exists, err
}

func (s *MemoryStore) ListPendingProfiles(ctx context.Context, afterID string, limit int) ([]PendingProfile, error) {
	return s.ListPendingProfilesByStatus(ctx, "", afterID, limit)
}

func (s *MemoryStore) ListPendingProfilesByStatus(ctx context.Context, status, afterID string, limit int) ([]PendingProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.profiles))
	for id, profile := range s.profiles {
		if id > afterID && (status == "" || profile.Status == status) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]PendingProfile, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.profiles[id].Clone())
	}
	return out, nil
}

func (s *MemoryStore) ListUsernames(ctx context.Context, afterKey string, limit int) ([]UsernameRecord, error) {
	return s.listUsernames(func(key string) bool { return key > afterKey }, limit), nil
}

func (s *MemoryStore) ListUsernamesByPrefix(ctx context.Context, prefix string, limit int) ([]UsernameRecord, error) {
	return s.listUsernames(func(key string) bool { return strings.HasPrefix(key, prefix) }, limit), nil
}

func (s *MemoryStore) listUsernames(match func(string) bool, limit int) []UsernameRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.usernames))
	for key := range s.usernames {
		if match(key) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}
	out := make([]UsernameRecord, 0, len(keys))
	for _, key := range keys {
		out = append(out, s.usernames[key])
	}
	return out
}

func (s *MemoryStore) ListRoleGrants(ctx context.Context, email string) ([]PendingRoleGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PendingRoleGrant, 0)
	for _, grant := range s.grants {
		if strings.EqualFold(grant.Email, email) {
			out = append(out, grant)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Snapshot is a point-in-time, key-ordered copy of the whole store.
type Snapshot struct {
	Usernames []UsernameRecord
	Profiles  []PendingProfile
	Grants    []PendingRoleGrant
	Accounts  []Account
}

func (s *MemoryStore) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	var snap Snapshot
	for _, record := range s.usernames {
		snap.Usernames = append(snap.Usernames, record)
	}
	for _, profile := range s.profiles {
		snap.Profiles = append(snap.Profiles, profile.Clone())
	}
	for _, grant := range s.grants {
		snap.Grants = append(snap.Grants, grant)
	}
	for _, account := range s.accounts {
		account.Profile = account.Profile.Clone()
		snap.Accounts = append(snap.Accounts, account)
	}
	sort.Slice(snap.Usernames, func(i, j int) bool { return snap.Usernames[i].CanonicalKey < snap.Usernames[j].CanonicalKey })
	sort.Slice(snap.Profiles, func(i, j int) bool { return snap.Profiles[i].ID < snap.Profiles[j].ID })
	sort.Slice(snap.Grants, func(i, j int) bool { return snap.Grants[i].ID < snap.Grants[j].ID })
	sort.Slice(snap.Accounts, func(i, j int) bool { return snap.Accounts[i].ID < snap.Accounts[j].ID })
	return snap
}

func (s *MemoryStore) snapshotLocked() *memoryState {
	st := &memoryState{
		usernames: make(map[string]UsernameRecord, len(s.usernames)),
		profiles:  make(map[string]PendingProfile, len(s.profiles)),
		grants:    make(map[string]PendingRoleGrant, len(s.grants)),
		accounts:  make(map[string]Account, len(s.accounts)),
	}
	for k, v := range s.usernames {
		st.usernames[k] = v
	}
	for k, v := range s.profiles {
		st.profiles[k] = v.Clone()
	}
	for k, v := range s.grants {
		st.grants[k] = v
	}
	for k, v := range s.accounts {
		v.Profile = v.Profile.Clone()
		st.accounts[k] = v
	}
	return st
}

type memoryState struct {
	usernames map[string]UsernameRecord
	profiles  map[string]PendingProfile
	grants    map[string]PendingRoleGrant
	accounts  map[string]Account
}

func (st *memoryState) getUsername(key string) (UsernameRecord, error) {
	record, ok := st.usernames[key]
	if !ok {
		return UsernameRecord{}, ErrNotFound
	}
	return record, nil
}

func (st *memoryState) getProfile(id string) (PendingProfile, error) {
	profile, ok := st.profiles[id]
	if !ok {
		return PendingProfile{}, ErrNotFound
	}
	return profile.Clone(), nil
}

func (st *memoryState) findByEmail(email, status string) []PendingProfile {
	out := make([]PendingProfile, 0)
	for _, profile := range st.profiles {
		if strings.EqualFold(profile.Email, email) && profile.Status == status {
			out = append(out, profile.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (st *memoryState) deleteGrants(source string) int {
	n := 0
	for id, grant := range st.grants {
		if grant.Source == source {
			delete(st.grants, id)
			n++
		}
	}
	return n
}

func (st *memoryState) getAccount(id string) (Account, error) {
	account, ok := st.accounts[id]
	if !ok {
		return Account{}, ErrNotFound
	}
	account.Profile = account.Profile.Clone()
	return account, nil
}

func (st *memoryState) putAccount(account Account) {
	account.Profile = account.Profile.Clone()
	st.accounts[account.ID] = account
}

func (st *memoryState) accountExists(email string) bool {
	for _, account := range st.accounts {
		if strings.EqualFold(account.Email, email) {
			return true
		}
	}
	return false
}

// memoryTx reads and writes a private copy of the store.
type memoryTx struct {
	overlay *memoryState
}

func (t *memoryTx) GetUsername(_ context.Context, key string) (UsernameRecord, error) {
	return t.overlay.getUsername(key)
}

func (t *memoryTx) PutUsername(_ context.Context, record UsernameRecord) error {
	t.overlay.usernames[record.CanonicalKey] = record
	return nil
}

func (t *memoryTx) DeleteUsername(_ context.Context, key string) error {
	delete(t.overlay.usernames, key)
	return nil
}

func (t *memoryTx) GetPendingProfile(_ context.Context, id string) (PendingProfile, error) {
	return t.overlay.getProfile(id)
}

func (t *memoryTx) PutPendingProfile(_ context.Context, profile PendingProfile) error {
	t.overlay.profiles[profile.ID] = profile.Clone()
	return nil
}

func (t *memoryTx) DeletePendingProfile(_ context.Context, id string) error {
	delete(t.overlay.profiles, id)
	return nil
}

func (t *memoryTx) FindPendingProfilesByEmail(_ context.Context, email, status string) ([]PendingProfile, error) {
	return t.overlay.findByEmail(email, status), nil
}

func (t *memoryTx) PutRoleGrant(_ context.Context, grant PendingRoleGrant) error {
	t.overlay.grants[grant.ID] = grant
	return nil
}

func (t *memoryTx) DeleteRoleGrantsBySource(_ context.Context, source string) (int, error) {
	return t.overlay.deleteGrants(source), nil
}

func (t *memoryTx) GetAccount(_ context.Context, id string) (Account, error) {
	return t.overlay.getAccount(id)
}

func (t *memoryTx) PutAccount(_ context.Context, account Account) error {
	t.overlay.putAccount(account)
	return nil
}

func (t *memoryTx) AccountExistsByEmail(_ context.Context, email string) (bool, error) {
	return t.overlay.accountExists(email), nil
}
