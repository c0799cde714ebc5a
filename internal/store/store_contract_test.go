package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

// exerciseStore runs the behaviour every Store backend must share.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if _, err := s.GetUsername(ctx, "djnova"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing username, got %v", err)
	}

	record := UsernameRecord{
		CanonicalKey:     "djnova",
		DisplayName:      "DJ Nova",
		HolderID:         PendingHolder("nova@example.com"),
		ReservedForEmail: "nova@example.com",
		IsPending:        true,
		ClaimedAt:        now,
	}
	profile := PendingProfile{
		ID:                     "djnova",
		Email:                  "nova@example.com",
		ChatUsername:           "DJ Nova",
		ChatUsernameNormalized: "djnova",
		Status:                 StatusPending,
		Profile:                DJProfile{Bio: "late night", Genres: []string{"house"}},
		CreatedAt:              now,
		CreatedBy:              "admin-1",
	}
	grant := PendingRoleGrant{
		ID:        "grant-1",
		Email:     "nova@example.com",
		Role:      "dj",
		Source:    RoleGrantSource("djnova"),
		CreatedAt: now,
	}

	err := s.RunInTx(ctx, func(tx Tx) error {
		if err := tx.PutUsername(ctx, record); err != nil {
			return err
		}
		if err := tx.PutPendingProfile(ctx, profile); err != nil {
			return err
		}
		return tx.PutRoleGrant(ctx, grant)
	})
	if err != nil {
		t.Fatalf("commit registration: %v", err)
	}

	gotRecord, err := s.GetUsername(ctx, "djnova")
	if err != nil {
		t.Fatalf("get username: %v", err)
	}
	if gotRecord.DisplayName != "DJ Nova" || !gotRecord.IsPending || gotRecord.ReservedForEmail != "nova@example.com" {
		t.Fatalf("unexpected record %+v", gotRecord)
	}

	gotProfile, err := s.GetPendingProfile(ctx, "djnova")
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if gotProfile.Profile.Bio != "late night" || len(gotProfile.Profile.Genres) != 1 {
		t.Fatalf("dj profile did not round trip: %+v", gotProfile.Profile)
	}

	found, err := s.FindPendingProfilesByEmail(ctx, "NOVA@example.com", StatusPending)
	if err != nil {
		t.Fatalf("find by email: %v", err)
	}
	if len(found) != 1 || found[0].ID != "djnova" {
		t.Fatalf("expected case-insensitive email match, got %+v", found)
	}

	sentinel := errors.New("abort")
	err = s.RunInTx(ctx, func(tx Tx) error {
		if err := tx.DeleteUsername(ctx, "djnova"); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}
	if _, err := s.GetUsername(ctx, "djnova"); err != nil {
		t.Fatalf("rolled back delete must leave the record: %v", err)
	}

	err = s.RunInTx(ctx, func(tx Tx) error {
		n, err := tx.DeleteRoleGrantsBySource(ctx, RoleGrantSource("djnova"))
		if err != nil {
			return err
		}
		if n != 1 {
			t.Errorf("expected one grant deleted, got %d", n)
		}
		return tx.DeletePendingProfile(ctx, "djnova")
	})
	if err != nil {
		t.Fatalf("cascade delete: %v", err)
	}
	grants, err := s.ListRoleGrants(ctx, "nova@example.com")
	if err != nil {
		t.Fatalf("list grants: %v", err)
	}
	if len(grants) != 0 {
		t.Fatalf("expected grants removed, got %+v", grants)
	}

	for _, key := range []string{"djnova", "djnovak", "djzed"} {
		if err := s.PutUsername(ctx, UsernameRecord{CanonicalKey: key, DisplayName: key, HolderID: "acct-" + key, ClaimedAt: now}); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	prefixed, err := s.ListUsernamesByPrefix(ctx, "djnov", 10)
	if err != nil {
		t.Fatalf("list by prefix: %v", err)
	}
	if len(prefixed) != 2 || prefixed[0].CanonicalKey != "djnova" || prefixed[1].CanonicalKey != "djnovak" {
		t.Fatalf("unexpected prefix results %+v", prefixed)
	}
	page, err := s.ListUsernames(ctx, "djnova", 10)
	if err != nil {
		t.Fatalf("list usernames: %v", err)
	}
	if len(page) != 2 || page[0].CanonicalKey != "djnovak" {
		t.Fatalf("expected keyset page after djnova, got %+v", page)
	}

	account := Account{ID: "acct-1", Email: "Someone@Example.com", Role: "listener", UpdatedAt: now}
	if err := s.PutAccount(ctx, account); err != nil {
		t.Fatalf("put account: %v", err)
	}
	exists, err := s.AccountExistsByEmail(ctx, "someone@example.com")
	if err != nil || !exists {
		t.Fatalf("expected account to exist, got %v %v", exists, err)
	}
}
