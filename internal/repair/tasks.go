package repair

import (
	"context"
	"errors"
	"fmt"

	"airwaves/api/internal/registry"
	"airwaves/api/internal/store"
	"airwaves/api/internal/username"
)

// Task is one named reconciliation pass.
type Task struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	run         func(ctx context.Context, r *Runner, tally *Tally) error
}

const (
	TaskLegacyIDs            = "legacy-ids"
	TaskMissingFields        = "missing-fields"
	TaskInvalidUsernames     = "invalid-usernames"
	TaskUsernameReservations = "username-reservations"
	TaskInstagramHandles     = "instagram-handles"
)

// Tasks returns the catalog in pipeline order.
func Tasks() []Task {
	return []Task{
		{
			Name:        TaskLegacyIDs,
			Description: "Move profiles stored under hyphenated ids to their canonical id, dropping duplicates.",
			run:         legacyIDs,
		},
		{
			Name:        TaskMissingFields,
			Description: "Backfill blank chatUsername and missing or stale chatUsernameNormalized.",
			run:         missingFields,
		},
		{
			Name:        TaskInvalidUsernames,
			Description: "Replace chat usernames that fail validation with their trimmed form or normalized key.",
			run:         invalidUsernames,
		},
		{
			Name:        TaskUsernameReservations,
			Description: "Ensure every pending profile holds a pending reservation for its username.",
			run:         usernameReservations,
		},
		{
			Name:        TaskInstagramHandles,
			Description: "Rewrite Instagram profile URLs to bare handles.",
			run:         instagramHandles,
		},
	}
}

// Lookup finds a task by name.
func Lookup(name string) (Task, bool) {
	for _, task := range Tasks() {
		if task.Name == name {
			return task, true
		}
	}
	return Task{}, false
}

func derive(p store.PendingProfile) (display, key string) {
	return username.Derive(p.ChatUsername, p.ChatUsernameNormalized, p.DisplayName, p.ID)
}

// legacyIDs relocates every hyphenated-id profile to its derived key. Each
// profile's create and delete commit in one batch unit together with the
// release of any pending reservation left under its old keys.
func legacyIDs(ctx context.Context, r *Runner, tally *Tally) error {
	var batch store.Batch
	planned := make(map[string]struct{})
	outcome := make(map[string]string)

	err := r.scan(ctx, "", tally, func(p store.PendingProfile) {
		if !username.IsLegacyID(p.ID) {
			tally.AlreadyCorrect++
			return
		}
		display, key := derive(p)
		if key == "" {
			r.reportError(tally, p.ID, "", "no letters or digits to derive a canonical id from")
			return
		}

		var writes []store.Write
		legacy, err := r.store.GetUsername(ctx, p.ID)
		switch {
		case err == nil:
			if registry.Classify(&legacy, p.Email).Status == registry.ReservedForThisEmail {
				writes = append(writes, store.DeleteUsernameWrite(p.ID))
			}
		case !errors.Is(err, store.ErrNotFound):
			r.reportError(tally, p.ID, key, "look up legacy reservation: %v", err)
			return
		}

		if stale := p.ChatUsernameNormalized; stale != "" && stale != p.ID && stale != key {
			release, err := staleReservation(ctx, r.store, p, stale)
			if err != nil {
				r.reportError(tally, p.ID, key, "look up stale reservation: %v", err)
				return
			}
			if release {
				writes = append(writes, store.DeleteUsernameWrite(stale))
			}
		}

		_, twin := planned[key]
		if !twin {
			_, err := r.store.GetPendingProfile(ctx, key)
			switch {
			case err == nil:
				twin = true
			case !errors.Is(err, store.ErrNotFound):
				r.reportError(tally, p.ID, key, "look up canonical twin: %v", err)
				return
			}
		}
		if twin {
			outcome[p.ID] = "fixed"
		} else {
			moved := p.Clone()
			moved.ID = key
			moved.ChatUsernameNormalized = key
			if isBlank(moved.ChatUsername) && username.ValidDisplayName(display) {
				moved.ChatUsername = display
			}
			writes = append(writes, store.PutProfileWrite(moved))
			planned[key] = struct{}{}
			outcome[p.ID] = "created"
		}
		writes = append(writes, store.DeleteProfileWrite(p.ID))
		batch.Add(p.ID, writes...)
	})
	if err != nil {
		return err
	}
	if batch.Len() == 0 {
		return nil
	}

	result := store.CommitBatch(ctx, r.store, &batch, r.batch)
	for _, id := range result.Committed {
		if outcome[id] == "created" {
			tally.Created++
		} else {
			tally.Fixed++
		}
	}
	for _, failure := range result.Failures {
		r.reportError(tally, failure.Label, "", "commit: %v", failure.Err)
	}
	return nil
}

// missingFields fills a blank chatUsername and aligns chatUsernameNormalized
// with the derived key. A pending reservation this profile's email still holds
// under the old normalized value is deleted in the same transaction.
func missingFields(ctx context.Context, r *Runner, tally *Tally) error {
	return r.scan(ctx, "", tally, func(p store.PendingProfile) {
		display, key := derive(p)
		if key == "" {
			r.reportError(tally, p.ID, "", "no letters or digits to derive a username from")
			return
		}

		var (
			issue   string
			changed bool
		)
		err := r.store.RunInTx(ctx, func(tx store.Tx) error {
			issue, changed = "", false
			doc, err := tx.GetPendingProfile(ctx, p.ID)
			if err != nil {
				return err
			}
			if isBlank(doc.ChatUsername) {
				if username.ValidDisplayName(display) {
					doc.ChatUsername = display
					changed = true
				} else {
					issue = fmt.Sprintf("derived username %q is not a valid display name", display)
				}
			}
			if old := doc.ChatUsernameNormalized; old != key {
				release, err := staleReservation(ctx, tx, doc, old)
				if err != nil {
					return err
				}
				if release {
					if err := tx.DeleteUsername(ctx, old); err != nil {
						return err
					}
				}
				doc.ChatUsernameNormalized = key
				changed = true
			}
			if !changed {
				return nil
			}
			return tx.PutPendingProfile(ctx, doc)
		})
		if err != nil {
			r.reportError(tally, p.ID, key, "write: %v", err)
			return
		}
		if issue != "" {
			r.reportError(tally, p.ID, key, "%s", issue)
		}
		switch {
		case changed:
			tally.Fixed++
		case issue == "":
			tally.AlreadyCorrect++
		}
	})
}

// staleReservation reports whether the pending reservation at old can be
// released: it is reserved for the profile's email and no other profile
// lives under that id.
func staleReservation(ctx context.Context, tx store.Tx, p store.PendingProfile, old string) (bool, error) {
	if isBlank(old) {
		return false, nil
	}
	if old != p.ID {
		_, err := tx.GetPendingProfile(ctx, old)
		if err == nil {
			return false, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return false, err
		}
	}
	rec, err := tx.GetUsername(ctx, old)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return registry.Classify(&rec, p.Email).Status == registry.ReservedForThisEmail, nil
}

// invalidUsernames replaces an invalid chatUsername with the display name
// Derive settles on: the trimmed value when that is valid, otherwise its
// normalized key. The normalized field is left alone.
func invalidUsernames(ctx context.Context, r *Runner, tally *Tally) error {
	return r.scan(ctx, "", tally, func(p store.PendingProfile) {
		if isBlank(p.ChatUsername) {
			tally.Skipped++
			return
		}
		replacement, key := derive(p)
		if p.ChatUsername == replacement {
			tally.AlreadyCorrect++
			return
		}
		if !username.ValidDisplayName(replacement) {
			r.reportError(tally, p.ID, key, "chat username %q has no valid normalized form", p.ChatUsername)
			return
		}

		changed, err := r.mutateProfile(ctx, p.ID, func(doc *store.PendingProfile) bool {
			if isBlank(doc.ChatUsername) {
				return false
			}
			display, _ := derive(*doc)
			if doc.ChatUsername == display || !username.ValidDisplayName(display) {
				return false
			}
			doc.ChatUsername = display
			return true
		})
		if err != nil {
			r.reportError(tally, p.ID, key, "write: %v", err)
			return
		}
		if changed {
			tally.Fixed++
		} else {
			tally.AlreadyCorrect++
		}
	})
}

// usernameReservations makes sure every pending profile holds a pending
// reservation for its derived key. Records held by anyone else are reported
// and never touched.
func usernameReservations(ctx context.Context, r *Runner, tally *Tally) error {
	legacyTargets := make(map[string]struct{})

	return r.scan(ctx, "", tally, func(p store.PendingProfile) {
		display, key := derive(p)

		// Only the profile legacy-ids would keep for a key may reserve it.
		if username.IsLegacyID(p.ID) && key != "" {
			if _, dup := legacyTargets[key]; dup {
				tally.Skipped++
				return
			}
			legacyTargets[key] = struct{}{}
			_, err := r.store.GetPendingProfile(ctx, key)
			if err == nil {
				tally.Skipped++
				return
			}
			if !errors.Is(err, store.ErrNotFound) {
				r.reportError(tally, p.ID, key, "look up canonical twin: %v", err)
				return
			}
		}
		if p.Status != store.StatusPending {
			tally.Skipped++
			return
		}
		if !username.ValidDisplayName(display) {
			r.reportError(tally, p.ID, key, "derived username %q is not a valid display name", display)
			return
		}
		if isBlank(p.Email) {
			r.reportError(tally, p.ID, key, "pending profile has no email")
			return
		}

		var (
			outcome  string
			conflict string
		)
		err := r.store.RunInTx(ctx, func(tx store.Tx) error {
			outcome, conflict = "", ""
			existing, err := tx.GetUsername(ctx, key)
			var current *store.UsernameRecord
			switch {
			case err == nil:
				current = &existing
			case !errors.Is(err, store.ErrNotFound):
				return err
			}

			c := registry.Classify(current, p.Email)
			switch c.Status {
			case registry.Free:
				outcome = "created"
				return tx.PutUsername(ctx, store.UsernameRecord{
					CanonicalKey:     key,
					DisplayName:      display,
					HolderID:         store.PendingHolder(p.Email),
					ReservedForEmail: p.Email,
					IsPending:        true,
					ClaimedAt:        p.CreatedAt,
				})
			case registry.ReservedForThisEmail:
				if existing.DisplayName == display {
					outcome = "correct"
					return nil
				}
				existing.DisplayName = display
				outcome = "fixed"
				return tx.PutUsername(ctx, existing)
			default:
				conflict = fmt.Sprintf("%s by %s", c.Status, c.HolderID)
				return nil
			}
		})
		if err != nil {
			r.reportError(tally, p.ID, key, "reserve: %v", err)
			return
		}
		switch outcome {
		case "created":
			tally.Created++
		case "fixed":
			tally.Fixed++
		case "correct":
			tally.AlreadyCorrect++
		default:
			r.reportConflict(tally, p.ID, key, conflict)
		}
	})
}

// instagramHandles reduces socialLinks.instagram to a bare handle.
func instagramHandles(ctx context.Context, r *Runner, tally *Tally) error {
	return r.scan(ctx, "", tally, func(p store.PendingProfile) {
		current := p.Profile.SocialLinks.Instagram
		if isBlank(current) {
			tally.Skipped++
			return
		}
		if username.InstagramHandle(current) == current {
			tally.AlreadyCorrect++
			return
		}

		changed, err := r.mutateProfile(ctx, p.ID, func(doc *store.PendingProfile) bool {
			handle := username.InstagramHandle(doc.Profile.SocialLinks.Instagram)
			if handle == doc.Profile.SocialLinks.Instagram {
				return false
			}
			doc.Profile.SocialLinks.Instagram = handle
			return true
		})
		if err != nil {
			r.reportError(tally, p.ID, "", "write: %v", err)
			return
		}
		if changed {
			tally.Fixed++
		} else {
			tally.AlreadyCorrect++
		}
	})
}

func isBlank(s string) bool {
	for _, c := range s {
		if c != ' ' && c != '\t' && c != '\n' && c != '\r' {
			return false
		}
	}
	return true
}
