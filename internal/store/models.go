package store

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	StatusPending = "pending"
	StatusClaimed = "claimed"
)

// PendingHolderPrefix marks a UsernameRecord holder that is not yet a real account.
const PendingHolderPrefix = "pending:"

// UsernameRecord is the registry entry for one canonical key.
type UsernameRecord struct {
	CanonicalKey     string    `db:"canonical_key" json:"canonicalKey"`
	DisplayName      string    `db:"display_name" json:"displayName"`
	HolderID         string    `db:"holder_id" json:"holderId"`
	ReservedForEmail string    `db:"reserved_for_email" json:"reservedForEmail,omitempty"`
	IsPending        bool      `db:"is_pending" json:"isPending"`
	ClaimedAt        time.Time `db:"claimed_at" json:"claimedAt"`
}

// PendingProfile is a creator profile waiting for its owner to sign up.
// Text fields are empty when missing; legacy documents are full of those.
type PendingProfile struct {
	ID                     string     `db:"id" json:"id"`
	Email                  string     `db:"email" json:"email"`
	ChatUsername           string     `db:"chat_username" json:"chatUsername"`
	ChatUsernameNormalized string     `db:"chat_username_normalized" json:"chatUsernameNormalized"`
	DisplayName            string     `db:"display_name" json:"displayName,omitempty"`
	Status                 string     `db:"status" json:"status"`
	Profile                DJProfile  `db:"dj_profile" json:"djProfile"`
	CreatedAt              time.Time  `db:"created_at" json:"createdAt"`
	CreatedBy              string     `db:"created_by" json:"createdBy"`
	ClaimedBy              string     `db:"claimed_by" json:"claimedBy,omitempty"`
	ClaimedAt              *time.Time `db:"claimed_at" json:"claimedAt,omitempty"`
}

// PendingRoleGrant promises a role to an email once it signs up.
type PendingRoleGrant struct {
	ID        string    `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	Role      string    `db:"role" json:"role"`
	Source    string    `db:"source" json:"source"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Account is the profile side of a real, signed-up user.
type Account struct {
	ID                     string    `db:"id" json:"id"`
	Email                  string    `db:"email" json:"email"`
	ChatUsername           string    `db:"chat_username" json:"chatUsername"`
	ChatUsernameNormalized string    `db:"chat_username_normalized" json:"chatUsernameNormalized"`
	Role                   string    `db:"role" json:"role"`
	Profile                DJProfile `db:"dj_profile" json:"djProfile"`
	UpdatedAt              time.Time `db:"updated_at" json:"updatedAt"`
}

type SocialLinks struct {
	Instagram  string `json:"instagram,omitempty"`
	SoundCloud string `json:"soundcloud,omitempty"`
	Mixcloud   string `json:"mixcloud,omitempty"`
	Bandcamp   string `json:"bandcamp,omitempty"`
	Website    string `json:"website,omitempty"`
}

// DJProfile is the free-form presentation payload of a creator.
type DJProfile struct {
	Bio         string      `json:"bio,omitempty"`
	PhotoURL    string      `json:"photoUrl,omitempty"`
	Location    string      `json:"location,omitempty"`
	Genres      []string    `json:"genres,omitempty"`
	SocialLinks SocialLinks `json:"socialLinks"`
}

// Merge returns p with every non-empty field of update applied on top.
// Fields the update leaves empty keep their current value.
func (p DJProfile) Merge(update DJProfile) DJProfile {
	merged := p.Clone()
	merged.Bio = keep(merged.Bio, update.Bio)
	merged.PhotoURL = keep(merged.PhotoURL, update.PhotoURL)
	merged.Location = keep(merged.Location, update.Location)
	if len(update.Genres) > 0 {
		merged.Genres = append([]string(nil), update.Genres...)
	}
	merged.SocialLinks.Instagram = keep(merged.SocialLinks.Instagram, update.SocialLinks.Instagram)
	merged.SocialLinks.SoundCloud = keep(merged.SocialLinks.SoundCloud, update.SocialLinks.SoundCloud)
	merged.SocialLinks.Mixcloud = keep(merged.SocialLinks.Mixcloud, update.SocialLinks.Mixcloud)
	merged.SocialLinks.Bandcamp = keep(merged.SocialLinks.Bandcamp, update.SocialLinks.Bandcamp)
	merged.SocialLinks.Website = keep(merged.SocialLinks.Website, update.SocialLinks.Website)
	return merged
}

// Clone returns a deep copy.
func (p DJProfile) Clone() DJProfile {
	out := p
	if p.Genres != nil {
		out.Genres = append([]string(nil), p.Genres...)
	}
	return out
}

// Value stores the payload as JSONB.
func (p DJProfile) Value() (driver.Value, error) {
	encoded, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal dj profile: %w", err)
	}
	return string(encoded), nil
}

// Scan reads the payload back from JSONB. NULL scans to the zero profile.
func (p *DJProfile) Scan(src any) error {
	var raw []byte
	switch value := src.(type) {
	case nil:
		*p = DJProfile{}
		return nil
	case []byte:
		raw = value
	case string:
		raw = []byte(value)
	default:
		return errors.New("dj profile: unsupported column type")
	}
	if len(raw) == 0 {
		*p = DJProfile{}
		return nil
	}
	var decoded DJProfile
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fmt.Errorf("unmarshal dj profile: %w", err)
	}
	*p = decoded
	return nil
}

// Clone returns a deep copy of the profile document.
func (p PendingProfile) Clone() PendingProfile {
	out := p
	out.Profile = p.Profile.Clone()
	if p.ClaimedAt != nil {
		at := *p.ClaimedAt
		out.ClaimedAt = &at
	}
	return out
}

// PendingHolder is the holder id stored on a reservation for email.
func PendingHolder(email string) string {
	return PendingHolderPrefix + email
}

// IsPendingHolder reports whether holderID is a placeholder rather than an account id.
func IsPendingHolder(holderID string) bool {
	return strings.HasPrefix(holderID, PendingHolderPrefix)
}

// RoleGrantSource is the source tag of the role grant created alongside a pending profile.
func RoleGrantSource(profileID string) string {
	return "pending_profile:" + profileID
}

func keep(current, update string) string {
	if strings.TrimSpace(update) == "" {
		return current
	}
	return update
}
