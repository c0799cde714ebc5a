package registry

import (
	"strings"

	"airwaves/api/internal/store"
)

type Status int

const (
	Free Status = iota
	ReservedForThisEmail
	ReservedForOther
	FirmlyClaimed
)

func (s Status) String() string {
	switch s {
	case Free:
		return "free"
	case ReservedForThisEmail:
		return "reserved_for_this_email"
	case ReservedForOther:
		return "reserved_for_other"
	case FirmlyClaimed:
		return "firmly_claimed"
	default:
		return "unknown"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Classification is the state of one canonical key relative to an email.
type Classification struct {
	Status   Status `json:"status"`
	HolderID string `json:"holderId,omitempty"`
}

// Classify is the pure conflict rule. A nil record is Free.
func Classify(record *store.UsernameRecord, email string) Classification {
	if record == nil {
		return Classification{Status: Free}
	}
	if !record.IsPending {
		return Classification{Status: FirmlyClaimed, HolderID: record.HolderID}
	}
	if email != "" && strings.EqualFold(strings.TrimSpace(record.ReservedForEmail), strings.TrimSpace(email)) {
		return Classification{Status: ReservedForThisEmail, HolderID: record.HolderID}
	}
	return Classification{Status: ReservedForOther, HolderID: record.HolderID}
}
