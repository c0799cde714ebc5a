package repair

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Issue is one document an operator has to look at.
type Issue struct {
	ProfileID string `json:"profileId"`
	Key       string `json:"key,omitempty"`
	Reason    string `json:"reason"`
}

// Tally is the uniform result of a repair task run.
type Tally struct {
	RunID          string    `json:"runId"`
	Task           string    `json:"task"`
	Scanned        int       `json:"scanned"`
	Fixed          int       `json:"fixed"`
	AlreadyCorrect int       `json:"alreadyCorrect"`
	Created        int       `json:"created"`
	Skipped        int       `json:"skipped"`
	Conflicts      int       `json:"conflicts"`
	Errors         int       `json:"errors"`
	ConflictList   []Issue   `json:"conflictList"`
	ErrorList      []Issue   `json:"errorList"`
	StartedAt      time.Time `json:"startedAt"`
	FinishedAt     time.Time `json:"finishedAt"`
}

// Writes is the number of documents the run changed.
func (t Tally) Writes() int {
	return t.Fixed + t.Created
}

func (t *Tally) conflict(profileID, key, reason string) {
	t.Conflicts++
	t.ConflictList = append(t.ConflictList, Issue{ProfileID: profileID, Key: key, Reason: reason})
}

func (t *Tally) fail(profileID, key string, format string, args ...any) {
	t.Errors++
	t.ErrorList = append(t.ErrorList, Issue{ProfileID: profileID, Key: key, Reason: fmt.Sprintf(format, args...)})
}

func (t Tally) fields() []zap.Field {
	return []zap.Field{
		zap.String("task", t.Task),
		zap.String("run_id", t.RunID),
		zap.Int("scanned", t.Scanned),
		zap.Int("fixed", t.Fixed),
		zap.Int("already_correct", t.AlreadyCorrect),
		zap.Int("created", t.Created),
		zap.Int("skipped", t.Skipped),
		zap.Int("conflicts", t.Conflicts),
		zap.Int("errors", t.Errors),
		zap.Duration("duration", t.FinishedAt.Sub(t.StartedAt)),
	}
}
