package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// MaxBatchWrites caps the number of writes committed in one transaction.
const MaxBatchWrites = 500

// ErrUnitTooLarge is reported for a unit with more writes than one
// transaction may carry. Such a unit is never committed.
var ErrUnitTooLarge = errors.New("batch unit exceeds the write limit")

// BatchConfig holds configuration for batched commits.
type BatchConfig struct {
	MaxWrites  int
	MaxRetries int
	RetryDelay time.Duration
	OnProgress func(committed, total int)
}

func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		MaxWrites:  MaxBatchWrites,
		MaxRetries: 3,
		RetryDelay: 50 * time.Millisecond,
	}
}

type writeKind int

const (
	writePutProfile writeKind = iota + 1
	writeDeleteProfile
	writePutUsername
	writeDeleteUsername
)

// Write is a single document write inside a Batch.
type Write struct {
	kind    writeKind
	profile PendingProfile
	record  UsernameRecord
	key     string
}

func PutProfileWrite(profile PendingProfile) Write {
	return Write{kind: writePutProfile, profile: profile.Clone(), key: profile.ID}
}

func DeleteProfileWrite(id string) Write {
	return Write{kind: writeDeleteProfile, key: id}
}

func PutUsernameWrite(record UsernameRecord) Write {
	return Write{kind: writePutUsername, record: record, key: record.CanonicalKey}
}

func DeleteUsernameWrite(key string) Write {
	return Write{kind: writeDeleteUsername, key: key}
}

func (w Write) apply(ctx context.Context, tx Tx) error {
	switch w.kind {
	case writePutProfile:
		return tx.PutPendingProfile(ctx, w.profile)
	case writeDeleteProfile:
		return tx.DeletePendingProfile(ctx, w.key)
	case writePutUsername:
		return tx.PutUsername(ctx, w.record)
	case writeDeleteUsername:
		return tx.DeleteUsername(ctx, w.key)
	default:
		return fmt.Errorf("unknown write kind %d", w.kind)
	}
}

// BatchUnit is a group of writes that must land together.
type BatchUnit struct {
	Label  string
	Writes []Write
}

// Batch accumulates units for CommitBatch. Units are never split across
// transactions.
type Batch struct {
	units []BatchUnit
}

func (b *Batch) Add(label string, writes ...Write) {
	if len(writes) == 0 {
		return
	}
	b.units = append(b.units, BatchUnit{Label: label, Writes: writes})
}

// Len is the number of units.
func (b *Batch) Len() int {
	return len(b.units)
}

// Writes is the total number of writes across all units.
func (b *Batch) Writes() int {
	n := 0
	for _, unit := range b.units {
		n += len(unit.Writes)
	}
	return n
}

// UnitFailure reports a unit that could not be committed.
type UnitFailure struct {
	Label string
	Err   error
}

// BatchResult lists the labels of committed units and the units that failed.
type BatchResult struct {
	Committed []string
	Failures  []UnitFailure
}

// CommitBatch commits b in chunks of at most cfg.MaxWrites writes. A chunk
// that keeps failing is replayed one unit at a time so a single bad unit
// does not take its neighbours down with it. A unit larger than
// cfg.MaxWrites fails with ErrUnitTooLarge.
func CommitBatch(ctx context.Context, s Store, b *Batch, cfg BatchConfig) BatchResult {
	if cfg.MaxWrites <= 0 || cfg.MaxWrites > MaxBatchWrites {
		cfg.MaxWrites = MaxBatchWrites
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}

	var (
		result BatchResult
		fits   []BatchUnit
	)
	for _, unit := range b.units {
		if len(unit.Writes) > cfg.MaxWrites {
			result.Failures = append(result.Failures, UnitFailure{
				Label: unit.Label,
				Err:   fmt.Errorf("%w: %d writes, limit %d", ErrUnitTooLarge, len(unit.Writes), cfg.MaxWrites),
			})
			continue
		}
		fits = append(fits, unit)
	}
	chunks := chunkUnits(fits, cfg.MaxWrites)
	done := len(result.Failures)
	for _, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			for _, unit := range chunk {
				result.Failures = append(result.Failures, UnitFailure{Label: unit.Label, Err: err})
			}
			continue
		}

		err := commitWithRetry(ctx, s, chunk, cfg)
		if err == nil {
			for _, unit := range chunk {
				result.Committed = append(result.Committed, unit.Label)
			}
		} else {
			for _, unit := range chunk {
				if err := commitWithRetry(ctx, s, []BatchUnit{unit}, cfg); err != nil {
					result.Failures = append(result.Failures, UnitFailure{Label: unit.Label, Err: err})
					continue
				}
				result.Committed = append(result.Committed, unit.Label)
			}
		}

		done += len(chunk)
		if cfg.OnProgress != nil {
			cfg.OnProgress(done, len(b.units))
		}
	}
	return result
}

func chunkUnits(units []BatchUnit, maxWrites int) [][]BatchUnit {
	var chunks [][]BatchUnit
	var current []BatchUnit
	size := 0
	for _, unit := range units {
		n := len(unit.Writes)
		if len(current) > 0 && size+n > maxWrites {
			chunks = append(chunks, current)
			current, size = nil, 0
		}
		current = append(current, unit)
		size += n
	}
	if len(current) > 0 {
		chunks = append(chunks, current)
	}
	return chunks
}

func commitWithRetry(ctx context.Context, s Store, units []BatchUnit, cfg BatchConfig) error {
	var lastErr error
	for attempt := 0; attempt < cfg.MaxRetries; attempt++ {
		lastErr = s.RunInTx(ctx, func(tx Tx) error {
			for _, unit := range units {
				for _, w := range unit.Writes {
					if err := w.apply(ctx, tx); err != nil {
						return err
					}
				}
			}
			return nil
		})
		if lastErr == nil || !errors.Is(lastErr, ErrTxConflict) {
			return lastErr
		}
		if attempt < cfg.MaxRetries-1 && cfg.RetryDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(cfg.RetryDelay):
			}
		}
	}
	return lastErr
}
