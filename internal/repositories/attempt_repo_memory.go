package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/BradenHooton/authgate/internal/models"
)

// MemoryAttemptRepository is an in-process attempt ledger for single-node
// deployments and tests. Records are copied on the way in and out.
type MemoryAttemptRepository struct {
	mu      sync.RWMutex
	records []models.AttemptRecord
}

// NewMemoryAttemptRepository creates an empty in-memory ledger
func NewMemoryAttemptRepository() *MemoryAttemptRepository {
	return &MemoryAttemptRepository{}
}

// Len returns the number of stored records
func (r *MemoryAttemptRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// Append stores a copy of record
func (r *MemoryAttemptRepository) Append(_ context.Context, record *models.AttemptRecord) error {
	if record.Identifier == "" {
		return models.ErrInvalidIdentifier
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, *record)
	return nil
}

// latest returns the newest record matching fn; ties go to the later append
func (r *MemoryAttemptRepository) latest(fn func(*models.AttemptRecord) bool) *models.AttemptRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var found *models.AttemptRecord
	for i := range r.records {
		rec := &r.records[i]
		if !fn(rec) {
			continue
		}
		if found == nil || !rec.AttemptedAt.Before(found.AttemptedAt) {
			found = rec
		}
	}
	if found == nil {
		return nil
	}
	out := *found
	return &out
}

func (r *MemoryAttemptRepository) count(fn func(*models.AttemptRecord) bool) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for i := range r.records {
		if fn(&r.records[i]) {
			n++
		}
	}
	return n
}

// distinct counts distinct non-empty keys among matching records, plus including
func (r *MemoryAttemptRepository) distinct(fn func(*models.AttemptRecord) bool, key func(*models.AttemptRecord) string, including string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	if including != "" {
		seen[including] = struct{}{}
	}
	for i := range r.records {
		rec := &r.records[i]
		if !fn(rec) {
			continue
		}
		if k := key(rec); k != "" {
			seen[k] = struct{}{}
		}
	}
	return len(seen)
}

func (r *MemoryAttemptRepository) CountFailures(_ context.Context, channel models.Channel, identifier string, since time.Time) (int, error) {
	return r.count(func(a *models.AttemptRecord) bool {
		return a.Channel == channel && a.Identifier == identifier &&
			a.Outcome == models.OutcomeFailure && !a.AttemptedAt.Before(since)
	}), nil
}

func (r *MemoryAttemptRepository) CountFailuresByIP(_ context.Context, channel models.Channel, ipAddress string, since time.Time) (int, error) {
	return r.count(func(a *models.AttemptRecord) bool {
		return a.Channel == channel && a.IPAddress == ipAddress &&
			a.Outcome == models.OutcomeFailure && !a.AttemptedAt.Before(since)
	}), nil
}

func (r *MemoryAttemptRepository) LatestLockout(_ context.Context, channel models.Channel, identifier string) (*models.AttemptRecord, error) {
	return r.latest(func(a *models.AttemptRecord) bool {
		return a.Channel == channel && a.Identifier == identifier && a.TemporaryBlocked
	}), nil
}

func (r *MemoryAttemptRepository) LastSuccess(_ context.Context, identifier string) (*models.AttemptRecord, error) {
	return r.latest(func(a *models.AttemptRecord) bool {
		return a.Identifier == identifier && a.Outcome == models.OutcomeSuccess
	}), nil
}

func (r *MemoryAttemptRepository) HasSeenDevice(_ context.Context, identifier, deviceID string) (bool, error) {
	return r.count(func(a *models.AttemptRecord) bool {
		return a.Identifier == identifier && a.DeviceID == deviceID
	}) > 0, nil
}

func (r *MemoryAttemptRepository) HasSeenUserAgent(_ context.Context, identifier, userAgent string) (bool, error) {
	return r.count(func(a *models.AttemptRecord) bool {
		return a.Identifier == identifier && a.UserAgent == userAgent
	}) > 0, nil
}

func (r *MemoryAttemptRepository) LastSeenForDevice(_ context.Context, deviceID string, since time.Time) (*models.AttemptRecord, error) {
	return r.latest(func(a *models.AttemptRecord) bool {
		return a.DeviceID == deviceID && !a.AttemptedAt.Before(since)
	}), nil
}

func (r *MemoryAttemptRepository) CountDistinctDevices(_ context.Context, identifier string, since time.Time, including string) (int, error) {
	return r.distinct(func(a *models.AttemptRecord) bool {
		return a.Identifier == identifier && !a.AttemptedAt.Before(since)
	}, func(a *models.AttemptRecord) string { return a.DeviceID }, including), nil
}

func (r *MemoryAttemptRepository) CountDistinctIPs(_ context.Context, identifier string, since time.Time, including string) (int, error) {
	return r.distinct(func(a *models.AttemptRecord) bool {
		return a.Identifier == identifier && !a.AttemptedAt.Before(since)
	}, func(a *models.AttemptRecord) string { return a.IPAddress }, including), nil
}

func (r *MemoryAttemptRepository) CountDistinctIdentifiersForDevice(_ context.Context, deviceID string, since time.Time, including string) (int, error) {
	return r.distinct(func(a *models.AttemptRecord) bool {
		return a.DeviceID == deviceID && !a.AttemptedAt.Before(since)
	}, func(a *models.AttemptRecord) string { return a.Identifier }, including), nil
}

// deleteWhere removes at most limit matching records
func (r *MemoryAttemptRepository) deleteWhere(fn func(*models.AttemptRecord) bool, limit int) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	kept := r.records[:0]
	for i := range r.records {
		if (limit <= 0 || deleted < int64(limit)) && fn(&r.records[i]) {
			deleted++
			continue
		}
		kept = append(kept, r.records[i])
	}
	clear(r.records[len(kept):])
	r.records = kept
	return deleted
}

func (r *MemoryAttemptRepository) DeleteExpired(_ context.Context, now time.Time, batchSize int) (int64, error) {
	return r.deleteWhere(func(a *models.AttemptRecord) bool {
		return !a.ExpiresAt.After(now)
	}, batchSize), nil
}

func (r *MemoryAttemptRepository) DeleteOlderThan(_ context.Context, cutoff time.Time, batchSize int) (int64, error) {
	return r.deleteWhere(func(a *models.AttemptRecord) bool {
		return a.AttemptedAt.Before(cutoff)
	}, batchSize), nil
}

func inRange(t, from, to time.Time) bool {
	return !t.Before(from) && t.Before(to)
}

func (r *MemoryAttemptRepository) Summary(_ context.Context, from, to time.Time) (*models.AttemptSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	summary := &models.AttemptSummary{From: from, To: to}
	identifiers := make(map[string]struct{})
	ips := make(map[string]struct{})

	for i := range r.records {
		a := &r.records[i]
		if !inRange(a.AttemptedAt, from, to) {
			continue
		}
		summary.Total++
		if a.Succeeded() {
			summary.Successes++
		} else {
			summary.Failures++
			if a.Channel == models.ChannelOTP {
				summary.OtpFailures++
			}
		}
		if a.TemporaryBlocked {
			summary.Lockouts++
		}
		identifiers[a.Identifier] = struct{}{}
		if a.IPAddress != "" {
			ips[a.IPAddress] = struct{}{}
		}
	}

	summary.DistinctIdentifiers = int64(len(identifiers))
	summary.DistinctIPs = int64(len(ips))
	return summary, nil
}

func (r *MemoryAttemptRepository) topOffenders(from, to time.Time, limit int, key func(*models.AttemptRecord) string) []models.OffenderCount {
	r.mu.RLock()
	tally := make(map[string]*models.OffenderCount)
	for i := range r.records {
		a := &r.records[i]
		k := key(a)
		if k == "" || a.Succeeded() || !inRange(a.AttemptedAt, from, to) {
			continue
		}
		oc, ok := tally[k]
		if !ok {
			oc = &models.OffenderCount{Key: k}
			tally[k] = oc
		}
		oc.Failures++
		if a.AttemptedAt.After(oc.LastFailedAt) {
			oc.LastFailedAt = a.AttemptedAt
		}
	}
	r.mu.RUnlock()

	out := make([]models.OffenderCount, 0, len(tally))
	for _, oc := range tally {
		out = append(out, *oc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Failures != out[j].Failures {
			return out[i].Failures > out[j].Failures
		}
		if !out[i].LastFailedAt.Equal(out[j].LastFailedAt) {
			return out[i].LastFailedAt.After(out[j].LastFailedAt)
		}
		return out[i].Key < out[j].Key
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (r *MemoryAttemptRepository) TopIPs(_ context.Context, from, to time.Time, limit int) ([]models.OffenderCount, error) {
	return r.topOffenders(from, to, limit, func(a *models.AttemptRecord) string { return a.IPAddress }), nil
}

func (r *MemoryAttemptRepository) TopDevices(_ context.Context, from, to time.Time, limit int) ([]models.OffenderCount, error) {
	return r.topOffenders(from, to, limit, func(a *models.AttemptRecord) string { return a.DeviceID }), nil
}

func (r *MemoryAttemptRepository) list(from, to time.Time, limit int, fn func(*models.AttemptRecord) bool) []*models.AttemptRecord {
	r.mu.RLock()
	out := make([]*models.AttemptRecord, 0)
	for i := range r.records {
		a := r.records[i]
		if fn(&a) && inRange(a.AttemptedAt, from, to) {
			out = append(out, &a)
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].AttemptedAt.After(out[j].AttemptedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (r *MemoryAttemptRepository) ListByIP(_ context.Context, ipAddress string, from, to time.Time, limit int) ([]*models.AttemptRecord, error) {
	return r.list(from, to, limit, func(a *models.AttemptRecord) bool { return a.IPAddress == ipAddress }), nil
}

func (r *MemoryAttemptRepository) ListByIdentifier(_ context.Context, identifier string, from, to time.Time, limit int) ([]*models.AttemptRecord, error) {
	return r.list(from, to, limit, func(a *models.AttemptRecord) bool { return a.Identifier == identifier }), nil
}
