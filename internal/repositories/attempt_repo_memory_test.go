package repositories_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/BradenHooton/authgate/internal/models"
	"github.com/BradenHooton/authgate/internal/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func appendAttempt(t *testing.T, repo *repositories.MemoryAttemptRepository, rec models.AttemptRecord) {
	t.Helper()
	if rec.ID == "" {
		rec.ID = fmt.Sprintf("rec-%d", repo.Len())
	}
	if rec.Channel == "" {
		rec.Channel = models.ChannelLogin
	}
	if rec.Outcome == "" {
		rec.Outcome = models.OutcomeFailure
	}
	if rec.ExpiresAt.IsZero() {
		rec.ExpiresAt = rec.AttemptedAt.Add(24 * time.Hour)
	}
	require.NoError(t, repo.Append(context.Background(), &rec))
}

func TestMemoryAttemptRepository_Append(t *testing.T) {
	repo := repositories.NewMemoryAttemptRepository()
	ctx := context.Background()

	err := repo.Append(ctx, &models.AttemptRecord{ID: "x"})
	assert.ErrorIs(t, err, models.ErrInvalidIdentifier)

	rec := &models.AttemptRecord{ID: "r1", Channel: models.ChannelLogin, Identifier: "a@x.com", AttemptedAt: base, Outcome: models.OutcomeFailure}
	require.NoError(t, repo.Append(ctx, rec))

	// stored records are copies
	rec.Identifier = "mutated@x.com"
	n, err := repo.CountFailures(ctx, models.ChannelLogin, "a@x.com", base.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMemoryAttemptRepository_CountFailures(t *testing.T) {
	repo := repositories.NewMemoryAttemptRepository()
	ctx := context.Background()

	appendAttempt(t, repo, models.AttemptRecord{Identifier: "a@x.com", IPAddress: "1.1.1.1", AttemptedAt: base.Add(-20 * time.Minute)})
	appendAttempt(t, repo, models.AttemptRecord{Identifier: "a@x.com", IPAddress: "1.1.1.1", AttemptedAt: base.Add(-5 * time.Minute)})
	appendAttempt(t, repo, models.AttemptRecord{Identifier: "a@x.com", IPAddress: "1.1.1.1", AttemptedAt: base.Add(-10 * time.Minute)})
	appendAttempt(t, repo, models.AttemptRecord{Identifier: "a@x.com", IPAddress: "1.1.1.1", AttemptedAt: base, Outcome: models.OutcomeSuccess})
	appendAttempt(t, repo, models.AttemptRecord{Identifier: "a@x.com", IPAddress: "1.1.1.1", AttemptedAt: base, Channel: models.ChannelOTP})
	appendAttempt(t, repo, models.AttemptRecord{Identifier: "b@x.com", IPAddress: "1.1.1.1", AttemptedAt: base})

	since := base.Add(-10 * time.Minute)

	n, err := repo.CountFailures(ctx, models.ChannelLogin, "a@x.com", since)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "window start is inclusive, successes and otp excluded")

	n, err = repo.CountFailures(ctx, models.ChannelOTP, "a@x.com", since)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = repo.CountFailuresByIP(ctx, models.ChannelLogin, "1.1.1.1", since)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestMemoryAttemptRepository_LatestLockoutAndSuccess(t *testing.T) {
	repo := repositories.NewMemoryAttemptRepository()
	ctx := context.Background()
	first := base.Add(5 * time.Minute)
	second := base.Add(20 * time.Minute)

	appendAttempt(t, repo, models.AttemptRecord{Identifier: "a@x.com", AttemptedAt: base, TemporaryBlocked: true, BlockedUntil: &first})
	appendAttempt(t, repo, models.AttemptRecord{Identifier: "a@x.com", AttemptedAt: base.Add(15 * time.Minute), TemporaryBlocked: true, BlockedUntil: &second})
	appendAttempt(t, repo, models.AttemptRecord{Identifier: "a@x.com", AttemptedAt: base.Add(16 * time.Minute)})
	appendAttempt(t, repo, models.AttemptRecord{Identifier: "a@x.com", AttemptedAt: base.Add(time.Minute), Outcome: models.OutcomeSuccess, IPAddress: "1.1.1.1"})
	appendAttempt(t, repo, models.AttemptRecord{Identifier: "a@x.com", AttemptedAt: base.Add(2 * time.Minute), Outcome: models.OutcomeSuccess, IPAddress: "2.2.2.2", Channel: models.ChannelOTP})

	lock, err := repo.LatestLockout(ctx, models.ChannelLogin, "a@x.com")
	require.NoError(t, err)
	require.NotNil(t, lock)
	assert.Equal(t, second, *lock.BlockedUntil)
	assert.True(t, lock.LockActiveAt(base.Add(19*time.Minute)))
	assert.False(t, lock.LockActiveAt(second))

	none, err := repo.LatestLockout(ctx, models.ChannelOTP, "a@x.com")
	require.NoError(t, err)
	assert.Nil(t, none)

	last, err := repo.LastSuccess(ctx, "a@x.com")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "2.2.2.2", last.IPAddress, "history reads span channels")

	missing, err := repo.LastSuccess(ctx, "nobody@x.com")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMemoryAttemptRepository_DeviceHistory(t *testing.T) {
	repo := repositories.NewMemoryAttemptRepository()
	ctx := context.Background()

	appendAttempt(t, repo, models.AttemptRecord{Identifier: "a@x.com", AttemptedAt: base.Add(-2 * time.Hour), DeviceID: "old", IPAddress: "3.3.3.3"})
	appendAttempt(t, repo, models.AttemptRecord{Identifier: "a@x.com", AttemptedAt: base.Add(-10 * time.Minute), DeviceID: "dev-1", UserAgent: "Firefox", IPAddress: "1.1.1.1"})
	appendAttempt(t, repo, models.AttemptRecord{Identifier: "b@x.com", AttemptedAt: base.Add(-5 * time.Minute), DeviceID: "dev-1", IPAddress: "2.2.2.2"})

	seen, err := repo.HasSeenDevice(ctx, "a@x.com", "old")
	require.NoError(t, err)
	assert.True(t, seen, "novelty looks at all history")

	seen, err = repo.HasSeenUserAgent(ctx, "b@x.com", "Firefox")
	require.NoError(t, err)
	assert.False(t, seen)

	since := base.Add(-time.Hour)
	last, err := repo.LastSeenForDevice(ctx, "dev-1", since)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "b@x.com", last.Identifier)

	gone, err := repo.LastSeenForDevice(ctx, "old", since)
	require.NoError(t, err)
	assert.Nil(t, gone)

	devices, err := repo.CountDistinctDevices(ctx, "a@x.com", since, "dev-2")
	require.NoError(t, err)
	assert.Equal(t, 2, devices)

	devices, err = repo.CountDistinctDevices(ctx, "a@x.com", since, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, 1, devices, "the incoming device is not counted twice")

	ips, err := repo.CountDistinctIPs(ctx, "a@x.com", since, "")
	require.NoError(t, err)
	assert.Equal(t, 1, ips)

	ids, err := repo.CountDistinctIdentifiersForDevice(ctx, "dev-1", since, "c@x.com")
	require.NoError(t, err)
	assert.Equal(t, 3, ids)
}

func TestMemoryAttemptRepository_Deletes(t *testing.T) {
	repo := repositories.NewMemoryAttemptRepository()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		at := base.Add(time.Duration(i) * time.Hour)
		appendAttempt(t, repo, models.AttemptRecord{Identifier: "a@x.com", AttemptedAt: at, ExpiresAt: at.Add(time.Hour)})
	}

	n, err := repo.DeleteOlderThan(ctx, base.Add(3*time.Hour), 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n, "batch size bounds one call")

	n, err = repo.DeleteOlderThan(ctx, base.Add(3*time.Hour), 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 2, repo.Len())

	// expiry is inclusive of now
	n, err = repo.DeleteExpired(ctx, base.Add(4*time.Hour), 100)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 1, repo.Len())
}

func TestMemoryAttemptRepository_Queries(t *testing.T) {
	repo := repositories.NewMemoryAttemptRepository()
	ctx := context.Background()
	until := base.Add(5 * time.Minute)

	appendAttempt(t, repo, models.AttemptRecord{Identifier: "a@x.com", AttemptedAt: base, IPAddress: "9.9.9.9", DeviceID: "dev-1"})
	appendAttempt(t, repo, models.AttemptRecord{Identifier: "b@x.com", AttemptedAt: base.Add(time.Minute), IPAddress: "9.9.9.9", TemporaryBlocked: true, BlockedUntil: &until})
	appendAttempt(t, repo, models.AttemptRecord{Identifier: "b@x.com", AttemptedAt: base.Add(2 * time.Minute), IPAddress: "8.8.8.8", Channel: models.ChannelOTP})
	appendAttempt(t, repo, models.AttemptRecord{Identifier: "a@x.com", AttemptedAt: base.Add(3 * time.Minute), IPAddress: "7.7.7.7", Outcome: models.OutcomeSuccess})
	appendAttempt(t, repo, models.AttemptRecord{Identifier: "z@x.com", AttemptedAt: base.Add(2 * time.Hour), IPAddress: "9.9.9.9"})

	from, to := base, base.Add(time.Hour)

	summary, err := repo.Summary(ctx, from, to)
	require.NoError(t, err)
	assert.Equal(t, models.AttemptSummary{
		From: from, To: to,
		Total: 4, Successes: 1, Failures: 3, OtpFailures: 1, Lockouts: 1,
		DistinctIdentifiers: 2, DistinctIPs: 3,
	}, *summary)

	top, err := repo.TopIPs(ctx, from, to, 10)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, models.OffenderCount{Key: "9.9.9.9", Failures: 2, LastFailedAt: base.Add(time.Minute)}, top[0])
	assert.Equal(t, "8.8.8.8", top[1].Key)

	devices, err := repo.TopDevices(ctx, from, to, 10)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "dev-1", devices[0].Key)

	byIP, err := repo.ListByIP(ctx, "9.9.9.9", from, to, 10)
	require.NoError(t, err)
	require.Len(t, byIP, 2)
	assert.Equal(t, "b@x.com", byIP[0].Identifier)

	byID, err := repo.ListByIdentifier(ctx, "a@x.com", from, to, 1)
	require.NoError(t, err)
	require.Len(t, byID, 1)
	assert.Equal(t, models.OutcomeSuccess, byID[0].Outcome)
}
