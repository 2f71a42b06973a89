package services

import (
	"context"
	"sync"
	"time"

	"github.com/BradenHooton/authgate/internal/models"
)

// MockAttemptLedger implements AttemptLedger for testing. Unset funcs behave
// like an empty ledger.
type MockAttemptLedger struct {
	AppendFunc                            func(ctx context.Context, record *models.AttemptRecord) error
	CountFailuresFunc                     func(ctx context.Context, channel models.Channel, identifier string, since time.Time) (int, error)
	CountFailuresByIPFunc                 func(ctx context.Context, channel models.Channel, ipAddress string, since time.Time) (int, error)
	LatestLockoutFunc                     func(ctx context.Context, channel models.Channel, identifier string) (*models.AttemptRecord, error)
	LastSuccessFunc                       func(ctx context.Context, identifier string) (*models.AttemptRecord, error)
	HasSeenDeviceFunc                     func(ctx context.Context, identifier, deviceID string) (bool, error)
	HasSeenUserAgentFunc                  func(ctx context.Context, identifier, userAgent string) (bool, error)
	LastSeenForDeviceFunc                 func(ctx context.Context, deviceID string, since time.Time) (*models.AttemptRecord, error)
	CountDistinctDevicesFunc              func(ctx context.Context, identifier string, since time.Time, including string) (int, error)
	CountDistinctIPsFunc                  func(ctx context.Context, identifier string, since time.Time, including string) (int, error)
	CountDistinctIdentifiersForDeviceFunc func(ctx context.Context, deviceID string, since time.Time, including string) (int, error)
}

func (m *MockAttemptLedger) Append(ctx context.Context, record *models.AttemptRecord) error {
	if m.AppendFunc != nil {
		return m.AppendFunc(ctx, record)
	}
	return nil
}

func (m *MockAttemptLedger) CountFailures(ctx context.Context, channel models.Channel, identifier string, since time.Time) (int, error) {
	if m.CountFailuresFunc != nil {
		return m.CountFailuresFunc(ctx, channel, identifier, since)
	}
	return 0, nil
}

func (m *MockAttemptLedger) CountFailuresByIP(ctx context.Context, channel models.Channel, ipAddress string, since time.Time) (int, error) {
	if m.CountFailuresByIPFunc != nil {
		return m.CountFailuresByIPFunc(ctx, channel, ipAddress, since)
	}
	return 0, nil
}

func (m *MockAttemptLedger) LatestLockout(ctx context.Context, channel models.Channel, identifier string) (*models.AttemptRecord, error) {
	if m.LatestLockoutFunc != nil {
		return m.LatestLockoutFunc(ctx, channel, identifier)
	}
	return nil, nil
}

func (m *MockAttemptLedger) LastSuccess(ctx context.Context, identifier string) (*models.AttemptRecord, error) {
	if m.LastSuccessFunc != nil {
		return m.LastSuccessFunc(ctx, identifier)
	}
	return nil, nil
}

func (m *MockAttemptLedger) HasSeenDevice(ctx context.Context, identifier, deviceID string) (bool, error) {
	if m.HasSeenDeviceFunc != nil {
		return m.HasSeenDeviceFunc(ctx, identifier, deviceID)
	}
	return false, nil
}

func (m *MockAttemptLedger) HasSeenUserAgent(ctx context.Context, identifier, userAgent string) (bool, error) {
	if m.HasSeenUserAgentFunc != nil {
		return m.HasSeenUserAgentFunc(ctx, identifier, userAgent)
	}
	return false, nil
}

func (m *MockAttemptLedger) LastSeenForDevice(ctx context.Context, deviceID string, since time.Time) (*models.AttemptRecord, error) {
	if m.LastSeenForDeviceFunc != nil {
		return m.LastSeenForDeviceFunc(ctx, deviceID, since)
	}
	return nil, nil
}

func (m *MockAttemptLedger) CountDistinctDevices(ctx context.Context, identifier string, since time.Time, including string) (int, error) {
	if m.CountDistinctDevicesFunc != nil {
		return m.CountDistinctDevicesFunc(ctx, identifier, since, including)
	}
	return 0, nil
}

func (m *MockAttemptLedger) CountDistinctIPs(ctx context.Context, identifier string, since time.Time, including string) (int, error) {
	if m.CountDistinctIPsFunc != nil {
		return m.CountDistinctIPsFunc(ctx, identifier, since, including)
	}
	return 0, nil
}

func (m *MockAttemptLedger) CountDistinctIdentifiersForDevice(ctx context.Context, deviceID string, since time.Time, including string) (int, error) {
	if m.CountDistinctIdentifiersForDeviceFunc != nil {
		return m.CountDistinctIdentifiersForDeviceFunc(ctx, deviceID, since, including)
	}
	return 0, nil
}

// MockRetentionLedger implements RetentionLedger for testing
type MockRetentionLedger struct {
	DeleteExpiredFunc   func(ctx context.Context, now time.Time, batchSize int) (int64, error)
	DeleteOlderThanFunc func(ctx context.Context, cutoff time.Time, batchSize int) (int64, error)
}

func (m *MockRetentionLedger) DeleteExpired(ctx context.Context, now time.Time, batchSize int) (int64, error) {
	if m.DeleteExpiredFunc != nil {
		return m.DeleteExpiredFunc(ctx, now, batchSize)
	}
	return 0, nil
}

func (m *MockRetentionLedger) DeleteOlderThan(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	if m.DeleteOlderThanFunc != nil {
		return m.DeleteOlderThanFunc(ctx, cutoff, batchSize)
	}
	return 0, nil
}

// MockIPLockoutStore implements IPLockoutStore for testing
type MockIPLockoutStore struct {
	GetFunc         func(ctx context.Context, ipAddress string) (*time.Time, error)
	SetIfAbsentFunc func(ctx context.Context, ipAddress string, until time.Time) error
}

func (m *MockIPLockoutStore) Get(ctx context.Context, ipAddress string) (*time.Time, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, ipAddress)
	}
	return nil, nil
}

func (m *MockIPLockoutStore) SetIfAbsent(ctx context.Context, ipAddress string, until time.Time) error {
	if m.SetIfAbsentFunc != nil {
		return m.SetIfAbsentFunc(ctx, ipAddress, until)
	}
	return nil
}

// MockSecurityEventRepository implements SecurityEventRepository for testing
type MockSecurityEventRepository struct {
	CreateFunc func(ctx context.Context, event *models.SecurityEvent) error
}

func (m *MockSecurityEventRepository) Create(ctx context.Context, event *models.SecurityEvent) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, event)
	}
	return nil
}

// RecordingEventSink collects emitted security events
type RecordingEventSink struct {
	mu     sync.Mutex
	events []*models.SecurityEvent
}

func (r *RecordingEventSink) Emit(_ context.Context, event *models.SecurityEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns a snapshot of everything emitted so far
func (r *RecordingEventSink) Events() []*models.SecurityEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*models.SecurityEvent(nil), r.events...)
}

// Last returns the most recent event or nil
func (r *RecordingEventSink) Last() *models.SecurityEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return nil
	}
	return r.events[len(r.events)-1]
}

// TestClock is a manually advanced clock
type TestClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewTestClock starts a clock at t
func NewTestClock(t time.Time) *TestClock {
	return &TestClock{now: t}
}

func (c *TestClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *TestClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
