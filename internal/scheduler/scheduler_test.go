package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/SirClappington/rightsguard/internal/domain"
	"github.com/SirClappington/rightsguard/internal/monitor"
	"github.com/SirClappington/rightsguard/internal/queue"
)

type fakeStore struct {
	mu     sync.Mutex
	tracks map[uuid.UUID]*domain.Track
	jobs   []*domain.MonitoringJob
	failed map[uuid.UUID]int
	quota  int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{tracks: map[uuid.UUID]*domain.Track{}, failed: map[uuid.UUID]int{}}
}

func (s *fakeStore) addJob(next *time.Time) *domain.MonitoringJob {
	t := &domain.Track{ID: uuid.New(), OwnerID: uuid.New(), Title: "T", ArtistName: "A"}
	s.tracks[t.ID] = t
	j := &domain.MonitoringJob{ID: uuid.New(), TrackID: t.ID, OwnerID: t.OwnerID, Enabled: true, Status: domain.JobActive, NextRunAt: next}
	s.jobs = append(s.jobs, j)
	return j
}

func (s *fakeStore) GetTrack(_ context.Context, id uuid.UUID) (*domain.Track, error) {
	t, ok := s.tracks[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return t, nil
}

func (s *fakeStore) UpsertJob(_ context.Context, p domain.NewJobParams) (*domain.MonitoringJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.TrackID == p.TrackID {
			return j, nil
		}
	}
	j := &domain.MonitoringJob{ID: uuid.New(), TrackID: p.TrackID, OwnerID: p.OwnerID, Enabled: true,
		Status: domain.JobActive, Frequency: p.Frequency, Platforms: p.Platforms, SearchTerms: p.SearchTerms}
	s.jobs = append(s.jobs, j)
	return j, nil
}

func (s *fakeStore) GetJobByTrack(_ context.Context, trackID uuid.UUID) (*domain.MonitoringJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.TrackID == trackID {
			cp := *j
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *fakeStore) UpdateJob(_ context.Context, trackID, ownerID uuid.UUID, u domain.JobUpdate) (*domain.MonitoringJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.TrackID != trackID || j.OwnerID != ownerID {
			continue
		}
		if u.Enabled != nil {
			j.Enabled = *u.Enabled
			if *u.Enabled {
				j.Status, j.ErrorCount = domain.JobActive, 0
			}
		}
		if u.Frequency != nil && *u.Frequency != j.Frequency {
			j.Frequency = *u.Frequency
			if j.LastRunAt != nil {
				next := j.LastRunAt.Add(j.Frequency.Interval())
				j.NextRunAt = &next
			}
		}
		if len(u.SearchTerms) > 0 {
			j.SearchTerms = u.SearchTerms
		}
		cp := *j
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (s *fakeStore) ClaimDueJobs(_ context.Context, now time.Time, limit int, ttl time.Duration) ([]domain.MonitoringJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []*domain.MonitoringJob
	for _, j := range s.jobs {
		if !j.Enabled || j.Status == domain.JobError {
			continue
		}
		if j.NextRunAt != nil && j.NextRunAt.After(now) {
			continue
		}
		if j.ClaimedUntil != nil && !j.ClaimedUntil.Before(now) {
			continue
		}
		due = append(due, j)
	}
	sort.SliceStable(due, func(a, b int) bool {
		if due[a].NextRunAt == nil {
			return due[b].NextRunAt != nil
		}
		return due[b].NextRunAt != nil && due[a].NextRunAt.Before(*due[b].NextRunAt)
	})
	if len(due) > limit {
		due = due[:limit]
	}
	out := make([]domain.MonitoringJob, 0, len(due))
	until := now.Add(ttl)
	for _, j := range due {
		j.ClaimedUntil = &until
		out = append(out, *j)
	}
	return out, nil
}

func (s *fakeStore) ClaimJob(_ context.Context, id uuid.UUID, now time.Time, ttl time.Duration) (*domain.MonitoringJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.ID != id {
			continue
		}
		if j.ClaimedUntil != nil && !j.ClaimedUntil.Before(now) {
			return nil, domain.ErrConflict
		}
		until := now.Add(ttl)
		j.ClaimedUntil = &until
		cp := *j
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (s *fakeStore) FailRun(_ context.Context, id uuid.UUID, _ string, _ int) (*domain.MonitoringJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed[id]++
	return nil, nil
}

func (s *fakeStore) AddQuotaUsage(_ context.Context, _ time.Time, units int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quota += units
	return nil
}

// fakeMonitor counts calls per track and fails for tracks in failing.
type fakeMonitor struct {
	mu       sync.Mutex
	calls    map[uuid.UUID]int
	order    []uuid.UUID
	failing  map[uuid.UUID]bool
	recorded bool // whether failures come back with res.Job set
	delay    time.Duration
}

func newFakeMonitor() *fakeMonitor {
	return &fakeMonitor{calls: map[uuid.UUID]int{}, failing: map[uuid.UUID]bool{}}
}

func (m *fakeMonitor) Monitor(_ context.Context, trackID, _ uuid.UUID) (monitor.Result, error) {
	time.Sleep(m.delay)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[trackID]++
	m.order = append(m.order, trackID)
	res := monitor.Result{TrackID: trackID, QuotaUnits: 101}
	if m.failing[trackID] {
		if m.recorded {
			res.Job = &domain.MonitoringJob{}
		}
		return res, errors.New("search quota exceeded")
	}
	res.NewAlerts = 1
	return res, nil
}

func newTestScheduler(store Store, m TrackMonitor, concurrency int) *Scheduler {
	return New(store, m, Options{Concurrency: concurrency, ClaimTTL: time.Minute}, zap.NewNop())
}

func TestRunDueJobs_IsolatesFailures(t *testing.T) {
	store := newFakeStore()
	a := store.addJob(nil)
	b := store.addJob(nil)
	c := store.addJob(nil)
	mon := newFakeMonitor()
	mon.failing[b.TrackID] = true
	mon.recorded = true

	res, err := newTestScheduler(store, mon, 2).RunDueJobs(context.Background(), 10)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Claimed)
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 2, res.NewAlerts)
	assert.Equal(t, int64(303), res.QuotaUnits)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), b.ID.String())

	assert.Equal(t, 1, mon.calls[a.TrackID])
	assert.Equal(t, 1, mon.calls[c.TrackID])
	assert.Equal(t, int64(303), store.quota)
	// the monitor recorded the failure itself
	assert.Zero(t, store.failed[b.ID])
}

func TestRunDueJobs_RecordsFailureMonitorCouldNot(t *testing.T) {
	store := newFakeStore()
	j := store.addJob(nil)
	mon := newFakeMonitor()
	mon.failing[j.TrackID] = true

	res, err := newTestScheduler(store, mon, 1).RunDueJobs(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, store.failed[j.ID])
}

func TestRunDueJobs_SelectionOrderAndLimits(t *testing.T) {
	store := newFakeStore()
	now := time.Now().UTC()
	old := now.Add(-2 * time.Hour)
	recent := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	jRecent := store.addJob(&recent)
	jNever := store.addJob(nil)
	jOld := store.addJob(&old)
	store.addJob(&future)
	jErr := store.addJob(nil)
	jErr.Status = domain.JobError
	jOff := store.addJob(nil)
	jOff.Enabled = false

	mon := newFakeMonitor()
	res, err := newTestScheduler(store, mon, 1).RunDueJobs(context.Background(), 2)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Claimed)
	assert.Equal(t, []uuid.UUID{jNever.TrackID, jOld.TrackID}, mon.order)
	assert.Zero(t, mon.calls[jRecent.TrackID])
}

func TestRunDueJobs_OverlappingRunsNeverShareAJob(t *testing.T) {
	store := newFakeStore()
	for i := 0; i < 6; i++ {
		store.addJob(nil)
	}
	mon := newFakeMonitor()
	mon.delay = 5 * time.Millisecond
	s := newTestScheduler(store, mon, 3)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.RunDueJobs(context.Background(), 10)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Len(t, mon.calls, 6)
	for track, n := range mon.calls {
		assert.Equal(t, 1, n, "track %s monitored more than once", track)
	}
}

func TestRunDueJobs_NothingDue(t *testing.T) {
	store := newFakeStore()
	future := time.Now().Add(time.Hour)
	store.addJob(&future)

	res, err := newTestScheduler(store, newFakeMonitor(), 1).RunDueJobs(context.Background(), 10)
	require.NoError(t, err)
	assert.Zero(t, res.Claimed)
	assert.Zero(t, store.quota)
}

func TestRunForTrack_BypassesDueTime(t *testing.T) {
	store := newFakeStore()
	future := time.Now().Add(time.Hour)
	j := store.addJob(&future)
	mon := newFakeMonitor()

	res, err := newTestScheduler(store, mon, 1).RunForTrack(context.Background(), j.TrackID, j.OwnerID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.NewAlerts)
	assert.Equal(t, 1, mon.calls[j.TrackID])
	assert.Equal(t, int64(101), store.quota)
}

func TestRunForTrack_CreatesJob(t *testing.T) {
	store := newFakeStore()
	track := &domain.Track{ID: uuid.New(), OwnerID: uuid.New(), Title: "Neon Nights", ArtistName: "DJ Orbit"}
	store.tracks[track.ID] = track

	_, err := newTestScheduler(store, newFakeMonitor(), 1).RunForTrack(context.Background(), track.ID, track.OwnerID)
	require.NoError(t, err)
	require.Len(t, store.jobs, 1)
	assert.Equal(t, track.ID, store.jobs[0].TrackID)
}

func TestRunForTrack_ConflictWhileClaimed(t *testing.T) {
	store := newFakeStore()
	j := store.addJob(nil)
	until := time.Now().Add(time.Minute)
	j.ClaimedUntil = &until
	mon := newFakeMonitor()

	_, err := newTestScheduler(store, mon, 1).RunForTrack(context.Background(), j.TrackID, j.OwnerID)
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Zero(t, mon.calls[j.TrackID])
}

func TestRunForTrack_WrongOwner(t *testing.T) {
	store := newFakeStore()
	j := store.addJob(nil)

	_, err := newTestScheduler(store, newFakeMonitor(), 1).RunForTrack(context.Background(), j.TrackID, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

type fakeLease struct {
	held     bool
	acquired int
}

func (l *fakeLease) Acquire(context.Context, time.Duration) (bool, error) {
	l.acquired++
	return l.held, nil
}
func (l *fakeLease) Release(context.Context) error { return nil }

type fakeScans struct {
	reqs  []queue.ScanRequest
	moved int
}

func (f *fakeScans) MoveDue(context.Context, int64, int64) error { f.moved++; return nil }
func (f *fakeScans) Pop(_ context.Context, n int) ([]queue.ScanRequest, error) {
	out := f.reqs
	f.reqs = nil
	return out, nil
}

func TestRunner_TickWithoutLeaseDoesNothing(t *testing.T) {
	store := newFakeStore()
	store.addJob(nil)
	mon := newFakeMonitor()
	scans := &fakeScans{}
	lease := &fakeLease{held: false}

	NewRunner(newTestScheduler(store, mon, 1), lease, scans, time.Minute, 10, zap.NewNop()).Tick(context.Background())

	assert.Equal(t, 1, lease.acquired)
	assert.Zero(t, scans.moved)
	assert.Empty(t, mon.calls)
}

func TestRunner_TickRunsScansThenDueJobs(t *testing.T) {
	store := newFakeStore()
	future := time.Now().Add(time.Hour)
	onDemand := store.addJob(&future)
	due := store.addJob(nil)
	mon := newFakeMonitor()
	scans := &fakeScans{reqs: []queue.ScanRequest{{TrackID: onDemand.TrackID, OwnerID: onDemand.OwnerID}}}

	NewRunner(newTestScheduler(store, mon, 1), &fakeLease{held: true}, scans, time.Minute, 10, zap.NewNop()).Tick(context.Background())

	assert.Equal(t, 1, scans.moved)
	assert.Equal(t, []uuid.UUID{onDemand.TrackID, due.TrackID}, mon.order)
}

func TestCreateJob_DefaultsFromTrack(t *testing.T) {
	store := newFakeStore()
	track := &domain.Track{ID: uuid.New(), OwnerID: uuid.New(), Title: "Neon Nights", ArtistName: "DJ Orbit"}
	store.tracks[track.ID] = track
	s := newTestScheduler(store, newFakeMonitor(), 1)

	job, err := s.CreateJob(context.Background(), domain.NewJobParams{
		TrackID: track.ID, OwnerID: track.OwnerID, SearchTerms: []string{"  ", ""},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.Weekly, job.Frequency)
	assert.Equal(t, []string{domain.PlatformYouTube}, job.Platforms)
	assert.Equal(t, []string{"Neon Nights", "DJ Orbit"}, job.SearchTerms)
}

func TestCreateJob_Validation(t *testing.T) {
	store := newFakeStore()
	j := store.addJob(nil)
	s := newTestScheduler(store, newFakeMonitor(), 1)

	_, err := s.CreateJob(context.Background(), domain.NewJobParams{TrackID: j.TrackID, OwnerID: j.OwnerID, Frequency: "monthly"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = s.CreateJob(context.Background(), domain.NewJobParams{TrackID: j.TrackID, OwnerID: j.OwnerID, Platforms: []string{"tiktok"}})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = s.CreateJob(context.Background(), domain.NewJobParams{TrackID: j.TrackID, OwnerID: uuid.New()})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdateJob_ReenableClearsError(t *testing.T) {
	store := newFakeStore()
	j := store.addJob(nil)
	j.Status, j.ErrorCount, j.Enabled = domain.JobError, 3, false
	s := newTestScheduler(store, newFakeMonitor(), 1)

	on := true
	daily := domain.Daily
	got, err := s.UpdateJob(context.Background(), j.TrackID, j.OwnerID, domain.JobUpdate{Enabled: &on, Frequency: &daily})
	require.NoError(t, err)
	assert.True(t, got.Enabled)
	assert.Equal(t, domain.JobActive, got.Status)
	assert.Zero(t, got.ErrorCount)
	assert.Equal(t, domain.Daily, got.Frequency)

	bad := domain.Frequency("yearly")
	_, err = s.UpdateJob(context.Background(), j.TrackID, j.OwnerID, domain.JobUpdate{Frequency: &bad})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestGetJob_OwnerScoped(t *testing.T) {
	store := newFakeStore()
	j := store.addJob(nil)
	s := newTestScheduler(store, newFakeMonitor(), 1)

	got, err := s.GetJob(context.Background(), j.TrackID, j.OwnerID)
	require.NoError(t, err)
	assert.Equal(t, j.ID, got.ID)

	_, err = s.GetJob(context.Background(), j.TrackID, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = s.GetJob(context.Background(), uuid.New(), j.OwnerID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRunner_ZeroIntervalStillRuns(t *testing.T) {
	store := newFakeStore()
	mon := newFakeMonitor()
	lease := &fakeLease{held: true}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := NewRunner(newTestScheduler(store, mon, 1), lease, &fakeScans{}, 0, 10, zap.NewNop())
	require.NotPanics(t, func() { assert.NoError(t, runner.Run(ctx)) })
	assert.Equal(t, defaultInterval, runner.interval)
}
