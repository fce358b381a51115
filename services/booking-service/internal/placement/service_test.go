package placement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/slotsmith/slotsmith/services/booking-service/internal/availability"
	"github.com/slotsmith/slotsmith/services/booking-service/internal/domain"
	"github.com/slotsmith/slotsmith/services/booking-service/internal/outbox"
	"github.com/slotsmith/slotsmith/services/booking-service/internal/reservation"
)

// monday is 2026-02-02, a Monday.
var monday = time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)

type fakeSchedules struct {
	layers domain.ScheduleLayers
}

func (f *fakeSchedules) ScheduleLayers(_ context.Context, _, staffID string, _, _ time.Time) (domain.ScheduleLayers, error) {
	l := f.layers
	l.StaffID = staffID
	return l, nil
}

type fakeBusinesses struct{}

func (fakeBusinesses) Location(context.Context, string) (*time.Location, error) {
	return time.UTC, nil
}

type fakeBlocks struct {
	blocks map[string]domain.TimeBlockType
}

func (f *fakeBlocks) Get(_ context.Context, _, id string) (domain.TimeBlockType, error) {
	blk, ok := f.blocks[id]
	if !ok {
		return domain.TimeBlockType{}, errors.New("time block type not found")
	}
	return blk, nil
}

// fakeStore mimics the Postgres repository, including the exclusion
// constraint: writes are serialized behind a mutex and an overlapping active
// interval fails with reservation.ErrOverlap.
type fakeStore struct {
	mu   sync.Mutex
	seq  int
	rows map[string]domain.Reservation
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[string]domain.Reservation)}
}

func (f *fakeStore) overlapsLocked(res domain.Reservation, excludeID string) bool {
	for _, other := range f.rows {
		if other.ID == excludeID || other.StaffID == "" || other.StaffID != res.StaffID {
			continue
		}
		if !other.Status.Active() || !other.Day.Equal(res.Day) {
			continue
		}
		if res.StartMinute < other.EndMinute() && other.StartMinute < res.EndMinute() {
			return true
		}
	}
	return false
}

func (f *fakeStore) Create(_ context.Context, res *domain.Reservation, _ outbox.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if res.StaffID != "" && f.overlapsLocked(*res, "") {
		return reservation.ErrOverlap
	}
	f.seq++
	res.ID = fmt.Sprintf("res-%d", f.seq)
	res.CreatedAt = time.Now()
	f.rows[res.ID] = *res
	return nil
}

func (f *fakeStore) Get(_ context.Context, businessID, id string) (domain.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	res, ok := f.rows[id]
	if !ok || res.BusinessID != businessID {
		return domain.Reservation{}, reservation.ErrNotFound
	}
	return res, nil
}

func (f *fakeStore) ListActiveDay(_ context.Context, staffID string, day time.Time) ([]domain.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Reservation
	for _, res := range f.rows {
		if res.StaffID == staffID && res.Day.Equal(day) && res.Status.Active() {
			out = append(out, res)
		}
	}
	return out, nil
}

func (f *fakeStore) Reschedule(_ context.Context, res domain.Reservation, _ outbox.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[res.ID]; !ok {
		return reservation.ErrNotFound
	}
	if res.StaffID != "" && f.overlapsLocked(res, res.ID) {
		return reservation.ErrOverlap
	}
	res.Synced = false
	res.SyncedAt = nil
	f.rows[res.ID] = res
	return nil
}

func (f *fakeStore) Cancel(_ context.Context, businessID, id string, _ outbox.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	res, ok := f.rows[id]
	if !ok || res.BusinessID != businessID {
		return reservation.ErrNotFound
	}
	res.Status = domain.StatusCancelled
	res.Synced = false
	res.SyncedAt = nil
	res.ExternalEventID = ""
	f.rows[id] = res
	return nil
}

func newTestService(store *fakeStore) *Service {
	var weekly domain.WeeklyTemplate
	for wd := 1; wd <= 5; wd++ {
		weekly[wd] = domain.DayPattern{Working: true, Shifts: []domain.Shift{{StartMinute: 9 * 60, EndMinute: 17 * 60}}}
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	return NewService(
		&fakeSchedules{layers: domain.ScheduleLayers{Weekly: weekly}},
		store,
		&fakeBlocks{blocks: map[string]domain.TimeBlockType{
			"blk-60": {ID: "blk-60", Name: "Consultation", DurationMin: 60},
		}},
		fakeBusinesses{},
		logger,
	)
}

func placeInput(startMinute, durationMin int) PlaceInput {
	return PlaceInput{
		BusinessID:  "biz-1",
		StaffID:     "staff-1",
		ClientName:  "Ada",
		ServiceName: "Cut",
		Day:         monday,
		StartMinute: startMinute,
		DurationMin: durationMin,
	}
}

func wantRejected(t *testing.T, err error, reason Reason) {
	t.Helper()
	var rej *RejectedError
	if !errors.As(err, &rej) {
		t.Fatalf("expected RejectedError, got %v", err)
	}
	if rej.Reason != reason {
		t.Fatalf("reason = %s, want %s", rej.Reason, reason)
	}
}

func TestPlace_WithinAvailability(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	res, err := svc.Place(context.Background(), placeInput(9*60, 60))
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	if res.ID == "" {
		t.Fatalf("expected assigned id")
	}
	if res.Status != domain.StatusPending {
		t.Fatalf("status = %s, want pending", res.Status)
	}
}

func TestPlace_OutsideAvailability(t *testing.T) {
	svc := newTestService(newFakeStore())

	_, err := svc.Place(context.Background(), placeInput(8*60, 30))
	wantRejected(t, err, ReasonOutsideAvailability)
}

func TestPlace_OverlapReportedBeforeAvailability(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	ctx := context.Background()

	if _, err := svc.Place(ctx, placeInput(9*60, 60)); err != nil {
		t.Fatalf("first Place: %v", err)
	}
	// 09:30-10:30 collides with the booked 09:00-10:00; the reason must name
	// the overlap, not the shrunken bookable window.
	_, err := svc.Place(ctx, placeInput(9*60+30, 60))
	wantRejected(t, err, ReasonOverlap)
}

func TestPlace_InvalidDuration(t *testing.T) {
	svc := newTestService(newFakeStore())

	_, err := svc.Place(context.Background(), placeInput(9*60, 0))
	wantRejected(t, err, ReasonInvalidDuration)
}

func TestPlace_BlockDurationMismatch(t *testing.T) {
	svc := newTestService(newFakeStore())

	in := placeInput(9*60, 45)
	in.TimeBlockTypeID = "blk-60"
	_, err := svc.Place(context.Background(), in)
	wantRejected(t, err, ReasonInvalidDuration)
}

func TestPlace_CrossesDayBoundary(t *testing.T) {
	svc := newTestService(newFakeStore())

	_, err := svc.Place(context.Background(), placeInput(23*60+30, 60))
	wantRejected(t, err, ReasonOutsideAvailability)
}

func TestPlace_NoStaffSkipsAvailability(t *testing.T) {
	svc := newTestService(newFakeStore())

	in := placeInput(3*60, 30)
	in.StaffID = ""
	if _, err := svc.Place(context.Background(), in); err != nil {
		t.Fatalf("unassigned reservation must skip the schedule check: %v", err)
	}
}

func TestUpdate_ExcludesOwnInterval(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	ctx := context.Background()

	res, err := svc.Place(ctx, placeInput(9*60, 60))
	if err != nil {
		t.Fatalf("Place: %v", err)
	}

	// Shift by 30 minutes into the half currently occupied by itself.
	start := 9*60 + 30
	got, err := svc.Update(ctx, "biz-1", res.ID, Patch{StartMinute: &start})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.StartMinute != start {
		t.Fatalf("start = %d, want %d", got.StartMinute, start)
	}
}

func TestUpdate_RejectsOverlapWithOther(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	ctx := context.Background()

	if _, err := svc.Place(ctx, placeInput(9*60, 60)); err != nil {
		t.Fatalf("Place: %v", err)
	}
	second, err := svc.Place(ctx, placeInput(11*60, 60))
	if err != nil {
		t.Fatalf("Place: %v", err)
	}

	start := 9*60 + 30
	_, err = svc.Update(ctx, "biz-1", second.ID, Patch{StartMinute: &start})
	wantRejected(t, err, ReasonOverlap)
}

func TestUpdate_KeepsBlockDurationConstraint(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	ctx := context.Background()

	in := placeInput(9*60, 60)
	in.TimeBlockTypeID = "blk-60"
	res, err := svc.Place(ctx, in)
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	if res.TimeBlockTypeID != "blk-60" {
		t.Fatalf("block link not persisted, got %q", res.TimeBlockTypeID)
	}

	// The linked block keeps constraining the duration after placement.
	duration := 45
	_, err = svc.Update(ctx, "biz-1", res.ID, Patch{DurationMin: &duration})
	wantRejected(t, err, ReasonInvalidDuration)

	duration = 60
	start := 10 * 60
	if _, err := svc.Update(ctx, "biz-1", res.ID, Patch{StartMinute: &start, DurationMin: &duration}); err != nil {
		t.Fatalf("Update keeping block duration: %v", err)
	}
}

func TestUpdate_CancelledIsNotUpdatable(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	ctx := context.Background()

	res, err := svc.Place(ctx, placeInput(9*60, 60))
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	if err := svc.Cancel(ctx, "biz-1", res.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	start := 10 * 60
	if _, err := svc.Update(ctx, "biz-1", res.ID, Patch{StartMinute: &start}); !errors.Is(err, ErrNotActive) {
		t.Fatalf("expected ErrNotActive, got %v", err)
	}
}

func TestCancel_FreesIntervalImmediately(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	ctx := context.Background()

	res, err := svc.Place(ctx, placeInput(9*60, 60))
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	if err := svc.Cancel(ctx, "biz-1", res.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	avail, err := svc.ResolveDay(ctx, "biz-1", "staff-1", monday)
	if err != nil {
		t.Fatalf("ResolveDay: %v", err)
	}
	if !availability.Contains(avail.Bookable, 9*60, 10*60) {
		t.Fatalf("cancelled interval must be bookable again, got %v", avail.Bookable)
	}

	if _, err := svc.Place(ctx, placeInput(9*60, 60)); err != nil {
		t.Fatalf("re-placing freed interval: %v", err)
	}
}

func TestResolveDay_SubtractsBookedFromBookableOnly(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	ctx := context.Background()

	if _, err := svc.Place(ctx, placeInput(10*60, 60)); err != nil {
		t.Fatalf("Place: %v", err)
	}

	avail, err := svc.ResolveDay(ctx, "biz-1", "staff-1", monday)
	if err != nil {
		t.Fatalf("ResolveDay: %v", err)
	}
	if !availability.Contains(avail.Nominal, 10*60, 11*60) {
		t.Fatalf("nominal must keep the booked interval, got %v", avail.Nominal)
	}
	if availability.Contains(avail.Bookable, 10*60, 11*60) {
		t.Fatalf("bookable must exclude the booked interval, got %v", avail.Bookable)
	}
}

// Concurrent placements of the same interval must produce exactly one winner;
// every loser gets an overlap rejection, never a second row.
func TestPlace_ConcurrentSingleWinner(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	ctx := context.Background()

	const n = 16
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Place(ctx, placeInput(9*60, 60))
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
			continue
		}
		wantRejected(t, err, ReasonOverlap)
	}
	if winners != 1 {
		t.Fatalf("winners = %d, want exactly 1", winners)
	}

	active, err := store.ListActiveDay(ctx, "staff-1", monday)
	if err != nil {
		t.Fatalf("ListActiveDay: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("stored active reservations = %d, want 1", len(active))
	}
}
