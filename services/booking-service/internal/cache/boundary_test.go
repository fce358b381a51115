package cache

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"
)

type fakeStore struct {
	data map[string][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string][]byte)}
}

func (f *fakeStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *fakeStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	f.data[key] = value
	return nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func TestBoundary_DetailRoundTrip(t *testing.T) {
	store := newFakeStore()
	b := NewBoundary(store, testLogger())
	ctx := context.Background()

	if _, ok := b.GetDetail(ctx, "biz-1"); ok {
		t.Fatalf("expected cache miss")
	}

	b.SetDetail(ctx, "biz-1", []byte(`{"name":"salon"}`))
	got, ok := b.GetDetail(ctx, "biz-1")
	if !ok || string(got) != `{"name":"salon"}` {
		t.Fatalf("get after set = %q, %v", got, ok)
	}
}

func TestBoundary_InvalidateDropsAllBusinessKeys(t *testing.T) {
	store := newFakeStore()
	b := NewBoundary(store, testLogger())
	ctx := context.Background()

	b.SetDetail(ctx, "biz-1", []byte("detail"))
	b.SetLookup(ctx, "biz-1", "staff", []byte("staff"))
	b.SetLookup(ctx, "biz-1", "time_blocks", []byte("blocks"))
	b.SetDetail(ctx, "biz-2", []byte("other"))

	b.Invalidate(ctx, "biz-1")

	if _, ok := b.GetDetail(ctx, "biz-1"); ok {
		t.Fatalf("detail for biz-1 not invalidated")
	}
	if _, ok := b.GetLookup(ctx, "biz-1", "staff"); ok {
		t.Fatalf("staff lookup for biz-1 not invalidated")
	}
	if _, ok := b.GetLookup(ctx, "biz-1", "time_blocks"); ok {
		t.Fatalf("time_blocks lookup for biz-1 not invalidated")
	}
	if _, ok := b.GetDetail(ctx, "biz-2"); !ok {
		t.Fatalf("invalidation must not touch other businesses")
	}
}

func TestBoundary_NilStoreIsNoop(t *testing.T) {
	b := NewBoundary(nil, testLogger())
	ctx := context.Background()

	b.SetDetail(ctx, "biz-1", []byte("x"))
	if _, ok := b.GetDetail(ctx, "biz-1"); ok {
		t.Fatalf("nil store must behave as permanent miss")
	}
	b.Invalidate(ctx, "biz-1")
}
