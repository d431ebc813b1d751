package photostore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/uulichen-sketch/PhotoMind/internal/models"
)

func photoFixture(id, description string) models.PhotoMetadata {
	return models.PhotoMetadata{
		ID:          id,
		Filename:    id + ".jpg",
		Description: description,
		Tags:        []string{"test"},
		CreatedAt:   time.Now().UTC(),
	}
}

func TestMemoryStoreAndGet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	p := photoFixture("photo_aaa", "a golden beach at sunset")
	if err := m.Store(ctx, p, "a golden beach at sunset"); err != nil {
		t.Fatalf("store: %v", err)
	}

	got, err := m.Get(ctx, "photo_aaa")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Description != p.Description {
		t.Fatalf("unexpected photo %+v", got)
	}

	if _, err := m.Get(ctx, "photo_missing"); !errors.Is(err, ErrPhotoNotFound) {
		t.Fatalf("expected ErrPhotoNotFound, got %v", err)
	}
}

func TestMemoryUpsert(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_ = m.Store(ctx, photoFixture("photo_a", "first"), "first")
	_ = m.Store(ctx, photoFixture("photo_a", "second"), "second")

	got, err := m.Get(ctx, "photo_a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Description != "second" {
		t.Fatalf("expected upsert to replace, got %q", got.Description)
	}
	list, _ := m.List(ctx, 10, 0)
	if len(list) != 1 {
		t.Fatalf("expected 1 record after upsert, got %d", len(list))
	}
}

func TestMemorySearchRanksByOverlap(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_ = m.Store(ctx, photoFixture("photo_beach", "x"), "beach sunset beach waves")
	_ = m.Store(ctx, photoFixture("photo_city", "x"), "city skyline at night")
	_ = m.Store(ctx, photoFixture("photo_mix", "x"), "beach town street")

	results, err := m.Search(ctx, "beach", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(results))
	}
	if results[0].ID != "photo_beach" {
		t.Fatalf("expected best match first, got %s", results[0].ID)
	}
}

func TestMemoryDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_ = m.Store(ctx, photoFixture("photo_a", "x"), "doc")
	if err := m.Delete(ctx, "photo_a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := m.Delete(ctx, "photo_a"); !errors.Is(err, ErrPhotoNotFound) {
		t.Fatalf("expected ErrPhotoNotFound, got %v", err)
	}
}

func TestMemoryListNewestFirst(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_ = m.Store(ctx, photoFixture("photo_1", "x"), "one")
	_ = m.Store(ctx, photoFixture("photo_2", "x"), "two")
	_ = m.Store(ctx, photoFixture("photo_3", "x"), "three")

	list, err := m.List(ctx, 2, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID != "photo_3" || list[1].ID != "photo_2" {
		t.Fatalf("unexpected order: %+v", list)
	}

	page, _ := m.List(ctx, 2, 2)
	if len(page) != 1 || page[0].ID != "photo_1" {
		t.Fatalf("unexpected page: %+v", page)
	}
}
