package vector

import (
	"context"
	"path/filepath"
	"testing"
)

func TestBoltStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.db")
	ctx := context.Background()

	store, err := NewBoltStore(path, 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	if wrote, err := store.UpsertIfAbsent(ctx, "1", []float32{1, 0}, map[string]any{"file_path": "/a.jpg", "id": int64(1)}); err != nil || !wrote {
		t.Fatalf("UpsertIfAbsent = %v, %v", wrote, err)
	}
	if wrote, _ := store.UpsertIfAbsent(ctx, "1", []float32{0, 1}, nil); wrote {
		t.Error("second upsert of the same id should not write")
	}
	_, _ = store.UpsertIfAbsent(ctx, "2", []float32{0, 1}, nil)
	_, _ = store.UpsertIfAbsent(ctx, "3", []float32{1, 0}, nil)
	if err := store.DeleteByIDs(ctx, []string{"2"}); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewBoltStore(path, 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	if reopened.Size() != 2 {
		t.Fatalf("Size after reopen = %d, want 2", reopened.Size())
	}
	if reopened.Type() != "bolt" {
		t.Errorf("Type = %s", reopened.Type())
	}
	matches, err := reopened.Query(ctx, []float32{1, 0}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 2 || matches[0].ID != "1" || matches[1].ID != "3" {
		t.Fatalf("matches = %+v", matches)
	}
	if matches[0].Meta["file_path"] != "/a.jpg" || matches[0].Meta["id"] != int64(1) {
		t.Errorf("meta = %v", matches[0].Meta)
	}
}

func TestBoltStore_LargeIDsSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.db")
	ctx := context.Background()
	const id = int64(1<<53 + 1)

	store, err := NewBoltStore(path, 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	meta := map[string]any{"id": id, "video_frame_id": int64(-3), "timestamp": 2.5}
	if _, err := store.UpsertIfAbsent(ctx, "big", []float32{1, 0}, meta); err != nil {
		t.Fatal(err)
	}
	store.Close()

	reopened, err := NewBoltStore(path, 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	matches, _ := reopened.Query(ctx, []float32{1, 0}, 1)
	if len(matches) != 1 {
		t.Fatalf("matches = %+v", matches)
	}
	got := matches[0].Meta
	if got["id"] != id || got["video_frame_id"] != int64(-3) || got["timestamp"] != 2.5 {
		t.Errorf("meta = %#v, want id %d preserved exactly", got, id)
	}
}

func TestBoltStore_DimensionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.db")
	store, err := NewBoltStore(path, 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if _, err := store.UpsertIfAbsent(ctx, "a", []float32{1, 0, 0}, nil); err == nil {
		t.Error("expected dimension error")
	}
	_, _ = store.UpsertIfAbsent(ctx, "a", []float32{1, 0}, nil)
	store.Close()

	if _, err := NewBoltStore(path, 3, nil); err == nil {
		t.Error("expected error reopening with a different dimension")
	}
}
