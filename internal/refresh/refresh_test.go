package refresh

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/disintegration/imaging"

	"github.com/hyperjump/utsushi/internal/embedding"
	"github.com/hyperjump/utsushi/internal/indexer"
	"github.com/hyperjump/utsushi/internal/models"
	"github.com/hyperjump/utsushi/internal/scanner"
	"github.com/hyperjump/utsushi/internal/storage"
	"github.com/hyperjump/utsushi/internal/vector"
	"github.com/hyperjump/utsushi/internal/video"
	"github.com/hyperjump/utsushi/internal/workers"
)

type recorder struct {
	mu       sync.Mutex
	progress []string
	finished []models.RefreshStats
	// onProgress runs after each progress event is recorded.
	onProgress func(folder string, processed int)
}

func (r *recorder) Progress(folder string, processed, total int) {
	r.mu.Lock()
	r.progress = append(r.progress, fmt.Sprintf("%s %d/%d", folder, processed, total))
	r.mu.Unlock()
	if r.onProgress != nil {
		r.onProgress(folder, processed)
	}
}

func (r *recorder) Finished(stats models.RefreshStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, stats)
}

type env struct {
	coord   *Coordinator
	store   *storage.SQLiteStorage
	vectors *vector.MemoryStore
	root    string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewSQLiteStorage(filepath.Join(dir, "media.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	vectors, _ := vector.NewMemoryStore(8)
	sc := scanner.New([]string{".png"}, []string{".mp4"})
	idx := indexer.New(store, embedding.NewMockEmbedder(8), vectors, sc,
		video.NewFFmpegDecoder("", ""), video.NewThumbnailWriter(0, 0),
		indexer.Config{CacheDir: filepath.Join(dir, "cache"), FrameSampleRate: 0.5},
		indexer.WithWorkers(workers.NewPool(2)))
	root := filepath.Join(dir, "photos")
	if err := os.MkdirAll(root, 0755); err != nil {
		t.Fatal(err)
	}
	return &env{coord: New(store, sc, idx), store: store, vectors: vectors, root: root}
}

func (e *env) write(t *testing.T, name string) string {
	t.Helper()
	return writeImage(t, e.root, name)
}

func writeImage(t *testing.T, dir, name string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, name)
	c := color.NRGBA{R: uint8(len(name) * 10), G: name[0], A: 255}
	if err := imaging.Save(imaging.New(4, 4, c), path); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDiff(t *testing.T) {
	toAdd, toRemove := Diff([]string{"d", "b", "c"}, []string{"c", "a", "b"})
	if fmt.Sprint(toAdd) != "[d]" || fmt.Sprint(toRemove) != "[a]" {
		t.Errorf("Diff = %v, %v", toAdd, toRemove)
	}
	toAdd, toRemove = Diff(nil, []string{"y", "x"})
	if len(toAdd) != 0 || fmt.Sprint(toRemove) != "[x y]" {
		t.Errorf("Diff(empty current) = %v, %v", toAdd, toRemove)
	}
	toAdd, toRemove = Diff([]string{"a"}, []string{"a"})
	if len(toAdd) != 0 || len(toRemove) != 0 {
		t.Errorf("Diff(equal) = %v, %v", toAdd, toRemove)
	}
}

func TestRefresh_AddsAndRemoves(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.write(t, "a.png")
	b := e.write(t, "bb.png")
	c := e.write(t, "ccc.png")

	report, err := e.coord.AddFolder(ctx, e.root, nil)
	if err != nil || len(report.Indexed) != 3 {
		t.Fatalf("AddFolder = %+v, %v", report, err)
	}

	if err := os.Remove(a); err != nil {
		t.Fatal(err)
	}
	d := e.write(t, "dddd.png")

	rec := &recorder{}
	stats, err := e.coord.Refresh(ctx, []string{e.root}, rec)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Added != 1 || stats.Removed != 1 || stats.Failed != 0 {
		t.Errorf("stats = %+v, want added=1 removed=1", stats)
	}
	if len(rec.finished) != 1 || rec.finished[0] != stats {
		t.Errorf("Finished calls = %v", rec.finished)
	}
	if len(rec.progress) != 2 || rec.progress[1] != "photos 1/1" {
		t.Errorf("progress = %v", rec.progress)
	}

	paths, _ := e.store.ListFilePathsUnderFolder(ctx, e.root)
	if fmt.Sprint(paths) != fmt.Sprint([]string{b, c, d}) {
		t.Errorf("stored paths = %v, want %v", paths, []string{b, c, d})
	}
	if e.vectors.Size() != 3 {
		t.Errorf("vectors = %d, want 3", e.vectors.Size())
	}
}

func TestRefresh_CancelKeepsCompletedFolderStats(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	first := filepath.Join(filepath.Dir(e.root), "first")
	second := filepath.Join(filepath.Dir(e.root), "second")

	gone := writeImage(t, first, "a.png")
	writeImage(t, first, "bb.png")
	if _, err := e.coord.AddFolder(ctx, first, nil); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(gone); err != nil {
		t.Fatal(err)
	}
	writeImage(t, first, "ccc.png")
	writeImage(t, first, "dddd.png")
	for i := 0; i < 6; i++ {
		writeImage(t, second, fmt.Sprintf("img%d.png", i))
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	rec := &recorder{onProgress: func(folder string, processed int) {
		if folder == "second" && processed == 0 {
			cancel()
		}
	}}

	stats, err := e.coord.Refresh(runCtx, []string{first, second}, rec)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	want := models.RefreshStats{Added: 2, Removed: 1}
	if stats != want {
		t.Errorf("stats = %+v, want %+v", stats, want)
	}
	if len(rec.finished) != 0 {
		t.Errorf("Finished must not be called on cancel: %v", rec.finished)
	}
	if paths, _ := e.store.ListFilePathsUnderFolder(ctx, second); len(paths) != 0 {
		t.Errorf("second folder should be untouched, got %v", paths)
	}
	n, _ := e.store.CountMediaFiles(ctx)
	if n != 3 || e.vectors.Size() != 3 {
		t.Errorf("rows = %d, vectors = %d; want 3 and 3", n, e.vectors.Size())
	}
}

func TestRefresh_CancelDuringIndexingCountsRunningFilesAsAdded(t *testing.T) {
	e := newEnv(t)
	for i := 0; i < 6; i++ {
		e.write(t, fmt.Sprintf("img%d.png", i))
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := &recorder{onProgress: func(_ string, processed int) {
		if processed == 1 {
			cancel()
		}
	}}

	stats, err := e.coord.Refresh(ctx, []string{e.root}, rec)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if stats.Failed != 0 {
		t.Errorf("files running at cancel must not count as failed: %+v", stats)
	}
	if stats.Added < 1 {
		t.Errorf("stats = %+v, want at least the first file added", stats)
	}
	n, _ := e.store.CountMediaFiles(context.Background())
	if int(n) != stats.Added || e.vectors.Size() != int(n) {
		t.Errorf("rows = %d, vectors = %d, stats.Added = %d", n, e.vectors.Size(), stats.Added)
	}
}

func TestRefresh_MissingFolderRemovesFiles(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.write(t, "a.png")
	if _, err := e.coord.AddFolder(ctx, e.root, nil); err != nil {
		t.Fatal(err)
	}
	if err := os.RemoveAll(e.root); err != nil {
		t.Fatal(err)
	}
	stats, err := e.coord.RefreshAll(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Removed != 1 {
		t.Errorf("stats = %+v, want removed=1", stats)
	}
	if n, _ := e.store.CountMediaFiles(ctx); n != 0 {
		t.Errorf("media files = %d, want 0", n)
	}
	if e.vectors.Size() != 0 {
		t.Errorf("vectors = %d, want 0", e.vectors.Size())
	}
}

func TestAddFolder_RecordsFolder(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.write(t, "a.png")
	rec := &recorder{}
	for i := 0; i < 2; i++ {
		if _, err := e.coord.AddFolder(ctx, e.root, rec); err != nil {
			t.Fatal(err)
		}
	}
	folders, _ := e.store.ListFolders(ctx)
	if len(folders) != 1 || folders[0].Path != e.root {
		t.Errorf("folders = %v", folders)
	}
	if n, _ := e.store.CountMediaFiles(ctx); n != 1 {
		t.Errorf("media files = %d, want 1", n)
	}
	if len(rec.finished) != 2 {
		t.Errorf("Finished calls = %d, want 2", len(rec.finished))
	}
}

func TestRefresh_UnreadableSubfolderKeepsStoredFiles(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for root")
	}
	e := newEnv(t)
	ctx := context.Background()
	album := filepath.Join(e.root, "album")
	writeImage(t, album, "a.png")
	writeImage(t, album, "bb.png")
	if _, err := e.coord.AddFolder(ctx, e.root, nil); err != nil {
		t.Fatal(err)
	}
	e.write(t, "ccc.png")
	if err := os.Chmod(album, 0); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chmod(album, 0755) })

	stats, err := e.coord.Refresh(ctx, []string{e.root}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if stats != (models.RefreshStats{Added: 1}) {
		t.Errorf("stats = %+v, want one added and nothing removed", stats)
	}
	if n, _ := e.store.CountMediaFiles(ctx); n != 3 {
		t.Errorf("CountMediaFiles = %d, want 3", n)
	}
}

func TestRemoveFolder(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.write(t, "a.png")
	nested := filepath.Join(e.root, "trip")
	kept := writeImage(t, nested, "bb.png")
	other := filepath.Join(filepath.Dir(e.root), "other")
	survivor := writeImage(t, other, "ccc.png")

	for _, f := range []string{e.root, nested, other} {
		if _, err := e.coord.AddFolder(ctx, f, nil); err != nil {
			t.Fatal(err)
		}
	}
	if e.vectors.Size() != 3 {
		t.Fatalf("vectors = %d, want 3", e.vectors.Size())
	}

	n, err := e.coord.RemoveFolder(ctx, e.root)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("removed %d files, want 1 (the nested folder keeps its own)", n)
	}
	for _, p := range []string{kept, survivor} {
		if ok, _ := e.store.IsFileIndexed(ctx, p); !ok {
			t.Errorf("%s should still be indexed", p)
		}
	}
	if e.vectors.Size() != 2 {
		t.Errorf("vectors = %d, want 2", e.vectors.Size())
	}
	folders, _ := e.store.ListFolders(ctx)
	if len(folders) != 2 {
		t.Errorf("folders = %d, want 2", len(folders))
	}

	if _, err := e.coord.RemoveFolder(ctx, e.root); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("second RemoveFolder err = %v, want ErrNotFound", err)
	}
}
