package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/hyperjump/utsushi/internal/models"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStorage_Folders(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	f1, err := store.AddFolder(ctx, "/photos/")
	if err != nil {
		t.Fatal(err)
	}
	if f1.Path != "/photos" || f1.ID == 0 {
		t.Errorf("AddFolder = %+v", f1)
	}
	f2, err := store.AddFolder(ctx, "/photos")
	if err != nil {
		t.Fatal(err)
	}
	if f2.ID != f1.ID {
		t.Errorf("adding the same folder twice should be idempotent: %d vs %d", f1.ID, f2.ID)
	}
	if _, err := store.AddFolder(ctx, "/archive"); err != nil {
		t.Fatal(err)
	}

	folders, err := store.ListFolders(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(folders) != 2 || folders[0].Path != "/archive" {
		t.Errorf("ListFolders = %v", folders)
	}

	if err := store.RemoveFolder(ctx, "/archive"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetFolderByPath(ctx, "/archive"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetFolderByPath after remove: err = %v, want ErrNotFound", err)
	}
	if err := store.RemoveFolder(ctx, "/archive"); !errors.Is(err, ErrNotFound) {
		t.Errorf("RemoveFolder twice: err = %v, want ErrNotFound", err)
	}
}

func TestSQLiteStorage_MediaFileCRUD(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	mf := &models.MediaFile{FilePath: "/photos/a.jpg", FileType: models.FileTypeImage}
	if err := store.CreateMediaFile(ctx, mf); err != nil {
		t.Fatal(err)
	}
	if mf.ID == 0 || mf.CreatedAt.IsZero() {
		t.Errorf("ID and CreatedAt should be set: %+v", mf)
	}

	indexed, err := store.IsFileIndexed(ctx, "/photos/a.jpg")
	if err != nil || !indexed {
		t.Errorf("IsFileIndexed = %v, %v", indexed, err)
	}
	if indexed, _ := store.IsFileIndexed(ctx, "/photos/b.jpg"); indexed {
		t.Error("unknown path should not be indexed")
	}

	got, err := store.GetMediaFile(ctx, mf.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.FilePath != mf.FilePath || got.FileType != models.FileTypeImage || got.Metadata != nil {
		t.Errorf("GetMediaFile = %+v", got)
	}

	dup := &models.MediaFile{FilePath: "/photos/a.jpg", FileType: models.FileTypeImage}
	if err := store.CreateMediaFile(ctx, dup); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("duplicate insert err = %v, want ErrAlreadyExists", err)
	}

	n, _ := store.CountMediaFiles(ctx)
	if n != 1 {
		t.Errorf("CountMediaFiles = %d, want 1", n)
	}

	if err := store.DeleteMediaFile(ctx, mf.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetMediaFile(ctx, mf.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetMediaFile after delete: err = %v, want ErrNotFound", err)
	}
}

func TestSQLiteStorage_CreateVideo(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	mf := &models.MediaFile{
		FilePath: "/videos/clip.mp4",
		FileType: models.FileTypeVideo,
		Metadata: models.NewVideoMetadata(10, 100),
	}
	frames := []*models.VideoFrame{
		{FrameNumber: 0, Timestamp: 0, FramePath: "/cache/f0.jpg"},
		{FrameNumber: 20, Timestamp: 2, FramePath: "/cache/f20.jpg"},
	}
	if err := store.CreateVideo(ctx, mf, frames); err != nil {
		t.Fatal(err)
	}
	for _, vf := range frames {
		if vf.ID == 0 || vf.MediaFileID != mf.ID {
			t.Errorf("frame not linked: %+v", vf)
		}
	}

	got, err := store.GetMediaFile(ctx, mf.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Metadata == nil || got.Metadata.FPS != 10 || got.Metadata.TotalFrames != 100 || got.Metadata.Duration != 10 {
		t.Errorf("metadata = %+v", got.Metadata)
	}

	stored, err := store.GetVideoFramesByMediaFileID(ctx, mf.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 2 || stored[1].FrameNumber != 20 || stored[1].Timestamp != 2 {
		t.Errorf("frames = %+v", stored)
	}

	frame, err := store.GetVideoFrame(ctx, frames[0].ID)
	if err != nil || frame.FramePath != "/cache/f0.jpg" {
		t.Errorf("GetVideoFrame = %+v, %v", frame, err)
	}
}

func TestSQLiteStorage_CreateVideoRollsBack(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	mf := &models.MediaFile{FilePath: "/videos/bad.mp4", FileType: models.FileTypeVideo}
	frames := []*models.VideoFrame{
		{ID: 42, FrameNumber: 0, FramePath: "/cache/a.jpg"},
		{ID: 42, FrameNumber: 1, FramePath: "/cache/b.jpg"}, // duplicate primary key
	}
	if err := store.CreateVideo(ctx, mf, frames); err == nil {
		t.Fatal("expected error for duplicate frame id")
	}
	if n, _ := store.CountMediaFiles(ctx); n != 0 {
		t.Errorf("media file should be rolled back, count = %d", n)
	}
	if n, _ := store.CountVideoFrames(ctx); n != 0 {
		t.Errorf("frames should be rolled back, count = %d", n)
	}
}

func TestSQLiteStorage_CascadeDelete(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	mf := &models.MediaFile{FilePath: "/videos/clip.mp4", FileType: models.FileTypeVideo}
	if err := store.CreateVideo(ctx, mf, []*models.VideoFrame{{FrameNumber: 0, FramePath: "/c/0.jpg"}}); err != nil {
		t.Fatal(err)
	}
	if err := store.DeleteMediaFile(ctx, mf.ID); err != nil {
		t.Fatal(err)
	}
	if n, _ := store.CountVideoFrames(ctx); n != 0 {
		t.Errorf("frames should cascade with their media file, count = %d", n)
	}
}

func TestSQLiteStorage_VideoFrameCRUD(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	mf := &models.MediaFile{FilePath: "/videos/v.mkv", FileType: models.FileTypeVideo}
	vf := &models.VideoFrame{FrameNumber: 5, Timestamp: 0.5, FramePath: "/c/5.jpg"}
	if err := store.CreateVideo(ctx, mf, []*models.VideoFrame{vf}); err != nil {
		t.Fatal(err)
	}
	if got, err := store.GetVideoFrame(ctx, vf.ID); err != nil || got.MediaFileID != mf.ID || got.FrameNumber != 5 {
		t.Fatalf("GetVideoFrame = %+v, %v", got, err)
	}
	if n, _ := store.CountVideoFrames(ctx); n != 1 {
		t.Errorf("CountVideoFrames = %d, want 1", n)
	}
	if err := store.DeleteVideoFrame(ctx, vf.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetVideoFrame(ctx, vf.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetVideoFrame after delete: err = %v", err)
	}
}

func TestSQLiteStorage_ListFilePathsUnderFolder(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	for _, p := range []string{
		"/photos/a.jpg",
		"/photos/sub/b.jpg",
		"/photos2/c.jpg",
		"/pho_os/d.jpg",
		"/photos%/e.jpg",
	} {
		if err := store.CreateMediaFile(ctx, &models.MediaFile{FilePath: p, FileType: models.FileTypeImage}); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		folder string
		want   []string
	}{
		{"/photos", []string{"/photos/a.jpg", "/photos/sub/b.jpg"}},
		{"/photos/", []string{"/photos/a.jpg", "/photos/sub/b.jpg"}},
		{"/pho_os", []string{"/pho_os/d.jpg"}},
		{"/photos%", []string{"/photos%/e.jpg"}},
		{"/nothing", nil},
	}
	for _, tt := range tests {
		got, err := store.ListFilePathsUnderFolder(ctx, tt.folder)
		if err != nil {
			t.Fatal(err)
		}
		if fmt.Sprint(got) != fmt.Sprint(tt.want) {
			t.Errorf("ListFilePathsUnderFolder(%q) = %v, want %v", tt.folder, got, tt.want)
		}
	}
}

func TestSQLiteStorage_GetMediaFilesByPath(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	if err := store.CreateMediaFile(ctx, &models.MediaFile{FilePath: "/a.png", FileType: models.FileTypeImage}); err != nil {
		t.Fatal(err)
	}
	files, err := store.GetMediaFilesByPath(ctx, "/a.png")
	if err != nil || len(files) != 1 {
		t.Errorf("GetMediaFilesByPath = %v, %v", files, err)
	}
	files, _ = store.GetMediaFilesByPath(ctx, "/missing.png")
	if len(files) != 0 {
		t.Errorf("expected no files, got %v", files)
	}
}

func TestSQLiteStorage_InMemory(t *testing.T) {
	store, err := NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	ctx := context.Background()
	if err := store.CreateMediaFile(ctx, &models.MediaFile{FilePath: "/x.jpg", FileType: models.FileTypeImage}); err != nil {
		t.Fatal(err)
	}
	if n, _ := store.CountMediaFiles(ctx); n != 1 {
		t.Errorf("CountMediaFiles = %d, want 1", n)
	}
}

func TestWithRetry(t *testing.T) {
	store := newTestStorage(t)
	store.retry = RetryConfig{MaxRetries: 3, InitialBackoff: time.Millisecond, MaxBackoff: 4 * time.Millisecond}
	ctx := context.Background()

	t.Run("retries locked errors until success", func(t *testing.T) {
		calls := 0
		err := store.withRetry(ctx, "test", func() error {
			calls++
			if calls < 3 {
				return sqlite3.Error{Code: sqlite3.ErrBusy}
			}
			return nil
		})
		if err != nil || calls != 3 {
			t.Errorf("err = %v, calls = %d", err, calls)
		}
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		calls := 0
		err := store.withRetry(ctx, "test", func() error {
			calls++
			return errors.New("database is locked")
		})
		if err == nil || calls != 4 {
			t.Errorf("err = %v, calls = %d, want 4 calls", err, calls)
		}
	})

	t.Run("does not retry other errors", func(t *testing.T) {
		calls := 0
		err := store.withRetry(ctx, "test", func() error {
			calls++
			return errors.New("syntax error")
		})
		if err == nil || calls != 1 {
			t.Errorf("err = %v, calls = %d", err, calls)
		}
	})
}
