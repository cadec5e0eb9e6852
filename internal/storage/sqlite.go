package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/hyperjump/utsushi/internal/idgen"
	"github.com/hyperjump/utsushi/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db     *sql.DB
	logger *zap.Logger
	retry  RetryConfig
}

// Option configures a SQLiteStorage.
type Option func(*SQLiteStorage)

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(s *SQLiteStorage) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRetryConfig overrides the lock retry policy.
func WithRetryConfig(cfg RetryConfig) Option {
	return func(s *SQLiteStorage) { s.retry = cfg }
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist. ":memory:" opens a private in-memory database.
func NewSQLiteStorage(dbPath string, opts ...Option) (*SQLiteStorage, error) {
	inMemory := dbPath == ":memory:"
	if !inMemory {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	dsn := dbPath + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=30000&_foreign_keys=on&_case_sensitive_like=true"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if inMemory {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s := &SQLiteStorage{db: db, logger: zap.NewNop(), retry: DefaultRetryConfig()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS file_paths (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		file_path TEXT NOT NULL UNIQUE,
		created_at TIMESTAMP NOT NULL,
		last_modified TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS media_files (
		id INTEGER PRIMARY KEY,
		file_path TEXT NOT NULL UNIQUE,
		file_type TEXT NOT NULL,
		file_metadata TEXT,
		created_at TIMESTAMP NOT NULL,
		last_modified TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_media_files_type ON media_files(file_type);

	CREATE TABLE IF NOT EXISTS video_frames (
		id INTEGER PRIMARY KEY,
		media_file_id INTEGER NOT NULL,
		frame_number INTEGER NOT NULL,
		timestamp REAL NOT NULL,
		frame_path TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		FOREIGN KEY (media_file_id) REFERENCES media_files(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_video_frames_media_file ON video_frames(media_file_id, frame_number);
	`
	_, err := db.Exec(schema)
	return err
}

// AddFolder records path as an indexed folder. Adding an existing folder returns the stored row.
func (s *SQLiteStorage) AddFolder(ctx context.Context, path string) (*models.IndexedFolder, error) {
	path = filepath.Clean(path)
	now := time.Now()
	err := s.withRetry(ctx, "add folder", func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO file_paths (file_path, created_at, last_modified) VALUES (?, ?, ?)
			 ON CONFLICT(file_path) DO UPDATE SET last_modified = excluded.last_modified`,
			path, now, now,
		)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.GetFolderByPath(ctx, path)
}

// ListFolders returns all indexed folders ordered by path.
func (s *SQLiteStorage) ListFolders(ctx context.Context) ([]*models.IndexedFolder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, file_path, created_at, last_modified FROM file_paths ORDER BY file_path`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var folders []*models.IndexedFolder
	for rows.Next() {
		var f models.IndexedFolder
		if err := rows.Scan(&f.ID, &f.Path, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, err
		}
		folders = append(folders, &f)
	}
	return folders, rows.Err()
}

// GetFolderByPath returns the folder stored under path.
func (s *SQLiteStorage) GetFolderByPath(ctx context.Context, path string) (*models.IndexedFolder, error) {
	var f models.IndexedFolder
	err := s.db.QueryRowContext(ctx,
		`SELECT id, file_path, created_at, last_modified FROM file_paths WHERE file_path = ?`,
		filepath.Clean(path),
	).Scan(&f.ID, &f.Path, &f.CreatedAt, &f.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("folder %s: %w", path, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// RemoveFolder forgets an indexed folder. Media rows below it are left to the caller.
func (s *SQLiteStorage) RemoveFolder(ctx context.Context, path string) error {
	return s.withRetry(ctx, "remove folder", func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM file_paths WHERE file_path = ?`, filepath.Clean(path))
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("folder %s: %w", path, ErrNotFound)
		}
		return nil
	})
}

// IsFileIndexed reports whether a media file row exists for path.
func (s *SQLiteStorage) IsFileIndexed(ctx context.Context, path string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM media_files WHERE file_path = ?)`, path,
	).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists == 1, nil
}

// CreateMediaFile inserts a media file. A zero ID is replaced by a generated one.
func (s *SQLiteStorage) CreateMediaFile(ctx context.Context, mf *models.MediaFile) error {
	prepareMediaFile(mf)
	meta, err := models.MarshalMetadata(mf.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return s.withRetry(ctx, "create media file", func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO media_files (id, file_path, file_type, file_metadata, created_at, last_modified)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			mf.ID, mf.FilePath, string(mf.FileType), nullString(meta), mf.CreatedAt, mf.UpdatedAt,
		)
		return translateInsertError(err, mf.FilePath)
	})
}

// CreateVideo inserts mf and frames atomically. Frames get mf's ID as their media file ID.
func (s *SQLiteStorage) CreateVideo(ctx context.Context, mf *models.MediaFile, frames []*models.VideoFrame) error {
	prepareMediaFile(mf)
	meta, err := models.MarshalMetadata(mf.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	for _, vf := range frames {
		if vf.ID == 0 {
			vf.ID = idgen.Next()
		}
		vf.MediaFileID = mf.ID
	}

	return s.withRetry(ctx, "create video", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO media_files (id, file_path, file_type, file_metadata, created_at, last_modified)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			mf.ID, mf.FilePath, string(mf.FileType), nullString(meta), mf.CreatedAt, mf.UpdatedAt,
		); err != nil {
			return translateInsertError(err, mf.FilePath)
		}

		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO video_frames (id, media_file_id, frame_number, timestamp, frame_path, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, vf := range frames {
			if _, err := stmt.ExecContext(ctx, vf.ID, vf.MediaFileID, vf.FrameNumber, vf.Timestamp, vf.FramePath, mf.CreatedAt); err != nil {
				return fmt.Errorf("failed to insert frame %d: %w", vf.FrameNumber, err)
			}
		}
		return tx.Commit()
	})
}

// GetMediaFile returns a media file by ID.
func (s *SQLiteStorage) GetMediaFile(ctx context.Context, id int64) (*models.MediaFile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, file_path, file_type, file_metadata, created_at, last_modified
		 FROM media_files WHERE id = ?`, id)
	mf, err := scanMediaFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("media file %d: %w", id, ErrNotFound)
	}
	return mf, err
}

// GetMediaFilesByPath returns the media files stored under path.
func (s *SQLiteStorage) GetMediaFilesByPath(ctx context.Context, path string) ([]*models.MediaFile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, file_path, file_type, file_metadata, created_at, last_modified
		 FROM media_files WHERE file_path = ? ORDER BY id`, path)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []*models.MediaFile
	for rows.Next() {
		mf, err := scanMediaFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, mf)
	}
	return files, rows.Err()
}

// ListFilePathsUnderFolder returns stored media paths equal to folder or inside it, sorted.
// A folder "/a/b" matches "/a/b/x.jpg" but not "/a/bc/x.jpg".
func (s *SQLiteStorage) ListFilePathsUnderFolder(ctx context.Context, folder string) ([]string, error) {
	folder = filepath.Clean(folder)
	prefix := folder
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT file_path FROM media_files
		 WHERE file_path = ? OR file_path LIKE ? ESCAPE '\'
		 ORDER BY file_path`,
		folder, escapeLike(prefix)+"%",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// DeleteMediaFile removes a media file by ID. Deleting a missing row is not an error.
func (s *SQLiteStorage) DeleteMediaFile(ctx context.Context, id int64) error {
	return s.withRetry(ctx, "delete media file", func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM media_files WHERE id = ?`, id)
		return err
	})
}

// CountMediaFiles returns the number of media files.
func (s *SQLiteStorage) CountMediaFiles(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM media_files`).Scan(&n)
	return n, err
}

// GetVideoFrame returns a frame by ID.
func (s *SQLiteStorage) GetVideoFrame(ctx context.Context, id int64) (*models.VideoFrame, error) {
	var vf models.VideoFrame
	err := s.db.QueryRowContext(ctx,
		`SELECT id, media_file_id, frame_number, timestamp, frame_path FROM video_frames WHERE id = ?`, id,
	).Scan(&vf.ID, &vf.MediaFileID, &vf.FrameNumber, &vf.Timestamp, &vf.FramePath)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("video frame %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &vf, nil
}

// GetVideoFramesByMediaFileID returns the frames of a video ordered by frame number.
func (s *SQLiteStorage) GetVideoFramesByMediaFileID(ctx context.Context, mediaFileID int64) ([]*models.VideoFrame, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, media_file_id, frame_number, timestamp, frame_path
		 FROM video_frames WHERE media_file_id = ? ORDER BY frame_number`, mediaFileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var frames []*models.VideoFrame
	for rows.Next() {
		var vf models.VideoFrame
		if err := rows.Scan(&vf.ID, &vf.MediaFileID, &vf.FrameNumber, &vf.Timestamp, &vf.FramePath); err != nil {
			return nil, err
		}
		frames = append(frames, &vf)
	}
	return frames, rows.Err()
}

// DeleteVideoFrame removes a frame by ID.
func (s *SQLiteStorage) DeleteVideoFrame(ctx context.Context, id int64) error {
	return s.withRetry(ctx, "delete video frame", func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM video_frames WHERE id = ?`, id)
		return err
	})
}

// CountVideoFrames returns the number of video frames.
func (s *SQLiteStorage) CountVideoFrames(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM video_frames`).Scan(&n)
	return n, err
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMediaFile(row rowScanner) (*models.MediaFile, error) {
	var mf models.MediaFile
	var fileType string
	var meta sql.NullString
	if err := row.Scan(&mf.ID, &mf.FilePath, &fileType, &meta, &mf.CreatedAt, &mf.UpdatedAt); err != nil {
		return nil, err
	}
	mf.FileType = models.FileType(fileType)
	if meta.Valid {
		m, err := models.UnmarshalMetadata(meta.String)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
		mf.Metadata = m
	}
	return &mf, nil
}

func prepareMediaFile(mf *models.MediaFile) {
	if mf.ID == 0 {
		mf.ID = idgen.Next()
	}
	now := time.Now()
	if mf.CreatedAt.IsZero() {
		mf.CreatedAt = now
	}
	mf.UpdatedAt = now
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func translateInsertError(err error, path string) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return fmt.Errorf("media file %s: %w", path, ErrAlreadyExists)
	}
	return err
}

// escapeLike escapes LIKE wildcards so folder names containing % or _ match literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
