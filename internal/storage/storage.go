// Package storage defines the persistence interface for indexed folders, media files and video frames.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/utsushi/internal/models"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when inserting a path that is already stored.
	ErrAlreadyExists = errors.New("already exists")
)

// Storage defines folder, media file and video frame persistence operations.
type Storage interface {
	// Folder operations
	AddFolder(ctx context.Context, path string) (*models.IndexedFolder, error)
	ListFolders(ctx context.Context) ([]*models.IndexedFolder, error)
	GetFolderByPath(ctx context.Context, path string) (*models.IndexedFolder, error)
	RemoveFolder(ctx context.Context, path string) error

	// Media file operations
	IsFileIndexed(ctx context.Context, path string) (bool, error)
	CreateMediaFile(ctx context.Context, mf *models.MediaFile) error
	// CreateVideo inserts a video media file and all its frames in one transaction.
	CreateVideo(ctx context.Context, mf *models.MediaFile, frames []*models.VideoFrame) error
	GetMediaFile(ctx context.Context, id int64) (*models.MediaFile, error)
	GetMediaFilesByPath(ctx context.Context, path string) ([]*models.MediaFile, error)
	// ListFilePathsUnderFolder returns the stored paths equal to folder or below it.
	ListFilePathsUnderFolder(ctx context.Context, folder string) ([]string, error)
	DeleteMediaFile(ctx context.Context, id int64) error
	CountMediaFiles(ctx context.Context) (int64, error)

	// Video frame operations
	GetVideoFrame(ctx context.Context, id int64) (*models.VideoFrame, error)
	GetVideoFramesByMediaFileID(ctx context.Context, mediaFileID int64) ([]*models.VideoFrame, error)
	DeleteVideoFrame(ctx context.Context, id int64) error
	CountVideoFrames(ctx context.Context) (int64, error)

	Close() error
}
