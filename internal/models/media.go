// Package models defines core data structures for indexed folders, media files, video frames, and search results.
package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FileType classifies a media file or a vector store entry.
type FileType string

const (
	// FileTypeImage is a still image.
	FileTypeImage FileType = "image"
	// FileTypeVideo is a video container (not its frames).
	FileTypeVideo FileType = "video"
	// FileTypeVideoFrame is a sampled frame of a video. Only used for vector store entries.
	FileTypeVideoFrame FileType = "video_frame"
	// FileTypeUnsupported is anything the scanner does not index.
	FileTypeUnsupported FileType = "unsupported"
)

// IndexedFolder is a filesystem root the user opted to index.
type IndexedFolder struct {
	ID        int64     `json:"id" db:"id"`
	Path      string    `json:"path" db:"file_path"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"last_modified"`
}

// MediaFile is one indexed image or one indexed video container.
type MediaFile struct {
	ID        int64          `json:"id" db:"id"`
	FilePath  string         `json:"file_path" db:"file_path"`
	FileType  FileType       `json:"file_type" db:"file_type"`
	Metadata  *VideoMetadata `json:"metadata,omitempty" db:"file_metadata"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt time.Time      `json:"updated_at" db:"last_modified"`
}

// VideoMetadata is the container information persisted for videos.
type VideoMetadata struct {
	FPS         float64 `json:"fps"`
	TotalFrames int     `json:"total_frames"`
	Duration    float64 `json:"duration"`
}

// NewVideoMetadata derives the duration from fps and frame count.
func NewVideoMetadata(fps float64, totalFrames int) *VideoMetadata {
	var duration float64
	if fps > 0 {
		duration = float64(totalFrames) / fps
	}
	return &VideoMetadata{FPS: fps, TotalFrames: totalFrames, Duration: duration}
}

// MarshalMetadata returns the JSON blob stored in the file_metadata column.
// A nil metadata marshals to the empty string.
func MarshalMetadata(m *VideoMetadata) (string, error) {
	if m == nil {
		return "", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// UnmarshalMetadata parses the file_metadata column. Empty input yields nil.
func UnmarshalMetadata(s string) (*VideoMetadata, error) {
	if s == "" {
		return nil, nil
	}
	var m VideoMetadata
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// VideoFrame is a sampled frame of a video with a thumbnail persisted on disk.
type VideoFrame struct {
	ID          int64   `json:"id" db:"id"`
	MediaFileID int64   `json:"media_file_id" db:"media_file_id"`
	FrameNumber int     `json:"frame_number" db:"frame_number"`
	Timestamp   float64 `json:"timestamp" db:"timestamp"`
	FramePath   string  `json:"frame_path" db:"frame_path"`
}

// VectorID returns the vector store id of an image media file.
func VectorID(mediaFileID int64) string {
	return strconv.FormatInt(mediaFileID, 10)
}

// FrameVectorID returns the vector store id of a video frame.
func FrameVectorID(mediaFileID, videoFrameID int64) string {
	return strconv.FormatInt(mediaFileID, 10) + "-" + strconv.FormatInt(videoFrameID, 10)
}

// ParseVectorID splits a vector store id into its media file id and, for frames, the video frame id.
func ParseVectorID(id string) (mediaFileID, videoFrameID int64, err error) {
	mediaPart, framePart, isFrame := strings.Cut(id, "-")
	mediaFileID, err = strconv.ParseInt(mediaPart, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid vector id %q: %w", id, err)
	}
	if !isFrame {
		return mediaFileID, 0, nil
	}
	videoFrameID, err = strconv.ParseInt(framePart, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid vector id %q: %w", id, err)
	}
	return mediaFileID, videoFrameID, nil
}

// Metadata keys attached to vector store entries.
const (
	MetaKeyID           = "id"
	MetaKeyVideoFrameID = "video_frame_id"
	MetaKeyFilePath     = "file_path"
	MetaKeyFramePath    = "frame_path"
	MetaKeyFileType     = "file_type"
	MetaKeyTimestamp    = "timestamp"
)

// ImageVectorMeta builds the metadata attached to an image vector.
func ImageVectorMeta(mf *MediaFile) map[string]any {
	return map[string]any{
		MetaKeyID:       mf.ID,
		MetaKeyFilePath: mf.FilePath,
		MetaKeyFileType: string(FileTypeImage),
	}
}

// FrameVectorMeta builds the metadata attached to a video frame vector.
// file_path is the original video so results open the source, not the thumbnail.
func FrameVectorMeta(mf *MediaFile, vf *VideoFrame) map[string]any {
	return map[string]any{
		MetaKeyID:           mf.ID,
		MetaKeyVideoFrameID: vf.ID,
		MetaKeyFilePath:     mf.FilePath,
		MetaKeyFramePath:    vf.FramePath,
		MetaKeyFileType:     string(FileTypeVideoFrame),
		MetaKeyTimestamp:    vf.Timestamp,
	}
}

// RefreshStats summarizes one refresh run.
type RefreshStats struct {
	Added   int `json:"added"`
	Removed int `json:"removed"`
	Failed  int `json:"failed"`
}

// IndexReport summarizes one directory indexing run.
type IndexReport struct {
	Root    string   `json:"root"`
	Indexed []string `json:"indexed"`
	Failed  int      `json:"failed"`
	Total   int      `json:"total"`
}
