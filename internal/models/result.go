package models

// SearchResult is a single ranked hit. It is produced per query and never persisted.
type SearchResult struct {
	ID           string   `json:"id"`
	Score        float64  `json:"score"`
	Rank         int      `json:"rank"`
	MediaFileID  int64    `json:"media_file_id"`
	VideoFrameID int64    `json:"video_frame_id,omitempty"`
	FilePath     string   `json:"file_path"`
	FramePath    string   `json:"frame_path,omitempty"`
	FileType     FileType `json:"file_type"`
	// Timestamp is the frame offset in seconds; only set for video frames.
	Timestamp *float64 `json:"timestamp,omitempty"`
}

// SearchResponse is the response for a search request.
type SearchResponse struct {
	Results  []*SearchResult `json:"results"`
	Total    int             `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
	// IndexEmpty is set when nothing has been indexed yet. It is distinct from a query
	// that matched nothing so callers can prompt the user to add a folder.
	IndexEmpty bool   `json:"index_empty"`
	QueryTime  int64  `json:"query_time_ms"`
	Query      string `json:"query"`
}
