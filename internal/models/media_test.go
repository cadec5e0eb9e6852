package models

import (
	"errors"
	"testing"
)

func TestVectorIDRoundTrip(t *testing.T) {
	tests := []struct {
		id        string
		wantMedia int64
		wantFrame int64
	}{
		{VectorID(123), 123, 0},
		{FrameVectorID(123, 456), 123, 456},
		{"7", 7, 0},
		{"7-8", 7, 8},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			m, f, err := ParseVectorID(tt.id)
			if err != nil {
				t.Fatal(err)
			}
			if m != tt.wantMedia || f != tt.wantFrame {
				t.Errorf("ParseVectorID(%q) = %d, %d; want %d, %d", tt.id, m, f, tt.wantMedia, tt.wantFrame)
			}
		})
	}
	if got := FrameVectorID(1, 2); got != "1-2" {
		t.Errorf("FrameVectorID(1, 2) = %q, want \"1-2\"", got)
	}
}

func TestParseVectorID_invalid(t *testing.T) {
	for _, id := range []string{"", "abc", "1-", "-2", "1-x"} {
		if _, _, err := ParseVectorID(id); err == nil {
			t.Errorf("ParseVectorID(%q): expected error", id)
		}
	}
}

func TestVideoMetadata(t *testing.T) {
	m := NewVideoMetadata(30, 90)
	if m.Duration != 3 {
		t.Errorf("Duration = %f, want 3", m.Duration)
	}
	if NewVideoMetadata(0, 90).Duration != 0 {
		t.Error("zero fps must give zero duration")
	}

	s, err := MarshalMetadata(m)
	if err != nil {
		t.Fatal(err)
	}
	if s != `{"fps":30,"total_frames":90,"duration":3}` {
		t.Errorf("MarshalMetadata = %s", s)
	}
	back, err := UnmarshalMetadata(s)
	if err != nil {
		t.Fatal(err)
	}
	if *back != *m {
		t.Errorf("UnmarshalMetadata = %+v, want %+v", back, m)
	}

	if s, _ := MarshalMetadata(nil); s != "" {
		t.Errorf("MarshalMetadata(nil) = %q, want empty", s)
	}
	if back, err := UnmarshalMetadata(""); err != nil || back != nil {
		t.Errorf("UnmarshalMetadata(\"\") = %v, %v; want nil, nil", back, err)
	}
}

func TestFrameVectorMeta(t *testing.T) {
	mf := &MediaFile{ID: 5, FilePath: "/v/clip.mp4", FileType: FileTypeVideo}
	vf := &VideoFrame{ID: 9, MediaFileID: 5, FramePath: "/cache/video_frames/5/frame_30.jpg", Timestamp: 1.5}
	meta := FrameVectorMeta(mf, vf)
	if meta[MetaKeyFilePath] != "/v/clip.mp4" {
		t.Errorf("file_path = %v, want the video path", meta[MetaKeyFilePath])
	}
	if meta[MetaKeyFileType] != string(FileTypeVideoFrame) {
		t.Errorf("file_type = %v", meta[MetaKeyFileType])
	}
	if meta[MetaKeyTimestamp] != 1.5 || meta[MetaKeyVideoFrameID] != int64(9) {
		t.Errorf("unexpected frame meta: %v", meta)
	}
	if img := ImageVectorMeta(mf); img[MetaKeyFileType] != string(FileTypeImage) || img[MetaKeyID] != int64(5) {
		t.Errorf("unexpected image meta: %v", img)
	}
}

func TestSearchQueryValidate(t *testing.T) {
	q := &SearchQuery{Text: "  sunset  "}
	if err := q.ValidateText(20, 100); err != nil {
		t.Fatal(err)
	}
	if q.Text != "sunset" || q.Page != 1 || q.PageSize != 20 {
		t.Errorf("normalized query = %+v", q)
	}

	q = &SearchQuery{Text: "x", Page: 3, PageSize: 500}
	if err := q.ValidateText(20, 100); err != nil {
		t.Fatal(err)
	}
	if q.Page != 3 || q.PageSize != 100 {
		t.Errorf("page size not capped: %+v", q)
	}

	if err := (&SearchQuery{Text: "   "}).ValidateText(20, 100); !errors.Is(err, ErrInvalidQuery) {
		t.Errorf("blank text: got %v, want ErrInvalidQuery", err)
	}
	if err := (&SearchQuery{}).ValidateImage(20, 100); !errors.Is(err, ErrInvalidQuery) {
		t.Errorf("blank image path: got %v, want ErrInvalidQuery", err)
	}
	q = &SearchQuery{ImagePath: "/a.png"}
	if err := q.ValidateImage(0, 0); err != nil || q.PageSize != 20 {
		t.Errorf("ValidateImage defaults: %+v, %v", q, err)
	}
}
