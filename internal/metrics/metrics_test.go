package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsExist(t *testing.T) {
	tests := []struct {
		name   string
		metric interface{}
	}{
		{"HTTPRequestsTotal", HTTPRequestsTotal},
		{"HTTPRequestDuration", HTTPRequestDuration},
		{"FilesIndexed", FilesIndexed},
		{"FilesFailed", FilesFailed},
		{"FramesIndexed", FramesIndexed},
		{"FileIndexDuration", FileIndexDuration},
		{"RefreshRunsTotal", RefreshRunsTotal},
		{"RefreshFilesAdded", RefreshFilesAdded},
		{"RefreshFilesRemoved", RefreshFilesRemoved},
		{"SearchDuration", SearchDuration},
		{"QueryEmbeddingCache", QueryEmbeddingCache},
		{"VectorStoreSize", VectorStoreSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.metric == nil {
				t.Errorf("%s metric is nil", tt.name)
			}
		})
	}
}

func TestFilesIndexedCounts(t *testing.T) {
	before := testutil.ToFloat64(FilesIndexed.WithLabelValues("image"))
	FilesIndexed.WithLabelValues("image").Inc()
	if got := testutil.ToFloat64(FilesIndexed.WithLabelValues("image")); got != before+1 {
		t.Errorf("FilesIndexed = %v, want %v", got, before+1)
	}
}
