package indexer

// FailureReason says why a file was not indexed.
type FailureReason string

const (
	ReasonNone        FailureReason = ""
	ReasonUnsupported FailureReason = "unsupported"
	ReasonExtraction  FailureReason = "extraction"
	ReasonContainer   FailureReason = "container"
	ReasonNoFrames    FailureReason = "no_frames"
	ReasonStorage     FailureReason = "storage"
	ReasonVector      FailureReason = "vector"
	ReasonCanceled    FailureReason = "canceled"
	ReasonInternal    FailureReason = "internal"
)

// Result is the outcome of indexing one file.
type Result struct {
	Path string
	// Indexed is true when the file is indexed after the call, including when it already was.
	Indexed bool
	// Skipped is true when the file was already indexed and nothing was done.
	Skipped bool
	// Frames is the number of video frames stored.
	Frames int
	Reason FailureReason
	Err    error
}

func failed(path string, reason FailureReason, err error) Result {
	return Result{Path: path, Reason: reason, Err: err}
}
