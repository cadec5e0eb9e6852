// Package video probes video containers and samples decoded frames through ffprobe and ffmpeg.
package video

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// ErrInvalidContainer is returned when a file cannot be opened as a video or reports no usable
// frame rate or frame count.
var ErrInvalidContainer = errors.New("invalid video container")

// Info describes the primary video stream of a container.
type Info struct {
	FPS         float64
	TotalFrames int
	Width       int
	Height      int
	Duration    float64
	// Rotation is the clockwise display rotation in degrees: 0, 90, 180 or 270. Width and
	// Height are already given in display orientation.
	Rotation int
}

// Decoder probes and decodes video files.
type Decoder interface {
	Probe(ctx context.Context, path string) (*Info, error)
	// Frames calls fn for every stride-th frame in stream order. index is the frame number in
	// the full stream. Returning an error from fn stops decoding and is returned.
	Frames(ctx context.Context, path string, info *Info, stride int, fn func(index int, img image.Image) error) error
}

// Stride returns how many frames to advance between samples so that roughly sampleRate frames
// are taken per second of video.
func Stride(fps, sampleRate float64) int {
	if fps <= 0 || sampleRate <= 0 {
		return 1
	}
	s := int(math.Round(fps / sampleRate))
	if s < 1 {
		return 1
	}
	return s
}

// Timestamp returns the position in seconds of frame index at fps.
func Timestamp(index int, fps float64) float64 {
	if fps <= 0 {
		return 0
	}
	return float64(index) / fps
}

// FFmpegDecoder shells out to ffprobe and ffmpeg.
type FFmpegDecoder struct {
	ffmpegPath  string
	ffprobePath string
	logger      *zap.Logger
}

// Option configures an FFmpegDecoder.
type Option func(*FFmpegDecoder)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(d *FFmpegDecoder) {
		d.logger = logger
	}
}

// NewFFmpegDecoder creates a decoder using the given executables. Empty paths fall back to
// "ffmpeg" and "ffprobe" on PATH.
func NewFFmpegDecoder(ffmpegPath, ffprobePath string, opts ...Option) *FFmpegDecoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	d := &FFmpegDecoder{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Available reports whether both executables can be found.
func (d *FFmpegDecoder) Available() bool {
	if _, err := exec.LookPath(d.ffmpegPath); err != nil {
		return false
	}
	_, err := exec.LookPath(d.ffprobePath)
	return err == nil
}

type probeOutput struct {
	Streams []struct {
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
		NbFrames     string `json:"nb_frames"`
		Duration     string `json:"duration"`
		Tags         struct {
			Rotate string `json:"rotate"`
		} `json:"tags"`
		SideDataList []struct {
			Rotation *float64 `json:"rotation"`
		} `json:"side_data_list"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe reads stream metadata with ffprobe.
func (d *FFmpegDecoder) Probe(ctx context.Context, path string) (*Info, error) {
	cmd := exec.CommandContext(ctx, d.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-select_streams", "v:0",
		"-show_format",
		"-show_streams",
		path,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: ffprobe %s: %v %s", ErrInvalidContainer, path, err, strings.TrimSpace(stderr.String()))
	}
	return parseProbe(stdout.Bytes())
}

func parseProbe(data []byte) (*Info, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: decode ffprobe output: %v", ErrInvalidContainer, err)
	}
	if len(out.Streams) == 0 {
		return nil, fmt.Errorf("%w: no video stream", ErrInvalidContainer)
	}
	s := out.Streams[0]
	info := &Info{Width: s.Width, Height: s.Height}

	// The display matrix rotation is counter-clockwise; the legacy rotate tag is clockwise.
	for _, sd := range s.SideDataList {
		if sd.Rotation != nil {
			info.Rotation = normalizeRotation(-*sd.Rotation)
			break
		}
	}
	if info.Rotation == 0 && s.Tags.Rotate != "" {
		if deg, err := strconv.ParseFloat(s.Tags.Rotate, 64); err == nil {
			info.Rotation = normalizeRotation(deg)
		}
	}
	if info.Rotation == 90 || info.Rotation == 270 {
		info.Width, info.Height = info.Height, info.Width
	}

	info.FPS = parseRate(s.AvgFrameRate)
	if info.FPS <= 0 {
		info.FPS = parseRate(s.RFrameRate)
	}
	info.Duration, _ = strconv.ParseFloat(s.Duration, 64)
	if info.Duration <= 0 {
		info.Duration, _ = strconv.ParseFloat(out.Format.Duration, 64)
	}
	if n, err := strconv.Atoi(s.NbFrames); err == nil && n > 0 {
		info.TotalFrames = n
	} else if info.FPS > 0 && info.Duration > 0 {
		info.TotalFrames = int(math.Round(info.Duration * info.FPS))
	}
	if info.Duration <= 0 && info.FPS > 0 {
		info.Duration = float64(info.TotalFrames) / info.FPS
	}

	if info.FPS <= 0 || info.TotalFrames <= 0 || info.Width <= 0 || info.Height <= 0 {
		return nil, fmt.Errorf("%w: fps=%g frames=%d size=%dx%d", ErrInvalidContainer, info.FPS, info.TotalFrames, info.Width, info.Height)
	}
	return info, nil
}

// normalizeRotation snaps deg to the nearest quarter turn in [0, 360).
func normalizeRotation(deg float64) int {
	r := int(math.Round(deg/90)) * 90 % 360
	if r < 0 {
		r += 360
	}
	return r
}

// parseRate parses ffprobe rates such as "30000/1001" or "25".
func parseRate(s string) float64 {
	num, den, found := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	dv, err := strconv.ParseFloat(den, 64)
	if err != nil || dv == 0 {
		return 0
	}
	return n / dv
}

// Frames pipes every stride-th frame out of ffmpeg as raw RGB24.
func (d *FFmpegDecoder) Frames(ctx context.Context, path string, info *Info, stride int, fn func(index int, img image.Image) error) error {
	if info == nil || info.Width <= 0 || info.Height <= 0 {
		return fmt.Errorf("%w: unknown frame size", ErrInvalidContainer)
	}
	if stride < 1 {
		stride = 1
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cmd := exec.CommandContext(ctx, d.ffmpegPath, frameArgs(path, info, stride)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: start ffmpeg: %v", ErrInvalidContainer, err)
	}

	readErr := readFrames(bufio.NewReaderSize(stdout, 1<<20), info.Width, info.Height, stride, fn)
	if readErr != nil {
		cancel()
	}
	waitErr := cmd.Wait()
	if readErr != nil {
		return readErr
	}
	if waitErr != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("ffmpeg %s: %v %s", path, waitErr, strings.TrimSpace(stderr.String()))
	}
	d.logger.Debug("decoded frames", zap.String("path", path), zap.Int("stride", stride))
	return nil
}

// frameArgs builds the ffmpeg arguments for Frames. Automatic rotation is disabled and the
// rotation from Probe is applied explicitly so the output always matches info's frame size.
func frameArgs(path string, info *Info, stride int) []string {
	filter := fmt.Sprintf(`select=not(mod(n\,%d))`, stride)
	switch info.Rotation {
	case 90:
		filter += ",transpose=clock"
	case 180:
		filter += ",hflip,vflip"
	case 270:
		filter += ",transpose=cclock"
	}
	return []string{
		"-v", "error",
		"-noautorotate",
		"-i", path,
		"-map", "0:v:0",
		"-vf", filter,
		"-vsync", "0",
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"-",
	}
}

// readFrames reads consecutive width*height*3 RGB frames from r until EOF.
func readFrames(r io.Reader, width, height, stride int, fn func(index int, img image.Image) error) error {
	frameSize := width * height * 3
	buf := make([]byte, frameSize)
	for n := 0; ; n++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			return fmt.Errorf("read frame: %w", err)
		}
		if err := fn(n*stride, rgbToImage(buf, width, height)); err != nil {
			return err
		}
	}
}

func rgbToImage(buf []byte, width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for i, j := 0, 0; i < len(buf); i, j = i+3, j+4 {
		img.Pix[j] = buf[i]
		img.Pix[j+1] = buf[i+1]
		img.Pix[j+2] = buf[i+2]
		img.Pix[j+3] = 0xff
	}
	return img
}
