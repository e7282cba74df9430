// Package capture wraps an OpenCV video capture device as a frame source.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/andresmejia3/guardian/internal/types"
	"gocv.io/x/gocv"
)

// OpenError is returned when the capture device cannot be opened.
type OpenError struct {
	Device string
	Err    error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("cannot open capture device %q: %v", e.Device, e.Err)
}

func (e *OpenError) Unwrap() error { return e.Err }

// ParseDevice turns "0" into camera index 0 and leaves paths and URLs as strings.
func ParseDevice(device string) interface{} {
	if id, err := strconv.Atoi(device); err == nil && id >= 0 {
		return id
	}
	return device
}

// Camera reads frames into a single reusable Mat.
type Camera struct {
	Device string
	vc     *gocv.VideoCapture
	buf    gocv.Mat
}

// Open opens a camera index, video file, or stream URL.
func Open(device string) (*Camera, error) {
	vc, err := gocv.OpenVideoCapture(ParseDevice(device))
	if err != nil {
		return nil, &OpenError{Device: device, Err: err}
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, &OpenError{Device: device, Err: errors.New("device reported not opened")}
	}
	return &Camera{Device: device, vc: vc, buf: gocv.NewMat()}, nil
}

// Read grabs the next frame. The returned Mat is reused by the next Read.
// A failed or empty read means the stream has ended.
func (c *Camera) Read() (*gocv.Mat, bool) {
	if ok := c.vc.Read(&c.buf); !ok || c.buf.Empty() {
		return nil, false
	}
	return &c.buf, true
}

// Clone copies a frame so it can outlive the next Read.
func (c *Camera) Clone(frame *gocv.Mat) *gocv.Mat {
	m := frame.Clone()
	return &m
}

// Release frees a cloned frame. The shared read buffer is kept until Close.
func (c *Camera) Release(frame *gocv.Mat) {
	if frame == nil || frame == &c.buf {
		return
	}
	frame.Close()
}

// Close releases the device and the read buffer.
func (c *Camera) Close() error {
	c.buf.Close()
	return c.vc.Close()
}

// FrameCount is the total number of frames for files; zero or negative for live devices.
func (c *Camera) FrameCount() int {
	return int(c.vc.Get(gocv.VideoCaptureFrameCount))
}

// FPS reports the source frame rate, falling back to 30 when unknown.
func (c *Camera) FPS() float64 {
	fps := c.vc.Get(gocv.VideoCaptureFPS)
	if fps <= 0 {
		return 30
	}
	return fps
}

// Size returns the frame width and height.
func (c *Camera) Size() (int, int) {
	return int(c.vc.Get(gocv.VideoCaptureFrameWidth)), int(c.vc.Get(gocv.VideoCaptureFrameHeight))
}

// EncodeJPEG encodes a frame for the Python worker.
func EncodeJPEG(frame *gocv.Mat) ([]byte, error) {
	if frame == nil || frame.Empty() {
		return nil, errors.New("empty frame")
	}
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		return nil, err
	}
	defer buf.Close()
	// GetBytes points into C memory that Close frees.
	return bytes.Clone(buf.GetBytes()), nil
}

// ImageAnalyzer analyzes encoded images.
type ImageAnalyzer interface {
	Analyze(ctx context.Context, img []byte) (types.AnalysisResult, error)
}

// JPEGAnalyzer adapts an ImageAnalyzer to camera frames.
type JPEGAnalyzer struct {
	Next ImageAnalyzer
}

func (a JPEGAnalyzer) Analyze(ctx context.Context, frame *gocv.Mat) (types.AnalysisResult, error) {
	img, err := EncodeJPEG(frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return a.Next.Analyze(ctx, img)
}
