// Package display shows annotated OpenCV frames: in a window, headless with a
// progress bar, and optionally into a video file.
package display

import (
	"fmt"
	"os"

	"github.com/andresmejia3/guardian/internal/render"
	"github.com/andresmejia3/guardian/internal/types"
	"github.com/schollz/progressbar/v3"
	"gocv.io/x/gocv"
)

// WindowTitle names the preview window.
const WindowTitle = "Guardian Camcorder"

// QuitKey stops the loop when pressed with the window focused.
const QuitKey = 'q'

const (
	fontScale = 0.7
)

// Draw paints the annotations for faces onto frame in place.
func Draw(frame *gocv.Mat, faces types.AnalysisResult) {
	for _, a := range render.Plan(faces) {
		gocv.Rectangle(frame, a.Box, render.BoxColor, render.Thickness)
		gocv.PutText(frame, a.Label, a.LabelAt, gocv.FontHersheySimplex, fontScale, render.BoxColor, render.Thickness)
	}
}

// Output writes annotated frames to a video file. A nil *Output is a no-op.
type Output struct {
	Path string
	vw   *gocv.VideoWriter
}

// OpenOutput creates an MJPG-encoded video file.
func OpenOutput(path string, fps float64, width, height int) (*Output, error) {
	vw, err := gocv.VideoWriterFile(path, "MJPG", fps, width, height, true)
	if err != nil {
		return nil, fmt.Errorf("open output %s: %w", path, err)
	}
	return &Output{Path: path, vw: vw}, nil
}

func (o *Output) Write(frame *gocv.Mat) error {
	if o == nil {
		return nil
	}
	return o.vw.Write(*frame)
}

func (o *Output) Close() error {
	if o == nil {
		return nil
	}
	return o.vw.Close()
}

// Window shows frames in a desktop window and polls the keyboard.
type Window struct {
	win *gocv.Window
	out *Output
}

// NewWindow opens the preview window. out may be nil.
func NewWindow(title string, out *Output) *Window {
	return &Window{win: gocv.NewWindow(title), out: out}
}

func (w *Window) Render(frame *gocv.Mat, faces types.AnalysisResult) error {
	Draw(frame, faces)
	if err := w.out.Write(frame); err != nil {
		return err
	}
	w.win.IMShow(*frame)
	return nil
}

// Quit polls the keyboard for 1ms; OpenCV also pumps window events here.
func (w *Window) Quit() bool {
	return w.win.WaitKey(1)&0xFF == QuitKey
}

func (w *Window) Close() error {
	outErr := w.out.Close()
	if err := w.win.Close(); err != nil {
		return err
	}
	return outErr
}

// Headless renders without a window and reports progress on stderr.
type Headless struct {
	bar *progressbar.ProgressBar
	out *Output
}

// NewHeadless shows a bar for a known total (video files) or a spinner otherwise.
func NewHeadless(total int, out *Output) *Headless {
	if total <= 0 {
		total = -1 // Trigger spinner mode
	}
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetDescription("👁️  Guardian watching"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
	)
	return &Headless{bar: bar, out: out}
}

func (h *Headless) Render(frame *gocv.Mat, faces types.AnalysisResult) error {
	Draw(frame, faces)
	if err := h.out.Write(frame); err != nil {
		return err
	}
	h.bar.Add(1)
	return nil
}

// Quit is always false; headless runs stop on stream end or Ctrl+C.
func (h *Headless) Quit() bool { return false }

func (h *Headless) Close() error {
	h.bar.Finish()
	fmt.Fprintln(os.Stderr)
	return h.out.Close()
}
