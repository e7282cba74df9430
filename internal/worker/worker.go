package worker

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/andresmejia3/guardian/internal/types"
	"github.com/andresmejia3/guardian/internal/utils"
)

// ErrWorker wraps errors reported by the Python side for a single frame.
var ErrWorker = errors.New("python worker error")

// ErrWorkerBroken is returned by every call after the protocol lost sync
// (timeout, short read, oversized frame). The process has been killed by then.
var ErrWorkerBroken = errors.New("python worker out of sync")

// maxResponse bounds a single JSON response.
const maxResponse = 16 << 20

// Config holds the fixed analysis settings passed to the Python worker.
type Config struct {
	Python           string
	Script           string
	Detector         string
	Actions          []string
	EnforceDetection bool
	// ReadTimeout bounds a single response read. Zero waits forever.
	ReadTimeout time.Duration
}

// DefaultConfig analyzes gender and emotion with the MTCNN detector and
// tolerates frames without faces.
func DefaultConfig() Config {
	return Config{
		Python:   "python3",
		Script:   "python/worker.py",
		Detector: "mtcnn",
		Actions:  []string{"gender", "emotion"},
	}
}

func (c Config) args() []string {
	return []string{
		"-u", c.Script,
		"--detector", c.Detector,
		"--actions", strings.Join(c.Actions, ","),
		"--enforce-detection", strconv.FormatBool(c.EnforceDetection),
	}
}

type DeepFaceWorker struct {
	ID          int
	Cmd         *utils.SafeCommand
	Stdin       io.WriteCloser
	DataPipe    io.ReadCloser
	ReadTimeout time.Duration

	broken    error
	closeOnce sync.Once
}

// NewDeepFaceWorker starts the Python analyzer process. The process is killed
// when ctx is cancelled.
func NewDeepFaceWorker(ctx context.Context, id int, cfg Config) (*DeepFaceWorker, error) {
	py := utils.NewSafeCommand(ctx, cfg.Python, cfg.args()...)

	// Create a side-channel pipe (FD 3) so Python's stdout prints can't corrupt the protocol
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	py.Cmd.ExtraFiles = []*os.File{w}

	stdin, err := py.StdinPipe()
	if err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := py.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("worker %d failed to start: %w", id, err)
	}

	// Close the write-end in the parent so only the child holds it
	w.Close()

	return &DeepFaceWorker{
		ID:          id,
		Cmd:         py,
		Stdin:       stdin,
		DataPipe:    r,
		ReadTimeout: cfg.ReadTimeout,
	}, nil
}

// Communicate sends one length-prefixed request and reads one length-prefixed response.
// Once a request has been written, any failure to read a complete answer leaves
// the pipe in an unknown position, so the worker is killed and every later call fails.
func (w *DeepFaceWorker) Communicate(data []byte) ([]byte, error) {
	if w.broken != nil {
		return nil, fmt.Errorf("%w: %v", ErrWorkerBroken, w.broken)
	}

	// Protocol: [Length][Data]
	if err := binary.Write(w.Stdin, binary.BigEndian, uint32(len(data))); err != nil {
		return nil, w.fail(err)
	}
	if _, err := w.Stdin.Write(data); err != nil {
		return nil, w.fail(err)
	}

	if w.ReadTimeout > 0 {
		if d, ok := w.DataPipe.(interface{ SetReadDeadline(time.Time) error }); ok {
			if err := d.SetReadDeadline(time.Now().Add(w.ReadTimeout)); err != nil {
				return nil, w.fail(err)
			}
		}
	}

	header := make([]byte, 4)
	if _, err := io.ReadFull(w.DataPipe, header); err != nil {
		return nil, w.fail(err) // Python died or is too slow
	}

	respLen := binary.BigEndian.Uint32(header)
	if respLen > maxResponse {
		return nil, w.fail(fmt.Errorf("response of %d bytes exceeds %d", respLen, maxResponse))
	}
	respBody := make([]byte, respLen)
	if _, err := io.ReadFull(w.DataPipe, respBody); err != nil {
		return nil, w.fail(err)
	}
	return respBody, nil
}

// fail marks the worker unusable and kills the process so a late answer can
// never be read as the response to a newer request.
func (w *DeepFaceWorker) fail(err error) error {
	w.broken = err
	if w.Cmd != nil && w.Cmd.Process != nil {
		w.Cmd.Process.Kill()
	}
	return err
}

// Broken reports whether the worker has been killed after a protocol failure.
func (w *DeepFaceWorker) Broken() bool { return w.broken != nil }

// ProcessFrame sends one encoded image and decodes the detected faces.
func (w *DeepFaceWorker) ProcessFrame(img []byte) (types.AnalysisResult, error) {
	resp, err := w.Communicate(img)
	if err != nil {
		return nil, fmt.Errorf("worker %d: %w", w.ID, err)
	}
	return decodeResponse(resp)
}

// Analyze implements the analyzer contract for pre-encoded frames.
func (w *DeepFaceWorker) Analyze(ctx context.Context, img []byte) (types.AnalysisResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return w.ProcessFrame(img)
}

func decodeResponse(resp []byte) (types.AnalysisResult, error) {
	// Python answers with either a list of faces or {"error": "..."}
	trimmed := strings.TrimSpace(string(resp))
	if strings.HasPrefix(trimmed, "{") {
		var errorResult types.ErrorResult
		if err := json.Unmarshal(resp, &errorResult); err != nil {
			return nil, fmt.Errorf("malformed worker response: %w", err)
		}
		if errorResult.Error == "" {
			return nil, fmt.Errorf("malformed worker response: %q", trimmed)
		}
		return nil, fmt.Errorf("%w: %s", ErrWorker, errorResult.Error)
	}

	var faces types.AnalysisResult
	if err := json.Unmarshal(resp, &faces); err != nil {
		return nil, fmt.Errorf("malformed worker response: %w", err)
	}
	if faces == nil {
		faces = types.Empty()
	}
	return faces, nil
}

// Close shuts the worker down and waits for the process to exit. Safe to call twice.
func (w *DeepFaceWorker) Close() {
	w.closeOnce.Do(func() {
		w.Stdin.Close()
		w.DataPipe.Close()
		if w.Cmd != nil {
			w.Cmd.Wait()
		}
	})
}
