package worker

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/andresmejia3/guardian/internal/types"
)

// MockCloser wraps a bytes.Buffer to satisfy io.ReadCloser and io.WriteCloser interfaces.
// This allows us to use in-memory buffers as if they were OS Pipes.
type MockCloser struct {
	*bytes.Buffer
}

func (m *MockCloser) Close() error { return nil }

// newMockWorker pre-fills the data pipe with one framed response from "Python".
func newMockWorker(response string) (*DeepFaceWorker, *MockCloser) {
	stdinMock := &MockCloser{Buffer: new(bytes.Buffer)}
	dataPipeMock := &MockCloser{Buffer: new(bytes.Buffer)}

	binary.Write(dataPipeMock, binary.BigEndian, uint32(len(response)))
	dataPipeMock.WriteString(response)

	// Cmd is nil because we aren't testing process management, just the protocol
	return &DeepFaceWorker{ID: 1, Stdin: stdinMock, DataPipe: dataPipeMock}, stdinMock
}

func TestProcessFrame(t *testing.T) {
	w, stdinMock := newMockWorker(`[{"region":{"x":10,"y":10,"w":50,"h":60},"dominant_gender":"Woman","dominant_emotion":"happy"}]`)

	inputFrame := []byte{0xFF, 0xD8, 0xBE, 0xEF, 0xFF, 0xD9}
	faces, err := w.ProcessFrame(inputFrame)
	if err != nil {
		t.Fatalf("ProcessFrame failed: %v", err)
	}

	// Verify Go sent [len][data] TO Python
	sent := stdinMock.Bytes()
	if len(sent) != 4+len(inputFrame) {
		t.Fatalf("Expected %d bytes sent, got %d", 4+len(inputFrame), len(sent))
	}
	if n := binary.BigEndian.Uint32(sent[:4]); int(n) != len(inputFrame) {
		t.Errorf("Expected length header %d, got %d", len(inputFrame), n)
	}
	if !bytes.Equal(sent[4:], inputFrame) {
		t.Errorf("Frame bytes were not forwarded verbatim")
	}

	want := types.AnalysisResult{{
		Region:  types.Region{X: 10, Y: 10, W: 50, H: 60},
		Gender:  "Woman",
		Emotion: "happy",
	}}
	if !reflect.DeepEqual(faces, want) {
		t.Errorf("Expected %+v, got %+v", want, faces)
	}
}

func TestProcessFrame_NoFaces(t *testing.T) {
	for _, resp := range []string{`[]`, `null`} {
		w, _ := newMockWorker(resp)
		faces, err := w.ProcessFrame([]byte("frame"))
		if err != nil {
			t.Fatalf("%s: unexpected error %v", resp, err)
		}
		if faces == nil || len(faces) != 0 {
			t.Errorf("%s: expected empty non-nil result, got %v", resp, faces)
		}
	}
}

func TestProcessFrame_Error(t *testing.T) {
	errMsg := "Face could not be detected"
	w, _ := newMockWorker(`{"error": "` + errMsg + `"}`)

	_, err := w.ProcessFrame([]byte("frame"))
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if !errors.Is(err, ErrWorker) {
		t.Errorf("Expected ErrWorker, got %v", err)
	}
	if err.Error() != "python worker error: "+errMsg {
		t.Errorf("Expected error message '%s', got '%v'", "python worker error: "+errMsg, err)
	}
}

func TestProcessFrame_Malformed(t *testing.T) {
	for _, resp := range []string{`not json`, `{}`, `[{"region": 5}]`} {
		w, _ := newMockWorker(resp)
		if _, err := w.ProcessFrame([]byte("frame")); err == nil {
			t.Errorf("%q: expected error, got nil", resp)
		}
	}
}

func TestProcessFrame_WorkerDied(t *testing.T) {
	// Empty data pipe: Python exited before writing a header.
	w := &DeepFaceWorker{
		ID:       3,
		Stdin:    &MockCloser{Buffer: new(bytes.Buffer)},
		DataPipe: &MockCloser{Buffer: new(bytes.Buffer)},
	}
	if _, err := w.ProcessFrame([]byte("frame")); err == nil {
		t.Fatal("Expected error when worker pipe is empty")
	}
}

func TestAnalyzeHonorsCancelledContext(t *testing.T) {
	w, stdinMock := newMockWorker(`[]`)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := w.Analyze(ctx, []byte("frame")); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if stdinMock.Len() != 0 {
		t.Error("Nothing should be sent to Python after cancellation")
	}
}

func TestConfigArgs(t *testing.T) {
	cfg := DefaultConfig()
	got := cfg.args()
	want := []string{"-u", "python/worker.py", "--detector", "mtcnn", "--actions", "gender,emotion", "--enforce-detection", "false"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("args() = %v, want %v", got, want)
	}
}

// writeFrame writes one [len][body] response the way the Python side does.
func writeFrame(t *testing.T, w *os.File, body string) {
	t.Helper()
	if err := binary.Write(w, binary.BigEndian, uint32(len(body))); err != nil {
		t.Errorf("write header: %v", err)
		return
	}
	if _, err := w.WriteString(body); err != nil {
		t.Errorf("write body: %v", err)
	}
}

func TestReadTimeoutNeverReturnsLateAnswer(t *testing.T) {
	r, pw, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer pw.Close()

	w := &DeepFaceWorker{
		ID:          1,
		Stdin:       &MockCloser{Buffer: new(bytes.Buffer)},
		DataPipe:    r,
		ReadTimeout: 50 * time.Millisecond,
	}
	defer w.Close()

	// Python answers the first frame too late, then answers the second one promptly.
	answered := make(chan struct{})
	go func() {
		defer close(answered)
		time.Sleep(150 * time.Millisecond)
		writeFrame(t, pw, `[{"region":{"x":1,"y":1,"w":1,"h":1},"dominant_gender":"Man","dominant_emotion":"late"}]`)
		writeFrame(t, pw, `[]`)
	}()

	if _, err := w.ProcessFrame([]byte("frame A")); !errors.Is(err, os.ErrDeadlineExceeded) {
		t.Fatalf("Expected deadline error for frame A, got %v", err)
	}
	if !w.Broken() {
		t.Fatal("Worker should be marked broken after a timeout")
	}
	<-answered

	faces, err := w.ProcessFrame([]byte("frame B"))
	if !errors.Is(err, ErrWorkerBroken) {
		t.Fatalf("Expected ErrWorkerBroken for frame B, got faces=%+v err=%v", faces, err)
	}
	if len(faces) != 0 {
		t.Errorf("Frame B must not receive frame A's faces, got %+v", faces)
	}
}

func TestOversizedResponseBreaksWorker(t *testing.T) {
	dataPipe := &MockCloser{Buffer: new(bytes.Buffer)}
	binary.Write(dataPipe, binary.BigEndian, uint32(0xFFFFFFFF))
	stdin := &MockCloser{Buffer: new(bytes.Buffer)}
	w := &DeepFaceWorker{ID: 2, Stdin: stdin, DataPipe: dataPipe}

	if _, err := w.ProcessFrame([]byte("frame")); err == nil {
		t.Fatal("Expected error for an oversized response header")
	}
	if !w.Broken() {
		t.Fatal("Worker should be marked broken")
	}

	sent := stdin.Len()
	if _, err := w.ProcessFrame([]byte("frame")); !errors.Is(err, ErrWorkerBroken) {
		t.Errorf("Expected ErrWorkerBroken, got %v", err)
	}
	if stdin.Len() != sent {
		t.Error("A broken worker must not send further requests")
	}
}

func TestSuccessfulCallsKeepWorkerHealthy(t *testing.T) {
	dataPipe := &MockCloser{Buffer: new(bytes.Buffer)}
	for _, resp := range []string{`[]`, `{"error":"no face"}`, `[]`} {
		binary.Write(dataPipe, binary.BigEndian, uint32(len(resp)))
		dataPipe.WriteString(resp)
	}
	w := &DeepFaceWorker{ID: 4, Stdin: &MockCloser{Buffer: new(bytes.Buffer)}, DataPipe: dataPipe}

	wantErr := []bool{false, true, false}
	for i, want := range wantErr {
		_, err := w.ProcessFrame([]byte("frame"))
		if (err != nil) != want {
			t.Errorf("call %d: err = %v, wantErr %v", i, err, want)
		}
	}
	// A per-frame error reported by Python keeps the stream aligned.
	if w.Broken() {
		t.Error("Worker-reported errors must not break the protocol")
	}
}
