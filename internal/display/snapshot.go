package display

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/andresmejia3/guardian/internal/types"
	"gocv.io/x/gocv"
)

// SnapshotWriter saves an annotated JPEG each time analysis finds faces.
type SnapshotWriter struct {
	Dir     string
	Written int
	logger  *slog.Logger
}

// NewSnapshotWriter writes into dir/session, creating it if needed.
func NewSnapshotWriter(dir, session string, logger *slog.Logger) (*SnapshotWriter, error) {
	out := filepath.Join(dir, session)
	if err := os.MkdirAll(out, 0755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotWriter{Dir: out, logger: logger}, nil
}

// Analyzed is a loop hook. It draws on a copy so the live frame is untouched.
func (s *SnapshotWriter) Analyzed(index int, frame *gocv.Mat, faces types.AnalysisResult, err error) {
	if err != nil || len(faces) == 0 || frame == nil || frame.Empty() {
		return
	}
	m := frame.Clone()
	defer m.Close()
	Draw(&m, faces)

	path := filepath.Join(s.Dir, fmt.Sprintf("frame_%06d.jpg", index))
	if !gocv.IMWrite(path, m) {
		s.logger.Warn("snapshot: write failed", "path", path)
		return
	}
	s.Written++
}
