// Package loop runs the capture → analyze → render cycle.
//
// Each iteration reads one frame, advances the throttle, optionally runs the
// analyzer, draws the cached result onto the frame, and polls for quit. The
// loop owns its throttle and result cache; nothing is shared between loops.
package loop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/andresmejia3/guardian/internal/throttle"
	"github.com/andresmejia3/guardian/internal/types"
)

// State is the lifecycle state of a Loop.
type State int

const (
	Idle State = iota
	Running
	Stopping
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// StopReason records why the loop left the running state.
type StopReason string

const (
	StopStreamEnd StopReason = "stream ended"
	StopQuitKey   StopReason = "quit key"
	StopCancelled StopReason = "cancelled"
	StopError     StopReason = "error"
)

// Source yields frames. Frames returned by Read or Clone must be handed back
// through Release once the caller is done with them.
type Source[F any] interface {
	Read() (F, bool)
	Clone(frame F) F
	Release(frame F)
	Close() error
}

// Analyzer detects faces in a frame. It may be slow and may fail.
type Analyzer[F any] interface {
	Analyze(ctx context.Context, frame F) (types.AnalysisResult, error)
}

// Display draws the cached faces onto a frame, shows it, and reports quit requests.
type Display[F any] interface {
	Render(frame F, faces types.AnalysisResult) error
	Quit() bool
	Close() error
}

// Hook observes every applied analysis outcome. The frame is only valid for
// the duration of the call.
type Hook[F any] func(index int, frame F, res types.AnalysisResult, err error)

// Config controls loop behaviour.
type Config struct {
	Interval int
	Async    bool
	Logger   *slog.Logger
}

// Summary describes a finished run.
type Summary struct {
	Frames   int
	Analyses int
	Failures int
	Dropped  uint64
	Reason   StopReason
}

// Loop is the single owner of the throttle and the result cache.
type Loop[F any] struct {
	source   Source[F]
	analyzer Analyzer[F]
	display  Display[F]
	hooks    []Hook[F]

	throttle *throttle.Throttle
	cache    ResultCache
	async    bool
	logger   *slog.Logger

	state   State
	summary Summary
}

// New wires a loop. The source must already be open.
func New[F any](cfg Config, src Source[F], analyzer Analyzer[F], display Display[F], hooks ...Hook[F]) (*Loop[F], error) {
	if src == nil || analyzer == nil || display == nil {
		return nil, errors.New("loop: source, analyzer and display are required")
	}
	th, err := throttle.New(cfg.Interval)
	if err != nil {
		return nil, fmt.Errorf("loop: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop[F]{
		source:   src,
		analyzer: analyzer,
		display:  display,
		hooks:    hooks,
		throttle: th,
		async:    cfg.Async,
		logger:   logger,
	}, nil
}

// State returns the current lifecycle state.
func (l *Loop[F]) State() State { return l.state }

// Cached returns the result that will be drawn on the next frame.
func (l *Loop[F]) Cached() types.AnalysisResult { return l.cache.Current() }

// Run drives the loop until the stream ends, the display asks to quit, or ctx
// is cancelled. The source and display are closed on every exit path.
func (l *Loop[F]) Run(ctx context.Context) (sum Summary, err error) {
	if l.state != Idle {
		return l.summary, fmt.Errorf("loop: already %s", l.state)
	}
	l.state = Running

	var st stage[F]
	if l.async {
		st = newAsyncStage(ctx, l)
	} else {
		st = &syncStage[F]{l: l}
	}

	defer func() {
		l.state = Stopping
		st.close()
		if a, ok := st.(*asyncStage[F]); ok {
			l.summary.Dropped = a.jobs.Drops()
		}
		closeErr := errors.Join(l.display.Close(), l.source.Close())
		if closeErr != nil {
			l.logger.Warn("loop: release failed", "err", closeErr)
			if err == nil {
				err = closeErr
			}
		}
		l.state = Stopped
		sum = l.summary
	}()

	for {
		reason, stepErr := l.step(ctx, st)
		if stepErr != nil {
			l.summary.Reason = StopError
			return l.summary, stepErr
		}
		if reason != "" {
			l.summary.Reason = reason
			l.logger.Debug("loop: stopping", "reason", string(reason), "frames", l.summary.Frames)
			return l.summary, nil
		}
	}
}

// step runs one iteration. A non-empty reason means the loop should stop.
func (l *Loop[F]) step(ctx context.Context, st stage[F]) (StopReason, error) {
	if ctx.Err() != nil {
		return StopCancelled, nil
	}

	frame, ok := l.source.Read()
	if !ok {
		return StopStreamEnd, nil
	}
	defer l.source.Release(frame)
	l.summary.Frames++

	index, analyze := l.throttle.Next()
	st.frame(ctx, index, frame, analyze)

	if err := l.display.Render(frame, l.cache.Current()); err != nil {
		return "", fmt.Errorf("render frame %d: %w", index, err)
	}
	if l.display.Quit() {
		return StopQuitKey, nil
	}
	return "", nil
}

// apply records one analyzer outcome in the cache and notifies hooks.
func (l *Loop[F]) apply(index int, frame F, res types.AnalysisResult, err error) {
	l.summary.Analyses++
	if err != nil {
		l.summary.Failures++
		l.logger.Debug("analysis failed, clearing cached faces", "frame", index, "err", err)
	} else {
		l.logger.Debug("analysis complete", "frame", index, "faces", len(res))
	}
	l.cache.Apply(res, err)
	for _, h := range l.hooks {
		h(index, frame, l.cache.Current(), err)
	}
}

// stage decides how a throttled frame reaches the analyzer.
type stage[F any] interface {
	frame(ctx context.Context, index int, frame F, analyze bool)
	close()
}

// syncStage analyzes on the loop goroutine, blocking the loop for the call.
type syncStage[F any] struct {
	l *Loop[F]
}

func (s *syncStage[F]) frame(ctx context.Context, index int, frame F, analyze bool) {
	if !analyze {
		return
	}
	res, err := s.l.analyzer.Analyze(ctx, frame)
	s.l.apply(index, frame, res, err)
}

func (s *syncStage[F]) close() {}
