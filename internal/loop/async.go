package loop

import (
	"context"

	"github.com/andresmejia3/guardian/internal/mailbox"
	"github.com/andresmejia3/guardian/internal/types"
	"golang.org/x/sync/errgroup"
)

type job[F any] struct {
	index int
	frame F
}

type outcome[F any] struct {
	index int
	frame F
	res   types.AnalysisResult
	err   error
}

// asyncStage hands throttled frames to a single analysis goroutine so the
// loop keeps rendering while the analyzer runs. Both directions use a
// latest-wins mailbox: a slow analyzer sees only the newest frame, and the
// loop applies only the newest outcome.
type asyncStage[F any] struct {
	l        *Loop[F]
	jobs     *mailbox.Mailbox[job[F]]
	outcomes *mailbox.Mailbox[outcome[F]]
	g        *errgroup.Group
}

func newAsyncStage[F any](ctx context.Context, l *Loop[F]) *asyncStage[F] {
	s := &asyncStage[F]{
		l:        l,
		jobs:     mailbox.New(func(j job[F]) { l.source.Release(j.frame) }),
		outcomes: mailbox.New(func(o outcome[F]) { l.source.Release(o.frame) }),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			j, ok := s.jobs.Receive()
			if !ok {
				return nil
			}
			res, err := l.analyzer.Analyze(gctx, j.frame)
			s.outcomes.Publish(outcome[F]{index: j.index, frame: j.frame, res: res, err: err})
		}
	})
	s.g = g
	return s
}

func (s *asyncStage[F]) frame(_ context.Context, index int, frame F, analyze bool) {
	if o, ok := s.outcomes.TryReceive(); ok {
		s.l.apply(o.index, o.frame, o.res, o.err)
		s.l.source.Release(o.frame)
	}
	if analyze {
		s.jobs.Publish(job[F]{index: index, frame: s.l.source.Clone(frame)})
	}
}

// close stops the analysis goroutine, waiting for an in-flight call to finish
// so its frame can be released before the source closes.
func (s *asyncStage[F]) close() {
	s.jobs.Close()
	_ = s.g.Wait()
	s.outcomes.Close()
}
