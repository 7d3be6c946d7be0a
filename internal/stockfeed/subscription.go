package stockfeed

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// subscription tracks the goroutines of one open stream.
type subscription struct {
	cancel  context.CancelFunc
	closeFn func() error
	wg      sync.WaitGroup
	once    sync.Once
	err     error

	done     chan struct{}
	doneOnce sync.Once
}

func newSubscription(cancel context.CancelFunc, closeFn func() error) *subscription {
	return &subscription{cancel: cancel, closeFn: closeFn, done: make(chan struct{})}
}

func (s *subscription) Done() <-chan struct{} {
	return s.done
}

// stop marks the stream as ended. Readers call it on exit.
func (s *subscription) stop() {
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *subscription) Close() error {
	s.once.Do(func() {
		s.cancel()
		if s.closeFn != nil {
			s.err = s.closeFn()
		}
		s.wg.Wait()
		s.stop()
	})
	return s.err
}

// dispatch decodes one raw message and hands stock updates to h.
func dispatch(log *zap.Logger, raw []byte, h Handler) {
	u, ok, err := Decode(raw)
	if err != nil {
		log.Warn("dropping malformed event", zap.Error(err))
		return
	}
	if !ok {
		return
	}
	h(u)
}
