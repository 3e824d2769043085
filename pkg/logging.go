// logging.go wires github.com/uber-go/zap into the registry exactly the
// way the teacher's pkg/config.go does (WithLogger option, zap.NewNop()
// default): structured, leveled logging that only ever fires on slow or
// rare events, never on TryGet/Register's hot path.
//
// © 2025 computeregistry authors. MIT License.
package registry

import "go.uber.org/zap"

type logSink struct {
	l *zap.Logger
}

func newLogSink(l *zap.Logger) *logSink {
	return &logSink{l: l}
}

func (s *logSink) prunePass(demotions, collections int64) {
	if demotions == 0 && collections == 0 {
		return
	}
	s.l.Debug("prune pass completed",
		zap.Int64("demotions", demotions),
		zap.Int64("collections", collections),
	)
}

func (s *logSink) wrongState(op string) {
	s.l.Warn("operation attempted against computation in wrong state", zap.String("op", op))
}

func (s *logSink) snapshotWriteFailed(err error) {
	s.l.Warn("snapshot write failed", zap.Error(err))
}

func (s *logSink) poolOverflow() {
	s.l.Debug("handle pool shard at capacity, discarding released handle")
}
