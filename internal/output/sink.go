package output

import (
	"context"
	"errors"

	"github.com/SyedDaiam9101/headpose-service/internal/logger"
	"github.com/SyedDaiam9101/headpose-service/internal/task"
)

// DefaultStream names results published without a stream in context
const DefaultStream = "default"

type streamKey struct{}

// WithStream tags ctx with the stream (camera, client) results belong to
func WithStream(ctx context.Context, stream string) context.Context {
	if stream == "" {
		return ctx
	}
	return context.WithValue(ctx, streamKey{}, stream)
}

// StreamFrom returns the stream set by WithStream or DefaultStream
func StreamFrom(ctx context.Context) string {
	if s, ok := ctx.Value(streamKey{}).(string); ok && s != "" {
		return s
	}
	return DefaultStream
}

// LogSink writes a summary of every result batch to the logger
type LogSink struct {
	log *logger.Logger
}

func NewLogSink(log *logger.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Publish(ctx context.Context, taskName string, results []task.Result) error {
	s.log.Debug("results", "stream", StreamFrom(ctx), "task", taskName, "count", len(results))
	for i, r := range results {
		switch v := r.(type) {
		case task.HeadPoseResult:
			s.log.Debug("head pose", "index", i, "box", task.BoxOf(v.Location()),
				"yaw", v.AngleY(), "pitch", v.AngleP(), "roll", v.AngleR())
		case task.FaceResult:
			s.log.Debug("face", "index", i, "box", task.BoxOf(v.Location()), "confidence", v.Confidence())
		}
	}
	return nil
}

// Multi fans results out to every sink and joins their errors
type Multi []task.Sink

func (m Multi) Publish(ctx context.Context, taskName string, results []task.Result) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Publish(ctx, taskName, results); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ task.Sink = (*LogSink)(nil)
	_ task.Sink = Multi(nil)
)
