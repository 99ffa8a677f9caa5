package result

import (
	"go.uber.org/zap"

	"github.com/lukemcguire/linkcrawl/config"
)

// LogSink writes results as structured log entries. Successful results are
// logged at debug level unless verbose is set.
type LogSink struct {
	logger  *zap.Logger
	verbose bool
}

// NewLogSink creates a LogSink. A nil logger discards everything.
func NewLogSink(logger *zap.Logger, verbose bool) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger.Named("results"), verbose: verbose}
}

// OnStart implements Sink.
func (s *LogSink) OnStart(rootURL string, cfg config.Config) {
	s.logger.Info("check started",
		zap.String("root", rootURL),
		zap.Int("recursion_level", cfg.RecursionLevel),
		zap.Int("threads", cfg.Threads),
		zap.Strings("intern_patterns", cfg.InternPatterns),
	)
}

// OnResult implements Sink.
func (s *LogSink) OnResult(res CheckResult) {
	fields := []zap.Field{
		zap.Uint64("seq", res.Seq),
		zap.String("url", res.URL.Key()),
		zap.String("status", string(res.Status)),
		zap.Int("depth", res.URL.Depth),
	}
	if res.URL.Parent != "" {
		fields = append(fields, zap.String("parent", res.URL.Parent), zap.Int("line", res.URL.Line), zap.Int("column", res.URL.Column))
	}
	if res.StatusCode != 0 {
		fields = append(fields, zap.Int("status_code", res.StatusCode))
	}
	if len(res.Warnings) > 0 {
		fields = append(fields, zap.Strings("warnings", res.Warnings))
	}

	switch res.Status {
	case StatusError, StatusTimeout:
		fields = append(fields, zap.String("failure", string(res.Failure)), zap.String("error", res.Error))
		s.logger.Warn("check failed", fields...)
	case StatusWarning:
		s.logger.Info("check warning", fields...)
	default:
		if s.verbose {
			s.logger.Info("check ok", fields...)
		} else {
			s.logger.Debug("check ok", fields...)
		}
	}
}

// OnFinish implements Sink.
func (s *LogSink) OnFinish(summary Summary) {
	s.logger.Info("check finished",
		zap.String("status", string(summary.Status)),
		zap.Int("total", summary.Total),
		zap.Int("ok", summary.OK),
		zap.Int("warnings", summary.Warnings),
		zap.Int("errors", summary.Errors),
		zap.Int("timeouts", summary.Timeouts),
		zap.Int("dropped", summary.Dropped),
		zap.Duration("duration", summary.Duration),
	)
}
