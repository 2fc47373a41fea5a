package realtime

import (
	"github.com/gobwas/glob"

	"github.com/Iron-Ham/taskscope/internal/errors"
	"github.com/Iron-Ham/taskscope/internal/logging"
	"github.com/Iron-Ham/taskscope/internal/tracker"
)

// Recorder receives bridge measurements, typically to feed metrics.
// Implementations must be safe for concurrent use.
type Recorder interface {
	MessageReceived(msgType string)
	MessageDiscarded(reason string)
	UpdateApplied()
	UpdateRejected()
	ConnectionState(connectionType string, connected bool)
}

// Discard reasons reported to the Recorder.
const (
	ReasonMalformed = "malformed"
	ReasonChannel   = "channel_filtered"
	ReasonRejected  = "transition_rejected"
)

// Option configures a Bridge.
type Option func(*config)

type config struct {
	logger          *logging.Logger
	recorder        Recorder
	trackerRecorder tracker.Recorder
	patterns        []glob.Glob
	errBuffer       int
}

// WithLogger sets the bridge's logger.
func WithLogger(logger *logging.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRecorder sets the bridge's metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(c *config) {
		if r != nil {
			c.recorder = r
		}
	}
}

// WithTrackerRecorder sets the recorder of the bridge's resource scope.
func WithTrackerRecorder(r tracker.Recorder) Option {
	return func(c *config) {
		c.trackerRecorder = r
	}
}

// WithChannelPatterns restricts delivery of channel-scoped messages to
// channels matching one of the glob patterns (for example "project-*"),
// in addition to explicitly joined or subscribed channels.
func WithChannelPatterns(patterns []glob.Glob) Option {
	return func(c *config) {
		c.patterns = append(c.patterns, patterns...)
	}
}

// CompilePatterns compiles channel glob patterns. "." separates segments,
// so "*" does not cross a dot while "**" does.
func CompilePatterns(patterns []string) ([]glob.Glob, error) {
	out := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '.')
		if err != nil {
			return nil, errors.NewValidationError("invalid channel pattern").
				WithField("subscribe_patterns").
				WithValue(p).
				WithCause(err)
		}
		out = append(out, g)
	}
	return out, nil
}

type nopRecorder struct{}

func (nopRecorder) MessageReceived(string)       {}
func (nopRecorder) MessageDiscarded(string)      {}
func (nopRecorder) UpdateApplied()               {}
func (nopRecorder) UpdateRejected()              {}
func (nopRecorder) ConnectionState(string, bool) {}
