package platform

import (
	"log/slog"
	"net/http"

	"github.com/aretw0/folio/pkg/notify"
)

// options holds the wiring choices that are not part of Config.
type options struct {
	logger     *slog.Logger
	autoInit   bool
	devSafety  bool
	forceTemp  bool
	sink       notify.Sink
	httpClient *http.Client
	watch      []string
}

// Option defines a functional option for configuring the App.
type Option func(*options)

func defaultOptions() *options {
	return &options{
		devSafety: true,
	}
}

// WithLogger sets the logger for every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithAutoInit runs git init when the repository path is not a repository
// yet and no remote URL is configured.
func WithAutoInit(auto bool) Option {
	return func(o *options) {
		o.autoInit = auto
	}
}

// WithDevSafety controls the sandbox used when running via `go run` or
// `go test`. By default (true) the repository is re-rooted into a temporary
// directory so a development run never touches a real tree.
//
// CAUTION: Only disable this if you are sure your code is safe.
func WithDevSafety(enabled bool) Option {
	return func(o *options) {
		o.devSafety = enabled
	}
}

// WithForceTemp forces the temporary sandbox regardless of how the
// process was started.
func WithForceTemp(force bool) Option {
	return func(o *options) {
		o.forceTemp = force
	}
}

// WithSink replaces the notification sink built from the configuration.
func WithSink(s notify.Sink) Option {
	return func(o *options) {
		o.sink = s
	}
}

// WithHTTPClient sets the client used by the webhook sink.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.httpClient = c
	}
}

// WithWatchIgnore sets doublestar patterns, relative to pages/, that the
// filesystem watcher skips.
func WithWatchIgnore(patterns ...string) Option {
	return func(o *options) {
		o.watch = patterns
	}
}
