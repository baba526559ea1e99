// Package app coordinates a devpilot session.
//
// An Application owns one supervisor, one classifier and, optionally, a
// source watcher and a Lua rules script. Component notifications flow one
// way: each component publishes on its own feed, the coordinator forwards
// the feeds onto the event bus, and bus handlers update the view or trigger
// a hot reload. No component holds a reference to another.
package app

import (
	"context"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/dshills/devpilot/internal/config"
	"github.com/dshills/devpilot/internal/console"
	"github.com/dshills/devpilot/internal/event"
	"github.com/dshills/devpilot/internal/integration/output"
	"github.com/dshills/devpilot/internal/integration/process"
	"github.com/dshills/devpilot/internal/plugin/lua"
	"github.com/dshills/devpilot/internal/project/watcher"
)

// View presents a running session. Run blocks until the user leaves or ctx
// is done.
type View interface {
	Run(ctx context.Context) error
}

// Refresher is implemented by views that redraw on demand.
type Refresher interface {
	Refresh()
}

// StatusSetter is implemented by views that show supervisor status.
type StatusSetter interface {
	SetStatus(s console.Status)
}

// Options configures an Application.
type Options struct {
	// Profile names the tool profile. Empty selects the config default.
	Profile string

	// Dir is the project directory the tool runs in.
	Dir string

	// Args, when set, replace the profile's arguments.
	Args []string

	// ExportPath, when set, receives the log on shutdown.
	ExportPath string

	// StayOpen keeps the session alive after the tool exits, so the log
	// can still be browsed.
	StayOpen bool

	// Resolver overrides executable lookup.
	Resolver process.Resolver

	// Environ overrides the base child environment.
	Environ func() []string

	Logger zerolog.Logger
}

// Application is the coordinator for one supervised tool.
type Application struct {
	cfg         *config.Config
	opts        Options
	profileName string
	spec        process.RunSpec
	logger      zerolog.Logger

	bus        *event.Bus
	classifier *output.Classifier
	supervisor *process.Supervisor
	rule       *lua.ScriptRule
	watch      *watcher.FSNotifyWatcher

	mu            sync.Mutex
	view          View
	subscriptions []*event.Subscription
	cancels       []func()
	forwarders    sync.WaitGroup
	stopWatch     context.CancelFunc
	watchDone     chan struct{}

	running  atomic.Bool
	quit     chan struct{}
	quitOnce sync.Once
	shutOnce sync.Once
	shutErr  error
}

// New builds the components for one session. Nothing is started.
func New(cfg *config.Config, opts Options) (*Application, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	name, profile, err := cfg.Profile(opts.Profile)
	if err != nil {
		return nil, err
	}
	if opts.Dir == "" {
		opts.Dir = "."
	}
	dir, err := filepath.Abs(opts.Dir)
	if err != nil {
		return nil, &ComponentError{Component: "app", Action: "resolve dir", Err: err}
	}

	spec := profile.RunSpec(name, dir)
	if opts.Args != nil {
		spec.Args = slices.Clone(opts.Args)
	}

	a := &Application{
		cfg:         cfg,
		opts:        opts,
		profileName: name,
		spec:        spec,
		logger:      opts.Logger.With().Str("component", "app").Str("profile", name).Logger(),
		quit:        make(chan struct{}),
		watchDone:   make(chan struct{}),
	}

	a.bus = event.NewBus(event.WithErrorHandler(func(herr *event.HandlerError) {
		a.logger.Warn().Err(herr).Msg("event handler failed")
	}))

	classifierOpts := []output.Option{
		output.WithMaxEntries(cfg.MaxEntries),
		output.WithLogger(opts.Logger),
		output.WithToolPrefixes(profile.ToolPrefixes...),
	}
	if cfg.Rules.Script != "" {
		rule, err := a.loadRules(cfg.Rules.Script, dir)
		if err != nil {
			return nil, err
		}
		a.rule = rule
		classifierOpts = append(classifierOpts, output.WithRules(rule))
	}
	a.classifier = output.NewClassifier(classifierOpts...)

	searchDirs := cfg.SearchDirs(profile)
	resolver := opts.Resolver
	if resolver == nil {
		resolver = process.NewPathResolver(searchDirs...)
	}
	a.supervisor = process.NewSupervisor(
		process.WithResolver(resolver),
		process.WithLogSink(a.classifier),
		process.WithGracePeriod(cfg.GracePeriod),
		process.WithPathDirs(slices.Concat(searchDirs, process.DefaultToolDirs())...),
		process.WithEnviron(opts.Environ),
		process.WithLogger(opts.Logger),
	)

	return a, nil
}

func (a *Application) loadRules(script, dir string) (*lua.ScriptRule, error) {
	if !filepath.IsAbs(script) {
		script = filepath.Join(dir, script)
	}
	rule, err := lua.LoadRuleFile(script)
	if err != nil {
		return nil, &ComponentError{Component: "rules", Action: "load", Err: err}
	}
	rule.OnError = func(err error) {
		a.logger.Debug().Err(err).Msg("rules script failed; using built-in classification")
	}
	return rule, nil
}

// Profile returns the active profile name.
func (a *Application) Profile() string {
	return a.profileName
}

// RunSpec returns the launch description.
func (a *Application) RunSpec() process.RunSpec {
	return a.spec.Clone()
}

// Classifier returns the session's log classifier.
func (a *Application) Classifier() *output.Classifier {
	return a.classifier
}

// Supervisor returns the session's process supervisor.
func (a *Application) Supervisor() *process.Supervisor {
	return a.supervisor
}

// Bus returns the session's event bus.
func (a *Application) Bus() *event.Bus {
	return a.bus
}

// SetView attaches the view that Run drives. It must be called before Run.
func (a *Application) SetView(v View) {
	a.mu.Lock()
	a.view = v
	a.mu.Unlock()
}

func (a *Application) currentView() View {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.view
}

func (a *Application) refreshView() {
	if r, ok := a.currentView().(Refresher); ok {
		r.Refresh()
	}
}

func (a *Application) updateStatus() {
	if s, ok := a.currentView().(StatusSetter); ok {
		s.SetStatus(a.Status())
	}
}
