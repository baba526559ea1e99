package app

import (
	"context"

	"github.com/dshills/devpilot/internal/event"
	"github.com/dshills/devpilot/internal/event/topic"
	"github.com/dshills/devpilot/internal/integration/output"
	"github.com/dshills/devpilot/internal/integration/process"
	"github.com/dshills/devpilot/internal/project/watcher"
)

// Event topics used by the coordinator.
const (
	TopicStateChanged  topic.Topic = "supervisor.state.changed"
	TopicRecordAdded   topic.Topic = "log.record.appended"
	TopicBufferCleared topic.Topic = "log.buffer.cleared"
	TopicFileChanged   topic.Topic = "watch.file.changed"
)

const feedBuffer = 1024

// forward republishes every value from ch on the bus until ch closes.
func forward[T any](ctx context.Context, a *Application, ch <-chan T, source string, topicOf func(T) topic.Topic) {
	defer a.forwarders.Done()
	for v := range ch {
		if err := a.bus.Publish(ctx, event.NewEvent(topicOf(v), v, source)); err != nil {
			a.logger.Debug().Err(err).Str("source", source).Msg("bus publish dropped")
		}
	}
}

// wireFeeds subscribes to the component feeds and forwards them onto the
// bus. It must run before the supervisor starts so no record is missed.
func (a *Application) wireFeeds(ctx context.Context) error {
	states, cancelStates, err := a.supervisor.Subscribe(feedBuffer)
	if err != nil {
		return &ComponentError{Component: "supervisor", Action: "subscribe", Err: err}
	}
	changes, cancelChanges, err := a.classifier.Subscribe(feedBuffer)
	if err != nil {
		cancelStates()
		return &ComponentError{Component: "classifier", Action: "subscribe", Err: err}
	}
	a.cancels = append(a.cancels, cancelStates, cancelChanges)

	a.forwarders.Add(2)
	go forward(ctx, a, states, "supervisor", func(process.StateChange) topic.Topic { return TopicStateChanged })
	go forward(ctx, a, changes, "classifier", func(c output.Change) topic.Topic {
		if c.Kind == output.ChangeCleared {
			return TopicBufferCleared
		}
		return TopicRecordAdded
	})

	subs := []struct {
		pattern topic.Topic
		handler event.Handler
	}{
		{TopicStateChanged, typed(a.onStateChanged)},
		{"log.**", func(context.Context, event.Envelope) error { a.refreshView(); return nil }},
		{TopicFileChanged, typed(a.onFilesChanged)},
	}
	for _, s := range subs {
		sub, err := a.bus.Subscribe(s.pattern, s.handler)
		if err != nil {
			return &ComponentError{Component: "bus", Action: "subscribe " + s.pattern.String(), Err: err}
		}
		a.subscriptions = append(a.subscriptions, sub)
	}
	return nil
}

func typed[T any](fn func(context.Context, T) error) event.Handler {
	return func(ctx context.Context, env event.Envelope) error {
		v, ok := event.PayloadAs[T](env)
		if !ok {
			return event.ErrInvalidEvent
		}
		return fn(ctx, v)
	}
}

func (a *Application) onStateChanged(_ context.Context, c process.StateChange) error {
	a.logger.Debug().Str("from", c.From.String()).Str("to", c.To.String()).Msg("supervisor transition")
	a.updateStatus()

	ended := c.To == process.StateFailed || (c.To == process.StateIdle && c.From == process.StateRunning)
	if ended && !a.opts.StayOpen {
		a.requestQuit()
	}
	return nil
}

func (a *Application) onFilesChanged(_ context.Context, b watcher.Batch) error {
	spec, ok := a.supervisor.Spec()
	if !ok {
		return nil
	}
	if !spec.HotReload {
		a.logger.Info().Strs("paths", b.Paths).Msg("sources changed; profile has no hot reload")
		return nil
	}
	a.logger.Debug().Strs("paths", b.Paths).Msg("sources changed; hot reloading")
	if err := a.supervisor.HotReload(); err != nil {
		a.logger.Warn().Err(err).Msg("hot reload after save failed")
	}
	return nil
}
