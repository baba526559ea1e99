package event

// BusOption configures a Bus.
type BusOption func(*busConfig)

type busConfig struct {
	// queueSize is the size of the async event queue.
	queueSize int

	// errorHandler receives handler failures and panics.
	errorHandler func(*HandlerError)
}

func defaultBusConfig() busConfig {
	return busConfig{
		queueSize: 1024,
	}
}

// WithQueueSize sets the async event queue size.
func WithQueueSize(size int) BusOption {
	return func(c *busConfig) {
		if size > 0 {
			c.queueSize = size
		}
	}
}

// WithErrorHandler sets a callback for handler errors and panics.
func WithErrorHandler(fn func(*HandlerError)) BusOption {
	return func(c *busConfig) {
		c.errorHandler = fn
	}
}
