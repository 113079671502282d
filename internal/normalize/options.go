package normalize

import "go.uber.org/zap"

// Option configures Normalize and NewIndexer.
type Option func(*options)

type options struct {
	matcher Matcher
	stores  StoreFactory
	log     *zap.Logger
}

func newOptions(opts []Option) options {
	o := options{
		stores: MemoryStores,
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithMatcher selects the main resource. Without it every resource matches,
// which only works when there is exactly one.
func WithMatcher(m Matcher) Option {
	return func(o *options) { o.matcher = m }
}

// WithStoreFactory selects the Store backing each group.
func WithStoreFactory(f StoreFactory) Option {
	return func(o *options) {
		if f != nil {
			o.stores = f
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}
