package intr

import (
	"github.com/joeycumines/logiface"
)

type options struct {
	logger *logiface.Logger[logiface.Event]
}

// Option configures a Controller.
type Option interface {
	apply(*options)
}

type optionFunc func(*options)

func (f optionFunc) apply(o *options) { f(o) }

// WithLogger sets the logger used to report unexpected interrupts.
// A nil logger disables logging.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return optionFunc(func(o *options) {
		o.logger = logger
	})
}

func resolveOptions(opts []Option) *options {
	cfg := &options{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.apply(cfg)
	}
	return cfg
}
