package rolesbot

import (
	"context"

	"github.com/luno/jettison"
	"github.com/luno/jettison/log"
)

// Logger is used by the Bot and the Queue for messages and errors.
type Logger interface {
	Debug(ctx context.Context, msg string, ol ...jettison.Option)
	Info(ctx context.Context, msg string, ol ...jettison.Option)
	Error(ctx context.Context, err error, ol ...jettison.Option)
}

type noopLogger struct{}

func (noopLogger) Debug(context.Context, string, ...jettison.Option) {}
func (noopLogger) Info(context.Context, string, ...jettison.Option)  {}
func (noopLogger) Error(context.Context, error, ...jettison.Option)  {}

// JettisonLogger logs through the global jettison logger.
type JettisonLogger struct{}

func (JettisonLogger) Debug(ctx context.Context, msg string, ol ...jettison.Option) {
	ol = append(ol, log.WithLevel(log.LevelDebug))
	log.Info(ctx, msg, ol...)
}

func (JettisonLogger) Info(ctx context.Context, msg string, ol ...jettison.Option) {
	log.Info(ctx, msg, ol...)
}

func (JettisonLogger) Error(ctx context.Context, err error, ol ...jettison.Option) {
	log.Error(ctx, err, ol...)
}

type options struct {
	Log Logger

	// Shortcode maps a reaction emoji key to the name used in role bindings.
	Shortcode func(emoji string) string

	QueueOptions QueueOptions
}

type Option func(*options)

// WithLogger sets the logger used by the Bot.
// It is also used by the Queue if not specified in QueueOptions.
func WithLogger(l Logger) Option {
	return func(o *options) {
		o.Log = l
	}
}

// WithShortcodes overrides how reaction emoji are named in role bindings.
// The default resolves unicode emoji to their shortcode and leaves custom
// emoji ids unchanged.
func WithShortcodes(f func(emoji string) string) Option {
	return func(o *options) {
		o.Shortcode = f
	}
}

// WithQueueOptions passes through options to the role edit Queue.
// See QueueOptions for more details.
func WithQueueOptions(opts QueueOptions) Option {
	return func(o *options) {
		o.QueueOptions = opts
	}
}

func buildOptions(opts []Option) options {
	o := options{
		Shortcode: Shortcode,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.QueueOptions.Log == nil {
		o.QueueOptions.Log = o.Log
	}
	if o.Log == nil {
		o.Log = noopLogger{}
	}
	return o
}
