package revolt

import (
	"context"

	"github.com/luno/jettison"
)

type nopLogger struct{}

func (nopLogger) Debug(context.Context, string, ...jettison.Option) {}
func (nopLogger) Info(context.Context, string, ...jettison.Option)  {}
func (nopLogger) Error(context.Context, error, ...jettison.Option)  {}
