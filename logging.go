package taskcoord

import (
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Logger is the type of the Logger field in each coordinator's config, the
// same generic structured-logging facade used by this project's sibling
// packages, bound to its stumpy backend. A nil Logger (the default) is
// inert: every method on a nil [logiface.Logger] is a documented no-op, so
// call sites below never need to guard against it.
type Logger = logiface.Logger[*stumpy.Event]

// NewLogger is a convenience wrapper around stumpy.L.New, for callers that
// want a working Logger without depending on stumpy directly.
func NewLogger(options ...stumpy.Option) *Logger {
	return stumpy.L.New(stumpy.L.WithStumpy(options...))
}

func logInvalidate(log *Logger, label string) {
	log.Debug().Str(`node`, label).Log(`taskcoord: node invalidated`)
}

func logPanic(log *Logger, label string, recovered any) {
	log.Warning().Str(`node`, label).Interface(`panic`, recovered).Log(`taskcoord: operation panicked`)
}

func logLoopbackMiss(log *Logger, key Key, label string) {
	log.Debug().Str(`key`, key.String()).Str(`node`, label).Log(`taskcoord: loopback found no head for key`)
}
