package main

import (
	"log/slog"

	"nftlend/core/events"
	"nftlend/core/types"
)

// logEmitter fans engine events out to the structured log so off-process
// indexers can reconstruct loan history from the daemon's output stream.
type logEmitter struct {
	log *slog.Logger
}

func newLogEmitter(logger *slog.Logger) events.Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &logEmitter{log: logger}
}

func (e *logEmitter) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	args := []any{slog.String("event", evt.EventType())}
	if carrier, ok := evt.(interface{ Event() *types.Event }); ok {
		if payload := carrier.Event(); payload != nil {
			for key, value := range payload.Attributes {
				args = append(args, slog.String(key, value))
			}
		}
	}
	e.log.Info("engine event", args...)
}
