package ingest

import "go.uber.org/fx"

var Module = fx.Module("ingest",
	fx.Provide(
		NewService,
		NewWatcher,
	),
)
