package payment

import (
	"github.com/pulseledger/xrpwatch/internal/payment/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("payment",
	fx.Provide(repository.Provide),
	fx.Provide(repository.ProvideQueries),
)
