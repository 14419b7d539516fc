package notification

import (
	"github.com/smallbiznis/pasar/internal/notification/repository"
	"github.com/smallbiznis/pasar/internal/notification/service"
	"github.com/smallbiznis/pasar/internal/notification/stream"
	"go.uber.org/fx"
)

var Module = fx.Module("notification.service",
	fx.Provide(stream.NewHub),
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
