package group

import (
	"github.com/smallbiznis/pasar/internal/group/repository"
	"github.com/smallbiznis/pasar/internal/group/service"
	"go.uber.org/fx"
)

var Module = fx.Module("group.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
