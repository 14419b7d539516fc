package post

import (
	"github.com/smallbiznis/pasar/internal/post/repository"
	"github.com/smallbiznis/pasar/internal/post/service"
	"go.uber.org/fx"
)

var Module = fx.Module("post.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
