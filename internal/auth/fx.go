package auth

import (
	"github.com/reelcomic/reelcomic/internal/auth/oauth"
	"github.com/reelcomic/reelcomic/internal/auth/repository"
	"github.com/reelcomic/reelcomic/internal/auth/service"
	"go.uber.org/fx"
)

var Module = fx.Module("auth.service",
	fx.Provide(repository.New),
	fx.Provide(service.New),
	fx.Provide(oauth.NewService),
)
