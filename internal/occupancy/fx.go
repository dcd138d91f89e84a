package occupancy

import (
	"github.com/smallbiznis/rentledger/internal/occupancy/domain"
	"github.com/smallbiznis/rentledger/internal/occupancy/service"
	"go.uber.org/fx"
)

var Module = fx.Module("occupancy.service",
	fx.Provide(service.NewService),
	fx.Provide(func(svc domain.Service) domain.Provider { return svc }),
)
