package service

import (
	"github.com/cci-legal/litigation/internal/config"
	"github.com/cci-legal/litigation/internal/litigation/repository"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Services 服务集合
type Services struct {
	Draft   *DraftService
	Cleanup *CleanupService
}

// NewServices 创建服务集合，rdb可为nil
func NewServices(repos *repository.Repositories, rdb *redis.Client, notifier DraftNotifier, cfg *config.Config, logger *zap.Logger) *Services {
	var cmd redis.Cmdable
	if rdb != nil {
		cmd = rdb
	}
	return &Services{
		Draft:   NewDraftService(repos.Draft, notifier, cfg.Draft, logger),
		Cleanup: NewCleanupService(repos.Draft, cmd, cfg.Draft, logger),
	}
}
