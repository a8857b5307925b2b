package redis

import (
	"context"
	"fmt"
	"strings"

	rd "github.com/go-redis/redis/v9"
	"github.com/mohitkumar/ticketflow/logger"
	"github.com/mohitkumar/ticketflow/persistence"
	"go.uber.org/zap"
)

type baseDao struct {
	redisClient rd.UniversalClient
	namespace   string
}

func newBaseDao(conf Config) *baseDao {
	redisClient := rd.NewUniversalClient(&rd.UniversalOptions{
		Addrs:    conf.Addrs,
		Password: conf.Password,
		PoolSize: conf.PoolSize,
	})
	return &baseDao{
		redisClient: redisClient,
		namespace:   conf.Namespace,
	}
}

// NewBaseDao builds the shared client used by every dao of one namespace.
func NewBaseDao(conf Config) *baseDao {
	return newBaseDao(conf)
}

func (bs *baseDao) getNamespaceKey(args ...string) string {
	return fmt.Sprintf("%s:%s", bs.namespace, strings.Join(args, ":"))
}

func (bs *baseDao) Ping(ctx context.Context) error {
	if err := bs.redisClient.Ping(ctx).Err(); err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (bs *baseDao) Close() error {
	return bs.redisClient.Close()
}

func storageError(msg string, err error, fields ...zap.Field) error {
	logger.Error(msg, append(fields, zap.Error(err))...)
	return persistence.StorageLayerError{Message: err.Error()}
}
