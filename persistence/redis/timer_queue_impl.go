package redis

import (
	"context"
	"strconv"
	"time"

	rd "github.com/go-redis/redis/v9"
	"github.com/mohitkumar/ticketflow/persistence"
	"go.uber.org/zap"
)

const TIMER_KEY string = "TIMER"

var _ persistence.TimerQueue = new(redisTimerQueue)

// redisTimerQueue is a delay queue per partition: a sorted set of instance ids
// scored by their deadline in unix milliseconds.
type redisTimerQueue struct {
	*baseDao
}

func NewRedisTimerQueue(baseDao *baseDao) *redisTimerQueue {
	return &redisTimerQueue{
		baseDao: baseDao,
	}
}

func (rq *redisTimerQueue) queueKey(partition int) string {
	return rq.getNamespaceKey(TIMER_KEY, strconv.Itoa(partition))
}

func (rq *redisTimerQueue) Push(ctx context.Context, partition int, instanceId string, deadline time.Time) error {
	queueName := rq.queueKey(partition)
	member := rd.Z{
		Score:  float64(deadline.UnixMilli()),
		Member: instanceId,
	}
	if err := rq.redisClient.ZAdd(ctx, queueName, member).Err(); err != nil {
		return storageError("error while push to timer queue", err, zap.String("queue", queueName))
	}
	return nil
}

func (rq *redisTimerQueue) PopDue(ctx context.Context, partition int, now time.Time) ([]string, error) {
	queueName := rq.queueKey(partition)
	max := strconv.FormatInt(now.UnixMilli(), 10)
	var zr *rd.StringSliceCmd
	_, err := rq.redisClient.TxPipelined(ctx, func(pipe rd.Pipeliner) error {
		zr = pipe.ZRangeByScore(ctx, queueName, &rd.ZRangeBy{
			Min: "-inf",
			Max: max,
		})
		pipe.ZRemRangeByScore(ctx, queueName, "-inf", max)
		return nil
	})
	if err != nil {
		return nil, storageError("error while pop from timer queue", err, zap.String("queue", queueName))
	}
	res, err := zr.Result()
	if err != nil {
		return nil, storageError("error while pop from timer queue", err, zap.String("queue", queueName))
	}
	return res, nil
}

func (rq *redisTimerQueue) Remove(ctx context.Context, partition int, instanceId string) error {
	queueName := rq.queueKey(partition)
	if err := rq.redisClient.ZRem(ctx, queueName, instanceId).Err(); err != nil {
		return storageError("error while removing from timer queue", err, zap.String("queue", queueName))
	}
	return nil
}
