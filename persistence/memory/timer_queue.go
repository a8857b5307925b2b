package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mohitkumar/ticketflow/persistence"
)

var _ persistence.TimerQueue = new(TimerQueue)

type TimerQueue struct {
	mu         sync.Mutex
	partitions map[int]map[string]time.Time
}

func NewTimerQueue() *TimerQueue {
	return &TimerQueue{partitions: make(map[int]map[string]time.Time)}
}

func (q *TimerQueue) Push(ctx context.Context, partition int, instanceId string, deadline time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	p, ok := q.partitions[partition]
	if !ok {
		p = make(map[string]time.Time)
		q.partitions[partition] = p
	}
	p[instanceId] = deadline
	return nil
}

func (q *TimerQueue) PopDue(ctx context.Context, partition int, now time.Time) ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	type due struct {
		id       string
		deadline time.Time
	}
	var expired []due
	for id, deadline := range q.partitions[partition] {
		if !deadline.After(now) {
			expired = append(expired, due{id: id, deadline: deadline})
		}
	}
	sort.Slice(expired, func(i, j int) bool {
		return expired[i].deadline.Before(expired[j].deadline)
	})
	ids := make([]string, 0, len(expired))
	for _, d := range expired {
		delete(q.partitions[partition], d.id)
		ids = append(ids, d.id)
	}
	return ids, nil
}

func (q *TimerQueue) Remove(ctx context.Context, partition int, instanceId string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.partitions[partition], instanceId)
	return nil
}
