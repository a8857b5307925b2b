package metadata

import (
	"fmt"
	"time"

	"github.com/mohitkumar/ticketflow/model"
	c "github.com/patrickmn/go-cache"
)

const LATEST_TTL = 30 * time.Second

// PlanCache fronts the plan store. Versioned plans never change so they do
// not expire, the latest active pointer does.
type PlanCache struct {
	cache *c.Cache
}

func NewPlanCache() *PlanCache {
	return &PlanCache{
		cache: c.New(c.NoExpiration, 10*time.Minute),
	}
}

func versionKey(name string, version int) string {
	return fmt.Sprintf("%s/%d", name, version)
}

func latestKey(name string) string {
	return name + "/latest"
}

func (ch *PlanCache) Save(plan *model.ExecutionPlan) {
	ch.cache.Set(versionKey(plan.Name, plan.Version), plan, c.NoExpiration)
}

func (ch *PlanCache) Get(name string, version int) (*model.ExecutionPlan, bool) {
	v, found := ch.cache.Get(versionKey(name, version))
	if !found {
		return nil, false
	}
	return v.(*model.ExecutionPlan), true
}

func (ch *PlanCache) SaveLatest(plan *model.ExecutionPlan) {
	ch.Save(plan)
	ch.cache.Set(latestKey(plan.Name), plan, LATEST_TTL)
}

func (ch *PlanCache) GetLatest(name string) (*model.ExecutionPlan, bool) {
	v, found := ch.cache.Get(latestKey(name))
	if !found {
		return nil, false
	}
	return v.(*model.ExecutionPlan), true
}

func (ch *PlanCache) InvalidateLatest(name string) {
	ch.cache.Delete(latestKey(name))
}
