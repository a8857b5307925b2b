package action

import (
	"errors"
	"fmt"
	"sync"
)

var ErrNoAgentAvailable = errors.New("no agent available")

// AgentPool hands out agents per skill in round-robin order. Skills without
// a roster use the fallback agents.
type AgentPool struct {
	mu       sync.Mutex
	bySkill  map[int64][]string
	fallback []string
	next     map[int64]int
}

func NewAgentPool(bySkill map[int64][]string, fallback []string) *AgentPool {
	return &AgentPool{
		bySkill:  bySkill,
		fallback: fallback,
		next:     make(map[int64]int),
	}
}

func DefaultAgentPool() *AgentPool {
	return NewAgentPool(map[int64][]string{
		1:  {"agent-1", "agent-2"},
		20: {"billing-1", "billing-2"},
		30: {"tech-1", "tech-2"},
	}, []string{"agent-1", "agent-2"})
}

// Next picks the next agent for skill, skipping exclude.
func (p *AgentPool) Next(skill int64, exclude string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	agents, ok := p.bySkill[skill]
	if !ok || len(agents) == 0 {
		agents = p.fallback
	}
	for i := 0; i < len(agents); i++ {
		idx := (p.next[skill] + i) % len(agents)
		if agents[idx] == exclude {
			continue
		}
		p.next[skill] = idx + 1
		return agents[idx], nil
	}
	return "", fmt.Errorf("%w: skill %d", ErrNoAgentAvailable, skill)
}
