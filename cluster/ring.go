package cluster

import (
	"sort"
	"sync"

	"github.com/buraksezer/consistent"
	"github.com/mohitkumar/ticketflow/logger"
	"github.com/spaolacci/murmur3"
	"go.uber.org/zap"
)

const DEFAULT_PARTITION_COUNT = 7

type hasher struct {
}

func NewHasher() *hasher {
	return &hasher{}
}

func (h hasher) Sum64(data []byte) uint64 {
	return murmur3.Sum64(data)
}

type RingConfig struct {
	PartitionCount int
}

// Ring assigns instance ids to partitions. Timer queues and signal workers are
// sharded by partition, and only partitions owned by the local node are
// served.
type Ring struct {
	RingConfig
	hring     *consistent.Consistent
	nodes     map[string]Node
	localNode Node
	mu        sync.Mutex
}

type Node struct {
	name string
	addr string
}

func (n Node) String() string {
	return n.name
}

func NewRing(c RingConfig) *Ring {
	if c.PartitionCount <= 0 {
		c.PartitionCount = DEFAULT_PARTITION_COUNT
	}
	cfg := consistent.Config{
		PartitionCount:    c.PartitionCount,
		ReplicationFactor: 20,
		Load:              1.25,
		Hasher:            NewHasher(),
	}
	return &Ring{
		RingConfig: c,
		hring:      consistent.New(nil, cfg),
		nodes:      make(map[string]Node),
	}
}

// NewLocalRing is a ring with this process as its only member.
func NewLocalRing(c RingConfig, name string) *Ring {
	r := NewRing(c)
	r.Join(name, "", true)
	return r
}

func (r *Ring) Join(name, addr string, isLocal bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.nodes[name]; ok {
		return
	}
	node := Node{
		name: name,
		addr: addr,
	}
	logger.Info("adding member to ring", zap.String("node", name), zap.Bool("local", isLocal))
	if isLocal {
		r.localNode = node
	}
	r.nodes[name] = node
	r.hring.Add(node)
}

func (r *Ring) Leave(name string) {
	logger.Info("removing member from ring", zap.String("node", name))
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.nodes, name)
	r.hring.Remove(name)
}

func (r *Ring) GetPartition(key string) int {
	return r.hring.FindPartitionID([]byte(key))
}

// GetPartitions lists the partitions owned by the local node.
func (r *Ring) GetPartitions() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	partitions := make([]int, 0)
	if len(r.nodes) == 0 {
		return partitions
	}
	for i := 0; i < r.PartitionCount; i++ {
		owner := r.hring.GetPartitionOwner(i)
		if owner != nil && owner.String() == r.localNode.name {
			partitions = append(partitions, i)
		}
	}
	sort.Ints(partitions)
	return partitions
}

func (r *Ring) Members() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.nodes))
	for name := range r.nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
