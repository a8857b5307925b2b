package redis

// Config selects the redis deployment behind every dao. Keys of all stores
// are prefixed with Namespace, so several deployments can share one redis.
type Config struct {
	Addrs     []string
	Namespace string
	Password  string
	PoolSize  int
}
