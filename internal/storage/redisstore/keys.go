package redisstore

// DefaultKeyPrefix namespaces every key written by the provider.
const DefaultKeyPrefix = "resource-cache"

// Keys builds the Redis keys used by the provider.
type Keys struct {
	prefix string
}

// NewKeys returns key builders under prefix.
func NewKeys(prefix string) Keys {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return Keys{prefix: prefix}
}

// Partitions is the set holding every partition name.
func (k Keys) Partitions() string {
	return k.prefix + ":partitions"
}

// Partition is the hash of identity -> encoded entry for one partition.
func (k Keys) Partition(name string) string {
	return k.prefix + ":partition:" + name
}
