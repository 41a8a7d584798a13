package cluster

import (
	"encoding/binary"
	"hash/fnv"

	"github.com/dgryski/go-jump"
)

// ShardOf returns the rank that owns a server in a cluster of size
// members, or -1 if the cluster is empty. Shrinking the cluster only moves
// servers owned by the removed ranks.
func ShardOf(serverID string, size int32) int32 {
	if size <= 0 {
		return -1
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(serverID))
	key := binary.BigEndian.Uint64(h.Sum(nil))
	return jump.Hash(key, int(size))
}
