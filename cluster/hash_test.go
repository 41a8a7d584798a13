package cluster

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShardOf(t *testing.T) {
	testCases := []struct {
		name     string
		serverID string
		size     int32
		exp      int32
	}{
		{name: "empty cluster owns nothing", exp: -1},
		{name: "single member owns everything", serverID: "abc", size: 1, exp: 0},
		{name: "'test' is 1 of 10", serverID: "test", size: 10, exp: 1},
		{name: "'test' stays put when shrinking to 5", serverID: "test", size: 5, exp: 1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.exp, ShardOf(tc.serverID, tc.size))
		})
	}
}

func TestShardOfShrinkOnlyMovesRemovedRanks(t *testing.T) {
	r := rand.New(rand.NewSource(0))
	for i := 0; i < 10_000; i++ {
		id := fmt.Sprintf("%026d", r.Int63())
		before := ShardOf(id, 8)
		after := ShardOf(id, 6)
		if before < 6 {
			assert.Equal(t, before, after, "server %s moved", id)
		}
	}
}

func TestShardOfEvenDistribution(t *testing.T) {
	r := rand.New(rand.NewSource(0))
	const (
		servers = 100_000
		size    = 20
	)
	counts := make(map[int32]int)
	for i := 0; i < servers; i++ {
		counts[ShardOf(fmt.Sprintf("%x", r.Int63()), size)]++
	}

	exp := float64(servers) / size
	for rank, n := range counts {
		assert.InDelta(t, exp, n, exp*0.05, "rank %d has %d of %d servers", rank, n, servers)
	}
}
