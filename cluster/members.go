package cluster

import (
	"sort"
	"time"
)

// ranks maps member names to their rank.
type ranks map[string]int32

// Rank is a member's position in the cluster.
type Rank struct {
	Index  int32
	Size   int32
	Ranked bool
}

func (r ranks) of(member string) Rank {
	idx, ok := r[member]
	return Rank{Index: idx, Size: int32(len(r)), Ranked: ok}
}

// rebalance describes how the current members differ from the last ranks.
type rebalance struct {
	// Kept members keep their rank.
	Kept []string
	// Joined members get new ranks at the end.
	Joined []string
	// Left members free their rank.
	Left []string
	// Replaced maps a member that left to the new member taking its rank.
	Replaced map[string]string
	// Pending members joined too recently to be ranked.
	Pending []string
}

func (r rebalance) noop(last ranks) bool {
	return len(r.Kept) == len(last) && len(r.Joined) == 0
}

// planRebalance compares the live members, by join time, with the last
// published ranks. Members that left are replaced by the oldest unranked
// members first. Remaining unranked members join once they've been around
// for wait, unless the cluster is empty in which case they all join.
func planRebalance(members map[string]time.Time, last ranks, now time.Time, wait time.Duration) rebalance {
	var unranked, gone []string
	var plan rebalance
	for m := range members {
		if _, ok := last[m]; ok {
			plan.Kept = append(plan.Kept, m)
		} else {
			unranked = append(unranked, m)
		}
	}
	for m := range last {
		if _, ok := members[m]; !ok {
			gone = append(gone, m)
		}
	}
	sort.Strings(plan.Kept)
	sort.Slice(unranked, func(i, j int) bool {
		return members[unranked[i]].Before(members[unranked[j]])
	})
	sort.Slice(gone, func(i, j int) bool {
		return last[gone[i]] < last[gone[j]]
	})

	n := min(len(unranked), len(gone))
	if n > 0 {
		plan.Replaced = make(map[string]string, n)
	}
	for i := 0; i < n; i++ {
		plan.Replaced[gone[i]] = unranked[i]
	}
	if len(gone) > n {
		plan.Left = gone[n:]
	}

	rest := unranked[n:]
	if len(plan.Kept) == 0 && len(plan.Replaced) == 0 {
		plan.Joined = rest
		return plan
	}
	for i, m := range rest {
		if members[m].Add(wait).After(now) {
			plan.Pending = rest[i:]
			break
		}
		plan.Joined = append(plan.Joined, m)
	}
	return plan
}

// apply returns the ranks after the rebalance. Kept and replacing members
// hold on to their rank where it still fits, and the gaps are filled with
// joining members and those whose rank no longer fits.
func (r rebalance) apply(last ranks) ranks {
	size := len(r.Kept) + len(r.Joined) + len(r.Replaced)
	if size == 0 {
		return nil
	}
	slots := make([]string, size)
	var homeless []string
	place := func(m string, rank int32) {
		if int(rank) < size && slots[rank] == "" {
			slots[rank] = m
			return
		}
		homeless = append(homeless, m)
	}

	for _, m := range r.Kept {
		place(m, last[m])
	}
	for _, gone := range sortedKeys(r.Replaced) {
		place(r.Replaced[gone], last[gone])
	}

	waiting := append(append([]string(nil), r.Joined...), homeless...)
	next := make(ranks, size)
	for rank, m := range slots {
		if m == "" {
			m, waiting = waiting[0], waiting[1:]
		}
		next[m] = int32(rank)
	}
	return next
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
