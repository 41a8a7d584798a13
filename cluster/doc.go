// Package cluster shares chat servers between replicas of the bot.
//
// Replicas join a cluster in etcd. The elected leader ranks the members
// and publishes the ranks, and each server is owned by the member whose
// rank it hashes to. A member locks a server in etcd before acting on it,
// so two replicas never handle the same server at the same time, even
// while members join or leave.
//
// New members wait for NewMemberWait before they are ranked so that
// rolling restarts replace members instead of reshuffling every server.
package cluster
