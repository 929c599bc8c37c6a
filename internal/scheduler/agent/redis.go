// Package agent connects the scheduler to the agents that run tasks on the nodes: node snapshots are read from redis,
// task requests go out over pulsar and agent events come back over pulsar.
package agent

import (
	"encoding/json"
	"sort"
	"strconv"

	"github.com/go-redis/redis"
	"github.com/pkg/errors"

	"github.com/ngageoint/scale/internal/common/logging"
	"github.com/ngageoint/scale/internal/common/scalecontext"
	"github.com/ngageoint/scale/internal/scheduler/schedulerobjects"
)

// RedisOfferSource reads node snapshots from a redis hash holding one field per node id. Agents overwrite their
// node's field whenever its status or available resources change.
type RedisOfferSource struct {
	db  redis.UniversalClient
	key string
}

func NewRedisOfferSource(db redis.UniversalClient, key string) *RedisOfferSource {
	return &RedisOfferSource{db: db, key: key}
}

// Snapshots returns the snapshot of every node sorted by node id. Snapshots that cannot be decoded are skipped.
func (s *RedisOfferSource) Snapshots(ctx *scalecontext.Context) ([]*schedulerobjects.NodeSnapshot, error) {
	values, err := s.db.HGetAll(s.key).Result()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	snapshots := make([]*schedulerobjects.NodeSnapshot, 0, len(values))
	for field, value := range values {
		snapshot := &schedulerobjects.NodeSnapshot{}
		if err := json.Unmarshal([]byte(value), snapshot); err != nil {
			logging.WithStacktrace(ctx.Log, errors.WithStack(err)).Warnf("Skipping invalid snapshot of node %s", field)
			continue
		}
		snapshots = append(snapshots, snapshot)
	}
	sort.Slice(snapshots, func(i, j int) bool { return snapshots[i].NodeID < snapshots[j].NodeID })
	return snapshots, nil
}

// Report stores the snapshot of a node, replacing the previous one.
func (s *RedisOfferSource) Report(snapshot *schedulerobjects.NodeSnapshot) error {
	value, err := json.Marshal(snapshot)
	if err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(s.db.HSet(s.key, strconv.FormatInt(snapshot.NodeID, 10), value).Err())
}

// Remove deletes the snapshot of a node that has left the cluster.
func (s *RedisOfferSource) Remove(nodeID int64) error {
	return errors.WithStack(s.db.HDel(s.key, strconv.FormatInt(nodeID, 10)).Err())
}
