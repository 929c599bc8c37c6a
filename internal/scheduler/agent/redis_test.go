package agent

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis"
	"github.com/go-redis/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngageoint/scale/internal/common/scalecontext"
	"github.com/ngageoint/scale/internal/model"
	"github.com/ngageoint/scale/internal/scheduler/schedulerobjects"
)

const nodesKey = "scale-nodes"

func withOfferSource(t *testing.T, action func(s *RedisOfferSource, client *redis.Client)) {
	db, err := miniredis.Run()
	require.NoError(t, err)
	defer db.Close()
	client := redis.NewClient(&redis.Options{Addr: db.Addr()})
	defer client.Close()
	action(NewRedisOfferSource(client, nodesKey), client)
}

func snapshot(nodeID int64, agentID string, cpus float64) *schedulerobjects.NodeSnapshot {
	return &schedulerobjects.NodeSnapshot{
		NodeStatus: schedulerobjects.NodeStatus{
			NodeID:        nodeID,
			Hostname:      "host",
			AgentID:       agentID,
			IsActive:      true,
			IsOnline:      true,
			IsCleanedUp:   true,
			IsImagePulled: true,
		},
		Available: model.Resources{model.CPUs: cpus},
		Reported:  time.Date(2022, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestRedisOfferSource_Snapshots(t *testing.T) {
	withOfferSource(t, func(s *RedisOfferSource, client *redis.Client) {
		require.NoError(t, s.Report(snapshot(2, "agent-b", 4)))
		require.NoError(t, s.Report(snapshot(1, "agent-a", 2)))

		snapshots, err := s.Snapshots(scalecontext.Background())
		require.NoError(t, err)
		require.Len(t, snapshots, 2)
		assert.Equal(t, int64(1), snapshots[0].NodeID)
		assert.Equal(t, "agent-a", snapshots[0].AgentID)
		assert.Equal(t, model.Resources{model.CPUs: 2}, snapshots[0].Available)
		assert.True(t, snapshots[0].Reported.Equal(time.Date(2022, 6, 1, 12, 0, 0, 0, time.UTC)))
		assert.Equal(t, int64(2), snapshots[1].NodeID)
	})
}

func TestRedisOfferSource_ReportReplaces(t *testing.T) {
	withOfferSource(t, func(s *RedisOfferSource, client *redis.Client) {
		require.NoError(t, s.Report(snapshot(1, "agent-a", 2)))
		require.NoError(t, s.Report(snapshot(1, "agent-c", 8)))

		snapshots, err := s.Snapshots(scalecontext.Background())
		require.NoError(t, err)
		require.Len(t, snapshots, 1)
		assert.Equal(t, "agent-c", snapshots[0].AgentID)
		assert.Equal(t, model.Resources{model.CPUs: 8}, snapshots[0].Available)
	})
}

func TestRedisOfferSource_SkipsInvalidSnapshots(t *testing.T) {
	withOfferSource(t, func(s *RedisOfferSource, client *redis.Client) {
		require.NoError(t, s.Report(snapshot(1, "agent-a", 2)))
		require.NoError(t, client.HSet(nodesKey, "7", "not json").Err())

		snapshots, err := s.Snapshots(scalecontext.Background())
		require.NoError(t, err)
		require.Len(t, snapshots, 1)
		assert.Equal(t, int64(1), snapshots[0].NodeID)
	})
}

func TestRedisOfferSource_Remove(t *testing.T) {
	withOfferSource(t, func(s *RedisOfferSource, client *redis.Client) {
		require.NoError(t, s.Report(snapshot(1, "agent-a", 2)))
		require.NoError(t, s.Report(snapshot(2, "agent-b", 2)))
		require.NoError(t, s.Remove(1))

		snapshots, err := s.Snapshots(scalecontext.Background())
		require.NoError(t, err)
		require.Len(t, snapshots, 1)
		assert.Equal(t, int64(2), snapshots[0].NodeID)
	})
}

func TestRedisOfferSource_Empty(t *testing.T) {
	withOfferSource(t, func(s *RedisOfferSource, client *redis.Client) {
		snapshots, err := s.Snapshots(scalecontext.Background())
		require.NoError(t, err)
		assert.Empty(t, snapshots)
	})
}
