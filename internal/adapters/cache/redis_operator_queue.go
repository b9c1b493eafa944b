package cache

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/redis/go-redis/v9"
	"github.com/viralforge/escrow-milestone-ledger/internal/ports"
)

const reconciliationKey = "escrow:reconciliations"

// RedisOperatorQueue keeps one pending reconciliation per milestone in a hash.
type RedisOperatorQueue struct {
	client *redis.Client
}

func NewRedisOperatorQueue(client *redis.Client) *RedisOperatorQueue {
	return &RedisOperatorQueue{client: client}
}

func taskField(accountID, milestoneID string) string {
	return accountID + ":" + milestoneID
}

func (q *RedisOperatorQueue) Enqueue(ctx context.Context, task ports.ReconciliationTask) error {
	raw, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return q.client.HSet(ctx, reconciliationKey, taskField(task.AccountID, task.MilestoneID), raw).Err()
}

func (q *RedisOperatorQueue) List(ctx context.Context) ([]ports.ReconciliationTask, error) {
	data, err := q.client.HGetAll(ctx, reconciliationKey).Result()
	if err != nil {
		return nil, err
	}
	out := make([]ports.ReconciliationTask, 0, len(data))
	for _, raw := range data {
		var task ports.ReconciliationTask
		if err := json.Unmarshal([]byte(raw), &task); err != nil {
			continue
		}
		out = append(out, task)
	}
	sortTasks(out)
	return out, nil
}

func (q *RedisOperatorQueue) Remove(ctx context.Context, accountID, milestoneID string) error {
	return q.client.HDel(ctx, reconciliationKey, taskField(accountID, milestoneID)).Err()
}

func sortTasks(tasks []ports.ReconciliationTask) {
	sort.Slice(tasks, func(i, j int) bool {
		if !tasks[i].EnqueuedAt.Equal(tasks[j].EnqueuedAt) {
			return tasks[i].EnqueuedAt.Before(tasks[j].EnqueuedAt)
		}
		return taskField(tasks[i].AccountID, tasks[i].MilestoneID) < taskField(tasks[j].AccountID, tasks[j].MilestoneID)
	})
}
