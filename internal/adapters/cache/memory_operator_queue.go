package cache

import (
	"context"
	"sync"

	"github.com/viralforge/escrow-milestone-ledger/internal/ports"
)

// MemoryOperatorQueue is the single-process fallback used when Redis is not
// configured.
type MemoryOperatorQueue struct {
	mu    sync.Mutex
	tasks map[string]ports.ReconciliationTask
}

func NewMemoryOperatorQueue() *MemoryOperatorQueue {
	return &MemoryOperatorQueue{tasks: map[string]ports.ReconciliationTask{}}
}

func (q *MemoryOperatorQueue) Enqueue(_ context.Context, task ports.ReconciliationTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	task.TransferKeys = append([]string(nil), task.TransferKeys...)
	q.tasks[taskField(task.AccountID, task.MilestoneID)] = task
	return nil
}

func (q *MemoryOperatorQueue) List(context.Context) ([]ports.ReconciliationTask, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]ports.ReconciliationTask, 0, len(q.tasks))
	for _, task := range q.tasks {
		out = append(out, task)
	}
	sortTasks(out)
	return out, nil
}

func (q *MemoryOperatorQueue) Remove(_ context.Context, accountID, milestoneID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.tasks, taskField(accountID, milestoneID))
	return nil
}
