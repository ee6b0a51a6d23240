package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"household-catalog/internal/domains/catalog/model"
	"household-catalog/pkg/cache"
	"household-catalog/pkg/logger"
)

// PendingWritesKey là key của queue trong local persisted cache
const PendingWritesKey = "catalog:pending_writes"

type PendingKind string

const (
	PendingCreateBook     PendingKind = "create_book"
	PendingUpdateBook     PendingKind = "update_book"
	PendingDeleteBook     PendingKind = "delete_book"
	PendingCreateCategory PendingKind = "create_category"
)

// errSuperseded: entry không còn ý nghĩa (book đã bị xóa local, hoặc
// create đang chờ sẽ mang theo state mới nhất)
var errSuperseded = errors.New("pending write superseded")

// PendingWrite là một lần ghi remote thất bại, chờ flush lại
type PendingWrite struct {
	ID         string           `json:"id"`
	Kind       PendingKind      `json:"kind"`
	LocalID    string           `json:"local_id,omitempty"`
	TargetID   string           `json:"target_id,omitempty"`
	Book       *model.Book      `json:"book,omitempty"`
	Patch      *model.BookPatch `json:"patch,omitempty"`
	Category   *model.Category  `json:"category,omitempty"`
	Attempts   int              `json:"attempts"`
	LastError  string           `json:"last_error,omitempty"`
	EnqueuedAt time.Time        `json:"enqueued_at"`
}

// PendingWriteQueue: FIFO, persist sau mỗi thay đổi, retry có giới hạn
type PendingWriteQueue struct {
	mu          sync.Mutex
	entries     []PendingWrite
	backend     cache.Cache
	maxAttempts int
}

func NewPendingWriteQueue(backend cache.Cache, maxAttempts int) *PendingWriteQueue {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &PendingWriteQueue{backend: backend, maxAttempts: maxAttempts}
}

func (q *PendingWriteQueue) Load(ctx context.Context) error {
	var entries []PendingWrite
	if _, err := q.backend.Get(ctx, PendingWritesKey, &entries); err != nil {
		return fmt.Errorf("load pending writes: %w", err)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = entries
	return nil
}

func (q *PendingWriteQueue) Enqueue(ctx context.Context, w PendingWrite) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if w.EnqueuedAt.IsZero() {
		w.EnqueuedAt = time.Now().UTC()
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(q.entries, w)
	return q.persistLocked(ctx)
}

// EnqueueBehind xếp w sau các entry khớp match. Trả về false (không enqueue)
// khi queue không có entry nào khớp, lúc đó caller ghi trực tiếp được.
func (q *PendingWriteQueue) EnqueueBehind(ctx context.Context, w PendingWrite, match func(PendingWrite) bool) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	found := false
	for _, e := range q.entries {
		if match(e) {
			found = true
			break
		}
	}
	if !found {
		return false, nil
	}

	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if w.EnqueuedAt.IsZero() {
		w.EnqueuedAt = time.Now().UTC()
	}
	q.entries = append(q.entries, w)
	return true, q.persistLocked(ctx)
}

// Supersede bỏ mọi entry khớp match, trả về số entry đã bỏ
func (q *PendingWriteQueue) Supersede(ctx context.Context, match func(PendingWrite) bool) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.entries[:0:0]
	for _, e := range q.entries {
		if !match(e) {
			kept = append(kept, e)
		}
	}
	removed := len(q.entries) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	q.entries = kept
	return removed, q.persistLocked(ctx)
}

func (q *PendingWriteQueue) List() []PendingWrite {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]PendingWrite{}, q.entries...)
}

func (q *PendingWriteQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Flush chạy apply theo thứ tự FIFO.
//   - nil / errSuperseded → bỏ entry
//   - transient → tăng Attempts rồi dừng (store nhiều khả năng vẫn down);
//     quá maxAttempts thì bỏ entry
//   - lỗi khác → bỏ entry (ghi lại cũng không thành công)
func (q *PendingWriteQueue) Flush(ctx context.Context, apply func(context.Context, PendingWrite) error) (*FlushReport, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	report := &FlushReport{}
	remaining := make([]PendingWrite, 0, len(q.entries))

	stopped := false
	for i, w := range q.entries {
		if stopped {
			remaining = append(remaining, q.entries[i:]...)
			break
		}
		report.Attempted++

		err := apply(ctx, w)
		switch {
		case err == nil:
			report.Applied++
		case errors.Is(err, errSuperseded):
			report.Superseded++
		case model.IsTransient(err):
			w.Attempts++
			w.LastError = err.Error()
			if w.Attempts >= q.maxAttempts {
				report.Dropped++
				logger.ErrorWithFields("pending: giving up on write", err, map[string]interface{}{
					"pending_id": w.ID,
					"kind":       string(w.Kind),
					"attempts":   w.Attempts,
				})
			} else {
				remaining = append(remaining, w)
			}
			stopped = true
		default:
			report.Dropped++
			logger.ErrorWithFields("pending: dropping write after permanent failure", err, map[string]interface{}{
				"pending_id": w.ID,
				"kind":       string(w.Kind),
			})
		}
	}

	q.entries = remaining
	report.Remaining = len(remaining)
	return report, q.persistLocked(ctx)
}

func (q *PendingWriteQueue) persistLocked(ctx context.Context) error {
	if err := q.backend.Set(ctx, PendingWritesKey, q.entries, 0); err != nil {
		return fmt.Errorf("persist pending writes: %w", err)
	}
	return nil
}
