// Package queue holds the mutating commands issued while handling a request, to be
// applied in order once the handler has finished.
package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/emiliopalmerini/splango/internal/domain"
)

// Kind tags a queued command.
type Kind string

const (
	KindEnroll     Kind = "enroll"
	KindRecordGoal Kind = "record_goal"
)

// Command is a pending state change.
type Command interface {
	Kind() Kind
}

// Enroll places the request's subject in a specific variant.
type Enroll struct {
	Experiment string
	Variant    string
}

func (Enroll) Kind() Kind { return KindEnroll }

// RecordGoal records a goal for the request's subject.
type RecordGoal struct {
	Goal  string
	Info  domain.RequestInfo
	Extra string
}

func (RecordGoal) Kind() Kind { return KindRecordGoal }

// Applier executes commands. Each method must be idempotent so that a flush retried
// after a partial failure is safe.
type Applier interface {
	ApplyEnroll(ctx context.Context, cmd Enroll) error
	ApplyRecordGoal(ctx context.Context, cmd RecordGoal) error
}

// Queue is a FIFO of pending commands, safe for concurrent use.
type Queue struct {
	mu      sync.Mutex
	pending []Command
}

func (q *Queue) Push(cmd Command) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, cmd)
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Drain removes and returns every pending command in enqueue order.
func (q *Queue) Drain() []Command {
	q.mu.Lock()
	defer q.mu.Unlock()
	cmds := q.pending
	q.pending = nil
	return cmds
}

// requeue puts cmds back ahead of anything pushed since the drain.
func (q *Queue) requeue(cmds []Command) {
	if len(cmds) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(append([]Command(nil), cmds...), q.pending...)
}

// Flush applies every pending command in order. On the first failure the failed
// command and everything after it stay queued, and the number applied so far is
// returned with the error. A command of unknown kind fails with domain.ErrUnknownAction.
func (q *Queue) Flush(ctx context.Context, a Applier) (int, error) {
	cmds := q.Drain()
	for i, cmd := range cmds {
		var err error
		switch c := cmd.(type) {
		case Enroll:
			err = a.ApplyEnroll(ctx, c)
		case RecordGoal:
			err = a.ApplyRecordGoal(ctx, c)
		default:
			err = fmt.Errorf("%w: %q", domain.ErrUnknownAction, cmd.Kind())
		}
		if err != nil {
			q.requeue(cmds[i:])
			return i, fmt.Errorf("failed to apply queued %s: %w", cmd.Kind(), err)
		}
	}
	return len(cmds), nil
}
