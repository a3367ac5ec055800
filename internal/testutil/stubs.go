// Package testutil provides in-memory stand-ins for collaborators used in
// tests across packages.
package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/finops-claw-gang/genui/internal/tasks"
)

// FakeTasks satisfies tasks.Client. Tests drive task streams by emitting
// events for the ids SubmitSubAction hands out.
type FakeTasks struct {
	mu sync.Mutex

	SubmitErr  error
	StreamErr  error
	HistoryErr error

	InFlight []tasks.InFlightTask
	// Statuses answers Task lookups; missing ids are not found.
	Statuses map[string]tasks.TaskStatus
	// Groups holds history by content kind.
	Groups        map[string][]tasks.HistoryGroup
	PreviewResult tasks.Preview

	submitted    []tasks.SubActionRequest
	previews     []tasks.PreviewRequest
	historyCalls []tasks.HistoryQuery
	streams      map[string]chan tasks.Event
	opened       map[string]int
	nextID       int
}

func NewFakeTasks() *FakeTasks {
	return &FakeTasks{
		Groups:   make(map[string][]tasks.HistoryGroup),
		Statuses: make(map[string]tasks.TaskStatus),
		streams:  make(map[string]chan tasks.Event),
		opened:   make(map[string]int),
	}
}

func (f *FakeTasks) SubmitSubAction(_ context.Context, req tasks.SubActionRequest) (tasks.TaskHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SubmitErr != nil {
		return tasks.TaskHandle{}, f.SubmitErr
	}
	f.submitted = append(f.submitted, req)
	f.nextID++
	id := fmt.Sprintf("task-%d", f.nextID)
	f.source(id)
	return tasks.TaskHandle{TaskID: id, Status: tasks.StatusProcessing}, nil
}

func (f *FakeTasks) StreamTask(ctx context.Context, taskID string) (<-chan tasks.Event, error) {
	f.mu.Lock()
	if f.StreamErr != nil {
		f.mu.Unlock()
		return nil, f.StreamErr
	}
	src := f.source(taskID)
	f.opened[taskID]++
	f.mu.Unlock()

	out := make(chan tasks.Event)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-src:
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
				if ev.Terminal() {
					return
				}
			}
		}
	}()
	return out, nil
}

func (f *FakeTasks) ListInFlight(_ context.Context, _ string) ([]tasks.InFlightTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tasks.InFlightTask(nil), f.InFlight...), nil
}

func (f *FakeTasks) History(_ context.Context, q tasks.HistoryQuery) ([]tasks.HistoryGroup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.historyCalls = append(f.historyCalls, q)
	if f.HistoryErr != nil {
		return nil, f.HistoryErr
	}
	return f.Groups[q.ContentKind], nil
}

func (f *FakeTasks) Preview(_ context.Context, req tasks.PreviewRequest) (tasks.Preview, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.previews = append(f.previews, req)
	return f.PreviewResult, nil
}

func (f *FakeTasks) Task(_ context.Context, taskID string) (tasks.TaskStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.Statuses[taskID]
	if !ok {
		return tasks.TaskStatus{}, fmt.Errorf("%w: %s", tasks.ErrTaskNotFound, taskID)
	}
	return st, nil
}

// Emit queues an event on a task stream.
func (f *FakeTasks) Emit(taskID string, ev tasks.Event) {
	f.mu.Lock()
	src := f.source(taskID)
	f.mu.Unlock()
	ev.TaskID = taskID
	src <- ev
}

func (f *FakeTasks) Progress(taskID, msg string, elapsedMs int64) {
	f.Emit(taskID, tasks.Event{Type: tasks.EventProgress, Progress: &tasks.Progress{Message: msg, ElapsedMs: elapsedMs}})
}

func (f *FakeTasks) Complete(taskID string, r tasks.Result) {
	f.Emit(taskID, tasks.Event{Type: tasks.EventComplete, Result: &r})
}

func (f *FakeTasks) Fail(taskID, msg string) {
	f.Emit(taskID, tasks.Event{Type: tasks.EventError, Error: msg})
}

// Submitted returns every accepted submission in order.
func (f *FakeTasks) Submitted() []tasks.SubActionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tasks.SubActionRequest(nil), f.submitted...)
}

func (f *FakeTasks) Previews() []tasks.PreviewRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tasks.PreviewRequest(nil), f.previews...)
}

func (f *FakeTasks) HistoryCalls() []tasks.HistoryQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tasks.HistoryQuery(nil), f.historyCalls...)
}

// StreamsOpened reports how many times a task's stream was subscribed.
func (f *FakeTasks) StreamsOpened(taskID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened[taskID]
}

// source returns the event buffer for a task. Callers hold f.mu.
func (f *FakeTasks) source(taskID string) chan tasks.Event {
	ch, ok := f.streams[taskID]
	if !ok {
		ch = make(chan tasks.Event, 32)
		f.streams[taskID] = ch
	}
	return ch
}

var _ tasks.Client = (*FakeTasks)(nil)
