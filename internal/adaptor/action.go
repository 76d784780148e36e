package adaptor

import "sync"

// Action is one instruction for the in-Houdini client. Args carry the
// payload keyed by the action name's convention.
type Action struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// ActionClose tells the client to exit Houdini.
const ActionClose = "close"

// Queue is the ordered list of actions the client polls for. Close actions
// are pushed to the front so shutdown preempts pending work.
type Queue struct {
	mu      sync.Mutex
	actions []Action
}

// Enqueue appends an action.
func (q *Queue) Enqueue(a Action) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.actions = append(q.actions, a)
}

// EnqueueFront inserts an action ahead of everything pending.
func (q *Queue) EnqueueFront(a Action) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.actions = append([]Action{a}, q.actions...)
}

// Dequeue pops the next action. The second result is false when the queue
// is empty.
func (q *Queue) Dequeue() (Action, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.actions) == 0 {
		return Action{}, false
	}
	a := q.actions[0]
	q.actions = q.actions[1:]
	return a, true
}

// Len reports how many actions are pending.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.actions)
}
