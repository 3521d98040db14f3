package ui

import (
	"github.com/five82/captable/internal/dispatch"
	"github.com/five82/captable/internal/task"
)

type questionRequest struct {
	q     task.Question
	reply func(task.Answer)
}

// Questions queues questions asked by running tasks until the UI can show
// them. Handle may be called from any goroutine; the queue itself is only
// touched on the dispatch goroutine.
type Questions struct {
	d       dispatch.Dispatcher
	pending []questionRequest
}

// NewQuestions returns a question queue that marshals through d.
func NewQuestions(d dispatch.Dispatcher) *Questions {
	return &Questions{d: d}
}

// Handle implements task.QuestionHandler.
func (qs *Questions) Handle(q task.Question, reply func(task.Answer)) {
	qs.d.InvokeLater(func() {
		qs.pending = append(qs.pending, questionRequest{q: q, reply: reply})
	})
}

// next pops the oldest unanswered question.
func (qs *Questions) next() (questionRequest, bool) {
	if qs == nil || len(qs.pending) == 0 {
		return questionRequest{}, false
	}
	r := qs.pending[0]
	qs.pending = qs.pending[1:]
	return r, true
}
