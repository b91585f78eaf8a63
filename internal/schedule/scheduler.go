// Package schedule runs groups of recurring actions at times produced by
// trigger functions. A trigger group re-arms immediately when it fires, so
// slow actions never delay the next occurrence or other groups.
package schedule

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// TriggerFunc returns the next instant a group should fire.
type TriggerFunc func() time.Time

// Action is one unit of scheduled work. A returned error is logged and
// isolated: it never affects sibling actions or the timer loop.
type Action func(ctx context.Context) error

type group struct {
	name    string
	next    TriggerFunc
	actions []namedAction
}

type namedAction struct {
	name string
	run  Action
}

type Scheduler struct {
	log *slog.Logger

	mu      sync.Mutex
	groups  []*group
	started bool
}

func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{log: logger}
}

// Schedule registers actions under a named trigger group. Calling it again
// with the same group name appends to the existing group; all actions of a
// group fire together. Must be called before Start.
func (s *Scheduler) Schedule(groupName string, next TriggerFunc, actionName string, action Action) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		panic("schedule: Schedule called after Start")
	}
	for _, g := range s.groups {
		if g.name == groupName {
			g.actions = append(g.actions, namedAction{name: actionName, run: action})
			return
		}
	}
	s.groups = append(s.groups, &group{
		name:    groupName,
		next:    next,
		actions: []namedAction{{name: actionName, run: action}},
	})
}

// Start launches one timer loop per trigger group and returns. Loops stop
// arming new timers when ctx is cancelled; actions already in flight run to
// completion.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.started = true
	groups := s.groups
	s.mu.Unlock()

	for _, g := range groups {
		go s.runGroup(ctx, g)
	}
}

func (s *Scheduler) runGroup(ctx context.Context, g *group) {
	for {
		at := g.next()
		wait := time.Until(at)
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.log.Info("trigger group stopped", "group", g.name)
			return
		case <-timer.C:
		}
		s.log.Info("trigger group firing", "group", g.name, "scheduled_for", at)
		// Actions run detached; the loop continues straight to computing
		// the next fire time. Shutdown only stops arming timers, so actions
		// get a context that survives cancellation of ctx.
		for _, a := range g.actions {
			go s.runAction(context.WithoutCancel(ctx), g.name, a)
		}
	}
}

func (s *Scheduler) runAction(ctx context.Context, groupName string, a namedAction) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("scheduled action panicked", "group", groupName, "action", a.name, "panic", r)
		}
	}()
	start := time.Now()
	if err := a.run(ctx); err != nil {
		s.log.Error("scheduled action failed", "group", groupName, "action", a.name, "err", err)
		return
	}
	s.log.Info("scheduled action complete", "group", groupName, "action", a.name, "took", time.Since(start).String())
}
