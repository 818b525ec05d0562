// Package servicestest provides in-memory capability fakes for handler tests.
package servicestest

import (
	"context"
	"sync"
	"time"

	"github.com/keshon/botcore/internal/services"
)

// AI is a scripted AIChat.
type AI struct {
	mu          sync.Mutex
	Unavailable bool
	Replies     []string
	Err         error
	Requests    []services.ChatRequest
}

func (a *AI) Available() bool { return !a.Unavailable }

// Chat returns the next scripted reply; the last one repeats.
func (a *AI) Chat(_ context.Context, req services.ChatRequest) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Requests = append(a.Requests, req)
	if a.Unavailable {
		return "", services.ErrAIUnavailable
	}
	if a.Err != nil {
		return "", a.Err
	}
	if len(a.Replies) == 0 {
		return "", nil
	}
	out := a.Replies[0]
	if len(a.Replies) > 1 {
		a.Replies = a.Replies[1:]
	}
	return out, nil
}

func (a *AI) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.Requests)
}

// Mute is one recorded Moderation call.
type Mute struct {
	GroupID  string
	UserID   string
	Duration time.Duration
}

// Moderation records mutes and fails them when Err is set.
type Moderation struct {
	mu    sync.Mutex
	Err   error
	Mutes []Mute
}

func (m *Moderation) Mute(_ context.Context, groupID, userID string, d time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Mutes = append(m.Mutes, Mute{GroupID: groupID, UserID: userID, Duration: d})
	return nil
}
