// Package services holds the capability contracts business code depends on
// and their default implementations. Implementations are built in main and
// published through the capability registry.
package services

import (
	"context"
	"errors"
	"time"
)

// Permission decides whether a user may use the bot at all.
type Permission interface {
	IsBlocked(userID string) bool
}

// FeatureGate answers whether a named feature is switched on.
type FeatureGate interface {
	IsFeatureEnabled(name string) bool
}

// Settings is a FeatureGate that can be changed at runtime.
type Settings interface {
	FeatureGate
	SetFeature(name string, enabled bool) error
	Features() map[string]bool
}

// BanList manages blocked users.
type BanList interface {
	Permission
	Ban(userID string) (bool, error)
	Unban(userID string) (bool, error)
	Banned() []string
}

// Admins knows which users may run administrative commands.
type Admins interface {
	IsAdmin(userID string) bool
}

// ErrAIUnavailable is returned when no AI backend is configured.
var ErrAIUnavailable = errors.New("ai service not configured")

// ChatRequest is one completion call.
type ChatRequest struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
	TopP        float64
}

// AIChat is a narrow request/response completion backend.
type AIChat interface {
	Available() bool
	Chat(ctx context.Context, req ChatRequest) (string, error)
}

// ChatHistory keeps recent group messages and reply cooldowns.
type ChatHistory interface {
	Record(groupID, userID, username, text string, fromBot bool)
	Context(groupID string, limit int) string
	CheckCooldown(groupID string) bool
	SetCooldown(groupID string)
}

// Tokens issues short-lived one-time tokens for administrative actions.
type Tokens interface {
	Generate(userID string) string
	Verify(userID, token string) bool
	Remaining(userID string) (time.Duration, bool)
}

// Moderation applies chat-level sanctions.
type Moderation interface {
	Mute(ctx context.Context, groupID, userID string, d time.Duration) error
}

// SystemMonitor reports process health.
type SystemMonitor interface {
	StatusText() string
}
