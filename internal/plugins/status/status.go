// Package status is the administrator control panel: feature switches, the
// ban list and process health, guarded by one-time tokens issued in private.
package status

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/keshon/botcore/internal/capability"
	"github.com/keshon/botcore/internal/dispatch"
	"github.com/keshon/botcore/internal/event"
	"github.com/keshon/botcore/internal/plugin"
	"github.com/keshon/botcore/internal/services"
)

const (
	MsgTokensMissing   = "The token service is not available."
	MsgTokenInvalid    = "Invalid or expired token, request a new one in a private message."
	MsgSettingsMissing = "The settings service is not available."
	MsgBansMissing     = "The ban list is not available."
	MsgMonitorMissing  = "The system monitor is not available."
	MsgToggleUsage     = "Please name the feature to switch, e.g. toggle math"
	MsgBanUsage        = "Please give a user id, e.g. ban 123456"
	MsgUnbanUsage      = "Please give a user id, e.g. unban 123456"
	MsgNumericID       = "The user id must be a number."

	actionList = "toggle/ban/unban/status/system"
)

// Feature is one switch the panel can flip.
type Feature struct {
	Key   string
	Name  string
	Short string
}

// Features lists the controllable features in display order.
var Features = []Feature{
	{Key: "math", Name: "Math definition", Short: "math"},
	{Key: "random", Name: "Random reply", Short: "random"},
	{Key: "echo", Name: "Echo", Short: "echo"},
	{Key: "highnoon", Name: "High noon", Short: "highnoon"},
	{Key: "math_soup", Name: "Math puzzle", Short: "mathsoup"},
}

// MatchFeature finds the first feature whose key or name contains target,
// or whose short name equals it.
func MatchFeature(target string) (Feature, bool) {
	target = strings.ToLower(strings.TrimSpace(target))
	if target == "" {
		return Feature{}, false
	}
	for _, f := range Features {
		if strings.Contains(f.Key, target) || strings.Contains(strings.ToLower(f.Name), target) || target == f.Short {
			return f, true
		}
	}
	return Feature{}, false
}

type Status struct {
	reg *capability.Registry
	log *log.Logger
}

func New(reg *capability.Registry, logger *log.Logger) *Status {
	return &Status{reg: reg, log: logger}
}

// Token returns the command issuing one-time tokens. Callers restrict it to
// private chats and administrators.
func (s *Status) Token() dispatch.Handler { return tokenCommand{s} }

// Control returns the control panel command. Callers restrict it to
// administrators.
func (s *Status) Control() dispatch.Handler { return controlCommand{s} }

type tokenCommand struct{ s *Status }

func (tokenCommand) Descriptor() plugin.Descriptor {
	return plugin.Descriptor{
		Name:        "Request token",
		Description: "Request a one-time admin token in a private message",
		Command:     "token",
		Aliases:     []string{"申请令牌"},
		Priority:    10,
		Hidden:      true,
	}
}

func (c tokenCommand) Handle(ctx context.Context, ev *event.Event, _ string) error {
	tokens, ok := capability.Get[services.Tokens](c.s.reg)
	if !ok {
		return dispatch.FinishReply(ctx, MsgTokensMissing)
	}
	token := tokens.Generate(ev.UserID)
	ttl, _ := tokens.Remaining(ev.UserID)

	return dispatch.Finish(ctx, fmt.Sprintf(
		"Your token: %s\nValid for: %d minutes\nUsage: /status %s <action>\nActions: %s",
		token, int(math.Round(ttl.Minutes())), token, actionList))
}

type controlCommand struct{ s *Status }

func (controlCommand) Descriptor() plugin.Descriptor {
	return plugin.Descriptor{
		Name:        "Status control",
		Description: "Show and change feature switches and the ban list",
		Command:     "status",
		Aliases:     []string{"control", "状态控制"},
		Priority:    100,
		Hidden:      true,
	}
}

// Handle parses "[token] [action] [args]". Without a token it only shows
// the feature status.
func (c controlCommand) Handle(ctx context.Context, ev *event.Event, args string) error {
	token, rest := splitFirst(args)
	if token == "" {
		return dispatch.Finish(ctx, c.s.statusText())
	}

	tokens, ok := capability.Get[services.Tokens](c.s.reg)
	if !ok {
		return dispatch.FinishReply(ctx, MsgTokensMissing)
	}
	if !tokens.Verify(ev.UserID, token) {
		if left, ok := tokens.Remaining(ev.UserID); ok {
			return dispatch.FinishReply(ctx, fmt.Sprintf("Wrong token. Your token is still valid for %d seconds.", int(left/time.Second)))
		}
		return dispatch.FinishReply(ctx, MsgTokenInvalid)
	}

	action, params := splitFirst(rest)
	c.s.log.Info("admin action", "user", ev.UserID, "action", action, "args", params)

	switch strings.ToLower(action) {
	case "", "status", "状态":
		return dispatch.Finish(ctx, c.s.statusText())
	case "toggle", "开关":
		return dispatch.Finish(ctx, c.s.toggle(params))
	case "ban", "拉黑":
		return dispatch.Finish(ctx, c.s.ban(params))
	case "unban", "解封":
		return dispatch.Finish(ctx, c.s.unban(params))
	case "system", "系统":
		mon, ok := capability.Get[services.SystemMonitor](c.s.reg)
		if !ok {
			return dispatch.Finish(ctx, MsgMonitorMissing)
		}
		return dispatch.Finish(ctx, mon.StatusText())
	default:
		return dispatch.FinishReply(ctx, fmt.Sprintf("Unknown action: %s. Available: %s", action, actionList))
	}
}

func (s *Status) statusText() string {
	gate, _ := capability.Get[services.FeatureGate](s.reg)

	var b strings.Builder
	b.WriteString("Feature status:")
	for _, f := range Features {
		state := "[on]"
		if gate != nil && !gate.IsFeatureEnabled(f.Key) {
			state = "[off]"
		}
		fmt.Fprintf(&b, "\n  %s: %s", f.Name, state)
	}

	banned := 0
	if bans, ok := capability.Get[services.BanList](s.reg); ok {
		banned = len(bans.Banned())
	}
	fmt.Fprintf(&b, "\n\nBanned users: %d", banned)
	return b.String()
}

func (s *Status) toggle(target string) string {
	if strings.TrimSpace(target) == "" {
		return MsgToggleUsage
	}
	f, ok := MatchFeature(target)
	if !ok {
		names := make([]string, len(Features))
		for i, f := range Features {
			names[i] = f.Name
		}
		return "Unknown feature. Available: " + strings.Join(names, ", ")
	}

	settings, ok := capability.Get[services.Settings](s.reg)
	if !ok {
		return MsgSettingsMissing
	}
	enabled := !settings.IsFeatureEnabled(f.Key)
	if err := settings.SetFeature(f.Key, enabled); err != nil {
		s.log.Error("failed to switch feature", "feature", f.Key, "err", err)
		return fmt.Sprintf("Failed to switch %s: %v", f.Name, err)
	}
	if enabled {
		return f.Name + " is now on"
	}
	return f.Name + " is now off"
}

func (s *Status) ban(arg string) string {
	id, msg := parseUserID(arg, MsgBanUsage)
	if msg != "" {
		return msg
	}
	bans, ok := capability.Get[services.BanList](s.reg)
	if !ok {
		return MsgBansMissing
	}
	changed, err := bans.Ban(id)
	switch {
	case err != nil:
		return "Ban failed: " + err.Error()
	case !changed:
		return fmt.Sprintf("User %s is already banned", id)
	}
	return fmt.Sprintf("User %s has been banned", id)
}

func (s *Status) unban(arg string) string {
	id, msg := parseUserID(arg, MsgUnbanUsage)
	if msg != "" {
		return msg
	}
	bans, ok := capability.Get[services.BanList](s.reg)
	if !ok {
		return MsgBansMissing
	}
	changed, err := bans.Unban(id)
	switch {
	case err != nil:
		return "Unban failed: " + err.Error()
	case !changed:
		return fmt.Sprintf("User %s is not banned", id)
	}
	return fmt.Sprintf("User %s has been unbanned", id)
}

func parseUserID(arg, usage string) (string, string) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return "", usage
	}
	if _, err := strconv.ParseUint(arg, 10, 64); err != nil {
		return "", MsgNumericID
	}
	return arg, ""
}

func splitFirst(s string) (string, string) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return "", ""
	}
	rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), fields[0]))
	return fields[0], rest
}
