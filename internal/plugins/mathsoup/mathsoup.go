// Package mathsoup is a twenty-questions game about mathematical concepts.
// Players ask yes/no questions that the AI judges, then guess the answer.
package mathsoup

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/keshon/botcore/internal/capability"
	"github.com/keshon/botcore/internal/dispatch"
	"github.com/keshon/botcore/internal/event"
	"github.com/keshon/botcore/internal/plugin"
	"github.com/keshon/botcore/internal/prompts"
	"github.com/keshon/botcore/internal/services"
	"github.com/keshon/botcore/internal/session"
	"github.com/keshon/botcore/internal/textutil"
)

const (
	feature = "math_soup"

	MsgStarted       = "Math puzzle started"
	MsgAlreadyActive = "A math puzzle is already running.\nUse /reveal to end it before starting a new one."
	MsgNoGame        = "Start a game with /mathsoup first."
	MsgNoActiveGame  = "No game is running."
	MsgAskUsage      = "Please type a question, e.g. /ask is it about geometry"
	MsgGuessUsage    = "Please type a guess, e.g. /guess Euler's formula"
	MsgAIMissing     = "The AI service is not available."
	MsgAIFailed      = "The AI service is temporarily unavailable, please try again later."
	MsgWrong         = "Wrong."

	Yes    = "Yes"
	No     = "No"
	Unsure = "Unsure"

	judgeTemperature = 0.1
	judgeMaxTokens   = 10
	closeSimilarity  = 50
)

var errEmptyRepository = errors.New("the concept repository is empty")

// Exchange is one judged question.
type Exchange struct {
	Question string
	Verdict  string
}

// Game is one puzzle in a group.
type Game struct {
	session.State
	Concept   Concept
	Questions int
	Guesses   int
	History   []Exchange
}

type MathSoup struct {
	games   *session.Manager[*Game]
	repo    *Repository
	reg     *capability.Registry
	prompts *prompts.Store
	debug   bool
	log     *log.Logger
}

type Config struct {
	Repository *Repository
	Registry   *capability.Registry
	Prompts    *prompts.Store
	Debug      bool
	Logger     *log.Logger
}

func New(cfg Config, opts ...session.Option) *MathSoup {
	m := &MathSoup{
		repo:    cfg.Repository,
		reg:     cfg.Registry,
		prompts: cfg.Prompts,
		debug:   cfg.Debug,
		log:     cfg.Logger,
	}
	m.games = session.NewManager("mathsoup", m.newGame, opts...)
	return m
}

func (m *MathSoup) newGame(context.Context, string, session.Args) (*Game, error) {
	c, ok := m.repo.Random()
	if !ok {
		return nil, errEmptyRepository
	}
	return &Game{Concept: c}, nil
}

// Games exposes the session manager.
func (m *MathSoup) Games() *session.Manager[*Game] { return m.games }

// Handlers returns the start, ask, guess and reveal commands.
func (m *MathSoup) Handlers() []dispatch.Handler {
	return []dispatch.Handler{startCommand{m}, askCommand{m}, guessCommand{m}, revealCommand{m}}
}

type startCommand struct{ m *MathSoup }

func (startCommand) Descriptor() plugin.Descriptor {
	return plugin.Descriptor{
		Name:        "Math puzzle",
		Description: "Guess a mathematical concept with yes/no questions",
		Command:     "mathsoup",
		Aliases:     []string{"数学谜"},
		Feature:     feature,
		Priority:    10,
	}
}

func (c startCommand) Handle(ctx context.Context, ev *event.Event, _ string) error {
	g, started, err := c.m.games.StartIfAbsent(ctx, ev.GroupID, nil)
	if err == nil && !started {
		return dispatch.FinishReply(ctx, MsgAlreadyActive)
	}
	if err != nil {
		var se *session.StartError
		if errors.As(err, &se) {
			err = se.Err
		}
		return dispatch.FinishReply(ctx, "Failed to start the game: "+err.Error())
	}
	if c.m.debug {
		return dispatch.FinishReply(ctx, fmt.Sprintf("%s [debug: %s]", MsgStarted, g.Concept.Answer))
	}
	return dispatch.FinishReply(ctx, MsgStarted)
}

type askCommand struct{ m *MathSoup }

func (askCommand) Descriptor() plugin.Descriptor {
	return plugin.Descriptor{
		Name:        "Math puzzle question",
		Description: "Ask a yes/no question about the hidden concept",
		Command:     "ask",
		Aliases:     []string{"问"},
		Feature:     feature,
		Priority:    10,
	}
}

func (c askCommand) Handle(ctx context.Context, ev *event.Event, args string) error {
	if args == "" {
		return dispatch.FinishReply(ctx, MsgAskUsage)
	}
	g, ok := c.m.games.Get(ev.GroupID)
	if !ok {
		return dispatch.FinishReply(ctx, MsgNoGame)
	}

	verdict, err := c.m.judge(ctx, g.Concept, args)
	if err != nil {
		c.m.log.Warn("judge failed", "group", ev.GroupID, "err", err)
		if errors.Is(err, errNoAI) {
			return dispatch.FinishReply(ctx, MsgAIMissing)
		}
		return dispatch.FinishReply(ctx, MsgAIFailed)
	}

	_, err = c.m.games.Update(ev.GroupID, func(g *Game) error {
		if verdict != Unsure {
			g.Questions++
		}
		g.History = append(g.History, Exchange{Question: args, Verdict: verdict})
		return nil
	})
	if errors.Is(err, session.ErrNoSession) {
		return dispatch.FinishReply(ctx, MsgNoGame)
	}
	if err != nil {
		return err
	}
	return dispatch.FinishReply(ctx, verdict)
}

var errNoAI = errors.New("no AI service registered")

func (m *MathSoup) judge(ctx context.Context, c Concept, question string) (string, error) {
	tmpl, err := m.prompts.Get(prompts.MathSoupJudge)
	if err != nil {
		return "", err
	}
	ai, ok := capability.Get[services.AIChat](m.reg)
	if !ok || !ai.Available() {
		return "", errNoAI
	}

	aliases := "none"
	if len(c.Aliases) > 0 {
		aliases = strings.Join(c.Aliases, ", ")
	}
	system := prompts.Render(tmpl, map[string]string{
		"answer":   c.Answer,
		"aliases":  aliases,
		"category": c.Category,
		"question": question,
	})

	out, err := ai.Chat(ctx, services.ChatRequest{
		System:      system,
		User:        question,
		Temperature: judgeTemperature,
		MaxTokens:   judgeMaxTokens,
	})
	if err != nil {
		return "", err
	}
	return ParseVerdict(out), nil
}

// ParseVerdict maps a free-form judge reply onto Yes, No or Unsure.
// Unsure phrases are checked first since "not sure" contains "no".
func ParseVerdict(reply string) string {
	s := strings.ToLower(strings.TrimSpace(reply))
	switch {
	case containsAny(s, "unsure", "not sure", "不确定"):
		return Unsure
	case containsAny(s, "yes", "是"):
		return Yes
	case containsAny(s, "no", "否"):
		return No
	}
	return Unsure
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

type guessCommand struct{ m *MathSoup }

func (guessCommand) Descriptor() plugin.Descriptor {
	return plugin.Descriptor{
		Name:        "Math puzzle guess",
		Description: "Guess the hidden concept",
		Command:     "guess",
		Aliases:     []string{"猜"},
		Feature:     feature,
		Priority:    10,
	}
}

func (c guessCommand) Handle(ctx context.Context, ev *event.Event, args string) error {
	if args == "" {
		return dispatch.FinishReply(ctx, MsgGuessUsage)
	}

	var (
		concept Concept
		best    float64
	)
	correct, err := c.m.games.Update(ev.GroupID, func(g *Game) error {
		g.Guesses++
		concept = g.Concept
		candidates := append([]string{g.Concept.Answer}, g.Concept.Aliases...)
		for _, cand := range candidates {
			if textutil.Equal(args, cand) {
				return session.ErrEnd
			}
		}
		_, best = textutil.BestMatch(args, candidates)
		return nil
	})
	if errors.Is(err, session.ErrNoSession) {
		return dispatch.FinishReply(ctx, MsgNoGame)
	}
	if err != nil {
		return err
	}

	switch {
	case correct:
		return dispatch.FinishReply(ctx, fmt.Sprintf("Correct. The answer is %s.\n%s", concept.Answer, concept.Description))
	case best > closeSimilarity:
		return dispatch.FinishReply(ctx, fmt.Sprintf("Very close, similarity %.0f%%", best))
	default:
		return dispatch.FinishReply(ctx, MsgWrong)
	}
}

type revealCommand struct{ m *MathSoup }

func (revealCommand) Descriptor() plugin.Descriptor {
	return plugin.Descriptor{
		Name:        "Math puzzle answer",
		Description: "Reveal the answer and end the game",
		Command:     "reveal",
		Aliases:     []string{"giveup", "答案", "不猜了", "揭晓"},
		Feature:     feature,
		Priority:    10,
	}
}

func (c revealCommand) Handle(ctx context.Context, ev *event.Event, _ string) error {
	var g *Game
	_, err := c.m.games.Update(ev.GroupID, func(cur *Game) error {
		g = cur
		return session.ErrEnd
	})
	if errors.Is(err, session.ErrNoSession) {
		return dispatch.FinishReply(ctx, MsgNoActiveGame)
	}
	if err != nil {
		return err
	}
	return dispatch.FinishReply(ctx, fmt.Sprintf("Answer: %s\n%s\nQuestions: %d, guesses: %d",
		g.Concept.Answer, g.Concept.Description, g.Questions, g.Guesses))
}
