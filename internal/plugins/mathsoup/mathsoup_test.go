package mathsoup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/botcore/internal/capability"
	"github.com/keshon/botcore/internal/dispatch"
	"github.com/keshon/botcore/internal/dispatch/dispatchtest"
	"github.com/keshon/botcore/internal/logger"
	"github.com/keshon/botcore/internal/prompts"
	"github.com/keshon/botcore/internal/services"
	"github.com/keshon/botcore/internal/services/servicestest"
)

var fermat = defaultConcepts[0]

type fixture struct {
	game *MathSoup
	d    *dispatch.Dispatcher
	rec  *dispatchtest.Recorder
	ai   *servicestest.AI
}

func newFixture(t *testing.T, repo *Repository, debug bool) *fixture {
	t.Helper()
	ai := &servicestest.AI{Replies: []string{"Yes."}}
	reg := capability.New()
	capability.Register[services.AIChat](reg, ai)

	m := New(Config{
		Repository: repo,
		Registry:   reg,
		Prompts:    prompts.New(""),
		Debug:      debug,
		Logger:     logger.Discard(),
	})
	d, rec := dispatchtest.New(t, reg)
	for _, h := range m.Handlers() {
		d.RegisterCommand(h)
	}
	return &fixture{game: m, d: d, rec: rec, ai: ai}
}

func (f *fixture) say(text string) string {
	f.d.HandleEvent(context.Background(), dispatchtest.GroupEvent("u1", text))
	return f.rec.Last().Text
}

func TestFullGame(t *testing.T) {
	f := newFixture(t, NewRepositoryOf(fermat), false)

	assert.Equal(t, MsgNoGame, f.say("/ask is it geometry"))
	assert.Equal(t, MsgStarted, f.say("/mathsoup"))
	assert.Equal(t, MsgAlreadyActive, f.say("/数学谜"))

	assert.Equal(t, Yes, f.say("/ask is it about numbers"))
	f.ai.Replies = []string{"unsure"}
	assert.Equal(t, Unsure, f.say("/问 is it famous"))

	assert.Equal(t, MsgWrong, f.say("/guess xyz"))
	assert.Equal(t, "Very close, similarity 80%", f.say("/guess Fermat"))

	g, ok := f.game.Games().Get(dispatchtest.Group)
	require.True(t, ok)
	assert.Equal(t, 1, g.Questions)
	assert.Equal(t, 2, g.Guesses)
	assert.Len(t, g.History, 2)

	assert.Equal(t, "Correct. The answer is Fermat's Last Theorem.\n"+fermat.Description, f.say("/guess fermat's last theorem"))
	assert.False(t, f.game.Games().HasActive(dispatchtest.Group))
}

func TestConcurrentStartKeepsFirstGame(t *testing.T) {
	f := newFixture(t, NewRepositoryOf(fermat), false)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.d.HandleEvent(context.Background(), dispatchtest.GroupEvent("u1", "/mathsoup"))
		}()
	}
	wg.Wait()

	started := 0
	for _, text := range f.rec.Texts() {
		if text == MsgStarted {
			started++
		} else {
			assert.Equal(t, MsgAlreadyActive, text)
		}
	}
	assert.Equal(t, 1, started)
	assert.Equal(t, 1, f.game.Games().Count())
}

func TestGuessAlias(t *testing.T) {
	f := newFixture(t, NewRepositoryOf(fermat), false)
	f.say("/mathsoup")
	assert.Contains(t, f.say("/猜 费马大定理"), "Correct.")
}

func TestReveal(t *testing.T) {
	f := newFixture(t, NewRepositoryOf(fermat), false)
	assert.Equal(t, MsgNoActiveGame, f.say("/reveal"))

	f.say("/mathsoup")
	f.say("/ask is it a theorem")
	f.say("/guess xyz")
	assert.Equal(t, "Answer: Fermat's Last Theorem\n"+fermat.Description+"\nQuestions: 1, guesses: 1", f.say("/giveup"))
	assert.Equal(t, MsgNoActiveGame, f.say("/揭晓"))
}

func TestJudgeRequest(t *testing.T) {
	f := newFixture(t, NewRepositoryOf(fermat), false)
	f.say("/mathsoup")
	f.say("/ask is it about primes")

	require.Equal(t, 1, f.ai.Calls())
	req := f.ai.Requests[0]
	assert.Equal(t, "is it about primes", req.User)
	assert.Contains(t, req.System, "Fermat's theorem, 费马大定理")
	assert.Contains(t, req.System, "Number theory")
	assert.Equal(t, 10, req.MaxTokens)
	assert.InDelta(t, 0.1, req.Temperature, 1e-9)
}

func TestAIFailure(t *testing.T) {
	f := newFixture(t, NewRepositoryOf(fermat), false)
	f.say("/mathsoup")

	f.ai.Err = errors.New("boom")
	assert.Equal(t, MsgAIFailed, f.say("/ask anything"))

	f.ai.Err = nil
	f.ai.Unavailable = true
	assert.Equal(t, MsgAIMissing, f.say("/ask anything"))

	g, _ := f.game.Games().Get(dispatchtest.Group)
	assert.Zero(t, g.Questions)
}

func TestStartFailsOnEmptyRepository(t *testing.T) {
	f := newFixture(t, NewRepositoryOf(), false)
	assert.Equal(t, "Failed to start the game: "+errEmptyRepository.Error(), f.say("/mathsoup"))
	assert.Zero(t, f.game.Games().Count())
}

func TestDebugShowsAnswer(t *testing.T) {
	f := newFixture(t, NewRepositoryOf(fermat), true)
	assert.Equal(t, MsgStarted+" [debug: Fermat's Last Theorem]", f.say("/mathsoup"))
}

func TestParseVerdict(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Yes.", Yes},
		{"是", Yes},
		{"no", No},
		{"否。", No},
		{"I'm not sure", Unsure},
		{"UNSURE", Unsure},
		{"", Unsure},
		{"maybe", Unsure},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ParseVerdict(c.in), c.in)
	}
}

func TestRepositoryLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "concepts.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"concepts":[
		{"id":"euler","answer":"Euler's identity","aliases":["e^(iπ)+1=0"]},
		{"id":"broken"},
		{"id":"pi","answer":"Pi"}
	]}`), 0o644))

	r := NewRepository(path, logger.Discard())
	assert.Equal(t, 2, r.Len())

	r.intn = func(int) int { return 0 }
	c, ok := r.Random()
	require.True(t, ok)
	assert.Equal(t, "euler", c.ID)

	fallback := NewRepository(filepath.Join(dir, "missing.json"), logger.Discard())
	assert.Equal(t, 1, fallback.Len())
}
