package mathsoup

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"
	"sort"
	"sync"

	"github.com/charmbracelet/log"
)

// Concept is one puzzle answer.
type Concept struct {
	ID          string   `json:"id"`
	Answer      string   `json:"answer"`
	Aliases     []string `json:"aliases"`
	Category    string   `json:"category"`
	Tags        []string `json:"tags"`
	Description string   `json:"description"`
}

type conceptFile struct {
	Concepts []Concept `json:"concepts"`
}

var defaultConcepts = []Concept{{
	ID:          "fermat_last_theorem",
	Answer:      "Fermat's Last Theorem",
	Aliases:     []string{"Fermat's theorem", "费马大定理"},
	Category:    "Number theory",
	Tags:        []string{"number theory", "proof", "358 years"},
	Description: "For integers n > 2 the equation a^n + b^n = c^n has no positive integer solutions.",
}}

// Repository holds the concepts a game can pick from.
type Repository struct {
	mu       sync.RWMutex
	concepts []Concept
	intn     func(int) int
}

// NewRepository loads concepts from path. An empty path, a missing file or
// an unreadable file yields the built-in concept.
func NewRepository(path string, logger *log.Logger) *Repository {
	r := &Repository{intn: rand.IntN}
	if path == "" {
		r.concepts = defaultConcepts
		return r
	}
	concepts, err := loadConcepts(path)
	if err != nil {
		logger.Warn("using built-in concepts", "path", path, "err", err)
		r.concepts = defaultConcepts
		return r
	}
	r.concepts = concepts
	logger.Info("concepts loaded", "path", path, "count", len(concepts))
	return r
}

// NewRepositoryOf builds a repository from an explicit list.
func NewRepositoryOf(concepts ...Concept) *Repository {
	return &Repository{concepts: concepts, intn: rand.IntN}
}

func loadConcepts(path string) ([]Concept, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f conceptFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	// later entries win on duplicate ids
	byID := make(map[string]Concept, len(f.Concepts))
	for _, c := range f.Concepts {
		if c.ID == "" || c.Answer == "" {
			continue
		}
		byID[c.ID] = c
	}
	out := make([]Concept, 0, len(byID))
	for _, c := range byID {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Random picks a concept. It reports false when the repository is empty.
func (r *Repository) Random() (Concept, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.concepts) == 0 {
		return Concept{}, false
	}
	return r.concepts[r.intn(len(r.concepts))], true
}

func (r *Repository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.concepts)
}
