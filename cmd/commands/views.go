package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/dohr-michael/orbit/internal/domain"
)

type taskView struct {
	ID         string    `json:"id,omitempty" yaml:"id,omitempty"`
	LocalID    string    `json:"local_id,omitempty" yaml:"local_id,omitempty"`
	Title      string    `json:"title" yaml:"title"`
	Category   string    `json:"category" yaml:"category"`
	Difficulty string    `json:"difficulty,omitempty" yaml:"difficulty,omitempty"`
	Completed  bool      `json:"completed" yaml:"completed"`
	Pending    bool      `json:"pending,omitempty" yaml:"pending,omitempty"`
	CreatedAt  time.Time `json:"created_at" yaml:"created_at"`
}

func taskViews(tasks []domain.Task) []taskView {
	out := make([]taskView, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, taskView{
			ID:         t.ID,
			LocalID:    t.LocalID,
			Title:      t.Title,
			Category:   string(t.Category),
			Difficulty: string(t.Difficulty),
			Completed:  t.Completed,
			Pending:    t.Pending || t.Analyzing,
			CreatedAt:  t.CreatedAt,
		})
	}
	return out
}

type dropView struct {
	ID              string          `json:"id" yaml:"id"`
	Author          string          `json:"author" yaml:"author"`
	Query           string          `json:"query" yaml:"query"`
	Private         bool            `json:"private" yaml:"private"`
	Summary         []string        `json:"summary,omitempty" yaml:"summary,omitempty"`
	Sources         []domain.Source `json:"sources,omitempty" yaml:"sources,omitempty"`
	RelatedConcepts []string        `json:"related_concepts,omitempty" yaml:"related_concepts,omitempty"`
	Essay           string          `json:"essay,omitempty" yaml:"essay,omitempty"`
	CreatedAt       time.Time       `json:"created_at" yaml:"created_at"`
}

func newDropView(d domain.IntelDrop, full bool) dropView {
	v := dropView{
		ID:        d.ID,
		Author:    d.AuthorName,
		Query:     d.Query,
		Private:   d.IsPrivate,
		Summary:   d.SummaryBullets,
		CreatedAt: d.CreatedAt,
	}
	if v.Author == "" {
		v.Author = d.AuthorID
	}
	if full {
		v.Sources = d.Sources
		v.RelatedConcepts = d.RelatedConcepts
		v.Essay = d.Essay
	}
	return v
}

// resolveKey finds the single id among candidates addressed by key: an
// exact match, or an unambiguous prefix. A leading "~" stands for "local_",
// the way render.ShortKey prints local ids.
func resolveKey(key string, candidates []string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("empty key")
	}
	if rest, ok := strings.CutPrefix(key, "~"); ok {
		key = "local_" + rest
	}
	var matches []string
	for _, c := range candidates {
		if c == key {
			return c, nil
		}
		if strings.HasPrefix(c, key) {
			matches = append(matches, c)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no match for %q", key)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%q is ambiguous (%d matches)", key, len(matches))
	}
}

func taskKeys(tasks []domain.Task) []string {
	keys := make([]string, 0, 2*len(tasks))
	for _, t := range tasks {
		if t.ID != "" {
			keys = append(keys, t.ID)
		}
		if t.LocalID != "" {
			keys = append(keys, t.LocalID)
		}
	}
	return keys
}

func dropKeys(drops []domain.IntelDrop) []string {
	keys := make([]string, 0, len(drops))
	for _, d := range drops {
		keys = append(keys, d.ID)
	}
	return keys
}
