package inference

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dohr-michael/orbit/internal/domain"
)

var errNoJSON = errors.New("no JSON object in response")

// extractJSON returns the JSON object embedded in a model reply, tolerating
// markdown fences and surrounding prose.
func extractJSON(text string) (string, error) {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return "", errNoJSON
	}
	return s[start : end+1], nil
}

func parseDifficulty(text string) (domain.Difficulty, error) {
	raw, err := extractJSON(text)
	if err != nil {
		return "", err
	}
	var out struct {
		Difficulty string `json:"difficulty"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return "", fmt.Errorf("decode difficulty: %w", err)
	}
	d := domain.Difficulty(out.Difficulty)
	if !d.Valid() {
		return "", fmt.Errorf("unknown difficulty %q", out.Difficulty)
	}
	return d, nil
}

func parseResearch(text string) (*domain.IntelQueryResult, error) {
	raw, err := extractJSON(text)
	if err != nil {
		return nil, err
	}
	var res domain.IntelQueryResult
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return nil, fmt.Errorf("decode research result: %w", err)
	}
	if res.SummaryBullets == nil {
		res.SummaryBullets = []string{}
	}
	if res.Sources == nil {
		res.Sources = []domain.Source{}
	}
	if res.RelatedConcepts == nil {
		res.RelatedConcepts = []string{}
	}
	return &res, nil
}
