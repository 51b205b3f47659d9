package domain

import "time"

// ManualBroadcastTag marks drops published by hand rather than by a query.
const ManualBroadcastTag = "Manual Broadcast"

// Source is a reference cited by a research result.
type Source struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// IntelQueryResult is the ephemeral output of a research query.
type IntelQueryResult struct {
	SummaryBullets  []string `json:"summary_bullets"`
	Sources         []Source `json:"sources"`
	RelatedConcepts []string `json:"related_concepts"`
	Essay           string   `json:"essay,omitempty"`
}

// Clone deep-copies the result.
func (r *IntelQueryResult) Clone() *IntelQueryResult {
	if r == nil {
		return nil
	}
	return &IntelQueryResult{
		SummaryBullets:  append([]string(nil), r.SummaryBullets...),
		Sources:         append([]Source(nil), r.Sources...),
		RelatedConcepts: append([]string(nil), r.RelatedConcepts...),
		Essay:           r.Essay,
	}
}

// IntelDrop is a persisted, shareable research artifact.
type IntelDrop struct {
	ID              string    `json:"id,omitempty"`
	AuthorID        string    `json:"author_id"`
	AuthorName      string    `json:"-"`
	AuthorAvatar    string    `json:"-"`
	Query           string    `json:"query"`
	SummaryBullets  []string  `json:"summary_bullets"`
	Sources         []Source  `json:"sources"`
	RelatedConcepts []string  `json:"related_concepts"`
	Essay           string    `json:"essay,omitempty"`
	IsPrivate       bool      `json:"is_private"`
	CreatedAt       time.Time `json:"created_at"`
}

// Clone deep-copies the drop.
func (d IntelDrop) Clone() IntelDrop {
	d.SummaryBullets = append([]string(nil), d.SummaryBullets...)
	d.Sources = append([]Source(nil), d.Sources...)
	d.RelatedConcepts = append([]string(nil), d.RelatedConcepts...)
	return d
}

// VisibleTo reports whether a session for userID may observe the drop.
func (d IntelDrop) VisibleTo(userID string) bool {
	return !d.IsPrivate || (userID != "" && d.AuthorID == userID)
}

// NewDropFromResult turns a query result into an unsaved drop.
func NewDropFromResult(authorID, query string, res *IntelQueryResult, private bool) IntelDrop {
	r := res.Clone()
	return IntelDrop{
		AuthorID:        authorID,
		Query:           query,
		SummaryBullets:  r.SummaryBullets,
		Sources:         r.Sources,
		RelatedConcepts: r.RelatedConcepts,
		Essay:           r.Essay,
		IsPrivate:       private,
	}
}

// NewManualDrop builds a public drop authored by hand.
func NewManualDrop(authorID, title, content string, tags []string) IntelDrop {
	concepts := append([]string{ManualBroadcastTag}, tags...)
	return IntelDrop{
		AuthorID:        authorID,
		Query:           title,
		SummaryBullets:  []string{content},
		Sources:         []Source{},
		RelatedConcepts: concepts,
		IsPrivate:       false,
	}
}
