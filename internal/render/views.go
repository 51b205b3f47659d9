package render

import (
	"fmt"
	"strings"
	"time"

	"charm.land/lipgloss/v2"

	"github.com/dohr-michael/orbit/internal/domain"
	"github.com/dohr-michael/orbit/internal/store"
)

const timeLayout = "2006-01-02 15:04"

// Tasks renders one line per task: state mark, short key, category,
// difficulty and title.
func Tasks(tasks []domain.Task) string {
	if len(tasks) == 0 {
		return MutedStyle.Render("No tasks.")
	}
	lines := make([]string, 0, len(tasks))
	for _, t := range tasks {
		lines = append(lines, taskLine(t))
	}
	return strings.Join(lines, "\n")
}

func taskLine(t domain.Task) string {
	mark := "[ ]"
	title := t.Title
	switch {
	case t.Completed:
		mark = SuccessStyle.Render("[x]")
		title = DoneStyle.Render(title)
	case t.Pending:
		mark = PendingStyle.Render("[~]")
	}

	cat := string(t.Category)
	if s, ok := categoryStyles[cat]; ok {
		cat = s.Render(fmt.Sprintf("%-6s", cat))
	}

	diff := string(t.Difficulty)
	switch {
	case t.Analyzing:
		diff = PendingStyle.Render("analyzing")
	case diff == "":
		diff = MutedStyle.Render("-")
	}

	return fmt.Sprintf("%s %s  %s  %-9s  %s", mark, MutedStyle.Render(ShortKey(t.Key())), cat, diff, title)
}

// ShortKey trims an identifier to a prefix long enough to type.
func ShortKey(key string) string {
	const n = 8
	if strings.HasPrefix(key, "local_") {
		key = strings.TrimPrefix(key, "local_")
		if len(key) > n {
			key = key[:n]
		}
		return "~" + key
	}
	if len(key) > n {
		return key[:n]
	}
	return key
}

// Profile renders the signed-in identity and counters.
func Profile(p *domain.UserProfile) string {
	if p == nil {
		return MutedStyle.Render("Not signed in.")
	}
	name := TitleStyle.Render(p.Username)
	if p.IsAdmin {
		name += " " + PendingStyle.Render("(admin)")
	}
	body := []string{
		name,
		MutedStyle.Render("id ") + p.ID,
		fmt.Sprintf("completed %d  forfeited %d  streak %dd",
			p.Stats.TasksCompleted, p.Stats.TasksForfeited, p.Stats.StreakDays),
	}
	if p.IntelInstructions != "" {
		body = append(body, MutedStyle.Render("intel: ")+p.IntelInstructions)
	}
	return PanelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, body...))
}

// Chat renders the conversation transcript.
func Chat(messages []domain.ChatMessage, width int) string {
	if len(messages) == 0 {
		return MutedStyle.Render("No messages.")
	}
	blocks := make([]string, 0, len(messages))
	for _, m := range messages {
		blocks = append(blocks, Message(m, width))
	}
	return strings.Join(blocks, "\n\n")
}

// Message renders a single chat turn.
func Message(m domain.ChatMessage, width int) string {
	stamp := MutedStyle.Render(m.Timestamp.Local().Format(timeLayout))
	switch {
	case m.Urgent || m.IsSOS:
		return stamp + " " + UrgentStyle.Render("!! "+m.Text)
	case m.Role == domain.RoleUser:
		return stamp + " " + UserStyle.Render("❯ ") + m.Text
	default:
		return stamp + "\n" + ModelStyle.Render(Markdown(m.Text, width))
	}
}

// Drops renders one line per intel drop.
func Drops(drops []domain.IntelDrop) string {
	if len(drops) == 0 {
		return MutedStyle.Render("No intel drops.")
	}
	lines := make([]string, 0, len(drops))
	for _, d := range drops {
		vis := SuccessStyle.Render("public ")
		if d.IsPrivate {
			vis = PendingStyle.Render("private")
		}
		author := d.AuthorName
		if author == "" {
			author = ShortKey(d.AuthorID)
		}
		lines = append(lines, fmt.Sprintf("%s  %s  %s  %s  %s",
			MutedStyle.Render(ShortKey(d.ID)),
			vis,
			MutedStyle.Render(d.CreatedAt.Local().Format(timeLayout)),
			AuthorStyle.Render("@"+author),
			d.Query,
		))
	}
	return strings.Join(lines, "\n")
}

// DropMarkdown builds the markdown document of a drop or query result.
func DropMarkdown(query string, r *domain.IntelQueryResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", query)
	if r == nil {
		return b.String()
	}
	if len(r.SummaryBullets) > 0 {
		b.WriteString("## Summary\n\n")
		for _, s := range r.SummaryBullets {
			fmt.Fprintf(&b, "- %s\n", s)
		}
		b.WriteString("\n")
	}
	if len(r.Sources) > 0 {
		b.WriteString("## Sources\n\n")
		for _, s := range r.Sources {
			if s.URL != "" {
				fmt.Fprintf(&b, "- [%s](%s)", s.Title, s.URL)
			} else {
				fmt.Fprintf(&b, "- %s", s.Title)
			}
			if s.Snippet != "" {
				fmt.Fprintf(&b, ": %s", s.Snippet)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	if len(r.RelatedConcepts) > 0 {
		fmt.Fprintf(&b, "## Related\n\n%s\n\n", strings.Join(r.RelatedConcepts, " · "))
	}
	if r.Essay != "" {
		fmt.Fprintf(&b, "---\n\n%s\n", r.Essay)
	}
	return b.String()
}

// Drop renders a full drop with its essay.
func Drop(d domain.IntelDrop, width int) string {
	author := d.AuthorName
	if author == "" {
		author = d.AuthorID
	}
	header := MutedStyle.Render(fmt.Sprintf("%s by ", d.CreatedAt.Local().Format(timeLayout))) + AuthorStyle.Render("@"+author)
	res := &domain.IntelQueryResult{
		SummaryBullets:  d.SummaryBullets,
		Sources:         d.Sources,
		RelatedConcepts: d.RelatedConcepts,
		Essay:           d.Essay,
	}
	return header + "\n" + Markdown(DropMarkdown(d.Query, res), width)
}

// IntelResult renders an unsaved research result.
func IntelResult(query string, r *domain.IntelQueryResult, width int) string {
	if r == nil {
		return MutedStyle.Render("No result.")
	}
	return Markdown(DropMarkdown(query, r), width)
}

// Mutations renders in-flight mutations, oldest first.
func Mutations(ms []store.Mutation, now time.Time) string {
	if len(ms) == 0 {
		return ""
	}
	lines := make([]string, 0, len(ms))
	for _, m := range ms {
		age := now.Sub(m.StartedAt).Truncate(time.Millisecond)
		lines = append(lines, PendingStyle.Render(fmt.Sprintf("%s %s (%s)", m.Kind, ShortKey(m.Target), age)))
	}
	return strings.Join(lines, "\n")
}
