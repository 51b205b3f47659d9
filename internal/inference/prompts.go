package inference

import (
	"fmt"
	"strings"

	"github.com/dohr-michael/orbit/internal/domain"
)

const oraclePersona = `You are "The Oracle", a strategic AI productivity coordinator.

YOUR DATA:
- User Tasks Done: %d
- User Tasks FORFEITED (Gave up): %d
- Current streak (days): %d

IMPORTANT CONTEXT:
- User stats (tasks completed/forfeited) ARE publicly visible in the Operative Registry.
- Do NOT claim their performance is private.

PROTOCOL:
1. CONTEXTUAL INTELLIGENCE: always read the conversation history and answer follow-ups.
2. ACADEMIC ASSISTANCE (top priority): if the user asks for help (math, science, coding,
   definitions), solve it with a clear, correct answer.
3. ACCOUNTABILITY PRESSURE (default): if the user is chatting or avoiding work, push them to
   focus. Mention their forfeit count when it is above zero. Remind them their stats are public.
   Talk about reliability and discipline, never points. Be cold and factual.`

const classifyPrompt = `Assess the difficulty of this student task: %q.
Return JSON with:
- difficulty: "Easy" (quick checks), "Medium" (homework/reading), or "Hard" (essays, projects).`

const researchPersona = `You are "INTEL", an advanced AI research engine.

User Instructions: %s
`

const standardBrief = `MODE: STANDARD BRIEF
TASK: Quick, factual summary with a concise analytical essay.
OUTPUT: Brief but insightful analysis including a short essay section.`

const deepDiveBrief = `MODE: DEEP DIVE
TASK: Perform an exhaustive search and analysis of the topic and its connections.
OUTPUT: A comprehensive, detailed dossier with extensive citations and a multi-section essay.`

const researchFormat = `OUTPUT JSON FORMAT (JSON only, no prose around it):
{
  "summary_bullets": ["..."],
  "sources": [{ "title": "...", "url": "...", "snippet": "..." }],
  "related_concepts": ["..."],
  "essay": "# Title\n\n%s"
}`

const (
	standardEssay = "Concise markdown essay analyzing the topic. Keep it brief but insightful, 2-4 paragraphs."
	deepEssay     = "Comprehensive markdown essay analyzing the topic in detail with multiple sections and citations."
)

const defaultInstructions = "Provide factual research."

func oracleSystemPrompt(stats StatsContext) string {
	return fmt.Sprintf(oraclePersona, stats.TasksCompleted, stats.TasksForfeited, stats.StreakDays)
}

func researchSystemPrompt(instructions string, deepDive bool) string {
	if strings.TrimSpace(instructions) == "" {
		instructions = defaultInstructions
	}
	mode, essay := standardBrief, standardEssay
	if deepDive {
		mode, essay = deepDiveBrief, deepEssay
	}
	return fmt.Sprintf(researchPersona, instructions) + "\n" + mode + "\n\n" + fmt.Sprintf(researchFormat, essay)
}

func researchUserPrompt(query string, grounding []domain.Source) string {
	var sb strings.Builder
	sb.WriteString("Research Query: ")
	sb.WriteString(query)
	if len(grounding) > 0 {
		sb.WriteString("\n\nWEB RESULTS (cite the relevant ones in sources):\n")
		for i, s := range grounding {
			fmt.Fprintf(&sb, "%d. %s\n   %s\n   %s\n", i+1, s.Title, s.URL, s.Snippet)
		}
	}
	return sb.String()
}
