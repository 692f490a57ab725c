// Package prompt builds the system instruction sent with every chat turn.
package prompt

import (
	_ "embed"
	"strings"

	"github.com/spigell/resumax/internal/chat"
	"github.com/spigell/resumax/internal/profile"
	"github.com/spigell/resumax/internal/utils"
)

const (
	DefaultContextTurns = 5
	DefaultDetailRunes  = 100
	DefaultResumeRunes  = 3000

	NoResumePlaceholder          = "No resume uploaded yet."
	NoRecommendationsPlaceholder = "No recommendations available yet."
)

//go:embed instructions.md
var baseInstructions string

//go:embed general.md
var generalGuidance string

// Assembler renders user context and recent turns into one instruction. It
// holds no state besides its budgets and is safe for concurrent use.
type Assembler struct {
	// ContextTurns bounds how many recent turns are quoted.
	ContextTurns int
	// DetailRunes bounds long free-text items such as task descriptions.
	DetailRunes int
	// ResumeRunes bounds the quoted resume text.
	ResumeRunes int
}

func NewAssembler(contextTurns, detailRunes, resumeRunes int) *Assembler {
	if contextTurns <= 0 {
		contextTurns = DefaultContextTurns
	}
	if detailRunes <= 0 {
		detailRunes = DefaultDetailRunes
	}
	if resumeRunes <= 0 {
		resumeRunes = DefaultResumeRunes
	}

	return &Assembler{
		ContextTurns: contextTurns,
		DetailRunes:  detailRunes,
		ResumeRunes:  resumeRunes,
	}
}

// Assemble returns the system instruction. Missing data never fails the call:
// absent sections become placeholders and with no context at all the result is
// a generic career-guidance instruction.
func (a *Assembler) Assemble(uc profile.UserContext, history []chat.Turn) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(baseInstructions))

	resume := strings.TrimSpace(uc.ResumeText)
	hasContext := !uc.Profile.IsEmpty() || !uc.Recommendations.IsEmpty() || resume != ""

	if !hasContext {
		section(&b, "", strings.TrimSpace(generalGuidance))
	} else {
		if !uc.Profile.IsEmpty() {
			section(&b, "USER PROFILE:", a.renderProfile(uc.Profile))
		}

		if resume != "" {
			section(&b, "USER'S RESUME:", utils.Truncate(resume, a.ResumeRunes))
		} else {
			section(&b, "USER'S RESUME:", NoResumePlaceholder)
		}

		if uc.Recommendations.IsEmpty() {
			section(&b, "PERSONALIZED RECOMMENDATIONS:", NoRecommendationsPlaceholder)
		} else {
			section(&b, "PERSONALIZED RECOMMENDATIONS:", a.renderRecommendations(uc.Recommendations))
		}
	}

	if recent := chat.Tail(history, a.ContextTurns); len(recent) > 0 {
		section(&b, "RECENT CONVERSATION HISTORY:", renderHistory(recent))
	}

	return b.String()
}

func section(b *strings.Builder, title, body string) {
	if body == "" {
		return
	}
	b.WriteString("\n\n")
	if title != "" {
		b.WriteString(title)
		b.WriteString("\n")
	}
	b.WriteString(body)
}

func (a *Assembler) renderProfile(p profile.Profile) string {
	var lines []string
	add := func(label, value string) {
		if value = singleLine(value); value != "" {
			lines = append(lines, "- "+label+": "+value)
		}
	}

	add("Name", p.Name())
	add("Email", p.Email)
	add("School", p.School)
	add("Major", p.Major)
	add("GPA", p.GPA)
	add("Graduation Year", p.GraduationYear)
	add("Desired Occupation", p.DesiredOccupation)
	add("Target Companies", strings.Join(p.TargetCompanies, ", "))
	add("Skills", strings.Join(p.Skills, ", "))
	add("Interests", strings.Join(p.Interests, ", "))

	return strings.Join(lines, "\n")
}

func (a *Assembler) renderRecommendations(r profile.Recommendations) string {
	var lines []string
	bullets := func(title string, items []string) {
		if len(items) == 0 {
			return
		}
		lines = append(lines, title)
		for _, item := range items {
			lines = append(lines, "  • "+utils.Truncate(singleLine(item), a.DetailRunes))
		}
	}
	inline := func(label string, items []string) {
		if len(items) > 0 {
			lines = append(lines, label+": "+singleLine(strings.Join(items, ", ")))
		}
	}

	bullets("STRENGTHS:", r.Strengths)
	bullets("GAPS TO ADDRESS:", r.Gaps)

	if len(r.ActionPlan.Phases) > 0 {
		lines = append(lines, "ACTION PLAN:")
		for _, phase := range r.ActionPlan.Phases {
			if head := joinNonEmpty(": ", singleLine(phase.Priority), singleLine(phase.Duration)); head != "" {
				lines = append(lines, "- "+head)
			}
			for _, task := range phase.Tasks {
				desc := utils.Truncate(singleLine(task.Description), a.DetailRunes)
				if entry := joinNonEmpty(": ", singleLine(task.Title), desc); entry != "" {
					lines = append(lines, "  * "+entry)
				}
			}
		}
	}
	bullets("IMMEDIATE ACTIONS:", r.ActionPlan.Immediate)
	bullets("SHORT-TERM GOALS:", r.ActionPlan.ShortTerm)
	bullets("LONG-TERM GOALS:", r.ActionPlan.LongTerm)

	inline("Recommended Classes", r.Classes)
	inline("Target Companies", r.Companies)
	inline("Skills to Develop", r.Skills)

	return strings.Join(lines, "\n")
}

func renderHistory(turns []chat.Turn) string {
	lines := make([]string, 0, len(turns))
	for _, turn := range turns {
		label := "User"
		if turn.Role == chat.RoleModel {
			label = "Advisor"
		}
		lines = append(lines, label+": "+strings.TrimSpace(turn.Content))
	}
	return strings.Join(lines, "\n")
}

// singleLine collapses whitespace and swaps square brackets for parentheses so
// user supplied values cannot fake section headers or role markers.
func singleLine(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return strings.NewReplacer("[", "(", "]", ")").Replace(s)
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := parts[:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
