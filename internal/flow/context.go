package flow

import (
	"fmt"
	"sort"
	"strings"

	"github.com/saxo751/ottercoach.ai-sub000/internal/models"
	"github.com/saxo751/ottercoach.ai-sub000/internal/store"
)

// recentSessionLimit bounds how many logged sessions are serialized into the
// prompt context.
const recentSessionLimit = 5

// buildUserContext serializes everything the model should know about the
// athlete. Sections with no underlying data are omitted entirely so the
// prompt never carries an empty heading.
func buildUserContext(st store.Store, user *models.User) (string, error) {
	var b strings.Builder

	writeProfileSection(&b, user)

	fp, err := st.ActiveFocusPeriod(user.ID)
	if err != nil {
		return "", fmt.Errorf("failed to load focus period: %w", err)
	}
	writeFocusSection(&b, fp)

	goals, err := st.ActiveGoals(user.ID)
	if err != nil {
		return "", fmt.Errorf("failed to load goals: %w", err)
	}
	writeGoalsSection(&b, goals)

	sessions, err := st.RecentTrainingSessions(user.ID, recentSessionLimit)
	if err != nil {
		return "", fmt.Errorf("failed to load sessions: %w", err)
	}
	writeSessionsSection(&b, sessions)

	memories, err := st.ActiveMemories(user.ID)
	if err != nil {
		return "", fmt.Errorf("failed to load memories: %w", err)
	}
	writeMemorySection(&b, memories)

	return strings.TrimSpace(b.String()), nil
}

func writeProfileSection(b *strings.Builder, user *models.User) {
	var lines []string
	if user.DisplayName != "" {
		lines = append(lines, "Name: "+user.DisplayName)
	}
	if user.Belt != "" {
		lines = append(lines, "Belt: "+user.Belt)
	}
	if user.ExperienceMonths > 0 {
		lines = append(lines, fmt.Sprintf("Experience: %d months", user.ExperienceMonths))
	}
	if user.GameStyle != "" {
		lines = append(lines, "Game style: "+user.GameStyle)
	}
	if days := user.TrainingDays.Days(); len(days) > 0 {
		sort.Strings(days)
		lines = append(lines, "Training days: "+strings.Join(days, ", "))
	}
	if user.Injuries != "" {
		lines = append(lines, "Injuries: "+user.Injuries)
	}
	if user.Goals != "" {
		lines = append(lines, "Stated goals: "+user.Goals)
	}
	if user.FocusArea != "" {
		lines = append(lines, "Focus area: "+user.FocusArea)
	}
	if len(lines) == 0 {
		return
	}
	b.WriteString("## Athlete profile\n")
	for _, l := range lines {
		b.WriteString(l + "\n")
	}
	b.WriteString("\n")
}

func writeFocusSection(b *strings.Builder, fp *models.FocusPeriod) {
	if fp == nil {
		return
	}
	b.WriteString("## Current focus period\n")
	b.WriteString(fp.Name)
	if fp.Description != "" {
		b.WriteString(" — " + fp.Description)
	}
	b.WriteString("\n")
	if len(fp.Positions) > 0 {
		b.WriteString("Positions: " + strings.Join(fp.Positions, ", ") + "\n")
	}
	if len(fp.Techniques) > 0 {
		b.WriteString("Techniques: " + strings.Join(fp.Techniques, ", ") + "\n")
	}
	b.WriteString("\n")
}

func writeGoalsSection(b *strings.Builder, goals []models.Goal) {
	if len(goals) == 0 {
		return
	}
	b.WriteString("## Active goals\n")
	for _, g := range goals {
		b.WriteString("- " + g.Text)
		if g.Progress != "" {
			b.WriteString(" (progress: " + g.Progress + ")")
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
}

func writeSessionsSection(b *strings.Builder, sessions []models.TrainingSession) {
	if len(sessions) == 0 {
		return
	}
	b.WriteString("## Recent training sessions\n")
	for _, s := range sessions {
		b.WriteString("- " + s.Date)
		if s.TrainingType != "" {
			b.WriteString(" " + s.TrainingType)
		}
		if s.DurationMins > 0 {
			b.WriteString(fmt.Sprintf(" (%d min)", s.DurationMins))
		}
		var parts []string
		if len(s.Techniques) > 0 {
			parts = append(parts, "worked on "+strings.Join(s.Techniques, ", "))
		}
		if s.Wins != "" {
			parts = append(parts, "wins: "+s.Wins)
		}
		if s.Struggles != "" {
			parts = append(parts, "struggles: "+s.Struggles)
		}
		if len(parts) > 0 {
			b.WriteString(": " + strings.Join(parts, "; "))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
}

// memorySectionTitles maps categories to their prompt headings, in render
// order.
var memorySectionOrder = []struct {
	category models.MemoryCategory
	title    string
}{
	{models.MemoryIdentity, "Identity"},
	{models.MemoryPreference, "Preferences"},
	{models.MemoryFact, "Facts"},
	{models.MemoryInsight, "Coaching insights"},
	{models.MemoryObservation, "Session observations"},
	{models.MemoryPattern, "Patterns"},
}

// writeMemorySection renders active memories grouped by category. Memories
// arrive newest first; capped categories keep the newest entries.
func writeMemorySection(b *strings.Builder, memories []models.Memory) {
	if len(memories) == 0 {
		return
	}
	byCategory := make(map[models.MemoryCategory][]models.Memory)
	for _, m := range memories {
		byCategory[m.Category] = append(byCategory[m.Category], m)
	}
	wroteHeading := false
	for _, section := range memorySectionOrder {
		group := byCategory[section.category]
		if len(group) == 0 {
			continue
		}
		if cap := section.category.ContextCap(); cap > 0 && len(group) > cap {
			group = group[:cap]
		}
		if !wroteHeading {
			b.WriteString("## What you remember about this athlete\n")
			wroteHeading = true
		}
		b.WriteString(section.title + ":\n")
		for _, m := range group {
			b.WriteString("- " + m.Content + "\n")
		}
	}
	if wroteHeading {
		b.WriteString("\n")
	}
}
