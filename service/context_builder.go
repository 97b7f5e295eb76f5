package service

import (
	"fmt"
	"strings"

	"procurement-assistant/config"
	"procurement-assistant/models"
)

const chunkRule = "============================================================"

// ContextBuilder renders retrieval results into the context string handed to the model
type ContextBuilder struct {
	overrides config.OverrideTables
	messages  config.MessageTables
	tags      map[models.Category]string
}

func NewContextBuilder(tables *config.Tables) *ContextBuilder {
	tags := make(map[models.Category]string, len(tables.Platforms))
	for _, p := range tables.Platforms {
		tags[p.Category] = p.Tag
	}
	return &ContextBuilder{overrides: tables.Overrides, messages: tables.Messages, tags: tags}
}

// Build concatenates the blocks in fixed order: overrides, conflict warnings,
// platform instructions, general law, then topical slices
func (b *ContextBuilder) Build(r *Retrieval, conflicts []ConflictMatch) string {
	var blocks []string
	if len(r.Overrides) > 0 {
		blocks = append(blocks, b.RenderOverrides(r.Overrides))
	}
	if len(conflicts) > 0 {
		blocks = append(blocks, b.RenderConflicts(conflicts))
	}
	for _, s := range r.Slices {
		if len(s.Chunks) == 0 {
			continue
		}
		var sb strings.Builder
		sb.WriteString(s.Title)
		sb.WriteString("\n\n")
		for _, c := range s.Chunks {
			sb.WriteString(b.RenderChunk(c))
		}
		blocks = append(blocks, strings.TrimRight(sb.String(), "\n"))
	}
	return strings.Join(blocks, "\n\n")
}

// RenderOverrides groups entries by list type in the fixed list order,
// keeping input order within each group
func (b *ContextBuilder) RenderOverrides(entries []models.OverrideEntry) string {
	grouped := make(map[models.ListType][]models.OverrideEntry)
	for _, e := range entries {
		grouped[e.ListType] = append(grouped[e.ListType], e)
	}
	meta := make(map[models.ListType]config.OverrideListMeta, len(b.overrides.Lists))
	for _, m := range b.overrides.Lists {
		meta[m.ListType] = m
	}

	var sb strings.Builder
	sb.WriteString(b.overrides.Title)
	sb.WriteString("\n")
	for _, lt := range models.ListTypes {
		group := grouped[lt]
		if len(group) == 0 {
			continue
		}
		m := meta[lt]
		fmt.Fprintf(&sb, "\n## %s\nОснование: %s\nСсылка: %s\n", m.Title, m.Basis, m.URL)
		for _, e := range group {
			fmt.Fprintf(&sb, "%d. %s", e.Num, e.Name)
			if e.Subsection != "" {
				fmt.Fprintf(&sb, " [%s]", e.Subsection)
			}
			if e.ClassificationCodes != "" {
				fmt.Fprintf(&sb, " (КТРУ: %s)", e.ClassificationCodes)
			}
			sb.WriteString("\n")
			if e.Method != "" {
				fmt.Fprintf(&sb, "   Способ закупки: %s\n", e.Method)
			}
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// RenderConflicts emits one warning sub-block per active conflict
func (b *ContextBuilder) RenderConflicts(conflicts []ConflictMatch) string {
	var sb strings.Builder
	sb.WriteString(b.messages.ConflictTitle)
	sb.WriteString("\n")
	for _, m := range conflicts {
		def := m.Definition
		fmt.Fprintf(&sb, "\n## %s\n%s\n", def.Title, b.messages.ConflictPositiveLabel)
		for _, norm := range def.PositiveNorms {
			fmt.Fprintf(&sb, "- %s\n", norm)
		}
		sb.WriteString(b.messages.ConflictNegativeLabel)
		sb.WriteString("\n")
		for _, norm := range def.ConflictingNorms {
			fmt.Fprintf(&sb, "- %s\n", norm)
		}
		if def.Instruction != "" {
			sb.WriteString(def.Instruction)
			sb.WriteString("\n")
		}
		if len(m.Evidence) == 0 {
			fmt.Fprintf(&sb, "Фрагменты: %s\n", strings.Join(def.EvidenceChunkIDs, ", "))
			continue
		}
		sb.WriteString("\n")
		for _, c := range m.Evidence {
			sb.WriteString(b.RenderChunk(c))
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// RenderChunk renders one chunk followed by the visual rule
func (b *ContextBuilder) RenderChunk(c models.Chunk) string {
	header := []string{fmt.Sprintf("[%s] %s", c.ID, c.DocumentShort)}
	if tag, ok := b.tags[c.Category]; ok && tag != "" {
		header = append(header, tag)
	}
	if heading := c.Heading(); heading != "" {
		header = append(header, heading)
	}

	var sb strings.Builder
	sb.WriteString(strings.Join(header, " | "))
	sb.WriteString("\n")
	if c.OfficialURL != "" {
		fmt.Fprintf(&sb, "Ссылка: %s\n", c.OfficialURL)
	}
	sb.WriteString(strings.TrimSpace(c.Text))
	sb.WriteString("\n")
	sb.WriteString(chunkRule)
	sb.WriteString("\n\n")
	return sb.String()
}
