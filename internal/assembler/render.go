package assembler

import (
	"fmt"
	"strings"

	"github.com/rcliao/branch-memory/internal/model"
)

// FallbackInstruction is the system turn used when no context could be built.
const FallbackInstruction = "You are a helpful assistant. Answer the user's question clearly and informatively."

const noContext = "No context available."

const systemTemplate = `You are an intelligent assistant helping the user analyse ideas and how they are reflected in the world.

Discussion context:
%s
Instructions:
1. Analyse the provided context
2. Consider both popular ideas and rare but valuable insights
3. Identify connections between different concepts
4. Answer the user's question in a structured but natural way`

// Fallback returns the minimal two-turn prompt.
func Fallback(message string) []model.Turn {
	return []model.Turn{
		{Role: model.RoleSystem, Content: FallbackInstruction},
		{Role: model.RoleUser, Content: message},
	}
}

// Render returns the system turn describing bundle followed by message.
func (b *Builder) Render(message string, bundle Bundle) []model.Turn {
	return []model.Turn{
		{Role: model.RoleSystem, Content: fmt.Sprintf(systemTemplate, b.formatContext(bundle))},
		{Role: model.RoleUser, Content: message},
	}
}

func (b *Builder) formatContext(bundle Bundle) string {
	var sb strings.Builder
	b.writeSection(&sb, "Main discussions", bundle.Main)
	b.writeSection(&sb, "Valuable ideas", bundle.Notable)
	b.writeSection(&sb, "Related concepts", bundle.Related)
	if sb.Len() == 0 {
		return noContext + "\n"
	}
	return sb.String()
}

func (b *Builder) writeSection(sb *strings.Builder, title string, items []Item) {
	if len(items) == 0 {
		return
	}
	sb.WriteString(title)
	sb.WriteString(":\n")
	for i, it := range items {
		fmt.Fprintf(sb, "%d. %s\n", i+1, Preview(it.Content, b.opts.PreviewLength))
	}
	sb.WriteString("\n")
}

// Preview truncates s to n runes, appending "..." when it was cut.
func Preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
