package notify

import (
	"fmt"
	"strings"

	"modelwatch/internal/catalog"
)

// RenderReport formats a change report as the message sent to chats:
// an added block, a removed block, or both separated by a blank line.
func RenderReport(report catalog.ChangeReport) string {
	var blocks []string

	if len(report.Added) > 0 {
		var b strings.Builder
		fmt.Fprintf(&b, "🆕 New models in %s:\n", report.Source)
		for _, m := range report.Added {
			b.WriteString(renderLine(m))
		}
		blocks = append(blocks, strings.TrimRight(b.String(), "\n"))
	}

	if len(report.Removed) > 0 {
		var b strings.Builder
		fmt.Fprintf(&b, "❌ Removed from %s:\n", report.Source)
		for _, m := range report.Removed {
			b.WriteString(renderLine(m))
		}
		blocks = append(blocks, strings.TrimRight(b.String(), "\n"))
	}

	return strings.Join(blocks, "\n\n")
}

func renderLine(m catalog.Model) string {
	name := m.Name
	if name == "" {
		name = m.ID
	}
	if m.Tag != "" {
		return fmt.Sprintf("• %s (%s)\n", name, m.Tag)
	}
	return fmt.Sprintf("• %s\n", name)
}
