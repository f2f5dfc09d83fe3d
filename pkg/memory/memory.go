// Package memory holds the memory-block record and the formatter that turns
// stored blocks into a single injectable context block.
package memory

import "strings"

// Block is a labeled, persisted text fragment associated with an agent. It is
// owned by the memory service; this package only reads and formats it.
type Block struct {
	Label       string `json:"label"`
	Value       string `json:"value"`
	Description string `json:"description,omitempty"`
}

const (
	openMarker  = "<memory_blocks>\nThe following memory blocks are currently engaged:\n"
	closeMarker = "</memory_blocks>"
)

// FormatBlocks renders the blocks into a deterministic, tag-delimited context
// block in input order. It returns "" when there is nothing to inject: an
// empty list, or a list whose every block has an empty value. Blocks missing
// a label or value are skipped rather than failing the whole render.
func FormatBlocks(blocks []Block) string {
	var b strings.Builder
	wrote := false
	for _, blk := range blocks {
		label := strings.TrimSpace(blk.Label)
		if label == "" || blk.Value == "" {
			continue
		}
		if !wrote {
			b.WriteString(openMarker)
			wrote = true
		}
		b.WriteString("\n<")
		b.WriteString(label)
		b.WriteString(">\n")
		if desc := strings.TrimSpace(blk.Description); desc != "" {
			b.WriteString("<description>\n")
			b.WriteString(desc)
			b.WriteString("\n</description>\n")
		}
		b.WriteString("<value>\n")
		b.WriteString(blk.Value)
		b.WriteString("\n</value>\n</")
		b.WriteString(label)
		b.WriteString(">\n")
	}
	if !wrote {
		return ""
	}
	b.WriteString("\n")
	b.WriteString(closeMarker)
	return b.String()
}
