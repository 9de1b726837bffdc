// Package mermaid renders graph extractions as Mermaid flowchart source.
package mermaid

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/zcsabbagh/knowledge-graph-mcp/internal/server/core"
	"github.com/zcsabbagh/knowledge-graph-mcp/internal/server/graph"
	"github.com/zcsabbagh/knowledge-graph-mcp/internal/server/mastery"
)

var bandClasses = []string{
	"classDef struggling fill:#ff6b6b,stroke:#333,stroke-width:2px,color:#fff",
	"classDef learning fill:#ffe066,stroke:#333,stroke-width:2px",
	"classDef proficient fill:#8ce99a,stroke:#333,stroke-width:2px",
	"classDef mastered fill:#2ecc71,stroke:#333,stroke-width:2px,color:#fff",
}

const (
	classNeedsReview      = "classDef needsReview stroke:#e74c3c,stroke-width:4px,stroke-dasharray:5"
	classHasMisconception = "classDef hasMisconception stroke:#9b59b6,stroke-width:3px"
	classTarget           = "classDef target fill:#3498db,stroke:#333,stroke-width:3px,color:#fff"
)

var invalidID = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// Subgraph renders a neighbourhood top-down. Nodes are coloured by mastery
// band; nodes due at now get a dashed border and nodes with misconceptions
// a purple one. Edge arrows vary by relation type.
func Subgraph(sg *graph.Subgraph, now time.Time) string {
	var b strings.Builder
	b.WriteString("graph TD\n")
	for _, c := range bandClasses {
		line(&b, c)
	}
	line(&b, classNeedsReview)
	line(&b, classHasMisconception)

	for _, n := range sg.Nodes {
		classes := []string{string(mastery.BandOf(n.MasteryOverall))}
		if n.NextReviewDue != nil && !n.NextReviewDue.After(now) {
			classes = append(classes, "needsReview")
		}
		if len(n.Misconceptions) > 0 {
			classes = append(classes, "hasMisconception")
		}
		line(&b, nodeDef(n, strings.Join(classes, ",")))
	}
	for _, e := range sg.Edges {
		line(&b, edgeDef(e))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Path renders a learning path bottom-up with the target highlighted and
// only prerequisite edges drawn.
func Path(p *graph.Path) string {
	var b strings.Builder
	b.WriteString("graph TB\n")
	for _, c := range bandClasses {
		line(&b, c)
	}
	line(&b, classTarget)

	for _, n := range p.Steps {
		class := string(mastery.BandOf(n.MasteryOverall))
		if n.ID == p.Target.ID {
			class = "target"
		}
		line(&b, nodeDef(n, class))
	}
	for _, e := range p.Edges {
		if e.RelationType == core.Prerequisite {
			line(&b, fmt.Sprintf("%s --> %s", SanitizeID(e.Source), SanitizeID(e.Target)))
		}
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// SanitizeID turns a node id into a valid Mermaid identifier. ASCII
// punctuation becomes '_'; other characters are spelled as their code point
// so distinct non-Latin ids stay distinct.
func SanitizeID(id string) string {
	s := invalidID.ReplaceAllStringFunc(id, func(m string) string {
		r := []rune(m)[0]
		if r < 0x80 {
			return "_"
		}
		return fmt.Sprintf("u%04x", r)
	})
	if s == "" {
		return "node"
	}
	if s[0] >= '0' && s[0] <= '9' {
		s = "n_" + s
	}
	return s
}

func escapeLabel(label string) string {
	return strings.NewReplacer(`"`, "'", "\n", " ", "[", "(", "]", ")").Replace(label)
}

func nodeDef(n *core.Node, classes string) string {
	pct := int(math.Round(n.MasteryOverall * 100))
	return fmt.Sprintf(`%s["%s (%d%%)"]:::%s`, SanitizeID(n.ID), escapeLabel(n.Concept), pct, classes)
}

func edgeDef(e *core.Edge) string {
	src, dst := SanitizeID(e.Source), SanitizeID(e.Target)
	switch e.RelationType {
	case core.Prerequisite:
		return fmt.Sprintf(`%s -->|"prereq"| %s`, src, dst)
	case core.BuildsOn:
		return fmt.Sprintf(`%s ==>|"builds on"| %s`, src, dst)
	case core.RelatedTo:
		return fmt.Sprintf(`%s -.-|"related"| %s`, src, dst)
	case core.Contradicts:
		return fmt.Sprintf(`%s -.->|"contradicts"| %s`, src, dst)
	case core.AppliesTo:
		return fmt.Sprintf(`%s -->|"applies to"| %s`, src, dst)
	case core.ParentOf:
		return fmt.Sprintf(`%s -->|"parent of"| %s`, src, dst)
	default:
		return fmt.Sprintf("%s --> %s", src, dst)
	}
}

func line(b *strings.Builder, s string) {
	b.WriteString("    ")
	b.WriteString(s)
	b.WriteByte('\n')
}
