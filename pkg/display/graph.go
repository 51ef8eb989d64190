package display

import (
	"fmt"
	"strings"

	"github.com/memtrail/memtrail/pkg/provenance"
)

// GraphNode is one node in the generic graph export.
type GraphNode struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Kind  string `json:"kind"` // "entry" or "branch"
}

// GraphEdge is one directed edge in the generic graph export.
type GraphEdge struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Relation string `json:"relation"`
}

// GraphExport is a generic node/edge structure for external graphing
// tools.
type GraphExport struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// Graph exports the chain and branches as nodes and edges. Chain entries
// are linked in order; branches point at their parent branch.
func Graph(p *provenance.Provenance) GraphExport {
	var export GraphExport
	if p == nil {
		return export
	}

	for i, e := range p.Chain {
		export.Nodes = append(export.Nodes, GraphNode{
			ID:    entryID(p.MemoryID, i),
			Label: fmt.Sprintf("%s by %s", e.Action, e.Actor),
			Kind:  "entry",
		})
		if i > 0 {
			export.Edges = append(export.Edges, GraphEdge{
				From:     entryID(p.MemoryID, i-1),
				To:       entryID(p.MemoryID, i),
				Relation: "next",
			})
		}
		for _, related := range e.With {
			export.Edges = append(export.Edges, GraphEdge{
				From:     entryID(p.MemoryID, i),
				To:       related,
				Relation: string(e.Action),
			})
		}
	}

	for _, name := range sortedBranchNames(p) {
		br := p.Branches[name]
		id := branchID(p.MemoryID, name)
		export.Nodes = append(export.Nodes, GraphNode{
			ID:    id,
			Label: fmt.Sprintf("branch %s", name),
			Kind:  "branch",
		})
		if br.ParentBranch != "" {
			export.Edges = append(export.Edges, GraphEdge{
				From:     branchID(p.MemoryID, br.ParentBranch),
				To:       id,
				Relation: "fork",
			})
		}
	}

	return export
}

// DOT renders the graph export as a Graphviz directed-graph definition.
func DOT(p *provenance.Provenance) string {
	export := Graph(p)

	var b strings.Builder
	b.WriteString("digraph provenance {\n")
	for _, n := range export.Nodes {
		shape := "box"
		if n.Kind == "branch" {
			shape = "ellipse"
		}
		fmt.Fprintf(&b, "  %q [label=%q, shape=%s];\n", n.ID, n.Label, shape)
	}
	for _, e := range export.Edges {
		fmt.Fprintf(&b, "  %q -> %q [label=%q];\n", e.From, e.To, e.Relation)
	}
	b.WriteString("}\n")
	return b.String()
}

func entryID(memoryID string, index int) string {
	return fmt.Sprintf("%s#%d", memoryID, index)
}

func branchID(memoryID, branch string) string {
	return fmt.Sprintf("%s@%s", memoryID, branch)
}
