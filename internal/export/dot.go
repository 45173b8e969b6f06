package export

import (
	"bufio"
	"io"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/specialistvlad/stalegrid/internal/dag"
	"github.com/specialistvlad/stalegrid/internal/task"
)

// DOT writes g as a Graphviz digraph. Artifacts are boxes, tasks are
// ellipses and every node is labeled with its short name.
func DOT(w io.Writer, g *dag.Graph) error {
	bw := bufio.NewWriter(w)

	bw.WriteString("digraph stalegrid {\n")
	bw.WriteString("  rankdir=LR;\n")
	for _, id := range g.Nodes(dag.KindArtifact) {
		bw.WriteString("  " + strconv.Quote(id) + " [shape=box, label=" + strconv.Quote(shortName(id)) + "];\n")
	}
	for _, id := range g.Nodes(dag.KindTask) {
		bw.WriteString("  " + strconv.Quote(id) + " [shape=ellipse, label=" + strconv.Quote(shortName(id)) + "];\n")
	}
	for _, e := range g.Edges() {
		bw.WriteString("  " + strconv.Quote(e.From) + " -> " + strconv.Quote(e.To) + ";\n")
	}
	bw.WriteString("}\n")

	return bw.Flush()
}

// shortName is the task name for tasks and the last path element for
// URL-shaped artifact IDs.
func shortName(id string) string {
	if name, ok := strings.CutPrefix(id, task.Scheme); ok {
		return name
	}
	if u, err := url.Parse(id); err == nil && u.Path != "" {
		return path.Base(u.Path)
	}
	return id
}
