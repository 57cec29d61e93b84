package cleanup

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
)

// RenderForest writes a hierarchical view of the discovered objects with the
// treatment each one is planned to get. Iterative pre-order, same explicit
// stack discipline as the planner's traversal.
func RenderForest(w io.Writer, forest *Forest, deps map[string][]string) {
	if len(forest.Roots) == 0 {
		fmt.Fprintln(w, "no objects discovered")
		return
	}

	type entry struct {
		node  *Node
		depth int
	}
	var stack []entry
	for i := len(forest.Roots) - 1; i >= 0; i-- {
		stack = append(stack, entry{node: forest.Roots[i]})
	}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		obj := top.node.Object
		fmt.Fprintf(w, "%s- %s  [%s, %s%s]%s\n",
			strings.Repeat("  ", top.depth),
			obj.Name,
			obj.Kind,
			renderSize(obj.SizeBytes),
			renderSnapCount(obj),
			renderActions(obj, deps),
		)

		for i := len(top.node.Children) - 1; i >= 0; i-- {
			stack = append(stack, entry{node: top.node.Children[i], depth: top.depth + 1})
		}
	}
}

func renderSize(size int64) string {
	if size < 0 {
		return "size unknown"
	}
	return humanize.IBytes(uint64(size))
}

func renderSnapCount(obj *Object) string {
	if len(obj.Snapshots) == 0 {
		return ""
	}
	return fmt.Sprintf(", %d snapshot(s)", len(obj.Snapshots))
}

func renderActions(obj *Object, deps map[string][]string) string {
	var actions []string
	if obj.InTrash() {
		actions = append(actions, "restore")
	}
	if obj.NeedsFlatten || len(deps[obj.Name]) > 0 {
		actions = append(actions, "flatten")
	}
	if len(obj.Snapshots) > 0 {
		actions = append(actions, "remove snapshots")
	}
	actions = append(actions, "delete")
	return "  (" + strings.Join(actions, ", ") + ")"
}
