package cleanup

// Node is one object in the ownership forest.
type Node struct {
	Object   *Object
	Children []*Node
}

// Forest is the parent/child ownership structure over a discovered object
// set. An object whose ParentRef does not resolve within the set (a true
// root, or a clone whose parent stayed in trash) becomes a root.
type Forest struct {
	Roots []*Node
	nodes map[string]*Node
}

// BuildForest resolves ParentRef by name against the discovered set.
// Roots keep discovery order.
func BuildForest(objects []*Object) *Forest {
	f := &Forest{nodes: make(map[string]*Node, len(objects))}
	for _, obj := range objects {
		f.nodes[obj.Name] = &Node{Object: obj}
	}
	for _, obj := range objects {
		node := f.nodes[obj.Name]
		parent, ok := f.nodes[obj.ParentRef]
		if obj.ParentRef == "" || !ok || parent == node {
			f.Roots = append(f.Roots, node)
			continue
		}
		if !containsNode(parent.Children, node) {
			parent.Children = append(parent.Children, node)
		}
	}
	return f
}

// Node returns the node for a name, or nil.
func (f *Forest) Node(name string) *Node { return f.nodes[name] }

// PostOrder flattens the forest children-first: every object appears
// strictly after all of its descendants. Iterative on an explicit stack;
// clone chains can be deep enough that recursion is not worth the risk.
func (f *Forest) PostOrder() []*Object {
	var order []*Object
	visited := map[string]bool{}

	type frame struct {
		node *Node
		next int
	}
	for _, root := range f.Roots {
		if visited[root.Object.Name] {
			continue
		}
		visited[root.Object.Name] = true
		stack := []frame{{node: root}}
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.next < len(top.node.Children) {
				child := top.node.Children[top.next]
				top.next++
				if !visited[child.Object.Name] {
					visited[child.Object.Name] = true
					stack = append(stack, frame{node: child})
				}
				continue
			}
			order = append(order, top.node.Object)
			stack = stack[:len(stack)-1]
		}
	}
	return order
}

func containsNode(nodes []*Node, n *Node) bool {
	for _, c := range nodes {
		if c == n {
			return true
		}
	}
	return false
}
