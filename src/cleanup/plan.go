package cleanup

// Plan is the ordered, flag-annotated removal plan: objects children-first,
// plus the trash dependency map the executor consults for fallbacks.
type Plan struct {
	Objects []*Object
	Deps    map[string][]string
}

// BuildPlan orders the forest children-before-parents and marks what each
// object needs on the way out. An object entangled with trash cannot keep
// its parent reference through deletion: the trashed side may well outlive
// this run, so it must be flattened first. The flag is a hint; acting on it
// is the executor's job.
func BuildPlan(forest *Forest, deps map[string][]string) *Plan {
	order := forest.PostOrder()
	for _, obj := range order {
		if len(deps[obj.Name]) > 0 {
			obj.DependsOnTrash = true
			obj.NeedsFlatten = true
		}
		if obj.InTrash() {
			obj.NeedsRestore = true
		}
	}
	return &Plan{Objects: order, Deps: deps}
}
