package cleanup_test

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"odf-cleanup/src/cleanup"
)

func obj(name, parent string) *cleanup.Object {
	return &cleanup.Object{Name: name, ParentRef: parent}
}

func TestBuildForest_RootsAndChildren(t *testing.T) {
	objects := []*cleanup.Object{
		obj("v1", ""),
		obj("v2", ""),
		obj("c1", "v1"),
		obj("c2", "v1"),
		obj("g1", "c1"),
		obj("orphan", "not-discovered"), // parent stayed in trash
	}
	f := cleanup.BuildForest(objects)

	require.Len(t, f.Roots, 3)
	assert.Equal(t, "v1", f.Roots[0].Object.Name)
	assert.Equal(t, "v2", f.Roots[1].Object.Name)
	assert.Equal(t, "orphan", f.Roots[2].Object.Name)

	v1 := f.Node("v1")
	require.NotNil(t, v1)
	require.Len(t, v1.Children, 2)
	assert.Equal(t, "c1", v1.Children[0].Object.Name)
}

func TestBuildForest_NoDuplicateChildren(t *testing.T) {
	objects := []*cleanup.Object{
		obj("v1", ""),
		obj("c1", "v1"),
		obj("c1", "v1"), // same name reachable twice
	}
	f := cleanup.BuildForest(objects)
	// The second record wins the name slot; the parent holds a single child.
	require.Len(t, f.Node("v1").Children, 1)
}

func TestPostOrder_ChildrenBeforeParents(t *testing.T) {
	objects := []*cleanup.Object{
		obj("v1", ""),
		obj("v2", ""),
		obj("c1", "v1"),
		obj("g1", "c1"),
		obj("c2", "v2"),
	}
	order := cleanup.BuildForest(objects).PostOrder()
	require.Len(t, order, len(objects))

	index := map[string]int{}
	for i, o := range order {
		index[o.Name] = i
	}
	for _, pair := range [][2]string{{"c1", "v1"}, {"g1", "c1"}, {"g1", "v1"}, {"c2", "v2"}} {
		child, parent := pair[0], pair[1]
		assert.Less(t, index[child], index[parent], "%s must precede %s", child, parent)
	}
}

func TestPostOrder_DeepChain(t *testing.T) {
	// Deep clone lineages are exactly why the traversal is iterative.
	var objects []*cleanup.Object
	parent := ""
	names := make([]string, 0, 5000)
	for i := 0; i < 5000; i++ {
		name := "img-" + strconv.Itoa(i)
		objects = append(objects, obj(name, parent))
		names = append(names, name)
		parent = name
	}
	order := cleanup.BuildForest(objects).PostOrder()
	require.Len(t, order, len(objects))
	// The deepest descendant comes out first, the root last.
	assert.Equal(t, names[len(names)-1], order[0].Name)
	assert.Equal(t, names[0], order[len(order)-1].Name)
}
