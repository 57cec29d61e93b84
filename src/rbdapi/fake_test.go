package rbdapi_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"odf-cleanup/src/rbdapi"
)

func TestFake_RemoveImageBlockedByClones(t *testing.T) {
	fake := rbdapi.NewFake()
	fake.AddImage("parent", 1<<30, "")
	fake.AddImage("child", 1<<30, "parent")

	err := fake.RemoveImage("parent")
	require.Error(t, err)

	require.NoError(t, fake.Flatten("child"))
	require.NoError(t, fake.RemoveImage("child"))
	require.NoError(t, fake.RemoveImage("parent"))
	assert.Empty(t, fake.Images)
}

func TestFake_RemoveImageBlockedByTrashedClone(t *testing.T) {
	fake := rbdapi.NewFake()
	fake.AddImage("parent", 1<<30, "")
	fake.AddTrash("t-1", "gone-child", "parent", time.Now().Add(time.Hour))

	err := fake.RemoveImage("parent")
	require.Error(t, err)
}

func TestFake_ProtectedSnapshotMustBeUnprotectedFirst(t *testing.T) {
	fake := rbdapi.NewFake()
	fake.AddImage("img", 1<<30, "", rbdapi.SnapshotInfo{Name: "s1", Protected: true})

	require.Error(t, fake.RemoveSnapshot("img", "s1"))
	require.NoError(t, fake.UnprotectSnapshot("img", "s1"))
	require.NoError(t, fake.RemoveSnapshot("img", "s1"))
}

func TestFake_PurgeSkipsUnexpiredAndReferenced(t *testing.T) {
	fake := rbdapi.NewFake()
	fake.AddTrash("t-old", "old", "", time.Now().Add(-time.Hour))
	fake.AddTrash("t-new", "new", "", time.Now().Add(time.Hour))
	fake.AddTrash("t-ref", "referenced", "", time.Now().Add(-time.Hour))
	fake.AddImage("clone-of-ref", 1<<30, "referenced")

	require.NoError(t, fake.PurgeTrash())

	_, oldThere := fake.Trash["t-old"]
	_, newThere := fake.Trash["t-new"]
	_, refThere := fake.Trash["t-ref"]
	assert.False(t, oldThere, "expired entry should be purged")
	assert.True(t, newThere, "unexpired entry must survive")
	assert.True(t, refThere, "entry with live clones must survive")
}

func TestFake_RestoreMovesImageBack(t *testing.T) {
	fake := rbdapi.NewFake()
	fake.AddTrash("t-1", "vol", "", time.Now().Add(time.Hour))

	require.NoError(t, fake.RestoreTrash("t-1", "vol"))
	assert.Contains(t, fake.Images, "vol")
	assert.Empty(t, fake.Trash)

	exists, err := fake.ImageExists("vol")
	require.NoError(t, err)
	assert.True(t, exists)
}
