package cleanup_test

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"odf-cleanup/src/cleanup"
	"odf-cleanup/src/rbdapi"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func objectNames(res *cleanup.DiscoverResult) []string {
	names := make([]string, 0, len(res.Objects))
	for _, o := range res.Objects {
		names = append(names, o.Name)
	}
	return names
}

func TestDiscover_VolumesAndCloneSnapshots(t *testing.T) {
	fake := rbdapi.NewFake()
	fake.AddImage("ocp4-cluster-abc123-vol1", 10<<30, "")
	fake.AddImage("csi-snap-0001", 1<<30, "ocp4-cluster-abc123-vol1")
	fake.AddImage("ocp4-cluster-other-vol", 5<<30, "")
	fake.AddImage("csi-snap-0002", 1<<30, "ocp4-cluster-other-vol")

	res := cleanup.Discover(fake, "abc123", testLogger())

	assert.ElementsMatch(t, []string{"ocp4-cluster-abc123-vol1", "csi-snap-0001"}, objectNames(res))
	assert.Empty(t, res.Deps)
}

func TestDiscover_DescendantExpansion(t *testing.T) {
	fake := rbdapi.NewFake()
	fake.AddImage("ocp4-cluster-abc123-vol1", 10<<30, "")
	// A restored volume cloned off the tenant's volume, without the tenant
	// id in its name, and a snapshot hanging off that again.
	fake.AddImage("restored-vol", 10<<30, "ocp4-cluster-abc123-vol1")
	fake.AddImage("csi-snap-deep", 1<<30, "restored-vol")

	res := cleanup.Discover(fake, "abc123", testLogger())

	assert.ElementsMatch(t,
		[]string{"ocp4-cluster-abc123-vol1", "restored-vol", "csi-snap-deep"},
		objectNames(res))

	for _, o := range res.Objects {
		switch o.Name {
		case "csi-snap-deep":
			assert.Equal(t, cleanup.KindCloneSnapshot, o.Kind)
		default:
			assert.Equal(t, cleanup.KindVolume, o.Kind)
		}
	}
}

func TestDiscover_TrashedDescendantBecomesDependencyEdge(t *testing.T) {
	fake := rbdapi.NewFake()
	fake.AddImage("ocp4-cluster-abc123-vol1", 10<<30, "")
	fake.AddTrash("t-1", "csi-snap-gone", "ocp4-cluster-abc123-vol1", time.Now().Add(time.Hour))

	res := cleanup.Discover(fake, "abc123", testLogger())

	require.Contains(t, res.Deps, "ocp4-cluster-abc123-vol1")
	assert.Equal(t, []string{"csi-snap-gone"}, res.Deps["ocp4-cluster-abc123-vol1"])
	// The trashed snapshot is the target of an edge, so it joins the set.
	assert.Contains(t, objectNames(res), "csi-snap-gone")

	for _, o := range res.Objects {
		if o.Name == "csi-snap-gone" {
			assert.Equal(t, cleanup.KindTrashCloneSnapshot, o.Kind)
			assert.Equal(t, "t-1", o.TrashID)
		}
	}
}

func TestDiscover_UnreferencedTrashStaysOut(t *testing.T) {
	fake := rbdapi.NewFake()
	fake.AddImage("ocp4-cluster-abc123-vol1", 10<<30, "")
	fake.AddTrash("t-9", "csi-snap-unrelated", "", time.Now().Add(time.Hour))

	res := cleanup.Discover(fake, "abc123", testLogger())

	assert.NotContains(t, objectNames(res), "csi-snap-unrelated")
}

func TestDiscover_TrashedParentRecordedAsDependency(t *testing.T) {
	fake := rbdapi.NewFake()
	fake.AddTrash("t-v2", "ocp4-cluster-abc123-vol2", "", time.Now().Add(time.Hour))
	fake.AddImage("csi-snap-c2", 1<<30, "ocp4-cluster-abc123-vol2")

	res := cleanup.Discover(fake, "abc123", testLogger())

	assert.ElementsMatch(t, []string{"ocp4-cluster-abc123-vol2", "csi-snap-c2"}, objectNames(res))
	assert.Equal(t, []string{"ocp4-cluster-abc123-vol2"}, res.Deps["csi-snap-c2"])

	for _, o := range res.Objects {
		if o.Name == "ocp4-cluster-abc123-vol2" {
			assert.Equal(t, cleanup.KindTrashVolume, o.Kind)
			assert.Equal(t, "t-v2", o.TrashID)
		}
	}
}

func TestDiscover_PartialListingFailure(t *testing.T) {
	fake := rbdapi.NewFake()
	fake.AddImage("ocp4-cluster-abc123-vol1", 10<<30, "")
	fake.AddTrash("t-1", "ocp4-cluster-abc123-vol2", "", time.Now().Add(time.Hour))
	fake.Errors["list-images"] = errors.New("osd down")

	res := cleanup.Discover(fake, "abc123", testLogger())

	// Active listing contributed nothing; the trash listing still did.
	assert.Equal(t, []string{"ocp4-cluster-abc123-vol2"}, objectNames(res))
}

func TestDiscover_MetadataFailureDegradesToUnknown(t *testing.T) {
	fake := rbdapi.NewFake()
	fake.AddImage("ocp4-cluster-abc123-vol1", 10<<30, "")
	fake.Errors["image-info:ocp4-cluster-abc123-vol1"] = errors.New("timeout")

	res := cleanup.Discover(fake, "abc123", testLogger())

	require.Len(t, res.Objects, 1)
	assert.Equal(t, rbdapi.SizeUnknown, res.Objects[0].SizeBytes)
}
