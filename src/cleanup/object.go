package cleanup

import (
	"strings"
	"time"

	"odf-cleanup/src/rbdapi"
)

// Kind classifies a discovered object. Trash kinds address the backend's
// trash namespace (by trash id) instead of the active one (by name).
type Kind int

const (
	KindVolume Kind = iota
	KindCloneSnapshot
	KindTrashVolume
	KindTrashCloneSnapshot
)

func (k Kind) String() string {
	switch k {
	case KindVolume:
		return "volume"
	case KindCloneSnapshot:
		return "clone-snapshot"
	case KindTrashVolume:
		return "trash-volume"
	case KindTrashCloneSnapshot:
		return "trash-clone-snapshot"
	}
	return "unknown"
}

// State tracks an object's progress through the removal machine.
type State int

const (
	StatePending State = iota
	StateRestoring
	StateFlattening
	StateRemovingSnapshots
	StateRemovingSelf
	StateRemoved
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRestoring:
		return "restoring"
	case StateFlattening:
		return "flattening"
	case StateRemovingSnapshots:
		return "removing-snapshots"
	case StateRemovingSelf:
		return "removing-self"
	case StateRemoved:
		return "removed"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Object is one discovered unit of work. Discovery fills the identity and
// metadata fields; the planner and executor own the flag and state fields.
type Object struct {
	Name      string
	Kind      Kind
	SizeBytes int64 // rbdapi.SizeUnknown when metadata was unavailable
	CreatedAt time.Time
	ParentRef string // cloned-from image name, may resolve to nothing
	Snapshots []rbdapi.SnapshotInfo
	TrashID   string // set for trash kinds, needed to restore

	NeedsFlatten   bool
	NeedsRestore   bool
	DependsOnTrash bool
	State          State
}

func (o *Object) InTrash() bool {
	return o.Kind == KindTrashVolume || o.Kind == KindTrashCloneSnapshot
}

// cloneSnapMarker tags CSI-provisioned clone snapshots. Their names never
// embed a tenant identifier; ownership is established through the parent.
const cloneSnapMarker = "csi-snap"

// IsCloneSnapshotName reports whether an image name denotes a clone snapshot.
func IsCloneSnapshotName(name string) bool {
	return strings.Contains(name, cloneSnapMarker)
}
