package rbdapi

import "time"

// ImageInfo carries the metadata we read off an RBD image.
// Size and creation time may be unavailable (backend metadata calls can
// fail independently of listing); SizeUnknown / a zero time mean "unknown".
type ImageInfo struct {
	SizeBytes int64
	CreatedAt time.Time
	// Parent is the name of the image this one was cloned from, empty for
	// root images. The parent may itself be sitting in the trash.
	Parent        string
	ParentInTrash bool
}

// SizeUnknown marks an image whose size could not be fetched.
const SizeUnknown int64 = -1

// ChildRef is one clone child of an image, as reported by the backend.
type ChildRef struct {
	Name    string
	InTrash bool
}

// SnapshotInfo is one internal snapshot of an image.
type SnapshotInfo struct {
	Name      string
	Protected bool
}

// TrashEntry is a soft-deleted image still inside its deferred-delete window.
type TrashEntry struct {
	ID      string
	Name    string
	Expires time.Time
}

// Client is a narrow interface over the RBD API used by our app.
// Keep it small and focused on what we actually need so it stays mockable.
type Client interface {
	// Listing
	ListImages() ([]string, error)
	ListTrash() ([]TrashEntry, error)

	// Per-image reads
	ImageInfo(name string) (ImageInfo, error)
	ListChildren(name string) ([]ChildRef, error)
	ListSnapshots(name string) ([]SnapshotInfo, error)
	ImageExists(name string) (bool, error)
	TrashExists(id string) (bool, error)

	// Mutations
	UnprotectSnapshot(image, snap string) error
	RemoveSnapshot(image, snap string) error
	Flatten(name string) error
	RemoveImage(name string) error
	RestoreTrash(id, name string) error
	PurgeTrash() error

	// Close releases the backend session. Safe to call more than once.
	Close() error
}

type NotFoundError struct{ Resource, Name string }

func (e *NotFoundError) Error() string { return e.Resource + " not found: " + e.Name }
