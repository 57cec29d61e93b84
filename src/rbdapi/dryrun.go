package rbdapi

import "fmt"

// DryRun wraps a Client, forwarding reads and swallowing every mutation.
// Suppressed mutations are recorded in Actions so the caller can print the
// plan. Close is forwarded: the session is real even when the run is not.
type DryRun struct {
	Backend Client
	Actions []string
}

func NewDryRun(backend Client) *DryRun {
	return &DryRun{Backend: backend}
}

func (d *DryRun) record(format string, args ...any) error {
	d.Actions = append(d.Actions, fmt.Sprintf(format, args...))
	return nil
}

func (d *DryRun) ListImages() ([]string, error)          { return d.Backend.ListImages() }
func (d *DryRun) ListTrash() ([]TrashEntry, error)       { return d.Backend.ListTrash() }
func (d *DryRun) ImageInfo(n string) (ImageInfo, error)  { return d.Backend.ImageInfo(n) }
func (d *DryRun) ListChildren(n string) ([]ChildRef, error) {
	return d.Backend.ListChildren(n)
}
func (d *DryRun) ListSnapshots(n string) ([]SnapshotInfo, error) {
	return d.Backend.ListSnapshots(n)
}
func (d *DryRun) ImageExists(n string) (bool, error) { return d.Backend.ImageExists(n) }
func (d *DryRun) TrashExists(id string) (bool, error) { return d.Backend.TrashExists(id) }

func (d *DryRun) UnprotectSnapshot(image, snap string) error {
	return d.record("unprotect snapshot %s@%s", image, snap)
}

func (d *DryRun) RemoveSnapshot(image, snap string) error {
	return d.record("remove snapshot %s@%s", image, snap)
}

func (d *DryRun) Flatten(name string) error {
	return d.record("flatten %s", name)
}

func (d *DryRun) RemoveImage(name string) error {
	return d.record("remove image %s", name)
}

func (d *DryRun) RestoreTrash(id, name string) error {
	return d.record("restore trash %s as %s", id, name)
}

func (d *DryRun) PurgeTrash() error {
	return d.record("purge expired trash")
}

func (d *DryRun) Close() error { return d.Backend.Close() }
