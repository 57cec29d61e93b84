package rbdapi

import (
	"fmt"
	"sort"
	"time"
)

// FakeImage is one image in the fake cluster. Parent references work like
// librbd's: children are computed by scanning every image's Parent field, so
// a fake clone keeps blocking its parent's removal until it is flattened,
// deleted, or purged from trash.
type FakeImage struct {
	Name      string
	Size      int64
	Created   time.Time
	Parent    string
	Snapshots []SnapshotInfo
}

// FakeTrashItem is a soft-deleted fake image. The image definition is kept so
// restore puts it back intact and its clone linkage stays visible.
type FakeTrashItem struct {
	ID      string
	Expires time.Time
	Image   *FakeImage
}

// FakeClient is an in-memory implementation for unit tests.
type FakeClient struct {
	Images map[string]*FakeImage
	Trash  map[string]*FakeTrashItem // keyed by trash id

	// Journal records every successful mutating call, in order.
	Journal []string

	// Errors injects failures per operation. Keys: "list-images",
	// "list-trash", "image-info:<name>", "list-children:<name>",
	// "list-snapshots:<name>", "unprotect:<name>@<snap>",
	// "remove-snapshot:<name>@<snap>", "flatten:<name>",
	// "remove-image:<name>", "restore:<id>", "purge".
	Errors map[string]error

	Closed int
}

func NewFake() *FakeClient {
	return &FakeClient{
		Images: map[string]*FakeImage{},
		Trash:  map[string]*FakeTrashItem{},
		Errors: map[string]error{},
	}
}

// AddImage registers an active image and returns it for further tweaking.
func (f *FakeClient) AddImage(name string, size int64, parent string, snaps ...SnapshotInfo) *FakeImage {
	img := &FakeImage{Name: name, Size: size, Created: time.Now(), Parent: parent, Snapshots: snaps}
	f.Images[name] = img
	return img
}

// AddTrash registers a soft-deleted image under the given trash id.
func (f *FakeClient) AddTrash(id, name, parent string, expires time.Time) *FakeTrashItem {
	it := &FakeTrashItem{
		ID:      id,
		Expires: expires,
		Image:   &FakeImage{Name: name, Size: SizeUnknown, Parent: parent},
	}
	f.Trash[id] = it
	return it
}

func (f *FakeClient) fail(key string) error { return f.Errors[key] }

func (f *FakeClient) log(format string, args ...any) {
	f.Journal = append(f.Journal, fmt.Sprintf(format, args...))
}

func (f *FakeClient) ListImages() ([]string, error) {
	if err := f.fail("list-images"); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(f.Images))
	for name := range f.Images {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func (f *FakeClient) ListTrash() ([]TrashEntry, error) {
	if err := f.fail("list-trash"); err != nil {
		return nil, err
	}
	out := make([]TrashEntry, 0, len(f.Trash))
	for _, it := range f.Trash {
		out = append(out, TrashEntry{ID: it.ID, Name: it.Image.Name, Expires: it.Expires})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *FakeClient) ImageInfo(name string) (ImageInfo, error) {
	if err := f.fail("image-info:" + name); err != nil {
		return ImageInfo{}, err
	}
	img, ok := f.Images[name]
	if !ok {
		return ImageInfo{}, &NotFoundError{Resource: "image", Name: name}
	}
	return ImageInfo{
		SizeBytes:     img.Size,
		CreatedAt:     img.Created,
		Parent:        img.Parent,
		ParentInTrash: img.Parent != "" && f.trashByName(img.Parent) != nil,
	}, nil
}

func (f *FakeClient) ListChildren(name string) ([]ChildRef, error) {
	if err := f.fail("list-children:" + name); err != nil {
		return nil, err
	}
	if _, ok := f.Images[name]; !ok {
		return nil, &NotFoundError{Resource: "image", Name: name}
	}
	var out []ChildRef
	for _, img := range f.Images {
		if img.Parent == name {
			out = append(out, ChildRef{Name: img.Name})
		}
	}
	for _, it := range f.Trash {
		if it.Image.Parent == name {
			out = append(out, ChildRef{Name: it.Image.Name, InTrash: true})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *FakeClient) ListSnapshots(name string) ([]SnapshotInfo, error) {
	if err := f.fail("list-snapshots:" + name); err != nil {
		return nil, err
	}
	img, ok := f.Images[name]
	if !ok {
		return nil, &NotFoundError{Resource: "image", Name: name}
	}
	return append([]SnapshotInfo(nil), img.Snapshots...), nil
}

func (f *FakeClient) ImageExists(name string) (bool, error) {
	_, ok := f.Images[name]
	return ok, nil
}

func (f *FakeClient) TrashExists(id string) (bool, error) {
	_, ok := f.Trash[id]
	return ok, nil
}

func (f *FakeClient) UnprotectSnapshot(image, snap string) error {
	if err := f.fail("unprotect:" + image + "@" + snap); err != nil {
		return err
	}
	img, ok := f.Images[image]
	if !ok {
		return &NotFoundError{Resource: "image", Name: image}
	}
	for i := range img.Snapshots {
		if img.Snapshots[i].Name == snap {
			img.Snapshots[i].Protected = false
			f.log("unprotect %s@%s", image, snap)
			return nil
		}
	}
	return &NotFoundError{Resource: "snapshot", Name: image + "@" + snap}
}

func (f *FakeClient) RemoveSnapshot(image, snap string) error {
	if err := f.fail("remove-snapshot:" + image + "@" + snap); err != nil {
		return err
	}
	img, ok := f.Images[image]
	if !ok {
		return &NotFoundError{Resource: "image", Name: image}
	}
	for i := range img.Snapshots {
		if img.Snapshots[i].Name != snap {
			continue
		}
		if img.Snapshots[i].Protected {
			return fmt.Errorf("snapshot %s@%s is protected", image, snap)
		}
		img.Snapshots = append(img.Snapshots[:i], img.Snapshots[i+1:]...)
		f.log("remove-snapshot %s@%s", image, snap)
		return nil
	}
	return &NotFoundError{Resource: "snapshot", Name: image + "@" + snap}
}

func (f *FakeClient) Flatten(name string) error {
	if err := f.fail("flatten:" + name); err != nil {
		return err
	}
	img, ok := f.Images[name]
	if !ok {
		return &NotFoundError{Resource: "image", Name: name}
	}
	img.Parent = ""
	f.log("flatten %s", name)
	return nil
}

func (f *FakeClient) RemoveImage(name string) error {
	if err := f.fail("remove-image:" + name); err != nil {
		return err
	}
	if _, ok := f.Images[name]; !ok {
		return &NotFoundError{Resource: "image", Name: name}
	}
	// librbd refuses to remove an image that still has clones (active or
	// trashed) or internal snapshots.
	children, _ := f.ListChildren(name)
	if len(children) > 0 {
		return fmt.Errorf("image %s has %d clone(s)", name, len(children))
	}
	if len(f.Images[name].Snapshots) > 0 {
		return fmt.Errorf("image %s has snapshots", name)
	}
	delete(f.Images, name)
	f.log("remove-image %s", name)
	return nil
}

func (f *FakeClient) RestoreTrash(id, name string) error {
	if err := f.fail("restore:" + id); err != nil {
		return err
	}
	it, ok := f.Trash[id]
	if !ok {
		return &NotFoundError{Resource: "trash entry", Name: id}
	}
	it.Image.Name = name
	f.Images[name] = it.Image
	delete(f.Trash, id)
	f.log("restore %s as %s", id, name)
	return nil
}

func (f *FakeClient) PurgeTrash() error {
	if err := f.fail("purge"); err != nil {
		return err
	}
	now := time.Now()
	for id, it := range f.Trash {
		if it.Expires.After(now) {
			continue
		}
		// An entry still referenced by clones cannot be reclaimed.
		blocked := false
		for _, img := range f.Images {
			if img.Parent == it.Image.Name {
				blocked = true
			}
		}
		for _, other := range f.Trash {
			if other.ID != id && other.Image.Parent == it.Image.Name {
				blocked = true
			}
		}
		if blocked {
			continue
		}
		delete(f.Trash, id)
		f.log("purge %s (%s)", it.Image.Name, id)
	}
	return nil
}

func (f *FakeClient) Close() error {
	f.Closed++
	return nil
}

func (f *FakeClient) trashByName(name string) *FakeTrashItem {
	for _, it := range f.Trash {
		if it.Image.Name == name {
			return it
		}
	}
	return nil
}
