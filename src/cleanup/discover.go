package cleanup

import (
	"strings"

	"github.com/sirupsen/logrus"

	"odf-cleanup/src/rbdapi"
)

// DiscoverResult is the discovered object set plus the trash dependency map:
// for each active object name, the names of trashed images its removal is
// entangled with (its trashed parent, or trashed clones hanging off it).
type DiscoverResult struct {
	Objects []*Object
	Deps    map[string][]string
}

// Discover queries the backend for everything belonging to a tenant:
//
//  1. active volumes and trashed volumes whose name contains the tenant id,
//  2. clone snapshots cluster-wide whose parent name contains the tenant id,
//  3. active descendants of any of the above, expanded to a fixed point;
//     descendants already in trash become dependency edges instead of nodes,
//  4. trashed clone snapshots that are the target of a dependency edge.
//
// Sub-query failures are logged and contribute nothing; discovery never
// aborts. Trash entries nothing active depends on are left alone.
func Discover(client rbdapi.Client, tenant string, log logrus.FieldLogger) *DiscoverResult {
	d := &discovery{
		client: client,
		log:    log.WithField("component", "discovery"),
		result: &DiscoverResult{Deps: map[string][]string{}},
		seen:   map[string]bool{},
	}
	d.run(tenant)
	return d.result
}

type discovery struct {
	client rbdapi.Client
	log    logrus.FieldLogger
	result *DiscoverResult

	seen        map[string]bool // names already included as nodes
	trashByName map[string]rbdapi.TrashEntry
	depTargets  []string // edge targets in insertion order
}

func (d *discovery) run(tenant string) {
	images, err := d.client.ListImages()
	if err != nil {
		d.log.WithError(err).Warn("listing active images failed, continuing without them")
	}
	trash, err := d.client.ListTrash()
	if err != nil {
		d.log.WithError(err).Warn("listing trash failed, continuing without it")
	}
	d.trashByName = make(map[string]rbdapi.TrashEntry, len(trash))
	for _, t := range trash {
		d.trashByName[t.Name] = t
	}

	var scanQueue []string

	// Active volumes named after the tenant.
	for _, name := range images {
		if !strings.Contains(name, tenant) || IsCloneSnapshotName(name) {
			continue
		}
		d.addActive(name, KindVolume)
		scanQueue = append(scanQueue, name)
	}

	// Trashed volumes named after the tenant. They cannot be opened while
	// in trash, so metadata stays unknown until the executor restores them.
	for _, t := range trash {
		if !strings.Contains(t.Name, tenant) || IsCloneSnapshotName(t.Name) || d.seen[t.Name] {
			continue
		}
		d.add(&Object{
			Name:      t.Name,
			Kind:      KindTrashVolume,
			SizeBytes: rbdapi.SizeUnknown,
			TrashID:   t.ID,
		})
	}

	// Clone snapshots don't carry the tenant id in their own name; walk all
	// of them and match on the parent.
	for _, name := range images {
		if !IsCloneSnapshotName(name) || d.seen[name] {
			continue
		}
		info, err := d.client.ImageInfo(name)
		if err != nil || info.Parent == "" {
			// Typically a parentless snapshot; nothing ties it to a tenant.
			continue
		}
		if !strings.Contains(info.Parent, tenant) {
			continue
		}
		d.addActive(name, KindCloneSnapshot)
		scanQueue = append(scanQueue, name)
	}

	d.expandDescendants(scanQueue)
	d.includeTrashedCloneSnapshots()

	d.log.WithFields(logrus.Fields{
		"objects": len(d.result.Objects),
		"edges":   len(d.result.Deps),
	}).Debug("discovery complete")
}

// expandDescendants walks clone children of the working set until no new
// active descendant turns up. Trashed descendants are recorded as dependency
// edges only. The scanned set bounds the walk; lineages are acyclic but a
// name can be reachable twice.
func (d *discovery) expandDescendants(queue []string) {
	scanned := map[string]bool{}
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if scanned[name] {
			continue
		}
		scanned[name] = true

		children, err := d.client.ListChildren(name)
		if err != nil {
			d.log.WithError(err).WithField("image", name).Warn("listing descendants failed")
			continue
		}
		for _, child := range children {
			if child.InTrash {
				d.addDep(name, child.Name)
				continue
			}
			if d.seen[child.Name] {
				continue
			}
			kind := KindVolume
			if IsCloneSnapshotName(child.Name) {
				kind = KindCloneSnapshot
			}
			d.addActive(child.Name, kind)
			queue = append(queue, child.Name)
		}
	}
}

// includeTrashedCloneSnapshots pulls in trashed clone snapshots that some
// active object depends on. Trash entries with no active dependents stay out.
func (d *discovery) includeTrashedCloneSnapshots() {
	for _, target := range d.depTargets {
		if d.seen[target] || !IsCloneSnapshotName(target) {
			continue
		}
		t, ok := d.trashByName[target]
		if !ok {
			continue
		}
		d.add(&Object{
			Name:      t.Name,
			Kind:      KindTrashCloneSnapshot,
			SizeBytes: rbdapi.SizeUnknown,
			TrashID:   t.ID,
		})
	}
}

// addActive builds a node for an active image, degrading missing metadata to
// "unknown" rather than dropping the object. A parent sitting in trash is
// recorded as a dependency edge right away.
func (d *discovery) addActive(name string, kind Kind) {
	obj := &Object{Name: name, Kind: kind, SizeBytes: rbdapi.SizeUnknown}

	info, err := d.client.ImageInfo(name)
	if err != nil {
		d.log.WithError(err).WithField("image", name).Warn("metadata unavailable")
	} else {
		obj.SizeBytes = info.SizeBytes
		obj.CreatedAt = info.CreatedAt
		obj.ParentRef = info.Parent
		if info.Parent != "" {
			_, parentTrashed := d.trashByName[info.Parent]
			if info.ParentInTrash || parentTrashed {
				d.addDep(name, info.Parent)
			}
		}
	}

	snaps, err := d.client.ListSnapshots(name)
	if err != nil {
		d.log.WithError(err).WithField("image", name).Warn("snapshot listing unavailable")
	} else {
		obj.Snapshots = snaps
	}

	d.add(obj)
}

func (d *discovery) add(obj *Object) {
	d.result.Objects = append(d.result.Objects, obj)
	d.seen[obj.Name] = true
}

func (d *discovery) addDep(source, target string) {
	for _, t := range d.result.Deps[source] {
		if t == target {
			return
		}
	}
	d.result.Deps[source] = append(d.result.Deps[source], target)
	d.depTargets = append(d.depTargets, target)
	d.log.WithFields(logrus.Fields{"source": source, "target": target}).
		Debug("recorded trash dependency")
}
