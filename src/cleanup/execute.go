package cleanup

import (
	"errors"
	"sort"
	"time"

	"github.com/juju/clock"
	"github.com/juju/retry"
	"github.com/sirupsen/logrus"

	"odf-cleanup/src/rbdapi"
)

// Options tune the executor's interaction with an eventually consistent
// backend. Zero values pick the defaults below; tests inject a clock and
// near-zero durations.
type Options struct {
	DryRun bool
	Clock  clock.Clock

	// SettleDelay is the pause after a disruptive call before the next
	// dependent one; the backend needs a moment to converge.
	SettleDelay time.Duration
	// PollInterval / FlattenTimeout bound the wait for a flatten to finish
	// (parent reference cleared). Timing out is not a failure: the backend
	// keeps flattening on its own.
	PollInterval   time.Duration
	FlattenTimeout time.Duration
}

// Defaults for the CLI flags; a zero SettleDelay in Options simply skips
// the pauses, which is what tests want.
const (
	DefaultSettleDelay    = 5 * time.Second
	DefaultPollInterval   = 5 * time.Second
	DefaultFlattenTimeout = 10 * time.Minute
)

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = clock.WallClock
	}
	if o.PollInterval == 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.FlattenTimeout == 0 {
		o.FlattenTimeout = DefaultFlattenTimeout
	}
	return o
}

// Executor drives every planned object through the removal state machine:
// restore from trash if needed, flatten away trash dependencies, clean up
// internal snapshots, delete. One object failing never stops the batch.
type Executor struct {
	client rbdapi.Client
	opts   Options
	log    logrus.FieldLogger

	failedRemove  map[string]*Object
	failedRestore map[string]*Object
	summary       *Summary
}

func NewExecutor(client rbdapi.Client, opts Options, log logrus.FieldLogger) *Executor {
	return &Executor{
		client: client,
		opts:   opts.withDefaults(),
		log:    log.WithField("component", "executor"),
	}
}

// Run executes the plan, then a purge-and-retry pass over whatever failed,
// then a final verification sweep for the tenant. Per-run state is reset on
// entry so an Executor can be reused.
func (e *Executor) Run(tenant string, plan *Plan) *Summary {
	e.failedRemove = map[string]*Object{}
	e.failedRestore = map[string]*Object{}
	e.summary = &Summary{Tenant: tenant, DryRun: e.opts.DryRun}

	e.runBatch(plan.Objects, plan.Deps)

	if len(e.failedRemove) > 0 && !e.opts.DryRun {
		e.retryAfterPurge(plan)
	}

	if len(e.failedRemove) == 0 && len(e.failedRestore) == 0 && !e.opts.DryRun {
		e.verify(tenant)
	}

	e.finalize()
	return e.summary
}

func (e *Executor) runBatch(objects []*Object, deps map[string][]string) {
	for _, obj := range objects {
		if obj.State == StateRemoved {
			continue
		}
		e.removeObject(obj, deps)
	}
}

// removeObject is the per-object state machine. A restore failure leaves the
// object in trash and moves on: dependents can still be rescued via the
// flatten fallback, so it is recorded but not counted against the batch.
func (e *Executor) removeObject(obj *Object, deps map[string][]string) {
	log := e.log.WithFields(logrus.Fields{"image": obj.Name, "kind": obj.Kind.String()})

	if obj.NeedsRestore {
		obj.State = StateRestoring
		log.Info("restoring from trash")
		if err := e.client.RestoreTrash(obj.TrashID, obj.Name); err != nil {
			log.WithError(err).Warn("restore failed, leaving in trash")
			e.failedRestore[obj.Name] = obj
			return
		}
		obj.NeedsRestore = false
		e.settle()
	}

	if obj.NeedsFlatten || e.fallbackFlatten(obj, deps) {
		obj.State = StateFlattening
		if failed := e.flatten(obj, log); failed {
			return
		}
	}

	obj.State = StateRemovingSnapshots
	if failed := e.removeSnapshots(obj, log); failed {
		return
	}

	obj.State = StateRemovingSelf
	if failed := e.removeSelf(obj, log); failed {
		return
	}

	obj.State = StateRemoved
	e.countRemoved(obj)
	log.Info("removed")
	e.settle()
}

// fallbackFlatten reports whether one of the object's trash dependencies
// failed to restore; the object must then sever its parent reference to be
// removable at all.
func (e *Executor) fallbackFlatten(obj *Object, deps map[string][]string) bool {
	for _, target := range deps[obj.Name] {
		if _, ok := e.failedRestore[target]; ok {
			return true
		}
	}
	return false
}

func (e *Executor) flatten(obj *Object, log logrus.FieldLogger) (failed bool) {
	info, err := e.client.ImageInfo(obj.Name)
	if err == nil && info.Parent == "" {
		// Nothing left to sever (already flattened on an earlier pass).
		return false
	}
	log.Info("flattening")
	if err := e.client.Flatten(obj.Name); err != nil {
		e.failObject(obj, log, "flatten", err)
		return true
	}
	e.awaitFlatten(obj.Name, log)
	e.settle()
	return false
}

var errStillFlattening = errors.New("parent reference still present")

// awaitFlatten polls until the parent reference is gone or the wait budget
// runs out. Flatten is asynchronous on the backend side, so a timeout only
// logs; the removal continues and re-validates later anyway.
func (e *Executor) awaitFlatten(name string, log logrus.FieldLogger) {
	if e.opts.DryRun {
		return
	}
	err := retry.Call(retry.CallArgs{
		Clock:       e.opts.Clock,
		Delay:       e.opts.PollInterval,
		MaxDuration: e.opts.FlattenTimeout,
		Attempts:    retry.UnlimitedAttempts,
		Func: func() error {
			info, err := e.client.ImageInfo(name)
			if err != nil {
				return err
			}
			if info.Parent != "" {
				return errStillFlattening
			}
			return nil
		},
		IsFatalError: func(err error) bool { return !errors.Is(err, errStillFlattening) },
	})
	if err != nil {
		log.WithError(err).Warn("flatten not confirmed within wait budget, proceeding")
	}
}

// removeSnapshots unprotects and removes every internal snapshot. Any single
// snapshot failing fails the whole object; a half-cleaned snapshot set must
// not be reported as success.
func (e *Executor) removeSnapshots(obj *Object, log logrus.FieldLogger) (failed bool) {
	snaps := obj.Snapshots
	if live, err := e.client.ListSnapshots(obj.Name); err == nil {
		snaps = live
	} else if !e.opts.DryRun {
		e.failObject(obj, log, "list snapshots", err)
		return true
	}

	for _, snap := range snaps {
		slog := log.WithField("snapshot", snap.Name)
		if snap.Protected {
			if err := e.client.UnprotectSnapshot(obj.Name, snap.Name); err != nil {
				e.failObject(obj, slog, "unprotect snapshot", err)
				return true
			}
		}
		if err := e.client.RemoveSnapshot(obj.Name, snap.Name); err != nil {
			e.failObject(obj, slog, "remove snapshot", err)
			return true
		}
		slog.Info("snapshot removed")
		e.summary.InternalSnapshotsRemoved++
	}
	if len(snaps) > 0 {
		e.settle()
	}
	return false
}

// removeSelf re-checks for active descendants right before deleting: the
// backend may have grown a clone since planning, and deleting under a live
// descendant is the one thing the backend will never forgive.
func (e *Executor) removeSelf(obj *Object, log logrus.FieldLogger) (failed bool) {
	// The re-check only makes sense against live state; in dry-run the
	// children planned for removal are all still present.
	if !e.opts.DryRun {
		children, err := e.client.ListChildren(obj.Name)
		if err == nil {
			for _, child := range children {
				if !child.InTrash {
					e.failObject(obj, log, "descendant check",
						errors.New("active descendant exists: "+child.Name))
					return true
				}
			}
		} else {
			log.WithError(err).Debug("descendant re-check unavailable")
		}

		// Best-effort: severing a leftover parent link here costs nothing
		// and unblocks some deletions. Failure is ignored.
		if info, err := e.client.ImageInfo(obj.Name); err == nil && info.Parent != "" {
			_ = e.client.Flatten(obj.Name)
		}
	}

	log.Info("deleting image")
	if err := e.client.RemoveImage(obj.Name); err != nil {
		e.failObject(obj, log, "delete", err)
		return true
	}
	return false
}

// retryAfterPurge is the batch-level fallback: purge expired trash (often
// what blocked the first pass), drop failed objects the purge incidentally
// cleared, and push the rest through the machine exactly once more.
func (e *Executor) retryAfterPurge(plan *Plan) {
	e.log.WithField("failed", len(e.failedRemove)).Info("retrying failed removals after trash purge")
	if err := e.client.PurgeTrash(); err != nil {
		e.log.WithError(err).Warn("trash purge failed")
	}

	var retryList []*Object
	for _, obj := range plan.Objects {
		if _, ok := e.failedRemove[obj.Name]; !ok {
			continue
		}
		exists, err := e.objectStillExists(obj)
		if err != nil {
			e.log.WithError(err).WithField("image", obj.Name).Warn("existence re-check failed")
			exists = true
		}
		delete(e.failedRemove, obj.Name)
		if !exists {
			obj.State = StateRemoved
			e.countRemoved(obj)
			e.log.WithField("image", obj.Name).Info("cleared by purge")
			continue
		}
		obj.State = StatePending
		retryList = append(retryList, obj)
	}
	e.runBatch(retryList, plan.Deps)
}

// objectStillExists checks the object's expected namespace: trash for
// never-restored trash objects, the active pool otherwise.
func (e *Executor) objectStillExists(obj *Object) (bool, error) {
	if obj.InTrash() && obj.NeedsRestore {
		return e.client.TrashExists(obj.TrashID)
	}
	return e.client.ImageExists(obj.Name)
}

// verify re-discovers the tenant once after a clean run. Anything that shows
// up (a discovery gap, or created behind our back mid-run) gets one
// best-effort removal batch.
func (e *Executor) verify(tenant string) {
	res := Discover(e.client, tenant, e.log)
	if len(res.Objects) == 0 {
		e.log.Debug("final verification clean")
		return
	}
	e.log.WithField("objects", len(res.Objects)).
		Warn("final verification found leftover objects, running one more batch")
	plan := BuildPlan(BuildForest(res.Objects), res.Deps)
	e.runBatch(plan.Objects, plan.Deps)
}

// finalize folds the failure sets into the summary. A failed restoration
// whose trash entry is gone by now (purged, or restored out of band) is no
// longer a leftover dependency and does not poison the verdict.
func (e *Executor) finalize() {
	for name := range e.failedRemove {
		e.summary.FailedRemovals = append(e.summary.FailedRemovals, name)
	}
	for name, obj := range e.failedRestore {
		e.summary.FailedRestorations = append(e.summary.FailedRestorations, name)
		still, err := e.client.TrashExists(obj.TrashID)
		if err != nil || still {
			e.summary.UnresolvedTrash = append(e.summary.UnresolvedTrash, name)
		}
	}
	sort.Strings(e.summary.FailedRemovals)
	sort.Strings(e.summary.FailedRestorations)
	sort.Strings(e.summary.UnresolvedTrash)
}

func (e *Executor) failObject(obj *Object, log logrus.FieldLogger, phase string, err error) {
	log.WithError(err).Errorf("%s failed", phase)
	obj.State = StateFailed
	e.failedRemove[obj.Name] = obj
}

func (e *Executor) countRemoved(obj *Object) {
	switch obj.Kind {
	case KindVolume:
		e.summary.VolumesRemoved++
	case KindCloneSnapshot:
		e.summary.CloneSnapshotsRemoved++
	case KindTrashVolume, KindTrashCloneSnapshot:
		e.summary.TrashRemoved++
	}
}

func (e *Executor) settle() {
	if e.opts.DryRun || e.opts.SettleDelay <= 0 {
		return
	}
	<-e.opts.Clock.After(e.opts.SettleDelay)
}
