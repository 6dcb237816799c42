// Package syncer reconciles the local store with the remote mirror.
//
// The policy is last-write-wins by record timestamp: remote wins ties and
// staleness, strictly newer local edits survive and are flagged for push.
// Reads are local-first and never block on a failing remote.
package syncer

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"studioregister/internal/logger"
	"studioregister/internal/model"
	"studioregister/internal/queue"
	"studioregister/internal/store"
)

// Service owns the merge/push/pull cycle for all collections. Constructed once
// at startup and passed to whatever needs it; remote and q may be nil, which
// disables sync and triggers respectively.
//
// mu serializes every load-modify-save cycle on the local store. Collections
// persist as whole JSON blobs, so two writers that both load version N would
// otherwise each write back their own copy and the later one would erase the
// earlier. Plain reads do not take it.
type Service struct {
	local    *store.Local
	remote   *store.Remote
	q        queue.Queue
	log      *logger.Logger
	mu       sync.Mutex
	inFlight atomic.Bool
}

// New wires a sync service. remote == nil runs local-only.
func New(local *store.Local, remote *store.Remote, q queue.Queue, log *logger.Logger) *Service {
	return &Service{local: local, remote: remote, q: q, log: log}
}

// Remote reports whether a remote mirror is configured.
func (s *Service) Remote() bool { return s.remote != nil }

// RemoteHealthy probes the remote mirror.
func (s *Service) RemoteHealthy(ctx context.Context) bool {
	return s.remote != nil && s.remote.Healthy(ctx)
}

// LocalHealthy probes the local store.
func (s *Service) LocalHealthy() bool { return s.local.Healthy() }

// Merge reconciles a local and a remote collection of one entity type.
// Remote records seed the result marked synced; a local record only replaces
// its remote counterpart when strictly newer, and then needs pushing. The
// result is ordered by id so merging is deterministic and idempotent.
func Merge[T model.Syncable[T]](local, remote []T) []T {
	merged := make(map[string]T, len(remote)+len(local))
	for _, r := range remote {
		merged[r.RecordID()] = r.WithSynced(true)
	}
	for _, l := range local {
		cur, ok := merged[l.RecordID()]
		if !ok || l.ModifiedAt().After(cur.ModifiedAt()) {
			merged[l.RecordID()] = l.WithSynced(false)
		}
	}
	out := make([]T, 0, len(merged))
	for _, r := range merged {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordID() < out[j].RecordID() })
	return out
}

// getCollection implements the local-first read contract: local data comes
// back immediately when there is no remote; otherwise pull, merge, persist the
// merge, and return it. Remote errors degrade to local-only, logged.
func getCollection[T model.Syncable[T]](ctx context.Context, s *Service, key string, pull func(context.Context) ([]T, error)) []T {
	if s.remote == nil {
		return store.LoadCollection[T](s.local, key)
	}
	remote, err := pull(ctx)
	if err != nil {
		pullErrors.WithLabelValues(key).Inc()
		s.log.Warnf("remote pull %s failed, serving local: %v", key, err)
		return store.LoadCollection[T](s.local, key)
	}

	// Load, merge and persist under the lock so a save landing mid-merge is
	// not overwritten by a merge of the previous version.
	s.mu.Lock()
	defer s.mu.Unlock()
	local := store.LoadCollection[T](s.local, key)
	merged := Merge(local, remote)
	if err := store.SaveCollection(s.local, key, merged); err != nil {
		s.log.Errorf("persist merged %s: %v", key, err)
	}
	return merged
}

// pushCollection upserts every unsynced record, then marks them synced
// locally. A failed push leaves the flags untouched for the next cycle.
func pushCollection[T model.Syncable[T]](ctx context.Context, s *Service, key string, push func(context.Context, []T) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return pushLocked(ctx, s, key, push)
}

// pushLocked is pushCollection with s.mu already held: the load, the remote
// upsert and the synced-flag write must see no interleaved local save, or the
// flag write would revert it.
func pushLocked[T model.Syncable[T]](ctx context.Context, s *Service, key string, push func(context.Context, []T) error) error {
	if s.remote == nil {
		return nil
	}
	records := store.LoadCollection[T](s.local, key)
	var pending []T
	for _, r := range records {
		if r.PendingPush() {
			pending = append(pending, r)
		}
	}
	if len(pending) == 0 {
		return nil
	}
	if err := push(ctx, pending); err != nil {
		pushErrors.WithLabelValues(key).Inc()
		s.log.Warnf("push %s (%d records) failed, will retry: %v", key, len(pending), err)
		return err
	}
	for i, r := range records {
		if r.PendingPush() {
			records[i] = r.WithSynced(true)
		}
	}
	pushedRecords.WithLabelValues(key).Add(float64(len(pending)))
	return store.SaveCollection(s.local, key, records)
}

// GetClasses returns the class collection, local-first, best-effort synced.
func (s *Service) GetClasses(ctx context.Context) []model.DanceClass {
	return getCollection(ctx, s, store.KeyClasses, func(ctx context.Context) ([]model.DanceClass, error) {
		return s.remote.SelectClasses(ctx)
	})
}

// GetStudents returns the student collection.
func (s *Service) GetStudents(ctx context.Context) []model.Student {
	return getCollection(ctx, s, store.KeyStudents, func(ctx context.Context) ([]model.Student, error) {
		return s.remote.SelectStudents(ctx)
	})
}

// GetSessions returns the register-session collection.
func (s *Service) GetSessions(ctx context.Context) []model.RegisterSession {
	return getCollection(ctx, s, store.KeySessions, func(ctx context.Context) ([]model.RegisterSession, error) {
		return s.remote.SelectSessions(ctx)
	})
}

// GetPoints returns the point-event ledger.
func (s *Service) GetPoints(ctx context.Context) []model.PointEvent {
	return getCollection(ctx, s, store.KeyPoints, func(ctx context.Context) ([]model.PointEvent, error) {
		return s.remote.SelectPoints(ctx)
	})
}

// GetAwards returns the award-unlock collection.
func (s *Service) GetAwards(ctx context.Context) []model.AwardUnlock {
	return getCollection(ctx, s, store.KeyAwards, func(ctx context.Context) ([]model.AwardUnlock, error) {
		return s.remote.SelectAwards(ctx)
	})
}

// save persists locally (the write that must not fail silently), then makes a
// best-effort push and queues a sync trigger. Push errors never propagate:
// offline saves succeed and retry later.
func save[T model.Syncable[T]](ctx context.Context, s *Service, key string, records []T, push func(context.Context, []T) error) error {
	s.mu.Lock()
	if err := store.SaveCollection(s.local, key, records); err != nil {
		s.mu.Unlock()
		return err
	}
	_ = pushLocked(ctx, s, key, push)
	s.mu.Unlock()
	s.trigger(ctx)
	return nil
}

// SaveClasses persists classes locally and opportunistically pushes.
func (s *Service) SaveClasses(ctx context.Context, records []model.DanceClass) error {
	return save(ctx, s, store.KeyClasses, records, func(ctx context.Context, pending []model.DanceClass) error {
		return s.remote.UpsertClasses(ctx, pending)
	})
}

// SaveStudents persists students locally and opportunistically pushes.
func (s *Service) SaveStudents(ctx context.Context, records []model.Student) error {
	return save(ctx, s, store.KeyStudents, records, func(ctx context.Context, pending []model.Student) error {
		return s.remote.UpsertStudents(ctx, pending)
	})
}

// SaveSessions persists register sessions locally and opportunistically pushes.
func (s *Service) SaveSessions(ctx context.Context, records []model.RegisterSession) error {
	return save(ctx, s, store.KeySessions, records, func(ctx context.Context, pending []model.RegisterSession) error {
		return s.remote.UpsertSessions(ctx, pending)
	})
}

// SavePoints persists point events locally and opportunistically pushes.
func (s *Service) SavePoints(ctx context.Context, records []model.PointEvent) error {
	return save(ctx, s, store.KeyPoints, records, func(ctx context.Context, pending []model.PointEvent) error {
		return s.remote.UpsertPoints(ctx, pending)
	})
}

// SaveAwards persists award unlocks locally and opportunistically pushes.
func (s *Service) SaveAwards(ctx context.Context, records []model.AwardUnlock) error {
	return save(ctx, s, store.KeyAwards, records, func(ctx context.Context, pending []model.AwardUnlock) error {
		return s.remote.UpsertAwards(ctx, pending)
	})
}

// trigger queues a sync pass for the worker; losing a trigger is harmless
// because the next save or interval tick retries.
func (s *Service) trigger(ctx context.Context) {
	if s.q == nil {
		return
	}
	if err := s.q.Publish(ctx, queue.Message{Type: queue.TypeSync}); err != nil {
		s.log.Debugf("sync trigger publish failed: %v", err)
	}
}

// SyncAll runs one full pull-merge-push pass over every collection. A pass
// already in flight makes this a silent no-op; there is no backoff, the next
// trigger simply tries again.
func (s *Service) SyncAll(ctx context.Context) {
	if s.remote == nil {
		return
	}
	if !s.inFlight.CompareAndSwap(false, true) {
		syncRuns.WithLabelValues("skipped").Inc()
		return
	}
	defer s.inFlight.Store(false)

	s.GetClasses(ctx)
	s.GetStudents(ctx)
	s.GetSessions(ctx)
	s.GetPoints(ctx)
	s.GetAwards(ctx)

	_ = pushCollection(ctx, s, store.KeyClasses, func(ctx context.Context, p []model.DanceClass) error {
		return s.remote.UpsertClasses(ctx, p)
	})
	_ = pushCollection(ctx, s, store.KeyStudents, func(ctx context.Context, p []model.Student) error {
		return s.remote.UpsertStudents(ctx, p)
	})
	_ = pushCollection(ctx, s, store.KeySessions, func(ctx context.Context, p []model.RegisterSession) error {
		return s.remote.UpsertSessions(ctx, p)
	})
	_ = pushCollection(ctx, s, store.KeyPoints, func(ctx context.Context, p []model.PointEvent) error {
		return s.remote.UpsertPoints(ctx, p)
	})
	_ = pushCollection(ctx, s, store.KeyAwards, func(ctx context.Context, p []model.AwardUnlock) error {
		return s.remote.UpsertAwards(ctx, p)
	})
	syncRuns.WithLabelValues("completed").Inc()
}
