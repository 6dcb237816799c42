package model

import "time"

// Mark is a student's recorded attendance status for one register session.
type Mark string

const (
	MarkPresent Mark = "PRESENT"
	MarkLate    Mark = "LATE"
	MarkAbsent  Mark = "ABSENT"
	MarkExcused Mark = "EXCUSED"
)

// Attended reports whether the mark counts toward attendance.
func (m Mark) Attended() bool { return m == MarkPresent || m == MarkLate }

// Valid reports whether m is one of the four known marks.
func (m Mark) Valid() bool {
	switch m {
	case MarkPresent, MarkLate, MarkAbsent, MarkExcused:
		return true
	}
	return false
}

// Lifecycle is the soft-delete state of a record. Records are never hard-removed
// so that deletions propagate through the timestamp merge like any other edit.
type Lifecycle string

const (
	LifecycleActive  Lifecycle = "active"
	LifecycleDeleted Lifecycle = "deleted"
)

// SyncMeta carries the per-record bookkeeping shared by every synced entity.
// Synced is local-only: it marks whether the remote mirror has this version.
type SyncMeta struct {
	Synced    bool      `json:"synced"`
	UpdatedAt time.Time `json:"updatedAt"`
	State     Lifecycle `json:"state,omitempty"`
}

// Deleted reports whether the record is soft-deleted.
func (m SyncMeta) Deleted() bool { return m.State == LifecycleDeleted }

// ModifiedAt returns the last-write timestamp used for merge conflict resolution.
func (m SyncMeta) ModifiedAt() time.Time { return m.UpdatedAt }

// PendingPush reports whether the remote mirror is missing this version.
func (m SyncMeta) PendingPush() bool { return !m.Synced }

// Touch stamps a local edit: newer timestamp, pending push.
func (m *SyncMeta) Touch(now time.Time) {
	m.UpdatedAt = now.UTC()
	m.Synced = false
}

// Delete soft-deletes the record as a local edit.
func (m *SyncMeta) Delete(now time.Time) {
	m.State = LifecycleDeleted
	m.Touch(now)
}

// Syncable is implemented by every entity the reconciler can merge.
// WithSynced returns a copy with the synced flag set, keeping merge value-based.
type Syncable[T any] interface {
	RecordID() string
	ModifiedAt() time.Time
	Deleted() bool
	PendingPush() bool
	WithSynced(synced bool) T
}

// DanceClass is a class a teacher runs registers for.
type DanceClass struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
	SyncMeta
}

func (c DanceClass) RecordID() string { return c.ID }

func (c DanceClass) WithSynced(synced bool) DanceClass {
	c.Synced = synced
	return c
}

// Student is an enrolled student. JoinedAt bounds which sessions count toward
// their attendance; Archived removes them from active rosters without touching
// history.
type Student struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	ClassID  string    `json:"classId"`
	JoinedAt time.Time `json:"joinedAt"`
	Archived bool      `json:"archived"`
	SyncMeta
}

func (s Student) RecordID() string { return s.ID }

func (s Student) WithSynced(synced bool) Student {
	s.Synced = synced
	return s
}

// RegisterSession is one attendance-taking event for a class. A nil ClosedAt
// means the register is still open; at most one open session per class is the
// convention, enforced at the service layer rather than in the data.
type RegisterSession struct {
	ID        string          `json:"id"`
	ClassID   string          `json:"classId"`
	StartedAt time.Time       `json:"startedAt"`
	ClosedAt  *time.Time      `json:"closedAt,omitempty"`
	Marks     map[string]Mark `json:"marks"`
	SyncMeta
}

func (s RegisterSession) RecordID() string { return s.ID }

func (s RegisterSession) WithSynced(synced bool) RegisterSession {
	s.Synced = synced
	return s
}

// Open reports whether the register is still being taken.
func (s RegisterSession) Open() bool { return s.ClosedAt == nil }

// MarkFor returns the student's mark and whether one was recorded.
func (s RegisterSession) MarkFor(studentID string) (Mark, bool) {
	m, ok := s.Marks[studentID]
	return m, ok
}

// PointEvent is one entry in the append-only points ledger. Events are never
// edited after creation, only soft-deleted. SessionID is the dedupe key for
// recurring automatic grants tied to a register.
type PointEvent struct {
	ID        string    `json:"id"`
	StudentID string    `json:"studentId"`
	ClassID   string    `json:"classId"`
	Reason    string    `json:"reason"`
	Points    int       `json:"points"`
	CreatedAt time.Time `json:"createdAt"`
	SessionID string    `json:"sessionId,omitempty"`
	SyncMeta
}

func (p PointEvent) RecordID() string { return p.ID }

func (p PointEvent) WithSynced(synced bool) PointEvent {
	p.Synced = synced
	return p
}

// AwardID identifies one of the award kinds.
type AwardID string

const (
	AwardStudentOfMonth AwardID = "student_of_month"
	AwardMostImproved   AwardID = "most_improved_year"
	AwardStudentOfYear  AwardID = "student_of_year"
)

// Decider records who made the award decision.
type Decider string

const (
	DecidedBySystem  Decider = "SYSTEM"
	DecidedByTeacher Decider = "TEACHER"
)

// AwardUnlock records a granted award. (AwardID, StudentID, Period.Key) is
// unique: the same award is never granted twice for one period.
type AwardUnlock struct {
	ID         string    `json:"id"`
	AwardID    AwardID   `json:"awardId"`
	StudentID  string    `json:"studentId"`
	ClassID    string    `json:"classId"`
	Period     Period    `json:"period"`
	UnlockedAt time.Time `json:"unlockedAt"`
	DecidedBy  Decider   `json:"decidedBy"`
	SyncMeta
}

func (a AwardUnlock) RecordID() string { return a.ID }

func (a AwardUnlock) WithSynced(synced bool) AwardUnlock {
	a.Synced = synced
	return a
}

// Live filters out soft-deleted records.
func Live[T Syncable[T]](in []T) []T {
	out := make([]T, 0, len(in))
	for _, r := range in {
		if !r.Deleted() {
			out = append(out, r)
		}
	}
	return out
}
