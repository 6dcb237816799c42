// Package register is the domain service behind the API: class and roster
// management, register sessions, point grants, and the close-time award run.
package register

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"studioregister/internal/attendance"
	"studioregister/internal/awards"
	"studioregister/internal/logger"
	"studioregister/internal/model"
	"studioregister/internal/notify"
	"studioregister/internal/points"
	"studioregister/internal/queue"
	"studioregister/internal/syncer"
)

// OnTimeReason labels the automatic bonus granted at register close.
const OnTimeReason = "On Time"

var (
	ErrNameRequired      = errors.New("name is required")
	ErrDuplicateName     = errors.New("a class with this name already exists")
	ErrUnknownClass      = errors.New("class not found")
	ErrUnknownStudent    = errors.New("student not found")
	ErrUnknownSession    = errors.New("session not found")
	ErrRegisterOpen      = errors.New("class already has an open register")
	ErrRegisterClosed    = errors.New("register is already closed")
	ErrInvalidMark       = errors.New("invalid mark")
	ErrStudentNotInClass = errors.New("student is not in this class")
)

// Service validates and applies domain actions on top of the sync layer.
// All validation happens before any persistence, so failed requests leave no
// partial writes.
//
// Every mutation reads a collection, appends or edits, and writes it back, so
// mu is held for that whole cycle. Read-only operations work on a snapshot and
// take no lock.
type Service struct {
	sync         *syncer.Service
	notifier     *notify.Client
	q            queue.Queue
	log          *logger.Logger
	onTimePoints int
	mu           sync.Mutex
	now          func() time.Time
}

// New wires the domain service. notifier and q may be nil.
func New(sync *syncer.Service, notifier *notify.Client, q queue.Queue, log *logger.Logger, onTimePoints int) *Service {
	return &Service{
		sync:         sync,
		notifier:     notifier,
		q:            q,
		log:          log,
		onTimePoints: onTimePoints,
		now:          time.Now,
	}
}

// CreateClass adds a class after checking the name is present and unused
// among live classes.
func (s *Service) CreateClass(ctx context.Context, name, color string) (model.DanceClass, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.DanceClass{}, ErrNameRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	classes := s.sync.GetClasses(ctx)
	for _, c := range model.Live(classes) {
		if strings.EqualFold(c.Name, name) {
			return model.DanceClass{}, ErrDuplicateName
		}
	}
	cls := model.DanceClass{ID: uuid.NewString(), Name: name, Color: color}
	cls.State = model.LifecycleActive
	cls.Touch(s.now())
	return cls, s.sync.SaveClasses(ctx, append(classes, cls))
}

// DeleteClass soft-deletes a class; history stays for sync convergence.
func (s *Service) DeleteClass(ctx context.Context, classID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	classes := s.sync.GetClasses(ctx)
	for i, c := range classes {
		if c.ID == classID && !c.Deleted() {
			classes[i].Delete(s.now())
			return s.sync.SaveClasses(ctx, classes)
		}
	}
	return ErrUnknownClass
}

// CreateStudent enrolls a student into an existing class. joinedAt bounds
// which sessions will ever count toward their attendance.
func (s *Service) CreateStudent(ctx context.Context, name, classID string, joinedAt time.Time) (model.Student, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Student{}, ErrNameRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.classExists(ctx, classID) {
		return model.Student{}, ErrUnknownClass
	}
	if joinedAt.IsZero() {
		joinedAt = s.now()
	}
	students := s.sync.GetStudents(ctx)
	st := model.Student{ID: uuid.NewString(), Name: name, ClassID: classID, JoinedAt: joinedAt.UTC()}
	st.State = model.LifecycleActive
	st.Touch(s.now())
	return st, s.sync.SaveStudents(ctx, append(students, st))
}

// ArchiveStudent removes a student from active rosters without deleting them.
func (s *Service) ArchiveStudent(ctx context.Context, studentID string, archived bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	students := s.sync.GetStudents(ctx)
	for i, st := range students {
		if st.ID == studentID && !st.Deleted() {
			students[i].Archived = archived
			students[i].Touch(s.now())
			return s.sync.SaveStudents(ctx, students)
		}
	}
	return ErrUnknownStudent
}

// OpenRegister starts a new attendance-taking session for a class. One open
// register per class is the rule; the data model doesn't enforce it, this
// service does.
func (s *Service) OpenRegister(ctx context.Context, classID string) (model.RegisterSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.classExists(ctx, classID) {
		return model.RegisterSession{}, ErrUnknownClass
	}
	sessions := s.sync.GetSessions(ctx)
	for _, sess := range model.Live(sessions) {
		if sess.ClassID == classID && sess.Open() {
			return model.RegisterSession{}, ErrRegisterOpen
		}
	}
	sess := model.RegisterSession{
		ID:        uuid.NewString(),
		ClassID:   classID,
		StartedAt: s.now().UTC(),
		Marks:     map[string]model.Mark{},
	}
	sess.State = model.LifecycleActive
	sess.Touch(s.now())
	return sess, s.sync.SaveSessions(ctx, append(sessions, sess))
}

// SetMark records a student's mark on an open register.
func (s *Service) SetMark(ctx context.Context, sessionID, studentID string, mark model.Mark) (model.RegisterSession, error) {
	if !mark.Valid() {
		return model.RegisterSession{}, ErrInvalidMark
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sessions := s.sync.GetSessions(ctx)
	idx := -1
	for i, sess := range sessions {
		if sess.ID == sessionID && !sess.Deleted() {
			idx = i
			break
		}
	}
	if idx < 0 {
		return model.RegisterSession{}, ErrUnknownSession
	}
	sess := sessions[idx]
	if !sess.Open() {
		return model.RegisterSession{}, ErrRegisterClosed
	}
	st, ok := s.findStudent(ctx, studentID)
	if !ok {
		return model.RegisterSession{}, ErrUnknownStudent
	}
	if st.ClassID != sess.ClassID {
		return model.RegisterSession{}, ErrStudentNotInClass
	}
	if sess.Marks == nil {
		sess.Marks = map[string]model.Mark{}
	}
	sess.Marks[studentID] = mark
	sess.Touch(s.now())
	sessions[idx] = sess
	return sess, s.sync.SaveSessions(ctx, sessions)
}

// CloseResult is what a register close produced.
type CloseResult struct {
	Session  model.RegisterSession `json:"session"`
	Granted  []model.PointEvent    `json:"granted"`
	Unlocked []model.AwardUnlock   `json:"unlocked"`
}

// CloseRegister closes an open session, grants the On Time bonus to every
// PRESENT student (deduped per session), and runs the automatic award
// evaluation for the class. Newly unlocked awards are persisted and pushed to
// the webhook best-effort.
func (s *Service) CloseRegister(ctx context.Context, sessionID string) (CloseResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sessions := s.sync.GetSessions(ctx)
	idx := -1
	for i, sess := range sessions {
		if sess.ID == sessionID && !sess.Deleted() {
			idx = i
			break
		}
	}
	if idx < 0 {
		return CloseResult{}, ErrUnknownSession
	}
	sess := sessions[idx]
	if !sess.Open() {
		return CloseResult{}, ErrRegisterClosed
	}

	now := s.now().UTC()
	closed := now
	sess.ClosedAt = &closed
	sess.Touch(now)
	sessions[idx] = sess
	if err := s.sync.SaveSessions(ctx, sessions); err != nil {
		return CloseResult{}, err
	}

	events := s.sync.GetPoints(ctx)
	granted := s.grantOnTime(sess, events, now)
	if len(granted) > 0 {
		events = append(events, granted...)
		if err := s.sync.SavePoints(ctx, events); err != nil {
			return CloseResult{}, err
		}
		onTimeGrants.Add(float64(len(granted)))
	}

	snap := awards.Snapshot{
		Students: s.sync.GetStudents(ctx),
		Sessions: sessions,
		Points:   events,
		Awards:   s.sync.GetAwards(ctx),
	}
	minted := awards.RunOnRegisterClose(snap, sess.ClassID, now)
	if len(minted) > 0 {
		if err := s.sync.SaveAwards(ctx, append(snap.Awards, minted...)); err != nil {
			return CloseResult{}, err
		}
		countUnlocks(minted)
		s.announce(ctx, minted, snap.Students)
	}

	if s.q != nil {
		if err := s.q.Publish(ctx, queue.Message{Type: queue.TypeRegisterClosed, Body: []byte(sess.ID)}); err != nil {
			s.log.Debugf("register_closed publish failed: %v", err)
		}
	}
	return CloseResult{Session: sess, Granted: granted, Unlocked: minted}, nil
}

// grantOnTime builds the deduped bonus events for PRESENT marks.
func (s *Service) grantOnTime(sess model.RegisterSession, events []model.PointEvent, now time.Time) []model.PointEvent {
	if s.onTimePoints <= 0 {
		return nil
	}
	var granted []model.PointEvent
	for studentID, mark := range sess.Marks {
		if mark != model.MarkPresent {
			continue
		}
		if points.HasGrant(events, studentID, sess.ClassID, OnTimeReason, sess.ID) {
			continue
		}
		e := model.PointEvent{
			ID:        uuid.NewString(),
			StudentID: studentID,
			ClassID:   sess.ClassID,
			Reason:    OnTimeReason,
			Points:    s.onTimePoints,
			CreatedAt: now,
			SessionID: sess.ID,
		}
		e.State = model.LifecycleActive
		e.Touch(now)
		granted = append(granted, e)
	}
	return granted
}

// GrantPoints appends a manual grant to the ledger.
func (s *Service) GrantPoints(ctx context.Context, studentID, reason string, pts int) (model.PointEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.findStudent(ctx, studentID)
	if !ok {
		return model.PointEvent{}, ErrUnknownStudent
	}
	if strings.TrimSpace(reason) == "" {
		return model.PointEvent{}, ErrNameRequired
	}
	now := s.now().UTC()
	e := model.PointEvent{
		ID:        uuid.NewString(),
		StudentID: st.ID,
		ClassID:   st.ClassID,
		Reason:    strings.TrimSpace(reason),
		Points:    pts,
		CreatedAt: now,
	}
	e.State = model.LifecycleActive
	e.Touch(now)
	events := s.sync.GetPoints(ctx)
	return e, s.sync.SavePoints(ctx, append(events, e))
}

// DecideAward mints a teacher-decided award, with an optional winner override.
func (s *Service) DecideAward(ctx context.Context, classID string, awardID model.AwardID, winnerID string) (model.AwardUnlock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.classExists(ctx, classID) {
		return model.AwardUnlock{}, ErrUnknownClass
	}
	snap := s.Snapshot(ctx)
	unlock, err := awards.Decide(snap, classID, awardID, winnerID, s.now())
	if err != nil {
		return model.AwardUnlock{}, err
	}
	if err := s.sync.SaveAwards(ctx, append(snap.Awards, unlock)); err != nil {
		return model.AwardUnlock{}, err
	}
	countUnlocks([]model.AwardUnlock{unlock})
	s.announce(ctx, []model.AwardUnlock{unlock}, snap.Students)
	return unlock, nil
}

// Attendance computes a student's summary over the stored sessions.
func (s *Service) Attendance(ctx context.Context, student model.Student, from, to time.Time) attendance.Summary {
	return attendance.Summarize(student, s.sync.GetSessions(ctx), from, to)
}

// SumPoints totals the ledger for one student and class over [from, to].
func (s *Service) SumPoints(ctx context.Context, studentID, classID string, from, to time.Time) int {
	return points.Sum(s.sync.GetPoints(ctx), studentID, classID, from, to)
}

// Snapshot assembles the evaluator's view of the world.
func (s *Service) Snapshot(ctx context.Context) awards.Snapshot {
	return awards.Snapshot{
		Students: s.sync.GetStudents(ctx),
		Sessions: s.sync.GetSessions(ctx),
		Points:   s.sync.GetPoints(ctx),
		Awards:   s.sync.GetAwards(ctx),
	}
}

func (s *Service) announce(ctx context.Context, minted []model.AwardUnlock, students []model.Student) {
	if s.notifier == nil {
		return
	}
	names := make(map[string]string, len(students))
	for _, st := range students {
		names[st.ID] = st.Name
	}
	for _, a := range minted {
		if err := s.notifier.AwardUnlocked(ctx, a, names[a.StudentID]); err != nil {
			s.log.Warnf("award webhook failed for %s: %v", a.ID, err)
		}
	}
}

func countUnlocks(minted []model.AwardUnlock) {
	for _, a := range minted {
		awardsUnlocked.WithLabelValues(string(a.AwardID), string(a.DecidedBy)).Inc()
	}
}

func (s *Service) classExists(ctx context.Context, classID string) bool {
	for _, c := range model.Live(s.sync.GetClasses(ctx)) {
		if c.ID == classID {
			return true
		}
	}
	return false
}

func (s *Service) findStudent(ctx context.Context, studentID string) (model.Student, bool) {
	for _, st := range model.Live(s.sync.GetStudents(ctx)) {
		if st.ID == studentID {
			return st, true
		}
	}
	return model.Student{}, false
}
