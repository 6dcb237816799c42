// Package handler exposes the studio register API over gin.
package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"studioregister/internal/awards"
	"studioregister/internal/export"
	"studioregister/internal/logger"
	"studioregister/internal/model"
	"studioregister/internal/register"
	"studioregister/internal/syncer"
)

// Handler wires the domain services to HTTP.
type Handler struct {
	sync *syncer.Service
	reg  *register.Service
	log  *logger.Logger
}

// New builds the handler set.
func New(sync *syncer.Service, reg *register.Service, log *logger.Logger) *Handler {
	return &Handler{sync: sync, reg: reg, log: log}
}

// Routes registers all v1 endpoints on r.
func (h *Handler) Routes(r gin.IRouter) {
	v1 := r.Group("/v1")

	v1.GET("/classes", h.GetClasses)
	v1.POST("/classes", h.CreateClass)
	v1.PUT("/classes", h.SaveClasses)
	v1.DELETE("/classes/:id", h.DeleteClass)
	v1.GET("/classes/:id/export", h.ExportRegister)

	v1.GET("/students", h.GetStudents)
	v1.POST("/students", h.CreateStudent)
	v1.PUT("/students", h.SaveStudents)
	v1.POST("/students/:id/archive", h.ArchiveStudent)
	v1.GET("/students/:id/attendance", h.StudentAttendance)

	v1.GET("/sessions", h.GetSessions)
	v1.PUT("/sessions", h.SaveSessions)
	v1.POST("/sessions", h.OpenRegister)
	v1.POST("/sessions/:id/marks", h.SetMark)
	v1.POST("/sessions/:id/close", h.CloseRegister)

	v1.GET("/points", h.GetPoints)
	v1.PUT("/points", h.SavePoints)
	v1.POST("/points", h.GrantPoints)
	v1.GET("/points/sum", h.SumPoints)

	v1.GET("/awards", h.GetAwards)
	v1.PUT("/awards", h.SaveAwards)
	v1.GET("/awards/evaluate/month", h.EvaluateMonth)
	v1.GET("/awards/evaluate/improved", h.EvaluateImproved)
	v1.GET("/awards/evaluate/year", h.EvaluateYear)
	v1.POST("/awards/decide", h.DecideAward)

	v1.POST("/sync", h.Sync)
}

// status maps domain errors onto HTTP codes; validation failures are 4xx
// before anything persists.
func status(err error) int {
	switch {
	case errors.Is(err, register.ErrNameRequired),
		errors.Is(err, register.ErrInvalidMark),
		errors.Is(err, register.ErrStudentNotInClass),
		errors.Is(err, awards.ErrUnknownStudent),
		errors.Is(err, awards.ErrNoWinner):
		return http.StatusBadRequest
	case errors.Is(err, register.ErrUnknownClass),
		errors.Is(err, register.ErrUnknownStudent),
		errors.Is(err, register.ErrUnknownSession):
		return http.StatusNotFound
	case errors.Is(err, register.ErrDuplicateName),
		errors.Is(err, register.ErrRegisterOpen),
		errors.Is(err, register.ErrRegisterClosed),
		errors.Is(err, awards.ErrDuplicateAward):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func fail(c *gin.Context, err error) {
	c.JSON(status(err), gin.H{"error": err.Error()})
}

// parseRange reads optional from/to query params (RFC 3339 or YYYY-MM-DD),
// defaulting to a trailing 30-day window ending now.
func parseRange(c *gin.Context) (from, to time.Time, err error) {
	to = time.Now().UTC()
	from = to.AddDate(0, 0, -30)
	if v := c.Query("from"); v != "" {
		if from, err = parseTime(v); err != nil {
			return from, to, err
		}
	}
	if v := c.Query("to"); v != "" {
		if to, err = parseTime(v); err != nil {
			return from, to, err
		}
		if len(v) == len("2006-01-02") {
			// A bare date means the whole day, inclusive.
			to = to.AddDate(0, 0, 1).Add(-time.Nanosecond)
		}
	}
	return from, to, nil
}

func parseTime(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", v)
	return t.UTC(), err
}

// ---------- collections ----------

func collection[T model.Syncable[T]](c *gin.Context, records []T) {
	if c.Query("include_deleted") == "" {
		records = model.Live(records)
	}
	if records == nil {
		records = []T{}
	}
	c.JSON(http.StatusOK, records)
}

func (h *Handler) GetClasses(c *gin.Context) {
	collection(c, h.sync.GetClasses(c.Request.Context()))
}

func (h *Handler) GetStudents(c *gin.Context) {
	collection(c, h.sync.GetStudents(c.Request.Context()))
}

func (h *Handler) GetSessions(c *gin.Context) {
	collection(c, h.sync.GetSessions(c.Request.Context()))
}

func (h *Handler) GetPoints(c *gin.Context) {
	collection(c, h.sync.GetPoints(c.Request.Context()))
}

func (h *Handler) GetAwards(c *gin.Context) {
	collection(c, h.sync.GetAwards(c.Request.Context()))
}

func saveCollection[T model.Syncable[T]](c *gin.Context, save func([]T) error) {
	var records []T
	if err := c.ShouldBindJSON(&records); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := save(records); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"saved": len(records)})
}

func (h *Handler) SaveClasses(c *gin.Context) {
	saveCollection(c, func(r []model.DanceClass) error {
		return h.sync.SaveClasses(c.Request.Context(), r)
	})
}

func (h *Handler) SaveStudents(c *gin.Context) {
	saveCollection(c, func(r []model.Student) error {
		return h.sync.SaveStudents(c.Request.Context(), r)
	})
}

func (h *Handler) SaveSessions(c *gin.Context) {
	saveCollection(c, func(r []model.RegisterSession) error {
		return h.sync.SaveSessions(c.Request.Context(), r)
	})
}

func (h *Handler) SavePoints(c *gin.Context) {
	saveCollection(c, func(r []model.PointEvent) error {
		return h.sync.SavePoints(c.Request.Context(), r)
	})
}

func (h *Handler) SaveAwards(c *gin.Context) {
	saveCollection(c, func(r []model.AwardUnlock) error {
		return h.sync.SaveAwards(c.Request.Context(), r)
	})
}

// ---------- classes & students ----------

func (h *Handler) CreateClass(c *gin.Context) {
	var req struct {
		Name  string `json:"name" binding:"required"`
		Color string `json:"color"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cls, err := h.reg.CreateClass(c.Request.Context(), req.Name, req.Color)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, cls)
}

func (h *Handler) DeleteClass(c *gin.Context) {
	if err := h.reg.DeleteClass(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": c.Param("id")})
}

func (h *Handler) CreateStudent(c *gin.Context) {
	var req struct {
		Name     string    `json:"name" binding:"required"`
		ClassID  string    `json:"classId" binding:"required"`
		JoinedAt time.Time `json:"joinedAt"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	st, err := h.reg.CreateStudent(c.Request.Context(), req.Name, req.ClassID, req.JoinedAt)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, st)
}

func (h *Handler) ArchiveStudent(c *gin.Context) {
	var req struct {
		Archived *bool `json:"archived" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.reg.ArchiveStudent(c.Request.Context(), c.Param("id"), *req.Archived); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"archived": *req.Archived})
}

// ---------- attendance ----------

func (h *Handler) StudentAttendance(c *gin.Context) {
	from, to, err := parseRange(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad from/to: " + err.Error()})
		return
	}
	ctx := c.Request.Context()
	var student *model.Student
	for _, st := range model.Live(h.sync.GetStudents(ctx)) {
		if st.ID == c.Param("id") {
			s := st
			student = &s
			break
		}
	}
	if student == nil {
		fail(c, register.ErrUnknownStudent)
		return
	}
	sum := h.reg.Attendance(ctx, *student, from, to)
	c.JSON(http.StatusOK, sum)
}

// ---------- sessions ----------

func (h *Handler) OpenRegister(c *gin.Context) {
	var req struct {
		ClassID string `json:"classId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess, err := h.reg.OpenRegister(c.Request.Context(), req.ClassID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

func (h *Handler) SetMark(c *gin.Context) {
	var req struct {
		StudentID string     `json:"studentId" binding:"required"`
		Mark      model.Mark `json:"mark" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess, err := h.reg.SetMark(c.Request.Context(), c.Param("id"), req.StudentID, req.Mark)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *Handler) CloseRegister(c *gin.Context) {
	res, err := h.reg.CloseRegister(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ---------- points ----------

func (h *Handler) GrantPoints(c *gin.Context) {
	var req struct {
		StudentID string `json:"studentId" binding:"required"`
		Reason    string `json:"reason" binding:"required"`
		Points    int    `json:"points" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	evt, err := h.reg.GrantPoints(c.Request.Context(), req.StudentID, req.Reason, req.Points)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, evt)
}

func (h *Handler) SumPoints(c *gin.Context) {
	from, to, err := parseRange(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad from/to: " + err.Error()})
		return
	}
	studentID := c.Query("student_id")
	classID := c.Query("class_id")
	if studentID == "" || classID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "student_id and class_id required"})
		return
	}
	total := h.reg.SumPoints(c.Request.Context(), studentID, classID, from, to)
	c.JSON(http.StatusOK, gin.H{"total": total, "from": from, "to": to})
}

// ---------- awards ----------

func (h *Handler) EvaluateMonth(c *gin.Context) {
	classID := c.Query("class_id")
	if classID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "class_id required"})
		return
	}
	from, to, err := parseRange(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad from/to: " + err.Error()})
		return
	}
	snap := h.reg.Snapshot(c.Request.Context())
	prev := awards.PreviousWinner(snap.Awards, classID, model.AwardStudentOfMonth, model.PreviousMonth(to))
	c.JSON(http.StatusOK, awards.StudentOfMonth(snap, classID, from, to, prev))
}

func (h *Handler) EvaluateImproved(c *gin.Context) {
	classID := c.Query("class_id")
	if classID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "class_id required"})
		return
	}
	snap := h.reg.Snapshot(c.Request.Context())
	c.JSON(http.StatusOK, awards.MostImproved(snap, classID, time.Now().UTC()))
}

func (h *Handler) EvaluateYear(c *gin.Context) {
	classID := c.Query("class_id")
	if classID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "class_id required"})
		return
	}
	snap := h.reg.Snapshot(c.Request.Context())
	c.JSON(http.StatusOK, awards.StudentOfYear(snap, classID, time.Now().UTC()))
}

func (h *Handler) DecideAward(c *gin.Context) {
	var req struct {
		ClassID  string `json:"classId" binding:"required"`
		AwardID  string `json:"awardId" binding:"required"`
		WinnerID string `json:"winnerId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	unlock, err := h.reg.DecideAward(c.Request.Context(), req.ClassID, model.AwardID(req.AwardID), req.WinnerID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, unlock)
}

// ---------- export & sync ----------

func (h *Handler) ExportRegister(c *gin.Context) {
	from, to, err := parseRange(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad from/to: " + err.Error()})
		return
	}
	ctx := c.Request.Context()
	var cls *model.DanceClass
	for _, cl := range model.Live(h.sync.GetClasses(ctx)) {
		if cl.ID == c.Param("id") {
			cc := cl
			cls = &cc
			break
		}
	}
	if cls == nil {
		fail(c, register.ErrUnknownClass)
		return
	}
	f, err := export.Register(*cls, h.sync.GetStudents(ctx), h.sync.GetSessions(ctx), from, to)
	if err != nil {
		h.log.Errorf("export %s: %v", cls.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "export failed"})
		return
	}
	c.Header("Content-Disposition", `attachment; filename="register-`+cls.Name+`.xlsx"`)
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	if err := f.Write(c.Writer); err != nil {
		h.log.Errorf("export write %s: %v", cls.ID, err)
	}
}

// Sync is the explicit sync poke, the service analog of the browser's online
// event. It runs inline; an in-flight pass makes it a cheap no-op.
func (h *Handler) Sync(c *gin.Context) {
	if !h.sync.Remote() {
		c.JSON(http.StatusOK, gin.H{"synced": false, "reason": "no remote configured"})
		return
	}
	h.sync.SyncAll(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"synced": true})
}
