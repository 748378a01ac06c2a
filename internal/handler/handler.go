// Package handler exposes the observer form and the admin dashboard over
// HTTP.
package handler

import (
	"errors"
	"log"
	"mime"
	"net/http"
	"strconv"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"

	"examattendance/internal/attendance"
	"examattendance/internal/auth"
	"examattendance/internal/metrics"
	"examattendance/internal/session"
	"examattendance/internal/store"
)

// User-facing messages.
const (
	MsgPresentExceedsTotal = "عدد الحاضرين لا يمكن أن يكون أكبر من الإجمالي."
	MsgWrongPasscode       = "كلمة المرور غير صحيحة. يرجى المحاولة مرة أخرى."
)

type Handler struct {
	svc     *attendance.Service
	repo    *attendance.Repository
	gate    *auth.Gate
	backend store.Backend
	redis   *store.Redis // nil when nothing runs on Redis
}

func New(svc *attendance.Service, repo *attendance.Repository, gate *auth.Gate, backend store.Backend, redis *store.Redis) *Handler {
	return &Handler{svc: svc, repo: repo, gate: gate, backend: backend, redis: redis}
}

// ---------- Health ----------

func (h *Handler) Healthz(c *gin.Context) {
	ctx := c.Request.Context()
	status := http.StatusOK
	body := gin.H{"status": "ok"}

	storeHealthy := h.backend.Ping(ctx) == nil
	body["store"] = storeHealthy
	if !storeHealthy {
		status = http.StatusServiceUnavailable
	}
	if h.redis != nil {
		redisHealthy := h.redis.Healthy(ctx)
		body["redis"] = redisHealthy
		if !redisHealthy {
			status = http.StatusServiceUnavailable
		}
	}
	if err := h.repo.Err(); err != nil {
		body["store_degraded"] = true
		body["store_error"] = err.Error()
	}
	if status != http.StatusOK {
		body["status"] = "unavailable"
	}
	c.JSON(status, body)
}

func (h *Handler) AcademicYears(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"academicYears": attendance.AcademicYears})
}

// ---------- Session ----------

func sessionBody(s session.State) gin.H {
	return gin.H{"view": s.View, "authenticated": s.Authenticated, "screen": s.Screen()}
}

func (h *Handler) GetSession(c *gin.Context) {
	c.JSON(http.StatusOK, sessionBody(auth.SessionFrom(c).State()))
}

type viewRequest struct {
	View *session.View `json:"view" binding:"required"`
}

func (h *Handler) SetView(c *gin.Context) {
	var req viewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess := auth.SessionFrom(c)
	sess.SetView(*req.View)
	c.JSON(http.StatusOK, sessionBody(sess.State()))
}

type loginRequest struct {
	Passcode string `json:"passcode"`
}

// Login checks the admin passcode. The answer is delayed by the gate; a
// client that disconnects meanwhile leaves the session untouched.
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.gate.Verify(c.Request.Context(), req.Passcode)
	switch {
	case err == nil:
		metrics.LoginAttempts.WithLabelValues("success").Inc()
		sess := auth.SessionFrom(c)
		sess.Authenticate()
		c.JSON(http.StatusOK, sessionBody(sess.State()))
	case errors.Is(err, auth.ErrWrongPasscode):
		metrics.LoginAttempts.WithLabelValues("failure").Inc()
		c.JSON(http.StatusUnauthorized, gin.H{"error": MsgWrongPasscode})
	default:
		metrics.LoginAttempts.WithLabelValues("abandoned").Inc()
		c.AbortWithStatus(http.StatusRequestTimeout)
	}
}

func (h *Handler) Logout(c *gin.Context) {
	sess := auth.SessionFrom(c)
	sess.Logout()
	c.JSON(http.StatusOK, sessionBody(sess.State()))
}

// ---------- Draft ----------

type draftRequest struct {
	ObserverName      string `json:"observerName"`
	AcademicYear      string `json:"academicYear"`
	CommitteeNumber   string `json:"committeeNumber"`
	CommitteeLocation string `json:"committeeLocation"`
	CourseName        string `json:"courseName"`
	TotalStudents     int    `json:"totalStudents" binding:"min=0"`
	PresentStudents   int    `json:"presentStudents" binding:"min=0"`
}

func (h *Handler) GetDraft(c *gin.Context) {
	c.JSON(http.StatusOK, auth.SessionFrom(c).Workflow.Snapshot())
}

func (h *Handler) UpdateDraft(c *gin.Context) {
	var req draftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	wf := auth.SessionFrom(c).Workflow
	err := wf.Update(attendance.Draft{
		ObserverName:      req.ObserverName,
		AcademicYear:      req.AcademicYear,
		CommitteeNumber:   req.CommitteeNumber,
		CommitteeLocation: req.CommitteeLocation,
		CourseName:        req.CourseName,
		TotalStudents:     req.TotalStudents,
		PresentStudents:   req.PresentStudents,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, wf.Snapshot())
}

// AttachImage expects a multipart form with the photo in "file".
func (h *Handler) AttachImage(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file field required"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read file failed"})
		return
	}
	defer f.Close()

	wf := auth.SessionFrom(c).Workflow
	if err := wf.AttachImage(f); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, wf.Snapshot())
}

func (h *Handler) ClearImage(c *gin.Context) {
	wf := auth.SessionFrom(c).Workflow
	if err := wf.ClearImage(); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, wf.Snapshot())
}

func (h *Handler) Submit(c *gin.Context) {
	wf := auth.SessionFrom(c).Workflow
	if _, err := wf.Submit(); err != nil {
		switch {
		case errors.Is(err, attendance.ErrPresentExceedsTotal):
			metrics.SubmissionsRejected.WithLabelValues("present_exceeds_total").Inc()
		case errors.Is(err, attendance.ErrNegativeCount):
			metrics.SubmissionsRejected.WithLabelValues("negative_count").Inc()
		}
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, wf.Snapshot())
}

func (h *Handler) Edit(c *gin.Context) {
	wf := auth.SessionFrom(c).Workflow
	if err := wf.Edit(); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, wf.Snapshot())
}

// Confirm starts the submission and answers immediately; the outcome shows
// up in the draft snapshot once the submission delay has passed.
func (h *Handler) Confirm(c *gin.Context) {
	wf := auth.SessionFrom(c).Workflow
	if _, err := wf.Confirm(); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, wf.Snapshot())
}

// ---------- Records (admin) ----------

func (h *Handler) ListRecords(c *gin.Context) {
	var f attendance.Filter
	if err := c.ShouldBindQuery(&f); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.svc.Dashboard(f))
}

func (h *Handler) ExportRecords(c *gin.Context) {
	var f attendance.Filter
	if err := c.ShouldBindQuery(&f); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	file, err := h.svc.Export(f)
	if err != nil {
		log.Printf("export failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "export failed"})
		return
	}
	metrics.Exports.Inc()
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": file.Name}))
	c.Data(http.StatusOK, file.ContentType, file.Data)
}

// RecordImage serves the attendance sheet of the first record with the
// given id. Ids are creation timestamps in milliseconds, so two records
// confirmed in the same millisecond share one; use index to pick a later
// one (its position among the records with that id, starting at 0).
func (h *Handler) RecordImage(c *gin.Context) {
	index, err := strconv.Atoi(c.DefaultQuery("index", "0"))
	if err != nil || index < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "index must be a non-negative integer"})
		return
	}
	contentType, data, ok, err := h.svc.Image(c.Query("id"), index)
	switch {
	case !ok:
		c.JSON(http.StatusNotFound, gin.H{"error": "image not found"})
	case err != nil:
		log.Printf("decode image of record %s failed: %v", c.Query("id"), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "image unreadable"})
	default:
		filename := "attendance-sheet"
		if mt := mimetype.Lookup(contentType); mt != nil {
			filename += mt.Extension()
		}
		c.Header("Content-Security-Policy", "default-src 'none'; sandbox")
		c.Header("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": filename}))
		c.Header("X-Content-Type-Options", "nosniff")
		c.Data(http.StatusOK, contentType, data)
	}
}

// fail maps domain errors to responses.
func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, attendance.ErrPresentExceedsTotal):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": MsgPresentExceedsTotal})
	case errors.Is(err, attendance.ErrNegativeCount):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, attendance.ErrNotImage), errors.Is(err, attendance.ErrImageTooLarge):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, attendance.ErrBusy),
		errors.Is(err, attendance.ErrNotEditing),
		errors.Is(err, attendance.ErrNotReviewing),
		errors.Is(err, attendance.ErrClosed):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		log.Printf("request %s %s failed: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
