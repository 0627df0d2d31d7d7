package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"classroom-attendance/internal/api/middleware"
	"classroom-attendance/internal/attendance"
	"classroom-attendance/internal/core/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const maxPhotoSize = 10 << 20

// studentRequest wird als JSON oder als multipart-Formular (mit Foto) angenommen
type studentRequest struct {
	ID            string    `json:"id" form:"id"`
	Name          string    `json:"name" form:"name"`
	GuardianName  string    `json:"guardian_name" form:"guardian_name"`
	GuardianEmail string    `json:"guardian_email" form:"guardian_email" binding:"omitempty,email"`
	GuardianPhone string    `json:"guardian_phone" form:"guardian_phone"`
	Descriptor    []float32 `json:"descriptor" form:"-"`
}

// studentResponse ergänzt den Schüler um Angaben zum Deskriptor
type studentResponse struct {
	models.Student
	HasDescriptor bool   `json:"has_descriptor"`
	ReloadError   string `json:"reload_error,omitempty"`
}

func newStudentResponse(s *models.Student) studentResponse {
	return studentResponse{Student: *s, HasDescriptor: len(s.Descriptor) > 0 && string(s.Descriptor) != "null"}
}

// ListStudents gibt alle eingeschriebenen Schüler zurück
func (h *APIHandler) ListStudents(c *gin.Context) {
	students, err := h.repo.GetStudents(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, "api.error.internal", err)
		return
	}
	out := make([]studentResponse, 0, len(students))
	for i := range students {
		out = append(out, newStudentResponse(&students[i]))
	}
	c.JSON(http.StatusOK, out)
}

// GetStudent gibt einen einzelnen Schüler zurück
func (h *APIHandler) GetStudent(c *gin.Context) {
	student, ok := h.loadStudent(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, newStudentResponse(student))
}

// CreateStudent schreibt einen Schüler ein. Der Deskriptor kommt entweder direkt
// als Array oder wird aus dem hochgeladenen Foto berechnet.
func (h *APIHandler) CreateStudent(c *gin.Context) {
	var req studentRequest
	if err := c.ShouldBind(&req); err != nil {
		respondError(c, http.StatusBadRequest, "api.error.invalid_request", err)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		respondError(c, http.StatusBadRequest, "api.error.invalid_request", errors.New("name is required"))
		return
	}

	descriptor, ok := h.resolveDescriptor(c, req.Descriptor)
	if !ok {
		return
	}
	if descriptor == nil {
		respondError(c, http.StatusBadRequest, "api.error.descriptor_required", nil)
		return
	}

	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = uuid.NewString()
	}
	ctx := c.Request.Context()
	existing, err := h.repo.GetStudentByID(ctx, id)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "api.error.internal", err)
		return
	}
	if existing != nil {
		respondError(c, http.StatusConflict, "api.error.invalid_request", fmt.Errorf("student %s already exists", id))
		return
	}

	student := &models.Student{
		ID:            id,
		Name:          req.Name,
		GuardianName:  req.GuardianName,
		GuardianEmail: req.GuardianEmail,
		GuardianPhone: req.GuardianPhone,
	}
	if err := student.SetDescriptor(descriptor); err != nil {
		respondError(c, http.StatusInternalServerError, "api.error.internal", err)
		return
	}
	if err := h.repo.SaveStudent(ctx, student); err != nil {
		respondError(c, http.StatusInternalServerError, "api.error.internal", err)
		return
	}

	log.Infof("Student %s (%s) enrolled", student.ID, student.Name)
	resp := newStudentResponse(student)
	resp.ReloadError = h.reload(c)
	c.JSON(http.StatusCreated, resp)
}

// UpdateStudent ändert Stammdaten und optional den Deskriptor eines Schülers
func (h *APIHandler) UpdateStudent(c *gin.Context) {
	student, ok := h.loadStudent(c)
	if !ok {
		return
	}

	var req studentRequest
	if err := c.ShouldBind(&req); err != nil {
		respondError(c, http.StatusBadRequest, "api.error.invalid_request", err)
		return
	}

	descriptor, ok := h.resolveDescriptor(c, req.Descriptor)
	if !ok {
		return
	}

	if name := strings.TrimSpace(req.Name); name != "" {
		student.Name = name
	}
	if req.GuardianName != "" {
		student.GuardianName = req.GuardianName
	}
	if req.GuardianEmail != "" {
		student.GuardianEmail = req.GuardianEmail
	}
	if req.GuardianPhone != "" {
		student.GuardianPhone = req.GuardianPhone
	}
	if descriptor != nil {
		if err := student.SetDescriptor(descriptor); err != nil {
			respondError(c, http.StatusInternalServerError, "api.error.internal", err)
			return
		}
	}

	if err := h.repo.SaveStudent(c.Request.Context(), student); err != nil {
		respondError(c, http.StatusInternalServerError, "api.error.internal", err)
		return
	}

	log.Infof("Student %s updated", student.ID)
	resp := newStudentResponse(student)
	resp.ReloadError = h.reload(c)
	c.JSON(http.StatusOK, resp)
}

// DeleteStudent löscht einen Schüler samt Protokolleinträgen
func (h *APIHandler) DeleteStudent(c *gin.Context) {
	student, ok := h.loadStudent(c)
	if !ok {
		return
	}
	if err := h.repo.DeleteStudent(c.Request.Context(), student.ID); err != nil {
		respondError(c, http.StatusInternalServerError, "api.error.internal", err)
		return
	}

	log.Infof("Student %s deleted", student.ID)
	body := gin.H{"message": middleware.Translate(c, "api.student.deleted", nil)}
	if reloadErr := h.reload(c); reloadErr != "" {
		body["reload_error"] = reloadErr
	}
	c.JSON(http.StatusOK, body)
}

// GetStudentAttendance gibt das Anwesenheitsprotokoll eines Schülers zurück
func (h *APIHandler) GetStudentAttendance(c *gin.Context) {
	student, ok := h.loadStudent(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "50"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 500 {
		pageSize = 50
	}

	events, total, err := h.repo.GetAttendanceEvents(c.Request.Context(), student.ID, pageSize, (page-1)*pageSize)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "api.error.internal", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"student_id": student.ID,
		"events":     events,
		"pagination": gin.H{
			"page":     page,
			"pageSize": pageSize,
			"total":    total,
		},
	})
}

// loadStudent lädt den Schüler aus dem Pfadparameter oder antwortet mit 404
func (h *APIHandler) loadStudent(c *gin.Context) (*models.Student, bool) {
	student, err := h.repo.GetStudentByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, http.StatusInternalServerError, "api.error.internal", err)
		return nil, false
	}
	if student == nil {
		respondError(c, http.StatusNotFound, "api.error.student_not_found", nil)
		return nil, false
	}
	return student, true
}

// resolveDescriptor liefert den Deskriptor aus der Anfrage oder aus einem
// hochgeladenen Foto. nil ohne Fehler bedeutet: keiner angegeben.
func (h *APIHandler) resolveDescriptor(c *gin.Context, given []float32) ([]float32, bool) {
	if len(given) > 0 {
		if h.descriptorSize > 0 && len(given) != h.descriptorSize {
			respondError(c, http.StatusBadRequest, "api.error.invalid_request",
				fmt.Errorf("descriptor must have %d values, got %d", h.descriptorSize, len(given)))
			return nil, false
		}
		return given, true
	}

	file, header, err := c.Request.FormFile("photo")
	if err != nil {
		// Kein Foto ist kein Fehler
		return nil, true
	}
	defer file.Close()

	if h.extractor == nil {
		respondError(c, http.StatusServiceUnavailable, "api.error.internal", errors.New("face recognition not available"))
		return nil, false
	}

	data, err := io.ReadAll(io.LimitReader(file, maxPhotoSize))
	if err != nil {
		respondError(c, http.StatusBadRequest, "api.error.invalid_request", err)
		return nil, false
	}
	log.Debugf("Extracting descriptor from %s (%d bytes)", header.Filename, len(data))

	d, err := h.extractor.DescriptorFromImage(c.Request.Context(), data)
	switch {
	case errors.Is(err, attendance.ErrNoFaceDetected):
		respondError(c, http.StatusUnprocessableEntity, "api.error.no_face", nil)
		return nil, false
	case errors.Is(err, attendance.ErrMultipleFaces):
		respondError(c, http.StatusUnprocessableEntity, "api.error.multiple_faces", nil)
		return nil, false
	case err != nil:
		respondError(c, http.StatusInternalServerError, "api.error.internal", err)
		return nil, false
	}
	return d, true
}

// reload lädt den Referenz-Cache nach einer Änderung neu und gibt einen
// eventuellen Fehler als Text zurück.
func (h *APIHandler) reload(c *gin.Context) string {
	if h.monitor == nil {
		return ""
	}
	ctx, cancel := reloadContext(c)
	defer cancel()
	if err := h.monitor.Reload(ctx); err != nil {
		log.Warnf("Reference reload after student change failed: %v", err)
		return err.Error()
	}
	return ""
}
