package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"classview-backend/internal/middleware"
	"classview-backend/internal/models"
	"classview-backend/internal/repository"
)

type CourseHandler struct {
	courseRepo *repository.CourseRepo
}

func NewCourseHandler(courseRepo *repository.CourseRepo) *CourseHandler {
	return &CourseHandler{courseRepo: courseRepo}
}

func (h *CourseHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateCourseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	if strings.TrimSpace(req.Title) == "" {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed",
			map[string]string{"title": "Title is required"}, r))
		return
	}

	course := &models.Course{
		InstructorID: middleware.GetUserID(r.Context()),
		Title:        req.Title,
		Description:  req.Description,
	}

	if err := h.courseRepo.Create(r.Context(), course); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to create course", r))
		return
	}

	writeJSON(w, http.StatusCreated, course)
}

// List returns the caller's courses: owned ones for instructors, enrolled
// ones for students.
func (h *CourseHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var (
		courses []*models.Course
		err     error
	)
	if middleware.GetUserRole(r.Context()) == models.RoleInstructor {
		courses, err = h.courseRepo.ListByInstructor(r.Context(), userID)
	} else {
		courses, err = h.courseRepo.ListByStudent(r.Context(), userID)
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to list courses", r))
		return
	}

	if courses == nil {
		courses = []*models.Course{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"courses": courses})
}

func (h *CourseHandler) Get(w http.ResponseWriter, r *http.Request) {
	course, ok := h.loadCourse(w, r)
	if !ok {
		return
	}

	userID := middleware.GetUserID(r.Context())
	if course.InstructorID != userID {
		enrolled, err := h.courseRepo.IsEnrolled(r.Context(), course.ID, userID)
		if err != nil || !enrolled {
			writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", "Access denied", r))
			return
		}
	}

	writeJSON(w, http.StatusOK, course)
}

func (h *CourseHandler) Update(w http.ResponseWriter, r *http.Request) {
	course, ok := h.requireOwnedCourse(w, r)
	if !ok {
		return
	}

	var req models.UpdateCourseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	if err := h.courseRepo.Update(r.Context(), course.ID, req.Title, req.Description); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to update course", r))
		return
	}

	updated, err := h.courseRepo.GetByID(r.Context(), course.ID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to load course", r))
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func (h *CourseHandler) Archive(w http.ResponseWriter, r *http.Request) {
	course, ok := h.requireOwnedCourse(w, r)
	if !ok {
		return
	}

	if err := h.courseRepo.Archive(r.Context(), course.ID); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to archive course", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Course archived"})
}

// Enroll joins the calling student to a course by its share code.
func (h *CourseHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	var req models.EnrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if code == "" {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed",
			map[string]string{"code": "Join code is required"}, r))
		return
	}

	course, err := h.courseRepo.GetByCode(r.Context(), code)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "No course with that join code", r))
		return
	}

	if course.ArchivedAt != nil {
		writeJSON(w, http.StatusConflict, errorResp("CONFLICT", "Course is archived", r))
		return
	}

	userID := middleware.GetUserID(r.Context())
	if err := h.courseRepo.Enroll(r.Context(), course.ID, userID); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to enroll", r))
		return
	}

	writeJSON(w, http.StatusOK, course)
}

func (h *CourseHandler) Roster(w http.ResponseWriter, r *http.Request) {
	course, ok := h.requireOwnedCourse(w, r)
	if !ok {
		return
	}

	roster, err := h.courseRepo.Roster(r.Context(), course.ID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to load roster", r))
		return
	}

	if roster == nil {
		roster = []*models.RosterEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"roster": roster})
}

func (h *CourseHandler) loadCourse(w http.ResponseWriter, r *http.Request) (*models.Course, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid course ID", r))
		return nil, false
	}

	course, err := h.courseRepo.GetByID(r.Context(), id)
	if err != nil {
		if err == pgx.ErrNoRows {
			writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Course not found", r))
		} else {
			writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to load course", r))
		}
		return nil, false
	}

	return course, true
}

func (h *CourseHandler) requireOwnedCourse(w http.ResponseWriter, r *http.Request) (*models.Course, bool) {
	course, ok := h.loadCourse(w, r)
	if !ok {
		return nil, false
	}

	if course.InstructorID != middleware.GetUserID(r.Context()) {
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", "You do not own this course", r))
		return nil, false
	}

	return course, true
}
