package handlers

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"classview-backend/internal/middleware"
	"classview-backend/internal/models"
	"classview-backend/internal/repository"
)

type ReportHandler struct {
	reportRepo  *repository.ReportRepo
	sessionRepo *repository.SessionRepo
	courseRepo  *repository.CourseRepo
	redis       *redis.Client
}

func NewReportHandler(
	reportRepo *repository.ReportRepo,
	sessionRepo *repository.SessionRepo,
	courseRepo *repository.CourseRepo,
	redisClient *redis.Client,
) *ReportHandler {
	return &ReportHandler{
		reportRepo:  reportRepo,
		sessionRepo: sessionRepo,
		courseRepo:  courseRepo,
		redis:       redisClient,
	}
}

// SessionReport serves the cached report when the worker already built it,
// and aggregates on demand otherwise.
func (h *ReportHandler) SessionReport(w http.ResponseWriter, r *http.Request) {
	session, ok := h.requireOwnedSession(w, r)
	if !ok {
		return
	}

	cacheKey := "session_report:" + session.ID.String()
	if cached, err := h.redis.Get(r.Context(), cacheKey).Result(); err == nil {
		var report models.SessionReport
		if json.Unmarshal([]byte(cached), &report) == nil {
			writeJSON(w, http.StatusOK, report)
			return
		}
	}

	report, err := h.reportRepo.BuildSessionReport(r.Context(), session.ID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to build report", r))
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// ExportSessionCSV streams the per-question stats and leaderboard as CSV.
func (h *ReportHandler) ExportSessionCSV(w http.ResponseWriter, r *http.Request) {
	session, ok := h.requireOwnedSession(w, r)
	if !ok {
		return
	}

	report, err := h.reportRepo.BuildSessionReport(r.Context(), session.ID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to build report", r))
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=session-%s.csv", session.ID))

	cw := csv.NewWriter(w)
	cw.Write([]string{"section", "name", "answers", "correct", "correct_rate"})

	for _, stat := range report.QuestionStats {
		cw.Write([]string{
			"question",
			stat.Text,
			strconv.Itoa(stat.AnswerCount),
			strconv.Itoa(stat.CorrectCount),
			strconv.FormatFloat(stat.CorrectRate, 'f', 3, 64),
		})
	}

	for _, entry := range report.Leaderboard {
		rate := 0.0
		if entry.AnswerCount > 0 {
			rate = float64(entry.CorrectCount) / float64(entry.AnswerCount)
		}
		cw.Write([]string{
			"student",
			entry.FullName,
			strconv.Itoa(entry.AnswerCount),
			strconv.Itoa(entry.CorrectCount),
			strconv.FormatFloat(rate, 'f', 3, 64),
		})
	}

	cw.Flush()
}

func (h *ReportHandler) CourseAnalytics(w http.ResponseWriter, r *http.Request) {
	courseID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid course ID", r))
		return
	}

	course, err := h.courseRepo.GetByID(r.Context(), courseID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Course not found", r))
		return
	}

	if course.InstructorID != middleware.GetUserID(r.Context()) {
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", "You do not own this course", r))
		return
	}

	analytics, err := h.reportRepo.BuildCourseAnalytics(r.Context(), courseID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to build analytics", r))
		return
	}

	writeJSON(w, http.StatusOK, analytics)
}

func (h *ReportHandler) requireOwnedSession(w http.ResponseWriter, r *http.Request) (*models.LiveSession, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid session ID", r))
		return nil, false
	}

	session, err := h.sessionRepo.GetByID(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Session not found", r))
		return nil, false
	}

	if session.InstructorID != middleware.GetUserID(r.Context()) {
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", "You do not own this session", r))
		return nil, false
	}

	return session, true
}
