package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"

	"classview-backend/internal/middleware"
	"classview-backend/internal/models"
	"classview-backend/internal/realtime"
	"classview-backend/internal/repository"
	"classview-backend/internal/worker"
)

type SessionHandler struct {
	sessionRepo  *repository.SessionRepo
	courseRepo   *repository.CourseRepo
	questionRepo *repository.QuestionRepo
	jobRepo      *repository.JobRepo
	hub          *realtime.Hub
	redis        *redis.Client
}

func NewSessionHandler(
	sessionRepo *repository.SessionRepo,
	courseRepo *repository.CourseRepo,
	questionRepo *repository.QuestionRepo,
	jobRepo *repository.JobRepo,
	hub *realtime.Hub,
	redisClient *redis.Client,
) *SessionHandler {
	return &SessionHandler{
		sessionRepo:  sessionRepo,
		courseRepo:   courseRepo,
		questionRepo: questionRepo,
		jobRepo:      jobRepo,
		hub:          hub,
		redis:        redisClient,
	}
}

func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	if strings.TrimSpace(req.Title) == "" {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed",
			map[string]string{"title": "Title is required"}, r))
		return
	}

	userID := middleware.GetUserID(r.Context())
	course, err := h.courseRepo.GetByID(r.Context(), req.CourseID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Course not found", r))
		return
	}
	if course.InstructorID != userID {
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", "You do not own this course", r))
		return
	}

	session := &models.LiveSession{
		CourseID:     req.CourseID,
		InstructorID: userID,
		Title:        req.Title,
		ScheduledFor: req.ScheduledFor,
	}

	if err := h.sessionRepo.Create(r.Context(), session); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to create session", r))
		return
	}

	writeJSON(w, http.StatusCreated, session)
}

func (h *SessionHandler) ListByCourse(w http.ResponseWriter, r *http.Request) {
	courseID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid course ID", r))
		return
	}

	userID := middleware.GetUserID(r.Context())
	course, err := h.courseRepo.GetByID(r.Context(), courseID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Course not found", r))
		return
	}

	if course.InstructorID != userID {
		enrolled, err := h.courseRepo.IsEnrolled(r.Context(), courseID, userID)
		if err != nil || !enrolled {
			writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", "Access denied", r))
			return
		}
	}

	sessions, err := h.sessionRepo.ListByCourse(r.Context(), courseID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to list sessions", r))
		return
	}

	if sessions == nil {
		sessions = []*models.LiveSession{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	session, ok := h.loadSession(w, r)
	if !ok {
		return
	}

	userID := middleware.GetUserID(r.Context())
	if session.InstructorID != userID {
		enrolled, err := h.courseRepo.IsEnrolled(r.Context(), session.CourseID, userID)
		if err != nil || !enrolled {
			writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", "Access denied", r))
			return
		}
	}

	writeJSON(w, http.StatusOK, session)
}

func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	session, ok := h.requireOwnedSession(w, r)
	if !ok {
		return
	}

	if session.Status != models.SessionScheduled {
		writeJSON(w, http.StatusConflict, errorResp("CONFLICT", "Session is not in scheduled state", r))
		return
	}

	if err := h.sessionRepo.Start(r.Context(), session.ID); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to start session", r))
		return
	}

	updated, _ := h.sessionRepo.GetByID(r.Context(), session.ID)
	writeJSON(w, http.StatusOK, updated)
}

// End closes the session and queues the report build.
func (h *SessionHandler) End(w http.ResponseWriter, r *http.Request) {
	session, ok := h.requireOwnedSession(w, r)
	if !ok {
		return
	}

	if session.Status == models.SessionEnded {
		writeJSON(w, http.StatusConflict, errorResp("CONFLICT", "Session has already ended", r))
		return
	}

	if err := h.sessionRepo.End(r.Context(), session.ID); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to end session", r))
		return
	}

	job := &models.Job{
		UserID:      session.InstructorID,
		Type:        models.JobReportGeneration,
		ReferenceID: session.ID,
	}
	if err := h.jobRepo.Create(r.Context(), job); err == nil {
		worker.Enqueue(r.Context(), h.redis, job)
	}

	updated, _ := h.sessionRepo.GetByID(r.Context(), session.ID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session":       updated,
		"report_job_id": job.ID,
	})
}

// LaunchQuestion sets the session's current question and pushes it to every
// connected participant.
func (h *SessionHandler) LaunchQuestion(w http.ResponseWriter, r *http.Request) {
	session, ok := h.requireOwnedSession(w, r)
	if !ok {
		return
	}

	if session.Status != models.SessionLive {
		writeJSON(w, http.StatusConflict, errorResp("CONFLICT", "Session is not live", r))
		return
	}

	var req models.LaunchQuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	question, err := h.questionRepo.GetByID(r.Context(), req.QuestionID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Question not found", r))
		return
	}
	if question.CourseID != session.CourseID {
		writeJSON(w, http.StatusConflict, errorResp("CONFLICT", "Question belongs to another course", r))
		return
	}

	if err := h.sessionRepo.SetCurrentQuestion(r.Context(), session.ID, question.ID); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to set current question", r))
		return
	}

	timeLimit := question.TimeLimitSeconds
	if req.TimeLimitSeconds != nil && *req.TimeLimitSeconds > 0 {
		timeLimit = *req.TimeLimitSeconds
	}

	broadcast := realtime.QuestionBroadcast{
		SessionID:   session.ID.String(),
		QuestionID:  question.ID.String(),
		Question:    question.Text,
		Options:     question.Options(),
		TimeLimit:   timeLimit,
		TriggeredAt: time.Now().UTC().Format(time.RFC3339),
	}

	if err := h.hub.BroadcastQuestion(r.Context(), broadcast); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to broadcast question", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":    "Question launched",
		"session_id": session.ID,
		"question":   broadcast,
	})
}

// SubmitAnswer records one answer per student per question. Repeat
// submissions get a conflict.
func (h *SessionHandler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	session, ok := h.loadSession(w, r)
	if !ok {
		return
	}

	userID := middleware.GetUserID(r.Context())
	enrolled, err := h.courseRepo.IsEnrolled(r.Context(), session.CourseID, userID)
	if err != nil || !enrolled {
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", "You are not enrolled in this course", r))
		return
	}

	if session.Status != models.SessionLive {
		writeJSON(w, http.StatusConflict, errorResp("CONFLICT", "Session is not live", r))
		return
	}

	var req models.SubmitAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	if session.CurrentQuestionID == nil || *session.CurrentQuestionID != req.QuestionID {
		writeJSON(w, http.StatusConflict, errorResp("CONFLICT", "That question is not currently open", r))
		return
	}

	question, err := h.questionRepo.GetByID(r.Context(), req.QuestionID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Question not found", r))
		return
	}

	options := question.Options()
	if req.OptionIndex < 0 || req.OptionIndex >= len(options) {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed",
			map[string]string{"option_index": "Option index out of range"}, r))
		return
	}

	answer := &models.Answer{
		SessionID:   session.ID,
		QuestionID:  question.ID,
		StudentID:   userID,
		OptionIndex: req.OptionIndex,
		Correct:     req.OptionIndex == question.CorrectIndex,
	}

	if err := h.sessionRepo.RecordAnswer(r.Context(), answer); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusConflict, errorResp("CONFLICT", "You already answered this question", r))
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to record answer", r))
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"answer_id":   answer.ID,
		"correct":     answer.Correct,
		"answered_at": answer.AnsweredAt,
	})
}

// AnswerCounts gives the instructor a live tally for the current question.
func (h *SessionHandler) AnswerCounts(w http.ResponseWriter, r *http.Request) {
	session, ok := h.requireOwnedSession(w, r)
	if !ok {
		return
	}

	if session.CurrentQuestionID == nil {
		writeJSON(w, http.StatusConflict, errorResp("CONFLICT", "No question is currently open", r))
		return
	}

	total, correct, err := h.sessionRepo.AnswerCounts(r.Context(), session.ID, *session.CurrentQuestionID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to count answers", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"question_id":       session.CurrentQuestionID,
		"total":             total,
		"correct":           correct,
		"participant_count": h.hub.ParticipantCount(session.ID.String()),
	})
}

// Participants reports how many sockets are in the session room right now.
func (h *SessionHandler) Participants(w http.ResponseWriter, r *http.Request) {
	session, ok := h.loadSession(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id":        session.ID,
		"participant_count": h.hub.ParticipantCount(session.ID.String()),
	})
}

func (h *SessionHandler) loadSession(w http.ResponseWriter, r *http.Request) (*models.LiveSession, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid session ID", r))
		return nil, false
	}

	session, err := h.sessionRepo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Session not found", r))
		} else {
			writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to load session", r))
		}
		return nil, false
	}

	return session, true
}

func (h *SessionHandler) requireOwnedSession(w http.ResponseWriter, r *http.Request) (*models.LiveSession, bool) {
	session, ok := h.loadSession(w, r)
	if !ok {
		return nil, false
	}

	if session.InstructorID != middleware.GetUserID(r.Context()) {
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", "You do not own this session", r))
		return nil, false
	}

	return session, true
}
