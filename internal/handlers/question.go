package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"classview-backend/internal/middleware"
	"classview-backend/internal/models"
	"classview-backend/internal/repository"
	"classview-backend/internal/worker"
)

type QuestionHandler struct {
	questionRepo *repository.QuestionRepo
	courseRepo   *repository.CourseRepo
	materialRepo *repository.MaterialRepo
	jobRepo      *repository.JobRepo
	redis        *redis.Client
}

func NewQuestionHandler(
	questionRepo *repository.QuestionRepo,
	courseRepo *repository.CourseRepo,
	materialRepo *repository.MaterialRepo,
	jobRepo *repository.JobRepo,
	redisClient *redis.Client,
) *QuestionHandler {
	return &QuestionHandler{
		questionRepo: questionRepo,
		courseRepo:   courseRepo,
		materialRepo: materialRepo,
		jobRepo:      jobRepo,
		redis:        redisClient,
	}
}

func (h *QuestionHandler) Create(w http.ResponseWriter, r *http.Request) {
	courseID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid course ID", r))
		return
	}

	if _, ok := h.requireOwnedCourse(w, r, courseID); !ok {
		return
	}

	var req models.CreateQuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	fieldErrors := make(map[string]string)
	if strings.TrimSpace(req.Text) == "" {
		fieldErrors["text"] = "Question text is required"
	}
	if len(req.Options) < 2 {
		fieldErrors["options"] = "At least two options are required"
	}
	if req.CorrectIndex < 0 || req.CorrectIndex >= len(req.Options) {
		fieldErrors["correct_index"] = "Correct index must point at an option"
	}
	if len(fieldErrors) > 0 {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed", fieldErrors, r))
		return
	}

	timeLimit := req.TimeLimitSeconds
	if timeLimit <= 0 {
		timeLimit = 30
	}

	optionsJSON, _ := json.Marshal(req.Options)
	question := &models.Question{
		CourseID:         courseID,
		CreatorID:        middleware.GetUserID(r.Context()),
		Text:             req.Text,
		OptionsJSON:      optionsJSON,
		CorrectIndex:     req.CorrectIndex,
		TimeLimitSeconds: timeLimit,
		Source:           "manual",
	}

	if err := h.questionRepo.Create(r.Context(), question); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to create question", r))
		return
	}

	writeJSON(w, http.StatusCreated, question)
}

func (h *QuestionHandler) ListByCourse(w http.ResponseWriter, r *http.Request) {
	courseID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid course ID", r))
		return
	}

	if _, ok := h.requireOwnedCourse(w, r, courseID); !ok {
		return
	}

	questions, err := h.questionRepo.ListByCourse(r.Context(), courseID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to list questions", r))
		return
	}

	if questions == nil {
		questions = []*models.Question{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"questions": questions})
}

func (h *QuestionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid question ID", r))
		return
	}

	question, err := h.questionRepo.GetByID(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Question not found", r))
		return
	}

	if _, ok := h.requireOwnedCourse(w, r, question.CourseID); !ok {
		return
	}

	if err := h.questionRepo.Delete(r.Context(), id); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to delete question", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Question deleted"})
}

// Generate queues AI question generation from a ready material.
func (h *QuestionHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req models.GenerateQuestionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	material, err := h.materialRepo.GetByID(r.Context(), req.MaterialID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Material not found", r))
		return
	}

	if _, ok := h.requireOwnedCourse(w, r, material.CourseID); !ok {
		return
	}

	if material.Status != "ready" {
		writeJSON(w, http.StatusConflict, errorResp("CONFLICT", "Material text is not extracted yet", r))
		return
	}

	configJSON, _ := json.Marshal(req)
	job := &models.Job{
		UserID:      middleware.GetUserID(r.Context()),
		Type:        models.JobQuestionGeneration,
		ReferenceID: material.ID,
		ConfigJSON:  configJSON,
	}

	if err := h.jobRepo.Create(r.Context(), job); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to create job", r))
		return
	}

	if err := worker.Enqueue(r.Context(), h.redis, job); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to enqueue job", r))
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_id": job.ID,
		"status": job.Status,
	})
}

func (h *QuestionHandler) requireOwnedCourse(w http.ResponseWriter, r *http.Request, courseID uuid.UUID) (*models.Course, bool) {
	course, err := h.courseRepo.GetByID(r.Context(), courseID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Course not found", r))
		return nil, false
	}

	if course.InstructorID != middleware.GetUserID(r.Context()) {
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", "You do not own this course", r))
		return nil, false
	}

	return course, true
}
