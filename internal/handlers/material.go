package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"classview-backend/internal/middleware"
	"classview-backend/internal/models"
	"classview-backend/internal/repository"
	"classview-backend/internal/services"
	"classview-backend/internal/worker"
)

type MaterialHandler struct {
	materialRepo *repository.MaterialRepo
	courseRepo   *repository.CourseRepo
	jobRepo      *repository.JobRepo
	redis        *redis.Client
	storagePath  string
}

func NewMaterialHandler(
	materialRepo *repository.MaterialRepo,
	courseRepo *repository.CourseRepo,
	jobRepo *repository.JobRepo,
	redisClient *redis.Client,
	storagePath string,
) *MaterialHandler {
	return &MaterialHandler{
		materialRepo: materialRepo,
		courseRepo:   courseRepo,
		jobRepo:      jobRepo,
		redis:        redisClient,
		storagePath:  storagePath,
	}
}

// Upload stores a course file and queues text extraction.
func (h *MaterialHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > 50*1024*1024 { // 50MB
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResp("FILE_TOO_LARGE", "File size exceeds 50MB limit", r))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, 50*1024*1024)

	courseID, err := uuid.Parse(r.FormValue("course_id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid course ID", r))
		return
	}

	course, ok := h.requireOwnedCourse(w, r, courseID)
	if !ok {
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "No file provided", r))
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if ext != ".txt" && ext != ".pdf" && ext != ".docx" {
		writeJSON(w, http.StatusUnsupportedMediaType, errorResp("UNSUPPORTED_FORMAT", "Only .txt, .pdf and .docx files are supported", r))
		return
	}

	relPath := filepath.Join("courses", course.ID.String(), uuid.NewString()+ext)
	fullPath := filepath.Join(h.storagePath, relPath)

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to store file", r))
		return
	}

	dst, err := os.Create(fullPath)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to store file", r))
		return
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		os.Remove(fullPath)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to store file", r))
		return
	}

	userID := middleware.GetUserID(r.Context())
	material := &models.Material{
		CourseID:   course.ID,
		UploaderID: userID,
		Title:      header.Filename,
		Kind:       "file",
		FilePath:   &relPath,
	}

	if err := h.materialRepo.Create(r.Context(), material); err != nil {
		os.Remove(fullPath)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to create material record", r))
		return
	}

	job := h.enqueueExtraction(r, userID, material.ID)

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"material": material,
		"job_id":   job.ID,
	})
}

// AttachYouTube registers a lecture recording link and queues transcript
// extraction. Metadata comes from the oEmbed endpoint, which needs no API key.
func (h *MaterialHandler) AttachYouTube(w http.ResponseWriter, r *http.Request) {
	var req models.AttachYouTubeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	videoID, err := services.ExtractVideoID(req.URL)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid YouTube URL", r))
		return
	}

	course, ok := h.requireOwnedCourse(w, r, req.CourseID)
	if !ok {
		return
	}

	oembedURL := "https://www.youtube.com/oembed?url=https://www.youtube.com/watch?v=" + videoID + "&format=json"
	var oembed struct {
		Title        string `json:"title"`
		AuthorName   string `json:"author_name"`
		ThumbnailURL string `json:"thumbnail_url"`
	}
	if resp, err := http.Get(oembedURL); err == nil && resp.StatusCode == http.StatusOK {
		json.NewDecoder(resp.Body).Decode(&oembed)
		resp.Body.Close()
	}

	if oembed.Title == "" {
		oembed.Title = "YouTube Video: " + videoID
	}
	if oembed.ThumbnailURL == "" {
		oembed.ThumbnailURL = "https://img.youtube.com/vi/" + videoID + "/maxresdefault.jpg"
	}

	metadata := models.YouTubeMetadata{
		VideoID:      videoID,
		Title:        oembed.Title,
		ChannelName:  oembed.AuthorName,
		ThumbnailURL: oembed.ThumbnailURL,
	}
	metaBytes, _ := json.Marshal(metadata)

	userID := middleware.GetUserID(r.Context())
	material := &models.Material{
		CourseID:     course.ID,
		UploaderID:   userID,
		Title:        oembed.Title,
		Kind:         "youtube",
		SourceURL:    &req.URL,
		MetadataJSON: metaBytes,
	}

	if err := h.materialRepo.Create(r.Context(), material); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to create material record", r))
		return
	}

	job := h.enqueueExtraction(r, userID, material.ID)

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"material": material,
		"video_id": videoID,
		"job_id":   job.ID,
	})
}

func (h *MaterialHandler) ListByCourse(w http.ResponseWriter, r *http.Request) {
	courseID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid course ID", r))
		return
	}

	if _, ok := h.requireOwnedCourse(w, r, courseID); !ok {
		return
	}

	materials, err := h.materialRepo.ListByCourse(r.Context(), courseID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to list materials", r))
		return
	}

	if materials == nil {
		materials = []*models.Material{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"materials": materials})
}

func (h *MaterialHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid material ID", r))
		return
	}

	material, err := h.materialRepo.GetByID(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Material not found", r))
		return
	}

	if _, ok := h.requireOwnedCourse(w, r, material.CourseID); !ok {
		return
	}

	writeJSON(w, http.StatusOK, material)
}

func (h *MaterialHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid material ID", r))
		return
	}

	material, err := h.materialRepo.GetByID(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Material not found", r))
		return
	}

	if _, ok := h.requireOwnedCourse(w, r, material.CourseID); !ok {
		return
	}

	if err := h.materialRepo.Delete(r.Context(), id); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to delete material", r))
		return
	}

	if material.FilePath != nil {
		os.Remove(filepath.Join(h.storagePath, *material.FilePath))
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Material deleted"})
}

func (h *MaterialHandler) enqueueExtraction(r *http.Request, userID, materialID uuid.UUID) *models.Job {
	job := &models.Job{
		UserID:      userID,
		Type:        models.JobMaterialExtraction,
		ReferenceID: materialID,
	}
	if err := h.jobRepo.Create(r.Context(), job); err == nil {
		worker.Enqueue(r.Context(), h.redis, job)
	}
	return job
}

func (h *MaterialHandler) requireOwnedCourse(w http.ResponseWriter, r *http.Request, courseID uuid.UUID) (*models.Course, bool) {
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
