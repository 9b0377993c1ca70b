package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	"classview-backend/internal/models"
	"classview-backend/internal/repository"
	"classview-backend/internal/services"
)

// Pool consumes background jobs from Redis queues: material text extraction,
// AI question generation, and session report building.
type Pool struct {
	redis        *redis.Client
	questionGen  *services.QuestionGenService
	youtube      *services.YouTubeService
	fileExtract  *services.FileExtractService
	jobRepo      *repository.JobRepo
	materialRepo *repository.MaterialRepo
	reportRepo   *repository.ReportRepo
	storagePath  string
	workerCount  int
	stopChan     chan struct{}
}

func NewPool(
	redisClient *redis.Client,
	questionGen *services.QuestionGenService,
	youtube *services.YouTubeService,
	fileExtract *services.FileExtractService,
	jobRepo *repository.JobRepo,
	materialRepo *repository.MaterialRepo,
	reportRepo *repository.ReportRepo,
	storagePath string,
	workerCount int,
) *Pool {
	return &Pool{
		redis:        redisClient,
		questionGen:  questionGen,
		youtube:      youtube,
		fileExtract:  fileExtract,
		jobRepo:      jobRepo,
		materialRepo: materialRepo,
		reportRepo:   reportRepo,
		storagePath:  storagePath,
		workerCount:  workerCount,
		stopChan:     make(chan struct{}),
	}
}

func (p *Pool) Start() {
	queues := []string{
		"queue:" + models.JobMaterialExtraction,
		"queue:" + models.JobQuestionGeneration,
		"queue:" + models.JobReportGeneration,
	}

	for i := 0; i < p.workerCount; i++ {
		go p.worker(i, queues)
	}

	log.Printf("Started %d worker goroutines", p.workerCount)
}

func (p *Pool) Stop() {
	close(p.stopChan)
}

// Enqueue pushes a persisted job onto its Redis queue.
func Enqueue(ctx context.Context, redisClient *redis.Client, job *models.Job) error {
	jobBytes, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	return redisClient.LPush(ctx, "queue:"+job.Type, string(jobBytes)).Err()
}

func (p *Pool) worker(id int, queues []string) {
	for {
		select {
		case <-p.stopChan:
			log.Printf("Worker %d shutting down", id)
			return
		default:
		}

		ctx := context.Background()

		// BLPOP with 30s timeout
		result, err := p.redis.BLPop(ctx, 30*time.Second, queues...).Result()
		if err != nil {
			continue // Timeout or error, retry
		}

		if len(result) < 2 {
			continue
		}

		var job models.Job
		if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
			log.Printf("Worker %d: failed to parse job: %v", id, err)
			continue
		}

		// Try to acquire lock
		lockKey := fmt.Sprintf("job_lock:%s", job.ID.String())
		locked, err := p.redis.SetNX(ctx, lockKey, "1", 10*time.Minute).Result()
		if err != nil || !locked {
			continue // Another worker has this job
		}

		// Canceled while queued
		if current, err := p.jobRepo.GetByID(ctx, job.ID); err == nil && current.Status == "canceled" {
			log.Printf("Worker %d: job %s was canceled, skipping", id, job.ID)
			p.redis.Del(ctx, lockKey)
			continue
		}

		log.Printf("Worker %d: processing job %s (type: %s)", id, job.ID, job.Type)

		p.jobRepo.UpdateStatus(ctx, job.ID, "processing")

		var processErr error
		switch job.Type {
		case models.JobMaterialExtraction:
			processErr = p.processMaterial(ctx, &job)
		case models.JobQuestionGeneration:
			processErr = p.processQuestionGeneration(ctx, &job)
		case models.JobReportGeneration:
			processErr = p.processReport(ctx, &job)
		default:
			processErr = fmt.Errorf("unknown job type: %s", job.Type)
		}

		if processErr != nil {
			p.handleFailure(ctx, &job, processErr)
		} else {
			p.handleSuccess(ctx, &job)
		}

		// Release lock
		p.redis.Del(ctx, lockKey)
	}
}

// processMaterial extracts plain text from an uploaded file or a YouTube
// recording so question generation can run against it.
func (p *Pool) processMaterial(ctx context.Context, job *models.Job) error {
	material, err := p.materialRepo.GetByID(ctx, job.ReferenceID)
	if err != nil {
		return fmt.Errorf("failed to get material: %w", err)
	}

	p.materialRepo.UpdateStatus(ctx, material.ID, "processing")

	switch material.Kind {
	case "youtube":
		if material.SourceURL == nil {
			p.materialRepo.UpdateStatus(ctx, material.ID, "failed")
			return fmt.Errorf("youtube material has no source URL")
		}

		videoID, err := services.ExtractVideoID(*material.SourceURL)
		if err != nil {
			p.materialRepo.UpdateStatus(ctx, material.ID, "failed")
			return err
		}

		transcript, transcriptErr := p.youtube.GetTranscript(videoID)
		if transcriptErr != nil {
			// STT fallback via Gemini multimodal audio transcription
			audioBytes, mimeType, audioErr := p.youtube.DownloadAudio(*material.SourceURL)
			if audioErr != nil {
				p.materialRepo.UpdateStatus(ctx, material.ID, "failed")
				return fmt.Errorf("transcript extraction failed for video %s: %v; audio fallback download failed: %w", videoID, transcriptErr, audioErr)
			}

			transcribed, transcribeErr := p.questionGen.TranscribeAudio(ctx, audioBytes, mimeType)
			if transcribeErr != nil {
				p.materialRepo.UpdateStatus(ctx, material.ID, "failed")
				return fmt.Errorf("transcript extraction failed for video %s: %v; STT fallback transcription failed: %w", videoID, transcriptErr, transcribeErr)
			}

			transcript = transcribed
		}

		if err := p.materialRepo.UpdateText(ctx, material.ID, transcript); err != nil {
			p.materialRepo.UpdateStatus(ctx, material.ID, "failed")
			return fmt.Errorf("failed to save transcript: %w", err)
		}

		log.Printf("Fetched transcript for video %s (%d chars)", videoID, len(transcript))

	case "file":
		if material.FilePath == nil || *material.FilePath == "" {
			p.materialRepo.UpdateStatus(ctx, material.ID, "failed")
			return fmt.Errorf("file material has no file path")
		}

		fullPath := filepath.Join(p.storagePath, *material.FilePath)
		extracted, err := p.fileExtract.ExtractTextFromPath(fullPath)
		if err != nil {
			p.materialRepo.UpdateStatus(ctx, material.ID, "failed")
			return fmt.Errorf("failed to extract text from %s: %w", fullPath, err)
		}

		if err := p.materialRepo.UpdateText(ctx, material.ID, extracted); err != nil {
			p.materialRepo.UpdateStatus(ctx, material.ID, "failed")
			return fmt.Errorf("failed to save extracted text: %w", err)
		}

		log.Printf("Extracted text for material %s (%d chars)", material.ID, len(extracted))

	default:
		p.materialRepo.UpdateStatus(ctx, material.ID, "failed")
		return fmt.Errorf("unknown material kind: %s", material.Kind)
	}

	return nil
}

func (p *Pool) processQuestionGeneration(ctx context.Context, job *models.Job) error {
	created, err := p.questionGen.GenerateQuestions(ctx, job)
	if err != nil {
		return err
	}
	log.Printf("Generated %d questions for job %s", created, job.ID)
	return nil
}

// processReport builds the session report and caches the JSON in Redis so the
// report endpoint serves ended sessions without re-aggregating.
func (p *Pool) processReport(ctx context.Context, job *models.Job) error {
	report, err := p.reportRepo.BuildSessionReport(ctx, job.ReferenceID)
	if err != nil {
		return fmt.Errorf("failed to build session report: %w", err)
	}

	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	cacheKey := "session_report:" + job.ReferenceID.String()
	if err := p.redis.Set(ctx, cacheKey, string(reportJSON), 24*time.Hour).Err(); err != nil {
		return fmt.Errorf("failed to cache report: %w", err)
	}

	return nil
}

func (p *Pool) handleSuccess(ctx context.Context, job *models.Job) {
	p.jobRepo.UpdateStatus(ctx, job.ID, "completed")
	log.Printf("Job %s completed successfully", job.ID)
}

func (p *Pool) handleFailure(ctx context.Context, job *models.Job, err error) {
	job.RetryCount++
	errMsg := err.Error()

	if job.RetryCount < job.MaxRetries {
		log.Printf("Job %s failed (attempt %d): %s, retrying", job.ID, job.RetryCount, errMsg)
		p.jobRepo.UpdateStatus(ctx, job.ID, "pending")
		p.jobRepo.UpdateError(ctx, job.ID, errMsg, job.RetryCount)

		// Re-queue after backoff
		jobBytes, _ := json.Marshal(job)
		backoff := time.Duration(1<<uint(job.RetryCount)) * time.Second
		time.AfterFunc(backoff, func() {
			p.redis.LPush(context.Background(), "queue:"+job.Type, string(jobBytes))
		})
	} else {
		log.Printf("Job %s failed permanently: %s", job.ID, errMsg)
		p.jobRepo.UpdateStatus(ctx, job.ID, "failed")
		p.jobRepo.UpdateError(ctx, job.ID, errMsg, job.RetryCount)
	}
}
