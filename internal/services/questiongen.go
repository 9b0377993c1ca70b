package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"classview-backend/internal/models"
	"classview-backend/internal/repository"
)

// QuestionGenService turns extracted course material into multiple-choice
// questions via Gemini.
type QuestionGenService struct {
	client       *genai.Client
	model        *genai.GenerativeModel
	questionRepo *repository.QuestionRepo
	materialRepo *repository.MaterialRepo
	rateChan     chan struct{} // Token bucket
}

func NewQuestionGenService(
	apiKey string,
	concurrentReqs int,
	questionRepo *repository.QuestionRepo,
	materialRepo *repository.MaterialRepo,
) (*QuestionGenService, error) {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel("gemini-3-flash-preview")
	model.SetTemperature(0.3)
	model.SetTopP(0.95)

	// Token bucket for rate limiting
	rateChan := make(chan struct{}, concurrentReqs)
	for i := 0; i < concurrentReqs; i++ {
		rateChan <- struct{}{}
	}

	return &QuestionGenService{
		client:       client,
		model:        model,
		questionRepo: questionRepo,
		materialRepo: materialRepo,
		rateChan:     rateChan,
	}, nil
}

func (s *QuestionGenService) Close() {
	s.client.Close()
}

// acquireRate blocks until a rate slot is available
func (s *QuestionGenService) acquireRate(ctx context.Context) error {
	select {
	case <-s.rateChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Minute):
		return fmt.Errorf("timeout waiting for Gemini rate slot")
	}
}

func (s *QuestionGenService) releaseRate() {
	s.rateChan <- struct{}{}
}

// GenerateQuestions runs one question-generation job: load the material text,
// prompt Gemini, validate the result, and persist the questions to the
// material's course bank.
func (s *QuestionGenService) GenerateQuestions(ctx context.Context, job *models.Job) (int, error) {
	if err := s.acquireRate(ctx); err != nil {
		return 0, err
	}
	defer s.releaseRate()

	var config models.GenerateQuestionsRequest
	json.Unmarshal(job.ConfigJSON, &config)

	if config.NumQuestions <= 0 {
		config.NumQuestions = 5
	}
	if config.NumQuestions > 20 {
		config.NumQuestions = 20
	}

	material, err := s.materialRepo.GetByID(ctx, config.MaterialID)
	if err != nil {
		return 0, fmt.Errorf("failed to load material: %w", err)
	}
	if material.ExtractedText == nil || strings.TrimSpace(*material.ExtractedText) == "" {
		return 0, fmt.Errorf("material %s has no extracted text yet", material.ID)
	}

	prompt := buildQuestionPrompt(config, *material.ExtractedText)

	resp, err := s.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return 0, fmt.Errorf("Gemini API error: %w", err)
	}

	for i, cand := range resp.Candidates {
		if cand.FinishReason != genai.FinishReasonStop {
			log.Printf("WARNING: Gemini candidate %d stopped due to %s", i, cand.FinishReason)
		}
	}

	rawText := stripJSONFences(extractText(resp))

	var parsed []generatedQuestion
	if err := json.Unmarshal([]byte(rawText), &parsed); err != nil {
		// Try to extract JSON array
		start := strings.Index(rawText, "[")
		end := strings.LastIndex(rawText, "]")
		if start >= 0 && end > start {
			json.Unmarshal([]byte(rawText[start:end+1]), &parsed)
		}
	}

	valid := validateGeneratedQuestions(parsed)
	if len(valid) == 0 {
		return 0, fmt.Errorf("Gemini returned no usable questions")
	}

	created := 0
	for _, gq := range valid {
		optionsJSON, _ := json.Marshal(gq.Options)
		q := &models.Question{
			CourseID:         material.CourseID,
			CreatorID:        job.UserID,
			Text:             gq.Question,
			OptionsJSON:      optionsJSON,
			CorrectIndex:     gq.CorrectIndex,
			TimeLimitSeconds: 30,
			Source:           "generated",
		}
		if err := s.questionRepo.Create(ctx, q); err != nil {
			return created, fmt.Errorf("failed to store generated question: %w", err)
		}
		created++
	}

	return created, nil
}

// TranscribeAudio uses the Gemini File API to transcribe lecture audio when a
// recording has no caption track.
func (s *QuestionGenService) TranscribeAudio(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if err := s.acquireRate(ctx); err != nil {
		return "", err
	}
	defer s.releaseRate()

	if len(audio) == 0 {
		return "", fmt.Errorf("audio payload is empty")
	}

	file, err := s.client.UploadFile(ctx, "", bytes.NewReader(audio), &genai.UploadFileOptions{
		DisplayName: "lecture-audio",
		MIMEType:    mimeType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload audio to Gemini: %w", err)
	}

	// Ensure remote file is cleaned up
	defer s.client.DeleteFile(context.Background(), file.Name)

	// Wait until file is active
	for i := 0; i < 20; i++ {
		current, getErr := s.client.GetFile(ctx, file.Name)
		if getErr != nil {
			return "", fmt.Errorf("failed to get uploaded file status: %w", getErr)
		}

		if current.State == genai.FileStateActive {
			file = current
			break
		}
		if current.State == genai.FileStateFailed {
			return "", fmt.Errorf("Gemini failed to process uploaded audio file")
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}

	if file.State != genai.FileStateActive {
		return "", fmt.Errorf("audio file did not become active in time")
	}

	prompt := "Transcribe the provided audio verbatim. Return plain text only, without markdown, headers, or explanations."

	resp, err := s.model.GenerateContent(ctx,
		genai.Text(prompt),
		genai.FileData{MIMEType: mimeType, URI: file.URI},
	)
	if err != nil {
		return "", fmt.Errorf("Gemini transcription error: %w", err)
	}

	text := strings.TrimSpace(extractText(resp))
	if text == "" {
		return "", fmt.Errorf("Gemini returned empty transcription")
	}

	return text, nil
}

// Helper functions

type generatedQuestion struct {
	Question     string   `json:"question"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correct_index"`
	Explanation  string   `json:"explanation"`
	Difficulty   string   `json:"difficulty"`
}

func extractText(resp *genai.GenerateContentResponse) string {
	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if t, ok := part.(genai.Text); ok {
					text.WriteString(string(t))
				}
			}
		}
	}
	return text.String()
}

func stripJSONFences(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	return strings.TrimSpace(raw)
}

func buildQuestionPrompt(config models.GenerateQuestionsRequest, content string) string {
	var b strings.Builder

	b.WriteString("You are an expert educational assessor. Generate in-class poll questions based on the following course material.\n\n")
	b.WriteString("CRITICAL: Return ONLY a valid JSON array. No preamble, no markdown, no backticks.\n\n")

	b.WriteString(fmt.Sprintf("Generate exactly %d multiple choice questions.\n", config.NumQuestions))

	difficulty := config.Difficulty
	if difficulty == "" {
		difficulty = "medium"
	}
	b.WriteString(fmt.Sprintf("Difficulty: %s\n", difficulty))

	switch difficulty {
	case "easy":
		b.WriteString("Easy = direct recall from the material.\n")
	case "medium":
		b.WriteString("Medium = application of concepts.\n")
	case "hard":
		b.WriteString("Hard = analysis, synthesis, or inference beyond what is explicitly stated.\n")
	}

	b.WriteString(`
JSON schema per question:
{"question": "string", "options": ["string"], "correct_index": int, "explanation": "string", "difficulty": "easy"|"medium"|"hard"}

Every question must have exactly 4 options. Questions must be answerable in under 30 seconds by a student who followed the material.
`)

	b.WriteString("\n---MATERIAL---\n")
	b.WriteString(content)
	b.WriteString("\n---END---\n")

	return b.String()
}

func validateGeneratedQuestions(questions []generatedQuestion) []generatedQuestion {
	var valid []generatedQuestion
	for _, q := range questions {
		if q.Question == "" || len(q.Options) != 4 {
			continue
		}
		// A bad answer key makes the whole question untrustworthy.
		if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) {
			continue
		}
		valid = append(valid, q)
	}
	return valid
}
