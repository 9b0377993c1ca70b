package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Question struct {
	ID               uuid.UUID       `json:"id"`
	CourseID         uuid.UUID       `json:"course_id"`
	CreatorID        uuid.UUID       `json:"creator_id"`
	Text             string          `json:"text"`
	OptionsJSON      json.RawMessage `json:"options"`
	CorrectIndex     int             `json:"correct_index"`
	TimeLimitSeconds int             `json:"time_limit_seconds"`
	Source           string          `json:"source"` // "manual" | "generated"
	CreatedAt        time.Time       `json:"created_at"`
}

// Options decodes OptionsJSON into the ordered option list.
func (q *Question) Options() []string {
	var opts []string
	json.Unmarshal(q.OptionsJSON, &opts)
	return opts
}

type CreateQuestionRequest struct {
	Text             string   `json:"text"`
	Options          []string `json:"options"`
	CorrectIndex     int      `json:"correct_index"`
	TimeLimitSeconds int      `json:"time_limit_seconds"`
}

type GenerateQuestionsRequest struct {
	MaterialID   uuid.UUID `json:"material_id"`
	NumQuestions int       `json:"num_questions"`
	Difficulty   string    `json:"difficulty"`
}
