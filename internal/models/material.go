package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Material struct {
	ID            uuid.UUID       `json:"id"`
	CourseID      uuid.UUID       `json:"course_id"`
	UploaderID    uuid.UUID       `json:"uploader_id"`
	Title         string          `json:"title"`
	Kind          string          `json:"kind"`   // "file" | "youtube"
	Status        string          `json:"status"` // "pending" | "processing" | "ready" | "failed"
	SourceURL     *string         `json:"source_url"`
	FilePath      *string         `json:"file_path"`
	ExtractedText *string         `json:"-"`
	MetadataJSON  json.RawMessage `json:"metadata"`
	CreatedAt     time.Time       `json:"created_at"`
}

type AttachYouTubeRequest struct {
	CourseID uuid.UUID `json:"course_id"`
	URL      string    `json:"url"`
}

type YouTubeMetadata struct {
	VideoID      string `json:"video_id"`
	Title        string `json:"title"`
	ChannelName  string `json:"channel_name"`
	ThumbnailURL string `json:"thumbnail_url"`
	Duration     int    `json:"duration"`
}
