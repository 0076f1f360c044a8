package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	CategoryIndia         = "India"
	CategoryInternational = "International"
	CategorySport         = "Sport"
	CategoryEntertainment = "Entertainment"
)

var Categories = []string{CategoryIndia, CategoryInternational, CategorySport, CategoryEntertainment}

type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

// News article. At most one of image or video is attached at a time
type News struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	ImageURL    *string   `json:"image_url"`
	ImagePath   *string   `json:"image_path"`
	VideoURL    *string   `json:"video_url"`
	VideoPath   *string   `json:"video_path"`
	CreatedAt   time.Time `json:"created_at"`
}

// MediaPaths returns object paths referenced by the article
func (n *News) MediaPaths() []string {
	paths := make([]string, 0, 2)
	if n.ImagePath != nil && *n.ImagePath != "" {
		paths = append(paths, *n.ImagePath)
	}
	if n.VideoPath != nil && *n.VideoPath != "" {
		paths = append(paths, *n.VideoPath)
	}
	return paths
}

// Reference to uploaded media object
type MediaRef struct {
	Kind MediaKind
	URL  string
	Path string
}
