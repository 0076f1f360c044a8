package models

import (
	"time"

	"github.com/google/uuid"
)

var Cities = []string{"Bhopal", "Sehore", "Vidisha", "Rajgarh", "Narmadapuram"}

type Epaper struct {
	ID          uuid.UUID `json:"id"`
	City        string    `json:"city"`
	EditionDate time.Time `json:"edition_date"`
	Title       string    `json:"title"`
	Path        string    `json:"path"`
	URL         string    `json:"url"`
	CreatedAt   time.Time `json:"created_at"`
}
