package domain

import (
	"encoding/json"
	"time"
)

const (
	DifficultyEasy      = "easy"
	DifficultyMedium    = "medium"
	DifficultyDifficult = "difficult"
)

const DefaultRatingsAverage = 4.5

// GeoPoint is a GeoJSON point. Coordinates are [lng, lat].
type GeoPoint struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
	Address     string    `json:"address,omitempty"`
	Description string    `json:"description,omitempty"`
	Day         int       `json:"day,omitempty"`
}

func (p GeoPoint) Lng() float64 { return p.Coordinates[0] }
func (p GeoPoint) Lat() float64 { return p.Coordinates[1] }

type Tour struct {
	ID              int64       `json:"id" db:"id"`
	Name            string      `json:"name" db:"name" validate:"required,min=10,max=40"`
	Slug            string      `json:"slug" db:"slug"`
	Duration        int         `json:"duration" db:"duration" validate:"required,gt=0"`
	MaxGroupSize    int         `json:"maxGroupSize" db:"max_group_size" validate:"required,gt=0"`
	Difficulty      string      `json:"difficulty" db:"difficulty" validate:"required,oneof=easy medium difficult"`
	RatingsAverage  float64     `json:"ratingsAverage" db:"ratings_average" validate:"gte=1,lte=5"`
	RatingsQuantity int         `json:"ratingsQuantity" db:"ratings_quantity" validate:"gte=0"`
	Price           float64     `json:"price" db:"price" validate:"required,gt=0"`
	PriceDiscount   *float64    `json:"priceDiscount,omitempty" db:"price_discount" validate:"omitempty,gte=0,ltfield=Price"`
	Summary         string      `json:"summary" db:"summary" validate:"required"`
	Description     string      `json:"description" db:"description"`
	ImageCover      string      `json:"imageCover" db:"image_cover" validate:"required"`
	Images          []string    `json:"images" db:"images"`
	StartDates      []time.Time `json:"startDates" db:"start_dates"`
	SecretTour      bool        `json:"secretTour,omitempty" db:"secret_tour"`
	StartLocation   *GeoPoint   `json:"startLocation,omitempty" db:"start_location"`
	Locations       []GeoPoint  `json:"locations" db:"locations" validate:"dive"`
	Guides          []int64     `json:"guides" db:"guides"`
	CreatedAt       time.Time   `json:"createdAt" db:"created_at"`

	GuideDetails []UserSummary `json:"guideDetails,omitempty" db:"-"`
	Reviews      []Review      `json:"reviews,omitempty" db:"-"`
}

// DurationWeeks is derived, never stored.
func (t Tour) DurationWeeks() float64 {
	return float64(t.Duration) / 7
}

func (t Tour) MarshalJSON() ([]byte, error) {
	type plain Tour
	return json.Marshal(struct {
		plain
		DurationWeeks float64 `json:"durationWeeks"`
	}{plain(t), t.DurationWeeks()})
}

// Normalize fills the non-null array columns so a partial payload never
// writes NULL into them.
func (t *Tour) Normalize() {
	if t.StartLocation != nil && t.StartLocation.Type == "" {
		t.StartLocation.Type = "Point"
	}
	for i := range t.Locations {
		if t.Locations[i].Type == "" {
			t.Locations[i].Type = "Point"
		}
	}
	if t.Images == nil {
		t.Images = []string{}
	}
	if t.StartDates == nil {
		t.StartDates = []time.Time{}
	}
	if t.Locations == nil {
		t.Locations = []GeoPoint{}
	}
	if t.Guides == nil {
		t.Guides = []int64{}
	}
}

// TourStats is one row of the difficulty breakdown.
type TourStats struct {
	Difficulty string  `json:"difficulty" db:"difficulty"`
	NumTours   int     `json:"numTours" db:"num_tours"`
	NumRatings int     `json:"numRatings" db:"num_ratings"`
	AvgRating  float64 `json:"avgRating" db:"avg_rating"`
	AvgPrice   float64 `json:"avgPrice" db:"avg_price"`
	MinPrice   float64 `json:"minPrice" db:"min_price"`
	MaxPrice   float64 `json:"maxPrice" db:"max_price"`
}

// MonthlyPlan is one month of tour starts within a year.
type MonthlyPlan struct {
	Month         int      `json:"month" db:"month"`
	NumTourStarts int      `json:"numTourStarts" db:"num_tour_starts"`
	Tours         []string `json:"tours" db:"tours"`
}

type TourDistance struct {
	ID       int64   `json:"id" db:"id"`
	Name     string  `json:"name" db:"name"`
	Distance float64 `json:"distance" db:"distance"`
}
