package config

import (
	"fmt"
	"os"
	"strings"
	"unicode"

	"daimaescape/internal/models"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// RoomConfig is one villa entry in rooms.yaml.
type RoomConfig struct {
	Name            string        `yaml:"name"`
	Slug            string        `yaml:"slug"`
	Type            string        `yaml:"room_type"`
	VillaCode       string        `yaml:"villa_code"`
	Description     string        `yaml:"description"`
	PricePerNight   string        `yaml:"price_per_night"`
	DiscountPercent int           `yaml:"discount_percent"`
	MaxGuests       int           `yaml:"max_guests"`
	Bedrooms        int           `yaml:"bedrooms"`
	BedType         string        `yaml:"bed_type"`
	Amenities       []string      `yaml:"amenities"`
	IsAvailable     *bool         `yaml:"is_available"`
	IsFeatured      bool          `yaml:"is_featured"`
	Rating          string        `yaml:"rating"`
	Images          []ImageConfig `yaml:"images"`
}

// ImageConfig is a gallery image of a villa.
type ImageConfig struct {
	URL       string `yaml:"url"`
	Caption   string `yaml:"caption"`
	IsPrimary bool   `yaml:"is_primary"`
}

// RoomsConfig is the root configuration for rooms.yaml.
type RoomsConfig struct {
	Rooms []RoomConfig `yaml:"rooms"`
}

// LoadRoomsConfig loads and validates the rooms catalog from a YAML file.
func LoadRoomsConfig(path string) (*RoomsConfig, error) {
	if path == "" {
		path = "configs/rooms.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rooms config: %w", err)
	}

	return ParseRoomsConfig(data)
}

// ParseRoomsConfig parses and validates rooms.yaml content.
func ParseRoomsConfig(data []byte) (*RoomsConfig, error) {
	var cfg RoomsConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse rooms config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate rooms config: %w", err)
	}

	return &cfg, nil
}

func (c *RoomsConfig) applyDefaults() {
	for i := range c.Rooms {
		r := &c.Rooms[i]
		if r.Slug == "" {
			r.Slug = Slugify(r.Name + " " + r.Type)
		}
		if r.Bedrooms == 0 {
			r.Bedrooms = 1
		}
		if r.Rating == "" {
			r.Rating = "5.0"
		}
	}
}

// Validate checks the catalog for errors.
func (c *RoomsConfig) Validate() error {
	if len(c.Rooms) == 0 {
		return fmt.Errorf("no rooms defined")
	}

	slugs := make(map[string]bool)

	for i, r := range c.Rooms {
		if r.Name == "" {
			return fmt.Errorf("room[%d]: name is required", i)
		}
		if slugs[r.Slug] {
			return fmt.Errorf("room[%d]: duplicate slug '%s'", i, r.Slug)
		}
		slugs[r.Slug] = true

		if !models.RoomType(r.Type).Valid() {
			return fmt.Errorf("room[%d]: unknown room_type '%s'", i, r.Type)
		}

		price, err := decimal.NewFromString(r.PricePerNight)
		if err != nil {
			return fmt.Errorf("room[%d]: invalid price_per_night '%s'", i, r.PricePerNight)
		}
		if price.IsNegative() {
			return fmt.Errorf("room[%d]: price_per_night cannot be negative", i)
		}

		if r.DiscountPercent < 0 || r.DiscountPercent > 100 {
			return fmt.Errorf("room[%d]: discount_percent must be 0-100, got %d", i, r.DiscountPercent)
		}
		if r.MaxGuests < 1 {
			return fmt.Errorf("room[%d]: max_guests must be at least 1", i)
		}

		rating, err := decimal.NewFromString(r.Rating)
		if err != nil || rating.IsNegative() || rating.GreaterThan(decimal.NewFromInt(5)) {
			return fmt.Errorf("room[%d]: rating must be between 0 and 5", i)
		}
	}

	return nil
}

// ToModels converts the catalog into room models ready for syncing.
func (c *RoomsConfig) ToModels() []models.Room {
	rooms := make([]models.Room, 0, len(c.Rooms))
	for _, r := range c.Rooms {
		available := true
		if r.IsAvailable != nil {
			available = *r.IsAvailable
		}

		images := make([]models.RoomImage, 0, len(r.Images))
		for i, img := range r.Images {
			images = append(images, models.RoomImage{
				URL:       img.URL,
				Caption:   img.Caption,
				IsPrimary: img.IsPrimary,
				SortOrder: i,
			})
		}

		rooms = append(rooms, models.Room{
			Name:            r.Name,
			Slug:            r.Slug,
			Type:            models.RoomType(r.Type),
			VillaCode:       r.VillaCode,
			Description:     r.Description,
			PricePerNight:   decimal.RequireFromString(r.PricePerNight),
			DiscountPercent: r.DiscountPercent,
			MaxGuests:       r.MaxGuests,
			Bedrooms:        r.Bedrooms,
			BedType:         r.BedType,
			Amenities:       r.Amenities,
			IsAvailable:     available,
			IsFeatured:      r.IsFeatured,
			Rating:          decimal.RequireFromString(r.Rating),
			Images:          images,
		})
	}
	return rooms
}

// String returns a summary of the catalog.
func (c *RoomsConfig) String() string {
	featured := 0
	for _, r := range c.Rooms {
		if r.IsFeatured {
			featured++
		}
	}
	return fmt.Sprintf("RoomsConfig: %d rooms (%d featured)", len(c.Rooms), featured)
}

// Slugify lowercases s and joins its alphanumeric runs with hyphens.
func Slugify(s string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			pendingDash = false
			continue
		}
		pendingDash = true
	}
	return b.String()
}
