package service

import (
	"context"
	"fmt"
	"strings"

	"daimaescape/internal/cache"
	"daimaescape/internal/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	RoomsPerPage  = 6
	FeaturedLimit = 3
	SimilarLimit  = 3
)

// RoomQuery is a guest room search. Page is 1-based.
type RoomQuery struct {
	Type     models.RoomType
	Search   string
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
	Page     int
}

func (q RoomQuery) cacheKey() string {
	var minPrice, maxPrice string
	if q.MinPrice != nil {
		minPrice = q.MinPrice.String()
	}
	if q.MaxPrice != nil {
		maxPrice = q.MaxPrice.String()
	}
	return cache.RoomsKey("list", string(q.Type), strings.ToLower(strings.TrimSpace(q.Search)), minPrice, maxPrice)
}

type RoomPage struct {
	Rooms      []models.Room `json:"rooms"`
	Page       int           `json:"page"`
	TotalPages int           `json:"total_pages"`
	Total      int           `json:"total"`
}

type RoomDetail struct {
	Room    *models.Room  `json:"room"`
	Similar []models.Room `json:"similar_rooms"`
}

// Catalog serves the read-only room listings, cached in Redis when configured.
type Catalog struct {
	rooms  RoomRepository
	cache  *cache.Cache
	logger zerolog.Logger
}

func NewCatalog(rooms RoomRepository, c *cache.Cache, logger *zerolog.Logger) *Catalog {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "catalog").Logger()
	}
	return &Catalog{rooms: rooms, cache: c, logger: l}
}

// ListRooms returns one page of enabled rooms, featured first then by name.
// Pages past the end return the last page.
func (c *Catalog) ListRooms(ctx context.Context, q RoomQuery) (RoomPage, error) {
	if q.Type != "" && !q.Type.Valid() {
		return RoomPage{}, fmt.Errorf("%w: unknown room type %q", models.ErrInvalidInput, q.Type)
	}

	key := q.cacheKey()
	var rooms []models.Room
	if !c.cache.Get(ctx, key, &rooms) {
		var err error
		rooms, err = c.rooms.ListRooms(ctx, models.RoomFilter{
			Type:        q.Type,
			Search:      q.Search,
			MinPrice:    q.MinPrice,
			MaxPrice:    q.MaxPrice,
			OnlyEnabled: true,
		})
		if err != nil {
			return RoomPage{}, err
		}
		c.cache.Set(ctx, key, rooms)
	}

	return paginate(rooms, q.Page), nil
}

func paginate(rooms []models.Room, page int) RoomPage {
	total := len(rooms)
	pages := (total + RoomsPerPage - 1) / RoomsPerPage
	if pages == 0 {
		pages = 1
	}
	if page < 1 {
		page = 1
	}
	if page > pages {
		page = pages
	}

	start := (page - 1) * RoomsPerPage
	end := start + RoomsPerPage
	if end > total {
		end = total
	}
	out := make([]models.Room, 0, end-start)
	out = append(out, rooms[start:end]...)

	return RoomPage{Rooms: out, Page: page, TotalPages: pages, Total: total}
}

func (c *Catalog) Featured(ctx context.Context) ([]models.Room, error) {
	key := cache.RoomsKey("featured")
	var rooms []models.Room
	if c.cache.Get(ctx, key, &rooms) {
		return rooms, nil
	}
	rooms, err := c.rooms.FeaturedRooms(ctx, FeaturedLimit)
	if err != nil {
		return nil, err
	}
	c.cache.Set(ctx, key, rooms)
	return rooms, nil
}

// RoomDetail returns an enabled room by slug with a few rooms of the same type.
func (c *Catalog) RoomDetail(ctx context.Context, slug string) (*RoomDetail, error) {
	key := cache.RoomsKey("detail", slug)
	var detail RoomDetail
	if c.cache.Get(ctx, key, &detail) {
		return &detail, nil
	}

	room, err := c.rooms.GetRoomBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if !room.IsAvailable {
		return nil, fmt.Errorf("room %s: %w", slug, models.ErrNotFound)
	}
	similar, err := c.rooms.SimilarRooms(ctx, room, SimilarLimit)
	if err != nil {
		return nil, err
	}

	detail = RoomDetail{Room: room, Similar: similar}
	c.cache.Set(ctx, key, detail)
	return &detail, nil
}

// Invalidate drops cached listings after the catalog changed.
func (c *Catalog) Invalidate(ctx context.Context) {
	n, err := c.cache.InvalidateRooms(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("room cache invalidation failed")
		return
	}
	if n > 0 {
		c.logger.Info().Int("keys", n).Msg("room cache invalidated")
	}
}
