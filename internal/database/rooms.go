package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"daimaescape/internal/config"
	"daimaescape/internal/models"
)

const roomColumns = `r.id, r.name, r.slug, r.room_type, COALESCE(r.villa_code, ''), COALESCE(r.description, ''),
	r.price_per_night, r.discount_percent, r.max_guests, r.bedrooms, COALESCE(r.bed_type, ''),
	COALESCE(r.amenities, ''), r.is_available, r.is_featured, r.rating, r.created_at, r.updated_at`

// blockingOverlap matches bookings of room r that hold a night of [?, ?).
const blockingOverlap = `SELECT 1 FROM bookings b
	WHERE b.room_id = r.id
	  AND b.status IN ('confirmed', 'checked_in')
	  AND b.check_in < ? AND b.check_out > ?`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoom(s rowScanner) (*models.Room, error) {
	var (
		r         models.Room
		roomType  string
		amenities string
	)
	if err := s.Scan(
		&r.ID, &r.Name, &r.Slug, &roomType, &r.VillaCode, &r.Description,
		&r.PricePerNight, &r.DiscountPercent, &r.MaxGuests, &r.Bedrooms, &r.BedType,
		&amenities, &r.IsAvailable, &r.IsFeatured, &r.Rating, &r.CreatedAt, &r.UpdatedAt,
	); err != nil {
		return nil, err
	}
	r.Type = models.RoomType(roomType)
	if amenities != "" {
		if err := json.Unmarshal([]byte(amenities), &r.Amenities); err != nil {
			return nil, fmt.Errorf("decode amenities of room %d: %w", r.ID, err)
		}
	}
	return &r, nil
}

// SyncRoomsFromConfig applies rooms.yaml to the database.
// Rooms are upserted by slug, their galleries replaced, and rooms missing
// from the file are marked unavailable so existing bookings keep their room.
func (db *DB) SyncRoomsFromConfig(ctx context.Context, cfg *config.RoomsConfig) error {
	if cfg == nil {
		return fmt.Errorf("rooms config is nil")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	slugs := make([]any, 0, len(cfg.Rooms))

	for _, room := range cfg.ToModels() {
		amenities, err := json.Marshal(room.Amenities)
		if err != nil {
			return err
		}

		var id int64
		err = tx.QueryRowContext(ctx, `
			INSERT INTO rooms (name, slug, room_type, villa_code, description, price_per_night,
				discount_percent, max_guests, bedrooms, bed_type, amenities, is_available, is_featured,
				rating, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(slug) DO UPDATE SET
				name = excluded.name,
				room_type = excluded.room_type,
				villa_code = excluded.villa_code,
				description = excluded.description,
				price_per_night = excluded.price_per_night,
				discount_percent = excluded.discount_percent,
				max_guests = excluded.max_guests,
				bedrooms = excluded.bedrooms,
				bed_type = excluded.bed_type,
				amenities = excluded.amenities,
				is_available = excluded.is_available,
				is_featured = excluded.is_featured,
				rating = excluded.rating,
				updated_at = excluded.updated_at
			RETURNING id`,
			room.Name, room.Slug, string(room.Type), room.VillaCode, room.Description, room.PricePerNight,
			room.DiscountPercent, room.MaxGuests, room.Bedrooms, room.BedType, string(amenities),
			room.IsAvailable, room.IsFeatured, room.Rating, now, now,
		).Scan(&id)
		if err != nil {
			return fmt.Errorf("sync room %s: %w", room.Slug, err)
		}
		slugs = append(slugs, room.Slug)

		if _, err := tx.ExecContext(ctx, `DELETE FROM room_images WHERE room_id = ?`, id); err != nil {
			return fmt.Errorf("sync room %s images: %w", room.Slug, err)
		}
		for _, img := range room.Images {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO room_images (room_id, url, caption, is_primary, sort_order)
				VALUES (?, ?, ?, ?, ?)`,
				id, img.URL, img.Caption, img.IsPrimary, img.SortOrder,
			); err != nil {
				return fmt.Errorf("sync room %s images: %w", room.Slug, err)
			}
		}
	}

	// Disable rooms that disappeared from the catalog.
	if len(slugs) > 0 {
		query := `UPDATE rooms SET is_available = 0, updated_at = ? WHERE slug NOT IN (` + placeholders(len(slugs)) + `)`
		args := append([]any{now}, slugs...)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("disable removed rooms: %w", err)
		}
	}

	return tx.Commit()
}

// GetRoom returns a room with its gallery.
func (db *DB) GetRoom(ctx context.Context, id int64) (*models.Room, error) {
	row := db.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM rooms r WHERE r.id = ?`, id)
	return db.getRoom(ctx, row, fmt.Sprintf("room %d", id))
}

// GetRoomBySlug returns a room by its URL slug.
func (db *DB) GetRoomBySlug(ctx context.Context, slug string) (*models.Room, error) {
	row := db.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM rooms r WHERE r.slug = ?`, slug)
	return db.getRoom(ctx, row, "room "+slug)
}

func (db *DB) getRoom(ctx context.Context, row *sql.Row, what string) (*models.Room, error) {
	room, err := scanRoom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", what, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	rooms := []models.Room{*room}
	if err := db.attachImages(ctx, rooms); err != nil {
		return nil, err
	}
	return &rooms[0], nil
}

// ListRooms returns rooms matching the filter, featured rooms first.
func (db *DB) ListRooms(ctx context.Context, f models.RoomFilter) ([]models.Room, error) {
	var (
		where []string
		args  []any
	)
	if f.OnlyEnabled {
		where = append(where, "r.is_available = 1")
	}
	if f.Type != "" {
		where = append(where, "r.room_type = ?")
		args = append(args, string(f.Type))
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		where = append(where, "(r.name LIKE ? OR r.description LIKE ?)")
		like := "%" + s + "%"
		args = append(args, like, like)
	}
	if f.MinPrice != nil {
		where = append(where, "CAST(r.price_per_night AS REAL) >= ?")
		args = append(args, f.MinPrice.InexactFloat64())
	}
	if f.MaxPrice != nil {
		where = append(where, "CAST(r.price_per_night AS REAL) <= ?")
		args = append(args, f.MaxPrice.InexactFloat64())
	}

	query := `SELECT ` + roomColumns + ` FROM rooms r`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY r.is_featured DESC, r.name ASC"

	return db.queryRooms(ctx, query, args...)
}

// ListAvailableRooms returns enabled rooms that fit the party and hold no
// blocking booking during the stay, cheapest first.
func (db *DB) ListAvailableRooms(ctx context.Context, f models.AvailableRoomFilter) ([]models.Room, error) {
	query := `SELECT ` + roomColumns + ` FROM rooms r
		WHERE r.is_available = 1
		  AND r.max_guests >= ?
		  AND NOT EXISTS (` + blockingOverlap + `)
		ORDER BY CAST(r.price_per_night AS REAL) ASC, r.name ASC`

	return db.queryRooms(ctx, query,
		f.PartySize,
		f.CheckOut.Format(models.DateLayout),
		f.CheckIn.Format(models.DateLayout),
	)
}

// SimilarRooms returns other enabled rooms of the same type, best rated first.
func (db *DB) SimilarRooms(ctx context.Context, room *models.Room, limit int) ([]models.Room, error) {
	return db.queryRooms(ctx, `SELECT `+roomColumns+` FROM rooms r
		WHERE r.room_type = ? AND r.id != ? AND r.is_available = 1
		ORDER BY CAST(r.rating AS REAL) DESC, r.name ASC
		LIMIT ?`, string(room.Type), room.ID, limit)
}

// FeaturedRooms returns up to limit featured rooms, falling back to any
// enabled room when nothing is featured.
func (db *DB) FeaturedRooms(ctx context.Context, limit int) ([]models.Room, error) {
	rooms, err := db.queryRooms(ctx, `SELECT `+roomColumns+` FROM rooms r
		WHERE r.is_featured = 1 AND r.is_available = 1
		ORDER BY r.name ASC LIMIT ?`, limit)
	if err != nil || len(rooms) > 0 {
		return rooms, err
	}

	return db.queryRooms(ctx, `SELECT `+roomColumns+` FROM rooms r
		WHERE r.is_available = 1
		ORDER BY r.name ASC LIMIT ?`, limit)
}

func (db *DB) queryRooms(ctx context.Context, query string, args ...any) ([]models.Room, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []models.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, *room)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := db.attachImages(ctx, rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

func (db *DB) attachImages(ctx context.Context, rooms []models.Room) error {
	if len(rooms) == 0 {
		return nil
	}

	index := make(map[int64]int, len(rooms))
	ids := make([]any, 0, len(rooms))
	for i, r := range rooms {
		index[r.ID] = i
		ids = append(ids, r.ID)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT room_id, url, COALESCE(caption, ''), is_primary, sort_order
		FROM room_images
		WHERE room_id IN (`+placeholders(len(ids))+`)
		ORDER BY room_id, sort_order, id`, ids...)
	if err != nil {
		return fmt.Errorf("load room images: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			roomID int64
			img    models.RoomImage
		)
		if err := rows.Scan(&roomID, &img.URL, &img.Caption, &img.IsPrimary, &img.SortOrder); err != nil {
			return err
		}
		i := index[roomID]
		rooms[i].Images = append(rooms[i].Images, img)
	}
	return rows.Err()
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
