// Package meme publishes uploaded images and serves the meme feed.
package meme

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Meme is a published image record.
type Meme struct {
	ID        int64     `json:"id"`
	ImageURL  string    `json:"imageUrl"`
	CreatedBy *string   `json:"createdBy,omitempty"`
	LikeCount int       `json:"likeCount"`
	CreatedAt time.Time `json:"createdAt"`
}

// Repository handles all meme database operations.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new Repository with the given connection pool.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Create inserts a new meme with zero likes and returns the stored row.
func (r *Repository) Create(ctx context.Context, imageURL string, createdBy *string) (*Meme, error) {
	m := &Meme{}
	err := r.db.QueryRow(ctx,
		`INSERT INTO memes (image_url, created_by, like_count)
		 VALUES ($1, $2, 0)
		 RETURNING id, image_url, created_by, like_count, created_at`,
		imageURL, createdBy,
	).Scan(&m.ID, &m.ImageURL, &m.CreatedBy, &m.LikeCount, &m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert meme: %w", err)
	}
	return m, nil
}

// List returns up to limit memes with id below before (all when before is
// nil), newest first.
func (r *Repository) List(ctx context.Context, before *int64, limit int) ([]Meme, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, image_url, created_by, like_count, created_at
		 FROM memes
		 WHERE ($1::bigint IS NULL OR id < $1)
		 ORDER BY id DESC
		 LIMIT $2`,
		before, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list memes: %w", err)
	}

	memes, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Meme, error) {
		var m Meme
		err := row.Scan(&m.ID, &m.ImageURL, &m.CreatedBy, &m.LikeCount, &m.CreatedAt)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan memes: %w", err)
	}
	return memes, nil
}

// GetByID fetches a meme by id.
func (r *Repository) GetByID(ctx context.Context, id int64) (*Meme, error) {
	m := &Meme{}
	err := r.db.QueryRow(ctx,
		`SELECT id, image_url, created_by, like_count, created_at
		 FROM memes WHERE id = $1`,
		id,
	).Scan(&m.ID, &m.ImageURL, &m.CreatedBy, &m.LikeCount, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get meme by id: %w", err)
	}
	return m, nil
}

// Delete removes a meme and returns the image URL it referenced.
func (r *Repository) Delete(ctx context.Context, id int64) (string, error) {
	var imageURL string
	err := r.db.QueryRow(ctx,
		`DELETE FROM memes WHERE id = $1 RETURNING image_url`,
		id,
	).Scan(&imageURL)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("delete meme: %w", err)
	}
	return imageURL, nil
}
