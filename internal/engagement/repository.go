package engagement

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	UpsertVisitor(ctx context.Context, sessionID string, seen time.Time) error
	MarkVisitorOffline(ctx context.Context, sessionID string, seen time.Time) error
	MarkStaleOffline(ctx context.Context, cutoff time.Time) (int64, error)
	ListOnlineSessionIDs(ctx context.Context) ([]string, error)

	InsertFeedback(ctx context.Context, t FeedbackType) error
	CountFeedbackByType(ctx context.Context) (map[FeedbackType]int, error)

	InsertDetailedFeedback(ctx context.Context, d DetailedFeedback) (*Testimonial, error)
	// ListTestimonials returns the newest first; limit <= 0 means all.
	ListTestimonials(ctx context.Context, limit int) ([]Testimonial, error)
}

type postgresRepo struct {
	db  *sql.DB
	now func() time.Time
}

func NewRepository(db *sql.DB) Repository {
	return &postgresRepo{db: db, now: time.Now}
}

func (r *postgresRepo) UpsertVisitor(ctx context.Context, sessionID string, seen time.Time) error {
	query := `
		INSERT INTO visitors (session_id, is_online, last_seen)
		VALUES ($1, TRUE, $2)
		ON CONFLICT (session_id) DO UPDATE SET
			is_online = TRUE,
			last_seen = $2
	`
	if _, err := r.db.ExecContext(ctx, query, sessionID, seen); err != nil {
		return fmt.Errorf("upsert visitor: %w", err)
	}
	return nil
}

func (r *postgresRepo) MarkVisitorOffline(ctx context.Context, sessionID string, seen time.Time) error {
	query := `UPDATE visitors SET is_online = FALSE, last_seen = $2 WHERE session_id = $1`
	if _, err := r.db.ExecContext(ctx, query, sessionID, seen); err != nil {
		return fmt.Errorf("mark visitor offline: %w", err)
	}
	return nil
}

// MarkStaleOffline flips visitors whose last heartbeat is older than cutoff.
func (r *postgresRepo) MarkStaleOffline(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `UPDATE visitors SET is_online = FALSE WHERE is_online = TRUE AND last_seen < $1`
	res, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("mark stale visitors offline: %w", err)
	}
	return res.RowsAffected()
}

func (r *postgresRepo) ListOnlineSessionIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT session_id FROM visitors WHERE is_online = TRUE`)
	if err != nil {
		return nil, fmt.Errorf("list online visitors: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *postgresRepo) InsertFeedback(ctx context.Context, t FeedbackType) error {
	if _, err := r.db.ExecContext(ctx, `INSERT INTO feedback (feedback_type) VALUES ($1)`, string(t)); err != nil {
		return fmt.Errorf("insert feedback: %w", err)
	}
	return nil
}

func (r *postgresRepo) CountFeedbackByType(ctx context.Context) (map[FeedbackType]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT feedback_type, COUNT(*) FROM feedback GROUP BY feedback_type`)
	if err != nil {
		return nil, fmt.Errorf("count feedback: %w", err)
	}
	defer rows.Close()

	counts := make(map[FeedbackType]int)
	for rows.Next() {
		var t string
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, err
		}
		counts[FeedbackType(t)] = n
	}
	return counts, rows.Err()
}

func (r *postgresRepo) InsertDetailedFeedback(ctx context.Context, d DetailedFeedback) (*Testimonial, error) {
	t := &Testimonial{
		ID:          uuid.New(),
		Name:        d.Name,
		Designation: d.Designation,
		StarRating:  d.StarRating,
		Comment:     d.Comment,
		CreatedAt:   r.now().UTC(),
	}
	query := `
		INSERT INTO detailed_feedback (id, name, designation, star_rating, comment, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query, t.ID, t.Name, t.Designation, t.StarRating, t.Comment, t.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert detailed feedback: %w", err)
	}
	return t, nil
}

func (r *postgresRepo) ListTestimonials(ctx context.Context, limit int) ([]Testimonial, error) {
	query := `
		SELECT id, name, designation, star_rating, comment, created_at
		FROM detailed_feedback
		ORDER BY created_at DESC
		LIMIT $1
	`
	// LIMIT NULL returns every row.
	var arg interface{}
	if limit > 0 {
		arg = limit
	}
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list testimonials: %w", err)
	}
	defer rows.Close()

	var list []Testimonial
	for rows.Next() {
		var t Testimonial
		if err := rows.Scan(&t.ID, &t.Name, &t.Designation, &t.StarRating, &t.Comment, &t.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}
