package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/marketsafe/checkout-risk-backend/internal/domain/errors"
	"github.com/marketsafe/checkout-risk-backend/internal/domain/risk"
)

// LinkRepository persists assessment-to-order and assessment-to-store link
// rows. Inserts ignore conflicts on the link uniqueness constraints, which
// makes repeated linkage applications no-ops after the first.
type LinkRepository struct {
	db *pgxpool.Pool
}

// NewLinkRepository creates a link repository.
func NewLinkRepository(db *pgxpool.Pool) *LinkRepository {
	return &LinkRepository{db: db}
}

// AssessmentExists reports whether the assessment row is present.
func (r *LinkRepository) AssessmentExists(ctx context.Context, assessmentID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM assessments WHERE id = $1)`,
		assessmentID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check assessment existence: %w", err)
	}
	return exists, nil
}

// InsertOrderLinks writes order links, skipping rows that already exist.
func (r *LinkRepository) InsertOrderLinks(ctx context.Context, links []risk.OrderLink) error {
	if len(links) == 0 {
		return nil
	}

	query := `
		INSERT INTO assessment_order_links (assessment_id, order_id, store_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (assessment_id, order_id) DO NOTHING
	`

	for _, link := range links {
		if _, err := r.db.Exec(ctx, query,
			link.AssessmentID, link.OrderID, link.StoreID, link.CreatedAt,
		); err != nil {
			if isForeignKeyViolation(err) {
				return errors.ErrAssessmentNotFound
			}
			return fmt.Errorf("failed to insert order link: %w", err)
		}
	}
	return nil
}

// InsertStoreLinks writes store aggregate links, skipping existing rows.
func (r *LinkRepository) InsertStoreLinks(ctx context.Context, links []risk.StoreLink) error {
	if len(links) == 0 {
		return nil
	}

	query := `
		INSERT INTO assessment_store_links (assessment_id, store_id, order_id, item_count, subtotal_minor_units, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (assessment_id, store_id) DO NOTHING
	`

	for _, link := range links {
		if _, err := r.db.Exec(ctx, query,
			link.AssessmentID, link.StoreID, link.OrderID,
			link.ItemCount, link.SubtotalMinorUnits, link.CreatedAt,
		); err != nil {
			if isForeignKeyViolation(err) {
				return errors.ErrAssessmentNotFound
			}
			return fmt.Errorf("failed to insert store link: %w", err)
		}
	}
	return nil
}

// GetOrderLinks returns the order links for an assessment.
func (r *LinkRepository) GetOrderLinks(ctx context.Context, assessmentID uuid.UUID) ([]risk.OrderLink, error) {
	rows, err := r.db.Query(ctx, `
		SELECT assessment_id, order_id, store_id, created_at
		FROM assessment_order_links
		WHERE assessment_id = $1
		ORDER BY created_at, order_id
	`, assessmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query order links: %w", err)
	}
	defer rows.Close()

	var links []risk.OrderLink
	for rows.Next() {
		var link risk.OrderLink
		if err := rows.Scan(&link.AssessmentID, &link.OrderID, &link.StoreID, &link.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan order link: %w", err)
		}
		links = append(links, link)
	}
	return links, rows.Err()
}

// GetStoreLinks returns the store aggregate links for an assessment.
func (r *LinkRepository) GetStoreLinks(ctx context.Context, assessmentID uuid.UUID) ([]risk.StoreLink, error) {
	rows, err := r.db.Query(ctx, `
		SELECT assessment_id, store_id, order_id, item_count, subtotal_minor_units, created_at
		FROM assessment_store_links
		WHERE assessment_id = $1
		ORDER BY created_at, store_id
	`, assessmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query store links: %w", err)
	}
	defer rows.Close()

	var links []risk.StoreLink
	for rows.Next() {
		var link risk.StoreLink
		if err := rows.Scan(&link.AssessmentID, &link.StoreID, &link.OrderID,
			&link.ItemCount, &link.SubtotalMinorUnits, &link.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan store link: %w", err)
		}
		links = append(links, link)
	}
	return links, rows.Err()
}
