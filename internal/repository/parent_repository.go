package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tutoring-center-api/internal/models"
	"github.com/noah-isme/tutoring-center-api/pkg/database"
)

const parentColumns = "id, full_name, phone, student_id, created_at, updated_at"

// ParentRepository persists parent records.
type ParentRepository struct {
	gw *database.Gateway
}

// NewParentRepository constructs a ParentRepository.
func NewParentRepository(gw *database.Gateway) *ParentRepository {
	return &ParentRepository{gw: gw}
}

// List returns parents, optionally restricted to one student.
func (r *ParentRepository) List(ctx context.Context, studentID string) ([]models.Parent, error) {
	query := "SELECT " + parentColumns + " FROM parents"
	var args []interface{}
	if studentID != "" {
		query += " WHERE student_id = $1"
		args = append(args, studentID)
	}
	query += " ORDER BY full_name ASC"
	parents := []models.Parent{}
	if err := r.gw.DB().SelectContext(ctx, &parents, query, args...); err != nil {
		return nil, fmt.Errorf("list parents: %w", err)
	}
	return parents, nil
}

// FindByID returns a parent. Returns sql.ErrNoRows when absent.
func (r *ParentRepository) FindByID(ctx context.Context, id string) (*models.Parent, error) {
	var parent models.Parent
	if err := r.gw.DB().GetContext(ctx, &parent, "SELECT "+parentColumns+" FROM parents WHERE id = $1", id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find parent: %w", err)
	}
	return &parent, nil
}

// CreateWithAccount inserts the parent and its login account in one transaction.
// A phone already in use returns ErrDuplicateKey.
func (r *ParentRepository) CreateWithAccount(ctx context.Context, parent *models.Parent, account *models.User) error {
	if parent.ID == "" {
		parent.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	parent.CreatedAt = now
	parent.UpdatedAt = now
	return r.gw.WithTx(ctx, func(tx *sqlx.Tx) error {
		const query = `INSERT INTO parents (id, full_name, phone, student_id, created_at, updated_at)
        VALUES (:id, :full_name, :phone, :student_id, :created_at, :updated_at)`
		if _, err := tx.NamedExecContext(ctx, query, parent); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("create parent: %w", ErrDuplicateKey)
			}
			return fmt.Errorf("create parent: %w", err)
		}
		if account == nil {
			return nil
		}
		account.ParentID = &parent.ID
		return insertUser(ctx, tx, account)
	})
}

// Delete removes a parent and, by cascade, its account.
func (r *ParentRepository) Delete(ctx context.Context, id string) error {
	res, err := r.gw.DB().ExecContext(ctx, "DELETE FROM parents WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete parent: %w", err)
	}
	return expectAffected(res, "delete parent")
}
