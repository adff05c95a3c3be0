package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/hadir-dev/hadir/internal/database"
)

// EnrollmentRepository provides PostgreSQL-backed storage for student face
// enrollments. One student owns any number of reference embeddings.
type EnrollmentRepository struct {
	pool *Pool
}

// NewEnrollmentRepository creates a new PostgreSQL enrollment repository
func NewEnrollmentRepository(pool *Pool) *EnrollmentRepository {
	return &EnrollmentRepository{pool: pool}
}

// StoredEnrollment is one reference embedding row.
type StoredEnrollment struct {
	ID          int64
	NIM         string
	Name        string
	Embedding   []float32
	Fingerprint string
	CreatedAt   time.Time
}

// EnrolledStudent summarizes one student's enrollment state.
type EnrolledStudent struct {
	NIM        string
	Name       string
	Embeddings int
	EnrolledAt time.Time
}

// SaveBatch stores embeddings in a single transaction, skipping vectors whose
// fingerprint is already enrolled. Returns the number of rows written.
func (r *EnrollmentRepository) SaveBatch(ctx context.Context, enrollments []StoredEnrollment) (int, error) {
	if len(enrollments) == 0 {
		return 0, nil
	}

	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO enrollments (nim, name, embedding, fingerprint)
		VALUES ($1, $2, $3::vector, $4)
		ON CONFLICT (fingerprint) DO NOTHING
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, enr := range enrollments {
		if !database.ValidNIM(enr.NIM) {
			return inserted, fmt.Errorf("invalid nim %q", enr.NIM)
		}
		fp := enr.Fingerprint
		if fp == "" {
			fp = database.Fingerprint(enr.Embedding)
		}
		vec := pgvector.NewVector(enr.Embedding)
		res, err := stmt.ExecContext(ctx, enr.NIM, enr.Name, vec, fp)
		if err != nil {
			return inserted, fmt.Errorf("insert enrollment %s: %w", enr.NIM, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return inserted, fmt.Errorf("rows affected: %w", err)
		}
		inserted += int(affected)
	}

	if err := tx.Commit(); err != nil {
		return inserted, fmt.Errorf("commit transaction: %w", err)
	}
	return inserted, nil
}

// Identities loads every enrollment grouped per student, ordered by NIM.
// Implements the identity source consumed by the in-memory index.
func (r *EnrollmentRepository) Identities(ctx context.Context) ([]database.Identity, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT nim, name, embedding
		FROM enrollments
		ORDER BY nim, id
	`)
	if err != nil {
		return nil, fmt.Errorf("query enrollments: %w", err)
	}
	defer rows.Close()

	var (
		identities []database.Identity
		current    *database.Identity
	)
	for rows.Next() {
		var (
			nim, name string
			vec       pgvector.Vector
		)
		if err := rows.Scan(&nim, &name, &vec); err != nil {
			return nil, fmt.Errorf("scan enrollment: %w", err)
		}
		if current == nil || current.NIM != nim {
			identities = append(identities, database.Identity{NIM: nim, Name: name})
			current = &identities[len(identities)-1]
		}
		current.Embeddings = append(current.Embeddings, vec.Slice())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate enrollments: %w", err)
	}
	return identities, nil
}

// Students lists enrollment summaries ordered by NIM.
func (r *EnrollmentRepository) Students(ctx context.Context) ([]EnrolledStudent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT nim, MIN(name), COUNT(*), MIN(created_at)
		FROM enrollments
		GROUP BY nim
		ORDER BY nim
	`)
	if err != nil {
		return nil, fmt.Errorf("query students: %w", err)
	}
	defer rows.Close()

	var students []EnrolledStudent
	for rows.Next() {
		var s EnrolledStudent
		if err := rows.Scan(&s.NIM, &s.Name, &s.Embeddings, &s.EnrolledAt); err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		students = append(students, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate students: %w", err)
	}
	return students, nil
}

// RemoveStudent deletes all of a student's embeddings and returns how many
// rows were removed.
func (r *EnrollmentRepository) RemoveStudent(ctx context.Context, nim string) (int64, error) {
	res, err := r.pool.Exec(ctx, "DELETE FROM enrollments WHERE nim = $1", nim)
	if err != nil {
		return 0, fmt.Errorf("delete enrollments for %s: %w", nim, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return affected, nil
}

// Count returns the total number of stored embeddings.
func (r *EnrollmentRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM enrollments").Scan(&count); err != nil {
		return 0, fmt.Errorf("count enrollments: %w", err)
	}
	return count, nil
}

// HasFingerprint checks whether an identical vector is already enrolled.
func (r *EnrollmentRepository) HasFingerprint(ctx context.Context, fingerprint string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM enrollments WHERE fingerprint = $1)", fingerprint,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check fingerprint exists: %w", err)
	}
	return exists, nil
}
