package pg

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"extensao.org/internal/apperr"
	"extensao.org/internal/domain"
)

// The student id is derived through the owning enrollment.
const proofSelect = `
	select p.id, p.enrollment_id, e.student_id, p.claimed_hours, p.document_type, p.file_path,
	       p.status, p.submitted_at, p.decided_at, coalesce(p.decided_by, '')
	from proofs p
	join enrollments e on e.id = p.enrollment_id`

type proofs struct{ db dbtx }

func scanProof(row scanner) (domain.Proof, error) {
	var (
		p       domain.Proof
		decided sql.NullTime
	)
	err := row.Scan(&p.ID, &p.EnrollmentID, &p.StudentID, &p.ClaimedHours, &p.DocumentType, &p.FilePath,
		&p.Status, &p.SubmittedAt, &decided, &p.DecidedBy)
	if decided.Valid {
		t := decided.Time
		p.DecidedAt = &t
	}
	return p, err
}

func (r proofs) Create(ctx context.Context, p domain.Proof) error {
	_, err := r.db.ExecContext(ctx, `
		insert into proofs (id, enrollment_id, claimed_hours, document_type, file_path, status, submitted_at)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, p.ID, p.EnrollmentID, p.ClaimedHours, p.DocumentType, p.FilePath, p.Status, p.SubmittedAt)
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
		return apperr.Conflict("enrollment already has a proof of completion")
	}
	return mapErr(err, "proof")
}

func (r proofs) Get(ctx context.Context, id string) (domain.Proof, error) {
	p, err := scanProof(r.db.QueryRowContext(ctx, proofSelect+` where p.id = $1`, id))
	return p, mapErr(err, "proof")
}

// Lock locks the proof row only; the enrollment is locked separately by the caller.
func (r proofs) Lock(ctx context.Context, id string) (domain.Proof, error) {
	p, err := scanProof(r.db.QueryRowContext(ctx, proofSelect+` where p.id = $1 for update of p`, id))
	return p, mapErr(err, "proof")
}

func (r proofs) GetByEnrollment(ctx context.Context, enrollmentID string) (domain.Proof, error) {
	p, err := scanProof(r.db.QueryRowContext(ctx, proofSelect+` where p.enrollment_id = $1`, enrollmentID))
	return p, mapErr(err, "proof")
}

func (r proofs) List(ctx context.Context, f domain.ProofFilter) ([]domain.Proof, error) {
	var (
		where []string
		args  []any
	)
	if f.StudentID != "" {
		args = append(args, f.StudentID)
		where = append(where, fmt.Sprintf("e.student_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("p.status = $%d", len(args)))
	}
	query := proofSelect
	if len(where) > 0 {
		query += ` where ` + strings.Join(where, " and ")
	}
	query += ` order by p.submitted_at desc, p.id desc`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapErr(err, "proofs")
	}
	defer rows.Close()
	var out []domain.Proof
	for rows.Next() {
		p, err := scanProof(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r proofs) UpdateStatus(ctx context.Context, p domain.Proof) error {
	var decidedAt sql.NullTime
	if p.DecidedAt != nil {
		decidedAt = sql.NullTime{Time: *p.DecidedAt, Valid: true}
	}
	res, err := r.db.ExecContext(ctx, `
		update proofs set status = $2, decided_at = $3, decided_by = $4 where id = $1
	`, p.ID, p.Status, decidedAt, nullable(p.DecidedBy))
	if err != nil {
		return mapErr(err, "proof")
	}
	return affected(res, "proof")
}

func (r proofs) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `delete from proofs where id = $1`, id)
	if err != nil {
		return mapErr(err, "proof")
	}
	return affected(res, "proof")
}
