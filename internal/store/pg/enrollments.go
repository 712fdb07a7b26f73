package pg

import (
	"context"
	"fmt"
	"strings"

	"extensao.org/internal/apperr"
	"extensao.org/internal/domain"
)

const enrollmentColumns = `id, student_id, activity_id, validated_hours, status, created_at, updated_at`

type enrollments struct{ db dbtx }

func scanEnrollment(row scanner) (domain.Enrollment, error) {
	var e domain.Enrollment
	err := row.Scan(&e.ID, &e.StudentID, &e.ActivityID, &e.ValidatedHours, &e.Status, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}

func (r enrollments) Create(ctx context.Context, e domain.Enrollment) error {
	_, err := r.db.ExecContext(ctx, `
		insert into enrollments (`+enrollmentColumns+`) values ($1, $2, $3, $4, $5, $6, $7)
	`, e.ID, e.StudentID, e.ActivityID, e.ValidatedHours, e.Status, e.CreatedAt, e.UpdatedAt)
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
		return apperr.Conflict("student is already enrolled in this activity")
	}
	return mapErr(err, "enrollment")
}

func (r enrollments) Get(ctx context.Context, id string) (domain.Enrollment, error) {
	e, err := scanEnrollment(r.db.QueryRowContext(ctx, `select `+enrollmentColumns+` from enrollments where id = $1`, id))
	return e, mapErr(err, "enrollment")
}

func (r enrollments) Lock(ctx context.Context, id string) (domain.Enrollment, error) {
	e, err := scanEnrollment(r.db.QueryRowContext(ctx,
		`select `+enrollmentColumns+` from enrollments where id = $1 for update`, id))
	return e, mapErr(err, "enrollment")
}

func (r enrollments) Find(ctx context.Context, studentID, activityID string) (domain.Enrollment, error) {
	e, err := scanEnrollment(r.db.QueryRowContext(ctx,
		`select `+enrollmentColumns+` from enrollments where student_id = $1 and activity_id = $2`, studentID, activityID))
	return e, mapErr(err, "enrollment")
}

func (r enrollments) List(ctx context.Context, f domain.EnrollmentFilter) ([]domain.Enrollment, error) {
	var (
		where []string
		args  []any
	)
	add := func(col string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if f.StudentID != "" {
		add("student_id", f.StudentID)
	}
	if f.ActivityID != "" {
		add("activity_id", f.ActivityID)
	}
	if f.Status != "" {
		add("status", f.Status)
	}
	query := `select ` + enrollmentColumns + ` from enrollments`
	if len(where) > 0 {
		query += ` where ` + strings.Join(where, " and ")
	}
	query += ` order by created_at desc, id desc`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapErr(err, "enrollments")
	}
	defer rows.Close()
	var out []domain.Enrollment
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r enrollments) Update(ctx context.Context, e domain.Enrollment) error {
	res, err := r.db.ExecContext(ctx, `
		update enrollments set validated_hours = $2, status = $3, updated_at = $4 where id = $1
	`, e.ID, e.ValidatedHours, e.Status, e.UpdatedAt)
	if err != nil {
		return mapErr(err, "enrollment")
	}
	return affected(res, "enrollment")
}

func (r enrollments) Delete(ctx context.Context, id string) error {
	var hasProof bool
	if err := r.db.QueryRowContext(ctx, `select exists (select 1 from proofs where enrollment_id = $1)`, id).Scan(&hasProof); err != nil {
		return mapErr(err, "proof")
	}
	if hasProof {
		return apperr.Conflict("enrollment has a proof of completion")
	}
	res, err := r.db.ExecContext(ctx, `delete from enrollments where id = $1`, id)
	if err != nil {
		return mapErr(err, "enrollment")
	}
	return affected(res, "enrollment")
}

func (r enrollments) CountByStudent(ctx context.Context, studentID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `select count(*) from enrollments where student_id = $1`, studentID).Scan(&n)
	return n, mapErr(err, "enrollments")
}

func (r enrollments) CountByActivity(ctx context.Context, activityID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `select count(*) from enrollments where activity_id = $1`, activityID).Scan(&n)
	return n, mapErr(err, "enrollments")
}

func (r enrollments) MaxValidatedHours(ctx context.Context, activityID string) (int, error) {
	var top int
	err := r.db.QueryRowContext(ctx,
		`select coalesce(max(validated_hours), 0) from enrollments where activity_id = $1`, activityID).Scan(&top)
	return top, mapErr(err, "enrollments")
}
