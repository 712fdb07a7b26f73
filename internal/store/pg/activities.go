package pg

import (
	"context"
	"fmt"
	"strings"

	"extensao.org/internal/apperr"
	"extensao.org/internal/domain"
)

const activityColumns = `id, title, description, term, hour_budget, coalesce(category_id, ''), status, created_at, updated_at`

type activities struct{ db dbtx }

func scanActivity(row scanner) (domain.Activity, error) {
	var a domain.Activity
	err := row.Scan(&a.ID, &a.Title, &a.Description, &a.Term, &a.HourBudget, &a.CategoryID, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (r activities) Create(ctx context.Context, a domain.Activity) error {
	if _, err := r.db.ExecContext(ctx, `
		insert into activities (id, title, description, term, hour_budget, category_id, status, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, a.ID, a.Title, a.Description, a.Term, a.HourBudget, nullable(a.CategoryID), a.Status, a.CreatedAt, a.UpdatedAt); err != nil {
		return mapErr(err, "activity")
	}
	return r.setResponsibles(ctx, a.ID, a.Responsibles)
}

func (r activities) setResponsibles(ctx context.Context, activityID string, userIDs []string) error {
	if _, err := r.db.ExecContext(ctx, `delete from activity_responsibles where activity_id = $1`, activityID); err != nil {
		return mapErr(err, "activity responsibles")
	}
	for i, uid := range userIDs {
		if _, err := r.db.ExecContext(ctx, `
			insert into activity_responsibles (activity_id, user_id, position) values ($1, $2, $3)
		`, activityID, uid, i); err != nil {
			return mapErr(err, "responsible user")
		}
	}
	return nil
}

func (r activities) responsibles(ctx context.Context, activityID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		select user_id from activity_responsibles where activity_id = $1 order by position, user_id
	`, activityID)
	if err != nil {
		return nil, mapErr(err, "activity responsibles")
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r activities) Get(ctx context.Context, id string) (domain.Activity, error) {
	a, err := scanActivity(r.db.QueryRowContext(ctx, `select `+activityColumns+` from activities where id = $1`, id))
	if err != nil {
		return domain.Activity{}, mapErr(err, "activity")
	}
	if a.Responsibles, err = r.responsibles(ctx, id); err != nil {
		return domain.Activity{}, err
	}
	return a, nil
}

func (r activities) List(ctx context.Context, f domain.ActivityFilter) ([]domain.Activity, error) {
	var (
		where []string
		args  []any
	)
	if f.CategoryID != "" {
		args = append(args, f.CategoryID)
		where = append(where, fmt.Sprintf("category_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	query := `select ` + activityColumns + ` from activities`
	if len(where) > 0 {
		query += ` where ` + strings.Join(where, " and ")
	}
	query += ` order by created_at desc, id desc`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapErr(err, "activities")
	}
	var out []domain.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	// responsibles are loaded after the cursor is released; a tx runs one query at a time
	for i := range out {
		if out[i].Responsibles, err = r.responsibles(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r activities) Update(ctx context.Context, a domain.Activity) error {
	res, err := r.db.ExecContext(ctx, `
		update activities
		set title = $2, description = $3, term = $4, hour_budget = $5, category_id = $6, status = $7, updated_at = $8
		where id = $1
	`, a.ID, a.Title, a.Description, a.Term, a.HourBudget, nullable(a.CategoryID), a.Status, a.UpdatedAt)
	if err != nil {
		return mapErr(err, "activity")
	}
	if err := affected(res, "activity"); err != nil {
		return err
	}
	return r.setResponsibles(ctx, a.ID, a.Responsibles)
}

func (r activities) Delete(ctx context.Context, id string) error {
	var n int
	if err := r.db.QueryRowContext(ctx, `select count(*) from enrollments where activity_id = $1`, id).Scan(&n); err != nil {
		return mapErr(err, "enrollments")
	}
	if n > 0 {
		return apperr.Conflict("activity has enrollments")
	}
	res, err := r.db.ExecContext(ctx, `delete from activities where id = $1`, id)
	if err != nil {
		return mapErr(err, "activity")
	}
	return affected(res, "activity")
}

func (r activities) CreateCategory(ctx context.Context, c domain.Category) error {
	_, err := r.db.ExecContext(ctx, `
		insert into categories (id, name, description, created_at) values ($1, $2, $3, $4)
	`, c.ID, c.Name, c.Description, c.CreatedAt)
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
		return apperr.Conflict("category %q already exists", c.Name)
	}
	return mapErr(err, "category")
}

func (r activities) GetCategory(ctx context.Context, id string) (domain.Category, error) {
	var c domain.Category
	err := r.db.QueryRowContext(ctx, `select id, name, description, created_at from categories where id = $1`, id).
		Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt)
	return c, mapErr(err, "category")
}

func (r activities) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := r.db.QueryContext(ctx, `select id, name, description, created_at from categories order by name`)
	if err != nil {
		return nil, mapErr(err, "categories")
	}
	defer rows.Close()
	var out []domain.Category
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r activities) DeleteCategory(ctx context.Context, id string) error {
	n, err := r.CountByCategory(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return apperr.Conflict("category is in use")
	}
	res, err := r.db.ExecContext(ctx, `delete from categories where id = $1`, id)
	if err != nil {
		return mapErr(err, "category")
	}
	return affected(res, "category")
}

func (r activities) CountByCategory(ctx context.Context, categoryID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `select count(*) from activities where category_id = $1`, categoryID).Scan(&n)
	return n, mapErr(err, "activities")
}
