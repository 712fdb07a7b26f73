package pg

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"extensao.org/internal/audit"
)

// AppendAudit implements audit.Store. It writes on the pool, outside any RunInTx
// transaction, so an entry is never rolled back with the work it describes.
func (s *Store) AppendAudit(ctx context.Context, e audit.Entry) error {
	_, err := s.db.ExecContext(ctx, `
		insert into audit_log (id, actor_id, entity, entity_id, action, before, after, description, request_id, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, e.ID, nullable(e.ActorID), e.Entity, nullable(e.EntityID), e.Action,
		jsonArg(e.Before), jsonArg(e.After), e.Description, nullable(e.RequestID), e.CreatedAt)
	return mapErr(err, "audit entry")
}

// ListAudit implements audit.Store, newest first.
func (s *Store) ListAudit(ctx context.Context, f audit.Filter) ([]audit.Entry, error) {
	var (
		where []string
		args  []any
	)
	add := func(col, v string) {
		if v == "" {
			return
		}
		args = append(args, v)
		where = append(where, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	add("entity", f.Entity)
	add("entity_id", f.EntityID)
	add("action", f.Action)
	add("actor_id", f.ActorID)

	query := `
		select id, coalesce(actor_id, ''), entity, coalesce(entity_id, ''), action, before, after,
		       description, coalesce(request_id, ''), created_at
		from audit_log`
	if len(where) > 0 {
		query += ` where ` + strings.Join(where, " and ")
	}
	query += ` order by seq desc`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(` limit $%d`, len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapErr(err, "audit entries")
	}
	defer rows.Close()

	out := make([]audit.Entry, 0)
	for rows.Next() {
		var (
			e             audit.Entry
			before, after []byte
		)
		if err := rows.Scan(&e.ID, &e.ActorID, &e.Entity, &e.EntityID, &e.Action, &before, &after,
			&e.Description, &e.RequestID, &e.CreatedAt); err != nil {
			return nil, err
		}
		if len(before) > 0 {
			e.Before = before
		}
		if len(after) > 0 {
			e.After = after
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// jsonArg stores an absent snapshot as SQL null rather than JSON null.
func jsonArg(raw []byte) any {
	if len(raw) == 0 {
		return sql.NullString{}
	}
	return string(raw)
}
