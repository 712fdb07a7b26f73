package pg

import (
	"context"
)

// LoadGrants implements auth.GrantSource from the roles, permissions and role_permissions
// tables. Roles without any grant are still returned so the catalog knows them.
func (s *Store) LoadGrants(ctx context.Context) (map[string][]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		select r.name, rp.permission_token
		from roles r
		left join role_permissions rp on rp.role_name = r.name
		order by r.name, rp.permission_token
	`)
	if err != nil {
		return nil, mapErr(err, "permission catalog")
	}
	defer rows.Close()

	grants := make(map[string][]string)
	for rows.Next() {
		var (
			role  string
			token *string
		)
		if err := rows.Scan(&role, &token); err != nil {
			return nil, err
		}
		if _, ok := grants[role]; !ok {
			grants[role] = []string{}
		}
		if token != nil {
			grants[role] = append(grants[role], *token)
		}
	}
	return grants, rows.Err()
}
