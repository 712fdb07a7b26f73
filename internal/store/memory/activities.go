package memory

import (
	"context"
	"slices"
	"strings"

	"extensao.org/internal/apperr"
	"extensao.org/internal/domain"
)

type activities struct{ v view }

func (r activities) Create(_ context.Context, a domain.Activity) error {
	return r.v.write(func(st *state) error {
		if _, ok := st.activities[a.ID]; ok {
			return apperr.Conflict("activity %s already exists", a.ID)
		}
		if err := checkActivityRefs(st, a); err != nil {
			return err
		}
		a.Responsibles = slices.Clone(a.Responsibles)
		st.activities[a.ID] = a
		return nil
	})
}

func (r activities) Get(_ context.Context, id string) (domain.Activity, error) {
	var out domain.Activity
	err := r.v.read(func(st *state) error {
		a, ok := st.activities[id]
		if !ok {
			return apperr.NotFound("activity")
		}
		a.Responsibles = slices.Clone(a.Responsibles)
		out = a
		return nil
	})
	return out, err
}

func (r activities) List(_ context.Context, f domain.ActivityFilter) ([]domain.Activity, error) {
	var out []domain.Activity
	err := r.v.read(func(st *state) error {
		for _, a := range st.activities {
			if f.CategoryID != "" && a.CategoryID != f.CategoryID {
				continue
			}
			if f.Status != "" && a.Status != f.Status {
				continue
			}
			a.Responsibles = slices.Clone(a.Responsibles)
			out = append(out, a)
		}
		return nil
	})
	sortNewest(out, func(a domain.Activity) (int64, string) { return a.CreatedAt.UnixNano(), a.ID })
	return out, err
}

func (r activities) Update(_ context.Context, a domain.Activity) error {
	return r.v.write(func(st *state) error {
		cur, ok := st.activities[a.ID]
		if !ok {
			return apperr.NotFound("activity")
		}
		if err := checkActivityRefs(st, a); err != nil {
			return err
		}
		a.CreatedAt = cur.CreatedAt
		a.Responsibles = slices.Clone(a.Responsibles)
		st.activities[a.ID] = a
		return nil
	})
}

func (r activities) Delete(_ context.Context, id string) error {
	return r.v.write(func(st *state) error {
		if _, ok := st.activities[id]; !ok {
			return apperr.NotFound("activity")
		}
		for _, e := range st.enrollments {
			if e.ActivityID == id {
				return apperr.Conflict("activity has enrollments")
			}
		}
		delete(st.activities, id)
		return nil
	})
}

func checkActivityRefs(st *state, a domain.Activity) error {
	if a.CategoryID != "" {
		if _, ok := st.categories[a.CategoryID]; !ok {
			return apperr.NotFound("category")
		}
	}
	for _, uid := range a.Responsibles {
		if _, ok := st.users[uid]; !ok {
			return apperr.NotFound("responsible user")
		}
	}
	return nil
}

func (r activities) CreateCategory(_ context.Context, c domain.Category) error {
	return r.v.write(func(st *state) error {
		for _, cur := range st.categories {
			if strings.EqualFold(cur.Name, c.Name) {
				return apperr.Conflict("category %q already exists", c.Name)
			}
		}
		st.categories[c.ID] = c
		return nil
	})
}

func (r activities) GetCategory(_ context.Context, id string) (domain.Category, error) {
	var out domain.Category
	err := r.v.read(func(st *state) error {
		c, ok := st.categories[id]
		if !ok {
			return apperr.NotFound("category")
		}
		out = c
		return nil
	})
	return out, err
}

func (r activities) ListCategories(context.Context) ([]domain.Category, error) {
	var out []domain.Category
	err := r.v.read(func(st *state) error {
		for _, c := range st.categories {
			out = append(out, c)
		}
		return nil
	})
	slices.SortFunc(out, func(a, b domain.Category) int { return strings.Compare(a.Name, b.Name) })
	return out, err
}

func (r activities) DeleteCategory(_ context.Context, id string) error {
	return r.v.write(func(st *state) error {
		if _, ok := st.categories[id]; !ok {
			return apperr.NotFound("category")
		}
		for _, a := range st.activities {
			if a.CategoryID == id {
				return apperr.Conflict("category is in use")
			}
		}
		delete(st.categories, id)
		return nil
	})
}

func (r activities) CountByCategory(_ context.Context, categoryID string) (int, error) {
	var n int
	err := r.v.read(func(st *state) error {
		for _, a := range st.activities {
			if a.CategoryID == categoryID {
				n++
			}
		}
		return nil
	})
	return n, err
}
