package activity

import (
	"context"
	"fmt"
	"strings"

	"extensao.org/internal/apperr"
	"extensao.org/internal/audit"
	"extensao.org/internal/auth"
	"extensao.org/internal/domain"
	"extensao.org/internal/ids"
)

// CreateCategory adds a category with a unique name.
func (s *Service) CreateCategory(ctx context.Context, p *auth.Principal, name, description string) (domain.Category, error) {
	if err := s.authz.Authorize(ctx, p, nil, auth.PermCategoryManage); err != nil {
		return domain.Category{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Category{}, apperr.Invalid("name is required")
	}
	c := domain.Category{
		ID:          ids.New(),
		Name:        name,
		Description: strings.TrimSpace(description),
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.RunInTx(ctx, func(tx domain.Repository) error {
		return tx.Activities().CreateCategory(ctx, c)
	}); err != nil {
		return domain.Category{}, apperr.Internal("create category", err)
	}
	if _, err := s.audit.Record(ctx, audit.Record{
		ActorID:     p.UserID,
		Entity:      "category",
		EntityID:    c.ID,
		Action:      "category.create",
		After:       c,
		Description: fmt.Sprintf("category %q created", c.Name),
	}); err != nil {
		return domain.Category{}, err
	}
	return c, nil
}

// ListCategories returns categories by name.
func (s *Service) ListCategories(ctx context.Context, p *auth.Principal) ([]domain.Category, error) {
	if err := s.authz.Authorize(ctx, p, nil, auth.PermCategoryRead); err != nil {
		return nil, err
	}
	out, err := s.store.Activities().ListCategories(ctx)
	if err != nil {
		return nil, apperr.Internal("list categories", err)
	}
	return out, nil
}

// DeleteCategory removes a category no activity uses.
func (s *Service) DeleteCategory(ctx context.Context, p *auth.Principal, id string) error {
	if err := s.authz.Authorize(ctx, p, nil, auth.PermCategoryManage); err != nil {
		return err
	}
	var before domain.Category
	err := s.store.RunInTx(ctx, func(tx domain.Repository) error {
		c, err := tx.Activities().GetCategory(ctx, id)
		if err != nil {
			return err
		}
		before = c
		n, err := tx.Activities().CountByCategory(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return apperr.Conflict("category is used by %d activities", n)
		}
		return tx.Activities().DeleteCategory(ctx, id)
	})
	if err != nil {
		return apperr.Internal("delete category", err)
	}
	_, err = s.audit.Record(ctx, audit.Record{
		ActorID:     p.UserID,
		Entity:      "category",
		EntityID:    id,
		Action:      "category.delete",
		Before:      before,
		Description: fmt.Sprintf("category %q deleted", before.Name),
	})
	return err
}
