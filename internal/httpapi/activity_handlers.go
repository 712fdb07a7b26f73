package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"extensao.org/internal/activity"
	"extensao.org/internal/domain"
)

type activityRequest struct {
	Title        string                `json:"title"`
	Description  string                `json:"description"`
	Term         string                `json:"term"`
	HourBudget   int                   `json:"hour_budget"`
	CategoryID   string                `json:"category_id"`
	Status       domain.ActivityStatus `json:"status"`
	Responsibles []string              `json:"responsibles"`
}

func (a *API) createActivity(w http.ResponseWriter, r *http.Request) {
	var req activityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	act, err := a.svc.Activities.Create(r.Context(), principal(r), activity.CreateInput{
		Title:        req.Title,
		Description:  req.Description,
		Term:         req.Term,
		HourBudget:   req.HourBudget,
		CategoryID:   req.CategoryID,
		Status:       req.Status,
		Responsibles: req.Responsibles,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, act)
}

func (a *API) listActivities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	items, err := a.svc.Activities.List(r.Context(), principal(r), domain.ActivityFilter{
		CategoryID: q.Get("category_id"),
		Status:     domain.ActivityStatus(q.Get("status")),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) getActivity(w http.ResponseWriter, r *http.Request) {
	act, err := a.svc.Activities.Get(r.Context(), principal(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, act)
}

type activityPatch struct {
	Title        *string                `json:"title"`
	Description  *string                `json:"description"`
	Term         *string                `json:"term"`
	HourBudget   *int                   `json:"hour_budget"`
	CategoryID   *string                `json:"category_id"`
	Status       *domain.ActivityStatus `json:"status"`
	Responsibles []string               `json:"responsibles"`
}

func (a *API) updateActivity(w http.ResponseWriter, r *http.Request) {
	var req activityPatch
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	act, err := a.svc.Activities.Update(r.Context(), principal(r), chi.URLParam(r, "id"), activity.UpdateInput{
		Title:        req.Title,
		Description:  req.Description,
		Term:         req.Term,
		HourBudget:   req.HourBudget,
		CategoryID:   req.CategoryID,
		Status:       req.Status,
		Responsibles: req.Responsibles,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, act)
}

func (a *API) deleteActivity(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.Activities.Delete(r.Context(), principal(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type categoryRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (a *API) createCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := a.svc.Activities.CreateCategory(r.Context(), principal(r), req.Name, req.Description)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (a *API) listCategories(w http.ResponseWriter, r *http.Request) {
	items, err := a.svc.Activities.ListCategories(r.Context(), principal(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) deleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.Activities.DeleteCategory(r.Context(), principal(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
