package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"extensao.org/internal/domain"
	"extensao.org/internal/enrollment"
	"extensao.org/internal/hours"
)

type enrollRequest struct {
	ActivityID string `json:"activity_id"`
}

func (a *API) enroll(w http.ResponseWriter, r *http.Request) {
	var req enrollRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	e, err := a.svc.Enrollments.Enroll(r.Context(), principal(r), req.ActivityID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (a *API) listEnrollments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	items, err := a.svc.Enrollments.List(r.Context(), principal(r), domain.EnrollmentFilter{
		StudentID:  q.Get("student_id"),
		ActivityID: q.Get("activity_id"),
		Status:     domain.EnrollmentStatus(q.Get("status")),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) getEnrollment(w http.ResponseWriter, r *http.Request) {
	e, err := a.svc.Enrollments.Get(r.Context(), principal(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

type enrollmentPatch struct {
	Status         *domain.EnrollmentStatus `json:"status"`
	ValidatedHours *int                     `json:"validated_hours"`
}

func (a *API) updateEnrollment(w http.ResponseWriter, r *http.Request) {
	var req enrollmentPatch
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	e, err := a.svc.Enrollments.Update(r.Context(), principal(r), chi.URLParam(r, "id"), enrollment.UpdateInput{
		Status:         req.Status,
		ValidatedHours: req.ValidatedHours,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (a *API) deleteEnrollment(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.Enrollments.Delete(r.Context(), principal(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type proofRequest struct {
	EnrollmentID string              `json:"enrollment_id"`
	ClaimedHours *int                `json:"claimed_hours"`
	DocumentType domain.DocumentType `json:"document_type"`
	FilePath     string              `json:"file_path"`
}

func (a *API) submitProof(w http.ResponseWriter, r *http.Request) {
	var req proofRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := a.svc.Hours.Submit(r.Context(), principal(r), hours.SubmitInput{
		EnrollmentID: req.EnrollmentID,
		ClaimedHours: req.ClaimedHours,
		DocumentType: req.DocumentType,
		FilePath:     req.FilePath,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (a *API) listProofs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	items, err := a.svc.Hours.List(r.Context(), principal(r), domain.ProofFilter{
		StudentID: q.Get("student_id"),
		Status:    domain.ProofStatus(q.Get("status")),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) getProof(w http.ResponseWriter, r *http.Request) {
	p, err := a.svc.Hours.Get(r.Context(), principal(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) deleteProof(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.Hours.Delete(r.Context(), principal(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type decisionRequest struct {
	Status domain.ProofStatus `json:"status"`
}

type decisionResponse struct {
	Proof      domain.Proof      `json:"proof"`
	Enrollment domain.Enrollment `json:"enrollment"`
	Student    domain.Student    `json:"student"`
	Applied    bool              `json:"applied"`
	Delta      int               `json:"delta"`
	Credited   int               `json:"credited"`
}

func (a *API) decideProof(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	d, err := a.svc.Hours.Decide(r.Context(), principal(r), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, decisionResponse{
		Proof:      d.Proof,
		Enrollment: d.Enrollment,
		Student:    d.Student,
		Applied:    d.Applied,
		Delta:      d.Credit.Delta,
		Credited:   d.Credit.Credited,
	})
}
