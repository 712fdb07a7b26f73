package memory

import (
	"context"

	"extensao.org/internal/apperr"
	"extensao.org/internal/domain"
)

type proofs struct{ v view }

// withStudent fills the derived StudentID from the owning enrollment.
func withStudent(st *state, p domain.Proof) domain.Proof {
	p.StudentID = st.enrollments[p.EnrollmentID].StudentID
	return p
}

func (r proofs) Create(_ context.Context, p domain.Proof) error {
	return r.v.write(func(st *state) error {
		if _, ok := st.enrollments[p.EnrollmentID]; !ok {
			return apperr.NotFound("enrollment")
		}
		for _, cur := range st.proofs {
			if cur.EnrollmentID == p.EnrollmentID {
				return apperr.Conflict("enrollment already has a proof of completion")
			}
		}
		p.StudentID = ""
		st.proofs[p.ID] = p
		return nil
	})
}

func (r proofs) Get(_ context.Context, id string) (domain.Proof, error) {
	var out domain.Proof
	err := r.v.read(func(st *state) error {
		p, ok := st.proofs[id]
		if !ok {
			return apperr.NotFound("proof")
		}
		out = withStudent(st, p)
		return nil
	})
	return out, err
}

func (r proofs) Lock(ctx context.Context, id string) (domain.Proof, error) {
	return r.Get(ctx, id)
}

func (r proofs) GetByEnrollment(_ context.Context, enrollmentID string) (domain.Proof, error) {
	var out domain.Proof
	err := r.v.read(func(st *state) error {
		for _, p := range st.proofs {
			if p.EnrollmentID == enrollmentID {
				out = withStudent(st, p)
				return nil
			}
		}
		return apperr.NotFound("proof")
	})
	return out, err
}

func (r proofs) List(_ context.Context, f domain.ProofFilter) ([]domain.Proof, error) {
	var out []domain.Proof
	err := r.v.read(func(st *state) error {
		for _, p := range st.proofs {
			p = withStudent(st, p)
			if f.StudentID != "" && p.StudentID != f.StudentID {
				continue
			}
			if f.Status != "" && p.Status != f.Status {
				continue
			}
			out = append(out, p)
		}
		return nil
	})
	sortNewest(out, func(p domain.Proof) (int64, string) { return p.SubmittedAt.UnixNano(), p.ID })
	return out, err
}

func (r proofs) UpdateStatus(_ context.Context, p domain.Proof) error {
	return r.v.write(func(st *state) error {
		cur, ok := st.proofs[p.ID]
		if !ok {
			return apperr.NotFound("proof")
		}
		cur.Status = p.Status
		cur.DecidedAt = p.DecidedAt
		cur.DecidedBy = p.DecidedBy
		st.proofs[p.ID] = cur
		return nil
	})
}

func (r proofs) Delete(_ context.Context, id string) error {
	return r.v.write(func(st *state) error {
		if _, ok := st.proofs[id]; !ok {
			return apperr.NotFound("proof")
		}
		delete(st.proofs, id)
		return nil
	})
}
