package memory

import (
	"context"

	"extensao.org/internal/apperr"
	"extensao.org/internal/domain"
)

type enrollments struct{ v view }

func (r enrollments) Create(_ context.Context, e domain.Enrollment) error {
	return r.v.write(func(st *state) error {
		if _, ok := st.students[e.StudentID]; !ok {
			return apperr.NotFound("student")
		}
		if _, ok := st.activities[e.ActivityID]; !ok {
			return apperr.NotFound("activity")
		}
		for _, cur := range st.enrollments {
			if cur.StudentID == e.StudentID && cur.ActivityID == e.ActivityID {
				return apperr.Conflict("student already enrolled in activity")
			}
		}
		st.enrollments[e.ID] = e
		return nil
	})
}

func (r enrollments) Get(_ context.Context, id string) (domain.Enrollment, error) {
	var out domain.Enrollment
	err := r.v.read(func(st *state) error {
		e, ok := st.enrollments[id]
		if !ok {
			return apperr.NotFound("enrollment")
		}
		out = e
		return nil
	})
	return out, err
}

func (r enrollments) Lock(ctx context.Context, id string) (domain.Enrollment, error) {
	return r.Get(ctx, id)
}

func (r enrollments) Find(_ context.Context, studentID, activityID string) (domain.Enrollment, error) {
	var out domain.Enrollment
	err := r.v.read(func(st *state) error {
		for _, e := range st.enrollments {
			if e.StudentID == studentID && e.ActivityID == activityID {
				out = e
				return nil
			}
		}
		return apperr.NotFound("enrollment")
	})
	return out, err
}

func (r enrollments) List(_ context.Context, f domain.EnrollmentFilter) ([]domain.Enrollment, error) {
	var out []domain.Enrollment
	err := r.v.read(func(st *state) error {
		for _, e := range st.enrollments {
			if f.StudentID != "" && e.StudentID != f.StudentID {
				continue
			}
			if f.ActivityID != "" && e.ActivityID != f.ActivityID {
				continue
			}
			if f.Status != "" && e.Status != f.Status {
				continue
			}
			out = append(out, e)
		}
		return nil
	})
	sortNewest(out, func(e domain.Enrollment) (int64, string) { return e.CreatedAt.UnixNano(), e.ID })
	return out, err
}

func (r enrollments) Update(_ context.Context, e domain.Enrollment) error {
	return r.v.write(func(st *state) error {
		cur, ok := st.enrollments[e.ID]
		if !ok {
			return apperr.NotFound("enrollment")
		}
		cur.ValidatedHours = e.ValidatedHours
		cur.Status = e.Status
		cur.UpdatedAt = e.UpdatedAt
		st.enrollments[e.ID] = cur
		return nil
	})
}

func (r enrollments) Delete(_ context.Context, id string) error {
	return r.v.write(func(st *state) error {
		if _, ok := st.enrollments[id]; !ok {
			return apperr.NotFound("enrollment")
		}
		for _, p := range st.proofs {
			if p.EnrollmentID == id {
				return apperr.Conflict("enrollment has a proof of completion")
			}
		}
		delete(st.enrollments, id)
		return nil
	})
}

func (r enrollments) CountByStudent(_ context.Context, studentID string) (int, error) {
	var n int
	err := r.v.read(func(st *state) error {
		for _, e := range st.enrollments {
			if e.StudentID == studentID {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r enrollments) MaxValidatedHours(_ context.Context, activityID string) (int, error) {
	var top int
	err := r.v.read(func(st *state) error {
		for _, e := range st.enrollments {
			if e.ActivityID == activityID {
				top = max(top, e.ValidatedHours)
			}
		}
		return nil
	})
	return top, err
}

func (r enrollments) CountByActivity(_ context.Context, activityID string) (int, error) {
	var n int
	err := r.v.read(func(st *state) error {
		for _, e := range st.enrollments {
			if e.ActivityID == activityID {
				n++
			}
		}
		return nil
	})
	return n, err
}
