package hours

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"extensao.org/internal/apperr"
	"extensao.org/internal/audit"
	"extensao.org/internal/auth"
	"extensao.org/internal/domain"
	"extensao.org/internal/ids"
	"extensao.org/internal/obs"
)

// Authorizer decides whether a principal may act.
type Authorizer interface {
	Authorize(ctx context.Context, p *auth.Principal, res auth.Resource, required ...string) error
}

// Auditor records audit entries.
type Auditor interface {
	Record(ctx context.Context, rec audit.Record) (string, error)
}

// Service runs the proof-of-completion workflow.
type Service struct {
	store        domain.Store
	authz        Authorizer
	audit        Auditor
	enforceQuota bool
	now          func() time.Time
}

// Option configures Service.
type Option func(*Service)

// WithProgramQuota clamps credited hours to the student's remaining hours.
func WithProgramQuota(enforce bool) Option {
	return func(s *Service) { s.enforceQuota = enforce }
}

// WithClock overrides the time source.
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs Service.
func NewService(store domain.Store, authz Authorizer, auditor Auditor, opts ...Option) *Service {
	s := &Service{store: store, authz: authz, audit: auditor, enforceQuota: true, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SubmitInput is a proof submission. ClaimedHours is required.
type SubmitInput struct {
	EnrollmentID string
	ClaimedHours *int
	DocumentType domain.DocumentType
	FilePath     string
}

// Submit creates the proof of completion of one of the caller's enrollments.
func (s *Service) Submit(ctx context.Context, p *auth.Principal, in SubmitInput) (domain.Proof, error) {
	if p == nil || p.UserID == "" {
		return domain.Proof{}, apperr.ErrUnauthenticated
	}
	in.EnrollmentID = strings.TrimSpace(in.EnrollmentID)
	if in.EnrollmentID == "" {
		return domain.Proof{}, apperr.Invalid("enrollment_id is required")
	}
	if in.ClaimedHours == nil {
		return domain.Proof{}, apperr.Invalid("claimed_hours is required")
	}
	if *in.ClaimedHours < 0 {
		return domain.Proof{}, apperr.Invalid("claimed_hours must not be negative")
	}
	if in.DocumentType == "" {
		in.DocumentType = domain.DocumentOther
	}
	if !in.DocumentType.Valid() {
		return domain.Proof{}, apperr.Invalid("document_type must be certificate, declaration or other")
	}

	enr, err := s.store.Enrollments().Get(ctx, in.EnrollmentID)
	if err != nil {
		return domain.Proof{}, apperr.Internal("get enrollment", err)
	}
	if err := s.authz.Authorize(ctx, p, enr.Resource(), auth.PermProofCreate); err != nil {
		return domain.Proof{}, err
	}
	// Only the enrolled student submits, whatever else the caller may do.
	if enr.StudentID != p.UserID {
		return domain.Proof{}, &auth.DeniedError{Required: []string{auth.PermProofCreate}}
	}
	if err := s.ensureNoProof(ctx, s.store, enr.ID); err != nil {
		return domain.Proof{}, err
	}

	proof := domain.Proof{
		ID:           ids.New(),
		EnrollmentID: enr.ID,
		ClaimedHours: *in.ClaimedHours,
		DocumentType: in.DocumentType,
		FilePath:     strings.TrimSpace(in.FilePath),
		Status:       domain.ProofPending,
		SubmittedAt:  s.now().UTC(),
	}
	err = s.store.RunInTx(ctx, func(tx domain.Repository) error {
		if err := s.ensureNoProof(ctx, tx, enr.ID); err != nil {
			return err
		}
		return tx.Proofs().Create(ctx, proof)
	})
	if err != nil {
		return domain.Proof{}, apperr.Internal("create proof", err)
	}
	proof.StudentID = enr.StudentID

	if _, err := s.audit.Record(ctx, audit.Record{
		ActorID:     p.UserID,
		Entity:      "proof",
		EntityID:    proof.ID,
		Action:      "proof.create",
		After:       proof,
		Description: fmt.Sprintf("proof submitted for enrollment %s", enr.ID),
	}); err != nil {
		return domain.Proof{}, err
	}
	return proof, nil
}

func (s *Service) ensureNoProof(ctx context.Context, repo domain.Repository, enrollmentID string) error {
	_, err := repo.Proofs().GetByEnrollment(ctx, enrollmentID)
	switch {
	case err == nil:
		return apperr.Conflict("enrollment already has a proof of completion")
	case errors.Is(err, apperr.ErrNotFound):
		return nil
	default:
		return apperr.Internal("find proof", err)
	}
}

// Decision is the result of Decide.
type Decision struct {
	Proof      domain.Proof
	Enrollment domain.Enrollment
	Student    domain.Student
	// Applied is false when the proof already had the target status.
	Applied bool
	Credit  Credit
}

// Decide moves a proof to accepted or rejected and propagates the outcome to the
// enrollment and the student in one transaction. Repeating the current status changes
// nothing and records no audit entry.
func (s *Service) Decide(ctx context.Context, p *auth.Principal, proofID string, target domain.ProofStatus) (Decision, error) {
	if p == nil || p.UserID == "" {
		return Decision{}, apperr.ErrUnauthenticated
	}
	if target != domain.ProofAccepted && target != domain.ProofRejected {
		return Decision{}, apperr.Invalid("status must be accepted or rejected")
	}
	current, err := s.store.Proofs().Get(ctx, proofID)
	if err != nil {
		return Decision{}, apperr.Internal("get proof", err)
	}
	if err := s.authz.Authorize(ctx, p, current.Resource(), auth.PermProofManage); err != nil {
		return Decision{}, err
	}

	var (
		out    Decision
		before domain.ProofStatus
	)
	err = s.store.RunInTx(ctx, func(tx domain.Repository) error {
		proof, err := tx.Proofs().Lock(ctx, proofID)
		if err != nil {
			return err
		}
		before = proof.Status
		if proof.Status == target {
			out = Decision{Proof: proof}
			return nil
		}

		enr, err := tx.Enrollments().Lock(ctx, proof.EnrollmentID)
		if err != nil {
			return err
		}
		student, err := tx.Profiles().LockStudent(ctx, enr.StudentID)
		if err != nil {
			return err
		}
		now := s.now().UTC()

		var credit Credit
		switch target {
		case domain.ProofAccepted:
			activity, err := tx.Activities().Get(ctx, enr.ActivityID)
			if err != nil {
				return err
			}
			credit = Apply(Balance{
				Validated:   enr.ValidatedHours,
				Accumulated: student.AccumulatedHours,
				Remaining:   student.RemainingHours,
			}, proof.ClaimedHours, activity.HourBudget, s.enforceQuota)

			enr.ValidatedHours = credit.Validated
			enr.Status = domain.EnrollmentApproved
			student.AccumulatedHours = credit.Accumulated
			student.RemainingHours = credit.Remaining
			if err := tx.Profiles().UpdateStudentHours(ctx, student); err != nil {
				return err
			}
		case domain.ProofRejected:
			// Hours credited by an earlier acceptance stay credited.
			enr.Status = domain.EnrollmentRejected
		}
		enr.UpdatedAt = now
		if err := tx.Enrollments().Update(ctx, enr); err != nil {
			return err
		}

		proof.Status = target
		proof.DecidedAt = &now
		proof.DecidedBy = p.UserID
		if err := tx.Proofs().UpdateStatus(ctx, proof); err != nil {
			return err
		}
		out = Decision{Proof: proof, Enrollment: enr, Student: student, Applied: true, Credit: credit}
		return nil
	})
	if err != nil {
		return Decision{}, apperr.Internal("decide proof", err)
	}
	if !out.Applied {
		return out, nil
	}

	obs.ProofDecisions.WithLabelValues(string(target)).Inc()
	if out.Credit.Credited > 0 {
		obs.HoursCredited.Add(float64(out.Credit.Credited))
	}
	after := map[string]any{"status": target}
	if target == domain.ProofAccepted {
		after["delta"] = out.Credit.Delta
		after["credited"] = out.Credit.Credited
		after["validated_hours"] = out.Enrollment.ValidatedHours
		after["accumulated_hours"] = out.Student.AccumulatedHours
		after["remaining_hours"] = out.Student.RemainingHours
	}
	if _, err := s.audit.Record(ctx, audit.Record{
		ActorID:     p.UserID,
		Entity:      "proof",
		EntityID:    out.Proof.ID,
		Action:      "proof.update_status",
		Before:      map[string]any{"status": before},
		After:       after,
		Description: fmt.Sprintf("proof %s changed from %s to %s", out.Proof.ID, before, target),
	}); err != nil {
		return Decision{}, err
	}
	obs.Logger().Info("proof decided",
		zap.String("proof_id", out.Proof.ID),
		zap.String("status", string(target)),
		zap.Int("delta", out.Credit.Delta),
		zap.Int("credited", out.Credit.Credited),
	)
	return out, nil
}

// Get returns a proof visible to the caller.
func (s *Service) Get(ctx context.Context, p *auth.Principal, id string) (domain.Proof, error) {
	if p == nil || p.UserID == "" {
		return domain.Proof{}, apperr.ErrUnauthenticated
	}
	proof, err := s.store.Proofs().Get(ctx, id)
	if err != nil {
		return domain.Proof{}, apperr.Internal("get proof", err)
	}
	if err := s.authz.Authorize(ctx, p, proof.Resource(), auth.PermProofRead, auth.PermProofManage); err != nil {
		return domain.Proof{}, err
	}
	return proof, nil
}

// List returns proofs newest first. Callers without proof.manage only see their own.
func (s *Service) List(ctx context.Context, p *auth.Principal, f domain.ProofFilter) ([]domain.Proof, error) {
	if p == nil || p.UserID == "" {
		return nil, apperr.ErrUnauthenticated
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, apperr.Invalid("unknown proof status %q", f.Status)
	}
	if err := s.authz.Authorize(ctx, p, nil, auth.PermProofManage); err != nil {
		if !errors.Is(err, apperr.ErrForbidden) {
			return nil, err
		}
		if err := s.authz.Authorize(ctx, p, auth.StudentResource{StudentID: p.UserID}, auth.PermProofRead); err != nil {
			return nil, err
		}
		f.StudentID = p.UserID
	}
	proofs, err := s.store.Proofs().List(ctx, f)
	if err != nil {
		return nil, apperr.Internal("list proofs", err)
	}
	return proofs, nil
}

// Delete removes a proof. Hours already credited stay credited.
func (s *Service) Delete(ctx context.Context, p *auth.Principal, id string) error {
	if p == nil || p.UserID == "" {
		return apperr.ErrUnauthenticated
	}
	proof, err := s.store.Proofs().Get(ctx, id)
	if err != nil {
		return apperr.Internal("get proof", err)
	}
	if err := s.authz.Authorize(ctx, p, proof.Resource(), auth.PermProofManage); err != nil {
		return err
	}
	if err := s.store.RunInTx(ctx, func(tx domain.Repository) error {
		return tx.Proofs().Delete(ctx, id)
	}); err != nil {
		return apperr.Internal("delete proof", err)
	}
	_, err = s.audit.Record(ctx, audit.Record{
		ActorID:     p.UserID,
		Entity:      "proof",
		EntityID:    id,
		Action:      "proof.delete",
		Before:      proof,
		Description: fmt.Sprintf("proof %s deleted", id),
	})
	return err
}
