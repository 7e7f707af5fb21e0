// Package members is the member (patient) registry. Scheduling uses it to
// check that an appointment's patient exists.
package members

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ministerio/gestao-engine/generic"
)

type MemberID string

type Member struct {
	ID        MemberID
	Name      string
	Email     string
	Phone     string
	BirthDate *time.Time
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store persists members. GetMember returns (nil, nil) when missing.
type Store interface {
	InsertMember(ctx context.Context, m Member) error
	GetMember(ctx context.Context, id MemberID) (*Member, error)
	ListMembers(ctx context.Context) ([]Member, error)
	SetMemberActive(ctx context.Context, id MemberID, active bool, at time.Time) error
}

type MemberSpec struct {
	Name      string     `json:"name" validate:"required,max=120"`
	Email     string     `json:"email" validate:"omitempty,email"`
	Phone     string     `json:"phone" validate:"max=30"`
	BirthDate *time.Time `json:"birth_date"`
}

type Service struct {
	store    Store
	validate *generic.Validator
	now      func() time.Time
	logger   *zap.Logger
}

func NewService(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    store,
		validate: generic.NewValidator(),
		now:      time.Now,
		logger:   logger.Named("members"),
	}
}

func (s *Service) Create(ctx context.Context, spec MemberSpec) (*Member, error) {
	if err := s.validate.Struct(spec); err != nil {
		return nil, err
	}
	now := s.now()
	if spec.BirthDate != nil && spec.BirthDate.After(now) {
		return nil, generic.NewValidationError("birth_date", "past", "must not be in the future")
	}

	m := Member{
		ID:        MemberID(uuid.NewString()),
		Name:      spec.Name,
		Email:     spec.Email,
		Phone:     spec.Phone,
		BirthDate: spec.BirthDate,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.InsertMember(ctx, m); err != nil {
		return nil, fmt.Errorf("failed to create member: %w", err)
	}
	s.logger.Info("member created", zap.String("member_id", string(m.ID)))
	return &m, nil
}

func (s *Service) Get(ctx context.Context, id MemberID) (*Member, error) {
	m, err := s.store.GetMember(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	if m == nil {
		return nil, &generic.NotFoundError{Kind: "member", ID: string(id)}
	}
	return m, nil
}

func (s *Service) List(ctx context.Context) ([]Member, error) {
	return s.store.ListMembers(ctx)
}

func (s *Service) SetActive(ctx context.Context, id MemberID, active bool) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return s.store.SetMemberActive(ctx, id, active, s.now())
}

// PatientExists implements scheduling.PatientDirectory. Inactive members
// cannot book.
func (s *Service) PatientExists(ctx context.Context, id string) (bool, error) {
	m, err := s.store.GetMember(ctx, MemberID(id))
	if err != nil {
		return false, err
	}
	return m != nil && m.Active, nil
}
