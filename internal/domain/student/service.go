package student

import (
	"context"
	"errors"
	"log/slog"

	"github.com/vui-edu/records/internal/domain/transcript"
)

// ErrNotFound is returned when a student code is not on record.
var ErrNotFound = errors.New("student not found")

// Repository is the persistence surface of the student service.
type Repository interface {
	GetByCode(ctx context.Context, code string) (*Student, error)
	ListByCohort(ctx context.Context, cohortCode string) ([]Student, error)
	Transcript(ctx context.Context, code string) ([]transcript.Attempt, error)
}

// Profile bundles a student with their full transcript.
type Profile struct {
	Student  Student              `json:"student"`
	Attempts []transcript.Attempt `json:"attempts"`
}

type Service struct {
	repo   Repository
	logger *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

func (s *Service) ByCohort(ctx context.Context, cohortCode string) ([]Student, error) {
	return s.repo.ListByCohort(ctx, cohortCode)
}

// Profile loads one student and every grade attempt on their record.
func (s *Service) Profile(ctx context.Context, code string) (*Profile, error) {
	st, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, ErrNotFound
	}
	attempts, err := s.repo.Transcript(ctx, code)
	if err != nil {
		return nil, err
	}
	return &Profile{Student: *st, Attempts: attempts}, nil
}
