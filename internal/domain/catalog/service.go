package catalog

import (
	"context"
	"fmt"
	"log/slog"
)

// Repository is the persistence surface of the catalog service.
type Repository interface {
	ListCourses(ctx context.Context) ([]Course, error)
	GetCourse(ctx context.Context, code string) (*Course, error)
	ListPrograms(ctx context.Context) ([]Program, error)
	ListCohorts(ctx context.Context) ([]Cohort, error)
	ListCurriculum(ctx context.Context, programCode string) ([]CurriculumEntry, error)
}

// Service exposes catalog reads plus full-text course search.
type Service struct {
	repo   Repository
	search *SearchIndex
	logger *slog.Logger
}

func NewService(repo Repository, search *SearchIndex, logger *slog.Logger) *Service {
	return &Service{repo: repo, search: search, logger: logger}
}

func (s *Service) Courses(ctx context.Context) ([]Course, error) {
	return s.repo.ListCourses(ctx)
}

func (s *Service) Course(ctx context.Context, code string) (*Course, error) {
	return s.repo.GetCourse(ctx, code)
}

func (s *Service) Programs(ctx context.Context) ([]Program, error) {
	return s.repo.ListPrograms(ctx)
}

func (s *Service) Cohorts(ctx context.Context) ([]Cohort, error) {
	return s.repo.ListCohorts(ctx)
}

func (s *Service) Curriculum(ctx context.Context, programCode string) ([]CurriculumEntry, error) {
	return s.repo.ListCurriculum(ctx, programCode)
}

// RefreshIndex reloads the search index from the database; called at startup
// and after any import that touched courses.
func (s *Service) RefreshIndex(ctx context.Context) error {
	if s.search == nil {
		return nil
	}
	courses, err := s.repo.ListCourses(ctx)
	if err != nil {
		return fmt.Errorf("refreshing course index: %w", err)
	}
	if err := s.search.IndexCourses(courses); err != nil {
		return err
	}
	s.logger.Debug("course search index refreshed", "courses", len(courses))
	return nil
}

// SearchCourses runs a typo-tolerant name search.
func (s *Service) SearchCourses(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	if s.search == nil {
		return nil, nil
	}
	return s.search.Search(query, limit)
}
