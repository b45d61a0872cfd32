package search

import (
	"context"

	"github.com/sirupsen/logrus"

	"skimeister/internal/models"
)

// ResortSource loads candidate resorts, optionally restricted by country
type ResortSource interface {
	ListResorts(ctx context.Context, country string) ([]models.Resort, error)
}

// NameSearcher resolves a free-text query to matching resort ids
type NameSearcher interface {
	SearchIDs(ctx context.Context, query string, limit int64) ([]uint, error)
}

// Service runs searches against the resort store
type Service struct {
	source ResortSource
	names  NameSearcher
	logger *logrus.Logger
}

// NewService creates a search service. names may be nil, in which case
// name queries fall back to substring matching.
func NewService(source ResortSource, names NameSearcher, logger *logrus.Logger) *Service {
	return &Service{source: source, names: names, logger: logger}
}

// Search loads candidates and runs them through Apply
func (s *Service) Search(ctx context.Context, p Params) ([]Match, error) {
	resorts, err := s.source.ListResorts(ctx, p.Country)
	if err != nil {
		return nil, err
	}

	if p.Query != "" && p.IDs == nil && s.names != nil {
		ids, err := s.names.SearchIDs(ctx, p.Query, int64(len(resorts)+1))
		if err != nil {
			s.logger.WithError(err).WithField("component", "search").
				Warn("name index unavailable, using substring match")
		} else {
			if ids == nil {
				ids = []uint{}
			}
			p.IDs = ids
		}
	}

	return Apply(resorts, p), nil
}
