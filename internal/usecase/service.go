package usecase

import (
	"context"
	"time"

	"github.com/naka-gawa/contributor-stats/internal/domain"
	"go.uber.org/zap"
)

// Request describes one report.
type Request struct {
	ProcessOptions
	// CombineAllYears aggregates every contribution year; otherwise only the
	// trailing year is considered.
	CombineAllYears bool
}

// Service builds reports by aggregating contributions and processing them.
// It is shared by the CLI and the HTTP server.
type Service struct {
	aggregator *Aggregator
	processor  *Processor
	logger     *zap.Logger
	now        func() time.Time
}

// NewService creates a new Service instance.
func NewService(aggregator *Aggregator, processor *Processor, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		aggregator: aggregator,
		processor:  processor,
		logger:     logger,
		now:        time.Now,
	}
}

// Generate produces the report for req.Username.
func (s *Service) Generate(ctx context.Context, req Request) (*domain.Report, error) {
	s.logger.Info("generating report",
		zap.String("user", req.Username),
		zap.Bool("combine_all_years", req.CombineAllYears))

	var (
		contributions *domain.UserContributions
		err           error
	)
	if req.CombineAllYears {
		contributions, err = s.aggregator.Aggregate(ctx, req.Username)
	} else {
		contributions, err = s.aggregator.AggregateRange(ctx, req.Username, domain.TrailingYear(s.now()))
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.processor.Process(ctx, contributions.Repositories, req.ProcessOptions)
	if err != nil {
		return nil, err
	}
	return &domain.Report{
		Username: req.Username,
		Name:     contributions.Name,
		Rows:     rows,
		Summary:  Summarize(rows),
	}, nil
}
