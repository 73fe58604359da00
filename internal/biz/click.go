package biz

import (
	"context"

	"go-shortener-pipeline/internal/domain"

	"github.com/go-kratos/kratos/v2/log"
)

// ClickUsecase aggregates click events into url counters exactly once per
// event id.
type ClickUsecase struct {
	repo domain.URLRepository
	log  *log.Helper
}

func NewClickUsecase(repo domain.URLRepository, logger log.Logger) *ClickUsecase {
	return &ClickUsecase{
		repo: repo,
		log:  log.NewHelper(log.With(logger, "module", "biz/click")),
	}
}

// Apply returns the number of events that were new.
func (uc *ClickUsecase) Apply(ctx context.Context, events []domain.ClickEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}
	n, err := uc.repo.ApplyClickEvents(ctx, events)
	if err != nil {
		return 0, err
	}
	if dup := len(events) - n; dup > 0 {
		uc.log.WithContext(ctx).Debugw("msg", "duplicate clicks skipped", "count", dup)
	}
	uc.log.WithContext(ctx).Infow("msg", "clicks applied", "received", len(events), "applied", n)
	return n, nil
}
