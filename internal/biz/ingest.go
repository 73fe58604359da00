package biz

import (
	"context"

	"go-shortener-pipeline/internal/domain"

	"github.com/go-kratos/kratos/v2/log"
)

// URLIngestUsecase stores urls consumed from new-urls. Re-delivered urls are
// absorbed by the conflict-ignore insert.
type URLIngestUsecase struct {
	repo domain.URLRepository
	log  *log.Helper
}

func NewURLIngestUsecase(repo domain.URLRepository, logger log.Logger) *URLIngestUsecase {
	return &URLIngestUsecase{
		repo: repo,
		log:  log.NewHelper(log.With(logger, "module", "biz/ingest")),
	}
}

// AddBulk returns the number of urls actually inserted.
func (uc *URLIngestUsecase) AddBulk(ctx context.Context, urls []*domain.URL) (int, error) {
	if len(urls) == 0 {
		return 0, nil
	}
	n, err := uc.repo.AddBulk(ctx, urls)
	if err != nil {
		return 0, err
	}
	uc.log.WithContext(ctx).Infow("msg", "urls ingested", "received", len(urls), "inserted", n)
	return n, nil
}
