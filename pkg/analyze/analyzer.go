// Package analyze scores extracted products and the site as a whole.
package analyze

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/auditkit/site-auditor/pkg/models"
)

// Analyzer turns an extract checkpoint into an analysis checkpoint.
type Analyzer struct {
	tokens  *TokenCounter
	workers int
	log     *logrus.Entry
}

// New builds an Analyzer that fans out over up to workers goroutines.
func New(tokens *TokenCounter, workers int, log *logrus.Entry) *Analyzer {
	if workers <= 0 {
		workers = 1
	}
	return &Analyzer{tokens: tokens, workers: workers, log: log}
}

// Analyze produces exactly one AnalysisRecord per product, in the order of
// the input, plus the site-level analyses. onProgress (optional) receives
// done/total after each product.
func (a *Analyzer) Analyze(ctx context.Context, in *models.ExtractResult, onProgress func(done, total int)) (*models.AnalysisResult, error) {
	products := in.Products
	records := make([]models.AnalysisRecord, len(products))
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for i, p := range products {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			records[i] = AnalyzeProduct(p, a.tokens)
			n := done.Add(1)
			if onProgress != nil {
				onProgress(int(n), len(products))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &models.AnalysisResult{
		BaseName:       in.BaseName,
		Source:         in.Source,
		GeneratedAt:    time.Now(),
		Summary:        Summarize(in.PagesCrawled, products),
		ContentQuality: ContentQualityOf(products),
		SEO:            SEOOf(products),
		Duplicates:     Duplicates(products),
		Products:       records,
	}

	a.log.WithFields(logrus.Fields{
		"products":    len(records),
		"seo_score":   result.SEO.Score,
		"duplicates":  len(result.Duplicates),
		"readability": result.ContentQuality.Readability,
	}).Infof("Analysis complete for %d product(s)", len(records))
	return result, nil
}
