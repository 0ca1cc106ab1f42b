package services

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/username/cryptofolio/src/ledger"
	"github.com/username/cryptofolio/src/logger"
	"github.com/username/cryptofolio/src/models"
	"github.com/username/cryptofolio/src/processors"
)

const (
	ckTaxReport = "res_tax_report_rev_"

	DefaultCacheExpiration = 15 * time.Minute
	CacheCleanupInterval   = 30 * time.Minute
)

type reportServiceImpl struct {
	store       *ledger.Store
	fifo        *processors.FIFOProcessor
	taxYear     *processors.TaxYearProcessor
	reportCache *cache.Cache
}

func NewReportService(
	store *ledger.Store,
	fifo *processors.FIFOProcessor,
	taxYear *processors.TaxYearProcessor,
	reportCache *cache.Cache,
) ReportService {
	return &reportServiceImpl{
		store:       store,
		fifo:        fifo,
		taxYear:     taxYear,
		reportCache: reportCache,
	}
}

// GenerateReport replays the full active ledger through the lot matcher and
// aggregates per tax year. The cache key embeds the ledger revision, so any
// write since the last run is an automatic cache miss.
func (s *reportServiceImpl) GenerateReport() (*models.TaxReport, error) {
	revision, err := s.store.Revision()
	if err != nil {
		return nil, err
	}
	cacheKey := ckTaxReport + revision
	if cached, found := s.reportCache.Get(cacheKey); found {
		logger.L.Debug("cache hit for tax report", "revision", revision)
		return cached.(*models.TaxReport), nil
	}

	startTime := time.Now()
	txs, err := s.store.ActiveTransactions()
	if err != nil {
		return nil, err
	}

	assets := distinctAssets(txs)
	disposals, holdings, calcErrors := s.replayAssets(assets, txs)

	report := &models.TaxReport{
		GeneratedAt: time.Now().UTC(),
		RunID:       uuid.New().String(),
		Summaries:   s.taxYear.Aggregate(disposals),
		Disposals:   disposals,
		Holdings:    holdings,
		Errors:      calcErrors,
	}
	s.reportCache.Set(cacheKey, report, DefaultCacheExpiration)
	logger.L.Info("tax report generated",
		"runID", report.RunID,
		"assets", len(assets),
		"disposals", len(disposals),
		"errors", len(calcErrors),
		"duration", time.Since(startTime))
	return report, nil
}

// replayAssets runs the matcher per asset concurrently. Assets are
// independent replay streams, so an integrity failure in one withholds only
// that asset's figures.
func (s *reportServiceImpl) replayAssets(assets []string, txs []models.Transaction) ([]models.DisposalResult, []models.Holding, []models.CalculationError) {
	var (
		mu         sync.Mutex
		wg         sync.WaitGroup
		disposals  []models.DisposalResult
		holdings   []models.Holding
		calcErrors []models.CalculationError
	)

	for _, asset := range assets {
		wg.Add(1)
		go func(asset string) {
			defer wg.Done()
			assetDisposals, lots, err := s.fifo.Process(asset, txs)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				var oversold *processors.OversoldError
				if errors.As(err, &oversold) {
					logger.L.Warn("asset withheld from report", "asset", asset, "error", err)
					calcErrors = append(calcErrors, models.CalculationError{Asset: asset, Reason: err.Error()})
					return
				}
				calcErrors = append(calcErrors, models.CalculationError{Asset: asset, Reason: err.Error()})
				return
			}
			disposals = append(disposals, assetDisposals...)
			for _, lot := range lots {
				holdings = append(holdings, models.Holding{
					Asset:      lot.Asset,
					AcquiredAt: lot.AcquiredAt,
					Quantity:   lot.Remaining,
					UnitCost:   lot.UnitCost,
					CostBasis:  lot.Remaining.Mul(lot.UnitCost),
				})
			}
		}(asset)
	}
	wg.Wait()

	sort.Slice(disposals, func(i, j int) bool {
		if !disposals[i].Timestamp.Equal(disposals[j].Timestamp) {
			return disposals[i].Timestamp.Before(disposals[j].Timestamp)
		}
		return disposals[i].TransactionID < disposals[j].TransactionID
	})
	sort.Slice(holdings, func(i, j int) bool {
		if holdings[i].Asset != holdings[j].Asset {
			return holdings[i].Asset < holdings[j].Asset
		}
		return holdings[i].AcquiredAt.Before(holdings[j].AcquiredAt)
	})
	sort.Slice(calcErrors, func(i, j int) bool { return calcErrors[i].Asset < calcErrors[j].Asset })
	return disposals, holdings, calcErrors
}

func distinctAssets(txs []models.Transaction) []string {
	seen := make(map[string]bool)
	var assets []string
	for _, tx := range txs {
		if !tx.IsTaxable {
			continue
		}
		if !seen[tx.Asset] {
			seen[tx.Asset] = true
			assets = append(assets, tx.Asset)
		}
	}
	sort.Strings(assets)
	return assets
}
