package usecase

import (
	"context"
	"sync"

	"TradePilot/internal/domain/models"
	drepo "TradePilot/internal/domain/repository"
	xlogger "TradePilot/pkg/logger"
)

// PriceWatcher consumes the live ticker feed and keeps the most recent
// price per asset. The cycle uses it as a fallback when the REST ticker
// is unavailable, so a flaky REST endpoint does not stall every cycle.
type PriceWatcher struct {
	stream  drepo.PriceStream
	metrics drepo.Metrics
	logger  *xlogger.Logger

	mu     sync.RWMutex
	latest map[string]float64
}

func NewPriceWatcher(stream drepo.PriceStream, metrics drepo.Metrics, logger *xlogger.Logger) *PriceWatcher {
	return &PriceWatcher{
		stream:  stream,
		metrics: metrics,
		logger:  logger,
		latest:  make(map[string]float64),
	}
}

func (w *PriceWatcher) Start(ctx context.Context) error {
	if err := w.stream.Connect(ctx); err != nil {
		return err
	}
	if err := w.stream.Subscribe(ctx); err != nil {
		return err
	}
	ticks, errs := w.stream.Read(ctx)
	go w.consume(ctx, ticks, errs)
	return nil
}

func (w *PriceWatcher) consume(ctx context.Context, ticks <-chan *models.Tick, errs <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-errs:
			if err != nil {
				w.metrics.RecordError("stream")
				w.logger.Warn("price stream error, reconnecting", xlogger.Error(err))
				if err := w.stream.Reconnect(ctx); err != nil {
					w.logger.Error("price stream reconnect failed", xlogger.Error(err))
					return
				}
				ticks, errs = w.stream.Read(ctx)
			}
		case t := <-ticks:
			if t == nil {
				continue
			}
			w.mu.Lock()
			w.latest[t.Asset] = t.Price
			w.mu.Unlock()
			w.metrics.RecordLastPrice(t.Asset, t.Price)
		}
	}
}

// LastPrice returns the most recent streamed price for the asset.
func (w *PriceWatcher) LastPrice(asset string) (float64, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	p, ok := w.latest[asset]
	return p, ok
}

func (w *PriceWatcher) IsConnected() bool { return w.stream.IsConnected() }

func (w *PriceWatcher) Stop() error { return w.stream.Close() }
