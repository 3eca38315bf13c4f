package stream

import (
	"btcpulse/internal/binance/memorystore"
	"btcpulse/internal/metrics"
	"btcpulse/pkg/binance"

	"go.uber.org/zap"
)

// Handler routes decoded stream events: mini tickers update the snapshot,
// trades and klines are logged and counted.
type Handler struct {
	store  *memorystore.SnapshotStore
	logger *zap.Logger
}

func NewHandler(store *memorystore.SnapshotStore, logger *zap.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

func (h *Handler) OnTrade(t *binance.Trade) {
	metrics.EventsHandled.WithLabelValues(string(binance.EventTrade)).Inc()
	h.logger.Debug("trade",
		zap.String("symbol", t.Symbol),
		zap.String("price", t.Price.String()),
		zap.String("quantity", t.Quantity.String()),
		zap.Time("trade_time", t.TradeTime),
	)
}

func (h *Handler) OnMiniTicker(m *binance.MiniTicker) {
	metrics.EventsHandled.WithLabelValues(string(binance.EventMiniTicker)).Inc()
	h.store.Update(m)
	metrics.SnapshotUpdates.Inc()
	metrics.LastPrice.Set(m.Close.InexactFloat64())

	h.logger.Debug("mini ticker",
		zap.String("symbol", m.Symbol),
		zap.String("close", m.Close.String()),
		zap.String("high", m.High.String()),
		zap.String("low", m.Low.String()),
		zap.String("volume", m.Volume.String()),
	)
}

func (h *Handler) OnKline(k *binance.Kline) {
	metrics.EventsHandled.WithLabelValues(string(binance.EventKline)).Inc()

	fields := []zap.Field{
		zap.String("symbol", k.Symbol),
		zap.String("interval", string(k.Interval)),
		zap.String("open", k.Open.String()),
		zap.String("high", k.High.String()),
		zap.String("low", k.Low.String()),
		zap.String("close", k.Close.String()),
		zap.String("volume", k.Volume.String()),
	}
	// Only the final update of a bar is worth an info line.
	if k.Closed {
		h.logger.Info("kline closed", append(fields, zap.Time("start", k.StartTime))...)
		return
	}
	h.logger.Debug("kline", fields...)
}
