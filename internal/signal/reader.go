package signal

import (
	"context"
	"fmt"

	"pptrader/internal/indicator"
	"pptrader/internal/model"
)

// Reader fetches a candle window, computes the indicator and interprets
// the result. It is the live implementation of model.SignalSource.
type Reader struct {
	md          model.MarketData
	instrument  string
	granularity string
	count       int
	params      indicator.Params
	interp      *Interpreter
}

// NewReader returns a Reader for one instrument and granularity. count
// must cover the indicator's warmup; params.MinCandles() is the floor.
func NewReader(md model.MarketData, instrument, granularity string, count int, params indicator.Params, interp *Interpreter) *Reader {
	return &Reader{
		md:          md,
		instrument:  instrument,
		granularity: granularity,
		count:       count,
		params:      params,
		interp:      interp,
	}
}

// Read produces the current signal reading.
func (r *Reader) Read(ctx context.Context) (model.SignalInfo, error) {
	candles, err := r.md.Candles(ctx, r.instrument, r.granularity, r.count)
	if err != nil {
		return model.SignalInfo{}, fmt.Errorf("signal: fetch candles: %w", err)
	}

	rows, err := indicator.Compute(candles, r.params)
	if err != nil {
		return model.SignalInfo{}, fmt.Errorf("signal: compute: %w", err)
	}

	info, err := r.interp.Interpret(candles, rows)
	if err != nil {
		return model.SignalInfo{}, fmt.Errorf("signal: interpret: %w", err)
	}
	return info, nil
}
