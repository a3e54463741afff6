package oanda

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"pptrader/internal/model"
)

// priceString formats a price the way the API expects.
func priceString(p float64) string {
	return strconv.FormatFloat(p, 'f', 5, 64)
}

type marketOrderBody struct {
	Order struct {
		Type           string `json:"type"`
		Instrument     string `json:"instrument"`
		Units          string `json:"units"`
		TimeInForce    string `json:"timeInForce"`
		PositionFill   string `json:"positionFill"`
		StopLossOnFill *struct {
			Price       string `json:"price"`
			TimeInForce string `json:"timeInForce"`
		} `json:"stopLossOnFill,omitempty"`
		TakeProfitOnFill *struct {
			Price       string `json:"price"`
			TimeInForce string `json:"timeInForce"`
		} `json:"takeProfitOnFill,omitempty"`
	} `json:"order"`
}

type orderFillTransaction struct {
	Price       string `json:"price"`
	Time        string `json:"time"`
	PL          string `json:"pl"`
	TradeOpened *struct {
		TradeID string `json:"tradeID"`
	} `json:"tradeOpened"`
}

type orderResponse struct {
	OrderFillTransaction   *orderFillTransaction `json:"orderFillTransaction"`
	OrderCancelTransaction *struct {
		Reason string `json:"reason"`
	} `json:"orderCancelTransaction"`
}

// MarketOrder places a FOK market order with protective levels attached
// at fill time. A cancel without a fill is an error.
func (c *Client) MarketOrder(ctx context.Context, req model.OrderRequest) (model.OrderResult, error) {
	defer c.timeOp("market_order")()
	var body marketOrderBody
	body.Order.Type = "MARKET"
	body.Order.Instrument = req.Instrument
	body.Order.Units = strconv.FormatInt(req.Units, 10)
	body.Order.TimeInForce = "FOK"
	body.Order.PositionFill = "DEFAULT"
	if req.StopLoss != 0 {
		body.Order.StopLossOnFill = &struct {
			Price       string `json:"price"`
			TimeInForce string `json:"timeInForce"`
		}{priceString(req.StopLoss), "GTC"}
	}
	if req.TakeProfit != 0 {
		body.Order.TakeProfitOnFill = &struct {
			Price       string `json:"price"`
			TimeInForce string `json:"timeInForce"`
		}{priceString(req.TakeProfit), "GTC"}
	}

	var resp orderResponse
	if err := c.do(ctx, http.MethodPost, "/v3/accounts/"+c.accountID+"/orders", body, &resp); err != nil {
		return model.OrderResult{}, err
	}
	if resp.OrderFillTransaction == nil {
		reason := "no fill transaction"
		if resp.OrderCancelTransaction != nil {
			reason = resp.OrderCancelTransaction.Reason
		}
		return model.OrderResult{}, fmt.Errorf("oanda: order not filled: %s", reason)
	}

	return fillToResult(resp.OrderFillTransaction)
}

func fillToResult(fill *orderFillTransaction) (model.OrderResult, error) {
	price, err := strconv.ParseFloat(fill.Price, 64)
	if err != nil {
		return model.OrderResult{}, fmt.Errorf("oanda: fill price %q: %w", fill.Price, err)
	}
	ts, err := time.Parse(time.RFC3339, fill.Time)
	if err != nil {
		return model.OrderResult{}, fmt.Errorf("oanda: fill time %q: %w", fill.Time, err)
	}
	res := model.OrderResult{FillPrice: price, FilledAt: ts.UTC()}
	if fill.TradeOpened != nil {
		res.TradeID = fill.TradeOpened.TradeID
	}
	return res, nil
}

type closeResponse struct {
	LongOrderFillTransaction  *orderFillTransaction `json:"longOrderFillTransaction"`
	ShortOrderFillTransaction *orderFillTransaction `json:"shortOrderFillTransaction"`
}

// ClosePosition closes the full position on the instrument, whichever
// side it is on.
func (c *Client) ClosePosition(ctx context.Context, instrument string) (model.CloseResult, error) {
	defer c.timeOp("close_position")()
	pos, err := c.OpenPosition(ctx, instrument)
	if err != nil {
		return model.CloseResult{}, err
	}
	if pos == nil {
		return model.CloseResult{}, fmt.Errorf("oanda: no open position on %s", instrument)
	}

	body := map[string]string{}
	if pos.Side == model.SideLong {
		body["longUnits"] = "ALL"
	} else {
		body["shortUnits"] = "ALL"
	}

	var resp closeResponse
	path := fmt.Sprintf("/v3/accounts/%s/positions/%s/close", c.accountID, instrument)
	if err := c.do(ctx, http.MethodPut, path, body, &resp); err != nil {
		return model.CloseResult{}, err
	}

	fill := resp.LongOrderFillTransaction
	if fill == nil {
		fill = resp.ShortOrderFillTransaction
	}
	if fill == nil {
		return model.CloseResult{}, fmt.Errorf("oanda: close not filled on %s", instrument)
	}

	price, err := strconv.ParseFloat(fill.Price, 64)
	if err != nil {
		return model.CloseResult{}, fmt.Errorf("oanda: close price %q: %w", fill.Price, err)
	}
	pl, err := strconv.ParseFloat(fill.PL, 64)
	if err != nil {
		return model.CloseResult{}, fmt.Errorf("oanda: close pl %q: %w", fill.PL, err)
	}
	ts, err := time.Parse(time.RFC3339, fill.Time)
	if err != nil {
		return model.CloseResult{}, fmt.Errorf("oanda: close time %q: %w", fill.Time, err)
	}
	return model.CloseResult{FillPrice: price, RealizedPL: pl, ClosedAt: ts.UTC()}, nil
}

// UpdateStopLoss replaces the stop loss order on an open trade.
func (c *Client) UpdateStopLoss(ctx context.Context, instrument, tradeID string, price float64) error {
	defer c.timeOp("update_stop")()
	body := map[string]any{
		"stopLoss": map[string]string{
			"price":       priceString(price),
			"timeInForce": "GTC",
		},
	}
	path := fmt.Sprintf("/v3/accounts/%s/trades/%s/orders", c.accountID, tradeID)
	return c.do(ctx, http.MethodPut, path, body, nil)
}

type positionResponse struct {
	Position struct {
		Long struct {
			Units        string   `json:"units"`
			AveragePrice string   `json:"averagePrice"`
			TradeIDs     []string `json:"tradeIDs"`
		} `json:"long"`
		Short struct {
			Units        string   `json:"units"`
			AveragePrice string   `json:"averagePrice"`
			TradeIDs     []string `json:"tradeIDs"`
		} `json:"short"`
	} `json:"position"`
}

// OpenPosition returns the current position on the instrument, or nil
// when flat. A 404 from the API also means flat.
func (c *Client) OpenPosition(ctx context.Context, instrument string) (*model.Position, error) {
	defer c.timeOp("open_position")()
	var resp positionResponse
	path := fmt.Sprintf("/v3/accounts/%s/positions/%s", c.accountID, instrument)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}

	long, _ := strconv.ParseFloat(resp.Position.Long.Units, 64)
	short, _ := strconv.ParseFloat(resp.Position.Short.Units, 64)

	switch {
	case long > 0:
		price, err := strconv.ParseFloat(resp.Position.Long.AveragePrice, 64)
		if err != nil {
			return nil, fmt.Errorf("oanda: long averagePrice: %w", err)
		}
		pos := &model.Position{Side: model.SideLong, Units: int64(long), EntryPrice: price}
		if ids := resp.Position.Long.TradeIDs; len(ids) > 0 {
			pos.TradeID = ids[0]
		}
		return pos, nil
	case short < 0:
		price, err := strconv.ParseFloat(resp.Position.Short.AveragePrice, 64)
		if err != nil {
			return nil, fmt.Errorf("oanda: short averagePrice: %w", err)
		}
		pos := &model.Position{Side: model.SideShort, Units: int64(-short), EntryPrice: price}
		if ids := resp.Position.Short.TradeIDs; len(ids) > 0 {
			pos.TradeID = ids[0]
		}
		return pos, nil
	default:
		return nil, nil
	}
}
