package main

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"quoting/internal/gateway"
)

// SpreadPricer is the stand-in pricing handler: a flat spread off the
// deposit amount, half taken on the intermediate leg and half on egress.
type SpreadPricer struct {
	half decimal.Decimal
}

func NewSpreadPricer(bps int) *SpreadPricer {
	return &SpreadPricer{
		half: decimal.New(int64(bps), -4).Div(decimal.NewFromInt(2)),
	}
}

func (p *SpreadPricer) Quote(ctx context.Context, q gateway.Quote) (string, string, error) {
	deposit, err := decimal.NewFromString(q.DepositAmount)
	if err != nil {
		return "", "", fmt.Errorf("deposit amount %q: %w", q.DepositAmount, err)
	}
	if deposit.Sign() <= 0 {
		return "", "", fmt.Errorf("deposit amount %s not positive", q.DepositAmount)
	}
	one := decimal.NewFromInt(1)
	intermediate := deposit.Mul(one.Sub(p.half))
	egress := intermediate.Mul(one.Sub(p.half))
	return intermediate.String(), egress.String(), nil
}
