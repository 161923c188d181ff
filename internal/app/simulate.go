package app

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"crypto-tracker/internal/alerting"
	"crypto-tracker/internal/analyzer"
)

// SimulateAlert 通过给定的前后价格模拟一次告警流程，不写数据库。
func (a *App) SimulateAlert(ctx context.Context, asset string, previous, current decimal.Decimal) error {
	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("未配置任何告警通道")
	}

	threshold := decimal.NewFromFloat(a.Config.Alerting.ThresholdPct)
	change := analyzer.ChangePct(previous, current)

	if change.Abs().LessThan(threshold) {
		a.Logger.Info().
			Str("asset", asset).
			Str("change_pct", change.StringFixed(2)).
			Msg("simulated change below threshold; no alert sent")
		return nil
	}

	note := alerting.Notification{
		Asset:         asset,
		PreviousPrice: previous,
		CurrentPrice:  current,
		ChangePct:     change,
		ThresholdPct:  threshold,
		FetchedAt:     time.Now().UTC(),
	}
	return notifier.Notify(ctx, note)
}
