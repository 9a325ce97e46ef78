package httpserver

import (
	"github.com/rzbill/paystream/internal/metrics"
	logpkg "github.com/rzbill/paystream/pkg/log"
	"github.com/shopspring/decimal"
)

// Transferer moves settled value to an account. Transfers are fire and
// forget: the ledger record is already updated by the time one is scheduled,
// and a failed transfer is surfaced through logs and metrics, not the API
// response.
type Transferer interface {
	Transfer(account string, amount decimal.Decimal)
}

// logTransferer records transfers without moving real funds. It stands in
// until an actual payment rail is wired behind the Transferer port.
type logTransferer struct {
	logger logpkg.Logger
	m      *metrics.Metrics
}

func newLogTransferer(logger logpkg.Logger, m *metrics.Metrics) *logTransferer {
	return &logTransferer{logger: logger, m: m}
}

func (t *logTransferer) Transfer(account string, amount decimal.Decimal) {
	if amount.IsZero() {
		return
	}
	t.logger.Info("transfer scheduled",
		logpkg.Str("account", account),
		logpkg.Str("amount", amount.String()),
	)
	t.m.Transfers.WithLabelValues("scheduled").Inc()
}
