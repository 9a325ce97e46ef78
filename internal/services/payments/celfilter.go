package paymentsvc

import (
	"strings"
	"time"

	"github.com/google/cel-go/cel"
)

// celFilter wraps a compiled CEL program used by the List query. When
// disabled, Eval always returns true.
type celFilter struct {
	prog    cel.Program
	enabled bool
}

func newCELFilter(expr string) (celFilter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return celFilter{enabled: false}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("id", cel.IntType),
		cel.Variable("issuer", cel.StringType),
		cel.Variable("receiver", cel.StringType),
		cel.Variable("total", cel.DoubleType),
		cel.Variable("payment", cel.DoubleType),
		cel.Variable("period_days", cel.DoubleType),
		cel.Variable("approved", cel.BoolType),
		cel.Variable("initiated_ms", cel.IntType),
		cel.Variable("last_payment_ms", cel.IntType),
		cel.Variable("now_ms", cel.IntType),
	)
	if err != nil {
		return celFilter{}, err
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return celFilter{}, iss.Err()
	}
	checked, iss2 := env.Check(ast)
	if iss2 != nil && iss2.Err() != nil {
		return celFilter{}, iss2.Err()
	}
	prog, err := env.Program(checked)
	if err != nil {
		return celFilter{}, err
	}
	return celFilter{prog: prog, enabled: true}, nil
}

// Eval evaluates the compiled expression against one stream. When disabled,
// returns true.
func (f celFilter) Eval(info StreamInfo) bool {
	if !f.enabled {
		return true
	}
	var initiatedMs, lastPaymentMs int64
	if info.InitiatedAt != nil {
		initiatedMs = int64(*info.InitiatedAt / uint64(time.Millisecond))
	}
	if info.LastPaymentAt != nil {
		lastPaymentMs = int64(*info.LastPaymentAt / uint64(time.Millisecond))
	}
	out, _, err := f.prog.Eval(map[string]any{
		"id":              int64(info.ID),
		"issuer":          info.Issuer,
		"receiver":        info.Receiver,
		"total":           info.TotalAmount.InexactFloat64(),
		"payment":         info.PaymentAmount.InexactFloat64(),
		"period_days":     float64(info.PeriodDuration) / float64(24*time.Hour),
		"approved":        info.Approved,
		"initiated_ms":    initiatedMs,
		"last_payment_ms": lastPaymentMs,
		"now_ms":          time.Now().UnixMilli(),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
