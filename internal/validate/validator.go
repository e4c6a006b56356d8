package validate

import (
	"fmt"

	"github.com/SirQuantumZero/Data-Manager/internal/domain"
)

// Result holds the outcome of validating a bar series. When Valid is
// false, Errors lists every defect found, not just the first one.
type Result struct {
	Valid  bool
	Errors []string
}

// Validator checks fetched bar series before they are cached or persisted.
// Each rule runs independently over the whole series so one defect does
// not mask another.
type Validator struct {
	rules []rule
}

type rule struct {
	name  string
	check func(bars []*domain.Bar) []string
}

// New creates a Validator with the standard rule set: required fields,
// price consistency, and non-negative quantities.
func New() *Validator {
	return &Validator{
		rules: []rule{
			{name: "required fields", check: checkRequiredFields},
			{name: "price consistency", check: checkPriceConsistency},
			{name: "non-negative quantities", check: checkQuantities},
		},
	}
}

// Validate runs every rule over bars and accumulates their findings.
// An empty series is invalid with a single error; it is never passed to
// the individual rules.
func (v *Validator) Validate(bars []*domain.Bar) Result {
	if len(bars) == 0 {
		return Result{Valid: false, Errors: []string{"series is empty"}}
	}

	var errs []string
	for _, r := range v.rules {
		errs = append(errs, r.check(bars)...)
	}
	return Result{Valid: len(errs) == 0, Errors: errs}
}

// checkRequiredFields verifies every bar carries a symbol, a timestamp
// and all four prices. A zero price is treated as missing.
func checkRequiredFields(bars []*domain.Bar) []string {
	var errs []string
	for i, bar := range bars {
		if bar == nil {
			errs = append(errs, fmt.Sprintf("bar %d: is nil", i))
			continue
		}
		if bar.Symbol == "" {
			errs = append(errs, fmt.Sprintf("bar %d: missing symbol", i))
		}
		if bar.Timestamp.IsZero() {
			errs = append(errs, fmt.Sprintf("bar %d: missing timestamp", i))
		}
		if bar.Open <= 0 {
			errs = append(errs, fmt.Sprintf("bar %d: missing or non-positive open price (%v)", i, bar.Open))
		}
		if bar.High <= 0 {
			errs = append(errs, fmt.Sprintf("bar %d: missing or non-positive high price (%v)", i, bar.High))
		}
		if bar.Low <= 0 {
			errs = append(errs, fmt.Sprintf("bar %d: missing or non-positive low price (%v)", i, bar.Low))
		}
		if bar.Close <= 0 {
			errs = append(errs, fmt.Sprintf("bar %d: missing or non-positive close price (%v)", i, bar.Close))
		}
	}
	return errs
}

// checkPriceConsistency verifies open and close sit inside the low/high
// range of each bar.
func checkPriceConsistency(bars []*domain.Bar) []string {
	var errs []string
	for i, bar := range bars {
		if bar == nil {
			continue
		}
		if bar.High < bar.Low {
			errs = append(errs, fmt.Sprintf("bar %d: high %v is below low %v", i, bar.High, bar.Low))
		}
		if bar.Open < bar.Low || bar.Open > bar.High {
			errs = append(errs, fmt.Sprintf("bar %d: open %v outside low/high range [%v, %v]", i, bar.Open, bar.Low, bar.High))
		}
		if bar.Close < bar.Low || bar.Close > bar.High {
			errs = append(errs, fmt.Sprintf("bar %d: close %v outside low/high range [%v, %v]", i, bar.Close, bar.Low, bar.High))
		}
	}
	return errs
}

// checkQuantities verifies volume is non-negative and, when present, the
// optional VWAP and transaction count fields are sane.
func checkQuantities(bars []*domain.Bar) []string {
	var errs []string
	for i, bar := range bars {
		if bar == nil {
			continue
		}
		if bar.Volume < 0 {
			errs = append(errs, fmt.Sprintf("bar %d: negative volume (%d)", i, bar.Volume))
		}
		if bar.VWAP != nil && *bar.VWAP <= 0 {
			errs = append(errs, fmt.Sprintf("bar %d: non-positive VWAP (%v)", i, *bar.VWAP))
		}
		if bar.Transactions != nil && *bar.Transactions < 0 {
			errs = append(errs, fmt.Sprintf("bar %d: negative transaction count (%d)", i, *bar.Transactions))
		}
	}
	return errs
}
