// Package salary turns the compensation data of a raw posting into an
// annual USD range.
package salary

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/amishk599/jobradar/internal/model"
)

const (
	// HoursPerYear is the full-time hours used to annualize hourly pay.
	HoursPerYear = 2080
	// MonthsPerYear annualizes monthly pay.
	MonthsPerYear = 12

	// minPlausibleAnnual rejects bare figures that cannot be a yearly salary
	// (e.g. "$500 signing bonus").
	minPlausibleAnnual = 1000
)

// Result is the normalized salary of one posting. Min and Max are both nil
// or both set with *Min <= *Max.
type Result struct {
	MinAnnualUSD     *int64
	MaxAnnualUSD     *int64
	CurrencyOriginal string
}

// Normalizer is safe for concurrent use. The zero value converts only USD.
type Normalizer struct {
	rates map[string]float64 // USD per one unit of currency
}

// New returns a Normalizer. rates maps ISO currency codes to the USD value of
// one unit; currencies without a rate are recorded but not converted.
func New(rates map[string]float64) *Normalizer {
	r := make(map[string]float64, len(rates))
	for code, rate := range rates {
		if rate > 0 {
			r[strings.ToUpper(code)] = rate
		}
	}
	return &Normalizer{rates: r}
}

// Normalize resolves the salary of a posting. Structured fields win over the
// compensation text, which wins over figures found in the description. In
// the description only amounts with an explicit currency marker count.
func (n *Normalizer) Normalize(c model.Compensation, description string) Result {
	defaultCur := strings.ToUpper(strings.TrimSpace(c.Currency))
	if defaultCur == "" {
		defaultCur = "USD"
	}

	if f, ok := fromStructured(c, defaultCur); ok {
		return n.convert(f)
	}
	if f, ok := parse(c.Text, defaultCur, false); ok {
		return n.convert(f)
	}
	if f, ok := parse(description, defaultCur, true); ok {
		return n.convert(f)
	}
	return Result{}
}

// figure is an amount range before conversion to USD.
type figure struct {
	min, max float64
	currency string
	period   model.Period
}

func (f figure) annual() (float64, float64) {
	mult := 1.0
	switch f.period {
	case model.PeriodHour:
		mult = HoursPerYear
	case model.PeriodMonth:
		mult = MonthsPerYear
	}
	return f.min * mult, f.max * mult
}

func (n *Normalizer) convert(f figure) Result {
	res := Result{CurrencyOriginal: f.currency}

	rate := 1.0
	if f.currency != "USD" {
		r, ok := n.rates[f.currency]
		if !ok {
			return res
		}
		rate = r
	}

	lo, hi := f.annual()
	if lo > hi {
		lo, hi = hi, lo
	}
	minUSD := int64(math.Round(lo * rate))
	maxUSD := int64(math.Round(hi * rate))
	res.MinAnnualUSD = &minUSD
	res.MaxAnnualUSD = &maxUSD
	return res
}

func fromStructured(c model.Compensation, currency string) (figure, bool) {
	var lo, hi float64
	if c.Min != nil && *c.Min > 0 {
		lo = *c.Min
	}
	if c.Max != nil && *c.Max > 0 {
		hi = *c.Max
	}
	switch {
	case lo == 0 && hi == 0:
		return figure{}, false
	case lo == 0:
		lo = hi
	case hi == 0:
		hi = lo
	}

	period := c.Period
	if period == model.PeriodUnknown {
		period = periodKeyword(strings.ToLower(c.Text))
	}
	f := figure{min: lo, max: hi, currency: currency, period: period}
	if !plausible(f) {
		return figure{}, false
	}
	return f, true
}

const (
	curSymbols = `US\$|CA\$|C\$|AU\$|A\$|NZ\$|S\$|\$|€|£|₹|¥`
	curCodes   = `USD|CAD|AUD|NZD|SGD|EUR|GBP|INR|JPY|CHF|SEK|NOK|DKK|PLN|CZK|BRL|MXN`
	amount     = `\d{1,3}(?:[,.]\d{3})+|\d+(?:\.\d+)?`
)

var amountRe = regexp.MustCompile(
	`(?i)(?P<cur>` + curSymbols + `|\b(?:` + curCodes + `)\s?)?` +
		`(?P<n1>` + amount + `)\s*(?P<k1>k\b)?` +
		`(?:\s*(?:-|–|—|to)\s*(?:` + curSymbols + `|\b(?:` + curCodes + `)\s?)?` +
		`(?P<n2>` + amount + `)\s*(?P<k2>k\b)?)?` +
		`(?:\s*(?P<cur2>€|£|\b(?:` + curCodes + `)\b))?`,
)

var symbolCurrency = map[string]string{
	"US$": "USD", "$": "USD",
	"CA$": "CAD", "C$": "CAD",
	"AU$": "AUD", "A$": "AUD",
	"NZ$": "NZD", "S$": "SGD",
	"€": "EUR", "£": "GBP", "₹": "INR", "¥": "JPY",
}

// dollarCurrencies are defaults under which a bare "$" keeps the default.
var dollarCurrencies = map[string]bool{"USD": true, "CAD": true, "AUD": true, "NZD": true, "SGD": true}

// parse finds the first plausible amount or range in text. With
// requireMarker set, amounts without a currency marker are skipped.
func parse(text, defaultCur string, requireMarker bool) (figure, bool) {
	if strings.TrimSpace(text) == "" {
		return figure{}, false
	}
	// Period words elsewhere in a long description say nothing about the amount.
	wholePeriod := model.PeriodUnknown
	if !requireMarker {
		wholePeriod = periodKeyword(strings.ToLower(text))
	}

	for _, m := range amountRe.FindAllStringSubmatchIndex(text, -1) {
		group := func(name string) string {
			i := amountRe.SubexpIndex(name)
			if m[2*i] < 0 {
				return ""
			}
			return text[m[2*i]:m[2*i+1]]
		}

		// A bare "$" says dollars, not which ones; a trailing code
		// ("$120k CAD") settles it.
		marker := strings.TrimSpace(group("cur"))
		if cur2 := strings.TrimSpace(group("cur2")); cur2 != "" && (marker == "" || marker == "$") {
			marker = cur2
		}
		if marker == "" && requireMarker {
			continue
		}

		n1, ok := parseAmount(group("n1"))
		if !ok {
			continue
		}
		n2 := n1
		if s := group("n2"); s != "" {
			if n2, ok = parseAmount(s); !ok {
				continue
			}
		}
		k1, k2 := group("k1") != "", group("k2") != ""
		if k1 {
			n1 *= 1000
		}
		if k2 {
			n2 *= 1000
			if !k1 && n1 < 1000 {
				n1 *= 1000
			}
		} else if group("n2") == "" && k1 {
			n2 = n1
		}

		period := periodKeyword(strings.ToLower(text[m[1]:min(len(text), m[1]+24)]))
		if period == model.PeriodUnknown {
			period = wholePeriod
		}

		f := figure{min: n1, max: n2, currency: currencyOf(marker, defaultCur), period: period}
		if f.min > f.max {
			f.min, f.max = f.max, f.min
		}
		if !plausible(f) {
			continue
		}
		return f, true
	}
	return figure{}, false
}

func parseAmount(s string) (float64, bool) {
	// "120,000" and "50.000" are thousands groups; "75.50" is a decimal.
	if len(s) > 4 && (s[len(s)-4] == ',' || s[len(s)-4] == '.') {
		s = strings.NewReplacer(",", "", ".", "").Replace(s)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

func currencyOf(marker, defaultCur string) string {
	if marker == "" {
		return defaultCur
	}
	if marker == "$" && dollarCurrencies[defaultCur] {
		return defaultCur
	}
	if code, ok := symbolCurrency[strings.ToUpper(marker)]; ok {
		return code
	}
	return strings.ToUpper(marker)
}

// plausible rejects figures that annualize to a trivially small number.
func plausible(f figure) bool {
	lo, _ := f.annual()
	return lo > minPlausibleAnnual
}

var periodKeywords = []struct {
	period model.Period
	words  []string
}{
	{model.PeriodHour, []string{"/hr", "/hour", "per hour", "an hour", "hourly", "p/h"}},
	{model.PeriodMonth, []string{"/mo", "/month", "per month", "a month", "monthly", "p.m."}},
	{model.PeriodYear, []string{"/yr", "/year", "per year", "a year", "annually", "per annum", "p.a", "annual", "yearly"}},
}

func periodKeyword(lower string) model.Period {
	for _, pk := range periodKeywords {
		for _, w := range pk.words {
			if strings.Contains(lower, w) {
				return pk.period
			}
		}
	}
	return model.PeriodUnknown
}
