package gmp

// Layout maps table columns to quote fields; -1 marks a missing column.
type Layout struct {
	Company    int
	Amount     int
	IssuePrice int
	Gain       int
	MinCells   int
	// PriceBand means the issue price column holds a band; the upper bound is used.
	PriceBand bool
}

// SourceSpec describes one premium table publisher.
type SourceSpec struct {
	Name      string
	URL       string
	BackupURL string
	// HeaderHints, when set, restrict parsing to tables whose header row
	// mentions at least one of them.
	HeaderHints []string
	Layout      Layout
}

func DefaultSources() []SourceSpec {
	return []SourceSpec{
		{
			Name:        "ipowatch",
			URL:         "https://ipowatch.in/ipo-grey-market-premium-latest-ipo-gmp/",
			BackupURL:   "https://ipowatch.in/live-ipo-gmp-today/",
			HeaderHints: []string{"gmp", "premium", "grey", "gain", "listing"},
			Layout:      Layout{Company: 0, Amount: 1, IssuePrice: 2, Gain: 3, MinCells: 4},
		},
		{
			Name:   "investorgain",
			URL:    "https://www.investorgain.com/report/live-ipo-gmp/331/",
			Layout: Layout{Company: 0, IssuePrice: 1, Amount: 2, Gain: 4, MinCells: 5},
		},
		{
			Name:   "chittorgarh",
			URL:    "https://www.chittorgarh.com/ipo_grey_market_premium.asp",
			Layout: Layout{Company: 0, IssuePrice: 1, Amount: 2, Gain: 4, MinCells: 4, PriceBand: true},
		},
	}
}

// FilterSources keeps the named sources; an empty list keeps all of them.
func FilterSources(all []SourceSpec, names []string) []SourceSpec {
	if len(names) == 0 {
		return all
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	out := make([]SourceSpec, 0, len(names))
	for _, s := range all {
		if want[s.Name] {
			out = append(out, s)
		}
	}
	return out
}
