package ai

import (
	"fmt"
	"strings"

	"IPOPulse/internal/domain/service"
)

const systemPrompt = "You are an IPO analyst. Predict listing-day performance from the facts given. " +
	"Do not use grey market premium data. Reply with a single JSON object and nothing else."

// BuildPrompt renders the listing facts and the expected reply schema.
func BuildPrompt(d service.ListingDetails) string {
	var b strings.Builder
	l := d.Listing

	b.WriteString("IPO DETAILS:\n")
	fmt.Fprintf(&b, "- Company: %s\n", orUnknown(l.CompanyName))
	fmt.Fprintf(&b, "- Symbol: %s\n", orUnknown(l.Symbol))
	fmt.Fprintf(&b, "- Series: %s\n", orUnknown(l.Series))
	fmt.Fprintf(&b, "- Price band: %s\n", orUnknown(l.PriceRange))
	fmt.Fprintf(&b, "- Issue size: %s\n", orUnknown(l.IssueSize))
	fmt.Fprintf(&b, "- Status: %s\n", orUnknown(l.Status))
	fmt.Fprintf(&b, "- Issue open: %s, close: %s\n", orUnknown(l.OpenDate), orUnknown(l.CloseDate))

	if s := d.Subscription; s.HasData() {
		b.WriteString("\nSUBSCRIPTION (times):\n")
		fmt.Fprintf(&b, "- Total: %.2fx\n", s.Total)
		fmt.Fprintf(&b, "- Institutional (QIB): %.2fx\n", s.Institutional)
		fmt.Fprintf(&b, "- Non-institutional: %.2fx\n", s.NonInstitutional)
		fmt.Fprintf(&b, "- Retail: %.2fx\n", s.Retail)
		if s.Employee > 0 {
			fmt.Fprintf(&b, "- Employee: %.2fx\n", s.Employee)
		}
	}

	b.WriteString(`
Reply in exactly this JSON shape:
{
  "recommendation": "STRONG_BUY|BUY|MODERATE_BUY|HOLD|AVOID|STRONG_AVOID",
  "expected_gain_percent": 12.5,
  "confidence": "HIGH|MEDIUM|LOW",
  "risk_level": "LOW|MEDIUM|HIGH",
  "reasoning": "one or two sentences"
}
Use "INSUFFICIENT_DATA" as the recommendation when the facts are not enough.`)
	return b.String()
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Unknown"
	}
	return s
}
