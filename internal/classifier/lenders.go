package classifier

import "regexp"

// MCAFundingThreshold is the smallest lender credit treated as a disbursal.
// Lender-matched credits at or below it are not MCA activity.
const MCAFundingThreshold = 5000.0

// UnknownLender names MCA activity whose lender cannot be identified.
const UnknownLender = "Unknown Lender"

type lender struct {
	name    string
	pattern *regexp.Regexp
}

func newLender(name, expr string) lender {
	return lender{name: name, pattern: regexp.MustCompile(`(?i)` + expr)}
}

// lenderRegistry is matched in order; the first hit names the lender.
var lenderRegistry = []lender{
	newLender("OnDeck", `\bon\s?deck\b`),
	newLender("Kabbage", `\bkabbage\b`),
	newLender("Credibly", `\bcredibly\b`),
	newLender("Rapid Finance", `\brapid\s?(finance|advance|capital)\b`),
	newLender("Fundbox", `\bfundbox\b`),
	newLender("BlueVine", `\bblue\s?vine\b`),
	newLender("Forward Financing", `\bforward\s?fin`),
	newLender("Yellowstone Capital", `\byellowstone\b`),
	newLender("Pearl Capital", `\bpearl\s?cap`),
	newLender("Libertas Funding", `\blibertas\b`),
	newLender("Fora Financial", `\bfora\s?fin`),
	newLender("National Funding", `\bnational\s?funding\b`),
	newLender("CAN Capital", `\bcan\s?capital\b`),
	newLender("Square Capital", `\bsq(uare)?\s?capital\b|\bsquare\s?loan`),
	newLender("Shopify Capital", `\bshopify\s?capital\b`),
	newLender("PayPal Working Capital", `\bpaypal\s?(working\s?capital|wc\b|loan)`),
	newLender("Stripe Capital", `\bstripe\s?capital\b`),
	newLender("Amazon Lending", `\bamazon\s?lending\b`),
	newLender("Kapitus", `\bkapitus\b`),
	newLender("Mulligan Funding", `\bmulligan\b`),
	newLender("Everest Business Funding", `\beverest\s?(business|bus\b|funding)`),
	newLender("Greenbox Capital", `\bgreen\s?box\b`),
	newLender("Velocity Capital", `\bvelocity\s?capital\b`),
	newLender("Cloudfund", `\bcloud\s?fund\b`),
	newLender("Fundation", `\bfundation\b`),
	newLender("Headway Capital", `\bheadway\b`),
	newLender("Biz2Credit", `\bbiz2credit\b`),
	newLender("Expansion Capital", `\bexpansion\s?capital\b`),
	newLender("Clearco", `\bclear\s?co\b|\bclearbanc\b`),
	newLender("Payability", `\bpayability\b`),
	newLender("1st Merchant Funding", `\b1st\s?merchant\b|\bfirst\s?merchant\s?fund`),
	newLender("Bitty Advance", `\bbitty\b`),
	newLender("Fox Business Funding", `\bfox\s?(business|funding)\b`),
	newLender("Lendini", `\blendini\b`),
	newLender("IOU Financial", `\biou\s?fin`),
	newLender("Itria Ventures", `\bitria\b`),
}

// MatchLender returns the registered lender named in text.
func MatchLender(text string) (string, bool) {
	for _, l := range lenderRegistry {
		if l.pattern.MatchString(text) {
			return l.name, true
		}
	}
	return "", false
}

// Lenders lists the registered lender names in match order.
func Lenders() []string {
	names := make([]string, len(lenderRegistry))
	for i, l := range lenderRegistry {
		names[i] = l.name
	}
	return names
}
