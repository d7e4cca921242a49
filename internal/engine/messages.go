package engine

import (
	"fmt"
	"strings"

	"harvestlink/internal/domain"
	"harvestlink/internal/ussd"
)

const (
	processingErrorMessage = "Sorry, we could not process your request right now. Please try again later."
	benefitsMessage        = "HarvestLink members get:\n- Loss risk alerts\n- Weekly price forecasts\n- Direct buyer contacts\n- Storage and pest advice\nRegistration is free."
)

var adviceTexts = map[string]string{
	"storage": "Storage tips:\n1) Dry grain to below 13% moisture\n2) Store off the floor on pallets\n3) Use hermetic bags or sealed silos\n4) Inspect stock weekly",
	"pests":   "Pest control:\n1) Clean stores before loading\n2) Sort out damaged grain\n3) Use approved storage dusts\n4) Trap and check for weevils weekly",
	"weather": "Weather protection:\n1) Cover produce before rain\n2) Keep stores ventilated on humid days\n3) Raise stacks above flood level\n4) Dry crops again after storms",
	"market":  "Market timing:\n1) Compare prices across markets\n2) Avoid selling at harvest peak\n3) Sell perishables first\n4) Use the price forecast before you sell",
	"general": "Farming tips:\n1) Harvest at full maturity\n2) Handle produce gently\n3) Keep records of yields and sales\n4) Join a cooperative for better prices",
}

// AdviceMessage returns the advice text for a topic of the advice menu.
func AdviceMessage(topic string) string {
	if msg, ok := adviceTexts[topic]; ok {
		return msg
	}
	return adviceTexts["general"]
}

func (d Driver) serviceCode() string {
	if d.ServiceCode != "" {
		return d.ServiceCode
	}
	return "*123#"
}

func (d Driver) invalidMessage() string {
	return fmt.Sprintf("Invalid selection. Please try again.\nDial %s to restart", d.serviceCode())
}

func (d Driver) exitMessage() string {
	return fmt.Sprintf("Thank you for using HarvestLink!\nSMS: send harvest details\nUSSD: dial %s anytime", d.serviceCode())
}

func (d Driver) registeredMessage() string {
	return fmt.Sprintf("You are registered with HarvestLink.\nYou will receive loss alerts and buyer offers by SMS.\nDial %s for more options", d.serviceCode())
}

func (d Driver) formatForecast(f domain.PriceForecast) string {
	rec := "Sell now"
	if f.Trend == "rising" {
		rec = "Hold"
	}
	return fmt.Sprintf("%s PRICE FORECAST\nForecast: %.0f KES/kg\n%d-day trend: %s\nRecommendation: %s\nDial %s for more options",
		strings.ToUpper(f.Crop), f.Price, f.DaysAhead, title(f.Trend), rec, d.serviceCode())
}

// FormatAssessment renders an assessment for one USSD screen. Lines are
// ordered by importance so trimming to the screen budget drops buyers first.
func FormatAssessment(q domain.HarvestQuery, a domain.Assessment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s loss risk (%.0f%% sure)", strings.ToUpper(string(a.RiskTier)), a.Confidence*100)
	if len(a.Advice) > 0 {
		fmt.Fprintf(&b, "\n%s", a.Advice[0])
	}
	fmt.Fprintf(&b, "\nPrice: %.0f KES/kg, %s", a.PriceEstimate, a.PriceTrend)
	if a.Recommend != "" {
		fmt.Fprintf(&b, "\n%s", a.Recommend)
	}
	if len(a.Buyers) == 0 {
		b.WriteString("\nNo buyers yet")
	}
	for _, buyer := range a.Buyers {
		fmt.Fprintf(&b, "\n%s (%s)", buyer.Name, buyer.Location)
	}
	return b.String()
}

// FormatBuyers renders the buyer list for a crop.
func FormatBuyers(crop string, buyers []domain.Buyer) string {
	label := strings.ToUpper(ussd.Label(ussd.Crops, crop))
	if crop == ussd.AllCrops {
		label = "ALL CROPS"
	}
	if len(buyers) == 0 {
		return fmt.Sprintf("No buyers found for %s.\nWe'll notify you when available.", strings.ToLower(label))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "BUYERS FOR %s:", label)
	for i, buyer := range buyers {
		fmt.Fprintf(&b, "\n%d. %s (%s)", i+1, buyer.Name, buyer.Location)
		if buyer.Phone != "" {
			fmt.Fprintf(&b, " %s", buyer.Phone)
		}
	}
	return b.String()
}

func title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
