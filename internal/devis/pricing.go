package devis

import "strconv"

// DepositRate is the fixed deposit policy: 40% of TTC, due at order time.
const DepositRate = 0.40

type PricedItem struct {
	Quantity    int
	UnitPriceHT float64
	VATRate     float64
}

type Totals struct {
	HT        float64            `json:"ht"`
	VATByRate map[string]float64 `json:"vat_by_rate"`
	TTC       float64            `json:"ttc"`
	Deposit   float64            `json:"deposit"`
	BaseHT    float64            `json:"base_ht"`
	AddOnsHT  float64            `json:"add_ons_ht"`
}

func (t Totals) VATTotal() float64 {
	var sum float64
	for _, v := range t.VATByRate {
		sum += v
	}
	return sum
}

func RateKey(rate float64) string {
	return strconv.FormatFloat(rate, 'f', -1, 64)
}

// ComputeTotals derives the quote totals from base lines and selected
// add-ons. Every surface that displays amounts goes through this function.
func ComputeTotals(base, addOns []PricedItem) Totals {
	totals := Totals{VATByRate: make(map[string]float64)}

	for _, item := range base {
		lineHT := float64(item.Quantity) * item.UnitPriceHT
		totals.BaseHT += lineHT
		totals.VATByRate[RateKey(item.VATRate)] += lineHT * (item.VATRate / 100)
	}

	for _, item := range addOns {
		lineHT := float64(item.Quantity) * item.UnitPriceHT
		totals.AddOnsHT += lineHT
		totals.VATByRate[RateKey(item.VATRate)] += lineHT * (item.VATRate / 100)
	}

	totals.HT = totals.BaseHT + totals.AddOnsHT
	totals.TTC = totals.HT + totals.VATTotal()
	totals.Deposit = totals.TTC * DepositRate

	return totals
}
