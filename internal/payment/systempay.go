// Package payment builds SystemPay (Lyra) hosted payment page requests for
// the quote deposit.
package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Config carries the SystemPay merchant settings.
type Config struct {
	SiteID      string
	Certificate string
	// Mode is the vads_ctx_mode value: TEST or PRODUCTION.
	Mode string
}

// Request is a signed, ready-to-post form for the hosted payment page.
type Request struct {
	// Fields are the vads_* form fields, signature excluded.
	Fields map[string]string `json:"fields"`
	// Signature is the HMAC-SHA256 signature field.
	Signature string `json:"signature"`
}

// Builder produces signed payment requests.
type Builder struct {
	cfg Config
	now func() time.Time
}

// NewBuilder constructs the request builder.
func NewBuilder(cfg Config) *Builder {
	return &Builder{cfg: cfg, now: time.Now}
}

// Build assembles the deposit payment form for a quote. depositTTC is in
// euros; the gateway wants integer cents.
func (b *Builder) Build(orderID, customerEmail string, depositTTC float64) Request {
	now := b.now().UTC()

	fields := map[string]string{
		"vads_action_mode":    "INTERACTIVE",
		"vads_amount":         fmt.Sprintf("%d", Cents(depositTTC)),
		"vads_ctx_mode":       b.cfg.Mode,
		"vads_currency":       "978",
		"vads_cust_email":     customerEmail,
		"vads_order_id":       orderID,
		"vads_page_action":    "PAYMENT",
		"vads_payment_config": "SINGLE",
		"vads_site_id":        b.cfg.SiteID,
		"vads_trans_date":     now.Format("20060102150405"),
		"vads_trans_id":       transID(now),
		"vads_version":        "V2",
	}

	return Request{
		Fields:    fields,
		Signature: Sign(fields, b.cfg.Certificate),
	}
}

// Sign computes the SystemPay signature: the vads_* values sorted by field
// name, joined with '+', the certificate appended, HMAC-SHA256 under the
// certificate, base64-encoded.
func Sign(fields map[string]string, certificate string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if strings.HasPrefix(k, "vads_") {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	values := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		values = append(values, fields[k])
	}
	values = append(values, certificate)

	mac := hmac.New(sha256.New, []byte(certificate))
	mac.Write([]byte(strings.Join(values, "+")))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Cents converts a euro amount to integer cents, rounding to the nearest
// cent so float artifacts never shift the charged amount.
func Cents(euros float64) int64 {
	return int64(math.Round(euros * 100))
}

// transID derives the 6-digit transaction id from the time of day. It must
// be unique per vads_trans_date day for the merchant.
func transID(now time.Time) string {
	secondOfDay := now.Hour()*3600 + now.Minute()*60 + now.Second()
	return fmt.Sprintf("%06d", secondOfDay)
}
