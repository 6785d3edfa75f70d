package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCentsRoundsToNearestCent(t *testing.T) {
	require.Equal(t, int64(11800), Cents(118))
	require.Equal(t, int64(9600), Cents(96.00))
	require.Equal(t, int64(30), Cents(0.1+0.2))
	require.Equal(t, int64(100), Cents(0.999))
	require.Equal(t, int64(0), Cents(0))
}

func TestSignIsDeterministicAndOrderIndependent(t *testing.T) {
	fields := map[string]string{
		"vads_site_id":    "12345678",
		"vads_amount":     "9600",
		"vads_ctx_mode":   "TEST",
		"vads_trans_date": "20260314093000",
	}

	first := Sign(fields, "certificate")
	second := Sign(fields, "certificate")
	require.Equal(t, first, second)

	// Joined by field name order: amount, ctx_mode, site_id, trans_date.
	mac := hmac.New(sha256.New, []byte("certificate"))
	mac.Write([]byte("9600+TEST+12345678+20260314093000+certificate"))
	require.Equal(t, base64.StdEncoding.EncodeToString(mac.Sum(nil)), first)

	require.NotEqual(t, first, Sign(fields, "other-certificate"))
}

func TestSignIgnoresNonVadsFields(t *testing.T) {
	fields := map[string]string{"vads_amount": "100"}
	withExtra := map[string]string{"vads_amount": "100", "signature": "tampered"}
	require.Equal(t, Sign(fields, "cert"), Sign(withExtra, "cert"))
}

func TestBuildAssemblesSignedDepositForm(t *testing.T) {
	b := NewBuilder(Config{SiteID: "12345678", Certificate: "certificate", Mode: "TEST"})
	b.now = func() time.Time {
		return time.Date(2026, 3, 14, 9, 30, 15, 0, time.UTC)
	}

	req := b.Build("devis-1", "jean@example.fr", 118)

	require.Equal(t, "11800", req.Fields["vads_amount"])
	require.Equal(t, "978", req.Fields["vads_currency"])
	require.Equal(t, "TEST", req.Fields["vads_ctx_mode"])
	require.Equal(t, "12345678", req.Fields["vads_site_id"])
	require.Equal(t, "devis-1", req.Fields["vads_order_id"])
	require.Equal(t, "jean@example.fr", req.Fields["vads_cust_email"])
	require.Equal(t, "PAYMENT", req.Fields["vads_page_action"])
	require.Equal(t, "SINGLE", req.Fields["vads_payment_config"])
	require.Equal(t, "V2", req.Fields["vads_version"])
	require.Equal(t, "20260314093015", req.Fields["vads_trans_date"])

	// 09:30:15 UTC is second 34215 of the day.
	require.Equal(t, "034215", req.Fields["vads_trans_id"])

	require.Equal(t, Sign(req.Fields, "certificate"), req.Signature)
}
