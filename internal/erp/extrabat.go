// Package erp pushes accepted quotes into the Extrabat ERP. The sync is best
// effort: the acceptance is already committed when this runs, so a failure
// here surfaces as a warning and a retryable background task, never as a
// failed acceptance.
package erp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gardia-secu/gardia/internal/devis"
)

// Client talks to the Extrabat HTTP API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient constructs the ERP client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
}

// PushResult is the ERP's answer to a quote push.
type PushResult struct {
	DevisID int64  `json:"id"`
	Number  string `json:"numero"`
}

type pushLine struct {
	Reference string  `json:"reference"`
	Label     string  `json:"libelle"`
	Quantity  int     `json:"quantite"`
	PriceHT   float64 `json:"prix_ht"`
	VATRate   float64 `json:"taux_tva"`
}

type pushPayload struct {
	ClientID *int64     `json:"client_id,omitempty"`
	Title    string     `json:"titre"`
	TotalHT  float64    `json:"total_ht"`
	TotalTTC float64    `json:"total_ttc"`
	Lines    []pushLine `json:"lignes"`
}

// PushDevis creates the quote in the ERP and returns its identifier. Lines
// are sent with the quantities the client accepted, add-ons included.
func (c *Client) PushDevis(ctx context.Context, d *devis.Devis) (*PushResult, error) {
	payload := pushPayload{
		ClientID: d.Client.ERPID,
		Title:    d.Title,
		TotalHT:  d.Totals.HT,
		TotalTTC: d.Totals.TTC,
	}
	for _, line := range d.Lines {
		ref := line.Reference
		if line.ERPReference != nil {
			ref = *line.ERPReference
		}
		payload.Lines = append(payload.Lines, pushLine{
			Reference: ref,
			Label:     line.Name,
			Quantity:  d.EffectiveQuantity(line),
			PriceHT:   line.UnitPriceHT,
			VATRate:   line.VATRate,
		})
	}
	for _, a := range d.AcceptedAddOns {
		payload.Lines = append(payload.Lines, pushLine{
			Reference: a.Reference,
			Label:     a.Name,
			Quantity:  a.Quantity,
			PriceHT:   a.UnitPriceHT,
			VATRate:   a.VATRate,
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("erp: marshal devis: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/devis", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("erp: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("erp: push devis: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("erp: push devis returned status %d", resp.StatusCode)
	}

	var result PushResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("erp: decode response: %w", err)
	}
	return &result, nil
}
