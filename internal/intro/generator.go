// Package intro generates the commercial introduction paragraph of a quote
// from its line items. Generation is best effort: callers fall back to
// FallbackText when the model is unreachable.
package intro

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// ClientKind steers the register of the generated text.
type ClientKind string

const (
	// ClientResidential targets private individuals (10% VAT quotes).
	ClientResidential ClientKind = "particulier"
	// ClientProfessional targets businesses (20% VAT quotes).
	ClientProfessional ClientKind = "professionnel"
)

// FallbackText is used when generation fails, so a quote is never sent with
// an empty introduction.
const FallbackText = "Suite à notre échange, veuillez trouver ci-dessous notre proposition " +
	"pour la sécurisation de votre site. Notre équipe reste à votre disposition " +
	"pour toute question ou ajustement."

// Item is one quote line fed to the prompt.
type Item struct {
	Name             string
	DescriptionShort string
}

// Request describes the quote to introduce.
type Request struct {
	ClientKind ClientKind
	Items      []Item
}

// Generator produces introduction paragraphs through the Gemini API.
type Generator struct {
	client *genai.Client
	model  string
}

// NewGenerator constructs the generator. Returns an error when the API key
// is missing or the client cannot be built.
func NewGenerator(ctx context.Context, apiKey, model string) (*Generator, error) {
	if apiKey == "" {
		return nil, errors.New("intro: missing API key")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("intro: create genai client: %w", err)
	}
	return &Generator{client: client, model: model}, nil
}

// Generate returns a short French introduction paragraph for the quote.
func (g *Generator) Generate(ctx context.Context, req Request) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(buildPrompt(req)), nil)
	if err != nil {
		return "", fmt.Errorf("intro: generate: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", errors.New("intro: empty model response")
	}
	return text, nil
}

func buildPrompt(req Request) string {
	var b strings.Builder
	b.WriteString("Tu rédiges l'introduction d'un devis pour une société d'installation ")
	b.WriteString("de systèmes de sécurité (alarme, vidéosurveillance, contrôle d'accès).\n")
	fmt.Fprintf(&b, "Le client est un %s.\n", req.ClientKind)
	b.WriteString("Rédige un unique paragraphe en français, professionnel et chaleureux, ")
	b.WriteString("de 3 à 4 phrases, sans liste, sans titre, sans formule de politesse finale.\n")
	b.WriteString("Le devis comprend :\n")
	for _, item := range req.Items {
		b.WriteString("- ")
		b.WriteString(item.Name)
		if item.DescriptionShort != "" {
			b.WriteString(" : ")
			b.WriteString(item.DescriptionShort)
		}
		b.WriteString("\n")
	}
	return b.String()
}
