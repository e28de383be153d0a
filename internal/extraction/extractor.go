// Package extraction pulls structured invoice fields (number, date,
// amount, vendor) out of uploaded documents with a generative model.
package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

// DefaultModelName is used when no model is configured.
const DefaultModelName = "gemini-2.5-flash"

// Result carries the extracted invoice fields. Pointer fields are nil
// when the document did not yield that value.
type Result struct {
	InvoiceNumber string     `json:"invoice_number,omitempty"`
	InvoiceDate   *time.Time `json:"invoice_date,omitempty"`
	Amount        *float64   `json:"amount,omitempty"`
	Vendor        string     `json:"vendor,omitempty"`
	Confidence    float64    `json:"confidence"`
}

// Extractor pulls invoice fields from one document.
type Extractor interface {
	// Extract parses the document content. A document the model cannot
	// read at all is an error; partial extraction is a Result with nil
	// fields and a low confidence.
	Extract(ctx context.Context, fileName, mimeType string, content []byte) (*Result, error)
}

// GeminiExtractor implements Extractor on top of the Gemini API.
type GeminiExtractor struct {
	client *genai.Client
	model  string
	log    zerolog.Logger
}

var _ Extractor = (*GeminiExtractor)(nil)

func NewGeminiExtractor(ctx context.Context, model string, log zerolog.Logger) (*GeminiExtractor, error) {
	if model == "" {
		model = DefaultModelName
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("NewGeminiExtractor: create genai client: %w", err)
	}

	return &GeminiExtractor{client: client, model: model, log: log}, nil
}

const extractionPrompt = "You are an invoice data extractor.\n\n" +
	"Task:\n" +
	"- Read the attached invoice document.\n" +
	"- Output STRICT JSON only (no comments, no trailing commas, no extra text).\n" +
	"- Output a single JSON object.\n\n" +
	"The object must have these fields:\n" +
	"- \"invoice_number\": string or null\n" +
	"- \"invoice_date\": string, ISO format \"YYYY-MM-DD\", or null\n" +
	"- \"amount\": number (total including tax) or null\n" +
	"- \"vendor\": string or null\n" +
	"- \"confidence\": number between 0 and 1\n\n" +
	"Rules:\n" +
	"- Use the invoice total including tax, not a line item.\n" +
	"- If a field cannot be determined, set it to null.\n" +
	"- Set \"confidence\" to reflect how certain you are overall.\n\n" +
	"Return ONLY valid raw JSON.\n" +
	"Do NOT wrap the response in code fences.\n" +
	"Do NOT use ```json or any Markdown.\n" +
	"Output must begin with \"{\" and end with \"}\".\n"

// wireResult is the model's JSON shape before date conversion.
type wireResult struct {
	InvoiceNumber *string  `json:"invoice_number"`
	InvoiceDate   *string  `json:"invoice_date"`
	Amount        *float64 `json:"amount"`
	Vendor        *string  `json:"vendor"`
	Confidence    float64  `json:"confidence"`
}

// Extract sends the document to the model and decodes the strict-JSON
// reply. When the model reports no vendor, the file name is scanned for
// a well-known vendor as a fallback.
func (e *GeminiExtractor) Extract(ctx context.Context, fileName, mimeType string, content []byte) (*Result, error) {
	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: extractionPrompt},
				{
					InlineData: &genai.Blob{
						MIMEType: mimeType,
						Data:     content,
					},
				},
			},
		},
	}

	resp, err := e.client.Models.GenerateContent(ctx, e.model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("Extract: generate content: %w", err)
	}

	rawText := resp.Text()
	if rawText == "" {
		return nil, fmt.Errorf("Extract: empty response from model")
	}

	clean := cleanModelJSON(rawText)

	var wire wireResult
	if err := json.Unmarshal([]byte(clean), &wire); err != nil {
		return nil, fmt.Errorf("Extract: unmarshal JSON: %w\nraw response: %s", err, rawText)
	}

	result := &Result{
		Amount:     wire.Amount,
		Confidence: wire.Confidence,
	}
	if wire.InvoiceNumber != nil {
		result.InvoiceNumber = strings.TrimSpace(*wire.InvoiceNumber)
	}
	if wire.Vendor != nil {
		result.Vendor = strings.TrimSpace(*wire.Vendor)
	}
	if wire.InvoiceDate != nil && *wire.InvoiceDate != "" {
		d, err := time.Parse("2006-01-02", *wire.InvoiceDate)
		if err != nil {
			e.log.Warn().Str("invoice_date", *wire.InvoiceDate).Msg("Model returned unparseable invoice date, dropping it")
		} else {
			result.InvoiceDate = &d
		}
	}

	if result.Vendor == "" {
		result.Vendor = VendorFromFileName(fileName)
	}

	e.log.Debug().
		Str("file_name", fileName).
		Float64("confidence", result.Confidence).
		Msg("Invoice extraction complete")

	return result, nil
}

// cleanModelJSON strips Markdown fences and surrounding junk the model
// sometimes emits despite instructions, keeping only the outermost JSON
// object.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}

	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}

	s = strings.TrimSpace(s)

	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end != -1 && end > start {
			s = s[start : end+1]
			s = strings.TrimSpace(s)
		}
	}

	return s
}

// knownVendors maps file-name fragments to display names for documents
// whose vendor the model could not read. First match wins, so the list
// order is fixed.
var knownVendors = []struct {
	fragment string
	vendor   string
}{
	{"edf", "EDF"},
	{"orange", "Orange"},
	{"sfr", "SFR"},
	{"free", "Free"},
	{"carrefour", "Carrefour"},
	{"leclerc", "Leclerc"},
	{"total", "Total"},
	{"shell", "Shell"},
	{"amazon", "Amazon"},
	{"fnac", "FNAC"},
}

// VendorFromFileName guesses the vendor from the file name. Returns ""
// when nothing matches.
func VendorFromFileName(fileName string) string {
	lower := strings.ToLower(fileName)
	for _, kv := range knownVendors {
		if strings.Contains(lower, kv.fragment) {
			return kv.vendor
		}
	}
	return ""
}
