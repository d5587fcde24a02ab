// Package review defines the core record types shared across pipeline stages.
package review

import (
	"bytes"
	"encoding/json"
	"time"
)

// RawReview is one review as scraped from a listing page. Every field is
// optionally present; nothing is coerced or defaulted at this stage. The
// JSON tags match the wire schema used by the raw and NDJSON artifacts.
type RawReview struct {
	Title               *string      `json:"titre_avis"`
	Body                *string      `json:"contenu_texte"`
	Rating              *int         `json:"nombre_etoile"`
	SubmittedAt         *string      `json:"date_avis"`
	Country             *string      `json:"pays"`
	Language            *string      `json:"langue"`
	CompanyResponse     ResponseFlag `json:"reponse_entreprise"`
	CompanyResponseText *string      `json:"texte_entreprise"`
	CompanyResponseAt   *string      `json:"date_reponse_entreprise"`
}

// Review is the normalized, storage-ready shape. ID is the stable
// content-derived identity and acts as the primary key in both sinks.
// Title and Body are always present (empty string, never null) so the
// identity signature stays total. Timestamps stay ISO-8601 strings on the
// wire; the document store parses them into native values at insert time.
type Review struct {
	ID                  string  `json:"_id"`
	Title               string  `json:"titre_avis"`
	Body                string  `json:"contenu_texte"`
	Rating              *int    `json:"nombre_etoile"`
	SubmittedAt         *string `json:"date_avis"`
	Country             *string `json:"pays"`
	Language            *string `json:"langue"`
	HasCompanyResponse  bool    `json:"reponse_entreprise"`
	CompanyResponseText *string `json:"texte_entreprise"`
	CompanyResponseAt   *string `json:"date_reponse_entreprise"`
}

// ResponseFlag carries the company-response marker, which appears upstream
// either as a truthy string ("oui", "true", "1") or as an already-coerced
// boolean when a normalized file is re-processed.
type ResponseFlag struct {
	Text   string
	Bool   bool
	IsBool bool
}

// StringFlag builds a string-valued flag, as produced by the extractor.
func StringFlag(s string) ResponseFlag {
	return ResponseFlag{Text: s}
}

// UnmarshalJSON accepts string, boolean or null values.
func (f *ResponseFlag) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		*f = ResponseFlag{}
		return nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*f = ResponseFlag{Text: s}
		return nil
	}
	var b bool
	if err := json.Unmarshal(trimmed, &b); err != nil {
		return err
	}
	*f = ResponseFlag{Bool: b, IsBool: true}
	return nil
}

// MarshalJSON writes back whichever representation the flag holds.
func (f ResponseFlag) MarshalJSON() ([]byte, error) {
	if f.IsBool {
		return json.Marshal(f.Bool)
	}
	return json.Marshal(f.Text)
}

// RunStats tracks per-run pagination counters.
type RunStats struct {
	RunID          string        `json:"run_id"`
	PagesAttempted int           `json:"pages_attempted"`
	PagesSucceeded int           `json:"pages_succeeded"`
	Reviews        int           `json:"reviews"`
	Elapsed        time.Duration `json:"elapsed"`
}
