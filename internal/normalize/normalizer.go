// Package normalize maps raw reviews to the canonical schema and derives
// their stable content-addressed identity.
package normalize

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"

	"github.com/AbderraoufBou14/trustpilot-sentiment-data-pipeline/internal/review"
)

// truthy is the closed set of string tokens coerced to true for the
// company-response flag.
var truthy = map[string]struct{}{
	"oui":  {},
	"true": {},
	"1":    {},
}

// idLength truncates the hex digest to short, re-derivable identifiers.
// 10 hex chars is ~40 bits; widening later is non-breaking since old ids
// stay valid.
const idLength = 10

// absentDate is the signature literal standing in for a missing
// submission timestamp, keeping the signature total for sparse records.
const absentDate = "null"

// Review produces the canonical record for one raw review. Deterministic
// and total: missing title and body default to empty strings, so every
// raw record yields a valid identity.
func Review(raw review.RawReview) review.Review {
	r := review.Review{
		Title:               deref(raw.Title),
		Body:                deref(raw.Body),
		Rating:              raw.Rating,
		SubmittedAt:         raw.SubmittedAt,
		Country:             raw.Country,
		HasCompanyResponse:  coerceFlag(raw.CompanyResponse),
		CompanyResponseText: raw.CompanyResponseText,
		CompanyResponseAt:   raw.CompanyResponseAt,
	}
	if raw.Language != nil {
		lang := strings.ToLower(strings.TrimSpace(*raw.Language))
		r.Language = &lang
	}
	r.ID = DeriveID(raw.SubmittedAt, r.Title, r.Body)
	return r
}

// DeriveID builds the stable identity: the first 10 hex characters of the
// SHA-1 of "<date>|<title>|<body>". Two records with identical submission
// timestamp, title and body always hash to the same id, which is what
// makes re-ingestion idempotent.
func DeriveID(submittedAt *string, title, body string) string {
	date := absentDate
	if submittedAt != nil {
		date = *submittedAt
	}
	sig := date + "|" + title + "|" + body
	sum := sha1.Sum([]byte(sig))
	return hex.EncodeToString(sum[:])[:idLength]
}

// coerceFlag resolves the company-response marker: booleans pass through,
// strings are matched against the truthy token set.
func coerceFlag(f review.ResponseFlag) bool {
	if f.IsBool {
		return f.Bool
	}
	_, ok := truthy[strings.ToLower(strings.TrimSpace(f.Text))]
	return ok
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
