// Package extract parses review listing pages into raw review records.
// It is a pure transformation of page content and performs no I/O.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/AbderraoufBou14/trustpilot-sentiment-data-pipeline/internal/review"
)

// Selectors for the review card markup. The fallback covers minor markup
// variants where the hashed class names rotate but the data attributes stay.
const (
	cardSelector         = "div.styles_cardWrapper__g8amG.styles_show__Z8n7u"
	cardFallbackSelector = "div[data-service-review-card-paper]"

	bodySelector         = "p[data-service-review-text-typography]"
	ratingSelector       = "[data-service-review-rating]"
	countrySelector      = `span[data-consumer-country-typography="true"]`
	contentSelector      = `[data-review-content="true"]`
	responseCardSelector = "div.CDS_Card_card__485220.CDS_Card_borderRadius-m__485220.styles_wrapper__WD_1K"
	responseTextSelector = `p[data-service-review-business-reply-text-typography="true"]`
)

var errEmptyCard = errors.New("card has no title, body or date")

// Extractor turns one HTML body into zero or more raw reviews.
type Extractor struct {
	logger *zap.Logger
}

// New builds an Extractor.
func New(logger *zap.Logger) *Extractor {
	return &Extractor{logger: logger}
}

// Reviews extracts every review card found in body. A failure on one card
// only drops that card; the remainder is still returned. The matched count
// is the number of cards either selector found, letting the caller tell a
// card-free page (end of pagination) from a page whose cards were all
// unusable.
func (e *Extractor) Reviews(body []byte) ([]review.RawReview, int, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("parse html: %w", err)
	}

	cards := doc.Find(cardSelector)
	if cards.Length() == 0 {
		cards = doc.Find(cardFallbackSelector)
	}
	matched := cards.Length()

	reviews := make([]review.RawReview, 0, matched)
	cards.Each(func(i int, card *goquery.Selection) {
		r, err := extractCard(card)
		if err != nil {
			e.logger.Warn("skipping review card",
				zap.Int("card", i),
				zap.Error(err),
			)
			return
		}
		reviews = append(reviews, r)
	})
	return reviews, matched, nil
}

func extractCard(card *goquery.Selection) (review.RawReview, error) {
	r := review.RawReview{
		Title:       headingText(card),
		Body:        bodyText(card),
		Rating:      rating(card),
		SubmittedAt: attrPtr(card.Find("time").First(), "datetime"),
		Country:     textPtr(card.Find(countrySelector).First()),
		Language:    language(card),
	}

	responseCard := card.Find(responseCardSelector).First()
	if responseCard.Length() > 0 {
		r.CompanyResponse = review.StringFlag("oui")
		r.CompanyResponseAt = attrPtr(responseCard.Find("time").First(), "datetime")
	} else {
		r.CompanyResponse = review.StringFlag("non")
	}
	r.CompanyResponseText = textPtr(card.Find(responseTextSelector).First())

	// A shell card (ad slot, consent banner fragment) carries none of the
	// review fields; treat it as a failed extraction rather than emitting
	// an empty record.
	if r.Title == nil && r.Body == nil && r.SubmittedAt == nil {
		return review.RawReview{}, errEmptyCard
	}
	return r, nil
}

func headingText(card *goquery.Selection) *string {
	return textPtr(card.Find("h2").First())
}

func bodyText(card *goquery.Selection) *string {
	p := card.Find(bodySelector).First()
	if p.Length() == 0 {
		p = card.Find("p").First()
	}
	return textPtr(p)
}

// rating reads the integer rating attribute; absent or unparseable values
// yield nil, never an error.
func rating(card *goquery.Selection) *int {
	val, ok := card.Find(ratingSelector).First().Attr("data-service-review-rating")
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil {
		return nil
	}
	return &n
}

// language reads the lang attribute on the content wrapper and reduces it
// to its lowercased primary subtag ("fr-FR" -> "fr").
func language(card *goquery.Selection) *string {
	wrapper := card.Find(contentSelector).First()
	if wrapper.Length() == 0 {
		return nil
	}
	lang, ok := wrapper.Attr("lang")
	if !ok || lang == "" {
		lang, ok = wrapper.Attr("xml:lang")
		if !ok || lang == "" {
			return nil
		}
	}
	primary := strings.ToLower(strings.SplitN(lang, "-", 2)[0])
	return &primary
}

func textPtr(sel *goquery.Selection) *string {
	if sel.Length() == 0 {
		return nil
	}
	text := strings.TrimSpace(sel.Text())
	if text == "" {
		return nil
	}
	return &text
}

func attrPtr(sel *goquery.Selection, name string) *string {
	if sel.Length() == 0 {
		return nil
	}
	val, ok := sel.Attr(name)
	if !ok || strings.TrimSpace(val) == "" {
		return nil
	}
	val = strings.TrimSpace(val)
	return &val
}
