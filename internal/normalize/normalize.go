// Package normalize turns raw scraped listing records into typed lead
// candidates. Invalid records are filtered here, never propagated.
package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/nightline/internal/config"
	"github.com/sells-group/nightline/internal/model"
)

// ErrEmptyName marks a record with no usable business name. Callers skip
// the record and continue the batch.
var ErrEmptyName = eris.New("normalize: empty business name")

var (
	reviewRe = regexp.MustCompile(`\((\d[\d,]*)\)`)
	ratingRe = regexp.MustCompile(`(\d\.\d)`)
	yearsRe  = regexp.MustCompile(`(\d+\+?)\s*(?:years?|yrs?)`)
	servesRe = regexp.MustCompile(`(?i)^serves\s+(.+)$`)
	spaceRe  = regexp.MustCompile(`\s+`)
)

// Target carries the scrape context a candidate was discovered under.
type Target struct {
	Industry string
	City     string
	State    string
	Zip      string
	Query    string
	Region   string
}

// Listing builds a typed candidate from one raw scraped record. Records with
// an empty name fail with ErrEmptyName; every other field fails soft.
func Listing(raw model.RawListing, ind config.Industry, tgt Target) (*model.Candidate, error) {
	name := strings.TrimSpace(raw.Name)
	if name == "" {
		return nil, eris.Wrap(ErrEmptyName, "normalize: listing")
	}

	claims, found := DetectAvailability(ind.AvailabilityKeywords, raw.HoursText, raw.ServesText, raw.Name)

	c := &model.Candidate{
		Name:            name,
		NormName:        Name(name),
		Phone:           Phone(raw.PhoneText),
		Industry:        tgt.Industry,
		City:            tgt.City,
		State:           tgt.State,
		Zip:             tgt.Zip,
		Website:         strings.TrimSpace(raw.Website),
		ReviewCount:     ReviewCount(raw.ReviewText),
		Rating:          Rating(raw.ReviewText),
		YearsInBusiness: Years(raw.YearsText),
		HoursText:       strings.TrimSpace(raw.HoursText),
		Claims247:       claims,
		KeywordsFound:   strings.Join(found, ","),
		Sponsored:       raw.Sponsored,
		Guaranteed:      raw.GoogleGuaranteed,
		SourceQuery:     tgt.Query,
		SourceRegion:    tgt.Region,
	}

	// "Serves Dallas" style text beats the target city when present.
	if m := servesRe.FindStringSubmatch(strings.TrimSpace(raw.ServesText)); m != nil {
		c.City = strings.TrimSpace(m[1])
	}

	c.Key = IdentityKey(c.Industry, c.Phone, c.NormName, c.Zip)
	return c, nil
}

// ReviewCount extracts the integer inside parentheses, stripping thousands
// separators. Absent parentheses default to 0.
func ReviewCount(text string) int {
	m := reviewRe.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// Rating extracts a leading "4.8"-style rating from review text, 0 when absent.
func Rating(text string) float64 {
	m := ratingRe.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	r, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	return r
}

// Years parses years-in-business text. A "+" suffix is kept literally
// ("15+ years" → "15+"); otherwise the plain integer is returned as a string.
// Unparseable text yields "".
func Years(text string) string {
	m := yearsRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return m[1]
}

// Phone normalizes phone display text to digits-only E.164 form. NANP
// numbers become +1XXXXXXXXXX; anything else fails soft to "".
func Phone(text string) string {
	var digits strings.Builder
	for _, r := range text {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	switch {
	case len(d) == 10:
		return "+1" + d
	case len(d) == 11 && strings.HasPrefix(d, "1"):
		return "+" + d
	default:
		return ""
	}
}

// DetectAvailability reports whether any configured availability keyword
// appears (case-insensitive substring) in the given texts, and which ones.
func DetectAvailability(keywords []string, texts ...string) (bool, []string) {
	haystack := strings.ToLower(strings.Join(texts, "\n"))
	var found []string
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(haystack, strings.ToLower(kw)) {
			found = append(found, kw)
		}
	}
	return len(found) > 0, found
}

// Name folds a display name for identity matching: diacritics stripped,
// lowercased, punctuation dropped, whitespace collapsed. Display names vary
// across duplicate ad placements for the same business.
func Name(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}
	var b strings.Builder
	for _, r := range strings.ToLower(folded) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return spaceRe.ReplaceAllString(strings.TrimSpace(b.String()), " ")
}

// IdentityKey derives the stable lead identity. The phone number is the
// preferred signal since names collide across franchises; name+zip is the
// fallback for phone-less listings.
func IdentityKey(industry, phone, normName, zip string) string {
	if phone != "" {
		return industry + ":" + phone
	}
	return normName + ":" + zip
}
