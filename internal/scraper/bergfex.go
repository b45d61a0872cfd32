package scraper

import (
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"skimeister/internal/models"
)

// DefaultBergfexURL is the public bergfex site
const DefaultBergfexURL = "https://www.bergfex.com"

const (
	maxDescriptionLen = 1000
	forecastDays      = 7
)

var (
	altitudeRe    = regexp.MustCompile(`(\d+)m\s*-\s*(\d+)m`)
	intRe         = regexp.MustCompile(`-?\d+`)
	decimalRe     = regexp.MustCompile(`-?\d+(?:[.,]\d+)?`)
	slopesRe      = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*/\s*(\d+(?:[.,]\d+)?)\s*km`)
	liftsRe       = regexp.MustCompile(`(\d+)\s*/\s*(\d+)`)
	priceBeforeRe = regexp.MustCompile(`(?i)(CHF|EUR|€)\s*(\d+(?:[.,]\d{1,2})?)`)
	priceAfterRe  = regexp.MustCompile(`(?i)(\d+(?:[.,]\d{1,2})?)\s*(CHF|EUR|€)`)
	seasonRe      = regexp.MustCompile(`(\d{1,2})\.(\d{1,2})\.(\d{4})\s*-\s*(\d{1,2})\.(\d{1,2})\.(\d{4})`)

	resortPathRe    = regexp.MustCompile(`^/([^/]+)/$`)
	resortSkiPathRe = regexp.MustCompile(`^/([^/]+)/ski/.*`)
	skiLinkRe       = regexp.MustCompile(`/[^/]+/ski/`)

	labelMountainRe     = regexp.MustCompile(`(?i)^mountain:?$`)
	labelValleyRe       = regexp.MustCompile(`(?i)^valley:?$`)
	labelFreshSnowRe    = regexp.MustCompile(`(?i)^(fresh|new) snow( 24h)?:?$`)
	labelFreshSnow48Re  = regexp.MustCompile(`(?i)^(fresh|new) snow 48h:?$`)
	labelTempMountainRe = regexp.MustCompile(`(?i)^temperature mountain:?$`)
	labelTempValleyRe   = regexp.MustCompile(`(?i)^temperature valley:?$`)
	labelWindRe         = regexp.MustCompile(`(?i)^wind:?$`)
	labelVisibilityRe   = regexp.MustCompile(`(?i)^visibility:?$`)
	labelSlopesRe       = regexp.MustCompile(`(?i)^(slopes|pistes)( open)?:?$`)
	labelLiftsRe        = regexp.MustCompile(`(?i)^lifts( open)?:?$`)
	labelAdultRe        = regexp.MustCompile(`(?i)^(day ticket adult|adult day pass):?$`)
	labelChildRe        = regexp.MustCompile(`(?i)^(day ticket child|child day pass):?$`)
	labelSeasonRe       = regexp.MustCompile(`(?i)^season:?$`)
)

// Bergfex reads resort listings, resort pages and forecast pages of
// bergfex.com
type Bergfex struct {
	baseURL string
	now     func() time.Time
}

// NewBergfex creates a bergfex source rooted at baseURL
func NewBergfex(baseURL string) *Bergfex {
	if baseURL == "" {
		baseURL = DefaultBergfexURL
	}
	return &Bergfex{
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
	}
}

// ListURL returns the resort listing page of a country
func (b *Bergfex) ListURL(country string) string {
	return fmt.Sprintf("%s/%s/skigebiete/", b.baseURL, country)
}

// ResortURL returns the page of a resort
func (b *Bergfex) ResortURL(slug string) string {
	return fmt.Sprintf("%s/%s/", b.baseURL, slug)
}

// ForecastURL returns the weather outlook page belonging to a resort page
func (b *Bergfex) ForecastURL(resortURL string) string {
	return strings.TrimRight(resortURL, "/") + "/wetter/prognose/"
}

// ParseResortList extracts the resorts linked from a country listing.
// Entries are unique by URL and keep document order.
func (b *Bergfex) ParseResortList(rawHTML, country string) ([]ResortEntry, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	links := doc.Find("a.js-track")
	if links.Length() == 0 {
		links = doc.Find("a[href]").FilterFunction(func(_ int, s *goquery.Selection) bool {
			href, _ := s.Attr("href")
			return skiLinkRe.MatchString(href)
		})
	}

	countryName := CountryName(country)
	seen := make(map[string]bool)
	entries := make([]ResortEntry, 0)

	links.Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || href == "" {
			return
		}
		slug := resortSlug(href)
		if slug == "" {
			return
		}
		if _, isCountry := countryNames[slug]; isCountry || slug == country {
			return
		}

		resortURL := b.ResortURL(slug)
		if seen[resortURL] {
			return
		}

		nameSel := s.Find("span").First()
		if nameSel.Length() == 0 {
			nameSel = s
		}
		name := cleanText(nameSel.Text())
		if utf8.RuneCountInString(name) <= 2 {
			return
		}

		seen[resortURL] = true
		entries = append(entries, ResortEntry{
			Name:    name,
			Slug:    slug,
			URL:     resortURL,
			Country: countryName,
		})
	})

	return entries, nil
}

// resortSlug extracts the resort slug from a site-relative or absolute link
func resortSlug(href string) string {
	if u, err := url.Parse(href); err == nil && u.IsAbs() {
		href = u.Path
	}
	if m := resortPathRe.FindStringSubmatch(href); m != nil {
		return m[1]
	}
	if m := resortSkiPathRe.FindStringSubmatch(href); m != nil {
		return m[1]
	}
	return ""
}

// Normalize parses a resort page. It fails with *ParseError only when the
// page has neither a heading nor structured resort data.
func (b *Bergfex) Normalize(rawHTML, slug string) (*Normalized, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, &ParseError{Slug: slug, Reason: err.Error()}
	}

	now := b.now().UTC()
	out := &Normalized{
		Resort: models.Resort{Slug: slug},
		Conditions: &models.Conditions{
			Status:      models.StatusUnknown,
			LastUpdated: now,
		},
	}

	// 1. Basic info
	heading := cleanText(doc.Find("h1").First().Text())
	out.Resort.Name = heading

	// 2. Coordinates and description from JSON-LD
	structured := applyStructuredData(doc, &out.Resort)
	if heading == "" && !structured {
		return nil, &ParseError{Slug: slug, Reason: "no resort heading or structured data"}
	}

	// 3. Altitude
	if m := altitudeRe.FindStringSubmatch(doc.Find("body").Text()); m != nil {
		low, _ := strconv.Atoi(m[1])
		high, _ := strconv.Atoi(m[2])
		out.Resort.AltitudeMin = &low
		out.Resort.AltitudeMax = &high
	}

	// 4. Snow, weather and slopes
	applyConditions(doc, out.Conditions)

	// 5. Status
	if status := doc.Find(".resort-status, .status-label").First(); status.Length() > 0 {
		out.Conditions.Status = parseStatus(status.Text())
	}
	out.Conditions.DeriveStatus()

	// 6. Pricing
	out.Pricing = parsePricing(doc, now)

	// 7. Forecasts embedded in the resort page
	out.Forecasts = parseForecastDoc(doc, now)

	return out, nil
}

// ParseForecast parses the separate forecast page. Day i of the outlook is
// dated start + i days. A page without a forecast container yields none.
func (b *Bergfex) ParseForecast(rawHTML string, start time.Time) ([]models.Forecast, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return parseForecastDoc(doc, start), nil
}

func parseForecastDoc(doc *goquery.Document, start time.Time) []models.Forecast {
	forecasts := make([]models.Forecast, 0)
	container := doc.Find(".forecast9d-container, .forecast9d").First()
	if container.Length() == 0 {
		return forecasts
	}

	day := dateOnly(start)
	container.Find(".day").Each(func(i int, s *goquery.Selection) {
		if i >= forecastDays {
			return
		}
		f := models.Forecast{
			Date:        day.AddDate(0, 0, i),
			LastUpdated: start.UTC(),
		}

		var temps []float64
		s.Find(".temp").Each(func(_ int, t *goquery.Selection) {
			if m := intRe.FindString(t.Text()); m != "" {
				v, _ := strconv.ParseFloat(m, 64)
				temps = append(temps, v)
			}
		})
		if len(temps) >= 2 {
			hi, lo := temps[0], temps[0]
			for _, v := range temps[1:] {
				hi = max(hi, v)
				lo = min(lo, v)
			}
			f.TempMax = &hi
			f.TempMin = &lo
		}

		if snow := s.Find(".snow, .fresh-snow").First(); snow.Length() > 0 {
			if n, ok := firstInt(snow.Text()); ok && n > 0 {
				f.SnowForecastCm = n
			}
		}

		if src, ok := s.Find("img").First().Attr("src"); ok && src != "" {
			base := path.Base(src)
			f.Symbol = strings.TrimSuffix(base, path.Ext(base))
		}

		forecasts = append(forecasts, f)
	})
	return forecasts
}

// applyStructuredData copies resort fields from JSON-LD blocks and reports
// whether a resort item was found
func applyStructuredData(doc *goquery.Document, r *models.Resort) bool {
	found := false
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		var raw any
		if err := json.Unmarshal([]byte(s.Text()), &raw); err != nil {
			return
		}
		var items []any
		switch v := raw.(type) {
		case []any:
			items = v
		default:
			items = []any{v}
		}

		for _, it := range items {
			item, ok := it.(map[string]any)
			if !ok {
				continue
			}
			_, hasGeo := item["geo"]
			if item["@type"] != "SkiResort" && !hasGeo {
				continue
			}
			found = true

			if geo, ok := item["geo"].(map[string]any); ok {
				lat, latOK := jsonFloat(geo["latitude"])
				lng, lngOK := jsonFloat(geo["longitude"])
				if latOK && lngOK && lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180 {
					r.Latitude = &lat
					r.Longitude = &lng
				}
			}
			if name, ok := item["name"].(string); ok && r.Name == "" {
				r.Name = cleanText(name)
			}
			if desc, ok := item["description"].(string); ok {
				r.Description = truncateRunes(strings.TrimSpace(desc), maxDescriptionLen)
			}
			if addr, ok := item["address"].(map[string]any); ok {
				if region, ok := addr["addressRegion"].(string); ok {
					r.Region = strings.TrimSpace(region)
				}
			}
			if site, ok := item["url"].(string); ok && !strings.Contains(site, "bergfex.") {
				r.Website = site
			}
		}
	})
	return found
}

func applyConditions(doc *goquery.Document, c *models.Conditions) {
	if v, ok := labelValue(doc, labelMountainRe); ok {
		c.SnowDepthMountain, _ = firstInt(v)
	}
	if v, ok := labelValue(doc, labelValleyRe); ok {
		c.SnowDepthValley, _ = firstInt(v)
	}
	if v, ok := labelValue(doc, labelFreshSnowRe); ok {
		c.FreshSnow24h, _ = firstInt(v)
	}
	if v, ok := labelValue(doc, labelFreshSnow48Re); ok {
		c.FreshSnow48h, _ = firstInt(v)
	}
	if v, ok := labelValue(doc, labelTempMountainRe); ok {
		c.TemperatureMountain = firstFloat(v)
	}
	if v, ok := labelValue(doc, labelTempValleyRe); ok {
		c.TemperatureValley = firstFloat(v)
	}
	if v, ok := labelValue(doc, labelWindRe); ok {
		c.WindSpeed, _ = firstInt(v)
	}
	if v, ok := labelValue(doc, labelVisibilityRe); ok {
		c.Visibility = strings.ToLower(v)
	}
	if v, ok := labelValue(doc, labelSlopesRe); ok {
		if m := slopesRe.FindStringSubmatch(v); m != nil {
			c.SlopesOpenKm = parseDecimal(m[1])
			c.SlopesTotalKm = parseDecimal(m[2])
		}
	}
	if v, ok := labelValue(doc, labelLiftsRe); ok {
		if m := liftsRe.FindStringSubmatch(v); m != nil {
			c.LiftsOpen, _ = strconv.Atoi(m[1])
			c.LiftsTotal, _ = strconv.Atoi(m[2])
		}
	}

	// negative snow or slope readings are not meaningful
	c.SnowDepthMountain = max(0, c.SnowDepthMountain)
	c.SnowDepthValley = max(0, c.SnowDepthValley)
	c.FreshSnow24h = max(0, c.FreshSnow24h)
	c.FreshSnow48h = max(0, c.FreshSnow48h)
}

func parsePricing(doc *goquery.Document, now time.Time) *models.Pricing {
	p := &models.Pricing{LastUpdated: now}
	found := false

	if v, ok := labelValue(doc, labelAdultRe); ok {
		if price, currency, ok := parsePrice(v); ok {
			p.AdultDayPass = &price
			p.Currency = currency
			found = true
		}
	}
	if v, ok := labelValue(doc, labelChildRe); ok {
		if price, currency, ok := parsePrice(v); ok {
			p.ChildDayPass = &price
			if p.Currency == "" {
				p.Currency = currency
			}
			found = true
		}
	}
	if v, ok := labelValue(doc, labelSeasonRe); ok {
		if m := seasonRe.FindStringSubmatch(v); m != nil {
			start, errStart := time.Parse("2.1.2006", m[1]+"."+m[2]+"."+m[3])
			end, errEnd := time.Parse("2.1.2006", m[4]+"."+m[5]+"."+m[6])
			if errStart == nil && errEnd == nil {
				p.SeasonStart = &start
				p.SeasonEnd = &end
				found = true
			}
		}
	}

	if !found {
		return nil
	}
	// without a price marker the currency follows the resort country when stored
	return p
}

// parsePrice reads an amount with a CHF, EUR or € marker on either side
func parsePrice(text string) (float64, string, bool) {
	var amount, currency string
	if m := priceBeforeRe.FindStringSubmatch(text); m != nil {
		currency, amount = m[1], m[2]
	} else if m := priceAfterRe.FindStringSubmatch(text); m != nil {
		amount, currency = m[1], m[2]
	} else {
		return 0, "", false
	}
	currency = strings.ToUpper(currency)
	if currency == "€" {
		currency = "EUR"
	}
	value := parseDecimal(amount)
	if value < 0 {
		return 0, "", false
	}
	return value, currency, true
}

func parseStatus(text string) models.ResortStatus {
	text = strings.ToLower(cleanText(text))
	switch {
	case strings.Contains(text, "partial"):
		return models.StatusPartial
	case strings.Contains(text, "closed"):
		return models.StatusClosed
	case strings.Contains(text, "open"):
		return models.StatusOpen
	case text == "":
		return models.StatusUnknown
	default:
		return models.StatusPartial
	}
}

// labelValue finds a leaf element whose text matches label and returns the
// text of its next sibling element
func labelValue(doc *goquery.Document, label *regexp.Regexp) (string, bool) {
	var value string
	var found bool
	doc.Find("body *").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if s.Children().Length() > 0 || !label.MatchString(cleanText(s.Text())) {
			return true
		}
		next := s.Next()
		if next.Length() == 0 {
			return true
		}
		value = cleanText(next.Text())
		found = true
		return false
	})
	return value, found
}

func firstInt(text string) (int, bool) {
	m := intRe.FindString(text)
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(m)
	return n, err == nil
}

func firstFloat(text string) *float64 {
	m := decimalRe.FindString(text)
	if m == "" {
		return nil
	}
	v := parseDecimal(m)
	return &v
}

func parseDecimal(s string) float64 {
	v, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	if err != nil {
		return 0
	}
	return v
}

func jsonFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
