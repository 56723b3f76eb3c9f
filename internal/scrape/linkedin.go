package scrape

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"jobtrack-engine/internal/domain"
)

// LinkedIn serves a public snapshot of /jobs/view/<id> pages, but only to
// browser-looking user agents.
const browserUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

var (
	reLinkedInSuffix = regexp.MustCompile(`(?i)\s*[\-|]\s*LinkedIn.*$`)
	reCityState      = regexp.MustCompile(`[A-Z][a-z]+,\s*[A-Z]{2}`)
)

// JobPage is what a public job view page yields.
type JobPage struct {
	Title    string
	Company  string
	Location string
}

// Enricher fills in posting fields the alert email did not carry by
// fetching the public job page.
type Enricher struct {
	hc      *http.Client
	limiter *HostLimiter
}

func NewEnricher(timeout, delay time.Duration) *Enricher {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Enricher{
		hc:      &http.Client{Timeout: timeout},
		limiter: NewHostLimiter(delay, 1),
	}
}

// Hydrate fetches the posting's public page and fills empty fields.
// The posting keeps whatever the email already gave it.
func (e *Enricher) Hydrate(ctx context.Context, p *domain.JobPosting) error {
	pageURL := PublicJobViewURL(p.Key)
	if pageURL == "" {
		pageURL = p.URL
	}
	if pageURL == "" {
		return nil
	}

	page, err := e.FetchJobPage(ctx, pageURL)
	if err != nil {
		return err
	}

	if p.Title == "" && page.Title != "" {
		p.Title = page.Title
	}
	if p.Company == "" && page.Company != "" {
		p.Company = page.Company
	}
	if p.Location == "" && page.Location != "" {
		p.Location = page.Location
	}
	return nil
}

// FetchJobPage GETs one job view page and scrapes the topcard.
func (e *Enricher) FetchJobPage(ctx context.Context, pageURL string) (JobPage, error) {
	if err := e.limiter.WaitURL(ctx, pageURL); err != nil {
		return JobPage{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return JobPage{}, fmt.Errorf("job page request: %w", err)
	}
	req.Header.Set("User-Agent", browserUA)

	res, err := e.hc.Do(req)
	if err != nil {
		return JobPage{}, fmt.Errorf("job page get: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode >= 400 {
		return JobPage{}, fmt.Errorf("job page status %d", res.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(res.Body)
	if err != nil {
		return JobPage{}, fmt.Errorf("job page parse: %w", err)
	}

	return scrapeTopcard(doc), nil
}

func scrapeTopcard(doc *goquery.Document) JobPage {
	var page JobPage

	// title: topcard h1, any h1, then the <title> tag with the suffix cut
	title := clean(doc.Find("h1.top-card-layout__title").First().Text())
	if title == "" {
		title = clean(doc.Find("h1").First().Text())
	}
	if title == "" {
		title = clean(doc.Find("title").First().Text())
	}
	title = reLinkedInSuffix.ReplaceAllString(title, "")
	page.Title = clip(title, 200)

	// company: org link, flavor span, any /company/ anchor
	company := clean(doc.Find("a.topcard__org-name-link").First().Text())
	if company == "" {
		company = clean(doc.Find("span.topcard__flavor").First().Text())
	}
	if company == "" {
		company = clean(doc.Find(`a[href*="/company/"]`).First().Text())
	}
	page.Company = clip(company, 100)

	// location: bullet flavor span, else first City, ST looking run of text
	loc := clean(doc.Find("span.topcard__flavor--bullet").First().Text())
	if loc == "" {
		loc = reCityState.FindString(doc.Text())
	}
	if strings.EqualFold(loc, "Not specified") {
		loc = ""
	}
	page.Location = clip(normalizeLocation(loc), 100)

	return page
}

// normalizeLocation drops repeated comma segments; scraped topcards tend
// to stutter ("Austin, TX, Austin, TX").
func normalizeLocation(loc string) string {
	parts := strings.Split(loc, ",")
	seen := map[string]bool{}
	var out []string
	for _, p := range parts {
		p = clean(p)
		if p == "" {
			continue
		}
		k := strings.ToLower(p)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, p)
	}
	return strings.Join(out, ", ")
}

func clean(s string) string {
	s = strings.ReplaceAll(s, " ", " ")
	return strings.Join(strings.Fields(s), " ")
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
