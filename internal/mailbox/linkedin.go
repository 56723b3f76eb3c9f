package mailbox

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// LinkedInJob is one posting candidate pulled out of an alert email.
type LinkedInJob struct {
	Title    string
	Company  string
	Location string
	Salary   string
	URL      string
	SourceID string // parsed from /jobs/view/<id> when present
}

var reSalary = regexp.MustCompile(`\$\s?\d[\d,]*(?:K|M)?\s*(?:-\s*\$\s?\d[\d,]*(?:K|M)?)?\s*/\s*year`)

// reJobID also covers /comm/jobs/view/<id> since that path contains /jobs/view/.
var reJobID = regexp.MustCompile(`/jobs/view/(\d+)`)

var reTextJobURL = regexp.MustCompile(`https?://(?:www\.)?linkedin\.com/(?:comm/)?jobs/view/\d+[^\s<>"')\]]*`)

// ParseLinkedInJobAlertHTML merges multiple anchors pointing to the same job id.
// Alert templates repeat the link for the logo, the title, and the footer; when the
// logo anchor comes first it has no text, so naive dedupe would keep a titleless job.
func ParseLinkedInJobAlertHTML(htmlBody string) ([]LinkedInJob, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlBody))
	if err != nil {
		return nil, err
	}

	byID := map[string]*LinkedInJob{} // key: linkedin:<jobid> or url fallback
	var order []string

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" {
			return
		}

		lh := strings.ToLower(href)
		if !(strings.Contains(lh, "/jobs/view/") || strings.Contains(lh, "/comm/jobs/view/")) {
			return
		}
		if !strings.Contains(lh, "linkedin.com") {
			return
		}

		jobURL := normalizeMaybeRedirectedURL(href)
		if jobURL == "" {
			return
		}

		sourceID := LinkedInSourceID(jobURL)
		key := sourceID
		if key == "" {
			key = jobURL
		}

		j, ok := byID[key]
		if !ok {
			j = &LinkedInJob{
				URL:      jobURL,
				SourceID: sourceID,
			}
			byID[key] = j
			order = append(order, key)
		}

		// Candidate title: anchor text (often only present on the jobcard anchor)
		titleCand := cleanText(a.Text())
		titleCand = stripBadTitleSuffixes(titleCand)
		if betterTitle(titleCand, j.Title) {
			j.Title = titleCand
		}

		// Grab surrounding card container
		card := a.Closest("table")
		if card.Length() == 0 {
			card = a.Closest("tr")
		}
		if card.Length() == 0 {
			card = a.Parent()
		}

		// Company · Location is usually in a <p>
		card.Find("p").Each(func(_ int, p *goquery.Selection) {
			t := cleanText(p.Text())
			if t == "" {
				return
			}

			if j.Company == "" && j.Location == "" && strings.Contains(t, " · ") {
				parts := strings.SplitN(t, " · ", 2)
				j.Company = strings.TrimSpace(parts[0])
				j.Location = strings.TrimSpace(parts[1])
			}

			// Sometimes the title is also in a <p> (depends on template)
			t2 := stripBadTitleSuffixes(t)
			if betterTitle(t2, j.Title) && !strings.Contains(t2, " · ") {
				j.Title = t2
			}
		})

		// Salary (optional)
		if j.Salary == "" {
			if blob := cleanText(card.Text()); blob != "" {
				if m := reSalary.FindString(blob); m != "" {
					j.Salary = strings.TrimSpace(m)
				}
			}
		}
	})

	// Emit only valid jobs (must have URL + Title), in discovery order
	out := make([]LinkedInJob, 0, len(byID))
	for _, key := range order {
		j := byID[key]
		if strings.TrimSpace(j.URL) == "" {
			continue
		}
		if strings.TrimSpace(j.Title) == "" {
			continue
		}
		out = append(out, *j)
	}

	return out, nil
}

// ExtractTextJobURLs pulls job view links straight out of a plaintext body.
// Plaintext alerts carry no card markup, so candidates come back title-less
// and rely on page enrichment (or defaults) downstream.
func ExtractTextJobURLs(bodyText string) []LinkedInJob {
	seen := map[string]bool{}
	var out []LinkedInJob
	for _, raw := range reTextJobURL.FindAllString(bodyText, -1) {
		u := strings.TrimRight(raw, ".,);:]\"'")
		sid := LinkedInSourceID(u)
		key := sid
		if key == "" {
			key = u
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, LinkedInJob{URL: u, SourceID: sid})
	}
	return out
}

// LinkedInSourceID extracts the stable "linkedin:<id>" key from a job URL.
func LinkedInSourceID(jobURL string) string {
	if m := reJobID.FindStringSubmatch(jobURL); len(m) == 2 {
		return "linkedin:" + m[1]
	}
	return ""
}

// FallbackSourceID keys postings whose URL carries no numeric job id.
func FallbackSourceID(jobURL, title, company string) string {
	return hashString("url:" + strings.TrimSpace(jobURL) + "|t:" + strings.TrimSpace(title) + "|c:" + strings.TrimSpace(company))
}

func normalizeMaybeRedirectedURL(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}

	// wrapper with url= param
	if raw := u.Query().Get("url"); raw != "" {
		if uu, err := url.Parse(raw); err == nil && uu.Host != "" {
			return uu.String()
		}
	}

	// google redirect /url?q=
	if strings.Contains(strings.ToLower(u.Host), "google.") && strings.HasPrefix(u.Path, "/url") {
		if q := u.Query().Get("q"); q != "" {
			if uu, err := url.Parse(q); err == nil && uu.Host != "" {
				return uu.String()
			}
		}
	}

	// already absolute
	if u.Host != "" {
		return u.String()
	}

	return href
}

func cleanText(s string) string {
	s = strings.ReplaceAll(s, " ", " ")
	s = strings.Join(strings.Fields(s), " ")
	return s
}

func stripBadTitleSuffixes(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	// common LinkedIn email junk that gets appended
	bads := []string{
		"Actively recruiting",
		"Easy Apply",
		"Promoted",
	}
	for _, b := range bads {
		s = strings.TrimSpace(strings.ReplaceAll(s, b, ""))
	}
	// avoid obvious non-titles
	low := strings.ToLower(s)
	if strings.Contains(low, "alumni") ||
		strings.Contains(low, "connections") ||
		strings.Contains(low, "applicants") ||
		strings.Contains(low, "school") {
		return ""
	}
	return strings.Join(strings.Fields(s), " ")
}

func betterTitle(candidate, current string) bool {
	c := strings.TrimSpace(candidate)
	if c == "" {
		return false
	}
	cur := strings.TrimSpace(current)

	// If current empty, accept any plausible title-like string
	if cur == "" {
		return titleScore(c) >= 5
	}

	cs := titleScore(c)
	ks := titleScore(cur)

	if ks >= 8 && cs < ks {
		return false
	}

	// Only replace if candidate is meaningfully better (avoid flip-flopping)
	return cs >= ks+3
}

// LooksLikeJobAlert reports whether a message is a LinkedIn job alert:
// either the dedicated alert sender, or an alert-ish subject whose body
// actually links job view pages.
func LooksLikeJobAlert(from, subj, body string) bool {
	f := strings.ToLower(from)
	if strings.Contains(f, "jobalerts-noreply") {
		return true
	}
	s := strings.ToLower(subj)
	if strings.Contains(s, "job alert") || strings.Contains(s, "linkedin") {
		// body check prevents false positives
		b := strings.ToLower(body)
		return strings.Contains(b, "linkedin.com/comm/jobs/view") ||
			strings.Contains(b, "linkedin.com/jobs/view")
	}
	return false
}

func titleScore(s string) int {
	orig := strings.TrimSpace(s)
	if orig == "" {
		return -100
	}

	l := strings.ToLower(orig)
	score := 0

	// Hard rejects / strong negatives
	if strings.Contains(l, "unsubscribe") || strings.Contains(l, "manage") && strings.Contains(l, "alert") {
		return -50
	}
	if strings.Contains(l, "http://") || strings.Contains(l, "https://") || strings.Contains(l, "www.") {
		return -30
	}

	// Salary-ish
	if strings.ContainsAny(orig, "$€£") {
		score -= 8
	}
	if strings.Contains(l, "per hour") || strings.Contains(l, "/hour") || strings.Contains(l, "/hr") ||
		strings.Contains(l, "per year") || strings.Contains(l, "/year") || strings.Contains(l, "/yr") {
		score -= 6
	}
	// quick range-ish heuristic without regex
	if strings.Count(orig, "-") >= 1 && (strings.ContainsAny(orig, "$€£") || strings.Contains(l, "k")) {
		score -= 4
	}

	// CTA-ish
	for _, bad := range []string{"apply", "view job", "see job", "see details", "learn more", "sign in"} {
		if strings.Contains(l, bad) {
			score -= 6
		}
	}

	// Location-ish
	for _, loc := range []string{"remote", "hybrid", "on-site", "onsite", "united states", "usa"} {
		if strings.Contains(l, loc) {
			score -= 3
		}
	}

	// Separator soup often means concatenated row data
	if strings.Count(orig, "|") >= 1 || strings.Count(orig, "•") >= 1 {
		score -= 2
	}

	// Title keywords (positive)
	titleWords := []string{
		"engineer", "developer", "software", "consultant", "sales",
		"erp", "epm", "hcm", "scm", "cloud", "fusion", "netsuite",
		"data", "scientist", "analyst", "architect", "accountant",
		"manager", "director", "lead", "principal", "staff", "intern", "technician",
	}
	for _, w := range titleWords {
		if strings.Contains(l, w) {
			score += 4
			break
		}
	}

	// Seniority tokens
	for _, w := range []string{"sr", "senior", "jr", "junior", "i", "ii", "iii", "iv", "principal", "staff", "lead"} {
		if containsWord(l, w) {
			score += 2
		}
	}

	// Shape heuristics
	n := len([]rune(orig))
	if n >= 6 && n <= 80 {
		score += 2
	} else if n < 4 || n > 140 {
		score -= 6
	}

	// Looks like a sentence / description
	if strings.HasSuffix(orig, ".") || strings.Contains(l, "you will") || strings.Contains(l, "we are") {
		score -= 4
	}

	// Too many digits is suspicious (ids/salary)
	digits := 0
	for _, r := range orig {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	if digits >= 6 {
		score -= 4
	}

	return score
}

// containsWord checks for whole-word-ish match in a cheap way.
// This avoids "sr" matching "sre" incorrectly, etc.
func containsWord(haystackLower, needleLower string) bool {
	bounds := func(r rune) bool {
		switch r {
		case ' ', '\t', '\n', '\r', '-', '—', '–', '/', '\\', '(', ')', '[', ']', '{', '}', ',', '.', ':', ';', '|', '•':
			return true
		default:
			return false
		}
	}

	idx := strings.Index(haystackLower, needleLower)
	for idx != -1 {
		leftOK := idx == 0 || bounds(rune(haystackLower[idx-1]))
		rightIdx := idx + len(needleLower)
		rightOK := rightIdx == len(haystackLower) || bounds(rune(haystackLower[rightIdx]))
		if leftOK && rightOK {
			return true
		}
		next := strings.Index(haystackLower[idx+1:], needleLower)
		if next == -1 {
			break
		}
		idx = idx + 1 + next
	}
	return false
}
