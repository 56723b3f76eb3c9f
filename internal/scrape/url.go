package scrape

import (
	"net/url"
	"regexp"
	"sort"
	"strings"
)

// CanonicalizeJobURL normalizes a job link for storage and dedupe: lowercase
// scheme/host, no fragment, tracking params stripped. LinkedIn job links
// collapse to the bare public /jobs/view/<id> form.
func CanonicalizeJobURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	q := u.Query()
	for k := range q {
		lk := strings.ToLower(k)
		if strings.HasPrefix(lk, "utm_") ||
			lk == "gclid" || lk == "fbclid" || lk == "msclkid" ||
			lk == "mc_cid" || lk == "mc_eid" ||
			lk == "mkt_tok" ||
			lk == "trk" || lk == "trackingid" || lk == "refid" {
			q.Del(k)
		}
	}

	if strings.Contains(u.Host, "linkedin.com") {
		// Job view links collapse to the bare public form; an id in
		// currentJobId is the same posting behind a redirect.
		if m := reJobView.FindStringSubmatch(u.Path); len(m) == 2 {
			return "https://www.linkedin.com/jobs/view/" + m[1]
		}
		if id := q.Get("currentJobId"); isDigits(id) {
			return "https://www.linkedin.com/jobs/view/" + id
		}
		q = url.Values{}
	}

	// deterministic query
	for k := range q {
		vals := q[k]
		sort.Strings(vals)
		q[k] = vals
	}
	u.RawQuery = q.Encode()
	return u.String()
}

var reJobView = regexp.MustCompile(`(?i)/jobs/view/(\d+)`)

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// PublicJobViewURL rebuilds the public page for a "linkedin:<id>" key.
// Alert links point at /comm/ URLs that bounce to a login wall; the plain
// /jobs/view/<id> page serves a public snapshot.
func PublicJobViewURL(key string) string {
	id, ok := strings.CutPrefix(key, "linkedin:")
	if !ok || id == "" {
		return ""
	}
	return "https://www.linkedin.com/jobs/view/" + id
}
