package scrape

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobtrack-engine/internal/domain"
)

const topcardHTML = `<html>
<head><title>PwC hiring Oracle ERP Senior Manager in Dallas, TX | LinkedIn</title></head>
<body>
<h1 class="top-card-layout__title">Oracle ERP Senior Manager</h1>
<a class="topcard__org-name-link" href="/company/pwc">PwC</a>
<span class="topcard__flavor topcard__flavor--bullet">Dallas, TX</span>
</body></html>`

func newTestEnricher() *Enricher {
	return NewEnricher(5*time.Second, time.Millisecond)
}

func TestFetchJobPageTopcard(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(topcardHTML))
	}))
	defer srv.Close()

	page, err := newTestEnricher().FetchJobPage(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, "Oracle ERP Senior Manager", page.Title)
	assert.Equal(t, "PwC", page.Company)
	assert.Equal(t, "Dallas, TX", page.Location)
}

func TestFetchJobPageTitleTagFallback(t *testing.T) {
	html := `<html>
	<head><title>Acme Corp hiring Field Accountant in Austin, TX | LinkedIn</title></head>
	<body><p>Join the Acme team in Austin, TX today.</p></body></html>`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(html))
	}))
	defer srv.Close()

	page, err := newTestEnricher().FetchJobPage(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, "Acme Corp hiring Field Accountant in Austin, TX", page.Title)
	assert.Empty(t, page.Company)
	assert.Equal(t, "Austin, TX", page.Location)
}

func TestFetchJobPageStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestEnricher().FetchJobPage(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestHydrateFillsOnlyEmptyFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(topcardHTML))
	}))
	defer srv.Close()

	p := domain.JobPosting{
		Title: "Title From Alert",
		URL:   srv.URL,
	}
	require.NoError(t, newTestEnricher().Hydrate(context.Background(), &p))

	assert.Equal(t, "Title From Alert", p.Title)
	assert.Equal(t, "PwC", p.Company)
	assert.Equal(t, "Dallas, TX", p.Location)
}

func TestHydrateNoURLIsNoop(t *testing.T) {
	p := domain.JobPosting{Title: "Bare"}
	require.NoError(t, newTestEnricher().Hydrate(context.Background(), &p))
	assert.Equal(t, "Bare", p.Title)
}

func TestCanonicalizeJobURL(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{
			"https://example.com/jobs/1?utm_source=mail&x=1#frag",
			"https://example.com/jobs/1?x=1",
		},
		{
			"HTTPS://WWW.LinkedIn.com/jobs/view/4012345678/?trackingId=abc&refId=x",
			"https://www.linkedin.com/jobs/view/4012345678",
		},
		{
			"https://www.linkedin.com/comm/jobs/view/4012345678?trk=email",
			"https://www.linkedin.com/jobs/view/4012345678",
		},
		{
			"https://www.linkedin.com/jobs/search/?currentJobId=42&keywords=erp",
			"https://www.linkedin.com/jobs/view/42",
		},
		{
			"https://www.linkedin.com/company/pwc/?misc=1",
			"https://www.linkedin.com/company/pwc/",
		},
		{"", ""},
		{"  https://example.com/a  ", "https://example.com/a"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CanonicalizeJobURL(tc.in), tc.in)
	}
}

func TestPublicJobViewURL(t *testing.T) {
	assert.Equal(t, "https://www.linkedin.com/jobs/view/4012345678", PublicJobViewURL("linkedin:4012345678"))
	assert.Empty(t, PublicJobViewURL("linkedin:"))
	assert.Empty(t, PublicJobViewURL("somehash"))
	assert.Empty(t, PublicJobViewURL(""))
}

func TestNormalizeLocation(t *testing.T) {
	assert.Equal(t, "Austin, TX", normalizeLocation("Austin, TX, Austin, TX"))
	assert.Equal(t, "Dallas, TX", normalizeLocation("  Dallas ,  TX "))
	assert.Equal(t, "Remote", normalizeLocation("Remote"))
	assert.Empty(t, normalizeLocation(""))
}

func TestHostLimiterSpacesRequests(t *testing.T) {
	hl := NewHostLimiter(50*time.Millisecond, 1)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, hl.WaitURL(ctx, "https://a.example.com/x"))
	require.NoError(t, hl.WaitURL(ctx, "https://a.example.com/y"))
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)

	// a different host is not held up by the first one
	other := time.Now()
	require.NoError(t, hl.WaitURL(ctx, "https://b.example.com/x"))
	assert.Less(t, time.Since(other), 25*time.Millisecond)
}
