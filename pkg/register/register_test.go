package register

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"github.com/coolbeans/lagen/pkg/metrics"
	"github.com/coolbeans/lagen/pkg/sfs"
)

// MockHTTPClient implements HTTPClient for testing.
type MockHTTPClient struct {
	DoFunc func(req *http.Request) (*http.Response, error)
}

func (mockClient *MockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	return mockClient.DoFunc(req)
}

func pageResponse(body string) *http.Response {
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

// fakeRegister serves three endpoint paths keyed by the "bet" query value.
type fakeRegister struct {
	documents map[string]string
	registers map[string]string
	changes   map[string]string
	requests  atomic.Int32
}

func (fake *fakeRegister) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	fake.requests.Add(1)
	pages := map[string]map[string]string{
		"/sfst":   fake.documents,
		"/sfsr":   fake.registers,
		"/change": fake.changes,
	}[request.URL.Path]
	page, found := pages[request.URL.Query().Get("bet")]
	if !found {
		page = "<html><body>" + NoResultsMarker + "</body></html>"
	}
	fmt.Fprint(writer, page)
}

func newFakeClient(t *testing.T, fake *fakeRegister) *Client {
	t.Helper()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)
	return NewClient(Config{
		Endpoints: Endpoints{
			Document: server.URL + "/sfst?bet={basefile}",
			Register: server.URL + "/sfsr?bet={basefile}",
			Change:   server.URL + "/change?bet={basefile}",
		},
		CacheTTL: time.Minute,
	})
}

func TestLookupBaseAct(t *testing.T) {
	fake := &fakeRegister{registers: map[string]string{"1998:204": "<b>SFS-nummer:</b> 1998:204"}}
	client := newFakeClient(t, fake)

	found, err := client.LookupBaseAct(context.Background(), sfs.MustParse("1998:204"))
	require.NoError(t, err)
	assert.Equal(t, []sfs.Identifier{sfs.MustParse("1998:204")}, found)

	found, err = client.LookupBaseAct(context.Background(), sfs.MustParse("2010:5"))
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestLookupAmendmentChain(t *testing.T) {
	fake := &fakeRegister{changes: map[string]string{
		"2010:5":   `<form><input type="hidden" name="BET" value="1998:204$"></form>`,
		"2008:605": `<ul><li><a href="x">1962:700</a></li><li><a href="y">1988:870</a></li></ul>`,
		"2011:1":   `<p>Ändrad genom SFS 2011:1 i grundförfattning 1976:580</p>`,
	}}
	client := newFakeClient(t, fake)

	testCases := []struct {
		requested string
		want      []sfs.Identifier
	}{
		{"2010:5", []sfs.Identifier{sfs.MustParse("1998:204")}},
		{"2008:605", []sfs.Identifier{sfs.MustParse("1962:700"), sfs.MustParse("1988:870")}},
		{"2011:1", []sfs.Identifier{sfs.MustParse("1976:580")}},
		{"2020:3", nil},
	}

	for _, testCase := range testCases {
		t.Run(testCase.requested, func(t *testing.T) {
			found, err := client.LookupAmendmentChain(context.Background(), sfs.MustParse(testCase.requested))
			require.NoError(t, err)
			assert.Equal(t, testCase.want, found)
		})
	}
}

func TestLookupPropagatesTransportErrors(t *testing.T) {
	client := NewClient(Config{HTTPClient: &MockHTTPClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			return nil, errors.New("connection refused")
		},
	}})

	_, err := client.LookupBaseAct(context.Background(), sfs.MustParse("2010:5"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.NotErrorIs(t, err, sfs.ErrNotFound)
}

func TestLookupPropagatesServerErrors(t *testing.T) {
	client := NewClient(Config{HTTPClient: &MockHTTPClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			return &http.Response{StatusCode: http.StatusBadGateway, Body: http.NoBody}, nil
		},
	}})

	_, err := client.LookupAmendmentChain(context.Background(), sfs.MustParse("2010:5"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 502")
}

func TestFetchPropagatesClientErrors(t *testing.T) {
	client := NewClient(Config{HTTPClient: &MockHTTPClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			return &http.Response{StatusCode: http.StatusNotFound, Body: http.NoBody}, nil
		},
	}})

	_, err := client.FetchDocument(context.Background(), sfs.MustParse("2010:5"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 404")
	assert.NotErrorIs(t, err, sfs.ErrNotFound, "only the no-hits page means an unknown number")
}

func TestInvalidateRefetchesPages(t *testing.T) {
	fake := &fakeRegister{
		documents: map[string]string{"1998:204": "<pre>1 § Text.</pre>"},
		registers: map[string]string{"1998:204": "<b>SFS-nummer:</b> 1998:204"},
	}
	client := newFakeClient(t, fake)
	act := sfs.MustParse("1998:204")
	ctx := context.Background()

	for range 2 {
		_, err := client.FetchDocument(ctx, act)
		require.NoError(t, err)
		_, err = client.FetchChangeRegister(ctx, act)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), fake.requests.Load(), "repeated fetches are served from the cache")

	fake.documents["1998:204"] = "<pre>1 § Ny text.</pre>"
	client.Invalidate(act)

	document, err := client.FetchDocument(ctx, act)
	require.NoError(t, err)
	assert.Equal(t, "<pre>1 § Ny text.</pre>", string(document))
	_, err = client.FetchChangeRegister(ctx, act)
	require.NoError(t, err)
	assert.Equal(t, int32(4), fake.requests.Load())
}

func TestFetchDocumentNotFound(t *testing.T) {
	client := newFakeClient(t, &fakeRegister{})

	_, err := client.FetchDocument(context.Background(), sfs.MustParse("1999:1"))
	require.ErrorIs(t, err, sfs.ErrNotFound)

	var notFound *sfs.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, sfs.MustParse("1999:1"), notFound.Identifier)
}

func TestFetchDecodesLatin1NoResultsMarker(t *testing.T) {
	encoded, err := charmap.ISO8859_1.NewEncoder().String(NoResultsMarker)
	require.NoError(t, err)

	client := NewClient(Config{HTTPClient: &MockHTTPClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			return pageResponse(encoded), nil
		},
	}})

	found, err := client.LookupBaseAct(context.Background(), sfs.MustParse("2010:5"))
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestPagesAreCached(t *testing.T) {
	fake := &fakeRegister{registers: map[string]string{"1998:204": "<b>SFS-nummer:</b> 1998:204"}}
	client := newFakeClient(t, fake)

	_, err := client.LookupBaseAct(context.Background(), sfs.MustParse("1998:204"))
	require.NoError(t, err)
	_, err = client.FetchChangeRegister(context.Background(), sfs.MustParse("1998:204"))
	require.NoError(t, err)

	assert.Equal(t, int32(1), fake.requests.Load())
}

func TestRequestsSendUserAgentAndCount(t *testing.T) {
	var userAgent string
	registry := prometheus.NewRegistry()
	collectors := metrics.New(registry)
	client := NewClient(Config{
		UserAgent: "lagen-test/0.1",
		Metrics:   collectors,
		HTTPClient: &MockHTTPClient{
			DoFunc: func(req *http.Request) (*http.Response, error) {
				userAgent = req.Header.Get("User-Agent")
				return pageResponse("<pre>Rubrik: Lag</pre>"), nil
			},
		},
	})

	_, err := client.FetchDocument(context.Background(), sfs.MustParse("2010:5"))
	require.NoError(t, err)

	assert.Equal(t, "lagen-test/0.1", userAgent)
	assert.Equal(t, 1.0, testutil.ToFloat64(collectors.RegisterRequests.WithLabelValues("document", "ok")))
}

func TestDocumentURLEscapesIdentifier(t *testing.T) {
	client := NewClient(DefaultConfig())
	documentURL := client.DocumentURL(sfs.MustParse("1998:204"))
	assert.True(t, strings.HasPrefix(documentURL, DefaultBaseURL))
	assert.True(t, strings.HasSuffix(documentURL, "BET=1998%3A204"))
}

func TestRateLimitedClientHonoursContext(t *testing.T) {
	rateLimited := NewRateLimitedHTTPClient(&MockHTTPClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			return pageResponse(""), nil
		},
	}, time.Hour, 1)

	request, err := http.NewRequest(http.MethodGet, "http://example.invalid", nil)
	require.NoError(t, err)
	_, err = rateLimited.Do(request)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = rateLimited.Do(request.WithContext(ctx))
	assert.Error(t, err)
}

func TestPageCacheExpiry(t *testing.T) {
	pageCache := NewPageCache(20 * time.Millisecond)
	pageCache.Set("a", []byte("page"))

	page, found := pageCache.Get("a")
	require.True(t, found)
	assert.Equal(t, []byte("page"), page)

	time.Sleep(40 * time.Millisecond)
	_, found = pageCache.Get("a")
	assert.False(t, found)
	assert.Equal(t, 0, pageCache.Len())
}

func TestPageCacheInvalidate(t *testing.T) {
	pageCache := NewPageCache(time.Minute)
	pageCache.Set("a", []byte("page"))
	pageCache.Set("b", []byte("other"))

	pageCache.Invalidate("a")
	_, found := pageCache.Get("a")
	assert.False(t, found)
	_, found = pageCache.Get("b")
	assert.True(t, found)
	assert.Equal(t, 1, pageCache.Len())
}

func TestPageCacheDisabled(t *testing.T) {
	pageCache := NewPageCache(0)
	pageCache.Set("a", []byte("page"))
	_, found := pageCache.Get("a")
	assert.False(t, found)
}

const sampleRegisterPage = `<html><body>
<h1>SFSR</h1>
<hr>
<table>
<tr><td><b>SFS-nummer:</b></td><td>1998:204</td></tr>
<tr><td><b>Rubrik:</b></td><td>Personuppgiftslag (1998:204)</td></tr>
<tr><td><b>Utfärdad:</b></td><td>1998-04-29</td></tr>
<tr><td><b>Ikraft:</b></td><td>1998-10-24</td></tr>
</table>
<hr>
<table>
<tr><td><b>SFS-nummer:</b></td><td>2006:398</td></tr>
<tr><td><b>Rubrik:</b></td><td>Lag (2006:398) om ändring i personuppgiftslagen (1998:204)</td></tr>
<tr><td><b>Utfärdad:</b></td><td>2006-05-10</td></tr>
<tr><td><b>Ikraft:</b></td><td>2006-07-01 överg.best.</td></tr>
<tr><td><b>Omfattning:</b></td><td>ändr. 5 a §</td></tr>
</table>
<hr>
<table>
<tr><td><b>SFS-nummer:</b></td><td>2010:xyz</td></tr>
</table>
<hr>
<table>
<tr><td><b>SFS-nummer:</b></td><td>2010:1842</td></tr>
<tr><td><b>Rubrik:</b></td><td>Lag (2010:1842) om ändring i personuppgiftslagen (1998:204)</td></tr>
<tr><td><b>Ikraft:</b></td><td>2011-01-01</td></tr>
</table>
<hr>
</body></html>`

func TestParseChangeRegister(t *testing.T) {
	entries, rowErrors := ParseChangeRegister([]byte(sampleRegisterPage))

	require.Len(t, entries, 3)
	require.Len(t, rowErrors, 1)
	assert.Contains(t, rowErrors[0].Error(), "2010:xyz")

	assert.Equal(t, sfs.MustParse("1998:204"), entries[0].Identifier)
	assert.Equal(t, "Personuppgiftslag (1998:204)", entries[0].Title)
	require.NotNil(t, entries[0].Issued)
	assert.Equal(t, "1998-04-29", entries[0].Issued.Format(sfs.DateLayout))

	assert.Equal(t, sfs.MustParse("2006:398"), entries[1].Identifier)
	assert.Equal(t, "SFS 2006:398", entries[1].IdentifierText())
	assert.Equal(t, "ändr. 5 a §", entries[1].Scope)
	require.NotNil(t, entries[1].InForce)
	assert.Equal(t, "2006-07-01", entries[1].InForce.Format(sfs.DateLayout))

	assert.Equal(t, sfs.MustParse("2010:1842"), entries[2].Identifier)
	assert.Nil(t, entries[2].Issued)
}

func TestParseChangeRegisterEmptyPage(t *testing.T) {
	entries, rowErrors := ParseChangeRegister([]byte("<html><body>" + NoResultsMarker + "</body></html>"))
	assert.Empty(t, entries)
	assert.Empty(t, rowErrors)
}
