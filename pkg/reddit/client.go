package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL      = "https://www.reddit.com"
	defaultOAuthBaseURL = "https://oauth.reddit.com"
	tokenPath           = "/api/v1/access_token"
)

// Client defines the forum operations used by the discovery pipeline.
type Client interface {
	// ListNew returns the newest threads in a subreddit.
	ListNew(ctx context.Context, subreddit string, limit int) ([]Thread, error)
	// ListHot returns the currently trending threads in a subreddit.
	ListHot(ctx context.Context, subreddit string, limit int) ([]Thread, error)
	// SearchSolved returns recently solved threads in a subreddit.
	SearchSolved(ctx context.Context, subreddit string, limit int) ([]Thread, error)
	// FetchThread returns one thread with its full reply tree.
	FetchThread(ctx context.Context, id string) (*Thread, []RawReply, error)
}

// Thread is a single forum submission as the source API reports it.
type Thread struct {
	ID          string
	Subreddit   string
	Title       string
	SelfText    string
	Author      string
	Permalink   string
	FlairText   string
	Score       int
	NumComments int
	CreatedAt   time.Time
}

// RawReply is one comment node, with its children still nested. The
// classifier flattens the tree.
type RawReply struct {
	ID        string
	Author    string
	Body      string
	Score     int
	ParentID  string
	CreatedAt time.Time
	Replies   []RawReply
}

// Options configures the HTTP client.
type Options struct {
	BaseURL   string
	UserAgent string
	// ClientID and ClientSecret are optional app credentials. When both
	// are set the client authenticates with the application-only OAuth
	// flow and talks to the OAuth host, which has much higher rate
	// limits than the public JSON endpoints.
	ClientID     string
	ClientSecret string
	// AuthBaseURL hosts the token endpoint. Defaults to the public host.
	AuthBaseURL string
	// RequestsPerSecond bounds outbound calls; the public API bans
	// aggressive clients. Zero means 1 rps.
	RequestsPerSecond float64
	HTTPClient        *http.Client
}

// httpClient implements Client against the forum's JSON API.
type httpClient struct {
	base         string
	authBase     string
	userAgent    string
	clientID     string
	clientSecret string
	limiter      *rate.Limiter
	http         *http.Client

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewClient creates a rate-limited forum client.
func NewClient(opts Options) Client {
	authenticated := opts.ClientID != "" && opts.ClientSecret != ""
	if opts.BaseURL == "" {
		if authenticated {
			opts.BaseURL = defaultOAuthBaseURL
		} else {
			opts.BaseURL = defaultBaseURL
		}
	}
	if opts.AuthBaseURL == "" {
		opts.AuthBaseURL = defaultBaseURL
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 1
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &httpClient{
		base:         opts.BaseURL,
		authBase:     opts.AuthBaseURL,
		userAgent:    opts.UserAgent,
		clientID:     opts.ClientID,
		clientSecret: opts.ClientSecret,
		limiter:      rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1),
		http:         opts.HTTPClient,
	}
}

func (c *httpClient) ListNew(ctx context.Context, subreddit string, limit int) ([]Thread, error) {
	q := url.Values{"limit": {fmt.Sprint(limit)}}
	return c.listing(ctx, fmt.Sprintf("/r/%s/new.json", subreddit), q)
}

func (c *httpClient) ListHot(ctx context.Context, subreddit string, limit int) ([]Thread, error) {
	q := url.Values{"limit": {fmt.Sprint(limit)}}
	return c.listing(ctx, fmt.Sprintf("/r/%s/hot.json", subreddit), q)
}

func (c *httpClient) SearchSolved(ctx context.Context, subreddit string, limit int) ([]Thread, error) {
	q := url.Values{
		"q":           {"flair:solved OR flair:answered"},
		"restrict_sr": {"1"},
		"sort":        {"new"},
		"limit":       {fmt.Sprint(limit)},
	}
	return c.listing(ctx, fmt.Sprintf("/r/%s/search.json", subreddit), q)
}

func (c *httpClient) FetchThread(ctx context.Context, id string) (*Thread, []RawReply, error) {
	body, err := c.get(ctx, fmt.Sprintf("/comments/%s.json", id), url.Values{"limit": {"500"}})
	if err != nil {
		return nil, nil, err
	}

	// The comments endpoint returns a two-element array: the submission
	// listing, then the comment listing.
	var pages []listing
	if err := json.Unmarshal(body, &pages); err != nil {
		return nil, nil, eris.Wrap(err, "reddit: decode thread")
	}
	if len(pages) < 2 || len(pages[0].Data.Children) == 0 {
		return nil, nil, eris.Errorf("reddit: thread %s not found", id)
	}

	thread := pages[0].Data.Children[0].Data.toThread()
	replies := make([]RawReply, 0, len(pages[1].Data.Children))
	for _, child := range pages[1].Data.Children {
		if child.Kind != "t1" {
			continue // "more" stubs and other non-comment nodes
		}
		replies = append(replies, child.Data.toReply())
	}
	return &thread, replies, nil
}

func (c *httpClient) listing(ctx context.Context, path string, q url.Values) ([]Thread, error) {
	body, err := c.get(ctx, path, q)
	if err != nil {
		return nil, err
	}

	var page listing
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, eris.Wrap(err, "reddit: decode listing")
	}

	threads := make([]Thread, 0, len(page.Data.Children))
	for _, child := range page.Data.Children {
		threads = append(threads, child.Data.toThread())
	}
	return threads, nil
}

func (c *httpClient) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "reddit: rate limit wait")
	}

	u := c.base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, eris.Wrap(err, "reddit: build request")
	}
	req.Header.Set("User-Agent", c.userAgent)

	if c.clientID != "" && c.clientSecret != "" {
		token, err := c.ensureToken(ctx)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "reddit: GET %s", path)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("reddit: GET %s returned %d", path, resp.StatusCode)
	}

	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrapf(err, "reddit: read %s", path)
	}

	zap.L().Debug("forum request",
		zap.String("path", path),
		zap.Int("bytes", len(buf)),
	)
	return buf, nil
}

// ensureToken returns a valid application-only access token, fetching a
// fresh one when the cached token is missing or within a minute of
// expiry.
func (c *httpClient) ensureToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry.Add(-time.Minute)) {
		return c.token, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.authBase+tokenPath, strings.NewReader(form.Encode()))
	if err != nil {
		return "", eris.Wrap(err, "reddit: build token request")
	}
	req.SetBasicAuth(c.clientID, c.clientSecret)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "reddit: fetch token")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", eris.Errorf("reddit: token endpoint returned %d", resp.StatusCode)
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", eris.Wrap(err, "reddit: decode token")
	}
	if tok.AccessToken == "" {
		return "", eris.New("reddit: token endpoint returned no access token")
	}

	c.token = tok.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)

	zap.L().Debug("forum token refreshed",
		zap.Time("expires_at", c.tokenExpiry),
	)
	return c.token, nil
}

// --- wire types ---

type listing struct {
	Data struct {
		Children []struct {
			Kind string `json:"kind"`
			Data node   `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// node is the union of the submission and comment fields we read.
type node struct {
	ID            string          `json:"id"`
	Subreddit     string          `json:"subreddit"`
	Title         string          `json:"title"`
	SelfText      string          `json:"selftext"`
	Body          string          `json:"body"`
	Author        string          `json:"author"`
	Permalink     string          `json:"permalink"`
	LinkFlairText string          `json:"link_flair_text"`
	Score         int             `json:"score"`
	NumComments   int             `json:"num_comments"`
	ParentID      string          `json:"parent_id"`
	CreatedUTC    float64         `json:"created_utc"`
	Replies       json.RawMessage `json:"replies"`
}

func (n node) toThread() Thread {
	return Thread{
		ID:          n.ID,
		Subreddit:   n.Subreddit,
		Title:       n.Title,
		SelfText:    n.SelfText,
		Author:      n.Author,
		Permalink:   n.Permalink,
		FlairText:   n.LinkFlairText,
		Score:       n.Score,
		NumComments: n.NumComments,
		CreatedAt:   time.Unix(int64(n.CreatedUTC), 0).UTC(),
	}
}

func (n node) toReply() RawReply {
	r := RawReply{
		ID:        n.ID,
		Author:    n.Author,
		Body:      n.Body,
		Score:     n.Score,
		ParentID:  n.ParentID,
		CreatedAt: time.Unix(int64(n.CreatedUTC), 0).UTC(),
	}

	// Replies is "" when a comment has no children, a listing otherwise.
	if len(n.Replies) > 0 && n.Replies[0] == '{' {
		var nested listing
		if err := json.Unmarshal(n.Replies, &nested); err == nil {
			for _, child := range nested.Data.Children {
				if child.Kind != "t1" {
					continue
				}
				r.Replies = append(r.Replies, child.Data.toReply())
			}
		}
	}
	return r
}
