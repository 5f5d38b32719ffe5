package reddit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listingJSON = `{
  "data": {
    "children": [
      {
        "kind": "t3",
        "data": {
          "id": "t1",
          "subreddit": "tipofmytongue",
          "title": "[TOMT][Song] 80s synth",
          "selftext": "long electronic intro",
          "author": "alice",
          "permalink": "/r/tipofmytongue/comments/t1",
          "link_flair_text": "Solved",
          "score": 42,
          "num_comments": 7,
          "created_utc": 1767225600
        }
      }
    ]
  }
}`

const threadJSON = `[
  {
    "data": {
      "children": [
        {
          "kind": "t3",
          "data": {
            "id": "t1",
            "subreddit": "tipofmytongue",
            "title": "[TOMT][Song] 80s synth",
            "author": "alice",
            "link_flair_text": "Solved",
            "created_utc": 1767225600
          }
        }
      ]
    }
  },
  {
    "data": {
      "children": [
        {
          "kind": "t1",
          "data": {
            "id": "c1",
            "author": "bob",
            "body": "Blue Monday by New Order",
            "score": 12,
            "parent_id": "t3_t1",
            "created_utc": 1767225700,
            "replies": {
              "data": {
                "children": [
                  {
                    "kind": "t1",
                    "data": {
                      "id": "c2",
                      "author": "alice",
                      "body": "solved, thank you!",
                      "parent_id": "t1_c1",
                      "created_utc": 1767225800,
                      "replies": ""
                    }
                  }
                ]
              }
            }
          }
        },
        {
          "kind": "more",
          "data": {"id": "c_more"}
        }
      ]
    }
  }
]`

func newTestClient(t *testing.T, handler http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Options{
		BaseURL:           srv.URL,
		UserAgent:         "songscout test",
		RequestsPerSecond: 1000,
	})
}

func TestListNew(t *testing.T) {
	var gotPath string
	var gotUA string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte(listingJSON)) //nolint:errcheck
	})

	threads, err := c.ListNew(context.Background(), "tipofmytongue", 25)
	require.NoError(t, err)
	require.Len(t, threads, 1)

	assert.Equal(t, "/r/tipofmytongue/new.json", gotPath)
	assert.Equal(t, "songscout test", gotUA)

	th := threads[0]
	assert.Equal(t, "t1", th.ID)
	assert.Equal(t, "[TOMT][Song] 80s synth", th.Title)
	assert.Equal(t, "Solved", th.FlairText)
	assert.Equal(t, 42, th.Score)
	assert.Equal(t, 7, th.NumComments)
	assert.Equal(t, int64(1767225600), th.CreatedAt.Unix())
}

func TestSearchSolved(t *testing.T) {
	var gotQuery url.Values
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Write([]byte(listingJSON)) //nolint:errcheck
	})

	_, err := c.SearchSolved(context.Background(), "WhatsThisSong", 50)
	require.NoError(t, err)

	assert.Equal(t, "flair:solved OR flair:answered", gotQuery.Get("q"))
	assert.Equal(t, "1", gotQuery.Get("restrict_sr"))
	assert.Equal(t, "new", gotQuery.Get("sort"))
	assert.Equal(t, "50", gotQuery.Get("limit"))
}

func TestFetchThread(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/comments/t1.json", r.URL.Path)
		w.Write([]byte(threadJSON)) //nolint:errcheck
	})

	thread, replies, err := c.FetchThread(context.Background(), "t1")
	require.NoError(t, err)
	require.NotNil(t, thread)
	assert.Equal(t, "t1", thread.ID)
	assert.Equal(t, "alice", thread.Author)

	// The "more" stub is dropped, the nested child is kept.
	require.Len(t, replies, 1)
	assert.Equal(t, "c1", replies[0].ID)
	assert.Equal(t, "t3_t1", replies[0].ParentID)
	require.Len(t, replies[0].Replies, 1)
	assert.Equal(t, "c2", replies[0].Replies[0].ID)
	assert.Empty(t, replies[0].Replies[0].Replies)
}

func TestFetchThread_NotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"data":{"children":[]}},{"data":{"children":[]}}]`)) //nolint:errcheck
	})

	_, _, err := c.FetchThread(context.Background(), "ghost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestAnonymousRequestsCarryNoAuth(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.Write([]byte(listingJSON)) //nolint:errcheck
	})

	_, err := c.ListNew(context.Background(), "tipofmytongue", 25)
	require.NoError(t, err)
}

func TestAppCredentialsUseTokenFlow(t *testing.T) {
	tokenFetches := 0
	var mux http.ServeMux
	mux.HandleFunc("/api/v1/access_token", func(w http.ResponseWriter, r *http.Request) {
		tokenFetches++
		assert.Equal(t, http.MethodPost, r.Method)

		id, secret, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "app-id", id)
		assert.Equal(t, "app-secret", secret)

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))

		w.Write([]byte(`{"access_token": "tok123", "token_type": "bearer", "expires_in": 3600}`)) //nolint:errcheck
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok123", r.Header.Get("Authorization"))
		w.Write([]byte(listingJSON)) //nolint:errcheck
	})

	srv := httptest.NewServer(&mux)
	t.Cleanup(srv.Close)

	c := NewClient(Options{
		BaseURL:           srv.URL,
		AuthBaseURL:       srv.URL,
		UserAgent:         "songscout test",
		ClientID:          "app-id",
		ClientSecret:      "app-secret",
		RequestsPerSecond: 1000,
	})

	_, err := c.ListNew(context.Background(), "tipofmytongue", 25)
	require.NoError(t, err)
	_, err = c.ListHot(context.Background(), "tipofmytongue", 25)
	require.NoError(t, err)

	// The token is cached until it nears expiry.
	assert.Equal(t, 1, tokenFetches)
}

func TestAppCredentials_TokenEndpointError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(Options{
		BaseURL:           srv.URL,
		AuthBaseURL:       srv.URL,
		UserAgent:         "songscout test",
		ClientID:          "app-id",
		ClientSecret:      "bad-secret",
		RequestsPerSecond: 1000,
	})

	_, err := c.ListNew(context.Background(), "tipofmytongue", 25)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token endpoint returned 401")
}

func TestGet_HTTPError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.ListNew(context.Background(), "tipofmytongue", 25)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}
