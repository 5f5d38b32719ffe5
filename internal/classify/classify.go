package classify

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/songscout/internal/model"
	"github.com/sells-group/songscout/pkg/reddit"
)

// DefaultGroups are the forum groups scraped when none are configured.
// tipofmytongue is general-purpose and gets the music filter; the other
// two are dedicated music groups where every thread is relevant.
var DefaultGroups = []string{
	"tipofmytongue",
	"WhatsThisSong",
	"NameThatSong",
}

// musicTitlePatterns identify music threads in the general group by
// their bracket tags.
var musicTitlePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\[TOMT\]\s*\[(?:song|music|band|artist)`),
	regexp.MustCompile(`(?i)\[song\]`),
	regexp.MustCompile(`(?i)\[music\]`),
}

// mediaLinkPatterns match audio and video hosts people attach clips on.
var mediaLinkPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(https?://(?:www\.)?youtube\.com/watch\?v=[\w-]+)`),
	regexp.MustCompile(`(?i)(https?://(?:www\.)?youtu\.be/[\w-]+)`),
	regexp.MustCompile(`(?i)(https?://(?:www\.)?soundcloud\.com/[\w-]+/[\w-]+)`),
	regexp.MustCompile(`(?i)(https?://(?:www\.)?vocaroo\.com/[\w-]+)`),
	regexp.MustCompile(`(?i)(https?://voca\.ro/[\w-]+)`),
	regexp.MustCompile(`(?i)(https?://(?:www\.)?clyp\.it/[\w-]+)`),
	regexp.MustCompile(`(?i)(https?://(?:www\.)?onlinesequencer\.net/[\w-]+)`),
	regexp.MustCompile(`(?i)(https?://(?:www\.)?spotify\.com/track/[\w-]+)`),
	regexp.MustCompile(`(?i)(https?://open\.spotify\.com/track/[\w-]+)`),
	regexp.MustCompile(`(?i)(https?://(?:www\.)?tiktok\.com/@[\w.-]+/video/\d+)`),
	regexp.MustCompile(`(?i)(https?://(?:www\.)?reddit\.com/link/[\w-]+/video/[\w-]+)`),
	regexp.MustCompile(`(?i)(https?://v\.redd\.it/[\w-]+)`),
	regexp.MustCompile(`(?i)(https?://streamable\.com/[\w-]+)`),
}

// dedicatedGroups are groups where the relevance filter always passes.
var dedicatedGroups = map[string]bool{
	"whatsthissong": true,
	"namethatsong":  true,
}

// Fetcher pulls threads from the forum and classifies them into
// catalog requests.
type Fetcher struct {
	source reddit.Client
	groups []string
}

// NewFetcher creates a Fetcher over the given source client and groups.
func NewFetcher(source reddit.Client, groups []string) *Fetcher {
	if len(groups) == 0 {
		groups = DefaultGroups
	}
	return &Fetcher{source: source, groups: groups}
}

// ScrapeNew returns classified requests from each group's newest
// threads. A group whose listing fails is logged and skipped; the
// batch continues.
func (f *Fetcher) ScrapeNew(ctx context.Context, limit int) ([]model.Request, error) {
	return f.scrape(ctx, limit, f.source.ListNew, false)
}

// ScrapeHot returns classified requests from each group's trending
// threads.
func (f *Fetcher) ScrapeHot(ctx context.Context, limit int) ([]model.Request, error) {
	return f.scrape(ctx, limit, f.source.ListHot, false)
}

// ScrapeSolved returns classified requests from each group's solved
// threads. Search results carry solved flair by construction, so the
// status is forced rather than re-derived.
func (f *Fetcher) ScrapeSolved(ctx context.Context, limit int) ([]model.Request, error) {
	return f.scrape(ctx, limit, f.source.SearchSolved, true)
}

type listFunc func(ctx context.Context, group string, limit int) ([]reddit.Thread, error)

func (f *Fetcher) scrape(ctx context.Context, limit int, list listFunc, forceSolved bool) ([]model.Request, error) {
	var out []model.Request
	for _, group := range f.groups {
		threads, err := list(ctx, group, limit)
		if err != nil {
			zap.L().Warn("group listing failed, skipping",
				zap.String("group", group),
				zap.Error(err),
			)
			continue
		}
		for _, t := range threads {
			if !IsMusicThread(t) {
				continue
			}
			req := f.toRequest(t)
			if forceSolved {
				req.Status = model.StatusSolved
			}
			out = append(out, req)
		}
	}
	return out, nil
}

// FetchWithReplies fetches a single thread with its comment tree
// flattened in depth-first order.
func (f *Fetcher) FetchWithReplies(ctx context.Context, id string) (*model.Request, []model.Reply, error) {
	thread, raw, err := f.source.FetchThread(ctx, id)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "classify: fetch thread %s", id)
	}

	req := f.toRequest(*thread)
	replies := FlattenReplies(raw, thread.Author)
	return &req, replies, nil
}

// IsMusicThread reports whether a thread belongs in the catalog.
// Dedicated music groups always pass; the general group passes only
// when the flair or title signals a music request.
func IsMusicThread(t reddit.Thread) bool {
	group := strings.ToLower(t.Subreddit)

	if dedicatedGroups[group] {
		return true
	}

	if group == "tipofmytongue" {
		flair := strings.ToLower(t.FlairText)
		if strings.Contains(flair, "song") || strings.Contains(flair, "music") {
			return true
		}
		for _, p := range musicTitlePatterns {
			if p.MatchString(t.Title) {
				return true
			}
		}
		return false
	}

	return true
}

// DetermineStatus derives a request status from flair text. Solved
// markers win over open markers, which win over unsolved markers.
func DetermineStatus(flair string) model.RequestStatus {
	flair = strings.ToLower(flair)

	if strings.Contains(flair, "solved") || strings.Contains(flair, "answered") {
		return model.StatusSolved
	}
	if strings.Contains(flair, "open") || strings.Contains(flair, "searching") {
		return model.StatusOpen
	}
	if strings.Contains(flair, "unsolved") || strings.Contains(flair, "closed") {
		return model.StatusUnsolved
	}
	return model.StatusUnknown
}

// ExtractMediaLinks pulls deduplicated media URLs out of free text,
// sorted for stable output.
func ExtractMediaLinks(text string) []string {
	seen := make(map[string]bool)
	var links []string
	for _, p := range mediaLinkPatterns {
		for _, m := range p.FindAllString(text, -1) {
			if seen[m] {
				continue
			}
			seen[m] = true
			links = append(links, m)
		}
	}
	sort.Strings(links)
	return links
}

// FlattenReplies walks the reply tree depth-first and returns a flat
// list. Replies whose parent is the thread itself are marked root
// replies; replies by the thread author are marked original poster.
func FlattenReplies(raw []reddit.RawReply, threadAuthor string) []model.Reply {
	var out []model.Reply
	var walk func(nodes []reddit.RawReply)
	walk = func(nodes []reddit.RawReply) {
		for _, n := range nodes {
			out = append(out, model.Reply{
				ID:               n.ID,
				Author:           n.Author,
				Text:             n.Body,
				Score:            n.Score,
				CreatedAt:        n.CreatedAt,
				IsOriginalPoster: n.Author != "" && n.Author == threadAuthor,
				IsReplyToRoot:    strings.HasPrefix(n.ParentID, "t3_"),
			})
			walk(n.Replies)
		}
	}
	walk(raw)
	return out
}

func (f *Fetcher) toRequest(t reddit.Thread) model.Request {
	author := t.Author
	if author == "" {
		author = "[deleted]"
	}

	return model.Request{
		ID:          t.ID,
		SourceGroup: t.Subreddit,
		Title:       t.Title,
		Body:        t.SelfText,
		Author:      author,
		Permalink:   "https://reddit.com" + t.Permalink,
		CreatedAt:   t.CreatedAt,
		ScrapedAt:   time.Now().UTC(),
		Status:      DetermineStatus(t.FlairText),
		Tag:         t.FlairText,
		Score:       t.Score,
		ReplyCount:  t.NumComments,
		MediaLinks:  ExtractMediaLinks(t.Title + " " + t.SelfText),
	}
}
