package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/songscout/internal/model"
	"github.com/sells-group/songscout/pkg/anthropic"
)

// maxSolutionReplies caps how many replies the solution prompt sees.
// Long solved threads bury the answer in noise past this point.
const maxSolutionReplies = 50

const descriptionPrompt = `You are analyzing a "tip of my tongue" post where someone is trying to identify a song they can't remember.

Extract a clean, searchable description of the song from this post. Focus on:
- Genre or style mentioned
- Era/decade the song might be from
- Memorable lyrics or phrases
- Instruments or sounds mentioned
- Where they heard it (movie, commercial, etc.)
- Mood or feeling of the song
- Male/female vocals
- Any other distinctive characteristics

Post Title: %s

Post Body:
%s

Respond with a JSON object:
{
    "description": "A clean 1-3 sentence description of the song being searched for",
    "genre_hints": ["list", "of", "possible", "genres"],
    "era_hint": "decade or year range if mentioned, null otherwise",
    "has_lyrics": true/false,
    "partial_lyrics": "any lyrics mentioned, or null",
    "mood": "mood/feeling if described, or null",
    "voice_type": "male/female/unknown",
    "context": "where they heard it (movie, game, etc.) or null"
}`

const solutionPrompt = `You are analyzing comments on a "tip of my tongue" post that has been marked as SOLVED.

The original poster was looking for a song. Find the comment that correctly identified the song.

Post Title: %s
Post Body: %s

Comments:
%s

If you can identify the solution, respond with a JSON object:
{
    "found": true,
    "song_title": "Title of the song",
    "artist": "Artist name",
    "album": "Album name if mentioned, or null",
    "year": year as integer if mentioned, or null,
    "comment_id": "ID of the comment with the answer",
    "confidence": "high/medium/low"
}

If you cannot find a clear solution, respond with:
{
    "found": false,
    "reason": "Brief explanation why"
}`

// Description is the structured output of the description pass.
type Description struct {
	Description   string   `json:"description"`
	GenreHints    []string `json:"genre_hints"`
	EraHint       string   `json:"era_hint"`
	HasLyrics     bool     `json:"has_lyrics"`
	PartialLyrics string   `json:"partial_lyrics"`
	Mood          string   `json:"mood"`
	VoiceType     string   `json:"voice_type"`
	Context       string   `json:"context"`
}

// Solution is the structured output of the solution pass.
type Solution struct {
	Found      bool   `json:"found"`
	SongTitle  string `json:"song_title"`
	Artist     string `json:"artist"`
	Album      string `json:"album"`
	Year       int    `json:"year"`
	CommentID  string `json:"comment_id"`
	Confidence string `json:"confidence"`
	Reason     string `json:"reason"`
}

// Result pairs an extracted song with where in the thread it was
// identified.
type Result struct {
	Song       model.Song
	ReplyID    string
	Confidence string
}

// Extractor turns request text into structured song data with
// single-turn LLM calls.
type Extractor struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewExtractor creates an Extractor over the given client.
func NewExtractor(client anthropic.Client, modelID string, maxTokens int64) *Extractor {
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &Extractor{client: client, model: modelID, maxTokens: maxTokens}
}

// ExtractDescription produces a searchable description of the song a
// request is asking about. Malformed model output is never an error:
// the request title stands in as the description.
func (e *Extractor) ExtractDescription(ctx context.Context, req *model.Request) (Description, error) {
	prompt := fmt.Sprintf(descriptionPrompt, req.Title, req.Body)

	resp, err := e.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     e.model,
		MaxTokens: e.maxTokens,
		Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return Description{}, eris.Wrapf(err, "extract: describe request %s", req.ID)
	}
	resp.Usage.LogCost(e.model, "describe")

	var desc Description
	if err := json.Unmarshal([]byte(cleanJSON(resp.Text())), &desc); err != nil {
		zap.L().Warn("malformed description output, falling back to title",
			zap.String("request_id", req.ID),
			zap.Error(err),
		)
		return Description{Description: req.Title, VoiceType: "unknown"}, nil
	}
	return desc, nil
}

// EnrichRequest fills in the request's description in place.
func (e *Extractor) EnrichRequest(ctx context.Context, req *model.Request) error {
	desc, err := e.ExtractDescription(ctx, req)
	if err != nil {
		return err
	}
	req.Description = desc.Description
	return nil
}

// ExtractSolution reads a solved thread's replies and identifies the
// song. It returns (nil, nil) when there are no replies, when the model
// reports no clear answer, or when the output cannot be decoded; only
// transport failures surface as errors.
func (e *Extractor) ExtractSolution(ctx context.Context, req *model.Request, replies []model.Reply) (*Result, error) {
	if len(replies) == 0 {
		return nil, nil
	}
	if len(replies) > maxSolutionReplies {
		replies = replies[:maxSolutionReplies]
	}

	var sb strings.Builder
	for i, r := range replies {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "[Comment ID: %s] (score: %d, by: %s)\n%s", r.ID, r.Score, r.Author, r.Text)
	}

	prompt := fmt.Sprintf(solutionPrompt, req.Title, req.Body, sb.String())

	resp, err := e.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     e.model,
		MaxTokens: e.maxTokens,
		Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, eris.Wrapf(err, "extract: resolve request %s", req.ID)
	}
	resp.Usage.LogCost(e.model, "resolve")

	var sol Solution
	if err := json.Unmarshal([]byte(cleanJSON(resp.Text())), &sol); err != nil {
		zap.L().Warn("malformed solution output, treating as unresolved",
			zap.String("request_id", req.ID),
			zap.Error(err),
		)
		return nil, nil
	}
	if !sol.Found || sol.SongTitle == "" || sol.Artist == "" {
		return nil, nil
	}

	return &Result{
		Song: model.Song{
			ID:               model.SongID(sol.Artist, sol.SongTitle),
			Title:            sol.SongTitle,
			Artist:           sol.Artist,
			Album:            sol.Album,
			Year:             sol.Year,
			DiscoveredAt:     time.Now().UTC(),
			SourceRequestIDs: []string{req.ID},
		},
		ReplyID:    sol.CommentID,
		Confidence: sol.Confidence,
	}, nil
}

// cleanJSON strips markdown fences and surrounding prose so the result
// starts at the first '{' and ends at the last '}'.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	// Strip markdown code fences.
	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	// Find first { and last }.
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
