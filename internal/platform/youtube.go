// Package platform wraps the quota-limited search APIs of the platforms we
// scan. Each call reports the quota units it consumed in its result instead
// of mutating a shared counter; callers aggregate.
package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/SirClappington/rightsguard/internal/retry"
)

// YouTube Data API v3 quota costs.
const (
	searchCost = 100
	videosCost = 1

	maxResults = 50
)

type Order string

const (
	OrderDate      Order = "date"
	OrderRelevance Order = "relevance"
)

type Query struct {
	Text           string
	PublishedAfter time.Time
	Order          Order
}

type Item struct {
	ExternalID   string
	URL          string
	Title        string
	ChannelName  string
	ChannelURL   string
	ThumbnailURL string
	PublishedAt  time.Time
}

type Stats struct {
	ExternalID   string
	ViewCount    int64
	LikeCount    int64
	CommentCount int64
}

type SearchResult struct {
	Items []Item
	Units int64
}

type StatsResult struct {
	Stats map[string]Stats
	Units int64
}

type YouTube struct {
	baseURL string
	apiKey  string
	http    *http.Client
	retry   *retry.Config
}

func NewYouTube(baseURL, apiKey string, timeout time.Duration) *YouTube {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &YouTube{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
		retry:   retry.DefaultConfig(),
	}
}

func (y *YouTube) Name() string { return "youtube" }

type searchResponse struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
		Snippet struct {
			PublishedAt  time.Time `json:"publishedAt"`
			ChannelID    string    `json:"channelId"`
			Title        string    `json:"title"`
			ChannelTitle string    `json:"channelTitle"`
			Thumbnails   map[string]struct {
				URL string `json:"url"`
			} `json:"thumbnails"`
		} `json:"snippet"`
	} `json:"items"`
}

// Search lists videos matching q. Units are charged even when the call
// fails after reaching the API.
func (y *YouTube) Search(ctx context.Context, q Query) (SearchResult, error) {
	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("type", "video")
	params.Set("q", q.Text)
	params.Set("maxResults", strconv.Itoa(maxResults))
	if q.Order != "" {
		params.Set("order", string(q.Order))
	}
	if !q.PublishedAfter.IsZero() {
		params.Set("publishedAfter", q.PublishedAfter.UTC().Format(time.RFC3339))
	}

	var body searchResponse
	units, err := y.get(ctx, "/search", params, searchCost, &body)
	res := SearchResult{Units: units}
	if err != nil {
		return res, err
	}
	for _, it := range body.Items {
		if it.ID.VideoID == "" {
			continue
		}
		item := Item{
			ExternalID:  it.ID.VideoID,
			URL:         "https://www.youtube.com/watch?v=" + it.ID.VideoID,
			Title:       it.Snippet.Title,
			ChannelName: it.Snippet.ChannelTitle,
			PublishedAt: it.Snippet.PublishedAt,
		}
		if it.Snippet.ChannelID != "" {
			item.ChannelURL = "https://www.youtube.com/channel/" + it.Snippet.ChannelID
		}
		for _, size := range []string{"high", "medium", "default"} {
			if t, ok := it.Snippet.Thumbnails[size]; ok && t.URL != "" {
				item.ThumbnailURL = t.URL
				break
			}
		}
		res.Items = append(res.Items, item)
	}
	return res, nil
}

type videosResponse struct {
	Items []struct {
		ID         string `json:"id"`
		Statistics struct {
			ViewCount    string `json:"viewCount"`
			LikeCount    string `json:"likeCount"`
			CommentCount string `json:"commentCount"`
		} `json:"statistics"`
	} `json:"items"`
}

// Statistics fetches view/like/comment counts for ids in one batched call.
func (y *YouTube) Statistics(ctx context.Context, ids []string) (StatsResult, error) {
	res := StatsResult{Stats: make(map[string]Stats, len(ids))}
	if len(ids) == 0 {
		return res, nil
	}
	for start := 0; start < len(ids); start += maxResults {
		end := min(start+maxResults, len(ids))
		params := url.Values{}
		params.Set("part", "statistics")
		params.Set("id", strings.Join(ids[start:end], ","))

		var body videosResponse
		units, err := y.get(ctx, "/videos", params, videosCost, &body)
		res.Units += units
		if err != nil {
			return res, err
		}
		for _, it := range body.Items {
			res.Stats[it.ID] = Stats{
				ExternalID:   it.ID,
				ViewCount:    parseCount(it.Statistics.ViewCount),
				LikeCount:    parseCount(it.Statistics.LikeCount),
				CommentCount: parseCount(it.Statistics.CommentCount),
			}
		}
	}
	return res, nil
}

// get returns the units charged: cost per attempt that reached the API.
func (y *YouTube) get(ctx context.Context, path string, params url.Values, cost int64, out any) (int64, error) {
	params.Set("key", y.apiKey)
	endpoint := y.baseURL + path + "?" + params.Encode()

	var units int64
	err := retry.DoIfRetryable(ctx, y.retry, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return err
		}
		resp, err := y.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		units += cost

		if resp.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
			return &retry.HTTPError{Op: "youtube " + path, StatusCode: resp.StatusCode, Body: string(msg)}
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode youtube %s: %w", path, err)
		}
		return nil
	})
	return units, err
}

func parseCount(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
