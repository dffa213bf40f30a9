package showdown

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"
)

const (
	defaultBaseURL = "https://replay.pokemonshowdown.com"

	// The replay server is a shared community resource; stay well under
	// anything that would look like a crawler misbehaving.
	requestsPerWindow = 10
	windowLength      = 3 * time.Second
)

// Client is a rate-limited replay server client.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu     sync.Mutex
	window []time.Time
}

// NewClient creates a client against the public replay server. A non-empty
// baseURL overrides it, which the tests use.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// waitForRateLimit blocks until another request fits in the window.
func (c *Client) waitForRateLimit() {
	for {
		c.mu.Lock()
		now := time.Now()
		cutoff := now.Add(-windowLength)
		kept := c.window[:0]
		for _, t := range c.window {
			if t.After(cutoff) {
				kept = append(kept, t)
			}
		}
		c.window = kept

		if len(c.window) < requestsPerWindow {
			c.window = append(c.window, now)
			c.mu.Unlock()
			return
		}
		wait := c.window[0].Add(windowLength).Sub(now) + 50*time.Millisecond
		c.mu.Unlock()
		time.Sleep(wait)
	}
}

func (c *Client) doRequest(ctx context.Context, path string, result interface{}) error {
	c.waitForRateLimit()

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := resp.Header.Get("Retry-After")
		waitTime := 10
		if retryAfter != "" {
			fmt.Sscanf(retryAfter, "%d", &waitTime)
		}
		time.Sleep(time.Duration(waitTime) * time.Second)
		return c.doRequest(ctx, path, result)
	}
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("replay server returned 404 - replay may be private or deleted")
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("replay server returned status %d", resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(result)
}

// SearchReplays fetches one page of public replays for a format, newest
// first. Page numbering starts at 1.
func (c *Client) SearchReplays(ctx context.Context, format string, page int) ([]ReplayRef, error) {
	path := fmt.Sprintf("/search.json?format=%s&page=%d", url.QueryEscape(format), page)
	var refs []ReplayRef
	err := c.doRequest(ctx, path, &refs)
	return refs, err
}

// FetchReplay fetches a full replay, raw log included, by its stable ID.
func (c *Client) FetchReplay(ctx context.Context, id string) (*Replay, error) {
	var replay Replay
	err := c.doRequest(ctx, "/"+url.PathEscape(id)+".json", &replay)
	if err != nil {
		return nil, err
	}
	if replay.ID == "" {
		replay.ID = id
	}
	return &replay, nil
}
