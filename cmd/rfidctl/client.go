package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// hubClient talks to the rfidhub HTTP facade.
type hubClient struct {
	base string
	http *http.Client
}

func newHubClient(base string, timeout time.Duration) *hubClient {
	return &hubClient{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: timeout},
	}
}

// reply is a decoded facade response.
type reply struct {
	Status int
	Body   json.RawMessage
}

// failed reports whether the response carries an error member or a
// non-2xx status.
func (r reply) failed() bool {
	if r.Status >= http.StatusBadRequest {
		return true
	}
	var env struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(r.Body, &env); err != nil {
		return false
	}
	return len(env.Error) > 0 && string(env.Error) != "null"
}

func (c *hubClient) do(ctx context.Context, method, path string, query url.Values, body any) (reply, error) {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return reply{}, fmt.Errorf("encoding request: %w", err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return reply{}, err
	}
	if rd != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return reply{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return reply{}, fmt.Errorf("reading response: %w", err)
	}
	return reply{Status: resp.StatusCode, Body: data}, nil
}

func readerPath(id string, rest ...string) string {
	p := "/readers/" + url.PathEscape(id)
	for _, r := range rest {
		p += "/" + r
	}
	return p
}

func tagQuery(ids []string) url.Values {
	if len(ids) == 0 {
		return nil
	}
	return url.Values{"tag_id": ids}
}
