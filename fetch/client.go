// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/poiesic/raadsync/core"
	"github.com/poiesic/raadsync/syncer"
)

const (
	defaultAPIVersion = "3.53.0"
	defaultPageSize   = 50

	metadataTimeout = 30 * time.Second
	downloadTimeout = 60 * time.Second
)

// Client talks to a Notubiz-style council information API. Metadata calls
// (gremia, events, meeting details) go through the response cache when one is
// configured; document downloads never do.
//
// Client implements syncer.Fetcher. Download is safe for concurrent use.
type Client struct {
	http           *http.Client
	baseURL        string
	appToken       string
	authToken      string
	organisationID string
	apiVersion     string
	pageSize       int
	cache          *Cache
	logger         *slog.Logger
}

var _ syncer.Fetcher = (*Client)(nil)

// ClientOption configures a Client.
type ClientOption func(*Client) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
		return nil
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) error {
		if hc != nil {
			c.http = hc
		}
		return nil
	}
}

// WithCache attaches a response cache.
func WithCache(cache *Cache) ClientOption {
	return func(c *Client) error {
		c.cache = cache
		return nil
	}
}

// WithAuthToken sets the bearer token for endpoints that need authenticated
// access, such as historical event listings.
func WithAuthToken(token string) ClientOption {
	return func(c *Client) error {
		c.authToken = token
		return nil
	}
}

// WithPageSize sets the events page size.
// Default is 50.
func WithPageSize(n int) ClientOption {
	return func(c *Client) error {
		if n > 0 {
			c.pageSize = n
		}
		return nil
	}
}

// NewClient creates an API client for one organisation.
func NewClient(baseURL, appToken, organisationID string, opts ...ClientOption) (*Client, error) {
	if baseURL == "" {
		return nil, ErrBaseURLRequired
	}
	if appToken == "" {
		return nil, ErrTokenRequired
	}
	if organisationID == "" {
		return nil, ErrOrganisationRequired
	}

	c := &Client{
		http:           &http.Client{},
		baseURL:        strings.TrimRight(baseURL, "/"),
		appToken:       appToken,
		organisationID: organisationID,
		apiVersion:     defaultAPIVersion,
		pageSize:       defaultPageSize,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// attributes holds the id the API nests under "@attributes" in some payload
// shapes. Newer payloads carry a plain "id" field instead; providerID on the
// JSON types handles both.
type attributes struct {
	ID int64 `json:"id"`
}

type gremiumJSON struct {
	Attributes attributes `json:"@attributes"`
	ID         int64      `json:"id"`
	Title      string     `json:"title"`
	Name       string     `json:"name"`
	Body       string     `json:"body"`
}

func (g *gremiumJSON) providerID() string {
	return pickID(g.ID, g.Attributes.ID)
}

type eventJSON struct {
	Attributes attributes `json:"@attributes"`
	ID         int64      `json:"id"`
	Date       string     `json:"date"`
	StartDate  string     `json:"start_date"`
}

func (e *eventJSON) providerID() string {
	return pickID(e.ID, e.Attributes.ID)
}

func (e *eventJSON) date() string {
	if e.Date != "" {
		return e.Date
	}
	return e.StartDate
}

type paginationJSON struct {
	TotalPages   int  `json:"total_pages"`
	Pages        int  `json:"pages"`
	HasMorePages bool `json:"has_more_pages"`
}

func (p paginationJSON) hasMore(page int) bool {
	total := p.TotalPages
	if total == 0 {
		total = p.Pages
	}
	return page < total || p.HasMorePages
}

type linkJSON struct {
	Rel  string `json:"rel"`
	Href string `json:"href"`
}

type documentJSON struct {
	Attributes attributes `json:"@attributes"`
	ID         int64      `json:"id"`
	Title      string     `json:"title"`
	Name       string     `json:"name"`
	URL        string     `json:"url"`
	Links      []linkJSON `json:"links"`
	Media      struct {
		URL string `json:"url"`
	} `json:"media"`
}

func (d *documentJSON) providerID() string {
	return pickID(d.ID, d.Attributes.ID)
}

func (d *documentJSON) title() string {
	if d.Title != "" {
		return d.Title
	}
	if d.Name != "" {
		return d.Name
	}
	return "Unnamed document"
}

// downloadURL resolves the document URL across the payload shapes the API
// uses: a plain url field, a download link, or a media object.
func (d *documentJSON) downloadURL() string {
	if d.URL != "" {
		return d.URL
	}
	for _, link := range d.Links {
		if link.Rel == "download" {
			return link.Href
		}
	}
	return d.Media.URL
}

type agendaItemJSON struct {
	Documents []documentJSON   `json:"documents"`
	SubItems  []agendaItemJSON `json:"sub_items"`
	Children  []agendaItemJSON `json:"children"`
}

type meetingJSON struct {
	Attributes  attributes       `json:"@attributes"`
	ID          int64            `json:"id"`
	Title       string           `json:"title"`
	Name        string           `json:"name"`
	Date        string           `json:"date"`
	Location    string           `json:"location"`
	Status      string           `json:"status"`
	AgendaItems []agendaItemJSON `json:"agenda_items"`
	Documents   []documentJSON   `json:"documents"`
}

func pickID(direct, nested int64) string {
	id := direct
	if id == 0 {
		id = nested
	}
	if id == 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}

// Gremia fetches the organisation's committee bodies.
func (c *Client) Gremia(ctx context.Context) ([]*core.Gremium, error) {
	var out struct {
		Gremia []gremiumJSON `json:"gremia"`
	}
	path := fmt.Sprintf("/organisations/%s/gremia", c.organisationID)
	if err := c.getJSON(ctx, path, c.defaultQuery(), &out, cacheTTL); err != nil {
		return nil, err
	}

	gremia := make([]*core.Gremium, 0, len(out.Gremia))
	for i := range out.Gremia {
		g := &out.Gremia[i]
		if g.providerID() == "" {
			c.logger.Warn("skipping gremium without id", "title", g.Title)
			continue
		}
		name := g.Title
		if name == "" {
			name = g.Name
		}
		gremia = append(gremia, &core.Gremium{
			ProviderID: g.providerID(),
			Name:       name,
			Kind:       g.Body,
			Active:     true,
		})
	}
	return gremia, nil
}

// Events lists meetings in the date range, walking all result pages.
// Dates are YYYY-MM-DD; the API wants full timestamps, so the range is
// expanded to cover the whole of both days.
func (c *Client) Events(ctx context.Context, dateFrom, dateTo string) ([]*syncer.Event, error) {
	var all []*syncer.Event
	for page := 1; ; page++ {
		q := c.defaultQuery()
		q.Set("organisation_id", c.organisationID)
		q.Set("page", strconv.Itoa(page))
		q.Set("per_page", strconv.Itoa(c.pageSize))
		q.Set("sort_field", "start_date")
		q.Set("sort_order", "ASC")
		if dateFrom != "" {
			q.Set("date_from", expandDate(dateFrom, "00:00:00"))
		}
		if dateTo != "" {
			q.Set("date_to", expandDate(dateTo, "23:59:59"))
		}

		var out struct {
			Events     []eventJSON    `json:"events"`
			Pagination paginationJSON `json:"pagination"`
		}
		if err := c.getJSON(ctx, "/events", q, &out, cacheTTL); err != nil {
			return nil, fmt.Errorf("events page %d: %w", page, err)
		}
		if len(out.Events) == 0 {
			break
		}

		for i := range out.Events {
			ev := &out.Events[i]
			if ev.providerID() == "" {
				c.logger.Warn("skipping event without id", "date", ev.date())
				continue
			}
			all = append(all, &syncer.Event{
				MeetingProviderID: ev.providerID(),
				Date:              ev.date(),
			})
		}

		if !out.Pagination.hasMore(page) {
			break
		}
	}
	return all, nil
}

// Meeting fetches full meeting details, flattening documents out of the
// agenda item tree. Historical meetings never change upstream, so responses
// are cached without expiry.
func (c *Client) Meeting(ctx context.Context, providerID string) (*syncer.MeetingDetail, error) {
	var out struct {
		Meeting *meetingJSON `json:"meeting"`
	}
	path := fmt.Sprintf("/events/meetings/%s", providerID)
	if err := c.getJSON(ctx, path, c.defaultQuery(), &out, cachePermanent); err != nil {
		return nil, err
	}
	if out.Meeting == nil {
		return nil, fmt.Errorf("meeting %s: %w", providerID, ErrMalformedResponse)
	}

	m := out.Meeting
	title := m.Title
	if title == "" {
		title = m.Name
	}
	detail := &syncer.MeetingDetail{
		Meeting: core.Meeting{
			ProviderID: providerID,
			Title:      title,
			Date:       m.Date,
			Location:   m.Location,
			Status:     m.Status,
		},
	}

	seen := make(map[string]bool)
	collect := func(docs []documentJSON) {
		for i := range docs {
			d := &docs[i]
			id := d.providerID()
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			detail.Documents = append(detail.Documents, core.Document{
				ProviderID: id,
				Title:      d.title(),
				URL:        d.downloadURL(),
			})
		}
	}
	collect(m.Documents)
	var walk func(items []agendaItemJSON)
	walk = func(items []agendaItemJSON) {
		for i := range items {
			collect(items[i].Documents)
			walk(items[i].SubItems)
			walk(items[i].Children)
		}
	}
	walk(m.AgendaItems)

	return detail, nil
}

// Download fetches a document by its URL. The application token doubles as a
// bearer token for document access.
func (c *Client) Download(ctx context.Context, rawURL string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.appToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download %s: unexpected status %s", rawURL, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("downloaded document", "url", rawURL, "bytes", len(data))
	return data, nil
}

type cachePolicy int

const (
	cacheNone cachePolicy = iota
	cacheTTL
	cachePermanent
)

func (c *Client) defaultQuery() url.Values {
	q := url.Values{}
	q.Set("format", "json")
	q.Set("version", c.apiVersion)
	q.Set("lang", "nl-nl")
	q.Set("application_token", c.appToken)
	return q
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, out any, policy cachePolicy) error {
	fullURL := c.baseURL + path + "?" + q.Encode()

	if policy != cacheNone && c.cache != nil {
		if data, err := c.cache.Get(fullURL); err == nil {
			c.logger.Debug("cache hit", "path", path)
			return json.Unmarshal(data, out)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return err
	}
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status %s", path, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if policy != cacheNone && c.cache != nil {
		store := c.cache.Set
		if policy == cachePermanent {
			store = c.cache.SetPermanent
		}
		if err := store(fullURL, data); err != nil {
			c.logger.Warn("failed to cache response", "path", path, "err", err)
		}
	}

	return json.Unmarshal(data, out)
}

func expandDate(d, clock string) string {
	if strings.Contains(d, " ") {
		return d
	}
	return d + " " + clock
}
