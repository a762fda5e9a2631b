// Package elastic indexes module candidates into Elasticsearch and matches
// chat input against them. Each module gets its own index, named by the
// module id and created lazily on first use.
package elastic

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	elasticsearch "github.com/elastic/go-elasticsearch/v8"

	"github.com/claymoreai/claymore/internal/domain"
)

// Client implements domain.ReferenceSearcher.
type Client struct {
	es *elasticsearch.Client
}

// New constructs a client for the given Elasticsearch base URL.
func New(baseURL string) (*Client, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{baseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("op=elastic.New: %w", err)
	}
	return &Client{es: es}, nil
}

type document struct {
	Content string `json:"content"`
}

// EnsureIndexed indexes contents under the module's index unless the index
// already exists. Document ids are 1-based positions, matching the order the
// candidates were read in.
func (c *Client) EnsureIndexed(ctx domain.Context, moduleID string, contents []string) error {
	res, err := c.es.Indices.Exists([]string{moduleID}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("op=elastic.EnsureIndexed exists: %w", err)
	}
	defer func() { _ = res.Body.Close() }()
	if res.StatusCode == http.StatusOK {
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("op=elastic.EnsureIndexed exists status %d", res.StatusCode)
	}

	for i, content := range contents {
		doc, err := json.Marshal(document{Content: content})
		if err != nil {
			return fmt.Errorf("op=elastic.EnsureIndexed marshal: %w", err)
		}
		ires, err := c.es.Index(moduleID, strings.NewReader(string(doc)),
			c.es.Index.WithDocumentID(strconv.Itoa(i+1)),
			c.es.Index.WithContext(ctx),
		)
		if err != nil {
			return fmt.Errorf("op=elastic.EnsureIndexed index: %w", err)
		}
		if ires.IsError() {
			_ = ires.Body.Close()
			return fmt.Errorf("op=elastic.EnsureIndexed index status %d", ires.StatusCode)
		}
		_ = ires.Body.Close()
	}
	return nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source document `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Search returns the contents of the top hits matching query.
func (c *Client) Search(ctx domain.Context, moduleID, query string, size int) ([]string, error) {
	body, err := json.Marshal(map[string]any{
		"query": map[string]any{
			"match": map[string]any{"content": query},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("op=elastic.Search marshal: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(moduleID),
		c.es.Search.WithSize(size),
		c.es.Search.WithBody(strings.NewReader(string(body))),
	)
	if err != nil {
		return nil, fmt.Errorf("op=elastic.Search: %w", err)
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() {
		return nil, fmt.Errorf("op=elastic.Search status %d", res.StatusCode)
	}

	var out searchResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("op=elastic.Search decode: %w", err)
	}
	contents := make([]string, 0, len(out.Hits.Hits))
	for _, h := range out.Hits.Hits {
		contents = append(contents, h.Source.Content)
	}
	return contents, nil
}
