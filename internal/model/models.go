package model

import (
	"net/url"
	"strconv"
)

// WikipediaAPIConfig describes a MediaWiki list=allpages request
type WikipediaAPIConfig struct {
	BaseURL   string `json:"base_url"`
	Action    string `json:"action"`
	Format    string `json:"format"`
	ListType  string `json:"list_type"`
	Limit     int    `json:"limit"`
	Namespace *int   `json:"namespace,omitempty"`
	MaxPages  int    `json:"max_pages"` // continuation pages to follow, 0 = until exhausted
	UserAgent string `json:"user_agent"`
}

// NewWikipediaAPIConfig returns a config with the MediaWiki defaults.
func NewWikipediaAPIConfig(baseURL string, limit int) WikipediaAPIConfig {
	return WikipediaAPIConfig{
		BaseURL:  baseURL,
		Action:   "query",
		Format:   "json",
		ListType: "allpages",
		Limit:    limit,
		MaxPages: 1,
	}
}

// Params converts the config to API query parameters. An empty
// continueToken requests the first page.
func (c WikipediaAPIConfig) Params(continueToken string) url.Values {
	params := url.Values{}
	params.Set("action", c.Action)
	params.Set("format", c.Format)
	params.Set("list", c.ListType)
	if c.Limit > 0 {
		params.Set("aplimit", strconv.Itoa(c.Limit))
	}
	if c.Namespace != nil {
		params.Set("apnamespace", strconv.Itoa(*c.Namespace))
	}
	if continueToken != "" {
		params.Set("apcontinue", continueToken)
	}
	return params
}

// DataSource is a generic data source configuration
type DataSource struct {
	Type       string            `json:"type"` // wikipedia, api, file
	Name       string            `json:"name"`
	URL        string            `json:"url"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

// Query renders the source parameters as a URL query.
func (d DataSource) Query() url.Values {
	values := url.Values{}
	for k, v := range d.Parameters {
		values.Set(k, v)
	}
	return values
}
