package travel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/tidwall/gjson"
	"github.com/tripmate-ai/tripmate/core"
	"github.com/tripmate-ai/tripmate/tool"
)

// DefaultPlacesBaseURL is the Amap place text-search endpoint.
const DefaultPlacesBaseURL = "https://restapi.amap.com/v5/place/text"

// maxPlaceResults caps how many points of interest one search returns; the
// reduced output is sized for inclusion in a model prompt.
const maxPlaceResults = 5

// MissingCityMessage is the fixed response when a places search arrives
// without a city. The searching agent must ask the user instead of guessing.
const MissingCityMessage = "Error: missing city. Ask the user which city they are currently in before searching for places."

// missingPlacesKeyMessage is returned when no places credential is configured.
const missingPlacesKeyMessage = "Error: places API key is not configured."

// PlaceRecord is one reduced point-of-interest entry. Rating and AverageCost
// carry the UnknownSentinel when the provider omits them.
type PlaceRecord struct {
	Name        string `json:"name"`
	Address     string `json:"address"`
	Category    string `json:"category"`
	Rating      string `json:"rating"`
	AverageCost string `json:"average_cost"`
}

// UnknownSentinel marks provider fields that were absent. Connectors never
// substitute a plausible-looking value for missing data.
const UnknownSentinel = "unknown"

// PlacesConfig configures a PlacesClient. Credentials are passed explicitly;
// the connector never reads the process environment.
type PlacesConfig struct {
	APIKey     string
	BaseURL    string       // Defaults to DefaultPlacesBaseURL
	HTTPClient *http.Client // Defaults to a client with a 15s timeout
	Attempts   uint         // Transport retry attempts, defaults to 3
}

// PlacesClient is a stateless connector for the Amap place text-search API.
// Safe for concurrent use.
type PlacesClient struct {
	cfg PlacesConfig
}

// NewPlacesClient constructs a places connector from explicit configuration.
func NewPlacesClient(cfg PlacesConfig) *PlacesClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultPlacesBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = defaultHTTPClient()
	}
	return &PlacesClient{cfg: cfg}
}

// SearchPlaces looks up points of interest matching keyword within city and
// returns a compact JSON array of at most 5 records, preserving provider
// order. All failure modes return a descriptive string; the method never
// panics and never fabricates a city or a rating.
func (c *PlacesClient) SearchPlaces(ctx context.Context, keyword, city string) string {
	if city == "" {
		return MissingCityMessage
	}
	if c.cfg.APIKey == "" {
		return missingPlacesKeyMessage
	}

	q := url.Values{}
	q.Set("key", c.cfg.APIKey)
	q.Set("keywords", keyword)
	q.Set("city", city)
	q.Set("show_fields", "business,photos")
	q.Set("page_size", fmt.Sprintf("%d", maxPlaceResults))

	body, err := fetchJSON(ctx, c.cfg.HTTPClient, c.cfg.Attempts, c.cfg.BaseURL+"?"+q.Encode())
	if err != nil {
		return fmt.Sprintf("Places lookup error: %v", err)
	}

	data := gjson.ParseBytes(body)
	if data.Get("status").String() != "1" {
		return fmt.Sprintf("Places API request failed: %s", data.Get("info").String())
	}

	records := make([]PlaceRecord, 0, maxPlaceResults)
	for _, poi := range data.Get("pois").Array() {
		if len(records) >= maxPlaceResults {
			break
		}
		records = append(records, PlaceRecord{
			Name:        poi.Get("name").String(),
			Address:     poi.Get("address").String(),
			Category:    poi.Get("type").String(),
			Rating:      fieldOrUnknown(poi.Get("biz_ext.rating")),
			AverageCost: fieldOrUnknown(poi.Get("biz_ext.cost")),
		})
	}

	out, err := json.Marshal(records)
	if err != nil {
		return fmt.Sprintf("Places lookup error: %v", err)
	}
	return string(out)
}

// fieldOrUnknown maps absent or empty provider fields to the sentinel. Amap
// sometimes encodes missing business fields as an empty array.
func fieldOrUnknown(r gjson.Result) string {
	if !r.Exists() || r.IsArray() {
		return UnknownSentinel
	}
	if s := r.String(); s != "" {
		return s
	}
	return UnknownSentinel
}

// PlacesToolName is the stable capability name under which the connector is
// registered, distinct from its method name.
const PlacesToolName = "gaode_map"

const placesToolDescription = "Search for real places (restaurants, sights, hotels) by keyword within a city. " +
	"Returns up to five results with name, address, category, rating and average cost. " +
	"If the user did not state a city, infer it from the prior conversation; " +
	"if it cannot be inferred, leave the city argument empty and do not fabricate one."

// Tool exposes the connector as a registered capability with validated
// argument binding.
func (c *PlacesClient) Tool() *tool.FunctionTool {
	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"keyword": map[string]any{
				"type":        "string",
				"description": "Search keyword, e.g. a dish, sight or venue type",
			},
			"city": map[string]any{
				"type":        "string",
				"description": "City to search in. Leave empty when unknown instead of guessing",
			},
		},
		"required": []string{"keyword"},
	}

	return tool.NewFunctionTool(
		PlacesToolName,
		placesToolDescription,
		params,
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			keyword, _ := args["keyword"].(string)
			city, _ := args["city"].(string)
			return c.SearchPlaces(tc.Context(), keyword, city), nil
		},
	)
}
