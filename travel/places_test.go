package travel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func placesServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestSearchPlaces_MissingCity(t *testing.T) {
	c := NewPlacesClient(PlacesConfig{APIKey: "k"})

	for _, keyword := range []string{"火锅", "museum", ""} {
		out := c.SearchPlaces(context.Background(), keyword, "")
		assert.Equal(t, MissingCityMessage, out)
	}
}

func TestSearchPlaces_MissingCredential(t *testing.T) {
	c := NewPlacesClient(PlacesConfig{})
	out := c.SearchPlaces(context.Background(), "火锅", "重庆")
	assert.Equal(t, missingPlacesKeyMessage, out)
}

func TestSearchPlaces_Success(t *testing.T) {
	srv := placesServer(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "k", q.Get("key"))
		assert.Equal(t, "火锅", q.Get("keywords"))
		assert.Equal(t, "重庆", q.Get("city"))
		assert.Equal(t, "business,photos", q.Get("show_fields"))
		assert.Equal(t, "5", q.Get("page_size"))

		pois := `[
			{"name":"老灶火锅","address":"解放碑街道1号","type":"餐饮服务","biz_ext":{"rating":"4.8","cost":"98"}},
			{"name":"山城小面","address":"南山路2号","type":"餐饮服务","biz_ext":{"rating":[],"cost":[]}},
			{"name":"江边串串","address":"滨江路3号","type":"餐饮服务","biz_ext":{}}
		]`
		fmt.Fprintf(w, `{"status":"1","info":"OK","pois":%s}`, pois)
	})

	c := NewPlacesClient(PlacesConfig{APIKey: "k", BaseURL: srv.URL})
	out := c.SearchPlaces(context.Background(), "火锅", "重庆")

	var records []PlaceRecord
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	require.Len(t, records, 3)

	// Provider order preserved, no re-ranking
	assert.Equal(t, "老灶火锅", records[0].Name)
	assert.Equal(t, "4.8", records[0].Rating)
	assert.Equal(t, "98", records[0].AverageCost)

	// Empty-array and absent business fields map to the sentinel, never omission
	for _, rec := range records[1:] {
		assert.Equal(t, UnknownSentinel, rec.Rating)
		assert.Equal(t, UnknownSentinel, rec.AverageCost)
	}
}

func TestSearchPlaces_CapsResultCount(t *testing.T) {
	srv := placesServer(t, func(w http.ResponseWriter, _ *http.Request) {
		pois := ""
		for i := 0; i < 8; i++ {
			if i > 0 {
				pois += ","
			}
			pois += fmt.Sprintf(`{"name":"p%d","address":"a%d","type":"t"}`, i, i)
		}
		fmt.Fprintf(w, `{"status":"1","pois":[%s]}`, pois)
	})

	c := NewPlacesClient(PlacesConfig{APIKey: "k", BaseURL: srv.URL})
	out := c.SearchPlaces(context.Background(), "park", "Beijing")

	var records []PlaceRecord
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	assert.Len(t, records, 5)
	for _, rec := range records {
		assert.NotEmpty(t, rec.Rating)
	}
}

func TestSearchPlaces_UpstreamFailure(t *testing.T) {
	srv := placesServer(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"status":"0","info":"INVALID_USER_KEY"}`)
	})

	c := NewPlacesClient(PlacesConfig{APIKey: "bad", BaseURL: srv.URL})
	out := c.SearchPlaces(context.Background(), "火锅", "重庆")
	assert.Contains(t, out, "INVALID_USER_KEY")
}

func TestSearchPlaces_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // force a connection failure

	c := NewPlacesClient(PlacesConfig{APIKey: "k", BaseURL: srv.URL, Attempts: 1})
	out := c.SearchPlaces(context.Background(), "火锅", "重庆")
	assert.Contains(t, out, "Places lookup error")
}

func TestSearchPlaces_Idempotent(t *testing.T) {
	srv := placesServer(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"status":"1","pois":[{"name":"n","address":"a","type":"t","biz_ext":{"rating":"4.5"}}]}`)
	})

	c := NewPlacesClient(PlacesConfig{APIKey: "k", BaseURL: srv.URL})
	first := c.SearchPlaces(context.Background(), "咖啡", "上海")
	second := c.SearchPlaces(context.Background(), "咖啡", "上海")
	assert.Equal(t, first, second)
}

func TestPlacesTool_Declaration(t *testing.T) {
	c := NewPlacesClient(PlacesConfig{APIKey: "k"})
	pt := c.Tool()

	assert.Equal(t, PlacesToolName, pt.Name())
	assert.Contains(t, pt.Description(), "do not fabricate")

	params := pt.Parameters()
	props := params["properties"].(map[string]any)
	assert.Contains(t, props, "keyword")
	assert.Contains(t, props, "city")
	assert.Equal(t, []string{"keyword"}, params["required"])
}

func TestPlacesTool_MissingCityThroughToolCall(t *testing.T) {
	c := NewPlacesClient(PlacesConfig{APIKey: "k"})
	pt := c.Tool()

	tc := newTestToolContext(t)
	result, err := pt.Call(tc, map[string]any{"keyword": "火锅"})
	require.NoError(t, err)
	assert.Equal(t, MissingCityMessage, result)
}
