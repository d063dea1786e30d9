// Package steam implements the Steam platform adapter, the only required
// platform.Adapter implementation at MVP (§4.2), adapted from the
// teacher's Steam Web API client.
package steam

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	webAPIBaseURL   = "https://api.steampowered.com"
	storeAPIBaseURL = "https://store.steampowered.com"
)

// apiError is a raw HTTP-level failure, wrapped into a classified
// platform.AdapterError by the Adapter before it ever leaves this package.
type apiError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("steam API error (endpoint: %s, status: %d): %s", e.Endpoint, e.StatusCode, e.Message)
}

// client is a thin, rate-smoothed HTTP wrapper around the Steam Web and
// store APIs. It layers a local token bucket underneath the shared
// Redis-backed rate limiter the Sync Worker holds: even when the
// platform-wide budget has slack, a single adapter instance never emits
// a burst the Steam API would itself throttle.
type client struct {
	apiKey      string
	httpClient  *resty.Client
	logger      *logrus.Logger
	burst       *rate.Limiter
	cache       sync.Map
	cacheTTL    time.Duration
}

type cacheEntry struct {
	data      interface{}
	expiresAt time.Time
}

func newClient(apiKey string, logger *logrus.Logger) *client {
	if logger == nil {
		logger = logrus.New()
	}

	hc := resty.New()
	hc.SetTimeout(30 * time.Second)
	hc.SetRetryCount(3)
	hc.SetRetryWaitTime(1 * time.Second)
	hc.SetRetryMaxWaitTime(5 * time.Second)

	return &client{
		apiKey:     apiKey,
		httpClient: hc,
		logger:     logger,
		burst:      rate.NewLimiter(rate.Every(time.Second), 5),
		cacheTTL:   1 * time.Hour, // §4.2: the whole library is cached for a bounded period
	}
}

func (c *client) fromCache(key string) (interface{}, bool) {
	v, ok := c.cache.Load(key)
	if !ok {
		return nil, false
	}
	entry := v.(cacheEntry)
	if time.Now().After(entry.expiresAt) {
		c.cache.Delete(key)
		return nil, false
	}
	return entry.data, true
}

func (c *client) storeCache(key string, data interface{}) {
	c.cache.Store(key, cacheEntry{data: data, expiresAt: time.Now().Add(c.cacheTTL)})
}

func (c *client) throttle(ctx context.Context) error {
	if err := c.burst.Wait(ctx); err != nil {
		return fmt.Errorf("local burst limiter: %w", err)
	}
	return nil
}

// getOwnedGamesResponse mirrors Steam's IPlayerService/GetOwnedGames/v1/.
type getOwnedGamesResponse struct {
	Response struct {
		GameCount int              `json:"game_count"`
		Games     []ownedGameEntry `json:"games"`
	} `json:"response"`
}

type ownedGameEntry struct {
	AppID           int    `json:"appid"`
	Name            string `json:"name"`
	PlaytimeForever int    `json:"playtime_forever"`
	RtimeLastPlayed int64  `json:"rtime_last_played"`
	ImgIconURL      string `json:"img_icon_url"`
}

// getOwnedGames fetches a user's entire owned-games library in one call,
// per §4.2 ("the whole library arrives in one call").
func (c *client) getOwnedGames(ctx context.Context, steamID string) (*getOwnedGamesResponse, error) {
	cacheKey := "owned_games:" + steamID
	if cached, ok := c.fromCache(cacheKey); ok {
		resp := cached.(getOwnedGamesResponse)
		return &resp, nil
	}

	if err := c.throttle(ctx); err != nil {
		return nil, err
	}

	endpoint := webAPIBaseURL + "/IPlayerService/GetOwnedGames/v1/"
	var result getOwnedGamesResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"key":                       c.apiKey,
			"steamid":                   steamID,
			"format":                    "json",
			"include_appinfo":           "1",
			"include_played_free_games": "1",
		}).
		SetResult(&result).
		Get(endpoint)
	if err != nil {
		return nil, fmt.Errorf("getOwnedGames request: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, &apiError{StatusCode: resp.StatusCode(), Message: resp.Status(), Endpoint: endpoint}
	}

	c.storeCache(cacheKey, result)
	return &result, nil
}

// appDetailsResponse mirrors the Steam store API's appdetails endpoint.
type appDetailsResponse map[string]struct {
	Success bool              `json:"success"`
	Data    storeAppDetails   `json:"data"`
}

type storeAppDetails struct {
	Name        string   `json:"name"`
	ShortDesc   string   `json:"short_description"`
	HeaderImage string   `json:"header_image"`
	Developers  []string `json:"developers"`
	Publishers  []string `json:"publishers"`
	ReleaseDate struct {
		ComingSoon bool   `json:"coming_soon"`
		Date       string `json:"date"`
	} `json:"release_date"`
	Genres []struct {
		Description string `json:"description"`
	} `json:"genres"`
	Categories []struct {
		Description string `json:"description"`
	} `json:"categories"`
	ContentDescriptors struct {
		IDs   []int  `json:"ids"`
		Notes string `json:"notes"`
	} `json:"content_descriptors"`
	Screenshots []struct {
		PathFull string `json:"path_full"`
	} `json:"screenshots"`
	Metacritic struct {
		Score int `json:"score"`
	} `json:"metacritic"`
}

func (c *client) getAppDetails(ctx context.Context, appID int) (*storeAppDetails, error) {
	cacheKey := fmt.Sprintf("app_details:%d", appID)
	if cached, ok := c.fromCache(cacheKey); ok {
		d := cached.(storeAppDetails)
		return &d, nil
	}

	if err := c.throttle(ctx); err != nil {
		return nil, err
	}

	endpoint := storeAPIBaseURL + "/api/appdetails"
	var result appDetailsResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"appids": fmt.Sprintf("%d", appID)}).
		SetResult(&result).
		Get(endpoint)
	if err != nil {
		return nil, fmt.Errorf("getAppDetails request: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, &apiError{StatusCode: resp.StatusCode(), Message: resp.Status(), Endpoint: endpoint}
	}

	appIDStr := fmt.Sprintf("%d", appID)
	entry, ok := result[appIDStr]
	if !ok || !entry.Success {
		return nil, &apiError{StatusCode: 404, Message: "app not found or unsuccessful", Endpoint: endpoint}
	}

	c.storeCache(cacheKey, entry.Data)
	return &entry.Data, nil
}

// appReviewsResponse mirrors the Steam store API's appreviews summary.
type appReviewsResponse struct {
	Success      int `json:"success"`
	QuerySummary struct {
		ReviewScore     int    `json:"review_score"`
		ReviewScoreDesc string `json:"review_score_desc"`
		TotalPositive   int    `json:"total_positive"`
		TotalNegative   int    `json:"total_negative"`
		TotalReviews    int    `json:"total_reviews"`
	} `json:"query_summary"`
}

func (c *client) getAppReviews(ctx context.Context, appID int) (*appReviewsResponse, error) {
	if err := c.throttle(ctx); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/appreviews/%d", storeAPIBaseURL, appID)
	var result appReviewsResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"json":          "1",
			"language":      "all",
			"review_type":   "all",
			"purchase_type": "all",
			"num_per_page":  "0",
		}).
		SetResult(&result).
		Get(endpoint)
	if err != nil {
		return nil, fmt.Errorf("getAppReviews request: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, &apiError{StatusCode: resp.StatusCode(), Message: resp.Status(), Endpoint: endpoint}
	}
	if result.Success != 1 {
		return nil, &apiError{StatusCode: 502, Message: "steam reported failure for app reviews", Endpoint: endpoint}
	}
	return &result, nil
}

// validateAPIKey performs a cheap call to confirm the key is accepted,
// used by ValidateCredentials to fail fast with Auth on a rejected key.
func (c *client) validateAPIKey(ctx context.Context) error {
	endpoint := webAPIBaseURL + "/ISteamUser/GetPlayerSummaries/v0002/"
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"key":      c.apiKey,
			"steamids": "76561197960435530",
		}).
		Get(endpoint)
	if err != nil {
		return fmt.Errorf("validate api key: %w", err)
	}
	if resp.StatusCode() == 401 || resp.StatusCode() == 403 {
		return &apiError{StatusCode: resp.StatusCode(), Message: "invalid steam API key", Endpoint: endpoint}
	}
	if resp.StatusCode() != 200 {
		return &apiError{StatusCode: resp.StatusCode(), Message: resp.Status(), Endpoint: endpoint}
	}
	return nil
}
