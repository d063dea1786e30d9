package steam

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jimsantora/librarysync/internal/platform"
)

const steamCDNBase = "https://cdn.akamai.steamstatic.com/steam/apps"

// Adapter implements platform.Adapter against the Steam Web and store
// APIs (§4.2).
type Adapter struct {
	client  *client
	mapper  *ESRBRatingMapper
	logger  *logrus.Logger
	apiKey  string
}

// Config configures a Steam Adapter.
type Config struct {
	APIKey string
	Logger *logrus.Logger
}

// New constructs a Steam platform adapter.
func New(cfg Config) *Adapter {
	return &Adapter{
		client: newClient(cfg.APIKey, cfg.Logger),
		mapper: NewESRBRatingMapper(),
		logger: cfg.Logger,
		apiKey: cfg.APIKey,
	}
}

// Code implements platform.Adapter.
func (a *Adapter) Code() string { return "steam" }

// ValidateCredentials implements platform.Adapter. Steam credentials are
// a single API key plus the target Steam ID; the key itself is shared
// across every library synced by this adapter instance.
func (a *Adapter) ValidateCredentials(credentials map[string]interface{}) error {
	if _, ok := credentials["steamId"].(string); !ok {
		return &platform.AdapterError{Kind: platform.ErrAuth, Platform: a.Code(), Message: "credentials missing steamId"}
	}
	if err := a.client.validateAPIKey(context.Background()); err != nil {
		return a.classify(err, "ValidateCredentials")
	}
	return nil
}

// CountGames implements platform.Adapter.
func (a *Adapter) CountGames(userIdentifier string) (int, error) {
	resp, err := a.client.getOwnedGames(context.Background(), userIdentifier)
	if err != nil {
		return 0, a.classify(err, "CountGames")
	}
	return resp.Response.GameCount, nil
}

// FetchBatch implements platform.Adapter. Steam returns the whole library
// in one call (cached for an hour by the client), so FetchBatch slices
// that cached response by offset/limit, giving the Sync Worker a
// restartable page-level interface over a source that has none natively.
func (a *Adapter) FetchBatch(userIdentifier string, offset, limit int) ([]platform.RawGame, error) {
	resp, err := a.client.getOwnedGames(context.Background(), userIdentifier)
	if err != nil {
		return nil, a.classify(err, "FetchBatch")
	}

	games := resp.Response.Games
	if offset >= len(games) {
		return []platform.RawGame{}, nil
	}
	end := offset + limit
	if end > len(games) {
		end = len(games)
	}

	batch := make([]platform.RawGame, 0, end-offset)
	for _, g := range games[offset:end] {
		batch = append(batch, platform.RawGame{
			"appid":             g.AppID,
			"name":              g.Name,
			"playtime_forever":  g.PlaytimeForever,
			"rtime_last_played": g.RtimeLastPlayed,
			"img_icon_url":      g.ImgIconURL,
		})
	}
	return batch, nil
}

// GetGameDetails implements platform.Adapter as a lazy enrichment lookup
// against the Steam store API, invoked by low-priority enrichment jobs
// rather than inline in the main sync loop (§4.2) so a slow store-API
// call never blocks core ownership/playtime sync.
func (a *Adapter) GetGameDetails(platformGameID string) (platform.RawGame, error) {
	appID, err := strconv.Atoi(platformGameID)
	if err != nil {
		return nil, &platform.AdapterError{Kind: platform.ErrPermanent, Platform: a.Code(), Message: "platformGameId is not a Steam appid"}
	}

	details, err := a.client.getAppDetails(context.Background(), appID)
	if err != nil {
		return nil, a.classify(err, "GetGameDetails")
	}

	raw := platform.RawGame{
		"appid":               appID,
		"name":                details.Name,
		"short_description":   details.ShortDesc,
		"header_image":        details.HeaderImage,
		"developers":          details.Developers,
		"publishers":          details.Publishers,
		"release_date":        details.ReleaseDate.Date,
		"metacritic_score":    details.Metacritic.Score,
		"content_descriptors": details.ContentDescriptors.IDs,
		"content_notes":       details.ContentDescriptors.Notes,
	}

	genres := make([]string, 0, len(details.Genres))
	for _, g := range details.Genres {
		genres = append(genres, g.Description)
	}
	raw["genres"] = genres

	tags := make([]string, 0, len(details.Categories))
	for _, c := range details.Categories {
		tags = append(tags, c.Description)
	}
	raw["tags"] = tags

	screenshots := make([]string, 0, len(details.Screenshots))
	for _, s := range details.Screenshots {
		screenshots = append(screenshots, s.PathFull)
	}
	raw["screenshots"] = screenshots

	if reviews, err := a.client.getAppReviews(context.Background(), appID); err == nil {
		raw["review_score"] = reviews.QuerySummary.ReviewScore
		raw["review_score_desc"] = reviews.QuerySummary.ReviewScoreDesc
		raw["total_reviews"] = reviews.QuerySummary.TotalReviews
	}

	return raw, nil
}

// Transform implements platform.Adapter, mapping a raw Steam game (from
// either FetchBatch or GetGameDetails) onto the universal NormalizedGame
// shape (§4.2).
func (a *Adapter) Transform(raw platform.RawGame) (platform.NormalizedGame, error) {
	appID, ok := raw["appid"]
	if !ok {
		return platform.NormalizedGame{}, &platform.AdapterError{Kind: platform.ErrPermanent, Platform: a.Code(), Message: "raw game missing appid"}
	}
	appIDStr := fmt.Sprintf("%v", appID)

	name, _ := raw["name"].(string)
	if name == "" {
		return platform.NormalizedGame{}, &platform.AdapterError{Kind: platform.ErrPermanent, Platform: a.Code(), Message: "raw game missing name"}
	}

	ng := platform.NormalizedGame{
		PlatformCode:   a.Code(),
		PlatformGameID: appIDStr,
		Title:          name,
		ExternalIDs:    map[string]string{"steamAppId": appIDStr},
		CoverImageURL:  fmt.Sprintf("%s/%s/header.jpg", steamCDNBase, appIDStr),
	}

	if playtime, ok := raw["playtime_forever"].(int); ok {
		ng.PlaytimeMinutes = playtime
	}
	if rtime, ok := raw["rtime_last_played"].(int64); ok {
		ng.LastPlayedUnix = rtime
	}

	if desc, ok := raw["short_description"].(string); ok {
		ng.Description = desc
	}
	if devs, ok := raw["developers"].([]string); ok && len(devs) > 0 {
		ng.Developer = devs[0]
	}
	if pubs, ok := raw["publishers"].([]string); ok && len(pubs) > 0 {
		ng.Publisher = pubs[0]
	}
	if genres, ok := raw["genres"].([]string); ok {
		ng.Genres = genres
	}
	if tags, ok := raw["tags"].([]string); ok {
		ng.Tags = tags
	}
	if shots, ok := raw["screenshots"].([]string); ok {
		ng.Screenshots = shots
	}
	if dateStr, ok := raw["release_date"].(string); ok && dateStr != "" {
		if parsed, err := time.Parse("Jan 2, 2006", dateStr); err == nil {
			ng.ReleaseDate = &parsed
		}
	}
	if score, ok := raw["metacritic_score"].(int); ok && score > 0 {
		ng.MetacriticScore = &score
	}

	if ids, ok := raw["content_descriptors"].([]int); ok {
		notes, _ := raw["content_notes"].(string)
		rating := a.mapper.DetermineESRBRating(ids, notes)
		code := string(rating)
		ng.ESRBRating = &code
		ng.ESRBDescriptors = a.mapper.MapContentDescriptors(ids)
	}

	ng.PlatformData = map[string]interface{}{}
	if score, ok := raw["review_score"].(int); ok {
		ng.PlatformData["steamReviewScore"] = score
	}
	if desc, ok := raw["review_score_desc"].(string); ok {
		ng.PlatformData["steamReviewScoreDesc"] = desc
	}

	return ng, nil
}

// classify turns a raw client error into a platform.AdapterError, the
// only shape SW is allowed to see (§7).
func (a *Adapter) classify(err error, op string) error {
	if apiErr, ok := err.(*apiError); ok {
		return &platform.AdapterError{
			Kind:       platform.ClassifyHTTPStatus(apiErr.StatusCode, 0),
			Platform:   a.Code(),
			StatusCode: apiErr.StatusCode,
			Message:    fmt.Sprintf("%s: %s", op, apiErr.Message),
			Err:        err,
		}
	}
	return &platform.AdapterError{
		Kind:     platform.ErrTransient,
		Platform: a.Code(),
		Message:  fmt.Sprintf("%s: %v", op, err),
		Err:      err,
	}
}
