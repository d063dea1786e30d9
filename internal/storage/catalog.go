package storage

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jimsantora/librarysync/internal/identity"
	"github.com/jimsantora/librarysync/internal/models"
	"github.com/jimsantora/librarysync/internal/platform"
)

// Catalog is the Catalog Store (CS): durable persistence, idempotent
// upsert, identity-resolution invocation, and full-text search, grounded
// on the teacher's Repository but generalized to the full §3 schema and
// real upsert/search semantics the teacher's CRUD-only repository lacked.
type Catalog struct {
	db *Database
}

// NewCatalog constructs a Catalog Store bound to db.
func NewCatalog(db *Database) *Catalog {
	return &Catalog{db: db}
}

// UpsertCounts is the result of UpsertGamesBatch.
type UpsertCounts struct {
	Added     int
	Updated   int
	Unchanged int
}

// NewGameRef identifies a catalog Game row created by UpsertGamesBatch,
// returned so the caller can queue low-priority enrichment (§4.7/§4.9
// supplement: app-details/review enrichment is fetched lazily, not
// inline in the main sync loop).
type NewGameRef struct {
	GameID         uuid.UUID
	PlatformCode   string
	PlatformGameID string
}

// UpsertPlatform inserts or updates a Platform row, keyed by its unique
// lowercase code.
func (c *Catalog) UpsertPlatform(p *models.Platform) error {
	if p.Code == "" {
		return newValidationError("platform code is required", "code")
	}
	p.Code = strings.ToLower(p.Code)

	var existing models.Platform
	err := c.db.Where("code = ?", p.Code).First(&existing).Error
	switch {
	case err == nil:
		p.ID = existing.ID
		p.CreatedAt = existing.CreatedAt
		if err := c.db.Model(&existing).Updates(p).Error; err != nil {
			return newInternalError("failed to update platform", err)
		}
		return nil
	case err == gorm.ErrRecordNotFound:
		if p.ID == uuid.Nil {
			p.ID = uuid.New()
		}
		if err := c.db.Create(p).Error; err != nil {
			return newInternalError("failed to create platform", err)
		}
		return nil
	default:
		return newInternalError("failed to look up platform", err)
	}
}

// UpsertLibrary inserts or updates a UserLibrary, keyed by the unique
// (platformId, userIdentifier) pair (§3).
func (c *Catalog) UpsertLibrary(l *models.UserLibrary) error {
	if l.PlatformID == uuid.Nil || l.UserIdentifier == "" {
		return newValidationError("platform_id and user_identifier are required", "platform_id", "user_identifier")
	}

	var existing models.UserLibrary
	err := c.db.Where("platform_id = ? AND user_identifier = ?", l.PlatformID, l.UserIdentifier).First(&existing).Error
	switch {
	case err == nil:
		l.ID = existing.ID
		l.CreatedAt = existing.CreatedAt
		if err := c.db.Model(&existing).Updates(l).Error; err != nil {
			return newInternalError("failed to update library", err)
		}
		return nil
	case err == gorm.ErrRecordNotFound:
		if l.ID == uuid.Nil {
			l.ID = uuid.New()
		}
		if err := c.db.Create(l).Error; err != nil {
			return newInternalError("failed to create library", err)
		}
		return nil
	default:
		return newInternalError("failed to look up library", err)
	}
}

// GetPlatform looks up a Platform by its lowercase code.
func (c *Catalog) GetPlatform(code string) (*models.Platform, error) {
	var p models.Platform
	if err := c.db.Where("code = ?", code).First(&p).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, newNotFoundError("platform not found", "code")
		}
		return nil, newInternalError("failed to look up platform", err)
	}
	return &p, nil
}

// ListPlatforms returns every known platform, optionally filtered to
// those with a reachable API (§6.1: `GET /platforms?enabled=true`).
func (c *Catalog) ListPlatforms(apiAvailableOnly bool) ([]models.Platform, error) {
	var platforms []models.Platform
	q := c.db.Order("name asc")
	if apiAvailableOnly {
		q = q.Where("api_available = ?", true)
	}
	if err := q.Find(&platforms).Error; err != nil {
		return nil, newInternalError("failed to list platforms", err)
	}
	return platforms, nil
}

// ListLibraries returns a page of libraries ordered by creation time,
// along with the total row count (§6.1: `GET /libraries?page&limit`).
func (c *Catalog) ListLibraries(page, limit int) ([]models.UserLibrary, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}

	var total int64
	if err := c.db.Model(&models.UserLibrary{}).Count(&total).Error; err != nil {
		return nil, 0, newInternalError("failed to count libraries", err)
	}

	var libraries []models.UserLibrary
	offset := (page - 1) * limit
	if err := c.db.Order("created_at desc").Limit(limit).Offset(offset).Find(&libraries).Error; err != nil {
		return nil, 0, newInternalError("failed to list libraries", err)
	}
	return libraries, total, nil
}

// UpdateLibrary applies a partial update (display name, sync_enabled, and
// credentials) to an existing library (§6.1: `PATCH /libraries/{id}`).
func (c *Catalog) UpdateLibrary(libraryID uuid.UUID, updates map[string]interface{}) (*models.UserLibrary, error) {
	if err := c.db.Model(&models.UserLibrary{}).Where("id = ?", libraryID).Updates(updates).Error; err != nil {
		return nil, newInternalError("failed to update library", err)
	}
	return c.GetLibrary(libraryID)
}

// GetPlatformByID looks up a Platform by its primary key.
func (c *Catalog) GetPlatformByID(platformID uuid.UUID) (*models.Platform, error) {
	var p models.Platform
	if err := c.db.First(&p, "id = ?", platformID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, newNotFoundError("platform not found", "id")
		}
		return nil, newInternalError("failed to look up platform", err)
	}
	return &p, nil
}

// GetLibrary looks up a UserLibrary by id.
func (c *Catalog) GetLibrary(libraryID uuid.UUID) (*models.UserLibrary, error) {
	var l models.UserLibrary
	if err := c.db.First(&l, "id = ?", libraryID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, newNotFoundError("library not found", "id")
		}
		return nil, newInternalError("failed to look up library", err)
	}
	return &l, nil
}

// ListSyncableLibraries returns every enabled library not already mid-sync,
// for the scheduler's periodic sweep (§4.6/§5).
func (c *Catalog) ListSyncableLibraries() ([]models.UserLibrary, error) {
	var libraries []models.UserLibrary
	midSync := []string{string(models.SyncStatusInProgress), string(models.SyncStatusQueued)}
	if err := c.db.Where("sync_enabled = ? AND (sync_status IS NULL OR sync_status NOT IN ?)", true, midSync).Find(&libraries).Error; err != nil {
		return nil, newInternalError("failed to list libraries", err)
	}
	return libraries, nil
}

// DeleteLibrary deletes a UserLibrary and cascades to its UserGames (§3:
// "UserLibrary owns its UserGames exclusively; deleting a library
// cascades"). Games themselves are shared catalog entities and are never
// deleted here.
func (c *Catalog) DeleteLibrary(libraryID uuid.UUID) error {
	return c.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("library_id = ?", libraryID).Delete(&models.UserGame{}).Error; err != nil {
			return newInternalError("failed to cascade-delete user games", err)
		}
		if err := tx.Delete(&models.UserLibrary{}, "id = ?", libraryID).Error; err != nil {
			return newInternalError("failed to delete library", err)
		}
		return nil
	})
}

// UpsertGamesBatch resolves each input's catalog game via GIR, then
// upserts the Game and UserGame rows (§4.3/§4.6). Runs inside a single
// transaction so the batch is atomic with respect to checkpoint
// granularity at the caller (SW commits a checkpoint only after this
// returns).
func (c *Catalog) UpsertGamesBatch(libraryID uuid.UUID, games []platform.NormalizedGame, opLog *models.SyncOperation) (UpsertCounts, []NewGameRef, error) {
	counts := UpsertCounts{}
	var newGames []NewGameRef

	err := c.db.Transaction(func(tx *gorm.DB) error {
		resolver := identity.New(tx)

		for _, ng := range games {
			if err := validateNormalizedGame(ng); err != nil {
				return err
			}

			match, err := resolver.Resolve(identity.NormalizedGame{
				PlatformCode: ng.PlatformCode,
				ExternalIDs:  models.ExternalIDs(ng.ExternalIDs),
				Title:        ng.Title,
				Developer:    ng.Developer,
				Publisher:    ng.Publisher,
			})
			if err != nil {
				return newInternalError("identity resolution failed", err)
			}

			gameAdded, err := upsertGame(tx, match.GameID, match.IsNew, ng)
			if err != nil {
				return err
			}

			userGameAdded, userGameUpdated, regressed, err := upsertUserGame(tx, libraryID, match.GameID, ng)
			if err != nil {
				return err
			}

			switch {
			case gameAdded || userGameAdded:
				counts.Added++
			case userGameUpdated:
				counts.Updated++
			default:
				counts.Unchanged++
			}

			if gameAdded {
				newGames = append(newGames, NewGameRef{
					GameID:         match.GameID,
					PlatformCode:   ng.PlatformCode,
					PlatformGameID: ng.PlatformGameID,
				})
			}

			if regressed && opLog != nil {
				opLog.AppendLog(fmt.Sprintf("playtime regression for platformGameId=%s: recorded lower value for investigation", ng.PlatformGameID))
			}
		}
		return nil
	})
	if err != nil {
		return UpsertCounts{}, nil, err
	}
	return counts, newGames, nil
}

// EnrichGame merges a lazily-fetched details payload onto an existing
// Game row (§4.2/§4.9 supplement), invoked by the enrichment job
// dispatched after a new game is first upserted. Never creates a row:
// if gameID does not already exist this is a no-op error.
func (c *Catalog) EnrichGame(gameID uuid.UUID, ng platform.NormalizedGame) error {
	return c.db.Transaction(func(tx *gorm.DB) error {
		_, err := upsertGame(tx, gameID, false, ng)
		return err
	})
}

func validateNormalizedGame(ng platform.NormalizedGame) error {
	if ng.Title == "" {
		return newValidationError("game title is required", "title")
	}
	if ng.MetacriticScore != nil && (*ng.MetacriticScore < 0 || *ng.MetacriticScore > 100) {
		return newValidationError("metacritic_score out of range [0,100]", "metacritic_score")
	}
	return nil
}

func upsertGame(tx *gorm.DB, gameID uuid.UUID, isNew bool, ng platform.NormalizedGame) (added bool, err error) {
	var game models.Game
	if !isNew {
		if err := tx.First(&game, "id = ?", gameID).Error; err != nil {
			return false, newInternalError("failed to load resolved game", err)
		}
	} else {
		game = models.Game{ID: gameID}
		now := time.Now().UTC()
		game.CreatedAt = now
	}

	game.Title = ng.Title
	game.NormalizedTitle = identity.Normalize(ng.Title)
	if ng.Developer != "" {
		game.Developer = ng.Developer
	}
	if ng.Publisher != "" {
		game.Publisher = ng.Publisher
	}
	if ng.Description != "" {
		game.Description = ng.Description
	}
	if ng.ReleaseDate != nil {
		game.ReleaseDate = ng.ReleaseDate
	}
	if len(ng.Genres) > 0 {
		game.Genres = ng.Genres
	}
	if len(ng.Tags) > 0 {
		game.Tags = ng.Tags
	}
	if ng.CoverImageURL != "" {
		game.CoverImageURL = ng.CoverImageURL
	}
	if len(ng.Screenshots) > 0 {
		game.Screenshots = ng.Screenshots
	}
	if ng.MetacriticScore != nil {
		game.MetacriticScore = ng.MetacriticScore
	}
	if ng.ESRBRating != nil {
		rating := models.ESRBRating(*ng.ESRBRating)
		game.ESRBRating = &rating
	}
	if len(ng.ESRBDescriptors) > 0 {
		game.ESRBDescriptors = ng.ESRBDescriptors
	}
	if game.ExternalIDs == nil {
		game.ExternalIDs = models.ExternalIDs{}
	}
	for k, v := range ng.ExternalIDs {
		game.ExternalIDs[k] = v
	}
	if !containsString(game.PlatformsAvailable, ng.PlatformCode) {
		game.PlatformsAvailable = append(game.PlatformsAvailable, ng.PlatformCode)
	}

	game.RebuildSearchVector()

	if err := tx.Save(&game).Error; err != nil {
		return false, newInternalError("failed to upsert game", err)
	}
	return isNew, nil
}

func upsertUserGame(tx *gorm.DB, libraryID, gameID uuid.UUID, ng platform.NormalizedGame) (added, updated, regressed bool, err error) {
	var ug models.UserGame
	dbErr := tx.Where("library_id = ? AND game_id = ?", libraryID, gameID).First(&ug).Error

	now := time.Now().UTC()
	var lastPlayed *time.Time
	if ng.LastPlayedUnix > 0 {
		t := time.Unix(ng.LastPlayedUnix, 0).UTC()
		lastPlayed = &t
	}

	switch dbErr {
	case gorm.ErrRecordNotFound:
		ug = models.UserGame{
			ID:                   uuid.New(),
			LibraryID:            libraryID,
			GameID:               gameID,
			PlatformGameID:       ng.PlatformGameID,
			Owned:                true,
			OwnedAt:              &now,
			TotalPlaytimeMinutes: ng.PlaytimeMinutes,
			LastPlayedAt:         lastPlayed,
			GameStatus:           gameStatusFor(ng.PlaytimeMinutes),
			PlatformData:         ng.PlatformData,
			LastSyncedAt:         now,
		}
		if ng.PlaytimeMinutes > 0 {
			ug.FirstPlayedAt = &now
		}
		if err := tx.Create(&ug).Error; err != nil {
			return false, false, false, newInternalError("failed to create user game", err)
		}
		return true, false, false, nil

	case nil:
		prevPlaytime := ug.TotalPlaytimeMinutes
		prevLastPlayed := ug.LastPlayedAt
		prevStatus := ug.GameStatus

		regressed = ug.ApplyPlaytime(ng.PlaytimeMinutes)
		if lastPlayed != nil {
			ug.LastPlayedAt = lastPlayed
		}
		if ug.GameStatus == models.GameStatusUnplayed && ng.PlaytimeMinutes > 0 {
			ug.GameStatus = gameStatusFor(ng.PlaytimeMinutes)
		}

		changed := ug.TotalPlaytimeMinutes != prevPlaytime ||
			!sameTime(ug.LastPlayedAt, prevLastPlayed) ||
			ug.GameStatus != prevStatus

		ug.LastSyncedAt = now
		if err := tx.Save(&ug).Error; err != nil {
			return false, false, false, newInternalError("failed to update user game", err)
		}
		return false, changed, regressed, nil

	default:
		return false, false, false, newInternalError("failed to look up user game", dbErr)
	}
}

// sameTime reports whether two possibly-nil timestamps are equal, used to
// detect a no-op UserGame update so re-syncing an unchanged library
// reports it as unchanged rather than updated (§4.3).
func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func gameStatusFor(playtimeMinutes int) models.GameStatus {
	if playtimeMinutes > 0 {
		return models.GameStatusPlaying
	}
	return models.GameStatusUnplayed
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// GetGameDetails returns the Game plus, when libraryID is given, the
// caller's UserGame attributes for it.
func (c *Catalog) GetGameDetails(gameID uuid.UUID, libraryID *uuid.UUID) (*models.Game, *models.UserGame, error) {
	var game models.Game
	if err := c.db.First(&game, "id = ?", gameID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil, newNotFoundError("game not found")
		}
		return nil, nil, newInternalError("failed to load game", err)
	}

	if libraryID == nil {
		return &game, nil, nil
	}

	var ug models.UserGame
	err := c.db.Where("library_id = ? AND game_id = ?", *libraryID, gameID).First(&ug).Error
	if err == gorm.ErrRecordNotFound {
		return &game, nil, nil
	}
	if err != nil {
		return nil, nil, newInternalError("failed to load user game", err)
	}
	return &game, &ug, nil
}

// RecordSyncOperation persists a new SyncOperation row at the start of a
// sync attempt.
func (c *Catalog) RecordSyncOperation(op *models.SyncOperation) error {
	if op.ID == uuid.Nil {
		op.ID = uuid.New()
	}
	if op.StartedAt.IsZero() {
		op.StartedAt = time.Now().UTC()
	}
	if err := c.db.Create(op).Error; err != nil {
		return newInternalError("failed to record sync operation", err)
	}
	return nil
}

// UpdateSyncOperation persists updated counters/status for an in-flight
// or completed SyncOperation. Counters are monotonic by construction: the
// caller only ever increases them.
func (c *Catalog) UpdateSyncOperation(op *models.SyncOperation) error {
	if err := c.db.Save(op).Error; err != nil {
		return newInternalError("failed to update sync operation", err)
	}
	return nil
}

// GetLatestSyncOperation returns the most recently started SyncOperation
// for a library, used by the §6.1 conflict response to report which
// operation is currently running.
func (c *Catalog) GetLatestSyncOperation(libraryID uuid.UUID) (*models.SyncOperation, error) {
	var op models.SyncOperation
	err := c.db.Where("library_id = ?", libraryID).Order("started_at desc").First(&op).Error
	switch {
	case err == nil:
		return &op, nil
	case err == gorm.ErrRecordNotFound:
		return nil, newNotFoundError("no sync operation found for library")
	default:
		return nil, newInternalError("failed to load latest sync operation", err)
	}
}

// ListGames returns a page of catalog games ordered by title, along with
// the total row count (§6.1: `GET /games?page&limit`).
func (c *Catalog) ListGames(page, limit int) ([]models.Game, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}

	var total int64
	if err := c.db.Model(&models.Game{}).Count(&total).Error; err != nil {
		return nil, 0, newInternalError("failed to count games", err)
	}

	var games []models.Game
	offset := (page - 1) * limit
	if err := c.db.Order("title asc").Limit(limit).Offset(offset).Find(&games).Error; err != nil {
		return nil, 0, newInternalError("failed to list games", err)
	}
	return games, total, nil
}

// SearchResult is one ranked hit from SearchGames.
type SearchResult struct {
	Game  models.Game
	Score float64
}

// SearchGames implements §4.3's weighted full-text search: title matches
// rank above developer/publisher matches, which rank above description
// matches (weights A/B/C), with ties broken by release date desc then
// title asc per the DESIGN DECISIONS resolution of the ranking Open
// Question. Postgres gets native tsvector/ts_rank scoring; other drivers
// fall back to a token-overlap approximation computed in Go, since
// sqlite/mysql have no portable ts_rank equivalent available here.
func (c *Catalog) SearchGames(query string, limit, offset int) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, newValidationError("search query must not be empty", "query")
	}
	if limit <= 0 {
		limit = 20
	}

	if c.db.GetConfig().Type == "postgres" {
		return c.searchGamesPostgres(query, limit, offset)
	}
	return c.searchGamesFallback(query, limit, offset)
}

func (c *Catalog) searchGamesPostgres(query string, limit, offset int) ([]SearchResult, error) {
	type row struct {
		models.Game
		Rank float64
	}
	var rows []row

	// weight A: title, B: developer/publisher, C: description — matches
	// RebuildSearchVector's field ordering so ts_rank reflects it.
	sql := `SELECT games.*, ts_rank(
		setweight(to_tsvector('simple', title), 'A') ||
		setweight(to_tsvector('simple', coalesce(developer, '') || ' ' || coalesce(publisher, '')), 'B') ||
		setweight(to_tsvector('simple', coalesce(description, '')), 'C'),
		plainto_tsquery('simple', ?)
	) AS rank
	FROM games
	WHERE to_tsvector('simple', search_vector) @@ plainto_tsquery('simple', ?)
	ORDER BY rank DESC, release_date DESC, title ASC
	LIMIT ? OFFSET ?`

	if err := c.db.Raw(sql, query, query, limit, offset).Scan(&rows).Error; err != nil {
		return nil, newInternalError("search query failed", err)
	}

	results := make([]SearchResult, 0, len(rows))
	for _, r := range rows {
		results = append(results, SearchResult{Game: r.Game, Score: r.Rank})
	}
	return results, nil
}

// searchGamesFallback approximates weighted ranking with a token-overlap
// score: each query token found in title counts 3, in developer/publisher
// counts 2, in description counts 1 (mirroring the A/B/C weights), summed
// and normalized by query token count.
func (c *Catalog) searchGamesFallback(query string, limit, offset int) ([]SearchResult, error) {
	tokens := strings.Fields(identity.Normalize(query))
	if len(tokens) == 0 {
		return nil, newValidationError("search query must not be empty", "query")
	}

	var candidates []models.Game
	likeClauses := make([]string, 0, len(tokens))
	args := make([]interface{}, 0, len(tokens))
	for _, tok := range tokens {
		likeClauses = append(likeClauses, "search_vector LIKE ?")
		args = append(args, "%"+tok+"%")
	}
	if err := c.db.Where(strings.Join(likeClauses, " OR "), args...).Find(&candidates).Error; err != nil {
		return nil, newInternalError("search query failed", err)
	}

	results := make([]SearchResult, 0, len(candidates))
	for _, g := range candidates {
		score := scoreFallback(tokens, g)
		if score <= 0 {
			continue
		}
		results = append(results, SearchResult{Game: g, Score: score})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		ri, rj := results[i].Game.ReleaseDate, results[j].Game.ReleaseDate
		switch {
		case ri == nil && rj == nil:
		case ri == nil:
			return false
		case rj == nil:
			return true
		case !ri.Equal(*rj):
			return ri.After(*rj)
		}
		return results[i].Game.Title < results[j].Game.Title
	})

	if offset >= len(results) {
		return []SearchResult{}, nil
	}
	end := offset + limit
	if end > len(results) {
		end = len(results)
	}
	return results[offset:end], nil
}

func scoreFallback(tokens []string, g models.Game) float64 {
	title := identity.Normalize(g.Title)
	devPub := identity.Normalize(g.Developer + " " + g.Publisher)
	desc := identity.Normalize(g.Description)

	var score float64
	for _, tok := range tokens {
		switch {
		case strings.Contains(title, tok):
			score += 3
		case strings.Contains(devPub, tok):
			score += 2
		case strings.Contains(desc, tok):
			score += 1
		}
	}
	return score / float64(len(tokens))
}

// SetLibrarySyncStatus mirrors UserLibrary.syncStatus/syncError in CS; the
// worker and handlers call it alongside SS.SetStatus, which does not
// touch the database itself.
func (c *Catalog) SetLibrarySyncStatus(libraryID uuid.UUID, status models.SyncStatus, syncErr string) error {
	updates := map[string]interface{}{"sync_status": status, "sync_error": syncErr}
	if status == models.SyncStatusCompleted {
		now := time.Now().UTC()
		updates["last_sync_at"] = &now
	}
	if err := c.db.Model(&models.UserLibrary{}).Where("id = ?", libraryID).Updates(updates).Error; err != nil {
		return newInternalError("failed to set library sync status", err)
	}
	return nil
}
