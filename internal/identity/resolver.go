// Package identity implements the Game Identity Resolver (GIR): given an
// incoming normalized game from a platform, decide which catalog Game
// entity it is, matching the ordered strategy of spec §4.9.
package identity

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/agext/levenshtein"
	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"

	"github.com/jimsantora/librarysync/internal/models"
)

// FuzzyThreshold is the minimum normalized Levenshtein similarity ratio
// for a TitleFuzzy match (§4.9).
const FuzzyThreshold = 0.92

// editionSuffixes are stripped from normalized titles before comparison,
// per §4.9's normalization rule.
var editionSuffixes = regexp.MustCompile(`(?i)\b(goty|game of the year( edition)?|complete edition|definitive edition|remastered|enhanced edition)\b`)

var punctuation = regexp.MustCompile(`[^\w\s]`)

// NormalizedGame is the input to the resolver: a platform's raw game
// mapped onto the fields GIR needs to make a matching decision.
type NormalizedGame struct {
	PlatformCode string
	ExternalIDs  models.ExternalIDs
	Title        string
	Developer    string
	Publisher    string
}

// MatchResult is what the resolver decided.
type MatchResult struct {
	GameID     uuid.UUID
	Method     models.MatchMethod
	Confidence float64
	IsNew      bool
}

// Resolver resolves NormalizedGames against the catalog held in db.
type Resolver struct {
	db *gorm.DB
}

// New constructs a Resolver bound to the given database handle. It is
// stateless beyond that handle so a Resolver is safe to share and is
// typically invoked within the same transaction CS.UpsertGamesBatch uses.
func New(db *gorm.DB) *Resolver {
	return &Resolver{db: db}
}

// Normalize applies §4.9's normalization: lowercase, NFKD, strip
// leading/trailing whitespace, collapse internal whitespace, remove a
// fixed set of punctuation, drop edition suffixes and registered
// trademark/copyright glyphs.
func Normalize(title string) string {
	t := strings.ToLower(title)

	// Drop the registered trademark/copyright glyphs before NFKD, which
	// would otherwise decompose "™" into the letters "tm"; then NFKD
	// decompose and strip combining marks (e.g. accents).
	t = strings.NewReplacer("®", "", "™", "", "©", "").Replace(t)
	tr := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	if decomposed, _, err := transform.String(tr, t); err == nil {
		t = decomposed
	}

	t = editionSuffixes.ReplaceAllString(t, "")
	t = punctuation.ReplaceAllString(t, " ")
	t = strings.Join(strings.Fields(t), " ")
	return strings.TrimSpace(t)
}

// Resolve runs the ordered matching strategy of §4.9 against the game
// catalog and returns the resolved catalog game id. If no match exists it
// returns a freshly minted id with IsNew set and inserts nothing; the
// caller creates the Game row. When a match was found via TitleExact or
// TitleFuzzy, a GameMatch audit row is also inserted (verified=false).
func (r *Resolver) Resolve(ng NormalizedGame) (MatchResult, error) {
	normalizedTitle := Normalize(ng.Title)

	// 1. ExternalId
	if gameID, ok, err := r.matchExternalID(ng); err != nil {
		return MatchResult{}, err
	} else if ok {
		return MatchResult{GameID: gameID, Method: models.MatchMethodExternalID, Confidence: 1.0}, nil
	}

	// 2. TitleExact
	if gameID, ok, err := r.matchTitleExact(normalizedTitle); err != nil {
		return MatchResult{}, err
	} else if ok {
		if err := r.recordMatch(gameID, listingID(ng), models.MatchMethodTitleExact, 0.95); err != nil {
			return MatchResult{}, err
		}
		return MatchResult{GameID: gameID, Method: models.MatchMethodTitleExact, Confidence: 0.95}, nil
	}

	// 3. TitleFuzzy
	if gameID, confidence, ok, err := r.matchTitleFuzzy(normalizedTitle, ng); err != nil {
		return MatchResult{}, err
	} else if ok {
		if err := r.recordMatch(gameID, listingID(ng), models.MatchMethodTitleFuzzy, confidence); err != nil {
			return MatchResult{}, err
		}
		return MatchResult{GameID: gameID, Method: models.MatchMethodTitleFuzzy, Confidence: confidence}, nil
	}

	// 4. New
	newID := uuid.New()
	return MatchResult{GameID: newID, Method: models.MatchMethodManual, Confidence: 1.0, IsNew: true}, nil
}

func (r *Resolver) matchExternalID(ng NormalizedGame) (uuid.UUID, bool, error) {
	for platform, value := range ng.ExternalIDs {
		if value == "" {
			continue
		}
		var game models.Game
		// external_ids is a JSON column; match on the JSON-encoded value
		// for the given key using a simple LIKE, which is portable across
		// sqlite/postgres/mysql without requiring JSON operators.
		needle := `"` + platform + `":"` + value + `"`
		err := r.db.Where("external_ids LIKE ?", "%"+needle+"%").First(&game).Error
		if err == nil {
			return game.ID, true, nil
		}
		if err != gorm.ErrRecordNotFound {
			return uuid.UUID{}, false, err
		}
	}
	return uuid.UUID{}, false, nil
}

func (r *Resolver) matchTitleExact(normalizedTitle string) (uuid.UUID, bool, error) {
	var game models.Game
	err := r.db.Where("normalized_title = ?", normalizedTitle).First(&game).Error
	if err == nil {
		return game.ID, true, nil
	}
	if err == gorm.ErrRecordNotFound {
		return uuid.UUID{}, false, nil
	}
	return uuid.UUID{}, false, err
}

// matchTitleFuzzy pre-filters candidates to games sharing the normalized
// title's first token (a full scan per incoming game would defeat the
// purpose of an indexed catalog), then scores each by Levenshtein ratio.
func (r *Resolver) matchTitleFuzzy(normalizedTitle string, ng NormalizedGame) (uuid.UUID, float64, bool, error) {
	fields := strings.Fields(normalizedTitle)
	if len(fields) == 0 {
		return uuid.UUID{}, 0, false, nil
	}
	firstToken := fields[0]

	var candidates []models.Game
	if err := r.db.Where("normalized_title LIKE ?", firstToken+"%").Find(&candidates).Error; err != nil {
		return uuid.UUID{}, 0, false, err
	}

	best := -1.0
	var bestID uuid.UUID
	for _, c := range candidates {
		ratio := levenshtein.Match(normalizedTitle, c.NormalizedTitle, nil)
		if ratio < FuzzyThreshold {
			continue
		}
		if !samePublisherOrDeveloper(ng, c) {
			continue
		}
		if ratio > best {
			best = ratio
			bestID = c.ID
		}
	}
	if best < 0 {
		return uuid.UUID{}, 0, false, nil
	}
	return bestID, best, true, nil
}

func samePublisherOrDeveloper(ng NormalizedGame, candidate models.Game) bool {
	if ng.Publisher == "" && ng.Developer == "" {
		return true // nothing to disagree on either side
	}
	if ng.Publisher != "" && candidate.Publisher != "" && strings.EqualFold(ng.Publisher, candidate.Publisher) {
		return true
	}
	if ng.Developer != "" && candidate.Developer != "" && strings.EqualFold(ng.Developer, candidate.Developer) {
		return true
	}
	// if the candidate has neither field populated there is nothing to
	// contradict the match either.
	return candidate.Publisher == "" && candidate.Developer == ""
}

// listingNamespace scopes the deterministic per-listing UUIDs minted below
// so they never collide with a real catalog Game ID (which is always
// uuid.New(), a v4 random UUID, and astronomically unlikely to collide
// with a v5 UUID from this namespace).
var listingNamespace = uuid.MustParse("6f6e5f6c-6973-7473-696e-67206e616d65")

// listingID deterministically derives a stable identifier for the
// incoming platform listing itself (not a real Game row), so a GameMatch
// audit edge can be recorded even when resolution found an existing
// catalog Game and no new Game row was created. Two listings with the
// same platform+externalId (or, lacking one, the same normalized title)
// mint the same listing id, which is the desired behavior: re-running an
// unchanged sync must not create duplicate GameMatch rows.
func listingID(ng NormalizedGame) uuid.UUID {
	key := ng.PlatformCode + "|"
	for _, v := range ng.ExternalIDs {
		if v != "" {
			key += v
			break
		}
	}
	if key == ng.PlatformCode+"|" {
		key += Normalize(ng.Title)
	}
	return uuid.NewSHA1(listingNamespace, []byte(key))
}

func (r *Resolver) recordMatch(primary, matched uuid.UUID, method models.MatchMethod, confidence float64) error {
	a, b := models.Orient(primary, matched)
	if a == b {
		return nil // matched itself: nothing to record as an edge
	}
	match := models.GameMatch{
		PrimaryGameID: a,
		MatchedGameID: b,
		Confidence:    confidence,
		Method:        method,
		Verified:      false,
		CreatedAt:     time.Now().UTC(),
	}
	return r.db.Where(models.GameMatch{PrimaryGameID: a, MatchedGameID: b}).
		FirstOrCreate(&match).Error
}
