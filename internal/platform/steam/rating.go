package steam

import "strings"

// contentDescriptor is a Steam content-warning category, adapted from the
// teacher's content descriptor mapping.
type contentDescriptor string

const (
	descViolence       contentDescriptor = "violence"
	descBlood          contentDescriptor = "blood"
	descIntenseVio     contentDescriptor = "intense_violence"
	descPartialNudity  contentDescriptor = "partial_nudity"
	descNudity         contentDescriptor = "nudity"
	descSexualContent  contentDescriptor = "sexual_content"
	descStrongLanguage contentDescriptor = "strong_language"
	descMatureHumor    contentDescriptor = "mature_humor"
	descDrugReference  contentDescriptor = "drug_reference"
	descAlcoholRef     contentDescriptor = "alcohol_reference"
	descTobaccoRef     contentDescriptor = "tobacco_reference"
	descGambling       contentDescriptor = "gambling"
	descOnlineInter    contentDescriptor = "online_interactions"
)

// ESRBRatingMapper derives an ESRB short code (E/E10+/T/M/AO/RP, matching
// models.ESRBRating) from Steam's numeric content descriptor IDs and
// free-text content notes, since Steam does not expose ESRB ratings
// directly.
type ESRBRatingMapper struct {
	descriptorMap map[int]contentDescriptor
	matureSet     map[contentDescriptor]bool
	teenSet       map[contentDescriptor]bool
	adultsOnlySet map[contentDescriptor]bool
}

// NewESRBRatingMapper builds a mapper with the predefined descriptor
// rules below.
func NewESRBRatingMapper() *ESRBRatingMapper {
	m := &ESRBRatingMapper{
		descriptorMap: map[int]contentDescriptor{
			1: descViolence, 2: descBlood, 3: descIntenseVio,
			4: descPartialNudity, 5: descNudity, 6: descSexualContent,
			7: descStrongLanguage, 8: descMatureHumor, 9: descDrugReference,
			10: descAlcoholRef, 11: descTobaccoRef, 12: descGambling,
			13: descOnlineInter,
		},
		adultsOnlySet: map[contentDescriptor]bool{
			descNudity: true, descSexualContent: true,
		},
		matureSet: map[contentDescriptor]bool{
			descIntenseVio: true, descBlood: true, descStrongLanguage: true,
			descPartialNudity: true, descMatureHumor: true, descGambling: true,
		},
		teenSet: map[contentDescriptor]bool{
			descViolence: true, descDrugReference: true,
			descAlcoholRef: true, descTobaccoRef: true,
		},
	}
	return m
}

// MapContentDescriptors converts Steam content descriptor IDs to
// human-readable category names.
func (m *ESRBRatingMapper) MapContentDescriptors(ids []int) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if desc, ok := m.descriptorMap[id]; ok {
			out = append(out, string(desc))
		}
	}
	return out
}

// DetermineESRBRating derives an ESRB short code from descriptor IDs and
// free-text notes, checked most-restrictive first.
func (m *ESRBRatingMapper) DetermineESRBRating(descriptorIDs []int, notes string) string {
	descriptors := make(map[contentDescriptor]bool, len(descriptorIDs))
	for _, id := range descriptorIDs {
		if desc, ok := m.descriptorMap[id]; ok {
			descriptors[desc] = true
		}
	}
	notesLower := strings.ToLower(notes)

	for desc := range m.adultsOnlySet {
		if descriptors[desc] || m.notesMention(notesLower, desc) {
			return "AO"
		}
	}
	for desc := range m.matureSet {
		if descriptors[desc] || m.notesMention(notesLower, desc) {
			return "M"
		}
	}
	mildViolence := strings.Contains(notesLower, "mild violence") ||
		strings.Contains(notesLower, "cartoon violence") ||
		strings.Contains(notesLower, "fantasy violence")
	for desc := range m.teenSet {
		if descriptors[desc] || (m.notesMention(notesLower, desc) && !(desc == descViolence && mildViolence)) {
			return "T"
		}
	}
	if mildViolence {
		return "E10+"
	}
	if len(descriptors) == 0 && notes == "" {
		return "E"
	}
	return "RP"
}

func (m *ESRBRatingMapper) notesMention(notesLower string, desc contentDescriptor) bool {
	switch desc {
	case descViolence:
		return strings.Contains(notesLower, "violence") || strings.Contains(notesLower, "violent")
	case descBlood:
		return strings.Contains(notesLower, "blood") || strings.Contains(notesLower, "gore")
	case descIntenseVio:
		return strings.Contains(notesLower, "intense violence") || strings.Contains(notesLower, "graphic violence")
	case descNudity:
		return strings.Contains(notesLower, "nudity") || strings.Contains(notesLower, "nude")
	case descPartialNudity:
		return strings.Contains(notesLower, "partial nudity")
	case descSexualContent:
		return strings.Contains(notesLower, "sexual") || strings.Contains(notesLower, "adult content")
	case descStrongLanguage:
		return strings.Contains(notesLower, "strong language") || strings.Contains(notesLower, "profanity")
	case descMatureHumor:
		return strings.Contains(notesLower, "mature humor") || strings.Contains(notesLower, "crude humor")
	case descDrugReference:
		return strings.Contains(notesLower, "drug") || strings.Contains(notesLower, "substance")
	case descAlcoholRef:
		return strings.Contains(notesLower, "alcohol") || strings.Contains(notesLower, "drinking")
	case descGambling:
		return strings.Contains(notesLower, "gambling") || strings.Contains(notesLower, "betting")
	}
	return false
}
