package steam

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jimsantora/librarysync/internal/platform"
)

func TestAdapter_Code(t *testing.T) {
	a := New(Config{APIKey: "test"})
	assert.Equal(t, "steam", a.Code())
}

func TestAdapter_Transform(t *testing.T) {
	a := New(Config{APIKey: "test"})

	raw := platform.RawGame{
		"appid":             440,
		"name":              "Team Fortress 2",
		"playtime_forever":  1234,
		"rtime_last_played": int64(1700000000),
	}

	ng, err := a.Transform(raw)
	require.NoError(t, err)

	assert.Equal(t, "steam", ng.PlatformCode)
	assert.Equal(t, "440", ng.PlatformGameID)
	assert.Equal(t, "Team Fortress 2", ng.Title)
	assert.Equal(t, 1234, ng.PlaytimeMinutes)
	assert.Equal(t, "440", ng.ExternalIDs["steamAppId"])
	assert.Contains(t, ng.CoverImageURL, "440/header.jpg")
}

func TestAdapter_Transform_MissingName(t *testing.T) {
	a := New(Config{APIKey: "test"})

	_, err := a.Transform(platform.RawGame{"appid": 10})
	require.Error(t, err)

	adapterErr, ok := err.(*platform.AdapterError)
	require.True(t, ok)
	assert.Equal(t, platform.ErrPermanent, adapterErr.Kind)
}

func TestESRBRatingMapper_DetermineESRBRating(t *testing.T) {
	m := NewESRBRatingMapper()

	tests := []struct {
		name          string
		descriptorIDs []int
		notes         string
		expected      string
	}{
		{"no content is Everyone", nil, "", "E"},
		{"nudity is Adults Only", []int{5}, "", "AO"},
		{"blood is Mature", []int{2}, "", "M"},
		{"violence is Teen", []int{1}, "", "T"},
		{"mild violence note is Everyone 10+", nil, "contains mild violence", "E10+"},
		{"unknown descriptor with notes is Rating Pending", []int{99}, "something unusual", "RP"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.DetermineESRBRating(tt.descriptorIDs, tt.notes)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestESRBRatingMapper_MapContentDescriptors(t *testing.T) {
	m := NewESRBRatingMapper()
	got := m.MapContentDescriptors([]int{1, 2, 999})
	assert.Equal(t, []string{"violence", "blood"}, got)
}
