package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSongID(t *testing.T) {
	tests := []struct {
		artist, title, want string
	}{
		{"New Order", "Blue Monday", "new_order_blue_monday"},
		{"AC/DC", "T.N.T.", "ac_dc_t_n_t_"},
		{"Beyoncé", "Halo", "beyoncé_halo"},
		{"a-ha", "Take On Me", "a_ha_take_on_me"},
		{"", "", "_"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SongID(tt.artist, tt.title), "%s / %s", tt.artist, tt.title)
	}
}

func TestSongID_CollapsesPunctuationVariants(t *testing.T) {
	// "Don't Stop" and "Dont Stop" stay distinct, but punctuation-only
	// differences in spacing collapse.
	a := SongID("Fleetwood Mac", "Don't Stop")
	b := SongID("Fleetwood Mac", "Don`t Stop")
	assert.Equal(t, a, b)
}

func TestMergeSongs(t *testing.T) {
	existing := Song{
		ID:                   "new_order_blue_monday",
		Title:                "Blue Monday",
		Artist:               "New Order",
		Album:                "Power, Corruption & Lies",
		DiscoveryCount:       2,
		OriginalDescriptions: []string{"synth bassline, 80s"},
	}
	incoming := Song{
		ID:                   "new_order_blue_monday",
		Title:                "blue monday",
		Artist:               "NEW ORDER",
		Album:                "Substance",
		OriginalDescriptions: []string{"synth bassline, 80s", "long electronic intro"},
	}

	merged := MergeSongs(existing, incoming)

	assert.Equal(t, 3, merged.DiscoveryCount)
	assert.Equal(t, []string{"synth bassline, 80s", "long electronic intro"}, merged.OriginalDescriptions)
	// First-seen identity fields win.
	assert.Equal(t, "Blue Monday", merged.Title)
	assert.Equal(t, "New Order", merged.Artist)
	assert.Equal(t, "Power, Corruption & Lies", merged.Album)
}

func TestAppendDistinct(t *testing.T) {
	got := AppendDistinct([]string{"a", "b"}, "b", "c", "", "a", "c")
	assert.Equal(t, []string{"a", "b", "c"}, got)

	assert.Nil(t, AppendDistinct(nil, ""))
	assert.Equal(t, []string{"x"}, AppendDistinct(nil, "x"))
}

func TestRequestResolved(t *testing.T) {
	r := Request{}
	assert.False(t, r.Resolved())
	r.ResolvedSongID = "new_order_blue_monday"
	assert.True(t, r.Resolved())
}
