package services

import (
	"github.com/cratedig/spindle/pkg/fingerprint"
	"github.com/cratedig/spindle/pkg/models"
)

// BuildProfile aggregates a user's owned albums into a taste profile. Pure
// aggregation: an empty collection yields an empty profile, not an error,
// and downstream scoring degrades to popularity-only ranking.
func BuildProfile(owned []models.OwnedAlbum) *models.UserTasteProfile {
	profile := &models.UserTasteProfile{
		Artists:   make(map[string]bool),
		TagFreq:   make(map[string]int),
		EraCounts: make(map[int]int),
		Labels:    make(map[string]bool),
	}

	for _, album := range owned {
		profile.AlbumCount++

		if artist := fingerprint.Normalize(album.Artist); artist != "" {
			profile.Artists[artist] = true
		}
		for _, tag := range album.GenreTags {
			if t := fingerprint.Normalize(tag); t != "" {
				profile.TagFreq[t]++
			}
		}
		for _, tag := range album.MoodTags {
			if t := fingerprint.Normalize(tag); t != "" {
				profile.TagFreq[t]++
			}
		}
		if album.Year > 0 {
			profile.EraCounts[decade(album.Year)]++
		}
		if label := fingerprint.Normalize(album.Label); label != "" {
			profile.Labels[label] = true
		}
	}

	return profile
}

// FilterByArtist narrows the collection to albums by one artist, for
// "because you own <artist>" lists.
func FilterByArtist(owned []models.OwnedAlbum, artist string) []models.OwnedAlbum {
	want := fingerprint.Normalize(artist)
	var subset []models.OwnedAlbum
	for _, album := range owned {
		if fingerprint.Normalize(album.Artist) == want {
			subset = append(subset, album)
		}
	}
	return subset
}

// FilterByGenre narrows the collection to albums carrying the genre tag,
// for "more like <genre>" lists.
func FilterByGenre(owned []models.OwnedAlbum, genre string) []models.OwnedAlbum {
	want := fingerprint.Normalize(genre)
	var subset []models.OwnedAlbum
	for _, album := range owned {
		for _, tag := range album.GenreTags {
			if fingerprint.Normalize(tag) == want {
				subset = append(subset, album)
				break
			}
		}
	}
	return subset
}

func decade(year int) int {
	return (year / 10) * 10
}
