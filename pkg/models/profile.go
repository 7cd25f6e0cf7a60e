package models

// UserTasteProfile is the derived aggregate of a user's owned collection.
// It exists only within one orchestration call and is recomputable from
// the OwnedAlbum set, so it is never persisted.
type UserTasteProfile struct {
	Artists    map[string]bool `json:"artists"`     // normalized artist names
	TagFreq    map[string]int  `json:"tag_freq"`    // genre ∪ mood tag -> owned-album count
	EraCounts  map[int]int     `json:"era_counts"`  // decade (e.g. 1970) -> owned-album count
	Labels     map[string]bool `json:"labels"`      // normalized label names
	AlbumCount int             `json:"album_count"`
}

// Empty reports whether the profile carries no collection signal at all.
// An empty profile is not an error: scoring degrades to popularity-only.
func (p *UserTasteProfile) Empty() bool {
	return p == nil || p.AlbumCount == 0
}

// DominantEras returns the decades tied for the highest owned-album count.
func (p *UserTasteProfile) DominantEras() []int {
	if p == nil || len(p.EraCounts) == 0 {
		return nil
	}
	max := 0
	for _, n := range p.EraCounts {
		if n > max {
			max = n
		}
	}
	var eras []int
	for decade, n := range p.EraCounts {
		if n == max {
			eras = append(eras, decade)
		}
	}
	return eras
}
