package services

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/cratedig/spindle/internal/config"
	"github.com/cratedig/spindle/pkg/fingerprint"
	"github.com/cratedig/spindle/pkg/models"
)

// Scorer combines a candidate's attributes against the user's taste
// profile and weights into one score in [0,1] plus ranked reason strings.
type Scorer struct {
	config *config.ScoringConfig
	logger *logrus.Logger
}

func NewScorer(cfg *config.ScoringConfig, logger *logrus.Logger) *Scorer {
	return &Scorer{config: cfg, logger: logger}
}

// ScoredCandidate pairs a candidate with its breakdown.
type ScoredCandidate struct {
	Candidate models.CandidateAlbum
	Breakdown models.ScoreBreakdown
}

// ScoreBatch scores every candidate against the profile and weights,
// min-max normalizing popularity within the batch, and returns the
// candidates ranked. Ties break by raw popularity descending, then
// lexicographically by fingerprint, so ordering is deterministic.
func (s *Scorer) ScoreBatch(
	candidates []models.CandidateAlbum,
	profile *models.UserTasteProfile,
	weights *models.UserWeights,
	graphScores map[string]float64,
) []ScoredCandidate {
	if len(candidates) == 0 {
		return nil
	}

	minPop, maxPop, anyPop := popularityRange(candidates)

	scored := make([]ScoredCandidate, 0, len(candidates))
	for _, c := range candidates {
		bd := s.score(c, profile, weights, graphScores, minPop, maxPop, anyPop)
		scored = append(scored, ScoredCandidate{Candidate: c, Breakdown: bd})
	}

	sort.Slice(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.Breakdown.Value != b.Breakdown.Value {
			return a.Breakdown.Value > b.Breakdown.Value
		}
		if a.Candidate.Popularity != b.Candidate.Popularity {
			return a.Candidate.Popularity > b.Candidate.Popularity
		}
		return a.Candidate.Fingerprint < b.Candidate.Fingerprint
	})

	return scored
}

// score computes the weighted sub-score blend for one candidate. The sum
// is divided by the weights actually applicable, so a profile missing,
// say, label data does not penalize every candidate's final score.
func (s *Scorer) score(
	c models.CandidateAlbum,
	profile *models.UserTasteProfile,
	weights *models.UserWeights,
	graphScores map[string]float64,
	minPop, maxPop float64,
	anyPop bool,
) models.ScoreBreakdown {
	type signalScore struct {
		signal     models.Signal
		value      float64
		applicable bool
		reason     string
	}

	artistScore, artistReason := s.artistAffinity(c, profile, graphScores)
	genreScore, genreReason := s.tagOverlap(c.GenreTags, profile, "matches genre")
	moodScore, moodReason := s.tagOverlap(c.MoodTags, profile, "matches mood")
	eraScore, eraReason := s.eraProximity(c, profile)
	labelScore, labelReason := s.labelAffinity(c, profile)
	popScore := normalizePopularity(c, minPop, maxPop)

	subs := []signalScore{
		{models.SignalArtist, artistScore, !profile.Empty() && len(profile.Artists) > 0, artistReason},
		{models.SignalGenre, genreScore, len(profile.TagFreq) > 0 && len(c.GenreTags) > 0, genreReason},
		{models.SignalEra, eraScore, len(profile.EraCounts) > 0 && c.Year > 0, eraReason},
		{models.SignalLabel, labelScore, len(profile.Labels) > 0 && c.Label != "", labelReason},
		{models.SignalMood, moodScore, len(profile.TagFreq) > 0 && len(c.MoodTags) > 0, moodReason},
		{models.SignalPopularity, popScore, anyPop && c.HasPopularity, "popular release"},
	}

	var weightedSum, weightSum float64
	contributions := make(map[models.Signal]float64)
	type reasoned struct {
		contribution float64
		text         string
	}
	var reasons []reasoned

	for _, sub := range subs {
		if !sub.applicable {
			continue
		}
		w := weights.Get(sub.signal)
		weightedSum += w * sub.value
		weightSum += w

		contribution := w * sub.value
		contributions[sub.signal] = contribution
		if contribution >= s.config.ContributionThreshold && sub.reason != "" {
			reasons = append(reasons, reasoned{contribution, sub.reason})
		}
	}

	value := 0.0
	if weightSum > 0 {
		value = weightedSum / weightSum
	}
	// Floating point can creep a hair past the bounds.
	value = math.Max(0, math.Min(1, value))

	sort.SliceStable(reasons, func(i, j int) bool {
		return reasons[i].contribution > reasons[j].contribution
	})
	texts := make([]string, 0, len(reasons))
	for _, r := range reasons {
		texts = append(texts, r.text)
	}

	return models.ScoreBreakdown{Value: value, Reasons: texts, Contributions: contributions}
}

// artistAffinity is 1.0 when the candidate's artist is owned, otherwise
// the capped graph reachability score, otherwise 0.
func (s *Scorer) artistAffinity(c models.CandidateAlbum, profile *models.UserTasteProfile, graphScores map[string]float64) (float64, string) {
	artist := fingerprint.Normalize(c.Artist)
	if profile.Artists[artist] {
		return 1.0, fmt.Sprintf("you own albums by %s", c.Artist)
	}
	if reach, ok := graphScores[artist]; ok && reach > 0 {
		capped := math.Min(reach, s.config.RelatedArtistCap)
		return capped, fmt.Sprintf("%s is close to artists you own", c.Artist)
	}
	return 0, ""
}

// tagOverlap is a frequency-weighted Jaccard-style overlap: shared tags
// count by how often the user owns them, over the total mass of both
// sides.
func (s *Scorer) tagOverlap(tags []string, profile *models.UserTasteProfile, reasonPrefix string) (float64, string) {
	if len(tags) == 0 || len(profile.TagFreq) == 0 {
		return 0, ""
	}

	var matched float64
	var bestTag string
	var bestFreq int
	seen := make(map[string]bool)
	for _, tag := range tags {
		t := fingerprint.Normalize(tag)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		if freq := profile.TagFreq[t]; freq > 0 {
			matched += float64(freq)
			if freq > bestFreq {
				bestFreq = freq
				bestTag = tag
			}
		}
	}
	if matched == 0 {
		return 0, ""
	}

	var totalFreq int
	for _, freq := range profile.TagFreq {
		totalFreq += freq
	}
	denom := float64(totalFreq) + float64(len(seen)) - matched
	if denom <= 0 {
		return 0, ""
	}

	overlap := math.Min(matched/denom, 1.0)
	return overlap, fmt.Sprintf("%s: %s", reasonPrefix, strings.ToLower(bestTag))
}

// eraProximity decays as 1/(1+d) with d the decade distance to the
// nearest dominant era bucket, zeroed beyond the configured window.
func (s *Scorer) eraProximity(c models.CandidateAlbum, profile *models.UserTasteProfile) (float64, string) {
	if c.Year <= 0 {
		return 0, ""
	}
	eras := profile.DominantEras()
	if len(eras) == 0 {
		return 0, ""
	}

	candidateDecade := (c.Year / 10) * 10
	best := math.MaxInt32
	bestEra := 0
	for _, era := range eras {
		d := candidateDecade - era
		if d < 0 {
			d = -d
		}
		d /= 10
		if d < best {
			best = d
			bestEra = era
		}
	}
	if best > s.config.EraWindowDecades {
		return 0, ""
	}

	score := 1.0 / (1.0 + float64(best))
	return score, fmt.Sprintf("from the %ds era you collect", bestEra)
}

func (s *Scorer) labelAffinity(c models.CandidateAlbum, profile *models.UserTasteProfile) (float64, string) {
	label := fingerprint.Normalize(c.Label)
	if label == "" || !profile.Labels[label] {
		return 0, ""
	}
	return 1.0, fmt.Sprintf("on a label you collect: %s", c.Label)
}

func popularityRange(candidates []models.CandidateAlbum) (minPop, maxPop float64, any bool) {
	for _, c := range candidates {
		if !c.HasPopularity {
			continue
		}
		if !any {
			minPop, maxPop, any = c.Popularity, c.Popularity, true
			continue
		}
		if c.Popularity < minPop {
			minPop = c.Popularity
		}
		if c.Popularity > maxPop {
			maxPop = c.Popularity
		}
	}
	return minPop, maxPop, any
}

// normalizePopularity min-max scales within the batch; a flat batch scores
// everyone 1.0 the way the orchestration layer treats uniform scores.
func normalizePopularity(c models.CandidateAlbum, minPop, maxPop float64) float64 {
	if !c.HasPopularity {
		return 0
	}
	if maxPop == minPop {
		return 1.0
	}
	return (c.Popularity - minPop) / (maxPop - minPop)
}
