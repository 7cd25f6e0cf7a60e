package services

import (
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/cratedig/spindle/internal/config"
	"github.com/cratedig/spindle/pkg/fingerprint"
	"github.com/cratedig/spindle/pkg/models"
)

// GraphRecommender builds a transient similarity graph per request and
// surfaces candidates by bounded-depth traversal from the owned artists.
// Nodes are owned artists, candidate artists and tags; edges come from
// artist-tag co-occurrence and provider-declared similar-artist links.
// The graph is discarded after traversal; nothing about it is shared or
// persisted.
type GraphRecommender struct {
	config *config.GraphConfig
	logger *logrus.Logger
}

func NewGraphRecommender(cfg *config.GraphConfig, logger *logrus.Logger) *GraphRecommender {
	return &GraphRecommender{config: cfg, logger: logger}
}

// similarityGraph wraps a gonum weighted undirected graph with the
// name->node bookkeeping a single request needs.
type similarityGraph struct {
	g       *simple.WeightedUndirectedGraph
	ids     map[string]int64 // normalized node name -> graph id
	names   map[int64]string
	artists map[string]bool // normalized candidate artist names
}

func (sg *similarityGraph) node(name string) int64 {
	if id, ok := sg.ids[name]; ok {
		return id
	}
	n := sg.g.NewNode()
	sg.g.AddNode(n)
	id := n.ID()
	sg.ids[name] = id
	sg.names[id] = name
	return id
}

func (sg *similarityGraph) addEdge(a, b string, weight float64) {
	if a == "" || b == "" || a == b {
		return
	}
	ida, idb := sg.node(a), sg.node(b)
	// Keep the strongest observed weight for repeated links.
	if existing := sg.g.WeightedEdge(ida, idb); existing != nil && existing.Weight() >= weight {
		return
	}
	sg.g.SetWeightedEdge(simple.WeightedEdge{
		F: simple.Node(ida), T: simple.Node(idb), W: weight,
	})
}

// Build assembles the request-scoped graph from the owned collection and
// one batch of merged candidates.
func (r *GraphRecommender) Build(owned []models.OwnedAlbum, candidates []models.CandidateAlbum) *similarityGraph {
	sg := &similarityGraph{
		g:       simple.NewWeightedUndirectedGraph(0, 0),
		ids:     make(map[string]int64),
		names:   make(map[int64]string),
		artists: make(map[string]bool),
	}

	tagWeight := r.config.TagEdgeWeight
	for _, album := range owned {
		artist := fingerprint.Normalize(album.Artist)
		for _, tag := range album.GenreTags {
			sg.addEdge(artist, "tag:"+fingerprint.Normalize(tag), tagWeight)
		}
		for _, tag := range album.MoodTags {
			sg.addEdge(artist, "tag:"+fingerprint.Normalize(tag), tagWeight)
		}
	}

	for _, c := range candidates {
		artist := fingerprint.Normalize(c.Artist)
		if artist == "" {
			continue
		}
		sg.artists[artist] = true
		for _, tag := range c.GenreTags {
			sg.addEdge(artist, "tag:"+fingerprint.Normalize(tag), tagWeight)
		}
		for _, tag := range c.MoodTags {
			sg.addEdge(artist, "tag:"+fingerprint.Normalize(tag), tagWeight)
		}
		for ownedArtist, similarity := range c.SimilarTo {
			w := similarity
			if w <= 0 {
				w = r.config.SimilarEdgeWeight
			}
			if w > 1 {
				w = 1
			}
			sg.addEdge(artist, fingerprint.Normalize(ownedArtist), w)
		}
	}

	return sg
}

// Reachability runs a bounded-depth weighted traversal from each owned
// artist and returns, per candidate artist, the maximum edge-weight
// product along any path within the depth bound. A node re-enters the
// frontier only when a strictly larger product reaches it, so a strong
// similar-artist path overrides a weak tag path found earlier and cyclic
// similarity links cannot loop the traversal.
func (r *GraphRecommender) Reachability(sg *similarityGraph, profile *models.UserTasteProfile) map[string]float64 {
	reach := make(map[string]float64)
	maxDepth := r.config.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 2
	}

	for artist := range profile.Artists {
		source, ok := sg.ids[artist]
		if !ok {
			continue
		}

		best := map[int64]float64{source: 1.0}
		frontier := map[int64]float64{source: 1.0}

		for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
			next := make(map[int64]float64)
			for id, product := range frontier {
				neighbors := sg.g.From(id)
				for neighbors.Next() {
					nb := neighbors.Node().ID()
					edge := sg.g.WeightedEdge(id, nb)
					if edge == nil {
						continue
					}
					w := product * edge.Weight()
					if w <= 0 || w <= best[nb] {
						continue
					}
					best[nb] = w
					next[nb] = w

					name := sg.names[nb]
					if sg.artists[name] && !profile.Artists[name] && w > reach[name] {
						reach[name] = w
					}
				}
			}
			frontier = next
		}
	}

	return reach
}

// Discoveries returns candidate artists reachable through the graph but
// absent from any direct profile overlap: the serendipity pool for list
// types emphasizing novelty.
func (r *GraphRecommender) Discoveries(reach map[string]float64, candidates []models.CandidateAlbum, profile *models.UserTasteProfile) map[string]bool {
	discoveries := make(map[string]bool)
	for _, c := range candidates {
		artist := fingerprint.Normalize(c.Artist)
		if _, reachable := reach[artist]; !reachable {
			continue
		}
		if profile.Artists[artist] {
			continue
		}
		if r.overlapsProfileTags(c, profile) {
			continue
		}
		discoveries[c.Fingerprint] = true
	}
	return discoveries
}

func (r *GraphRecommender) overlapsProfileTags(c models.CandidateAlbum, profile *models.UserTasteProfile) bool {
	for _, tag := range c.GenreTags {
		if profile.TagFreq[fingerprint.Normalize(tag)] > 0 {
			return true
		}
	}
	for _, tag := range c.MoodTags {
		if profile.TagFreq[fingerprint.Normalize(tag)] > 0 {
			return true
		}
	}
	return false
}
