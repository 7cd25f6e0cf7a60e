package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cratedig/spindle/internal/config"
	"github.com/cratedig/spindle/internal/store"
	"github.com/cratedig/spindle/pkg/models"
)

func testGatewayConfig() *config.GatewayConfig {
	return &config.GatewayConfig{
		ProviderTimeout: 2 * time.Second,
		RetryAttempts:   1,
		RequestsPerSec:  1000, // effectively unlimited in tests
		Burst:           100,
		CandidateLimit:  100,
	}
}

func newTestGateway(providers []MetadataProvider, st *mockStore) *SourceGateway {
	return NewSourceGateway(providers, st, testGatewayConfig(), 12*time.Hour, nil, testLogger())
}

func missAllExternalCache(st *mockStore) {
	st.On("GetExternalCache", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, store.ErrNotFound)
	st.On("PutExternalCache", mock.Anything, mock.Anything).Return(nil)
}

func TestSourceGateway_MergesAcrossProviders(t *testing.T) {
	st := &mockStore{}
	missAllExternalCache(st)

	p1 := &mockProvider{id: "musicbrainz"}
	p1.On("Query", mock.Anything, mock.Anything).Return(&ProviderResponse{
		Albums: []models.CandidateAlbum{
			{Artist: "Neu!", Title: "Neu!", GenreTags: []string{"Krautrock"}, Year: 1972},
		},
	}, nil)

	p2 := &mockProvider{id: "lastfm"}
	p2.On("Query", mock.Anything, mock.Anything).Return(&ProviderResponse{
		Albums: []models.CandidateAlbum{
			{Artist: "Neu!", Title: "Neu!", GenreTags: []string{"Experimental"}, Popularity: 4200, HasPopularity: true},
		},
	}, nil)

	gw := newTestGateway([]MetadataProvider{p1, p2}, st)
	merged, err := gw.FetchCandidates(context.Background(), ProviderQuery{Kind: QueryPopular})
	require.NoError(t, err)
	require.Len(t, merged, 1, "the same album from two providers merges by fingerprint")

	album := merged[0]
	assert.Equal(t, "neu::neu", album.Fingerprint)
	assert.ElementsMatch(t, []string{"Krautrock", "Experimental"}, album.GenreTags,
		"tags union across providers")
	assert.Equal(t, 1972, album.Year)
	assert.True(t, album.HasPopularity)
	assert.InDelta(t, 4200, album.Popularity, 0.001)
	assert.ElementsMatch(t, []string{"musicbrainz", "lastfm"}, album.Sources)
}

func TestSourceGateway_PartialFailureKeepsResults(t *testing.T) {
	st := &mockStore{}
	missAllExternalCache(st)

	healthy := &mockProvider{id: "musicbrainz"}
	healthy.On("Query", mock.Anything, mock.Anything).Return(&ProviderResponse{
		Albums: []models.CandidateAlbum{{Artist: "Can", Title: "Future Days"}},
	}, nil)

	broken := &mockProvider{id: "discogs"}
	broken.On("Query", mock.Anything, mock.Anything).Return(nil, errors.New("503"))

	gw := newTestGateway([]MetadataProvider{healthy, broken}, st)
	merged, err := gw.FetchCandidates(context.Background(), ProviderQuery{Kind: QueryPopular})

	require.NoError(t, err, "one provider failing yields partial results, not an error")
	assert.Len(t, merged, 1)
}

func TestSourceGateway_AllProvidersFail(t *testing.T) {
	st := &mockStore{}
	missAllExternalCache(st)

	p1 := &mockProvider{id: "musicbrainz"}
	p1.On("Query", mock.Anything, mock.Anything).Return(nil, errors.New("timeout"))
	p2 := &mockProvider{id: "discogs"}
	p2.On("Query", mock.Anything, mock.Anything).Return(nil, errors.New("timeout"))

	gw := newTestGateway([]MetadataProvider{p1, p2}, st)
	_, err := gw.FetchCandidates(context.Background(), ProviderQuery{Kind: QueryPopular})

	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestSourceGateway_ServesFromExternalCache(t *testing.T) {
	st := &mockStore{}

	cached := []models.CandidateAlbum{
		{Artist: "Can", Title: "Ege Bamyasi", GenreTags: []string{"Krautrock"}},
	}
	payload, err := json.Marshal(cached)
	require.NoError(t, err)

	st.On("GetExternalCache", mock.Anything, mock.Anything, mock.Anything).
		Return(&models.ExternalResponseCacheEntry{
			Provider:  "musicbrainz",
			Payload:   payload,
			ExpiresAt: time.Now().Add(time.Hour),
		}, nil)

	provider := &mockProvider{id: "musicbrainz"}
	// No Query expectation: hitting the provider would fail the test.

	gw := newTestGateway([]MetadataProvider{provider}, st)
	merged, err := gw.FetchCandidates(context.Background(), ProviderQuery{Kind: QueryPopular})

	require.NoError(t, err)
	require.Len(t, merged, 1)
	assert.Equal(t, "can::ege bamyasi", merged[0].Fingerprint)
	provider.AssertNotCalled(t, "Query", mock.Anything, mock.Anything)
}

func TestSourceGateway_SimilarToMergesByMax(t *testing.T) {
	st := &mockStore{}
	missAllExternalCache(st)

	p1 := &mockProvider{id: "musicbrainz"}
	p1.On("Query", mock.Anything, mock.Anything).Return(&ProviderResponse{
		Albums: []models.CandidateAlbum{
			{Artist: "Neu!", Title: "Neu!", SimilarTo: map[string]float64{"can": 0.5}},
		},
	}, nil)
	p2 := &mockProvider{id: "lastfm"}
	p2.On("Query", mock.Anything, mock.Anything).Return(&ProviderResponse{
		Albums: []models.CandidateAlbum{
			{Artist: "Neu!", Title: "Neu!", SimilarTo: map[string]float64{"can": 0.9, "faust": 0.4}},
		},
	}, nil)

	gw := newTestGateway([]MetadataProvider{p1, p2}, st)
	merged, err := gw.FetchCandidates(context.Background(), ProviderQuery{Kind: QueryPopular})
	require.NoError(t, err)
	require.Len(t, merged, 1)

	assert.InDelta(t, 0.9, merged[0].SimilarTo["can"], 0.001,
		"conflicting similarities keep the strongest")
	assert.InDelta(t, 0.4, merged[0].SimilarTo["faust"], 0.001)
}

func TestBuildQuery_Deterministic(t *testing.T) {
	profile := BuildProfile(testCollection())

	q1 := BuildQuery(profile, models.ListTopPicks, models.ListParams{}, 50)
	q2 := BuildQuery(profile, models.ListTopPicks, models.ListParams{}, 50)

	assert.Equal(t, q1.Signature(), q2.Signature(),
		"equal profiles must produce identical query signatures")
	assert.Equal(t, QuerySimilarArtists, q1.Kind)
}

func TestBuildQuery_ListTypes(t *testing.T) {
	profile := BuildProfile(testCollection())

	byArtist := BuildQuery(profile, models.ListBecauseYouOwn, models.ListParams{Artist: "John Coltrane"}, 50)
	assert.Equal(t, QuerySimilarArtists, byArtist.Kind)
	assert.Equal(t, []string{"john coltrane"}, byArtist.Artists)

	byGenre := BuildQuery(profile, models.ListMoreLikeGenre, models.ListParams{Genre: "Jazz"}, 50)
	assert.Equal(t, QueryTopByTags, byGenre.Kind)
	assert.Equal(t, []string{"jazz"}, byGenre.Tags)

	empty := BuildQuery(BuildProfile(nil), models.ListTopPicks, models.ListParams{}, 50)
	assert.Equal(t, QueryPopular, empty.Kind,
		"an empty collection asks providers for popular releases")
}
