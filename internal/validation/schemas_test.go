package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateProviderPayload_Valid(t *testing.T) {
	payload := []byte(`{
		"albums": [
			{
				"artist": "Alice Coltrane",
				"title": "Journey in Satchidananda",
				"genre_tags": ["Jazz", "Spiritual Jazz"],
				"year": 1971,
				"label": "Impulse!",
				"popularity": 72.5,
				"similar_to": {"pharoah sanders::karma": 0.8}
			}
		]
	}`)

	assert.NoError(t, ValidateProviderPayload(payload))
}

func TestValidateProviderPayload_MinimalAlbum(t *testing.T) {
	payload := []byte(`{"albums": [{"artist": "Can", "title": "Tago Mago"}]}`)
	assert.NoError(t, ValidateProviderPayload(payload))
}

func TestValidateProviderPayload_EmptyAlbums(t *testing.T) {
	assert.NoError(t, ValidateProviderPayload([]byte(`{"albums": []}`)))
}

func TestValidateProviderPayload_Invalid(t *testing.T) {
	cases := map[string]string{
		"missing albums":        `{}`,
		"missing title":         `{"albums": [{"artist": "Can"}]}`,
		"empty artist":          `{"albums": [{"artist": "", "title": "Tago Mago"}]}`,
		"year not an integer":   `{"albums": [{"artist": "Can", "title": "Tago Mago", "year": "1971"}]}`,
		"similarity above one":  `{"albums": [{"artist": "Can", "title": "Tago Mago", "similar_to": {"x::y": 1.5}}]}`,
		"albums not an array":   `{"albums": {"artist": "Can"}}`,
		"tags with non-strings": `{"albums": [{"artist": "Can", "title": "Tago Mago", "genre_tags": [1]}]}`,
	}

	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, ValidateProviderPayload([]byte(payload)))
		})
	}
}
