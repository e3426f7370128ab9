package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var errUnsupportedURL = errors.New("unsupported track url")

// TrackMetadata is the subset of an oEmbed document the client cares
// about.
type TrackMetadata struct {
	Title      string `json:"title"`
	AuthorName string `json:"author_name"`
}

// metadataClient resolves track titles through the platforms' oEmbed
// endpoints. It is a pure side lookup, uncorrelated with room state.
type metadataClient struct {
	client        *http.Client
	spotifyOembed string
	youtubeOembed string
}

func newMetadataClient(timeout time.Duration) *metadataClient {
	return &metadataClient{
		client: &http.Client{
			Timeout: timeout,
		},
		spotifyOembed: "https://open.spotify.com/oembed",
		youtubeOembed: "https://www.youtube.com/oembed",
	}
}

// oembedURL picks the endpoint by inspecting the track URL the same way
// players paste them: anything mentioning spotify goes to Spotify,
// youtube or youtu.be to YouTube.
func (m *metadataClient) oembedURL(rawURL string) (string, error) {
	switch {
	case strings.Contains(rawURL, "spotify"):
		return m.spotifyOembed + "?url=" + url.QueryEscape(rawURL), nil
	case strings.Contains(rawURL, "youtube"), strings.Contains(rawURL, "youtu.be"):
		return m.youtubeOembed + "?url=" + url.QueryEscape(rawURL) + "&format=json", nil
	default:
		return "", errUnsupportedURL
	}
}

func (m *metadataClient) Lookup(rawURL string) (*TrackMetadata, error) {
	endpoint, err := m.oembedURL(rawURL)
	if err != nil {
		return nil, err
	}

	resp, err := m.client.Get(endpoint)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("oembed lookup returned %d", resp.StatusCode)
	}

	var meta TrackMetadata
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, err
	}

	return &meta, nil
}
