// Package model contains the ranking domain entities passed between layers.
package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownDomain is returned when a domain tag cannot be parsed.
var ErrUnknownDomain = errors.New("unknown domain")

// ErrUnknownMediaType is returned when a media type tag cannot be parsed.
var ErrUnknownMediaType = errors.New("unknown media type")

// Domain is the concrete media category a list, item or configuration belongs to.
type Domain string

// Supported domains.
const (
	DomainMusicAlbums Domain = "music_albums"
	DomainMusicSongs  Domain = "music_songs"
	DomainMovies      Domain = "movies"
	DomainGames       Domain = "games"
	DomainBooks       Domain = "books"
)

// Domains lists every supported domain in a stable order.
func Domains() []Domain {
	return []Domain{DomainMusicAlbums, DomainMusicSongs, DomainMovies, DomainGames, DomainBooks}
}

// Valid reports whether d is one of the supported domains.
func (d Domain) Valid() bool {
	switch d {
	case DomainMusicAlbums, DomainMusicSongs, DomainMovies, DomainGames, DomainBooks:
		return true
	}
	return false
}

// MediaType returns the penalty media type that covers d.
func (d Domain) MediaType() MediaType {
	switch d {
	case DomainMusicAlbums, DomainMusicSongs:
		return MediaMusic
	case DomainMovies:
		return MediaMovies
	case DomainGames:
		return MediaGames
	case DomainBooks:
		return MediaBooks
	}
	return ""
}

// Label is the human readable name used in validation messages.
func (d Domain) Label() string {
	switch d {
	case DomainMusicAlbums:
		return "Music Albums"
	case DomainMusicSongs:
		return "Music Songs"
	case DomainMovies:
		return "Movies"
	case DomainGames:
		return "Games"
	case DomainBooks:
		return "Books"
	}
	return string(d)
}

// ParseDomain parses a domain tag, accepting a few spellings.
func ParseDomain(s string) (Domain, error) {
	d := Domain(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	switch d {
	case "albums":
		d = DomainMusicAlbums
	case "songs":
		d = DomainMusicSongs
	}
	if !d.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownDomain, s)
	}
	return d, nil
}

// MediaType tags a penalty with the domains it may be used in.
type MediaType string

// Supported penalty media types.
const (
	MediaCrossMedia MediaType = "cross_media"
	MediaBooks      MediaType = "books"
	MediaMovies     MediaType = "movies"
	MediaGames      MediaType = "games"
	MediaMusic      MediaType = "music"
)

// Valid reports whether m is a known media type.
func (m MediaType) Valid() bool {
	switch m {
	case MediaCrossMedia, MediaBooks, MediaMovies, MediaGames, MediaMusic:
		return true
	}
	return false
}

// Label is the human readable name used in validation messages.
func (m MediaType) Label() string {
	switch m {
	case MediaCrossMedia:
		return "Global"
	case MediaBooks:
		return "Books"
	case MediaMovies:
		return "Movies"
	case MediaGames:
		return "Games"
	case MediaMusic:
		return "Music"
	}
	return string(m)
}

// ParseMediaType parses a media type tag.
func ParseMediaType(s string) (MediaType, error) {
	m := MediaType(strings.ToLower(strings.TrimSpace(s)))
	if m == "global" {
		m = MediaCrossMedia
	}
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownMediaType, s)
	}
	return m, nil
}

// Compatible reports whether a penalty tagged m may be attached to a list or
// configuration of domain d. Cross media penalties fit every domain.
func Compatible(m MediaType, d Domain) bool {
	if !d.Valid() {
		return false
	}
	return m == MediaCrossMedia || m == d.MediaType()
}
