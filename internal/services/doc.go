// Package services implements HTTP clients for the external metadata sources of a placement-tracker run.
//
// # Clients
//
//   - [GeniusService] : song credits (producers, label, copyright, linked video), search, and
//     popularity-ordered artist catalogs. Artist and song ids are read from page meta tags.
//   - [SpotifyService] : catalog search and cursor-paginated playlist/album listings. Authenticates
//     with the client-credentials grant; the [oauth2] transport fetches and refreshes the app token.
//   - [StatsService] : historical cumulative stream counts for a track. Quota constrained; callers
//     pace it with a shared rate limiter.
//   - [YouTubeService] : public video view counts.
//
// All clients share [APIClient] for request construction and status mapping. Every option struct
// takes a base URL override so tests can point a client at an httptest server.
//
// # Error Handling
//
// Failures wrap sentinels from the shared package:
//   - [shared.ErrNotFound] : 404 or an empty result set
//   - [shared.ErrServiceUnavailable] : 429 and 5xx
//   - [shared.ErrAPIRequest] : transport failures and other non-2xx statuses
//   - [shared.ErrMalformedResponse] : bodies that do not have the expected shape
//
// Third-party payloads are read defensively. Stream histories are parsed with gjson so that a single
// malformed point degrades the whole history instead of producing a wrong delta.
package services
