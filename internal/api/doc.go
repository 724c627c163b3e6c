// Package api hosts the HTTP handlers that front the panel's REST API.
//
// Handler coordinates request validation and response shaping while
// delegating process lifecycle to the stream supervisor, media resolution to
// the library and playlist builder, command construction to the ffmpeg
// builder, and settings persistence to a store.ConfigStore. Dependencies are
// injected at construction time; the package does not reach for globals or
// singletons.
//
// Handler implementations assume upstream middleware from internal/server
// has already enforced authentication, rate limiting, metrics, and logging
// concerns. New routes should preserve that contract.
package api
