// Package policy decides which stream sources the recorder may pull from.
//
// A capture job makes ffmpeg open an arbitrary URL supplied over the room
// API. SourcePolicy is evaluated before the job is accepted so that the
// recorder cannot be pointed at loopback, link-local or private services.
package policy
