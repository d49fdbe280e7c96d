// Package storage is the media store for downloaded posts, stories and
// profile pictures.
//
// All files live in one flat directory. A file is named
//
//	{session_id}_{tag}_{kind}{ext}
//
// where tag is a two-digit post ordinal ("01"), "profile", or "story_N".
// The session prefix is what PurgeSession matches on when a session is
// cleaned up. Independently of sessions, RunSweeper removes any file older
// than the retention window so media orphaned by a crash does not pile up.
//
// Writes go to a hidden temporary file in the same directory and are
// renamed into place, so readers never see a partially written file.
package storage
