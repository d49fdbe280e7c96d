// Package session stores analysis sessions.
//
// A Store keeps every live session in memory and mirrors each change to a
// SnapshotStore, so sessions survive a restart. Two snapshot backends are
// provided:
//   - FileSnapshots: one JSON file per session, written atomically
//   - SQLiteSnapshots: one row per session in a SQLite database
//
// Sessions expire 30 minutes after their last access. Reads through Get
// with Renew, and every Update, slide that window forward; Peek does not.
// Expired sessions are removed lazily on access and by RunSweeper. Removal
// deletes the snapshot and, through MediaPurger, the session's media files.
//
// Each session has its own mutex. Status only moves forward
// (created, processing, then completed or failed) and a finished session
// can no longer be modified.
package session
