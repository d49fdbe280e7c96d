// Package auth stores the Instagram cookies used for upstream requests.
//
// Credentials can live in the OS keyring, in an AES-GCM encrypted file
// keyed with PBKDF2, or in IGANALYZER_INSTAGRAM_* environment variables.
// Manager tries the stores in that order.
package auth
