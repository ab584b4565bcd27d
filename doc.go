// Package imapbox presents a remote IMAP mailbox as a local,
// dictionary-like message store.
//
// It covers the handful of operations a mailbox consumer needs:
//
//   - Connecting over TLS with LOGIN or XOAUTH2 (OAuth 2.0)
//   - Listing folders and selecting one at a time
//   - Searching with friendly date macros (TODAY, LASTWEEK, PAST30DAYS, ...)
//   - Iterating messages as headers-only views, fetching bodies lazily
//   - Appending, copying, flagging deleted, and expunging messages
//
// The wire protocol lives behind the Session interface; the shipped
// implementation is Dialer, a small textual IMAP4rev1 client. Callers
// that already hold a live session can wrap it with NewMailboxSession
// instead of dialing.
package imapbox
