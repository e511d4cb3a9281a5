// Package logging holds the slog conventions shared by every package:
// attribute keys, logger constructors and helpers that keep PII out of
// log lines.
//
//	logger := logging.WithOperation(slog.Default(), "assign_thread")
//	logger.Info("joined thread",
//	    logging.UserHash(email.UserEmail),
//	    logging.EmailID(email.ID))
//
// User addresses are logged as hashes (UserHash) and senders as domains
// (Sender). Pass errors through Err, which drops nil errors.
package logging
