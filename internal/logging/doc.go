// Package logging sets up slog for shardex: a console handler for
// interactive use and an opt-in rotating JSON log file under
// ~/.shardex/logs/ enabled by --debug or the logging.file setting.
//
// The same package reads those files back for `shardex logs`.
package logging
