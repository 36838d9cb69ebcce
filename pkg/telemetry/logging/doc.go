// Package logging builds the slog loggers verdict uses.
//
// New returns a *slog.Logger whose handler adds request-scoped fields
// carried in the context (request ID, rule slug, bulk batch ID) and the
// active OpenTelemetry trace and span IDs:
//
//	logger, err := logging.New(logging.Config{Level: "info", Format: "json"})
//	ctx = logging.WithSlug(ctx, "health-plans")
//	logger.InfoContext(ctx, "solved", "row_id", "row-3")
//	// {"level":"INFO","msg":"solved","row_id":"row-3","slug":"health-plans",...}
//
// Packages take a *slog.Logger and fall back to
// slog.Default().With("component", name); Setup installs the configured
// logger as the default.
package logging
