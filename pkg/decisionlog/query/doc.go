// Package query validates decision log queries and fills in defaults.
//
// Limits are bounded to [MinLimit, MaxLimit]; a zero limit becomes
// DefaultLimit. Time ranges must be ordered and sort fields known.
package query
