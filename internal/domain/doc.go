// Package domain models hydro-meteorological station observations and the
// long-to-wide reshaping applied to them.
//
// # Data Source
//
// Observations come from station data exports: one zip per station (or per
// station group), each holding one or more CSV files. Users bundle several of
// those zips into one outer zip and upload it. Every CSV has a header row;
// the columns the pipeline interprets are
//
//	Fecha           observation date, usually "2006-01-02 15:04:05" or "2006-01-02"
//	CodigoEstacion  station code, a digit string with significant leading zeros
//	NombreEstacion  station display name, used as the wide-table column key
//	Valor           measured value, numeric or empty
//
// All other columns (coordinates, department, municipality, installation
// and suspension dates, parameter labels, quality flags) are carried through
// untouched. Their set varies between export revisions, so the consolidated
// table is the union of every header seen.
//
// # Conventions
//
// Missing values:
//
//	Empty cells and the usual "not available" tokens (NA, N/A, NaN, NULL,
//	None, #N/A, ...) are null. A Valor that does not parse as a number is
//	also null; no other semantic validation is performed.
//
// Text columns:
//
//	Columns listed in [Schema.TextColumns] are never type-inferred, keeping
//	"0021205012" from turning into 21205012.
//
// Dates:
//
//	Parsed by [ParseTimestamp]. Ambiguous NN/NN/YYYY is month-first unless
//	[Schema.DayFirst] is set. Unparseable dates are null and such rows are
//	dropped by [Reshape].
//
// # Reshaping
//
// [Reshape] keys cells by (date, station name). Duplicate pairs resolve by
// last write wins. [FilterByCompleteness] then drops sparse stations.
package domain
