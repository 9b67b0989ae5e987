package costs

import "errors"

// Sentinel errors shared across the engines and the API layer. The API maps
// these onto HTTP status codes; everything else is treated as internal.
var (
	// ErrInsufficientHistory is returned when a forecast is requested over
	// fewer historical daily points than the selected model needs. The
	// request was well-formed but the data is not ready, so it is distinct
	// from a validation error.
	ErrInsufficientHistory = errors.New("insufficient cost history")

	// ErrUnknownModel is returned for an unrecognized forecasting model tag.
	ErrUnknownModel = errors.New("unknown forecasting model")

	// ErrNoValidRows is returned when every row of a billing import was
	// dropped during normalization.
	ErrNoValidRows = errors.New("no valid rows in billing file")

	// ErrUnknownDialect is returned for an unrecognized billing export
	// dialect.
	ErrUnknownDialect = errors.New("unknown billing dialect")

	// ErrInventoryUnavailable is returned when the resource inventory could
	// not be read. The rule engine never reports this case as a successful
	// zero-match evaluation.
	ErrInventoryUnavailable = errors.New("resource inventory unavailable")

	// ErrInvalidTransition is returned when a suggestion status change is
	// not pending->applied or pending->dismissed.
	ErrInvalidTransition = errors.New("invalid suggestion status transition")

	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("not found")
)
