package visengine

import (
	"errors"
)

// Sentinel errors for the visibility engine, grouped by the error kinds
// named in the design's error-handling section: invalid argument, I/O
// failure, resource exhaustion, inconsistency, and missing capability.

var ErrBadState = errors.New("observation is not in a state that supports this operation")
var ErrBadIndex = errors.New("index out of range")
var ErrBadArg = errors.New("invalid argument")
var ErrNilObservation = errors.New("nil observation")

var ErrStoreClosed = errors.New("paged store is not open")
var ErrStoreMode = errors.New("paged store does not support this operation in the current mode")
var ErrStoreIO = errors.New("paged store read/write failed")
var ErrStoreShortRead = errors.New("paged store short read")
var ErrStoreSticky = errors.New("paged store is in a sticky error state")
var ErrScratchName = errors.New("could not find an unused scratch file name")

var ErrEditPoolExhausted = errors.New("deferred edit pool exhausted")
var ErrComponentPoolExhausted = errors.New("model component pool exhausted")

var ErrIndexMismatch = errors.New("integration record index does not match its position in the global time index")
var ErrChannelRangeEmpty = errors.New("channel range reduced to zero during selection")
var ErrMixedProjection = errors.New("mixed projection codes in UVW")

var ErrPolarizationUnavailable = errors.New("requested polarization is not available and no synthesis recipe applies")

var ErrAntennaOrder = errors.New("baseline antenna indices are not ordered a < b")
var ErrNoModelEvaluator = errors.New("no model evaluator configured")
var ErrNoIngester = errors.New("no ingester configured")
var ErrNoExporter = errors.New("no exporter configured")

// TileDB archive errors (archive.go), named in the same style as the rest.
var ErrCreateArchiveGroup = errors.New("error creating tiledb archive group")
var ErrOpenArchiveGroup = errors.New("error opening tiledb archive group")
var ErrCreateArchiveSchema = errors.New("error creating tiledb archive array schema")
var ErrCreateArchiveArray = errors.New("error creating tiledb archive array")
var ErrWriteArchiveArray = errors.New("error writing tiledb archive array")
var ErrArchiveMetadata = errors.New("error writing tiledb archive metadata")
