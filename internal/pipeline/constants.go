package pipeline

import (
	"time"

	"github.com/dvloznov/bank-normalizer/internal/schema"
)

// Defaults for exporting files.
const (
	// DefaultWorkers is the number of files exported concurrently.
	DefaultWorkers = 4

	// DefaultRetryStep is the linear backoff step between attempts of a file.
	DefaultRetryStep = time.Second

	// InputExtension selects the files a Source lists.
	InputExtension = ".csv"
)

// KindMalformedRow marks a row whose cells do not line up with the header.
const KindMalformedRow schema.Kind = "MALFORMED_ROW"
