package knowledge

import (
	"fmt"
	"strings"
	"sync"

	officelicense "github.com/unidoc/unioffice/common/license"
	pdflicense "github.com/unidoc/unipdf/v3/common/license"
)

var licenseOnce sync.Once
var licenseErr error

// SetUnidocLicense registers a metered key with both unidoc libraries. It
// runs once per process; an empty key is a no-op.
func SetUnidocLicense(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	licenseOnce.Do(func() {
		if err := pdflicense.SetMeteredKey(key); err != nil {
			licenseErr = fmt.Errorf("unipdf license: %w", err)
			return
		}
		if err := officelicense.SetMeteredKey(key); err != nil {
			licenseErr = fmt.Errorf("unioffice license: %w", err)
		}
	})
	return licenseErr
}

// DefaultStrategies returns the built-in strategies by role. ocr, when not
// nil, is the first fallback so scanned PDFs reach it before the layout pass.
func DefaultStrategies(collectImages bool, ocr ExtractionStrategy) (dedicated, fast, fallback []ExtractionStrategy) {
	dedicated = []ExtractionStrategy{
		&SpreadsheetStrategy{},
		&CSVStrategy{},
		&NotebookStrategy{},
		&SlideStrategy{},
	}
	fast = []ExtractionStrategy{
		&PDFTextStrategy{CollectImages: collectImages},
		&WordTextStrategy{},
		&PlainTextStrategy{},
		&HTMLTextStrategy{},
	}
	if ocr != nil {
		fallback = append(fallback, ocr)
	}
	fallback = append(fallback,
		&PDFLayoutStrategy{CollectImages: collectImages},
		&WordLayoutStrategy{},
		&HTMLLayoutStrategy{},
		&NormalizedTextStrategy{},
	)
	return dedicated, fast, fallback
}
