package imerg

import (
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Tier is the data-quality class of an IMERG product. LATE supersedes EARLY
// for the same nominal 30-minute window.
type Tier string

const (
	TierEarly Tier = "EARLY"
	TierLate  Tier = "LATE"
)

const (
	// ProductSuffix is the fixed file-type suffix of 30-minute GeoTIFF products.
	ProductSuffix = ".30min.tif"

	// tierCharIndex is the byte offset of the tier marker inside a product
	// name, e.g. 3B-HHR-L.MS.MRG.3IMERG.20150802-S083000-E085959.0510.V05B.30min.tif
	//                    ^
	tierCharIndex = 7

	// StartDatePattern matches the embedded start timestamp of a product
	// name, e.g. "20150802-S083000".
	StartDatePattern = `\d{4}[01]\d[0-3]\d-S[0-2]\d{5}`

	// StartDateLayout parses the text matched by StartDatePattern.
	StartDateLayout = "20060102-S150405"
)

// WindowHalf is half of a product's nominal time window; StartTime and
// EndTime of an archive entry are Timestamp +/- WindowHalf.
const WindowHalf = 15 * time.Minute

var defaultStartDateRE = regexp.MustCompile(StartDatePattern)

// ExtractTimestamp searches name for an embedded timestamp using pattern and
// parses the first match with the given time layout. It reports ok=false when
// the pattern does not match or the matched text does not parse; it never
// returns an error.
func ExtractTimestamp(name string, pattern *regexp.Regexp, layout string) (time.Time, bool) {
	if pattern == nil {
		pattern = defaultStartDateRE
	}
	if layout == "" {
		layout = StartDateLayout
	}
	match := pattern.FindString(name)
	if match == "" {
		return time.Time{}, false
	}
	ts, err := time.Parse(layout, match)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// TierOf derives the tier from the marker character of a product name.
func TierOf(name string) (Tier, bool) {
	if len(name) <= tierCharIndex {
		return "", false
	}
	switch name[tierCharIndex] {
	case 'L':
		return TierLate, true
	case 'E':
		return TierEarly, true
	default:
		return "", false
	}
}

// IsProduct reports whether name is a 30-minute GeoTIFF product.
func IsProduct(name string) bool {
	return strings.HasSuffix(name, ProductSuffix)
}

// EarlyCounterpart returns the EARLY product name corresponding to a LATE
// product name, substituting the tier marker and leaving every other
// character untouched. Names too short to carry a marker come back unchanged.
func EarlyCounterpart(lateName string) string {
	if len(lateName) <= tierCharIndex {
		return lateName
	}
	return lateName[:tierCharIndex] + "E" + lateName[tierCharIndex+1:]
}

// EntryName is a product name without its file extension, the form under
// which items are recorded in the catalog.
func EntryName(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}
