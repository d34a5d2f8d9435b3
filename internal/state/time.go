package state

import (
	"fmt"
	"time"
)

// Layouts a zoneless writer may have used. The shared documents historically
// carried bare ISO timestamps written in the box's local zone.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// CoerceUTC parses a persisted timestamp into UTC. Zone-qualified stamps are
// converted directly; a stamp lacking zone information is interpreted in the
// process's local zone and then converted, matching how it was written.
func CoerceUTC(value string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts.UTC(), nil
	}
	for _, layout := range naiveLayouts {
		if ts, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", value)
}
