package export

import (
	"fmt"
	"strings"
)

// Format names an export format.
type Format string

const (
	FormatDOT      Format = "dot"
	FormatMakefile Format = "make"
	FormatHCL      Format = "hcl"
)

// Formats lists the supported formats.
var Formats = []Format{FormatDOT, FormatMakefile, FormatHCL}

// ParseFormat validates a format name, case-insensitively.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Formats {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown export format %q, expected one of %v", s, Formats)
}
