package pendant

import "strings"

const (
	inputCollection  = "Col01"
	outputCollection = "Col02"
)

// SelectCollections picks the input and output HID paths of the pendant.
// Windows splits it into Col01 (input) and Col02 (output); a single path serves both.
func SelectCollections(paths []string) (in, out string) {
	if len(paths) == 1 {
		return paths[0], paths[0]
	}

	for _, p := range paths {
		if strings.Contains(p, inputCollection) {
			in = p
		}
		if strings.Contains(p, outputCollection) {
			out = p
		}
	}
	return in, out
}
