package blob

import (
	"errors"
	"fmt"
	"strings"
)

// Scheme is the locator scheme this service understands.
const Scheme = "gs"

// ErrInvalidLocator is returned for any malformed locator: missing scheme,
// empty container, or empty object path.
var ErrInvalidLocator = errors.New("invalid locator")

// ParseLocator splits a "gs://container/object/path" locator into its
// container and object segments. The object segment is everything after
// the first separator and must be non-empty.
func ParseLocator(locator string) (container, object string, err error) {
	prefix := Scheme + "://"
	rest, ok := strings.CutPrefix(locator, prefix)
	if !ok {
		return "", "", fmt.Errorf("%w: %q does not start with %s", ErrInvalidLocator, locator, prefix)
	}
	container, object, ok = strings.Cut(rest, "/")
	if !ok || container == "" || object == "" {
		return "", "", fmt.Errorf("%w: %q needs a container and an object path", ErrInvalidLocator, locator)
	}
	return container, object, nil
}
