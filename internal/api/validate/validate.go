package validate

import (
	"net"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/hudson-blanoire/chroma-server/internal/model"
)

// collectionNameRx allows letters, digits, dot, underscore and hyphen, starting
// and ending with a letter or digit.
var collectionNameRx = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*[A-Za-z0-9]$`)

// CollectionName validates a collection name:
// - 3-63 characters
// - letters/digits/dot/underscore/hyphen, alphanumeric at both ends
// - no consecutive dots
// - not a valid IPv4 address
func CollectionName(v string) error {
	if v == "" {
		return model.Invalidf("name", "collection name is required")
	}
	if len(v) < 3 || len(v) > 63 {
		return model.Invalidf("name", "collection name %q must be between 3 and 63 characters", v)
	}
	if !collectionNameRx.MatchString(v) {
		return model.Invalidf("name", "collection name %q may only contain letters, digits, '.', '_' and '-', and must start and end with a letter or digit", v)
	}
	if strings.Contains(v, "..") {
		return model.Invalidf("name", "collection name %q must not contain two consecutive dots", v)
	}
	if ip := net.ParseIP(v); ip != nil && ip.To4() != nil {
		return model.Invalidf("name", "collection name %q must not be a valid IPv4 address", v)
	}
	return nil
}

// CollectionID requires a UUID.
func CollectionID(v string) error {
	if _, err := uuid.Parse(v); err != nil {
		return model.Invalidf("collection_id", "%q is not a valid UUID", v)
	}
	return nil
}

func NonNegative(field string, v int) error {
	if v < 0 {
		return model.Invalidf(field, "must be >= 0")
	}
	return nil
}

// -------- Request specific helpers ----------

func CreateCollection(name string, metadata model.Metadata) error {
	if err := CollectionName(name); err != nil {
		return err
	}
	return metadata.Validate("metadata", false)
}

func UpdateCollection(newName *string, newMetadata model.Metadata) error {
	if newName != nil {
		if err := CollectionName(*newName); err != nil {
			return err
		}
	}
	return newMetadata.Validate("new_metadata", false)
}

// Page validates optional limit/offset query values.
func Page(limit, offset *int) error {
	if limit != nil {
		if err := NonNegative("limit", *limit); err != nil {
			return err
		}
	}
	if offset != nil {
		return NonNegative("offset", *offset)
	}
	return nil
}
