package store

import (
	"fmt"

	"github.com/papermake/papermake/digest"
)

// Storage key layout (spec §6):
//
//	blobs/sha256/<64-hex>
//	manifests/sha256/<64-hex>
//	refs/<namespace>/<name>/<tag>     (namespace present)
//	refs/<name>/<tag>                 (namespace absent)
//
// Manifests live in their own top-level prefix rather than inside blobs/
// even though both are content-addressed, so a backend can apply
// different retention or replication policy to the two without parsing
// content.

func blobPath(d digest.Digest) (string, error) {
	if err := d.Validate(); err != nil {
		return "", err
	}
	return fmt.Sprintf("blobs/%s/%s", digest.Algorithm, d.Hex()), nil
}

func manifestPath(d digest.Digest) (string, error) {
	if err := d.Validate(); err != nil {
		return "", err
	}
	return fmt.Sprintf("manifests/%s/%s", digest.Algorithm, d.Hex()), nil
}

// RefPath returns the storage key for a tag reference. namespace may be
// empty.
func RefPath(namespace, name, tag string) string {
	if namespace == "" {
		return fmt.Sprintf("refs/%s/%s", name, tag)
	}
	return fmt.Sprintf("refs/%s/%s/%s", namespace, name, tag)
}
