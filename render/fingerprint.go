package render

import "github.com/papermake/papermake/digest"

// Fingerprint identifies a render's inputs (spec §3, "Render
// Fingerprint"): identical fingerprints must yield identical PDF
// digests, modulo the compiler's own determinism guarantees (spec
// §4.8).
type Fingerprint struct {
	ManifestDigest digest.Digest
	DataDigest     digest.Digest
}

func (f Fingerprint) String() string {
	return f.ManifestDigest.String() + "+" + f.DataDigest.String()
}
