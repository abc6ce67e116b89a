// Package cert emits and verifies certificates: deterministic, byte-stable
// artifacts binding a query, derivation, or migration result to the exact
// module bytes it was computed from.
//
// A certificate never proves anything by authority. Its payload carries
// enough data for an independent checker to recompute the result and
// compare; verification is recompute-and-compare, failing closed on any
// mismatch.
package cert

import (
	"errors"
	"fmt"

	"github.com/josephjohncox/axiograph-sub003/internal/digest"
	"github.com/josephjohncox/axiograph-sub003/internal/ir"
)

// Certificate kinds.
const (
	KindReachability      = "reachability"
	KindResolution        = "resolution"
	KindNormalizePath     = "normalize_path"
	KindRewriteDerivation = "rewrite_derivation"
	KindPathEquiv         = "path_equiv"
	KindDeltaF            = "delta_f"
)

// Version is the certificate format version.
const Version = "1"

// Anchor binds a certificate to exact input bytes: the module text digest
// and, optionally, the stable ids of the facts the payload references.
type Anchor struct {
	ModuleDigest string
	FactIDs      []string
}

// Certificate is an immutable emitted artifact: {kind, version, anchor,
// payload}. Payload shape is kind-specific; it always holds enough to
// recompute the result.
type Certificate struct {
	Kind    string
	Version string
	Anchor  Anchor
	Payload ir.Object
}

// ToCanonical renders the certificate as a canonical value. Serialization
// of this value is byte-stable: object keys sort canonically and the model
// admits no floats and no map-iteration dependence.
func (c *Certificate) ToCanonical() ir.Object {
	anchor := ir.Object{
		"module_digest": ir.String(c.Anchor.ModuleDigest),
	}
	if len(c.Anchor.FactIDs) > 0 {
		ids := make(ir.Array, len(c.Anchor.FactIDs))
		for i, id := range c.Anchor.FactIDs {
			ids[i] = ir.String(id)
		}
		anchor["fact_ids"] = ids
	}
	return ir.Object{
		"kind":    ir.String(c.Kind),
		"version": ir.String(c.Version),
		"anchor":  anchor,
		"payload": c.Payload,
	}
}

// Marshal produces the canonical bytes of the certificate.
func (c *Certificate) Marshal() ([]byte, error) {
	return ir.MarshalCanonical(c.ToCanonical())
}

// Parse decodes certificate bytes. Structural validation against the CUE
// schema is the verifier's first step; Parse only requires the JSON to be
// shaped like a certificate.
func Parse(data []byte) (*Certificate, error) {
	v, err := ir.UnmarshalValue(data)
	if err != nil {
		return nil, fmt.Errorf("parse certificate: %w", err)
	}
	obj, ok := v.(ir.Object)
	if !ok {
		return nil, fmt.Errorf("parse certificate: not a JSON object")
	}
	kind, _ := obj["kind"].(ir.String)
	version, _ := obj["version"].(ir.String)
	anchorObj, _ := obj["anchor"].(ir.Object)
	payload, _ := obj["payload"].(ir.Object)
	if kind == "" || version == "" || anchorObj == nil || payload == nil {
		return nil, fmt.Errorf("parse certificate: missing kind/version/anchor/payload")
	}
	c := &Certificate{
		Kind:    string(kind),
		Version: string(version),
		Payload: payload,
	}
	md, _ := anchorObj["module_digest"].(ir.String)
	c.Anchor.ModuleDigest = string(md)
	if !digest.IsModuleDigest(c.Anchor.ModuleDigest) {
		return nil, fmt.Errorf("parse certificate: malformed module digest %q", c.Anchor.ModuleDigest)
	}
	if ids, ok := anchorObj["fact_ids"].(ir.Array); ok {
		for _, id := range ids {
			s, _ := id.(ir.String)
			if !digest.IsFactDigest(string(s)) {
				return nil, fmt.Errorf("parse certificate: malformed fact id %q", s)
			}
			c.Anchor.FactIDs = append(c.Anchor.FactIDs, string(s))
		}
	}
	return c, nil
}

// AnchorMismatchError reports a certificate whose claimed module digest
// does not match the recomputed digest of the supplied text. Verification
// fails closed on this - the certificate is unverifiable, never
// "probably fine".
type AnchorMismatchError struct {
	Claimed  string
	Computed string
}

func (e *AnchorMismatchError) Error() string {
	return fmt.Sprintf("anchor mismatch: certificate claims %s, module text digests to %s", e.Claimed, e.Computed)
}

// IsAnchorMismatch reports whether err is (or wraps) an anchor mismatch.
func IsAnchorMismatch(err error) bool {
	var ae *AnchorMismatchError
	return errors.As(err, &ae)
}
