package manifest

import (
	"fmt"
	"strings"
)

// InvalidSpecError is an attribute spec that breaks its kind's invariants.
type InvalidSpecError struct {
	Key    string
	Reason string
	Err    error
}

func (e *InvalidSpecError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("attribute %s: invalid spec: %s: %v", e.Key, e.Reason, e.Err)
	}
	return fmt.Sprintf("attribute %s: invalid spec: %s", e.Key, e.Reason)
}

func (e *InvalidSpecError) Unwrap() error { return e.Err }

// UnknownAttributeError is a manifest key outside the allowed table.
type UnknownAttributeError struct {
	Key string
}

func (e *UnknownAttributeError) Error() string {
	return fmt.Sprintf("unknown attribute %q (allowed: %s)", e.Key, strings.Join(AllowedKeys(), ", "))
}

// ManifestError is a manifest that could not be fetched or decoded.
type ManifestError struct {
	Org    string
	Repo   string
	Branch string
	Reason string
	Issues []string
	Err    error
}

func (e *ManifestError) Error() string {
	var b strings.Builder
	b.WriteString("manifest")
	if e.Repo != "" {
		fmt.Fprintf(&b, " %s/%s@%s", e.Org, e.Repo, e.Branch)
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	if len(e.Issues) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(e.Issues, "; "))
		b.WriteString(")")
	} else if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ManifestError) Unwrap() error { return e.Err }
