package sfs

import (
	"fmt"
)

// firstVersionLabel marks the archived text of an act as it read before any
// amendment was incorporated.
const firstVersionLabel = "first-version"

// VersionTag names which version of an act's text a stored record holds. The
// zero value is never used; a nil *VersionTag means "current text".
type VersionTag struct {
	// Through is the amending act whose changes this version incorporates.
	Through Identifier
	// FirstVersion marks the unamended original text.
	FirstVersion bool
}

// FirstVersion returns the tag for an act's unamended original text.
func FirstVersion() *VersionTag {
	return &VersionTag{FirstVersion: true}
}

// NewVersionTag returns a tag for the version of act produced by the amending
// act through. The amending act must sort strictly after act.
func NewVersionTag(act, through Identifier) (*VersionTag, error) {
	if through.Compare(act) <= 0 {
		return nil, fmt.Errorf("version %s of %s: version must be later than the act", through, act)
	}
	return &VersionTag{Through: through}, nil
}

// String returns "first-version" or the amending act identifier.
func (tag *VersionTag) String() string {
	if tag == nil {
		return ""
	}
	if tag.FirstVersion {
		return firstVersionLabel
	}
	return tag.Through.String()
}

// ParseVersionTag reverses VersionTag.String.
func ParseVersionTag(act Identifier, text string) (*VersionTag, error) {
	if text == "" {
		return nil, nil
	}
	if text == firstVersionLabel {
		return FirstVersion(), nil
	}
	through, err := Parse(text)
	if err != nil {
		return nil, fmt.Errorf("invalid version tag %q: %w", text, err)
	}
	return NewVersionTag(act, through)
}

// VersionFor picks the tag under which a superseded text is archived: the
// amending act it was updated through, or FirstVersion when that marker is the
// act itself.
func VersionFor(act, updatedThrough Identifier) *VersionTag {
	if tag, err := NewVersionTag(act, updatedThrough); err == nil {
		return tag
	}
	return FirstVersion()
}
