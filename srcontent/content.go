// Package srcontent models the content tree of a DICOM Structured Report
// (DICOM Part 3 C.17.3) and converts it to and from datasets.
package srcontent

import (
	"vindr-sr/dcmcode"
	"vindr-sr/scoord"

	"github.com/suyashkumar/dicom/pkg/tag"
)

type ValueType string

const (
	Container ValueType = "CONTAINER"
	SCoord    ValueType = "SCOORD"
	Image     ValueType = "IMAGE"
	UIDRef    ValueType = "UIDREF"
	Text      ValueType = "TEXT"
	Code      ValueType = "CODE"
	Num       ValueType = "NUM"
)

type RelationshipType string

const (
	Contains      RelationshipType = "CONTAINS"
	HasProperties RelationshipType = "HAS PROPERTIES"
	SelectedFrom  RelationshipType = "SELECTED FROM"
	HasObsContext RelationshipType = "HAS OBS CONTEXT"
	HasConceptMod RelationshipType = "HAS CONCEPT MOD"
	InferredFrom  RelationshipType = "INFERRED FROM"
	HasAcqContext RelationshipType = "HAS ACQ CONTEXT"
)

// SOPReference is the payload of an IMAGE content item.
type SOPReference struct {
	SOPClassUID    string `json:"sop_class_uid,omitempty"`
	SOPInstanceUID string `json:"sop_instance_uid"`
}

// Content is one node of the content tree. Only the payload field matching
// ValueType is meaningful.
type Content struct {
	ValueType        ValueType
	RelationshipType RelationshipType
	ConceptNameCode  *dcmcode.Code

	TextValue           string
	UID                 string
	ReferencedSOP       *SOPReference
	SCoord              *scoord.Value
	ContinuityOfContent string

	ContentSequence []*Content
}

// Append adds children in order and returns c.
func (c *Content) Append(children ...*Content) *Content {
	c.ContentSequence = append(c.ContentSequence, children...)
	return c
}

// IsA reports whether the node has the given concept name.
func (c *Content) IsA(code dcmcode.Code) bool {
	return c.ConceptNameCode != nil && c.ConceptNameCode.Equal(code)
}

var (
	tagRelationshipType         = tag.Tag{Group: 0x0040, Element: 0xA010}
	tagValueType                = tag.Tag{Group: 0x0040, Element: 0xA040}
	tagConceptNameCodeSequence  = tag.Tag{Group: 0x0040, Element: 0xA043}
	tagContinuityOfContent      = tag.Tag{Group: 0x0040, Element: 0xA050}
	tagUID                      = tag.Tag{Group: 0x0040, Element: 0xA124}
	tagTextValue                = tag.Tag{Group: 0x0040, Element: 0xA160}
	tagContentSequence          = tag.Tag{Group: 0x0040, Element: 0xA730}
	tagReferencedSOPSequence    = tag.Tag{Group: 0x0008, Element: 0x1199}
	tagReferencedSOPClassUID    = tag.Tag{Group: 0x0008, Element: 0x1150}
	tagReferencedSOPInstanceUID = tag.Tag{Group: 0x0008, Element: 0x1155}
	tagGraphicData              = tag.Tag{Group: 0x0070, Element: 0x0022}
	tagGraphicType              = tag.Tag{Group: 0x0070, Element: 0x0023}
)

// Tag keys used when writing. Hex keys avoid depending on dictionary
// keywords for the SR module attributes.
const (
	keyRelationshipType         = "0040A010"
	keyValueType                = "0040A040"
	keyConceptNameCodeSequence  = "0040A043"
	keyContinuityOfContent      = "0040A050"
	keyUID                      = "0040A124"
	keyTextValue                = "0040A160"
	keyContentSequence          = "0040A730"
	keyReferencedSOPSequence    = "00081199"
	keyReferencedSOPClassUID    = "00081150"
	keyReferencedSOPInstanceUID = "00081155"
	keyGraphicData              = "00700022"
	keyGraphicType              = "00700023"
)
