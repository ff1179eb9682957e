package srcontent

import (
	"vindr-sr/dcmio"
)

// Write flattens the tree rooted at root into tags. The root's own
// attributes land at the top level and its children in the content
// sequence.
func Write(root *Content) dcmio.Tags {
	return writeItem(root)
}

func writeItem(c *Content) dcmio.Tags {
	tags := dcmio.Tags{
		keyValueType: string(c.ValueType),
	}
	if c.RelationshipType != "" {
		tags[keyRelationshipType] = string(c.RelationshipType)
	}
	if c.ConceptNameCode != nil {
		tags[keyConceptNameCodeSequence] = []dcmio.Tags{c.ConceptNameCode.Tags()}
	}

	switch c.ValueType {
	case Container:
		if c.ContinuityOfContent != "" {
			tags[keyContinuityOfContent] = c.ContinuityOfContent
		}
	case Text:
		tags[keyTextValue] = c.TextValue
	case UIDRef:
		tags[keyUID] = c.UID
	case Image:
		ref := SOPReference{}
		if c.ReferencedSOP != nil {
			ref = *c.ReferencedSOP
		}
		item := dcmio.Tags{keyReferencedSOPInstanceUID: ref.SOPInstanceUID}
		if ref.SOPClassUID != "" {
			item[keyReferencedSOPClassUID] = ref.SOPClassUID
		}
		tags[keyReferencedSOPSequence] = []dcmio.Tags{item}
	case SCoord:
		if c.SCoord != nil {
			tags[keyGraphicType] = c.SCoord.GraphicType
			tags[keyGraphicData] = append([]float64(nil), c.SCoord.GraphicData...)
		}
	}

	if len(c.ContentSequence) > 0 {
		items := make([]dcmio.Tags, 0, len(c.ContentSequence))
		for _, child := range c.ContentSequence {
			items = append(items, writeItem(child))
		}
		tags[keyContentSequence] = items
	}
	return tags
}
