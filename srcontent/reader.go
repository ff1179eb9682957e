package srcontent

import (
	"vindr-sr/dcmcode"
	"vindr-sr/dcmio"
	"vindr-sr/scoord"

	"github.com/suyashkumar/dicom"
)

// Read returns the root node of the content tree held by ds. The root is
// returned even when ds carries no SR content; its ConceptNameCode is then
// nil.
func Read(ds dicom.Dataset) *Content {
	return readItem(ds.Elements)
}

func readItem(elems []*dicom.Element) *Content {
	c := &Content{
		ValueType:        ValueType(dcmio.String(dcmio.Find(elems, tagValueType))),
		RelationshipType: RelationshipType(dcmio.String(dcmio.Find(elems, tagRelationshipType))),
		ConceptNameCode:  dcmcode.FromElements(dcmio.FirstItem(dcmio.Find(elems, tagConceptNameCodeSequence))),
	}

	switch c.ValueType {
	case Container:
		c.ContinuityOfContent = dcmio.String(dcmio.Find(elems, tagContinuityOfContent))
	case Text:
		c.TextValue = dcmio.String(dcmio.Find(elems, tagTextValue))
	case UIDRef:
		c.UID = dcmio.String(dcmio.Find(elems, tagUID))
	case Image:
		if item := dcmio.FirstItem(dcmio.Find(elems, tagReferencedSOPSequence)); item != nil {
			c.ReferencedSOP = &SOPReference{
				SOPClassUID:    dcmio.String(dcmio.Find(item, tagReferencedSOPClassUID)),
				SOPInstanceUID: dcmio.String(dcmio.Find(item, tagReferencedSOPInstanceUID)),
			}
		}
	case SCoord:
		c.SCoord = &scoord.Value{
			GraphicType: dcmio.String(dcmio.Find(elems, tagGraphicType)),
			GraphicData: dcmio.Floats(dcmio.Find(elems, tagGraphicData)),
		}
	}

	for _, item := range dcmio.Items(dcmio.Find(elems, tagContentSequence)) {
		c.ContentSequence = append(c.ContentSequence, readItem(item))
	}
	return c
}
