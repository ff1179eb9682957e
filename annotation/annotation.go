package annotation

import (
	"encoding/json"

	"vindr-sr/helper"
	"vindr-sr/scoord"
)

// Annotation is one finding drawn on one image.
type Annotation struct {
	ID              string
	MathShape       scoord.Shape
	ReferenceSOPUID string
	TextExpr        string

	group *AnnotationGroup
}

type annotationJSON struct {
	ID              string        `json:"id"`
	Shape           *scoord.Value `json:"shape,omitempty"`
	ReferenceSOPUID string        `json:"reference_sop_uid"`
	TextExpr        string        `json:"text_expr"`
}

// NewAnnotation returns an annotation with a freshly generated id.
func NewAnnotation(shape scoord.Shape, referenceSOPUID, textExpr string) *Annotation {
	return &Annotation{
		ID:              helper.GUID(),
		MathShape:       shape,
		ReferenceSOPUID: referenceSOPUID,
		TextExpr:        textExpr,
	}
}

// Group returns the group owning antn, or nil.
func (antn *Annotation) Group() *AnnotationGroup {
	return antn.group
}

func (antn *Annotation) MarshalJSON() ([]byte, error) {
	out := annotationJSON{
		ID:              antn.ID,
		ReferenceSOPUID: antn.ReferenceSOPUID,
		TextExpr:        antn.TextExpr,
	}
	if antn.MathShape != nil {
		v, err := scoord.Encode(antn.MathShape)
		if err != nil {
			return nil, err
		}
		out.Shape = &v
	}
	return json.Marshal(out)
}

// UnmarshalJSON fills antn from JSON, generating an id when none is given.
func (antn *Annotation) UnmarshalJSON(data []byte) error {
	var in annotationJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	var shape scoord.Shape
	if in.Shape != nil {
		s, err := scoord.Decode(*in.Shape)
		if err != nil {
			return err
		}
		shape = s
	}
	if in.ID == "" {
		in.ID = helper.GUID()
	}

	antn.ID = in.ID
	antn.MathShape = shape
	antn.ReferenceSOPUID = in.ReferenceSOPUID
	antn.TextExpr = in.TextExpr
	return nil
}

func (antn *Annotation) String() string {
	b, _ := json.Marshal(antn)
	return string(b)
}

// IsValidAnnotation reports whether antn can be exported: it needs an
// encodable shape and the image it was drawn on.
func (antn *Annotation) IsValidAnnotation() bool {
	if antn.MathShape == nil || antn.ReferenceSOPUID == "" {
		return false
	}
	_, err := scoord.Encode(antn.MathShape)
	return err == nil
}
