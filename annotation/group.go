package annotation

import (
	"encoding/json"
	"errors"
	"fmt"

	"vindr-sr/dcmio"
)

// Metadata keys the factory reads and writes. Other keys pass through.
const (
	MetaModality                 = "Modality"
	MetaStudyInstanceUID         = "StudyInstanceUID"
	MetaReferencedSeriesSequence = "ReferencedSeriesSequence"
)

var ErrAnnotationOwned = errors.New("annotation: owned by another group")

// AnnotationGroup is an ordered list of annotations plus group metadata.
// An annotation belongs to at most one group.
type AnnotationGroup struct {
	list []*Annotation
	meta map[string]interface{}
}

type groupJSON struct {
	Annotations []*Annotation          `json:"annotations"`
	Meta        map[string]interface{} `json:"meta"`
}

func NewAnnotationGroup(list ...*Annotation) (*AnnotationGroup, error) {
	group := &AnnotationGroup{
		list: make([]*Annotation, 0, len(list)),
		meta: make(map[string]interface{}),
	}
	for _, antn := range list {
		if err := group.Add(antn); err != nil {
			return nil, err
		}
	}
	return group, nil
}

// Add appends antn and takes ownership of it.
func (group *AnnotationGroup) Add(antn *Annotation) error {
	if antn.group != nil && antn.group != group {
		return fmt.Errorf("%w: %s", ErrAnnotationOwned, antn.ID)
	}
	antn.group = group
	group.list = append(group.list, antn)
	return nil
}

// List returns the annotations in storage order.
func (group *AnnotationGroup) List() []*Annotation {
	return append([]*Annotation(nil), group.list...)
}

func (group *AnnotationGroup) Len() int {
	return len(group.list)
}

func (group *AnnotationGroup) SetMeta(key string, value interface{}) {
	group.meta[key] = value
}

func (group *AnnotationGroup) Meta(key string) interface{} {
	return group.meta[key]
}

// MetaString returns a string metadata value, or "".
func (group *AnnotationGroup) MetaString(key string) string {
	s, _ := group.meta[key].(string)
	return s
}

func (group *AnnotationGroup) MarshalJSON() ([]byte, error) {
	return json.Marshal(groupJSON{Annotations: group.list, Meta: group.meta})
}

func (group *AnnotationGroup) UnmarshalJSON(data []byte) error {
	var in groupJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	decoded, err := NewAnnotationGroup(in.Annotations...)
	if err != nil {
		return err
	}
	for k, v := range in.Meta {
		if k == MetaReferencedSeriesSequence {
			v = seriesSequenceFromJSON(v)
		}
		decoded.SetMeta(k, v)
	}
	*group = *decoded
	for _, antn := range group.list {
		antn.group = group
	}
	return nil
}

func (group *AnnotationGroup) String() string {
	b, _ := json.Marshal(group)
	return string(b)
}

// seriesSequenceFromJSON restores the []dcmio.Tags form Create produces.
// Values of any other shape are kept as decoded.
func seriesSequenceFromJSON(v interface{}) interface{} {
	raw, ok := v.([]interface{})
	if !ok {
		return v
	}
	items := make([]dcmio.Tags, 0, len(raw))
	for _, r := range raw {
		m, ok := r.(map[string]interface{})
		if !ok {
			return v
		}
		items = append(items, dcmio.Tags(m))
	}
	return items
}
