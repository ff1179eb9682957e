package dcmio

import (
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// Find returns the element with tag t among elems, or nil.
func Find(elems []*dicom.Element, t tag.Tag) *dicom.Element {
	for _, elem := range elems {
		if elem != nil && elem.Tag == t {
			return elem
		}
	}
	return nil
}

// Strings returns the string values of elem with trailing padding removed.
func Strings(elem *dicom.Element) []string {
	if elem == nil || elem.Value == nil || elem.Value.ValueType() != dicom.Strings {
		return nil
	}
	vals, _ := elem.Value.GetValue().([]string)
	ret := make([]string, len(vals))
	for i, v := range vals {
		ret[i] = strings.TrimRight(v, " \x00")
	}
	return ret
}

// String returns the first string value of elem, or "".
func String(elem *dicom.Element) string {
	vals := Strings(elem)
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}

// Floats returns the floating point values of elem.
func Floats(elem *dicom.Element) []float64 {
	if elem == nil || elem.Value == nil || elem.Value.ValueType() != dicom.Floats {
		return nil
	}
	vals, _ := elem.Value.GetValue().([]float64)
	return vals
}

// Items returns the elements of every item of a sequence element.
func Items(elem *dicom.Element) [][]*dicom.Element {
	if elem == nil || elem.Value == nil || elem.Value.ValueType() != dicom.Sequences {
		return nil
	}
	seq, _ := elem.Value.GetValue().([]*dicom.SequenceItemValue)
	ret := make([][]*dicom.Element, 0, len(seq))
	for _, item := range seq {
		elems, _ := item.GetValue().([]*dicom.Element)
		ret = append(ret, elems)
	}
	return ret
}

// FirstItem returns the elements of the first item of a sequence element.
func FirstItem(elem *dicom.Element) []*dicom.Element {
	items := Items(elem)
	if len(items) == 0 {
		return nil
	}
	return items[0]
}
