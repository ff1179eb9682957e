// Package dcmio converts between flat tag maps and suyashkumar/dicom datasets
// and reads and writes DICOM Part 10 files.
package dcmio

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

var (
	ErrUnknownTag       = errors.New("dcmio: unknown tag")
	ErrUnsupportedValue = errors.New("dcmio: unsupported value")
)

// Tags is a flat mapping from a tag key to its value. A key is either a
// dictionary keyword ("Modality") or eight hex digits ("00080060"),
// optionally prefixed with "x". Values are strings, numbers, byte slices or,
// for sequences, a slice of Tags with one entry per item.
type Tags map[string]interface{}

// Clone returns a shallow copy of tags.
func (tags Tags) Clone() Tags {
	ret := make(Tags, len(tags))
	for k, v := range tags {
		ret[k] = v
	}
	return ret
}

// ResolveTag maps a tag key to its tag.
func ResolveTag(key string) (tag.Tag, error) {
	hex := strings.TrimPrefix(strings.TrimPrefix(key, "x"), "X")
	if len(hex) == 8 {
		if n, err := strconv.ParseUint(hex, 16, 32); err == nil {
			return tag.Tag{Group: uint16(n >> 16), Element: uint16(n & 0xffff)}, nil
		}
	}
	info, err := tag.FindByName(key)
	if err != nil {
		return tag.Tag{}, fmt.Errorf("%w: %s", ErrUnknownTag, key)
	}
	return info.Tag, nil
}

// BuildDataset turns tags into a dataset with elements in ascending tag
// order. Keys holding nil are skipped.
func BuildDataset(tags Tags) (dicom.Dataset, error) {
	elems, err := buildElements(tags)
	if err != nil {
		return dicom.Dataset{}, err
	}
	return dicom.Dataset{Elements: elems}, nil
}

func buildElements(tags Tags) ([]*dicom.Element, error) {
	elems := make([]*dicom.Element, 0, len(tags))
	for key, v := range tags {
		if v == nil {
			continue
		}
		t, err := ResolveTag(key)
		if err != nil {
			return nil, err
		}
		data, err := toElementData(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		elem, err := dicom.NewElement(t, data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		elems = append(elems, elem)
	}
	sortElements(elems)
	return elems, nil
}

func sortElements(elems []*dicom.Element) {
	sort.Slice(elems, func(i, j int) bool {
		if elems[i].Tag.Group != elems[j].Tag.Group {
			return elems[i].Tag.Group < elems[j].Tag.Group
		}
		return elems[i].Tag.Element < elems[j].Tag.Element
	})
}

// toElementData converts a tag value into one of the data kinds
// dicom.NewElement accepts.
func toElementData(v interface{}) (interface{}, error) {
	switch val := v.(type) {
	case string:
		return []string{val}, nil
	case []string:
		return val, nil
	case int:
		return []int{val}, nil
	case []int:
		return val, nil
	case float64:
		return []float64{val}, nil
	case float32:
		return []float64{float64(val)}, nil
	case []float64:
		return val, nil
	case []float32:
		ret := make([]float64, len(val))
		for i := range val {
			ret[i] = float64(val[i])
		}
		return ret, nil
	case []byte:
		return val, nil
	case Tags:
		return toItems([]Tags{val})
	case map[string]interface{}:
		return toItems([]Tags{val})
	case []Tags:
		return toItems(val)
	case []map[string]interface{}:
		items := make([]Tags, len(val))
		for i := range val {
			items[i] = val[i]
		}
		return toItems(items)
	case []interface{}:
		return fromInterfaces(val)
	}
	return nil, fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
}

// fromInterfaces handles values decoded from JSON, where the element kind is
// only known by inspecting the entries.
func fromInterfaces(vals []interface{}) (interface{}, error) {
	if len(vals) == 0 {
		return []string{}, nil
	}
	switch vals[0].(type) {
	case string:
		ret := make([]string, len(vals))
		for i, v := range vals {
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("%w: mixed slice", ErrUnsupportedValue)
			}
			ret[i] = s
		}
		return ret, nil
	case float64:
		ret := make([]float64, len(vals))
		for i, v := range vals {
			f, ok := v.(float64)
			if !ok {
				return nil, fmt.Errorf("%w: mixed slice", ErrUnsupportedValue)
			}
			ret[i] = f
		}
		return ret, nil
	case map[string]interface{}, Tags:
		items := make([]Tags, len(vals))
		for i, v := range vals {
			switch m := v.(type) {
			case map[string]interface{}:
				items[i] = m
			case Tags:
				items[i] = m
			default:
				return nil, fmt.Errorf("%w: mixed slice", ErrUnsupportedValue)
			}
		}
		return toItems(items)
	}
	return nil, fmt.Errorf("%w: []%T", ErrUnsupportedValue, vals[0])
}

func toItems(items []Tags) ([][]*dicom.Element, error) {
	ret := make([][]*dicom.Element, 0, len(items))
	for _, item := range items {
		elems, err := buildElements(item)
		if err != nil {
			return nil, err
		}
		ret = append(ret, elems)
	}
	return ret, nil
}
