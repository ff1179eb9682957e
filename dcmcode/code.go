// Package dcmcode holds coded concepts (DICOM Part 3 Section 8) and the
// concept names used by measurement group reports.
package dcmcode

import (
	"fmt"

	"vindr-sr/dcmio"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

const SchemeDCM = "DCM"

var (
	tagCodeValue              = tag.Tag{Group: 0x0008, Element: 0x0100}
	tagCodingSchemeDesignator = tag.Tag{Group: 0x0008, Element: 0x0102}
	tagCodeMeaning            = tag.Tag{Group: 0x0008, Element: 0x0104}
)

// Code is a coded value triplet.
type Code struct {
	Value            string `json:"code_value"`
	SchemeDesignator string `json:"coding_scheme_designator"`
	Meaning          string `json:"code_meaning"`
}

var (
	MeasurementGroup   = Code{Value: "125007", SchemeDesignator: SchemeDCM, Meaning: "Measurement Group"}
	ImageRegion        = Code{Value: "111030", SchemeDesignator: SchemeDCM, Meaning: "Image Region"}
	SourceImage        = Code{Value: "121112", SchemeDesignator: SchemeDCM, Meaning: "Source of Measurement"}
	TrackingIdentifier = Code{Value: "112039", SchemeDesignator: SchemeDCM, Meaning: "Tracking Identifier"}
	ShortLabel         = Code{Value: "125309", SchemeDesignator: SchemeDCM, Meaning: "Short label"}
)

var registry = []Code{
	MeasurementGroup,
	ImageRegion,
	SourceImage,
	TrackingIdentifier,
	ShortLabel,
}

// Lookup finds a registered code by value and scheme.
func Lookup(value, scheme string) (Code, bool) {
	for _, c := range registry {
		if c.Value == value && c.SchemeDesignator == scheme {
			return c, true
		}
	}
	return Code{}, false
}

// Equal compares value and scheme. Meanings are free text and may differ
// between producers.
func (c Code) Equal(other Code) bool {
	return c.Value == other.Value && c.SchemeDesignator == other.SchemeDesignator
}

func (c Code) String() string {
	return fmt.Sprintf("(%s, %s, %q)", c.Value, c.SchemeDesignator, c.Meaning)
}

// Tags returns the code as one code sequence item.
func (c Code) Tags() dcmio.Tags {
	return dcmio.Tags{
		"CodeValue":              c.Value,
		"CodingSchemeDesignator": c.SchemeDesignator,
		"CodeMeaning":            c.Meaning,
	}
}

// FromElements reads a code from a code sequence item. It returns nil when
// the item carries no code value. A missing meaning is filled in for
// registered codes.
func FromElements(elems []*dicom.Element) *Code {
	value := dcmio.String(dcmio.Find(elems, tagCodeValue))
	if value == "" {
		return nil
	}
	c := &Code{
		Value:            value,
		SchemeDesignator: dcmio.String(dcmio.Find(elems, tagCodingSchemeDesignator)),
		Meaning:          dcmio.String(dcmio.Find(elems, tagCodeMeaning)),
	}
	if c.Meaning == "" {
		if known, found := Lookup(c.Value, c.SchemeDesignator); found {
			c.Meaning = known.Meaning
		}
	}
	return c
}
