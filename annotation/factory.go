package annotation

import (
	"errors"
	"fmt"
	"time"

	"vindr-sr/constants"
	"vindr-sr/dcmcode"
	"vindr-sr/dcmdate"
	"vindr-sr/dcmio"
	"vindr-sr/helper"
	"vindr-sr/scoord"
	"vindr-sr/srcontent"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
	"go.uber.org/zap"
)

// Warnings returned by CheckElements.
const (
	WarnNoRootConceptName   = "No root concept name code"
	WarnNotMeasurementGroup = "Not a measurement group"
)

// ErrMalformedInput is returned by Create when a required element is missing.
var ErrMalformedInput = errors.New("annotation: malformed input")

// Factory translates between annotation groups and measurement group SR
// datasets.
//
// A Factory keeps the last CheckElements result for Warning and is meant to
// be owned by one operation at a time: create one per request and discard
// it. It does no locking.
type Factory struct {
	logger          *zap.Logger
	seriesUIDPolicy string
	now             func() time.Time
	guid            func() string

	warning string
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithSeriesUIDPolicy selects how ToDicom fills SeriesInstanceUID:
// constants.SeriesUIDPolicyConstant writes the fixed placeholder,
// constants.SeriesUIDPolicyGenerate a fresh UID per call.
func WithSeriesUIDPolicy(policy string) FactoryOption {
	return func(f *Factory) {
		f.seriesUIDPolicy = policy
	}
}

// WithClock overrides the clock used for content dates and times.
func WithClock(now func() time.Time) FactoryOption {
	return func(f *Factory) {
		f.now = now
	}
}

// WithGUID overrides the generator for imported annotation ids.
func WithGUID(guid func() string) FactoryOption {
	return func(f *Factory) {
		f.guid = guid
	}
}

// NewFactory returns a Factory using the constant series UID policy unless
// an option says otherwise.
func NewFactory(logger *zap.Logger, opts ...FactoryOption) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Factory{
		logger:          logger,
		seriesUIDPolicy: constants.SeriesUIDPolicyConstant,
		now:             time.Now,
		guid:            helper.GUID,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CheckElements reports whether ds looks like a measurement group report.
// It returns "" when it does, a warning otherwise. The result is also kept
// for Warning.
func (f *Factory) CheckElements(ds dicom.Dataset) string {
	root := srcontent.Read(ds)
	switch {
	case root.ConceptNameCode == nil:
		f.warning = WarnNoRootConceptName
	case !root.IsA(dcmcode.MeasurementGroup):
		f.warning = WarnNotMeasurementGroup
	default:
		f.warning = ""
	}
	return f.warning
}

// Warning returns the result of the last CheckElements call.
func (f *Factory) Warning() string {
	return f.warning
}

// Create builds an annotation group from a measurement group report. Each
// SCOORD child of the root becomes one annotation, in order.
func (f *Factory) Create(ds dicom.Dataset) (*AnnotationGroup, error) {
	meta, err := decodeStudyMeta(ds)
	if err != nil {
		return nil, err
	}

	root := srcontent.Read(ds)
	antns := make([]*Annotation, 0, len(root.ContentSequence))
	for i, node := range root.ContentSequence {
		if node.ValueType != srcontent.SCoord {
			continue
		}
		antn, err := f.annotationFromNode(node)
		if err != nil {
			return nil, fmt.Errorf("content item %d: %w", i+1, err)
		}
		antns = append(antns, antn)
	}

	group, err := NewAnnotationGroup(antns...)
	if err != nil {
		return nil, err
	}
	for _, key := range []string{MetaModality, MetaStudyInstanceUID, MetaReferencedSeriesSequence} {
		if v, found := meta[key]; found {
			group.SetMeta(key, v)
		}
	}
	return group, nil
}

// decodeStudyMeta reads the group metadata, failing on a missing Modality
// or StudyInstanceUID.
func decodeStudyMeta(ds dicom.Dataset) (map[string]interface{}, error) {
	meta := make(map[string]interface{})

	modality := dcmio.Find(ds.Elements, tag.Modality)
	if modality == nil {
		return nil, fmt.Errorf("%w: missing Modality (0008,0060)", ErrMalformedInput)
	}
	meta[MetaModality] = dcmio.String(modality)

	studyUID := dcmio.Find(ds.Elements, tag.StudyInstanceUID)
	if studyUID == nil {
		return nil, fmt.Errorf("%w: missing StudyInstanceUID (0020,000D)", ErrMalformedInput)
	}
	meta[MetaStudyInstanceUID] = dcmio.String(studyUID)

	item := dcmio.FirstItem(dcmio.Find(ds.Elements, tag.ReferencedSeriesSequence))
	if seriesUID := dcmio.Find(item, tag.SeriesInstanceUID); seriesUID != nil {
		meta[MetaReferencedSeriesSequence] = []dcmio.Tags{
			{"SeriesInstanceUID": dcmio.String(seriesUID)},
		}
	}
	return meta, nil
}

type childKey struct {
	valueType    srcontent.ValueType
	relationship srcontent.RelationshipType
}

// childSetters maps the direct children of a SCOORD node to the annotation
// field they fill. Children are visited in order, so the last match wins.
var childSetters = map[childKey]func(*Annotation, *srcontent.Content){
	{srcontent.UIDRef, srcontent.HasProperties}: func(antn *Annotation, c *srcontent.Content) {
		antn.ID = c.UID
	},
	{srcontent.Text, srcontent.HasProperties}: func(antn *Annotation, c *srcontent.Content) {
		antn.TextExpr = c.TextValue
	},
	{srcontent.Image, srcontent.SelectedFrom}: func(antn *Annotation, c *srcontent.Content) {
		antn.ReferenceSOPUID = ""
		if c.ReferencedSOP != nil {
			antn.ReferenceSOPUID = c.ReferencedSOP.SOPInstanceUID
		}
	},
}

func (f *Factory) annotationFromNode(node *srcontent.Content) (*Annotation, error) {
	value := scoord.Value{}
	if node.SCoord != nil {
		value = *node.SCoord
	}
	shape, err := scoord.Decode(value)
	if err != nil {
		return nil, err
	}

	antn := &Annotation{
		ID:        f.guid(),
		MathShape: shape,
	}
	for _, child := range node.ContentSequence {
		if set, found := childSetters[childKey{child.ValueType, child.RelationshipType}]; found {
			set(antn, child)
		}
	}
	return antn, nil
}

// ToDicom encodes group as a Basic Text SR dataset. extraTags are merged
// last and override generated tags.
func (f *Factory) ToDicom(group *AnnotationGroup, extraTags dcmio.Tags) (dicom.Dataset, error) {
	date, tm := dcmdate.FromTime(f.now())

	tags := dcmio.Tags{
		"TransferSyntaxUID": constants.ExplicitVRLittleEndian,
		"SOPClassUID":       constants.BasicTextSRStorage,
		"SOPInstanceUID":    constants.PlaceholderSOPInstanceUID,
		"CompletionFlag":    constants.CompletionFlagPartial,
		"VerificationFlag":  constants.VerificationFlagUnverified,
		"ContentDate":       date.String(),
		"ContentTime":       tm.String(),

		MetaModality:                 group.Meta(MetaModality),
		MetaStudyInstanceUID:         group.Meta(MetaStudyInstanceUID),
		MetaReferencedSeriesSequence: group.Meta(MetaReferencedSeriesSequence),

		"SeriesInstanceUID": f.seriesInstanceUID(),
	}

	if group.Len() > 0 {
		root := &srcontent.Content{
			ValueType:           srcontent.Container,
			ConceptNameCode:     conceptName(dcmcode.MeasurementGroup),
			ContinuityOfContent: constants.ContinuitySeparate,
		}
		for _, antn := range group.list {
			node, err := annotationNode(antn)
			if err != nil {
				return dicom.Dataset{}, fmt.Errorf("annotation %s: %w", antn.ID, err)
			}
			root.Append(node)
		}
		for k, v := range srcontent.Write(root) {
			tags[k] = v
		}
	}

	keys, err := f.mergeExtraTags(tags, extraTags)
	if err != nil {
		return dicom.Dataset{}, err
	}

	// File meta mirrors the final SOP class and instance unless given.
	setDefault := func(t tag.Tag, key string, v interface{}) {
		if _, found := keys[t]; !found {
			tags[key] = v
		}
	}
	setDefault(tag.FileMetaInformationVersion, "FileMetaInformationVersion", constants.FileMetaInformationVersion)
	setDefault(tag.MediaStorageSOPClassUID, "MediaStorageSOPClassUID", tags[keys[tag.SOPClassUID]])
	setDefault(tag.MediaStorageSOPInstanceUID, "MediaStorageSOPInstanceUID", tags[keys[tag.SOPInstanceUID]])

	return dcmio.BuildDataset(tags)
}

func (f *Factory) seriesInstanceUID() string {
	if f.seriesUIDPolicy == constants.SeriesUIDPolicyGenerate {
		return helper.NewUID()
	}
	return constants.PlaceholderSeriesInstanceUID
}

// mergeExtraTags copies extra into tags. Keys naming the same tag in
// different forms ("Modality", "00080060") count as the same tag. It
// returns the key now holding each tag.
func (f *Factory) mergeExtraTags(tags, extra dcmio.Tags) (map[tag.Tag]string, error) {
	keys := make(map[tag.Tag]string, len(tags)+len(extra))
	for k := range tags {
		t, err := dcmio.ResolveTag(k)
		if err != nil {
			return nil, err
		}
		keys[t] = k
	}

	for k, v := range extra {
		t, err := dcmio.ResolveTag(k)
		if err != nil {
			return nil, err
		}
		if existing, found := keys[t]; found {
			f.logger.Debug("Tag overwritten by extra tags", zap.String("tag", k))
			delete(tags, existing)
		}
		tags[k] = v
		keys[t] = k
	}
	return keys, nil
}

func annotationNode(antn *Annotation) (*srcontent.Content, error) {
	value, err := scoord.Encode(antn.MathShape)
	if err != nil {
		return nil, err
	}

	node := &srcontent.Content{
		ValueType:        srcontent.SCoord,
		RelationshipType: srcontent.Contains,
		ConceptNameCode:  conceptName(dcmcode.ImageRegion),
		SCoord:           &value,
	}
	return node.Append(
		&srcontent.Content{
			ValueType:        srcontent.Image,
			RelationshipType: srcontent.SelectedFrom,
			ConceptNameCode:  conceptName(dcmcode.SourceImage),
			ReferencedSOP:    &srcontent.SOPReference{SOPInstanceUID: antn.ReferenceSOPUID},
		},
		&srcontent.Content{
			ValueType:        srcontent.UIDRef,
			RelationshipType: srcontent.HasProperties,
			ConceptNameCode:  conceptName(dcmcode.TrackingIdentifier),
			UID:              antn.ID,
		},
		&srcontent.Content{
			ValueType:        srcontent.Text,
			RelationshipType: srcontent.HasProperties,
			ConceptNameCode:  conceptName(dcmcode.ShortLabel),
			TextValue:        antn.TextExpr,
		},
	), nil
}

func conceptName(c dcmcode.Code) *dcmcode.Code {
	return &c
}
