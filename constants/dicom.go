package constants

// Transfer syntaxes, DICOM Part 5 Section 10
const (
	ImplicitVRLittleEndian = "1.2.840.10008.1.2"
	ExplicitVRLittleEndian = "1.2.840.10008.1.2.1"
)

// SR Storage SOP classes, DICOM Part 4 Annex B.5
const (
	BasicTextSRStorage     = "1.2.840.10008.5.1.4.1.1.88.11"
	EnhancedSRStorage      = "1.2.840.10008.5.1.4.1.1.88.22"
	ComprehensiveSRStorage = "1.2.840.10008.5.1.4.1.1.88.33"
)

// Placeholder identifiers written on every exported report. They are not
// derived from the annotation group; see the series UID policy.
const (
	PlaceholderSOPInstanceUID    = "2.25.133716190247651803519458238473316101"
	PlaceholderSeriesInstanceUID = "2.25.133716190247651803519458238473316102"
)

// Document status flags, DICOM Part 3 C.17.2
const (
	CompletionFlagPartial      = "PARTIAL"
	CompletionFlagComplete     = "COMPLETE"
	VerificationFlagUnverified = "UNVERIFIED"
	VerificationFlagVerified   = "VERIFIED"
)

const (
	ContinuitySeparate   = "SEPARATE"
	ContinuityContinuous = "CONTINUOUS"
)

// FileMetaInformationVersion is the fixed (0002,0001) value.
var FileMetaInformationVersion = []byte{0x00, 0x01}
