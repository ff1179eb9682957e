package constants

const (
	ENV = "API_ENV"

	ParamInstanceID       = "instance_id"
	ParamStudyInstanceUID = "study_instance_uid"
	ParamFile             = "file"
	ParamIndex            = "index"
	ParamArchive          = "archive"
	ParamObjectName       = "object_name"

	ParamLimit  = "_limit"
	ParamOffset = "_offset"
	ParamSort   = "_sort"
	ParamSearch = "_search"

	EventCreate = "CREATED"

	DefaultLimit  = 100
	DefaultOffset = 0

	ServerOK           = 0
	ServerError        = 1
	ServerInvalidData  = 2
	ServerNotFound     = 3
	ServerUnauthorized = 4
	ServerForbidden    = 5

	ExportStatusPending = "PENDING"
	ExportStatusDone    = "DONE"
	ExportStatusFailed  = "FAILED"

	SeriesUIDPolicyConstant = "constant"
	SeriesUIDPolicyGenerate = "generate"

	MimeTypeDICOM = "application/dicom"
)
