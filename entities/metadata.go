package entities

// InstanceMeta identifies one stored DICOM instance. OrthancID is only set
// for instances resolved through Orthanc.
type InstanceMeta struct {
	OrthancID         string `json:"orthanc_id,omitempty"`
	StudyInstanceUID  string `json:"study_instance_uid,omitempty"`
	SeriesInstanceUID string `json:"series_instance_uid,omitempty"`
	SOPInstanceUID    string `json:"sop_instance_uid,omitempty"`
}
