package orthanc

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"
	"net/http"
	"strings"
	"time"

	"vindr-sr/constants"
	"vindr-sr/entities"

	"github.com/dustin/go-humanize"
	"github.com/gojektech/heimdall/v6/httpclient"
	"go.uber.org/zap"
)

// ErrNotFound is returned when a lookup matches nothing.
var ErrNotFound = errors.New("orthanc: not found")

type kvStr2Inf = map[string]interface{}

// Find scopes. The scope prefixes the UID attribute queried.
const (
	ScopeStudy  = "Study"
	ScopeSeries = "Series"
	ScopeSOP    = "SOP"
)

// OrthanC is a client for the Orthanc REST API.
type OrthanC struct {
	uri        string
	httpClient *httpclient.Client
	logger     *zap.Logger
}

// UploadResult is Orthanc's reply to a stored instance.
type UploadResult struct {
	ID          string `json:"ID"`
	ParentStudy string `json:"ParentStudy"`
	Path        string `json:"Path"`
	Status      string `json:"Status"`
}

func NewOrthanC(uri string, insecure bool, logger *zap.Logger) *OrthanC {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := 5000 * time.Millisecond

	tr := http.DefaultTransport.(*http.Transport).Clone()
	if insecure {
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	client := &http.Client{Transport: tr, Timeout: timeout}

	httpClient := httpclient.NewClient(
		httpclient.WithHTTPClient(client),
		httpclient.WithRetryCount(3),
	)

	return &OrthanC{
		uri:        uri,
		httpClient: httpClient,
		logger:     logger,
	}
}

// FindObjectByUID returns the Orthanc id of the first object at scope whose
// UID is uid.
func (orthanc *OrthanC) FindObjectByUID(scope, uid string) (string, error) {
	var buf bytes.Buffer

	level := ""
	switch scope {
	case ScopeStudy, ScopeSeries:
		level = scope
	case ScopeSOP:
		level = "Instance"
	default:
		return "", fmt.Errorf("orthanc: unknown scope %q", scope)
	}

	body := &kvStr2Inf{
		"Level": level,
		"Limit": constants.DefaultLimit,
		"Query": kvStr2Inf{
			fmt.Sprintf("%sInstanceUID", scope): uid,
		},
	}
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return "", fmt.Errorf("Error encoding query: %s", err)
	}
	req, err := http.NewRequest(http.MethodPost, fmt.Sprintf("%s/tools/find", orthanc.uri), &buf)
	if err != nil {
		return "", err
	}
	res, err := orthanc.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return "", errors.New(res.Status)
	}

	ids := make([]string, 0)
	if err := json.NewDecoder(res.Body).Decode(&ids); err != nil {
		return "", fmt.Errorf("Error parsing the response body: %s", err)
	}
	if len(ids) == 0 {
		return "", fmt.Errorf("%w: %s %s", ErrNotFound, scope, uid)
	}
	return ids[0], nil
}

// GetInstanceMeta reads the identifying UIDs of an instance.
func (orthanc *OrthanC) GetInstanceMeta(orthancID string) (*entities.InstanceMeta, error) {
	req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/instances/%s/simplified-tags", orthanc.uri, orthancID), nil)
	if err != nil {
		return nil, err
	}
	res, err := orthanc.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: instance %s", ErrNotFound, orthancID)
	}
	if res.StatusCode != http.StatusOK {
		return nil, errors.New(res.Status)
	}

	tags := make(map[string]interface{})
	if err := json.NewDecoder(res.Body).Decode(&tags); err != nil {
		return nil, err
	}
	str := func(key string) string {
		s, _ := tags[key].(string)
		return s
	}
	return &entities.InstanceMeta{
		OrthancID:         orthancID,
		StudyInstanceUID:  str("StudyInstanceUID"),
		SeriesInstanceUID: str("SeriesInstanceUID"),
		SOPInstanceUID:    str("SOPInstanceUID"),
	}, nil
}

// ResolveInstance reads the meta of an instance named either by its Orthanc
// id or by its SOP Instance UID.
func (orthanc *OrthanC) ResolveInstance(idOrUID string) (*entities.InstanceMeta, error) {
	orthancID := idOrUID
	if isDicomUID(idOrUID) {
		id, err := orthanc.FindObjectByUID(ScopeSOP, idOrUID)
		if err != nil {
			return nil, err
		}
		orthancID = id
	}
	return orthanc.GetInstanceMeta(orthancID)
}

// Orthanc ids are dash separated hex groups, so a dotted digit string can
// only be a UID.
func isDicomUID(s string) bool {
	if s == "" || !strings.Contains(s, ".") {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' {
			return false
		}
	}
	return true
}

// DownloadInstance returns the Part 10 file of an instance.
func (orthanc *OrthanC) DownloadInstance(orthancID string) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/instances/%s/file", orthanc.uri, orthancID), nil)
	if err != nil {
		return nil, err
	}
	res, err := orthanc.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: instance %s", ErrNotFound, orthancID)
	}
	if res.StatusCode != http.StatusOK {
		return nil, errors.New(res.Status)
	}

	data, err := ioutil.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	orthanc.logger.Debug("Downloaded instance",
		zap.String("id", orthancID),
		zap.String("size", humanize.Bytes(uint64(len(data)))))
	return data, nil
}

// UploadInstance stores a Part 10 file.
func (orthanc *OrthanC) UploadInstance(data []byte) (*UploadResult, error) {
	req, err := http.NewRequest(http.MethodPost, fmt.Sprintf("%s/instances", orthanc.uri), bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", constants.MimeTypeDICOM)

	res, err := orthanc.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, errors.New(res.Status)
	}

	var result UploadResult
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("Error parsing the response body: %s", err)
	}
	orthanc.logger.Debug("Uploaded instance",
		zap.String("id", result.ID),
		zap.String("status", result.Status),
		zap.String("size", humanize.Bytes(uint64(len(data)))))
	return &result, nil
}
