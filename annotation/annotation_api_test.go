package annotation

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"vindr-sr/constants"
	"vindr-sr/dcmio"
	"vindr-sr/entities"
	"vindr-sr/mw"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suyashkumar/dicom/pkg/tag"
)

type memStore struct {
	groups map[string]*AnnotationGroup
	err    error

	lastQueries map[string][]string
	lastPaging  []interface{}
}

func (m *memStore) SaveGroup(group *AnnotationGroup) error {
	if m.err != nil {
		return m.err
	}
	m.groups[group.MetaString(MetaStudyInstanceUID)] = group
	return nil
}

func (m *memStore) GetGroup(studyUID string) (*AnnotationGroup, error) {
	return m.groups[studyUID], m.err
}

func (m *memStore) GetSlice(queries map[string][]string, qs string, from int, size int, sort string) ([]AnnotationDoc, *entities.ESReturn, error) {
	m.lastQueries = queries
	m.lastPaging = []interface{}{qs, from, size, sort}
	if m.err != nil {
		return nil, nil, m.err
	}
	docs := make([]AnnotationDoc, 0)
	for _, group := range m.groups {
		groupDocs, err := NewAnnotationDocs(group, 0)
		if err != nil {
			return nil, nil, err
		}
		docs = append(docs, groupDocs...)
	}
	esReturn := &entities.ESReturn{}
	esReturn.Hits.Total.Value = len(docs)
	return docs, esReturn, nil
}

type memSource struct {
	files map[string][]byte
	sops  map[string]string
}

func (m *memSource) ResolveInstance(idOrUID string) (*entities.InstanceMeta, error) {
	id := idOrUID
	if mapped, found := m.sops[idOrUID]; found {
		id = mapped
	}
	if _, found := m.files[id]; !found {
		return nil, errors.New("404 Not Found")
	}
	return &entities.InstanceMeta{OrthancID: id, StudyInstanceUID: "1.2.3"}, nil
}

func (m *memSource) DownloadInstance(id string) ([]byte, error) {
	data, found := m.files[id]
	if !found {
		return nil, errors.New("404 Not Found")
	}
	return data, nil
}

type memQueue struct {
	groups    []*AnnotationGroup
	extraTags []dcmio.Tags
}

func (m *memQueue) EnqueueExport(group *AnnotationGroup, extraTags dcmio.Tags) (string, error) {
	m.groups = append(m.groups, group)
	m.extraTags = append(m.extraTags, extraTags)
	return "1.2.3/report.dcm", nil
}

func (m *memQueue) FetchExport(objectName string) ([]byte, error) {
	if objectName != "1.2.3/report.dcm" {
		return nil, errors.New("not found")
	}
	return []byte("report"), nil
}

type apiResponse struct {
	ErrorCode int             `json:"error_code"`
	Count     int             `json:"count"`
	Data      json.RawMessage `json:"data"`
	Message   string          `json:"message"`
	Meta      json.RawMessage `json:"meta"`
}

type apiFixture struct {
	engine *gin.Engine
	store  *memStore
	source *memSource
	queue  *memQueue
}

func newAPIFixture(t *testing.T) *apiFixture {
	gin.SetMode(gin.TestMode)
	fx := &apiFixture{
		engine: gin.New(),
		store:  &memStore{groups: map[string]*AnnotationGroup{}},
		source: &memSource{files: map[string][]byte{}, sops: map[string]string{}},
		queue:  &memQueue{},
	}
	NewAnnotationAPI(fx.store, fx.source, fx.queue, nil, constants.SeriesUIDPolicyConstant, nil).InitRoute(fx.engine, "/annotations")
	return fx
}

func (fx *apiFixture) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	fx.engine.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) apiResponse {
	var resp apiResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func reportFile(t *testing.T, group *AnnotationGroup) []byte {
	ds, err := newTestFactory().ToDicom(group, nil)
	require.NoError(t, err)
	data, err := dcmio.Encode(ds)
	require.NoError(t, err)
	return data
}

func uploadRequest(t *testing.T, target string, data []byte) *http.Request {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(constants.ParamFile, "report.dcm")
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func exportRequest(t *testing.T, target string, group *AnnotationGroup, extraTags dcmio.Tags) *http.Request {
	raw, err := json.Marshal(group)
	require.NoError(t, err)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &body))
	if extraTags != nil {
		body["extra_tags"] = extraTags
	}
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestAPICheck(t *testing.T) {
	fx := newAPIFixture(t)

	w := fx.do(uploadRequest(t, "/annotations/check", reportFile(t, sampleGroup(t))))
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	assert.Equal(t, constants.ServerOK, resp.ErrorCode)
	assert.JSONEq(t, `{"warning":""}`, string(resp.Data))

	empty, err := NewAnnotationGroup()
	require.NoError(t, err)
	empty.SetMeta(MetaModality, "MR")
	empty.SetMeta(MetaStudyInstanceUID, "1.2.3")
	w = fx.do(uploadRequest(t, "/annotations/check", reportFile(t, empty)))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"warning":"`+WarnNoRootConceptName+`"}`, string(decodeResponse(t, w).Data))
}

func TestAPICheckWithoutFile(t *testing.T) {
	fx := newAPIFixture(t)
	w := fx.do(httptest.NewRequest(http.MethodPost, "/annotations/check", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, constants.ServerInvalidData, decodeResponse(t, w).ErrorCode)
}

func TestAPIImport(t *testing.T) {
	fx := newAPIFixture(t)
	group := sampleGroup(t)

	w := fx.do(uploadRequest(t, "/annotations/import", reportFile(t, group)))
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	assert.Equal(t, 3, resp.Count)
	assert.Empty(t, fx.store.groups)

	var got AnnotationGroup
	require.NoError(t, json.Unmarshal(resp.Data, &got))
	assertSameAnnotations(t, group.List(), got.List())
	assertSameMeta(t, group, &got)
}

func TestAPIImportAndIndex(t *testing.T) {
	fx := newAPIFixture(t)

	w := fx.do(uploadRequest(t, "/annotations/import?index=true", reportFile(t, sampleGroup(t))))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, fx.store.groups, "1.2.3")
	assert.Equal(t, 3, fx.store.groups["1.2.3"].Len())

	fx.store.err = errors.New("es down")
	w = fx.do(uploadRequest(t, "/annotations/import?index=true", reportFile(t, sampleGroup(t))))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestAPIImportMalformed(t *testing.T) {
	fx := newAPIFixture(t)
	group, err := NewAnnotationGroup()
	require.NoError(t, err)

	w := fx.do(uploadRequest(t, "/annotations/import", reportFile(t, group)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeResponse(t, w)
	assert.Equal(t, constants.ServerInvalidData, resp.ErrorCode)
	assert.Contains(t, resp.Message, "Modality")

	w = fx.do(uploadRequest(t, "/annotations/import", []byte("not a dicom file")))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAPIExport(t *testing.T) {
	fx := newAPIFixture(t)
	group := sampleGroup(t)

	w := fx.do(exportRequest(t, "/annotations/export", group, dcmio.Tags{"PatientID": "P-1"}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, constants.MimeTypeDICOM, w.Header().Get("Content-Type"))

	ds, err := dcmio.Decode(w.Body.Bytes())
	require.NoError(t, err)
	got, err := newTestFactory().Create(ds)
	require.NoError(t, err)
	assertSameAnnotations(t, group.List(), got.List())

	assert.Equal(t, "P-1", dcmio.String(dcmio.Find(ds.Elements, tag.PatientID)))
}

func TestAPIExportInvalid(t *testing.T) {
	fx := newAPIFixture(t)

	group := sampleGroup(t)
	group.list[1].ReferenceSOPUID = ""
	w := fx.do(exportRequest(t, "/annotations/export", group, nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeResponse(t, w).Message, "invalid annotation b")

	w = fx.do(exportRequest(t, "/annotations/export", sampleGroup(t), dcmio.Tags{"NoSuchKeyword": "x"}))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/annotations/export", bytes.NewBufferString(`{"annotations":[{"shape":{"graphic_type":"POLYGON","graphic_data":[1,2]}}]}`))
	w = fx.do(req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAPIExportArchive(t *testing.T) {
	fx := newAPIFixture(t)

	w := fx.do(exportRequest(t, "/annotations/export?archive=true", sampleGroup(t), dcmio.Tags{"PatientID": "P-1"}))
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"object_name":"1.2.3/report.dcm","status":"PENDING"}`, string(decodeResponse(t, w).Data))

	require.Len(t, fx.queue.groups, 1)
	assert.Equal(t, 3, fx.queue.groups[0].Len())
	assert.Equal(t, "P-1", fx.queue.extraTags[0]["PatientID"])
}

func TestAPIExportArchiveInvalidTags(t *testing.T) {
	fx := newAPIFixture(t)

	w := fx.do(exportRequest(t, "/annotations/export?archive=true", sampleGroup(t), dcmio.Tags{"NoSuchKeyword": "x"}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, constants.ServerInvalidData, decodeResponse(t, w).ErrorCode)
	assert.Empty(t, fx.queue.groups)
}

func TestAPIFetch(t *testing.T) {
	fx := newAPIFixture(t)
	fx.store.groups["1.2.3"] = sampleGroup(t)

	w := fx.do(httptest.NewRequest(http.MethodGet, "/annotations?study_instance_uid=1.2.3", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 3, decodeResponse(t, w).Count)

	w = fx.do(httptest.NewRequest(http.MethodGet, "/annotations?study_instance_uid=4.5.6", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, constants.ServerNotFound, decodeResponse(t, w).ErrorCode)

	w = fx.do(httptest.NewRequest(http.MethodGet, "/annotations", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAPIImportFromOrthanc(t *testing.T) {
	fx := newAPIFixture(t)
	fx.source.files["abc-123"] = reportFile(t, sampleGroup(t))
	fx.source.sops["1.2.3.9"] = "abc-123"

	w := fx.do(httptest.NewRequest(http.MethodPost, "/annotations/orthanc/abc-123?index=true", nil))
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	assert.Equal(t, 3, resp.Count)
	assert.JSONEq(t, `{"instance":{"orthanc_id":"abc-123","study_instance_uid":"1.2.3"}}`, string(resp.Meta))
	assert.Contains(t, fx.store.groups, "1.2.3")

	w = fx.do(httptest.NewRequest(http.MethodPost, "/annotations/orthanc/1.2.3.9", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(decodeResponse(t, w).Meta), `"orthanc_id":"abc-123"`)

	w = fx.do(httptest.NewRequest(http.MethodPost, "/annotations/orthanc/missing", nil))
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestAPIDisabledCollaborators(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	NewAnnotationAPI(nil, nil, nil, nil, "", nil).InitRoute(engine, "/annotations")

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/annotations?study_instance_uid=1.2.3", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/annotations/orthanc/abc", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAPIDownloadExport(t *testing.T) {
	fx := newAPIFixture(t)

	w := fx.do(httptest.NewRequest(http.MethodGet, "/annotations/exports/1.2.3/report.dcm", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "report", w.Body.String())
	assert.Equal(t, "attachment; filename=report.dcm", w.Header().Get("Content-Disposition"))

	w = fx.do(httptest.NewRequest(http.MethodGet, "/annotations/exports/4.5.6/other.dcm", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPISearchDocs(t *testing.T) {
	fx := newAPIFixture(t)
	fx.store.groups["1.2.3"] = sampleGroup(t)

	w := fx.do(httptest.NewRequest(http.MethodGet, "/annotations/docs?modality=MR&modality=CT&_limit=5&_offset=10&_sort=-created&_search=text_expr:mass", nil))
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	assert.Equal(t, 3, resp.Count)

	var docs []AnnotationDoc
	require.NoError(t, json.Unmarshal(resp.Data, &docs))
	assert.Len(t, docs, 3)

	assert.Equal(t, map[string][]string{"modality.keyword": {"MR", "CT"}}, fx.store.lastQueries)
	assert.Equal(t, []interface{}{"text_expr:mass", 10, 5, "-created"}, fx.store.lastPaging)

	fx.store.err = errors.New("es down")
	w = fx.do(httptest.NewRequest(http.MethodGet, "/annotations/docs", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestAPIAuth(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	require.NoError(t, err)
	realm := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"realm":"vindr","public_key":%q}`, base64.StdEncoding.EncodeToString(der))
	}))
	defer realm.Close()

	sign := func(scopes ...string) string {
		token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
			"preferred_username": "radiologist",
			"exp":                time.Now().Add(time.Hour).Unix(),
			"authorization": map[string]interface{}{
				"permissions": []map[string]interface{}{{"rsname": "annotations", "scopes": scopes}},
			},
		}).SignedString(priv)
		require.NoError(t, err)
		return token
	}

	gin.SetMode(gin.TestMode)
	engine := gin.New()
	store := &memStore{groups: map[string]*AnnotationGroup{"1.2.3": sampleGroup(t)}}
	auth := mw.NewAuthenticator(realm.URL, "vindr", nil)
	NewAnnotationAPI(store, nil, &memQueue{}, auth, constants.SeriesUIDPolicyConstant, nil).InitRoute(engine, "/annotations")

	do := func(req *http.Request, token string) *httptest.ResponseRecorder {
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		return w
	}
	fetch := func() *http.Request {
		return httptest.NewRequest(http.MethodGet, "/annotations?study_instance_uid=1.2.3", nil)
	}

	w := do(fetch(), "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, constants.ServerUnauthorized, decodeResponse(t, w).ErrorCode)

	w = do(fetch(), sign(mw.PERM_R))
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(exportRequest(t, "/annotations/export", sampleGroup(t), nil), sign(mw.PERM_R))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, constants.ServerForbidden, decodeResponse(t, w).ErrorCode)

	w = do(exportRequest(t, "/annotations/export", sampleGroup(t), nil), sign(mw.PERM_R, mw.PERM_C))
	assert.Equal(t, http.StatusOK, w.Code)
}
