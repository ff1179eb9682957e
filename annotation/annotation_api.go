package annotation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"
	"net/http"
	"path"
	"strings"

	"vindr-sr/constants"
	"vindr-sr/dcmio"
	"vindr-sr/entities"
	"vindr-sr/mw"
	"vindr-sr/scoord"
	"vindr-sr/utils"

	"github.com/gin-gonic/gin"
	"github.com/suyashkumar/dicom"
	"go.uber.org/zap"
)

// GroupStore persists annotation groups by study.
type GroupStore interface {
	SaveGroup(group *AnnotationGroup) error
	GetGroup(studyUID string) (*AnnotationGroup, error)
	GetSlice(queries map[string][]string, qs string, from int, size int, sort string) ([]AnnotationDoc, *entities.ESReturn, error)
}

// InstanceSource fetches Part 10 files from a PACS. ResolveInstance accepts
// either a PACS id or a SOP Instance UID.
type InstanceSource interface {
	ResolveInstance(idOrUID string) (*entities.InstanceMeta, error)
	DownloadInstance(id string) ([]byte, error)
}

// ExportQueue archives exports in the background. EnqueueExport returns the
// name the report will be stored under.
type ExportQueue interface {
	EnqueueExport(group *AnnotationGroup, extraTags dcmio.Tags) (string, error)
	FetchExport(objectName string) ([]byte, error)
}

type AnnotationAPI struct {
	antnStore       GroupStore
	source          InstanceSource
	exports         ExportQueue
	auth            *mw.Authenticator
	seriesUIDPolicy string
	Logger          *zap.Logger
}

// NewAnnotationAPI wires the handlers. Any collaborator may be nil; the
// endpoints needing it then answer 503. A nil auth leaves the routes open.
func NewAnnotationAPI(antnStore GroupStore, source InstanceSource, exports ExportQueue, auth *mw.Authenticator, seriesUIDPolicy string, logger *zap.Logger) (app *AnnotationAPI) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app = &AnnotationAPI{
		antnStore:       antnStore,
		source:          source,
		exports:         exports,
		auth:            auth,
		seriesUIDPolicy: seriesUIDPolicy,
		Logger:          logger,
	}
	return app
}

func (app *AnnotationAPI) InitRoute(engine *gin.Engine, path string) {
	g := engine.Group(path)
	if app.auth != nil {
		g.Use(app.auth.WrapAuthInfo())
	}
	resource := strings.Trim(path, "/")
	g.GET("", app.perm(resource, mw.PERM_R), app.fetchAnnotations)
	g.GET("/docs", app.perm(resource, mw.PERM_R), app.searchAnnotationDocs)
	g.POST("/check", app.perm(resource, mw.PERM_C), app.checkReport)
	g.POST("/import", app.perm(resource, mw.PERM_C), app.importReport)
	g.POST("/export", app.perm(resource, mw.PERM_C), app.exportReport)
	g.POST(fmt.Sprintf("/orthanc/:%s", constants.ParamInstanceID), app.perm(resource, mw.PERM_C), app.importFromOrthanc)
	g.GET(fmt.Sprintf("/exports/*%s", constants.ParamObjectName), app.perm(resource, mw.PERM_R), app.downloadExport)
}

func (app *AnnotationAPI) perm(resource, scope string) gin.HandlerFunc {
	if app.auth == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return mw.ValidPerms(resource, scope)
}

// caller names the authenticated user for logs, "" when auth is off.
func caller(c *gin.Context) string {
	if account := mw.GetAuthInfoFromGin(c); account != nil {
		return account.Username
	}
	return ""
}

func (app *AnnotationAPI) newFactory() *Factory {
	return NewFactory(app.Logger, WithSeriesUIDPolicy(app.seriesUIDPolicy))
}

func (app *AnnotationAPI) fail(c *gin.Context, status, errCode int, err error) {
	if status >= http.StatusInternalServerError {
		utils.LogError(err)
	} else {
		app.Logger.Debug("Request rejected", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, entities.NewResponse().Fail(errCode, err))
}

func (app *AnnotationAPI) fetchAnnotations(c *gin.Context) {
	studyUID := c.Query(constants.ParamStudyInstanceUID)
	if studyUID == "" {
		app.fail(c, http.StatusBadRequest, constants.ServerInvalidData, fmt.Errorf("missing %s", constants.ParamStudyInstanceUID))
		return
	}
	if app.antnStore == nil {
		app.fail(c, http.StatusServiceUnavailable, constants.ServerError, errors.New("annotation store disabled"))
		return
	}

	group, err := app.antnStore.GetGroup(studyUID)
	if err != nil {
		app.fail(c, http.StatusInternalServerError, constants.ServerError, err)
		return
	}
	if group == nil {
		app.fail(c, http.StatusNotFound, constants.ServerNotFound, fmt.Errorf("no annotations for study %s", studyUID))
		return
	}

	resp := entities.NewResponse()
	resp.Data = group
	resp.Count = group.Len()
	c.JSON(http.StatusOK, resp)
}

// Query parameters accepted as exact-match filters by searchAnnotationDocs.
var docFilters = []string{"study_instance_uid", "series_instance_uid", "modality", "reference_sop_uid"}

func (app *AnnotationAPI) searchAnnotationDocs(c *gin.Context) {
	if app.antnStore == nil {
		app.fail(c, http.StatusServiceUnavailable, constants.ServerError, errors.New("annotation store disabled"))
		return
	}

	queries := make(map[string][]string)
	for _, k := range docFilters {
		if v := c.QueryArray(k); len(v) > 0 {
			queries[k+".keyword"] = v
		}
	}
	from, size, sort := utils.ConvertGinRequestToPaging(c)

	docs, esReturn, err := app.antnStore.GetSlice(queries, c.Query(constants.ParamSearch), from, size, sort)
	if err != nil {
		app.fail(c, http.StatusInternalServerError, constants.ServerError, err)
		return
	}

	resp := entities.NewResponse()
	resp.Data = docs
	resp.Count = esReturn.Hits.Total.Value
	c.JSON(http.StatusOK, resp)
}

func (app *AnnotationAPI) checkReport(c *gin.Context) {
	ds, err := readUpload(c)
	if err != nil {
		app.fail(c, http.StatusBadRequest, constants.ServerInvalidData, err)
		return
	}

	resp := entities.NewResponse()
	resp.Data = gin.H{"warning": app.newFactory().CheckElements(ds)}
	c.JSON(http.StatusOK, resp)
}

func (app *AnnotationAPI) importReport(c *gin.Context) {
	ds, err := readUpload(c)
	if err != nil {
		app.fail(c, http.StatusBadRequest, constants.ServerInvalidData, err)
		return
	}
	app.importDataset(c, ds, nil)
}

func (app *AnnotationAPI) importFromOrthanc(c *gin.Context) {
	if app.source == nil {
		app.fail(c, http.StatusServiceUnavailable, constants.ServerError, errors.New("orthanc disabled"))
		return
	}

	instance, err := app.source.ResolveInstance(c.Param(constants.ParamInstanceID))
	if err != nil {
		app.fail(c, http.StatusBadGateway, constants.ServerError, err)
		return
	}
	data, err := app.source.DownloadInstance(instance.OrthancID)
	if err != nil {
		app.fail(c, http.StatusBadGateway, constants.ServerError, err)
		return
	}
	ds, err := dcmio.Decode(data)
	if err != nil {
		app.fail(c, http.StatusBadRequest, constants.ServerInvalidData, err)
		return
	}
	app.importDataset(c, ds, &map[string]interface{}{"instance": instance})
}

// importDataset answers with the group decoded from ds, storing it first
// when the index parameter is set.
func (app *AnnotationAPI) importDataset(c *gin.Context, ds dicom.Dataset, meta *map[string]interface{}) {
	factory := app.newFactory()
	warning := factory.CheckElements(ds)

	group, err := factory.Create(ds)
	if err != nil {
		if errors.Is(err, ErrMalformedInput) || errors.Is(err, scoord.ErrUnsupportedShape) {
			app.fail(c, http.StatusBadRequest, constants.ServerInvalidData, err)
			return
		}
		app.fail(c, http.StatusInternalServerError, constants.ServerError, err)
		return
	}

	if utils.ConvertQueryBool(c, constants.ParamIndex) {
		if app.antnStore == nil {
			app.fail(c, http.StatusServiceUnavailable, constants.ServerError, errors.New("annotation store disabled"))
			return
		}
		if err := app.antnStore.SaveGroup(group); err != nil {
			app.fail(c, http.StatusInternalServerError, constants.ServerError, err)
			return
		}
		app.Logger.Info("Indexed annotation group",
			zap.String("study", group.MetaString(MetaStudyInstanceUID)),
			zap.Int("annotations", group.Len()),
			zap.String("user", caller(c)))
	}

	resp := entities.NewResponse()
	resp.Data = group
	resp.Count = group.Len()
	resp.Message = warning
	resp.Meta = meta
	c.JSON(http.StatusOK, resp)
}

type exportExtras struct {
	ExtraTags dcmio.Tags `json:"extra_tags"`
}

func (app *AnnotationAPI) exportReport(c *gin.Context) {
	body, err := ioutil.ReadAll(c.Request.Body)
	if err != nil {
		app.fail(c, http.StatusBadRequest, constants.ServerInvalidData, err)
		return
	}

	var group AnnotationGroup
	var extras exportExtras
	if err := json.Unmarshal(body, &group); err != nil {
		app.fail(c, http.StatusBadRequest, constants.ServerInvalidData, err)
		return
	}
	if err := json.Unmarshal(body, &extras); err != nil {
		app.fail(c, http.StatusBadRequest, constants.ServerInvalidData, err)
		return
	}
	for _, antn := range group.list {
		if !antn.IsValidAnnotation() {
			app.fail(c, http.StatusBadRequest, constants.ServerInvalidData, fmt.Errorf("invalid annotation %s", antn.ID))
			return
		}
	}

	ds, err := app.newFactory().ToDicom(&group, extras.ExtraTags)
	if err != nil {
		if errors.Is(err, dcmio.ErrUnknownTag) || errors.Is(err, dcmio.ErrUnsupportedValue) {
			app.fail(c, http.StatusBadRequest, constants.ServerInvalidData, err)
			return
		}
		app.fail(c, http.StatusInternalServerError, constants.ServerError, err)
		return
	}

	if utils.ConvertQueryBool(c, constants.ParamArchive) {
		if app.exports == nil {
			app.fail(c, http.StatusServiceUnavailable, constants.ServerError, errors.New("archive disabled"))
			return
		}
		name, err := app.exports.EnqueueExport(&group, extras.ExtraTags)
		if err != nil {
			app.fail(c, http.StatusInternalServerError, constants.ServerError, err)
			return
		}
		app.Logger.Info("Export queued", zap.String("object", name), zap.String("user", caller(c)))
		resp := entities.NewResponse()
		resp.Data = gin.H{"object_name": name, "status": constants.ExportStatusPending}
		c.JSON(http.StatusAccepted, resp)
		return
	}

	data, err := dcmio.Encode(ds)
	if err != nil {
		app.fail(c, http.StatusInternalServerError, constants.ServerError, err)
		return
	}
	c.Data(http.StatusOK, constants.MimeTypeDICOM, data)
}

func (app *AnnotationAPI) downloadExport(c *gin.Context) {
	if app.exports == nil {
		app.fail(c, http.StatusServiceUnavailable, constants.ServerError, errors.New("archive disabled"))
		return
	}
	objectName := strings.TrimPrefix(c.Param(constants.ParamObjectName), "/")
	if objectName == "" {
		app.fail(c, http.StatusBadRequest, constants.ServerInvalidData, fmt.Errorf("missing %s", constants.ParamObjectName))
		return
	}

	data, err := app.exports.FetchExport(objectName)
	if err != nil {
		app.fail(c, http.StatusNotFound, constants.ServerNotFound, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", path.Base(objectName)))
	c.Data(http.StatusOK, constants.MimeTypeDICOM, data)
}

func readUpload(c *gin.Context) (dicom.Dataset, error) {
	fh, err := c.FormFile(constants.ParamFile)
	if err != nil {
		return dicom.Dataset{}, err
	}
	f, err := fh.Open()
	if err != nil {
		return dicom.Dataset{}, err
	}
	defer f.Close()
	return dcmio.ReadFile(f, fh.Size)
}
