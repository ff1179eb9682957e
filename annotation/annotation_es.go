package annotation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"vindr-sr/constants"
	"vindr-sr/dcmio"
	"vindr-sr/entities"
	"vindr-sr/scoord"
	"vindr-sr/utils"

	"github.com/dustin/go-humanize"
	"github.com/elastic/go-elasticsearch/v7"
	"github.com/elastic/go-elasticsearch/v7/esapi"
	"go.uber.org/zap"
)

// AnnotationDoc is the indexed form of one annotation of a group. Group
// metadata is denormalized onto every document.
type AnnotationDoc struct {
	ID                string       `json:"id"`
	StudyInstanceUID  string       `json:"study_instance_uid"`
	SeriesInstanceUID string       `json:"series_instance_uid,omitempty"`
	Modality          string       `json:"modality"`
	ReferenceSOPUID   string       `json:"reference_sop_uid"`
	TextExpr          string       `json:"text_expr"`
	Shape             scoord.Value `json:"shape"`
	Order             int          `json:"order"`
	Event             string       `json:"event"`
	Created           int64        `json:"created"`
}

// DocumentID is the ES _id. Annotation ids are only unique within a study.
func (doc *AnnotationDoc) DocumentID() string {
	return doc.StudyInstanceUID + "/" + doc.ID
}

type bulkTarget struct {
	ID string `json:"_id"`
}

type bulkAction struct {
	Index bulkTarget `json:"index"`
}

func (doc *AnnotationDoc) String() string {
	b, _ := json.Marshal(doc)
	return string(b)
}

// NewAnnotationDocs flattens group into one document per annotation.
func NewAnnotationDocs(group *AnnotationGroup, created int64) ([]AnnotationDoc, error) {
	seriesUID := ""
	if items, ok := group.Meta(MetaReferencedSeriesSequence).([]dcmio.Tags); ok && len(items) > 0 {
		seriesUID, _ = items[0]["SeriesInstanceUID"].(string)
	}

	docs := make([]AnnotationDoc, 0, group.Len())
	for i, antn := range group.list {
		shape, err := scoord.Encode(antn.MathShape)
		if err != nil {
			return nil, fmt.Errorf("annotation %s: %w", antn.ID, err)
		}
		docs = append(docs, AnnotationDoc{
			ID:                antn.ID,
			StudyInstanceUID:  group.MetaString(MetaStudyInstanceUID),
			SeriesInstanceUID: seriesUID,
			Modality:          group.MetaString(MetaModality),
			ReferenceSOPUID:   antn.ReferenceSOPUID,
			TextExpr:          antn.TextExpr,
			Shape:             shape,
			Order:             i,
			Event:             constants.EventCreate,
			Created:           created,
		})
	}
	return docs, nil
}

// GroupFromDocs rebuilds a group from its documents.
func GroupFromDocs(docs []AnnotationDoc) (*AnnotationGroup, error) {
	sorted := append([]AnnotationDoc(nil), docs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })

	group, err := NewAnnotationGroup()
	if err != nil {
		return nil, err
	}
	for _, doc := range sorted {
		shape, err := scoord.Decode(doc.Shape)
		if err != nil {
			return nil, fmt.Errorf("annotation %s: %w", doc.ID, err)
		}
		antn := &Annotation{ID: doc.ID, MathShape: shape, ReferenceSOPUID: doc.ReferenceSOPUID, TextExpr: doc.TextExpr}
		if err := group.Add(antn); err != nil {
			return nil, err
		}
	}
	if len(sorted) > 0 {
		group.SetMeta(MetaModality, sorted[0].Modality)
		group.SetMeta(MetaStudyInstanceUID, sorted[0].StudyInstanceUID)
		if sorted[0].SeriesInstanceUID != "" {
			group.SetMeta(MetaReferencedSeriesSequence, []dcmio.Tags{{"SeriesInstanceUID": sorted[0].SeriesInstanceUID}})
		}
	}
	return group, nil
}

type AnnotationES struct {
	esClient    *elasticsearch.Client
	indexPrefix string
	logger      *zap.Logger
}

func NewAnnotationStore(client *elasticsearch.Client, indexPrefix string, logger *zap.Logger) *AnnotationES {
	return &AnnotationES{
		client, indexPrefix, logger,
	}
}

func getIndexName(indexPrefix string, doc AnnotationDoc) string {
	indexTime := utils.ConvertTimeStampToTime(doc.Created)
	return strings.ToLower(fmt.Sprintf("%s_%d%02d", indexPrefix, indexTime.Year(), indexTime.Month()))
}

func getIndexWildcard(indexPrefix string) string {
	return fmt.Sprintf("%s_*", indexPrefix)
}

// SaveGroup replaces the stored annotations of the group's study.
func (store *AnnotationES) SaveGroup(group *AnnotationGroup) error {
	studyUID := group.MetaString(MetaStudyInstanceUID)
	if studyUID == "" {
		return fmt.Errorf("%w: group has no StudyInstanceUID", ErrMalformedInput)
	}

	docs, err := NewAnnotationDocs(group, time.Now().UnixNano()/int64(time.Millisecond))
	if err != nil {
		return err
	}

	if err := store.Delete(studyQuery(studyUID), ""); err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}
	return store.BulkCreate(docs)
}

// GetGroup loads the annotations of a study. It returns nil when nothing is
// stored for it.
func (store *AnnotationES) GetGroup(studyUID string) (*AnnotationGroup, error) {
	docs := make([]AnnotationDoc, 0)
	err := store.Query(studyQuery(studyUID), "", 0, constants.DefaultLimit, "order", func(slice []AnnotationDoc, _ entities.ESReturn) {
		docs = append(docs, slice...)
	})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return GroupFromDocs(docs)
}

func studyQuery(studyUID string) map[string][]string {
	return map[string][]string{
		"study_instance_uid.keyword": {studyUID},
	}
}

// Query pages through every match, calling f once per page.
func (store *AnnotationES) Query(queries map[string][]string, qs string, from int, size int, sort string, f func([]AnnotationDoc, entities.ESReturn)) error {
	for {
		docs, esReturn, err := store.GetSlice(queries, qs, from, size, sort)
		if err != nil {
			return err
		}

		f(docs, *esReturn)

		if len(docs) < size {
			break
		}
		from += size
	}
	return nil
}

func (store *AnnotationES) GetSlice(queries map[string][]string, qs string, from int, size int, sort string) ([]AnnotationDoc, *entities.ESReturn, error) {
	es := store.esClient

	var (
		esReturn entities.ESReturn
		esError  entities.ESError
		buf      bytes.Buffer
	)

	body := utils.ConvertInputsToESQueryBody(queries, qs, from, size, sort)
	utils.LogDebug("query %s", utils.ConvertMapToString(*body))

	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, nil, fmt.Errorf("Error encoding query: %s", err)
	}

	res, err := es.Search(
		es.Search.WithContext(context.Background()),
		es.Search.WithIndex(getIndexWildcard(store.indexPrefix)),
		es.Search.WithBody(&buf),
		es.Search.WithTrackTotalHits(true),
	)
	if err != nil {
		return nil, nil, err
	}
	defer res.Body.Close()

	if res.IsError() {
		if err := json.NewDecoder(res.Body).Decode(&esError); err != nil {
			return nil, nil, fmt.Errorf("Error parsing the response body: %s", err)
		}
		return nil, nil, fmt.Errorf("[%s] %s: %s", res.Status(), esError.Error.Type, esError.Error.Reason)
	}

	if err := json.NewDecoder(res.Body).Decode(&esReturn); err != nil {
		return nil, nil, fmt.Errorf("Error parsing the response body: %s", err)
	}

	utils.LogDebug("[%s] %d hits; took: %dms", res.Status(), esReturn.Hits.Total.Value, esReturn.Took)

	docs := make([]AnnotationDoc, 0, len(esReturn.Hits.Hits))
	for _, hit := range esReturn.Hits.Hits {
		var doc AnnotationDoc
		bytesData, _ := json.Marshal(hit.Source)
		if err := json.Unmarshal(bytesData, &doc); err == nil {
			docs = append(docs, doc)
		}
	}

	return docs, &esReturn, nil
}

// BulkCreate indexes docs in batches. All docs go to the index of the first.
func (store *AnnotationES) BulkCreate(docs []AnnotationDoc) error {
	var (
		buf bytes.Buffer
		blk entities.ESBulkResponse

		indexName = getIndexName(store.indexPrefix, docs[0])

		numErrors  int
		numIndexed int
	)

	count := len(docs)
	batch := 10
	es := store.esClient
	start := time.Now().UTC()

	store.logger.Debug("Bulk indexing annotations",
		zap.String("documents", humanize.Comma(int64(count))),
		zap.String("batch", humanize.Comma(int64(batch))))

	for i, doc := range docs {
		meta, err := json.Marshal(bulkAction{Index: bulkTarget{ID: doc.DocumentID()}})
		if err != nil {
			return fmt.Errorf("Cannot encode action for %s: %s", doc.ID, err)
		}
		meta = append(meta, "\n"...)
		data, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("Cannot encode %s: %s", doc.ID, err)
		}
		data = append(data, "\n"...)

		buf.Grow(len(meta) + len(data))
		buf.Write(meta)
		buf.Write(data)

		if (i+1)%batch != 0 && i != count-1 {
			continue
		}

		res, err := es.Bulk(bytes.NewReader(buf.Bytes()), es.Bulk.WithIndex(indexName), es.Bulk.WithRefresh("true"))
		if err != nil {
			return fmt.Errorf("Failure indexing batch ending at %d: %s", i, err)
		}
		if res.IsError() {
			res.Body.Close()
			return fmt.Errorf("%s ERROR bulk indexing into %s", res.Status(), indexName)
		}

		blk = entities.ESBulkResponse{}
		err = json.NewDecoder(res.Body).Decode(&blk)
		res.Body.Close()
		if err != nil {
			return fmt.Errorf("Failure to parse response body: %s", err)
		}
		for _, d := range blk.Items {
			if d.Index.Status > 201 {
				numErrors++
				store.logger.Warn("Annotation not indexed",
					zap.String("id", d.Index.ID),
					zap.Int("status", d.Index.Status),
					zap.String("reason", d.Index.Error.Reason))
			} else {
				numIndexed++
			}
		}
		buf.Reset()
	}

	dur := time.Since(start)
	store.logger.Debug("Bulk indexing done",
		zap.String("indexed", humanize.Comma(int64(numIndexed))),
		zap.String("errors", humanize.Comma(int64(numErrors))),
		zap.Duration("took", dur.Truncate(time.Millisecond)))

	if numErrors > 0 {
		return fmt.Errorf("%d of %d annotations not indexed", numErrors, count)
	}
	return nil
}

func (store *AnnotationES) Delete(queries map[string][]string, qs string) error {
	var buf bytes.Buffer
	body := utils.ConvertInputsToESQueryBody(queries, qs, -1, -1, "")

	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return fmt.Errorf("Error encoding query: %s", err)
	}
	refresh := true
	req := esapi.DeleteByQueryRequest{
		Index:   []string{getIndexWildcard(store.indexPrefix)},
		Body:    &buf,
		Refresh: &refresh,
	}

	res, err := req.Do(context.Background(), store.esClient)
	if err != nil {
		return fmt.Errorf("DeleteByQuery ERROR: %s", err)
	}
	defer res.Body.Close()

	// a missing index means nothing was stored yet
	if res.IsError() && res.StatusCode != 404 {
		return fmt.Errorf("%s ERROR deleting documents", res.Status())
	}
	return nil
}
