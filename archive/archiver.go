package archive

import (
	"context"
	"fmt"
	"time"

	"vindr-sr/annotation"
	"vindr-sr/constants"
	"vindr-sr/dcmio"
	"vindr-sr/helper"
	"vindr-sr/orthanc"

	"github.com/bsm/redislock"
	"github.com/dustin/go-humanize"
	"github.com/enriquebris/goconcurrentqueue"
	"go.uber.org/zap"
)

// ObjectStorage keeps archived report files.
type ObjectStorage interface {
	StoreFile(ctx context.Context, objectName string, data []byte, contentType string) error
	DownloadFile(ctx context.Context, objectName string) ([]byte, error)
}

// InstanceSink receives a copy of every archived report.
type InstanceSink interface {
	UploadInstance(data []byte) (*orthanc.UploadResult, error)
}

// ExportJob is one queued report export.
type ExportJob struct {
	ID         string
	ObjectName string
	Group      *annotation.AnnotationGroup
	ExtraTags  dcmio.Tags
	Created    int64
	Status     string
}

// Archiver encodes queued groups as SR files and stores them. Jobs of one
// study are serialized through a redis lock so that concurrent instances
// never write the same study at once.
type Archiver struct {
	queue           *goconcurrentqueue.FIFO
	locker          *redislock.Client
	storage         ObjectStorage
	sink            InstanceSink
	seriesUIDPolicy string
	logger          *zap.Logger

	LockTTL      time.Duration
	LockRetry    redislock.RetryStrategy
	PollInterval time.Duration
}

// NewArchiver builds an archiver. sink may be nil.
func NewArchiver(locker *redislock.Client, storage ObjectStorage, sink InstanceSink, seriesUIDPolicy string, logger *zap.Logger) *Archiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{
		queue:           goconcurrentqueue.NewFIFO(),
		locker:          locker,
		storage:         storage,
		sink:            sink,
		seriesUIDPolicy: seriesUIDPolicy,
		logger:          logger,
		LockTTL:         30 * time.Second,
		LockRetry:       redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), 50),
		PollInterval:    2 * time.Second,
	}
}

// EnqueueExport queues group for archiving and returns its object name.
func (a *Archiver) EnqueueExport(group *annotation.AnnotationGroup, extraTags dcmio.Tags) (string, error) {
	id := helper.GUID()
	studyUID := group.MetaString(annotation.MetaStudyInstanceUID)
	if studyUID == "" {
		studyUID = "unknown"
	}

	job := &ExportJob{
		ID:         id,
		ObjectName: fmt.Sprintf("%s/%s.dcm", studyUID, id),
		Group:      group,
		ExtraTags:  extraTags.Clone(),
		Created:    time.Now().UnixNano() / int64(time.Millisecond),
		Status:     constants.ExportStatusPending,
	}
	if err := a.queue.Enqueue(job); err != nil {
		return "", err
	}
	a.logger.Debug("Export queued",
		zap.String("object", job.ObjectName),
		zap.Int("pending", a.Pending()))
	return job.ObjectName, nil
}

// FetchExport returns an archived report.
func (a *Archiver) FetchExport(objectName string) ([]byte, error) {
	return a.storage.DownloadFile(context.Background(), objectName)
}

// Pending returns the number of queued jobs.
func (a *Archiver) Pending() int {
	return a.queue.GetLen()
}

// DequeueExports processes queued jobs until ctx is done.
func (a *Archiver) DequeueExports(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if a.Pending() == 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(a.PollInterval):
			}
			continue
		}

		item, err := a.queue.Dequeue()
		if err != nil || item == nil {
			continue
		}
		job := item.(*ExportJob)
		if err := a.ProcessExport(ctx, job); err != nil {
			a.logger.Error("Export failed", zap.String("object", job.ObjectName), zap.Error(err))
		}
	}
}

// ProcessExport encodes and stores one job while holding its study lock.
func (a *Archiver) ProcessExport(ctx context.Context, job *ExportJob) error {
	key := fmt.Sprintf("sr-export:%s", job.Group.MetaString(annotation.MetaStudyInstanceUID))
	lock, err := a.locker.Obtain(ctx, key, a.LockTTL, &redislock.Options{RetryStrategy: a.LockRetry})
	if err != nil {
		job.Status = constants.ExportStatusFailed
		return fmt.Errorf("lock %s: %w", key, err)
	}
	defer func() {
		if err := lock.Release(ctx); err != nil && err != redislock.ErrLockNotHeld {
			a.logger.Warn("Cannot release lock", zap.String("key", key), zap.Error(err))
		}
	}()

	if err := a.export(ctx, job); err != nil {
		job.Status = constants.ExportStatusFailed
		return err
	}
	job.Status = constants.ExportStatusDone
	return nil
}

func (a *Archiver) export(ctx context.Context, job *ExportJob) error {
	factory := annotation.NewFactory(a.logger, annotation.WithSeriesUIDPolicy(a.seriesUIDPolicy))
	ds, err := factory.ToDicom(job.Group, job.ExtraTags)
	if err != nil {
		return err
	}
	data, err := dcmio.Encode(ds)
	if err != nil {
		return err
	}

	if err := a.storage.StoreFile(ctx, job.ObjectName, data, constants.MimeTypeDICOM); err != nil {
		return err
	}
	a.logger.Info("Report archived",
		zap.String("object", job.ObjectName),
		zap.Int("annotations", job.Group.Len()),
		zap.String("size", humanize.Bytes(uint64(len(data)))))

	if a.sink != nil {
		result, err := a.sink.UploadInstance(data)
		if err != nil {
			return fmt.Errorf("upload %s: %w", job.ObjectName, err)
		}
		a.logger.Debug("Report sent to PACS", zap.String("id", result.ID))
	}
	return nil
}
