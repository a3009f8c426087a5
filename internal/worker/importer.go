package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"assessment-results/internal/config"
	"assessment-results/internal/logger"
	"assessment-results/internal/model"
	"assessment-results/internal/queue"
	"assessment-results/internal/sheet"
	"assessment-results/internal/storage"

	"github.com/rs/zerolog"
)

type ImportRepository interface {
	GetImport(ctx context.Context, id int64) (*model.Import, error)
	UpdateImportStatus(ctx context.Context, id int64, status model.ImportStatus, editedCells int, errorMessage *string) error
}

// DraftMerger is implemented by results.Service.
type DraftMerger interface {
	Rows(ctx context.Context, scope model.Scope) ([]model.AssessmentResult, error)
	MergeEdits(ctx context.Context, key model.DraftKey, edits model.EditedRows) (*model.Draft, error)
}

type ImportWorker struct {
	repo       ImportRepository
	storage    storage.Storage
	parser     sheet.ParsingStrategy
	session    DraftMerger
	consumer   *queue.Consumer
	workerPool *WorkerPool
	log        zerolog.Logger
}

func NewImportWorker(
	cfg *config.Config,
	repo ImportRepository,
	storage storage.Storage,
	session DraftMerger,
	redisClient *queue.RedisClient,
) *ImportWorker {
	return &ImportWorker{
		repo:       repo,
		storage:    storage,
		parser:     sheet.NewExcelStrategy(cfg.Workers.Import.MaxRows),
		session:    session,
		consumer:   queue.NewConsumer(redisClient, cfg),
		workerPool: NewWorkerPool("import", cfg.Workers.Import.Count),
		log:        logger.Component("import-worker"),
	}
}

func (w *ImportWorker) Start(ctx context.Context) error {
	w.log.Info().Msg("Starting import worker")

	w.workerPool.Start(ctx)

	return w.workerPool.Consume(ctx, func(ctx context.Context) error {
		return w.consumer.ConsumeImportQueue(ctx, w.handleMessage)
	})
}

func (w *ImportWorker) Stop() {
	w.log.Info().Msg("Stopping import worker")
	w.workerPool.Stop()
}

func (w *ImportWorker) handleMessage(ctx context.Context, data []byte) error {
	var job model.ImportJob
	if err := json.Unmarshal(data, &job); err != nil {
		w.log.Error().Err(err).Msg("Failed to unmarshal import job")
		return err
	}

	w.log.Info().Int64("import_id", job.ImportID).Msg("Processing import job")

	return w.workerPool.Run(ctx, func(ctx context.Context) error {
		return w.processImport(ctx, job)
	})
}

func (w *ImportWorker) processImport(ctx context.Context, job model.ImportJob) error {
	log := w.log.With().Int64("import_id", job.ImportID).Logger()

	imp, err := w.repo.GetImport(ctx, job.ImportID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load import")
		return err
	}
	log = log.With().Str("scope", imp.Scope.String()).Str("s3_path", imp.S3Path).Logger()

	edits, err := w.diffSheet(ctx, log, imp)
	if err != nil {
		w.fail(ctx, log, imp.ID, err)
		return err
	}

	key := model.DraftKey{Scope: imp.Scope, EditorPartyID: imp.EditorPartyID}
	if _, err := w.session.MergeEdits(ctx, key, edits); err != nil {
		log.Error().Err(err).Msg("Failed to merge import into draft")
		w.fail(ctx, log, imp.ID, err)
		return err
	}

	cells := sheet.CellCount(edits)
	if err := w.repo.UpdateImportStatus(ctx, imp.ID, model.ImportStatusMerged, cells, nil); err != nil {
		log.Error().Err(err).Msg("Failed to update import status")
		return err
	}

	log.Info().Int("edited_cells", cells).Int("edited_rows", edits.Touched()).Msg("Import merged into draft")
	return nil
}

func (w *ImportWorker) diffSheet(ctx context.Context, log zerolog.Logger, imp *model.Import) (model.EditedRows, error) {
	log.Debug().Msg("Downloading sheet")
	reader, err := w.storage.Download(ctx, imp.S3Path)
	if err != nil {
		log.Error().Err(err).Msg("Failed to download sheet")
		return nil, err
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read sheet data")
		return nil, err
	}

	rows, err := w.parser.Parse(ctx, data)
	if err != nil {
		log.Error().Err(err).Msg("Failed to parse sheet")
		return nil, err
	}

	log.Debug().Int("row_count", len(rows)).Msg("Validating sheet rows")
	if err := w.parser.Validate(ctx, rows); err != nil {
		log.Error().Err(err).Msg("Sheet validation failed")
		return nil, err
	}

	snapshot, err := w.session.Rows(ctx, imp.Scope)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load snapshot")
		return nil, err
	}

	edits, unknown, err := sheet.Diff(snapshot, rows)
	if err != nil {
		return nil, err
	}
	if len(unknown) > 0 {
		log.Warn().Ints64("student_party_ids", unknown).Msg("Sheet rows without a snapshot row, skipped")
	}
	return edits, nil
}

func (w *ImportWorker) fail(ctx context.Context, log zerolog.Logger, importID int64, cause error) {
	msg := fmt.Sprint(cause)
	if err := w.repo.UpdateImportStatus(ctx, importID, model.ImportStatusFailed, 0, &msg); err != nil {
		log.Error().Err(err).Msg("Failed to mark import as failed")
	}
}
