package sync

import (
	"context"
	"strings"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/mailvault/mailvault/config"
	"github.com/mailvault/mailvault/dto"
	"github.com/mailvault/mailvault/interfaces"
	"github.com/mailvault/mailvault/internal/enum"
	er "github.com/mailvault/mailvault/internal/errors"
	"github.com/mailvault/mailvault/internal/logger"
	"github.com/mailvault/mailvault/internal/metrics"
	"github.com/mailvault/mailvault/internal/models"
	"github.com/mailvault/mailvault/internal/tracing"
)

// Engine runs one sync cycle for an account: open a session, check each
// folder's identity against the stored checkpoint, fetch messages above the
// high-water mark in bounded batches, and commit each batch atomically with
// its checkpoint advance.
type Engine struct {
	cfg         *config.SyncConfig
	dialer      interfaces.IMAPDialer
	checkpoints interfaces.CheckpointRepository
	processor   interfaces.AttachmentProcessor
	publisher   interfaces.EventPublisher
	log         logger.Logger
}

func NewEngine(
	cfg *config.SyncConfig,
	dialer interfaces.IMAPDialer,
	checkpoints interfaces.CheckpointRepository,
	processor interfaces.AttachmentProcessor,
	publisher interfaces.EventPublisher,
	log logger.Logger,
) interfaces.SyncEngine {
	return &Engine{
		cfg:         cfg,
		dialer:      dialer,
		checkpoints: checkpoints,
		processor:   processor,
		publisher:   publisher,
		log:         log,
	}
}

func (e *Engine) SyncAccount(ctx context.Context, account *models.Account) (*interfaces.CycleResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Engine.SyncAccount")
	defer span.Finish()
	tracing.TagComponentSync(span)
	tracing.TagAccount(span, account.ID)

	result := &interfaces.CycleResult{}

	session, err := e.dialer.Dial(ctx, account)
	if err != nil {
		tracing.TraceErr(span, err)
		return result, err
	}
	defer func() {
		if err := session.Logout(); err != nil {
			e.log.Warnf("[%s] logout failed: %v", account.ID, err)
		}
	}()

	folders := account.Folders
	if len(folders) == 0 {
		folders = []string{e.cfg.DefaultFolder}
	}

	for _, folderName := range folders {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		folderResult, err := e.syncFolder(ctx, session, account, folderName)
		result.Add(folderResult)
		if err != nil {
			tracing.TraceErr(span, err)
			if IsConnectionError(err) || ctx.Err() != nil {
				return result, err
			}
			// folder-local failure, the remaining folders still get their turn
			e.log.Errorf("[%s][%s] folder sync failed: %v", account.ID, folderName, err)
			result.Failed++
		}
	}

	e.publishSyncCompleted(ctx, account.ID, result)
	return result, nil
}

func (e *Engine) syncFolder(ctx context.Context, session interfaces.IMAPSession, account *models.Account, folderName string) (interfaces.CycleResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Engine.syncFolder")
	defer span.Finish()
	tracing.TagComponentSync(span)
	tracing.TagAccount(span, account.ID)
	tracing.TagFolder(span, folderName)

	result := interfaces.CycleResult{}

	identity, err := session.SelectFolder(folderName)
	if err != nil {
		return result, err
	}
	span.LogKV("uidValidity", identity.UIDValidity, "messages", identity.Messages)

	lastUID, err := e.resolveCursor(ctx, account.ID, folderName, identity, &result)
	if err != nil {
		return result, err
	}

	processed := 0
	for processed < e.cfg.MaxMessagesPerCycle {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		batchMax := e.cfg.MaxBatchSize
		if remaining := e.cfg.MaxMessagesPerCycle - processed; remaining < batchMax {
			batchMax = remaining
		}

		uids, err := session.SearchSince(lastUID, batchMax)
		if err != nil {
			return result, err
		}
		if len(uids) == 0 {
			break
		}

		raws, err := session.FetchMessages(uids)
		if err != nil {
			return result, err
		}
		if len(raws) == 0 {
			break
		}

		newLastUID, err := e.commitBatch(ctx, account, folderName, identity.UIDValidity, lastUID, raws, &result)
		if err != nil {
			if errors.Is(err, er.ErrStaleCheckpoint) {
				// Another writer advanced the cursor under us. Re-read and
				// resume from wherever it landed.
				refreshed, readErr := e.checkpoints.Read(ctx, account.ID, folderName)
				if readErr != nil {
					return result, readErr
				}
				if refreshed == nil || refreshed.IdentityEpoch != identity.UIDValidity {
					// epoch moved as well, leave it for the next cycle
					return result, nil
				}
				e.log.Warnf("[%s][%s] checkpoint advanced concurrently, resuming from uid %d",
					account.ID, folderName, refreshed.HighWaterMark)
				lastUID = refreshed.HighWaterMark
				continue
			}
			return result, err
		}

		processed += len(raws)
		lastUID = newLastUID

		if len(uids) < batchMax {
			break
		}
	}

	return result, nil
}

// resolveCursor reads the checkpoint and reconciles it with the folder
// identity reported by SELECT. A UIDVALIDITY change means every stored UID
// from the old epoch is meaningless: the checkpoint is reset and the folder
// refetched from the start. Already-archived rows stay put.
func (e *Engine) resolveCursor(ctx context.Context, accountID, folderName string, identity *interfaces.FolderIdentity, result *interfaces.CycleResult) (uint32, error) {
	checkpoint, err := e.checkpoints.Read(ctx, accountID, folderName)
	if err != nil {
		return 0, err
	}

	if checkpoint == nil {
		if err := e.checkpoints.Reset(ctx, accountID, folderName, identity.UIDValidity); err != nil {
			return 0, err
		}
		return 0, nil
	}

	if checkpoint.IdentityEpoch != identity.UIDValidity {
		e.log.Warnf("[%s][%s] UIDVALIDITY changed %d -> %d, resetting checkpoint for full resync",
			accountID, folderName, checkpoint.IdentityEpoch, identity.UIDValidity)
		metrics.IdentityResets.Inc()
		result.IdentityResets++

		if err := e.checkpoints.Reset(ctx, accountID, folderName, identity.UIDValidity); err != nil {
			return 0, err
		}
		return 0, nil
	}

	return checkpoint.HighWaterMark, nil
}

// commitBatch parses and processes one fetch batch, then persists it
// together with the checkpoint advance. Returns the new high-water mark.
// Cancellation between messages discards the uncommitted remainder.
func (e *Engine) commitBatch(
	ctx context.Context,
	account *models.Account,
	folderName string,
	epoch uint32,
	lastUID uint32,
	raws []*interfaces.RawMessage,
	result *interfaces.CycleResult,
) (uint32, error) {
	batch := &interfaces.CommitBatch{
		AccountID:             account.ID,
		FolderName:            folderName,
		IdentityEpoch:         epoch,
		ExpectedHighWaterMark: lastUID,
	}

	newHighWaterMark := lastUID
	for _, raw := range raws {
		if ctx.Err() != nil {
			return lastUID, ctx.Err()
		}

		result.Fetched++
		metrics.RecordMessage("fetched")

		parsed, err := parseMessage(raw, account.ID, folderName)
		if err != nil {
			// A message that cannot be decoded is recorded as failed and the
			// cursor still moves past it, otherwise it would wedge the folder.
			e.log.Warnf("[%s][%s] skipping unparseable message uid %d: %v",
				account.ID, folderName, raw.UID, err)
			result.Failed++
			metrics.RecordMessage("failed")
			if raw.UID > newHighWaterMark {
				newHighWaterMark = raw.UID
			}
			continue
		}

		if len(parsed.Attachments) > 0 {
			outcomes := e.processor.ProcessAll(ctx, parsed.Attachments)
			parsed.Message.Attachments = e.buildAttachmentRows(outcomes, result)
		}

		batch.Messages = append(batch.Messages, parsed.Message)
		if raw.UID > newHighWaterMark {
			newHighWaterMark = raw.UID
		}
	}

	batch.NewHighWaterMark = newHighWaterMark
	if err := e.checkpoints.CommitBatch(ctx, batch); err != nil {
		return lastUID, err
	}

	result.Committed += len(batch.Messages)
	for _, message := range batch.Messages {
		metrics.RecordMessage("committed")
		e.publishMessageArchived(ctx, message)
	}

	return newHighWaterMark, nil
}

// buildAttachmentRows converts pipeline outcomes into rows. Extraction
// failures stay local to the attachment: the row records the reason and the
// message commits regardless.
func (e *Engine) buildAttachmentRows(outcomes []*interfaces.AttachmentResult, result *interfaces.CycleResult) []models.Attachment {
	rows := make([]models.Attachment, 0, len(outcomes))
	for _, outcome := range outcomes {
		if outcome == nil {
			continue
		}

		if outcome.SkippedReason != nil {
			if *outcome.SkippedReason == enum.SkippedExtractionFailed {
				result.Failed++
			} else {
				result.Skipped++
			}
		}

		rows = append(rows, models.Attachment{
			Filename:      outcome.Filename,
			ContentType:   outcome.ContentType,
			ContentID:     outcome.ContentID,
			IsInline:      outcome.IsInline,
			Size:          outcome.Size,
			Checksum:      outcome.Checksum,
			ExtractedText: outcome.ExtractedText,
			SkippedReason: outcome.SkippedReason,
			ProcessedIn:   outcome.ProcessedIn,
		})
	}
	return rows
}

func (e *Engine) publishMessageArchived(ctx context.Context, message *models.Message) {
	if e.publisher == nil {
		return
	}
	event := dto.MessageArchived{
		MessageID:     message.ID,
		AccountID:     message.AccountID,
		Folder:        message.Folder,
		ImapUID:       message.ImapUID,
		HasAttachment: message.HasAttachment,
	}
	if err := e.publisher.PublishMessageArchived(ctx, event); err != nil {
		e.log.Errorf("failed to publish message archived event: %v", err)
	}
}

func (e *Engine) publishSyncCompleted(ctx context.Context, accountID string, result *interfaces.CycleResult) {
	if e.publisher == nil {
		return
	}
	outcome := enum.SyncOutcomeSuccess
	if result.Failed > 0 {
		outcome = enum.SyncOutcomePartial
	}
	event := dto.SyncCompleted{
		AccountID: accountID,
		Outcome:   outcome,
		Fetched:   result.Fetched,
		Committed: result.Committed,
		Skipped:   result.Skipped,
		Failed:    result.Failed,
	}
	if err := e.publisher.PublishSyncCompleted(ctx, event); err != nil {
		e.log.Errorf("failed to publish sync completed event: %v", err)
	}
}

// IsConnectionError classifies transport-level failures that warrant
// abandoning the session and backing off.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}

	errorMsg := err.Error()
	return strings.Contains(errorMsg, "connection closed") ||
		strings.Contains(errorMsg, "i/o timeout") ||
		strings.Contains(errorMsg, "EOF") ||
		strings.Contains(errorMsg, "connection reset") ||
		strings.Contains(errorMsg, "failed to connect")
}
