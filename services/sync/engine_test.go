package sync

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailvault/mailvault/config"
	"github.com/mailvault/mailvault/interfaces"
	"github.com/mailvault/mailvault/internal/enum"
	er "github.com/mailvault/mailvault/internal/errors"
	"github.com/mailvault/mailvault/internal/logger"
	"github.com/mailvault/mailvault/internal/models"
	"github.com/mailvault/mailvault/services/extract"
	"github.com/mailvault/mailvault/services/pipeline"
)

func getLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{
		DevMode: true,
	})
	appLogger.InitLogger()
	return appLogger
}

func getSyncConfig() *config.SyncConfig {
	return &config.SyncConfig{
		CheckIntervalSeconds:  30,
		MaxBatchSize:          50,
		MaxMessagesPerCycle:   500,
		LeaseTTLSeconds:       300,
		BackoffInitialSeconds: 10,
		BackoffMaxSeconds:     900,
		ConnectTimeoutSeconds: 30,
		DefaultFolder:         "INBOX",
	}
}

func rawRFC822(uid uint32, subject string) *interfaces.RawMessage {
	body := fmt.Sprintf("Message-Id: <msg-%d@example.com>\r\n"+
		"From: Alice Sender <alice@example.com>\r\n"+
		"To: bob@example.com\r\n"+
		"Subject: %s\r\n"+
		"Date: Mon, 02 Jan 2006 15:04:05 -0700\r\n"+
		"Content-Type: text/plain; charset=utf-8\r\n"+
		"\r\n"+
		"body of message %d\r\n", uid, subject, uid)
	return &interfaces.RawMessage{UID: uid, Body: []byte(body)}
}

// fakeSession serves a fixed folder state from memory. When selectErrFolder
// is set, selecting that folder fails and the others keep working.
type fakeSession struct {
	uidValidity     uint32
	messages        map[uint32]*interfaces.RawMessage
	loggedOut       bool
	selectErr       error
	selectErrFolder string
}

func (s *fakeSession) SelectFolder(folderName string) (*interfaces.FolderIdentity, error) {
	if s.selectErr != nil && (s.selectErrFolder == "" || s.selectErrFolder == folderName) {
		return nil, s.selectErr
	}
	return &interfaces.FolderIdentity{
		Name:        folderName,
		UIDValidity: s.uidValidity,
		Messages:    uint32(len(s.messages)),
	}, nil
}

func (s *fakeSession) SearchSince(lastUID uint32, max int) ([]uint32, error) {
	var uids []uint32
	for uid := range s.messages {
		if uid > lastUID {
			uids = append(uids, uid)
		}
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	if max > 0 && len(uids) > max {
		uids = uids[:max]
	}
	return uids, nil
}

func (s *fakeSession) FetchMessages(uids []uint32) ([]*interfaces.RawMessage, error) {
	var raws []*interfaces.RawMessage
	for _, uid := range uids {
		if raw, ok := s.messages[uid]; ok {
			raws = append(raws, raw)
		}
	}
	return raws, nil
}

func (s *fakeSession) Logout() error {
	s.loggedOut = true
	return nil
}

type fakeDialer struct {
	session *fakeSession
	dialErr error
}

func (d *fakeDialer) Dial(ctx context.Context, account *models.Account) (interfaces.IMAPSession, error) {
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	return d.session, nil
}

// fakeCheckpoints keeps cursors and committed messages in memory with the
// same optimistic-concurrency contract as the database implementation.
type fakeCheckpoints struct {
	checkpoints map[string]*models.MailboxCheckpoint
	committed   []*models.Message

	// staleOnce simulates one concurrent cursor advance to the given mark
	// before the first commit lands.
	staleOnce     bool
	staleAdvance  uint32
	commitBatches int
}

func newFakeCheckpoints() *fakeCheckpoints {
	return &fakeCheckpoints{checkpoints: make(map[string]*models.MailboxCheckpoint)}
}

func key(accountID, folderName string) string {
	return accountID + "|" + folderName
}

func (f *fakeCheckpoints) Read(ctx context.Context, accountID, folderName string) (*models.MailboxCheckpoint, error) {
	checkpoint, ok := f.checkpoints[key(accountID, folderName)]
	if !ok {
		return nil, nil
	}
	copied := *checkpoint
	return &copied, nil
}

func (f *fakeCheckpoints) CommitBatch(ctx context.Context, batch *interfaces.CommitBatch) error {
	f.commitBatches++

	checkpoint, ok := f.checkpoints[key(batch.AccountID, batch.FolderName)]
	if !ok {
		return er.ErrStaleCheckpoint
	}

	if f.staleOnce {
		f.staleOnce = false
		checkpoint.HighWaterMark = f.staleAdvance
		return er.ErrStaleCheckpoint
	}

	if checkpoint.HighWaterMark != batch.ExpectedHighWaterMark || checkpoint.IdentityEpoch != batch.IdentityEpoch {
		return er.ErrStaleCheckpoint
	}

	f.committed = append(f.committed, batch.Messages...)
	checkpoint.HighWaterMark = batch.NewHighWaterMark
	return nil
}

func (f *fakeCheckpoints) Reset(ctx context.Context, accountID, folderName string, newEpoch uint32) error {
	f.checkpoints[key(accountID, folderName)] = &models.MailboxCheckpoint{
		AccountID:     accountID,
		FolderName:    folderName,
		HighWaterMark: 0,
		IdentityEpoch: newEpoch,
	}
	return nil
}

type fakeProcessor struct{}

func (fakeProcessor) Process(ctx context.Context, input interfaces.AttachmentInput) *interfaces.AttachmentResult {
	return &interfaces.AttachmentResult{Filename: input.Filename}
}

func (fakeProcessor) ProcessAll(ctx context.Context, inputs []interfaces.AttachmentInput) []*interfaces.AttachmentResult {
	results := make([]*interfaces.AttachmentResult, len(inputs))
	for i, input := range inputs {
		results[i] = &interfaces.AttachmentResult{Filename: input.Filename}
	}
	return results
}

func testAccount() *models.Account {
	return &models.Account{
		ID:         "acct_test",
		ImapServer: "imap.example.com",
		ImapPort:   993,
		Folders:    []string{"INBOX"},
		Enabled:    true,
	}
}

// getTestPipeline builds a real extraction pipeline with scaled-down tier
// thresholds so the tier boundaries can be crossed with small payloads.
func getTestPipeline(t *testing.T) *pipeline.Processor {
	t.Helper()

	cfg := &config.PipelineConfig{
		MemoryThresholdBytes:     10 * 1024,
		TempFileThresholdBytes:   50 * 1024,
		ExtractionTimeoutSeconds: 5,
		Workers:                  2,
		TempDir:                  t.TempDir(),
		DedupCacheSize:           16,
	}
	log := getLogger()
	processor, err := pipeline.NewProcessor(cfg, extract.NewRegistry(cfg, log), log)
	require.NoError(t, err)
	return processor
}

func rawWithAttachment(uid uint32, filename, contentType string, payload []byte) *interfaces.RawMessage {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Message-Id: <msg-%d@example.com>\r\n", uid)
	sb.WriteString("From: alice@example.com\r\n")
	sb.WriteString("To: bob@example.com\r\n")
	fmt.Fprintf(&sb, "Subject: message %d with attachment\r\n", uid)
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: multipart/mixed; boundary=\"frontier\"\r\n")
	sb.WriteString("\r\n")
	sb.WriteString("--frontier\r\n")
	sb.WriteString("Content-Type: text/plain\r\n")
	sb.WriteString("\r\n")
	sb.WriteString("see attached\r\n")
	sb.WriteString("--frontier\r\n")
	fmt.Fprintf(&sb, "Content-Type: %s; name=%q\r\n", contentType, filename)
	fmt.Fprintf(&sb, "Content-Disposition: attachment; filename=%q\r\n", filename)
	sb.WriteString("Content-Transfer-Encoding: base64\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(base64Lines(payload))
	sb.WriteString("\r\n--frontier--\r\n")
	return &interfaces.RawMessage{UID: uid, Body: []byte(sb.String())}
}

func base64Lines(payload []byte) string {
	encoded := base64.StdEncoding.EncodeToString(payload)
	var sb strings.Builder
	for len(encoded) > 76 {
		sb.WriteString(encoded[:76])
		sb.WriteString("\r\n")
		encoded = encoded[76:]
	}
	sb.WriteString(encoded)
	return sb.String()
}

func TestSyncAccount_ArchivesNewMessages(t *testing.T) {
	session := &fakeSession{
		uidValidity: 7,
		messages: map[uint32]*interfaces.RawMessage{
			1: rawRFC822(1, "first"),
			2: rawRFC822(2, "second"),
			5: rawRFC822(5, "third"),
		},
	}
	checkpoints := newFakeCheckpoints()
	engine := NewEngine(getSyncConfig(), &fakeDialer{session: session}, checkpoints, fakeProcessor{}, nil, getLogger())

	result, err := engine.SyncAccount(context.Background(), testAccount())

	require.NoError(t, err)
	assert.Equal(t, 3, result.Fetched)
	assert.Equal(t, 3, result.Committed)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, 0, result.IdentityResets)
	assert.True(t, session.loggedOut)

	checkpoint, _ := checkpoints.Read(context.Background(), "acct_test", "INBOX")
	require.NotNil(t, checkpoint)
	assert.Equal(t, uint32(5), checkpoint.HighWaterMark)
	assert.Equal(t, uint32(7), checkpoint.IdentityEpoch)

	require.Len(t, checkpoints.committed, 3)
	assert.Equal(t, "msg-1@example.com", checkpoints.committed[0].MessageID)
	assert.Equal(t, "first", checkpoints.committed[0].Subject)
	assert.Equal(t, uint32(5), checkpoints.committed[2].ImapUID)
}

func TestSyncAccount_SecondRunFetchesNothing(t *testing.T) {
	session := &fakeSession{
		uidValidity: 7,
		messages: map[uint32]*interfaces.RawMessage{
			1: rawRFC822(1, "first"),
			2: rawRFC822(2, "second"),
		},
	}
	checkpoints := newFakeCheckpoints()
	engine := NewEngine(getSyncConfig(), &fakeDialer{session: session}, checkpoints, fakeProcessor{}, nil, getLogger())

	_, err := engine.SyncAccount(context.Background(), testAccount())
	require.NoError(t, err)

	result, err := engine.SyncAccount(context.Background(), testAccount())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Fetched)
	assert.Equal(t, 0, result.Committed)
	assert.Len(t, checkpoints.committed, 2)
}

func TestSyncAccount_ResumesFromHighWaterMark(t *testing.T) {
	session := &fakeSession{
		uidValidity: 7,
		messages: map[uint32]*interfaces.RawMessage{
			1: rawRFC822(1, "old"),
			2: rawRFC822(2, "old too"),
		},
	}
	checkpoints := newFakeCheckpoints()
	engine := NewEngine(getSyncConfig(), &fakeDialer{session: session}, checkpoints, fakeProcessor{}, nil, getLogger())

	_, err := engine.SyncAccount(context.Background(), testAccount())
	require.NoError(t, err)

	// New mail arrives after the first cycle
	session.messages[3] = rawRFC822(3, "fresh")
	session.messages[4] = rawRFC822(4, "fresher")

	result, err := engine.SyncAccount(context.Background(), testAccount())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Fetched)
	assert.Equal(t, 2, result.Committed)

	checkpoint, _ := checkpoints.Read(context.Background(), "acct_test", "INBOX")
	assert.Equal(t, uint32(4), checkpoint.HighWaterMark)
}

func TestSyncAccount_UIDValidityChangeTriggersFullResync(t *testing.T) {
	session := &fakeSession{
		uidValidity: 99,
		messages: map[uint32]*interfaces.RawMessage{
			1: rawRFC822(1, "renumbered"),
			2: rawRFC822(2, "renumbered too"),
		},
	}
	checkpoints := newFakeCheckpoints()
	// Cursor from a previous epoch, already past these UIDs
	checkpoints.checkpoints[key("acct_test", "INBOX")] = &models.MailboxCheckpoint{
		AccountID:     "acct_test",
		FolderName:    "INBOX",
		HighWaterMark: 50,
		IdentityEpoch: 7,
	}
	engine := NewEngine(getSyncConfig(), &fakeDialer{session: session}, checkpoints, fakeProcessor{}, nil, getLogger())

	result, err := engine.SyncAccount(context.Background(), testAccount())

	require.NoError(t, err)
	assert.Equal(t, 1, result.IdentityResets)
	assert.Equal(t, 2, result.Fetched)
	assert.Equal(t, 2, result.Committed)

	checkpoint, _ := checkpoints.Read(context.Background(), "acct_test", "INBOX")
	assert.Equal(t, uint32(99), checkpoint.IdentityEpoch)
	assert.Equal(t, uint32(2), checkpoint.HighWaterMark)
}

func TestSyncAccount_UnparseableMessageAdvancesCursor(t *testing.T) {
	session := &fakeSession{
		uidValidity: 7,
		messages: map[uint32]*interfaces.RawMessage{
			1: rawRFC822(1, "good"),
			2: {UID: 2, Body: []byte{}}, // zero-length fetch literal, cannot be decoded
			3: rawRFC822(3, "also good"),
		},
	}
	checkpoints := newFakeCheckpoints()
	engine := NewEngine(getSyncConfig(), &fakeDialer{session: session}, checkpoints, fakeProcessor{}, nil, getLogger())

	result, err := engine.SyncAccount(context.Background(), testAccount())

	require.NoError(t, err)
	assert.Equal(t, 3, result.Fetched)
	assert.Equal(t, 2, result.Committed)
	assert.Equal(t, 1, result.Failed)

	// The poison message must not wedge the folder
	checkpoint, _ := checkpoints.Read(context.Background(), "acct_test", "INBOX")
	assert.Equal(t, uint32(3), checkpoint.HighWaterMark)
}

func TestSyncAccount_StaleCheckpointResumesSameEpoch(t *testing.T) {
	session := &fakeSession{
		uidValidity: 7,
		messages: map[uint32]*interfaces.RawMessage{
			1: rawRFC822(1, "claimed elsewhere"),
			2: rawRFC822(2, "still ours"),
			3: rawRFC822(3, "ours too"),
		},
	}
	checkpoints := newFakeCheckpoints()
	require.NoError(t, checkpoints.Reset(context.Background(), "acct_test", "INBOX", 7))
	// Another writer commits uid 1 between our read and our commit
	checkpoints.staleOnce = true
	checkpoints.staleAdvance = 1

	engine := NewEngine(getSyncConfig(), &fakeDialer{session: session}, checkpoints, fakeProcessor{}, nil, getLogger())

	result, err := engine.SyncAccount(context.Background(), testAccount())

	require.NoError(t, err)
	assert.Equal(t, 2, result.Committed)
	require.Len(t, checkpoints.committed, 2)
	assert.Equal(t, uint32(2), checkpoints.committed[0].ImapUID)
	assert.Equal(t, uint32(3), checkpoints.committed[1].ImapUID)

	checkpoint, _ := checkpoints.Read(context.Background(), "acct_test", "INBOX")
	assert.Equal(t, uint32(3), checkpoint.HighWaterMark)
}

func TestSyncAccount_FolderFailureDoesNotAbortOthers(t *testing.T) {
	session := &fakeSession{
		uidValidity:     7,
		messages:        map[uint32]*interfaces.RawMessage{1: rawRFC822(1, "hello")},
		selectErr:       fmt.Errorf("NO mailbox does not exist"),
		selectErrFolder: "Broken",
	}
	checkpoints := newFakeCheckpoints()
	engine := NewEngine(getSyncConfig(), &fakeDialer{session: session}, checkpoints, fakeProcessor{}, nil, getLogger())

	account := testAccount()
	account.Folders = []string{"Broken", "INBOX"}

	result, err := engine.SyncAccount(context.Background(), account)

	// The broken folder is recorded as failed and INBOX still commits
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Fetched)
	assert.Equal(t, 1, result.Committed)
	require.Len(t, checkpoints.committed, 1)

	checkpoint, _ := checkpoints.Read(context.Background(), "acct_test", "INBOX")
	require.NotNil(t, checkpoint)
	assert.Equal(t, uint32(1), checkpoint.HighWaterMark)
}

func TestSyncAccount_AttachmentFailureStillCommitsMessage(t *testing.T) {
	session := &fakeSession{
		uidValidity: 7,
		messages: map[uint32]*interfaces.RawMessage{
			1: rawWithAttachment(1, "broken.pdf", "application/pdf", []byte("%PDF-1.7 truncated garbage")),
		},
	}
	checkpoints := newFakeCheckpoints()
	engine := NewEngine(getSyncConfig(), &fakeDialer{session: session}, checkpoints, getTestPipeline(t), nil, getLogger())

	result, err := engine.SyncAccount(context.Background(), testAccount())

	require.NoError(t, err)
	assert.Equal(t, 1, result.Fetched)
	assert.Equal(t, 1, result.Committed)
	assert.Equal(t, 1, result.Failed)

	// The message row lands despite the unextractable attachment
	require.Len(t, checkpoints.committed, 1)
	message := checkpoints.committed[0]
	assert.True(t, message.HasAttachment)
	require.Len(t, message.Attachments, 1)

	row := message.Attachments[0]
	assert.Equal(t, "broken.pdf", row.Filename)
	require.NotNil(t, row.SkippedReason)
	assert.Equal(t, enum.SkippedExtractionFailed, *row.SkippedReason)
	assert.Nil(t, row.ExtractedText)
	assert.Len(t, row.Checksum, 64)

	checkpoint, _ := checkpoints.Read(context.Background(), "acct_test", "INBOX")
	assert.Equal(t, uint32(1), checkpoint.HighWaterMark)
}

func TestSyncAccount_AttachmentTierOutcomes(t *testing.T) {
	// One attachment per tier: in memory, spooled to a temp file, and
	// skipped outright for size. Thresholds are 10KiB/50KiB in the test
	// pipeline.
	session := &fakeSession{
		uidValidity: 7,
		messages: map[uint32]*interfaces.RawMessage{
			1: rawWithAttachment(1, "small.txt", "text/plain", bytes.Repeat([]byte("a"), 1024)),
			2: rawWithAttachment(2, "medium.txt", "text/plain", bytes.Repeat([]byte("b"), 20*1024)),
			3: rawWithAttachment(3, "huge.txt", "text/plain", bytes.Repeat([]byte("c"), 80*1024)),
		},
	}
	checkpoints := newFakeCheckpoints()
	engine := NewEngine(getSyncConfig(), &fakeDialer{session: session}, checkpoints, getTestPipeline(t), nil, getLogger())

	result, err := engine.SyncAccount(context.Background(), testAccount())

	require.NoError(t, err)
	assert.Equal(t, 3, result.Fetched)
	assert.Equal(t, 3, result.Committed)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 0, result.Failed)

	require.Len(t, checkpoints.committed, 3)

	small := checkpoints.committed[0].Attachments[0]
	assert.Equal(t, enum.ProcessedInMemory, small.ProcessedIn)
	assert.Nil(t, small.SkippedReason)
	require.NotNil(t, small.ExtractedText)

	medium := checkpoints.committed[1].Attachments[0]
	assert.Equal(t, enum.ProcessedInTempStorage, medium.ProcessedIn)
	assert.Nil(t, medium.SkippedReason)
	require.NotNil(t, medium.ExtractedText)

	huge := checkpoints.committed[2].Attachments[0]
	assert.Equal(t, enum.ProcessedSkipped, huge.ProcessedIn)
	require.NotNil(t, huge.SkippedReason)
	assert.Equal(t, enum.SkippedTooLarge, *huge.SkippedReason)
	assert.Nil(t, huge.ExtractedText)
	assert.Equal(t, int64(80*1024), huge.Size)
	assert.Len(t, huge.Checksum, 64)

	checkpoint, _ := checkpoints.Read(context.Background(), "acct_test", "INBOX")
	assert.Equal(t, uint32(3), checkpoint.HighWaterMark)
}

func TestSyncAccount_DialFailure(t *testing.T) {
	checkpoints := newFakeCheckpoints()
	dialer := &fakeDialer{dialErr: fmt.Errorf("failed to connect to imap.example.com:993: i/o timeout")}
	engine := NewEngine(getSyncConfig(), dialer, checkpoints, fakeProcessor{}, nil, getLogger())

	result, err := engine.SyncAccount(context.Background(), testAccount())

	assert.Error(t, err)
	assert.Equal(t, 0, result.Fetched)
	assert.Empty(t, checkpoints.committed)
}

func TestIsConnectionError(t *testing.T) {
	assert.False(t, IsConnectionError(nil))
	assert.False(t, IsConnectionError(fmt.Errorf("failed to parse message uid 3")))
	assert.True(t, IsConnectionError(fmt.Errorf("read tcp: i/o timeout")))
	assert.True(t, IsConnectionError(fmt.Errorf("unexpected EOF")))
	assert.True(t, IsConnectionError(fmt.Errorf("connection reset by peer")))
	assert.True(t, IsConnectionError(fmt.Errorf("failed to connect to host: refused")))
}
