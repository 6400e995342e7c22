package imap

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"sort"
	"time"

	goimap "github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/mailvault/mailvault/interfaces"
	"github.com/mailvault/mailvault/internal/enum"
	"github.com/mailvault/mailvault/internal/logger"
	"github.com/mailvault/mailvault/internal/metrics"
	"github.com/mailvault/mailvault/internal/models"
	"github.com/mailvault/mailvault/internal/tracing"
)

// Dialer opens authenticated IMAP sessions for accounts.
type Dialer struct {
	connectTimeout time.Duration
	log            logger.Logger
}

func NewDialer(connectTimeout time.Duration, log logger.Logger) interfaces.IMAPDialer {
	if connectTimeout <= 0 {
		connectTimeout = 30 * time.Second
	}
	return &Dialer{connectTimeout: connectTimeout, log: log}
}

func (d *Dialer) Dial(ctx context.Context, account *models.Account) (interfaces.IMAPSession, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "Dialer.Dial")
	defer span.Finish()
	tracing.TagComponentService(span)
	tracing.TagAccount(span, account.ID)
	span.SetTag("server", account.ImapServer)
	span.SetTag("port", account.ImapPort)

	serverAddr := fmt.Sprintf("%s:%d", account.ImapServer, account.ImapPort)

	dialer := &net.Dialer{
		Timeout:   d.connectTimeout,
		KeepAlive: 30 * time.Second,
	}

	var c *client.Client
	var err error

	switch account.ImapSecurity {
	case enum.EmailSecurityTLS:
		tlsConfig := &tls.Config{ServerName: account.ImapServer}
		c, err = client.DialWithDialerTLS(dialer, serverAddr, tlsConfig)
	case enum.EmailSecurityStartTLS:
		c, err = client.DialWithDialer(dialer, serverAddr)
		if err == nil {
			tlsConfig := &tls.Config{ServerName: account.ImapServer}
			if startErr := c.StartTLS(tlsConfig); startErr != nil {
				c.Logout()
				err = startErr
			}
		}
	default:
		c, err = client.DialWithDialer(dialer, serverAddr)
	}
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to connect to %s: %w", serverAddr, err)
	}

	c.Timeout = d.connectTimeout
	if err := c.Login(account.ImapUsername, account.ImapPassword); err != nil {
		c.Logout()
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to login as %s: %w", account.ImapUsername, err)
	}
	c.Timeout = 0 // no timeout for normal operations

	return &session{client: c, log: d.log, accountID: account.ID}, nil
}

// session wraps one logged-in IMAP connection.
type session struct {
	client    *client.Client
	log       logger.Logger
	accountID string
}

func (s *session) SelectFolder(folderName string) (*interfaces.FolderIdentity, error) {
	status, err := s.client.Select(folderName, true)
	if err != nil {
		return nil, fmt.Errorf("failed to select folder %s: %w", folderName, err)
	}
	return &interfaces.FolderIdentity{
		Name:        folderName,
		UIDValidity: status.UidValidity,
		Messages:    status.Messages,
	}, nil
}

// SearchSince returns UIDs strictly above lastUID, ascending, at most max.
func (s *session) SearchSince(lastUID uint32, max int) ([]uint32, error) {
	seqSet := new(goimap.SeqSet)
	seqSet.AddRange(lastUID+1, 0) // 0 means "*"

	criteria := goimap.NewSearchCriteria()
	criteria.Uid = seqSet

	uids, err := s.client.UidSearch(criteria)
	if err != nil {
		return nil, errors.Wrap(err, "uid search failed")
	}

	// Servers treat lastUID+1:* as including the last message when the
	// mailbox has no newer ones; drop anything at or below the cursor.
	filtered := uids[:0]
	for _, uid := range uids {
		if uid > lastUID {
			filtered = append(filtered, uid)
		}
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i] < filtered[j] })

	if max > 0 && len(filtered) > max {
		filtered = filtered[:max]
	}
	return filtered, nil
}

func (s *session) FetchMessages(uids []uint32) ([]*interfaces.RawMessage, error) {
	if len(uids) == 0 {
		return nil, nil
	}

	seqSet := new(goimap.SeqSet)
	for _, uid := range uids {
		seqSet.AddNum(uid)
	}

	section := &goimap.BodySectionName{Peek: true}
	items := []goimap.FetchItem{section.FetchItem(), goimap.FetchUid}

	messages := make(chan *goimap.Message, len(uids))
	done := make(chan error, 1)

	s.client.Timeout = 60 * time.Second
	go func() {
		done <- s.client.UidFetch(seqSet, items, messages)
	}()

	var result []*interfaces.RawMessage
	var dropped int
	for msg := range messages {
		body := msg.GetBody(section)
		if body == nil {
			s.log.Warnf("[%s] fetch response for uid %d carried no body section", s.accountID, msg.Uid)
			dropped++
			continue
		}
		raw, err := io.ReadAll(body)
		if err != nil {
			s.log.Warnf("[%s] failed to read body for uid %d: %v", s.accountID, msg.Uid, err)
			dropped++
			continue
		}
		result = append(result, &interfaces.RawMessage{
			UID:  msg.Uid,
			Body: raw,
		})
	}
	if dropped > 0 {
		metrics.MessagesProcessed.WithLabelValues("failed").Add(float64(dropped))
	}

	err := <-done
	s.client.Timeout = 0
	if err != nil {
		return nil, errors.Wrap(err, "uid fetch failed")
	}

	// Fetch responses can arrive in any order; the engine expects ascending.
	sort.Slice(result, func(i, j int) bool { return result[i].UID < result[j].UID })
	return result, nil
}

func (s *session) Logout() error {
	done := make(chan error, 1)
	go func() {
		done <- s.client.Logout()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		return errors.New("logout timed out")
	}
}
