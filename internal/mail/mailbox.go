package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"procurement/internal/config"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"go.uber.org/zap"
)

// RawMessage - непрочитанное письмо как есть, с UID в ящике
type RawMessage struct {
	UID uint32
	Raw []byte
}

// Mailbox - одно подключение к ящику на время одного прохода.
// FetchUnseen не меняет флаги, пометку делает только MarkSeen.
type Mailbox interface {
	FetchUnseen(ctx context.Context) ([]RawMessage, error)
	MarkSeen(ctx context.Context, uids []uint32) error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context) (Mailbox, error)
}

// MailboxUnavailableError: ящик недоступен (сеть, авторизация, выбор папки).
// Проход пропускается целиком, следующий тик пробует снова.
type MailboxUnavailableError struct {
	Err error
}

func (e *MailboxUnavailableError) Error() string {
	return "mailbox unavailable: " + e.Err.Error()
}

func (e *MailboxUnavailableError) Unwrap() error {
	return e.Err
}

const dialTimeout = 30 * time.Second

type IMAPDialer struct {
	cfg config.IMAPConfig
	log *zap.Logger
}

func NewIMAPDialer(cfg config.IMAPConfig, log *zap.Logger) *IMAPDialer {
	return &IMAPDialer{cfg: cfg, log: log.Named("imap")}
}

func (d *IMAPDialer) Dial(ctx context.Context) (Mailbox, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	addr := net.JoinHostPort(d.cfg.Host, strconv.Itoa(d.cfg.Port))
	tlsCfg := &tls.Config{
		ServerName:         d.cfg.Host,
		InsecureSkipVerify: d.cfg.InsecureSkipVerify, //nolint:gosec // включается только явно в конфиге
	}

	c, err := client.DialWithDialerTLS(&net.Dialer{Timeout: dialTimeout}, addr, tlsCfg)
	if err != nil {
		return nil, &MailboxUnavailableError{Err: fmt.Errorf("dial %s: %w", addr, err)}
	}
	c.Timeout = dialTimeout

	if err := c.Login(d.cfg.Username, d.cfg.Password); err != nil {
		_ = c.Logout()
		return nil, &MailboxUnavailableError{Err: fmt.Errorf("login: %w", err)}
	}
	if _, err := c.Select(d.cfg.Mailbox, false); err != nil {
		_ = c.Logout()
		return nil, &MailboxUnavailableError{Err: fmt.Errorf("select %s: %w", d.cfg.Mailbox, err)}
	}
	return &imapMailbox{c: c, log: d.log}, nil
}

type imapMailbox struct {
	c   *client.Client
	log *zap.Logger
}

func (m *imapMailbox) FetchUnseen(ctx context.Context) ([]RawMessage, error) {
	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	uids, err := m.c.UidSearch(criteria)
	if err != nil {
		return nil, &MailboxUnavailableError{Err: fmt.Errorf("search unseen: %w", err)}
	}
	if len(uids) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)
	// PEEK не ставит \Seen при чтении
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, 16)
	done := make(chan error, 1)
	go func() {
		done <- m.c.UidFetch(seqset, items, messages)
	}()

	out := make([]RawMessage, 0, len(uids))
	for msg := range messages {
		body := msg.GetBody(section)
		if body == nil {
			m.log.Warn("message without body", zap.Uint32("uid", msg.Uid))
			continue
		}
		raw, err := io.ReadAll(body)
		if err != nil {
			m.log.Warn("failed to read message body", zap.Uint32("uid", msg.Uid), zap.Error(err))
			continue
		}
		out = append(out, RawMessage{UID: msg.Uid, Raw: raw})
	}
	if err := <-done; err != nil {
		return nil, &MailboxUnavailableError{Err: fmt.Errorf("fetch: %w", err)}
	}
	return out, nil
}

func (m *imapMailbox) MarkSeen(_ context.Context, uids []uint32) error {
	if len(uids) == 0 {
		return nil
	}
	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)
	item := imap.FormatFlagsOp(imap.AddFlags, true)
	if err := m.c.UidStore(seqset, item, []interface{}{imap.SeenFlag}, nil); err != nil {
		return fmt.Errorf("mark seen: %w", err)
	}
	return nil
}

func (m *imapMailbox) Close() error {
	return m.c.Logout()
}
