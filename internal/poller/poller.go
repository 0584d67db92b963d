// Package poller периодически читает почтовый ящик и превращает ответы
// поставщиков в предложения.
//
// Письмо помечается прочитанным только после того, как его судьба решена:
// предложение сохранено, или письмо заведомо не может быть обработано.
// При временных сбоях письмо остаётся непрочитанным и будет разобрано
// на следующем проходе; повтор отсекается по Message-ID.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"procurement/internal/config"
	"procurement/internal/extraction"
	"procurement/internal/logging"
	"procurement/internal/mail"
	"procurement/internal/metrics"
	"procurement/internal/rfp"
	"procurement/models"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type Recorder interface {
	RecordProposal(ctx context.Context, reply rfp.Reply) (*models.Proposal, error)
}

// Исходы обработки письма, они же метки метрики
const (
	outcomeRecorded = "recorded"
	outcomeIgnored  = "ignored"
	outcomeFailed   = "failed"
	outcomeDeferred = "deferred"
)

type Poller struct {
	dialer   mail.Dialer
	recorder Recorder
	interval time.Duration
	log      *zap.Logger

	// running держит один проход за раз
	running sync.Mutex
	cron    *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
}

func New(dialer mail.Dialer, recorder Recorder, cfg config.IMAPConfig, log *zap.Logger) *Poller {
	log = log.Named("poller")
	ctx, cancel := context.WithCancel(context.Background())
	cronLog := logging.NewCronLogger(log)
	return &Poller{
		dialer:   dialer,
		recorder: recorder,
		interval: cfg.PollInterval,
		log:      log,
		cron:     cron.New(cron.WithLogger(cronLog), cron.WithChain(cron.Recover(cronLog))),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start планирует проходы раз в interval. Первый проход - через interval.
func (p *Poller) Start() error {
	if p.interval < time.Second {
		return fmt.Errorf("poll interval %s is below 1s", p.interval)
	}
	if _, err := p.cron.AddFunc("@every "+p.interval.String(), p.Tick); err != nil {
		return fmt.Errorf("schedule mailbox scan: %w", err)
	}
	p.cron.Start()
	p.log.Info("mailbox poller started", zap.Duration("interval", p.interval))
	return nil
}

// Stop прекращает планирование, прерывает текущий проход и ждёт его завершения.
// Прерванные письма остаются непрочитанными.
func (p *Poller) Stop(ctx context.Context) error {
	p.cancel()
	select {
	case <-p.cron.Stop().Done():
		p.log.Info("mailbox poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Tick запускает проход, если предыдущий уже закончился. Иначе пропускает.
func (p *Poller) Tick() {
	if !p.running.TryLock() {
		metrics.PollerScans.WithLabelValues("skipped").Inc()
		p.log.Debug("previous scan still running, skipping")
		return
	}
	defer p.running.Unlock()

	if err := p.Scan(p.ctx); err != nil {
		p.log.Warn("mailbox scan aborted", zap.Error(err))
	}
}

// Scan - один проход: подключиться, забрать непрочитанные, обработать по порядку, отключиться.
func (p *Poller) Scan(ctx context.Context) error {
	mb, err := p.dialer.Dial(ctx)
	if err != nil {
		metrics.PollerScans.WithLabelValues("unavailable").Inc()
		return err
	}
	defer func() {
		if err := mb.Close(); err != nil {
			p.log.Debug("mailbox close failed", zap.Error(err))
		}
	}()

	messages, err := mb.FetchUnseen(ctx)
	if err != nil {
		metrics.PollerScans.WithLabelValues("unavailable").Inc()
		return err
	}
	metrics.PollerScans.WithLabelValues("ok").Inc()
	if len(messages) == 0 {
		return nil
	}

	counts := make(map[string]int, 4)
	defer func() {
		p.log.Info("mailbox scan finished",
			zap.Int("fetched", len(messages)),
			zap.Int(outcomeRecorded, counts[outcomeRecorded]),
			zap.Int(outcomeIgnored, counts[outcomeIgnored]),
			zap.Int(outcomeFailed, counts[outcomeFailed]),
			zap.Int(outcomeDeferred, counts[outcomeDeferred]),
		)
	}()

	for _, msg := range messages {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		outcome := p.process(ctx, msg)
		counts[outcome]++
		metrics.InboundMessages.WithLabelValues(outcome).Inc()
		if outcome == outcomeDeferred {
			continue
		}
		if err := mb.MarkSeen(ctx, []uint32{msg.UID}); err != nil {
			// повтор на следующем проходе отсечёт Message-ID
			p.log.Warn("failed to mark message seen", zap.Uint32("uid", msg.UID), zap.Error(err))
		}
	}
	return nil
}

func (p *Poller) process(ctx context.Context, msg mail.RawMessage) string {
	log := p.log.With(zap.Uint32("uid", msg.UID))

	in, err := mail.ParseMessage(msg.Raw)
	if err != nil {
		log.Warn("skipping unparsable message", zap.Error(err))
		return outcomeFailed
	}
	log = log.With(zap.String("from", in.From), zap.String("message_id", in.MessageID))

	rfpID, ok := rfp.ExtractRef(in.Subject)
	if !ok {
		log.Debug("no reference token in subject, ignoring", zap.String("subject", in.Subject))
		return outcomeIgnored
	}
	log = log.With(zap.String("rfp_id", rfpID))

	proposal, err := p.recorder.RecordProposal(ctx, rfp.Reply{
		VendorEmail: in.From,
		Body:        in.Body,
		RFPID:       rfpID,
		MessageID:   in.MessageID,
	})
	if err == nil {
		log.Info("reply recorded", zap.String("proposal_id", proposal.ID))
		return outcomeRecorded
	}
	if permanent(err) {
		log.Warn("reply rejected", zap.Error(err))
		return outcomeFailed
	}
	log.Warn("reply deferred to next scan", zap.Error(err))
	return outcomeDeferred
}

// permanent: повторная обработка того же письма даст тот же результат
func permanent(err error) bool {
	var (
		uv *rfp.UnknownVendorError
		nf *rfp.NotFoundError
	)
	switch {
	case errors.As(err, &uv), errors.As(err, &nf):
		return true
	case extraction.IsExtractionError(err):
		return true
	case errors.Is(err, rfp.ErrRFPClosed), errors.Is(err, rfp.ErrInvalidInput):
		return true
	}
	return false
}
