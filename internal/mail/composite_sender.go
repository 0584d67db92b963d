package mail

import (
	"context"
	"errors"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// CompositeSender доставляет письмо через primary и дублирует его в копии
// (файл и т.п.). Результат отправки определяет только primary.
type CompositeSender struct {
	primary Sender
	copies  []Sender
	log     *zap.Logger
}

func NewCompositeSender(primary Sender, log *zap.Logger, copies ...Sender) *CompositeSender {
	return &CompositeSender{primary: primary, copies: copies, log: log.Named("mail")}
}

// Send: ошибка копии пишется в лог и не возвращается, письмо к этому моменту
// уже доставлено. Копии делаются только после успешной доставки.
func (cs *CompositeSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	if cs.primary == nil {
		return errors.New("no primary sender configured")
	}
	if err := cs.primary.Send(ctx, to, subject, rawMessage); err != nil {
		return err
	}

	var copyErr error
	for _, sender := range cs.copies {
		copyErr = multierr.Append(copyErr, sender.Send(ctx, to, subject, rawMessage))
	}
	if copyErr != nil {
		cs.log.Warn("email delivered but copy failed",
			zap.Strings("to", to),
			zap.String("subject", subject),
			zap.Error(copyErr),
		)
	}
	return nil
}
