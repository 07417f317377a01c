package presenter

import (
	"context"

	"go.uber.org/zap"

	"github.com/rl1809/collectible-trade/internal/core/domain"
)

// LogPresenter writes every notice to the log. It is the default presenter
// when no broker is configured.
type LogPresenter struct {
	logger *zap.Logger
}

func NewLogPresenter(logger *zap.Logger) *LogPresenter {
	return &LogPresenter{logger: logger}
}

func (p *LogPresenter) Present(ctx context.Context, view domain.StageView) error {
	for _, n := range RenderView(view) {
		p.logger.Info(n.Text,
			zap.String("session_id", view.SessionID),
			zap.String("stage", string(view.Stage)),
			zap.Int("version", view.Version),
			zap.String("to", n.UserID),
		)
	}
	return nil
}

func (p *LogPresenter) NotifyOutcome(ctx context.Context, outcome domain.Outcome) error {
	fields := []zap.Field{
		zap.String("session_id", outcome.SessionID),
		zap.String("stage", string(outcome.Stage)),
	}
	if outcome.Reason != "" {
		fields = append(fields, zap.String("reason", string(outcome.Reason)))
	}
	for _, n := range RenderOutcome(outcome) {
		p.logger.Info(n.Text, append(fields, zap.String("to", n.UserID))...)
	}
	return nil
}
