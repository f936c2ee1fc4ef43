package job

import (
	"context"
	"time"

	"walletcore/internal/config"
	"walletcore/internal/infrastructure/mq"
	"walletcore/internal/model"
	"walletcore/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OutboxSender drains pending outbox rows to Kafka. Rows that keep failing
// are parked in FAILED after the configured retry budget.
type OutboxSender struct {
	db         *gorm.DB
	outboxRepo *repository.OutboxRepository
	cfg        *config.Config
	logger     *zap.SugaredLogger
	stopCh     chan struct{}
	interval   time.Duration
	batchSize  int
}

func NewOutboxSender(db *gorm.DB, cfg *config.Config, logger *zap.SugaredLogger) *OutboxSender {
	return &OutboxSender{
		db:         db,
		outboxRepo: repository.NewOutboxRepository(db),
		cfg:        cfg,
		logger:     logger,
		stopCh:     make(chan struct{}),
		interval:   100 * time.Millisecond,
		batchSize:  100,
	}
}

func (s *OutboxSender) Start(ctx context.Context) {
	s.logger.Info("outbox sender started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("outbox sender stopping")
			return
		case <-s.stopCh:
			s.logger.Info("outbox sender stopped")
			return
		case <-ticker.C:
			s.processPendingMessages(ctx)
		}
	}
}

func (s *OutboxSender) Stop() {
	close(s.stopCh)
}

func (s *OutboxSender) processPendingMessages(ctx context.Context) {
	messages, err := s.outboxRepo.GetPendingMessages(ctx, s.batchSize)
	if err != nil {
		s.logger.Errorw("failed to query pending messages", "err", err)
		return
	}

	for _, msg := range messages {
		s.sendMessage(ctx, msg)
	}
}

func (s *OutboxSender) sendMessage(ctx context.Context, msg *model.OutboxMessage) {
	err := mq.SendMessage(msg.Topic, msg.MessageKey, msg.Payload)
	if err == nil {
		if updateErr := s.outboxRepo.MarkSent(ctx, msg.ID); updateErr != nil {
			s.logger.Errorw("failed to mark message sent", "id", msg.ID, "err", updateErr)
		}
		return
	}

	s.logger.Warnw("failed to send message", "id", msg.ID, "topic", msg.Topic, "err", err)

	if err := s.outboxRepo.RecordFailure(ctx, msg, s.cfg.Business.MaxRetryCount); err != nil {
		s.logger.Errorw("failed to record message failure", "id", msg.ID, "err", err)
	}
}
