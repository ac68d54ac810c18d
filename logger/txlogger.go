package logger

import "go.uber.org/zap"

const (
	TagTransaction = "transaction"
)

// TxLogger is the audit sink for group lifecycle events. Calls never fail.
type TxLogger interface {
	Trace(groupID, unitID, tag, message string)
}

type ZapTxLogger struct {
	logger *zap.Logger
}

func NewZapTxLogger(logger *zap.Logger) *ZapTxLogger {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ZapTxLogger{logger: logger.Named("txlogger")}
}

func (z *ZapTxLogger) Trace(groupID, unitID, tag, message string) {
	z.logger.Info(message,
		zap.String("group_id", groupID),
		zap.String("unit_id", unitID),
		zap.String("tag", tag),
	)
}

type NopTxLogger struct{}

func (NopTxLogger) Trace(string, string, string, string) {}
