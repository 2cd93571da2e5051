package dmxp

import "go.uber.org/zap"

// boundaryLogger wraps the configured zap.Logger with the field set spec
// §7 calls for: Corruption and LayoutMismatch are logged at the boundary
// and not retried. The only other entries are Info records for region
// initialization and channel creation, so a successful send or receive
// never touches zap.
type boundaryLogger struct {
	log *zap.Logger
}

func newBoundaryLogger(log *zap.Logger) *boundaryLogger {
	if log == nil {
		log = zap.NewNop()
	}
	return &boundaryLogger{log: log}
}

func (b *boundaryLogger) layoutMismatch(path string, err error) {
	b.log.Error("region layout mismatch",
		zap.String("path", path),
		zap.String("code", CodeLayoutMismatch.String()),
		zap.Error(err),
	)
}

func (b *boundaryLogger) corruption(op string, channelID uint32, err error) {
	b.log.Error("decoded slot failed validation",
		zap.String("op", op),
		zap.Uint32("channel_id", channelID),
		zap.String("code", CodeCorruption.String()),
		zap.Error(err),
	)
}

func (b *boundaryLogger) channelCreated(channelID uint32, capacity uint64, bandOffset uint64) {
	b.log.Info("channel created",
		zap.Uint32("channel_id", channelID),
		zap.Uint64("capacity", capacity),
		zap.Uint64("band_offset", bandOffset),
	)
}

func (b *boundaryLogger) regionInitialized(path string, size int64) {
	b.log.Info("region initialized",
		zap.String("path", path),
		zap.Int64("size", size),
	)
}
