package worker

import (
	"time"

	"go.uber.org/zap"

	"github.com/empowerfin/auth-service/internal/service"
)

// Start subscribes the account mail handlers and returns the Runner that
// auth flows use to deliver that mail off the request path. Callers must
// Wait on the returned Runner during shutdown.
func Start(notifications *service.NotificationService, jobTimeout time.Duration, logger *zap.Logger) *Runner {
	if notifications != nil {
		notifications.RegisterHandlers()
	}
	return NewRunner(jobTimeout, logger)
}
