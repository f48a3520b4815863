package internal

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/shongo-go/connector/src/connector"
)

// Notify 异步投递通知，失败只记录日志，不影响调用方
func (b *Base) Notify(n *connector.Notification) {
	logger := b.Logger.WithFields(logrus.Fields{
		"notification": n.ID,
		"target":       n.Target,
		"room":         n.RoomID,
	})
	logger.WithField("title", n.Title.Get(connector.LangEnglish)).Info("sending notification")
	controller := b.Controller()
	if controller == nil {
		logger.Warn("no controller, notification dropped")
		return
	}
	b.Go(func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.Timeout)
		defer cancel()
		if err := controller.Notify(ctx, n); err != nil {
			logger.WithError(err).Warn("failed to send notification")
			return
		}
		b.Metrics.IncNotifications(b.Config.Name, string(n.Target))
	})
}
