// Package notify 渲染双语通知并通过邮件投递
package notify

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig"
	"github.com/sirupsen/logrus"

	"github.com/shongo-go/connector/src/configs"
	"github.com/shongo-go/connector/src/connector"
	"github.com/shongo-go/connector/src/notify/email"
)

const subjectPrefix = "[shongo] "

var bodyTemplate = template.Must(template.New("notification").Funcs(sprig.TxtFuncMap()).Parse(
	`{{ .Message.en | trim }}

Connector: {{ .Connector }}
{{- if .RoomID }}
Room: {{ .RoomID }}
{{- end }}
Time: {{ date "2006-01-02 15:04:05 MST" .Created }}

{{ repeat 40 "-" }}

{{ .Message.cs | default .Message.en | trim }}

Konektor: {{ .Connector }}
{{- if .RoomID }}
Místnost: {{ .RoomID }}
{{- end }}
Čas: {{ date "2006-01-02 15:04:05 MST" .Created }}
`))

// Sender 邮件投递接口
type Sender interface {
	Send(to []string, subject, body string) error
}

// Render 返回邮件主题和双语正文
func Render(n *connector.Notification) (string, string, error) {
	data := map[string]any{
		"Connector": n.Connector,
		"RoomID":    n.RoomID,
		"Created":   n.Created,
		"Title":     plain(n.Title),
		"Message":   plain(n.Message),
	}
	var buf bytes.Buffer
	if err := bodyTemplate.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("failed to render notification: %w", err)
	}
	subject := n.Title.Get(connector.LangEnglish)
	if cs := n.Title[connector.LangCzech]; cs != "" && cs != subject {
		subject += " / " + cs
	}
	return subjectPrefix + subject, buf.String(), nil
}

// plain 模板里的 map 键必须是 string
func plain(l connector.Localized) map[string]string {
	m := make(map[string]string, len(l))
	for lang, text := range l {
		m[string(lang)] = text
	}
	return m
}

// Notifier 总是写日志，启用邮件时再发送给收件人
type Notifier struct {
	sender Sender
	logger logrus.FieldLogger
}

// New 根据邮件配置创建 Notifier，未启用邮件时只记录日志
func New(cfg configs.Email, logger logrus.FieldLogger) *Notifier {
	var sender Sender
	if cfg.Enable {
		sender = email.New(cfg.SMTPHost, cfg.SMTPPort, cfg.SenderEmail, cfg.SenderPassword)
	}
	return NewWithSender(sender, logger)
}

func NewWithSender(sender Sender, logger logrus.FieldLogger) *Notifier {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Notifier{sender: sender, logger: logger}
}

// Deliver 投递通知，收件人为空时只记录日志
func (n *Notifier) Deliver(ctx context.Context, notification *connector.Notification, recipients []string) error {
	subject, body, err := Render(notification)
	if err != nil {
		return err
	}
	fields := logrus.Fields{
		"id":         notification.ID,
		"connector":  notification.Connector,
		"target":     notification.Target,
		"recipients": strings.Join(recipients, ","),
	}
	if notification.RoomID != "" {
		fields["room"] = notification.RoomID
	}
	n.logger.WithFields(fields).Infof("notification: %s", subject)
	n.logger.WithFields(fields).Debug(body)

	if n.sender == nil || len(recipients) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := n.sender.Send(recipients, subject, body); err != nil {
		n.logger.WithFields(fields).WithError(err).Error("failed to send notification email")
		return err
	}
	return nil
}
