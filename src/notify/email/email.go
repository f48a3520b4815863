// Package email 通过 SMTP 发送纯文本通知邮件
package email

import (
	"errors"
	"fmt"

	"gopkg.in/gomail.v2"
)

// Mailer 发送邮件，sender 为空时每次发送都重新拨号 SMTP 服务器
type Mailer struct {
	from   string
	dialer *gomail.Dialer
	sender gomail.Sender
}

func New(host string, port int, senderEmail, senderPassword string) *Mailer {
	return &Mailer{
		from:   senderEmail,
		dialer: gomail.NewDialer(host, port, senderEmail, senderPassword),
	}
}

// NewWithSender 使用给定的 Sender 投递，主要用于测试
func NewWithSender(senderEmail string, sender gomail.Sender) *Mailer {
	return &Mailer{from: senderEmail, sender: sender}
}

// Send 发送一封邮件给所有收件人
func (m *Mailer) Send(to []string, subject, body string) error {
	if len(to) == 0 {
		return errors.New("no recipients")
	}
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to...)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	var err error
	if m.sender != nil {
		err = gomail.Send(m.sender, msg)
	} else {
		err = m.dialer.DialAndSend(msg)
	}
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}
