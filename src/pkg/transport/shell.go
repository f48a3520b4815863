package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"

	"github.com/shongo-go/connector/src/consts"
	"github.com/shongo-go/connector/src/pkg/sentry"
)

// ErrShellClosed 远端关闭了命令行
var ErrShellClosed = errors.New("shell closed")

// ShellConfig 行式命令行参数
type ShellConfig struct {
	Address  string
	Username string
	Password string
	Timeout  time.Duration
	// Terminator 匹配命令响应结束的那一行
	Terminator *regexp.Regexp
	// IsAsync 判断一行是否为设备主动推送的异步消息
	IsAsync func(line string) bool
	// RequestPTY 部分设备只有在分配终端后才会输出提示符
	RequestPTY bool
	Retry      RetryPolicy
	Logger     *logrus.Entry
}

func (c ShellConfig) logger() *logrus.Entry {
	if c.Logger == nil {
		return logrus.NewEntry(logrus.StandardLogger())
	}
	return c.Logger
}

func (c ShellConfig) timeout() time.Duration {
	if c.Timeout <= 0 {
		return consts.DefaultRequestTimeoutSec * time.Second
	}
	return c.Timeout
}

// Shell SSH 上的行式命令行会话
// 同步命令通过 Send 串行执行，期间收到的异步消息进入队列，
// 在命令完成后由调用方通过 TakeAsync 处理
type Shell struct {
	cfg     ShellConfig
	client  *ssh.Client
	session *ssh.Session
	stdin   io.WriteCloser

	lines chan string
	done  chan struct{}

	mu    sync.Mutex
	async []string
}

// DialShell 建立 SSH 连接并打开 shell
func DialShell(ctx context.Context, cfg ShellConfig) (*Shell, error) {
	if cfg.Terminator == nil {
		return nil, fmt.Errorf("terminator is required")
	}
	return Do(ctx, cfg.Retry, func(ctx context.Context) (*Shell, error) {
		return dialShell(ctx, cfg)
	})
}

func dialShell(ctx context.Context, cfg ShellConfig) (*Shell, error) {
	password := cfg.Password
	clientCfg := &ssh.ClientConfig{
		User: cfg.Username,
		Auth: []ssh.AuthMethod{
			ssh.Password(password),
			ssh.KeyboardInteractive(func(user, instruction string, questions []string, echos []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = password
				}
				return answers, nil
			}),
		},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         cfg.timeout(),
	}
	dialer := net.Dialer{Timeout: cfg.timeout()}
	conn, err := dialer.DialContext(ctx, "tcp", cfg.Address)
	if err != nil {
		return nil, err
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, cfg.Address, clientCfg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	client := ssh.NewClient(sshConn, chans, reqs)
	session, err := client.NewSession()
	if err != nil {
		client.Close()
		return nil, err
	}
	stdin, err := session.StdinPipe()
	if err != nil {
		client.Close()
		return nil, err
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		client.Close()
		return nil, err
	}
	if cfg.RequestPTY {
		modes := ssh.TerminalModes{ssh.ECHO: 0}
		if err := session.RequestPty("vt100", 80, 200, modes); err != nil {
			client.Close()
			return nil, err
		}
	}
	if err := session.Shell(); err != nil {
		client.Close()
		return nil, err
	}
	s := &Shell{
		cfg:     cfg,
		client:  client,
		session: session,
		stdin:   stdin,
		lines:   make(chan string, 1024),
		done:    make(chan struct{}),
	}
	sentry.Go(func() { s.readLoop(stdout) })
	return s, nil
}

func (s *Shell) readLoop(r io.Reader) {
	defer close(s.done)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		select {
		case s.lines <- line:
		case <-time.After(s.cfg.timeout()):
			s.cfg.logger().WithField("line", line).Warn("shell output not read in time, line dropped")
		}
	}
}

// Done 在远端关闭连接后关闭，用于触发重连
func (s *Shell) Done() <-chan struct{} {
	return s.done
}

// Send 发送一行命令并读取到终止行为止，返回的行包含终止行
func (s *Shell) Send(ctx context.Context, line string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drainLocked()
	if _, err := io.WriteString(s.stdin, line+"\n"); err != nil {
		return nil, err
	}
	timer := time.NewTimer(s.cfg.timeout())
	defer timer.Stop()
	var response []string
	for {
		select {
		case <-ctx.Done():
			return response, ctx.Err()
		case <-timer.C:
			return response, fmt.Errorf("timeout waiting for response to %q", line)
		case l, ok := <-s.lines:
			if !ok {
				return response, ErrShellClosed
			}
			if s.cfg.IsAsync != nil && s.cfg.IsAsync(l) {
				s.async = append(s.async, l)
				continue
			}
			response = append(response, l)
			if s.cfg.Terminator.MatchString(l) {
				return response, nil
			}
		case <-s.done:
			// readLoop 结束前可能还有未读的行
			select {
			case l := <-s.lines:
				response = append(response, l)
				if s.cfg.Terminator.MatchString(l) {
					return response, nil
				}
				continue
			default:
			}
			return response, ErrShellClosed
		}
	}
}

// drainLocked 收集命令之外到达的异步消息，其余行（欢迎信息、提示符）丢弃
func (s *Shell) drainLocked() {
	for {
		select {
		case l := <-s.lines:
			if s.cfg.IsAsync != nil && s.cfg.IsAsync(l) {
				s.async = append(s.async, l)
			}
		default:
			return
		}
	}
}

// Post 只发送不等待响应，残留输出在下一次 Send 前丢弃
func (s *Shell) Post(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := io.WriteString(s.stdin, line+"\n")
	return err
}

// TakeAsync 取出并清空异步消息队列
func (s *Shell) TakeAsync() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drainLocked()
	out := s.async
	s.async = nil
	return out
}

func (s *Shell) Close() error {
	s.stdin.Close()
	s.session.Close()
	return s.client.Close()
}
