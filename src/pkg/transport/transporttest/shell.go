package transporttest

import (
	"bufio"
	"io"
	"net"
	"strings"
	"sync"

	gliderssh "github.com/gliderlabs/ssh"
)

// ShellHandler 处理一行命令，向 w 写出响应
type ShellHandler func(line string, w io.Writer)

// ShellServer 进程内 SSH 服务，模拟设备命令行
type ShellServer struct {
	Addr     string
	User     string
	Password string

	srv      *gliderssh.Server
	listener net.Listener

	mu       sync.Mutex
	received []string
	sessions []gliderssh.Session
}

func NewShellServer(user, password, banner string, handler ShellHandler) (*ShellServer, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	s := &ShellServer{Addr: ln.Addr().String(), User: user, Password: password, listener: ln}
	s.srv = &gliderssh.Server{
		Handler: func(sess gliderssh.Session) {
			s.mu.Lock()
			s.sessions = append(s.sessions, sess)
			s.mu.Unlock()
			if banner != "" {
				_, _ = io.WriteString(sess, banner)
			}
			scanner := bufio.NewScanner(sess)
			for scanner.Scan() {
				line := strings.TrimRight(scanner.Text(), "\r")
				s.mu.Lock()
				s.received = append(s.received, line)
				s.mu.Unlock()
				handler(line, sess)
			}
		},
		PasswordHandler: func(ctx gliderssh.Context, pass string) bool {
			return ctx.User() == user && pass == password
		},
	}
	go func() { _ = s.srv.Serve(ln) }()
	return s, nil
}

// Received 返回服务端收到的命令行
func (s *ShellServer) Received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.received))
	copy(out, s.received)
	return out
}

// Push 向所有会话推送一行异步消息
func (s *ShellServer) Push(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		_, _ = io.WriteString(sess, line+"\n")
	}
}

// DropSessions 关闭所有会话，模拟设备断开
func (s *ShellServer) DropSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		_ = sess.Exit(0)
	}
	s.sessions = nil
}

func (s *ShellServer) Close() error {
	return s.srv.Close()
}
