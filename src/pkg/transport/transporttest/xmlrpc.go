// Package transporttest 提供测试用的设备协议模拟服务
package transporttest

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/antchfx/xmlquery"
)

// Fault XML-RPC fault
type Fault struct {
	Code    int
	Message string
}

// XMLRPCHandler 处理一次方法调用，返回结果 struct 或 fault
type XMLRPCHandler func(method string, params map[string]any) (map[string]any, *Fault)

// XMLRPCServer 记录收到的调用，便于断言
type XMLRPCServer struct {
	*httptest.Server
	mu      sync.Mutex
	calls   []Call
	handler XMLRPCHandler
}

type Call struct {
	Method string
	Params map[string]any
	Header http.Header
}

func NewXMLRPCServer(handler XMLRPCHandler) *XMLRPCServer {
	s := &XMLRPCServer{handler: handler}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	return s
}

func NewTLSXMLRPCServer(handler XMLRPCHandler) *XMLRPCServer {
	s := &XMLRPCServer{handler: handler}
	s.Server = httptest.NewTLSServer(http.HandlerFunc(s.serve))
	return s
}

func (s *XMLRPCServer) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	method, params, err := DecodeMethodCall(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.calls = append(s.calls, Call{Method: method, Params: params, Header: r.Header.Clone()})
	s.mu.Unlock()
	result, fault := s.handler(method, params)
	w.Header().Set("Content-Type", "text/xml")
	_, _ = w.Write(EncodeResponse(result, fault))
}

// Calls 返回收到的调用
func (s *XMLRPCServer) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// Methods 返回按顺序收到的方法名
func (s *XMLRPCServer) Methods() []string {
	var out []string
	for _, c := range s.Calls() {
		out = append(out, c.Method)
	}
	return out
}

// DecodeMethodCall 解析 methodCall，只取第一个 struct 参数
func DecodeMethodCall(body []byte) (string, map[string]any, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return "", nil, err
	}
	name := xmlquery.FindOne(doc, "/methodCall/methodName")
	if name == nil {
		return "", nil, fmt.Errorf("missing methodName")
	}
	params := map[string]any{}
	if v := xmlquery.FindOne(doc, "/methodCall/params/param/value"); v != nil {
		if m, ok := decodeValue(v).(map[string]any); ok {
			params = m
		}
	}
	return strings.TrimSpace(name.InnerText()), params, nil
}

func decodeValue(v *xmlquery.Node) any {
	var typed *xmlquery.Node
	for c := v.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode {
			typed = c
			break
		}
	}
	if typed == nil {
		return v.InnerText()
	}
	switch typed.Data {
	case "int", "i4":
		n, _ := strconv.ParseInt(strings.TrimSpace(typed.InnerText()), 10, 64)
		return n
	case "boolean":
		return strings.TrimSpace(typed.InnerText()) == "1"
	case "double":
		f, _ := strconv.ParseFloat(strings.TrimSpace(typed.InnerText()), 64)
		return f
	case "array":
		out := []any{}
		for _, item := range xmlquery.Find(typed, "data/value") {
			out = append(out, decodeValue(item))
		}
		return out
	case "struct":
		out := map[string]any{}
		for _, member := range xmlquery.Find(typed, "member") {
			name := xmlquery.FindOne(member, "name")
			value := xmlquery.FindOne(member, "value")
			if name == nil || value == nil {
				continue
			}
			out[strings.TrimSpace(name.InnerText())] = decodeValue(value)
		}
		return out
	default:
		return typed.InnerText()
	}
}

// EncodeResponse 编码 methodResponse
func EncodeResponse(result map[string]any, fault *Fault) []byte {
	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0"?><methodResponse>`)
	if fault != nil {
		buf.WriteString("<fault><value>")
		encodeValue(&buf, map[string]any{"faultCode": fault.Code, "faultString": fault.Message})
		buf.WriteString("</value></fault>")
	} else {
		if result == nil {
			result = map[string]any{}
		}
		buf.WriteString("<params><param><value>")
		encodeValue(&buf, result)
		buf.WriteString("</value></param></params>")
	}
	buf.WriteString("</methodResponse>")
	return buf.Bytes()
}

func encodeValue(buf *bytes.Buffer, v any) {
	switch t := v.(type) {
	case nil:
		buf.WriteString("<string></string>")
	case string:
		buf.WriteString("<string>")
		_ = xml.EscapeText(buf, []byte(t))
		buf.WriteString("</string>")
	case bool:
		if t {
			buf.WriteString("<boolean>1</boolean>")
		} else {
			buf.WriteString("<boolean>0</boolean>")
		}
	case int:
		fmt.Fprintf(buf, "<int>%d</int>", t)
	case int64:
		fmt.Fprintf(buf, "<int>%d</int>", t)
	case float64:
		fmt.Fprintf(buf, "<double>%f</double>", t)
	case time.Time:
		fmt.Fprintf(buf, "<dateTime.iso8601>%s</dateTime.iso8601>", t.Format("20060102T15:04:05"))
	case []any:
		buf.WriteString("<array><data>")
		for _, item := range t {
			buf.WriteString("<value>")
			encodeValue(buf, item)
			buf.WriteString("</value>")
		}
		buf.WriteString("</data></array>")
	case []map[string]any:
		items := make([]any, len(t))
		for i := range t {
			items[i] = t[i]
		}
		encodeValue(buf, items)
	case []string:
		items := make([]any, len(t))
		for i := range t {
			items[i] = t[i]
		}
		encodeValue(buf, items)
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteString("<struct>")
		for _, k := range keys {
			buf.WriteString("<member><name>")
			_ = xml.EscapeText(buf, []byte(k))
			buf.WriteString("</name><value>")
			encodeValue(buf, t[k])
			buf.WriteString("</value></member>")
		}
		buf.WriteString("</struct>")
	default:
		encodeValue(buf, fmt.Sprint(t))
	}
}
