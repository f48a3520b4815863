package ciscomcu

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shongo-go/connector/src/pkg/transport/transporttest"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type call struct {
	method string
	params map[string]any
}

// fakeMCU 内存中的 MCU，只实现连接器用到的方法
type fakeMCU struct {
	mu           sync.Mutex
	apiVersion   string
	revision     int
	conferences  map[string]map[string]any
	participants []map[string]any
	calls        []call
	nextID       int
	// failCreate conference.create 返回 fault，但会议室仍然被创建
	failCreate bool

	previews atomic.Int32
}

func newFakeMCU() *fakeMCU {
	return &fakeMCU{
		apiVersion:  "2.9",
		conferences: map[string]map[string]any{},
		nextID:      1000,
	}
}

func newFakeServer(t *testing.T, f *fakeMCU) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/RPC2", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		method, params, err := transporttest.DecodeMethodCall(body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		result, fault := f.handle(method, params)
		w.Header().Set("Content-Type", "text/xml")
		_, _ = w.Write(transporttest.EncodeResponse(result, fault))
	})
	mux.HandleFunc("/login.html", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><form action=\"/login_change.html\"></form></html>"))
	})
	mux.HandleFunc("/login_change.html", func(w http.ResponseWriter, r *http.Request) {
		if r.PostFormValue("user_name") != "admin" || r.PostFormValue("password") != "secret" || r.PostFormValue("ok") != "OK" {
			http.Redirect(w, r, "/login.html", http.StatusFound)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "ok", Path: "/"})
		http.Redirect(w, r, "/index.html", http.StatusFound)
	})
	mux.HandleFunc("/index.html", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>status</html>"))
	})
	mux.HandleFunc("/participant_preview.jpg", func(w http.ResponseWriter, r *http.Request) {
		if cookie, err := r.Cookie("session"); err != nil || cookie.Value != "ok" {
			http.Redirect(w, r, "/login.html", http.StatusFound)
			return
		}
		f.previews.Add(1)
		if r.URL.Query().Get("id") == "gone" {
			_, _ = w.Write([]byte("Unable to generate participant preview"))
			return
		}
		_, _ = w.Write(pngHeader)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func (f *fakeMCU) addConference(name string, license int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conferences[name] = map[string]any{"conferenceName": name, "maximumVideoPorts": int64(license), "private": false}
}

func (f *fakeMCU) addParticipant(conference, protocol, name, address string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.participants = append(f.participants, map[string]any{
		"conferenceName":      conference,
		"participantProtocol": protocol,
		"participantName":     name,
		"currentState": map[string]any{
			"address":         address,
			"displayName":     "participant " + name,
			"audioRxMuted":    false,
			"videoRxMuted":    false,
			"audioRxGainMode": "default",
			"previewURL":      "/participant_preview.jpg?id=" + name,
		},
	})
}

func (f *fakeMCU) Calls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]call, len(f.calls))
	copy(out, f.calls)
	return out
}

// Methods 不含 device.query
func (f *fakeMCU) Methods() []string {
	var out []string
	for _, c := range f.Calls() {
		if c.method != "device.query" {
			out = append(out, c.method)
		}
	}
	return out
}

func (f *fakeMCU) lastCall(method string) map[string]any {
	calls := f.Calls()
	for i := len(calls) - 1; i >= 0; i-- {
		if calls[i].method == method {
			return calls[i].params
		}
	}
	return nil
}

func (f *fakeMCU) conference(name string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conferences[name]
}

func (f *fakeMCU) findParticipant(params map[string]any) int {
	for i, p := range f.participants {
		if p["conferenceName"] == params["conferenceName"] &&
			p["participantProtocol"] == params["participantProtocol"] &&
			p["participantName"] == params["participantName"] {
			return i
		}
	}
	return -1
}

func withoutAuth(params map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		if k != "authenticationUser" && k != "authenticationPassword" {
			out[k] = v
		}
	}
	return out
}

func (f *fakeMCU) handle(method string, params map[string]any) (map[string]any, *transporttest.Fault) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{method: method, params: params})
	if params["authenticationUser"] != "admin" || params["authenticationPassword"] != "secret" {
		return nil, &transporttest.Fault{Code: 34, Message: "authorization failed"}
	}
	noConference := &transporttest.Fault{Code: 4, Message: faultNoSuchConference}
	noParticipant := &transporttest.Fault{Code: 5, Message: faultNoSuchParticipant}

	switch method {
	case "device.query":
		return map[string]any{
			"model":           "MCU 5320",
			"serial":          "SN0001",
			"softwareVersion": "4.5(1.45)",
			"apiVersion":      f.apiVersion,
			"buildVersion":    "1.45",
			"uptime":          3600,
		}, nil
	case "device.health.query":
		return map[string]any{"cpuLoad": 12}, nil
	case "conference.enumerate":
		var list []any
		for _, c := range f.conferences {
			list = append(list, c)
		}
		return map[string]any{"conferences": list}, nil
	case "conference.status":
		c, ok := f.conferences[fmt.Sprint(params["conferenceName"])]
		if !ok {
			return nil, noConference
		}
		return c, nil
	case "conference.create":
		name := fmt.Sprint(params["conferenceName"])
		if _, ok := f.conferences[name]; ok {
			return nil, &transporttest.Fault{Code: 2, Message: "duplicate conference name"}
		}
		f.conferences[name] = withoutAuth(params)
		if f.failCreate {
			return nil, &transporttest.Fault{Code: 201, Message: "operation failed"}
		}
		return map[string]any{}, nil
	case "conference.modify":
		c, ok := f.conferences[fmt.Sprint(params["conferenceName"])]
		if !ok {
			return nil, noConference
		}
		for k, v := range withoutAuth(params) {
			c[k] = v
		}
		return map[string]any{}, nil
	case "conference.destroy":
		name := fmt.Sprint(params["conferenceName"])
		if _, ok := f.conferences[name]; !ok {
			return nil, noConference
		}
		delete(f.conferences, name)
		return map[string]any{}, nil
	case "participant.enumerate":
		list := make([]any, 0, len(f.participants))
		for _, p := range f.participants {
			list = append(list, p)
		}
		return map[string]any{"participants": list}, nil
	case "participant.status":
		i := f.findParticipant(params)
		if i < 0 {
			return nil, noParticipant
		}
		return f.participants[i], nil
	case "participant.add":
		f.nextID++
		name := fmt.Sprint(f.nextID)
		f.participants = append(f.participants, map[string]any{
			"conferenceName":      params["conferenceName"],
			"participantProtocol": "h323",
			"participantName":     name,
			"currentState":        map[string]any{"address": params["address"]},
		})
		return map[string]any{"participant": map[string]any{"participantName": name, "participantProtocol": "h323"}}, nil
	case "participant.remove":
		i := f.findParticipant(params)
		if i < 0 {
			return nil, noParticipant
		}
		f.participants = append(f.participants[:i], f.participants[i+1:]...)
		return map[string]any{}, nil
	case "participant.modify":
		if f.findParticipant(params) < 0 {
			return nil, noParticipant
		}
		return map[string]any{}, nil
	default:
		return nil, &transporttest.Fault{Code: 1, Message: "method not supported"}
	}
}
