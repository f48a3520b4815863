package ciscotcs

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/antchfx/xmlquery"
)

type conference struct {
	id       string
	title    string
	begin    int64
	duration int64
	inCall   bool
	movieURL string
}

type call struct {
	method string
	params map[string]string
}

// fakeTCS 内存中的 Content Server，只实现连接器用到的 SOAP 方法
type fakeTCS struct {
	mu          sync.Mutex
	engineOK    bool
	conferences map[string]*conference
	movies      map[string][]byte
	truncated   map[string]bool
	calls       []call
	nextID      int
	baseURL     string
}

func newFakeTCS() *fakeTCS {
	return &fakeTCS{
		engineOK:    true,
		conferences: map[string]*conference{},
		movies:      map[string][]byte{},
		truncated:   map[string]bool{},
		nextID:      100,
	}
}

func newFakeServer(t *testing.T, f *fakeTCS) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/tcs/SoapServer.php", func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Digest ") {
			w.Header().Set("WWW-Authenticate", `Digest realm="TCS", qop="auth", nonce="dcd98b7102dd2f0e8b11d0f600bfb0c093", opaque="5ccc069c403ebaf9f0171e9517f40e41", algorithm=MD5`)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		body, _ := io.ReadAll(r.Body)
		method, params, err := decodeRequest(body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		result, fault := f.handle(method, params)
		w.Header().Set("Content-Type", "text/xml; charset=utf-8")
		if fault != "" {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<SOAP-ENV:Envelope xmlns:SOAP-ENV="http://schemas.xmlsoap.org/soap/envelope/"><SOAP-ENV:Body>
<SOAP-ENV:Fault><faultcode>SOAP-ENV:Server</faultcode><faultstring>%s</faultstring></SOAP-ENV:Fault>
</SOAP-ENV:Body></SOAP-ENV:Envelope>`, fault)
			return
		}
		fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<SOAP-ENV:Envelope xmlns:SOAP-ENV="http://schemas.xmlsoap.org/soap/envelope/" xmlns:ns1="%s"><SOAP-ENV:Body>
<ns1:%sResponse>%s</ns1:%sResponse>
</SOAP-ENV:Body></SOAP-ENV:Envelope>`, namespace, method, result, method)
	})
	mux.HandleFunc("/movies/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		data, ok := f.movies[r.URL.Path]
		truncated := f.truncated[r.URL.Path]
		f.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		if truncated {
			// 连接在传完一半时断开，且不支持 Range
			w.Header().Set("Content-Length", fmt.Sprint(len(data)))
			_, _ = w.Write(data[:len(data)/2])
			return
		}
		http.ServeContent(w, r, r.URL.Path, time.Unix(0, 0), bytes.NewReader(data))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	f.mu.Lock()
	f.baseURL = srv.URL
	f.mu.Unlock()
	return srv
}

func decodeRequest(body []byte) (string, map[string]string, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return "", nil, err
	}
	n := xmlquery.FindOne(doc, "//*[local-name()='Body']/*")
	if n == nil {
		return "", nil, fmt.Errorf("no method in request")
	}
	params := map[string]string{}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode {
			params[child.Data] = child.InnerText()
		}
	}
	return n.Data, params, nil
}

func (f *fakeTCS) handle(method string, params map[string]string) (string, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{method: method, params: params})
	switch method {
	case "GetSystemInformation":
		return fmt.Sprintf(`<ns1:GetSystemInformationResult><ns1:ProductName>TelePresence Content Server</ns1:ProductName>`+
			`<ns1:SerialNumber>4A00AB</ns1:SerialNumber><ns1:SoftwareVersion>S6.3</ns1:SoftwareVersion>`+
			`<ns1:EngineOK>%t</ns1:EngineOK></ns1:GetSystemInformationResult>`, f.engineOK), ""
	case "RequestConferenceID":
		f.nextID++
		id := fmt.Sprintf("conf-%d", f.nextID)
		f.conferences[id] = &conference{id: id, title: params["title"], begin: 1700000000}
		return "<ns1:RequestConferenceIDResult>" + id + "</ns1:RequestConferenceIDResult>", ""
	case "Dial":
		conf, ok := f.conferences[params["ConferenceID"]]
		if !ok {
			return "", "Unknown ConferenceID"
		}
		conf.inCall = true
		return "<ns1:DialResult><ns1:ConferenceID>" + conf.id + "</ns1:ConferenceID></ns1:DialResult>", ""
	case "DisconnectCall":
		conf, ok := f.conferences[params["ConferenceID"]]
		if !ok {
			return "", "Unknown ConferenceID"
		}
		conf.inCall = false
		conf.duration = 60000
		return "<ns1:DisconnectCallResult>true</ns1:DisconnectCallResult>", ""
	case "GetCallInfo":
		conf, ok := f.conferences[params["ConferenceID"]]
		if !ok {
			return "", "Unknown ConferenceID"
		}
		state := "IDLE"
		if conf.inCall {
			state = "IN_CALL"
		}
		return "<ns1:GetCallInfoResult><ns1:CallState>" + state + "</ns1:CallState></ns1:GetCallInfoResult>", ""
	case "GetConference":
		conf, ok := f.conferences[params["ConferenceID"]]
		if !ok {
			return "", "Unknown ConferenceID"
		}
		return "<ns1:GetConferenceResult>" + f.fields(conf) + "</ns1:GetConferenceResult>", ""
	case "GetConferences":
		prefix := strings.TrimSuffix(params["SearchExpression"], "*")
		var sb strings.Builder
		sb.WriteString("<ns1:GetConferencesResult>")
		for _, conf := range f.conferences {
			if strings.HasPrefix(conf.title, prefix) {
				sb.WriteString("<ns1:Conference>" + f.fields(conf) + "</ns1:Conference>")
			}
		}
		sb.WriteString("</ns1:GetConferencesResult>")
		return sb.String(), ""
	case "DeleteRecording":
		if _, ok := f.conferences[params["conferenceID"]]; !ok {
			return "", "Unknown ConferenceID"
		}
		delete(f.conferences, params["conferenceID"])
		return "<ns1:DeleteRecordingResult>true</ns1:DeleteRecordingResult>", ""
	}
	return "", "method not supported"
}

func (f *fakeTCS) fields(conf *conference) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<ns1:ConferenceID>%s</ns1:ConferenceID><ns1:Title>%s</ns1:Title>"+
		"<ns1:DateTime>%d</ns1:DateTime><ns1:Duration>%d</ns1:Duration>",
		conf.id, conf.title, conf.begin, conf.duration)
	if conf.movieURL == "" {
		sb.WriteString("<ns1:HasDownloadableMovie>false</ns1:HasDownloadableMovie>")
	} else {
		sb.WriteString("<ns1:HasDownloadableMovie>true</ns1:HasDownloadableMovie>")
		fmt.Fprintf(&sb, "<ns1:DownloadableMovies><ns1:DownloadableMovie><ns1:URL>%s</ns1:URL>"+
			"</ns1:DownloadableMovie></ns1:DownloadableMovies>", conf.movieURL)
	}
	return sb.String()
}

// process 模拟设备完成转码，movie 为 nil 时下载地址不存在
func (f *fakeTCS) process(id string, movie []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path := "/movies/" + id + ".mp4"
	f.conferences[id].movieURL = f.baseURL + path
	if movie != nil {
		f.movies[path] = movie
	}
}

// truncate 之后的下载都只返回一半内容
func (f *fakeTCS) truncate(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.truncated["/movies/"+id+".mp4"] = true
}

// addConference 直接在设备上创建录制
func (f *fakeTCS) addConference(id, title string, duration int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conferences[id] = &conference{id: id, title: title, begin: 1700000000, duration: duration}
}

func (f *fakeTCS) hasConference(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.conferences[id]
	return ok
}

func (f *fakeTCS) Calls(method string) []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if c.method == method {
			out = append(out, c)
		}
	}
	return out
}
