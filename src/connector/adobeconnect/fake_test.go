package adobeconnect

import (
	"fmt"
	"html"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	fakeMeetingsShortcut = "10"
	fakeContentShortcut  = "11"
)

type fakeSCO struct {
	ID        string
	FolderID  string
	Type      string
	Icon      string
	Name      string
	Desc      string
	URLPath   string
	Tag       string
	Passcode  string
	DateBegin string
	DateEnd   string
}

type fakeUser struct {
	ID          string
	Name        string
	Role        string
	PrincipalID string
}

// fakeConnect 模拟 Adobe Connect 的 XML API
type fakeConnect struct {
	mu         sync.Mutex
	session    string
	nextID     int
	scos       map[string]*fakeSCO
	perms      map[string]map[string]string
	principals map[string]string
	users      map[string][]fakeUser
	sessions   map[string]bool
	active     map[string]bool
	actions    []string
	logins     int
	onLogin    func()
	ended      map[string]string
}

func newFakeConnect() *fakeConnect {
	f := &fakeConnect{
		nextID:     100,
		scos:       map[string]*fakeSCO{},
		perms:      map[string]map[string]string{},
		principals: map[string]string{},
		users:      map[string][]fakeUser{},
		sessions:   map[string]bool{},
		active:     map[string]bool{},
		ended:      map[string]string{},
	}
	f.scos[fakeMeetingsShortcut] = &fakeSCO{ID: fakeMeetingsShortcut, Type: "folder", Icon: "folder", Name: "My Meetings"}
	f.scos[fakeContentShortcut] = &fakeSCO{ID: fakeContentShortcut, Type: "folder", Icon: "folder", Name: "Content"}
	return f
}

func (f *fakeConnect) id() string {
	f.nextID++
	return strconv.Itoa(f.nextID)
}

// add 直接在服务端创建对象
func (f *fakeConnect) add(s *fakeSCO) *fakeSCO {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s.ID == "" {
		s.ID = f.id()
	}
	f.scos[s.ID] = s
	return s
}

func (f *fakeConnect) get(id string) (fakeSCO, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.scos[id]
	if !ok {
		return fakeSCO{}, false
	}
	return *s, true
}

func (f *fakeConnect) find(name string) (fakeSCO, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.scos {
		if s.Name == name {
			return *s, true
		}
	}
	return fakeSCO{}, false
}

func (f *fakeConnect) permission(acl, principal string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.perms[acl][principal]
}

func (f *fakeConnect) redirected(roomID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ended[roomID]
}

func (f *fakeConnect) setUsers(roomID string, users ...fakeUser) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[roomID] = users
	f.sessions[roomID] = len(users) > 0
	f.active[roomID] = len(users) > 0
}

// expire 让当前会话失效
func (f *fakeConnect) expire() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.session = ""
}

func (f *fakeConnect) count(action string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, a := range f.actions {
		if a == action {
			n++
		}
	}
	return n
}

func (f *fakeConnect) children(folderID string) []*fakeSCO {
	var out []*fakeSCO
	for _, s := range f.scos {
		if s.FolderID == folderID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f *fakeConnect) nameTaken(folderID, name, except string) bool {
	for _, s := range f.children(folderID) {
		if s.Name == name && s.ID != except {
			return true
		}
	}
	return false
}

func scoXML(tag string, s *fakeSCO) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, `<%s sco-id="%s" folder-id="%s" type="%s" icon="%s">`, tag, s.ID, s.FolderID, s.Type, s.Icon)
	fmt.Fprintf(&sb, "<name>%s</name>", html.EscapeString(s.Name))
	if s.Desc != "" {
		fmt.Fprintf(&sb, "<description>%s</description>", html.EscapeString(s.Desc))
	}
	if s.URLPath != "" {
		fmt.Fprintf(&sb, "<url-path>%s</url-path><url>%s</url>", s.URLPath, s.URLPath)
	}
	if s.Tag != "" {
		fmt.Fprintf(&sb, "<sco-tag>%s</sco-tag>", s.Tag)
	}
	if s.Passcode != "" {
		fmt.Fprintf(&sb, "<meeting-passcode>%s</meeting-passcode>", s.Passcode)
	}
	if s.DateBegin != "" {
		fmt.Fprintf(&sb, "<date-begin>%s</date-begin><date-created>%s</date-created>", s.DateBegin, s.DateBegin)
	}
	if s.DateEnd != "" {
		fmt.Fprintf(&sb, "<date-end>%s</date-end>", s.DateEnd)
	}
	fmt.Fprintf(&sb, "</%s>", tag)
	return sb.String()
}

func okResult(body string) string {
	return `<?xml version="1.0" encoding="utf-8"?><results><status code="ok"/>` + body + `</results>`
}

func status(code, subcode string) string {
	if subcode == "" {
		return fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?><results><status code="%s"/></results>`, code)
	}
	return fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?><results><status code="%s" subcode="%s"/></results>`, code, subcode)
}

func duplicate(field string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?><results><status code="invalid"><invalid field="%s" type="string" subcode="duplicate"/></status></results>`, field)
}

func (f *fakeConnect) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != apiPath {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	q := r.URL.Query()
	action := q.Get("action")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, action)
	w.Header().Set("Content-Type", "text/xml")

	if action == "login" {
		if q.Get("login") != "admin" || q.Get("password") != "secret" {
			fmt.Fprint(w, status("no-data", ""))
			return
		}
		f.logins++
		if f.onLogin != nil {
			f.onLogin()
		}
		f.session = "breez" + strconv.Itoa(f.logins)
		http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: f.session, Path: "/"})
		fmt.Fprint(w, okResult(""))
		return
	}
	if cookie, err := r.Cookie(sessionCookie); err != nil || f.session == "" || cookie.Value != f.session {
		fmt.Fprint(w, status("no-access", "no-login"))
		return
	}
	fmt.Fprint(w, f.handle(action, q))
}

func (f *fakeConnect) handle(action string, q url.Values) string {
	now := time.Now().Format(time.RFC3339)
	switch action {
	case "logout":
		f.session = ""
		return okResult("")
	case "common-info":
		return okResult(`<common locale="en"><version>9.5.0</version></common>`)
	case "sco-shortcuts":
		return okResult(fmt.Sprintf(`<shortcuts><sco tree-id="1" sco-id="%s" type="meetings"><domain-name>x</domain-name></sco><sco tree-id="2" sco-id="%s" type="content"><domain-name>x</domain-name></sco></shortcuts>`,
			fakeMeetingsShortcut, fakeContentShortcut))
	case "sco-contents":
		if _, exists := f.scos[q.Get("sco-id")]; !exists {
			return status("no-access", "denied")
		}
		var sb strings.Builder
		for _, s := range f.children(q.Get("sco-id")) {
			if q.Get("filter-is-folder") == "1" && s.Type != "folder" {
				continue
			}
			if v := q.Get("filter-name"); v != "" && s.Name != v {
				continue
			}
			if v := q.Get("filter-type"); v != "" && s.Type != v {
				continue
			}
			if v := q.Get("filter-icon"); v != "" && s.Icon != v {
				continue
			}
			if q.Get("filter-out-date-end") == "null" && s.DateEnd == "" {
				continue
			}
			if q.Get("filter-date-end") == "null" && s.DateEnd != "" {
				continue
			}
			sb.WriteString(scoXML("sco", s))
		}
		return okResult("<scos>" + sb.String() + "</scos>")
	case "sco-update":
		if id := q.Get("sco-id"); id != "" {
			s, exists := f.scos[id]
			if !exists {
				return status("no-access", "denied")
			}
			if v := q.Get("name"); v != "" {
				if f.nameTaken(s.FolderID, v, s.ID) {
					return duplicate("name")
				}
				s.Name = v
			}
			if v := q.Get("description"); v != "" {
				s.Desc = v
			}
			if v := q.Get("sco-tag"); v != "" {
				s.Tag = v
			}
			if v := q.Get("url-path"); v != "" {
				s.URLPath = "/" + v + "/"
			}
			return okResult("")
		}
		folderID := q.Get("folder-id")
		if f.nameTaken(folderID, q.Get("name"), "") {
			return duplicate("name")
		}
		s := &fakeSCO{ID: f.id(), FolderID: folderID, Type: q.Get("type"), Name: q.Get("name"),
			Desc: q.Get("description"), Tag: q.Get("sco-tag"), DateBegin: now}
		s.Icon = s.Type
		if s.Type == "folder" {
			s.DateBegin = ""
		}
		if s.Type == "meeting" {
			path := q.Get("url-path")
			if path == "" {
				path = "r" + s.ID
			}
			s.URLPath = "/" + path + "/"
		}
		f.scos[s.ID] = s
		return okResult(scoXML("sco", s))
	case "sco-info":
		s, exists := f.scos[q.Get("sco-id")]
		if !exists {
			return status("no-access", "denied")
		}
		return okResult(scoXML("sco", s))
	case "sco-delete":
		if _, exists := f.scos[q.Get("sco-id")]; !exists {
			return status("no-access", "denied")
		}
		delete(f.scos, q.Get("sco-id"))
		return okResult("")
	case "sco-by-url":
		for _, s := range f.scos {
			if s.URLPath == "/"+strings.Trim(q.Get("url-path"), "/")+"/" {
				return okResult(scoXML("sco", s))
			}
		}
		return status("no-data", "")
	case "sco-move":
		s, exists := f.scos[q.Get("sco-id")]
		if !exists {
			return status("no-access", "denied")
		}
		if f.nameTaken(q.Get("folder-id"), s.Name, s.ID) {
			return duplicate("name")
		}
		s.FolderID = q.Get("folder-id")
		return okResult("")
	case "permissions-info":
		acl := q.Get("acl-id")
		principal := q.Get("filter-principal-id")
		perm := f.perms[acl][principal]
		if perm == "" {
			perm = "remove"
		}
		return okResult(fmt.Sprintf(`<permissions><principal principal-id="%s" permission-id="%s"/></permissions>`, principal, perm))
	case "permissions-update":
		acl := q.Get("acl-id")
		principals, permissions := q["principal-id"], q["permission-id"]
		if len(principals) != len(permissions) {
			return status("invalid", "")
		}
		if f.perms[acl] == nil {
			f.perms[acl] = map[string]string{}
		}
		for i := range principals {
			f.perms[acl][principals[i]] = permissions[i]
		}
		return okResult("")
	case "permissions-reset":
		for principal := range f.perms[q.Get("acl-id")] {
			if principal != "public-access" {
				delete(f.perms[q.Get("acl-id")], principal)
			}
		}
		return okResult("")
	case "acl-field-update":
		s, exists := f.scos[q.Get("acl-id")]
		if !exists {
			return status("no-access", "denied")
		}
		s.Passcode = q.Get("value")
		return okResult("")
	case "principal-list":
		for login, id := range f.principals {
			if q.Get("filter-login") == login || q.Get("filter-principal-id") == id {
				return okResult(fmt.Sprintf(`<principal-list><principal principal-id="%s" type="user"><login>%s</login></principal></principal-list>`, id, login))
			}
		}
		return okResult("<principal-list/>")
	case "principal-update":
		id := f.id()
		f.principals[q.Get("login")] = id
		return okResult(fmt.Sprintf(`<principal principal-id="%s" type="user"><login>%s</login></principal>`, id, q.Get("login")))
	case "report-bulk-objects":
		var sb strings.Builder
		ids := make([]string, 0, len(f.scos))
		for id := range f.scos {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			s := f.scos[id]
			if v := q.Get("filter-type"); v != "" && s.Type != v {
				continue
			}
			if v := q.Get("filter-icon"); v != "" && s.Icon != v {
				continue
			}
			if q.Get("filter-out-date-end") == "null" && s.DateEnd == "" {
				continue
			}
			sb.WriteString(scoXML("row", s))
		}
		return okResult("<report-bulk-objects>" + sb.String() + "</report-bulk-objects>")
	case "report-meeting-sessions":
		if f.sessions[q.Get("sco-id")] {
			return okResult(`<report-meeting-sessions><row sco-id="` + q.Get("sco-id") + `" asset-id="1"/></report-meeting-sessions>`)
		}
		return okResult("<report-meeting-sessions/>")
	case "meeting-roommanager-endmeeting-update":
		if q.Get("state") == "true" {
			f.active[q.Get("sco-id")] = false
			if u := q.Get("url"); u != "" {
				f.ended[q.Get("sco-id")] = u
			}
		}
		return okResult("")
	case "report-active-meetings":
		var sb strings.Builder
		for id, active := range f.active {
			if !active {
				continue
			}
			s := f.scos[id]
			if s == nil {
				continue
			}
			fmt.Fprintf(&sb, `<sco sco-id="%s" active-participants="%d"><name>%s</name><url-path>%s</url-path></sco>`,
				id, len(f.users[id]), html.EscapeString(s.Name), s.URLPath)
		}
		return okResult("<report-active-meetings>" + sb.String() + "</report-active-meetings>")
	case "meeting-usermanager-user-list":
		if !f.active[q.Get("sco-id")] {
			return status("no-access", "not-available")
		}
		var sb strings.Builder
		for _, u := range f.users[q.Get("sco-id")] {
			fmt.Fprintf(&sb, "<userdetails><user-id>%s</user-id><username>%s</username><role>%s</role><principal-id>%s</principal-id></userdetails>",
				u.ID, u.Name, u.Role, u.PrincipalID)
		}
		return okResult("<meeting-usermanager-user-list>" + sb.String() + "</meeting-usermanager-user-list>")
	case "meeting-usermanager-remove-user":
		roomID := q.Get("sco-id")
		users := f.users[roomID][:0]
		for _, u := range f.users[roomID] {
			if u.ID != q.Get("user-id") {
				users = append(users, u)
			}
		}
		f.users[roomID] = users
		return okResult("")
	case "meeting-recorder-activity-update":
		roomID := q.Get("sco-id")
		if !f.active[roomID] {
			return status("no-access", "not-available")
		}
		if q.Get("active") == "true" {
			if f.nameTaken(roomID, q.Get("name"), "") {
				return duplicate("name")
			}
			s := &fakeSCO{ID: f.id(), FolderID: roomID, Type: "content", Icon: recordingIcon,
				Name: q.Get("name"), URLPath: "/p" + strconv.Itoa(f.nextID) + "/", DateBegin: now}
			f.scos[s.ID] = s
			return okResult("")
		}
		for _, s := range f.children(roomID) {
			if s.Icon == recordingIcon && s.DateEnd == "" {
				s.DateEnd = time.Now().Add(time.Minute).Format(time.RFC3339)
			}
		}
		return okResult("")
	case "meeting-recorder-activity-info":
		for _, s := range f.children(q.Get("sco-id")) {
			if s.Icon == recordingIcon && s.DateEnd == "" {
				return okResult("<meeting-recorder-activity-info><recording-sco-id>" + s.ID + "</recording-sco-id></meeting-recorder-activity-info>")
			}
		}
		return okResult("<meeting-recorder-activity-info/>")
	default:
		return status("no-data", "")
	}
}
