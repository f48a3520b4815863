package pexip

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
)

// fakeInfinity 模拟 Pexip 管理接口
type fakeInfinity struct {
	mu      sync.Mutex
	version string
	workers int
	nextID  int
	rooms   map[string]map[string]any
	tags    map[string]bool
}

func newFakeInfinity() *fakeInfinity {
	return &fakeInfinity{
		version: "31 31.1",
		workers: 2,
		nextID:  1,
		rooms:   map[string]map[string]any{},
		tags:    map[string]bool{},
	}
}

func (f *fakeInfinity) room(id string) (map[string]any, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rooms[id]
	return r, ok
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeInfinity) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if user, pass, ok := r.BasicAuth(); !ok || user != "admin" || pass != "secret" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.URL.Path == workerStatusPath:
		objects := []map[string]any{}
		for i := 0; i < f.workers; i++ {
			objects = append(objects, map[string]any{
				"name":       "node" + strconv.Itoa(i),
				"version":    f.version,
				"media_load": 20 * (i + 1),
			})
		}
		writeJSON(w, map[string]any{"objects": objects})
	case r.URL.Path == conferencePath && r.Method == http.MethodGet:
		objects := []map[string]any{}
		for _, room := range f.rooms {
			objects = append(objects, room)
		}
		writeJSON(w, map[string]any{
			"meta":    map[string]any{"total_count": len(objects), "next": nil},
			"objects": objects,
		})
	case r.URL.Path == conferencePath && r.Method == http.MethodPost:
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		tag, _ := body["service_tag"].(string)
		if tag == "" || f.tags[tag] {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.tags[tag] = true
		id := strconv.Itoa(f.nextID)
		f.nextID++
		body["id"] = id
		f.rooms[id] = body
		w.Header().Set("Location", "https://pexip"+conferencePath+id+"/")
		w.WriteHeader(http.StatusCreated)
	case strings.HasPrefix(r.URL.Path, conferencePath):
		id := strings.Trim(strings.TrimPrefix(r.URL.Path, conferencePath), "/")
		room, ok := f.rooms[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, room)
		case http.MethodPatch:
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			for k, v := range body {
				room[k] = v
			}
			w.WriteHeader(http.StatusAccepted)
		case http.MethodDelete:
			delete(f.rooms, id)
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}
