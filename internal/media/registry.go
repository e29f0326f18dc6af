// Package media implements the range-serving HTTP file server used by DLNA
// renderers: torrent-backed streams, ad-hoc file mappings and the NOTIFY
// callback dispatch that feeds cast controllers.
package media

import (
	"net/http"
	"sync"

	"github.com/google/uuid"
)

// FileRegistry maps URL paths to absolute filesystem paths. Casting sessions
// add and remove entries as they start and stop; nothing survives a restart.
type FileRegistry struct {
	mu    sync.RWMutex
	paths map[string]string
}

func NewFileRegistry() *FileRegistry {
	return &FileRegistry{paths: make(map[string]string)}
}

// Map registers the file under a fresh randomized URL path and returns it.
func (r *FileRegistry) Map(baseName, filePath string) string {
	urlPath := "/File/" + uuid.NewString() + "/" + baseName
	r.mu.Lock()
	r.paths[urlPath] = filePath
	r.mu.Unlock()
	return urlPath
}

// MapExact registers the file under the given URL path.
func (r *FileRegistry) MapExact(urlPath, filePath string) {
	r.mu.Lock()
	r.paths[urlPath] = filePath
	r.mu.Unlock()
}

func (r *FileRegistry) Lookup(urlPath string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	filePath, ok := r.paths[urlPath]
	return filePath, ok
}

func (r *FileRegistry) Unmap(urlPath string) {
	r.mu.Lock()
	delete(r.paths, urlPath)
	r.mu.Unlock()
}

func (r *FileRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.paths)
}

// NotifyFunc consumes one inbound NOTIFY request. It may read the body and
// write the response; when it does not write, the server acknowledges with a
// bare 200.
type NotifyFunc func(w http.ResponseWriter, r *http.Request)

// NotifyRegistry maps URL paths to event callbacks for inbound NOTIFY
// requests.
type NotifyRegistry struct {
	mu        sync.RWMutex
	callbacks map[string]NotifyFunc
}

func NewNotifyRegistry() *NotifyRegistry {
	return &NotifyRegistry{callbacks: make(map[string]NotifyFunc)}
}

// Register binds the callback to a fresh randomized AVTransport path and
// returns it.
func (r *NotifyRegistry) Register(fn NotifyFunc) string {
	urlPath := "/AVTransport/" + uuid.NewString()
	r.mu.Lock()
	r.callbacks[urlPath] = fn
	r.mu.Unlock()
	return urlPath
}

func (r *NotifyRegistry) Lookup(urlPath string) (NotifyFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.callbacks[urlPath]
	return fn, ok
}

func (r *NotifyRegistry) Unregister(urlPath string) {
	r.mu.Lock()
	delete(r.callbacks, urlPath)
	r.mu.Unlock()
}

func (r *NotifyRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.callbacks)
}
