package publish

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/Veraticus/orderproof/internal/common"
)

// MemoryStore is an in-memory ObjectStore for dry runs and tests. Like Drive,
// it does not deduplicate by name: an upload without an existing object
// always creates a new one.
type MemoryStore struct {
	objects  map[string][]*memoryObject
	failures []error
	lost     []error
	mu       sync.Mutex
	uploads  int
	nextID   int
}

type memoryObject struct {
	data   []byte
	obj    RemoteObject
	public bool
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]*memoryObject)}
}

// FailNext makes the next calls fail with the given errors, in order.
func (m *MemoryStore) FailNext(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, errs...)
}

// LoseNextUpload makes the next upload take effect but report err, as when
// the response to a committed write is lost.
func (m *MemoryStore) LoseNextUpload(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lost = append(m.lost, err)
}

func (m *MemoryStore) injected() error {
	if len(m.failures) == 0 {
		return nil
	}
	err := m.failures[0]
	m.failures = m.failures[1:]
	return err
}

func (m *MemoryStore) find(name, id string) *memoryObject {
	for _, o := range m.objects[name] {
		if o.obj.ID == id {
			return o
		}
	}
	return nil
}

// Stat implements ObjectStore. When several objects share the name the
// oldest is returned.
func (m *MemoryStore) Stat(_ context.Context, name string) (*RemoteObject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.injected(); err != nil {
		return nil, err
	}
	objs := m.objects[name]
	if len(objs) == 0 {
		return nil, fmt.Errorf("object %s: %w", name, common.ErrNotFound)
	}
	obj := objs[0].obj
	return &obj, nil
}

// Upload implements ObjectStore.
func (m *MemoryStore) Upload(_ context.Context, localPath, name string, existing *RemoteObject) (*RemoteObject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.injected(); err != nil {
		return nil, err
	}

	info, err := os.Stat(localPath)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(localPath) // #nosec G304
	if err != nil {
		return nil, err
	}

	var o *memoryObject
	if existing != nil {
		if o = m.find(name, existing.ID); o == nil {
			return nil, fmt.Errorf("object %s: %w", existing.ID, common.ErrNotFound)
		}
	} else {
		m.nextID++
		o = &memoryObject{obj: RemoteObject{ID: fmt.Sprintf("mem-%d", m.nextID), Name: name}}
		m.objects[name] = append(m.objects[name], o)
	}
	o.data = data
	o.obj.ModifiedAt = info.ModTime()
	m.uploads++

	if len(m.lost) > 0 {
		err := m.lost[0]
		m.lost = m.lost[1:]
		return nil, err
	}

	obj := o.obj
	return &obj, nil
}

// PublicLink implements ObjectStore.
func (m *MemoryStore) PublicLink(_ context.Context, obj *RemoteObject) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.injected(); err != nil {
		return "", err
	}
	o := m.find(obj.Name, obj.ID)
	if o == nil {
		return "", fmt.Errorf("object %s: %w", obj.ID, common.ErrNotFound)
	}
	o.public = true
	return "memory://" + o.obj.ID + "/" + o.obj.Name, nil
}

// Uploads returns how many uploads have been committed.
func (m *MemoryStore) Uploads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.uploads
}

// Len returns the number of stored objects.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, objs := range m.objects {
		n += len(objs)
	}
	return n
}

// Data returns the content of the oldest object stored under name.
func (m *MemoryStore) Data(name string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	objs := m.objects[name]
	if len(objs) == 0 {
		return nil, false
	}
	return objs[0].data, true
}
