package store

import (
	"time"

	"github.com/oklog/ulid/v2"
	"gopkg.in/yaml.v3"

	"github.com/kazz187/taskdir/internal/task"
	"github.com/kazz187/taskdir/pkg/cerr"
	"github.com/kazz187/taskdir/pkg/fsop"
)

// CreateOptions tune task creation. The zero value gives a mid-range
// priority, a fresh ULID id and a .txt extension.
type CreateOptions struct {
	Priority *int
	ID       string
	Ext      string
}

func (o CreateOptions) priority() int {
	if o.Priority == nil {
		return task.DefaultPriority
	}
	return task.ClampPriority(*o.Priority)
}

// CreateTask publishes an opaque payload as a new ready task and returns
// its id and filename. The write lands in ready/ through a temp name in the
// same directory followed by a rename, so a concurrent claimer can never
// observe a half-written task. Nothing is ever created directly in any
// other state directory.
func (s *Store) CreateTask(typeName string, payload []byte, opts CreateOptions) (string, task.Name, error) {
	if err := s.ensureLayout(typeName); err != nil {
		return "", task.Name{}, err
	}
	id := opts.ID
	if id == "" {
		id = ulid.Make().String()
	}
	ext := opts.Ext
	if ext == "" {
		ext = "txt"
	}
	n := task.Name{Priority: opts.priority(), ID: id, Ext: ext}
	if err := fsop.WriteFileAtomic(s.Path(typeName, task.StateReady, n), payload, 0o644); err != nil {
		return "", task.Name{}, cerr.NewError(cerr.Internal, "failed to create task", err)
	}
	return id, n, nil
}

// CreateDocument publishes a payload wrapped in the structured YAML
// envelope, enabling retry accounting and failure annotation.
func (s *Store) CreateDocument(typeName, payload string, opts CreateOptions) (string, task.Name, error) {
	id := opts.ID
	if id == "" {
		id = ulid.Make().String()
	}
	doc := task.Document{
		ID:        id,
		Type:      typeName,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	data, err := yaml.Marshal(&doc)
	if err != nil {
		return "", task.Name{}, cerr.NewError(cerr.Internal, "failed to marshal task document", err)
	}
	opts.ID = id
	if opts.Ext == "" {
		opts.Ext = "yaml"
	}
	return s.CreateTask(typeName, data, opts)
}
