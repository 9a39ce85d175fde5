package task

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"gopkg.in/yaml.v3"

	"github.com/kazz187/taskdir/pkg/cerr"
	"github.com/kazz187/taskdir/pkg/fsop"
)

// Structured-payload helpers. YAML documents use the Document envelope;
// JSON payloads are edited field-by-field so unknown producer fields
// survive untouched. Any other extension is treated as opaque and left
// alone. Callers must hold the task (claimed or recovery pass) since these
// rewrite the file in place.

func payloadKind(path string) string {
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		return "yaml"
	case ".json":
		return "json"
	default:
		return ""
	}
}

// AnnotateFailure records an error summary and failure timestamp in a
// structured payload. Opaque payloads are a no-op.
func AnnotateFailure(path, summary string, failedAt time.Time) error {
	switch payloadKind(path) {
	case "yaml":
		var doc Document
		if err := readYAML(path, &doc); err != nil {
			return err
		}
		doc.Error = summary
		doc.FailedAt = &failedAt
		return writeYAML(path, &doc)
	case "json":
		data, err := os.ReadFile(path)
		if err != nil {
			return cerr.NewError(cerr.Internal, "failed to read task payload", err)
		}
		data, err = sjson.SetBytes(data, "error", summary)
		if err != nil {
			return cerr.NewError(cerr.InvalidArgument, "task payload is not valid JSON", err)
		}
		data, err = sjson.SetBytes(data, "failed_at", failedAt.Format(time.RFC3339))
		if err != nil {
			return cerr.NewError(cerr.InvalidArgument, "task payload is not valid JSON", err)
		}
		return fsop.WriteFileAtomic(path, data, 0o644)
	default:
		return nil
	}
}

// IncrementRetry bumps retry_count in a structured payload and returns the
// new value. Opaque payloads return 0 without modification.
func IncrementRetry(path string) (int, error) {
	switch payloadKind(path) {
	case "yaml":
		var doc Document
		if err := readYAML(path, &doc); err != nil {
			return 0, err
		}
		doc.RetryCount++
		if err := writeYAML(path, &doc); err != nil {
			return 0, err
		}
		return doc.RetryCount, nil
	case "json":
		data, err := os.ReadFile(path)
		if err != nil {
			return 0, cerr.NewError(cerr.Internal, "failed to read task payload", err)
		}
		count := int(gjson.GetBytes(data, "retry_count").Int()) + 1
		data, err = sjson.SetBytes(data, "retry_count", count)
		if err != nil {
			return 0, cerr.NewError(cerr.InvalidArgument, "task payload is not valid JSON", err)
		}
		if err := fsop.WriteFileAtomic(path, data, 0o644); err != nil {
			return 0, err
		}
		return count, nil
	default:
		return 0, nil
	}
}

// ReadPayload extracts the executable payload from a task file. Structured
// YAML and JSON envelopes carry it in the payload field; any other file is
// its own payload.
func ReadPayload(path string) (string, error) {
	switch payloadKind(path) {
	case "yaml":
		var doc Document
		if err := readYAML(path, &doc); err != nil {
			return "", err
		}
		return doc.Payload, nil
	case "json":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", cerr.NewError(cerr.Internal, "failed to read task payload", err)
		}
		return gjson.GetBytes(data, "payload").String(), nil
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return "", cerr.NewError(cerr.Internal, "failed to read task payload", err)
		}
		return string(data), nil
	}
}

func readYAML(path string, doc *Document) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return cerr.NewError(cerr.Internal, "failed to read task document", err)
	}
	if err := yaml.Unmarshal(data, doc); err != nil {
		return cerr.NewError(cerr.InvalidArgument, "task document is not valid YAML", fmt.Errorf("unmarshal %s: %w", path, err))
	}
	return nil
}

func writeYAML(path string, doc *Document) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return cerr.NewError(cerr.Internal, "failed to marshal task document", err)
	}
	return fsop.WriteFileAtomic(path, data, 0o644)
}
