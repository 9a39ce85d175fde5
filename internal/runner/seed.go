package runner

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/kazz187/taskdir/pkg/cerr"
)

// Entry is one external runner binding, typically read from the runners
// config file.
type Entry struct {
	Type    string   `yaml:"type"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args,omitempty"`
}

// convention prefix for runner executables discovered on disk. The
// convention is only consulted here, at seeding time; dispatch resolves
// runners exclusively through the registry.
const dirPrefix = "runner_for_"

// SeedBuiltins registers the runners that ship with the dispatcher.
func (r *Registry) SeedBuiltins() error {
	return r.Register(ShellType, NewShellRunner())
}

// SeedFromEntries registers external runners from explicit configuration.
func (r *Registry) SeedFromEntries(entries []Entry) error {
	for _, e := range entries {
		if e.Command == "" {
			return cerr.NewError(cerr.InvalidArgument, "runner entry missing command", nil)
		}
		if err := r.Register(e.Type, NewExecRunner(e.Command, e.Args...)); err != nil {
			return err
		}
	}
	return nil
}

// SeedFromDir scans dir for executables named runner_for_<type> and
// registers each as an ExecRunner for that type. A missing directory is
// fine; non-executable or unrelated files are skipped.
func (r *Registry) SeedFromDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return cerr.NewError(cerr.Internal, "failed to scan runners directory", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		typeName, ok := strings.CutPrefix(stem, dirPrefix)
		if !ok || typeName == "" {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.Mode()&0o111 == 0 {
			continue
		}
		abs, err := filepath.Abs(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		if err := r.Register(typeName, NewExecRunner(abs)); err != nil {
			return err
		}
	}
	return nil
}
