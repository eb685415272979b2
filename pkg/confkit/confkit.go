package confkit

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/zeromicro/go-zero/core/conf"
)

// ResolvePath resolves a file path named inside etc/predictcore.yaml (e.g.
// llm_client.file) relative to that document's own directory, so a relative
// path in the YAML is independent of the working directory the engine was
// started from. "${VAR}"-style env references are expanded first; an
// absolute result is returned as is, a relative one is joined to base.
func ResolvePath(base, file string) string {
	file = os.ExpandEnv(file)
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(base, file)
}

// BaseDir returns the directory holding the main config file, the base every
// Section[T].File path in that document resolves against.
func BaseDir(mainPath string) string {
	return filepath.Dir(mainPath)
}

// LoadFile loads a standalone config document (e.g. etc/llm.yaml) into T
// using go-zero's conf.Load, with optional "${VAR}" environment expansion.
func LoadFile[T any](path string, useEnv bool) (*T, error) {
	var cfg T
	opts := []conf.Option{}
	if useEnv {
		opts = append(opts, conf.UseEnv())
	}
	if err := conf.Load(path, &cfg, opts...); err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return &cfg, nil
}

// Section is an optional config document split out of the main YAML file —
// predictcore's llm_client section is the only one that uses this; every
// other domain package's config lives inline in etc/predictcore.yaml. The
// generic type T is the split-out section's own config type.
type Section[T any] struct {
	File  string `json:",optional"`
	Value *T     `json:"-"`
}

// Hydrate loads the file named in s.File (resolved against base) via loader
// and stores the result in s.Value. A blank File leaves Value nil rather
// than erroring, since the LLM advisor is optional — the engine runs
// RL+Historical+Technical-only when llm_client.file is unset.
func (s *Section[T]) Hydrate(base string, loader func(string) (*T, error)) error {
	if s.File == "" {
		return nil
	}
	p := ResolvePath(base, s.File)
	v, err := loader(p)
	if err != nil {
		return err
	}
	s.File, s.Value = p, v
	return nil
}
