package records

import (
	"fmt"

	"github.com/yurifrl/categorisation/pkg/catalog"
)

// Source supplies the input records of one entity kind.
type Source interface {
	Records(kind catalog.Kind) ([]Record, error)
}

// FileSource binds entity kinds to input files.
type FileSource struct {
	Delimiter rune
	paths     map[catalog.Kind]string
}

func NewFileSource(delimiter rune) *FileSource {
	return &FileSource{Delimiter: delimiter, paths: make(map[catalog.Kind]string)}
}

// Bind sets the file read for kind. An empty path unbinds it.
func (s *FileSource) Bind(kind catalog.Kind, path string) {
	if path == "" {
		delete(s.paths, kind)
		return
	}
	s.paths[kind] = path
}

// Path returns the file bound to kind.
func (s *FileSource) Path(kind catalog.Kind) string {
	return s.paths[kind]
}

func (s *FileSource) Records(kind catalog.Kind) ([]Record, error) {
	path, ok := s.paths[kind]
	if !ok {
		return nil, fmt.Errorf("no data source bound for %s", kind)
	}
	fields, ok := catalog.For(kind)
	if !ok {
		return nil, fmt.Errorf("unknown entity kind %s", kind)
	}
	return ReadFile(path, fields.Input, s.Delimiter)
}

// StaticSource serves records already held in memory.
type StaticSource map[catalog.Kind][]Record

func (s StaticSource) Records(kind catalog.Kind) ([]Record, error) {
	recs, ok := s[kind]
	if !ok {
		return nil, fmt.Errorf("no data source bound for %s", kind)
	}
	return recs, nil
}
