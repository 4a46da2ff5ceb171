package manager

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// TemplateLoader loads policy templates from the file system.
type TemplateLoader struct {
	config *LoaderConfig
}

// NewTemplateLoader creates a new template loader with the given configuration.
func NewTemplateLoader(config *LoaderConfig) *TemplateLoader {
	if config == nil {
		config = DefaultLoaderConfig()
	}
	return &TemplateLoader{config: config}
}

// LoadFromFile loads a single template from the given path.
// The template id is the file name without its extension.
func (l *TemplateLoader) LoadFromFile(path string) (*Template, error) {
	fileInfo, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &LoadError{FilePath: path, Message: "file not found", Cause: err}
		}
		if os.IsPermission(err) {
			return nil, &LoadError{FilePath: path, Message: "permission denied", Cause: err}
		}
		return nil, &LoadError{FilePath: path, Message: "failed to access file", Cause: err}
	}

	if !fileInfo.Mode().IsRegular() {
		return nil, &LoadError{FilePath: path, Message: "not a regular file"}
	}

	if fileInfo.Size() > l.config.MaxFileSize {
		return nil, &LoadError{
			FilePath: path,
			Message:  fmt.Sprintf("file size %d bytes exceeds maximum %d bytes", fileInfo.Size(), l.config.MaxFileSize),
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{FilePath: path, Message: "failed to read file", Cause: err}
	}

	if !utf8.Valid(data) {
		return nil, &LoadError{FilePath: path, Message: "file contains invalid UTF-8 encoding"}
	}

	var tmpl Template
	if err := yaml.Unmarshal(data, &tmpl); err != nil {
		return nil, &ParseError{FilePath: path, Message: "YAML parsing failed", Cause: err}
	}

	tmpl.ID = templateID(path)
	tmpl.SourceFile = path
	if tmpl.Name == "" {
		tmpl.Name = tmpl.ID
	}

	return &tmpl, nil
}

// LoadFromDirectory loads every template file in the given directory.
// Each file is parsed independently: a failure is recorded in the returned
// ErrorList and that template omitted, never fatal to the rest of the set.
// Only an unreadable directory is returned as a hard error.
func (l *TemplateLoader) LoadFromDirectory(dir string) ([]*Template, *ErrorList, error) {
	errList := &ErrorList{}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errList, &LoadError{FilePath: dir, Message: "failed to read directory", Cause: err}
	}

	var templates []*Template
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if l.config.SkipHidden && strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if !l.hasValidExtension(entry.Name()) {
			continue
		}

		tmpl, err := l.LoadFromFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			errList.Add(err)
			continue
		}
		templates = append(templates, tmpl)
	}

	return templates, errList, nil
}

// hasValidExtension checks if the file has a valid template file extension.
func (l *TemplateLoader) hasValidExtension(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, validExt := range l.config.Extensions {
		if ext == strings.ToLower(validExt) {
			return true
		}
	}
	return false
}

// templateID derives the template id from a file path.
func templateID(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
