// Package preset parses and validates the task-graph document described in
// spec §6 (C3): a small declarative file naming one or more Tasks, each a
// template that Expansion (C4) turns into a Job per input file.
package preset

import (
	"fmt"
	"os"
	"strings"

	"github.com/tidwall/gjson"
)

// Task is one entry in a Preset: a template that, after substitution,
// yields a Job.
type Task struct {
	ID            string
	Name          string
	Command       string
	Extension     string
	Arguments     string
	StartIn       string
	DependsOn     string
	Documentation []string
}

// Preset is a validated task-graph document. A Preset with any validation
// error is not usable for expansion; callers must check Valid() (or just
// check that Err() is nil) before calling Tasks().
type Preset struct {
	filename string
	name     string
	tasks    []Task
	err      error
}

// Filename returns the path the preset was read from.
func (p *Preset) Filename() string { return p.filename }

// Name returns the preset's display name.
func (p *Preset) Name() string { return p.name }

// Tasks returns the preset's tasks in file order. Only meaningful when
// Valid() is true.
func (p *Preset) Tasks() []Task { return p.tasks }

// Valid reports whether the preset parsed and validated cleanly.
func (p *Preset) Valid() bool { return p.err == nil }

// Err returns the human-readable validation error, or nil if the preset is
// valid.
func (p *Preset) Err() error { return p.err }

// New builds an already-valid Preset directly from tasks, bypassing Read.
// Useful for a caller assembling a preset in memory rather than loading one
// from disk.
func New(name string, tasks []Task) *Preset {
	return &Preset{name: name, tasks: tasks}
}

// Read loads and validates the preset document at path. It never returns a
// Go error for a malformed document — that's reported through the returned
// Preset's Err() — only for things like the file being unreadable.
func Read(path string) (*Preset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("preset: failed to open file: %w", err)
	}

	p := &Preset{filename: path}

	if !gjson.ValidBytes(data) {
		p.err = fmt.Errorf("preset: failed to parse json document for file: %s", path)
		return p, nil
	}

	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		p.err = fmt.Errorf("preset: json document is not an object for file: %s", path)
		return p, nil
	}

	if v := root.Get("name"); v.Type == gjson.String {
		p.name = v.String()
	}

	seen := map[string]bool{}

	var parseErr error
	root.Get("tasks").ForEach(func(_, v gjson.Result) bool {
		if !v.IsObject() {
			return true
		}

		task := Task{
			ID:        v.Get("id").String(),
			Name:      v.Get("name").String(),
			Command:   v.Get("command").String(),
			Extension: v.Get("extension").String(),
			Arguments: v.Get("arguments").String(),
			StartIn:   v.Get("startin").String(),
			DependsOn: v.Get("dependson").String(),
		}

		for _, d := range v.Get("documentation").Array() {
			task.Documentation = append(task.Documentation, d.String())
		}

		if missing := missingAttributes(task); len(missing) > 0 {
			label := task.Name
			if label == "" {
				label = task.ID
			}
			if label == "" {
				label = "<unnamed task>"
			}
			msg := fmt.Sprintf("json for task: %q does not contain all required attributes", label)
			for _, m := range missing {
				msg += fmt.Sprintf("\nmissing attribute: %s", m)
			}
			parseErr = fmt.Errorf("preset: %s", msg)
			return false
		}

		if task.DependsOn != "" && !seen[task.DependsOn] {
			parseErr = fmt.Errorf("preset: json for task %q contains a dependson id that can not be found: %s", task.Name, task.DependsOn)
			return false
		}

		seen[task.ID] = true
		p.tasks = append(p.tasks, task)
		return true
	})

	if parseErr != nil {
		p.err = parseErr
		p.tasks = nil
	}

	return p, nil
}

func missingAttributes(t Task) []string {
	var missing []string
	if strings.TrimSpace(t.ID) == "" {
		missing = append(missing, "id")
	}
	if strings.TrimSpace(t.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(t.Command) == "" {
		missing = append(missing, "command")
	}
	if strings.TrimSpace(t.Extension) == "" {
		missing = append(missing, "extension")
	}
	if strings.TrimSpace(t.Arguments) == "" {
		missing = append(missing, "arguments")
	}
	return missing
}
