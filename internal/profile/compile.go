package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// CompileError reports an invalid profile definition with its CUE position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Compile parses one profile from the CUE value of a `form: <name>` struct.
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`form: invoice: { tracked: ["number"] }`)
//	p, err := Compile(v.LookupPath(cue.ParsePath("form.invoice")))
func Compile(v cue.Value) (*Profile, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	p := &Profile{}
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		p.Name = labels[len(labels)-1].String()
	}

	var err error
	if p.Tracked, err = stringList(v, "tracked"); err != nil {
		return nil, err
	}
	if p.Required, err = stringList(v, "required"); err != nil {
		return nil, err
	}

	itemsVal := v.LookupPath(cue.ParsePath("line_items"))
	if itemsVal.Exists() {
		li := &LineItems{}
		fieldVal := itemsVal.LookupPath(cue.ParsePath("field"))
		if !fieldVal.Exists() {
			return nil, &CompileError{Field: "line_items.field", Message: "field is required", Pos: itemsVal.Pos()}
		}
		if li.Field, err = fieldVal.String(); err != nil {
			return nil, formatCUEError(err)
		}
		if li.Refs, err = stringList(itemsVal, "refs"); err != nil {
			return nil, err
		}
		p.LineItems = li
	}

	if err := p.validate(v.Pos()); err != nil {
		return nil, err
	}
	return p, nil
}

// validate checks internal consistency: every required field and the
// line-item field must be tracked when a tracked list is given.
func (p *Profile) validate(pos token.Pos) error {
	seen := make(map[string]bool, len(p.Tracked))
	for _, f := range p.Tracked {
		if f == "" {
			return &CompileError{Field: "tracked", Message: "empty field name", Pos: pos}
		}
		if seen[f] {
			return &CompileError{Field: "tracked", Message: fmt.Sprintf("duplicate field %q", f), Pos: pos}
		}
		seen[f] = true
	}
	if len(p.Tracked) == 0 {
		return nil
	}
	for _, f := range p.Required {
		if !seen[f] {
			return &CompileError{Field: "required", Message: fmt.Sprintf("field %q is not tracked", f), Pos: pos}
		}
	}
	if p.LineItems != nil && !seen[p.LineItems.Field] {
		return &CompileError{Field: "line_items.field", Message: fmt.Sprintf("field %q is not tracked", p.LineItems.Field), Pos: pos}
	}
	return nil
}

// stringList reads an optional list of strings.
func stringList(v cue.Value, field string) ([]string, error) {
	listVal := v.LookupPath(cue.ParsePath(field))
	if !listVal.Exists() {
		return nil, nil
	}
	iter, err := listVal.List()
	if err != nil {
		return nil, &CompileError{Field: field, Message: "must be a list of strings", Pos: listVal.Pos()}
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, &CompileError{Field: field, Message: "must be a list of strings", Pos: iter.Value().Pos()}
		}
		out = append(out, s)
	}
	return out, nil
}

// CompileBytes compiles every `form` entry in a CUE document.
func CompileBytes(filename string, data []byte) (Set, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	set := Set{}
	formsVal := v.LookupPath(cue.ParsePath("form"))
	if !formsVal.Exists() {
		return set, nil
	}
	iter, err := formsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		p, err := Compile(iter.Value())
		if err != nil {
			return nil, fmt.Errorf("form.%s: %w", iter.Selector().String(), err)
		}
		set[p.Name] = p
	}
	return set, nil
}

// LoadFiles compiles the given CUE files into one set. A profile defined
// in two files is an error.
func LoadFiles(paths ...string) (Set, error) {
	set := Set{}
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read profile file: %w", err)
		}
		fileSet, err := CompileBytes(path, data)
		if err != nil {
			return nil, err
		}
		for name, p := range fileSet {
			if _, dup := set[name]; dup {
				return nil, fmt.Errorf("%s: profile %q defined more than once", path, name)
			}
			set[name] = p
		}
	}
	return set, nil
}

// LoadDir compiles every .cue file under dir.
func LoadDir(dir string) (Set, error) {
	files, err := FindCUEFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no CUE files found in %s", dir)
	}
	return LoadFiles(files...)
}

// FindCUEFiles walks the directory and returns all .cue file paths in
// lexical order.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}

// Names returns the profile names in sorted order.
func (s Set) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
