// Package form implements the schema-driven form engine: a recursive field
// tree with nested-path defaults, conditional visibility, per-kind value
// handling, validation and guarded submission.
package form

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/pitabwire/dealerdesk/internal/accessor"
	"github.com/pitabwire/dealerdesk/internal/validation"
	"github.com/pitabwire/dealerdesk/model"
)

var (
	// ErrSubmitInProgress is returned when Submit is called while a previous
	// submission has not finished.
	ErrSubmitInProgress = errors.New("form: submission in progress")
	// ErrUnknownField is returned when a value targets a name no leaf has.
	ErrUnknownField = errors.New("form: unknown field")
	// ErrWrongKind is returned when an operation does not apply to a field.
	ErrWrongKind = errors.New("form: operation not supported by field type")
	// ErrUnknownOption is returned when a checkbox toggle names no option.
	ErrUnknownOption = errors.New("form: unknown option")
)

// SaveFunc persists submitted values.
type SaveFunc func(ctx context.Context, values map[string]any) error

// Config is the caller-authored form definition.
type Config struct {
	Fields  []Field
	Initial model.Record
	Schema  validation.Schema
	OnSave  SaveFunc
	// OnCancel is called by Cancel.
	OnCancel func()
	// StripHidden drops the values of hidden fields before OnSave. By default
	// OnSave receives every value, hidden fields included.
	StripHidden bool
	// IDField locates the identifier that marks the initial record as
	// existing. Defaults to "id".
	IDField string
	Logger  *zap.Logger
}

// Engine is one controlled editing surface over a field tree. It is safe for
// concurrent use.
type Engine struct {
	cfg    Config
	logger *zap.Logger
	tree   *tree

	mu          sync.Mutex
	initial     model.Record
	fingerprint string
	values      map[string]any
	errors      map[string]string
	revealed    map[string]bool
	previews    map[string]string

	submitting atomic.Bool
}

// New builds the field tree and seeds values from cfg.Initial.
func New(cfg Config) (*Engine, error) {
	if cfg.IDField == "" {
		cfg.IDField = "id"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	t, err := buildTree(cfg.Fields, logger)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:      cfg,
		logger:   logger,
		tree:     t,
		revealed: make(map[string]bool),
	}
	e.resetLocked(cfg.Initial)
	return e, nil
}

// Reset re-seeds values from initial when it differs by value from the
// record currently loaded. It reports whether values were replaced; an equal
// record leaves in-progress edits untouched.
func (e *Engine) Reset(initial model.Record) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if fingerprint(initial) == e.fingerprint {
		return false
	}
	e.resetLocked(initial)
	return true
}

func (e *Engine) resetLocked(initial model.Record) {
	e.initial = model.CloneRecord(initial)
	e.fingerprint = fingerprint(initial)
	e.values = ExtractDefaults(e.cfg.Fields, e.initial)
	e.errors = make(map[string]string)
	e.previews = make(map[string]string)
}

// IsEditing reports whether the initial record carries an identifier.
func (e *Engine) IsEditing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.editingLocked()
}

func (e *Engine) editingLocked() bool {
	return model.IdentifierOf(accessor.Get(e.initial, e.cfg.IDField)) != ""
}

// Initial returns a copy of the loaded initial record.
func (e *Engine) Initial() model.Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	return model.CloneRecord(e.initial)
}

// Values returns a copy of the current flat values, hidden fields included.
func (e *Engine) Values() map[string]any {
	e.mu.Lock()
	defer e.mu.Unlock()
	return maps.Clone(e.values)
}

// VisibleValues returns the current flat values without fields that are
// hidden for them.
func (e *Engine) VisibleValues() map[string]any {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := maps.Clone(e.values)
	for name := range e.tree.hiddenNames(out) {
		delete(out, name)
	}
	return out
}

// Errors returns a copy of the current field errors keyed by dot-path.
func (e *Engine) Errors() map[string]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return maps.Clone(e.errors)
}

// Visible reports whether the field called name is currently shown.
func (e *Engine) Visible(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.tree.byName[name]; !ok {
		return false
	}
	return !e.tree.hiddenNames(e.values)[name]
}

// Status returns model.FormSaving while a submission is in flight, else
// model.FormIdle.
func (e *Engine) Status() string {
	if e.submitting.Load() {
		return model.FormSaving
	}
	return model.FormIdle
}

// SetValue writes v to the field called name and runs its OnChange. Number
// fields accept numeric strings.
func (e *Engine) SetValue(name string, v any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	f, ok := e.tree.leaf(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	e.setLocked(f, coerce(f, v))
	return nil
}

// ToggleOption adds option to a checkbox-group's selected values, or removes
// it when present.
func (e *Engine) ToggleOption(name, option string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	f, ok := e.tree.leaf(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	if f.Kind != KindCheckboxGroup {
		return fmt.Errorf("%w: toggle on %s field %q", ErrWrongKind, f.Kind, name)
	}
	if len(f.Options) > 0 && !slices.ContainsFunc(f.Options, func(o Option) bool { return o.Value == option }) {
		return fmt.Errorf("%w: %q on field %q", ErrUnknownOption, option, name)
	}

	selected := stringList(e.values[name])
	if i := slices.Index(selected, option); i >= 0 {
		selected = slices.Delete(selected, i, i+1)
	} else {
		selected = append(selected, option)
	}
	e.setLocked(f, selected)
	return nil
}

// SetFile stores file as the raw value of a file field and keeps its data-URL
// preview separately. A nil file clears the field.
func (e *Engine) SetFile(name string, file *FileValue) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	f, ok := e.tree.leaf(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	if f.Kind != KindFile {
		return fmt.Errorf("%w: file on %s field %q", ErrWrongKind, f.Kind, name)
	}
	if file == nil {
		delete(e.previews, name)
		e.setLocked(f, "")
		return nil
	}
	e.previews[name] = file.DataURL()
	e.setLocked(f, file)
	return nil
}

// ToggleReveal flips the show/hide state of a password field and returns the
// new state.
func (e *Engine) ToggleReveal(name string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	f, ok := e.tree.leaf(name)
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	if f.Kind != KindPassword {
		return false, fmt.Errorf("%w: reveal on %s field %q", ErrWrongKind, f.Kind, name)
	}
	e.revealed[name] = !e.revealed[name]
	return e.revealed[name], nil
}

func (e *Engine) setLocked(f Field, v any) {
	e.writeLocked(f, v)
	if f.OnChange != nil {
		f.OnChange(v, Helpers{e: e})
	}
}

// writeLocked stores an already coerced value and clears the field's error.
func (e *Engine) writeLocked(f Field, v any) {
	e.values[f.Name] = v
	delete(e.errors, f.Name)
}

// coerce converts raw input to the value type a field kind keeps in state.
func coerce(f Field, v any) any {
	switch f.Kind {
	case KindNumber:
		return coerceNumber(v)
	case KindCheckboxGroup:
		return stringList(v)
	default:
		return v
	}
}

// Submit validates the current values and, when they pass, calls OnSave once
// with a copy of them. Validation failures are reported in the returned
// result, never as an error; errors from OnSave are returned wrapped. Calls
// made while a submission is in flight return ErrSubmitInProgress.
func (e *Engine) Submit(ctx context.Context) (validation.Result, error) {
	if !e.submitting.CompareAndSwap(false, true) {
		return validation.Result{}, ErrSubmitInProgress
	}
	defer e.submitting.Store(false)

	e.mu.Lock()
	values := maps.Clone(e.values)
	hidden := e.tree.hiddenNames(values)
	vctx := validation.Context{IsEditing: e.editingLocked()}
	e.mu.Unlock()

	res := validation.Valid()
	if e.cfg.Schema != nil {
		res = e.cfg.Schema.Validate(values, vctx)
	}
	errs := make(map[string]string, len(res.Errors))
	for field, msg := range res.Errors {
		if hidden[field] {
			continue
		}
		errs[field] = msg
	}
	res = res.Reconcile(errs)
	errs = res.Errors

	e.mu.Lock()
	e.errors = maps.Clone(errs)
	e.mu.Unlock()

	if !res.Valid {
		e.logger.Debug("form submission blocked by validation", zap.Int("errors", len(errs)))
		return res, nil
	}
	if e.cfg.OnSave == nil {
		return res, nil
	}
	if e.cfg.StripHidden {
		for name := range hidden {
			delete(values, name)
		}
	}
	if err := e.cfg.OnSave(ctx, values); err != nil {
		return res, fmt.Errorf("form: save: %w", err)
	}
	return res, nil
}

// Cancel calls OnCancel. Form state is left as is.
func (e *Engine) Cancel() {
	if e.cfg.OnCancel != nil {
		e.cfg.OnCancel()
	}
}

// coerceNumber converts numeric strings to float64. Blank and non-numeric
// strings are kept for validation to report.
func coerceNumber(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return n
	}
	return v
}

// stringList reads a checkbox-group value. "" and nil are the empty list.
func stringList(v any) []string {
	switch t := v.(type) {
	case []string:
		return slices.Clone(t)
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			out = append(out, accessor.String(item))
		}
		return out
	case nil:
		return []string{}
	case string:
		if t == "" {
			return []string{}
		}
		return []string{t}
	default:
		return []string{accessor.String(t)}
	}
}
