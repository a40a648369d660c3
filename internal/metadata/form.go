package metadata

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/pitabwire/dealerdesk/internal/accessor"
	"github.com/pitabwire/dealerdesk/internal/definition"
	"github.com/pitabwire/dealerdesk/internal/events"
	"github.com/pitabwire/dealerdesk/internal/form"
	"github.com/pitabwire/dealerdesk/internal/lookup"
	"github.com/pitabwire/dealerdesk/internal/observability"
	"github.com/pitabwire/dealerdesk/internal/openapi"
	"github.com/pitabwire/dealerdesk/internal/store"
	"github.com/pitabwire/dealerdesk/internal/validation"
	"github.com/pitabwire/dealerdesk/model"
)

// FormDeps are the collaborators of a FormProvider. Lookups, Publisher and
// Components may be nil.
type FormDeps struct {
	Registry   *definition.Registry
	Store      store.Store
	Lookups    *lookup.Provider
	Publisher  events.Publisher
	Components *ComponentRegistry
	// SpecDirs are searched, in order, for relative OpenAPI document paths.
	SpecDirs []string
	Logger   *zap.Logger
}

// FormProvider compiles FormDefinitions into form engines whose save handler
// writes to the record store.
type FormProvider struct {
	deps   FormDeps
	logger *zap.Logger

	mu          sync.Mutex
	schemas     map[string]*validation.OpenAPISchema
	schemasFrom string
	specs       *openapi.Index
}

// NewFormProvider creates a FormProvider.
func NewFormProvider(deps FormDeps) *FormProvider {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Publisher == nil {
		deps.Publisher = events.NopPublisher{}
	}
	if deps.Components == nil {
		deps.Components = NewComponentRegistry()
	}
	return &FormProvider{
		deps:    deps,
		logger:  deps.Logger,
		schemas: make(map[string]*validation.OpenAPISchema),
		specs:   openapi.NewIndex(deps.SpecDirs...),
	}
}

// FormSession is a compiled form bound to one initial record.
type FormSession struct {
	Definition model.FormDefinition
	Engine     *form.Engine

	mu    sync.Mutex
	saved model.Record
}

// Saved returns the record persisted by the last successful submit.
func (s *FormSession) Saved() (model.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.CloneRecord(s.saved), s.saved != nil
}

// View renders the form with its id and title.
func (s *FormSession) View() (model.FormView, error) {
	view, err := s.Engine.Render()
	if err != nil {
		return model.FormView{}, err
	}
	view.ID = s.Definition.ID
	view.Title = s.Definition.Title
	return view, nil
}

// Close releases the session. Form engines hold no timers.
func (s *FormSession) Close() {}

func (s *FormSession) setSaved(r model.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = r
}

// Definition returns the form definition with the given id or a NOT_FOUND
// error.
func (p *FormProvider) Definition(formID string) (model.FormDefinition, error) {
	def, ok := p.deps.Registry.GetForm(formID)
	if !ok {
		return model.FormDefinition{}, model.NewNotFoundError(fmt.Sprintf("form %q not found", formID))
	}
	return def, nil
}

// Open compiles a form over the record with recordID, or over an empty record
// when recordID is empty.
func (p *FormProvider) Open(ctx context.Context, formID string, recordID model.Identifier) (*FormSession, error) {
	def, err := p.Definition(formID)
	if err != nil {
		return nil, err
	}

	var initial model.Record
	if recordID != "" {
		initial, err = p.deps.Store.Get(ctx, def.Collection, recordID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, model.NewNotFoundError(fmt.Sprintf("record %q not found in %q", recordID, def.Collection))
		}
		if err != nil {
			return nil, fmt.Errorf("loading record for form %q: %w", formID, err)
		}
	}

	fields := p.Fields(ctx, def)
	schema, err := p.Schema(def)
	if err != nil {
		return nil, err
	}

	sess := &FormSession{Definition: def}
	engine, err := form.New(form.Config{
		Fields:      fields,
		Initial:     initial,
		Schema:      schema,
		OnSave:      p.saver(def, initial, sess),
		StripHidden: def.StripHidden,
		IDField:     store.IDField,
		Logger:      p.logger.With(zap.String("form_id", def.ID)),
	})
	if err != nil {
		return nil, fmt.Errorf("compiling form %q: %w", formID, err)
	}
	sess.Engine = engine
	return sess, nil
}

// Defaults returns the values a form would start with for record.
func (p *FormProvider) Defaults(ctx context.Context, formID string, record model.Record) (map[string]any, error) {
	def, err := p.Definition(formID)
	if err != nil {
		return nil, err
	}
	return form.ExtractDefaults(p.Fields(ctx, def), record), nil
}

// Fields compiles a definition's field tree. Configuration problems are
// logged and the affected node degrades: unknown types are skipped, unknown
// components render as text, failed lookups yield no options.
func (p *FormProvider) Fields(ctx context.Context, def model.FormDefinition) []form.Field {
	return p.compileFields(ctx, def.ID, def.Fields)
}

func (p *FormProvider) compileFields(ctx context.Context, formID string, defs []model.FieldDefinition) []form.Field {
	out := make([]form.Field, 0, len(defs))
	for _, fd := range defs {
		f, ok := p.compileField(ctx, formID, fd)
		if ok {
			out = append(out, f)
		}
	}
	return out
}

func (p *FormProvider) compileField(ctx context.Context, formID string, fd model.FieldDefinition) (form.Field, bool) {
	kind, err := form.ParseKind(fd.Type)
	if err != nil {
		p.logger.Warn("skipping field with unknown type",
			zap.String("form_id", formID),
			zap.String("field", fd.Name),
			zap.String("type", fd.Type),
		)
		return form.Field{}, false
	}

	f := form.Field{
		Kind:         kind,
		Name:         fd.Name,
		Label:        fd.Label,
		Icon:         fd.Icon,
		Placeholder:  fd.Placeholder,
		DefaultValue: fd.DefaultValue,
		Title:        fd.Title,
		Columns:      fd.Columns,
		Props:        fd.Props,
	}

	if kind.IsGroup() {
		f.Fields = p.compileFields(ctx, formID, fd.Fields)
		if kind == form.KindRow && f.Columns == 0 {
			f.Columns = min(max(len(f.Fields), 1), 4)
		}
		return f, true
	}

	if fd.ShowIf != nil {
		cond, ok := CompileCondition(fd.ShowIf)
		if !ok {
			p.logger.Warn("ignoring show_if with unknown operator",
				zap.String("form_id", formID),
				zap.String("field", fd.Name),
				zap.String("operator", fd.ShowIf.Operator),
			)
		}
		f.ShowIf = cond
	}

	switch kind {
	case form.KindSelect, form.KindCheckboxGroup:
		f.Options = p.options(ctx, formID, fd)
	case form.KindCustom:
		c, ok := p.deps.Components.Get(fd.Component)
		if !ok {
			p.logger.Warn("unknown component, rendering as text",
				zap.String("form_id", formID),
				zap.String("field", fd.Name),
				zap.String("component", fd.Component),
			)
			f.Kind = form.KindText
			break
		}
		f.Component = c
	}
	return f, true
}

func (p *FormProvider) options(ctx context.Context, formID string, fd model.FieldDefinition) []form.Option {
	if fd.Lookup == "" {
		out := make([]form.Option, 0, len(fd.Options))
		for _, o := range fd.Options {
			out = append(out, form.Option{Value: o.Value, Label: o.Label})
		}
		return out
	}
	if p.deps.Lookups == nil {
		return nil
	}
	resolved, err := p.deps.Lookups.Options(ctx, fd.Lookup)
	if err != nil {
		p.logger.Warn("lookup failed, field has no options",
			zap.String("form_id", formID),
			zap.String("field", fd.Name),
			zap.String("lookup", fd.Lookup),
			zap.Error(err),
		)
		return nil
	}
	out := make([]form.Option, 0, len(resolved))
	for _, o := range resolved {
		out = append(out, form.Option{Value: o.Value, Label: o.Label})
	}
	return out
}

// Schema builds the validation schema of a form: field rules, composed with
// the referenced OpenAPI component schema when one is declared.
func (p *FormProvider) Schema(def model.FormDefinition) (validation.Schema, error) {
	rules := map[string]validation.Rule{}
	collectRules(def.Fields, rules)
	ruleSchema, err := validation.NewRuleSchema(rules)
	if err != nil {
		return nil, fmt.Errorf("form %q: %w", def.ID, err)
	}
	if def.Schema == nil {
		return ruleSchema, nil
	}
	doc, err := p.openAPISchema(def.Schema)
	if err != nil {
		return nil, fmt.Errorf("form %q: %w", def.ID, err)
	}
	return validation.Compose(ruleSchema, doc), nil
}

func collectRules(defs []model.FieldDefinition, rules map[string]validation.Rule) {
	for _, fd := range defs {
		if len(fd.Fields) > 0 {
			collectRules(fd.Fields, rules)
		}
		v := fd.Validation
		if v == nil || fd.Name == "" {
			continue
		}
		rules[fd.Name] = validation.Rule{
			Required:         v.Required,
			RequiredOnCreate: v.RequiredOnCreate,
			MinLength:        v.MinLength,
			MaxLength:        v.MaxLength,
			Min:              v.Min,
			Max:              v.Max,
			Pattern:          v.Pattern,
			Equals:           v.Equals,
			Message:          v.Message,
		}
	}
}

// openAPISchema resolves and caches a component schema. Both caches are
// dropped whenever the definitions change.
func (p *FormProvider) openAPISchema(ref *model.SchemaRef) (*validation.OpenAPISchema, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if sum := p.deps.Registry.Checksum(); sum != p.schemasFrom {
		p.schemas = make(map[string]*validation.OpenAPISchema)
		p.schemasFrom = sum
		p.specs.Reset()
	}
	key := ref.Spec + "#" + ref.Name
	if s, ok := p.schemas[key]; ok {
		return s, nil
	}
	schema, err := p.specs.Schema(ref.Spec, ref.Name)
	if err != nil {
		return nil, err
	}
	s := validation.NewOpenAPISchema(ref.Name, schema)
	p.schemas[key] = s
	return s, nil
}

// saver persists submitted values. Confirmation fields (those validated by
// equality with another field) are not stored, and a blank create-only field
// leaves the stored value untouched when editing.
func (p *FormProvider) saver(def model.FormDefinition, initial model.Record, sess *FormSession) form.SaveFunc {
	skip := map[string]bool{}
	keepWhenBlank := map[string]bool{}
	walkLeaves(def.Fields, func(fd model.FieldDefinition) {
		if fd.Validation == nil {
			return
		}
		if fd.Validation.Equals != "" {
			skip[fd.Name] = true
		}
		if fd.Validation.RequiredOnCreate {
			keepWhenBlank[fd.Name] = true
		}
	})
	editing := model.IdentifierOf(initial[store.IDField]) != ""

	return func(ctx context.Context, values map[string]any) (err error) {
		ctx, span := observability.StartSpan(ctx, "form.save",
			observability.AttrFormID.String(def.ID),
			observability.AttrCollection.String(def.Collection),
		)
		defer func() { observability.EndSpanWithError(span, err) }()

		record := model.CloneRecord(initial)
		if record == nil {
			record = model.Record{}
		}
		for name, v := range values {
			if skip[name] {
				continue
			}
			if editing && keepWhenBlank[name] && validation.IsEmpty(v) {
				continue
			}
			accessor.Set(record, name, storable(v))
		}

		saved, created, err := p.deps.Store.Put(ctx, def.Collection, record)
		if err != nil {
			return fmt.Errorf("saving %s record: %w", def.Collection, err)
		}
		id := model.IdentifierOf(saved[store.IDField])
		span.SetAttributes(observability.AttrRecordID.String(string(id)))
		sess.setSaved(saved)

		if p.deps.Lookups != nil {
			p.deps.Lookups.InvalidateCollection(def.Collection)
		}

		evt := events.NewRecordEvent(def.Collection, id, saved, created)
		if rctx := model.RequestContextFrom(ctx); rctx != nil {
			evt.CorrelationID = rctx.CorrelationID
		}
		if perr := p.deps.Publisher.Publish(ctx, evt); perr != nil {
			p.logger.Warn("record saved but change event not published",
				zap.String("collection", def.Collection),
				zap.String("record_id", string(id)),
				zap.Error(perr),
			)
		}
		return nil
	}
}

// storable converts form state values into record values. Files are stored
// as data URLs so a reopened form can preview them.
func storable(v any) any {
	switch t := v.(type) {
	case *form.FileValue:
		if t == nil {
			return ""
		}
		return t.DataURL()
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	default:
		return v
	}
}

func walkLeaves(defs []model.FieldDefinition, fn func(model.FieldDefinition)) {
	for _, fd := range defs {
		if len(fd.Fields) > 0 {
			walkLeaves(fd.Fields, fn)
			continue
		}
		if fd.Name != "" {
			fn(fd)
		}
	}
}
