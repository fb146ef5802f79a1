package contracts

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"contractbuilder/internal/compiler"
	"contractbuilder/internal/models"
	"contractbuilder/internal/store"
	"contractbuilder/internal/variables"
)

// memRepo is an in-memory TemplateRepository.
type memRepo struct {
	mu        sync.Mutex
	templates map[string]*models.Template
	versions  map[string][]models.TemplateVersion
	err       error
}

func newMemRepo(ts ...*models.Template) *memRepo {
	r := &memRepo{
		templates: make(map[string]*models.Template),
		versions:  make(map[string][]models.TemplateVersion),
	}
	for _, t := range ts {
		r.templates[t.ID] = t
	}
	return r
}

func (r *memRepo) ListPublished(context.Context) ([]models.TemplateSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.TemplateSummary{}
	for _, t := range r.templates {
		if t.IsPublished {
			out = append(out, models.TemplateSummary{ID: t.ID, Title: t.Title, IsPublished: true})
		}
	}
	return out, r.err
}

func (r *memRepo) FindByID(_ context.Context, id string) (*models.Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	t, ok := r.templates[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (r *memRepo) Create(_ context.Context, t *models.Template, changelog, createdBy string) (*models.Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.templates[t.ID]; taken {
		return nil, store.ErrDuplicateID
	}
	cp := *t
	cp.CurrentVersion = 1
	cp.CreatedAt = time.Now()
	r.templates[cp.ID] = &cp
	r.addVersion(&cp, changelog, createdBy)
	out := cp
	return &out, nil
}

func (r *memRepo) Update(_ context.Context, t *models.Template, changelog, createdBy string) (*models.Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.templates[t.ID]
	if !ok {
		return nil, nil
	}
	cp := *t
	cp.CurrentVersion = old.CurrentVersion + 1
	r.templates[cp.ID] = &cp
	r.addVersion(&cp, changelog, createdBy)
	out := cp
	return &out, nil
}

func (r *memRepo) addVersion(t *models.Template, changelog, createdBy string) {
	r.versions[t.ID] = append([]models.TemplateVersion{{
		TemplateID: t.ID,
		Version:    t.CurrentVersion,
		Changelog:  &changelog,
		CreatedBy:  &createdBy,
	}}, r.versions[t.ID]...)
}

func (r *memRepo) SetPublished(_ context.Context, id string, published bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.templates[id]
	if ok {
		t.IsPublished = published
	}
	return ok, nil
}

func (r *memRepo) Delete(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.templates[id]
	delete(r.templates, id)
	delete(r.versions, id)
	return ok, nil
}

func (r *memRepo) Versions(_ context.Context, id string) ([]models.TemplateVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.versions[id], nil
}

// fakeCompiler records sources and returns a canned result.
type fakeCompiler struct {
	mu      sync.Mutex
	sources []string
	pdf     []byte
	err     error
}

func (f *fakeCompiler) Compile(_ context.Context, source string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sources = append(f.sources, source)
	if f.err != nil {
		return nil, f.err
	}
	return f.pdf, nil
}

func (f *fakeCompiler) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sources)
}

type mapCache map[string][]byte

func (m mapCache) Get(_ context.Context, key string) ([]byte, bool) {
	b, ok := m[key]
	return b, ok
}

func (m mapCache) Set(_ context.Context, key string, pdf []byte) { m[key] = pdf }

type fakeArchive struct {
	keys    []string
	err     error
	deleted []string
}

func (a *fakeArchive) Store(_ context.Context, key, _ string, _ []byte) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	a.keys = append(a.keys, key)
	return "https://s3.example.com/" + key + "?sig=1", nil
}

func (a *fakeArchive) Delete(_ context.Context, templateID string) error {
	a.deleted = append(a.deleted, templateID)
	return a.err
}

func paymentTemplate() *models.Template {
	return &models.Template{
		ID:           "tpl_payment",
		Title:        "Payment Terms",
		TypstContent: "Pay {{amount}} by {{due}}.",
		Variables: models.Variables{
			{Name: "amount", Type: models.VariableTypeNumber, Label: "Amount", Required: true},
			{Name: "due", Type: models.VariableTypeDate, Label: "Due date"},
		},
		CurrentVersion: 1,
		IsPublished:    true,
	}
}

func raw(pairs map[string]string) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(pairs))
	for k, v := range pairs {
		out[k] = json.RawMessage(v)
	}
	return out
}

var testPDF = []byte("%PDF-1.7 test")

func TestCompileEndToEnd(t *testing.T) {
	comp := &fakeCompiler{pdf: testPDF}
	svc := NewService(newMemRepo(paymentTemplate()), comp)

	doc, err := svc.Compile(context.Background(), CompileRequest{
		TemplateID: "tpl_payment",
		Values:     raw(map[string]string{"amount": "500", "due": `"2025-01-01"`}),
	})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	if diff := cmp.Diff([]string{"Pay 500 by 2025-01-01."}, comp.sources); diff != "" {
		t.Errorf("compiled source mismatch (-want +got):\n%s", diff)
	}
	if doc.FileName != "Payment Terms.pdf" {
		t.Errorf("FileName = %q", doc.FileName)
	}
	want := "data:application/pdf;base64," + base64.StdEncoding.EncodeToString(testPDF)
	if doc.DataURL() != want {
		t.Errorf("DataURL = %q, want %q", doc.DataURL(), want)
	}
	if doc.Cached || doc.DownloadURL != "" {
		t.Errorf("unexpected cache/archive state: %+v", doc)
	}
}

func TestCompileUnknownTemplate(t *testing.T) {
	comp := &fakeCompiler{pdf: testPDF}
	svc := NewService(newMemRepo(), comp)

	_, err := svc.Compile(context.Background(), CompileRequest{TemplateID: "tpl_missing"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if comp.calls() != 0 {
		t.Error("compiler must not run for an unknown template")
	}
}

func TestCompileUnpublishedTemplate(t *testing.T) {
	tmpl := paymentTemplate()
	tmpl.IsPublished = false
	comp := &fakeCompiler{pdf: testPDF}
	svc := NewService(newMemRepo(tmpl), comp)
	values := raw(map[string]string{"amount": "1"})

	_, err := svc.Compile(context.Background(), CompileRequest{TemplateID: tmpl.ID, Values: values})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("anonymous compile of draft: expected ErrNotFound, got %v", err)
	}

	if _, err := svc.Compile(context.Background(), CompileRequest{TemplateID: tmpl.ID, Values: values, Author: true}); err != nil {
		t.Fatalf("author compile of draft: %v", err)
	}
	if comp.calls() != 1 {
		t.Errorf("expected exactly one compile, got %d", comp.calls())
	}
}

func TestCompileValidationFailure(t *testing.T) {
	comp := &fakeCompiler{pdf: testPDF}
	svc := NewService(newMemRepo(paymentTemplate()), comp)

	_, err := svc.Compile(context.Background(), CompileRequest{
		TemplateID: "tpl_payment",
		Values:     raw(map[string]string{"due": `"not a date"`}),
	})
	var verr *variables.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if _, ok := verr.Fields["amount"]; !ok {
		t.Errorf("expected amount to be reported, got %v", verr.Fields)
	}
	if _, ok := verr.Fields["due"]; !ok {
		t.Errorf("expected due to be reported, got %v", verr.Fields)
	}
	if comp.calls() != 0 {
		t.Error("compiler must not run when validation fails")
	}
}

func TestCompileOptionalValueStaysPlaceholder(t *testing.T) {
	comp := &fakeCompiler{pdf: testPDF}
	svc := NewService(newMemRepo(paymentTemplate()), comp)

	_, err := svc.Compile(context.Background(), CompileRequest{
		TemplateID: "tpl_payment",
		Values:     raw(map[string]string{"amount": "1.5"}),
	})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if comp.sources[0] != "Pay 1.5 by {{due}}." {
		t.Errorf("source = %q", comp.sources[0])
	}
}

func TestCompilePropagatesCompileError(t *testing.T) {
	cerr := &compiler.CompileError{JobID: "job", Message: "error: unknown variable"}
	svc := NewService(newMemRepo(paymentTemplate()), &fakeCompiler{err: cerr})

	_, err := svc.Compile(context.Background(), CompileRequest{
		TemplateID: "tpl_payment",
		Values:     raw(map[string]string{"amount": "1"}),
	})
	var got *compiler.CompileError
	if !errors.As(err, &got) {
		t.Fatalf("expected CompileError, got %v", err)
	}
	if got.Message != "error: unknown variable" {
		t.Errorf("Message = %q", got.Message)
	}
}

func TestCompileRepositoryError(t *testing.T) {
	repo := newMemRepo()
	repo.err = errors.New("connection refused")
	svc := NewService(repo, &fakeCompiler{pdf: testPDF})

	_, err := svc.Compile(context.Background(), CompileRequest{TemplateID: "tpl_payment"})
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected wrapped repository error, got %v", err)
	}
}

func TestCompileUsesCache(t *testing.T) {
	comp := &fakeCompiler{pdf: testPDF}
	c := mapCache{}
	svc := NewService(newMemRepo(paymentTemplate()), comp, WithCache(c))
	req := CompileRequest{TemplateID: "tpl_payment", Values: raw(map[string]string{"amount": "500"})}

	first, err := svc.Compile(context.Background(), req)
	if err != nil {
		t.Fatalf("first compile: %v", err)
	}
	second, err := svc.Compile(context.Background(), req)
	if err != nil {
		t.Fatalf("second compile: %v", err)
	}

	if comp.calls() != 1 {
		t.Errorf("expected one compiler call, got %d", comp.calls())
	}
	if first.Cached || !second.Cached {
		t.Errorf("cached flags: first=%v second=%v", first.Cached, second.Cached)
	}
	if string(second.PDF) != string(testPDF) {
		t.Errorf("cached PDF mismatch")
	}

	// Different values produce a different source and miss the cache.
	req.Values = raw(map[string]string{"amount": "501"})
	if _, err := svc.Compile(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	if comp.calls() != 2 {
		t.Errorf("expected a second compiler call, got %d", comp.calls())
	}
}

func TestCompileArchives(t *testing.T) {
	arch := &fakeArchive{}
	svc := NewService(newMemRepo(paymentTemplate()), &fakeCompiler{pdf: testPDF}, WithArchive(arch))

	doc, err := svc.Compile(context.Background(), CompileRequest{
		TemplateID: "tpl_payment",
		Values:     raw(map[string]string{"amount": "500"}),
	})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if len(arch.keys) != 1 || !strings.HasPrefix(arch.keys[0], "documents/tpl_payment/") {
		t.Fatalf("unexpected archive keys: %v", arch.keys)
	}
	if !strings.Contains(doc.DownloadURL, arch.keys[0]) {
		t.Errorf("DownloadURL = %q", doc.DownloadURL)
	}
}

func TestCompileArchiveFailureIsNotFatal(t *testing.T) {
	arch := &fakeArchive{err: errors.New("bucket missing")}
	svc := NewService(newMemRepo(paymentTemplate()), &fakeCompiler{pdf: testPDF}, WithArchive(arch))

	doc, err := svc.Compile(context.Background(), CompileRequest{
		TemplateID: "tpl_payment",
		Values:     raw(map[string]string{"amount": "500"}),
	})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if doc.DownloadURL != "" {
		t.Errorf("expected no download URL, got %q", doc.DownloadURL)
	}
}

func TestGetAndList(t *testing.T) {
	draft := paymentTemplate()
	draft.ID = "tpl_draft"
	draft.IsPublished = false
	svc := NewService(newMemRepo(paymentTemplate(), draft), &fakeCompiler{})

	list, err := svc.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].ID != "tpl_payment" {
		t.Errorf("List = %+v", list)
	}

	got, err := svc.Get(context.Background(), "tpl_draft")
	if err != nil {
		t.Fatalf("Get draft: %v", err)
	}
	if got.TypstContent == "" {
		t.Error("Get must return the full template")
	}

	if _, err := svc.Get(context.Background(), "tpl_nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
