package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"contractbuilder/internal/contracts"
	"contractbuilder/internal/models"
	"contractbuilder/internal/variables"
)

const createBody = `{
	"title": "Service Agreement",
	"price": 1500,
	"typstContent": "= {{client}}",
	"variables": [{"name": "client", "type": "text", "label": "Client", "required": true}],
	"isPublished": true
}`

func TestAuthoringRequiresAuth(t *testing.T) {
	svc := &stubService{}
	h := testRouter(svc)

	routes := []struct{ method, path, body string }{
		{http.MethodPost, "/api/templates", createBody},
		{http.MethodPut, "/api/templates/tpl_nda", createBody},
		{http.MethodPost, "/api/templates/tpl_nda/publish", ""},
		{http.MethodPost, "/api/templates/tpl_nda/unpublish", ""},
		{http.MethodDelete, "/api/templates/tpl_nda", ""},
		{http.MethodGet, "/api/templates/tpl_nda/versions", ""},
	}
	for _, rt := range routes {
		rr := do(t, h, rt.method, rt.path, rt.body, "")
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: got %d, want 401", rt.method, rt.path, rr.Code)
		}
	}
	if svc.lastAuthor != "" || svc.deleted != "" || svc.published != nil {
		t.Error("service must not be called without authentication")
	}
}

func TestCreateTemplate(t *testing.T) {
	svc := &stubService{template: &models.Template{ID: "tpl_service_agreement", Title: "Service Agreement", CurrentVersion: 1}}
	rr := do(t, testRouter(svc), http.MethodPost, "/api/templates", createBody, bearer(t))

	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want 201 (%s)", rr.Code, rr.Body.String())
	}
	if loc := rr.Header().Get("Location"); loc != "/api/templates/tpl_service_agreement" {
		t.Errorf("Location: got %q", loc)
	}
	if svc.lastAuthor != "author-1" {
		t.Errorf("author: got %q", svc.lastAuthor)
	}
	in := svc.lastCreate
	if in.Title != "Service Agreement" || in.Price != 1500 || !in.Published {
		t.Errorf("decoded input: %+v", in)
	}
	if len(in.Variables) != 1 || in.Variables[0].Type != models.VariableTypeText || !in.Variables[0].Required {
		t.Errorf("decoded variables: %+v", in.Variables)
	}
}

func TestCreateTemplateValidationError(t *testing.T) {
	verr := &variables.ValidationError{}
	verr.Add("title", "is required")
	svc := &stubService{err: verr}

	rr := do(t, testRouter(svc), http.MethodPost, "/api/templates", createBody, bearer(t))
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status: got %d, want 422", rr.Code)
	}
	if e := decodeError(t, rr); e.Fields["title"] != "is required" {
		t.Errorf("fields: %v", e.Fields)
	}
}

func TestUpdateTemplate(t *testing.T) {
	svc := &stubService{template: &models.Template{ID: "tpl_nda", CurrentVersion: 3}}
	body := `{"title":"NDA","typstContent":"= NDA","variables":[],"changelog":"Tightened terms"}`
	rr := do(t, testRouter(svc), http.MethodPut, "/api/templates/tpl_nda", body, bearer(t))

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (%s)", rr.Code, rr.Body.String())
	}
	if svc.lastUpdate.Changelog != "Tightened terms" {
		t.Errorf("changelog: got %q", svc.lastUpdate.Changelog)
	}
	var got models.Template
	json.Unmarshal(rr.Body.Bytes(), &got)
	if got.CurrentVersion != 3 {
		t.Errorf("currentVersion: got %d", got.CurrentVersion)
	}
}

func TestPublishToggle(t *testing.T) {
	svc := &stubService{}
	h := testRouter(svc)

	rr := do(t, h, http.MethodPost, "/api/templates/tpl_nda/publish", "", bearer(t))
	if rr.Code != http.StatusOK || svc.published == nil || !*svc.published {
		t.Fatalf("publish: status %d, published %v", rr.Code, svc.published)
	}

	rr = do(t, h, http.MethodPost, "/api/templates/tpl_nda/unpublish", "", bearer(t))
	if rr.Code != http.StatusOK || *svc.published {
		t.Fatalf("unpublish: status %d, published %v", rr.Code, *svc.published)
	}

	svc.err = contracts.ErrNotFound
	rr = do(t, h, http.MethodPost, "/api/templates/tpl_nope/publish", "", bearer(t))
	if rr.Code != http.StatusNotFound {
		t.Errorf("missing template: got %d, want 404", rr.Code)
	}
}

func TestDeleteTemplate(t *testing.T) {
	svc := &stubService{}
	rr := do(t, testRouter(svc), http.MethodDelete, "/api/templates/tpl_nda", "", bearer(t))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status: got %d, want 204", rr.Code)
	}
	if svc.deleted != "tpl_nda" {
		t.Errorf("deleted: got %q", svc.deleted)
	}
}

func TestListVersions(t *testing.T) {
	svc := &stubService{versions: []models.TemplateVersion{{TemplateID: "tpl_nda", Version: 2}, {TemplateID: "tpl_nda", Version: 1}}}
	rr := do(t, testRouter(svc), http.MethodGet, "/api/templates/tpl_nda/versions", "", bearer(t))
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d", rr.Code)
	}
	var got []models.TemplateVersion
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Version != 2 {
		t.Errorf("versions: %+v", got)
	}
}
