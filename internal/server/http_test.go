package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alfredjeanlab/kodblock/internal/events"
	"github.com/alfredjeanlab/kodblock/internal/model"
	"github.com/alfredjeanlab/kodblock/internal/store/memory"
)

// newTestServer returns a fresh server, its in-memory store, and an HTTP handler.
func newTestServer() (*KodblockServer, *memory.Store, http.Handler) {
	ms := memory.New()
	s := NewKodblockServer(ms, &events.NoopPublisher{}, nil)
	return s, ms, s.NewHTTPHandler("")
}

// doJSON performs an HTTP request with an optional JSON body and returns the recorder.
func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		b, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

// requireStatus asserts the recorder has the expected HTTP status code.
func requireStatus(t *testing.T, rec *httptest.ResponseRecorder, code int) {
	t.Helper()
	if rec.Code != code {
		t.Fatalf("expected status %d, got %d; body: %s", code, rec.Code, rec.Body.String())
	}
}

// decodeJSON decodes the recorder's response body into v.
func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

// createTestDraft creates a draft through the API and returns it.
func createTestDraft(t *testing.T, h http.Handler, body map[string]any) model.Draft {
	t.Helper()
	rec := doJSON(t, h, "POST", "/v1/drafts", body)
	requireStatus(t, rec, http.StatusCreated)
	var d model.Draft
	decodeJSON(t, rec, &d)
	return d
}

// expressionOf fetches the rendered expression of a draft.
func expressionOf(t *testing.T, h http.Handler, id string) string {
	t.Helper()
	rec := doJSON(t, h, "GET", "/v1/drafts/"+id+"/expression", nil)
	requireStatus(t, rec, http.StatusOK)
	var out renderResult
	decodeJSON(t, rec, &out)
	return out.Expression
}

func TestHandleHTTPErrors(t *testing.T) {
	for _, tc := range []struct {
		name      string
		method    string
		path      string
		body      any
		code      int
		wantError string
	}{
		{"CreateDraft/MissingName", "POST", "/v1/drafts", map[string]any{"mode": "joined"}, 400, "name is required"},
		{"CreateDraft/BadMode", "POST", "/v1/drafts", map[string]any{"name": "x", "mode": "loose"}, 400, ""},
		{"GetDraft/NotFound", "GET", "/v1/drafts/kb-missing", nil, 404, "draft not found"},
		{"DeleteDraft/NotFound", "DELETE", "/v1/drafts/kb-missing", nil, 404, "draft not found"},
		{"UpdateDraft/Empty", "PATCH", "/v1/drafts/kb-missing", map[string]any{}, 400, "nothing to update"},
		{"Expression/NotFound", "GET", "/v1/drafts/kb-missing/expression", nil, 404, ""},
		{"AddBlock/NotFound", "POST", "/v1/drafts/kb-missing/blocks", map[string]any{"type": "farg"}, 404, ""},
		{"UpdateBlock/BadIndex", "PATCH", "/v1/drafts/kb-x/blocks/one", map[string]any{"value": "x"}, 400, "index must be an integer"},
		{"Move/MissingTo", "POST", "/v1/drafts/kb-x/move", map[string]any{"from": 0}, 400, "from and to are required"},
		{"Render/BadMode", "POST", "/v1/render", map[string]any{"blocks": []any{}, "mode": "loose"}, 400, `invalid mode "loose"`},
		{"Render/BadJoiner", "POST", "/v1/render", map[string]any{"blocks": []any{}, "joiner": "xor"}, 400, `invalid joiner "xor"`},
		{"Wizard/MissingRequired", "POST", "/v1/wizard/render", map[string]any{"answers": map[string]string{"vehicle": "Personbil"}}, 400, ""},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, _, h := newTestServer()
			rec := doJSON(t, h, tc.method, tc.path, tc.body)
			requireStatus(t, rec, tc.code)
			if tc.wantError != "" {
				var body map[string]any
				decodeJSON(t, rec, &body)
				if body["error"] != tc.wantError {
					t.Fatalf("expected error=%q, got %q", tc.wantError, body["error"])
				}
			}
		})
	}
}

func TestHandleInvalidJSON(t *testing.T) {
	_, _, h := newTestServer()
	req := httptest.NewRequest("POST", "/v1/render", bytes.NewReader([]byte("{")))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	requireStatus(t, rec, 400)
}

func TestHandleHealth(t *testing.T) {
	_, _, h := newTestServer()
	rec := doJSON(t, h, "GET", "/v1/health", nil)
	requireStatus(t, rec, 200)
	var body map[string]string
	decodeJSON(t, rec, &body)
	if body["status"] != "ok" {
		t.Fatalf("expected status=ok, got %q", body["status"])
	}
}

func TestHandleListBlockTypes(t *testing.T) {
	_, _, h := newTestServer()
	rec := doJSON(t, h, "GET", "/v1/block-types", nil)
	requireStatus(t, rec, 200)
	var body struct {
		BlockTypes []model.BlockType `json:"block_types"`
	}
	decodeJSON(t, rec, &body)
	if len(body.BlockTypes) != len(model.DefaultTypes()) {
		t.Fatalf("expected %d block types, got %d", len(model.DefaultTypes()), len(body.BlockTypes))
	}
	if body.BlockTypes[0].Name != "tag:"+model.VehiclePersonbil {
		t.Fatalf("expected registry order, first=%q", body.BlockTypes[0].Name)
	}
}

func TestHandleRender(t *testing.T) {
	blocks := []map[string]any{
		{"kind": "tag", "value": "Personbil"},
		{"kind": "logic", "value": "or"},
		{"kind": "field", "field": "DRIVMEDEL", "value": "EL", "negate": true},
		{"kind": "numeric", "field": "MODELLAR", "operator": ">=", "value": "2020"},
		{"kind": "field", "field": "FARG", "value": ""},
	}
	for _, tc := range []struct {
		name string
		body map[string]any
		want string
	}{
		{"DefaultJoined", map[string]any{"blocks": blocks},
			"#Personbil# and DRIVMEDEL !in('EL') and MODELLAR >= 2020"},
		{"JoinedWithOr", map[string]any{"blocks": blocks, "joiner": "or"},
			"#Personbil# or DRIVMEDEL !in('EL') or MODELLAR >= 2020"},
		{"Literal", map[string]any{"blocks": blocks, "mode": "literal"},
			"#Personbil# or DRIVMEDEL !in('EL') MODELLAR >= 2020"},
		{"Empty", map[string]any{"blocks": []any{}}, ""},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, _, h := newTestServer()
			rec := doJSON(t, h, "POST", "/v1/render", tc.body)
			requireStatus(t, rec, 200)
			var out renderResult
			decodeJSON(t, rec, &out)
			if out.Expression != tc.want {
				t.Fatalf("expression = %q, want %q", out.Expression, tc.want)
			}
		})
	}
}

func TestHandleRender_ValidationFields(t *testing.T) {
	_, _, h := newTestServer()
	rec := doJSON(t, h, "POST", "/v1/render", map[string]any{
		"blocks": []map[string]any{{"kind": "regnr", "values": []string{"NOPE"}}},
	})
	requireStatus(t, rec, 400)
	var body struct {
		Error  string             `json:"error"`
		Fields []model.FieldError `json:"fields"`
	}
	decodeJSON(t, rec, &body)
	if len(body.Fields) == 0 {
		t.Fatalf("expected field errors, got %+v", body)
	}
}

func TestHandleValidatePlates(t *testing.T) {
	_, _, h := newTestServer()
	rec := doJSON(t, h, "POST", "/v1/plates/validate", map[string]string{"input": "abc123 XYZ12A nope"})
	requireStatus(t, rec, 200)
	var out platesResult
	decodeJSON(t, rec, &out)
	if len(out.Valid) != 2 || out.Valid[0] != "ABC123" || out.Valid[1] != "XYZ12A" {
		t.Fatalf("valid = %q", out.Valid)
	}
	if len(out.Invalid) != 1 || out.Invalid[0] != "NOPE" {
		t.Fatalf("invalid = %q", out.Invalid)
	}
	if out.Message != model.InvalidPlatesMessage([]string{"NOPE"}) {
		t.Fatalf("message = %q", out.Message)
	}
}

func TestHandleValidatePlates_Empty(t *testing.T) {
	_, _, h := newTestServer()
	rec := doJSON(t, h, "POST", "/v1/plates/validate", map[string]string{"input": "  "})
	requireStatus(t, rec, 200)
	var out platesResult
	decodeJSON(t, rec, &out)
	if out.Valid == nil || out.Invalid == nil || out.Message != "" {
		t.Fatalf("expected empty non-nil lists and no message, got %+v", out)
	}
}

func TestHandleWizardRender(t *testing.T) {
	_, _, h := newTestServer()
	rec := doJSON(t, h, "POST", "/v1/wizard/render", map[string]any{
		"answers": map[string]string{"vehicle": "Personbil", "in_traffic": "JA", "fuel": "EL"},
	})
	requireStatus(t, rec, 200)
	var out wizardResult
	decodeJSON(t, rec, &out)
	if want := "#Personbil# and ITRAFIK in('JA') and DRIVMEDEL in('EL')"; out.Expression != want {
		t.Fatalf("expression = %q, want %q", out.Expression, want)
	}
	if out.Blocks.Len() != 3 {
		t.Fatalf("expected 3 blocks, got %d", out.Blocks.Len())
	}
}

func TestHandleCreateDraft(t *testing.T) {
	_, ms, h := newTestServer()
	d := createTestDraft(t, h, map[string]any{
		"name":       "  Elbilar  ",
		"created_by": "alice",
		"blocks":     []map[string]any{{"kind": "tag", "value": "Personbil"}},
	})
	if d.ID == "" || d.Name != "Elbilar" || d.Mode != model.ModeJoined {
		t.Fatalf("got id=%q name=%q mode=%q", d.ID, d.Name, d.Mode)
	}
	b, _ := d.Blocks.At(0)
	if b.ID == "" {
		t.Fatal("expected block to be assigned an ID")
	}

	evts, _ := ms.GetEvents(context.Background(), d.ID)
	if len(evts) != 1 || evts[0].Topic != events.TopicDraftCreated || evts[0].Actor != "alice" {
		t.Fatalf("unexpected events %+v", evts)
	}
}

func TestHandleListDrafts(t *testing.T) {
	_, _, h := newTestServer()
	createTestDraft(t, h, map[string]any{"name": "Bussar", "created_by": "alice"})
	createTestDraft(t, h, map[string]any{"name": "Elbilar", "created_by": "bob"})
	createTestDraft(t, h, map[string]any{"name": "Elsläp", "created_by": "alice"})

	for _, tc := range []struct {
		query     string
		wantNames []string
		wantTotal int
	}{
		{"?sort=name", []string{"Bussar", "Elbilar", "Elsläp"}, 3},
		{"?search=el&sort=name", []string{"Elbilar", "Elsläp"}, 2},
		{"?created_by=alice&sort=-name", []string{"Elsläp", "Bussar"}, 2},
		{"?sort=name&limit=1&offset=1", []string{"Elbilar"}, 3},
		{"?search=nothing", []string{}, 0},
	} {
		t.Run(tc.query, func(t *testing.T) {
			rec := doJSON(t, h, "GET", "/v1/drafts"+tc.query, nil)
			requireStatus(t, rec, 200)
			var result struct {
				Drafts []model.Draft `json:"drafts"`
				Total  int           `json:"total"`
			}
			decodeJSON(t, rec, &result)
			if result.Drafts == nil {
				t.Fatal("expected drafts to be a non-null array")
			}
			if result.Total != tc.wantTotal {
				t.Fatalf("total = %d, want %d", result.Total, tc.wantTotal)
			}
			var names []string
			for _, d := range result.Drafts {
				names = append(names, d.Name)
			}
			if fmt.Sprint(names) != fmt.Sprint(tc.wantNames) {
				t.Fatalf("names = %v, want %v", names, tc.wantNames)
			}
		})
	}
}

func TestHandleGetDraft(t *testing.T) {
	_, _, h := newTestServer()
	d := createTestDraft(t, h, map[string]any{"name": "Lastbilar"})
	rec := doJSON(t, h, "GET", "/v1/drafts/"+d.ID, nil)
	requireStatus(t, rec, 200)
	var got model.Draft
	decodeJSON(t, rec, &got)
	if got.ID != d.ID || got.Name != "Lastbilar" {
		t.Fatalf("got %+v", got)
	}
}

func TestHandleUpdateDraft(t *testing.T) {
	_, ms, h := newTestServer()
	d := createTestDraft(t, h, map[string]any{"name": "Old", "blocks": []map[string]any{
		{"kind": "tag", "value": "Buss"},
		{"kind": "logic", "value": "or"},
		{"kind": "tag", "value": "Lastbil"},
	}})

	rec := doJSON(t, h, "PATCH", "/v1/drafts/"+d.ID, map[string]any{"name": "New", "mode": "literal", "actor": "bob"})
	requireStatus(t, rec, 200)
	var got model.Draft
	decodeJSON(t, rec, &got)
	if got.Name != "New" || got.Mode != model.ModeLiteral {
		t.Fatalf("got name=%q mode=%q", got.Name, got.Mode)
	}
	if expr := expressionOf(t, h, d.ID); expr != "#Buss# or #Lastbil#" {
		t.Fatalf("expression = %q", expr)
	}

	rec = doJSON(t, h, "PATCH", "/v1/drafts/"+d.ID, map[string]any{"mode": "bogus"})
	requireStatus(t, rec, 400)

	evts, _ := ms.GetEvents(context.Background(), d.ID)
	if len(evts) != 2 {
		t.Fatalf("expected 2 events (failed update not recorded), got %d", len(evts))
	}
	var payload events.DraftUpdated
	if err := json.Unmarshal(evts[1].Payload, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Op != events.OpRename || payload.Expression != "#Buss# or #Lastbil#" || evts[1].Actor != "bob" {
		t.Fatalf("unexpected payload %+v actor=%q", payload, evts[1].Actor)
	}
}

func TestHandleDeleteDraft(t *testing.T) {
	_, ms, h := newTestServer()
	d := createTestDraft(t, h, map[string]any{"name": "Doomed"})
	rec := doJSON(t, h, "DELETE", "/v1/drafts/"+d.ID+"?actor=carol", nil)
	requireStatus(t, rec, http.StatusNoContent)

	requireStatus(t, doJSON(t, h, "GET", "/v1/drafts/"+d.ID, nil), 404)

	evts, _ := ms.GetEvents(context.Background(), d.ID)
	if last := evts[len(evts)-1]; last.Topic != events.TopicDraftDeleted || last.Actor != "carol" {
		t.Fatalf("unexpected last event %+v", last)
	}
}

func TestHandleGetExpression_ModeOverride(t *testing.T) {
	_, _, h := newTestServer()
	d := createTestDraft(t, h, map[string]any{"name": "x", "mode": "literal", "blocks": []map[string]any{
		{"kind": "tag", "value": "Buss"},
		{"kind": "logic", "value": "or"},
		{"kind": "tag", "value": "Lastbil"},
	}})
	rec := doJSON(t, h, "GET", "/v1/drafts/"+d.ID+"/expression?mode=joined", nil)
	requireStatus(t, rec, 200)
	var out renderResult
	decodeJSON(t, rec, &out)
	if out.Expression != "#Buss# and #Lastbil#" {
		t.Fatalf("expression = %q", out.Expression)
	}
}

func TestHandleBlockEditing(t *testing.T) {
	_, _, h := newTestServer()
	d := createTestDraft(t, h, map[string]any{"name": "Builder"})
	base := "/v1/drafts/" + d.ID

	for _, typ := range []string{"tag:Personbil", "drivmedel-multi", "totalvikt", "regnr"} {
		requireStatus(t, doJSON(t, h, "POST", base+"/blocks", map[string]string{"type": typ}), 201)
	}
	if expr := expressionOf(t, h, d.ID); expr != "#Personbil# and TOTALVIKTSANKT = 0" {
		t.Fatalf("after add: %q", expr)
	}

	requireStatus(t, doJSON(t, h, "POST", base+"/blocks/1/toggle", map[string]string{"option": "EL"}), 200)
	requireStatus(t, doJSON(t, h, "POST", base+"/blocks/1/toggle", map[string]string{"option": "DIESEL"}), 200)
	requireStatus(t, doJSON(t, h, "PATCH", base+"/blocks/1", map[string]any{"negate": true}), 200)
	requireStatus(t, doJSON(t, h, "PATCH", base+"/blocks/2", map[string]any{"value": "3500", "operator": ">"}), 200)

	rec := doJSON(t, h, "POST", base+"/blocks/3/plates", map[string]string{"input": "abc123 bad"})
	requireStatus(t, rec, 200)
	var pr platesResponse
	decodeJSON(t, rec, &pr)
	if len(pr.Invalid) != 1 || pr.Invalid[0] != "BAD" || pr.Message == "" {
		t.Fatalf("plates response %+v", pr)
	}

	want := "#Personbil# and DRIVMEDEL !in('EL','DIESEL') and TOTALVIKTSANKT > 3500 and REGNR in('ABC123')"
	if expr := expressionOf(t, h, d.ID); expr != want {
		t.Fatalf("after edits: %q, want %q", expr, want)
	}

	requireStatus(t, doJSON(t, h, "POST", base+"/move", map[string]int{"from": 3, "to": 0}), 200)
	requireStatus(t, doJSON(t, h, "DELETE", base+"/blocks/2", nil), 200)
	want = "REGNR in('ABC123') and #Personbil# and TOTALVIKTSANKT > 3500"
	if expr := expressionOf(t, h, d.ID); expr != want {
		t.Fatalf("after move/remove: %q, want %q", expr, want)
	}
}

func TestHandleBlockEditing_Errors(t *testing.T) {
	_, _, h := newTestServer()
	d := createTestDraft(t, h, map[string]any{"name": "Errors", "blocks": []map[string]any{
		{"kind": "tag", "value": "Buss"},
	}})
	base := "/v1/drafts/" + d.ID

	for _, tc := range []struct {
		name   string
		method string
		path   string
		body   any
		code   int
	}{
		{"UnknownType", "POST", base + "/blocks", map[string]string{"type": "nope"}, 400},
		{"IndexOutOfRange", "PATCH", base + "/blocks/5", map[string]any{"value": "x"}, 400},
		{"NegateTag", "PATCH", base + "/blocks/0", map[string]any{"negate": true}, 400},
		{"ToggleOnTag", "POST", base + "/blocks/0/toggle", map[string]string{"option": "EL"}, 400},
		{"PlatesOnTag", "POST", base + "/blocks/0/plates", map[string]string{"input": "ABC123"}, 400},
		{"RemoveOutOfRange", "DELETE", base + "/blocks/1", nil, 400},
		{"MoveOutOfRange", "POST", base + "/move", map[string]int{"from": 0, "to": 3}, 400},
		{"EmptyBlockUpdate", "PATCH", base + "/blocks/0", map[string]any{}, 400},
	} {
		t.Run(tc.name, func(t *testing.T) {
			requireStatus(t, doJSON(t, h, tc.method, tc.path, tc.body), tc.code)
		})
	}

	if expr := expressionOf(t, h, d.ID); expr != "#Buss#" {
		t.Fatalf("failed edits changed the draft: %q", expr)
	}
}

func TestHandleGetEvents(t *testing.T) {
	_, _, h := newTestServer()
	d := createTestDraft(t, h, map[string]any{"name": "Audit"})
	requireStatus(t, doJSON(t, h, "POST", "/v1/drafts/"+d.ID+"/blocks", map[string]string{"type": "farg", "actor": "dave"}), 201)

	rec := doJSON(t, h, "GET", "/v1/drafts/"+d.ID+"/events", nil)
	requireStatus(t, rec, 200)
	var body struct {
		Events []model.Event `json:"events"`
	}
	decodeJSON(t, rec, &body)
	if len(body.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(body.Events))
	}
	if body.Events[0].Topic != events.TopicDraftCreated || body.Events[1].Topic != events.TopicDraftUpdated {
		t.Fatalf("unexpected topics %q, %q", body.Events[0].Topic, body.Events[1].Topic)
	}

	rec = doJSON(t, h, "GET", "/v1/drafts/kb-none/events", nil)
	requireStatus(t, rec, 200)
	var empty map[string][]any
	decodeJSON(t, rec, &empty)
	if empty["events"] == nil {
		t.Fatal("expected events to be a non-null array")
	}
}

func TestNewHTTPHandler_Auth(t *testing.T) {
	s := NewKodblockServer(memory.New(), nil, nil)
	h := s.NewHTTPHandler("secret")
	requireStatus(t, doJSON(t, h, "GET", "/v1/health", nil), 200)
	requireStatus(t, doJSON(t, h, "GET", "/v1/drafts", nil), 401)
}

func TestHandleBlockEditing_RegistryOptions(t *testing.T) {
	_, _, h := newTestServer()
	d := createTestDraft(t, h, map[string]any{"name": "Tillåtna värden"})
	base := "/v1/drafts/" + d.ID

	for _, typ := range []string{"drivmedel", "drivmedel-multi", "farg"} {
		requireStatus(t, doJSON(t, h, "POST", base+"/blocks", map[string]string{"type": typ}), 201)
	}

	for _, tc := range []struct {
		name   string
		method string
		path   string
		body   any
		code   int
	}{
		{"FieldNotAnOption", "PATCH", base + "/blocks/0", map[string]any{"value": "NOTAFUEL"}, 400},
		{"FieldOption", "PATCH", base + "/blocks/0", map[string]any{"value": "EL"}, 200},
		{"ToggleNotAnOption", "POST", base + "/blocks/1/toggle", map[string]string{"option": "KOL"}, 400},
		{"ToggleOption", "POST", base + "/blocks/1/toggle", map[string]string{"option": "GAS"}, 200},
		{"FreeText", "PATCH", base + "/blocks/2", map[string]any{"value": "RÖD"}, 200},
	} {
		t.Run(tc.name, func(t *testing.T) {
			requireStatus(t, doJSON(t, h, tc.method, tc.path, tc.body), tc.code)
		})
	}

	rec := doJSON(t, h, "PATCH", base+"/blocks/0", map[string]any{"value": "NOTAFUEL"})
	var body map[string]any
	decodeJSON(t, rec, &body)
	if _, ok := body["fields"]; !ok {
		t.Errorf("expected field errors in %v", body)
	}

	want := "DRIVMEDEL in('EL') and DRIVMEDEL in('GAS') and FARG in('RÖD')"
	if expr := expressionOf(t, h, d.ID); expr != want {
		t.Fatalf("expression = %q, want %q", expr, want)
	}
}
