package report

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/oncocare/oncocare/internal/domain/treatment"
)

func newTestHandler(r *mockReader) (*Handler, *echo.Echo) {
	return NewHandler(NewService(r)), echo.New()
}

func post(e *echo.Echo, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestHandler_GenerateReport(t *testing.T) {
	r := newMockReader()
	p := seedPlan(r)
	h, e := newTestHandler(r)

	c, rec := post(e, `{"type":"treatment_summary","plan_ids":["`+p.ID.String()+`"]}`)
	if err := h.GenerateReport(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	var rep Report
	if err := json.Unmarshal(rec.Body.Bytes(), &rep); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if len(rep.Sections) != 1 || rep.Sections[0].PlanID != p.ID {
		t.Errorf("expected one section for the requested plan, got %+v", rep.Sections)
	}
}

func TestHandler_GenerateReport_MultiplePlans(t *testing.T) {
	r := newMockReader()
	p1 := seedPlan(r)
	p2 := seedPlan(r)
	h, e := newTestHandler(r)

	body := `{"type":"progress_report","plan_ids":["` + p1.ID.String() + `","` + p2.ID.String() + `"]}`
	c, rec := post(e, body)
	if err := h.GenerateReport(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var rep Report
	if err := json.Unmarshal(rec.Body.Bytes(), &rep); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if len(rep.Sections) != 2 {
		t.Errorf("expected 2 sections, got %d", len(rep.Sections))
	}
}

func TestHandler_GenerateReport_ByPatient(t *testing.T) {
	r := newMockReader()
	p := seedPlan(r)
	h, e := newTestHandler(r)

	c, rec := post(e, `{"type":"treatment_summary","patient_id":"`+p.PatientID.String()+`"}`)
	if err := h.GenerateReport(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var rep Report
	if err := json.Unmarshal(rec.Body.Bytes(), &rep); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if len(rep.PlanIDs) != 1 || rep.PlanIDs[0] != p.ID {
		t.Errorf("expected the patient's plan resolved, got %v", rep.PlanIDs)
	}
}

func TestHandler_GenerateReport_WithDateRange(t *testing.T) {
	r := newMockReader()
	p := seedPlan(r)
	seedSessions(r, p.ID, treatment.SessionCompleted, treatment.SessionCompleted)
	h, e := newTestHandler(r)

	body := `{"type":"treatment_summary","plan_ids":["` + p.ID.String() + `"],` +
		`"date_range":{"from":"2026-03-02T00:00:00Z"}}`
	c, rec := post(e, body)
	if err := h.GenerateReport(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var rep Report
	if err := json.Unmarshal(rec.Body.Bytes(), &rep); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if rep.DateRange == nil || rep.DateRange.From == nil {
		t.Fatal("expected the date range echoed back")
	}
	var data treatmentSummaryData
	raw, _ := json.Marshal(rep.Sections[0].Data)
	if err := json.Unmarshal(raw, &data); err != nil {
		t.Fatalf("bad section data: %v", err)
	}
	if data.Sessions.Total != 1 {
		t.Errorf("expected the range to exclude the first session, got %d", data.Sessions.Total)
	}
}

func TestHandler_GenerateReport_UnsupportedType(t *testing.T) {
	r := newMockReader()
	p := seedPlan(r)
	h, e := newTestHandler(r)

	c, _ := post(e, `{"type":"billing","plan_ids":["`+p.ID.String()+`"]}`)
	err := h.GenerateReport(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestHandler_GenerateReport_PlanNotFound(t *testing.T) {
	h, e := newTestHandler(newMockReader())
	c, _ := post(e, `{"type":"treatment_summary","plan_ids":["`+uuid.New().String()+`"]}`)
	err := h.GenerateReport(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestHandler_GenerateReport_MissingSelection(t *testing.T) {
	h, e := newTestHandler(newMockReader())
	c, _ := post(e, `{"type":"treatment_summary"}`)
	err := h.GenerateReport(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestHandler_GenerateReport_InvertedRange(t *testing.T) {
	r := newMockReader()
	p := seedPlan(r)
	h, e := newTestHandler(r)

	body := `{"type":"treatment_summary","plan_ids":["` + p.ID.String() + `"],` +
		`"date_range":{"from":"2026-03-10T00:00:00Z","to":"2026-03-01T00:00:00Z"}}`
	c, _ := post(e, body)
	err := h.GenerateReport(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}
