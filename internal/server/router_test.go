package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/Skufu/bpstage/internal/model"
	"github.com/Skufu/bpstage/internal/vitals"
)

type fakeDB struct {
	err error
}

func (f fakeDB) Ping(ctx context.Context) error {
	return f.err
}

type fixedClassifier struct {
	code int
	err  error
	got  []float64
}

func (f *fixedClassifier) Predict(_ context.Context, features []float64) (int, error) {
	f.got = features
	return f.code, f.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRouter(t *testing.T, clf model.Classifier, db HealthChecker) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router, err := NewRouter(Deps{
		Predictor: model.NewPredictor(clf, quietLogger()),
		DB:        db,
		Logger:    quietLogger(),
	})
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	return router
}

func sampleForm() url.Values {
	return url.Values{
		"gender":        {"Male"},
		"age":           {"45"},
		"history":       {"Yes"},
		"patient":       {"Outpatient"},
		"take_med":      {"No"},
		"severity":      {"Moderate"},
		"breath_short":  {"No"},
		"visual_change": {"No"},
		"nose_bleed":    {"No"},
		"diet":          {"Yes"},
		"systolic":      {"130"},
		"diastolic":     {"85"},
	}
}

func postForm(router http.Handler, form url.Values) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/predict", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	router.ServeHTTP(w, req)
	return w
}

func TestPagesNeedNoInput(t *testing.T) {
	router := newTestRouter(t, &fixedClassifier{}, nil)

	for path, marker := range map[string]string{
		"/":        `name="systolic"`,
		"/details": "HYPERTENSIVE CRISIS",
	} {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", path, nil)
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("%s: expected status 200, got %d", path, w.Code)
		}
		if !strings.Contains(w.Body.String(), marker) {
			t.Fatalf("%s: expected %q in body", path, marker)
		}
	}
}

func TestIndexRendersEveryField(t *testing.T) {
	router := newTestRouter(t, &fixedClassifier{}, nil)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/", nil)
	router.ServeHTTP(w, req)

	body := w.Body.String()
	for _, field := range vitals.FieldOrder {
		if !strings.Contains(body, `name="`+field+`"`) {
			t.Fatalf("form is missing field %s", field)
		}
	}
	if !strings.Contains(body, `<option value="Outpatient">`) {
		t.Fatal("expected patient type options")
	}
}

func TestPredictForm(t *testing.T) {
	clf := &fixedClassifier{code: 1}
	router := newTestRouter(t, clf, nil)

	w := postForm(router, sampleForm())
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "Estimated Blood Pressure Stage: HYPERTENSION (Stage-1)") {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}

	want := []float64{1, 45, 1, 1, 0, 1, 0, 0, 0, 1, 130, 85}
	if len(clf.got) != len(want) {
		t.Fatalf("expected %d features, got %v", len(want), clf.got)
	}
	for i := range want {
		if clf.got[i] != want[i] {
			t.Fatalf("feature %d: expected %v, got %v", i, want[i], clf.got[i])
		}
	}
}

func TestPredictFormUnknownCode(t *testing.T) {
	router := newTestRouter(t, &fixedClassifier{code: 9}, nil)
	w := postForm(router, sampleForm())
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Estimated Blood Pressure Stage: Unknown") {
		t.Fatalf("expected Unknown fallback, got %d: %s", w.Code, w.Body.String())
	}
}

func TestPredictFormRejectsBadInput(t *testing.T) {
	tests := []struct {
		name  string
		field string
		value string
	}{
		{"unknown gender", "gender", "Other"},
		{"non numeric age", "age", "forty"},
		{"missing field", "diet", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clf := &fixedClassifier{code: 0}
			router := newTestRouter(t, clf, nil)

			form := sampleForm()
			if tt.value == "" {
				form.Del(tt.field)
			} else {
				form.Set(tt.field, tt.value)
			}
			w := postForm(router, form)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", w.Code)
			}
			if !strings.Contains(w.Body.String(), tt.field) {
				t.Fatalf("expected error naming %s, got %s", tt.field, w.Body.String())
			}
			if clf.got != nil {
				t.Fatal("classifier must not run on invalid input")
			}
		})
	}
}

func TestPredictFormClassifierFailure(t *testing.T) {
	router := newTestRouter(t, &fixedClassifier{err: errors.New("model exploded")}, nil)
	w := postForm(router, sampleForm())
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "exploded") {
		t.Fatal("internal error leaked to the page")
	}
}

func TestPredictJSON(t *testing.T) {
	router := newTestRouter(t, &fixedClassifier{code: 3}, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/predict", strings.NewReader(`{
		"gender": "Female", "age": "70", "history": "Yes", "patient": "Inpatient",
		"take_med": "Yes", "severity": "Severe", "breath_short": "Yes", "visual_change": "Yes",
		"nose_bleed": "Yes", "diet": "No", "systolic": "190", "diastolic": "125"
	}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := w.Body.String()
	if !strings.Contains(body, `"code":3`) || !strings.Contains(body, `"stage":"HYPERTENSIVE CRISIS"`) {
		t.Fatalf("unexpected body: %s", body)
	}
}

func TestPredictJSONNumbers(t *testing.T) {
	clf := &fixedClassifier{code: 1}
	router := newTestRouter(t, clf, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/predict", strings.NewReader(`{
		"gender": "Male", "age": 45, "history": "Yes", "patient": "Outpatient",
		"take_med": "No", "severity": "Moderate", "breath_short": "No", "visual_change": "No",
		"nose_bleed": "No", "diet": "Yes", "systolic": 130, "diastolic": 85.5
	}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	want := []float64{1, 45, 1, 1, 0, 1, 0, 0, 0, 1, 130, 85.5}
	for i := range want {
		if clf.got[i] != want[i] {
			t.Fatalf("feature %d: expected %v, got %v", i, want[i], clf.got[i])
		}
	}
}

func TestPredictJSONFieldErrors(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"boolean gender", `{"gender": true}`, "gender"},
		{"null gender", `{"gender": null}`, "gender"},
		{"boolean age", `{"gender": "Male", "age": false}`, "age"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(t, &fixedClassifier{}, nil)
			w := httptest.NewRecorder()
			req, _ := http.NewRequest("POST", "/api/predict", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			router.ServeHTTP(w, req)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", w.Code)
			}
			if !strings.Contains(w.Body.String(), `"field":"`+tt.field+`"`) {
				t.Fatalf("expected field %s in %s", tt.field, w.Body.String())
			}
		})
	}
}

func TestPredictJSONValidation(t *testing.T) {
	router := newTestRouter(t, &fixedClassifier{}, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/predict", strings.NewReader(`{"gender":"Other"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "validation_failed") || !strings.Contains(w.Body.String(), `"field":"gender"`) {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestRouterHealthz(t *testing.T) {
	router := newTestRouter(t, &fixedClassifier{}, fakeDB{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/healthz", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestRouterReadyz(t *testing.T) {
	tests := []struct {
		name string
		db   HealthChecker
		code int
		want string
	}{
		{"db disabled", nil, http.StatusOK, `"db":"disabled"`},
		{"db ok", fakeDB{}, http.StatusOK, `"db":"ok"`},
		{"db down", fakeDB{err: errors.New("refused")}, http.StatusServiceUnavailable, `"status":"degraded"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(t, &fixedClassifier{}, tt.db)
			w := httptest.NewRecorder()
			req, _ := http.NewRequest("GET", "/readyz", nil)
			router.ServeHTTP(w, req)

			if w.Code != tt.code {
				t.Fatalf("expected %d, got %d", tt.code, w.Code)
			}
			if !strings.Contains(w.Body.String(), tt.want) {
				t.Fatalf("expected %s in %s", tt.want, w.Body.String())
			}
		})
	}
}

func TestRequestIDHeader(t *testing.T) {
	router := newTestRouter(t, &fixedClassifier{}, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/healthz", nil)
	router.ServeHTTP(w, req)
	if w.Header().Get(requestIDHeader) == "" {
		t.Fatal("expected a generated request id")
	}

	const id = "5f0c6f7e-2b7a-4d36-9a3e-0d1b6f1c9a11"
	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/healthz", nil)
	req.Header.Set(requestIDHeader, id)
	router.ServeHTTP(w, req)
	if got := w.Header().Get(requestIDHeader); got != id {
		t.Fatalf("expected request id to be echoed, got %q", got)
	}
}

func TestRouterReadyzWithoutModel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router, err := NewRouter(Deps{DB: fakeDB{}, Logger: quietLogger()})
	if err != nil {
		t.Fatalf("new router: %v", err)
	}

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/readyz", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, `"model":"missing"`) || !strings.Contains(body, `"db":"ok"`) {
		t.Fatalf("unexpected body: %s", body)
	}
}

// Ensure limitBodySize middleware allows small payloads and blocks large ones.
func TestLimitBodySize(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(limitBodySize(10))
	router.POST("/echo", func(c *gin.Context) {
		_, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "too large"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	t.Run("within limit", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/echo", strings.NewReader("12345"))
		router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
	})

	t.Run("over limit", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/echo", strings.NewReader("01234567890"))
		router.ServeHTTP(w, req)
		if w.Code != http.StatusRequestEntityTooLarge {
			t.Fatalf("expected 413, got %d", w.Code)
		}
	})
}
