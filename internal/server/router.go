package server

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/Skufu/bpstage/internal/model"
	"github.com/Skufu/bpstage/internal/stage"
	"github.com/Skufu/bpstage/internal/vitals"
)

//go:embed templates/*.html
var templateFS embed.FS

// HealthChecker is satisfied by *pgxpool.Pool.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Predictor produces a stage result from an encoded reading.
type Predictor interface {
	Predict(ctx context.Context, vec vitals.FeatureVector) (model.Result, error)
}

// Deps are built once in main and shared read-only by every request.
type Deps struct {
	Predictor Predictor
	DB        HealthChecker
	Logger    *slog.Logger
}

type handler struct {
	predictor Predictor
	db        HealthChecker
	log       *slog.Logger
}

// NewRouter wires routes, middleware and templates.
func NewRouter(deps Deps) (*gin.Engine, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	router := gin.New()
	router.SetHTMLTemplate(tmpl)
	router.Use(
		requestLogger(logger),
		gin.Recovery(),
		limitBodySize(1<<20), // 1MB max body
		cors.New(cors.Config{
			AllowOrigins: []string{"*"},
			AllowMethods: []string{"GET", "POST", "OPTIONS"},
			AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
			MaxAge:       12 * time.Hour,
		}),
	)

	h := &handler{predictor: deps.Predictor, db: deps.DB, log: logger.With("component", "http")}

	router.GET("/", h.index)
	router.GET("/details", h.details)
	router.POST("/predict", h.predictForm)
	router.POST("/api/predict", h.predictJSON)
	router.GET("/healthz", h.healthz)
	router.GET("/readyz", h.readyz)

	return router, nil
}

type formField struct {
	Name    string
	Label   string
	Numeric bool
	Choices []vitals.Choice
}

var fieldLabels = map[string]string{
	vitals.FieldGender:       "Gender",
	vitals.FieldAge:          "Age",
	vitals.FieldHistory:      "Family history of hypertension",
	vitals.FieldPatient:      "Patient type",
	vitals.FieldTakeMed:      "Currently taking medication",
	vitals.FieldSeverity:     "Symptom severity",
	vitals.FieldBreathShort:  "Shortness of breath",
	vitals.FieldVisualChange: "Visual changes",
	vitals.FieldNoseBleed:    "Nose bleeding",
	vitals.FieldDiet:         "Controlled diet",
	vitals.FieldSystolic:     "Systolic (mmHg)",
	vitals.FieldDiastolic:    "Diastolic (mmHg)",
}

func formFields() []formField {
	choices := vitals.Choices()
	fields := make([]formField, 0, vitals.FeatureCount)
	for _, name := range vitals.FieldOrder {
		opts, categorical := choices[name]
		fields = append(fields, formField{
			Name:    name,
			Label:   fieldLabels[name],
			Numeric: !categorical,
			Choices: opts,
		})
	}
	return fields
}

func (h *handler) index(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", gin.H{
		"Title":  "Blood Pressure Stage",
		"Fields": formFields(),
	})
}

func (h *handler) details(c *gin.Context) {
	stages := make([]string, 0, 4)
	for code := stage.Normal; code <= stage.Crisis; code++ {
		stages = append(stages, stage.Label(int(code)))
	}
	c.HTML(http.StatusOK, "details.html", gin.H{
		"Title":  "Details",
		"Stages": stages,
	})
}

func (h *handler) predictForm(c *gin.Context) {
	vec, err := vitals.Encode(c.GetPostForm)
	if err != nil {
		h.log.Info("rejected form", "error", err, "request_id", requestID(c))
		c.HTML(http.StatusBadRequest, "prediction.html", gin.H{
			"Title": "Result",
			"Error": fmt.Sprintf("Invalid input: %v", err),
		})
		return
	}

	res, err := h.predictor.Predict(c.Request.Context(), vec)
	if err != nil {
		h.log.Error("prediction failed", "error", err, "request_id", requestID(c))
		c.HTML(http.StatusInternalServerError, "prediction.html", gin.H{
			"Title": "Result",
			"Error": "The prediction could not be computed.",
		})
		return
	}

	c.HTML(http.StatusOK, "prediction.html", gin.H{
		"Title":          "Result",
		"PredictionText": res.Text,
	})
}

func (h *handler) predictJSON(c *gin.Context) {
	var payload map[string]any
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	vec, err := vitals.Encode(jsonLookup(payload))
	if err != nil {
		var fe *vitals.FieldError
		field := ""
		if errors.As(err, &fe) {
			field = fe.Field
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"field":   field,
			"details": err.Error(),
		})
		return
	}

	res, err := h.predictor.Predict(c.Request.Context(), vec)
	if err != nil {
		h.log.Error("prediction failed", "error", err, "request_id", requestID(c))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "prediction_failed"})
		return
	}
	c.JSON(http.StatusOK, res)
}

// jsonLookup lets API clients send numeric fields as JSON numbers or strings. A null is
// treated as a missing field.
func jsonLookup(payload map[string]any) vitals.Lookup {
	return func(name string) (string, bool) {
		switch v := payload[name].(type) {
		case nil:
			return "", false
		case string:
			return v, true
		case float64:
			return strconv.FormatFloat(v, 'g', -1, 64), true
		default:
			return fmt.Sprint(v), true
		}
	}
}

func (h *handler) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handler) readyz(c *gin.Context) {
	code := http.StatusOK
	body := gin.H{"status": "ok", "model": "loaded", "db": "disabled"}

	if h.predictor == nil {
		code = http.StatusServiceUnavailable
		body["status"], body["model"] = "degraded", "missing"
	}

	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := h.db.Ping(ctx); err != nil {
			code = http.StatusServiceUnavailable
			body["status"], body["db"] = "degraded", fmt.Sprintf("unhealthy: %v", err)
		} else {
			body["db"] = "ok"
		}
	}

	c.JSON(code, body)
}
