package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"ll97dash/building"
	"ll97dash/cascade"
	"ll97dash/db"
	"ll97dash/ml"
	"ll97dash/monitoring"
	"ll97dash/report"
)

const publishTimeout = 2 * time.Second

var errNoPredictor = errors.New("models are not loaded")

var (
	assembler    = building.NewAssembler(nil)
	predictor    cascade.Predictor
	metrics      *monitoring.Metrics
	publisher    monitoring.Publisher
	hub          *monitoring.Hub
	loadedModels []ml.ModelInfo
	logger       = zap.NewNop()
)

// SetAssembler 设置特征组装器
func SetAssembler(a *building.Assembler) {
	if a == nil {
		a = building.NewAssembler(nil)
	}
	assembler = a
}

// SetPredictor 设置决策级联
func SetPredictor(p cascade.Predictor) { predictor = p }

func SetMetrics(m *monitoring.Metrics) { metrics = m }

// SetPublisher 设置预测事件发布器
func SetPublisher(p monitoring.Publisher) { publisher = p }

// SetHub 设置WebSocket中心
func SetHub(h *monitoring.Hub) { hub = h }

func SetModels(models []ml.ModelInfo) { loadedModels = models }

func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	logger = l
}

func RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.HandleFunc("GET /api/catalog", handleCatalog)
	mux.HandleFunc("POST /api/predict", handlePredict)
	mux.HandleFunc("GET /api/models", handleModels)
	mux.HandleFunc("GET /api/insights", handleInsights)
	mux.HandleFunc("GET /api/ws/predictions", handleWebSocket)
	mux.HandleFunc("GET /metrics", handleMetrics)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	if predictor == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "loading"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"models": len(loadedModels),
	})
}

type catalogResponse struct {
	Columns       []string       `json:"columns"`
	PropertyTypes []string       `json:"property_types"`
	Years         []int          `json:"years"`
	Defaults      map[string]any `json:"defaults"`
}

func handleCatalog(w http.ResponseWriter, r *http.Request) {
	catalog := assembler.Catalog()
	writeJSON(w, http.StatusOK, catalogResponse{
		Columns:       building.Columns(),
		PropertyTypes: catalog.PropertyTypes(),
		Years:         catalog.Years(),
		Defaults: map[string]any{
			building.ColPropertyType:    building.DefaultPropertyType,
			building.ColCalendarYear:    building.DefaultYear,
			building.ColEnergyStarScore: building.DefaultEnergyStarScore,
			building.ColSiteEUI:         building.DefaultSiteEUI,
			building.ColGHGEmissions:    building.DefaultGHGEmissions,
		},
	})
}

type predictResponse struct {
	Record  building.BuildingRecord  `json:"record"`
	Result  cascade.PredictionResult `json:"result"`
	Banners []report.Banner          `json:"banners"`
}

func handlePredict(w http.ResponseWriter, r *http.Request) {
	var raw building.RawInput
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	record, result, err := runPrediction(r.Context(), "api", raw)
	if err != nil {
		writePredictionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, predictResponse{
		Record:  record,
		Result:  result,
		Banners: report.Banners(result),
	})
}

// runPrediction assembles raw, runs the cascade and records the outcome in
// metrics, aggregate insights and the event stream.
func runPrediction(ctx context.Context, source string, raw building.RawInput) (building.BuildingRecord, cascade.PredictionResult, error) {
	record, err := assembler.Assemble(raw)
	if err != nil {
		metrics.ObserveError("validation")
		return building.BuildingRecord{}, cascade.PredictionResult{}, err
	}
	if predictor == nil {
		return record, cascade.PredictionResult{}, errNoPredictor
	}

	if cached, ok := predictor.(*cascade.Cached); ok {
		if cached.Hit(record) {
			metrics.CacheHit()
		} else {
			metrics.CacheMiss()
		}
	}

	start := time.Now()
	result, err := predictor.Predict(record)
	took := time.Since(start)
	if err != nil {
		stage := "unknown"
		var ierr *cascade.InferenceError
		if errors.As(err, &ierr) {
			stage = ierr.Stage
		}
		metrics.ObserveError(stage)
		logger.Error("prediction failed",
			zap.String("request_id", GetRequestID(ctx)),
			zap.String("stage", stage),
			zap.Stringer("record", record),
			zap.Error(err))
		publish(ctx, monitoring.NewPredictionEvent(source, record.PropertyType(), record.CalendarYear(), result, err))
		return record, cascade.PredictionResult{}, err
	}

	metrics.ObservePrediction(result, took)
	if err := db.RecordPrediction(record.PropertyType(), record.CalendarYear(), result); err != nil && !errors.Is(err, db.ErrNotInitialized) {
		logger.Warn("failed to record prediction stats", zap.Error(err))
	}
	publish(ctx, monitoring.NewPredictionEvent(source, record.PropertyType(), record.CalendarYear(), result, nil))

	logger.Debug("prediction",
		zap.String("request_id", GetRequestID(ctx)),
		zap.String("outcome", monitoring.Outcome(result)),
		zap.Duration("took", took))
	return record, result, nil
}

func publish(ctx context.Context, ev monitoring.PredictionEvent) {
	if publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := publisher.Publish(ctx, ev); err != nil {
		logger.Warn("failed to publish prediction event", zap.String("event", ev.ID), zap.Error(err))
	}
}

func writePredictionError(w http.ResponseWriter, err error) {
	var verr *building.ValidationError
	var ierr *cascade.InferenceError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error":  "invalid building record",
			"issues": verr.Issues,
		})
	case errors.As(err, &ierr):
		writeJSON(w, http.StatusBadGateway, map[string]string{
			"error": ierr.Error(),
			"stage": ierr.Stage,
		})
	case errors.Is(err, errNoPredictor):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

type modelsResponse struct {
	Loaded  []ml.ModelInfo `json:"loaded"`
	History []db.ModelLog  `json:"history,omitempty"`
}

func handleModels(w http.ResponseWriter, r *http.Request) {
	resp := modelsResponse{Loaded: loadedModels}
	if resp.Loaded == nil {
		resp.Loaded = []ml.ModelInfo{}
	}
	history, err := db.LoadModelLog(20)
	switch {
	case err == nil:
		resp.History = history
	case !errors.Is(err, db.ErrNotInitialized):
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func handleInsights(w http.ResponseWriter, r *http.Request) {
	insights, err := db.LoadInsights()
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, db.ErrNotInitialized) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"insights": insights,
		"totals":   db.Totals(insights),
	})
}

func handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if hub == nil {
		writeError(w, http.StatusNotFound, "live feed disabled")
		return
	}
	hub.HandleWebSocket(w, r)
}

func handleMetrics(w http.ResponseWriter, r *http.Request) {
	metrics.Handler().ServeHTTP(w, r)
}

// writeJSON 统一JSON响应
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Warn("failed to encode JSON", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
