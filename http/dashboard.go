package http

import (
	"bytes"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"ll97dash/building"
	"ll97dash/cascade"
	"ll97dash/db"
	"ll97dash/ml"
	"ll97dash/report"
)

//go:embed templates/*.html
var templateFS embed.FS

var dashboardTemplate = template.Must(template.New("dashboard.html").Funcs(template.FuncMap{
	"percent": report.Percent,
	"rate":    func(i db.Insight) string { return report.Percent(i.FinedRate()) },
	"threshold": func(t *float64) string {
		if t == nil {
			return "model-defined"
		}
		return strconv.FormatFloat(*t, 'f', 2, 64)
	},
}).ParseFS(templateFS, "templates/dashboard.html"))

// Dashboard tabs.
const (
	TabPredictions = "predictions"
	TabInsights    = "insights"
	TabHowItWorks  = "how"
	TabModels      = "models"
)

type formValues struct {
	PropertyType    string
	CalendarYear    string
	EnergyStarScore string
	SiteEUI         string
	GHGEmissions    string
}

func defaultForm() formValues {
	return formValues{
		PropertyType:    building.DefaultPropertyType,
		CalendarYear:    strconv.Itoa(building.DefaultYear),
		EnergyStarScore: strconv.FormatFloat(building.DefaultEnergyStarScore, 'f', -1, 64),
		SiteEUI:         strconv.FormatFloat(building.DefaultSiteEUI, 'f', 1, 64),
		GHGEmissions:    strconv.FormatFloat(building.DefaultGHGEmissions, 'f', 1, 64),
	}
}

func (f formValues) raw() building.RawInput {
	return building.RawInput{
		PropertyType:    f.PropertyType,
		CalendarYear:    f.CalendarYear,
		EnergyStarScore: f.EnergyStarScore,
		SiteEUI:         f.SiteEUI,
		GHGEmissions:    f.GHGEmissions,
	}
}

type dashboardPage struct {
	Tab           string
	PropertyTypes []string
	Years         []string
	Form          formValues
	Submitted     bool
	Banners       []report.Banner
	Issues        map[string]string
	Error         string
	Insights      []db.Insight
	Totals        db.Insight
	InsightsError string
	Models        []ml.ModelInfo
	Columns       []string
}

func RegisterDashboardRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", handleDashboard)
	mux.HandleFunc("POST /predict", handleDashboardPredict)
}

func newPage(tab string) *dashboardPage {
	catalog := assembler.Catalog()
	years := make([]string, 0, len(catalog.Years()))
	for _, y := range catalog.Years() {
		years = append(years, strconv.Itoa(y))
	}
	switch tab {
	case TabPredictions, TabInsights, TabHowItWorks, TabModels:
	default:
		tab = TabPredictions
	}
	return &dashboardPage{
		Tab:           tab,
		PropertyTypes: catalog.PropertyTypes(),
		Years:         years,
		Form:          defaultForm(),
		Models:        loadedModels,
		Columns:       building.Columns(),
	}
}

func (p *dashboardPage) loadInsights() {
	insights, err := db.LoadInsights()
	if err != nil {
		p.InsightsError = "Insights are unavailable: " + err.Error()
		return
	}
	p.Insights = insights
	p.Totals = db.Totals(insights)
}

// handleDashboard 渲染仪表盘; a plain GET never runs a prediction.
func handleDashboard(w http.ResponseWriter, r *http.Request) {
	page := newPage(r.URL.Query().Get("tab"))
	if page.Tab == TabInsights {
		page.loadInsights()
	}
	renderDashboard(w, http.StatusOK, page)
}

func handleDashboardPredict(w http.ResponseWriter, r *http.Request) {
	page := newPage(TabPredictions)
	if err := r.ParseForm(); err != nil {
		page.Error = "Could not read the form: " + err.Error()
		renderDashboard(w, http.StatusBadRequest, page)
		return
	}
	page.Form = formValues{
		PropertyType:    r.PostForm.Get(building.ColPropertyType),
		CalendarYear:    r.PostForm.Get(building.ColCalendarYear),
		EnergyStarScore: r.PostForm.Get(building.ColEnergyStarScore),
		SiteEUI:         r.PostForm.Get(building.ColSiteEUI),
		GHGEmissions:    r.PostForm.Get(building.ColGHGEmissions),
	}
	page.Submitted = true

	_, result, err := runPrediction(r.Context(), "dashboard", page.Form.raw())
	if err != nil {
		status := http.StatusInternalServerError
		var verr *building.ValidationError
		var ierr *cascade.InferenceError
		switch {
		case errors.As(err, &verr):
			status = http.StatusUnprocessableEntity
			page.Issues = make(map[string]string, len(verr.Issues))
			for _, issue := range verr.Issues {
				page.Issues[issue.Field] = issue.Reason
			}
		case errors.As(err, &ierr):
			status = http.StatusBadGateway
			page.Error = "The " + ierr.Stage + " model could not score this building: " + ierr.Err.Error()
		case errors.Is(err, errNoPredictor):
			status = http.StatusServiceUnavailable
			page.Error = "Models are still loading. Try again shortly."
		default:
			page.Error = err.Error()
		}
		renderDashboard(w, status, page)
		return
	}
	page.Banners = report.Banners(result)
	renderDashboard(w, http.StatusOK, page)
}

func renderDashboard(w http.ResponseWriter, status int, page *dashboardPage) {
	var buf bytes.Buffer
	if err := dashboardTemplate.Execute(&buf, page); err != nil {
		logger.Error("failed to render dashboard", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}
