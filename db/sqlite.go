package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"ll97dash/cascade"
	"ll97dash/ml"
)

var database *sql.DB

var ErrNotInitialized = errors.New("database not initialized")

// InitDB initializes the SQLite database
func InitDB(path string) error {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
	}
	var err error
	database, err = sql.Open("sqlite3", path)
	if err != nil {
		return err
	}
	// sqlite 单写者
	database.SetMaxOpenConns(1)

	query := `
    CREATE TABLE IF NOT EXISTS model_log (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        model_name VARCHAR(50) NOT NULL,
        model_type VARCHAR(20) NOT NULL,
        path TEXT NOT NULL,
        sha256 TEXT NOT NULL,
        columns TEXT NOT NULL,
        features INTEGER NOT NULL,
        threshold REAL,
        loaded_at DATETIME NOT NULL
    );
    CREATE TABLE IF NOT EXISTS prediction_stats (
        property_type TEXT NOT NULL,
        calendar_year INTEGER NOT NULL,
        total INTEGER DEFAULT 0,
        fined INTEGER DEFAULT 0,
        paid INTEGER DEFAULT 0,
        updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        PRIMARY KEY(property_type, calendar_year)
    );
    `

	if _, err = database.Exec(query); err != nil {
		database.Close()
		database = nil
		return err
	}
	return nil
}

// Close closes the database if it was opened.
func Close() error {
	if database == nil {
		return nil
	}
	err := database.Close()
	database = nil
	return err
}

type ModelLog struct {
	ModelName string    `json:"model_name"`
	ModelType string    `json:"model_type"`
	Path      string    `json:"path"`
	SHA256    string    `json:"sha256"`
	Columns   []string  `json:"columns"`
	Features  int       `json:"features"`
	Threshold *float64  `json:"threshold,omitempty"`
	LoadedAt  time.Time `json:"loaded_at"`
}

// SaveModelLoad records that a model was loaded.
func SaveModelLoad(info ml.ModelInfo, loadedAt time.Time) error {
	if database == nil {
		return ErrNotInitialized
	}
	columns, err := json.Marshal(info.Columns)
	if err != nil {
		return err
	}
	var threshold sql.NullFloat64
	if info.Threshold != nil {
		threshold = sql.NullFloat64{Float64: *info.Threshold, Valid: true}
	}
	_, err = database.Exec(`
        INSERT INTO model_log (model_name, model_type, path, sha256, columns, features, threshold, loaded_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		info.Name, info.Type, info.Path, info.SHA256, string(columns), info.Features, threshold, loadedAt.UTC())
	return err
}

// LoadModelLog returns model loads, newest first.
func LoadModelLog(limit int) ([]ModelLog, error) {
	if database == nil {
		return nil, ErrNotInitialized
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := database.Query(`
        SELECT model_name, model_type, path, sha256, columns, features, threshold, loaded_at
        FROM model_log
        ORDER BY loaded_at DESC, id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]ModelLog, 0)
	for rows.Next() {
		var log ModelLog
		var columns string
		var threshold sql.NullFloat64
		if err := rows.Scan(&log.ModelName, &log.ModelType, &log.Path, &log.SHA256, &columns, &log.Features, &threshold, &log.LoadedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(columns), &log.Columns); err != nil {
			return nil, err
		}
		if threshold.Valid {
			t := threshold.Float64
			log.Threshold = &t
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

// RecordPrediction adds a result to the aggregate counters. Only counts are
// kept; the record itself is not stored.
func RecordPrediction(propertyType string, year int, result cascade.PredictionResult) error {
	if database == nil {
		return ErrNotInitialized
	}
	fined, paid := 0, 0
	if result.WillBeFined {
		fined = 1
	}
	if result.WillPayIfFined != nil && *result.WillPayIfFined {
		paid = 1
	}
	_, err := database.Exec(`
        INSERT INTO prediction_stats (property_type, calendar_year, total, fined, paid, updated_at)
        VALUES (?, ?, 1, ?, ?, ?)
        ON CONFLICT(property_type, calendar_year) DO UPDATE SET
            total = total + 1,
            fined = fined + excluded.fined,
            paid = paid + excluded.paid,
            updated_at = excluded.updated_at`,
		propertyType, year, fined, paid, time.Now().UTC())
	return err
}

type Insight struct {
	PropertyType string `json:"property_type"`
	CalendarYear int    `json:"calendar_year"`
	Total        int    `json:"total"`
	Fined        int    `json:"fined"`
	Paid         int    `json:"paid"`
}

// FinedRate is the share of predictions that were fined.
func (i Insight) FinedRate() float64 {
	if i.Total == 0 {
		return 0
	}
	return float64(i.Fined) / float64(i.Total)
}

// LoadInsights returns the counters ordered by property type and year.
func LoadInsights() ([]Insight, error) {
	if database == nil {
		return nil, ErrNotInitialized
	}
	rows, err := database.Query(`
        SELECT property_type, calendar_year, total, fined, paid
        FROM prediction_stats
        ORDER BY property_type, calendar_year`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	insights := make([]Insight, 0)
	for rows.Next() {
		var i Insight
		if err := rows.Scan(&i.PropertyType, &i.CalendarYear, &i.Total, &i.Fined, &i.Paid); err != nil {
			return nil, err
		}
		insights = append(insights, i)
	}
	return insights, rows.Err()
}

// Totals sums insights across property types and years.
func Totals(insights []Insight) Insight {
	total := Insight{PropertyType: "All"}
	for _, i := range insights {
		total.Total += i.Total
		total.Fined += i.Fined
		total.Paid += i.Paid
	}
	return total
}
