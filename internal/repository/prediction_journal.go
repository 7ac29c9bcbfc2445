package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"OptEdge/internal/domain/models"
	pkgch "OptEdge/pkg/clickhouse"
	applogger "OptEdge/pkg/logger"
)

// CHPredictionJournal persists every resolved prediction to ClickHouse so
// the training pipeline can join outcomes back onto decisions.
type CHPredictionJournal struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

// NewCHPredictionJournal builds a journal over an existing client. The table
// name comes from configuration; "optedge.predictions" is typical.
func NewCHPredictionJournal(ch *pkgch.Client, table string, l *applogger.Logger) *CHPredictionJournal {
	return &CHPredictionJournal{db: ch.DB(), table: table, l: l}
}

func (j *CHPredictionJournal) Init(ctx context.Context) error {
	stmts := []string{
		"CREATE DATABASE IF NOT EXISTS optedge",
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
            ts DateTime64(3),
            symbol LowCardinality(String),
            strategy LowCardinality(String),
            win_probability Float64,
            prediction LowCardinality(String),
            confidence Float64,
            recommendation LowCardinality(String),
            risk_score Float64,
            features_used UInt16,
            model_version String,
            data_source LowCardinality(String),
            latency_ms Int64
        ) ENGINE = MergeTree ORDER BY (symbol, ts)`, j.table),
	}
	for _, stmt := range stmts {
		if _, err := j.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("journal init: %w", err)
		}
	}
	return nil
}

func (j *CHPredictionJournal) Record(ctx context.Context, res *models.PredictionResult) error {
	start := time.Now()
	q := fmt.Sprintf(`INSERT INTO %s
        (ts, symbol, strategy, win_probability, prediction, confidence,
         recommendation, risk_score, features_used, model_version, data_source, latency_ms)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, j.table)

	_, err := j.db.ExecContext(ctx, q,
		res.Timestamp,
		res.Symbol,
		string(res.Strategy),
		res.WinProbability,
		res.Prediction,
		res.Confidence,
		res.Recommendation,
		res.RiskScore,
		uint16(res.FeaturesUsed),
		res.ModelVersion,
		res.DataSource,
		res.LatencyMs,
	)
	if err != nil {
		if j.l != nil {
			j.l.Error("journal insert failed",
				applogger.String("table", j.table),
				applogger.String("symbol", res.Symbol),
				applogger.Error(err),
			)
		}
		return fmt.Errorf("journal insert: %w", err)
	}
	if j.l != nil {
		j.l.Debug("journal insert ok",
			applogger.String("table", j.table),
			applogger.String("symbol", res.Symbol),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return nil
}

func (j *CHPredictionJournal) Close() error { return nil }
