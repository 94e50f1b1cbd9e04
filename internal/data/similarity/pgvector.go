package similarity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/yungbote/decisiontrace-backend/internal/domain/tracegraph"
	"github.com/yungbote/decisiontrace-backend/internal/platform/logger"
)

var tableNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// The seed vector never leaves Postgres: it is joined in from the same table.
const pgvectorTopKQuery = `
SELECT e.decision_id AS decision_id, (e.embedding <=> s.embedding) AS distance
FROM %[1]s e
CROSS JOIN (SELECT embedding FROM %[1]s WHERE space = ? AND decision_id = ?) s
WHERE e.space = ? AND e.decision_id <> ?
ORDER BY distance ASC, e.decision_id ASC
LIMIT ?`

type pgvectorRow struct {
	DecisionID string  `gorm:"column:decision_id"`
	Distance   float64 `gorm:"column:distance"`
}

// Pgvector serves SimilarityProvider from a decision_embeddings table searched with
// the pgvector cosine distance operator.
type Pgvector struct {
	db    *gorm.DB
	log   *logger.Logger
	table string
}

func NewPgvector(db *gorm.DB, log *logger.Logger, table string) (*Pgvector, error) {
	if db == nil {
		return nil, fmt.Errorf("postgres handle required")
	}
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	table = strings.TrimSpace(table)
	if table == "" {
		table = "decision_embeddings"
	}
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid pgvector table name %q", table)
	}
	return &Pgvector{db: db, log: log.With("service", "PgvectorSimilarity"), table: table}, nil
}

func (p *Pgvector) TopK(ctx context.Context, space tracegraph.Space, seedID string, k int) ([]tracegraph.SimilarityResult, error) {
	const op = "similarity.Pgvector.TopK"
	if !space.Valid() {
		return nil, tracegraph.Validation(op, "unknown similarity space %q", space)
	}
	if k <= 0 {
		return []tracegraph.SimilarityResult{}, nil
	}

	var seeded int64
	if err := p.db.WithContext(ctx).
		Table(p.table).
		Where("space = ? AND decision_id = ?", string(space), seedID).
		Count(&seeded).Error; err != nil {
		return nil, classifyPgError(op+".seed", err)
	}
	if seeded == 0 {
		return nil, tracegraph.NewError(tracegraph.CodeInconsistentData, op, "seed "+seedID+" has no "+string(space)+" embedding", nil)
	}

	var rows []pgvectorRow
	q := fmt.Sprintf(pgvectorTopKQuery, p.table)
	if err := p.db.WithContext(ctx).
		Raw(q, string(space), seedID, string(space), seedID, k).
		Scan(&rows).Error; err != nil {
		return nil, classifyPgError(op, err)
	}
	return resultsFromDistances(space, rows), nil
}

// classifyPgError maps Postgres failures that are not transient onto the dependency codes
// before the core sees them. Anything else is left for ClassifyDependency.
func classifyPgError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch strings.TrimSpace(pgErr.Code) {
		case "57014": // query_canceled
			return tracegraph.Wrap(tracegraph.CodeDependencyTimeout, op, err)
		case "42P01", "42883", "42704": // undefined_table, undefined_function, undefined_object
			return tracegraph.NewError(tracegraph.CodeDependencyUnavailable, op, "pgvector schema missing: "+pgErr.Message, err)
		case "22000", "22P02": // vector dimension mismatch, invalid text representation
			return tracegraph.Wrap(tracegraph.CodeInconsistentData, op, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// resultsFromDistances maps cosine distance in [0,2] onto a score in [0,1].
func resultsFromDistances(space tracegraph.Space, rows []pgvectorRow) []tracegraph.SimilarityResult {
	out := make([]tracegraph.SimilarityResult, 0, len(rows))
	for _, r := range rows {
		if strings.TrimSpace(r.DecisionID) == "" {
			continue
		}
		score := 1 - r.Distance/2
		if score < 0 {
			score = 0
		}
		if score > 1 {
			score = 1
		}
		out = append(out, tracegraph.SimilarityResult{ItemID: r.DecisionID, Score: score, Space: space})
	}
	return out
}
