package store

import (
	"context"
	"fmt"

	"github.com/starford/dossier/internal/models"
)

// DefaultTopN bounds top_files and top_clients when no size is given.
const DefaultTopN = 10

const degreeQuery = `
	SELECT ` + contactColumns + `, d.degree
	FROM (
		SELECT %[1]s AS id, COUNT(*) AS degree
		FROM contact_links
		GROUP BY %[1]s
	) d
	JOIN contacts c ON c.id = d.id
	ORDER BY d.degree DESC, ` + nameOrder + `
	LIMIT ?`

var (
	outDegreeQuery = fmt.Sprintf(degreeQuery, "from_id")
	inDegreeQuery  = fmt.Sprintf(degreeQuery, "to_id")
)

const statsQuery = `
	SELECT
		(SELECT COUNT(*) FROM contacts),
		(SELECT COUNT(DISTINCT from_id) FROM contact_links)`

// Report aggregates the link graph. Degrees come from one grouped pass per
// direction. Every part is read inside one deferred transaction so the top
// lists, their linked clients and the stats describe the same graph.
func (db *DB) Report(ctx context.Context, topN int) (*models.RelationshipReport, error) {
	if topN <= 0 {
		topN = DefaultTopN
	}

	tx, err := db.read.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify("report: begin tx", err)
	}
	defer tx.Rollback() //nolint:errcheck // read only

	report := &models.RelationshipReport{}
	if report.TopFiles, err = degrees(ctx, tx, outDegreeQuery, topN); err != nil {
		return nil, classify("report: top files", err)
	}
	if report.TopClients, err = degrees(ctx, tx, inDegreeQuery, topN); err != nil {
		return nil, classify("report: top clients", err)
	}
	var s models.LinkStats
	if err := tx.QueryRowContext(ctx, statsQuery).Scan(&s.Total, &s.Linked); err != nil {
		return nil, classify("report: stats", err)
	}
	s.Unlinked = s.Total - s.Linked
	report.Stats = s

	if err := tx.Commit(); err != nil {
		return nil, classify("report: commit", err)
	}
	return report, nil
}

func degrees(ctx context.Context, q querier, query string, topN int) ([]models.DegreeEntry, error) {
	rows, err := q.QueryContext(ctx, query, topN)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.DegreeEntry{}
	for rows.Next() {
		var degree int
		c, err := scanContact(rows, &degree)
		if err != nil {
			return nil, err
		}
		out = append(out, models.DegreeEntry{Contact: c, Degree: degree})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	ptrs := make([]*models.Contact, len(out))
	for i := range out {
		ptrs[i] = &out[i].Contact
	}
	if err := attachLinks(ctx, q, ptrs); err != nil {
		return nil, err
	}
	return out, nil
}
