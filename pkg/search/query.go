package search

import (
	"context"
	"iter"
	"strings"

	"github.com/aretw0/folio/pkg/core"
)

// Column weights for bm25: path is unindexed, a title match outranks
// a body match.
const rankExpr = `bm25(pages_fts, 0.0, 10.0, 1.0)`

// Query lazily yields the pages matching text, best first. Ties are
// ordered by path. An empty query yields nothing.
func (i *Index) Query(ctx context.Context, text string) iter.Seq2[core.SearchHit, error] {
	return func(yield func(core.SearchHit, error) bool) {
		q := sanitizeFTS(text)
		if q == "" {
			return
		}
		rows, err := i.db.QueryContext(ctx, `
			SELECT path, title, `+rankExpr+` AS rank
			FROM pages_fts
			WHERE pages_fts MATCH ?
			ORDER BY rank ASC, path ASC`, q)
		if err != nil {
			yield(core.SearchHit{}, core.Storage("search", "", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var h core.SearchHit
			var rank float64
			if err := rows.Scan(&h.Path, &h.Title, &rank); err != nil {
				yield(core.SearchHit{}, core.Storage("search", "", err))
				return
			}
			h.Score = -rank
			if !yield(h, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(core.SearchHit{}, core.Storage("search", "", err))
		}
	}
}

// Search returns up to limit ranked hits with a highlighted snippet. When
// the full-text query cannot run it falls back to a substring scan.
func (i *Index) Search(ctx context.Context, text string, limit int) ([]core.SearchHit, error) {
	if limit <= 0 {
		limit = 20
	}
	q := sanitizeFTS(text)
	if q == "" {
		return nil, nil
	}

	rows, err := i.db.QueryContext(ctx, `
		SELECT path, title, snippet(pages_fts, 2, '[', ']', '…', 12), `+rankExpr+` AS rank
		FROM pages_fts
		WHERE pages_fts MATCH ?
		ORDER BY rank ASC, path ASC
		LIMIT ?`, q, limit)
	if err != nil {
		i.logger.Debug("full-text query failed, scanning", "query", text, "error", err)
		return i.scan(ctx, text, limit)
	}
	defer rows.Close()

	var hits []core.SearchHit
	for rows.Next() {
		var h core.SearchHit
		var rank float64
		if err := rows.Scan(&h.Path, &h.Title, &h.Snippet, &rank); err != nil {
			return nil, core.Storage("search", "", err)
		}
		h.Score = -rank
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, core.Storage("search", "", err)
	}
	return hits, nil
}

func (i *Index) scan(ctx context.Context, text string, limit int) ([]core.SearchHit, error) {
	pattern := "%" + likeEscaper.Replace(strings.TrimSpace(text)) + "%"
	rows, err := i.db.QueryContext(ctx, `
		SELECT path, title, substr(content, 1, 160)
		FROM pages_fts
		WHERE title LIKE ? ESCAPE '\' OR content LIKE ? ESCAPE '\'
		ORDER BY path ASC
		LIMIT ?`, pattern, pattern, limit)
	if err != nil {
		return nil, core.Storage("search", "", err)
	}
	defer rows.Close()

	var hits []core.SearchHit
	for rows.Next() {
		var h core.SearchHit
		if err := rows.Scan(&h.Path, &h.Title, &h.Snippet); err != nil {
			return nil, core.Storage("search", "", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// likeEscaper makes the LIKE wildcards literal.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// sanitizeFTS quotes each word for a safe FTS5 query. A trailing *
// on a word is kept as a prefix match.
// "setup guid*" → `"setup" "guid"*`
func sanitizeFTS(query string) string {
	words := strings.Fields(query)
	out := words[:0]
	for _, w := range words {
		prefix := strings.HasSuffix(w, "*")
		w = strings.Trim(w, `"*`)
		if w == "" {
			continue
		}
		w = `"` + strings.ReplaceAll(w, `"`, `""`) + `"`
		if prefix {
			w += "*"
		}
		out = append(out, w)
	}
	return strings.Join(out, " ")
}

var _ core.Indexer = (*Index)(nil)
