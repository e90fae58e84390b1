package store

import (
	"context"
	"fmt"
)

// HierarchyQuery parameterizes the downstream walk. Children carry a link of
// the given type and direction pointing at their parent's key, so each level
// of the walk scans candidate children for a link back to the previous level.
type HierarchyQuery struct {
	Queue     string // downstream queue whose tasks the walk may visit
	LinkType  string // link type id on the child that references the parent
	Direction string // link direction on the child, as stored
	MaxDepth  int    // levels below the roots; guards against link cycles
}

const downstreamSQL = `
WITH RECURSIVE walk AS (
    SELECT r.key AS root_key, r.key AS key, 0 AS depth, ARRAY[r.key] AS path
    FROM unnest($1::text[]) AS r(key)
    UNION ALL
    SELECT w.root_key, c.key, w.depth + 1, w.path || c.key
    FROM walk w
    JOIN tasks c ON c.key LIKE $2
    WHERE w.depth < $3
      AND NOT (c.key = ANY (w.path))
      AND EXISTS (
          SELECT 1
          FROM jsonb_array_elements(c.links) AS l(link)
          WHERE l.link ->> 'type_id'   = $4
            AND l.link ->> 'direction' = $5
            AND l.link ->> 'key'       = w.key
      )
)
SELECT DISTINCT root_key, key
FROM walk
WHERE key LIKE $2
ORDER BY root_key, key`

// DownstreamBatch walks the child-link hierarchy below every root in one
// recursive query and returns the visited keys per root, roots included when
// they belong to the queue. The path array keeps link cycles from recursing
// and MaxDepth bounds the walk regardless.
func (s *Store) DownstreamBatch(ctx context.Context, roots []string, q HierarchyQuery) (map[string][]string, error) {
	if len(roots) == 0 {
		return map[string][]string{}, nil
	}

	rows, err := s.pool.Query(ctx, downstreamSQL,
		roots, q.Queue+"-%", q.MaxDepth, q.LinkType, q.Direction)
	if err != nil {
		return nil, fmt.Errorf("downstream hierarchy: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]string, len(roots))
	for rows.Next() {
		var rootKey, key string
		if err := rows.Scan(&rootKey, &key); err != nil {
			return nil, fmt.Errorf("downstream hierarchy: %w", err)
		}
		out[rootKey] = append(out[rootKey], key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("downstream hierarchy: %w", err)
	}
	return out, nil
}

// Downstream is DownstreamBatch for a single root.
func (s *Store) Downstream(ctx context.Context, root string, q HierarchyQuery) ([]string, error) {
	m, err := s.DownstreamBatch(ctx, []string{root}, q)
	if err != nil {
		return nil, err
	}
	return m[root], nil
}
