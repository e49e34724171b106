// Package resolver canonicalizes user-uttered merchant strings against the
// user's own transaction history. Trigram similarity is preferred when the
// pg_trgm extension is available; a pattern-match fallback covers the rest.
// Every lookup is tenant-scoped at the query level.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/finsightai/finsight/pkg/db"
)

// Resolver maps noisy merchant candidates to canonical names.
type Resolver struct {
	q        db.Querier
	cacheTTL time.Duration

	mu    sync.Mutex
	cache map[string]cachedMerchants
}

type cachedMerchants struct {
	merchants []string
	expires   time.Time
}

// New builds a resolver with a per-user distinct-merchant cache.
func New(q db.Querier, cacheTTL time.Duration) *Resolver {
	if cacheTTL <= 0 {
		cacheTTL = time.Hour
	}
	return &Resolver{q: q, cacheTTL: cacheTTL, cache: map[string]cachedMerchants{}}
}

// Resolve returns up to k canonical merchant strings drawn from the user's
// own transactions. On total failure the normalized candidates are returned;
// they remain usable as LIKE patterns.
func (r *Resolver) Resolve(ctx context.Context, userID string, candidates []string, k int) []string {
	if k <= 0 {
		k = 3
	}

	normalized := normalize(candidates)
	if len(normalized) == 0 {
		return nil
	}

	if rows, err := r.resolveTrigram(ctx, userID, normalized, k); err == nil && len(rows) > 0 {
		slog.Info("resolved merchants via pg_trgm", "candidates", candidates, "resolved", rows)
		return rows
	} else if err != nil {
		slog.Info("pg_trgm unavailable or failed, falling back to pattern matching", "error", err)
	}

	if rows, err := r.resolvePatterns(ctx, userID, normalized, k); err == nil && len(rows) > 0 {
		slog.Info("resolved merchants via pattern matching", "candidates", candidates, "resolved", rows)
		return rows
	} else if err != nil {
		slog.Warn("pattern-match merchant resolution failed", "error", err)
	}

	slog.Warn("merchant resolution failed, returning normalized candidates", "candidates", normalized)
	if len(normalized) > k {
		normalized = normalized[:k]
	}
	return normalized
}

func normalize(candidates []string) []string {
	var out []string
	seen := map[string]bool{}
	for _, c := range candidates {
		c = strings.TrimSpace(strings.ToLower(c))
		c = strings.ReplaceAll(c, "'", "")
		if c != "" && !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

func (r *Resolver) resolveTrigram(ctx context.Context, userID string, candidates []string, k int) ([]string, error) {
	var conds []string
	var orders []string
	params := map[string]any{"uid": userID, "k": k}

	for i, c := range candidates {
		name := fmt.Sprintf("c%d", i)
		params[name] = c
		conds = append(conds, fmt.Sprintf("merchant %% :%s", name))
		orders = append(orders, fmt.Sprintf("similarity(merchant, :%s) DESC", name))
	}

	query := fmt.Sprintf(`WITH m AS (
    SELECT DISTINCT LOWER(COALESCE(merchant_name, name)) AS merchant
    FROM transactions
    WHERE user_id = :uid
      AND COALESCE(merchant_name, name) IS NOT NULL
)
SELECT merchant
FROM m
WHERE %s
ORDER BY %s
LIMIT :k`, strings.Join(conds, " OR "), strings.Join(orders, ", "))

	rows, err := r.q.Query(ctx, query, params)
	if err != nil {
		return nil, err
	}
	return merchantColumn(rows), nil
}

func (r *Resolver) resolvePatterns(ctx context.Context, userID string, candidates []string, k int) ([]string, error) {
	patterns := map[string]bool{}
	for _, c := range candidates {
		for _, v := range variants(c) {
			patterns[v] = true
		}
	}
	list := make([]string, 0, len(patterns))
	for p := range patterns {
		list = append(list, p)
	}

	query := `SELECT LOWER(COALESCE(merchant_name, name)) AS merchant, COUNT(*) AS hits
FROM transactions
WHERE user_id = :uid
  AND LOWER(COALESCE(merchant_name, name)) ILIKE ANY(:pats)
  AND COALESCE(merchant_name, name) IS NOT NULL
GROUP BY 1
ORDER BY hits DESC
LIMIT :k`

	rows, err := r.q.Query(ctx, query, map[string]any{
		"uid":  userID,
		"pats": pq.Array(list),
		"k":    k,
	})
	if err != nil {
		return nil, err
	}
	return merchantColumn(rows), nil
}

// variants generates the contains/prefix/no-space patterns plus a few common
// possessive substitutions.
func variants(base string) []string {
	out := []string{
		"%" + base + "%",
		"%" + strings.ReplaceAll(base, " ", "") + "%",
		base + "%",
	}

	if strings.Contains(base, "joe") {
		out = append(out,
			"%"+strings.ReplaceAll(base, " joe", " joe's")+"%",
			"%"+strings.ReplaceAll(base, " joes", " joe's")+"%")
	}
	if strings.Contains(base, "mcdonalds") {
		out = append(out, "%mcdonald's%", "%mcdonald%")
	}
	return out
}

func merchantColumn(rows []map[string]any) []string {
	var out []string
	for _, row := range rows {
		if m, ok := row["merchant"].(string); ok && m != "" {
			out = append(out, m)
		}
	}
	return out
}

// UserMerchants returns the user's distinct merchants, cached per user for
// fast in-memory matching.
func (r *Resolver) UserMerchants(ctx context.Context, userID string, limit int) []string {
	if limit <= 0 {
		limit = 100
	}

	r.mu.Lock()
	if c, ok := r.cache[userID]; ok && time.Now().Before(c.expires) {
		r.mu.Unlock()
		return c.merchants
	}
	r.mu.Unlock()

	rows, err := r.q.Query(ctx, `SELECT DISTINCT LOWER(COALESCE(merchant_name, name)) AS merchant
FROM transactions
WHERE user_id = :uid
  AND COALESCE(merchant_name, name) IS NOT NULL
ORDER BY merchant
LIMIT :limit`, map[string]any{"uid": userID, "limit": limit})
	if err != nil {
		slog.Warn("failed to load user merchants", "error", err)
		return nil
	}

	merchants := merchantColumn(rows)

	r.mu.Lock()
	r.cache[userID] = cachedMerchants{merchants: merchants, expires: time.Now().Add(r.cacheTTL)}
	r.mu.Unlock()

	return merchants
}
