package library

import (
	"context"
	"fmt"
	"strings"

	"github.com/italolelis/loan_downloader/internal/browser"
	"github.com/italolelis/loan_downloader/internal/logctx"
	"github.com/italolelis/loan_downloader/internal/textutil"
)

// Entity is one rendered item of the content library list.
type Entity struct {
	Element browser.Element
	Title   string
}

// Score pairs a candidate title with its similarity to the target.
type Score struct {
	Title      string
	Similarity float64
}

// MatchScores scores every candidate against target in list order.
func MatchScores(candidates []Entity, target string) []Score {
	scores := make([]Score, len(candidates))
	for i, c := range candidates {
		scores[i] = Score{Title: c.Title, Similarity: textutil.CompareTwoStrings(c.Title, target)}
	}

	return scores
}

// Match returns the most similar candidate when its score is strictly above minSimilarity.
// Ties keep the earliest candidate.
func Match(candidates []Entity, target string, minSimilarity float64) (Entity, bool) {
	best := -1
	bestScore := 0.0

	for i, s := range MatchScores(candidates, target) {
		if best == -1 || s.Similarity > bestScore {
			best = i
			bestScore = s.Similarity
		}
	}

	if best == -1 || bestScore <= minSimilarity {
		return Entity{}, false
	}

	return candidates[best], true
}

// Entities lists the library items on the page with their display titles.
func Entities(ctx context.Context, s browser.Session) ([]Entity, error) {
	logger := logctx.LoggerFromContext(ctx)

	els, err := s.FindAll(ctx, selEntity)
	if err != nil {
		return nil, fmt.Errorf("failed to list library items: %w", err)
	}

	entities := make([]Entity, 0, len(els))

	for i, el := range els {
		var title string

		titleEl, ok, err := el.Find(ctx, selEntityTitle)
		if err != nil {
			return nil, err
		}

		if ok {
			if title, err = titleEl.Text(ctx); err != nil {
				return nil, err
			}
		} else {
			logger.Error("library item has no title", "index", i)
		}

		entities = append(entities, Entity{Element: el, Title: strings.TrimSpace(title)})
	}

	return entities, nil
}

// FindEntity locates the library item for title. When nothing scores above minSimilarity every
// candidate's score is logged and ok is false.
func FindEntity(ctx context.Context, s browser.Session, title string, minSimilarity float64) (Entity, bool, error) {
	logger := logctx.LoggerFromContext(ctx)

	candidates, err := Entities(ctx, s)
	if err != nil {
		return Entity{}, false, err
	}

	if e, ok := Match(candidates, title, minSimilarity); ok {
		logger.Debug("matched library item", "title", title, "item", e.Title)

		return e, true, nil
	}

	for _, sc := range MatchScores(candidates, title) {
		logger.Info("candidate below threshold", "title", title, "candidate", sc.Title, "similarity", sc.Similarity)
	}

	return Entity{}, false, nil
}
