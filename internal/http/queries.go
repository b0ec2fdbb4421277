package http

import (
	"context"

	"golang.org/x/sync/errgroup"

	"moneta/internal/backend"
	"moneta/internal/core"
	"moneta/internal/log"
	"moneta/internal/query"
)

// Query key roots. Every key is scoped to the signed-in user.
const (
	resourceAccounts     = "accounts"
	resourceTransactions = "transactions"
	resourceOverview     = "overview"
)

func accountsKey(userID string) query.Key {
	return query.Key{resourceAccounts, userID}
}

func transactionsKey(userID string, ym core.YearMonth) query.Key {
	return query.Key{resourceTransactions, userID, ym.String()}
}

func overviewKey(userID string, ym core.YearMonth) query.Key {
	return query.Key{resourceOverview, userID, ym.String()}
}

func (s *Server) fetchAccounts(sess backend.Session) query.Fetcher[[]core.Account] {
	return func(ctx context.Context) ([]core.Account, error) {
		return s.backend.ListAccounts(ctx, sess.AccessToken)
	}
}

func (s *Server) fetchTransactions(sess backend.Session, ym core.YearMonth) query.Fetcher[[]core.Transaction] {
	return func(ctx context.Context) ([]core.Transaction, error) {
		return s.backend.ListTransactions(ctx, sess.AccessToken, ym)
	}
}

func (s *Server) fetchOverview(sess backend.Session, ym core.YearMonth) query.Fetcher[core.MonthOverview] {
	return func(ctx context.Context) (core.MonthOverview, error) {
		return s.backend.MonthOverview(ctx, sess.AccessToken, ym)
	}
}

// afterWrite marks every resource a write touched as stale, then refetches
// the keys the response is about to render so it shows the write. Refetch
// errors are logged; the render shows them through the entry's retained error.
func afterWrite(ctx context.Context, qc *query.Client, stale []query.Key, render ...query.Key) {
	for _, prefix := range stale {
		qc.Invalidate(ctx, prefix)
	}

	var g errgroup.Group
	for _, key := range render {
		g.Go(func() error {
			return qc.Refetch(ctx, key)
		})
	}
	if err := g.Wait(); err != nil {
		log.FromContext(ctx).WarnContext(ctx, "Refetch after write failed",
			log.FieldOperation, log.OpRefetch,
			log.FieldError, err)
	}
}
