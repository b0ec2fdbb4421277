package http

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"golang.org/x/sync/errgroup"

	"moneta/internal/backend"
	"moneta/internal/core"
	"moneta/internal/log"
	"moneta/internal/query"
)

// MonthNav drives the previous and next month links of a month view.
type MonthNav struct {
	Path  string
	Month core.YearMonth
	Prev  core.YearMonth
	Next  core.YearMonth
}

func navFor(path string, ym core.YearMonth) MonthNav {
	return MonthNav{Path: path, Month: ym, Prev: ym.Prev(), Next: ym.Next()}
}

type dashboardData struct {
	MonthNav
	Accounts query.State[[]core.Account]
	Overview query.State[core.MonthOverview]
	Balance  core.Money
}

type transactionsData struct {
	MonthNav
	Transactions query.State[[]core.Transaction]
	Accounts     query.State[[]core.Account]
	AccountNames map[string]string
	Expense      []core.Category
	Income       []core.Category
	Kinds        []core.TransactionKind
	Today        string
	FormError    string
}

type accountsData struct {
	Accounts   query.State[[]core.Account]
	Balance    core.Money
	Kinds      []core.AccountKind
	FormAction string
	FormError  string
}

func balanceOf(accounts []core.Account) core.Money {
	var total core.Money
	for _, a := range accounts {
		total.Cents += a.Balance.Cents
	}
	return total
}

func isUnauthorized(errs ...error) bool {
	for _, err := range errs {
		if errors.Is(err, backend.ErrUnauthorized) {
			return true
		}
	}
	return false
}

// partial reports whether the response replaces a fragment instead of the page.
func partial(r *http.Request) bool {
	return isHTMX(r) && !isBoosted(r)
}

// mountTwo mounts two keys concurrently. The returned release unmounts both.
func mountTwo[A, B any](ctx context.Context, qc *query.Client,
	ka query.Key, fa query.Fetcher[A], kb query.Key, fb query.Fetcher[B],
) (release func(), sa query.State[A], sb query.State[B]) {
	var oa, ob *query.Observer
	var g errgroup.Group
	g.Go(func() error {
		oa, sa = query.Mount(ctx, qc, ka, fa)
		return nil
	})
	g.Go(func() error {
		ob, sb = query.Mount(ctx, qc, kb, fb)
		return nil
	})
	_ = g.Wait()
	return func() {
		oa.Unmount()
		ob.Unmount()
	}, sa, sb
}

func writeFailure(w http.ResponseWriter, r *http.Request, op string, err error, msg string) {
	log.FromContext(r.Context()).WithComponent(log.ComponentBackend).ErrorContext(r.Context(), "Backend write failed",
		log.FieldOperation, op,
		log.FieldError, err,
		"error_type", log.ErrorTypeNetwork)
	ErrorResponse(http.StatusBadGateway, msg).
		TriggerErrorNotification(msg).
		Write(w)
}

// formError reports a rejected form. htmx swaps it into the form's error slot.
func formError(w http.ResponseWriter, msg string) {
	UnprocessableEntityError(msg).
		Header("HX-Retarget", "#form-errors").
		Header("HX-Reswap", "innerHTML").
		Write(w)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request, sess backend.Session) {
	ctx := r.Context()
	qc := query.MustFromContext(ctx)
	uid := sess.User.ID
	ym := ParseMonthParams(r.URL.Query(), s.now())

	release, accounts, overview := mountTwo(ctx, qc,
		accountsKey(uid), s.fetchAccounts(sess),
		overviewKey(uid, ym), s.fetchOverview(sess, ym))
	defer release()

	if isUnauthorized(accounts.Err, overview.Err) {
		s.unauthorized(w, r, sess)
		return
	}
	if accounts.HasData && accounts.Err == nil && len(accounts.Data) == 0 {
		redirect(w, r, "/onboarding")
		return
	}

	data := dashboardData{
		MonthNav: navFor("/dashboard", ym),
		Accounts: accounts,
		Overview: overview,
		Balance:  balanceOf(accounts.Data),
	}
	if partial(r) {
		s.renderPartial(w, r, NewHTMXResponse(), "dashboard", "dashboard_body", data)
		return
	}
	s.renderPage(w, r, http.StatusOK, "dashboard", View{
		Title: ym.Label(),
		User:  sess.User,
		Nav:   "dashboard",
		Data:  data,
	})
}

func (s *Server) transactionsView(ctx context.Context, qc *query.Client, sess backend.Session, ym core.YearMonth) (func(), transactionsData) {
	uid := sess.User.ID
	release, txs, accounts := mountTwo(ctx, qc,
		transactionsKey(uid, ym), s.fetchTransactions(sess, ym),
		accountsKey(uid), s.fetchAccounts(sess))

	names := make(map[string]string, len(accounts.Data))
	for _, a := range accounts.Data {
		names[a.ID] = a.Name
	}
	return release, transactionsData{
		MonthNav:     navFor("/transactions", ym),
		Transactions: txs,
		Accounts:     accounts,
		AccountNames: names,
		Expense:      core.ExpenseCategories,
		Income:       core.IncomeCategories,
		Kinds:        core.TransactionKinds,
		Today:        s.now().Format("2006-01-02"),
	}
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request, sess backend.Session) {
	ctx := r.Context()
	ym := ParseMonthParams(r.URL.Query(), s.now())
	release, data := s.transactionsView(ctx, query.MustFromContext(ctx), sess, ym)
	defer release()

	if isUnauthorized(data.Transactions.Err, data.Accounts.Err) {
		s.unauthorized(w, r, sess)
		return
	}
	if partial(r) {
		s.renderPartial(w, r, NewHTMXResponse(), "transactions", "transactions_body", data)
		return
	}
	s.renderPage(w, r, http.StatusOK, "transactions", View{
		Title: "Transactions",
		User:  sess.User,
		Nav:   "transactions",
		Data:  data,
	})
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request, sess backend.Session) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	ctx := r.Context()
	qc := query.MustFromContext(ctx)
	uid := sess.User.ID
	now := s.now()

	form := transactionFormFrom(r.PostForm, now)
	var tx core.Transaction
	err := validate.Struct(form)
	if err == nil {
		tx, err = form.Transaction()
	}
	if err != nil {
		s.rejectTransaction(w, r, sess, validationMessage(err))
		return
	}

	created, err := s.backend.CreateTransaction(ctx, sess.AccessToken, tx)
	if err != nil {
		if isUnauthorized(err) {
			s.unauthorized(w, r, sess)
			return
		}
		writeFailure(w, r, log.OpCreate, err, "Could not save the transaction. Please try again.")
		return
	}
	if created.Date.IsZero() {
		created.Date = tx.Date
	}
	ym := core.CurrentMonth(created.Date)
	log.FromContext(ctx).InfoContext(ctx, "Transaction created",
		log.FieldOperation, log.OpCreate,
		log.FieldMonth, ym.String(),
		"kind", string(created.Kind),
		"amount_cents", created.Amount.Cents)

	afterWrite(ctx, qc,
		[]query.Key{{resourceTransactions, uid}, {resourceOverview, uid}, {resourceAccounts, uid}},
		transactionsKey(uid, ym), accountsKey(uid))

	if !partial(r) {
		redirect(w, r, "/transactions?"+url.Values{"month": {ym.String()}}.Encode())
		return
	}
	release, data := s.transactionsView(ctx, qc, sess, ym)
	defer release()
	s.renderPartial(w, r, NewHTMXResponse().
		TriggerTransactionCreated(ym).
		TriggerFormReset().
		TriggerSuccessNotification("Transaction saved"),
		"transactions", "transactions_body", data)
}

// rejectTransaction shows a form error: as a fragment for htmx, or as the
// full page for a plain form post.
func (s *Server) rejectTransaction(w http.ResponseWriter, r *http.Request, sess backend.Session, msg string) {
	if partial(r) {
		formError(w, msg)
		return
	}
	ctx := r.Context()
	ym := ParseMonthParams(r.PostForm, s.now())
	release, data := s.transactionsView(ctx, query.MustFromContext(ctx), sess, ym)
	defer release()
	data.FormError = msg
	s.renderPage(w, r, http.StatusUnprocessableEntity, "transactions", View{
		Title: "Transactions",
		User:  sess.User,
		Nav:   "transactions",
		Data:  data,
	})
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request, sess backend.Session) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	ctx := r.Context()
	qc := query.MustFromContext(ctx)
	uid := sess.User.ID
	id := r.PathValue("id")
	ym := ParseMonthParams(r.PostForm, s.now())

	err := s.backend.DeleteTransaction(ctx, sess.AccessToken, id)
	switch {
	case errors.Is(err, backend.ErrNotFound):
		log.FromContext(ctx).InfoContext(ctx, "Transaction already gone", "transaction_id", id)
	case isUnauthorized(err):
		s.unauthorized(w, r, sess)
		return
	case err != nil:
		writeFailure(w, r, log.OpDelete, err, "Could not delete the transaction. Please try again.")
		return
	default:
		log.FromContext(ctx).InfoContext(ctx, "Transaction deleted",
			log.FieldOperation, log.OpDelete,
			log.FieldMonth, ym.String(),
			"transaction_id", id)
	}

	afterWrite(ctx, qc,
		[]query.Key{{resourceTransactions, uid}, {resourceOverview, uid}, {resourceAccounts, uid}},
		transactionsKey(uid, ym), accountsKey(uid))

	if !partial(r) {
		redirect(w, r, "/transactions?"+url.Values{"month": {ym.String()}}.Encode())
		return
	}
	release, data := s.transactionsView(ctx, qc, sess, ym)
	defer release()
	s.renderPartial(w, r, NewHTMXResponse().
		TriggerTransactionDeleted(ym).
		TriggerSuccessNotification("Transaction deleted"),
		"transactions", "transactions_body", data)
}

func (s *Server) accountsView(ctx context.Context, qc *query.Client, sess backend.Session) (*query.Observer, accountsData) {
	obs, accounts := query.Mount(ctx, qc, accountsKey(sess.User.ID), s.fetchAccounts(sess))
	return obs, accountsData{
		Accounts:   accounts,
		Balance:    balanceOf(accounts.Data),
		Kinds:      core.AccountKinds,
		FormAction: "/accounts",
	}
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request, sess backend.Session) {
	ctx := r.Context()
	obs, data := s.accountsView(ctx, query.MustFromContext(ctx), sess)
	defer obs.Unmount()

	if isUnauthorized(data.Accounts.Err) {
		s.unauthorized(w, r, sess)
		return
	}
	if partial(r) {
		s.renderPartial(w, r, NewHTMXResponse(), "accounts", "accounts_body", data)
		return
	}
	s.renderPage(w, r, http.StatusOK, "accounts", View{
		Title: "Accounts",
		User:  sess.User,
		Nav:   "accounts",
		Data:  data,
	})
}

// createAccount validates and stores the posted account. On failure it
// returns a message for the form, or ok=false with the response written.
func (s *Server) createAccount(w http.ResponseWriter, r *http.Request, sess backend.Session) (msg string, ok bool) {
	ctx := r.Context()
	form := accountFormFrom(r.PostForm)
	var account core.Account
	err := validate.Struct(form)
	if err == nil {
		account, err = form.Account()
	}
	if err != nil {
		return validationMessage(err), true
	}

	created, err := s.backend.CreateAccount(ctx, sess.AccessToken, account)
	if err != nil {
		if isUnauthorized(err) {
			s.unauthorized(w, r, sess)
			return "", false
		}
		writeFailure(w, r, log.OpCreate, err, "Could not create the account. Please try again.")
		return "", false
	}
	log.FromContext(ctx).InfoContext(ctx, "Account created",
		log.FieldOperation, log.OpCreate,
		"account_id", created.ID,
		"kind", string(created.Kind))

	uid := sess.User.ID
	afterWrite(ctx, query.MustFromContext(ctx),
		[]query.Key{{resourceAccounts, uid}},
		accountsKey(uid))
	return "", true
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request, sess backend.Session) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	msg, ok := s.createAccount(w, r, sess)
	if !ok {
		return
	}
	ctx := r.Context()

	if msg != "" && partial(r) {
		formError(w, msg)
		return
	}
	if msg == "" && !partial(r) {
		redirect(w, r, "/accounts")
		return
	}

	obs, data := s.accountsView(ctx, query.MustFromContext(ctx), sess)
	defer obs.Unmount()
	if msg != "" {
		data.FormError = msg
		s.renderPage(w, r, http.StatusUnprocessableEntity, "accounts", View{
			Title: "Accounts",
			User:  sess.User,
			Nav:   "accounts",
			Data:  data,
		})
		return
	}
	s.renderPartial(w, r, NewHTMXResponse().
		TriggerAccountCreated().
		TriggerFormReset().
		TriggerSuccessNotification("Account created"),
		"accounts", "accounts_body", data)
}

func (s *Server) handleOnboardingPage(w http.ResponseWriter, r *http.Request, sess backend.Session) {
	ctx := r.Context()
	obs, data := s.accountsView(ctx, query.MustFromContext(ctx), sess)
	defer obs.Unmount()

	if isUnauthorized(data.Accounts.Err) {
		s.unauthorized(w, r, sess)
		return
	}
	if len(data.Accounts.Data) > 0 {
		redirect(w, r, "/dashboard")
		return
	}
	data.FormAction = "/onboarding"
	s.renderPage(w, r, http.StatusOK, "onboarding", View{
		Title: "Welcome",
		User:  sess.User,
		Data:  data,
	})
}

func (s *Server) handleOnboarding(w http.ResponseWriter, r *http.Request, sess backend.Session) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	msg, ok := s.createAccount(w, r, sess)
	if !ok {
		return
	}
	if msg == "" {
		redirect(w, r, "/dashboard")
		return
	}
	if partial(r) {
		formError(w, msg)
		return
	}
	data := accountsData{Kinds: core.AccountKinds, FormAction: "/onboarding", FormError: msg}
	s.renderPage(w, r, http.StatusUnprocessableEntity, "onboarding", View{
		Title: "Welcome",
		User:  sess.User,
		Data:  data,
	})
}
