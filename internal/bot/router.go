// Package bot turns chat messages into ledger and query operations. The
// router is transport-agnostic so command parsing can be tested without a
// live chat connection.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"kharcha/internal/core"
	"kharcha/internal/ledger"
	"kharcha/internal/log"
	"kharcha/internal/query"
)

// Ledger is the slice of the ledger engine the router drives.
type Ledger interface {
	EnsureUser(ctx context.Context, id int64, name string)
	Credit(ctx context.Context, id int64, amount core.Money) (*ledger.Result, error)
	Debit(ctx context.Context, id int64, amount core.Money, categoryName string) (*ledger.Result, error)
	SetBalance(ctx context.Context, id int64, amount core.Money) (*ledger.Result, error)
	Undo(ctx context.Context, id int64) (*ledger.Result, error)
}

// Query is the slice of the query engine the router drives.
type Query interface {
	History(ctx context.Context, userID int64, periodToken string) (*query.HistoryResult, error)
	CategoryBreakdown(ctx context.Context, userID int64, periodToken string) (*query.BreakdownResult, error)
}

// Response is what gets sent back to the chat.
type Response struct {
	Success   bool
	Message   string
	ParseMode string
}

// Router maps slash commands onto engine calls.
type Router struct {
	ledger Ledger
	query  Query
	logger *log.Logger
}

func NewRouter(l Ledger, q Query, logger *log.Logger) *Router {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Router{
		ledger: l,
		query:  q,
		logger: logger.WithComponent(log.ComponentBot),
	}
}

// Handle processes one incoming message. Every message, command or not,
// first makes sure the sender exists so the wallet row is ready before any
// mutation runs.
func (r *Router) Handle(ctx context.Context, userID int64, name, text string) Response {
	r.ledger.EnsureUser(ctx, userID, name)

	text = strings.TrimSpace(text)
	if text == "" || !strings.HasPrefix(text, "/") {
		return Response{Message: msgInvalidCommand}
	}

	parts := strings.Fields(text)
	command, args := parts[0], parts[1:]

	r.logger.DebugContext(ctx, "routing command",
		log.FieldUserID, userID,
		log.FieldCommand, command,
	)

	switch command {
	case "/d":
		return r.handleDebit(ctx, userID, args)
	case "/c":
		return r.handleCredit(ctx, userID, args)
	case "/set":
		return r.handleSetWallet(ctx, userID, args)
	case "/past":
		return r.handleHistory(ctx, userID, args)
	case "/br":
		return r.handleBreakdown(ctx, userID, args)
	case "/undo":
		return r.handleUndo(ctx, userID)
	case "/start", "/help":
		return Response{Success: true, Message: helpText()}
	default:
		return Response{Message: msgInvalidCommand}
	}
}

func (r *Router) handleDebit(ctx context.Context, userID int64, args []string) Response {
	if len(args) < 2 {
		return Response{Message: msgDebitUsage}
	}

	amount, err := core.ParseAmount(args[0])
	if err != nil {
		return Response{Message: msgInvalidAmount}
	}
	category := strings.Join(args[1:], " ")

	result, err := r.ledger.Debit(ctx, userID, amount, category)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrInsufficientBalance):
			return Response{Message: msgInsufficientBalance}
		case errors.Is(err, core.ErrInvalidAmount):
			return Response{Message: msgInvalidAmount}
		case errors.Is(err, core.ErrEmptyCategory):
			return Response{Message: msgDebitUsage}
		}
		r.logger.ErrorContext(ctx, "debit failed", log.FieldUserID, userID, log.FieldError, err)
		return Response{Message: msgInternalError}
	}

	return Response{
		Success: true,
		Message: msgDebitAdded(amount, result.User.Wallet),
	}
}

func (r *Router) handleCredit(ctx context.Context, userID int64, args []string) Response {
	if len(args) < 1 {
		return Response{Message: msgCreditUsage}
	}

	amount, err := core.ParseAmount(args[0])
	if err != nil {
		return Response{Message: msgInvalidAmount}
	}

	result, err := r.ledger.Credit(ctx, userID, amount)
	if err != nil {
		if errors.Is(err, core.ErrInvalidAmount) {
			return Response{Message: msgInvalidAmount}
		}
		r.logger.ErrorContext(ctx, "credit failed", log.FieldUserID, userID, log.FieldError, err)
		return Response{Message: msgInternalError}
	}

	return Response{
		Success: true,
		Message: msgCreditAdded(amount, result.User.Wallet),
	}
}

func (r *Router) handleSetWallet(ctx context.Context, userID int64, args []string) Response {
	if len(args) < 1 {
		return Response{Message: msgSetUsage}
	}

	amount, err := core.ParseAmount(args[0])
	if err != nil {
		return Response{Message: msgInvalidAmount}
	}

	result, err := r.ledger.SetBalance(ctx, userID, amount)
	if err != nil {
		if errors.Is(err, core.ErrInvalidAmount) {
			return Response{Message: msgInvalidAmount}
		}
		r.logger.ErrorContext(ctx, "set balance failed", log.FieldUserID, userID, log.FieldError, err)
		return Response{Message: msgInternalError}
	}

	return Response{
		Success: true,
		Message: msgWalletSet(result.User.Wallet),
	}
}

func (r *Router) handleHistory(ctx context.Context, userID int64, args []string) Response {
	token := periodToken(args)

	result, err := r.query.History(ctx, userID, token)
	if err != nil {
		r.logger.ErrorContext(ctx, "history query failed", log.FieldUserID, userID, log.FieldError, err)
		return Response{Message: msgInternalError}
	}
	if len(result.Transactions) == 0 {
		return Response{Message: msgNoTransactions}
	}

	return Response{
		Success:   true,
		Message:   formatHistory(token, result),
		ParseMode: "HTML",
	}
}

func (r *Router) handleBreakdown(ctx context.Context, userID int64, args []string) Response {
	token := periodToken(args)

	result, err := r.query.CategoryBreakdown(ctx, userID, token)
	if err != nil {
		r.logger.ErrorContext(ctx, "breakdown query failed", log.FieldUserID, userID, log.FieldError, err)
		return Response{Message: msgInternalError}
	}
	if len(result.Rows) == 0 {
		return Response{Message: msgNoTransactions}
	}

	return Response{
		Success: true,
		Message: formatBreakdown(token, result),
	}
}

func (r *Router) handleUndo(ctx context.Context, userID int64) Response {
	_, err := r.ledger.Undo(ctx, userID)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrNothingToUndo):
			return Response{Message: msgNothingToUndo}
		case errors.Is(err, core.ErrSetNotUndoable):
			return Response{Message: msgSetNotUndoable}
		}
		r.logger.ErrorContext(ctx, "undo failed", log.FieldUserID, userID, log.FieldError, err)
		return Response{Message: msgInternalError}
	}

	return Response{Success: true, Message: msgUndoDone}
}

// periodToken picks the first argument as the period, defaulting to a full
// year when none is given. Unknown tokens pass through unchanged and the
// query engine treats them as a year too.
func periodToken(args []string) string {
	if len(args) == 0 {
		return "1yr"
	}
	return args[0]
}

func formatHistory(token string, result *query.HistoryResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Txn History (%s)\n%s\n", token, separator)

	for i, txn := range result.Transactions {
		if i > 0 {
			b.WriteByte('\n')
		}
		icon := "💰"
		if txn.Type == core.Debit {
			icon = "💸"
		}
		fmt.Fprintf(&b, "%s %s | %s ₹%s", icon, txn.Date.Format("02/01/2006"), txn.Type, txn.Amount)
		if txn.CategoryName != "" {
			fmt.Fprintf(&b, " | %s", txn.CategoryName)
		}
	}

	fmt.Fprintf(&b, "\n%s\n📈 Net: ₹%s (%d transactions)",
		separator, result.Net, len(result.Transactions))
	return b.String()
}

func formatBreakdown(token string, result *query.BreakdownResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Category Breakdown (%s)\n%s\n", token, separator)

	for i, row := range result.Rows {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "📊 %s → ₹%s", row.CategoryName, row.Total)
	}

	fmt.Fprintf(&b, "\n%s\n💸 Total Spent: ₹%s (%d debit transactions)",
		separator, result.TotalSpent, result.TotalCount)
	return b.String()
}
