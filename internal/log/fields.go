package log

// Common field names for structured logging.
const (
	FieldComponent   = "component"
	FieldOperation   = "operation"
	FieldError       = "error"
	FieldSuccess     = "success"
	FieldUserID      = "user_id"
	FieldUserName    = "user_name"
	FieldTxnID       = "txn_id"
	FieldTxnType     = "txn_type"
	FieldAmountPaise = "amount_paise"
	FieldBalance     = "balance_paise"
	FieldCategory    = "category"
	FieldCategoryID  = "category_id"
	FieldCommand     = "command"
	FieldPeriodDays  = "period_days"
	FieldQueue       = "queue"
	FieldExchange    = "exchange"
)

// Components defines standard component names.
const (
	ComponentApp     = "app"
	ComponentBot     = "bot"
	ComponentLedger  = "ledger"
	ComponentQuery   = "query"
	ComponentCache   = "cache"
	ComponentStorage = "storage"
	ComponentAMQP    = "amqp"
	ComponentWorker  = "worker"
)

// Operations defines standard operation names.
const (
	OpEnsureUser = "ensure_user"
	OpCredit     = "credit"
	OpDebit      = "debit"
	OpSetWallet  = "set_wallet"
	OpUndo       = "undo"
	OpHistory    = "history"
	OpBreakdown  = "breakdown"
	OpPublish    = "publish"
	OpConsume    = "consume"
	OpStartup    = "startup"
	OpShutdown   = "shutdown"
)
