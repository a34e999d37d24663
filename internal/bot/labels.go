package bot

import (
	"fmt"
	"strings"

	"kharcha/internal/core"
)

const separator = "=============================="

const (
	msgInvalidCommand = "Invalid command"
	msgInvalidAmount  = "❌ Please provide a valid positive amount"
	msgInternalError  = "⚠️ Something went wrong. Please try again."

	msgDebitUsage  = "❌ Please provide amount: /d <amount> <category>"
	msgCreditUsage = "❌ Please provide amount: /c <amount>"
	msgSetUsage    = "❌ Please provide amount: /set <amount>"

	msgInsufficientBalance = "❌ Insufficient balance for this debit"
	msgNoTransactions      = "No transactions found for the specified period."
	msgNothingToUndo       = "❌ No transaction found to undo."
	msgSetNotUndoable      = "❌ Balance adjustments cannot be undone."
	msgUndoDone            = "✅ Latest transaction has been removed"
)

var helpEntries = []string{
	"/d <amount> <category> - Add a debit transaction with amount and category",
	"/c <amount> - Add a credit transaction to increase wallet balance",
	"/set <amount> - Set your wallet balance to a specific amount",
	"/past [1d|1w|1m|1yr] - View your transaction history for a period",
	"/br [1d|1w|1m|1yr] - Show a category-wise breakdown of your expenses",
	"/undo - Remove your most recent transaction",
}

func helpText() string {
	return fmt.Sprintf("🤖 Expense Tracker Bot Commands\n%s\n%s",
		separator, strings.Join(helpEntries, "\n\n"))
}

func msgDebitAdded(amount, balance core.Money) string {
	return fmt.Sprintf("💸 Debit added: ₹%s\n💳 Current balance: ₹%s", amount, balance)
}

func msgCreditAdded(amount, balance core.Money) string {
	return fmt.Sprintf("💰 Credit added: ₹%s\n💳 Current balance: ₹%s", amount, balance)
}

func msgWalletSet(balance core.Money) string {
	return fmt.Sprintf("✅ Wallet balance set to ₹%s", balance)
}
