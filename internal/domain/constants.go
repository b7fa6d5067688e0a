package domain

const (
	RoleUser  = "user"
	RoleAdmin = "admin"

	StatusActive   = "active"
	StatusInactive = "inactive"
	StatusDeleted  = "deleted"

	TxTypeDeposit    = "deposit"
	TxTypeWithdrawal = "withdrawal"
	TxTypeTransfer   = "transfer"

	// Transfer methods carried on user-initiated transfers.
	MethodDirect = "direct"
	MethodWire   = "wire"
	MethodBank   = "bank"
	MethodCard   = "card"
	MethodP2P    = "p2p"

	ThemeLight  = "light"
	ThemeDark   = "dark"
	ThemeSystem = "system"
)

// ReceiptDigits is the length of the human-readable receipt number.
const ReceiptDigits = 7

var (
	roles           = map[string]struct{}{RoleUser: {}, RoleAdmin: {}}
	statuses        = map[string]struct{}{StatusActive: {}, StatusInactive: {}, StatusDeleted: {}}
	txTypes         = map[string]struct{}{TxTypeDeposit: {}, TxTypeWithdrawal: {}, TxTypeTransfer: {}}
	transferMethods = map[string]struct{}{MethodDirect: {}, MethodWire: {}, MethodBank: {}, MethodCard: {}, MethodP2P: {}}
	themes          = map[string]struct{}{ThemeLight: {}, ThemeDark: {}, ThemeSystem: {}}
)

func IsValidRole(v string) bool {
	_, ok := roles[v]
	return ok
}

func IsValidStatus(v string) bool {
	_, ok := statuses[v]
	return ok
}

func IsValidTxType(v string) bool {
	_, ok := txTypes[v]
	return ok
}

func IsValidTransferMethod(v string) bool {
	_, ok := transferMethods[v]
	return ok
}

func IsValidTheme(v string) bool {
	_, ok := themes[v]
	return ok
}

// SignedAmount returns the balance effect of a transaction of the given type.
// Deposits credit the account; withdrawals and transfers debit it.
func SignedAmount(txType string, amount Money) Money {
	if txType == TxTypeDeposit {
		return amount
	}
	return -amount
}
