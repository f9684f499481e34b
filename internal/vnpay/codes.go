package vnpay

// ResponseSuccess is the response and transaction status of a paid transaction.
const ResponseSuccess = "00"

var reasons = map[string]string{
	"00": "Transaction successful",
	"07": "Amount deducted; transaction flagged as suspicious",
	"09": "Card or account is not registered for internet banking",
	"10": "Card or account verification failed more than 3 times",
	"11": "Payment window expired",
	"12": "Card or account is locked",
	"13": "Wrong one-time password",
	"24": "Customer cancelled the transaction",
	"51": "Insufficient account balance",
	"65": "Daily transaction limit exceeded",
	"75": "Issuing bank is under maintenance",
	"79": "Amount exceeds the allowed limit",
	"99": "Unknown error",
}

// Reason returns the human-readable text for a gateway response code.
// Codes outside the table get the text of 99.
func Reason(code string) string {
	if r, ok := reasons[code]; ok {
		return r
	}
	return reasons["99"]
}
