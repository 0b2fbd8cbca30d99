package entitlements

// Outcome is the result of a purchase call. The set of variants is closed:
// Success, Pending, UserCancelled and Unknown.
type Outcome interface {
	outcome()
	// Name is the wire name of the variant.
	Name() string
}

// Success carries the transaction produced by a completed purchase.
type Success struct {
	Transaction TransactionRecord
}

// Pending means the purchase needs further action from the customer
// (e.g. parental approval). A later transaction arrives on the update stream.
type Pending struct{}

// UserCancelled means the customer backed out. Not an error.
type UserCancelled struct{}

// Unknown covers unrecognized results and failed purchase calls.
type Unknown struct {
	Err error
}

func (Success) outcome()       {}
func (Pending) outcome()       {}
func (UserCancelled) outcome() {}
func (Unknown) outcome()       {}

func (Success) Name() string       { return "success" }
func (Pending) Name() string       { return "pending" }
func (UserCancelled) Name() string { return "user_cancelled" }
func (Unknown) Name() string       { return "unknown" }

// ParseOutcome maps a wire outcome name back to its variant. Success needs
// its transaction; anything unrecognized is Unknown.
func ParseOutcome(name string, tx *TransactionRecord) Outcome {
	switch name {
	case "success":
		if tx == nil {
			return Unknown{}
		}
		return Success{Transaction: *tx}
	case "pending":
		return Pending{}
	case "user_cancelled":
		return UserCancelled{}
	default:
		return Unknown{}
	}
}
