package models

// PaymentStatus mirrors the Member API's numeric order states.
type PaymentStatus int

const (
	PaymentPending   PaymentStatus = 1
	PaymentCompleted PaymentStatus = 2
	PaymentFailed    PaymentStatus = 3
	PaymentCancelled PaymentStatus = 4
)

func (s PaymentStatus) String() string {
	switch s {
	case PaymentPending:
		return "pending"
	case PaymentCompleted:
		return "completed"
	case PaymentFailed:
		return "failed"
	case PaymentCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether no further transition can occur.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentCompleted || s == PaymentFailed || s == PaymentCancelled
}

// PaymentProcessor selects the external payment provider.
type PaymentProcessor int

const (
	ProcessorPayPal PaymentProcessor = 1
	ProcessorStripe PaymentProcessor = 2
)

func (p PaymentProcessor) Valid() bool {
	return p == ProcessorPayPal || p == ProcessorStripe
}

func (p PaymentProcessor) String() string {
	switch p {
	case ProcessorPayPal:
		return "paypal"
	case ProcessorStripe:
		return "stripe"
	default:
		return "unknown"
	}
}
