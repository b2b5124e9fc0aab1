package enum

// ── Group A: State machines (CHECK constrained in DB) ──

const (
	OrderStatusPending   = "pending"
	OrderStatusPreparing = "preparing"
	OrderStatusReady     = "ready"
	OrderStatusServed    = "served"
	OrderStatusCancelled = "cancelled"
)

const (
	PaymentStatusPending = "pending"
	PaymentStatusPaid    = "paid"
)

// ── Group B: Configurable labels ──

const (
	PaymentModeCash   = "cash"
	PaymentModeOnline = "online"
)

const (
	DirectionAdd      = "add"
	DirectionSubtract = "subtract"
)

const (
	UserRoleAdmin   = "admin"
	UserRoleManager = "manager"
	UserRoleStaff   = "staff"
	UserRoleKitchen = "kitchen"
)
