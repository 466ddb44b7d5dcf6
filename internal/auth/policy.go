package auth

// Role is the caller identity class resolved by the auth gateway in front
// of these services. The services trust the forwarded role header; token
// verification itself is handled upstream.
type Role string

const (
	RoleCustomer   Role = "customer"
	RoleRestaurant Role = "restaurant_admin"
	RoleDelivery   Role = "delivery_personnel"
	RoleAdmin      Role = "admin"
	RoleInternal   Role = "internal_service"
)

type Action string

const (
	ActionCheckout     Action = "checkout"
	ActionViewOrder    Action = "view_order"
	ActionConfirm      Action = "confirm_order"
	ActionPrepare      Action = "prepare_order"
	ActionReady        Action = "ready_order"
	ActionDispatch     Action = "dispatch_order"
	ActionDeliver      Action = "deliver_order"
	ActionCancel       Action = "cancel_order"
	ActionAssignAgent  Action = "assign_agent"
	ActionReleaseAgent Action = "release_agent"
	ActionRefund       Action = "refund_payment"
)

var allowed = map[Action]map[Role]bool{
	ActionCheckout:  {RoleCustomer: true},
	ActionViewOrder: {RoleCustomer: true, RoleRestaurant: true, RoleDelivery: true, RoleAdmin: true, RoleInternal: true},

	ActionConfirm:  {RoleInternal: true},
	ActionPrepare:  {RoleRestaurant: true, RoleAdmin: true},
	ActionReady:    {RoleRestaurant: true, RoleAdmin: true},
	ActionDispatch: {RoleInternal: true},
	ActionDeliver:  {RoleDelivery: true, RoleAdmin: true},
	ActionCancel:   {RoleCustomer: true, RoleAdmin: true, RoleInternal: true},

	ActionAssignAgent:  {RoleAdmin: true, RoleInternal: true},
	ActionReleaseAgent: {RoleAdmin: true, RoleInternal: true},
	ActionRefund:       {RoleAdmin: true, RoleInternal: true},
}

// Ownership reports whether the caller owns the resource in question.
// Pass nil when ownership is not a factor for the action.
type Ownership func() bool

// Allow is the single policy gate: role must be permitted for the action,
// and customers additionally must own the resource they touch.
func Allow(role Role, action Action, owns Ownership) bool {
	if !allowed[action][role] {
		return false
	}
	if role == RoleCustomer && owns != nil && !owns() {
		return false
	}
	return true
}

func Valid(r Role) bool {
	switch r {
	case RoleCustomer, RoleRestaurant, RoleDelivery, RoleAdmin, RoleInternal:
		return true
	}
	return false
}
