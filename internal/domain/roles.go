package domain

import "strings"

type Role string

const (
	RoleBrand      Role = "brand"
	RoleInfluencer Role = "influencer"
	RoleAdmin      Role = "admin"
	// RoleService is another platform service. It may read any account and
	// change none.
	RoleService Role = "service"
)

func NormalizeRole(raw string) (Role, bool) {
	switch r := Role(strings.ToLower(strings.TrimSpace(raw))); r {
	case RoleBrand, RoleInfluencer, RoleAdmin, RoleService:
		return r, true
	default:
		return "", false
	}
}

// Principal is the authenticated caller as asserted by the identity provider.
type Principal struct {
	UserID string
	Role   Role
}

func (p Principal) IsArbiter() bool { return p.Role == RoleAdmin }

func (p Principal) IsPayer(account EscrowAccount) bool {
	return p.Role != RoleService && p.UserID != "" && p.UserID == account.PayerID
}

func (p Principal) IsPayee(account EscrowAccount) bool {
	return p.Role != RoleService && p.UserID != "" && p.UserID == account.PayeeID
}

func (p Principal) IsParticipant(account EscrowAccount) bool {
	return p.IsPayer(account) || p.IsPayee(account)
}

func (p Principal) CanView(account EscrowAccount) bool {
	return p.IsArbiter() || p.Role == RoleService || p.IsParticipant(account)
}

func (p Principal) CanCreateAccount(payerID string) bool {
	switch p.Role {
	case RoleAdmin:
		return true
	case RoleBrand:
		return p.UserID == payerID
	default:
		return false
	}
}

func (p Principal) CanStartWork(account EscrowAccount) bool {
	return p.IsPayee(account) || p.IsArbiter()
}

func (p Principal) CanSubmit(account EscrowAccount) bool {
	return p.IsPayee(account)
}

func (p Principal) CanApprove(account EscrowAccount) bool {
	return p.IsPayer(account) || p.IsArbiter()
}

func (p Principal) CanDispute(account EscrowAccount) bool {
	return p.IsArbiter() || p.IsParticipant(account)
}

// CanResolve lets the arbiter choose any outcome; the payer may only concede
// the disputed amount to the payee.
func (p Principal) CanResolve(account EscrowAccount, outcome Outcome) bool {
	if p.IsArbiter() {
		return true
	}
	return p.IsPayer(account) && outcome.Kind == OutcomeReleased
}

func (p Principal) CanCancel(account EscrowAccount) bool {
	return p.IsPayer(account) || p.IsArbiter()
}
