package models

// Permission constants
const (
	// Offer permissions
	PermissionOfferRead  = "offer:read"
	PermissionOfferWrite = "offer:write"

	// Escrow permissions
	PermissionEscrowRead  = "escrow:read"
	PermissionEscrowWrite = "escrow:write"

	// Payment permissions
	PermissionPaymentWrite = "payment:write"

	// Admin permissions
	PermissionReadAdmin  = "admin:read"
	PermissionWriteAdmin = "admin:write"
)

// GetDefaultPermissions returns default permissions based on role
func GetDefaultPermissions(role string) []string {
	switch role {
	case RoleAdmin:
		return []string{
			PermissionReadAdmin,
			PermissionWriteAdmin,
			PermissionOfferRead,
			PermissionEscrowRead,
			PermissionEscrowWrite,
		}
	case RoleInvestor:
		return []string{
			PermissionOfferRead,
			PermissionOfferWrite,
			PermissionEscrowRead,
			PermissionEscrowWrite,
			PermissionPaymentWrite,
		}
	case RoleStartup:
		return []string{
			PermissionOfferRead,
			PermissionOfferWrite,
			PermissionEscrowRead,
			PermissionEscrowWrite,
		}
	default:
		return []string{}
	}
}
