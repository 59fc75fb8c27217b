package domain

// Role is the part an address plays in transfer classification.
type Role int

const (
	RoleOther Role = iota
	RoleIssuer
	RoleTreasury
	RoleZero
)

// Category is the counterparty bucket a transfer's volume is attributed to.
type Category string

const (
	CategoryCircToUser Category = "circ_to_user"
	CategoryUserToUser Category = "user_to_user"
	CategoryUserToCirc Category = "user_to_circ"
	CategoryCircToTres Category = "circ_to_tres"
	CategoryUserToTres Category = "user_to_tres"
)

// Categorize maps sender and receiver roles to a volume category.
// Returns false for transfers that move balances but carry no volume:
// anything touching the zero address, anything leaving the treasury,
// and issuer->issuer.
func Categorize(from, to Role) (Category, bool) {
	if from == RoleZero || to == RoleZero {
		return "", false
	}

	switch {
	case from == RoleIssuer && to == RoleOther:
		return CategoryCircToUser, true
	case from == RoleOther && to == RoleOther:
		return CategoryUserToUser, true
	case from == RoleOther && to == RoleIssuer:
		return CategoryUserToCirc, true
	case from == RoleIssuer && to == RoleTreasury:
		return CategoryCircToTres, true
	case from == RoleOther && to == RoleTreasury:
		return CategoryUserToTres, true
	}
	return "", false
}

// Privileged reports whether the role is excluded from holder and wallet counts.
func (r Role) Privileged() bool {
	return r == RoleIssuer || r == RoleTreasury
}
