package models

type UserRole string

const (
	UserRoleAdmin    UserRole = "admin"
	UserRoleManager  UserRole = "manager"
	UserRoleEmployee UserRole = "employee"
)

// ValidRole reports whether the value is one of the three role tags a
// principal may carry. Every user has exactly one role at any time.
func ValidRole(role UserRole) bool {
	switch role {
	case UserRoleAdmin, UserRoleManager, UserRoleEmployee:
		return true
	default:
		return false
	}
}

// PrivilegedRole reports whether self-registration with this role requires
// the daily passcode.
func PrivilegedRole(role UserRole) bool {
	return role == UserRoleAdmin || role == UserRoleManager
}

type User struct {
	BaseModel
	Email        string   `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	PasswordHash string   `json:"-" gorm:"type:text;not null"`
	FirstName    string   `json:"firstName" gorm:"type:varchar(100);not null"`
	LastName     string   `json:"lastName" gorm:"type:varchar(100);not null"`
	Role         UserRole `json:"role" gorm:"type:varchar(20);not null;default:'employee'"`

	Profile *Profile     `json:"profile,omitempty" gorm:"foreignKey:UserID"`
	Files   []File       `json:"-" gorm:"foreignKey:UploaderID"`
	Grants  []FileAccess `json:"-" gorm:"foreignKey:UserID"`
}
