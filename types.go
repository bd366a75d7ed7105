package authkit

// Role identifies one of the platform's user roles. An account may hold
// several role tags at once (e.g. both parent and teacher).
type Role string

const (
	RoleStudent       Role = "student"
	RoleParent        Role = "parent"
	RoleTeacher       Role = "teacher"
	RoleSchoolAdmin   Role = "school_admin"
	RoleSocialWorker  Role = "social_worker"
	RolePlatformAdmin Role = "platform_admin"
)

// State is the session lifecycle phase. It is derived from the held tokens
// and the in-flight refresh, never tracked as an independent flag.
type State int

const (
	// StateLoading: persisted tokens have not been read yet. Callers must
	// not redirect while in this state.
	StateLoading State = iota
	StateAnonymous
	StateAuthenticated
	StateRefreshing
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticated:
		return "authenticated"
	case StateRefreshing:
		return "refreshing"
	default:
		return "unknown"
	}
}

// TokenPair holds the bearer credentials for one session. The refresh token
// is rotated on every use: exchanging it invalidates it.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// User is the cached read-only copy of the remote user record, scoped to
// the session lifetime.
type User struct {
	ID          string
	Email       string
	PhoneNumber string
	FirstName   string
	LastName    string
	AvatarURL   string
	Roles       []Role
}

// Profile is a role-specific record linked to a user. A profile must exist
// before its role can become the active role (except roles that need no
// profile step, see the roles package).
type Profile struct {
	Role Role
	ID   string
}

// Account bundles the user record with the role profiles that exist for it,
// as returned by GET /auth/me.
type Account struct {
	User     *User
	Profiles []Profile
}

// OTPPurpose states why a one-time code is being requested.
type OTPPurpose string

const (
	OTPPurposeLogin  OTPPurpose = "login"
	OTPPurposeVerify OTPPurpose = "verify"
)

// Credentials carries either an email/password pair or a phone/OTP pair.
type Credentials struct {
	Email       string
	Password    string
	PhoneNumber string
	OTP         string
}

// LoginResult is what the backend returns on a successful login.
type LoginResult struct {
	Tokens TokenPair
	User   *User
}

// Storage keys used with a TokenStore. Nothing besides these three values
// is ever persisted; user and profile data are refetched each session.
const (
	StorageKeyAccessToken  = "auth.access_token"
	StorageKeyRefreshToken = "auth.refresh_token"
	StorageKeyActiveRole   = "auth.active_role"
)
