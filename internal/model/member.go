package model

// Membership statuses.
const (
	MembershipActive    = "active"
	MembershipLapsed    = "lapsed"
	MembershipSuspended = "suspended"
)

type Member struct {
	ID                        int
	Name                      string
	Email                     string
	Role                      string // member / lirf / admin
	MembershipStatus          string
	Affiliated                bool
	EmailNotificationsEnabled bool
}

// Active reports whether the member currently counts as a club member.
func (m Member) Active() bool {
	return m.MembershipStatus == MembershipActive
}

// Emailable reports whether the ad-hoc notification path may email this
// member. The digest path deliberately does not consult this.
func (m Member) Emailable() bool {
	return m.Active() && m.EmailNotificationsEnabled
}
