package models

// Application routes. Actions redirect to and revalidate these paths.
const (
	RouteHome          = "/"
	RouteDashboard     = "/dashboard"
	RouteBeneficiaries = "/beneficiaries"
	RouteStories       = "/stories"
	RouteReports       = "/reports"
	RouteSettings      = "/settings"
	RouteOrganization  = "/organization"

	RouteLogin         = "/auth/login"
	RouteSignup        = "/auth/signup"
	RouteResetPassword = "/auth/reset-password"
	RouteAuthCallback  = "/auth/callback"
)

// Photo upload limits.
const MaxPhotoSize = 5 * 1024 * 1024

var AllowedPhotoTypes = []string{"image/jpeg", "image/jpg", "image/png", "image/webp"}

// Pagination
const DefaultPageSize = 10

var PageSizes = []int{10, 25, 50, 100}

// MinPasswordLength is the shortest password accepted at signup and password change.
const MinPasswordLength = 6
