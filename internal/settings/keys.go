package settings

// Setting keys understood by the service.
const (
	SiteName     = "site_name"
	SupportEmail = "support_email"
	AdminEmail   = "admin_email"
	LogoURL      = "logo_url"
	FaviconURL   = "favicon_url"

	// InternalAPIDomain and InternalAPIEndpoint address the real trend feed.
	// They are never shown to API consumers.
	InternalAPIDomain   = "internal_api_domain"
	InternalAPIEndpoint = "internal_api_endpoint"

	// UserAPIDomain and UserAPIEndpoint are what the documentation shows.
	UserAPIDomain   = "user_api_domain"
	UserAPIEndpoint = "user_api_endpoint"

	TelegramBotToken = "telegram_bot_token"
	AdminChatID      = "admin_chat_id"
	OwnerChatID      = "owner_chat_id"

	MaintenanceMode    = "maintenance_mode"
	MaintenanceMessage = "maintenance_message"

	PaymentID = "payment_id"
)

// Defaults seeds missing rows at startup and backs reads of absent rows.
var Defaults = map[string]string{
	SiteName:            "Trend Keys",
	SupportEmail:        "",
	AdminEmail:          "",
	LogoURL:             "",
	FaviconURL:          "",
	InternalAPIDomain:   "",
	InternalAPIEndpoint: "/api/trend",
	UserAPIDomain:       "http://localhost:8080",
	UserAPIEndpoint:     "/api/trend",
	TelegramBotToken:    "",
	AdminChatID:         "",
	OwnerChatID:         "",
	MaintenanceMode:     "false",
	MaintenanceMessage:  "The service is under maintenance. Please try again later.",
	PaymentID:           "",
}

var booleanKeys = map[string]bool{
	MaintenanceMode: true,
}

// secretKeys are masked in the public settings view.
var secretKeys = map[string]bool{
	TelegramBotToken:    true,
	InternalAPIDomain:   true,
	InternalAPIEndpoint: true,
}

// Known reports whether key is a recognised setting.
func Known(key string) bool {
	_, ok := Defaults[key]
	return ok
}

// IsSecret reports whether key is masked in public views.
func IsSecret(key string) bool {
	return secretKeys[key]
}
