package tenants

// Application is one customer application using the shared widget.
type Application struct {
	ID            string // internal uuid, keys branding and roles
	ApplicationID string // external id carried in the app_id query parameter
	Name          string
}

// Branding is the stored visual customization of an application. Empty
// fields are filled with defaults by the render config loader.
type Branding struct {
	PrimaryColor    string `json:"primary_color"`
	SecondaryColor  string `json:"secondary_color"`
	AccentColor     string `json:"accent_color"`
	BackgroundColor string `json:"background_color"`
	TextColor       string `json:"text_color"`
	FontFamily      string `json:"font_family"`
	LogoURL         string `json:"logo_url"`
	BorderRadius    int    `json:"border_radius"`
	ButtonStyle     string `json:"button_style"`
}

// Role is an application role record.
type Role struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
	IsDefault   bool   `json:"is_default"`
	// AvailableForRegistration is nil when the record does not carry the
	// column at all (older schemas).
	AvailableForRegistration *bool `json:"available_for_registration"`
}
