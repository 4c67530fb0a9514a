package providers

import (
	"strings"

	"golang.org/x/oauth2"
)

// Kind groups providers for display.
type Kind string

const (
	KindCRM       Kind = "crm"
	KindCommerce  Kind = "ecommerce"
	KindMarketing Kind = "marketing"
	KindCalendar  Kind = "calendar"
	KindMessaging Kind = "messaging"
	KindSocial    Kind = "social"
)

// Definition is the static description of one provider's OAuth endpoints and API quirks.
type Definition struct {
	ID   string
	Name string
	Kind Kind

	// AuthURL and TokenURL may contain {shop}, substituted from the shop parameter.
	AuthURL        string
	TokenURL       string
	Scopes         []string
	ScopeSeparator string
	AuthStyle      oauth2.AuthStyle
	AuthParams     map[string]string
	RequiredParams []string
	// TokenExtras are token response fields kept with the credentials. Dotted paths address nested objects.
	TokenExtras []string

	// APIBaseURL is used unless BaseFrom names a per-connection credential field.
	APIBaseURL  string
	BaseFrom    string
	BasePath    string
	TokenHeader string
	TokenPrefix string
	// OKField names a boolean in every response body that must be true.
	OKField string

	PingPath string
	SyncPath string
	ItemsKey string

	IdentifyPath   string
	AccountField   string
	IdentityExtras map[string]string
	// AccountFromToken derives the remote account id from token extras when no identify call exists.
	AccountFromToken func(extras map[string]string) string

	Calendar bool
}

// Credential fields a definition can take its API base from.
const (
	baseFromInstanceURL = "instance_url"
	baseFromShop        = "shop"
	baseFromAPIDomain   = "api_domain"
	baseFromAPIEndpoint = "api_endpoint"
)

func builtinDefinitions() []Definition {
	return []Definition{
		{
			ID:           "google",
			Name:         "Google Calendar",
			Kind:         KindCalendar,
			AuthURL:      "https://accounts.google.com/o/oauth2/v2/auth",
			TokenURL:     "https://oauth2.googleapis.com/token",
			Scopes:       []string{"https://www.googleapis.com/auth/calendar.events", "https://www.googleapis.com/auth/calendar.readonly"},
			AuthStyle:    oauth2.AuthStyleInParams,
			AuthParams:   map[string]string{"access_type": "offline", "prompt": "consent"},
			APIBaseURL:   "https://www.googleapis.com/calendar/v3",
			PingPath:     "/users/me/calendarList?maxResults=1",
			SyncPath:     "/calendars/primary/events?maxResults=50&singleEvents=true",
			ItemsKey:     "items",
			IdentifyPath: "/calendars/primary",
			AccountField: "id",
			Calendar:     true,
		},
		{
			ID:           "hubspot",
			Name:         "HubSpot",
			Kind:         KindCRM,
			AuthURL:      "https://app.hubspot.com/oauth/authorize",
			TokenURL:     "https://api.hubapi.com/oauth/v1/token",
			Scopes:       []string{"oauth", "crm.objects.contacts.read", "crm.objects.companies.read"},
			AuthStyle:    oauth2.AuthStyleInParams,
			APIBaseURL:   "https://api.hubapi.com",
			PingPath:     "/crm/v3/objects/contacts?limit=1",
			SyncPath:     "/crm/v3/objects/contacts?limit=100",
			ItemsKey:     "results",
			IdentifyPath: "/oauth/v1/access-tokens/{token}",
			AccountField: "hub_id",
		},
		{
			ID:           "linkedin",
			Name:         "LinkedIn",
			Kind:         KindSocial,
			AuthURL:      "https://www.linkedin.com/oauth/v2/authorization",
			TokenURL:     "https://www.linkedin.com/oauth/v2/accessToken",
			Scopes:       []string{"openid", "profile", "email"},
			AuthStyle:    oauth2.AuthStyleInParams,
			APIBaseURL:   "https://api.linkedin.com/v2",
			PingPath:     "/userinfo",
			SyncPath:     "/userinfo",
			IdentifyPath: "/userinfo",
			AccountField: "sub",
		},
		{
			ID:             "mailchimp",
			Name:           "Mailchimp",
			Kind:           KindMarketing,
			AuthURL:        "https://login.mailchimp.com/oauth2/authorize",
			TokenURL:       "https://login.mailchimp.com/oauth2/token",
			AuthStyle:      oauth2.AuthStyleInParams,
			APIBaseURL:     "https://login.mailchimp.com/oauth2",
			BaseFrom:       baseFromAPIEndpoint,
			BasePath:       "/3.0",
			TokenPrefix:    "OAuth ",
			PingPath:       "/ping",
			SyncPath:       "/lists?count=100",
			ItemsKey:       "lists",
			IdentifyPath:   "https://login.mailchimp.com/oauth2/metadata",
			AccountField:   "user_id",
			IdentityExtras: map[string]string{"api_endpoint": "api_endpoint", "dc": "dc"},
		},
		{
			ID:           "outlook",
			Name:         "Outlook Calendar",
			Kind:         KindCalendar,
			AuthURL:      "https://login.microsoftonline.com/common/oauth2/v2.0/authorize",
			TokenURL:     "https://login.microsoftonline.com/common/oauth2/v2.0/token",
			Scopes:       []string{"offline_access", "User.Read", "Calendars.ReadWrite"},
			AuthStyle:    oauth2.AuthStyleInParams,
			APIBaseURL:   "https://graph.microsoft.com/v1.0",
			PingPath:     "/me",
			SyncPath:     "/me/events?$top=50",
			ItemsKey:     "value",
			IdentifyPath: "/me",
			AccountField: "id",
			Calendar:     true,
		},
		{
			ID:           "pipedrive",
			Name:         "Pipedrive",
			Kind:         KindCRM,
			AuthURL:      "https://oauth.pipedrive.com/oauth/authorize",
			TokenURL:     "https://oauth.pipedrive.com/oauth/token",
			AuthStyle:    oauth2.AuthStyleInHeader,
			TokenExtras:  []string{"api_domain"},
			APIBaseURL:   "https://api.pipedrive.com",
			BaseFrom:     baseFromAPIDomain,
			BasePath:     "/api/v1",
			OKField:      "success",
			PingPath:     "/users/me",
			SyncPath:     "/deals?limit=100",
			ItemsKey:     "data",
			IdentifyPath: "/users/me",
			AccountField: "data.company_id",
		},
		{
			ID:               "salesforce",
			Name:             "Salesforce",
			Kind:             KindCRM,
			AuthURL:          "https://login.salesforce.com/services/oauth2/authorize",
			TokenURL:         "https://login.salesforce.com/services/oauth2/token",
			Scopes:           []string{"api", "refresh_token"},
			AuthStyle:        oauth2.AuthStyleInParams,
			TokenExtras:      []string{"instance_url", "id"},
			BaseFrom:         baseFromInstanceURL,
			BasePath:         "/services/data/v59.0",
			PingPath:         "/limits",
			SyncPath:         "/query?q=SELECT+Id+FROM+Account+LIMIT+200",
			ItemsKey:         "records",
			AccountFromToken: salesforceOrgID,
		},
		{
			ID:               "shopify",
			Name:             "Shopify",
			Kind:             KindCommerce,
			AuthURL:          "https://{shop}/admin/oauth/authorize",
			TokenURL:         "https://{shop}/admin/oauth/access_token",
			Scopes:           []string{"read_orders", "read_customers", "read_products"},
			ScopeSeparator:   ",",
			AuthStyle:        oauth2.AuthStyleInParams,
			RequiredParams:   []string{"shop"},
			BaseFrom:         baseFromShop,
			BasePath:         "/admin/api/2024-10",
			TokenHeader:      "X-Shopify-Access-Token",
			PingPath:         "/shop.json",
			SyncPath:         "/orders.json?status=any&limit=50",
			ItemsKey:         "orders",
			AccountFromToken: func(extras map[string]string) string { return extras["shop"] },
		},
		{
			ID:               "slack",
			Name:             "Slack",
			Kind:             KindMessaging,
			AuthURL:          "https://slack.com/oauth/v2/authorize",
			TokenURL:         "https://slack.com/api/oauth.v2.access",
			Scopes:           []string{"channels:read", "team:read", "chat:write"},
			ScopeSeparator:   ",",
			AuthStyle:        oauth2.AuthStyleInParams,
			TokenExtras:      []string{"team.id", "team.name", "bot_user_id"},
			APIBaseURL:       "https://slack.com/api",
			OKField:          "ok",
			PingPath:         "/auth.test",
			SyncPath:         "/conversations.list?limit=200",
			ItemsKey:         "channels",
			AccountFromToken: func(extras map[string]string) string { return extras["team.id"] },
		},
	}
}

// salesforceOrgID extracts the org id from the identity URL .../id/<org>/<user>.
func salesforceOrgID(extras map[string]string) string {
	parts := strings.Split(strings.TrimRight(extras["id"], "/"), "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[len(parts)-2]
}
